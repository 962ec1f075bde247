// Package setupinfo implements the accessory setup-code lifecycle and
// setup-payload encoding (spec §4.C12): SRP salt/verifier derivation,
// setup code/ID generation and validation, display/NFC lifecycle modes,
// and the `X-HM://...` setup payload string.
package setupinfo

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	hcrypto "github.com/hkadk/hapcore/internal/hap/crypto"
	"github.com/hkadk/hapcore/internal/hap/herr"
)

// blockedSetupCodes are rejected even though they are otherwise
// well-formed (spec §6 CLI, §8 Scenario list).
var blockedSetupCodes = map[string]bool{
	"123-45-678": true,
	"876-54-321": true,
}

// ValidateSetupCode checks the "XXX-XX-XXX" shape, rejects all-repeated-
// digit codes, and rejects the two blocked codes.
func ValidateSetupCode(code string) error {
	if len(code) != 10 || code[3] != '-' || code[6] != '-' {
		return herr.New("setupinfo.ValidateSetupCode", herr.KindInvalidData, "setup code must match XXX-XX-XXX")
	}
	digits := code[0:3] + code[4:6] + code[7:10]
	if len(digits) != 8 {
		return herr.New("setupinfo.ValidateSetupCode", herr.KindInvalidData, "setup code must match XXX-XX-XXX")
	}
	allSame := true
	for i := range digits {
		if digits[i] < '0' || digits[i] > '9' {
			return herr.New("setupinfo.ValidateSetupCode", herr.KindInvalidData, "setup code must be all digits")
		}
		if digits[i] != digits[0] {
			allSame = false
		}
	}
	if allSame {
		return herr.New("setupinfo.ValidateSetupCode", herr.KindInvalidData, "setup code may not be all one repeated digit")
	}
	if blockedSetupCodes[code] {
		return herr.New("setupinfo.ValidateSetupCode", herr.KindInvalidData, "setup code is a blocked literal")
	}
	return nil
}

// GenerateSetupCode produces a random "XXX-XX-XXX" code satisfying
// ValidateSetupCode, retrying on the rare all-repeated/blocked draw.
func GenerateSetupCode() (string, error) {
	for {
		var digits [8]byte
		if _, err := rand.Read(digits[:]); err != nil {
			return "", herr.Wrap("setupinfo.GenerateSetupCode", herr.KindUnknown, err)
		}
		for i := range digits {
			digits[i] = '0' + digits[i]%10
		}
		code := fmt.Sprintf("%s-%s-%s", digits[0:3], digits[3:5], digits[5:8])
		if ValidateSetupCode(code) == nil {
			return code, nil
		}
	}
}

// ValidateSetupID checks the 4-char uppercase-alphanumeric shape.
func ValidateSetupID(id string) error {
	if len(id) != 4 {
		return herr.New("setupinfo.ValidateSetupID", herr.KindInvalidData, "setup ID must be 4 characters")
	}
	for _, c := range id {
		if !((c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
			return herr.New("setupinfo.ValidateSetupID", herr.KindInvalidData, "setup ID must be uppercase A-Z or 0-9")
		}
	}
	return nil
}

// GenerateSetupID produces a random 4-char uppercase-alphanumeric ID.
func GenerateSetupID() (string, error) {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	out := make([]byte, 4)
	idx := make([]byte, 4)
	if _, err := rand.Read(idx); err != nil {
		return "", herr.Wrap("setupinfo.GenerateSetupID", herr.KindUnknown, err)
	}
	for i, b := range idx {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out), nil
}

// SetupInfo is the SRP (salt, verifier) pair derived from a setup code,
// persisted under the Pairings-adjacent configuration state (spec §3).
type SetupInfo struct {
	Salt     [16]byte
	Verifier [384]byte
}

// DeriveSetupInfo generates a fresh 16-byte salt and the corresponding
// SRP-6a verifier for setupCode, using identity "Pair-Setup" as the HAP
// protocol mandates.
func DeriveSetupInfo(srp hcrypto.SRPServer, setupCode string) (SetupInfo, error) {
	if err := ValidateSetupCode(setupCode); err != nil {
		return SetupInfo{}, err
	}
	var info SetupInfo
	if _, err := rand.Read(info.Salt[:]); err != nil {
		return SetupInfo{}, herr.Wrap("setupinfo.DeriveSetupInfo", herr.KindUnknown, err)
	}
	verifier, err := srp.NewVerifier(info.Salt[:], "Pair-Setup", setupCode)
	if err != nil {
		return SetupInfo{}, herr.Wrap("setupinfo.DeriveSetupInfo", herr.KindUnknown, err)
	}
	if len(verifier) != 384 {
		return SetupInfo{}, herr.New("setupinfo.DeriveSetupInfo", herr.KindInvalidData, "verifier must be 384 bytes")
	}
	copy(info.Verifier[:], verifier)
	return info, nil
}

// PayloadFlags, carried in the setup payload's 4-bit flags field.
const (
	PayloadFlagIPTransport  uint8 = 1 << 0
	PayloadFlagSupportsWAC  uint8 = 1 << 1
	PayloadFlagBLETransport uint8 = 1 << 2
)

const payloadPrefix = "X-HM://"

var base36Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// EncodeSetupPayload builds the `X-HM://...` string: base-36 encoding of
// a 45-bit integer {version(3), reserved(4), category(8), flags(4),
// setupCode(27)} followed by the 4-character setup ID (spec §4.C12).
// setupCode may be "" for a non-pairable payload (embeds only category
// and flags, with the setup-code bits left at 0).
func EncodeSetupPayload(category uint16, flags uint8, setupCode, setupID string) (string, error) {
	if err := ValidateSetupID(setupID); err != nil {
		return "", err
	}
	var codeValue uint64
	if setupCode != "" {
		if err := ValidateSetupCode(setupCode); err != nil {
			return "", err
		}
		digits := setupCode[0:3] + setupCode[4:6] + setupCode[7:10]
		n, err := parseDecimal(digits)
		if err != nil {
			return "", herr.Wrap("setupinfo.EncodeSetupPayload", herr.KindInvalidData, err)
		}
		codeValue = n
	}

	var packed uint64
	packed |= uint64(0) << 43        // version, 3 bits, always 0
	packed |= uint64(0) << 39        // reserved, 4 bits
	packed |= uint64(category) << 31 // category, 8 bits
	packed |= uint64(flags) << 27    // flags, 4 bits
	packed |= codeValue & 0x7FFFFFF  // setup code, 27 bits

	encoded := encodeBase36(packed)
	return payloadPrefix + encoded + setupID, nil
}

func parseDecimal(s string) (uint64, error) {
	n := new(big.Int)
	if _, ok := n.SetString(s, 10); !ok {
		return 0, fmt.Errorf("setupinfo: %q is not decimal", s)
	}
	return n.Uint64(), nil
}

func encodeBase36(v uint64) string {
	if v == 0 {
		return "0"
	}
	var sb strings.Builder
	var digits []byte
	for v > 0 {
		digits = append(digits, base36Alphabet[v%36])
		v /= 36
	}
	for i := len(digits) - 1; i >= 0; i-- {
		sb.WriteByte(digits[i])
	}
	return sb.String()
}

// Mode selects which setup-info peripherals are present (spec §4.C12).
type Mode uint8

const (
	ModeNone Mode = iota
	ModeDisplay
	ModeNFC
	ModeDisplayAndNFC
)

// RefreshInterval is how often a displayed setup code is regenerated
// (spec §5 "Dynamic setup code refresh").
const RefreshInterval = 5 * time.Minute

// NFCAutoExitTimeout is how long NFC pairing mode stays entered without a
// successful pairing (spec §5 "BLE NFC pairing mode").
const NFCAutoExitTimeout = 5 * time.Minute

// Manager drives the setup-code lifecycle for one accessory. Not safe for
// concurrent use.
type Manager struct {
	mode Mode

	currentCode   string
	lastRefresh   time.Time
	lockedForPair bool

	nfcModeEntered bool
	nfcEnteredAt   time.Time
}

// NewManager creates a Manager in mode with an initial freshly generated
// setup code (ModeDisplay/ModeDisplayAndNFC) or none (ModeNone/ModeNFC,
// which use a static platform-provided code instead).
func NewManager(mode Mode) (*Manager, error) {
	m := &Manager{mode: mode}
	if mode == ModeDisplay || mode == ModeDisplayAndNFC {
		code, err := GenerateSetupCode()
		if err != nil {
			return nil, err
		}
		m.currentCode = code
	}
	return m, nil
}

// Mode returns the manager's setup-info mode.
func (m *Manager) Mode() Mode { return m.mode }

// CurrentCode returns the setup code currently valid for pairing.
func (m *Manager) CurrentCode() string { return m.currentCode }

// SetStaticCode installs a platform-provided static code (ModeNone,
// ModeNFC) instead of a generated one.
func (m *Manager) SetStaticCode(code string) error {
	if err := ValidateSetupCode(code); err != nil {
		return err
	}
	m.currentCode = code
	return nil
}

// LockForPairingAttempt freezes the current code against refresh for the
// duration of an in-progress Pair Setup (spec §3 "lockSetupInfo").
func (m *Manager) LockForPairingAttempt() { m.lockedForPair = true }

// UnlockAfterPairingAttempt releases the freeze once Pair Setup completes
// or fails.
func (m *Manager) UnlockAfterPairingAttempt() { m.lockedForPair = false }

// Tick regenerates the setup code if its refresh interval has elapsed and
// it is not currently locked for a pairing attempt. Only meaningful in
// ModeDisplay/ModeDisplayAndNFC.
func (m *Manager) Tick(now time.Time) error {
	if m.mode != ModeDisplay && m.mode != ModeDisplayAndNFC {
		return nil
	}
	if m.lockedForPair {
		return nil
	}
	if m.lastRefresh.IsZero() {
		m.lastRefresh = now
		return nil
	}
	if now.Sub(m.lastRefresh) < RefreshInterval {
		return nil
	}
	code, err := GenerateSetupCode()
	if err != nil {
		return err
	}
	m.currentCode = code
	m.lastRefresh = now
	return nil
}

// EnterNFCPairingMode records NFC pairing mode entry at now (ModeNFC,
// ModeDisplayAndNFC only).
func (m *Manager) EnterNFCPairingMode(now time.Time) {
	m.nfcModeEntered = true
	m.nfcEnteredAt = now
}

// ExitNFCPairingMode exits NFC pairing mode, whether by success, explicit
// user action, or auto-exit.
func (m *Manager) ExitNFCPairingMode() {
	m.nfcModeEntered = false
}

// InNFCPairingMode reports whether NFC pairing mode is active, auto-
// exiting if NFCAutoExitTimeout has elapsed since entry.
func (m *Manager) InNFCPairingMode(now time.Time) bool {
	if !m.nfcModeEntered {
		return false
	}
	if now.Sub(m.nfcEnteredAt) > NFCAutoExitTimeout {
		m.nfcModeEntered = false
		return false
	}
	return true
}
