// Package advertiser builds the two HAP-BLE advertisement payload formats
// (spec §4.C11): the regular format and the encrypted-notification
// format, plus the advertising-interval policy that drives when each is
// broadcast. GSN increments are made by internal/hap/event, not here.
package advertiser

import (
	"crypto/sha512"
	"encoding/binary"

	hcrypto "github.com/hkadk/hapcore/internal/hap/crypto"
	"github.com/hkadk/hapcore/internal/hap/herr"
	"github.com/hkadk/hapcore/internal/hap/store"
)

// Apple company ID used in the manufacturer-specific AD structure.
const companyID = 0x004C

const (
	typeRegular               = 0x06
	typeEncryptedNotification = 0x11
)

const compatibilityVersion = 0x02 // spec §9 open question: fixed, no versioning hook

// StatusFlags is the regular-format status byte; bit 0 means not yet paired.
type StatusFlags byte

const StatusNotPaired StatusFlags = 1 << 0

// RegularParams holds the fields needed to build the regular
// advertisement manufacturer-data payload (spec §4.C11).
type RegularParams struct {
	DeviceID            [6]byte
	AccessoryCategoryID uint16
	GSN                 store.GSN
	ConfigNumber        uint32
	Status              StatusFlags
}

// WrapConfigNumber implements "((CN - 1) mod 255) + 1" (spec §4.C11),
// shared with the Protocol Configuration response's Current-Config-Number
// field (internal/hap/ble/procedure), which reports the same wrapped byte.
func WrapConfigNumber(cn uint32) byte {
	return byte((cn-1)%255) + 1
}

// SetupHash computes the 4-byte setup hash: the first 4 bytes of
// SHA-512(setupID ‖ deviceIDString) (spec §8 Scenario 1/2). This is a
// direct hash, not an HKDF derivation, so it uses crypto/sha512 directly
// rather than going through the Suite capability surface.
func SetupHash(setupID, deviceIDString string) [4]byte {
	digest := sha512.Sum512([]byte(setupID + deviceIDString))
	var out [4]byte
	copy(out[:], digest[:4])
	return out
}

// EncodeRegular serializes the regular-format manufacturer data (spec
// §4.C11): Company ID, Type, Subtype length, Status, Device ID, Category,
// GSN, wrapped Config Number, Compatibility Version, and an optional
// 4-byte setup hash.
func EncodeRegular(p RegularParams, setupHash *[4]byte) []byte {
	body := make([]byte, 0, 17)
	body = append(body, byte(p.Status))
	body = append(body, p.DeviceID[:]...)
	cat := make([]byte, 2)
	binary.LittleEndian.PutUint16(cat, p.AccessoryCategoryID)
	body = append(body, cat...)
	gsn := make([]byte, 2)
	binary.LittleEndian.PutUint16(gsn, uint16(p.GSN))
	body = append(body, gsn...)
	body = append(body, WrapConfigNumber(p.ConfigNumber), compatibilityVersion)
	if setupHash != nil {
		body = append(body, setupHash[:]...)
	}

	out := make([]byte, 0, 3+len(body))
	out = append(out, byte(companyID), byte(companyID>>8))
	out = append(out, typeRegular)
	out = append(out, byte(len(body)))
	out = append(out, body...)
	return out
}

// EncryptedNotificationParams holds the fields for the encrypted-
// notification manufacturer-data payload (spec §4.C11).
type EncryptedNotificationParams struct {
	AdvertisingID [6]byte
	GSN           store.GSN
	IID           uint16
	Value         []byte // raw encoded value, zero-padded to 8 bytes by EncodeEncryptedNotification
	BroadcastKey  [32]byte
}

// EncodeEncryptedNotification serializes the encrypted-notification
// manufacturer data: Type 0x11, Advertising ID, GSN, IID, 8-byte
// zero-padded value, and a 4-byte ChaCha20-Poly1305 truncated tag over
// GSN‖IID‖value with AAD = Advertising ID and nonce = GSN as a 64-bit
// little-endian counter.
func EncodeEncryptedNotification(suite hcrypto.Suite, p EncryptedNotificationParams) ([]byte, error) {
	if len(p.Value) > 8 {
		return nil, herr.New("advertiser.EncodeEncryptedNotification", herr.KindInvalidData, "broadcast value exceeds 8 bytes")
	}
	var value8 [8]byte
	copy(value8[:], p.Value)

	gsnBytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(gsnBytes, uint16(p.GSN))
	iidBytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(iidBytes, p.IID)

	plain := make([]byte, 0, 12)
	plain = append(plain, gsnBytes...)
	plain = append(plain, iidBytes...)
	plain = append(plain, value8[:]...)

	// The AEAD capability surface only exposes plaintext-sealing; the
	// "tag over the last 12 bytes, AAD = Advertising ID" construction is
	// expressed here by sealing the 12 bytes as plaintext with the
	// Advertising ID as AAD, then keeping only the 4-byte truncated tag
	// (spec §4.C11) and discarding the ciphertext (same length as plain,
	// never transmitted).
	nonce := hcrypto.NonceFromCounter(uint64(p.GSN))
	sealed, err := suite.Seal(p.BroadcastKey[:], nonce, plain, p.AdvertisingID[:])
	if err != nil {
		return nil, herr.Wrap("advertiser.EncodeEncryptedNotification", herr.KindUnknown, err)
	}
	tag := sealed[len(sealed)-16:]

	body := make([]byte, 0, 22)
	body = append(body, p.AdvertisingID[:]...)
	body = append(body, gsnBytes...)
	body = append(body, iidBytes...)
	body = append(body, value8[:]...)
	body = append(body, tag[:4]...)

	out := make([]byte, 0, 3+len(body))
	out = append(out, byte(companyID), byte(companyID>>8))
	out = append(out, typeEncryptedNotification)
	out = append(out, byte(len(body)))
	out = append(out, body...)
	return out, nil
}

// FastInterval is used for fast-initial, fast-reconnect, and active
// broadcasted/disconnected-event advertising windows (spec §4.C11).
const FastInterval = 20 // ms

// Phase identifies which interval-policy window is currently active.
type Phase uint8

const (
	PhaseFastInitial Phase = iota
	PhaseFastReconnect
	PhaseEventWindow
	PhaseRegular
	PhasePaused // a controller is connected; advertising is paused entirely
)

// IntervalMS returns the advertising interval for phase, or 0 with
// advertising paused when a controller is connected (spec §4.C11
// "Interval policy").
func IntervalMS(phase Phase, regularIntervalMS int) int {
	switch phase {
	case PhaseFastInitial, PhaseFastReconnect, PhaseEventWindow:
		return FastInterval
	case PhasePaused:
		return 0
	default:
		return regularIntervalMS
	}
}
