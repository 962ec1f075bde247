// Package session implements the per-controller cryptographic session
// (spec §3 "Session", §4.C4). A Session is addressed by its ID (an index
// into the owning server's session table), never held as a bare pointer
// across a suspension point, per the "Pointer graphs -> arena-and-index"
// design note.
package session

import (
	"crypto/ed25519"
	"fmt"
	"time"

	hcrypto "github.com/hkadk/hapcore/internal/hap/crypto"
	"github.com/hkadk/hapcore/internal/hap/herr"
	"github.com/hkadk/hapcore/internal/hap/store"
)

// Transport tags which physical transport a Session rides on (spec §9:
// "Opaque handle + downcast -> tagged union").
type Transport uint8

const (
	TransportIP Transport = iota
	TransportBLE
)

func (t Transport) String() string {
	if t == TransportBLE {
		return "ble"
	}
	return "ip"
}

// ID is an opaque index into the owning server's session table.
type ID int

// ChannelState is one direction's symmetric key and strictly monotonic
// message counter (spec §3).
type ChannelState struct {
	Key     [32]byte
	Counter uint64
}

// BLEState holds the BLE-only fields carried by a Session (spec §3):
// link/procedure/safe-to-disconnect deadlines and the terminal flag set
// when the procedure engine (C10) decides no further requests may be
// accepted.
type BLEState struct {
	LinkDeadline             time.Time
	ProcedureDeadline        time.Time
	SafeToDisconnectDeadline time.Time
	IsTerminal               bool
}

// Session is one controller's per-connection cryptographic state.
type Session struct {
	ID          ID
	Transport   Transport
	Active      bool // true once Pair Verify has completed
	IsTransient bool // set by a Transient Pair Setup; no pairing persisted
	PairingID   store.PairingID

	// CVKey is the Pair Verify shared secret (spec §3 cv_KEY), retained
	// for subsequent BLE broadcast-key derivation.
	CVKey [32]byte

	ControllerToAccessory ChannelState
	AccessoryToController ChannelState

	BLE *BLEState // non-nil iff Transport == TransportBLE
}

// New creates an inactive session with counters at 0 and no pairing.
func New(id ID, transport Transport) *Session {
	s := &Session{ID: id, Transport: transport, PairingID: ^store.PairingID(0)}
	if transport == TransportBLE {
		s.BLE = &BLEState{}
	}
	return s
}

// zero overwrites every key-material field, per spec §5 "key material is
// always zeroed on session invalidation".
func (s *Session) zero() {
	s.CVKey = [32]byte{}
	s.ControllerToAccessory = ChannelState{}
	s.AccessoryToController = ChannelState{}
	s.Active = false
	s.IsTransient = false
}

// Invalidate zeroes key material, marks the session inactive, and — if
// terminateLink is true — asks disconnect to tear down the underlying
// transport connection. disconnect may be nil (e.g. a session that never
// reached a live transport).
func (s *Session) Invalidate(terminateLink bool, disconnect func()) {
	s.zero()
	if s.BLE != nil {
		s.BLE.IsTerminal = true
	}
	if terminateLink && disconnect != nil {
		disconnect()
	}
}

// IsSecured reports whether the session is authenticated: Active and
// either Transient or backed by a surviving pairing record (spec §4.C4).
// pairingExists must consult the current persistent store state — the
// pairing may have been removed by a concurrent Pairings.Remove since
// Active was last set, which must immediately de-authenticate the session.
func (s *Session) IsSecured(pairingExists func(store.PairingID) bool) bool {
	if !s.Active {
		return false
	}
	if s.IsTransient {
		return true
	}
	return pairingExists(s.PairingID)
}

// ControllerIsAdmin consults the pairing record's permission bit.
func ControllerIsAdmin(rec store.PairingRecord) bool {
	return rec.IsAdmin()
}

// EncryptControl seals plain under AccessoryToController.Key at the
// current counter and advances the counter by one afterward (spec §4.C4).
func (s *Session) EncryptControl(aead hcrypto.AEAD, plain []byte) ([]byte, error) {
	nonce := hcrypto.NonceFromCounter(s.AccessoryToController.Counter)
	cipher, err := aead.Seal(s.AccessoryToController.Key[:], nonce, plain, nil)
	if err != nil {
		return nil, herr.Wrap("session.EncryptControl", herr.KindUnknown, err)
	}
	s.AccessoryToController.Counter++
	return cipher, nil
}

// DecryptControl opens cipherWithTag under ControllerToAccessory.Key at
// the current counter. On success the counter advances by one. On
// failure the entire session is zeroed (treated as active attack per
// spec §7) and a KindInvalidData error is returned.
func (s *Session) DecryptControl(aead hcrypto.AEAD, cipherWithTag []byte) ([]byte, error) {
	nonce := hcrypto.NonceFromCounter(s.ControllerToAccessory.Counter)
	plain, err := aead.Open(s.ControllerToAccessory.Key[:], nonce, cipherWithTag, nil)
	if err != nil {
		s.zero()
		return nil, herr.New("session.DecryptControl", herr.KindInvalidData, fmt.Sprintf("decrypt failed: %v", err))
	}
	s.ControllerToAccessory.Counter++
	return plain, nil
}

// DeriveControlKeys computes the two directional ChaCha20 keys from the
// Pair Verify shared secret (spec §4.C6): HKDF-SHA512 with salt
// "Control-Salt" and info "Control-Read-Encryption-Key" /
// "Control-Write-Encryption-Key". "Read"/"Write" are from the
// controller's perspective, so Read -> AccessoryToController and Write ->
// ControllerToAccessory.
func (s *Session) DeriveControlKeys(suite hcrypto.Suite, sharedSecret [32]byte) error {
	readKey, err := suite.HKDFSHA512(sharedSecret[:], []byte("Control-Salt"), []byte("Control-Read-Encryption-Key"), 32)
	if err != nil {
		return fmt.Errorf("session: derive control read key: %w", err)
	}
	writeKey, err := suite.HKDFSHA512(sharedSecret[:], []byte("Control-Salt"), []byte("Control-Write-Encryption-Key"), 32)
	if err != nil {
		return fmt.Errorf("session: derive control write key: %w", err)
	}
	copy(s.AccessoryToController.Key[:], readKey)
	copy(s.ControllerToAccessory.Key[:], writeKey)
	return nil
}

// VerifyControllerSignature checks a controller's LTPK signature over a
// message, used identically by Pair Setup M5 and Pair Verify M3.
func VerifyControllerSignature(signer hcrypto.Signer, pub ed25519.PublicKey, message, sig []byte) bool {
	return signer.Verify(pub, message, sig)
}
