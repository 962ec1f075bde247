// Package pairsetup implements the Pair Setup procedure (spec §4.C5): the
// six-message SRP-6a exchange by which the very first controller proves
// knowledge of the accessory's setup code and exchanges long-term Ed25519
// keys with it. Exactly one Pair Setup procedure may be in progress across
// the whole server at a time (spec §5 concurrency), so Engine itself is the
// server-wide lock: it is constructed once and shared by every session.
package pairsetup

import (
	"crypto/ed25519"
	"fmt"
	"time"

	hcrypto "github.com/hkadk/hapcore/internal/hap/crypto"
	"github.com/hkadk/hapcore/internal/hap/herr"
	"github.com/hkadk/hapcore/internal/hap/pairproto"
	"github.com/hkadk/hapcore/internal/hap/session"
	"github.com/hkadk/hapcore/internal/hap/store"
	"github.com/hkadk/hapcore/internal/hap/tlv8"
)

// State is the Pair Setup procedure's progress, tracked server-wide since
// at most one procedure runs at a time.
type State uint8

const (
	Idle State = iota
	M1Received
	M3Received
	M5Received
	Complete
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case M1Received:
		return "m1-received"
	case M3Received:
		return "m3-received"
	case M5Received:
		return "m5-received"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// procedureTimeout is the deadline by which a started Pair Setup procedure
// must complete, per spec §5; exceeding it releases the server-wide lock.
const procedureTimeout = 30 * time.Second

// maxUnsuccessfulAuthAttempts is the lifetime lockout threshold (spec §7):
// once reached, Pair Setup refuses every further M1 until a factory reset.
const maxUnsuccessfulAuthAttempts = 100

const srpIdentity = "Pair-Setup"

// Credentials supplies the current (salt, verifier) pair the procedure
// authenticates against — owned by the setup-info manager (spec §4.C12),
// which may rotate it between attempts (e.g. after a regenerate-setup-code
// request).
type Credentials interface {
	CurrentSRPVerifier() (salt, verifier []byte, err error)
}

// Identity is the accessory's own long-term identity, used to sign M6 and
// to persist the new pairing record.
type Identity struct {
	PairingID [17]byte // accessory's ASCII Device ID, e.g. "AA:BB:CC:DD:EE:FF"
	LTSK      ed25519.PrivateKey
	LTPK      ed25519.PublicKey
}

// Engine runs the Pair Setup state machine. Not safe for concurrent use —
// like the rest of the dispatch-owned state (spec §5), every call happens
// on the single dispatch task.
type Engine struct {
	suite    hcrypto.Suite
	creds    Credentials
	identity Identity
	pairings *store.PairingStore
	backing  store.Store

	state      State
	owner      *session.ID
	deadline   time.Time
	flags      uint32
	srpSession hcrypto.SRPServerSession
	salt       []byte
	sessionKey []byte // HKDF-derived symmetric key for M5/M6, not the raw SRP K
}

// NewEngine constructs a Pair Setup engine bound to one server's
// credentials, identity, and pairing store.
func NewEngine(suite hcrypto.Suite, creds Credentials, identity Identity, pairings *store.PairingStore, backing store.Store) *Engine {
	return &Engine{suite: suite, creds: creds, identity: identity, pairings: pairings, backing: backing}
}

// reset releases the server-wide lock and returns the engine to Idle.
func (e *Engine) reset() {
	e.state = Idle
	e.owner = nil
	e.flags = 0
	e.srpSession = nil
	e.salt = nil
	e.sessionKey = nil
}

// expireIfStale clears an abandoned in-progress procedure once its deadline
// has passed, per spec §5 "a stalled procedure must not wedge the server".
func (e *Engine) expireIfStale(now time.Time) {
	if e.state != Idle && e.state != Complete && e.state != Failed && now.After(e.deadline) {
		e.reset()
	}
}

// Handle processes one Pair Setup TLV request from sess and returns the TLV
// response. now is the caller's notion of wall-clock time (injectable for
// deterministic tests).
func (e *Engine) Handle(now time.Time, sess *session.Session, body []byte) ([]byte, error) {
	e.expireIfStale(now)

	r, err := tlv8.NewReader(body)
	if err != nil {
		return nil, herr.Wrap("pairsetup.Handle", herr.KindInvalidData, err)
	}
	st, ok := r.GetByte(pairproto.TypeState)
	if !ok {
		return nil, herr.New("pairsetup.Handle", herr.KindInvalidData, "missing state TLV")
	}

	switch st {
	case 1:
		return e.handleM1(now, sess, r)
	case 3:
		return e.handleM3(sess, r)
	case 5:
		return e.handleM5(sess, r)
	default:
		return e.errorResponse(st+1, pairproto.ErrorUnknown), nil
	}
}

func (e *Engine) errorResponse(state byte, code pairproto.ErrorCode) []byte {
	e.state = Failed
	buf := make([]byte, 16)
	w := tlv8.NewWriter(buf)
	_ = w.Append(pairproto.TypeState, []byte{state})
	_ = w.Append(pairproto.TypeError, []byte{byte(code)})
	return w.Bytes()
}

func (e *Engine) handleM1(now time.Time, sess *session.Session, r *tlv8.Reader) ([]byte, error) {
	if e.state != Idle {
		if e.owner != nil && *e.owner != sess.ID {
			return nil, herr.New("pairsetup.handleM1", herr.KindBusy, "a Pair Setup procedure is already in progress")
		}
	}

	attempts, err := store.GetUnsuccessfulAuthAttempts(e.backing)
	if err != nil {
		return nil, herr.Wrap("pairsetup.handleM1", herr.KindUnknown, err)
	}
	if attempts >= maxUnsuccessfulAuthAttempts {
		return e.errorResponse(2, pairproto.ErrorMaxTries), nil
	}

	methodByte, _ := r.GetByte(pairproto.TypeMethod)
	method := pairproto.Method(methodByte)
	if method != pairproto.MethodPairSetup && method != pairproto.MethodPairSetupWithAuth {
		return e.errorResponse(2, pairproto.ErrorUnknown), nil
	}
	flags := uint32(0)
	if v, ok := r.Get(pairproto.TypeFlags); ok {
		flags = pairproto.DecodeFlags(v)
	}

	salt, verifier, err := e.creds.CurrentSRPVerifier()
	if err != nil {
		return nil, herr.Wrap("pairsetup.handleM1", herr.KindUnknown, err)
	}
	srpSession, err := e.suite.NewServerSession(salt, verifier)
	if err != nil {
		return nil, herr.Wrap("pairsetup.handleM1", herr.KindUnknown, err)
	}

	id := sess.ID
	e.state = M1Received
	e.owner = &id
	e.deadline = now.Add(procedureTimeout)
	e.flags = flags
	e.srpSession = srpSession
	e.salt = salt

	buf := make([]byte, 512)
	w := tlv8.NewWriter(buf)
	_ = w.Append(pairproto.TypeState, []byte{2})
	_ = w.Append(pairproto.TypePublicKey, srpSession.PublicKey())
	_ = w.Append(pairproto.TypeSalt, salt)
	return w.Bytes(), nil
}

func (e *Engine) handleM3(sess *session.Session, r *tlv8.Reader) ([]byte, error) {
	if e.state != M1Received || e.owner == nil || *e.owner != sess.ID {
		return nil, herr.New("pairsetup.handleM3", herr.KindInvalidState, "M3 received out of sequence")
	}
	clientA, ok := r.Get(pairproto.TypePublicKey)
	if !ok {
		return e.failM3(), nil
	}
	clientProof, ok := r.Get(pairproto.TypeProof)
	if !ok {
		return e.failM3(), nil
	}

	k, err := e.srpSession.ComputeSessionKey(clientA)
	if err != nil {
		return e.failM3(), nil
	}
	serverProof, err := e.srpSession.VerifyClientProof(srpIdentity, clientA, clientProof)
	if err != nil {
		return e.failM3(), nil
	}

	sessionKey, err := e.suite.HKDFSHA512(k, []byte("Pair-Setup-Encrypt-Salt"), []byte("Pair-Setup-Encrypt-Info"), 32)
	if err != nil {
		return nil, herr.Wrap("pairsetup.handleM3", herr.KindUnknown, err)
	}
	e.sessionKey = sessionKey
	e.state = M3Received

	buf := make([]byte, 128)
	w := tlv8.NewWriter(buf)
	_ = w.Append(pairproto.TypeState, []byte{4})
	_ = w.Append(pairproto.TypeProof, serverProof)
	return w.Bytes(), nil
}

// failM3 records an unsuccessful attempt and returns the M4 error TLV.
func (e *Engine) failM3() []byte {
	_, _ = store.IncrementUnsuccessfulAuthAttempts(e.backing)
	resp := e.errorResponse(4, pairproto.ErrorAuthentication)
	e.reset()
	return resp
}

// failM5 records an unsuccessful attempt and returns the M6 error TLV.
func (e *Engine) failM5() []byte {
	_, _ = store.IncrementUnsuccessfulAuthAttempts(e.backing)
	resp := e.errorResponse(6, pairproto.ErrorAuthentication)
	e.reset()
	return resp
}

func (e *Engine) handleM5(sess *session.Session, r *tlv8.Reader) ([]byte, error) {
	if e.state != M3Received || e.owner == nil || *e.owner != sess.ID {
		return nil, herr.New("pairsetup.handleM5", herr.KindInvalidState, "M5 received out of sequence")
	}
	encrypted, ok := r.Get(pairproto.TypeEncryptedData)
	if !ok {
		return e.failM5(), nil
	}

	var aead hcrypto.ChaCha20Poly1305
	plain, err := aead.Open(e.sessionKey, nonceForLabel("PS-Msg05"), encrypted, nil)
	if err != nil {
		return e.failM5(), nil
	}

	sub, err := tlv8.NewReader(plain)
	if err != nil {
		return e.failM5(), nil
	}
	controllerID, ok := sub.Get(pairproto.TypeIdentifier)
	if !ok {
		return e.failM5(), nil
	}
	controllerLTPK, ok := sub.Get(pairproto.TypePublicKey)
	if !ok || len(controllerLTPK) != ed25519.PublicKeySize {
		return e.failM5(), nil
	}
	controllerSig, ok := sub.Get(pairproto.TypeSignature)
	if !ok {
		return e.failM5(), nil
	}

	if err := e.verifyControllerSignature(controllerID, controllerLTPK, controllerSig); err != nil {
		return e.failM5(), nil
	}

	e.state = M5Received

	isTransient := pairproto.HasFlag(e.flags, pairproto.FlagTransient)
	isSplit := pairproto.HasFlag(e.flags, pairproto.FlagSplit)

	var assignedID store.PairingID
	if !isTransient {
		var rec store.PairingRecord
		rec.IdentifierLen = uint8(len(controllerID))
		copy(rec.Identifier[:], controllerID)
		rec.PublicKey = append(ed25519.PublicKey(nil), controllerLTPK...)
		rec.Permissions = store.PermissionAdmin

		id, err := e.pairings.NextFreeID()
		if err != nil {
			return nil, herr.Wrap("pairsetup.handleM5", herr.KindOutOfResources, err)
		}
		if err := e.pairings.Add(id, rec); err != nil {
			return nil, herr.Wrap("pairsetup.handleM5", herr.KindUnknown, err)
		}
		assignedID = id
	}

	accessorySig, err := e.signAccessoryInfo(controllerID, controllerLTPK)
	if err != nil {
		return nil, herr.Wrap("pairsetup.handleM5", herr.KindUnknown, err)
	}

	subBuf := make([]byte, 256)
	subW := tlv8.NewWriter(subBuf)
	_ = subW.Append(pairproto.TypeIdentifier, e.identity.PairingID[:])
	_ = subW.Append(pairproto.TypeSignature, accessorySig)

	cipher, err := aead.Seal(e.sessionKey, nonceForLabel("PS-Msg06"), subW.Bytes(), nil)
	if err != nil {
		return nil, herr.Wrap("pairsetup.handleM5", herr.KindUnknown, err)
	}

	_ = store.ClearUnsuccessfulAuthAttempts(e.backing)
	sess.Active = true
	sess.IsTransient = isTransient
	if !isTransient {
		sess.PairingID = assignedID
	}
	_ = isSplit // The Split flag is parsed but has no effect; no code path acts on it.

	e.state = Complete
	e.reset()

	buf := make([]byte, 512)
	w := tlv8.NewWriter(buf)
	_ = w.Append(pairproto.TypeState, []byte{6})
	_ = w.Append(pairproto.TypeEncryptedData, cipher)
	return w.Bytes(), nil
}

func (e *Engine) verifyControllerSignature(controllerID, controllerLTPK, sig []byte) error {
	x, err := e.suite.HKDFSHA512(e.sessionKey, []byte("Pair-Setup-Controller-Sign-Salt"), []byte("Pair-Setup-Controller-Sign-Info"), 32)
	if err != nil {
		return err
	}
	info := append(append(append([]byte{}, x...), controllerID...), controllerLTPK...)
	if !e.suite.Verify(controllerLTPK, info, sig) {
		return fmt.Errorf("pairsetup: controller signature verification failed")
	}
	return nil
}

func (e *Engine) signAccessoryInfo(controllerID, controllerLTPK []byte) ([]byte, error) {
	x, err := e.suite.HKDFSHA512(e.sessionKey, []byte("Pair-Setup-Accessory-Sign-Salt"), []byte("Pair-Setup-Accessory-Sign-Info"), 32)
	if err != nil {
		return nil, err
	}
	info := append(append([]byte{}, x...), e.identity.PairingID[:]...)
	info = append(info, e.identity.LTPK...)
	return e.suite.Sign(e.identity.LTSK, info), nil
}

// nonceForLabel builds the 12-byte AEAD nonce HAP uses for Pair Setup's two
// encrypted sub-TLVs: 4 zero bytes followed by the 8-ASCII-byte label.
func nonceForLabel(label string) [12]byte {
	var n [12]byte
	copy(n[4:], label)
	return n
}

// State reports the engine's current progress, used by diagnostics.
func (e *Engine) State() State { return e.state }
