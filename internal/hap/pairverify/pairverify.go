// Package pairverify implements the Pair Verify procedure (spec §4.C6): the
// four-message Curve25519 ECDH handshake a previously-paired controller
// runs on every new connection to establish a fresh, forward-secret session
// without re-running Pair Setup. Unlike Pair Setup, multiple Pair Verify
// procedures may run concurrently (one per session), so Engine keeps
// per-session scratch state rather than a single server-wide slot.
package pairverify

import (
	"crypto/ed25519"
	"fmt"

	hcrypto "github.com/hkadk/hapcore/internal/hap/crypto"
	"github.com/hkadk/hapcore/internal/hap/herr"
	"github.com/hkadk/hapcore/internal/hap/pairproto"
	"github.com/hkadk/hapcore/internal/hap/session"
	"github.com/hkadk/hapcore/internal/hap/store"
	"github.com/hkadk/hapcore/internal/hap/tlv8"
)

// Identity is the accessory's own long-term identity, used to sign M2.
type Identity struct {
	PairingID [17]byte
	LTSK      ed25519.PrivateKey
	LTPK      ed25519.PublicKey
}

type scratch struct {
	accPriv       [32]byte
	accPub        [32]byte
	ctrlPub       [32]byte
	sharedSecret  [32]byte
	sessionSymKey []byte
}

// Engine runs Pair Verify for every session. Not safe for concurrent use.
type Engine struct {
	suite    hcrypto.Suite
	identity Identity
	pairings *store.PairingStore

	inProgress map[session.ID]*scratch
}

// NewEngine constructs a Pair Verify engine bound to the accessory's
// identity and its persisted pairings.
func NewEngine(suite hcrypto.Suite, identity Identity, pairings *store.PairingStore) *Engine {
	return &Engine{suite: suite, identity: identity, pairings: pairings, inProgress: make(map[session.ID]*scratch)}
}

// Handle processes one Pair Verify TLV request from sess and returns the
// TLV response.
func (e *Engine) Handle(sess *session.Session, body []byte) ([]byte, error) {
	r, err := tlv8.NewReader(body)
	if err != nil {
		return nil, herr.Wrap("pairverify.Handle", herr.KindInvalidData, err)
	}
	st, ok := r.GetByte(pairproto.TypeState)
	if !ok {
		return nil, herr.New("pairverify.Handle", herr.KindInvalidData, "missing state TLV")
	}

	switch st {
	case 1:
		return e.handleM1(sess, r)
	case 3:
		return e.handleM3(sess, r)
	default:
		return e.errorResponse(st+1, pairproto.ErrorUnknown), nil
	}
}

func (e *Engine) errorResponse(state byte, code pairproto.ErrorCode) []byte {
	buf := make([]byte, 16)
	w := tlv8.NewWriter(buf)
	_ = w.Append(pairproto.TypeState, []byte{state})
	_ = w.Append(pairproto.TypeError, []byte{byte(code)})
	return w.Bytes()
}

func (e *Engine) handleM1(sess *session.Session, r *tlv8.Reader) ([]byte, error) {
	ctrlPub, ok := r.Get(pairproto.TypePublicKey)
	if !ok || len(ctrlPub) != 32 {
		return nil, herr.New("pairverify.handleM1", herr.KindInvalidData, "missing or malformed controller public key")
	}

	var ka hcrypto.X25519
	accPub, accPriv, err := ka.GenerateKeyPair()
	if err != nil {
		return nil, herr.Wrap("pairverify.handleM1", herr.KindUnknown, err)
	}
	var ctrlPubArr [32]byte
	copy(ctrlPubArr[:], ctrlPub)

	shared, err := ka.SharedSecret(accPriv, ctrlPubArr)
	if err != nil {
		return nil, herr.Wrap("pairverify.handleM1", herr.KindUnknown, err)
	}

	sessionKey, err := e.suite.HKDFSHA512(shared[:], []byte("Pair-Verify-Encrypt-Salt"), []byte("Pair-Verify-Encrypt-Info"), 32)
	if err != nil {
		return nil, herr.Wrap("pairverify.handleM1", herr.KindUnknown, err)
	}

	sc := &scratch{accPriv: accPriv, accPub: accPub, ctrlPub: ctrlPubArr, sharedSecret: shared, sessionSymKey: sessionKey}
	e.inProgress[sess.ID] = sc

	// Sign AccessoryPublic ‖ AccessoryPairingID ‖ ControllerPublic (spec
	// §4.C6 M2) and encrypt the sub-TLV under the HKDF-derived session key.
	signed := append(append([]byte{}, accPub[:]...), e.identity.PairingID[:]...)
	signed = append(signed, ctrlPub...)
	sig := e.suite.Sign(e.identity.LTSK, signed)

	subBuf := make([]byte, 256)
	subW := tlv8.NewWriter(subBuf)
	_ = subW.Append(pairproto.TypeIdentifier, e.identity.PairingID[:])
	_ = subW.Append(pairproto.TypeSignature, sig)

	var aead hcrypto.ChaCha20Poly1305
	var nonce [12]byte
	copy(nonce[4:], "PV-Msg02")
	cipher, err := aead.Seal(sessionKey, nonce, subW.Bytes(), nil)
	if err != nil {
		return nil, herr.Wrap("pairverify.handleM1", herr.KindUnknown, err)
	}

	buf := make([]byte, 256)
	w := tlv8.NewWriter(buf)
	_ = w.Append(pairproto.TypeState, []byte{2})
	_ = w.Append(pairproto.TypePublicKey, accPub[:])
	_ = w.Append(pairproto.TypeEncryptedData, cipher)
	return w.Bytes(), nil
}

func (e *Engine) handleM3(sess *session.Session, r *tlv8.Reader) ([]byte, error) {
	sc, ok := e.inProgress[sess.ID]
	if !ok {
		return nil, herr.New("pairverify.handleM3", herr.KindInvalidState, "M3 received without a prior M1")
	}
	defer delete(e.inProgress, sess.ID)

	encrypted, ok := r.Get(pairproto.TypeEncryptedData)
	if !ok {
		return e.errorResponse(4, pairproto.ErrorAuthentication), nil
	}

	var aead hcrypto.ChaCha20Poly1305
	var nonce [12]byte
	copy(nonce[4:], "PV-Msg03")
	plain, err := aead.Open(sc.sessionSymKey, nonce, encrypted, nil)
	if err != nil {
		return e.errorResponse(4, pairproto.ErrorAuthentication), nil
	}

	sub, err := tlv8.NewReader(plain)
	if err != nil {
		return e.errorResponse(4, pairproto.ErrorAuthentication), nil
	}
	ctrlID, ok := sub.Get(pairproto.TypeIdentifier)
	if !ok {
		return e.errorResponse(4, pairproto.ErrorAuthentication), nil
	}
	ctrlSig, ok := sub.Get(pairproto.TypeSignature)
	if !ok {
		return e.errorResponse(4, pairproto.ErrorAuthentication), nil
	}

	pairingID, rec, found := e.pairings.FindByIdentifier(ctrlID)
	if !found {
		return e.errorResponse(4, pairproto.ErrorAuthentication), nil
	}

	signed := append(append([]byte{}, sc.ctrlPub[:]...), ctrlID...)
	signed = append(signed, sc.accPub[:]...)
	if !e.suite.Verify(rec.PublicKey, signed, ctrlSig) {
		return e.errorResponse(4, pairproto.ErrorAuthentication), nil
	}

	if err := sess.DeriveControlKeys(e.suite, sc.sharedSecret); err != nil {
		return nil, fmt.Errorf("pairverify: derive control keys: %w", err)
	}
	sess.CVKey = sc.sharedSecret
	sess.Active = true
	sess.IsTransient = false
	sess.PairingID = pairingID

	buf := make([]byte, 16)
	w := tlv8.NewWriter(buf)
	_ = w.Append(pairproto.TypeState, []byte{4})
	return w.Bytes(), nil
}

// Abandon discards any in-progress Pair Verify scratch state for a session,
// called when the underlying connection drops before M3 arrives.
func (e *Engine) Abandon(id session.ID) {
	delete(e.inProgress, id)
}
