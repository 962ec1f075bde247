package pairverify_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	hcrypto "github.com/hkadk/hapcore/internal/hap/crypto"
	"github.com/hkadk/hapcore/internal/hap/pairproto"
	"github.com/hkadk/hapcore/internal/hap/pairverify"
	"github.com/hkadk/hapcore/internal/hap/session"
	"github.com/hkadk/hapcore/internal/hap/store"
	"github.com/hkadk/hapcore/internal/hap/tlv8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*pairverify.Engine, *store.PairingStore, pairverify.Identity, ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	var suite hcrypto.Default

	backing := store.NewMemStore()
	pairings, err := store.NewPairingStore(backing)
	require.NoError(t, err)

	accLTPK, accLTSK, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	var identity pairverify.Identity
	copy(identity.PairingID[:], "11:22:33:44:55:66")
	identity.LTSK = accLTSK
	identity.LTPK = accLTPK

	ctrlLTPK, ctrlLTSK, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	rec := store.PairingRecord{IdentifierLen: 7, PublicKey: ctrlLTPK, Permissions: store.PermissionAdmin}
	copy(rec.Identifier[:], "ctrl-01")
	require.NoError(t, pairings.Add(0, rec))

	engine := pairverify.NewEngine(suite, identity, pairings)
	return engine, pairings, identity, ctrlLTPK, ctrlLTSK
}

func TestPairVerifyFullExchangeActivatesSession(t *testing.T) {
	// GOAL: a correct four-message exchange activates the session and
	// derives matching directional control keys
	engine, _, identity, ctrlLTPK, ctrlLTSK := newTestEngine(t)
	tbl := session.NewTable()
	sess := tbl.Create(session.TransportIP)

	var ka hcrypto.X25519
	ctrlPub, ctrlPriv, err := ka.GenerateKeyPair()
	require.NoError(t, err)

	buf1 := make([]byte, 64)
	w1 := tlv8.NewWriter(buf1)
	_ = w1.Append(pairproto.TypeState, []byte{1})
	_ = w1.Append(pairproto.TypePublicKey, ctrlPub[:])
	m2, err := engine.Handle(sess, w1.Bytes())
	require.NoError(t, err)

	r2, err := tlv8.NewReader(m2)
	require.NoError(t, err)
	st2, _ := r2.GetByte(pairproto.TypeState)
	require.Equal(t, byte(2), st2)
	accPubBytes, _ := r2.Get(pairproto.TypePublicKey)
	encrypted2, _ := r2.Get(pairproto.TypeEncryptedData)

	var accPub [32]byte
	copy(accPub[:], accPubBytes)
	shared, err := ka.SharedSecret(ctrlPriv, accPub)
	require.NoError(t, err)

	var suite hcrypto.Default
	sessionKey, err := suite.HKDFSHA512(shared[:], []byte("Pair-Verify-Encrypt-Salt"), []byte("Pair-Verify-Encrypt-Info"), 32)
	require.NoError(t, err)

	var aead hcrypto.ChaCha20Poly1305
	var nonce2 [12]byte
	copy(nonce2[4:], "PV-Msg02")
	plain2, err := aead.Open(sessionKey, nonce2, encrypted2, nil)
	require.NoError(t, err)

	sub2, err := tlv8.NewReader(plain2)
	require.NoError(t, err)
	accID, _ := sub2.Get(pairproto.TypeIdentifier)
	accSig, _ := sub2.Get(pairproto.TypeSignature)
	assert.Equal(t, identity.PairingID[:], accID)

	signed2 := append(append([]byte{}, accPub[:]...), accID...)
	signed2 = append(signed2, ctrlPub[:]...)
	assert.True(t, ed25519.Verify(identity.LTPK, signed2, accSig), "accessory's M2 signature must verify under its LTPK")

	ctrlID := []byte("ctrl-01")
	signed3 := append(append([]byte{}, ctrlPub[:]...), ctrlID...)
	signed3 = append(signed3, accPub[:]...)
	sig3 := ed25519.Sign(ctrlLTSK, signed3)

	sub3Buf := make([]byte, 256)
	sub3W := tlv8.NewWriter(sub3Buf)
	_ = sub3W.Append(pairproto.TypeIdentifier, ctrlID)
	_ = sub3W.Append(pairproto.TypeSignature, sig3)

	var nonce3 [12]byte
	copy(nonce3[4:], "PV-Msg03")
	cipher3, err := aead.Seal(sessionKey, nonce3, sub3W.Bytes(), nil)
	require.NoError(t, err)

	buf3 := make([]byte, 256)
	w3 := tlv8.NewWriter(buf3)
	_ = w3.Append(pairproto.TypeState, []byte{3})
	_ = w3.Append(pairproto.TypeEncryptedData, cipher3)
	m4, err := engine.Handle(sess, w3.Bytes())
	require.NoError(t, err)

	r4, err := tlv8.NewReader(m4)
	require.NoError(t, err)
	st4, _ := r4.GetByte(pairproto.TypeState)
	assert.Equal(t, byte(4), st4)
	_, hasErr := r4.Get(pairproto.TypeError)
	assert.False(t, hasErr)

	assert.True(t, sess.Active)
	assert.Equal(t, store.PairingID(0), sess.PairingID)
	assert.Equal(t, shared, sess.CVKey)
	assert.NotEqual(t, [32]byte{}, sess.AccessoryToController.Key)
	assert.NotEqual(t, sess.AccessoryToController.Key, sess.ControllerToAccessory.Key)
	_ = ctrlLTPK
}

func TestPairVerifyRejectsUnknownController(t *testing.T) {
	// GOAL: M3 signed by a controller LTSK with no matching pairing record
	// must be rejected and must not activate the session
	engine, _, _, _, _ := newTestEngine(t)
	tbl := session.NewTable()
	sess := tbl.Create(session.TransportIP)

	var ka hcrypto.X25519
	ctrlPub, ctrlPriv, err := ka.GenerateKeyPair()
	require.NoError(t, err)

	buf1 := make([]byte, 64)
	w1 := tlv8.NewWriter(buf1)
	_ = w1.Append(pairproto.TypeState, []byte{1})
	_ = w1.Append(pairproto.TypePublicKey, ctrlPub[:])
	m2, err := engine.Handle(sess, w1.Bytes())
	require.NoError(t, err)

	r2, _ := tlv8.NewReader(m2)
	accPubBytes, _ := r2.Get(pairproto.TypePublicKey)
	encrypted2, _ := r2.Get(pairproto.TypeEncryptedData)

	var accPub [32]byte
	copy(accPub[:], accPubBytes)
	shared, err := ka.SharedSecret(ctrlPriv, accPub)
	require.NoError(t, err)
	var suite hcrypto.Default
	sessionKey, err := suite.HKDFSHA512(shared[:], []byte("Pair-Verify-Encrypt-Salt"), []byte("Pair-Verify-Encrypt-Info"), 32)
	require.NoError(t, err)
	var aead hcrypto.ChaCha20Poly1305
	var nonce2 [12]byte
	copy(nonce2[4:], "PV-Msg02")
	_, err = aead.Open(sessionKey, nonce2, encrypted2, nil)
	require.NoError(t, err)

	unknownLTPK, unknownLTSK, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	_ = unknownLTPK
	ctrlID := []byte("never-paired")
	signed3 := append(append([]byte{}, ctrlPub[:]...), ctrlID...)
	signed3 = append(signed3, accPub[:]...)
	sig3 := ed25519.Sign(unknownLTSK, signed3)

	sub3Buf := make([]byte, 256)
	sub3W := tlv8.NewWriter(sub3Buf)
	_ = sub3W.Append(pairproto.TypeIdentifier, ctrlID)
	_ = sub3W.Append(pairproto.TypeSignature, sig3)
	var nonce3 [12]byte
	copy(nonce3[4:], "PV-Msg03")
	cipher3, err := aead.Seal(sessionKey, nonce3, sub3W.Bytes(), nil)
	require.NoError(t, err)

	buf3 := make([]byte, 256)
	w3 := tlv8.NewWriter(buf3)
	_ = w3.Append(pairproto.TypeState, []byte{3})
	_ = w3.Append(pairproto.TypeEncryptedData, cipher3)
	m4, err := engine.Handle(sess, w3.Bytes())
	require.NoError(t, err)

	r4, _ := tlv8.NewReader(m4)
	_, hasErr := r4.Get(pairproto.TypeError)
	assert.True(t, hasErr)
	assert.False(t, sess.Active)
}
