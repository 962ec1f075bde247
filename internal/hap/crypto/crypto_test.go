package crypto_test

import (
	"bytes"
	"testing"

	hcrypto "github.com/hkadk/hapcore/internal/hap/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestX25519RoundTrip(t *testing.T) {
	// GOAL: Two ephemeral Curve25519 keypairs agree on the same shared secret
	var ka hcrypto.X25519

	aPub, aPriv, err := ka.GenerateKeyPair()
	require.NoError(t, err)
	bPub, bPriv, err := ka.GenerateKeyPair()
	require.NoError(t, err)

	s1, err := ka.SharedSecret(aPriv, bPub)
	require.NoError(t, err)
	s2, err := ka.SharedSecret(bPriv, aPub)
	require.NoError(t, err)

	assert.Equal(t, s1, s2)
}

func TestChaCha20Poly1305SealOpenRoundTrip(t *testing.T) {
	// GOAL: For every sealed message M at a given nonce, Open(Seal(M)) == M
	var aead hcrypto.ChaCha20Poly1305
	key := bytes.Repeat([]byte{0x42}, 32)
	nonce := hcrypto.NonceFromCounter(7)
	aad := []byte("control-channel")
	plain := []byte("characteristic write payload")

	cipher, err := aead.Seal(key, nonce, plain, aad)
	require.NoError(t, err)
	assert.NotEqual(t, plain, cipher[:len(plain)])

	recovered, err := aead.Open(key, nonce, cipher, aad)
	require.NoError(t, err)
	assert.Equal(t, plain, recovered)
}

func TestChaCha20Poly1305OpenFailsOnWrongNonce(t *testing.T) {
	var aead hcrypto.ChaCha20Poly1305
	key := bytes.Repeat([]byte{0x11}, 32)
	cipher, err := aead.Seal(key, hcrypto.NonceFromCounter(1), []byte("hello"), nil)
	require.NoError(t, err)

	_, err = aead.Open(key, hcrypto.NonceFromCounter(2), cipher, nil)
	assert.Error(t, err)
}

func TestSRPVerifierAndSessionKeyComputation(t *testing.T) {
	// GOAL: the server side produces a 384-byte verifier and public key,
	// derives a 64-byte session key from a non-degenerate client key, and
	// rejects a client key congruent to 0 mod N
	var srp hcrypto.SRP3072
	salt := bytes.Repeat([]byte{0x01}, 16)

	verifier, err := srp.NewVerifier(salt, "Pair-Setup", "123-45-679")
	require.NoError(t, err)
	assert.Len(t, verifier, 384)

	session, err := srp.NewServerSession(salt, verifier)
	require.NoError(t, err)

	serverPub := session.PublicKey()
	assert.Len(t, serverPub, 384)
	assert.NotEqual(t, bytes.Repeat([]byte{0}, 384), serverPub)

	// A non-zero "client public key" stands in for a full client-side SRP
	// implementation (out of scope here); we only assert the size of the
	// server-side session key and the rejection of degenerate input.
	clientPub := bytes.Repeat([]byte{0x09}, 384)
	k1, err := session.ComputeSessionKey(clientPub)
	require.NoError(t, err)
	assert.Len(t, k1, 64)

	_, err = session.ComputeSessionKey(make([]byte, 384))
	assert.Error(t, err, "A congruent to 0 mod N must be rejected")
}

func TestSRPVerifyClientProofRejectsGarbageEvidence(t *testing.T) {
	// GOAL: a client evidence message that wasn't derived from the real
	// premaster secret must never be accepted
	var srp hcrypto.SRP3072
	salt := bytes.Repeat([]byte{0x02}, 16)

	verifier, err := srp.NewVerifier(salt, "Pair-Setup", "123-45-679")
	require.NoError(t, err)
	session, err := srp.NewServerSession(salt, verifier)
	require.NoError(t, err)

	clientPub := bytes.Repeat([]byte{0x09}, 384)
	_, err = session.ComputeSessionKey(clientPub)
	require.NoError(t, err)

	_, err = session.VerifyClientProof("Pair-Setup", clientPub, bytes.Repeat([]byte{0xAA}, 64))
	assert.Error(t, err)
}

func TestHKDFSHA512Deterministic(t *testing.T) {
	var d hcrypto.Default
	ikm := []byte("shared-secret")

	out1, err := d.HKDFSHA512(ikm, []byte("Pair-Setup-Encrypt-Salt"), []byte("Pair-Setup-Encrypt-Info"), 32)
	require.NoError(t, err)
	out2, err := d.HKDFSHA512(ikm, []byte("Pair-Setup-Encrypt-Salt"), []byte("Pair-Setup-Encrypt-Info"), 32)
	require.NoError(t, err)
	assert.Equal(t, out1, out2)
	assert.Len(t, out1, 32)

	out3, err := d.HKDFSHA512(ikm, []byte("Pair-Verify-Encrypt-Salt"), []byte("Pair-Verify-Encrypt-Info"), 32)
	require.NoError(t, err)
	assert.NotEqual(t, out1, out3)
}
