// Package crypto is the capability surface consumed by the pairing engines
// (spec §4.C1): SRP-6a, Curve25519 key agreement, Ed25519 signatures,
// HKDF-SHA512, and ChaCha20-Poly1305 AEAD. The engine never manipulates
// these primitives directly — it calls through the interfaces here, so a
// constrained target can substitute a hardware-backed implementation
// without touching internal/hap/pairsetup or internal/hap/pairverify.
package crypto

import "crypto/ed25519"

// KeyAgreement performs Curve25519 (X25519) ECDH.
type KeyAgreement interface {
	GenerateKeyPair() (pub, priv [32]byte, err error)
	SharedSecret(priv, peerPub [32]byte) ([32]byte, error)
}

// Signer performs Ed25519 signing and verification.
type Signer interface {
	Sign(priv ed25519.PrivateKey, message []byte) []byte
	Verify(pub ed25519.PublicKey, message, sig []byte) bool
}

// AEAD performs ChaCha20-Poly1305 authenticated encryption. Seal appends a
// 16-byte tag to the returned ciphertext; Open expects one.
type AEAD interface {
	Seal(key []byte, nonce [12]byte, plaintext, aad []byte) (ciphertext []byte, err error)
	Open(key []byte, nonce [12]byte, ciphertext, aad []byte) (plaintext []byte, err error)
}

// SRPServer is the accessory (server) side of SRP-6a, used only by Pair
// Setup (spec §4.C5). Verifier generation is also used standalone by the
// setup-info manager (spec §4.C12) and the CLI tool (spec §6).
type SRPServer interface {
	// NewVerifier derives the 384-byte SRP-6a verifier for the given salt,
	// identity (always "Pair-Setup" for HAP) and password (the setup code).
	NewVerifier(salt []byte, identity, password string) (verifier []byte, err error)
	// NewServerSession starts a server-side SRP exchange against a
	// previously generated (salt, verifier) pair.
	NewServerSession(salt, verifier []byte) (SRPServerSession, error)
}

// SRPServerSession is one in-progress SRP-6a exchange. ComputeSessionKey
// performs the premaster-secret computation and returns the raw 64-byte
// (512-bit) session key K = SHA-512(S); the caller (Pair Setup) derives
// the evidence messages M1/M2 per the HAP wire format.
type SRPServerSession interface {
	PublicKey() []byte // B
	ComputeSessionKey(clientPublicA []byte) (k []byte, err error)
	// VerifyClientProof checks the client's M1 evidence message against the
	// session key already computed by ComputeSessionKey and, on success,
	// returns the accessory's M2 evidence message. identity is the SRP
	// "I" value, always "Pair-Setup" for HAP.
	VerifyClientProof(identity string, clientPublicA, clientProof []byte) (serverProof []byte, err error)
}

// Suite bundles the capability surface the pairing engines depend on.
type Suite interface {
	KeyAgreement
	Signer
	AEAD
	SRPServer
	HKDFSHA512(ikm, salt, info []byte, outLen int) ([]byte, error)
}
