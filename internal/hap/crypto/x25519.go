package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// X25519 is the curve25519-backed KeyAgreement implementation.
type X25519 struct{}

func (X25519) GenerateKeyPair() (pub, priv [32]byte, err error) {
	if _, err = rand.Read(priv[:]); err != nil {
		return pub, priv, fmt.Errorf("crypto: generate curve25519 key pair: %w", err)
	}
	p, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return pub, priv, fmt.Errorf("crypto: derive curve25519 public key: %w", err)
	}
	copy(pub[:], p)
	return pub, priv, nil
}

func (X25519) SharedSecret(priv, peerPub [32]byte) ([32]byte, error) {
	var out [32]byte
	s, err := curve25519.X25519(priv[:], peerPub[:])
	if err != nil {
		return out, fmt.Errorf("crypto: curve25519 shared secret: %w", err)
	}
	copy(out[:], s)
	return out, nil
}

// Ed25519Signer is the stdlib-backed Signer implementation. crypto/ed25519
// is the standard library (promoted from golang.org/x/crypto/ed25519 in Go
// 1.13) — not a third-party dependency, so no grounding entry is claimed
// for it beyond this comment.
type Ed25519Signer struct{}

func (Ed25519Signer) Sign(priv ed25519.PrivateKey, message []byte) []byte {
	return ed25519.Sign(priv, message)
}

func (Ed25519Signer) Verify(pub ed25519.PublicKey, message, sig []byte) bool {
	return ed25519.Verify(pub, message, sig)
}
