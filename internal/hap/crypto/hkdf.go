package crypto

import (
	"crypto/sha512"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Default is the production Suite: golang.org/x/crypto primitives plus the
// math/big SRP-6a implementation in srp.go.
type Default struct {
	X25519
	Ed25519Signer
	ChaCha20Poly1305
	SRP3072
}

// HKDFSHA512 derives outLen bytes of key material via HKDF-SHA512, used for
// every "Salt"/"Info" derivation named throughout §4.C5/C6.
func (Default) HKDFSHA512(ikm, salt, info []byte, outLen int) ([]byte, error) {
	r := hkdf.New(sha512.New, ikm, salt, info)
	out := make([]byte, outLen)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("crypto: hkdf-sha512 derive %d bytes: %w", outLen, err)
	}
	return out, nil
}
