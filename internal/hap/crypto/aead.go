package crypto

import (
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ChaCha20Poly1305 is the golang.org/x/crypto-backed AEAD implementation.
type ChaCha20Poly1305 struct{}

func (ChaCha20Poly1305) Seal(key []byte, nonce [12]byte, plaintext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new chacha20poly1305 aead: %w", err)
	}
	return aead.Seal(nil, nonce[:], plaintext, aad), nil
}

func (ChaCha20Poly1305) Open(key []byte, nonce [12]byte, ciphertext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new chacha20poly1305 aead: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce[:], ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("crypto: chacha20poly1305 open: %w", err)
	}
	return plaintext, nil
}

// NonceFromCounter expands a 64-bit little-endian message counter into the
// 96-bit nonce HAP uses for session-channel encryption: 4 zero bytes
// followed by the 8-byte counter, matching the reference protocol's
// "LE 64-bit counter, zero-padded" nonce construction.
func NonceFromCounter(counter uint64) [12]byte {
	var nonce [12]byte
	for i := 0; i < 8; i++ {
		nonce[4+i] = byte(counter >> (8 * i))
	}
	return nonce
}
