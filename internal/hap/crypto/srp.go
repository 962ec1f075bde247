package crypto

import (
	"crypto/rand"
	"crypto/sha512"
	"fmt"
	"math/big"
)

// SRP3072 is the SRP-6a implementation over the 3072-bit group defined in
// RFC 5054 §A.5 — the group HAP's Pair Setup mandates. No SRP-6a library
// exists anywhere in the retrieval pack (nor is one a plausible companion
// to logrus/cobra/go-ble-style dependencies), so this is implemented
// directly on math/big; see DESIGN.md for the justification.
type SRP3072 struct{}

var (
	// srpN is the RFC 5054 3072-bit SRP group modulus (equal to the RFC
	// 3526 Group 15 MODP prime), the group HAP's Pair Setup mandates.
	srpN, _ = new(big.Int).SetString(""+
		"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD"+
		"129024E088A67CC74020BBEA63B139B22514A08798E3404"+
		"DDEF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C"+
		"245E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B"+
		"7EDEE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45"+
		"B3DC2007CB8A163BF0598DA48361C55D39A69163FA8FD24CF"+
		"5F83655D23DCA3AD961C62F356208552BB9ED5290770969"+
		"66D670C354E4ABC9804F1746C08CA18217C32905E462E36CE3"+
		"BE39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9D"+
		"E2BCBF6955817183995497CEA956AE515D226189804FA051015"+
		"728E5A8AAAC42DAD33170D04507A33A85521ABDF1CBA64ECFB8"+
		"50458DBEF0A8AEA71575D060C7DB3970F85A6E1E4C7ABF5AE8C"+
		"DB0933D71E8C94E04A25619DCEE3D2261AD2EE6BF12FFA06D98"+
		"A0864D87602733EC86A64521F2B18177B200CBBE117577A615D"+
		"6C770988C0BAD946E208E24FA074E5AB3143DB5BFCE0FD108E4"+
		"B82D120A93AD2CAFFFFFFFFFFFFFFFF",
		16)

	// g is the RFC 5054 3072-bit group generator.
	srpG = big.NewInt(5)
)

// NewVerifier derives v = g^x mod N where x = SHA-512(salt ‖ SHA-512(identity ‖ ":" ‖ password)).
func (SRP3072) NewVerifier(salt []byte, identity, password string) ([]byte, error) {
	x := srpX(salt, identity, password)
	v := new(big.Int).Exp(srpG, x, srpN)
	return padLeft(v.Bytes(), 384), nil
}

func srpX(salt []byte, identity, password string) *big.Int {
	inner := sha512.Sum512([]byte(identity + ":" + password))
	h := sha512.New()
	h.Write(salt)
	h.Write(inner[:])
	return new(big.Int).SetBytes(h.Sum(nil))
}

type srp3072Session struct {
	salt     []byte
	verifier *big.Int
	b        *big.Int // private
	bPub     *big.Int // B

	clientA    *big.Int // set by ComputeSessionKey
	sessionKey []byte   // K, set by ComputeSessionKey
}

// NewServerSession generates an ephemeral server keypair (b, B) where
// B = (k*v + g^b) mod N, k = SHA-512(N ‖ g).
func (SRP3072) NewServerSession(salt, verifier []byte) (SRPServerSession, error) {
	v := new(big.Int).SetBytes(verifier)

	bBytes := make([]byte, 384)
	if _, err := rand.Read(bBytes); err != nil {
		return nil, fmt.Errorf("crypto: srp generate private b: %w", err)
	}
	b := new(big.Int).SetBytes(bBytes)
	b.Mod(b, srpN)

	k := srpMultiplier()
	gb := new(big.Int).Exp(srpG, b, srpN)
	bPub := new(big.Int).Mod(new(big.Int).Add(new(big.Int).Mul(k, v), gb), srpN)

	return &srp3072Session{salt: salt, verifier: v, b: b, bPub: bPub}, nil
}

func srpMultiplier() *big.Int {
	h := sha512.New()
	h.Write(padLeft(srpN.Bytes(), 384))
	h.Write(padLeft(srpG.Bytes(), 384))
	return new(big.Int).SetBytes(h.Sum(nil))
}

func (s *srp3072Session) PublicKey() []byte {
	return padLeft(s.bPub.Bytes(), 384)
}

// ComputeSessionKey computes S = (A * v^u)^b mod N where u = SHA-512(A ‖ B),
// rejecting A ≡ 0 (mod N) per RFC 5054 §2.5.4, and returns K = SHA-512(S).
func (s *srp3072Session) ComputeSessionKey(clientPublicA []byte) ([]byte, error) {
	a := new(big.Int).SetBytes(clientPublicA)
	if new(big.Int).Mod(a, srpN).Sign() == 0 {
		return nil, fmt.Errorf("crypto: srp client public key A is congruent to 0 mod N")
	}

	h := sha512.New()
	h.Write(padLeft(a.Bytes(), 384))
	h.Write(s.PublicKey())
	u := new(big.Int).SetBytes(h.Sum(nil))

	vu := new(big.Int).Exp(s.verifier, u, srpN)
	base := new(big.Int).Mod(new(big.Int).Mul(a, vu), srpN)
	secret := new(big.Int).Exp(base, s.b, srpN)

	sum := sha512.Sum512(padLeft(secret.Bytes(), 384))
	s.clientA = a
	s.sessionKey = sum[:]
	return sum[:], nil
}

// VerifyClientProof checks M1 = H(H(N) xor H(g) ‖ H(I) ‖ s ‖ A ‖ B ‖ K)
// against clientProof and, if it matches, returns M2 = H(A ‖ M1 ‖ K).
// ComputeSessionKey must have been called first.
func (s *srp3072Session) VerifyClientProof(identity string, clientPublicA, clientProof []byte) ([]byte, error) {
	if s.clientA == nil || s.sessionKey == nil {
		return nil, fmt.Errorf("crypto: VerifyClientProof called before ComputeSessionKey")
	}
	if new(big.Int).SetBytes(clientPublicA).Cmp(s.clientA) != 0 {
		return nil, fmt.Errorf("crypto: client public key changed between ComputeSessionKey and VerifyClientProof")
	}

	hN := sha512.Sum512(padLeft(srpN.Bytes(), 384))
	hG := sha512.Sum512(padLeft(srpG.Bytes(), 384))
	var hNxorG [64]byte
	for i := range hNxorG {
		hNxorG[i] = hN[i] ^ hG[i]
	}
	hI := sha512.Sum512([]byte(identity))

	h := sha512.New()
	h.Write(hNxorG[:])
	h.Write(hI[:])
	h.Write(s.salt)
	h.Write(padLeft(s.clientA.Bytes(), 384))
	h.Write(s.PublicKey())
	h.Write(s.sessionKey)
	m1 := h.Sum(nil)

	if !hmacEqual(m1, clientProof) {
		return nil, fmt.Errorf("crypto: SRP client evidence message (M1) mismatch")
	}

	h2 := sha512.New()
	h2.Write(padLeft(s.clientA.Bytes(), 384))
	h2.Write(m1)
	h2.Write(s.sessionKey)
	return h2.Sum(nil), nil
}

func hmacEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}

func padLeft(b []byte, n int) []byte {
	if len(b) >= n {
		return b
	}
	out := make([]byte, n)
	copy(out[n-len(b):], b)
	return out
}
