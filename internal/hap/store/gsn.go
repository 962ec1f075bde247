package store

import "encoding/binary"

// GSN is the BLE Global State Number (spec §3): a 16-bit counter starting
// at 1 that never takes the value 0.
type GSN uint16

// InitialGSN is the value a fresh accessory starts advertising at.
const InitialGSN GSN = 1

// Next advances g by one, wrapping 0xFFFF -> 1 (never 0).
func (g GSN) Next() GSN {
	if g == 0xFFFF {
		return 1
	}
	return g + 1
}

// GSNState is the persisted GSN plus its didIncrement flag (spec §3, §6 key
// 0x40: "uint16 LE + 1 byte didIncrement").
type GSNState struct {
	Value        GSN
	DidIncrement bool
}

// GetGSN reads the persisted GSN state, defaulting to {InitialGSN, false}.
func GetGSN(s Store) (GSNState, error) {
	v, ok, err := s.Get(DomainConfiguration, KeyBLEGSN)
	if err != nil {
		return GSNState{}, err
	}
	if !ok || len(v) != 3 {
		return GSNState{Value: InitialGSN}, nil
	}
	return GSNState{Value: GSN(binary.LittleEndian.Uint16(v[0:2])), DidIncrement: v[2] != 0}, nil
}

// SetGSN persists st.
func SetGSN(s Store, st GSNState) error {
	buf := make([]byte, 3)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(st.Value))
	if st.DidIncrement {
		buf[2] = 1
	}
	return s.Set(DomainConfiguration, KeyBLEGSN, buf)
}

// keyExpirationWindow is the literal arithmetic the reference
// implementation uses for the broadcast-key expiration window: it cites
// 2^15-1 (32767) but actually subtracts 1, giving 32766. Per the spec's
// explicit instruction not to silently diverge, this implementation keeps
// the 32766 constant rather than "correcting" it to 32767.
const keyExpirationWindow = 32766

// ComputeKeyExpirationGSN derives the GSN value at which a freshly
// generated broadcast key expires (spec §3): current + 32766, mod
// 0xFFFF, never 0.
func ComputeKeyExpirationGSN(current GSN) GSN {
	v := (uint32(current) + keyExpirationWindow) % 0xFFFF
	if v == 0 {
		v = 1
	}
	return GSN(v)
}

// CrossesExpiration reports whether advancing from prev to next passes
// through (or lands on) expirationGSN, accounting for 16-bit wraparound.
func CrossesExpiration(prev, next, expirationGSN GSN) bool {
	if expirationGSN == 0 {
		return false // no key installed
	}
	if next == expirationGSN {
		return true
	}
	if prev < next {
		return prev < expirationGSN && expirationGSN <= next
	}
	// Wrapped around 0xFFFF -> 1 during this advance.
	return expirationGSN > prev || expirationGSN <= next
}
