package store

import "encoding/binary"

// BroadcastParameters is the BLE broadcast-encryption state (spec §3, §6
// key 0x41). KeyExpirationGSN == 0 means "no key installed".
type BroadcastParameters struct {
	KeyExpirationGSN GSN
	Key              [32]byte
	HasAdvertisingID bool
	AdvertisingID    [6]byte
}

// GetBroadcastParameters reads the persisted broadcast parameters,
// defaulting to the zero value (no key) if absent.
func GetBroadcastParameters(s Store) (BroadcastParameters, error) {
	v, ok, err := s.Get(DomainConfiguration, KeyBLEBroadcastParameters)
	if err != nil {
		return BroadcastParameters{}, err
	}
	if !ok || len(v) != 41 {
		return BroadcastParameters{}, nil
	}
	var p BroadcastParameters
	p.KeyExpirationGSN = GSN(binary.LittleEndian.Uint16(v[0:2]))
	copy(p.Key[:], v[2:34])
	p.HasAdvertisingID = v[34] != 0
	copy(p.AdvertisingID[:], v[35:41])
	return p, nil
}

// SetBroadcastParameters persists p.
func SetBroadcastParameters(s Store, p BroadcastParameters) error {
	buf := make([]byte, 41)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(p.KeyExpirationGSN))
	copy(buf[2:34], p.Key[:])
	if p.HasAdvertisingID {
		buf[34] = 1
	}
	copy(buf[35:41], p.AdvertisingID[:])
	return s.Set(DomainConfiguration, KeyBLEBroadcastParameters, buf)
}

// ExpireBroadcastKey zeroes the broadcast key and sets KeyExpirationGSN to
// 0, as required on GSN-crossing expiry (spec §4.C11) and on pairing
// reset / last-admin-removal cleanup (spec §4.C7, §7).
func ExpireBroadcastKey(s Store) error {
	p, err := GetBroadcastParameters(s)
	if err != nil {
		return err
	}
	p.KeyExpirationGSN = 0
	p.Key = [32]byte{}
	return SetBroadcastParameters(s, p)
}

// AdvertisingIDOrDeviceID returns p's advertising identifier, falling back
// to deviceID when none is configured (spec §3).
func (p BroadcastParameters) AdvertisingIDOrDeviceID(deviceID [6]byte) [6]byte {
	if p.HasAdvertisingID {
		return p.AdvertisingID
	}
	return deviceID
}
