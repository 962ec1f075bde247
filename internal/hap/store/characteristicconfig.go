package store

import "encoding/binary"

// CharacteristicConfig is the persisted broadcast configuration for one
// characteristic (spec §4.C10 "CharacteristicConfiguration", domain
// 0x92): whether broadcast notifications are enabled and the interval at
// which they fire.
type CharacteristicConfig struct {
	BroadcastEnabled  bool
	BroadcastInterval uint16
}

// GetCharacteristicConfig reads the persisted broadcast configuration for
// the characteristic identified by iid, defaulting to the zero value
// (broadcast disabled) if absent. DomainCharacteristicConfig addresses
// its keys with a single byte, so iid is truncated to its low byte —
// consistent with the other per-record key in this store (PairingID)
// being a byte-sized index.
func GetCharacteristicConfig(s Store, iid uint64) (CharacteristicConfig, error) {
	v, ok, err := s.Get(DomainCharacteristicConfig, byte(iid))
	if err != nil {
		return CharacteristicConfig{}, err
	}
	if !ok || len(v) != 3 {
		return CharacteristicConfig{}, nil
	}
	return CharacteristicConfig{
		BroadcastEnabled:  v[0] != 0,
		BroadcastInterval: binary.LittleEndian.Uint16(v[1:3]),
	}, nil
}

// SetCharacteristicConfig persists cfg for the characteristic identified
// by iid.
func SetCharacteristicConfig(s Store, iid uint64, cfg CharacteristicConfig) error {
	buf := make([]byte, 3)
	if cfg.BroadcastEnabled {
		buf[0] = 1
	}
	binary.LittleEndian.PutUint16(buf[1:3], cfg.BroadcastInterval)
	return s.Set(DomainCharacteristicConfig, byte(iid), buf)
}
