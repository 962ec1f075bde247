package store

import (
	"encoding/binary"

	"github.com/hkadk/hapcore/internal/hap/herr"
)

// Keys within DomainConfiguration used by the core (spec §6).
const (
	KeyDeviceID                 byte = 0x00 // 6 bytes
	KeyFirmwareVersion          byte = 0x10 // three little-endian uint32s
	KeyConfigurationNumber      byte = 0x20 // little-endian uint32
	KeyLTSK                     byte = 0x21 // 32 bytes
	KeyUnsuccessfulAuthAttempts byte = 0x22 // 1 byte
	KeyBLEGSN                   byte = 0x40 // uint16 LE + 1 byte didIncrement
	KeyBLEBroadcastParameters   byte = 0x41 // uint16 LE + 32-byte key + 1-byte hasID + 6-byte ID
)

var (
	herrInvalidLTSKLength     = herr.New("store.SetLTSK", herr.KindInvalidData, "LTSK seed must be 32 bytes")
	herrInvalidDeviceIDLength = herr.New("store.SetDeviceID", herr.KindInvalidData, "device ID must be 6 bytes")
)

// GetConfigurationNumber reads the persisted Configuration Number,
// defaulting to 1 if absent (a fresh accessory has never published an
// attribute database yet, so its first CN is 1).
func GetConfigurationNumber(s Store) (uint32, error) {
	v, ok, err := s.Get(DomainConfiguration, KeyConfigurationNumber)
	if err != nil {
		return 0, err
	}
	if !ok || len(v) != 4 {
		return 1, nil
	}
	return binary.LittleEndian.Uint32(v), nil
}

// SetConfigurationNumber persists cn.
func SetConfigurationNumber(s Store, cn uint32) error {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, cn)
	return s.Set(DomainConfiguration, KeyConfigurationNumber, buf)
}

// BumpConfigurationNumber increments the persisted CN (wrapping 32-bit
// unsigned) and returns the new value, called whenever the attribute
// database schema changes.
func BumpConfigurationNumber(s Store) (uint32, error) {
	cur, err := GetConfigurationNumber(s)
	if err != nil {
		return 0, err
	}
	next := cur + 1
	if next == 0 {
		next = 1
	}
	return next, SetConfigurationNumber(s, next)
}

// GetUnsuccessfulAuthAttempts reads the Pair Setup lockout counter.
func GetUnsuccessfulAuthAttempts(s Store) (uint8, error) {
	v, ok, err := s.Get(DomainConfiguration, KeyUnsuccessfulAuthAttempts)
	if err != nil {
		return 0, err
	}
	if !ok || len(v) != 1 {
		return 0, nil
	}
	return v[0], nil
}

// IncrementUnsuccessfulAuthAttempts persists attempts+1, saturating at 255.
func IncrementUnsuccessfulAuthAttempts(s Store) (uint8, error) {
	cur, err := GetUnsuccessfulAuthAttempts(s)
	if err != nil {
		return 0, err
	}
	if cur < 255 {
		cur++
	}
	return cur, s.Set(DomainConfiguration, KeyUnsuccessfulAuthAttempts, []byte{cur})
}

// ClearUnsuccessfulAuthAttempts resets the lockout counter to zero,
// called only on a successful Pair Setup (spec §7).
func ClearUnsuccessfulAuthAttempts(s Store) error {
	return s.Set(DomainConfiguration, KeyUnsuccessfulAuthAttempts, []byte{0})
}

// GetLTSK reads the accessory's long-term Ed25519 seed, if generated.
func GetLTSK(s Store) (seed []byte, ok bool, err error) {
	v, ok, err := s.Get(DomainConfiguration, KeyLTSK)
	if err != nil || !ok {
		return nil, ok, err
	}
	if len(v) != 32 {
		return nil, false, nil
	}
	return v, true, nil
}

// SetLTSK persists the accessory's 32-byte Ed25519 seed.
func SetLTSK(s Store, seed []byte) error {
	if len(seed) != 32 {
		return herrInvalidLTSKLength
	}
	return s.Set(DomainConfiguration, KeyLTSK, seed)
}

// GetDeviceID reads the accessory's 6-byte Device ID.
func GetDeviceID(s Store) (id []byte, ok bool, err error) {
	return s.Get(DomainConfiguration, KeyDeviceID)
}

// SetDeviceID persists the accessory's 6-byte Device ID.
func SetDeviceID(s Store, id []byte) error {
	if len(id) != 6 {
		return herrInvalidDeviceIDLength
	}
	return s.Set(DomainConfiguration, KeyDeviceID, id)
}
