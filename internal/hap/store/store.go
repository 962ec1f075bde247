// Package store implements the persistent key/value abstraction (spec
// §3 "Accessory setup state"/"GSN"/"Broadcast parameters", §6 "Persistent
// key-value store") and the Pairings domain built on top of it.
package store

import (
	"fmt"

	"github.com/cornelk/hashmap"
	"github.com/hkadk/hapcore/internal/hap/herr"
)

// Domain identifies one of the four key/value domains named in spec §6.
type Domain byte

const (
	DomainProvisioning         Domain = 0x80 // never purged
	DomainConfiguration        Domain = 0x90 // cleared on factory reset
	DomainCharacteristicConfig Domain = 0x92 // cleared on factory reset
	DomainPairings             Domain = 0xA0 // cleared on factory or pairing reset
)

// Store is the narrow (domain, key) -> bytes abstraction the engine
// consumes; concrete platforms may back it with flash, a file, or NVRAM.
type Store interface {
	Get(domain Domain, key byte) (value []byte, ok bool, err error)
	Set(domain Domain, key byte, value []byte) error
	Delete(domain Domain, key byte) error
	// PurgeDomain removes every key in domain. Used by factory-reset
	// (Configuration, CharacteristicConfiguration, Pairings) and
	// pairing-reset (Pairings only) per spec §7.
	PurgeDomain(domain Domain) error
	// Keys returns every key currently set within domain, for Pairings
	// enumeration (C7 List) and diagnostics.
	Keys(domain Domain) []byte
}

type compositeKey uint16

func makeKey(domain Domain, key byte) compositeKey {
	return compositeKey(uint16(domain)<<8 | uint16(key))
}

// MemStore is an in-memory Store backed by a lock-free hash map, matching
// the single-writer-task access pattern of spec §5 (no interleaved
// read-modify-write across suspension points on the same key).
type MemStore struct {
	m *hashmap.Map[compositeKey, []byte]
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{m: hashmap.New[compositeKey, []byte]()}
}

func (s *MemStore) Get(domain Domain, key byte) ([]byte, bool, error) {
	v, ok := s.m.Get(makeKey(domain, key))
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (s *MemStore) Set(domain Domain, key byte, value []byte) error {
	cp := make([]byte, len(value))
	copy(cp, value)
	s.m.Set(makeKey(domain, key), cp)
	return nil
}

func (s *MemStore) Delete(domain Domain, key byte) error {
	s.m.Del(makeKey(domain, key))
	return nil
}

func (s *MemStore) PurgeDomain(domain Domain) error {
	var toDelete []compositeKey
	s.m.Range(func(k compositeKey, _ []byte) bool {
		if Domain(k>>8) == domain {
			toDelete = append(toDelete, k)
		}
		return true
	})
	for _, k := range toDelete {
		s.m.Del(k)
	}
	return nil
}

func (s *MemStore) Keys(domain Domain) []byte {
	var keys []byte
	s.m.Range(func(k compositeKey, _ []byte) bool {
		if Domain(k>>8) == domain {
			keys = append(keys, byte(k&0xFF))
		}
		return true
	})
	return keys
}

// FactoryReset clears Configuration, CharacteristicConfiguration, and
// Pairings, leaving Provisioning intact (spec §7).
func FactoryReset(s Store) error {
	for _, d := range []Domain{DomainConfiguration, DomainCharacteristicConfig, DomainPairings} {
		if err := s.PurgeDomain(d); err != nil {
			return fmt.Errorf("store: factory reset purge domain %#x: %w", d, err)
		}
	}
	return nil
}

// PairingReset clears only Pairings (spec §7); the caller is responsible
// for also expiring the broadcast key (see ExpireBroadcastKey).
func PairingReset(s Store) error {
	if err := s.PurgeDomain(DomainPairings); err != nil {
		return fmt.Errorf("store: pairing reset: %w", err)
	}
	return nil
}

// errAlreadyPresent is returned by legacy-import operations (see
// internal/hap/legacyimport) when the target key already exists.
var errAlreadyPresent = herr.New("store", herr.KindInvalidState, "key already present")

// ErrAlreadyPresent reports that a legacy-import target key already holds
// a value.
func ErrAlreadyPresent() error { return errAlreadyPresent }
