package store

import (
	"crypto/ed25519"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"github.com/hkadk/hapcore/internal/hap/herr"
)

// PairingID is the persistent-store key of a controller pairing (spec §3,
// §9: "Pairings are addressed by PairingId = store key (u8)").
type PairingID uint8

// PairingRecordSize is the on-the-wire/on-disk size of one pairing record
// (spec §3): 36-byte padded identifier + 1-byte length + 32-byte LTPK +
// 1-byte permissions.
const PairingRecordSize = 36 + 1 + 32 + 1

// PermissionAdmin is bit 0 of the permissions bitmap.
const PermissionAdmin byte = 1 << 0

// PairingRecord is one persisted controller identity.
type PairingRecord struct {
	Identifier    [36]byte
	IdentifierLen uint8
	PublicKey     ed25519.PublicKey // 32 bytes
	Permissions   byte
}

// IsAdmin reports whether the admin permission bit is set.
func (r PairingRecord) IsAdmin() bool {
	return r.Permissions&PermissionAdmin != 0
}

// Encode serializes r to the 70-byte wire/storage format.
func (r PairingRecord) Encode() []byte {
	buf := make([]byte, PairingRecordSize)
	copy(buf[0:36], r.Identifier[:])
	buf[36] = r.IdentifierLen
	copy(buf[37:69], r.PublicKey)
	buf[69] = r.Permissions
	return buf
}

// DecodePairingRecord parses a 70-byte record.
func DecodePairingRecord(buf []byte) (PairingRecord, error) {
	if len(buf) != PairingRecordSize {
		return PairingRecord{}, herr.New("store.DecodePairingRecord", herr.KindInvalidData,
			fmt.Sprintf("expected %d bytes, got %d", PairingRecordSize, len(buf)))
	}
	var r PairingRecord
	copy(r.Identifier[:], buf[0:36])
	r.IdentifierLen = buf[36]
	if r.IdentifierLen > 36 {
		return PairingRecord{}, herr.New("store.DecodePairingRecord", herr.KindInvalidData, "identifier length exceeds 36")
	}
	r.PublicKey = append(ed25519.PublicKey(nil), buf[37:69]...)
	r.Permissions = buf[69]
	return r, nil
}

// PairingStore manages the Pairings domain with deterministic, insertion-
// ordered enumeration (spec §4.C7 List returns a sequence of pairings);
// the ordered map also backs lookup by identifier for Pair Verify (C6).
type PairingStore struct {
	backing Store
	order   *orderedmap.OrderedMap[PairingID, PairingRecord]
}

// NewPairingStore loads every persisted pairing from backing into an
// ordered in-memory index.
func NewPairingStore(backing Store) (*PairingStore, error) {
	ps := &PairingStore{backing: backing, order: orderedmap.New[PairingID, PairingRecord]()}
	for _, k := range backing.Keys(DomainPairings) {
		raw, ok, err := backing.Get(DomainPairings, k)
		if err != nil {
			return nil, fmt.Errorf("store: load pairing %d: %w", k, err)
		}
		if !ok {
			continue
		}
		rec, err := DecodePairingRecord(raw)
		if err != nil {
			return nil, fmt.Errorf("store: decode pairing %d: %w", k, err)
		}
		ps.order.Set(PairingID(k), rec)
	}
	return ps, nil
}

// Add persists a new pairing record at id, overwriting any existing one.
func (ps *PairingStore) Add(id PairingID, rec PairingRecord) error {
	if err := ps.backing.Set(DomainPairings, byte(id), rec.Encode()); err != nil {
		return fmt.Errorf("store: add pairing %d: %w", id, err)
	}
	ps.order.Set(id, rec)
	return nil
}

// Remove deletes the pairing at id. ok is false if no such pairing exists.
func (ps *PairingStore) Remove(id PairingID) (ok bool) {
	if _, exists := ps.order.Get(id); !exists {
		return false
	}
	_ = ps.backing.Delete(DomainPairings, byte(id))
	ps.order.Delete(id)
	return true
}

// Get returns the pairing at id.
func (ps *PairingStore) Get(id PairingID) (PairingRecord, bool) {
	return ps.order.Get(id)
}

// FindByIdentifier returns the first pairing whose Identifier[:IdentifierLen]
// matches identifier, in insertion order (spec §4.C6 Pair Verify M3).
func (ps *PairingStore) FindByIdentifier(identifier []byte) (PairingID, PairingRecord, bool) {
	for pair := ps.order.Oldest(); pair != nil; pair = pair.Next() {
		rec := pair.Value
		if int(rec.IdentifierLen) == len(identifier) && string(rec.Identifier[:rec.IdentifierLen]) == string(identifier) {
			return pair.Key, rec, true
		}
	}
	return 0, PairingRecord{}, false
}

// List returns every pairing in insertion order (spec §4.C7 List).
func (ps *PairingStore) List() []struct {
	ID     PairingID
	Record PairingRecord
} {
	out := make([]struct {
		ID     PairingID
		Record PairingRecord
	}, 0, ps.order.Len())
	for pair := ps.order.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, struct {
			ID     PairingID
			Record PairingRecord
		}{ID: pair.Key, Record: pair.Value})
	}
	return out
}

// Len returns the number of persisted pairings.
func (ps *PairingStore) Len() int {
	return ps.order.Len()
}

// CountAdmins returns the number of pairings with the admin bit set.
func (ps *PairingStore) CountAdmins() int {
	n := 0
	for pair := ps.order.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.IsAdmin() {
			n++
		}
	}
	return n
}

// NextFreeID returns the lowest PairingID not currently in use.
func (ps *PairingStore) NextFreeID() (PairingID, error) {
	for id := PairingID(0); id < 255; id++ {
		if _, exists := ps.order.Get(id); !exists {
			return id, nil
		}
	}
	return 0, herr.New("store.NextFreeID", herr.KindOutOfResources, "pairings domain exhausted")
}

// RemoveAll clears every pairing (spec §4.C7 "last admin removed" cleanup
// and §7 pairing-reset).
func (ps *PairingStore) RemoveAll() error {
	if err := ps.backing.PurgeDomain(DomainPairings); err != nil {
		return fmt.Errorf("store: remove all pairings: %w", err)
	}
	ps.order = orderedmap.New[PairingID, PairingRecord]()
	return nil
}
