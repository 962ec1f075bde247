// Package legacyimport implements the §6 "Legacy import" operations
// (spec §4.C5 expansion): one-time seeding of a fresh key-value store
// from a prior (non-HAP-core) accessory implementation's persisted
// state, each operation refusing to overwrite a key that is already
// present. Grounded on HAPLegacyImport.c in original_source/, which
// guards every import with a precondition that the target key is unset.
package legacyimport

import (
	"crypto/ed25519"

	"github.com/hkadk/hapcore/internal/hap/herr"
	"github.com/hkadk/hapcore/internal/hap/store"
)

const opImportDeviceID = "legacyimport.ImportDeviceID"
const opImportConfigurationNumber = "legacyimport.ImportConfigurationNumber"
const opImportLTSK = "legacyimport.ImportLTSK"
const opImportUnsuccessfulAuthAttempts = "legacyimport.ImportUnsuccessfulAuthAttempts"
const opImportPairing = "legacyimport.ImportPairing"

// ImportDeviceID seeds the accessory's 6-byte Device ID, failing if one
// is already provisioned.
func ImportDeviceID(s store.Store, deviceID []byte) error {
	if len(deviceID) != 6 {
		return herr.New(opImportDeviceID, herr.KindInvalidData, "device ID must be 6 bytes")
	}
	if _, found, err := store.GetDeviceID(s); err != nil {
		return herr.Wrap(opImportDeviceID, herr.KindUnknown, err)
	} else if found {
		return herr.New(opImportDeviceID, herr.KindInvalidState, "device ID is already provisioned")
	}
	return store.SetDeviceID(s, deviceID)
}

// ImportConfigurationNumber seeds the persisted Configuration Number,
// failing if one is already present.
func ImportConfigurationNumber(s store.Store, configurationNumber uint32) error {
	if configurationNumber == 0 {
		return herr.New(opImportConfigurationNumber, herr.KindInvalidData, "configuration number must be nonzero")
	}
	if _, found, err := s.Get(store.DomainConfiguration, store.KeyConfigurationNumber); err != nil {
		return herr.Wrap(opImportConfigurationNumber, herr.KindUnknown, err)
	} else if found {
		return herr.New(opImportConfigurationNumber, herr.KindInvalidState, "configuration number is already provisioned")
	}
	return store.SetConfigurationNumber(s, configurationNumber)
}

// ImportLTSK seeds the accessory's long-term Ed25519 seed, failing if one
// is already provisioned.
func ImportLTSK(s store.Store, seed []byte) error {
	if len(seed) != ed25519.SeedSize {
		return herr.New(opImportLTSK, herr.KindInvalidData, "LTSK seed must be 32 bytes")
	}
	if _, found, err := store.GetLTSK(s); err != nil {
		return herr.Wrap(opImportLTSK, herr.KindUnknown, err)
	} else if found {
		return herr.New(opImportLTSK, herr.KindInvalidState, "LTSK is already provisioned")
	}
	return store.SetLTSK(s, seed)
}

// ImportUnsuccessfulAuthAttempts seeds the Pair Setup lockout counter,
// failing if one is already present.
func ImportUnsuccessfulAuthAttempts(s store.Store, numAuthAttempts uint8) error {
	if numAuthAttempts > 100 {
		return herr.New(opImportUnsuccessfulAuthAttempts, herr.KindInvalidData, "count must not exceed 100")
	}
	if _, found, err := s.Get(store.DomainConfiguration, store.KeyUnsuccessfulAuthAttempts); err != nil {
		return herr.Wrap(opImportUnsuccessfulAuthAttempts, herr.KindUnknown, err)
	} else if found {
		return herr.New(opImportUnsuccessfulAuthAttempts, herr.KindInvalidState, "unsuccessful auth attempts counter is already provisioned")
	}
	return s.Set(store.DomainConfiguration, store.KeyUnsuccessfulAuthAttempts, []byte{numAuthAttempts})
}

// ImportPairing seeds one controller pairing record at id, failing if a
// pairing already occupies that slot.
func ImportPairing(ps *store.PairingStore, id store.PairingID, identifier []byte, publicKey ed25519.PublicKey, isAdmin bool) error {
	if len(identifier) > 36 {
		return herr.New(opImportPairing, herr.KindInvalidData, "pairing identifier exceeds 36 bytes")
	}
	if len(publicKey) != ed25519.PublicKeySize {
		return herr.New(opImportPairing, herr.KindInvalidData, "public key must be 32 bytes")
	}
	if _, exists := ps.Get(id); exists {
		return herr.New(opImportPairing, herr.KindInvalidState, "pairing slot is already occupied")
	}

	var rec store.PairingRecord
	copy(rec.Identifier[:], identifier)
	rec.IdentifierLen = uint8(len(identifier))
	rec.PublicKey = publicKey
	if isAdmin {
		rec.Permissions |= store.PermissionAdmin
	}
	return ps.Add(id, rec)
}
