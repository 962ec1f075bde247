package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/hkadk/hapcore/internal/hap/pairsetup"
	"github.com/hkadk/hapcore/internal/hap/store"
)

// provision ensures a fresh store has a Device ID and LTSK, generating
// both the first time hapd runs against backing. An already-provisioned
// store is left untouched; a prior implementation's state should instead
// be seeded via internal/hap/legacyimport before hapd ever starts.
func provision(backing store.Store) (pairsetup.Identity, error) {
	deviceID, found, err := store.GetDeviceID(backing)
	if err != nil {
		return pairsetup.Identity{}, err
	}
	if !found {
		deviceID = make([]byte, 6)
		if _, err := rand.Read(deviceID); err != nil {
			return pairsetup.Identity{}, fmt.Errorf("hapd: generate device ID: %w", err)
		}
		if err := store.SetDeviceID(backing, deviceID); err != nil {
			return pairsetup.Identity{}, err
		}
	}

	ltsk, found, err := store.GetLTSK(backing)
	if err != nil {
		return pairsetup.Identity{}, err
	}
	if !found {
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return pairsetup.Identity{}, fmt.Errorf("hapd: generate LTSK: %w", err)
		}
		ltsk = priv.Seed()
		if err := store.SetLTSK(backing, ltsk); err != nil {
			return pairsetup.Identity{}, err
		}
	}

	priv := ed25519.NewKeyFromSeed(ltsk)
	var identity pairsetup.Identity
	copy(identity.PairingID[:], deviceIDString(deviceID))
	identity.LTSK = priv
	identity.LTPK = priv.Public().(ed25519.PublicKey)
	return identity, nil
}

// deviceIDString formats a 6-byte device ID as the colon-separated
// uppercase hex form HAP uses as the Pair Setup/Pair Verify identity
// ("AA:BB:CC:DD:EE:FF", spec §4.C5).
func deviceIDString(id []byte) string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", id[0], id[1], id[2], id[3], id[4], id[5])
}
