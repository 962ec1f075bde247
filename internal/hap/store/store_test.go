package store_test

import (
	"bytes"
	"testing"

	"github.com/hkadk/hapcore/internal/hap/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStoreGetSetDelete(t *testing.T) {
	s := store.NewMemStore()

	_, ok, err := s.Get(store.DomainConfiguration, store.KeyDeviceID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(store.DomainConfiguration, store.KeyDeviceID, []byte{1, 2, 3, 4, 5, 6}))
	v, ok, err := s.Get(store.DomainConfiguration, store.KeyDeviceID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, v)

	require.NoError(t, s.Delete(store.DomainConfiguration, store.KeyDeviceID))
	_, ok, err = s.Get(store.DomainConfiguration, store.KeyDeviceID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFactoryResetLeavesProvisioningIntact(t *testing.T) {
	s := store.NewMemStore()
	require.NoError(t, s.Set(store.DomainProvisioning, 0x01, []byte("serial")))
	require.NoError(t, s.Set(store.DomainConfiguration, store.KeyDeviceID, []byte{1, 2, 3, 4, 5, 6}))
	require.NoError(t, s.Set(store.DomainPairings, 0, make([]byte, store.PairingRecordSize)))

	require.NoError(t, store.FactoryReset(s))

	_, ok, _ := s.Get(store.DomainProvisioning, 0x01)
	assert.True(t, ok, "Provisioning domain MUST survive a factory reset")
	_, ok, _ = s.Get(store.DomainConfiguration, store.KeyDeviceID)
	assert.False(t, ok, "Configuration domain MUST be cleared")
	assert.Empty(t, s.Keys(store.DomainPairings), "Pairings domain MUST be cleared")
}

func TestUnsuccessfulAuthAttemptsLifecycle(t *testing.T) {
	s := store.NewMemStore()

	for i := 0; i < 5; i++ {
		_, err := store.IncrementUnsuccessfulAuthAttempts(s)
		require.NoError(t, err)
	}
	n, err := store.GetUnsuccessfulAuthAttempts(s)
	require.NoError(t, err)
	assert.Equal(t, uint8(5), n)

	require.NoError(t, store.ClearUnsuccessfulAuthAttempts(s))
	n, err = store.GetUnsuccessfulAuthAttempts(s)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), n)
}

func TestGSNNextWrapsFrom0xFFFFTo1NeverZero(t *testing.T) {
	g := store.GSN(0xFFFF)
	assert.Equal(t, store.GSN(1), g.Next())
	assert.Equal(t, store.GSN(2), store.GSN(1).Next())
}

func TestComputeKeyExpirationGSNNeverZero(t *testing.T) {
	for cur := store.GSN(1); cur < 200; cur++ {
		exp := store.ComputeKeyExpirationGSN(cur)
		assert.NotEqual(t, store.GSN(0), exp)
	}
}

func TestPairingRecordEncodeDecodeRoundTrip(t *testing.T) {
	rec := store.PairingRecord{
		IdentifierLen: 4,
		PublicKey:     bytes.Repeat([]byte{0x07}, 32),
		Permissions:   store.PermissionAdmin,
	}
	copy(rec.Identifier[:], "ctrl")

	decoded, err := store.DecodePairingRecord(rec.Encode())
	require.NoError(t, err)
	assert.Equal(t, rec.Identifier, decoded.Identifier)
	assert.Equal(t, rec.IdentifierLen, decoded.IdentifierLen)
	assert.Equal(t, []byte(rec.PublicKey), []byte(decoded.PublicKey))
	assert.True(t, decoded.IsAdmin())
}

func TestPairingStoreListIsInsertionOrdered(t *testing.T) {
	backing := store.NewMemStore()
	ps, err := store.NewPairingStore(backing)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		rec := store.PairingRecord{IdentifierLen: 1, PublicKey: bytes.Repeat([]byte{byte(i)}, 32)}
		copy(rec.Identifier[:], []byte{byte('a' + i)})
		require.NoError(t, ps.Add(store.PairingID(2-i), rec)) // deliberately out of key order
	}

	list := ps.List()
	require.Len(t, list, 3)
	assert.Equal(t, store.PairingID(2), list[0].ID)
	assert.Equal(t, store.PairingID(1), list[1].ID)
	assert.Equal(t, store.PairingID(0), list[2].ID)
}

func TestPairingStoreRemoveLastAdmin(t *testing.T) {
	backing := store.NewMemStore()
	ps, err := store.NewPairingStore(backing)
	require.NoError(t, err)

	admin := store.PairingRecord{IdentifierLen: 1, Permissions: store.PermissionAdmin, PublicKey: make([]byte, 32)}
	require.NoError(t, ps.Add(0, admin))
	assert.Equal(t, 1, ps.CountAdmins())

	require.True(t, ps.Remove(0))
	assert.Equal(t, 0, ps.CountAdmins())
	assert.Equal(t, 0, ps.Len())
}

func TestBroadcastParametersExpire(t *testing.T) {
	s := store.NewMemStore()
	require.NoError(t, store.SetBroadcastParameters(s, store.BroadcastParameters{
		KeyExpirationGSN: 42,
		Key:              [32]byte{1, 2, 3},
	}))

	require.NoError(t, store.ExpireBroadcastKey(s))
	p, err := store.GetBroadcastParameters(s)
	require.NoError(t, err)
	assert.Equal(t, store.GSN(0), p.KeyExpirationGSN)
	assert.Equal(t, [32]byte{}, p.Key)
}
