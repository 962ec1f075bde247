package server_test

import (
	"crypto/ed25519"
	"testing"
	"time"

	hcrypto "github.com/hkadk/hapcore/internal/hap/crypto"
	"github.com/hkadk/hapcore/internal/hap/pairsetup"
	"github.com/hkadk/hapcore/internal/hap/server"
	"github.com/hkadk/hapcore/internal/hap/session"
	"github.com/hkadk/hapcore/internal/hap/setupinfo"
	"github.com/hkadk/hapcore/internal/hap/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCreds struct{ salt, verifier []byte }

func (c fakeCreds) CurrentSRPVerifier() ([]byte, []byte, error) { return c.salt, c.verifier, nil }

func newTestServer(t *testing.T) (*server.Server, store.Store) {
	t.Helper()
	backing := store.NewMemStore()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	require.NoError(t, store.SetLTSK(backing, priv.Seed()))

	var identity pairsetup.Identity
	copy(identity.PairingID[:], "AA:BB:CC:DD:EE:FF")
	identity.LTSK = priv
	identity.LTPK = pub

	var suite hcrypto.Default
	info, err := setupinfo.DeriveSetupInfo(hcrypto.SRP3072{}, "123-45-679")
	require.NoError(t, err)
	creds := fakeCreds{salt: info.Salt[:], verifier: info.Verifier[:]}

	s, err := server.New(nil, suite, creds, identity, backing, server.Config{
		AccessoryCategoryID: 2,
		SetupInfoMode:       setupinfo.ModeDisplay,
	})
	require.NoError(t, err)
	return s, backing
}

func TestStartTransitionsIdleToRunning(t *testing.T) {
	s, _ := newTestServer(t)
	assert.Equal(t, server.Idle, s.State())

	require.NoError(t, s.Start(time.Unix(0, 0)))
	assert.Equal(t, server.Running, s.State())
}

func TestStartFailsWithoutLTSK(t *testing.T) {
	backing := store.NewMemStore()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	var identity pairsetup.Identity
	identity.LTSK = priv
	identity.LTPK = pub

	var suite hcrypto.Default
	creds := fakeCreds{salt: make([]byte, 16), verifier: make([]byte, 384)}
	s, err := server.New(nil, suite, creds, identity, backing, server.Config{})
	require.NoError(t, err)

	assert.Error(t, s.Start(time.Unix(0, 0)))
	assert.Equal(t, server.Idle, s.State())
}

func TestStartTwiceIsRejected(t *testing.T) {
	s, _ := newTestServer(t)
	require.NoError(t, s.Start(time.Unix(0, 0)))
	assert.Error(t, s.Start(time.Unix(0, 0)))
}

func TestStopInvalidatesAllSessionsAndReturnsToIdle(t *testing.T) {
	s, _ := newTestServer(t)
	require.NoError(t, s.Start(time.Unix(0, 0)))

	sess := s.Sessions().Create(session.TransportIP)
	sess.Active = true

	var disconnected []session.ID
	require.NoError(t, s.Stop(func(id session.ID) { disconnected = append(disconnected, id) }))

	assert.Equal(t, server.Idle, s.State())
	assert.False(t, sess.Active)
	assert.Contains(t, disconnected, sess.ID)
}

func TestOnUpdatedStateFiresOnStateTransitions(t *testing.T) {
	s, _ := newTestServer(t)
	var seen []server.State
	s.OnUpdatedState(func(state server.State, paired bool) {
		seen = append(seen, state)
	})

	require.NoError(t, s.Start(time.Unix(0, 0)))
	require.NoError(t, s.Stop(nil))

	assert.Contains(t, seen, server.Running)
	assert.Contains(t, seen, server.Idle)
}
