package event_test

import (
	"testing"
	"time"

	"github.com/hkadk/hapcore/internal/hap/event"
	"github.com/hkadk/hapcore/internal/hap/session"
	"github.com/hkadk/hapcore/internal/hap/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeAndIsSubscribed(t *testing.T) {
	d := event.NewDispatcher(0)
	sid := session.ID(1)
	assert.False(t, d.IsSubscribed(sid, 9))
	d.Subscribe(sid, 9)
	assert.True(t, d.IsSubscribed(sid, 9))
	d.Unsubscribe(sid, 9)
	assert.False(t, d.IsSubscribed(sid, 9))
}

func TestDropSessionClearsSubscriptionsAndQueue(t *testing.T) {
	d := event.NewDispatcher(0)
	sid := session.ID(1)
	d.Subscribe(sid, 9)
	d.NotifyIPChange(9, []session.ID{sid})
	d.DropSession(sid)
	assert.False(t, d.IsSubscribed(sid, 9))
	assert.Empty(t, d.FlushIP(sid))
}

func TestNotifyIPChangeOnlyReachesSubscribedSessions(t *testing.T) {
	d := event.NewDispatcher(0)
	subscribed := session.ID(1)
	other := session.ID(2)
	d.Subscribe(subscribed, 9)

	d.NotifyIPChange(9, []session.ID{subscribed, other})

	assert.Equal(t, []uint64{9}, d.FlushIP(subscribed))
	assert.Empty(t, d.FlushIP(other))
}

func TestFlushIPDeduplicatesWithinOneBatch(t *testing.T) {
	d := event.NewDispatcher(0)
	sid := session.ID(1)
	d.Subscribe(sid, 9)
	d.Subscribe(sid, 10)

	d.NotifyIPChange(9, []session.ID{sid})
	d.NotifyIPChange(9, []session.ID{sid})
	d.NotifyIPChange(10, []session.ID{sid})

	batch := d.FlushIP(sid)
	assert.Equal(t, []uint64{9, 10}, batch)
	// A second flush with nothing new queued returns empty.
	assert.Empty(t, d.FlushIP(sid))
}

func TestSubscriptionsReturnsInsertionOrder(t *testing.T) {
	d := event.NewDispatcher(0)
	sid := session.ID(1)
	d.Subscribe(sid, 30)
	d.Subscribe(sid, 10)
	d.Subscribe(sid, 20)

	assert.Equal(t, []uint64{30, 10, 20}, d.Subscriptions(sid))
}

func TestShouldIndicateBLERequiresEventsSubscriptionAndNonSelfOrigin(t *testing.T) {
	d := event.NewDispatcher(0)
	sid := session.ID(1)
	d.Subscribe(sid, 9)

	assert.True(t, d.ShouldIndicateBLE(sid, 9, true, false))
	assert.False(t, d.ShouldIndicateBLE(sid, 9, true, true), "self-originated write must be suppressed")
	assert.False(t, d.ShouldIndicateBLE(sid, 9, false, false), "characteristic without event support never indicates")
	assert.False(t, d.ShouldIndicateBLE(sid, 8, true, false), "unsubscribed characteristic never indicates")
}

func TestBumpGSNOnceIncrementsOnlyOncePerCycle(t *testing.T) {
	d := event.NewDispatcher(0)
	s := store.NewMemStore()
	require.NoError(t, store.SetGSN(s, store.GSNState{Value: store.InitialGSN}))

	first, err := d.BumpGSNOnce(s)
	require.NoError(t, err)
	assert.Equal(t, store.InitialGSN.Next(), first)

	second, err := d.BumpGSNOnce(s)
	require.NoError(t, err)
	assert.Equal(t, first, second, "a second bump within the same cycle must not advance again")

	d.BeginCycle()
	third, err := d.BumpGSNOnce(s)
	require.NoError(t, err)
	assert.Equal(t, first.Next(), third)
}

func TestBumpGSNOnceExpiresBroadcastKeyOnCrossing(t *testing.T) {
	d := event.NewDispatcher(0)
	s := store.NewMemStore()
	require.NoError(t, store.SetGSN(s, store.GSNState{Value: 10}))
	require.NoError(t, store.SetBroadcastParameters(s, store.BroadcastParameters{
		KeyExpirationGSN: 11,
		Key:              [32]byte{1, 2, 3},
	}))

	_, err := d.BumpGSNOnce(s)
	require.NoError(t, err)

	params, err := store.GetBroadcastParameters(s)
	require.NoError(t, err)
	assert.Equal(t, store.GSN(0), params.KeyExpirationGSN, "crossing keyExpirationGSN must expire the key")
	assert.Equal(t, [32]byte{}, params.Key)
}

func TestBumpGSNOnceLeavesBroadcastKeyIntactBeforeExpiration(t *testing.T) {
	d := event.NewDispatcher(0)
	s := store.NewMemStore()
	require.NoError(t, store.SetGSN(s, store.GSNState{Value: 10}))
	require.NoError(t, store.SetBroadcastParameters(s, store.BroadcastParameters{
		KeyExpirationGSN: 500,
		Key:              [32]byte{1, 2, 3},
	}))

	_, err := d.BumpGSNOnce(s)
	require.NoError(t, err)

	params, err := store.GetBroadcastParameters(s)
	require.NoError(t, err)
	assert.Equal(t, store.GSN(500), params.KeyExpirationGSN)
	assert.Equal(t, [32]byte{1, 2, 3}, params.Key)
}

func TestBroadcastWindowExtendsOnRefresh(t *testing.T) {
	d := event.NewDispatcher(0)
	start := time.Unix(0, 0)

	d.StartBroadcastWindow(start, 5)
	iid, active := d.ActiveBroadcast(start.Add(time.Second))
	require.True(t, active)
	assert.Equal(t, uint64(5), iid)

	// Refresh with a different characteristic extends the window.
	d.StartBroadcastWindow(start.Add(time.Second), 6)
	iid, active = d.ActiveBroadcast(start.Add(event.BroadcastWindow + 500*time.Millisecond))
	require.True(t, active)
	assert.Equal(t, uint64(6), iid)

	_, active = d.ActiveBroadcast(start.Add(2 * event.BroadcastWindow))
	assert.False(t, active)
}

func TestEndBroadcastWindowClearsOverride(t *testing.T) {
	d := event.NewDispatcher(0)
	now := time.Unix(0, 0)
	d.StartBroadcastWindow(now, 5)
	d.EndBroadcastWindow()
	_, active := d.ActiveBroadcast(now)
	assert.False(t, active)
}
