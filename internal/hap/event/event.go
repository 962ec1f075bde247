// Package event implements the HAP event dispatcher (spec §4.C13):
// per-session subscription tracking and transport-specific routing of a
// characteristic value change to IP notification batches, BLE GATT
// indications, and BLE broadcasted/disconnected advertising windows.
package event

import (
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/hkadk/hapcore/internal/hap/session"
	"github.com/hkadk/hapcore/internal/hap/store"
)

// DefaultQueueSize bounds a session's pending-notification ring buffer.
// Sized generously above any plausible accessory's characteristic count;
// overflow coalesces (the oldest unflushed entry is dropped, matching the
// "one batch per session per tick" coalescing the spec describes).
const DefaultQueueSize = 256

// BroadcastWindow is how long an encrypted-notification advertisement
// overrides the regular advertisement after a broadcasted event (spec §5).
const BroadcastWindow = 3 * time.Second

// DisconnectAdvWindow is the fast 20ms advertising window entered on BLE
// disconnect (spec §4.C13).
const DisconnectAdvWindow = 3 * time.Second

// Dispatcher tracks per-session characteristic subscriptions and routes
// value-change events by transport. Not safe for concurrent use (spec §5:
// single-threaded cooperative engine).
type Dispatcher struct {
	// subs uses an insertion-ordered map per session so that a session's
	// subscription set, once enumerated (e.g. for a resubscribe-all after
	// reconnect), comes back in a deterministic order rather than Go's
	// randomized map iteration.
	subs      map[session.ID]*orderedmap.OrderedMap[uint64, struct{}]
	queues    map[session.ID]mpmc.RichOverlappedRingBuffer[uint64]
	queueSize uint32

	gsnBumpedThisCycle bool

	broadcastIID       uint64
	broadcastDeadline  time.Time
	broadcastActive    bool
}

// NewDispatcher creates an empty Dispatcher. queueSize is the per-session
// notification ring buffer capacity; pass 0 to use DefaultQueueSize.
func NewDispatcher(queueSize uint32) *Dispatcher {
	if queueSize == 0 {
		queueSize = DefaultQueueSize
	}
	return &Dispatcher{
		subs:      make(map[session.ID]*orderedmap.OrderedMap[uint64, struct{}]),
		queues:    make(map[session.ID]mpmc.RichOverlappedRingBuffer[uint64]),
		queueSize: queueSize,
	}
}

func (d *Dispatcher) queueFor(sid session.ID) mpmc.RichOverlappedRingBuffer[uint64] {
	q, ok := d.queues[sid]
	if !ok {
		q = mpmc.NewOverlappedRingBuffer[uint64](d.queueSize)
		d.queues[sid] = q
	}
	return q
}

// Subscribe records that sid wants notifications for characteristic iid.
func (d *Dispatcher) Subscribe(sid session.ID, iid uint64) {
	m, ok := d.subs[sid]
	if !ok {
		m = orderedmap.New[uint64, struct{}]()
		d.subs[sid] = m
	}
	m.Set(iid, struct{}{})
}

// Unsubscribe removes sid's subscription to iid, if any.
func (d *Dispatcher) Unsubscribe(sid session.ID, iid uint64) {
	if m, ok := d.subs[sid]; ok {
		m.Delete(iid)
	}
}

// IsSubscribed reports whether sid currently subscribes to iid.
func (d *Dispatcher) IsSubscribed(sid session.ID, iid uint64) bool {
	m, ok := d.subs[sid]
	if !ok {
		return false
	}
	_, ok = m.Get(iid)
	return ok
}

// Subscriptions returns sid's subscribed characteristic IIDs in the order
// they were subscribed.
func (d *Dispatcher) Subscriptions(sid session.ID) []uint64 {
	m, ok := d.subs[sid]
	if !ok {
		return nil
	}
	out := make([]uint64, 0, m.Len())
	for pair := m.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

// DropSession discards all subscription and queue state for sid, called on
// session invalidation.
func (d *Dispatcher) DropSession(sid session.ID) {
	delete(d.subs, sid)
	delete(d.queues, sid)
}

// NotifyIPChange enqueues a pending notification for iid on every
// subscribed session among sessions (spec §4.C13 "IP"). Duplicate changes
// to the same characteristic within a tick are deduplicated at FlushIP
// time, not here.
func (d *Dispatcher) NotifyIPChange(iid uint64, sessions []session.ID) {
	for _, sid := range sessions {
		if !d.IsSubscribed(sid, iid) {
			continue
		}
		q := d.queueFor(sid)
		if _, err := q.EnqueueM(iid); err != nil {
			// Ring buffer full: the oldest pending change for this session
			// is lost, which is acceptable under "coalesced ... one batch
			// per session per tick" — a later flush still reflects the
			// characteristic's current value via a fresh read.
			continue
		}
	}
}

// FlushIP drains sid's pending-notification queue into one deduplicated,
// order-preserving batch of characteristic IIDs, ready to serialize as a
// single HTTP EVENT/1.0 message (spec §4.C13 "coalesced ... one batch per
// session per tick").
func (d *Dispatcher) FlushIP(sid session.ID) []uint64 {
	q, ok := d.queues[sid]
	if !ok {
		return nil
	}
	seen := make(map[uint64]struct{})
	var batch []uint64
	for !q.IsEmpty() {
		iid, err := q.Dequeue()
		if err != nil {
			break
		}
		if _, dup := seen[iid]; dup {
			continue
		}
		seen[iid] = struct{}{}
		batch = append(batch, iid)
	}
	return batch
}

// ShouldIndicateBLE reports whether a connected-BLE value change on iid
// should emit a GATT indication to sid: the characteristic must support
// events, sid must be subscribed, and the change must not have originated
// from the write currently being handled on that same session (spec
// §4.C13 "BLE connected").
func (d *Dispatcher) ShouldIndicateBLE(sid session.ID, iid uint64, supportsEvents, originatingWrite bool) bool {
	if !supportsEvents || originatingWrite {
		return false
	}
	return d.IsSubscribed(sid, iid)
}

// BeginCycle marks the start of a new dispatch cycle, permitting
// BumpGSNOnce to increment the GSN again (spec §4.C13 "BLE disconnected"
// "increment GSN once per cycle").
func (d *Dispatcher) BeginCycle() {
	d.gsnBumpedThisCycle = false
}

// BumpGSNOnce increments the persisted GSN the first time it is called
// within a cycle; subsequent calls in the same cycle return the
// already-bumped value unchanged. Crossing the broadcast key's
// keyExpirationGSN during the increment expires the key (spec §4.C11
// "GSN lifecycle").
func (d *Dispatcher) BumpGSNOnce(s store.Store) (store.GSN, error) {
	cur, err := store.GetGSN(s)
	if err != nil {
		return 0, err
	}
	if d.gsnBumpedThisCycle {
		return cur.Value, nil
	}
	nextValue := cur.Value.Next()

	params, err := store.GetBroadcastParameters(s)
	if err != nil {
		return 0, err
	}
	if store.CrossesExpiration(cur.Value, nextValue, params.KeyExpirationGSN) {
		if err := store.ExpireBroadcastKey(s); err != nil {
			return 0, err
		}
	}

	next := store.GSNState{Value: nextValue, DidIncrement: true}
	if err := store.SetGSN(s, next); err != nil {
		return 0, err
	}
	d.gsnBumpedThisCycle = true
	return next.Value, nil
}

// StartBroadcastWindow begins (or extends) a BroadcastWindow-long
// encrypted-notification override for iid (spec §4.C13 "BLE broadcasted"):
// additional changes to the same or a different characteristic during the
// window refresh the value and extend the window.
func (d *Dispatcher) StartBroadcastWindow(now time.Time, iid uint64) {
	d.broadcastIID = iid
	d.broadcastDeadline = now.Add(BroadcastWindow)
	d.broadcastActive = true
}

// ActiveBroadcast reports the characteristic currently overriding the
// advertisement, and whether the window is still open at now.
func (d *Dispatcher) ActiveBroadcast(now time.Time) (iid uint64, active bool) {
	if !d.broadcastActive || now.After(d.broadcastDeadline) {
		return 0, false
	}
	return d.broadcastIID, true
}

// EndBroadcastWindow clears the broadcast override, e.g. once its deadline
// has passed.
func (d *Dispatcher) EndBroadcastWindow() {
	d.broadcastActive = false
}
