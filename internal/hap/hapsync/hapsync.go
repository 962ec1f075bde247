// Package hapsync is the engine's single-dispatch-goroutine marshaling
// boundary (spec §5): every timer callback and platform I/O callback is
// pushed onto one named goroutine via a buffered channel of closures, so
// the engine types themselves (server, session table, event dispatcher)
// need no locks of their own — only this one boundary is synchronized.
package hapsync

import (
	"context"

	"github.com/hkadk/hapcore/internal/groutine"
)

// DefaultQueueSize bounds how many pending closures Loop will buffer
// before Post blocks the caller.
const DefaultQueueSize = 64

// Loop is the single dispatch goroutine: every closure posted to it runs
// in submission order, one at a time, so anything only ever touched from
// within a posted closure needs no additional locking.
type Loop struct {
	queue chan func()
	done  chan struct{}
}

// NewLoop creates a Loop and starts its dispatch goroutine under name
// (spec §5, mirroring the teacher's groutine.Go-named-goroutine
// pattern). Call Stop to drain and terminate it.
func NewLoop(parentCtx context.Context, name string, queueSize int) *Loop {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	l := &Loop{
		queue: make(chan func(), queueSize),
		done:  make(chan struct{}),
	}
	groutine.Go(parentCtx, name, func(ctx context.Context) {
		defer close(l.done)
		for {
			select {
			case fn, ok := <-l.queue:
				if !ok {
					return
				}
				fn()
			case <-ctx.Done():
				return
			}
		}
	})
	return l
}

// Post enqueues fn to run on the dispatch goroutine. Post blocks if the
// queue is full; callers on the dispatch goroutine itself must never call
// Post synchronously against a full queue, since that would deadlock.
func (l *Loop) Post(fn func()) {
	l.queue <- fn
}

// Stop closes the queue, letting the dispatch goroutine drain any
// already-enqueued closures before exiting, then blocks until it has.
func (l *Loop) Stop() {
	close(l.queue)
	<-l.done
}

// Go starts fn as a named goroutine outside the Loop's own marshaling
// (spec §5): for one-off async work — a platform I/O callback's blocking
// call — that will itself Post its result back onto a Loop rather than
// touch engine state directly.
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	groutine.Go(parentCtx, name, fn)
}
