package rpcsession

import (
	"context"
	"sync"
	"time"
)

// deadlineSetter is satisfied by any net.Conn. It is the hook
// ShutdownTrigger uses to interrupt a goroutine parked in a blocking
// Read/Write: forcing the deadline into the past makes the kernel return
// an i/o timeout immediately, the same way the original wakes a thread
// blocked in poll(2) on a second, trigger-owned fd. See SPEC_FULL.md §4.1
// for why this repo uses a deadline instead of a real poll() pair.
type deadlineSetter interface {
	SetDeadline(t time.Time) error
}

// longAgo is forced onto a registered connection's deadline to abort any
// pending Read/Write without racing a real wall-clock deadline the caller
// might also be using.
var longAgo = time.Unix(0, 0)

// ShutdownTrigger is a one-shot, idempotent interruption signal. Once
// fired it unblocks every Transport that was registered with it, and
// every future registration sees it as already fired.
// See spec.md §4.1.
type ShutdownTrigger struct {
	mu       sync.Mutex
	fired    bool
	done     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	watched  map[deadlineSetter]struct{}
}

// NewShutdownTrigger constructs an armed, unfired trigger.
func NewShutdownTrigger() *ShutdownTrigger {
	ctx, cancel := context.WithCancel(context.Background())
	return &ShutdownTrigger{
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		watched: make(map[deadlineSetter]struct{}),
	}
}

// Trigger fires the trigger. Idempotent: a second and later call is a
// no-op. Every connection currently registered has its deadline forced
// into the past; every later registration sees IsTriggered() true and is
// interrupted immediately instead of being added to the watch set.
func (t *ShutdownTrigger) Trigger() {
	t.mu.Lock()
	if t.fired {
		t.mu.Unlock()
		return
	}
	t.fired = true
	watched := t.watched
	t.watched = nil
	t.mu.Unlock()

	close(t.done)
	t.cancel()
	for conn := range watched {
		_ = conn.SetDeadline(longAgo)
	}
}

// IsTriggered reports whether Trigger has already fired.
func (t *ShutdownTrigger) IsTriggered() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}

// Done returns a channel closed the instant Trigger fires, for select
// statements that need to race the trigger against other channels.
func (t *ShutdownTrigger) Done() <-chan struct{} {
	return t.done
}

// Context returns a context.Context cancelled the instant Trigger fires.
// Dial operations use this to satisfy "completion polled via the Shutdown
// Trigger" (spec.md §4.5 step 2a) without a raw poll(2) call.
func (t *ShutdownTrigger) Context() context.Context {
	return t.ctx
}

// register arms conn so that a future Trigger() forces its deadline into
// the past. If the trigger has already fired, conn's deadline is forced
// immediately instead of being watched.
func (t *ShutdownTrigger) register(conn deadlineSetter) {
	t.mu.Lock()
	if t.fired {
		t.mu.Unlock()
		_ = conn.SetDeadline(longAgo)
		return
	}
	t.watched[conn] = struct{}{}
	t.mu.Unlock()
}

// unregister removes conn from the watch set, e.g. when its Transport is
// closed independently of a full session shutdown.
func (t *ShutdownTrigger) unregister(conn deadlineSetter) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.watched != nil {
		delete(t.watched, conn)
	}
}
