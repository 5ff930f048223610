package rpcsession

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownTriggerIdempotent(t *testing.T) {
	trig := NewShutdownTrigger()
	assert.False(t, trig.IsTriggered())
	trig.Trigger()
	trig.Trigger()
	assert.True(t, trig.IsTriggered())
	select {
	case <-trig.Done():
	default:
		t.Fatal("Done channel should be closed after Trigger")
	}
}

func TestShutdownTriggerRegisterAfterFireInterruptsImmediately(t *testing.T) {
	trig := NewShutdownTrigger()
	trig.Trigger()

	local, remote := newPipeConnPair()
	defer remote.Close()
	transport := NewTransport(local, trig)

	err := transport.ReadFully(newTestContext(), make([]byte, 4))
	assert.ErrorIs(t, err, ErrCancelled)
}

// TestShutdownTriggerUnblocksNPlusMWaiters is the stress scenario of
// spec.md §8: N callers blocked in acquire and M workers blocked in
// ReadFully must all return once the trigger fires.
func TestShutdownTriggerUnblocksNPlusMWaiters(t *testing.T) {
	const n, m = 4, 3

	trig := NewShutdownTrigger()
	s := &Session{shutdownTrigger: trig}
	s.cond = sync.NewCond(&s.mu)
	// No outgoing connections at all would short-circuit with WouldBlock
	// instead of waiting, so give acquire() exactly one, permanently held
	// by a different caller, forcing every N caller to actually queue.
	held := newConnection(nil, false)
	held.acquireFor(callerID(999))
	s.outgoing = []*Connection{held}

	var wg sync.WaitGroup
	results := make(chan error, n+m)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, _ := ensureCallerID(newTestContext())
			_, err := s.acquire(ctx, UseClient)
			results <- err
		}(i)
	}

	for i := 0; i < m; i++ {
		local, _ := newPipeConnPair()
		wg.Add(1)
		go func(local net.Conn) {
			defer wg.Done()
			transport := NewTransport(local, trig)
			err := transport.ReadFully(newTestContext(), make([]byte, 4))
			results <- err
		}(local)
	}

	time.Sleep(20 * time.Millisecond)
	trig.Trigger()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("N+M waiters did not unblock within bound")
	}

	close(results)
	for err := range results {
		require.ErrorIs(t, err, ErrCancelled)
	}
}
