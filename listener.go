package rpcsession

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// EventListener receives the two session lifecycle callbacks a server
// needs to drive its own bookkeeping, and the one a waiting
// ShutdownAndWait needs. spec.md §4.5 / §9 ("Weak back-reference to
// server"). A Session holds its listener as a plain interface value; Go
// has no weak references, so whoever constructs the listener for a
// server-accepted session is responsible for not leaking a strong cycle
// back to the Session (e.g. by storing only the server's address/id, not
// a pointer to the Session itself, inside the listener).
type EventListener interface {
	// OnSessionAllIncomingThreadsEnded fires when the incoming pool
	// drains to empty, and again from ShutdownAndWait if the pool is
	// already empty then, so it may fire more than once.
	OnSessionAllIncomingThreadsEnded(s *Session)
	// OnSessionIncomingThreadEnded fires every time one incoming worker
	// exits, regardless of whether the pool is now empty.
	OnSessionIncomingThreadEnded()
}

// waitForShutdownListener is the default EventListener, installed by
// every Session at construction. ShutdownAndWait(true) blocks on it.
// spec.md §4.5 step "Shutdown". The original blocks on a condition
// variable re-checked every second for diagnostic logging; this version
// uses a close-once channel plus a ticker, the more idiomatic Go
// equivalent of the same wait-with-periodic-log shape.
type waitForShutdownListener struct {
	mu       sync.Mutex
	shutdown bool
	done     chan struct{}
}

func newWaitForShutdownListener() *waitForShutdownListener {
	return &waitForShutdownListener{done: make(chan struct{})}
}

func (l *waitForShutdownListener) OnSessionAllIncomingThreadsEnded(*Session) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.shutdown {
		l.shutdown = true
		close(l.done)
	}
}

// OnSessionIncomingThreadEnded fires on every worker exit. The channel
// design above only needs the "all ended" signal to unblock waitForShutdown,
// so this is a deliberate no-op; it exists so callers can still observe
// per-worker exits by wrapping or replacing the listener.
func (l *waitForShutdownListener) OnSessionIncomingThreadEnded() {}

// waitForShutdown blocks until OnSessionAllIncomingThreadsEnded has fired,
// logging once a second without progress.
func (l *waitForShutdownListener) waitForShutdown(sessionTag string) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			log.Warn().Str("session", sessionTag).Msg("waiting for session to shut down (1s w/o progress)")
		}
	}
}
