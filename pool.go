package rpcsession

import "context"

// Use identifies why a caller is acquiring a connection, per spec.md §4.4.
type Use int

const (
	// UseClient is a synchronous outgoing call expecting a reply.
	UseClient Use = iota
	// UseClientAsync is a one-way outgoing call with no reply.
	UseClientAsync
	// UseClientRefcount is a small outgoing refcount adjustment that may
	// be nested onto an incoming connection as a fallback.
	UseClientRefcount
)

// ExclusiveHandle is the result of acquire: a Connection bound to the
// calling context for the duration of one call, plus enough state for
// release to know whether it actually owns the connection (reentrant
// acquisitions must not release on exit — the outer frame still needs
// it).
type ExclusiveHandle struct {
	session   *Session
	conn      *Connection
	reentrant bool
	caller    callerID
}

// Connection exposes the acquired Connection for the caller to read/write
// through its Transport.
func (h *ExclusiveHandle) Connection() *Connection { return h.conn }

// Release returns the connection to the pool. Safe to call exactly once;
// calling it on a reentrant handle is a no-op other than bookkeeping,
// matching spec.md §4.4's release algorithm.
func (h *ExclusiveHandle) Release() {
	h.session.release(h)
}

// acquire implements the algorithm of spec.md §4.4 steps 1-6. ctx must
// already carry a callerID (ensureCallerID is called by every public
// entry point before acquire is reached).
func (s *Session) acquire(ctx context.Context, use Use) (*ExclusiveHandle, error) {
	id, ok := callerIDFrom(ctx)
	if !ok {
		panic("rpcsession: acquire called without a callerID on ctx")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.waitingThreads++
	defer func() { s.waitingThreads-- }()

	for {
		exclusive, available := findConnection(id, s.outgoing, s.outgoingOffset)

		if use == UseClientAsync && (exclusive != nil || available != nil) {
			if n := len(s.outgoing); n > 0 {
				s.outgoingOffset = (s.outgoingOffset + 1) % n
			}
		}

		if use != UseClientAsync {
			exclusiveIncoming, _ := findConnection(id, s.incoming, 0)
			if exclusiveIncoming != nil {
				switch {
				case exclusiveIncoming.allowNested:
					// Guaranteed to be processed as a nested command.
					exclusive = exclusiveIncoming
				case use == UseClientRefcount && available == nil:
					// Prefer a dedicated outgoing connection, but don't
					// wait for one just to decrement a refcount.
					exclusive = exclusiveIncoming
				}
			}
		}

		switch {
		case exclusive != nil:
			return &ExclusiveHandle{session: s, conn: exclusive, reentrant: true, caller: id}, nil
		case available != nil:
			available.acquireFor(id)
			return &ExclusiveHandle{session: s, conn: available, reentrant: false, caller: id}, nil
		case len(s.outgoing) == 0:
			// Never block when there is nothing to wait for: a
			// server with no back-channel cannot make outgoing calls.
			return nil, statusOf(KindWouldBlock, "session has no outgoing connections")
		}

		if err := s.waitForConnectionOrCancel(ctx); err != nil {
			return nil, err
		}
	}
}

// waitForConnectionOrCancel blocks on the pool's condition variable until
// either a connection is released or the session's shutdown trigger
// fires. s.mu is held on entry and on every return.
func (s *Session) waitForConnectionOrCancel(ctx context.Context) error {
	if s.shutdownTrigger != nil && s.shutdownTrigger.IsTriggered() {
		return ErrCancelled
	}
	if err := ctx.Err(); err != nil {
		return ErrCancelled
	}

	// Cond.Wait has no cancellation hook, so a watcher goroutine
	// rebroadcasts when the trigger fires. It is started at most once per
	// Session, since a Session's trigger is set only at construction.
	if s.shutdownTrigger != nil {
		s.armCancelWatcher()
	}
	s.cond.Wait()
	if s.shutdownTrigger != nil && s.shutdownTrigger.IsTriggered() {
		return ErrCancelled
	}
	return nil
}

// armCancelWatcher lazily starts, at most once per Session, a goroutine
// that wakes every acquire() waiter when the shutdown trigger fires.
// s.mu is held by the caller.
func (s *Session) armCancelWatcher() {
	if s.cancelWatcherArmed {
		return
	}
	s.cancelWatcherArmed = true
	trigger := s.shutdownTrigger
	go func() {
		<-trigger.Done()
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	}()
}

// release implements spec.md §4.4's release algorithm: a non-reentrant
// handle clears the owner and wakes one waiter (if any are waiting); a
// reentrant handle changes nothing, since an outer stack frame still
// holds the connection.
func (s *Session) release(h *ExclusiveHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.reentrant {
		return
	}
	h.conn.releaseOwnership()
	if s.waitingThreads > 0 {
		s.cond.Signal()
	}
}

// findConnection scans sockets starting at hint, returning the first
// connection owned by id (exclusive, short-circuiting the scan) and the
// first free connection seen before it (available). Either return may be
// nil. spec.md §4.4 step 2.
func findConnection(id callerID, sockets []*Connection, hint int) (exclusive, available *Connection) {
	n := len(sockets)
	if n == 0 {
		return nil, nil
	}
	for i := 0; i < n; i++ {
		c := sockets[(i+hint)%n]
		if available == nil && c.isFree() {
			available = c
		}
		if c.ownedBy(id) {
			exclusive = c
			return
		}
	}
	return
}
