package rpcsession

import (
	"context"
	"sync/atomic"
)

// callerID is the Go surrogate for the original implementation's gettid().
// Go exposes no stable thread or goroutine identifier, so exclusive-owner
// and reentrancy tracking in the connection pool key off a value carried
// on context.Context instead of a thread-local. See SPEC_FULL.md §3.
type callerID uint64

var nextCallerID atomic.Uint64

// newCallerID allocates a fresh, process-unique caller identity. One is
// minted per top-level external call and once per incoming worker for the
// lifetime of its command loop.
func newCallerID() callerID {
	return callerID(nextCallerID.Add(1))
}

type callerIDKey struct{}

// withCallerID attaches id to ctx, or returns ctx unchanged if it already
// carries one (a nested call must keep its outer frame's identity so the
// pool recognizes it as the same logical caller).
func withCallerID(ctx context.Context, id callerID) context.Context {
	if _, ok := callerIDFrom(ctx); ok {
		return ctx
	}
	return context.WithValue(ctx, callerIDKey{}, id)
}

func callerIDFrom(ctx context.Context) (callerID, bool) {
	id, ok := ctx.Value(callerIDKey{}).(callerID)
	return id, ok
}

// ensureCallerID returns ctx (and its caller id) unchanged if it already
// carries one, otherwise returns a new context carrying a freshly minted
// id. Every public entry point that acquires a connection calls this so
// that external callers never need to think about callerID at all, while
// nested calls issued from inside a command handler automatically inherit
// the handler's worker identity.
func ensureCallerID(ctx context.Context) (context.Context, callerID) {
	if id, ok := callerIDFrom(ctx); ok {
		return ctx, id
	}
	id := newCallerID()
	return withCallerID(ctx, id), id
}
