package rpcsession

import "context"

// newTestContext returns a bare background context; tests spell this out
// explicitly rather than passing context.Background() at every call site
// so intent ("this call deliberately carries no deadline or callerID yet")
// reads clearly at each acquire/Transact call.
func newTestContext() context.Context {
	return context.Background()
}
