package rpcsession

// Connection is one transport belonging to a Session plus the ownership
// bookkeeping the pool's exclusive-acquisition algorithm needs.
// spec.md §4.3. It has no operations of its own — every state transition
// happens under the session mutex in pool.go.
type Connection struct {
	Transport Transport

	// exclusiveOwner is nil when the connection is free, or the
	// callerID of the goroutine chain currently holding it.
	exclusiveOwner *callerID

	// allowNested is true for every incoming connection and false for
	// every outgoing connection, per spec.md §4.3.
	allowNested bool
}

func newConnection(t Transport, allowNested bool) *Connection {
	return &Connection{Transport: t, allowNested: allowNested}
}

func (c *Connection) ownedBy(id callerID) bool {
	return c.exclusiveOwner != nil && *c.exclusiveOwner == id
}

func (c *Connection) isFree() bool {
	return c.exclusiveOwner == nil
}

func (c *Connection) acquireFor(id callerID) {
	owner := id
	c.exclusiveOwner = &owner
}

func (c *Connection) releaseOwnership() {
	c.exclusiveOwner = nil
}
