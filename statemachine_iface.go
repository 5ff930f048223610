package rpcsession

import "context"

// RemoteRef is an opaque handle to a remote object as understood by the
// state machine. Its wire representation is the wire codec's concern,
// entirely out of scope here (spec.md §1).
type RemoteRef = any

// StateMachine is the external collaborator spec.md §1 calls "the state
// machine": it parses frames, dispatches remote object references, and
// issues reply frames on a Connection the Session has already acquired.
// Session depends only on this interface; statemachine.Machine (see
// the statemachine package) is the one concrete implementation this repo
// ships, used by its own tests and the cmd/rpcsession-demo binary.
type StateMachine interface {
	// SendConnectionInit writes whatever per-connection handshake the
	// codec needs once a new Connection has joined a pool, mirroring
	// RpcState::sendConnectionInit.
	SendConnectionInit(ctx context.Context, conn *Connection) error
	// ReadConnectionInit reads the peer's per-connection handshake,
	// mirroring RpcState::readConnectionInit. Called once by every
	// incoming worker before it starts its command loop.
	ReadConnectionInit(ctx context.Context, conn *Connection) error
	// GetAndExecuteCommand blocks for exactly one incoming command on
	// conn, executes it, and returns. A non-nil error ends the calling
	// worker's loop (spec.md §4.5, incoming worker lifecycle step 3).
	GetAndExecuteCommand(ctx context.Context, conn *Connection) error
	// Transact sends a call to ref and, unless flags marks it one-way,
	// blocks for and returns the reply.
	Transact(ctx context.Context, conn *Connection, ref RemoteRef, code uint32, data []byte, flags uint32) ([]byte, error)
	// SendDecStrong sends a one-way strong-reference decrement for ref.
	SendDecStrong(ctx context.Context, conn *Connection, ref RemoteRef) error
	// RootObject returns the peer's root remote object over conn.
	RootObject(ctx context.Context, conn *Connection) (RemoteRef, error)
	// ReadMaxThreads reads the peer's advertised incoming-pool size over
	// conn, used once during client setup on the seed connection.
	ReadMaxThreads(ctx context.Context, conn *Connection) (int, error)
	// ReadSessionID reads the session id the server assigned, used once
	// during client setup on the seed connection.
	ReadSessionID(ctx context.Context, conn *Connection) (SessionID, error)
	// Clear drops every remote object reference the state machine is
	// holding. Called once, after ShutdownAndWait's wait phase.
	Clear()
}

// Caller is the narrow surface a StateMachine implementation needs back
// from a Session to support nested calls: a command handler executing
// inside GetAndExecuteCommand may issue its own outgoing Transact, which
// must reuse the handler's own incoming connection rather than deadlock
// waiting for a free outgoing one (spec.md §4.4's nested-call rule).
// *Session satisfies this interface structurally.
type Caller interface {
	Transact(ctx context.Context, ref RemoteRef, code uint32, data []byte, flags uint32) ([]byte, error)
}
