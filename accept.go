package rpcsession

import (
	"context"
	"net"
)

// setupInfoWriter is the optional capability a StateMachine may implement
// to send the per-connection max-threads/session-id pair setupClient's
// seed connection reads on the other side (spec.md §4.5 steps 3-5).
// StateMachine itself stays narrow (Session never calls this), so this
// is a capability interface rather than an addition to StateMachine.
type setupInfoWriter interface {
	WriteSetupInfo(ctx context.Context, conn *Connection, maxThreads int, id SessionID) error
}

// AcceptSeedConnection completes the server side of spec.md §4.5 steps
// 2c-5 for a freshly dialed connection that has not yet been assigned to
// any Session: it reads the peer's ConnectionHeader, answers with a
// NewSessionResponse carrying the negotiated version, has the state
// machine write the per-connection setup info (max threads + session id)
// the peer's setupClient expects right after that — when the configured
// StateMachine implements setupInfoWriter — seeds s for the server role,
// and finally hands the connection to the incoming pool exactly as
// AddIncomingConnection does for every connection after it.
//
// s must already have SetMaxThreads and SetStateMachine applied. The
// external listening server (cmd/rpcsession-demo in this repo) owns
// accept(2)/net.Listen and calls this once per new peer, then
// AddIncomingConnection for that peer's remaining connections.
func AcceptSeedConnection(ctx context.Context, s *Session, conn net.Conn, id SessionID) error {
	s.mu.Lock()
	sm := s.stateMachine
	maxThreads := s.maxThreads
	s.mu.Unlock()
	if sm == nil {
		return wrapStatus(KindInvalidOperation, nil, "no state machine configured")
	}

	transport := NewTransport(conn, s.shutdownTrigger)
	header, err := readConnectionHeader(ctx, transport)
	if err != nil {
		_ = transport.Close()
		return err
	}

	s.mu.Lock()
	version := defaultProtocolVersion
	if s.protocolVersion != nil {
		version = *s.protocolVersion
	}
	s.mu.Unlock()
	version = negotiateVersion(header.Version, version)
	if err := writeNewSessionResponse(ctx, transport, version); err != nil {
		_ = transport.Close()
		return err
	}

	if err := s.SetForServer(nil, nil, id); err != nil {
		_ = transport.Close()
		return err
	}

	c := newConnection(transport, true)
	if w, ok := sm.(setupInfoWriter); ok {
		if err := w.WriteSetupInfo(ctx, c, maxThreads, id); err != nil {
			_ = transport.Close()
			return err
		}
	}

	s.mu.Lock()
	s.incoming = append(s.incoming, c)
	if len(s.incoming) > s.maxIncomingSeen {
		s.maxIncomingSeen = len(s.incoming)
	}
	s.mu.Unlock()

	s.spawnIncomingWorker(c)
	return nil
}
