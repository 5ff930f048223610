package rpcsession

import (
	"context"
	"errors"
	"io"
	"net"
)

// Transport is the narrow interface Connection and the statemachine
// collaborator use for interruptible byte-stream I/O. spec.md §4.2.
type Transport interface {
	// WriteFully writes all of buf or fails with Cancelled, Io, or
	// DeadObject. A cancelled write is not retried; any bytes already
	// on the wire stay there.
	WriteFully(ctx context.Context, buf []byte) error
	// ReadFully reads exactly len(buf) bytes into buf or fails the same
	// way WriteFully does.
	ReadFully(ctx context.Context, buf []byte) error
	// Close releases the underlying connection and unregisters it from
	// the trigger that was watching it.
	Close() error
}

// connTransport is the default Transport, backed by a net.Conn. Every
// blocking Read/Write is interruptible by the ShutdownTrigger it was
// constructed with, per spec.md §4.1's contract.
type connTransport struct {
	conn    net.Conn
	trigger *ShutdownTrigger
}

// NewTransport wraps conn so that every future ReadFully/WriteFully honors
// trigger: once trigger fires, any blocked call on conn returns Cancelled.
func NewTransport(conn net.Conn, trigger *ShutdownTrigger) Transport {
	t := &connTransport{conn: conn, trigger: trigger}
	trigger.register(conn)
	return t
}

func (t *connTransport) Close() error {
	t.trigger.unregister(t.conn)
	return t.conn.Close()
}

func (t *connTransport) WriteFully(ctx context.Context, buf []byte) error {
	for len(buf) > 0 {
		if t.trigger.IsTriggered() || ctx.Err() != nil {
			return ErrCancelled
		}
		n, err := t.conn.Write(buf)
		buf = buf[n:]
		if err != nil {
			return t.classify(err)
		}
	}
	return nil
}

func (t *connTransport) ReadFully(ctx context.Context, buf []byte) error {
	if t.trigger.IsTriggered() || ctx.Err() != nil {
		return ErrCancelled
	}
	_, err := io.ReadFull(t.conn, buf)
	if err != nil {
		return t.classify(err)
	}
	return nil
}

// classify turns a raw net.Conn error into the Status taxonomy of
// spec.md §7. A timeout caused by ShutdownTrigger forcing the deadline
// into the past is indistinguishable at this layer from a "real" I/O
// timeout except by asking the trigger directly, so we ask it first.
func (t *connTransport) classify(err error) error {
	if t.trigger.IsTriggered() {
		return ErrCancelled
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return wrapStatus(KindDeadObject, err, "peer closed connection")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		// Deadline forced into the past with nothing else to explain
		// it means the trigger raced us; treat it as cancellation.
		return ErrCancelled
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return wrapStatus(KindDeadObject, err, "transport error")
	}
	return wrapStatus(KindIo, err, "io error")
}
