package rpcsession

import (
	"bytes"
	"errors"
	"io"
	"net"
	"sync"
	"time"
)

// blockingPipe is an in-memory, half-duplex byte pipe with deadline
// support, adapted from jettyu-gorpc's test transport so session, trigger
// and wire tests can exercise real net.Conn-shaped blocking behavior
// (including ShutdownTrigger's deadline-forcing interruption) without a
// real socket.
type blockingPipe struct {
	sync.Mutex
	cond      *sync.Cond
	buf       bytes.Buffer
	readTimer *time.Timer
	err       error
	closed    bool
}

func newBlockingPipe() *blockingPipe {
	p := &blockingPipe{}
	p.cond = sync.NewCond(&p.Mutex)
	return p
}

var errPipeTimeout = errors.New("blockingPipe: i/o timeout")

func (p *blockingPipe) Read(b []byte) (int, error) {
	p.Lock()
	defer p.Unlock()
	if p.buf.Len() > 0 {
		return p.buf.Read(b)
	}
	if p.closed {
		return 0, io.EOF
	}
	p.cond.Wait()
	err := p.err
	p.err = nil
	if err != nil {
		return 0, err
	}
	if p.buf.Len() > 0 {
		return p.buf.Read(b)
	}
	if p.closed {
		return 0, io.EOF
	}
	return 0, nil
}

func (p *blockingPipe) Write(b []byte) (int, error) {
	p.Lock()
	defer p.Unlock()
	if p.closed {
		return 0, io.ErrClosedPipe
	}
	n, err := p.buf.Write(b)
	p.cond.Signal()
	return n, err
}

func (p *blockingPipe) Close() error {
	p.Lock()
	defer p.Unlock()
	p.closed = true
	p.cond.Broadcast()
	return nil
}

// setDeadline arms (or clears, on the zero Time) a timer that wakes any
// blocked Read with a timeout error once t elapses, mirroring how a real
// net.Conn's forced-into-the-past deadline aborts a pending read.
func (p *blockingPipe) setDeadline(t time.Time) {
	p.Lock()
	defer p.Unlock()
	if p.readTimer != nil {
		p.readTimer.Stop()
		p.readTimer = nil
	}
	if t.IsZero() {
		return
	}
	sub := time.Until(t)
	fireLocked := func() {
		p.err = errPipeTimeout
		p.cond.Broadcast()
	}
	if sub <= 0 {
		fireLocked()
		return
	}
	p.readTimer = time.AfterFunc(sub, func() {
		p.Lock()
		defer p.Unlock()
		fireLocked()
	})
}

// pipeConn is one end of an in-memory net.Conn pair.
type pipeConn struct {
	r *blockingPipe
	w *blockingPipe
}

var _ net.Conn = (*pipeConn)(nil)

// newPipeConnPair returns two connected ends: writes on one are readable
// on the other.
func newPipeConnPair() (local, remote net.Conn) {
	a, b := newBlockingPipe(), newBlockingPipe()
	local = &pipeConn{r: a, w: b}
	remote = &pipeConn{r: b, w: a}
	return
}

func (p *pipeConn) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *pipeConn) Write(b []byte) (int, error) { return p.w.Write(b) }

func (p *pipeConn) Close() error {
	p.r.Close()
	p.w.Close()
	return nil
}

func (p *pipeConn) LocalAddr() net.Addr  { return nil }
func (p *pipeConn) RemoteAddr() net.Addr { return nil }

// SetDeadline is the hook ShutdownTrigger's deadlineSetter interface
// relies on; a real net.Conn's deadline aborts both directions, so this
// forwards to the read side, the only one that ever blocks here.
func (p *pipeConn) SetDeadline(t time.Time) error {
	p.r.setDeadline(t)
	return nil
}

func (p *pipeConn) SetReadDeadline(t time.Time) error {
	p.r.setDeadline(t)
	return nil
}

func (p *pipeConn) SetWriteDeadline(time.Time) error {
	return nil
}
