package rpcsession

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-uuid"
	"github.com/mdlayher/vsock"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// defaultProtocolVersion is proposed by a client that has not called
// SetProtocolVersion, and advertised by a server with no explicit cap.
const defaultProtocolVersion uint32 = 1

// FlagOneWay marks a Transact call as CLIENT_ASYNC: no reply is read, the
// connection pool advances its starting offset so successive one-way calls
// spread across outgoing connections, and an incoming connection is never
// used. An outgoing connection the caller already holds is still reused.
// spec.md §4.4.
const FlagOneWay uint32 = 1 << 0

type sessionRole int

const (
	roleUnset sessionRole = iota
	roleClient
	roleServer
)

// Server is an opaque handle to the listening server component, an
// out-of-scope collaborator (spec.md §1). Session never calls into it; the
// field exists only to model the weak back-reference of spec.md §9 without
// this package importing a concrete server type.
type Server interface{}

// workerHandle is the thread-registry entry of spec.md §3 ("threads"),
// keyed by callerID instead of an OS thread id (see SPEC_FULL.md §3).
type workerHandle struct {
	id   callerID
	conn *Connection
}

// WorkerLifecycleHook is the reimplementation of the original's ambient
// managed-runtime thread attachment (spec.md §9, "Ambient runtime
// attachment"). This repo targets no such runtime, so both funcs default
// to nil/no-op; a caller embedding this in a different host environment
// may set either. A hook's own failure is logged and ignored, never fatal.
type WorkerLifecycleHook struct {
	OnWorkerStart func()
	OnWorkerStop  func()
}

func (h WorkerLifecycleHook) onStart() {
	if h.OnWorkerStart != nil {
		defer func() {
			if r := recover(); r != nil {
				log.Warn().Interface("panic", r).Msg("worker start hook failed, ignoring")
			}
		}()
		h.OnWorkerStart()
	}
}

func (h WorkerLifecycleHook) onStop() {
	if h.OnWorkerStop != nil {
		defer func() {
			if r := recover(); r != nil {
				log.Warn().Interface("panic", r).Msg("worker stop hook failed, ignoring")
			}
		}()
		h.OnWorkerStop()
	}
}

// CertificateProvider backs GetCertificate. The Non-goals in spec.md §1
// exclude TLS context construction, not the accessor's existence, so a
// Session from Make answers every format with InvalidOperation until
// SetCertificateProvider installs a provider.
type CertificateProvider interface {
	Certificate(format string) (string, error)
}

type noCertificateProvider struct{}

func (noCertificateProvider) Certificate(string) (string, error) {
	return "", ErrInvalidOperation
}

// dialFunc establishes one raw connection. The three address families in
// spec.md §6 and SetupPreconnectedClient all reduce to a dialFunc handed to
// the shared setupClient/connectAndInit machinery.
type dialFunc func(ctx context.Context) (net.Conn, error)

// Session is the top-level object of spec.md §3/§4.5: setup handshake,
// pool population, thread registry for incoming workers, and shutdown
// coordination.
type Session struct {
	mu   sync.Mutex
	cond *sync.Cond

	role      sessionRole
	setupDone bool

	protocolVersion *uint32
	sessionID       SessionID
	maxThreads      int
	maxIncomingSeen int

	outgoing       []*Connection
	outgoingOffset int
	incoming       []*Connection

	waitingThreads     int
	cancelWatcherArmed bool

	workers map[callerID]*workerHandle

	shutdownTrigger *ShutdownTrigger
	eventListener   EventListener
	stateMachine    StateMachine
	certProvider    CertificateProvider
	workerHook      WorkerLifecycleHook

	forServer func() (Server, bool)

	connectRetryMax     int
	connectRetryBackoff time.Duration
	dialTimeout         time.Duration

	diagnosticID string
}

// Make constructs an unconfigured Session, per spec.md §6's make(). Callers
// configure it with SetMaxThreads/SetProtocolVersion/SetStateMachine before
// one of the Setup* methods.
func Make() *Session {
	s := &Session{
		workers:             make(map[callerID]*workerHandle),
		shutdownTrigger:     NewShutdownTrigger(),
		eventListener:       newWaitForShutdownListener(),
		certProvider:        noCertificateProvider{},
		connectRetryMax:     5,
		connectRetryBackoff: 10 * time.Millisecond,
		dialTimeout:         10 * time.Second,
	}
	s.cond = sync.NewCond(&s.mu)
	if id, err := uuid.GenerateUUID(); err == nil {
		s.diagnosticID = id
	}
	return s
}

// SetMaxThreads sets the requested size of the incoming worker pool.
// Immutable once setup has completed (spec.md §3).
func (s *Session) SetMaxThreads(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setupDone {
		return wrapStatus(KindInvalidOperation, nil, "max threads is immutable after setup")
	}
	if n < 0 {
		return statusOf(KindBadValue, "max threads must be >= 0, got %d", n)
	}
	s.maxThreads = n
	return nil
}

// SetProtocolVersion caps the protocol version this session will propose
// or accept. Monotonic: once set, a later call may only lower the cap
// (spec.md §3, §9 "Protocol version monotonicity").
func (s *Session) SetProtocolVersion(v uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.protocolVersion != nil && v > *s.protocolVersion {
		return statusOf(KindBadValue, "cannot raise protocol version cap from %d to %d", *s.protocolVersion, v)
	}
	s.protocolVersion = &v
	return nil
}

// SetStateMachine installs the wire-codec collaborator (spec.md §1's "state
// machine"). Must be called before any Setup* method.
func (s *Session) SetStateMachine(sm StateMachine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateMachine = sm
}

// SetConfig overrides the connect-retry/backoff/dial-timeout tunables
// (ambient, not part of spec.md §6's operation list) from cfg. Zero fields
// in cfg leave the corresponding default untouched.
func (s *Session) SetConfig(cfg *Config) {
	if cfg == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.ConnectRetryMax > 0 {
		s.connectRetryMax = cfg.ConnectRetryMax
	}
	if cfg.ConnectRetryBackoff > 0 {
		s.connectRetryBackoff = cfg.ConnectRetryBackoff
	}
	if cfg.DialTimeout > 0 {
		s.dialTimeout = cfg.DialTimeout
	}
}

// SetCertificateProvider installs a non-default CertificateProvider for
// GetCertificate.
func (s *Session) SetCertificateProvider(p CertificateProvider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p != nil {
		s.certProvider = p
	}
}

// SetWorkerLifecycleHook installs the ambient-runtime-attachment extension
// point of spec.md §9.
func (s *Session) SetWorkerLifecycleHook(h WorkerLifecycleHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workerHook = h
}

// SetForServer seeds the session for the server role after the accepting
// server has completed the peer's first handshake (spec.md §4.5). listener
// may be nil to keep the default shutdown-waiting listener.
func (s *Session) SetForServer(server Server, listener EventListener, id SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setupDone {
		return wrapStatus(KindInvalidOperation, nil, "session already set up")
	}
	s.role = roleServer
	s.forServer = func() (Server, bool) { return server, server != nil }
	if listener != nil {
		s.eventListener = listener
	}
	s.sessionID = id
	s.setupDone = true
	return nil
}

// ForServer resolves the weak back-reference installed by SetForServer.
// Returns ok=false if this session was not set up for the server role, or
// if SetForServer was given a nil server. The reference is kept for the
// session's lifetime; no method clears it.
func (s *Session) ForServer() (Server, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.forServer == nil {
		return nil, false
	}
	return s.forServer()
}

// SetupUnixDomainClient dials a Unix domain socket at path (spec.md §6).
func (s *Session) SetupUnixDomainClient(path string) error {
	return s.setupClient(context.Background(), func(ctx context.Context) (net.Conn, error) {
		return (&net.Dialer{}).DialContext(ctx, "unix", path)
	})
}

// SetupVsockClient dials a vsock (cid, port) pair via
// github.com/mdlayher/vsock, the one address family the standard library
// has no socket type for (SPEC_FULL.md §4.5).
func (s *Session) SetupVsockClient(cid, port uint32) error {
	return s.setupClient(context.Background(), func(ctx context.Context) (net.Conn, error) {
		return vsock.Dial(cid, port, nil)
	})
}

// SetupInetClient resolves host and dials port across every resolved
// address in turn, the getaddrinfo-style fallback of spec.md §6.
func (s *Session) SetupInetClient(host string, port uint32) error {
	return s.setupClient(context.Background(), func(ctx context.Context) (net.Conn, error) {
		addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, wrapStatus(KindNameNotFound, err, "resolve %s", host)
		}
		if len(addrs) == 0 {
			return nil, statusOf(KindNameNotFound, "no addresses found for %s", host)
		}
		var lastErr error
		for _, ip := range addrs {
			dialer := &net.Dialer{}
			conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(ip.IP.String(), fmt.Sprint(port)))
			if err == nil {
				return conn, nil
			}
			lastErr = err
		}
		return nil, lastErr
	})
}

// SetupPreconnectedClient seeds the session with an already-connected conn
// (e.g. handed down via exec) and uses reconnect for every additional
// connection setup needs to open (spec.md §6).
func (s *Session) SetupPreconnectedClient(conn net.Conn, reconnect func(ctx context.Context) (net.Conn, error)) error {
	used := false
	return s.setupClient(context.Background(), func(ctx context.Context) (net.Conn, error) {
		if !used {
			used = true
			return conn, nil
		}
		return reconnect(ctx)
	})
}

// setupClient implements spec.md §4.5's client-role setup steps 1-7.
func (s *Session) setupClient(ctx context.Context, dial dialFunc) error {
	s.mu.Lock()
	if s.setupDone {
		s.mu.Unlock()
		return wrapStatus(KindInvalidOperation, nil, "session already set up")
	}
	if s.stateMachine == nil {
		s.mu.Unlock()
		return wrapStatus(KindInvalidOperation, nil, "no state machine configured")
	}
	s.role = roleClient
	s.mu.Unlock()

	seed, err := s.connectAndInit(ctx, dial, false)
	if err != nil {
		return err
	}

	resp, err := readNewSessionResponse(ctx, seed.Transport)
	if err != nil {
		return err
	}

	s.mu.Lock()
	local := defaultProtocolVersion
	if s.protocolVersion != nil {
		local = *s.protocolVersion
	}
	s.mu.Unlock()
	negotiated := negotiateVersion(local, resp.Version)

	s.mu.Lock()
	s.protocolVersion = &negotiated
	s.mu.Unlock()

	remoteMaxThreads, err := s.stateMachine.ReadMaxThreads(ctx, seed)
	if err != nil {
		return err
	}
	sessID, err := s.stateMachine.ReadSessionID(ctx, seed)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sessionID = sessID
	s.mu.Unlock()

	// The remaining outgoing connections are independent dials against the
	// same peer; open them concurrently rather than one at a time.
	outgoingGroup, outgoingCtx := errgroup.WithContext(ctx)
	for i := 0; i < remoteMaxThreads-1; i++ {
		outgoingGroup.Go(func() error {
			_, err := s.connectAndInit(outgoingCtx, dial, false)
			return err
		})
	}
	if err := outgoingGroup.Wait(); err != nil {
		return err
	}

	s.mu.Lock()
	localMaxThreads := s.maxThreads
	s.mu.Unlock()
	incomingConns := make([]*Connection, localMaxThreads)
	incomingGroup, incomingCtx := errgroup.WithContext(ctx)
	for i := 0; i < localMaxThreads; i++ {
		i := i
		incomingGroup.Go(func() error {
			conn, err := s.connectAndInit(incomingCtx, dial, true)
			if err != nil {
				return err
			}
			incomingConns[i] = conn
			return nil
		})
	}
	if err := incomingGroup.Wait(); err != nil {
		return err
	}
	for _, conn := range incomingConns {
		s.spawnIncomingWorker(conn)
	}

	s.mu.Lock()
	s.setupDone = true
	s.mu.Unlock()
	return nil
}

// connectAndInit implements spec.md §4.5 step 2: dial with retry, wrap in a
// Transport, write the ConnectionHeader, and push the resulting Connection
// onto the appropriate pool.
func (s *Session) connectAndInit(ctx context.Context, dial dialFunc, incoming bool) (*Connection, error) {
	dialCtx, cancel := context.WithTimeout(ctx, s.dialTimeout)
	defer cancel()
	stopTriggerWatch := context.AfterFunc(s.shutdownTrigger.Context(), cancel)
	defer stopTriggerWatch()

	conn, err := s.dialWithRetry(dialCtx, dial)
	if err != nil {
		return nil, err
	}
	transport := NewTransport(conn, s.shutdownTrigger)

	s.mu.Lock()
	id := s.sessionID
	version := defaultProtocolVersion
	if s.protocolVersion != nil {
		version = *s.protocolVersion
	}
	s.mu.Unlock()

	header := newConnectionHeader(version, incoming, id)
	if err := writeConnectionHeader(ctx, transport, header); err != nil {
		_ = transport.Close()
		return nil, err
	}

	c := newConnection(transport, incoming)
	s.mu.Lock()
	if incoming {
		s.incoming = append(s.incoming, c)
		if len(s.incoming) > s.maxIncomingSeen {
			s.maxIncomingSeen = len(s.incoming)
		}
	} else {
		s.outgoing = append(s.outgoing, c)
	}
	s.mu.Unlock()

	// Whichever side registers a connection as outgoing owns sending the
	// per-connection init frame; the peer's incoming worker consumes it via
	// ReadConnectionInit before entering its command loop (spec.md §4.5).
	if !incoming && s.stateMachine != nil {
		if err := s.stateMachine.SendConnectionInit(ctx, c); err != nil {
			_ = transport.Close()
			return nil, err
		}
	}
	return c, nil
}

// dialWithRetry implements spec.md §4.5 step 2a: retry only on
// ECONNRESET, up to connectRetryMax extra attempts, with a fixed backoff,
// abortable by the shutdown trigger or ctx.
func (s *Session) dialWithRetry(ctx context.Context, dial dialFunc) (net.Conn, error) {
	var lastErr error
	for attempt := 0; attempt <= s.connectRetryMax; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(s.connectRetryBackoff):
			case <-s.shutdownTrigger.Done():
				return nil, ErrCancelled
			case <-ctx.Done():
				return nil, ErrCancelled
			}
		}
		conn, err := dial(ctx)
		if err == nil {
			return conn, nil
		}
		var status *Status
		if errors.As(err, &status) {
			// Already classified (e.g. NameNotFound from resolution) —
			// not a raw connect error, so not retryable.
			return nil, err
		}
		if !errors.Is(err, syscall.ECONNRESET) {
			return nil, wrapStatus(KindIo, err, "connect failed")
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt+1).Msg("connect refused with ECONNRESET, retrying")
	}
	return nil, wrapStatus(KindIo, lastErr, "connect failed after %d attempts", s.connectRetryMax+1)
}

// AddIncomingConnection merges spec.md §4.5's
// assign_incoming_connection_to_this_thread gate with add_incoming_connection:
// it is called by the external listening server once it has accepted a raw
// connection for this session and read its ConnectionHeader.
func (s *Session) AddIncomingConnection(conn net.Conn) error {
	s.mu.Lock()
	if len(s.incoming) >= s.maxThreads {
		s.mu.Unlock()
		return wrapStatus(KindInvalidOperation, nil, "incoming pool already at max threads")
	}
	if len(s.incoming) < s.maxIncomingSeen {
		// Below the high-water mark: a worker has already exited, so the
		// session is draining. spec.md §9 "Possible bug in incoming-pool
		// gate" — this is intentional, not inverted.
		s.mu.Unlock()
		return wrapStatus(KindInvalidOperation, nil, "session is draining, rejecting new incoming connection")
	}
	s.mu.Unlock()

	transport := NewTransport(conn, s.shutdownTrigger)
	c := newConnection(transport, true)

	s.mu.Lock()
	s.incoming = append(s.incoming, c)
	if len(s.incoming) > s.maxIncomingSeen {
		s.maxIncomingSeen = len(s.incoming)
	}
	s.mu.Unlock()

	s.spawnIncomingWorker(c)
	return nil
}

// spawnIncomingWorker starts the worker goroutine and blocks until it has
// taken ownership of c, the rendezvous of spec.md §4.5/§9 ("Rendezvous for
// transport handoff"), implemented as a capacity-0 channel handoff instead
// of the original's condition-variable flag.
func (s *Session) spawnIncomingWorker(c *Connection) {
	ready := make(chan struct{})
	go s.runIncomingWorker(c, ready)
	<-ready
}

// runIncomingWorker is the incoming worker lifecycle of spec.md §4.5.
func (s *Session) runIncomingWorker(c *Connection, ready chan struct{}) {
	id := newCallerID()
	ctx := withCallerID(context.Background(), id)

	s.mu.Lock()
	s.workers[id] = &workerHandle{id: id, conn: c}
	// The worker owns its incoming connection for its whole lifetime, so a
	// nested call issued under id is matched to it by acquire.
	c.acquireFor(id)
	s.mu.Unlock()
	close(ready)

	s.workerHook.onStart()
	defer s.workerHook.onStop()

	if err := s.stateMachine.ReadConnectionInit(ctx, c); err != nil {
		log.Warn().Err(err).Msg("incoming worker failed connection init")
	} else {
		for {
			if err := s.stateMachine.GetAndExecuteCommand(ctx, c); err != nil {
				if !errors.Is(err, ErrCancelled) && !errors.Is(err, ErrDeadObject) {
					log.Warn().Err(err).Msg("incoming worker command loop ended")
				}
				break
			}
		}
	}

	s.mu.Lock()
	delete(s.workers, id)
	s.removeIncomingLocked(c)
	emptyNow := len(s.incoming) == 0
	s.mu.Unlock()

	if emptyNow {
		s.eventListener.OnSessionAllIncomingThreadsEnded(s)
	}
	s.eventListener.OnSessionIncomingThreadEnded()
}

func (s *Session) removeIncomingLocked(c *Connection) {
	for i, conn := range s.incoming {
		if conn == c {
			s.incoming = append(s.incoming[:i], s.incoming[i+1:]...)
			return
		}
	}
}

// Transact implements spec.md §6's transact(): acquire a connection per
// flags, delegate framing to the state machine, release. Also satisfies
// the Caller interface so a command handler running inside
// GetAndExecuteCommand can issue a nested outgoing call.
func (s *Session) Transact(ctx context.Context, ref RemoteRef, code uint32, data []byte, flags uint32) ([]byte, error) {
	ctx, _ = ensureCallerID(ctx)
	use := UseClient
	if flags&FlagOneWay != 0 {
		use = UseClientAsync
	}
	handle, err := s.acquire(ctx, use)
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	if s.stateMachine == nil {
		return nil, wrapStatus(KindInvalidOperation, nil, "no state machine configured")
	}
	return s.stateMachine.Transact(ctx, handle.Connection(), ref, code, data, flags)
}

// SendDecStrong implements spec.md §6's send_dec_strong().
func (s *Session) SendDecStrong(ctx context.Context, ref RemoteRef) error {
	ctx, _ = ensureCallerID(ctx)
	handle, err := s.acquire(ctx, UseClientRefcount)
	if err != nil {
		return err
	}
	defer handle.Release()

	if s.stateMachine == nil {
		return wrapStatus(KindInvalidOperation, nil, "no state machine configured")
	}
	return s.stateMachine.SendDecStrong(ctx, handle.Connection(), ref)
}

// GetRootObject implements spec.md §6's get_root_object().
func (s *Session) GetRootObject(ctx context.Context) (RemoteRef, error) {
	ctx, _ = ensureCallerID(ctx)
	handle, err := s.acquire(ctx, UseClient)
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	if s.stateMachine == nil {
		return nil, wrapStatus(KindInvalidOperation, nil, "no state machine configured")
	}
	return s.stateMachine.RootObject(ctx, handle.Connection())
}

// GetRemoteMaxThreads implements spec.md §6's get_remote_max_threads(),
// which by the round-trip law of spec.md §8 equals len(outgoing).
func (s *Session) GetRemoteMaxThreads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outgoing)
}

// OutgoingConnections reports the current outgoing pool size. Ambient
// accessor for tests and diagnostics, not part of spec.md §6.
func (s *Session) OutgoingConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outgoing)
}

// IncomingConnections reports the current incoming pool size. Ambient
// accessor for tests and diagnostics, not part of spec.md §6.
func (s *Session) IncomingConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.incoming)
}

// SessionID returns the session id negotiated (client) or assigned
// (server) during setup.
func (s *Session) SessionID() SessionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// shutdownWaiter is implemented by the default EventListener so
// ShutdownAndWait can block on it. A caller-supplied EventListener that
// does not implement it falls back to waiting on the trigger alone.
type shutdownWaiter interface {
	waitForShutdown(tag string)
}

// ShutdownAndWait implements spec.md §6's shutdown_and_wait(wait).
func (s *Session) ShutdownAndWait(wait bool) error {
	s.shutdownTrigger.Trigger()

	s.mu.Lock()
	s.cond.Broadcast()
	noIncomingWorkers := len(s.incoming) == 0
	tag := s.diagnosticID
	s.mu.Unlock()
	if tag == "" {
		tag = "session"
	}

	// A session with no incoming workers at all (max_threads=0, or every
	// worker already exited before shutdown) has nothing left to notify
	// OnSessionAllIncomingThreadsEnded on its behalf; fire it here so
	// waitForShutdown below does not block forever waiting for an event
	// that would otherwise never come.
	if noIncomingWorkers {
		s.eventListener.OnSessionAllIncomingThreadsEnded(s)
	}

	if wait {
		if w, ok := s.eventListener.(shutdownWaiter); ok {
			w.waitForShutdown(tag)
		} else {
			<-s.shutdownTrigger.Done()
		}
	}

	if s.stateMachine != nil {
		s.stateMachine.Clear()
	}
	return s.closeAllConnections()
}

// closeAllConnections closes every transport this session holds, collecting
// every failure instead of stopping at the first one, the way
// hashicorp-terraform-ls's walker/document_open accumulate per-file errors
// with go-multierror rather than aborting a batch on the first failure.
func (s *Session) closeAllConnections() error {
	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.incoming)+len(s.outgoing))
	conns = append(conns, s.incoming...)
	conns = append(conns, s.outgoing...)
	s.mu.Unlock()

	var errs *multierror.Error
	for _, c := range conns {
		if c.Transport == nil {
			continue
		}
		if err := c.Transport.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// GetCertificate implements spec.md §6's get_certificate(format), against
// a pluggable CertificateProvider (SPEC_FULL.md §4.5).
func (s *Session) GetCertificate(format string) (string, error) {
	s.mu.Lock()
	p := s.certProvider
	s.mu.Unlock()
	return p.Certificate(format)
}

// AddNullDebuggingConnection supplements the operation list with the
// original's addNullDebuggingClient: a write-only /dev/null outgoing
// connection so a server-only process with no real back-channel can still
// be probed for liveness (SPEC_FULL.md §4.5). Only ever backs a raw, non-TLS
// transport, matching the original's restriction.
func (s *Session) AddNullDebuggingConnection() error {
	f, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		return wrapStatus(KindIo, err, "open %s", os.DevNull)
	}
	c := newConnection(&nullTransport{f: f}, false)

	s.mu.Lock()
	s.outgoing = append(s.outgoing, c)
	s.mu.Unlock()
	return nil
}

// nullTransport backs AddNullDebuggingConnection: writes are discarded to
// /dev/null, reads always fail since nothing will ever reply.
type nullTransport struct{ f *os.File }

func (t *nullTransport) WriteFully(ctx context.Context, buf []byte) error {
	if ctx.Err() != nil {
		return ErrCancelled
	}
	if _, err := t.f.Write(buf); err != nil {
		return wrapStatus(KindIo, err, "write to debugging connection")
	}
	return nil
}

func (t *nullTransport) ReadFully(context.Context, []byte) error {
	return ErrDeadObject
}

func (t *nullTransport) Close() error {
	return t.f.Close()
}
