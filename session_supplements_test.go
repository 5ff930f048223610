package rpcsession

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAddNullDebuggingConnectionOnServerOnlySession checks that a session
// with no real outgoing connection yet can still open a /dev/null debugging
// connection, which then counts as its one outgoing connection.
func TestAddNullDebuggingConnectionOnServerOnlySession(t *testing.T) {
	s := Make()
	require.Equal(t, 0, s.OutgoingConnections())

	require.NoError(t, s.AddNullDebuggingConnection())

	assert.Equal(t, 1, s.OutgoingConnections())
}

// fakeCertProvider is a minimal CertificateProvider test double.
type fakeCertProvider struct {
	cert string
	err  error
}

func (p fakeCertProvider) Certificate(string) (string, error) {
	return p.cert, p.err
}

func TestGetCertificateDefaultsToInvalidOperation(t *testing.T) {
	s := Make()

	_, err := s.GetCertificate("x509")
	var status *Status
	require.ErrorAs(t, err, &status)
	assert.Equal(t, KindInvalidOperation, status.Kind)
}

func TestGetCertificateUsesConfiguredProvider(t *testing.T) {
	s := Make()
	s.SetCertificateProvider(fakeCertProvider{cert: "pem-bytes"})

	cert, err := s.GetCertificate("x509")
	require.NoError(t, err)
	assert.Equal(t, "pem-bytes", cert)
}

// TestWorkerLifecycleHookFiresAroundWorker matches SPEC_FULL.md §9's
// ambient-runtime-attachment supplement: OnWorkerStart/OnWorkerStop must
// bracket an incoming worker's lifetime, the way the original's
// JavaThreadAttacher wraps managed-runtime thread attach/detach.
func TestWorkerLifecycleHookFiresAroundWorker(t *testing.T) {
	s := Make()
	s.SetStateMachine(&fakeStateMachine{})
	require.NoError(t, s.SetMaxThreads(1))

	var started, stopped int32
	stopSeenBeforeStart := false
	s.SetWorkerLifecycleHook(WorkerLifecycleHook{
		OnWorkerStart: func() { atomic.AddInt32(&started, 1) },
		OnWorkerStop: func() {
			if atomic.LoadInt32(&started) == 0 {
				stopSeenBeforeStart = true
			}
			atomic.AddInt32(&stopped, 1)
		},
	})

	local, _ := newPipeConnPair()
	require.NoError(t, s.AddIncomingConnection(local))

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&stopped) == 1
	}, time.Second, time.Millisecond)

	assert.Equal(t, int32(1), atomic.LoadInt32(&started))
	assert.False(t, stopSeenBeforeStart)
}
