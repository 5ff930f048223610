package statemachine

import (
	"context"
	"net"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binderpc/rpcsession"
)

// newConnPair mirrors jettyu-gorpc's gorpc_test.go's use of a connected
// pipe pair, wrapping each end in a Connection the way Session would.
func newConnPair(t *testing.T) (client, server *rpcsession.Connection) {
	t.Helper()
	c, s := net.Pipe()
	trig := rpcsession.NewShutdownTrigger()
	t.Cleanup(func() { trig.Trigger() })
	client = &rpcsession.Connection{Transport: rpcsession.NewTransport(c, trig)}
	server = &rpcsession.Connection{Transport: rpcsession.NewTransport(s, trig)}
	return
}

type IncrArgs struct{ N int32 }
type IncrReply struct{ Total int32 }

func TestMachineCallRoundTrip(t *testing.T) {
	client, server := newConnPair(t)

	var total int32
	registry := NewRegistry()
	require.NoError(t, registry.Register(1, func(a IncrArgs, r *IncrReply) error {
		r.Total = atomic.AddInt32(&total, a.N)
		return nil
	}))
	m := NewMachine(registry)
	require.NoError(t, m.Validate())

	serverErr := make(chan error, 1)
	go func() { serverErr <- m.GetAndExecuteCommand(context.Background(), server) }()

	reply, err := m.Transact(context.Background(), client, "root", 1, []byte(`{"N":3}`), 0)
	require.NoError(t, err)
	require.NoError(t, <-serverErr)
	assert.JSONEq(t, `{"Total":3}`, string(reply))
}

func TestMachineUnknownCodeReturnsErrorReply(t *testing.T) {
	client, server := newConnPair(t)
	m := NewMachine(NewRegistry())

	serverErr := make(chan error, 1)
	go func() { serverErr <- m.GetAndExecuteCommand(context.Background(), server) }()

	_, err := m.Transact(context.Background(), client, "root", 99, nil, 0)
	require.NoError(t, <-serverErr)
	assert.ErrorContains(t, err, "no handler registered")
}

func TestMachineRootObjectWithoutSetRootFails(t *testing.T) {
	client, server := newConnPair(t)
	m := NewMachine(NewRegistry())

	serverErr := make(chan error, 1)
	go func() { serverErr <- m.GetAndExecuteCommand(context.Background(), server) }()

	_, err := m.RootObject(context.Background(), client)
	require.NoError(t, <-serverErr)
	assert.ErrorContains(t, err, "unknown remote reference")
}

func TestMachineOneWayCallGetsNoReply(t *testing.T) {
	client, server := newConnPair(t)

	called := make(chan struct{}, 1)
	registry := NewRegistry()
	require.NoError(t, registry.Register(5, func(a IncrArgs, r *IncrReply) error {
		called <- struct{}{}
		return nil
	}))
	m := NewMachine(registry)

	serverErr := make(chan error, 1)
	go func() { serverErr <- m.GetAndExecuteCommand(context.Background(), server) }()

	reply, err := m.Transact(context.Background(), client, "root", 5, []byte(`{"N":1}`), rpcsession.FlagOneWay)
	require.NoError(t, err)
	assert.Nil(t, reply)
	require.NoError(t, <-serverErr)
	<-called
}

func TestMachineRootObjectRoundTrip(t *testing.T) {
	client, server := newConnPair(t)
	m := NewMachine(NewRegistry()).SetRoot("the-root")

	serverErr := make(chan error, 1)
	go func() { serverErr <- m.GetAndExecuteCommand(context.Background(), server) }()

	ref, err := m.RootObject(context.Background(), client)
	require.NoError(t, err)
	require.NoError(t, <-serverErr)
	assert.Equal(t, "the-root", ref)
}

func TestMachineSendDecStrongIsOneWay(t *testing.T) {
	client, server := newConnPair(t)
	m := NewMachine(NewRegistry()).SetRoot("the-root")

	serverErr := make(chan error, 1)
	go func() { serverErr <- m.GetAndExecuteCommand(context.Background(), server) }()

	require.NoError(t, m.SendDecStrong(context.Background(), client, "the-root"))
	require.NoError(t, <-serverErr)

	m.mu.Lock()
	_, stillTracked := m.objects["the-root"]
	m.mu.Unlock()
	assert.False(t, stillTracked)
}

func TestMachineConnectionInitRoundTrip(t *testing.T) {
	client, server := newConnPair(t)
	m := NewMachine(NewRegistry())

	done := make(chan error, 1)
	go func() { done <- m.SendConnectionInit(context.Background(), client) }()

	require.NoError(t, m.ReadConnectionInit(context.Background(), server))
	require.NoError(t, <-done)
}

func TestMachineSetupInfoRoundTrip(t *testing.T) {
	client, server := newConnPair(t)
	m := NewMachine(NewRegistry())

	id := rpcsession.SessionID{}
	id[0] = 9

	done := make(chan error, 1)
	go func() { done <- m.WriteSetupInfo(context.Background(), server, 4, id) }()

	maxThreads, err := m.ReadMaxThreads(context.Background(), client)
	require.NoError(t, err)
	assert.Equal(t, 4, maxThreads)

	gotID, err := m.ReadSessionID(context.Background(), client)
	require.NoError(t, err)
	assert.Equal(t, id, gotID)
	require.NoError(t, <-done)
}
