package rpcsession

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionHeaderRoundTrip(t *testing.T) {
	var id SessionID
	copy(id[:], "0123456789abcdef0123456789abcdef")

	h := newConnectionHeader(7, true, id)
	buf := h.marshal()
	require.Len(t, buf, connectionHeaderSize)

	got := unmarshalConnectionHeader(buf)
	assert.Equal(t, h, got)
	assert.True(t, got.isIncoming())
}

func TestConnectionHeaderOutgoingClearsIncomingBit(t *testing.T) {
	h := newConnectionHeader(1, false, zeroSessionID)
	assert.False(t, h.isIncoming())
	assert.True(t, h.SessionID.isZero())
}

func TestNewSessionResponseRoundTrip(t *testing.T) {
	local, remote := newPipeConnPair()
	defer local.Close()
	defer remote.Close()

	trig := NewShutdownTrigger()
	serverSide := NewTransport(local, trig)
	clientSide := NewTransport(remote, trig)

	writeErr := make(chan error, 1)
	go func() { writeErr <- writeNewSessionResponse(newTestContext(), serverSide, 3) }()

	resp, err := readNewSessionResponse(newTestContext(), clientSide)
	require.NoError(t, err)
	require.NoError(t, <-writeErr)
	assert.Equal(t, uint32(3), resp.Version)
}

func TestNegotiateVersionTakesMinimum(t *testing.T) {
	assert.Equal(t, uint32(2), negotiateVersion(2, 5))
	assert.Equal(t, uint32(2), negotiateVersion(5, 2))
	assert.Equal(t, uint32(3), negotiateVersion(3, 3))
}
