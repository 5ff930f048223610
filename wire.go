package rpcsession

import (
	"context"
	"encoding/binary"
)

// SessionID is the opaque, fixed-width session identifier of spec.md §3.
// The all-zero value is the sentinel used on the very first handshake.
type SessionID [32]byte

// zeroSessionID is the sentinel session id presented on the seed
// connection, before the remote has assigned a real one.
var zeroSessionID SessionID

func (id SessionID) isZero() bool {
	return id == zeroSessionID
}

// connectionOptionIncoming is bit 0 of ConnectionHeader.Options.
const connectionOptionIncoming uint32 = 1 << 0

const connectionHeaderSize = 4 + 4 + 32 // version + options + sessionId

// ConnectionHeader is written by the connecting side on every new
// connection, client to server, before any other traffic. spec.md §6.
type ConnectionHeader struct {
	Version   uint32
	Options   uint32
	SessionID SessionID
}

func newConnectionHeader(version uint32, incoming bool, id SessionID) ConnectionHeader {
	h := ConnectionHeader{Version: version, SessionID: id}
	if incoming {
		h.Options |= connectionOptionIncoming
	}
	return h
}

func (h ConnectionHeader) isIncoming() bool {
	return h.Options&connectionOptionIncoming != 0
}

func (h ConnectionHeader) marshal() []byte {
	buf := make([]byte, connectionHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Version)
	binary.LittleEndian.PutUint32(buf[4:8], h.Options)
	copy(buf[8:40], h.SessionID[:])
	return buf
}

func unmarshalConnectionHeader(buf []byte) ConnectionHeader {
	var h ConnectionHeader
	h.Version = binary.LittleEndian.Uint32(buf[0:4])
	h.Options = binary.LittleEndian.Uint32(buf[4:8])
	copy(h.SessionID[:], buf[8:40])
	return h
}

func writeConnectionHeader(ctx context.Context, t Transport, h ConnectionHeader) error {
	return t.WriteFully(ctx, h.marshal())
}

func readConnectionHeader(ctx context.Context, t Transport) (ConnectionHeader, error) {
	buf := make([]byte, connectionHeaderSize)
	if err := t.ReadFully(ctx, buf); err != nil {
		return ConnectionHeader{}, err
	}
	return unmarshalConnectionHeader(buf), nil
}

// NewSessionResponse is written by the server on the seed connection only,
// carrying the negotiated protocol version. spec.md §6.
type NewSessionResponse struct {
	Version uint32
}

func writeNewSessionResponse(ctx context.Context, t Transport, version uint32) error {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, version)
	return t.WriteFully(ctx, buf)
}

func readNewSessionResponse(ctx context.Context, t Transport) (NewSessionResponse, error) {
	buf := make([]byte, 4)
	if err := t.ReadFully(ctx, buf); err != nil {
		return NewSessionResponse{}, err
	}
	return NewSessionResponse{Version: binary.LittleEndian.Uint32(buf)}, nil
}

// negotiateVersion implements spec.md §6: "min(client_proposed,
// server_supported)".
func negotiateVersion(clientProposed, serverSupported uint32) uint32 {
	if clientProposed < serverSupported {
		return clientProposed
	}
	return serverSupported
}
