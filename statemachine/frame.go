package statemachine

import (
	"context"
	"encoding/binary"

	"github.com/binderpc/rpcsession"
)

// Frame kinds. Grounded on rpcsession/wire.go's ConnectionHeader/
// NewSessionResponse style of fixed-width little-endian fields rather than
// the teacher's io.ReadWriteCloser-oriented ServerCodec/ClientCodec, since
// Transport exposes WriteFully/ReadFully over exact byte counts, not an
// io.Reader/Writer a json.Decoder could be handed directly.
const (
	frameKindCall        uint32 = 1
	frameKindReply       uint32 = 2
	frameKindDecStrong   uint32 = 3
	frameKindRootRequest uint32 = 4
	frameKindConnInit    uint32 = 5
)

const flagIsErr uint32 = 1 << 16

type frame struct {
	kind    uint32
	seq     uint32
	code    uint32
	flags   uint32
	ref     []byte
	payload []byte
}

func writeFrame(ctx context.Context, t rpcsession.Transport, f frame) error {
	head := make([]byte, 24)
	binary.LittleEndian.PutUint32(head[0:4], f.kind)
	binary.LittleEndian.PutUint32(head[4:8], f.seq)
	binary.LittleEndian.PutUint32(head[8:12], f.code)
	binary.LittleEndian.PutUint32(head[12:16], f.flags)
	binary.LittleEndian.PutUint32(head[16:20], uint32(len(f.ref)))
	binary.LittleEndian.PutUint32(head[20:24], uint32(len(f.payload)))
	if err := t.WriteFully(ctx, head); err != nil {
		return err
	}
	if len(f.ref) > 0 {
		if err := t.WriteFully(ctx, f.ref); err != nil {
			return err
		}
	}
	if len(f.payload) > 0 {
		if err := t.WriteFully(ctx, f.payload); err != nil {
			return err
		}
	}
	return nil
}

func readFrame(ctx context.Context, t rpcsession.Transport) (frame, error) {
	head := make([]byte, 24)
	if err := t.ReadFully(ctx, head); err != nil {
		return frame{}, err
	}
	f := frame{
		kind:  binary.LittleEndian.Uint32(head[0:4]),
		seq:   binary.LittleEndian.Uint32(head[4:8]),
		code:  binary.LittleEndian.Uint32(head[8:12]),
		flags: binary.LittleEndian.Uint32(head[12:16]),
	}
	refLen := binary.LittleEndian.Uint32(head[16:20])
	payloadLen := binary.LittleEndian.Uint32(head[20:24])
	if refLen > 0 {
		f.ref = make([]byte, refLen)
		if err := t.ReadFully(ctx, f.ref); err != nil {
			return frame{}, err
		}
	}
	if payloadLen > 0 {
		f.payload = make([]byte, payloadLen)
		if err := t.ReadFully(ctx, f.payload); err != nil {
			return frame{}, err
		}
	}
	return f, nil
}
