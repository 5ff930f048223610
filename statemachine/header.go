package statemachine

import "fmt"

// Header is the per-call envelope passed to a registered handler's optional
// third argument, mirroring jettyu-gorpc's Header/header. Frame framing
// itself lives in frame.go; Header only carries the metadata a handler
// might want to inspect (sequence number, command code, remote reference).
type Header interface {
	Seq() uint32
	Method() uint32
	Ref() string
	String() string
}

type header struct {
	seq    uint32
	method uint32
	ref    string
}

func newHeader(seq, method uint32, ref string) Header {
	return &header{seq: seq, method: method, ref: ref}
}

func (h *header) Seq() uint32    { return h.seq }
func (h *header) Method() uint32 { return h.method }
func (h *header) Ref() string    { return h.ref }

func (h *header) String() string {
	return fmt.Sprintf(`{"seq":%d,"code":%d,"ref":%q}`, h.seq, h.method, h.ref)
}
