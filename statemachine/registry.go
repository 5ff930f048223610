package statemachine

import (
	"fmt"
	"os"
	"reflect"
	"unicode"
	"unicode/utf8"
)

// Registry maps a command code to the Service that handles it. It is the
// adapted form of jettyu-gorpc's Handlers: the teacher's map/Register/Has/Del
// never actually implemented ServiceManager's Get, which is the method
// Machine's dispatch loop needs — that is the gap this type closes.
type Registry struct {
	handlers map[uint32]*service
}

// NewRegistry returns an empty command registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[uint32]*service)}
}

// Register installs rcvr — a func(ArgType, *ReplyType) error or
// func(ArgType, *ReplyType, ctx interface{}) error — as the handler for
// code. Re-registering a code replaces its handler.
func (p *Registry) Register(code uint32, rcvr interface{}) error {
	s, err := newService(rcvr)
	if err != nil {
		return err
	}
	p.handlers[code] = s
	return nil
}

func (p *Registry) Has(code uint32) bool {
	_, ok := p.handlers[code]
	return ok
}

func (p *Registry) Del(code uint32) {
	delete(p.handlers, code)
}

func (p *Registry) Range(f func(code uint32, rcvr reflect.Value) bool) {
	for k, v := range p.handlers {
		if !f(k, v.rcvr) {
			break
		}
	}
}

// Get returns a clone of the registered
// service ready for one call, since funcService carries per-call argv/replyv
// state that concurrent commands on different connections must not share.
func (p *Registry) Get(code uint32) (Service, bool) {
	s, ok := p.handlers[code]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

func (p *Registry) CheckContext(ctx reflect.Type) (err error) {
	for k, v := range p.handlers {
		err = v.fType.checkContext(ctx)
		if err != nil {
			err = fmt.Errorf("[%w] method: %v", err, k)
			break
		}
	}
	return
}

type funcType struct {
	funcValue reflect.Value
	ArgType   reflect.Type
	ReplyType reflect.Type
	numIn     int
}

func (p *funcType) checkContext(ctx reflect.Type) (err error) {
	if p.numIn < 3 {
		return
	}
	mt := p.funcValue.Type().In(2)
	if ctx.ConvertibleTo(mt) {
		return
	}
	err = fmt.Errorf("[%w] context' type is %v, but funcType's 3d type is %v",
		os.ErrInvalid, ctx, mt)
	return
}

type service struct {
	rcvr  reflect.Value
	typ   reflect.Type
	fType *funcType
}

func newService(rcvr interface{}) (s *service, err error) {
	s = new(service)
	s.typ = reflect.TypeOf(rcvr)
	s.rcvr = reflect.ValueOf(rcvr)
	s.fType, err = suitableFuncValue(s.rcvr)
	if err != nil {
		return nil, fmt.Errorf("statemachine: register %v: %w", s.typ, err)
	}
	return s, nil
}

func (s *service) Clone() Service {
	return &funcService{fType: s.fType, fn: s.fType.funcValue}
}

func suitableFuncValue(funcValue reflect.Value) (ft *funcType, err error) {
	mtype := funcValue.Type()
	mname := funcValue.Type().Name()
	if mtype.Kind() != reflect.Func {
		return nil, fmt.Errorf("rpc.Register: %v is not a function", mtype)
	}
	if mtype.NumIn() != 2 && mtype.NumIn() != 3 {
		return nil, fmt.Errorf("rpc.Register: method %q has %d input parameters; needs exactly two or three", mname, mtype.NumIn())
	}
	argType := mtype.In(0)
	if !isExportedOrBuiltinType(argType) {
		return nil, fmt.Errorf("rpc.Register: argument type of method %q is not exported: %q", mname, argType)
	}
	replyType := mtype.In(1)
	if replyType.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("rpc.Register: reply type of method %q is not a pointer: %q", mname, replyType)
	}
	if !isExportedOrBuiltinType(replyType) {
		return nil, fmt.Errorf("rpc.Register: reply type of method %q is not exported: %q", mname, replyType)
	}
	if mtype.NumOut() != 1 {
		return nil, fmt.Errorf("rpc.Register: method %q has %d output parameters; needs exactly one", mname, mtype.NumOut())
	}
	if returnType := mtype.Out(0); returnType != typeOfError {
		return nil, fmt.Errorf("rpc.Register: return type of method %q is %q, must be error", mname, returnType)
	}
	return &funcType{funcValue: funcValue, ArgType: argType, ReplyType: replyType, numIn: mtype.NumIn()}, nil
}

var typeOfError = reflect.TypeOf((*error)(nil)).Elem()

func isExportedOrBuiltinType(t reflect.Type) bool {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return isExported(t.Name()) || t.PkgPath() == ""
}

func isExported(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(r)
}
