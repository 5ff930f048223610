package statemachine

import "errors"

var (
	// ErrUnknownCode's message is sent back in the error reply when the
	// peer has no handler registered for the command code it received.
	ErrUnknownCode = errors.New("statemachine: no handler registered for command")
	// ErrUnknownRef's message is sent back in the error reply to a
	// root-object request when no root was set with SetRoot.
	ErrUnknownRef = errors.New("statemachine: unknown remote reference")
)
