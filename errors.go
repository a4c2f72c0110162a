// Copyright 2026 The luahost Authors
// SPDX-License-Identifier: MIT

package luahost

import (
	"errors"
)

// Kind classifies an [*Error] by where in the bridge lifecycle it arose.
type Kind int

// Error kinds.
const (
	// KindUnknown is the zero Kind,
	// used when a failure cannot be attributed to a more specific kind.
	KindUnknown Kind = iota
	// KindSyntax indicates that the engine could not compile a chunk.
	KindSyntax
	// KindRuntime indicates that a script raised an error
	// during a protected call.
	KindRuntime
	// KindMemory indicates an allocation failure inside the engine.
	KindMemory
	// KindInvalidState indicates an operation on a closed bridge.
	KindInvalidState
	// KindStackUnderflow indicates a pop or read
	// that would reach below the bottom of the value stack.
	KindStackUnderflow
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindSyntax:
		return "syntax error"
	case KindRuntime:
		return "runtime error"
	case KindMemory:
		return "memory error"
	case KindInvalidState:
		return "invalid state"
	case KindStackUnderflow:
		return "stack underflow"
	default:
		return "unknown error"
	}
}

// An Error is a failure reported at the bridge boundary.
// Script-originated failures carry the engine's full diagnostic in Message;
// the bridge never discards or truncates it.
type Error struct {
	// Kind classifies the failure.
	Kind Kind
	// Op is the bridge operation that failed (e.g. "load", "call").
	Op string
	// Message is the human-readable message.
	// For script-originated failures this is the engine's own text.
	Message string
	// Traceback is the Lua call stack at the point of failure,
	// if the failure occurred during a protected call.
	// It may be empty.
	Traceback string
}

// Error returns e's message prefixed with the failed operation.
func (e *Error) Error() string {
	if e.Op == "" {
		return "luahost: " + e.Message
	}
	return "luahost: " + e.Op + ": " + e.Message
}

// ErrorKind reports the kind of err.
// If err is not an [*Error] (even after unwrapping),
// ErrorKind returns [KindUnknown].
func ErrorKind(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return KindUnknown
	}
	return e.Kind
}

// memoryErrorMessage is the diagnostic the engine produces
// when it runs out of memory.
// The engine reports load and call failures as opaque errors,
// so this string is the only way to distinguish an allocation failure
// from an ordinary syntax or runtime error.
const memoryErrorMessage = "not enough memory"

// classify maps an engine failure message to an error kind,
// using fallback for anything that is not an allocation failure.
func classify(msg string, fallback Kind) Kind {
	if msg == memoryErrorMessage {
		return KindMemory
	}
	return fallback
}

func (b *Bridge) newClosedError(op string) *Error {
	return &Error{
		Kind:    KindInvalidState,
		Op:      op,
		Message: "interpreter is closed",
	}
}
