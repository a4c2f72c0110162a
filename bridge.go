// Copyright 2026 The luahost Authors
// SPDX-License-Identifier: MIT

package luahost

import (
	"bytes"
	"fmt"
	"io"
	"slices"

	"zombiezen.com/go/lua"
)

// MultipleReturns is the option for nResults in [Bridge.ProtectedCall]
// to keep every value the called function returns.
const MultipleReturns = lua.MultipleReturns

// Options configure a [Bridge].
// The zero value opens all of the engine's standard libraries
// and discards print output.
type Options struct {
	// Output receives the output of the standard print function.
	// If nil, print output is discarded.
	Output io.Writer
	// Libraries selects which of the engine's standard libraries to open,
	// by the names they are stored under in the global environment
	// ("_G" for the base library).
	// If nil, all standard libraries are opened.
	// If empty, none are.
	//
	// When Libraries is non-nil, the base library's print function
	// writes to the process's standard output regardless of Output:
	// the engine only routes print when opening the full library set.
	Libraries []string
	// DisableLibraries skips opening any standard library,
	// leaving an empty global environment.
	// Equivalent to an empty non-nil Libraries.
	DisableLibraries bool
}

func (opts *Options) output() io.Writer {
	if opts == nil || opts.Output == nil {
		return io.Discard
	}
	return opts.Output
}

// A Bridge owns a single interpreter state
// and mediates all interaction with it.
// The interpreter's value stack is addressed by position:
// 1 is the bottom of the stack and -1 is the top.
// Indices are invalidated by any push or pop.
//
// A Bridge is not safe for concurrent use.
// Confine it to a single goroutine for its entire lifetime,
// or serialize access externally.
// Run independent bridges (see [Pool]) for concurrency.
type Bridge struct {
	l      lua.State
	closed bool
}

// New returns a bridge with a fresh interpreter state.
func New(opts *Options) (*Bridge, error) {
	b := new(Bridge)
	switch {
	case opts != nil && opts.DisableLibraries:
		// Leave the environment empty.
	case opts != nil && opts.Libraries != nil:
		for _, name := range slices.Compact(slices.Sorted(slices.Values(opts.Libraries))) {
			if err := b.openLibrary(name); err != nil {
				b.l.Close()
				return nil, fmt.Errorf("luahost: new bridge: %v", err)
			}
		}
	default:
		if err := lua.OpenLibraries(&b.l, opts.output()); err != nil {
			b.l.Close()
			return nil, fmt.Errorf("luahost: new bridge: %v", err)
		}
	}
	return b, nil
}

// libraryOpeners maps a standard library's global name
// to the function that pushes its loader.
// The engine does not expose loaders for the io and os libraries.
var libraryOpeners = map[string]func(*lua.State){
	lua.GName:                lua.PushOpenBase,
	lua.CoroutineLibraryName: lua.PushOpenCoroutine,
	lua.TableLibraryName:     lua.PushOpenTable,
	lua.StringLibraryName:    lua.PushOpenString,
	lua.UTF8LibraryName:      lua.PushOpenUTF8,
	lua.MathLibraryName:      lua.PushOpenMath,
	lua.DebugLibraryName:     lua.PushOpenDebug,
	lua.PackageLibraryName:   lua.PushOpenPackage,
}

// openLibrary opens the named standard library
// and stores its table in the global environment.
// Stack effect: none.
func (b *Bridge) openLibrary(name string) error {
	push, ok := libraryOpeners[name]
	if !ok {
		return fmt.Errorf("open library %q: unknown library", name)
	}
	if !b.l.CheckStack(2) {
		return fmt.Errorf("open library %q: stack overflow", name)
	}
	push(&b.l)
	b.l.PushString(name)
	if err := b.l.Call(1, 1, 0); err != nil {
		msg, _ := b.l.ToString(-1)
		b.l.Pop(1)
		return fmt.Errorf("open library %q: %s", name, msg)
	}
	if name == lua.GName {
		// The base library loader returns the global table itself.
		b.l.Pop(1)
		return nil
	}
	if err := b.l.SetGlobal(name, 0); err != nil {
		return fmt.Errorf("open library %q: %v", name, err)
	}
	return nil
}

// Close releases the interpreter state.
// Close is idempotent;
// every other operation on a closed bridge
// fails with a [KindInvalidState] error.
func (b *Bridge) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	return b.l.Close()
}

// Load compiles a chunk of textual Lua source read from r
// and pushes the resulting function onto the stack.
// chunkName names the chunk in error messages and tracebacks.
// Stack effect: +1 on success, none on failure.
func (b *Bridge) Load(r io.Reader, chunkName string) error {
	if b.closed {
		return b.newClosedError("load")
	}
	if err := b.l.Load(r, chunkName, "t"); err != nil {
		return b.popLoadError()
	}
	return nil
}

// LoadString is [Bridge.Load] for an in-memory source string.
func (b *Bridge) LoadString(source, chunkName string) error {
	if b.closed {
		return b.newClosedError("load")
	}
	if err := b.l.LoadString(source, chunkName, "t"); err != nil {
		return b.popLoadError()
	}
	return nil
}

// loadBinary loads a precompiled chunk previously produced by [Bridge.Dump].
// Stack effect: +1 on success, none on failure.
func (b *Bridge) loadBinary(chunk []byte, chunkName string) error {
	if b.closed {
		return b.newClosedError("load")
	}
	if err := b.l.Load(bytes.NewReader(chunk), chunkName, "b"); err != nil {
		return b.popLoadError()
	}
	return nil
}

// popLoadError removes the error value a failed load pushed
// and converts it to an [*Error].
func (b *Bridge) popLoadError() error {
	msg, _ := b.l.ToString(-1)
	b.l.Pop(1)
	return &Error{
		Kind:    classify(msg, KindSyntax),
		Op:      "load",
		Message: msg,
	}
}

// Dump writes the top of the stack
// (which must be a function compiled by the engine)
// to w as a precompiled binary chunk.
// Stack effect: none.
func (b *Bridge) Dump(w io.Writer) (int64, error) {
	if b.closed {
		return 0, b.newClosedError("dump")
	}
	if b.l.Top() < 1 || !b.l.IsFunction(-1) {
		return 0, &Error{
			Kind:    KindStackUnderflow,
			Op:      "dump",
			Message: "top of stack is not a function",
		}
	}
	n, err := b.l.Dump(w, false)
	if err != nil {
		return n, &Error{
			Kind:    classify(err.Error(), KindUnknown),
			Op:      "dump",
			Message: err.Error(),
		}
	}
	return n, nil
}

// PushArgument pushes a single scalar value onto the stack.
// Supported types are nil, bool, int, int64, float64, and string;
// any other type is an error and the stack is left unchanged.
// Stack effect: +1 on success.
func (b *Bridge) PushArgument(v any) error {
	if b.closed {
		return b.newClosedError("push")
	}
	if !b.l.CheckStack(1) {
		return &Error{Kind: KindMemory, Op: "push", Message: "stack overflow"}
	}
	return pushValue(&b.l, v)
}

// Global pushes the value of the named global variable onto the stack.
// Stack effect: +1 on success, none on failure.
func (b *Bridge) Global(name string) error {
	if b.closed {
		return b.newClosedError("global")
	}
	if !b.l.CheckStack(1) {
		return &Error{Kind: KindMemory, Op: "global", Message: "stack overflow"}
	}
	if _, err := b.l.Global(name, 0); err != nil {
		// A metamethod raised an error during lookup;
		// the error value replaced the result.
		msg, _ := b.l.ToString(-1)
		b.l.Pop(1)
		return &Error{
			Kind:    classify(msg, KindRuntime),
			Op:      "global",
			Message: msg,
		}
	}
	return nil
}

// IsCallable reports whether the value at the given stack index
// is invocable, without mutating the stack.
// Out-of-range indices report false.
func (b *Bridge) IsCallable(idx int) bool {
	if b.closed || !b.indexInRange(idx) {
		return false
	}
	return b.l.IsFunction(idx)
}

// ProtectedCall invokes the function beneath nArgs argument values
// on the stack inside the engine's protected-call mechanism.
// A message handler is installed for the duration of the call
// so that runtime errors carry a traceback.
//
// On success, exactly nResults values are left on the stack
// (the engine pads with nil or discards extras as needed),
// or every returned value if nResults is [MultipleReturns].
// On failure, exactly one value (the error) is left on the stack
// and a [KindRuntime] (or [KindMemory]) error is returned;
// script errors never unwind past the bridge as a panic.
func (b *Bridge) ProtectedCall(nArgs, nResults int) error {
	if b.closed {
		return b.newClosedError("call")
	}
	if nArgs < 0 {
		return &Error{Kind: KindStackUnderflow, Op: "call", Message: fmt.Sprintf("negative argument count %d", nArgs)}
	}
	if nResults < 0 && nResults != MultipleReturns {
		return &Error{Kind: KindStackUnderflow, Op: "call", Message: fmt.Sprintf("negative result count %d", nResults)}
	}
	if b.l.Top() < nArgs+1 {
		return &Error{
			Kind:    KindStackUnderflow,
			Op:      "call",
			Message: fmt.Sprintf("%d arguments exceed stack depth %d", nArgs, b.l.Top()),
		}
	}
	grow := 2
	if nResults != MultipleReturns && nResults > nArgs+1 {
		grow += nResults - (nArgs + 1)
	}
	if !b.l.CheckStack(grow) {
		return &Error{Kind: KindMemory, Op: "call", Message: "stack overflow"}
	}

	// Insert the message handler beneath the function.
	base := b.l.Top() - nArgs
	b.l.PushClosure(0, messageHandler)
	b.l.Rotate(base, 1)

	err := b.l.Call(nArgs, nResults, base)
	b.l.Remove(base)
	if err != nil {
		// The handler's result is the sole value left on the stack.
		msg, _ := b.l.ToString(-1)
		plain, traceback := splitTraceback(msg)
		return &Error{
			Kind:      classify(plain, KindRuntime),
			Op:        "call",
			Message:   plain,
			Traceback: traceback,
		}
	}
	return nil
}

// ReadNumber reads the value at the given stack index
// coerced to a number per the engine's rules
// (numeric strings convert automatically).
// If the value has no numeric coercion or the index is out of range,
// ReadNumber returns 0 rather than an error:
// this mirrors the engine's own lenient tonumber semantics,
// which callers may rely on.
// Stack effect: none.
func (b *Bridge) ReadNumber(idx int) float64 {
	if b.closed || !b.indexInRange(idx) {
		return 0
	}
	n, _ := b.l.ToNumber(idx)
	return n
}

// ReadString reads the value at the given stack index
// coerced to its textual representation.
// The second return value reports whether the slot
// held a string or a number;
// values with no string coercion (and out-of-range indices)
// yield ("", false).
//
// The returned string is a copy owned by the caller;
// it remains valid after further stack mutation.
// Note that, as in the engine itself,
// coercing a number slot converts the value on the stack to a string.
// Stack effect: none.
func (b *Bridge) ReadString(idx int) (string, bool) {
	if b.closed || !b.indexInRange(idx) {
		return "", false
	}
	return b.l.ToString(idx)
}

// ReadValue reads the value at the given stack index
// as a Go value: nil, bool, int64, float64, or string.
// Values of any other type (and out-of-range indices) read as nil.
// Unlike [Bridge.ReadString], ReadValue never mutates the stack slot.
func (b *Bridge) ReadValue(idx int) any {
	if b.closed || !b.indexInRange(idx) {
		return nil
	}
	return readValue(&b.l, idx)
}

// Pop removes the top n values from the stack.
// Pop(0) is a no-op.
// Popping more values than the stack holds
// fails with a [KindStackUnderflow] error
// instead of corrupting the interpreter.
func (b *Bridge) Pop(n int) error {
	if b.closed {
		return b.newClosedError("pop")
	}
	switch {
	case n == 0:
		return nil
	case n < 0 || n > b.l.Top():
		return &Error{
			Kind:    KindStackUnderflow,
			Op:      "pop",
			Message: fmt.Sprintf("pop %d values from stack of depth %d", n, b.l.Top()),
		}
	}
	b.l.Pop(n)
	return nil
}

// Top returns the number of values on the stack.
// Top returns 0 on a closed bridge.
func (b *Bridge) Top() int {
	if b.closed {
		return 0
	}
	return b.l.Top()
}

// indexInRange reports whether idx addresses an occupied stack slot.
func (b *Bridge) indexInRange(idx int) bool {
	if idx < 0 {
		idx = -idx
	}
	return 1 <= idx && idx <= b.l.Top()
}
