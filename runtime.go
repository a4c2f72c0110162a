// Copyright 2026 The luahost Authors
// SPDX-License-Identifier: MIT

package luahost

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"
	"zombiezen.com/go/log"
	"zombiezen.com/go/luahost/internal/chunkcache"
	"zombiezen.com/go/xcontext"
)

// Config configures a [Runtime].
type Config struct {
	// PoolSize is the number of interpreter states to run.
	// Values less than 1 mean 1.
	PoolSize int
	// CacheDB is the path to the precompiled chunk cache database.
	// Empty disables caching.
	CacheDB string
	// Output receives script print output (see [Options.Output]).
	Output io.Writer
	// Libraries selects the standard libraries to open
	// (see [Options.Libraries]).
	Libraries []string
}

// A Runtime executes Lua scripts on a pool of interpreter states.
// Unlike [Bridge], a Runtime is safe for concurrent use:
// each script runs on a bridge confined to the executing goroutine.
type Runtime struct {
	pool  *Pool
	cache *chunkcache.Cache

	mu     sync.RWMutex
	closed bool
}

// NewRuntime returns a runtime with cfg.PoolSize fresh interpreter states.
func NewRuntime(cfg *Config) (*Runtime, error) {
	size := 1
	var opts *Options
	if cfg != nil {
		if cfg.PoolSize > size {
			size = cfg.PoolSize
		}
		opts = &Options{
			Output:    cfg.Output,
			Libraries: cfg.Libraries,
		}
	}
	pool, err := NewPool(size, opts)
	if err != nil {
		return nil, fmt.Errorf("luahost: new runtime: %v", err)
	}
	r := &Runtime{pool: pool}
	if cfg != nil && cfg.CacheDB != "" {
		r.cache, err = chunkcache.Open(cfg.CacheDB)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("luahost: new runtime: %v", err)
		}
	}
	return r, nil
}

// Execute compiles and runs a chunk of Lua source,
// passing args to the chunk as varargs,
// and returns the chunk's first return value as a Go scalar
// (nil if the chunk returns nothing).
//
// A protected call runs to completion once started:
// if ctx is done before the script finishes,
// Execute returns ctx.Err() immediately,
// but the interpreter running the script
// rejoins the pool only after the script ends.
func (r *Runtime) Execute(ctx context.Context, source string, args ...any) (any, error) {
	return r.run(ctx, func(ctx context.Context, b *Bridge) (any, error) {
		if err := r.loadChunk(ctx, b, source, source); err != nil {
			return nil, err
		}
		return callLoaded(b, args)
	})
}

// ExecuteFile is [Runtime.Execute] for a script file.
// Diagnostics and tracebacks refer to the file by path.
func (r *Runtime) ExecuteFile(ctx context.Context, path string, args ...any) (any, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return r.run(ctx, func(ctx context.Context, b *Bridge) (any, error) {
		if err := r.loadChunk(ctx, b, string(source), "@"+path); err != nil {
			return nil, err
		}
		return callLoaded(b, args)
	})
}

// CallGlobal invokes the named global function with the given scalar
// arguments and returns its first return value.
// Calling a name that is not bound to an invocable value
// fails with a [KindRuntime] error.
//
// Globals are per-interpreter-state:
// with a pool larger than 1,
// a global defined by a previous Execute
// is only visible if the call lands on the same interpreter.
func (r *Runtime) CallGlobal(ctx context.Context, name string, args ...any) (any, error) {
	return r.run(ctx, func(ctx context.Context, b *Bridge) (any, error) {
		if err := b.Global(name); err != nil {
			return nil, err
		}
		if !b.IsCallable(-1) {
			b.Pop(1)
			return nil, &Error{
				Kind:    KindRuntime,
				Op:      "call",
				Message: fmt.Sprintf("global %q is not a function", name),
			}
		}
		return callLoaded(b, args)
	})
}

// run acquires a bridge and executes f on it in a separate goroutine
// so that the caller can honor context cancellation.
func (r *Runtime) run(ctx context.Context, f func(context.Context, *Bridge) (any, error)) (any, error) {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, &Error{Kind: KindInvalidState, Op: "run", Message: "runtime is closed"}
	}
	r.mu.RUnlock()

	b, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	runID := uuid.New()
	log.Debugf(ctx, "lua run %v: started", runID)

	type outcome struct {
		value any
		err   error
	}
	ch := make(chan outcome, 1)
	go func() {
		value, err := f(ctx, b)
		ch <- outcome{value, err}
	}()

	select {
	case out := <-ch:
		r.pool.Release(b)
		if out.err != nil {
			log.Debugf(ctx, "lua run %v: %v", runID, out.err)
			return nil, out.err
		}
		log.Debugf(ctx, "lua run %v: finished", runID)
		return out.value, nil
	case <-ctx.Done():
		// The script cannot be interrupted mid-call.
		// Reclaim the interpreter once it finishes.
		cleanupCtx := xcontext.Detach(ctx)
		go func() {
			out := <-ch
			if out.err != nil {
				log.Debugf(cleanupCtx, "lua run %v (abandoned): %v", runID, out.err)
			} else {
				log.Debugf(cleanupCtx, "lua run %v (abandoned): finished", runID)
			}
			r.pool.Release(b)
		}()
		return nil, ctx.Err()
	}
}

// loadChunk pushes the compiled form of source onto b's stack,
// consulting the precompiled chunk cache when one is configured.
// Cache failures fall back to compiling from source.
func (r *Runtime) loadChunk(ctx context.Context, b *Bridge, source, chunkName string) error {
	if r.cache == nil {
		return b.LoadString(source, chunkName)
	}

	sum := sha256.Sum256([]byte(source))
	key := hex.EncodeToString(sum[:])
	chunk, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		log.Warnf(ctx, "chunk cache read: %v", err)
	} else if ok {
		if err := b.loadBinary(chunk, chunkName); err == nil {
			return nil
		}
		// A stale or corrupt entry; recompile below.
		log.Debugf(ctx, "chunk cache entry %s unusable; recompiling", key)
	}

	if err := b.LoadString(source, chunkName); err != nil {
		return err
	}
	buf := new(bytes.Buffer)
	if _, err := b.Dump(buf); err != nil {
		log.Warnf(ctx, "precompile chunk: %v", err)
		return nil
	}
	if err := r.cache.Put(ctx, key, chunkName, buf.Bytes()); err != nil {
		log.Warnf(ctx, "chunk cache write: %v", err)
	}
	return nil
}

// callLoaded calls the chunk on top of b's stack with args
// and pops its single result off the stack.
// Whatever a failed step leaves behind (pushed arguments,
// the error value of the protected call) is popped
// so that the bridge returns to the pool with a balanced stack.
func callLoaded(b *Bridge, args []any) (any, error) {
	base := b.Top() - 1
	restore := func() {
		if n := b.Top() - base; n > 0 {
			b.Pop(n)
		}
	}
	for _, arg := range args {
		if err := b.PushArgument(arg); err != nil {
			restore()
			return nil, err
		}
	}
	if err := b.ProtectedCall(len(args), 1); err != nil {
		restore()
		return nil, err
	}
	value := b.ReadValue(-1)
	b.Pop(1)
	return value, nil
}

// Close tears down the interpreter pool and the chunk cache.
// Close is idempotent;
// Execute and CallGlobal fail with a [KindInvalidState] error afterward.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	err := r.pool.Close()
	if r.cache != nil {
		if cerr := r.cache.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
