// Copyright 2026 The luahost Authors
// SPDX-License-Identifier: MIT

package luahost

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// errPoolClosed is returned by [Pool.Acquire] after [Pool.Close].
var errPoolClosed = errors.New("luahost: pool is closed")

// A Pool holds a fixed number of pre-initialized bridges.
// Between Acquire and Release, a bridge is exclusively owned
// by the acquiring goroutine,
// which satisfies the single-writer requirement of the interpreter state.
type Pool struct {
	bridges chan *Bridge
	done    chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewPool creates size bridges, each configured with opts.
// If any bridge fails to initialize,
// the ones already created are closed.
func NewPool(size int, opts *Options) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("luahost: new pool: size %d out of range", size)
	}
	p := &Pool{
		bridges: make(chan *Bridge, size),
		done:    make(chan struct{}),
	}
	for i := 0; i < size; i++ {
		b, err := New(opts)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("luahost: new pool: bridge %d: %v", i, err)
		}
		p.bridges <- b
	}
	return p, nil
}

// Acquire obtains a bridge for exclusive use by the calling goroutine.
// It blocks until a bridge is idle, ctx is done, or the pool is closed.
// The caller must hand the bridge back with [Pool.Release].
func (p *Pool) Acquire(ctx context.Context) (*Bridge, error) {
	select {
	case b := <-p.bridges:
		return b, nil
	case <-p.done:
		return nil, errPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a bridge obtained from [Pool.Acquire].
// If the pool has been closed in the meantime,
// the bridge is closed instead of re-queued.
func (p *Pool) Release(b *Bridge) {
	if b == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		b.Close()
		return
	}
	p.bridges <- b
}

// Close tears down every idle bridge and unblocks pending Acquires.
// Bridges still leased out are closed when they are released.
// Close is idempotent.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.done)

	var firstErr error
	for {
		select {
		case b := <-p.bridges:
			if err := b.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		default:
			return firstErr
		}
	}
}
