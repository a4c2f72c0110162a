// Copyright 2026 The luahost Authors
// SPDX-License-Identifier: MIT

package luahost

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"zombiezen.com/go/luahost/internal/testcontext"
)

func newTestRuntime(t *testing.T, cfg *Config) *Runtime {
	t.Helper()
	rt, err := NewRuntime(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := rt.Close(); err != nil {
			t.Error("Close:", err)
		}
	})
	return rt
}

func TestExecute(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()
	rt := newTestRuntime(t, nil)

	tests := []struct {
		source string
		args   []any
		want   any
	}{
		{source: "return 2 + 3", want: int64(5)},
		{source: "return 2.5 + 2.5", want: float64(5)},
		{source: "return 'con' .. 'cat'", want: "concat"},
		{source: "return 1 == 1", want: true},
		{source: "return nil", want: nil},
		{source: "local x = 1", want: nil},
		{source: "local a, b = ...; return a * b", args: []any{int64(6), int64(7)}, want: int64(42)},
		{source: "return select('#', ...)", args: []any{nil, true, "x"}, want: int64(3)},
	}
	for _, test := range tests {
		got, err := rt.Execute(ctx, test.source, test.args...)
		if err != nil {
			t.Errorf("Execute(%q): %v", test.source, err)
			continue
		}
		if diff := cmp.Diff(test.want, got); diff != "" {
			t.Errorf("Execute(%q) (-want +got):\n%s", test.source, diff)
		}
	}
}

func TestExecuteErrors(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()
	rt := newTestRuntime(t, nil)

	t.Run("Syntax", func(t *testing.T) {
		_, err := rt.Execute(ctx, "return (")
		if got, want := ErrorKind(err), KindSyntax; got != want {
			t.Errorf("ErrorKind(err) = %v; want %v", got, want)
		}
	})

	t.Run("Runtime", func(t *testing.T) {
		_, err := rt.Execute(ctx, "error('kaboom')")
		if got, want := ErrorKind(err), KindRuntime; got != want {
			t.Errorf("ErrorKind(err) = %v; want %v", got, want)
		}
		if err == nil || !strings.Contains(err.Error(), "kaboom") {
			t.Errorf("error %v does not mention the raised message", err)
		}
	})

	// A failed run must not poison the interpreter for later runs.
	if got, err := rt.Execute(ctx, "return 1"); err != nil {
		t.Error(err)
	} else if want := any(int64(1)); got != want {
		t.Errorf("Execute after failure = %v; want %v", got, want)
	}
}

func TestExecuteFile(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()
	rt := newTestRuntime(t, nil)

	dir := t.TempDir()
	path := filepath.Join(dir, "answer.lua")
	if err := os.WriteFile(path, []byte("local n = ...\nreturn (n or 0) + 40\n"), 0o666); err != nil {
		t.Fatal(err)
	}

	got, err := rt.ExecuteFile(ctx, path, int64(2))
	if err != nil {
		t.Fatal(err)
	}
	if want := any(int64(42)); got != want {
		t.Errorf("ExecuteFile = %v; want %v", got, want)
	}

	if _, err := rt.ExecuteFile(ctx, filepath.Join(dir, "missing.lua")); err == nil {
		t.Error("ExecuteFile on a missing path did not return an error")
	}
}

func TestCallGlobal(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()
	// A single interpreter state so the defining chunk
	// and the call land on the same globals.
	rt := newTestRuntime(t, &Config{PoolSize: 1})

	if _, err := rt.Execute(ctx, "function add(a, b) return a + b end"); err != nil {
		t.Fatal(err)
	}

	got, err := rt.CallGlobal(ctx, "add", 2.0, 3.0)
	if err != nil {
		t.Fatal(err)
	}
	if want := any(float64(5)); got != want {
		t.Errorf("CallGlobal(add, 2.0, 3.0) = %v (%T); want %v", got, got, want)
	}

	t.Run("NotAFunction", func(t *testing.T) {
		_, err := rt.CallGlobal(ctx, "undefined")
		if got, want := ErrorKind(err), KindRuntime; got != want {
			t.Errorf("ErrorKind(err) = %v; want %v", got, want)
		}
	})
}

func TestExecuteCache(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()
	dbPath := filepath.Join(t.TempDir(), "chunks.db")
	rt := newTestRuntime(t, &Config{PoolSize: 1, CacheDB: dbPath})

	const source = "return 6 * 7"
	want := any(int64(42))
	// First run compiles and populates the cache;
	// the second must be served from the precompiled chunk.
	for i := 0; i < 2; i++ {
		got, err := rt.Execute(ctx, source)
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if got != want {
			t.Errorf("run %d: Execute(%q) = %v; want %v", i, source, got, want)
		}
	}
}

func TestRuntimeClosed(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()
	rt, err := NewRuntime(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := rt.Close(); err != nil {
		t.Fatal(err)
	}
	if err := rt.Close(); err != nil {
		t.Errorf("second Close = %v; want nil", err)
	}
	if _, err := rt.Execute(ctx, "return 1"); ErrorKind(err) != KindInvalidState {
		t.Errorf("Execute after Close = %v; want invalid state", err)
	}
	if _, err := rt.CallGlobal(ctx, "add"); ErrorKind(err) != KindInvalidState {
		t.Errorf("CallGlobal after Close = %v; want invalid state", err)
	}
}

func TestRuntimeConcurrent(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()
	rt := newTestRuntime(t, &Config{PoolSize: 4})

	const n = 16
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			got, err := rt.Execute(ctx, "return 2 + 3")
			if err == nil && got != any(int64(5)) {
				err = &Error{Message: "unexpected result"}
			}
			errs <- err
		}()
	}
	for i := 0; i < n; i++ {
		if err := <-errs; err != nil {
			t.Error(err)
		}
	}
}
