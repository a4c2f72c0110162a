// Copyright 2026 The luahost Authors
// SPDX-License-Identifier: MIT

package main

import (
	"io"
	"strings"
	"testing"

	"zombiezen.com/go/luahost"
)

func newREPLBridge(t *testing.T) *luahost.Bridge {
	t.Helper()
	b, err := luahost.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := b.Close(); err != nil {
			t.Error("Close:", err)
		}
	})
	return b
}

func TestEvalLine(t *testing.T) {
	b := newREPLBridge(t)

	t.Run("Expression", func(t *testing.T) {
		out := new(strings.Builder)
		if err := evalLine(b, "1 + 1\n", out); err != nil {
			t.Fatal(err)
		}
		if got, want := out.String(), "2\n"; got != want {
			t.Errorf("output = %q; want %q", got, want)
		}
	})

	t.Run("StatementThenExpression", func(t *testing.T) {
		out := new(strings.Builder)
		if err := evalLine(b, "x = 5\n", out); err != nil {
			t.Fatal(err)
		}
		if got := out.String(); got != "" {
			t.Errorf("statement output = %q; want empty", got)
		}
		if err := evalLine(b, "x\n", out); err != nil {
			t.Fatal(err)
		}
		if got, want := out.String(), "5\n"; got != want {
			t.Errorf("output = %q; want %q", got, want)
		}
	})

	t.Run("MultipleValues", func(t *testing.T) {
		out := new(strings.Builder)
		if err := evalLine(b, "1, 'two', true\n", out); err != nil {
			t.Fatal(err)
		}
		if got, want := out.String(), "1\ttwo\ttrue\n"; got != want {
			t.Errorf("output = %q; want %q", got, want)
		}
	})

	t.Run("RuntimeError", func(t *testing.T) {
		err := evalLine(b, "error('oops')\n", io.Discard)
		if err == nil {
			t.Fatal("evalLine did not return an error")
		}
		if !strings.Contains(err.Error(), "oops") {
			t.Errorf("error %v does not mention the raised message", err)
		}
		if got, want := b.Top(), 0; got != want {
			t.Errorf("after error, b.Top() = %d; want %d", got, want)
		}
	})

	// Stack must stay balanced across every interaction above.
	if got, want := b.Top(), 0; got != want {
		t.Errorf("b.Top() = %d; want %d", got, want)
	}
}

func TestIsIncompleteChunk(t *testing.T) {
	b := newREPLBridge(t)

	tests := []struct {
		source string
		want   bool
	}{
		{"function f()\n", true},
		{"if x then\n", true},
		{"for i = 1, 10 do\n", true},
		{"return )\n", false},
		{"1 + 1\n", false},
	}
	for _, test := range tests {
		err := evalLine(b, test.source, io.Discard)
		if got := isIncompleteChunk(err); got != test.want {
			t.Errorf("isIncompleteChunk for %q = %t (err %v); want %t", test.source, got, err, test.want)
		}
	}
}
