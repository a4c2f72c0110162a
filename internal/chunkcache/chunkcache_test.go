// Copyright 2026 The luahost Authors
// SPDX-License-Identifier: MIT

package chunkcache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"zombiezen.com/go/log/testlog"
	"zombiezen.com/go/luahost/internal/testcontext"
)

func TestMain(m *testing.M) {
	testlog.Main(nil)
	os.Exit(m.Run())
}

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "cache", "chunks.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := c.Close(); err != nil {
			t.Error("Close:", err)
		}
	})
	return c
}

func TestCache(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()
	c := openTestCache(t)

	const key = "0123abcd"
	if _, ok, err := c.Get(ctx, key); err != nil {
		t.Fatal(err)
	} else if ok {
		t.Errorf("Get(%q) on an empty cache reported an entry", key)
	}

	chunk := []byte{0x1b, 0x4c, 0x75, 0x61, 0x00}
	if err := c.Put(ctx, key, "=(test)", chunk); err != nil {
		t.Fatal(err)
	}
	got, ok, err := c.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatalf("Get(%q) after Put reported no entry", key)
	}
	if diff := cmp.Diff(chunk, got); diff != "" {
		t.Errorf("Get(%q) (-want +got):\n%s", key, diff)
	}
}

func TestCacheReplace(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()
	c := openTestCache(t)

	const key = "feedface"
	if err := c.Put(ctx, key, "=(old)", []byte("old")); err != nil {
		t.Fatal(err)
	}
	if err := c.Put(ctx, key, "=(new)", []byte("new")); err != nil {
		t.Fatal(err)
	}
	got, ok, err := c.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatalf("Get(%q) reported no entry", key)
	}
	if want := []byte("new"); !cmp.Equal(want, got) {
		t.Errorf("Get(%q) = %q; want %q", key, got, want)
	}
}

func TestCachePersistence(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()
	path := filepath.Join(t.TempDir(), "chunks.db")

	c, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	const key = "cafef00d"
	if err := c.Put(ctx, key, "=(test)", []byte("persisted")); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	c, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	got, ok, err := c.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || string(got) != "persisted" {
		t.Errorf("Get(%q) after reopen = %q, %t; want %q, true", key, got, ok, "persisted")
	}
}
