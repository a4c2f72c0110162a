// Copyright 2026 The luahost Authors
// SPDX-License-Identifier: MIT

// Package chunkcache stores precompiled Lua chunks in a SQLite database,
// keyed by a hash of their source text.
// Loading a precompiled chunk skips the engine's parser,
// which matters for hosts that run the same scripts repeatedly.
package chunkcache

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitemigration"
	"zombiezen.com/go/sqlite/sqlitex"
)

// A Cache is a handle to a chunk cache database.
// It is safe for concurrent use.
type Cache struct {
	pool *sqlitemigration.Pool
}

// Open opens (creating if necessary) the cache database at path.
// Database migrations run on first use.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o777); err != nil {
		return nil, fmt.Errorf("open chunk cache: %v", err)
	}
	var schema sqlitemigration.Schema
	for i := 1; ; i++ {
		migration, err := fs.ReadFile(sqlFiles(), fmt.Sprintf("schema/%02d.sql", i))
		if errors.Is(err, fs.ErrNotExist) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("open chunk cache: read migrations: %v", err)
		}
		schema.Migrations = append(schema.Migrations, string(migration))
	}
	return &Cache{
		pool: sqlitemigration.NewPool(path, schema, sqlitemigration.Options{
			Flags:       sqlite.OpenCreate | sqlite.OpenReadWrite,
			PoolSize:    1,
			PrepareConn: prepareConn,
		}),
	}, nil
}

func prepareConn(conn *sqlite.Conn) error {
	if err := sqlitex.ExecuteTransient(conn, "PRAGMA journal_mode=wal;", nil); err != nil {
		return fmt.Errorf("enable write-ahead logging: %v", err)
	}
	if err := sqlitex.ExecuteTransient(conn, "PRAGMA foreign_keys=on;", nil); err != nil {
		return fmt.Errorf("enable foreign keys: %v", err)
	}
	return nil
}

// Get returns the precompiled chunk stored under key, if any.
func (c *Cache) Get(ctx context.Context, key string) (_ []byte, ok bool, err error) {
	conn, err := c.pool.Get(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("chunk cache get: %v", err)
	}
	defer c.pool.Put(conn)

	var chunk []byte
	err = sqlitex.ExecuteTransientFS(conn, sqlFiles(), "get_chunk.sql", &sqlitex.ExecOptions{
		Named: map[string]any{
			":source_hash": key,
		},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			chunk = make([]byte, stmt.GetLen("chunk"))
			stmt.GetBytes("chunk", chunk)
			ok = true
			return nil
		},
	})
	if err != nil {
		return nil, false, fmt.Errorf("chunk cache get: %v", err)
	}
	return chunk, ok, nil
}

// Put stores a precompiled chunk under key,
// replacing any previous entry.
// chunkName is stored for inspection only.
func (c *Cache) Put(ctx context.Context, key, chunkName string, chunk []byte) error {
	conn, err := c.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("chunk cache put: %v", err)
	}
	defer c.pool.Put(conn)

	err = sqlitex.ExecuteTransientFS(conn, sqlFiles(), "upsert_chunk.sql", &sqlitex.ExecOptions{
		Named: map[string]any{
			":source_hash": key,
			":chunk_name":  chunkName,
			":chunk":       chunk,
		},
	})
	if err != nil {
		return fmt.Errorf("chunk cache put: %v", err)
	}
	return nil
}

// Close releases the database.
func (c *Cache) Close() error {
	return c.pool.Close()
}

//go:embed cache_sql
var rawSqlFiles embed.FS

func sqlFiles() fs.FS {
	fsys, err := fs.Sub(rawSqlFiles, "cache_sql")
	if err != nil {
		panic(err)
	}
	return fsys
}
