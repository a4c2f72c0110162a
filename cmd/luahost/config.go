// Copyright 2026 The luahost Authors
// SPDX-License-Identifier: MIT

package main

import (
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"

	jsonv2 "github.com/go-json-experiment/json"
	"github.com/tailscale/hujson"
	"zombiezen.com/go/log"
	"zombiezen.com/go/luahost"
)

type globalConfig struct {
	Debug     bool     `json:"debug"`
	CacheDB   string   `json:"cacheDB"`
	PoolSize  int      `json:"poolSize"`
	Libraries []string `json:"libraries"`
}

func defaultGlobalConfig() *globalConfig {
	g := &globalConfig{
		PoolSize: runtime.NumCPU(),
	}
	if cd := cacheDir(); cd != "" {
		g.CacheDB = filepath.Join(cd, "luahost", "chunks.db")
	}
	return g
}

// mergeFiles reads each existing configuration file in paths
// (HuJSON, i.e. JSON with comments and trailing commas)
// into g, later files overriding earlier ones.
// Missing files are skipped.
func (g *globalConfig) mergeFiles(paths iter.Seq[string]) error {
	for path := range paths {
		huJSONData, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return err
		}
		jsonData, err := hujson.Standardize(huJSONData)
		if err != nil {
			return fmt.Errorf("read %s: %v", path, err)
		}
		if err := jsonv2.Unmarshal(jsonData, g, jsonv2.RejectUnknownMembers(false)); err != nil {
			return fmt.Errorf("read %s: %v", path, err)
		}
	}
	return nil
}

// mergeEnvironment overrides g with LUAHOST_* environment variables.
func (g *globalConfig) mergeEnvironment() error {
	if path, ok := os.LookupEnv("LUAHOST_CACHE_DB"); ok {
		g.CacheDB = path
	}
	if size := os.Getenv("LUAHOST_POOL_SIZE"); size != "" {
		n, err := strconv.Atoi(size)
		if err != nil {
			return fmt.Errorf("parse LUAHOST_POOL_SIZE: %v", err)
		}
		g.PoolSize = n
	}
	return nil
}

// validate checks the fully merged configuration.
// Settings can arrive from files, the environment, or flags,
// so range checks happen here rather than in each merge step.
func (g *globalConfig) validate() error {
	if g.PoolSize < 1 {
		return fmt.Errorf("pool size %d out of range (must be at least 1)", g.PoolSize)
	}
	return nil
}

// configFilePaths returns the configuration file paths to merge,
// in increasing order of preference.
func configFilePaths() iter.Seq[string] {
	return func(yield func(string) bool) {
		for dir := range systemConfigDirs() {
			if !yield(filepath.Join(dir, "luahost", "config.jsonc")) {
				return
			}
		}
	}
}

// newRuntime constructs the script runtime described by g.
// Script print output goes to standard output.
func (g *globalConfig) newRuntime() (*luahost.Runtime, error) {
	return luahost.NewRuntime(&luahost.Config{
		PoolSize:  g.PoolSize,
		CacheDB:   g.CacheDB,
		Output:    os.Stdout,
		Libraries: g.Libraries,
	})
}

var initLogOnce sync.Once

func initLogging(showDebug bool) {
	initLogOnce.Do(func() {
		minLogLevel := log.Info
		if showDebug {
			minLogLevel = log.Debug
		}
		log.SetDefault(&log.LevelFilter{
			Min:    minLogLevel,
			Output: log.New(os.Stderr, "luahost: ", log.StdFlags, nil),
		})
	})
}
