// Copyright 2026 The luahost Authors
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"zombiezen.com/go/log"
	"zombiezen.com/go/luahost"
)

type callOptions struct {
	file     string
	function string
	args     []any
}

func newCallCommand(g *globalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:                   "call [options] FUNCTION [ARG [...]]",
		Short:                 "call a global Lua function",
		DisableFlagsInUseLine: true,
		Args:                  cobra.MinimumNArgs(1),
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
	opts := new(callOptions)
	c.Flags().StringVar(&opts.file, "file", "", "run the Lua chunk stored in `path` first (e.g. to define the function)")
	c.RunE = func(cmd *cobra.Command, args []string) error {
		opts.function = args[0]
		for _, arg := range args[1:] {
			opts.args = append(opts.args, parseScriptArg(arg))
		}
		return runCall(cmd.Context(), g, opts)
	}
	return c
}

func runCall(ctx context.Context, g *globalConfig, opts *callOptions) error {
	// Globals are per-interpreter-state,
	// so the defining chunk and the call must share one interpreter.
	rt, err := luahost.NewRuntime(&luahost.Config{
		PoolSize:  1,
		CacheDB:   g.CacheDB,
		Output:    os.Stdout,
		Libraries: g.Libraries,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Errorf(ctx, "%v", err)
		}
	}()

	if opts.file != "" {
		if _, err := rt.ExecuteFile(ctx, opts.file); err != nil {
			return err
		}
	}
	result, err := rt.CallGlobal(ctx, opts.function, opts.args...)
	if err != nil {
		return err
	}
	return printResult(os.Stdout, result)
}
