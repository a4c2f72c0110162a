// Copyright 2026 The luahost Authors
// SPDX-License-Identifier: MIT

// luahost runs Lua scripts on a pool of embedded interpreters.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"zombiezen.com/go/bass/sigterm"
	"zombiezen.com/go/log"
	"zombiezen.com/go/luahost"
)

func main() {
	ignoreSIGPIPE()

	rootCommand := &cobra.Command{
		Use:           "luahost",
		Short:         "embedded Lua script host",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	g := defaultGlobalConfig()
	if err := g.mergeFiles(configFilePaths()); err != nil {
		initLogging(false)
		log.Errorf(context.Background(), "%v", err)
		os.Exit(1)
	}
	if err := g.mergeEnvironment(); err != nil {
		initLogging(false)
		log.Errorf(context.Background(), "%v", err)
		os.Exit(1)
	}

	rootCommand.PersistentFlags().BoolVar(&g.Debug, "debug", g.Debug, "show debugging output")
	rootCommand.PersistentFlags().StringVar(&g.CacheDB, "cache", g.CacheDB, "`path` to precompiled chunk cache database (empty disables the cache)")
	rootCommand.PersistentFlags().IntVar(&g.PoolSize, "pool-size", g.PoolSize, "number of interpreter states to run")
	rootCommand.PersistentFlags().StringSliceVar(&g.Libraries, "library", g.Libraries, "standard `lib`raries to open (defaults to all)")

	rootCommand.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		initLogging(g.Debug)
		return g.validate()
	}

	rootCommand.AddCommand(
		newRunCommand(g),
		newEvalCommand(g),
		newCallCommand(g),
		newREPLCommand(g),
		newVersionCommand(g),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), sigterm.Signals()...)
	err := rootCommand.ExecuteContext(ctx)
	cancel()
	if err != nil {
		initLogging(g.Debug)
		log.Errorf(context.Background(), "%v", err)
		os.Exit(1)
	}
}

type runOptions struct {
	files []string
	args  []any
}

func newRunCommand(g *globalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:                   "run [options] FILE [...]",
		Short:                 "run one or more Lua script files",
		DisableFlagsInUseLine: true,
		Args:                  cobra.MinimumNArgs(1),
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
	opts := new(runOptions)
	c.Flags().Var(&scriptArgFlag{args: &opts.args}, "arg", "pass a `value` to the script as a vararg (may be repeated)")
	c.RunE = func(cmd *cobra.Command, args []string) error {
		opts.files = args
		return runRun(cmd.Context(), g, opts)
	}
	return c
}

func runRun(ctx context.Context, g *globalConfig, opts *runOptions) error {
	rt, err := g.newRuntime()
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Errorf(ctx, "%v", err)
		}
	}()

	// Each file runs on its own interpreter state;
	// the limit keeps the fan-out within the pool.
	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLimit(g.PoolSize)
	var printMu sync.Mutex
	for _, file := range opts.files {
		grp.Go(func() error {
			result, err := rt.ExecuteFile(grpCtx, file, opts.args...)
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			if result != nil {
				printMu.Lock()
				defer printMu.Unlock()
				return printResult(os.Stdout, result)
			}
			return nil
		})
	}
	return grp.Wait()
}

type evalOptions struct {
	expr string
	file string
	args []any
}

func newEvalCommand(g *globalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:                   "eval [options]",
		Short:                 "evaluate a Lua expression and print the result as JSON",
		DisableFlagsInUseLine: true,
		Args:                  cobra.NoArgs,
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
	opts := new(evalOptions)
	c.Flags().StringVarP(&opts.expr, "expr", "e", "", "evaluate the Lua expression `expr`")
	c.Flags().StringVar(&opts.file, "file", "", "evaluate the Lua chunk stored in `path`")
	c.Flags().Var(&scriptArgFlag{args: &opts.args}, "arg", "pass a `value` to the chunk as a vararg (may be repeated)")
	c.RunE = func(cmd *cobra.Command, args []string) error {
		return runEval(cmd.Context(), g, opts)
	}
	return c
}

func runEval(ctx context.Context, g *globalConfig, opts *evalOptions) error {
	rt, err := g.newRuntime()
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Errorf(ctx, "%v", err)
		}
	}()

	var result any
	switch {
	case opts.expr != "" && opts.file != "":
		return fmt.Errorf("can specify at most one of --expr or --file")
	case opts.expr != "":
		// Prefer expression form so that "eval -e '2 + 2'" prints 4,
		// falling back to statement form for full chunks.
		result, err = rt.Execute(ctx, "return "+opts.expr, opts.args...)
		if luahost.ErrorKind(err) == luahost.KindSyntax {
			result, err = rt.Execute(ctx, opts.expr, opts.args...)
		}
	case opts.file != "":
		result, err = rt.ExecuteFile(ctx, opts.file, opts.args...)
	default:
		return fmt.Errorf("must specify one of --expr or --file")
	}
	if err != nil {
		return err
	}

	return printResult(os.Stdout, result)
}
