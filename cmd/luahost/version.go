// Copyright 2026 The luahost Authors
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// luahostVersion is the version string filled in by the linker (e.g. "1.2.3").
var luahostVersion string

func newVersionCommand(g *globalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:                   "version",
		Short:                 "show version information",
		DisableFlagsInUseLine: true,
		Args:                  cobra.NoArgs,
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
	c.RunE = func(cmd *cobra.Command, args []string) error {
		return runVersion(cmd.Context())
	}
	return c
}

func runVersion(ctx context.Context) error {
	firstLine := "luahost"
	if luahostVersion == "" {
		firstLine += " (version unknown)"
	} else {
		firstLine += " version " + luahostVersion
	}
	fmt.Printf("%s\nPlatform: %s/%s\nCPUs:     %d\n", firstLine, runtime.GOOS, runtime.GOARCH, runtime.NumCPU())
	return nil
}
