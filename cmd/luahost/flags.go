// Copyright 2026 The luahost Authors
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

// scriptArgFlag is the implementation of [pflag.Value]
// for passing scalar script arguments on the command line.
// Values are converted with the same rules the Lua command line uses:
// integers and floats become numbers, "true"/"false"/"nil" become
// themselves, and everything else stays a string.
type scriptArgFlag struct {
	args *[]any
}

var _ pflag.Value = (*scriptArgFlag)(nil)

func (f *scriptArgFlag) Type() string { return "value" }

func (f *scriptArgFlag) String() string {
	parts := make([]string, 0, len(*f.args))
	for _, arg := range *f.args {
		parts = append(parts, fmt.Sprint(arg))
	}
	return strings.Join(parts, ",")
}

func (f *scriptArgFlag) Set(s string) error {
	*f.args = append(*f.args, parseScriptArg(s))
	return nil
}

// parseScriptArg converts a command-line string to a script scalar.
func parseScriptArg(s string) any {
	switch s {
	case "nil":
		return nil
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	return s
}
