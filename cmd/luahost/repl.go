// Copyright 2026 The luahost Authors
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"zombiezen.com/go/luahost"
)

func newREPLCommand(g *globalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:                   "repl",
		Short:                 "interactively evaluate Lua code",
		DisableFlagsInUseLine: true,
		Args:                  cobra.NoArgs,
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
	c.RunE = func(cmd *cobra.Command, args []string) error {
		return runREPL(cmd.Context(), g)
	}
	return c
}

func runREPL(ctx context.Context, g *globalConfig) error {
	// The whole session shares one interpreter state
	// so definitions persist from line to line.
	b, err := luahost.New(&luahost.Options{
		Output:    os.Stdout,
		Libraries: g.Libraries,
	})
	if err != nil {
		return err
	}
	defer b.Close()

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		source, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		return evalLine(b, string(source), os.Stdout)
	}

	rl, err := readline.New("> ")
	if err != nil {
		return err
	}
	defer rl.Close()

	buf := new(strings.Builder)
	for ctx.Err() == nil {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if buf.Len() > 0 {
				rl.SetPrompt("> ")
				buf.Reset()
				fmt.Fprintln(os.Stderr, "Press ctrl-c again to quit.")
				continue
			}
			break
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		buf.WriteString(line)
		buf.WriteString("\n")
		switch err := evalLine(b, buf.String(), os.Stdout); {
		case isIncompleteChunk(err):
			rl.SetPrompt(">> ")
			continue
		case err != nil:
			fmt.Fprintln(os.Stderr, err)
		}
		rl.SetPrompt("> ")
		buf.Reset()
	}
	return ctx.Err()
}

// evalLine loads source as an expression
// (falling back to statement form)
// and prints every value it returns.
// The bridge's stack is balanced on every path.
func evalLine(b *luahost.Bridge, source string, out io.Writer) error {
	depth := b.Top()
	if err := b.LoadString("return "+source, "=(repl)"); err != nil {
		if err := b.LoadString(source, "=(repl)"); err != nil {
			return err
		}
	}
	if err := b.ProtectedCall(0, luahost.MultipleReturns); err != nil {
		b.Pop(b.Top() - depth)
		var scriptErr *luahost.Error
		if errors.As(err, &scriptErr) && scriptErr.Traceback != "" {
			return fmt.Errorf("%s\n%s", scriptErr.Message, scriptErr.Traceback)
		}
		return err
	}

	parts := make([]string, 0, b.Top()-depth)
	for i := depth + 1; i <= b.Top(); i++ {
		parts = append(parts, formatStackValue(b, i))
	}
	b.Pop(b.Top() - depth)
	if len(parts) > 0 {
		fmt.Fprintln(out, strings.Join(parts, "\t"))
	}
	return nil
}

// isIncompleteChunk reports whether err is a syntax error
// caused by source that stops in the middle of a construct,
// i.e. the user should keep typing.
// The engine marks these diagnostics with a trailing "<eof>".
func isIncompleteChunk(err error) bool {
	if luahost.ErrorKind(err) != luahost.KindSyntax {
		return false
	}
	var scriptErr *luahost.Error
	return errors.As(err, &scriptErr) && strings.HasSuffix(scriptErr.Message, "<eof>")
}

func formatStackValue(b *luahost.Bridge, i int) string {
	if s, ok := b.ReadString(i); ok {
		return s
	}
	switch v := b.ReadValue(i).(type) {
	case bool:
		return strconv.FormatBool(v)
	case nil:
		if b.IsCallable(i) {
			return "(function)"
		}
		return "nil"
	default:
		return fmt.Sprint(v)
	}
}
