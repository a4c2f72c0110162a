// Copyright 2026 The luahost Authors
// SPDX-License-Identifier: MIT

package luahost

import (
	"fmt"
	"sort"
	"strings"

	"zombiezen.com/go/lua"
)

// tracebackHeader separates the error message from the call stack
// in a message handler result.
const tracebackHeader = "stack traceback:"

// messageHandler is installed by [Bridge.ProtectedCall]
// to convert the raw error object into a string
// augmented with a traceback of the script's call stack.
func messageHandler(l *lua.State) (int, error) {
	msg, ok := l.ToString(1)
	if !ok {
		msg = fmt.Sprintf("(error object is a %v value)", l.Type(1))
	}
	l.PushString(traceback(l, msg, 1))
	return 1, nil
}

// splitTraceback separates a message handler result
// back into the original error message and the traceback,
// either of which may be empty.
func splitTraceback(msg string) (plain, traceback string) {
	plain, traceback, found := strings.Cut(msg, "\n"+tracebackHeader)
	if !found {
		return msg, ""
	}
	return plain, tracebackHeader + traceback
}

// traceback creates a traceback of the call stack starting at the given level.
// Level 0 is the current running function,
// whereas level n+1 is the function that has called level n
// (except for tail calls, which do not count in the stack).
// msg is prepended to the traceback.
func traceback(l *lua.State, msg string, level int) string {
	const levels1 = 10
	const levels2 = 11

	last := lastLevel(l)
	limitToShow := -1
	if last-level > levels1+levels2 {
		limitToShow = levels1
	}

	sb := new(strings.Builder)
	if msg != "" {
		sb.WriteString(msg)
		sb.WriteByte('\n')
	}
	sb.WriteString(tracebackHeader)
	for {
		ar := l.Stack(level)
		if ar == nil {
			break
		}
		level++

		if limitToShow == 0 {
			limitToShow = -1
			n := last - level - levels2 + 1
			fmt.Fprintf(sb, "\n\t...\t(skipping %d levels)", n)
			level += n
			continue
		}
		if limitToShow > 0 {
			limitToShow--
		}

		info := ar.Info("Slnt")
		if info == nil {
			break
		}
		if info.CurrentLine > 0 {
			fmt.Fprintf(sb, "\n\t%s:%d: in ", info.ShortSource, info.CurrentLine)
		} else {
			fmt.Fprintf(sb, "\n\t%s: in ", info.ShortSource)
		}
		switch {
		case info.NameWhat != "":
			sb.WriteString(info.NameWhat)
			sb.WriteString(" '")
			sb.WriteString(info.Name)
			sb.WriteString("'")
		case info.What == "main":
			sb.WriteString("main chunk")
		case info.What == "Lua":
			fmt.Fprintf(sb, "function <%s:%d>", info.ShortSource, info.LineDefined)
		default:
			sb.WriteString("?")
		}
		if info.IsTailCall {
			sb.WriteString("\n\t(...tail calls...)")
		}
	}
	return sb.String()
}

// lastLevel finds the deepest level of the call stack
// using a doubling search followed by a binary search.
func lastLevel(l *lua.State) int {
	lowerLimit, upperLimit := 1, 1
	for l.Stack(upperLimit) != nil {
		lowerLimit = upperLimit
		upperLimit *= 2
	}
	i := sort.Search(upperLimit-lowerLimit, func(i int) bool {
		return l.Stack(lowerLimit+i) == nil
	})
	return lowerLimit + i
}
