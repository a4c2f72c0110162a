// Copyright 2026 The luahost Authors
// SPDX-License-Identifier: MIT

package luahost

import (
	"fmt"

	"zombiezen.com/go/lua"
)

// pushValue pushes a Go scalar onto the stack.
// The caller must have reserved stack space.
func pushValue(l *lua.State, v any) error {
	switch v := v.(type) {
	case nil:
		l.PushNil()
	case bool:
		l.PushBoolean(v)
	case int:
		l.PushInteger(int64(v))
	case int64:
		l.PushInteger(v)
	case float64:
		l.PushNumber(v)
	case string:
		l.PushString(v)
	default:
		return fmt.Errorf("unsupported argument type %T (supported types: nil, bool, int, int64, float64, string)", v)
	}
	return nil
}

// readValue converts the stack slot at idx to a Go scalar
// without mutating the stack.
// Types that have no scalar representation read as nil.
func readValue(l *lua.State, idx int) any {
	switch l.Type(idx) {
	case lua.TypeBoolean:
		return l.ToBoolean(idx)
	case lua.TypeNumber:
		if l.IsInteger(idx) {
			n, _ := l.ToInteger(idx)
			return n
		}
		n, _ := l.ToNumber(idx)
		return n
	case lua.TypeString:
		s, _ := l.ToString(idx)
		return s
	default:
		return nil
	}
}
