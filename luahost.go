// Copyright 2026 The luahost Authors
// SPDX-License-Identifier: MIT

/*
Package luahost mediates between a Go host program and an embedded
[Lua] interpreter.

The central type is [Bridge], which owns exactly one interpreter state
and exposes the handful of operations a host needs:
loading chunks, pushing arguments, invoking functions inside the
engine's protected-call mechanism, and reading typed results off the
interpreter's value stack.
Host code never touches raw interpreter error codes,
and every operation documents its net effect on the value stack.

A Bridge is not safe for concurrent use.
Callers that need concurrency should run several independent bridges,
which is what [Pool] and [Runtime] provide:
a Pool confines each bridge to one goroutine between Acquire and Release,
and a Runtime layers script execution, global function calls,
and an optional precompiled chunk cache on top of a Pool.

[Lua]: https://www.lua.org/
*/
package luahost
