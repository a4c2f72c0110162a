// Copyright 2026 The luahost Authors
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"io"

	jsonv2 "github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// printResult writes a script result to w as a JSON value
// followed by a newline.
func printResult(w io.Writer, result any) error {
	data, err := jsonv2.Marshal(result, jsontext.WithIndent("  "))
	if err != nil {
		return fmt.Errorf("format result: %v", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
