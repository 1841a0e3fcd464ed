// Package jsonutil renders values as the indented JSON text that tool
// results embed.
package jsonutil

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Pretty encodes v with two-space indentation. HTML characters are left
// unescaped so values like "H&M" read back as written.
func Pretty(v interface{}) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// MustPretty is Pretty for values that are known to encode
func MustPretty(v interface{}) string {
	s, err := Pretty(v)
	if err != nil {
		panic(err)
	}
	return s
}
