// Package envutil applies environment variable overrides onto configuration fields.
// Each helper is a no-op when the variable name is empty, the variable is unset,
// or its value cannot be parsed, leaving the destination untouched.
package envutil

import (
	"os"
	"strconv"
	"strings"
)

func lookup(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	v := strings.TrimSpace(os.Getenv(name))
	return v, v != ""
}

// String overrides dst with the value of the named variable.
func String(name string, dst *string) {
	if v, ok := lookup(name); ok {
		*dst = v
	}
}

// Int overrides dst with the integer value of the named variable.
func Int(name string, dst *int) {
	if v, ok := lookup(name); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Bool overrides dst with the boolean value of the named variable.
func Bool(name string, dst *bool) {
	if v, ok := lookup(name); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// List overrides dst with the comma-separated values of the named variable.
// Blank entries are dropped.
func List(name string, dst *[]string) {
	v, ok := lookup(name)
	if !ok {
		return
	}

	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	*dst = out
}
