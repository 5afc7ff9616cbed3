package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/marko911/chainkit/internal/adapter"
)

// optionFlags collects repeated -option key=value flags into adapter
// options. A dotted key builds nested objects.
type optionFlags struct {
	opts adapter.Options
}

func (f *optionFlags) String() string {
	if f == nil || len(f.opts) == 0 {
		return ""
	}
	keys := make([]string, 0, len(f.opts))
	for k := range f.opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

func (f *optionFlags) Set(s string) error {
	key, raw, ok := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return fmt.Errorf("option %q is not key=value", s)
	}
	if f.opts == nil {
		f.opts = adapter.Options{}
	}

	parts := strings.Split(key, ".")
	node := f.opts
	for _, p := range parts[:len(parts)-1] {
		if p == "" {
			return fmt.Errorf("option %q has an empty path segment", key)
		}
		child, ok := node[p].(adapter.Options)
		if !ok {
			child = adapter.Options{}
			node[p] = child
		}
		node = child
	}
	last := parts[len(parts)-1]
	if last == "" {
		return fmt.Errorf("option %q has an empty path segment", key)
	}
	node[last] = parseOptionValue(raw)
	return nil
}

func (f *optionFlags) Options() adapter.Options {
	if f.opts == nil {
		return adapter.Options{}
	}
	return f.opts
}

// parseOptionValue keeps hex strings such as keys and addresses as strings.
func parseOptionValue(raw string) any {
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		return raw
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if x, err := strconv.ParseFloat(raw, 64); err == nil {
		return x
	}
	return raw
}
