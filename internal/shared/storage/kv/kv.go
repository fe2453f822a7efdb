// Package kv provides namespaced key-value stores for submission metadata.
package kv

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("kv: key not found")

// Entry is one listed key, with its value when requested.
type Entry struct {
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

// Store is a namespaced string key-value store. Each namespace belongs to one identity;
// Flush clears only the given namespace.
type Store interface {
	Get(ctx context.Context, namespace, key string) (string, error)
	Set(ctx context.Context, namespace, key, value string) error
	Delete(ctx context.Context, namespace, key string) error
	List(ctx context.Context, namespace, pattern string, includeValues bool) ([]Entry, error)
	Flush(ctx context.Context, namespace string) error
}

// Match reports whether key matches pattern, where '*' matches any run of characters
// and every other character matches itself.
func Match(pattern, key string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == key
	}
	if !strings.HasPrefix(key, parts[0]) {
		return false
	}
	key = key[len(parts[0]):]
	last := parts[len(parts)-1]
	for _, part := range parts[1 : len(parts)-1] {
		idx := strings.Index(key, part)
		if idx < 0 {
			return false
		}
		key = key[idx+len(part):]
	}
	return strings.HasSuffix(key, last)
}

// LiteralPrefix returns the part of pattern before its first wildcard.
func LiteralPrefix(pattern string) string {
	if idx := strings.IndexByte(pattern, '*'); idx >= 0 {
		return pattern[:idx]
	}
	return pattern
}
