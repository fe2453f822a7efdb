package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PGStore implements Store on the kv_entries table.
type PGStore struct {
	DB  *sql.DB
	Now func() time.Time
}

func (s *PGStore) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Get returns the value stored under key.
func (s *PGStore) Get(ctx context.Context, namespace, key string) (string, error) {
	const query = `SELECT value FROM kv_entries WHERE namespace = $1 AND key = $2`
	var value string
	if err := s.DB.QueryRowContext(ctx, query, namespace, key).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("kv get: %w", err)
	}
	return value, nil
}

// Set upserts value under key.
func (s *PGStore) Set(ctx context.Context, namespace, key, value string) error {
	const query = `
INSERT INTO kv_entries (namespace, key, value, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	if _, err := s.DB.ExecContext(ctx, query, namespace, key, value, s.now()); err != nil {
		return fmt.Errorf("kv set: %w", err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *PGStore) Delete(ctx context.Context, namespace, key string) error {
	const query = `DELETE FROM kv_entries WHERE namespace = $1 AND key = $2`
	if _, err := s.DB.ExecContext(ctx, query, namespace, key); err != nil {
		return fmt.Errorf("kv delete: %w", err)
	}
	return nil
}

// List returns entries whose keys match pattern, ordered by key.
func (s *PGStore) List(ctx context.Context, namespace, pattern string, includeValues bool) ([]Entry, error) {
	const query = `
SELECT key, value FROM kv_entries
WHERE namespace = $1 AND key LIKE $2 ESCAPE '\'
ORDER BY key`
	rows, err := s.DB.QueryContext(ctx, query, namespace, likePattern(pattern))
	if err != nil {
		return nil, fmt.Errorf("kv list: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Value); err != nil {
			return nil, fmt.Errorf("kv list scan: %w", err)
		}
		if !includeValues {
			e.Value = ""
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("kv list rows: %w", err)
	}
	return out, nil
}

// Flush removes every entry in namespace.
func (s *PGStore) Flush(ctx context.Context, namespace string) error {
	const query = `DELETE FROM kv_entries WHERE namespace = $1`
	if _, err := s.DB.ExecContext(ctx, query, namespace); err != nil {
		return fmt.Errorf("kv flush: %w", err)
	}
	return nil
}

// likePattern converts a '*' glob into a LIKE pattern with '\' as the escape character.
func likePattern(pattern string) string {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteByte('%')
		case '%', '_', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

var _ Store = (*PGStore)(nil)
