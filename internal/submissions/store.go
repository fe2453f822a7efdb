package submissions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"resume-critique/internal/shared/storage/kv"
	"resume-critique/internal/shared/telemetry"
	"resume-critique/internal/shared/util"
)

// ErrNotFound is returned when no record exists for the id.
var ErrNotFound = errors.New("submission not found")

// Store reads and writes submission records in the owner's key-value namespace.
type Store struct {
	KV  kv.Store
	Now func() time.Time
}

// NewStore wraps a key-value store.
func NewStore(store kv.Store) *Store {
	return &Store{KV: store}
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Namespace is the key-value namespace for an owner identity.
func Namespace(owner string) string {
	return util.HashUserKey(owner)
}

// Put writes the whole record under its key, stamping UpdatedAt (and CreatedAt if unset).
func (s *Store) Put(ctx context.Context, owner string, rec *Record) error {
	if rec == nil || strings.TrimSpace(rec.ID) == "" {
		return errors.New("submission id is required")
	}
	now := s.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = StatusPending
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode submission %s: %w", rec.ID, err)
	}
	if err := s.KV.Set(ctx, Namespace(owner), Key(rec.ID), string(payload)); err != nil {
		return fmt.Errorf("store submission %s: %w", rec.ID, err)
	}
	return nil
}

// Get returns one record.
func (s *Store) Get(ctx context.Context, owner, id string) (Record, error) {
	raw, err := s.KV.Get(ctx, Namespace(owner), Key(id))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("load submission %s: %w", id, err)
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return Record{}, fmt.Errorf("decode submission %s: %w", id, err)
	}
	return rec, nil
}

// List returns every record of the owner, newest first. Entries that fail to decode are
// skipped and logged.
func (s *Store) List(ctx context.Context, owner string) ([]Record, error) {
	entries, err := s.KV.List(ctx, Namespace(owner), KeyPrefix+"*", true)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}

	out := make([]Record, 0, len(entries))
	for _, entry := range entries {
		var rec Record
		if err := json.Unmarshal([]byte(entry.Value), &rec); err != nil {
			telemetry.Warn("submission.decode_failed", map[string]any{
				"key":        entry.Key,
				"owner_hash": util.ShortHash(owner),
				"error":      err,
			})
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Delete removes one record.
func (s *Store) Delete(ctx context.Context, owner, id string) error {
	if err := s.KV.Delete(ctx, Namespace(owner), Key(id)); err != nil {
		return fmt.Errorf("delete submission %s: %w", id, err)
	}
	return nil
}

// Flush removes every key in the owner's namespace.
func (s *Store) Flush(ctx context.Context, owner string) error {
	if err := s.KV.Flush(ctx, Namespace(owner)); err != nil {
		return fmt.Errorf("flush submissions: %w", err)
	}
	return nil
}
