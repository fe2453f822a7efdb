package kv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newPGStore(t *testing.T) (*PGStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &PGStore{DB: db, Now: func() time.Time { return fixed }}, mock
}

func TestPGStoreSetUpserts(t *testing.T) {
	store, mock := newPGStore(t)

	mock.ExpectExec("INSERT INTO kv_entries").
		WithArgs("ns", "resume:1", `{"id":"1"}`, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Set(context.Background(), "ns", "resume:1", `{"id":"1"}`); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGStoreGetNotFound(t *testing.T) {
	store, mock := newPGStore(t)

	mock.ExpectQuery("SELECT value FROM kv_entries").
		WithArgs("ns", "resume:missing").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	if _, err := store.Get(context.Background(), "ns", "resume:missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGStoreListTranslatesPattern(t *testing.T) {
	store, mock := newPGStore(t)

	rows := sqlmock.NewRows([]string{"key", "value"}).
		AddRow("resume:1", `{"id":"1"}`).
		AddRow("resume:2", `{"id":"2"}`)
	mock.ExpectQuery("SELECT key, value FROM kv_entries").
		WithArgs("ns", `resume:%`).
		WillReturnRows(rows)

	entries, err := store.List(context.Background(), "ns", "resume:*", false)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 || entries[1].Key != "resume:2" || entries[1].Value != "" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGStoreFlush(t *testing.T) {
	store, mock := newPGStore(t)

	mock.ExpectExec("DELETE FROM kv_entries WHERE namespace").
		WithArgs("ns").
		WillReturnResult(sqlmock.NewResult(0, 3))

	if err := store.Flush(context.Background(), "ns"); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestLikePatternEscapes(t *testing.T) {
	if got := likePattern(`a_b%c\*`); got != `a\_b\%c\\%` {
		t.Fatalf("likePattern = %q", got)
	}
}
