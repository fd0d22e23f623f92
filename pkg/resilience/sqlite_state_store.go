// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStateStore persists breaker fields in SQLite so breaker state
// survives restarts and is visible to co-located processes sharing the file.
type SQLiteStateStore struct {
	db *sql.DB
}

// NewSQLiteStateStore creates a SQLite-backed state store and ensures schema.
func NewSQLiteStateStore(db *sql.DB) (*SQLiteStateStore, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := ensureBreakerStateSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteStateStore{db: db}, nil
}

// Get implements StateStore.
func (s *SQLiteStateStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM breaker_state WHERE key = ?`, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set implements StateStore.
func (s *SQLiteStateStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO breaker_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

// Delete implements StateStore. Missing keys are not an error.
func (s *SQLiteStateStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(keys))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM breaker_state WHERE key IN (`+placeholders+`)`, args...)
	return err
}

func ensureBreakerStateSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS breaker_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`)
	return err
}
