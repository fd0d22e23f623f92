// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package feedback

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "modernc.org/sqlite"

	"github.com/metis-ai/metis/pkg/errors"
)

// SQLiteSink persists feedback records in SQLite. The caller owns the
// database handle and its lifecycle.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink creates a SQLite-backed feedback sink and ensures schema.
func NewSQLiteSink(db *sql.DB) (*SQLiteSink, error) {
	if db == nil {
		return nil, errors.New(errors.CodeInvalidInput, "feedback sink requires a database", nil)
	}
	if err := ensureFeedbackSchema(db); err != nil {
		return nil, errors.New(errors.CodeInternal, "ensure feedback schema", err)
	}
	return &SQLiteSink{db: db}, nil
}

// Record stores a single feedback record.
func (s *SQLiteSink) Record(ctx context.Context, rec Record) error {
	skills, err := encodeJSON(rec.SkillsInvoked)
	if err != nil {
		return errors.New(errors.CodeInternal, "encode skills", err)
	}
	metrics, err := encodeJSON(rec.Metrics)
	if err != nil {
		return errors.New(errors.CodeInternal, "encode metrics", err)
	}
	metadata, err := encodeJSON(rec.Metadata)
	if err != nil {
		return errors.New(errors.CodeInternal, "encode metadata", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO feedback_entries (
			timestamp, query, skills_json, outcome, metrics_json, metadata_json
		) VALUES (?, ?, ?, ?, ?, ?)
	`,
		normalizeTime(rec.Timestamp),
		rec.Query,
		string(skills),
		rec.Outcome,
		string(metrics),
		string(metadata),
	)
	if err != nil {
		return errors.New(errors.CodeInternal, "insert feedback record", err)
	}
	return nil
}

// List returns feedback records matching the filter, oldest first.
func (s *SQLiteSink) List(ctx context.Context, filter Filter) ([]Record, error) {
	query := `
		SELECT timestamp, query, skills_json, outcome, metrics_json, metadata_json
		FROM feedback_entries
	`
	var args []any
	where := ""
	addFilter := func(clause string, value any) {
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
		args = append(args, value)
	}
	if filter.Outcome != "" {
		addFilter("outcome = ?", filter.Outcome)
	}
	if !filter.Since.IsZero() {
		addFilter("timestamp >= ?", filter.Since.UTC())
	}
	query += where + " ORDER BY timestamp ASC, rowid ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "query feedback records", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec          Record
			ts           sql.NullTime
			skillsJSON   string
			metricsJSON  string
			metadataJSON string
		)
		if err := rows.Scan(
			&ts,
			&rec.Query,
			&skillsJSON,
			&rec.Outcome,
			&metricsJSON,
			&metadataJSON,
		); err != nil {
			return nil, errors.New(errors.CodeInternal, "scan feedback record", err)
		}
		if ts.Valid {
			rec.Timestamp = ts.Time
		}
		if skillsJSON != "" {
			_ = json.Unmarshal([]byte(skillsJSON), &rec.SkillsInvoked)
		}
		if metricsJSON != "" {
			_ = json.Unmarshal([]byte(metricsJSON), &rec.Metrics)
		}
		if metadataJSON != "" {
			_ = json.Unmarshal([]byte(metadataJSON), &rec.Metadata)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.CodeInternal, "iterate feedback records", err)
	}
	return records, nil
}

// Prune deletes records older than the cutoff and reports how many went.
func (s *SQLiteSink) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM feedback_entries WHERE timestamp < ?`, olderThan.UTC())
	if err != nil {
		return 0, errors.New(errors.CodeInternal, "prune feedback records", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.New(errors.CodeInternal, "count pruned records", err)
	}
	return n, nil
}

func ensureFeedbackSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS feedback_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TIMESTAMP NOT NULL,
			query TEXT NOT NULL,
			skills_json TEXT,
			outcome TEXT NOT NULL,
			metrics_json TEXT,
			metadata_json TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_feedback_timestamp ON feedback_entries(timestamp);
		CREATE INDEX IF NOT EXISTS idx_feedback_outcome ON feedback_entries(outcome);
	`)
	return err
}
