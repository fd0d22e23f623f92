// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/metis-ai/metis/pkg/errors"
)

// StoreConfig configures the vector-indexed long-term store.
type StoreConfig struct {
	// DB is the relational mapping for record metadata. Required. The store
	// does not close it; the opener owns its lifecycle.
	DB *sql.DB

	// IndexPath is the on-disk similarity index artifact. Empty keeps the
	// index in memory only.
	IndexPath string

	// Dimension is the fixed embedding width (default DefaultDimension).
	Dimension int

	// Embedder converts content to vectors. Nil stores zero vectors.
	Embedder Embedder
}

// Store is the vector-indexed long-term backend: an exact-NN index over
// embeddings plus a relational mapping from record id to content/metadata,
// with a side mapping between index row positions and record ids.
//
// Deletes are logical: the relational row and the side mappings go away but
// the vector stays in the index until Compact rebuilds it. Index and
// relational writes are not atomic with each other; Search tolerates the
// resulting drift by skipping rows without a live metadata entry.
type Store struct {
	mu        sync.RWMutex
	db        *sql.DB
	index     *FlatIndex
	embedder  Embedder
	dim       int
	indexPath string
	rowToID   map[int]string
	idToRow   map[string]int
}

// NewStore opens the long-term store: ensures the relational schema, loads
// the index artifact when present, and rebuilds the row mappings from the
// relational store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.DB == nil {
		return nil, errors.New(errors.CodeInvalidInput, "memory store requires a database", nil)
	}
	dim := cfg.Dimension
	if dim <= 0 {
		if cfg.Embedder != nil {
			dim = cfg.Embedder.Dimension()
		} else {
			dim = DefaultDimension
		}
	}

	if err := ensureMemorySchema(cfg.DB); err != nil {
		return nil, errors.New(errors.CodeMemoryBackend, "ensure memory schema", err)
	}

	index := NewFlatIndex(dim)
	if cfg.IndexPath != "" {
		if _, err := os.Stat(cfg.IndexPath); err == nil {
			loaded, err := LoadFlatIndex(cfg.IndexPath)
			if err != nil {
				return nil, errors.New(errors.CodeMemoryBackend, "load index artifact", err)
			}
			index = loaded
		}
	}

	s := &Store{
		db:        cfg.DB,
		index:     index,
		embedder:  cfg.Embedder,
		dim:       dim,
		indexPath: cfg.IndexPath,
		rowToID:   make(map[int]string),
		idToRow:   make(map[string]int),
	}
	if err := s.rebuildMappings(); err != nil {
		return nil, errors.New(errors.CodeMemoryBackend, "rebuild row mappings", err)
	}
	return s, nil
}

// Add embeds content, appends the vector to the index, and stores the record
// row keyed by a fresh id. Implements Backend.
func (s *Store) Add(ctx context.Context, content string, metadata map[string]any) (string, error) {
	vec, err := s.embed(ctx, content)
	if err != nil {
		return "", errors.New(errors.CodeMemoryBackend, "embed content", err)
	}

	metaJSON, err := encodeMetadata(metadata)
	if err != nil {
		return "", errors.New(errors.CodeMemoryBackend, "encode metadata", err)
	}

	id := uuid.NewString()
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.index.Add(vec)
	s.rowToID[row] = id
	s.idToRow[id] = row

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO memory_records (id, content, timestamp, metadata, row_pos)
		VALUES (?, ?, ?, ?, ?)
	`, id, content, timestamp, metaJSON, row)
	if err != nil {
		return "", errors.New(errors.CodeMemoryBackend, "insert memory record", err)
	}

	if err := s.saveIndexLocked(); err != nil {
		return "", err
	}
	return id, nil
}

// Search embeds the query and returns up to topK live records nearest to it.
// Rows whose id no longer has a metadata entry (deleted records, or drift
// from a crash between index and relational writes) are skipped, not
// errors. Implements Backend.
func (s *Store) Search(ctx context.Context, query string, topK int) ([]MemoryRecord, error) {
	if topK <= 0 {
		return nil, nil
	}
	vec, err := s.embed(ctx, query)
	if err != nil {
		return nil, errors.New(errors.CodeMemoryBackend, "embed query", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []MemoryRecord
	for _, match := range s.index.Search(vec, topK) {
		id, ok := s.rowToID[match.Row]
		if !ok {
			continue
		}
		record, ok, err := s.fetchRecord(ctx, id)
		if err != nil {
			return nil, errors.New(errors.CodeMemoryBackend, "fetch memory record", err)
		}
		if !ok {
			continue
		}
		record.Score = 1 / (1 + match.Distance)
		records = append(records, record)
	}
	return records, nil
}

// Delete removes the relational rows and the id/row mappings for the given
// ids. The vectors stay in the index until the next Compact. Deleting a
// missing id is a no-op.
func (s *Store) Delete(ctx context.Context, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM memory_records WHERE id = ?`, id); err != nil {
			return errors.New(errors.CodeMemoryBackend, "delete memory record", err).
				WithContext("id", id)
		}
		if row, ok := s.idToRow[id]; ok {
			delete(s.idToRow, id)
			delete(s.rowToID, row)
		}
	}
	return nil
}

// Clear removes every record and resets the index. Implements Backend.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM memory_records`); err != nil {
		return errors.New(errors.CodeMemoryBackend, "clear memory records", err)
	}
	s.index.Reset()
	s.rowToID = make(map[int]string)
	s.idToRow = make(map[string]int)
	return s.saveIndexLocked()
}

// Count returns the number of live records. Implements Backend.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memory_records`).Scan(&count)
	if err != nil {
		return 0, errors.New(errors.CodeMemoryBackend, "count memory records", err)
	}
	return count, nil
}

// Compact rebuilds the index with only live records, dropping tombstoned
// vectors, and rewrites the row mappings. Intended as a scheduled
// maintenance operation; safe to run while readers are active.
func (s *Store) Compact(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Stable rebuild order: ascending old row position.
	type liveRecord struct {
		id  string
		row int
	}
	live := make([]liveRecord, 0, len(s.idToRow))
	for id, row := range s.idToRow {
		live = append(live, liveRecord{id: id, row: row})
	}
	sort.Slice(live, func(i, j int) bool { return live[i].row < live[j].row })

	rebuilt := NewFlatIndex(s.dim)
	rowToID := make(map[int]string, len(live))
	idToRow := make(map[string]int, len(live))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.New(errors.CodeMemoryBackend, "begin compaction", err)
	}
	defer tx.Rollback()

	// row_pos carries a UNIQUE constraint; park every row before renumbering.
	if _, err := tx.ExecContext(ctx, `UPDATE memory_records SET row_pos = NULL`); err != nil {
		return errors.New(errors.CodeMemoryBackend, "reset row positions", err)
	}

	for _, rec := range live {
		vec := s.index.Vector(rec.row)
		if vec == nil {
			continue
		}
		newRow := rebuilt.Add(vec)
		rowToID[newRow] = rec.id
		idToRow[rec.id] = newRow

		if _, err := tx.ExecContext(ctx,
			`UPDATE memory_records SET row_pos = ? WHERE id = ?`, newRow, rec.id); err != nil {
			return errors.New(errors.CodeMemoryBackend, "renumber memory record", err).
				WithContext("id", rec.id)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.New(errors.CodeMemoryBackend, "commit compaction", err)
	}

	s.index = rebuilt
	s.rowToID = rowToID
	s.idToRow = idToRow
	return s.saveIndexLocked()
}

// IndexCount returns the number of index rows including tombstones, for
// observability and compaction tests.
func (s *Store) IndexCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Count()
}

// Close persists the index artifact. The database handle stays open; its
// opener owns it.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveIndexLocked()
}

func (s *Store) embed(ctx context.Context, text string) ([]float32, error) {
	if s.embedder == nil {
		return make([]float32, s.dim), nil
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return FitDimension(vec, s.dim), nil
}

func (s *Store) fetchRecord(ctx context.Context, id string) (MemoryRecord, bool, error) {
	var (
		record    MemoryRecord
		timestamp string
		metaJSON  sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, content, timestamp, metadata FROM memory_records WHERE id = ?
	`, id).Scan(&record.ID, &record.Content, &timestamp, &metaJSON)
	if err == sql.ErrNoRows {
		return MemoryRecord{}, false, nil
	}
	if err != nil {
		return MemoryRecord{}, false, err
	}

	if t, err := time.Parse(time.RFC3339Nano, timestamp); err == nil {
		record.Timestamp = t
	}
	if metaJSON.Valid && metaJSON.String != "" {
		var meta map[string]any
		if err := json.Unmarshal([]byte(metaJSON.String), &meta); err == nil {
			record.Metadata = meta
		}
	}
	return record, true, nil
}

func (s *Store) rebuildMappings() error {
	rows, err := s.db.Query(`SELECT id, row_pos FROM memory_records WHERE row_pos IS NOT NULL`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id  string
			row int
		)
		if err := rows.Scan(&id, &row); err != nil {
			return err
		}
		s.rowToID[row] = id
		s.idToRow[id] = row
	}
	return rows.Err()
}

func (s *Store) saveIndexLocked() error {
	if s.indexPath == "" {
		return nil
	}
	if err := s.index.Save(s.indexPath); err != nil {
		return errors.New(errors.CodeMemoryBackend, "persist index artifact", err)
	}
	return nil
}

func encodeMetadata(metadata map[string]any) (string, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(raw), nil
}

func ensureMemorySchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS memory_records (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			metadata TEXT,
			row_pos INTEGER UNIQUE
		);
	`)
	return err
}
