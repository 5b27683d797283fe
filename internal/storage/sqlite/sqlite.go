// Package sqlite provides a SQLite-backed implementation of the
// storage.DocumentStore interface. Documents are stored as JSON text
// keyed by (collection, id) with a version column for optimistic
// compare-and-set writes; field queries use json_extract.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/roamly/roamly/internal/storage"
)

// Ensure DocStore implements storage.DocumentStore
var _ storage.DocumentStore = (*DocStore)(nil)

// DocStore implements storage.DocumentStore using SQLite.
type DocStore struct {
	db *sql.DB
}

// New creates a new DocStore with the given database path. It creates
// the parent directories and runs migrations automatically.
func New(dbPath string) (*DocStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Serialized writes avoid SQLITE_BUSY under concurrent handlers.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DocStore{db: db}, nil
}

// Close closes the database connection.
func (s *DocStore) Close() error {
	return s.db.Close()
}

// Get retrieves one document by collection and id.
func (s *DocStore) Get(ctx context.Context, collection, id string) (*storage.Document, error) {
	doc := &storage.Document{ID: id}
	err := s.db.QueryRowContext(ctx,
		"SELECT version, body FROM documents WHERE collection = ? AND id = ?",
		collection, id,
	).Scan(&doc.Version, &doc.Body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

// Put writes a document with compare-and-set semantics. An expected
// version of 0 inserts; any other value updates only the matching
// stored version. Returns the new version.
func (s *DocStore) Put(ctx context.Context, collection, id string, body []byte, expectedVersion int64) (int64, error) {
	now := time.Now().Unix()

	if expectedVersion == 0 {
		_, err := s.db.ExecContext(ctx,
			"INSERT INTO documents (collection, id, version, body, updated_at) VALUES (?, ?, 1, ?, ?)",
			collection, id, body, now,
		)
		if err != nil {
			if exists, checkErr := s.exists(ctx, collection, id); checkErr == nil && exists {
				return 0, storage.ErrVersionConflict
			}
			return 0, fmt.Errorf("failed to insert document %s/%s: %w", collection, id, err)
		}
		return 1, nil
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE documents SET version = version + 1, body = ?, updated_at = ? WHERE collection = ? AND id = ? AND version = ?",
		body, now, collection, id, expectedVersion,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update document %s/%s: %w", collection, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		exists, err := s.exists(ctx, collection, id)
		if err != nil {
			return 0, err
		}
		if !exists {
			return 0, storage.ErrNotFound
		}
		return 0, storage.ErrVersionConflict
	}
	return expectedVersion + 1, nil
}

// Delete removes a document. Deleting an absent id is a no-op.
func (s *DocStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM documents WHERE collection = ? AND id = ?",
		collection, id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete document %s/%s: %w", collection, id, err)
	}
	return nil
}

// Query returns documents whose top-level JSON field equals value.
func (s *DocStore) Query(ctx context.Context, collection, field string, value any) ([]storage.Document, error) {
	// SQLite stores JSON booleans as 0/1; align the parameter.
	if b, ok := value.(bool); ok {
		if b {
			value = 1
		} else {
			value = 0
		}
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, version, body FROM documents WHERE collection = ? AND json_extract(body, ?) = ?",
		collection, "$."+field, value,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s by %s: %w", collection, field, err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// List returns every document in a collection.
func (s *DocStore) List(ctx context.Context, collection string) ([]storage.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, version, body FROM documents WHERE collection = ? ORDER BY id",
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// NextID allocates the next integer id for a collection. Ids are never
// reused: the counter only moves forward, even across deletes.
func (s *DocStore) NextID(ctx context.Context, collection string) (int64, error) {
	var next int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO counters (collection, next_id) VALUES (?, 1)
		 ON CONFLICT(collection) DO UPDATE SET next_id = next_id + 1
		 RETURNING next_id`,
		collection,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate id for %s: %w", collection, err)
	}
	return next, nil
}

func (s *DocStore) exists(ctx context.Context, collection, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM documents WHERE collection = ? AND id = ?",
		collection, id,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check document existence: %w", err)
	}
	return true, nil
}

func scanDocuments(rows *sql.Rows) ([]storage.Document, error) {
	var docs []storage.Document
	for rows.Next() {
		var doc storage.Document
		if err := rows.Scan(&doc.ID, &doc.Version, &doc.Body); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return docs, nil
}
