// Package storage provides abstractions for persistent data storage.
//
// The core treats persistence as an opaque key-document store with
// query-by-field capability (DocumentStore). Typed stores (TripStore,
// ReviewStore, UserStore) marshal domain models to JSON documents on
// top of it, so storage backends can be swapped without touching the
// service layer.
package storage

import (
	"context"
	"errors"
)

// Collection names used by the typed stores.
const (
	CollectionTrips   = "trips"
	CollectionReviews = "reviews"
	CollectionUsers   = "users"
)

var (
	// ErrNotFound is returned when a requested document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrVersionConflict is returned by Put when the document's stored
	// version no longer matches the expected one (another writer got
	// there first).
	ErrVersionConflict = errors.New("document version conflict")

	// ErrUnavailable marks transient store failures. Reads may be
	// retried with backoff; writes must not be blindly retried.
	ErrUnavailable = errors.New("store unavailable")
)

// Document is one stored record with its optimistic-concurrency
// version. Versions start at 1 and increase by 1 on every successful
// Put.
type Document struct {
	ID      string
	Version int64
	Body    []byte
}

// DocumentStore is the persistence collaborator consumed by the core.
// There is no primitive spanning multiple documents; multi-document
// invariants are sequenced by the service layer with explicit
// compensation on partial failure.
type DocumentStore interface {
	// Get retrieves one document. Returns ErrNotFound if absent.
	Get(ctx context.Context, collection, id string) (*Document, error)

	// Put writes a document using compare-and-set semantics:
	// expectedVersion 0 inserts (failing with ErrVersionConflict if the
	// id exists), any other value updates only when it matches the
	// stored version. Returns the new version.
	Put(ctx context.Context, collection, id string, body []byte, expectedVersion int64) (int64, error)

	// Delete removes a document. Deleting an absent id is a no-op.
	Delete(ctx context.Context, collection, id string) error

	// Query returns the documents whose top-level field equals value.
	Query(ctx context.Context, collection, field string, value any) ([]Document, error)

	// List returns every document in a collection.
	List(ctx context.Context, collection string) ([]Document, error)

	// NextID allocates the next integer id for a collection. Allocated
	// ids are never reused, even if the document is later deleted.
	NextID(ctx context.Context, collection string) (int64, error)

	// Close releases any resources held by the store.
	Close() error
}
