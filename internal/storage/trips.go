package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/roamly/roamly/internal/models"
)

// TripStore persists trips as JSON documents.
type TripStore struct {
	docs DocumentStore
}

// NewTripStore wraps a document store.
func NewTripStore(docs DocumentStore) *TripStore {
	return &TripStore{docs: docs}
}

// Create allocates an id and inserts the trip. The trip.ID field is
// populated by the store.
func (s *TripStore) Create(ctx context.Context, trip *models.Trip) error {
	id, err := s.docs.NextID(ctx, CollectionTrips)
	if err != nil {
		return fmt.Errorf("failed to allocate trip id: %w", err)
	}
	trip.ID = id
	if trip.CreatedAt == 0 {
		trip.CreatedAt = time.Now().Unix()
	}

	body, err := json.Marshal(trip)
	if err != nil {
		return fmt.Errorf("failed to marshal trip: %w", err)
	}
	if _, err := s.docs.Put(ctx, CollectionTrips, formatID(id), body, 0); err != nil {
		return fmt.Errorf("failed to insert trip: %w", err)
	}
	return nil
}

// Get retrieves a trip and its document version for later
// compare-and-set writes.
func (s *TripStore) Get(ctx context.Context, id int64) (*models.Trip, int64, error) {
	doc, err := s.docs.Get(ctx, CollectionTrips, formatID(id))
	if err != nil {
		return nil, 0, err
	}
	trip, err := unmarshalTrip(doc.Body)
	if err != nil {
		return nil, 0, err
	}
	return trip, doc.Version, nil
}

// Update writes the trip back, expecting the given version. Returns
// the new version, or ErrVersionConflict if another writer won.
func (s *TripStore) Update(ctx context.Context, trip *models.Trip, version int64) (int64, error) {
	body, err := json.Marshal(trip)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal trip: %w", err)
	}
	next, err := s.docs.Put(ctx, CollectionTrips, formatID(trip.ID), body, version)
	if err != nil {
		return 0, err
	}
	return next, nil
}

// Delete removes a trip document.
func (s *TripStore) Delete(ctx context.Context, id int64) error {
	return s.docs.Delete(ctx, CollectionTrips, formatID(id))
}

// ListPublished returns all published trips.
func (s *TripStore) ListPublished(ctx context.Context) ([]models.Trip, error) {
	docs, err := s.docs.Query(ctx, CollectionTrips, "published", true)
	if err != nil {
		return nil, fmt.Errorf("failed to query published trips: %w", err)
	}
	return unmarshalTrips(docs)
}

// ListByCreator returns every trip owned by the user, drafts included.
func (s *TripStore) ListByCreator(ctx context.Context, creatorID int64) ([]models.Trip, error) {
	docs, err := s.docs.Query(ctx, CollectionTrips, "creator_id", creatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trips by creator: %w", err)
	}
	return unmarshalTrips(docs)
}

// ListByDestination returns published trips for a destination.
func (s *TripStore) ListByDestination(ctx context.Context, destination string) ([]models.Trip, error) {
	docs, err := s.docs.Query(ctx, CollectionTrips, "destination", destination)
	if err != nil {
		return nil, fmt.Errorf("failed to query trips by destination: %w", err)
	}
	trips, err := unmarshalTrips(docs)
	if err != nil {
		return nil, err
	}
	published := trips[:0]
	for _, t := range trips {
		if t.Published {
			published = append(published, t)
		}
	}
	return published, nil
}

func unmarshalTrip(body []byte) (*models.Trip, error) {
	trip := &models.Trip{}
	if err := json.Unmarshal(body, trip); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trip: %w", err)
	}
	return trip, nil
}

func unmarshalTrips(docs []Document) ([]models.Trip, error) {
	trips := make([]models.Trip, 0, len(docs))
	for _, doc := range docs {
		trip, err := unmarshalTrip(doc.Body)
		if err != nil {
			return nil, err
		}
		trips = append(trips, *trip)
	}
	return trips, nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
