package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roamly/roamly/internal/models"
)

// ReviewStore persists reviews as JSON documents keyed by UUID.
// Reviews are written once and never updated in normal flow.
type ReviewStore struct {
	docs DocumentStore
}

// NewReviewStore wraps a document store.
func NewReviewStore(docs DocumentStore) *ReviewStore {
	return &ReviewStore{docs: docs}
}

// Create inserts a review, generating its id if unset.
func (s *ReviewStore) Create(ctx context.Context, review *models.Review) error {
	if review.ID == "" {
		review.ID = uuid.New().String()
	}
	if review.CreatedAt == 0 {
		review.CreatedAt = time.Now().Unix()
	}

	body, err := json.Marshal(review)
	if err != nil {
		return fmt.Errorf("failed to marshal review: %w", err)
	}
	if _, err := s.docs.Put(ctx, CollectionReviews, review.ID, body, 0); err != nil {
		return fmt.Errorf("failed to insert review: %w", err)
	}
	return nil
}

// Delete removes a review. Used only to back out a review whose
// aggregate update could not be applied.
func (s *ReviewStore) Delete(ctx context.Context, id string) error {
	if err := s.docs.Delete(ctx, CollectionReviews, id); err != nil {
		return fmt.Errorf("failed to delete review: %w", err)
	}
	return nil
}

// ListByTrip returns every review written for a trip, both trip
// reviews and peer reviews.
func (s *ReviewStore) ListByTrip(ctx context.Context, tripID int64) ([]models.Review, error) {
	docs, err := s.docs.Query(ctx, CollectionReviews, "trip_id", tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviews by trip: %w", err)
	}
	return unmarshalReviews(docs)
}

// ListForUser returns the peer reviews received by a user. This feeds
// the rating recomputation.
func (s *ReviewStore) ListForUser(ctx context.Context, reviewedUserID int64) ([]models.Review, error) {
	docs, err := s.docs.Query(ctx, CollectionReviews, "reviewed_user_id", reviewedUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviews for user: %w", err)
	}
	return unmarshalReviews(docs)
}

func unmarshalReviews(docs []Document) ([]models.Review, error) {
	reviews := make([]models.Review, 0, len(docs))
	for _, doc := range docs {
		var review models.Review
		if err := json.Unmarshal(doc.Body, &review); err != nil {
			return nil, fmt.Errorf("failed to unmarshal review: %w", err)
		}
		reviews = append(reviews, review)
	}
	return reviews, nil
}
