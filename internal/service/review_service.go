package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roamly/roamly/internal/clock"
	"github.com/roamly/roamly/internal/models"
	"github.com/roamly/roamly/internal/observability"
	"github.com/roamly/roamly/internal/seats"
	"github.com/roamly/roamly/internal/storage"
)

// ReviewService accepts trip and peer reviews and keeps each user's
// rating aggregate consistent with the reviews on record. Aggregates
// are recomputed from the full review list, never adjusted
// incrementally, so a lost update can always be repaired by the next
// recomputation.
type ReviewService struct {
	reviews *storage.ReviewStore
	trips   *storage.TripStore
	users   *storage.UserStore
	clock   clock.Clock

	// userLocks serializes aggregate recomputation per reviewed user.
	userLocks *keyedMutex

	storeTimeout time.Duration
}

// NewReviewService constructs a ReviewService.
func NewReviewService(reviews *storage.ReviewStore, trips *storage.TripStore, users *storage.UserStore, clk clock.Clock, storeTimeout time.Duration) *ReviewService {
	return &ReviewService{
		reviews:      reviews,
		trips:        trips,
		users:        users,
		clock:        clk,
		userLocks:    newKeyedMutex(),
		storeTimeout: storeTimeout,
	}
}

// SubmitTripReview records the reviewer's rating of the trip itself.
// Only participants of a completed trip may review it, once each.
func (s *ReviewService) SubmitTripReview(ctx context.Context, reviewerID, tripID int64, score int, title, comment string) (*models.Review, error) {
	if err := validateScore(score); err != nil {
		return nil, err
	}

	if _, err := s.loadCompletedTrip(ctx, tripID, reviewerID); err != nil {
		return nil, err
	}

	existing, err := s.listTripReviews(ctx, tripID)
	if err != nil {
		return nil, err
	}
	for _, r := range existing {
		if r.IsTripReview && r.ReviewerID == reviewerID {
			return nil, models.ErrDuplicateReview
		}
	}

	review := &models.Review{
		TripID:       tripID,
		ReviewerID:   reviewerID,
		IsTripReview: true,
		Score:        score,
		Title:        title,
		Comment:      comment,
		CreatedAt:    s.clock.Now().Unix(),
	}
	if err := s.createReview(ctx, review); err != nil {
		return nil, err
	}

	observability.ReviewsSubmitted.WithLabelValues("trip").Inc()
	slog.Info("Trip review submitted", "trip_id", tripID, "reviewer_id", reviewerID, "score", score)
	return review, nil
}

// SubmitPeerReview records the reviewer's rating of a fellow
// participant and refreshes that participant's aggregate. If the
// aggregate cannot be updated the review is backed out so the two
// never disagree for long.
func (s *ReviewService) SubmitPeerReview(ctx context.Context, reviewerID, tripID, reviewedUserID int64, score int, title, comment string) (*models.Review, error) {
	if err := validateScore(score); err != nil {
		return nil, err
	}
	if reviewedUserID == reviewerID {
		return nil, models.Validationf("reviewed_user_id", "cannot review yourself")
	}

	trip, err := s.loadCompletedTrip(ctx, tripID, reviewerID)
	if err != nil {
		return nil, err
	}
	if !seats.IsMember(trip, reviewedUserID) {
		return nil, fmt.Errorf("%w: user %d", models.ErrNotAParticipant, reviewedUserID)
	}

	existing, err := s.listTripReviews(ctx, tripID)
	if err != nil {
		return nil, err
	}
	for _, r := range existing {
		if !r.IsTripReview && r.ReviewerID == reviewerID && r.ReviewedUserID == reviewedUserID {
			return nil, models.ErrDuplicateReview
		}
	}

	review := &models.Review{
		TripID:         tripID,
		ReviewerID:     reviewerID,
		ReviewedUserID: reviewedUserID,
		Score:          score,
		Title:          title,
		Comment:        comment,
		CreatedAt:      s.clock.Now().Unix(),
	}
	if err := s.createReview(ctx, review); err != nil {
		return nil, err
	}

	if err := s.RecomputeUserAggregates(ctx, reviewedUserID); err != nil {
		slog.Error("Failed to update rating aggregate, backing out review",
			"review_id", review.ID, "reviewed_user_id", reviewedUserID, "error", err)
		dctx, cancel := s.withTimeout(ctx)
		if delErr := s.reviews.Delete(dctx, review.ID); delErr != nil {
			slog.Error("Failed to back out review", "review_id", review.ID, "error", delErr)
		}
		cancel()
		return nil, err
	}

	observability.ReviewsSubmitted.WithLabelValues("peer").Inc()
	slog.Info("Peer review submitted", "trip_id", tripID, "reviewer_id", reviewerID,
		"reviewed_user_id", reviewedUserID, "score", score)
	return review, nil
}

// RecomputeUserAggregates rebuilds a user's star rating from every
// peer review on record and refreshes the reliability score from the
// attendance counters. Safe to call at any time.
func (s *ReviewService) RecomputeUserAggregates(ctx context.Context, userID int64) error {
	unlock := s.userLocks.lock(userID)
	defer unlock()

	lctx, cancel := s.withTimeout(ctx)
	reviews, err := s.reviews.ListForUser(lctx, userID)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}

	var rating float64
	count := 0
	for _, r := range reviews {
		if r.IsTripReview {
			continue
		}
		rating += models.Stars(r.Score)
		count++
	}
	if count > 0 {
		rating /= float64(count)
	}

	for attempt := 0; attempt < writeAttempts; attempt++ {
		err := func() error {
			uctx, cancel := s.withTimeout(ctx)
			defer cancel()

			user, version, err := s.users.Get(uctx, userID)
			if err != nil {
				return err
			}
			user.Rating = rating
			user.RatingCount = count
			user.Reliability = models.ReliabilityScore(user.TripsCompleted, user.TripsAbandoned)

			_, err = s.users.Update(uctx, user, version)
			return err
		}()
		if errors.Is(err, storage.ErrVersionConflict) {
			observability.VersionConflicts.Inc()
			continue
		}
		return err
	}
	return fmt.Errorf("%w: user %d", storage.ErrVersionConflict, userID)
}

// ListTripReviews returns every review written for a trip.
func (s *ReviewService) ListTripReviews(ctx context.Context, tripID int64) ([]models.Review, error) {
	return s.listTripReviews(ctx, tripID)
}

// ListUserReviews returns the peer reviews a user has received.
func (s *ReviewService) ListUserReviews(ctx context.Context, userID int64) ([]models.Review, error) {
	lctx, cancel := s.withTimeout(ctx)
	defer cancel()
	reviews, err := s.reviews.ListForUser(lctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	peer := reviews[:0]
	for _, r := range reviews {
		if !r.IsTripReview {
			peer = append(peer, r)
		}
	}
	return peer, nil
}

func (s *ReviewService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

func (s *ReviewService) listTripReviews(ctx context.Context, tripID int64) ([]models.Review, error) {
	lctx, cancel := s.withTimeout(ctx)
	defer cancel()
	reviews, err := s.reviews.ListByTrip(lctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	return reviews, nil
}

func (s *ReviewService) createReview(ctx context.Context, review *models.Review) error {
	cctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.reviews.Create(cctx, review); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	return nil
}

// loadCompletedTrip fetches the trip and checks that it has completed
// and that the reviewer took part in it.
func (s *ReviewService) loadCompletedTrip(ctx context.Context, tripID, reviewerID int64) (*models.Trip, error) {
	gctx, cancel := s.withTimeout(ctx)
	trip, _, err := s.trips.Get(gctx, tripID)
	cancel()
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}

	if DeriveStatus(trip, s.clock.Now()) != models.StatusCompleted {
		return nil, models.ErrTripNotCompleted
	}
	// Membership includes registered companions on accepted requests;
	// they held seats and may review and be reviewed like any other
	// member.
	if !seats.IsMember(trip, reviewerID) {
		return nil, fmt.Errorf("%w: user %d", models.ErrNotAParticipant, reviewerID)
	}
	return trip, nil
}

func validateScore(score int) error {
	if score < 0 || score > models.MaxScore {
		return models.Validationf("score", "must be between 0 and %d, got %d", models.MaxScore, score)
	}
	return nil
}
