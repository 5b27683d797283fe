// Package service implements business logic and orchestration between
// HTTP handlers and the storage layer: the trip lifecycle, seat
// allocation commits, itinerary edits, and review aggregation.
//
// Every trip mutation follows the same shape: take the trip's keyed
// lock, read a fresh snapshot, validate fully against the pure
// packages (seats, itinerary), then write once with the document
// version carried from the read. A version conflict means a writer
// outside this process won; the mutation re-reads and retries a
// bounded number of times. No partially validated state is ever
// written.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roamly/roamly/internal/clock"
	"github.com/roamly/roamly/internal/itinerary"
	"github.com/roamly/roamly/internal/models"
	"github.com/roamly/roamly/internal/observability"
	"github.com/roamly/roamly/internal/seats"
	"github.com/roamly/roamly/internal/storage"
)

const (
	// writeAttempts bounds version-conflict retries per mutation.
	writeAttempts = 3
	// readAttempts bounds transient-failure retries per read.
	readAttempts  = 3
	retryBackoff  = 100 * time.Millisecond
)

// errNoChange lets a mutation signal that the document is already in
// the requested state, skipping the write entirely.
var errNoChange = errors.New("no change")

// TripService owns the trip lifecycle: create/edit, publish/unpublish,
// deletion with ownership succession, itinerary edits, and all seat
// allocation transitions.
type TripService struct {
	trips *storage.TripStore
	users *storage.UserStore
	clock clock.Clock
	locks *keyedMutex

	// storeTimeout bounds each store call; expiry surfaces as
	// storage.ErrUnavailable.
	storeTimeout time.Duration
}

// NewTripService constructs a TripService with its dependencies.
func NewTripService(trips *storage.TripStore, users *storage.UserStore, clk clock.Clock, storeTimeout time.Duration) *TripService {
	return &TripService{
		trips:        trips,
		users:        users,
		clock:        clk,
		locks:        newKeyedMutex(),
		storeTimeout: storeTimeout,
	}
}

// TripInput carries the caller-editable trip fields.
type TripInput struct {
	Title          string    `json:"title"`
	Destination    string    `json:"destination"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	GroupSize      int       `json:"group_size"`
	EstimatedPrice float64   `json:"estimated_price"`
	TravelTypes    []string  `json:"travel_types"`
}

func validateTripInput(in *TripInput) error {
	in.Title = strings.TrimSpace(in.Title)
	in.Destination = strings.TrimSpace(in.Destination)
	if in.Title == "" {
		return models.Validationf("title", "must not be empty")
	}
	if in.Destination == "" {
		return models.Validationf("destination", "must not be empty")
	}
	if in.GroupSize < 1 {
		return models.Validationf("group_size", "must be at least 1, got %d", in.GroupSize)
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return models.Validationf("dates", "start and end date are required")
	}
	if itinerary.Normalize(in.EndDate).Before(itinerary.Normalize(in.StartDate)) {
		return models.Validationf("dates", "end date is before start date")
	}
	return nil
}

func (in *TripInput) applyTo(trip *models.Trip) {
	trip.Title = in.Title
	trip.Destination = in.Destination
	trip.StartDate = itinerary.Normalize(in.StartDate)
	trip.EndDate = itinerary.Normalize(in.EndDate)
	trip.GroupSize = in.GroupSize
	trip.EstimatedPrice = in.EstimatedPrice
	trip.TravelTypes = in.TravelTypes
}

// CreateTrip creates a new trip in draft state.
func (s *TripService) CreateTrip(ctx context.Context, creatorID int64, input TripInput) (*models.Trip, error) {
	if err := validateTripInput(&input); err != nil {
		return nil, err
	}

	trip := &models.Trip{
		ID:            models.UnsetID,
		CreatorID:     creatorID,
		IsDraft:       true,
		Published:     false,
		Activities:    make(map[string][]models.Activity),
		Participants:  make(map[int64]models.JoinRequest),
		AppliedUsers:  make(map[int64]models.JoinRequest),
		RejectedUsers: make(map[int64]models.JoinRequest),
		CreatedAt:     s.clock.Now().Unix(),
	}
	input.applyTo(trip)
	trip.Status = DeriveStatus(trip, s.clock.Now())

	if err := s.createTrip(ctx, trip); err != nil {
		slog.Error("CreateTrip failed", "creator_id", creatorID, "error", err)
		return nil, err
	}

	observability.TripsCreated.Inc()
	slog.Info("Trip created", "trip_id", trip.ID, "creator_id", creatorID)
	return trip, nil
}

// UpdateTrip replaces the editable fields of a trip. Only the creator
// may edit, and only before completion. Shrinking the group below the
// already reserved seats fails with CapacityExceeded; moving the dates
// so that existing activities fall outside the range fails with
// OutOfRangeDate.
func (s *TripService) UpdateTrip(ctx context.Context, tripID, actorID int64, input TripInput) (*models.Trip, error) {
	if err := validateTripInput(&input); err != nil {
		return nil, err
	}

	return s.mutateTrip(ctx, tripID, func(trip *models.Trip) error {
		if err := s.requireEditable(trip, actorID); err != nil {
			return err
		}
		if seats.ReservedSpots(trip) > input.GroupSize {
			return models.ErrCapacityExceeded
		}
		start, end := itinerary.Normalize(input.StartDate), itinerary.Normalize(input.EndDate)
		for _, list := range trip.Activities {
			for _, a := range list {
				day := itinerary.Normalize(a.Day)
				if day.Before(start) || day.After(end) {
					return models.ErrOutOfRangeDate
				}
			}
		}
		input.applyTo(trip)
		trip.Status = DeriveStatus(trip, s.clock.Now())
		return nil
	})
}

// GetTrip returns a trip with its date-derived status. When the stored
// status has drifted across a day boundary the document is refreshed,
// running the one-time completion side effects if the trip just
// finished.
func (s *TripService) GetTrip(ctx context.Context, tripID int64) (*models.Trip, error) {
	trip, _, err := s.readTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}

	derived := DeriveStatus(trip, s.clock.Now())
	if trip.Status == derived && (derived != models.StatusCompleted || trip.CompletionRecorded) {
		return trip, nil
	}

	// flipped is decided inside the mutation closure, under the trip's
	// lock: only the call that transitions CompletionRecorded false→true
	// runs the side effects. Comparing against the pre-lock snapshot
	// would let a concurrent reader that lost the race run them again.
	flipped := false
	refreshed, err := s.mutateTrip(ctx, tripID, func(t *models.Trip) error {
		flipped = false
		now := DeriveStatus(t, s.clock.Now())
		if t.Status == now && (now != models.StatusCompleted || t.CompletionRecorded) {
			return errNoChange
		}
		t.Status = now
		if now == models.StatusCompleted && !t.CompletionRecorded {
			t.CompletionRecorded = true
			flipped = true
		}
		return nil
	})
	if err != nil {
		// The caller asked to read; losing the opportunistic refresh is
		// not their problem.
		slog.Warn("Status refresh failed", "trip_id", tripID, "error", err)
		trip.Status = derived
		return trip, nil
	}

	if flipped {
		s.recordCompletion(ctx, refreshed)
	}
	return refreshed, nil
}

// ListPublished returns all published trips with freshly derived
// statuses.
func (s *TripService) ListPublished(ctx context.Context) ([]models.Trip, error) {
	tctx, cancel := s.withTimeout(ctx)
	defer cancel()
	trips, err := s.trips.ListPublished(tctx)
	if err != nil {
		return nil, s.classifyRead(err)
	}
	s.deriveAll(trips)
	return trips, nil
}

// ListByCreator returns the user's own trips, drafts included.
func (s *TripService) ListByCreator(ctx context.Context, creatorID int64) ([]models.Trip, error) {
	tctx, cancel := s.withTimeout(ctx)
	defer cancel()
	trips, err := s.trips.ListByCreator(tctx, creatorID)
	if err != nil {
		return nil, s.classifyRead(err)
	}
	s.deriveAll(trips)
	return trips, nil
}

// ListByDestination returns published trips for a destination.
func (s *TripService) ListByDestination(ctx context.Context, destination string) ([]models.Trip, error) {
	tctx, cancel := s.withTimeout(ctx)
	defer cancel()
	trips, err := s.trips.ListByDestination(tctx, destination)
	if err != nil {
		return nil, s.classifyRead(err)
	}
	s.deriveAll(trips)
	return trips, nil
}

// Publish moves a trip out of draft. The itinerary must cover every
// day and the start date must still be in the future.
func (s *TripService) Publish(ctx context.Context, tripID, actorID int64) (*models.Trip, error) {
	trip, err := s.mutateTrip(ctx, tripID, func(trip *models.Trip) error {
		if trip.CreatorID != actorID {
			return models.ErrForbidden
		}
		if trip.Published {
			return errNoChange
		}
		if !itinerary.HasActivityEachDay(trip) {
			return models.ErrIncompleteItinerary
		}
		today := itinerary.Normalize(s.clock.Now())
		if !itinerary.Normalize(trip.StartDate).After(today) {
			return models.ErrTripAlreadyStarted
		}
		trip.Published = true
		trip.IsDraft = false
		trip.Status = models.StatusNotStarted
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.TripsPublished.Inc()
	slog.Info("Trip published", "trip_id", tripID)
	return trip, nil
}

// Unpublish takes a published trip private. Allowed only while no one
// besides the creator holds an accepted seat.
func (s *TripService) Unpublish(ctx context.Context, tripID, actorID int64) (*models.Trip, error) {
	return s.mutateTrip(ctx, tripID, func(trip *models.Trip) error {
		if trip.CreatorID != actorID {
			return models.ErrForbidden
		}
		if !trip.Published {
			return errNoChange
		}
		if len(trip.Participants) > 0 {
			return models.ErrHasParticipants
		}
		trip.Published = false
		return nil
	})
}

// DeleteOutcome distinguishes actual trip removal from ownership
// succession; the two are different results, not a shared success.
type DeleteOutcome struct {
	Removed bool `json:"removed"`

	// NewCreatorID is set when ownership was reassigned instead.
	NewCreatorID int64 `json:"new_creator_id,omitempty"`
}

// DeleteTrip removes an unpublished or empty trip outright. A
// published trip with accepted participants survives: ownership passes
// to the accepted participant with the lowest user id, whose join
// request is dropped (the creator holds no seat request).
func (s *TripService) DeleteTrip(ctx context.Context, tripID, actorID int64) (*DeleteOutcome, error) {
	unlock := s.locks.lock(tripID)
	defer unlock()

	trip, version, err := s.readTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip.CreatorID != actorID {
		return nil, models.ErrForbidden
	}

	if !trip.Published || len(trip.Participants) == 0 {
		dctx, cancel := s.withTimeout(ctx)
		defer cancel()
		if err := s.trips.Delete(dctx, tripID); err != nil {
			return nil, fmt.Errorf("failed to delete trip: %w", err)
		}
		slog.Info("Trip removed", "trip_id", tripID)
		return &DeleteOutcome{Removed: true}, nil
	}

	var successor int64
	for userID := range trip.Participants {
		if successor == 0 || userID < successor {
			successor = userID
		}
	}
	trip.CreatorID = successor
	delete(trip.Participants, successor)
	if _, err := s.writeTrip(ctx, trip, version); err != nil {
		return nil, err
	}

	slog.Info("Trip ownership transferred", "trip_id", tripID, "new_creator_id", successor)
	return &DeleteOutcome{NewCreatorID: successor}, nil
}

// AddActivity appends an itinerary activity. The day must fall inside
// the trip's date range.
func (s *TripService) AddActivity(ctx context.Context, tripID, actorID int64, activity models.Activity) (models.Activity, error) {
	var inserted models.Activity
	_, err := s.mutateTrip(ctx, tripID, func(trip *models.Trip) error {
		if err := s.requireEditable(trip, actorID); err != nil {
			return err
		}
		var err error
		inserted, err = itinerary.Insert(trip, activity)
		return err
	})
	if err != nil {
		return models.Activity{}, err
	}
	return inserted, nil
}

// UpdateActivity replaces the activity with the same id.
func (s *TripService) UpdateActivity(ctx context.Context, tripID, actorID int64, activity models.Activity) (*models.Trip, error) {
	return s.mutateTrip(ctx, tripID, func(trip *models.Trip) error {
		if err := s.requireEditable(trip, actorID); err != nil {
			return err
		}
		return itinerary.Update(trip, activity)
	})
}

// DeleteActivity removes an activity. Idempotent.
func (s *TripService) DeleteActivity(ctx context.Context, tripID, actorID int64, activityID int) (*models.Trip, error) {
	return s.mutateTrip(ctx, tripID, func(trip *models.Trip) error {
		if err := s.requireEditable(trip, actorID); err != nil {
			return err
		}
		if !itinerary.Delete(trip, activityID) {
			return errNoChange
		}
		return nil
	})
}

// AskToJoin files a join request for the requester plus any named
// companions, reserving the seats immediately. Registered companions
// must exist in the user directory. Re-asking returns the existing
// request unchanged.
func (s *TripService) AskToJoin(ctx context.Context, tripID, requesterID int64, spots int, unregistered []models.Participant, registeredIDs []int64) (*models.JoinRequest, error) {
	for _, id := range registeredIDs {
		exists, err := s.userExists(ctx, id)
		if err != nil {
			return nil, s.classifyRead(err)
		}
		if !exists {
			return nil, fmt.Errorf("%w: companion %d", models.ErrUnknownUser, id)
		}
	}

	var filed models.JoinRequest
	_, err := s.mutateTrip(ctx, tripID, func(trip *models.Trip) error {
		if trip.CreatorID == requesterID {
			return models.Validationf("user_id", "creator cannot join their own trip")
		}
		if !trip.Published {
			return models.Validationf("trip_id", "trip is not published")
		}
		status := DeriveStatus(trip, s.clock.Now())
		if status != models.StatusNotStarted {
			return models.ErrTripAlreadyStarted
		}

		req := models.JoinRequest{
			UserID:                   requesterID,
			RequestedSpots:           spots,
			RegisteredParticipants:   registeredIDs,
			UnregisteredParticipants: unregistered,
			IdempotencyKey:           uuid.New().String(),
			CreatedAt:                s.clock.Now().Unix(),
		}
		_, hadRequest := seats.RequestFor(trip, requesterID)

		var err error
		filed, err = seats.Ask(trip, req)
		if err != nil {
			return err
		}
		if hadRequest {
			// Re-ask: seats.Ask handed back the existing request.
			return errNoChange
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.JoinRequestsTotal.WithLabelValues("asked").Inc()
	slog.Info("Join requested", "trip_id", tripID, "user_id", requesterID, "spots", filed.RequestedSpots)
	return &filed, nil
}

// CancelAskToJoin withdraws the user's request, pending or accepted,
// releasing its seats. Idempotent: cancelling with no request on file
// is a no-op. Abandoning an accepted seat on a published trip before
// it starts counts against the user's reliability.
func (s *TripService) CancelAskToJoin(ctx context.Context, tripID, userID int64) error {
	var removed, abandoned bool
	trip, err := s.mutateTrip(ctx, tripID, func(trip *models.Trip) error {
		removed, abandoned = false, false
		var wasAccepted bool
		removed, wasAccepted = seats.Cancel(trip, userID)
		if !removed {
			return errNoChange
		}
		status := DeriveStatus(trip, s.clock.Now())
		abandoned = wasAccepted && trip.Published && status == models.StatusNotStarted
		return nil
	})
	if err != nil {
		return err
	}
	if !removed {
		return nil
	}

	observability.JoinRequestsTotal.WithLabelValues("cancelled").Inc()
	if abandoned {
		s.recordAbandon(ctx, trip.ID, userID)
	}
	return nil
}

// AcceptRequest moves a pending request into the accepted set.
// Capacity is re-checked at commit time.
func (s *TripService) AcceptRequest(ctx context.Context, tripID, actorID, userID int64) (*models.Trip, error) {
	trip, err := s.mutateTrip(ctx, tripID, func(trip *models.Trip) error {
		if trip.CreatorID != actorID {
			return models.ErrForbidden
		}
		return seats.Accept(trip, userID)
	})
	if err != nil {
		return nil, err
	}

	observability.JoinRequestsTotal.WithLabelValues("accepted").Inc()
	slog.Info("Join request accepted", "trip_id", tripID, "user_id", userID)
	return trip, nil
}

// RejectRequest declines a pending request, releasing its seats.
func (s *TripService) RejectRequest(ctx context.Context, tripID, actorID, userID int64) (*models.Trip, error) {
	trip, err := s.mutateTrip(ctx, tripID, func(trip *models.Trip) error {
		if trip.CreatorID != actorID {
			return models.ErrForbidden
		}
		return seats.Reject(trip, userID)
	})
	if err != nil {
		return nil, err
	}

	observability.JoinRequestsTotal.WithLabelValues("rejected").Inc()
	return trip, nil
}

// AvailableSpots returns the free seat count. A document whose
// accepted seats already exceed capacity reports 0 alongside
// CapacityViolation; the overshoot is surfaced, never clamped away
// silently.
func (s *TripService) AvailableSpots(ctx context.Context, tripID int64) (int, error) {
	trip, _, err := s.readTrip(ctx, tripID)
	if err != nil {
		return 0, err
	}
	if seats.Violated(trip) {
		slog.Error("Capacity violation detected", "trip_id", tripID,
			"accepted", seats.AcceptedSpots(trip), "group_size", trip.GroupSize)
		return 0, models.ErrCapacityViolation
	}
	return seats.AvailableSpots(trip), nil
}

// requireEditable enforces the activity/field edit guard: the actor
// must be the creator and the trip must not have completed.
func (s *TripService) requireEditable(trip *models.Trip, actorID int64) error {
	if trip.CreatorID != actorID {
		return models.ErrForbidden
	}
	if DeriveStatus(trip, s.clock.Now()) == models.StatusCompleted {
		return models.ErrForbidden
	}
	return nil
}

func (s *TripService) deriveAll(trips []models.Trip) {
	now := s.clock.Now()
	for i := range trips {
		trips[i].Status = DeriveStatus(&trips[i], now)
	}
}

// ─── Store access ─────────────────────────────────────────────────────

func (s *TripService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

// classifyRead folds store failures, timeouts included, into
// ErrUnavailable. Domain sentinels pass through untouched.
func (s *TripService) classifyRead(err error) error {
	if err == nil || errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
}

// readTrip fetches a snapshot, retrying transient failures with a
// short backoff. Only reads are retried; writes go through the version
// check instead.
func (s *TripService) readTrip(ctx context.Context, tripID int64) (*models.Trip, int64, error) {
	var lastErr error
	for attempt := 0; attempt < readAttempts; attempt++ {
		trip, version, err := s.getTrip(ctx, tripID)
		if err == nil {
			return trip, version, nil
		}
		if errors.Is(err, storage.ErrNotFound) {
			return nil, 0, err
		}
		lastErr = err
		if attempt < readAttempts-1 {
			time.Sleep(retryBackoff)
		}
	}
	return nil, 0, s.classifyRead(lastErr)
}

func (s *TripService) userExists(ctx context.Context, userID int64) (bool, error) {
	tctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.users.Exists(tctx, userID)
}

func (s *TripService) getTrip(ctx context.Context, tripID int64) (*models.Trip, int64, error) {
	tctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.trips.Get(tctx, tripID)
}

func (s *TripService) createTrip(ctx context.Context, trip *models.Trip) error {
	tctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.trips.Create(tctx, trip); err != nil {
		return s.classifyRead(err)
	}
	return nil
}

func (s *TripService) writeTrip(ctx context.Context, trip *models.Trip, version int64) (int64, error) {
	tctx, cancel := s.withTimeout(ctx)
	defer cancel()
	next, err := s.trips.Update(tctx, trip, version)
	if err != nil {
		if errors.Is(err, storage.ErrVersionConflict) || errors.Is(err, storage.ErrNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	return next, nil
}

// mutateTrip is the single write path for trips: lock, read, mutate,
// compare-and-set. fn sees a fresh snapshot on every attempt and must
// validate everything before touching the trip; returning errNoChange
// skips the write.
func (s *TripService) mutateTrip(ctx context.Context, tripID int64, fn func(*models.Trip) error) (*models.Trip, error) {
	unlock := s.locks.lock(tripID)
	defer unlock()

	for attempt := 0; attempt < writeAttempts; attempt++ {
		trip, version, err := s.readTrip(ctx, tripID)
		if err != nil {
			return nil, err
		}

		if err := fn(trip); err != nil {
			if errors.Is(err, errNoChange) {
				return trip, nil
			}
			return nil, err
		}

		if _, err := s.writeTrip(ctx, trip, version); err != nil {
			if errors.Is(err, storage.ErrVersionConflict) {
				observability.VersionConflicts.Inc()
				slog.Warn("Version conflict, retrying", "trip_id", tripID, "attempt", attempt+1)
				continue
			}
			return nil, err
		}
		return trip, nil
	}
	return nil, fmt.Errorf("%w: trip %d", storage.ErrVersionConflict, tripID)
}

// ─── Reliability counters ─────────────────────────────────────────────

// recordCompletion bumps the completed-trip counter for every member:
// the creator, accepted requesters, and their registered companions.
// Runs once per trip, guarded by CompletionRecorded: the flag commits
// with the trip document first, so a crash can only lose counter
// bumps, never double them. Failures here are logged, not surfaced to
// the reader that triggered the refresh.
func (s *TripService) recordCompletion(ctx context.Context, trip *models.Trip) {
	userIDs := seats.MemberIDs(trip)
	for _, userID := range userIDs {
		if err := s.bumpCounters(ctx, userID, 1, 0); err != nil {
			slog.Error("Failed to record trip completion", "trip_id", trip.ID, "user_id", userID, "error", err)
		}
	}
	observability.TripsCompleted.Inc()
	slog.Info("Trip completed", "trip_id", trip.ID, "participants", len(userIDs))
}

// recordAbandon bumps the abandoned counter after a user drops an
// accepted seat on a published trip before it starts.
func (s *TripService) recordAbandon(ctx context.Context, tripID, userID int64) {
	if err := s.bumpCounters(ctx, userID, 0, 1); err != nil {
		slog.Error("Failed to record abandoned seat", "trip_id", tripID, "user_id", userID, "error", err)
	}
}

// bumpCounters updates a user's attendance counters and reliability
// with a compare-and-set loop of its own.
func (s *TripService) bumpCounters(ctx context.Context, userID int64, completed, abandoned int) error {
	for attempt := 0; attempt < writeAttempts; attempt++ {
		err := func() error {
			tctx, cancel := s.withTimeout(ctx)
			defer cancel()

			user, version, err := s.users.Get(tctx, userID)
			if err != nil {
				return err
			}
			user.TripsCompleted += completed
			user.TripsAbandoned += abandoned
			user.Reliability = models.ReliabilityScore(user.TripsCompleted, user.TripsAbandoned)

			_, err = s.users.Update(tctx, user, version)
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
