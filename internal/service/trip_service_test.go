package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/roamly/roamly/internal/clock"
	"github.com/roamly/roamly/internal/models"
	"github.com/roamly/roamly/internal/storage"
	"github.com/roamly/roamly/internal/storage/sqlite"
)

type tripEnv struct {
	svc   *TripService
	trips *storage.TripStore
	users *storage.UserStore
	clock *clock.Fixed
}

func newTripEnv(t *testing.T) *tripEnv {
	t.Helper()

	docs, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { docs.Close() })

	trips := storage.NewTripStore(docs)
	users := storage.NewUserStore(docs)
	clk := clock.At(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	return &tripEnv{
		svc:   NewTripService(trips, users, clk, 5*time.Second),
		trips: trips,
		users: users,
		clock: clk,
	}
}

func (e *tripEnv) newUser(t *testing.T, username string) int64 {
	t.Helper()
	user := &models.User{Username: username, Email: username + "@example.com"}
	if err := e.users.Create(context.Background(), user); err != nil {
		t.Fatalf("failed to create user %s: %v", username, err)
	}
	return user.ID
}

func (e *tripEnv) defaultInput() TripInput {
	return TripInput{
		Title:       "Dolomites loop",
		Destination: "Italy",
		StartDate:   time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC),
		GroupSize:   4,
	}
}

// newTrip creates a draft trip with an activity on each day.
func (e *tripEnv) newTrip(t *testing.T, creatorID int64) *models.Trip {
	t.Helper()
	ctx := context.Background()

	trip, err := e.svc.CreateTrip(ctx, creatorID, e.defaultInput())
	if err != nil {
		t.Fatalf("failed to create trip: %v", err)
	}
	for day := 10; day <= 12; day++ {
		_, err := e.svc.AddActivity(ctx, trip.ID, creatorID, models.Activity{
			Day:         time.Date(2026, 3, day, 0, 0, 0, 0, time.UTC),
			TimeOfDay:   "09:00",
			Description: "hike",
		})
		if err != nil {
			t.Fatalf("failed to add activity for day %d: %v", day, err)
		}
	}
	return trip
}

func (e *tripEnv) publishedTrip(t *testing.T, creatorID int64) *models.Trip {
	t.Helper()
	trip := e.newTrip(t, creatorID)
	published, err := e.svc.Publish(context.Background(), trip.ID, creatorID)
	if err != nil {
		t.Fatalf("failed to publish trip: %v", err)
	}
	return published
}

func (e *tripEnv) ask(t *testing.T, tripID, userID int64, spots int) *models.JoinRequest {
	t.Helper()
	companions := make([]models.Participant, spots-1)
	for i := range companions {
		companions[i] = models.Participant{Name: "guest", Surname: "n", Email: "g@example.com"}
	}
	req, err := e.svc.AskToJoin(context.Background(), tripID, userID, spots, companions, nil)
	if err != nil {
		t.Fatalf("failed to ask to join: %v", err)
	}
	return req
}

func TestPublishRequiresFullItinerary(t *testing.T) {
	env := newTripEnv(t)
	ctx := context.Background()
	creator := env.newUser(t, "alice")

	trip, err := env.svc.CreateTrip(ctx, creator, env.defaultInput())
	if err != nil {
		t.Fatalf("failed to create trip: %v", err)
	}
	if !trip.IsDraft {
		t.Error("new trip should be a draft")
	}

	if _, err := env.svc.Publish(ctx, trip.ID, creator); !errors.Is(err, models.ErrIncompleteItinerary) {
		t.Errorf("publish with empty itinerary: got %v, want ErrIncompleteItinerary", err)
	}

	// Covering two of three days is still incomplete.
	for day := 10; day <= 11; day++ {
		if _, err := env.svc.AddActivity(ctx, trip.ID, creator, models.Activity{
			Day: time.Date(2026, 3, day, 0, 0, 0, 0, time.UTC), TimeOfDay: "10:00", Description: "walk",
		}); err != nil {
			t.Fatalf("failed to add activity: %v", err)
		}
	}
	if _, err := env.svc.Publish(ctx, trip.ID, creator); !errors.Is(err, models.ErrIncompleteItinerary) {
		t.Errorf("publish with gap day: got %v, want ErrIncompleteItinerary", err)
	}

	if _, err := env.svc.AddActivity(ctx, trip.ID, creator, models.Activity{
		Day: time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC), TimeOfDay: "10:00", Description: "walk",
	}); err != nil {
		t.Fatalf("failed to add activity: %v", err)
	}

	published, err := env.svc.Publish(ctx, trip.ID, creator)
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if !published.Published || published.IsDraft {
		t.Errorf("published trip has Published=%v IsDraft=%v", published.Published, published.IsDraft)
	}
}

func TestPublishRejectsStartedTrip(t *testing.T) {
	env := newTripEnv(t)
	creator := env.newUser(t, "alice")
	trip := env.newTrip(t, creator)

	env.clock.Instant = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC) // start day
	if _, err := env.svc.Publish(context.Background(), trip.ID, creator); !errors.Is(err, models.ErrTripAlreadyStarted) {
		t.Errorf("publish on start day: got %v, want ErrTripAlreadyStarted", err)
	}
}

func TestPublishOnlyByCreator(t *testing.T) {
	env := newTripEnv(t)
	creator := env.newUser(t, "alice")
	stranger := env.newUser(t, "mallory")
	trip := env.newTrip(t, creator)

	if _, err := env.svc.Publish(context.Background(), trip.ID, stranger); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("publish by non-creator: got %v, want ErrForbidden", err)
	}
}

func TestJoinReservesSeatsImmediately(t *testing.T) {
	env := newTripEnv(t)
	ctx := context.Background()
	creator := env.newUser(t, "alice")
	bob := env.newUser(t, "bob")
	carol := env.newUser(t, "carol")
	trip := env.publishedTrip(t, creator)

	env.ask(t, trip.ID, bob, 2)

	available, err := env.svc.AvailableSpots(ctx, trip.ID)
	if err != nil {
		t.Fatalf("AvailableSpots failed: %v", err)
	}
	if available != 2 {
		t.Errorf("after pending ask of 2: available = %d, want 2", available)
	}

	// A pending request already holds its seats.
	if _, err := env.svc.AskToJoin(ctx, trip.ID, carol, 3,
		[]models.Participant{{Name: "a"}, {Name: "b"}}, nil); !errors.Is(err, models.ErrCapacityExceeded) {
		t.Errorf("ask of 3 with 2 left: got %v, want ErrCapacityExceeded", err)
	}

	env.ask(t, trip.ID, carol, 2)

	available, err = env.svc.AvailableSpots(ctx, trip.ID)
	if err != nil {
		t.Fatalf("AvailableSpots failed: %v", err)
	}
	if available != 0 {
		t.Errorf("after two asks of 2: available = %d, want 0", available)
	}
}

func TestAskToJoinGuards(t *testing.T) {
	env := newTripEnv(t)
	ctx := context.Background()
	creator := env.newUser(t, "alice")
	bob := env.newUser(t, "bob")

	t.Run("creator cannot join own trip", func(t *testing.T) {
		trip := env.publishedTrip(t, creator)
		if _, err := env.svc.AskToJoin(ctx, trip.ID, creator, 1, nil, nil); !models.IsValidation(err) {
			t.Errorf("got %v, want validation error", err)
		}
	})

	t.Run("draft trip not joinable", func(t *testing.T) {
		trip := env.newTrip(t, creator)
		if _, err := env.svc.AskToJoin(ctx, trip.ID, bob, 1, nil, nil); !models.IsValidation(err) {
			t.Errorf("got %v, want validation error", err)
		}
	})

	t.Run("unknown registered companion", func(t *testing.T) {
		trip := env.publishedTrip(t, creator)
		if _, err := env.svc.AskToJoin(ctx, trip.ID, bob, 2, nil, []int64{9999}); !errors.Is(err, models.ErrUnknownUser) {
			t.Errorf("got %v, want ErrUnknownUser", err)
		}
	})

	t.Run("started trip not joinable", func(t *testing.T) {
		trip := env.publishedTrip(t, creator)
		env.clock.Instant = time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)
		defer func() { env.clock.Instant = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }()
		if _, err := env.svc.AskToJoin(ctx, trip.ID, bob, 1, nil, nil); !errors.Is(err, models.ErrTripAlreadyStarted) {
			t.Errorf("got %v, want ErrTripAlreadyStarted", err)
		}
	})
}

func TestRepeatedAskReturnsExistingRequest(t *testing.T) {
	env := newTripEnv(t)
	creator := env.newUser(t, "alice")
	bob := env.newUser(t, "bob")
	trip := env.publishedTrip(t, creator)

	first := env.ask(t, trip.ID, bob, 2)
	second := env.ask(t, trip.ID, bob, 2)

	if first.IdempotencyKey != second.IdempotencyKey {
		t.Errorf("re-ask produced a new request: keys %q vs %q", first.IdempotencyKey, second.IdempotencyKey)
	}

	available, err := env.svc.AvailableSpots(context.Background(), trip.ID)
	if err != nil {
		t.Fatalf("AvailableSpots failed: %v", err)
	}
	if available != 2 {
		t.Errorf("re-ask double-reserved: available = %d, want 2", available)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	env := newTripEnv(t)
	ctx := context.Background()
	creator := env.newUser(t, "alice")
	bob := env.newUser(t, "bob")
	trip := env.publishedTrip(t, creator)

	env.ask(t, trip.ID, bob, 2)

	if err := env.svc.CancelAskToJoin(ctx, trip.ID, bob); err != nil {
		t.Fatalf("first cancel failed: %v", err)
	}
	if err := env.svc.CancelAskToJoin(ctx, trip.ID, bob); err != nil {
		t.Fatalf("second cancel failed: %v", err)
	}

	available, err := env.svc.AvailableSpots(ctx, trip.ID)
	if err != nil {
		t.Fatalf("AvailableSpots failed: %v", err)
	}
	if available != 4 {
		t.Errorf("after cancel: available = %d, want 4", available)
	}
}

func TestAcceptAndReject(t *testing.T) {
	env := newTripEnv(t)
	ctx := context.Background()
	creator := env.newUser(t, "alice")
	bob := env.newUser(t, "bob")
	carol := env.newUser(t, "carol")
	trip := env.publishedTrip(t, creator)

	env.ask(t, trip.ID, bob, 2)
	env.ask(t, trip.ID, carol, 2)

	if _, err := env.svc.AcceptRequest(ctx, trip.ID, bob, carol); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("accept by non-creator: got %v, want ErrForbidden", err)
	}

	accepted, err := env.svc.AcceptRequest(ctx, trip.ID, creator, bob)
	if err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if _, ok := accepted.Participants[bob]; !ok {
		t.Error("accepted user missing from participants")
	}
	if _, ok := accepted.AppliedUsers[bob]; ok {
		t.Error("accepted user still pending")
	}

	rejected, err := env.svc.RejectRequest(ctx, trip.ID, creator, carol)
	if err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	if _, ok := rejected.RejectedUsers[carol]; !ok {
		t.Error("rejected user not recorded")
	}

	// Rejection released the seats.
	available, err := env.svc.AvailableSpots(ctx, trip.ID)
	if err != nil {
		t.Fatalf("AvailableSpots failed: %v", err)
	}
	if available != 2 {
		t.Errorf("after accept 2 + reject 2: available = %d, want 2", available)
	}
}

func TestUpdateTripGuards(t *testing.T) {
	env := newTripEnv(t)
	ctx := context.Background()
	creator := env.newUser(t, "alice")
	bob := env.newUser(t, "bob")

	t.Run("cannot shrink below reserved seats", func(t *testing.T) {
		trip := env.publishedTrip(t, creator)
		env.ask(t, trip.ID, bob, 3)

		input := env.defaultInput()
		input.GroupSize = 2
		if _, err := env.svc.UpdateTrip(ctx, trip.ID, creator, input); !errors.Is(err, models.ErrCapacityExceeded) {
			t.Errorf("got %v, want ErrCapacityExceeded", err)
		}
	})

	t.Run("cannot strand activities outside new range", func(t *testing.T) {
		trip := env.newTrip(t, creator)
		input := env.defaultInput()
		input.EndDate = time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
		if _, err := env.svc.UpdateTrip(ctx, trip.ID, creator, input); !errors.Is(err, models.ErrOutOfRangeDate) {
			t.Errorf("got %v, want ErrOutOfRangeDate", err)
		}
	})

	t.Run("only creator may edit", func(t *testing.T) {
		trip := env.newTrip(t, creator)
		if _, err := env.svc.UpdateTrip(ctx, trip.ID, bob, env.defaultInput()); !errors.Is(err, models.ErrForbidden) {
			t.Errorf("got %v, want ErrForbidden", err)
		}
	})
}

func TestUnpublishBlockedByParticipants(t *testing.T) {
	env := newTripEnv(t)
	ctx := context.Background()
	creator := env.newUser(t, "alice")
	bob := env.newUser(t, "bob")
	trip := env.publishedTrip(t, creator)

	env.ask(t, trip.ID, bob, 1)
	if _, err := env.svc.AcceptRequest(ctx, trip.ID, creator, bob); err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	if _, err := env.svc.Unpublish(ctx, trip.ID, creator); !errors.Is(err, models.ErrHasParticipants) {
		t.Errorf("got %v, want ErrHasParticipants", err)
	}

	if err := env.svc.CancelAskToJoin(ctx, trip.ID, bob); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	unpublished, err := env.svc.Unpublish(ctx, trip.ID, creator)
	if err != nil {
		t.Fatalf("unpublish failed: %v", err)
	}
	if unpublished.Published {
		t.Error("trip still published after unpublish")
	}
}

func TestCompletionBumpsCountersOnce(t *testing.T) {
	env := newTripEnv(t)
	ctx := context.Background()
	creator := env.newUser(t, "alice")
	bob := env.newUser(t, "bob")
	trip := env.publishedTrip(t, creator)

	env.ask(t, trip.ID, bob, 1)
	if _, err := env.svc.AcceptRequest(ctx, trip.ID, creator, bob); err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	env.clock.Instant = time.Date(2026, 3, 13, 0, 30, 0, 0, time.UTC) // day after end

	got, err := env.svc.GetTrip(ctx, trip.ID)
	if err != nil {
		t.Fatalf("GetTrip failed: %v", err)
	}
	if got.Status != models.StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", got.Status)
	}

	for _, id := range []int64{creator, bob} {
		user, _, err := env.users.Get(ctx, id)
		if err != nil {
			t.Fatalf("failed to load user %d: %v", id, err)
		}
		if user.TripsCompleted != 1 {
			t.Errorf("user %d: TripsCompleted = %d, want 1", id, user.TripsCompleted)
		}
		if user.Reliability != 100 {
			t.Errorf("user %d: Reliability = %d, want 100", id, user.Reliability)
		}
	}

	// Re-reading must not double-count.
	if _, err := env.svc.GetTrip(ctx, trip.ID); err != nil {
		t.Fatalf("second GetTrip failed: %v", err)
	}
	user, _, err := env.users.Get(ctx, bob)
	if err != nil {
		t.Fatalf("failed to load user: %v", err)
	}
	if user.TripsCompleted != 1 {
		t.Errorf("second read double-counted: TripsCompleted = %d, want 1", user.TripsCompleted)
	}
}

func TestConcurrentReadsRecordCompletionOnce(t *testing.T) {
	env := newTripEnv(t)
	ctx := context.Background()
	creator := env.newUser(t, "alice")
	bob := env.newUser(t, "bob")
	trip := env.publishedTrip(t, creator)

	env.ask(t, trip.ID, bob, 1)
	if _, err := env.svc.AcceptRequest(ctx, trip.ID, creator, bob); err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	env.clock.Instant = time.Date(2026, 3, 13, 0, 30, 0, 0, time.UTC)

	// All readers observe the un-flagged document before any of them
	// takes the trip lock; only the one that flips CompletionRecorded
	// may run the side effects.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.svc.GetTrip(ctx, trip.ID); err != nil {
				t.Errorf("GetTrip failed: %v", err)
			}
		}()
	}
	wg.Wait()

	for _, id := range []int64{creator, bob} {
		user, _, err := env.users.Get(ctx, id)
		if err != nil {
			t.Fatalf("failed to load user %d: %v", id, err)
		}
		if user.TripsCompleted != 1 {
			t.Errorf("user %d: TripsCompleted = %d, want 1 (completion side effects ran more than once)", id, user.TripsCompleted)
		}
	}
}

func TestCompletionCreditsRegisteredCompanions(t *testing.T) {
	env := newTripEnv(t)
	ctx := context.Background()
	creator := env.newUser(t, "alice")
	bob := env.newUser(t, "bob")
	carol := env.newUser(t, "carol")
	trip := env.publishedTrip(t, creator)

	if _, err := env.svc.AskToJoin(ctx, trip.ID, bob, 2, nil, []int64{carol}); err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	if _, err := env.svc.AcceptRequest(ctx, trip.ID, creator, bob); err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	env.clock.Instant = time.Date(2026, 3, 13, 0, 30, 0, 0, time.UTC)
	if _, err := env.svc.GetTrip(ctx, trip.ID); err != nil {
		t.Fatalf("GetTrip failed: %v", err)
	}

	// The companion held a seat and gets the same credit as the
	// requester.
	for _, id := range []int64{creator, bob, carol} {
		user, _, err := env.users.Get(ctx, id)
		if err != nil {
			t.Fatalf("failed to load user %d: %v", id, err)
		}
		if user.TripsCompleted != 1 {
			t.Errorf("user %d: TripsCompleted = %d, want 1", id, user.TripsCompleted)
		}
	}
}

func TestAbandonedSeatLowersReliability(t *testing.T) {
	env := newTripEnv(t)
	ctx := context.Background()
	creator := env.newUser(t, "alice")
	bob := env.newUser(t, "bob")
	trip := env.publishedTrip(t, creator)

	env.ask(t, trip.ID, bob, 1)
	if _, err := env.svc.AcceptRequest(ctx, trip.ID, creator, bob); err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	if err := env.svc.CancelAskToJoin(ctx, trip.ID, bob); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	user, _, err := env.users.Get(ctx, bob)
	if err != nil {
		t.Fatalf("failed to load user: %v", err)
	}
	if user.TripsAbandoned != 1 {
		t.Errorf("TripsAbandoned = %d, want 1", user.TripsAbandoned)
	}
	if user.Reliability != 0 {
		t.Errorf("Reliability = %d, want 0", user.Reliability)
	}
}

func TestPendingCancelIsNotAbandonment(t *testing.T) {
	env := newTripEnv(t)
	ctx := context.Background()
	creator := env.newUser(t, "alice")
	bob := env.newUser(t, "bob")
	trip := env.publishedTrip(t, creator)

	env.ask(t, trip.ID, bob, 1)
	if err := env.svc.CancelAskToJoin(ctx, trip.ID, bob); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	user, _, err := env.users.Get(ctx, bob)
	if err != nil {
		t.Fatalf("failed to load user: %v", err)
	}
	if user.TripsAbandoned != 0 {
		t.Errorf("TripsAbandoned = %d, want 0", user.TripsAbandoned)
	}
}

func TestDeleteRemovesEmptyTrip(t *testing.T) {
	env := newTripEnv(t)
	ctx := context.Background()
	creator := env.newUser(t, "alice")
	trip := env.newTrip(t, creator)

	outcome, err := env.svc.DeleteTrip(ctx, trip.ID, creator)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if !outcome.Removed {
		t.Error("outcome.Removed = false, want true")
	}
	if _, err := env.svc.GetTrip(ctx, trip.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("trip still readable after delete: %v", err)
	}
}

func TestDeleteTransfersOwnership(t *testing.T) {
	env := newTripEnv(t)
	ctx := context.Background()
	creator := env.newUser(t, "alice")
	bob := env.newUser(t, "bob")
	carol := env.newUser(t, "carol")
	trip := env.publishedTrip(t, creator)

	for _, id := range []int64{bob, carol} {
		env.ask(t, trip.ID, id, 1)
		if _, err := env.svc.AcceptRequest(ctx, trip.ID, creator, id); err != nil {
			t.Fatalf("accept failed: %v", err)
		}
	}

	outcome, err := env.svc.DeleteTrip(ctx, trip.ID, creator)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if outcome.Removed {
		t.Error("trip with participants was removed, want ownership transfer")
	}

	successor := bob
	if carol < bob {
		successor = carol
	}
	if outcome.NewCreatorID != successor {
		t.Errorf("NewCreatorID = %d, want %d", outcome.NewCreatorID, successor)
	}

	got, err := env.svc.GetTrip(ctx, trip.ID)
	if err != nil {
		t.Fatalf("GetTrip failed: %v", err)
	}
	if got.CreatorID != successor {
		t.Errorf("CreatorID = %d, want %d", got.CreatorID, successor)
	}
	if _, ok := got.Participants[successor]; ok {
		t.Error("successor still holds a seat request as creator")
	}
}

func TestAvailableSpotsReportsViolation(t *testing.T) {
	env := newTripEnv(t)
	ctx := context.Background()
	creator := env.newUser(t, "alice")
	bob := env.newUser(t, "bob")
	trip := env.publishedTrip(t, creator)

	env.ask(t, trip.ID, bob, 3)
	if _, err := env.svc.AcceptRequest(ctx, trip.ID, creator, bob); err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	// Simulate an external writer shrinking the group under the
	// accepted seats.
	raw, version, err := env.trips.Get(ctx, trip.ID)
	if err != nil {
		t.Fatalf("failed to load trip: %v", err)
	}
	raw.GroupSize = 2
	if _, err := env.trips.Update(ctx, raw, version); err != nil {
		t.Fatalf("failed to write trip: %v", err)
	}

	if _, err := env.svc.AvailableSpots(ctx, trip.ID); !errors.Is(err, models.ErrCapacityViolation) {
		t.Errorf("got %v, want ErrCapacityViolation", err)
	}
}

func TestListByCreatorIncludesDrafts(t *testing.T) {
	env := newTripEnv(t)
	ctx := context.Background()
	creator := env.newUser(t, "alice")
	other := env.newUser(t, "bob")

	env.newTrip(t, creator)
	env.publishedTrip(t, creator)
	env.publishedTrip(t, other)

	mine, err := env.svc.ListByCreator(ctx, creator)
	if err != nil {
		t.Fatalf("ListByCreator failed: %v", err)
	}
	if len(mine) != 2 {
		t.Errorf("len(mine) = %d, want 2", len(mine))
	}

	published, err := env.svc.ListPublished(ctx)
	if err != nil {
		t.Fatalf("ListPublished failed: %v", err)
	}
	if len(published) != 2 {
		t.Errorf("len(published) = %d, want 2", len(published))
	}
	for _, trip := range published {
		if trip.IsDraft {
			t.Errorf("draft trip %d in published list", trip.ID)
		}
	}
}

func TestEditSessionNewTripCommitsOnce(t *testing.T) {
	env := newTripEnv(t)
	ctx := context.Background()
	creator := env.newUser(t, "alice")

	session, err := env.svc.BeginEdit(ctx, creator, NewTrip{Input: env.defaultInput()})
	if err != nil {
		t.Fatalf("BeginEdit failed: %v", err)
	}

	for day := 10; day <= 12; day++ {
		if _, err := session.PutActivity(models.Activity{
			Day: time.Date(2026, 3, day, 0, 0, 0, 0, time.UTC), TimeOfDay: "09:00", Description: "hike",
		}); err != nil {
			t.Fatalf("PutActivity failed: %v", err)
		}
	}

	// Nothing persisted before commit.
	drafts, err := env.svc.ListByCreator(ctx, creator)
	if err != nil {
		t.Fatalf("ListByCreator failed: %v", err)
	}
	if len(drafts) != 0 {
		t.Fatalf("session leaked %d trips before commit", len(drafts))
	}

	trip, err := env.svc.CommitEdit(ctx, session)
	if err != nil {
		t.Fatalf("CommitEdit failed: %v", err)
	}
	if trip.ID == models.UnsetID {
		t.Error("committed trip has no id")
	}

	got, err := env.svc.GetTrip(ctx, trip.ID)
	if err != nil {
		t.Fatalf("GetTrip failed: %v", err)
	}
	if len(got.Activities) != 3 {
		t.Errorf("committed trip has %d activity days, want 3", len(got.Activities))
	}
}

func TestEditSessionStaleCommitConflicts(t *testing.T) {
	env := newTripEnv(t)
	ctx := context.Background()
	creator := env.newUser(t, "alice")
	trip := env.newTrip(t, creator)

	session, err := env.svc.BeginEdit(ctx, creator, EditTrip{TripID: trip.ID})
	if err != nil {
		t.Fatalf("BeginEdit failed: %v", err)
	}

	// A direct edit lands between begin and commit.
	input := env.defaultInput()
	input.Title = "Renamed"
	if _, err := env.svc.UpdateTrip(ctx, trip.ID, creator, input); err != nil {
		t.Fatalf("UpdateTrip failed: %v", err)
	}

	input.Title = "From session"
	if err := session.SetFields(input); err != nil {
		t.Fatalf("SetFields failed: %v", err)
	}
	if _, err := env.svc.CommitEdit(ctx, session); !errors.Is(err, storage.ErrVersionConflict) {
		t.Errorf("stale commit: got %v, want ErrVersionConflict", err)
	}

	got, err := env.svc.GetTrip(ctx, trip.ID)
	if err != nil {
		t.Fatalf("GetTrip failed: %v", err)
	}
	if got.Title != "Renamed" {
		t.Errorf("Title = %q, stale session overwrote the newer edit", got.Title)
	}
}

// unavailableDocs fails every operation, standing in for a store that
// is down.
type unavailableDocs struct {
	gets int
}

func (d *unavailableDocs) Get(context.Context, string, string) (*storage.Document, error) {
	d.gets++
	return nil, errors.New("i/o timeout")
}

func (d *unavailableDocs) Put(context.Context, string, string, []byte, int64) (int64, error) {
	return 0, errors.New("i/o timeout")
}

func (d *unavailableDocs) Delete(context.Context, string, string) error {
	return errors.New("i/o timeout")
}

func (d *unavailableDocs) Query(context.Context, string, string, any) ([]storage.Document, error) {
	return nil, errors.New("i/o timeout")
}

func (d *unavailableDocs) List(context.Context, string) ([]storage.Document, error) {
	return nil, errors.New("i/o timeout")
}

func (d *unavailableDocs) NextID(context.Context, string) (int64, error) {
	return 0, errors.New("i/o timeout")
}

func (d *unavailableDocs) Close() error { return nil }

func TestReadRetriesWithoutTrailingBackoff(t *testing.T) {
	docs := &unavailableDocs{}
	svc := NewTripService(storage.NewTripStore(docs), storage.NewUserStore(docs),
		clock.At(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)), time.Second)

	start := time.Now()
	_, err := svc.GetTrip(context.Background(), 1)
	elapsed := time.Since(start)

	if !errors.Is(err, storage.ErrUnavailable) {
		t.Fatalf("got %v, want ErrUnavailable", err)
	}
	if docs.gets != readAttempts {
		t.Errorf("store was read %d times, want %d", docs.gets, readAttempts)
	}
	// Backoff runs between attempts, not after the last one.
	if elapsed >= readAttempts*retryBackoff {
		t.Errorf("read path took %v; backoff must not follow the final attempt", elapsed)
	}
}

func TestEditSessionActivityScope(t *testing.T) {
	env := newTripEnv(t)
	ctx := context.Background()
	creator := env.newUser(t, "alice")
	trip := env.newTrip(t, creator)

	if _, err := env.svc.BeginEdit(ctx, creator, EditActivity{TripID: trip.ID, ActivityID: 99}); !models.IsValidation(err) {
		t.Errorf("unknown activity: got %v, want validation error", err)
	}

	session, err := env.svc.BeginEdit(ctx, creator, EditActivity{TripID: trip.ID, ActivityID: 1})
	if err != nil {
		t.Fatalf("BeginEdit failed: %v", err)
	}
	activity, ok := session.Activity()
	if !ok {
		t.Fatal("session lost its activity")
	}

	activity.Description = "sunrise hike"
	if _, err := session.PutActivity(activity); err != nil {
		t.Fatalf("PutActivity failed: %v", err)
	}
	if _, err := env.svc.CommitEdit(ctx, session); err != nil {
		t.Fatalf("CommitEdit failed: %v", err)
	}

	got, err := env.svc.GetTrip(ctx, trip.ID)
	if err != nil {
		t.Fatalf("GetTrip failed: %v", err)
	}
	found := false
	for _, list := range got.Activities {
		for _, a := range list {
			if a.ID == 1 && a.Description == "sunrise hike" {
				found = true
			}
		}
	}
	if !found {
		t.Error("activity edit did not persist")
	}
}
