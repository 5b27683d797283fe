package seats

import (
	"errors"
	"reflect"
	"testing"

	"github.com/roamly/roamly/internal/models"
)

func fourSeatTrip() *models.Trip {
	return &models.Trip{
		ID:        1,
		CreatorID: 100,
		GroupSize: 4,
		Status:    models.StatusNotStarted,
	}
}

func request(userID int64, spots int) models.JoinRequest {
	req := models.JoinRequest{UserID: userID, RequestedSpots: spots}
	for i := 1; i < spots; i++ {
		req.UnregisteredParticipants = append(req.UnregisteredParticipants, models.Participant{
			Name: "Companion", Surname: "N", Email: "c@example.com",
		})
	}
	return req
}

func TestAskReservesCapacity(t *testing.T) {
	trip := fourSeatTrip()

	if _, err := Ask(trip, request(1, 2)); err != nil {
		t.Fatalf("First ask failed: %v", err)
	}
	if got := AvailableSpots(trip); got != 2 {
		t.Errorf("AvailableSpots = %d, want 2", got)
	}

	// 2+3 > 4: second ask must fail without mutating anything.
	if _, err := Ask(trip, request(2, 3)); !errors.Is(err, models.ErrCapacityExceeded) {
		t.Fatalf("Expected ErrCapacityExceeded, got %v", err)
	}
	if got := AvailableSpots(trip); got != 2 {
		t.Errorf("Failed ask changed availability: %d", got)
	}

	if _, err := Ask(trip, request(2, 2)); err != nil {
		t.Fatalf("Exact-fit ask failed: %v", err)
	}
	if got := AvailableSpots(trip); got != 0 {
		t.Errorf("AvailableSpots = %d, want 0", got)
	}
}

func TestMembership(t *testing.T) {
	trip := fourSeatTrip()

	// User 1 brings registered companion 7; user 2 stays pending.
	accepted := models.JoinRequest{UserID: 1, RequestedSpots: 2, RegisteredParticipants: []int64{7}}
	if _, err := Ask(trip, accepted); err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if err := Accept(trip, 1); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if _, err := Ask(trip, request(2, 1)); err != nil {
		t.Fatalf("Second ask failed: %v", err)
	}

	for _, id := range []int64{100, 1, 7} {
		if !IsMember(trip, id) {
			t.Errorf("IsMember(%d) = false, want true", id)
		}
	}
	for _, id := range []int64{2, 9} {
		if IsMember(trip, id) {
			t.Errorf("IsMember(%d) = true, want false", id)
		}
	}

	got := MemberIDs(trip)
	want := map[int64]bool{100: true, 1: true, 7: true}
	if len(got) != len(want) {
		t.Fatalf("MemberIDs = %v, want ids %v exactly once each", got, want)
	}
	for _, id := range got {
		if !want[id] {
			t.Errorf("MemberIDs contains unexpected id %d", id)
		}
	}
}

func TestAskValidation(t *testing.T) {
	tests := []struct {
		name string
		req  models.JoinRequest
	}{
		{"zero spots", models.JoinRequest{UserID: 1, RequestedSpots: 0}},
		{"negative spots", models.JoinRequest{UserID: 1, RequestedSpots: -2}},
		{"companions not accounted for", models.JoinRequest{
			UserID: 1, RequestedSpots: 1,
			UnregisteredParticipants: []models.Participant{{Name: "Extra"}},
		}},
		{"spots exceed named people", models.JoinRequest{UserID: 1, RequestedSpots: 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trip := fourSeatTrip()
			if _, err := Ask(trip, tt.req); !models.IsValidation(err) {
				t.Errorf("Ask() error = %v, want ValidationError", err)
			}
		})
	}
}

func TestAskIsIdempotent(t *testing.T) {
	trip := fourSeatTrip()
	first, err := Ask(trip, request(1, 2))
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}

	// Re-asking, even with different spots, returns the filed request.
	again, err := Ask(trip, request(1, 4))
	if err != nil {
		t.Fatalf("Re-ask failed: %v", err)
	}
	if !reflect.DeepEqual(first, again) {
		t.Errorf("Re-ask returned a different request: %+v vs %+v", first, again)
	}
	if got := ReservedSpots(trip); got != 2 {
		t.Errorf("ReservedSpots = %d, want 2", got)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	trip := fourSeatTrip()
	if _, err := Ask(trip, request(1, 2)); err != nil {
		t.Fatalf("Ask failed: %v", err)
	}

	removed, wasAccepted := Cancel(trip, 1)
	if !removed || wasAccepted {
		t.Errorf("Cancel = (%v, %v), want (true, false)", removed, wasAccepted)
	}
	snapshot := *trip

	removed, _ = Cancel(trip, 1)
	if removed {
		t.Error("Second cancel should be a no-op")
	}
	if !reflect.DeepEqual(snapshot, *trip) {
		t.Error("Second cancel changed trip state")
	}
	if got := AvailableSpots(trip); got != 4 {
		t.Errorf("AvailableSpots after cancel = %d, want 4", got)
	}
}

func TestAcceptAndReject(t *testing.T) {
	trip := fourSeatTrip()
	if _, err := Ask(trip, request(1, 2)); err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if _, err := Ask(trip, request(2, 1)); err != nil {
		t.Fatalf("Ask failed: %v", err)
	}

	if err := Accept(trip, 1); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if _, ok := trip.Participants[1]; !ok {
		t.Error("Accepted request missing from participants")
	}
	if _, ok := trip.AppliedUsers[1]; ok {
		t.Error("Accepted request still pending")
	}
	// Acceptance moves seats, it does not consume more.
	if got := AvailableSpots(trip); got != 1 {
		t.Errorf("AvailableSpots = %d, want 1", got)
	}

	if err := Reject(trip, 2); err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if _, ok := trip.RejectedUsers[2]; !ok {
		t.Error("Rejected request missing from rejected set")
	}
	if got := AvailableSpots(trip); got != 2 {
		t.Errorf("AvailableSpots after reject = %d, want 2", got)
	}

	if err := Accept(trip, 99); !models.IsValidation(err) {
		t.Errorf("Accepting unknown request: error = %v, want ValidationError", err)
	}
}

func TestAcceptRechecksShrunkCapacity(t *testing.T) {
	trip := fourSeatTrip()
	if _, err := Ask(trip, request(1, 3)); err != nil {
		t.Fatalf("Ask failed: %v", err)
	}

	// Capacity shrank after the request was filed.
	trip.GroupSize = 2
	if err := Accept(trip, 1); !errors.Is(err, models.ErrCapacityExceeded) {
		t.Fatalf("Expected ErrCapacityExceeded, got %v", err)
	}
	if _, ok := trip.AppliedUsers[1]; !ok {
		t.Error("Failed accept should leave the request pending")
	}
}

func TestRejectedUserCanReapply(t *testing.T) {
	trip := fourSeatTrip()
	if _, err := Ask(trip, request(1, 1)); err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if err := Reject(trip, 1); err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if _, err := Ask(trip, request(1, 1)); err != nil {
		t.Fatalf("Re-apply after rejection failed: %v", err)
	}
	if _, ok := trip.RejectedUsers[1]; ok {
		t.Error("Re-applying should clear the rejected entry")
	}
}

func TestCapacityInvariantHoldsAcrossTransitions(t *testing.T) {
	// After any accept/cancel/reject sequence the accepted sum never
	// exceeds GroupSize.
	trip := fourSeatTrip()
	ops := []func(){
		func() { Ask(trip, request(1, 2)) },
		func() { Ask(trip, request(2, 2)) },
		func() { Accept(trip, 1) },
		func() { Ask(trip, request(3, 1)) }, // full, must fail
		func() { Cancel(trip, 2) },
		func() { Ask(trip, request(3, 2)) },
		func() { Accept(trip, 3) },
		func() { Cancel(trip, 1) },
		func() { Ask(trip, request(4, 2)) },
		func() { Accept(trip, 4) },
	}
	for i, op := range ops {
		op()
		if AcceptedSpots(trip) > trip.GroupSize {
			t.Fatalf("Capacity invariant violated after op %d: %d > %d", i, AcceptedSpots(trip), trip.GroupSize)
		}
		if ReservedSpots(trip) > trip.GroupSize {
			t.Fatalf("Reservation invariant violated after op %d", i)
		}
	}
}

func TestViolationDetection(t *testing.T) {
	trip := fourSeatTrip()
	// Simulate a document mutated behind the allocator's back.
	trip.Participants = map[int64]models.JoinRequest{
		1: {UserID: 1, RequestedSpots: 3},
		2: {UserID: 2, RequestedSpots: 3},
	}

	if !Violated(trip) {
		t.Error("Expected violation to be detected")
	}
	if got := AvailableSpots(trip); got != 0 {
		t.Errorf("AvailableSpots = %d, want clamped 0", got)
	}
	if _, err := Ask(trip, request(3, 1)); !errors.Is(err, models.ErrCapacityViolation) {
		t.Errorf("Expected ErrCapacityViolation, got %v", err)
	}
}

func TestCanJoin(t *testing.T) {
	trip := fourSeatTrip()
	if !CanJoin(trip, models.StatusNotStarted) {
		t.Error("Fresh trip should accept joins")
	}
	if CanJoin(trip, models.StatusInProgress) {
		t.Error("Started trip should not accept joins")
	}

	if _, err := Ask(trip, request(1, 4)); err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if CanJoin(trip, models.StatusNotStarted) {
		t.Error("Full trip should not accept joins")
	}
}
