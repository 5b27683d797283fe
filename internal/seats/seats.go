// Package seats implements seat allocation for a trip: the capacity
// invariant, availability queries, and the ask/cancel/accept/reject
// transitions between pending, accepted and rejected join requests.
//
// Policy: seats are reserved at ask time. Both pending and accepted
// requests count against GroupSize, so acceptance never oversells; it
// only moves a request from AppliedUsers to Participants. Rejecting or
// cancelling releases the seats.
//
// Like package itinerary, everything here is pure computation on a
// trip value; the service layer owns locking and persistence.
package seats

import (
	"github.com/roamly/roamly/internal/models"
)

// AcceptedSpots is the seat sum over accepted join requests.
func AcceptedSpots(trip *models.Trip) int {
	return spotSum(trip.Participants)
}

// ReservedSpots is the seat sum over accepted plus pending requests.
func ReservedSpots(trip *models.Trip) int {
	return spotSum(trip.Participants) + spotSum(trip.AppliedUsers)
}

// AvailableSpots returns GroupSize minus all reserved seats. If
// external mutation drove the reserved sum past capacity the result is
// clamped to 0; Violated reports that state so callers can surface
// ErrCapacityViolation instead of hiding it.
func AvailableSpots(trip *models.Trip) int {
	free := trip.GroupSize - ReservedSpots(trip)
	if free < 0 {
		return 0
	}
	return free
}

// Violated reports whether the accepted seat sum exceeds GroupSize.
// This cannot happen through this package's entry points; it flags
// documents mutated behind the allocator's back.
func Violated(trip *models.Trip) bool {
	return AcceptedSpots(trip) > trip.GroupSize
}

// CanJoin reports whether the trip accepts further requests: it has
// not started and at least one seat is free.
func CanJoin(trip *models.Trip, status models.TripStatus) bool {
	return status == models.StatusNotStarted && AvailableSpots(trip) > 0
}

// MemberIDs returns the account-holding members of the trip: the
// creator, every accepted requester, and the registered companions
// named on accepted requests. Unregistered companions have no account
// and therefore no id. The result contains no duplicates.
func MemberIDs(trip *models.Trip) []int64 {
	seen := map[int64]bool{trip.CreatorID: true}
	ids := []int64{trip.CreatorID}
	for userID, req := range trip.Participants {
		if !seen[userID] {
			seen[userID] = true
			ids = append(ids, userID)
		}
		for _, companion := range req.RegisteredParticipants {
			if !seen[companion] {
				seen[companion] = true
				ids = append(ids, companion)
			}
		}
	}
	return ids
}

// IsMember reports whether the user holds a seat on the trip: as the
// creator, an accepted requester, or a registered companion on an
// accepted request. Pending applicants are not members.
func IsMember(trip *models.Trip, userID int64) bool {
	if trip.CreatorID == userID {
		return true
	}
	if _, ok := trip.Participants[userID]; ok {
		return true
	}
	for _, req := range trip.Participants {
		for _, companion := range req.RegisteredParticipants {
			if companion == userID {
				return true
			}
		}
	}
	return false
}

// RequestFor returns the user's join request, pending or accepted,
// together with whether it exists.
func RequestFor(trip *models.Trip, userID int64) (models.JoinRequest, bool) {
	if req, ok := trip.Participants[userID]; ok {
		return req, true
	}
	if req, ok := trip.AppliedUsers[userID]; ok {
		return req, true
	}
	return models.JoinRequest{}, false
}

// Ask files a join request, reserving its seats immediately.
//
// Re-asking while a request is pending or accepted is a no-op that
// returns the existing request. The seat count must exactly account
// for the requester and every named companion, and must fit in the
// remaining capacity.
func Ask(trip *models.Trip, req models.JoinRequest) (models.JoinRequest, error) {
	if existing, ok := RequestFor(trip, req.UserID); ok {
		return existing, nil
	}
	if req.RequestedSpots < 1 {
		return models.JoinRequest{}, models.Validationf("spots", "must be at least 1, got %d", req.RequestedSpots)
	}
	if companions := 1 + len(req.RegisteredParticipants) + len(req.UnregisteredParticipants); companions != req.RequestedSpots {
		return models.JoinRequest{}, models.Validationf("spots",
			"%d spots requested but request covers %d people", req.RequestedSpots, companions)
	}
	if Violated(trip) {
		return models.JoinRequest{}, models.ErrCapacityViolation
	}
	if req.RequestedSpots > AvailableSpots(trip) {
		return models.JoinRequest{}, models.ErrCapacityExceeded
	}

	if trip.AppliedUsers == nil {
		trip.AppliedUsers = make(map[int64]models.JoinRequest)
	}
	delete(trip.RejectedUsers, req.UserID)
	trip.AppliedUsers[req.UserID] = req
	return req, nil
}

// Cancel removes the user's request, pending or accepted, releasing
// its seats. Idempotent: cancelling twice leaves the same state as
// cancelling once. Reports whether a request was actually removed and
// whether the removed request had been accepted.
func Cancel(trip *models.Trip, userID int64) (removed, wasAccepted bool) {
	if _, ok := trip.Participants[userID]; ok {
		delete(trip.Participants, userID)
		return true, true
	}
	if _, ok := trip.AppliedUsers[userID]; ok {
		delete(trip.AppliedUsers, userID)
		return true, false
	}
	return false, false
}

// Accept moves a pending request into the accepted set. Capacity is
// re-checked at commit time: if the accepted sum would exceed
// GroupSize (capacity shrank since the request was filed), the request
// stays pending and ErrCapacityExceeded is returned.
func Accept(trip *models.Trip, userID int64) error {
	req, ok := trip.AppliedUsers[userID]
	if !ok {
		return models.Validationf("user_id", "user %d has no pending request", userID)
	}
	if AcceptedSpots(trip)+req.RequestedSpots > trip.GroupSize {
		return models.ErrCapacityExceeded
	}
	if trip.Participants == nil {
		trip.Participants = make(map[int64]models.JoinRequest)
	}
	delete(trip.AppliedUsers, userID)
	trip.Participants[userID] = req
	return nil
}

// Reject moves a pending request into the rejected set, releasing its
// seats.
func Reject(trip *models.Trip, userID int64) error {
	req, ok := trip.AppliedUsers[userID]
	if !ok {
		return models.Validationf("user_id", "user %d has no pending request", userID)
	}
	if trip.RejectedUsers == nil {
		trip.RejectedUsers = make(map[int64]models.JoinRequest)
	}
	delete(trip.AppliedUsers, userID)
	trip.RejectedUsers[userID] = req
	return nil
}

func spotSum(requests map[int64]models.JoinRequest) int {
	total := 0
	for _, req := range requests {
		total += req.RequestedSpots
	}
	return total
}
