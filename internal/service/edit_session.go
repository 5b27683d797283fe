package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roamly/roamly/internal/itinerary"
	"github.com/roamly/roamly/internal/models"
	"github.com/roamly/roamly/internal/observability"
	"github.com/roamly/roamly/internal/seats"
	"github.com/roamly/roamly/internal/storage"
)

// EditIntent names what an editing flow is about to touch. The three
// cases are a closed set: handlers construct exactly one of them and
// BeginEdit dispatches on it, so "editing an activity of no trip" or
// similar half-states cannot be represented.
type EditIntent interface {
	editIntent()
}

// NewTrip starts a session over a trip that does not exist yet.
type NewTrip struct {
	Input TripInput
}

// EditTrip starts a session over an existing trip's fields and
// itinerary.
type EditTrip struct {
	TripID int64
}

// EditActivity starts a session scoped to a single activity.
type EditActivity struct {
	TripID     int64
	ActivityID int
}

func (NewTrip) editIntent()      {}
func (EditTrip) editIntent()     {}
func (EditActivity) editIntent() {}

// EditSession is a working copy of one trip plus the version it was
// read at. Mutations accumulate in memory; nothing reaches the store
// until Commit, which validates the whole copy and writes once. A
// session whose base version has been overwritten fails the commit
// with a version conflict instead of clobbering the newer document.
type EditSession struct {
	intent  EditIntent
	actorID int64
	working *models.Trip
	version int64
}

// Trip exposes the session's working copy for rendering edit forms.
func (es *EditSession) Trip() *models.Trip { return es.working }

// Activity returns the activity an EditActivity session is scoped to.
func (es *EditSession) Activity() (models.Activity, bool) {
	intent, ok := es.intent.(EditActivity)
	if !ok {
		return models.Activity{}, false
	}
	for _, list := range es.working.Activities {
		for _, a := range list {
			if a.ID == intent.ActivityID {
				return a, true
			}
		}
	}
	return models.Activity{}, false
}

// SetFields replaces the editable trip fields on the working copy.
func (es *EditSession) SetFields(input TripInput) error {
	if err := validateTripInput(&input); err != nil {
		return err
	}
	input.applyTo(es.working)
	return nil
}

// PutActivity inserts or replaces an activity on the working copy.
func (es *EditSession) PutActivity(activity models.Activity) (models.Activity, error) {
	if activity.ID == 0 {
		return itinerary.Insert(es.working, activity)
	}
	if err := itinerary.Update(es.working, activity); err != nil {
		return models.Activity{}, err
	}
	return activity, nil
}

// RemoveActivity drops an activity from the working copy. Idempotent.
func (es *EditSession) RemoveActivity(activityID int) {
	itinerary.Delete(es.working, activityID)
}

// BeginEdit opens an edit session for the given intent. Existing trips
// must belong to the actor and must not have completed; an
// EditActivity intent additionally requires the activity to exist.
func (s *TripService) BeginEdit(ctx context.Context, actorID int64, intent EditIntent) (*EditSession, error) {
	switch it := intent.(type) {
	case NewTrip:
		input := it.Input
		if err := validateTripInput(&input); err != nil {
			return nil, err
		}
		draft := &models.Trip{
			ID:            models.UnsetID,
			CreatorID:     actorID,
			IsDraft:       true,
			Activities:    make(map[string][]models.Activity),
			Participants:  make(map[int64]models.JoinRequest),
			AppliedUsers:  make(map[int64]models.JoinRequest),
			RejectedUsers: make(map[int64]models.JoinRequest),
			CreatedAt:     s.clock.Now().Unix(),
		}
		input.applyTo(draft)
		draft.Status = DeriveStatus(draft, s.clock.Now())
		return &EditSession{intent: intent, actorID: actorID, working: draft}, nil

	case EditTrip:
		return s.beginExisting(ctx, actorID, intent, it.TripID)

	case EditActivity:
		session, err := s.beginExisting(ctx, actorID, intent, it.TripID)
		if err != nil {
			return nil, err
		}
		if _, ok := session.Activity(); !ok {
			return nil, models.Validationf("activity_id", "no activity with id %d", it.ActivityID)
		}
		return session, nil

	default:
		return nil, fmt.Errorf("unsupported edit intent %T", intent)
	}
}

func (s *TripService) beginExisting(ctx context.Context, actorID int64, intent EditIntent, tripID int64) (*EditSession, error) {
	trip, version, err := s.readTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if err := s.requireEditable(trip, actorID); err != nil {
		return nil, err
	}
	return &EditSession{intent: intent, actorID: actorID, working: trip, version: version}, nil
}

// CommitEdit validates the full working copy and writes it in a single
// store operation. For a NewTrip intent this is the insert that brings
// the trip into existence; for the edit intents it is a
// compare-and-set against the version the session was opened at.
func (s *TripService) CommitEdit(ctx context.Context, session *EditSession) (*models.Trip, error) {
	trip := session.working
	input := TripInput{
		Title:          trip.Title,
		Destination:    trip.Destination,
		StartDate:      trip.StartDate,
		EndDate:        trip.EndDate,
		GroupSize:      trip.GroupSize,
		EstimatedPrice: trip.EstimatedPrice,
		TravelTypes:    trip.TravelTypes,
	}
	if err := validateTripInput(&input); err != nil {
		return nil, err
	}
	if seats.ReservedSpots(trip) > trip.GroupSize {
		return nil, models.ErrCapacityExceeded
	}
	for _, list := range trip.Activities {
		for _, a := range list {
			day := itinerary.Normalize(a.Day)
			if day.Before(itinerary.Normalize(trip.StartDate)) || day.After(itinerary.Normalize(trip.EndDate)) {
				return nil, models.ErrOutOfRangeDate
			}
		}
	}

	if _, ok := session.intent.(NewTrip); ok {
		if err := s.createTrip(ctx, trip); err != nil {
			return nil, err
		}
		observability.TripsCreated.Inc()
		slog.Info("Trip created", "trip_id", trip.ID, "creator_id", trip.CreatorID)
		return trip, nil
	}

	unlock := s.locks.lock(trip.ID)
	defer unlock()

	trip.Status = DeriveStatus(trip, s.clock.Now())
	if _, err := s.writeTrip(ctx, trip, session.version); err != nil {
		if errors.Is(err, storage.ErrVersionConflict) {
			observability.VersionConflicts.Inc()
		}
		return nil, err
	}
	slog.Info("Trip edit committed", "trip_id", trip.ID)
	return trip, nil
}
