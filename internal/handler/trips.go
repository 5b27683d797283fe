package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/roamly/roamly/internal/middleware"
	"github.com/roamly/roamly/internal/models"
	"github.com/roamly/roamly/internal/service"
)

type tripRequest struct {
	Title          string   `json:"title"`
	Destination    string   `json:"destination"`
	StartDate      string   `json:"start_date"`
	EndDate        string   `json:"end_date"`
	GroupSize      int      `json:"group_size"`
	EstimatedPrice float64  `json:"estimated_price"`
	TravelTypes    []string `json:"travel_types"`
}

func (req *tripRequest) toInput() (service.TripInput, error) {
	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		return service.TripInput{}, models.Validationf("start_date", "must be YYYY-MM-DD")
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		return service.TripInput{}, models.Validationf("end_date", "must be YYYY-MM-DD")
	}
	return service.TripInput{
		Title:          req.Title,
		Destination:    req.Destination,
		StartDate:      start,
		EndDate:        end,
		GroupSize:      req.GroupSize,
		EstimatedPrice: req.EstimatedPrice,
		TravelTypes:    req.TravelTypes,
	}, nil
}

func (h *Handler) createTrip(w http.ResponseWriter, r *http.Request) {
	var req tripRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	input, err := req.toInput()
	if err != nil {
		writeError(w, err)
		return
	}

	trip, err := h.trips.CreateTrip(r.Context(), middleware.GetUserID(r.Context()), input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, trip)
}

// listTrips returns published trips, optionally filtered by the
// destination query parameter. mine=true returns the caller's own
// trips, drafts included.
func (h *Handler) listTrips(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		trips []models.Trip
		err   error
	)
	switch {
	case r.URL.Query().Get("mine") == "true":
		trips, err = h.trips.ListByCreator(ctx, middleware.GetUserID(ctx))
	case r.URL.Query().Get("destination") != "":
		trips, err = h.trips.ListByDestination(ctx, r.URL.Query().Get("destination"))
	default:
		trips, err = h.trips.ListPublished(ctx)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trips)
}

func (h *Handler) getTrip(w http.ResponseWriter, r *http.Request) {
	tripID, err := pathID(r, "tripID")
	if err != nil {
		writeError(w, err)
		return
	}
	trip, err := h.trips.GetTrip(r.Context(), tripID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

// updateTrip edits the trip fields through an edit session: the
// working copy is validated as a whole and committed in one write, so
// a concurrent edit surfaces as a conflict instead of being clobbered.
func (h *Handler) updateTrip(w http.ResponseWriter, r *http.Request) {
	tripID, err := pathID(r, "tripID")
	if err != nil {
		writeError(w, err)
		return
	}
	var req tripRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	input, err := req.toInput()
	if err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	session, err := h.trips.BeginEdit(ctx, middleware.GetUserID(ctx), service.EditTrip{TripID: tripID})
	if err != nil {
		writeError(w, err)
		return
	}
	if err := session.SetFields(input); err != nil {
		writeError(w, err)
		return
	}
	trip, err := h.trips.CommitEdit(ctx, session)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

func (h *Handler) deleteTrip(w http.ResponseWriter, r *http.Request) {
	tripID, err := pathID(r, "tripID")
	if err != nil {
		writeError(w, err)
		return
	}
	outcome, err := h.trips.DeleteTrip(r.Context(), tripID, middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (h *Handler) publishTrip(w http.ResponseWriter, r *http.Request) {
	tripID, err := pathID(r, "tripID")
	if err != nil {
		writeError(w, err)
		return
	}
	trip, err := h.trips.Publish(r.Context(), tripID, middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

func (h *Handler) unpublishTrip(w http.ResponseWriter, r *http.Request) {
	tripID, err := pathID(r, "tripID")
	if err != nil {
		writeError(w, err)
		return
	}
	trip, err := h.trips.Unpublish(r.Context(), tripID, middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

// ─── Itinerary ────────────────────────────────────────────────────────

type activityRequest struct {
	Day             string `json:"day"`
	TimeOfDay       string `json:"time_of_day"`
	Description     string `json:"description"`
	IsGroupActivity bool   `json:"is_group_activity"`
}

func (req *activityRequest) toModel(id int) (models.Activity, error) {
	day, err := time.Parse("2006-01-02", req.Day)
	if err != nil {
		return models.Activity{}, models.Validationf("day", "must be YYYY-MM-DD")
	}
	return models.Activity{
		ID:              id,
		Day:             day,
		TimeOfDay:       req.TimeOfDay,
		Description:     req.Description,
		IsGroupActivity: req.IsGroupActivity,
	}, nil
}

func (h *Handler) addActivity(w http.ResponseWriter, r *http.Request) {
	tripID, err := pathID(r, "tripID")
	if err != nil {
		writeError(w, err)
		return
	}
	var req activityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	activity, err := req.toModel(0)
	if err != nil {
		writeError(w, err)
		return
	}

	inserted, err := h.trips.AddActivity(r.Context(), tripID, middleware.GetUserID(r.Context()), activity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inserted)
}

// updateActivity edits one activity through an activity-scoped edit
// session, which verifies the activity exists before any change is
// staged.
func (h *Handler) updateActivity(w http.ResponseWriter, r *http.Request) {
	tripID, err := pathID(r, "tripID")
	if err != nil {
		writeError(w, err)
		return
	}
	activityID, err := pathID(r, "activityID")
	if err != nil {
		writeError(w, err)
		return
	}
	var req activityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	activity, err := req.toModel(int(activityID))
	if err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	session, err := h.trips.BeginEdit(ctx, middleware.GetUserID(ctx), service.EditActivity{
		TripID:     tripID,
		ActivityID: int(activityID),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := session.PutActivity(activity); err != nil {
		writeError(w, err)
		return
	}
	trip, err := h.trips.CommitEdit(ctx, session)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

func (h *Handler) deleteActivity(w http.ResponseWriter, r *http.Request) {
	tripID, err := pathID(r, "tripID")
	if err != nil {
		writeError(w, err)
		return
	}
	activityID, err := pathID(r, "activityID")
	if err != nil {
		writeError(w, err)
		return
	}

	trip, err := h.trips.DeleteActivity(r.Context(), tripID, middleware.GetUserID(r.Context()), int(activityID))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

// ─── Seats ────────────────────────────────────────────────────────────

type availabilityResponse struct {
	AvailableSpots int `json:"available_spots"`
}

func (h *Handler) availability(w http.ResponseWriter, r *http.Request) {
	tripID, err := pathID(r, "tripID")
	if err != nil {
		writeError(w, err)
		return
	}
	available, err := h.trips.AvailableSpots(r.Context(), tripID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, availabilityResponse{AvailableSpots: available})
}

type joinRequest struct {
	Spots                    int                  `json:"spots"`
	RegisteredParticipants   []int64              `json:"registered_participants"`
	UnregisteredParticipants []models.Participant `json:"unregistered_participants"`
}

func (h *Handler) askToJoin(w http.ResponseWriter, r *http.Request) {
	tripID, err := pathID(r, "tripID")
	if err != nil {
		writeError(w, err)
		return
	}
	var req joinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	filed, err := h.trips.AskToJoin(r.Context(), tripID, middleware.GetUserID(r.Context()),
		req.Spots, req.UnregisteredParticipants, req.RegisteredParticipants)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, filed)
}

func (h *Handler) cancelJoin(w http.ResponseWriter, r *http.Request) {
	tripID, err := pathID(r, "tripID")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.trips.CancelAskToJoin(r.Context(), tripID, middleware.GetUserID(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) acceptRequest(w http.ResponseWriter, r *http.Request) {
	h.resolveRequest(w, r, h.trips.AcceptRequest)
}

func (h *Handler) rejectRequest(w http.ResponseWriter, r *http.Request) {
	h.resolveRequest(w, r, h.trips.RejectRequest)
}

func (h *Handler) resolveRequest(w http.ResponseWriter, r *http.Request, resolve func(ctx context.Context, tripID, actorID, userID int64) (*models.Trip, error)) {
	tripID, err := pathID(r, "tripID")
	if err != nil {
		writeError(w, err)
		return
	}
	userID, err := pathID(r, "userID")
	if err != nil {
		writeError(w, err)
		return
	}

	trip, err := resolve(r.Context(), tripID, middleware.GetUserID(r.Context()), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}
