// Package handler exposes the HTTP API: auth, trips, itinerary,
// join requests, reviews and user profiles. Handlers decode and
// validate the transport layer, delegate to the services and map
// domain errors to HTTP statuses; no business rules live here.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/roamly/roamly/internal/auth"
	"github.com/roamly/roamly/internal/middleware"
	"github.com/roamly/roamly/internal/models"
	"github.com/roamly/roamly/internal/service"
	"github.com/roamly/roamly/internal/storage"
)

const maxBodyBytes = 1 << 20 // 1 MiB

// Handler carries the service dependencies for all routes.
type Handler struct {
	trips         *service.TripService
	reviews       *service.ReviewService
	users         *storage.UserStore
	authenticator *auth.PasswordAuthenticator
	jwt           *auth.JWTManager
}

// New constructs the API handler.
func New(trips *service.TripService, reviews *service.ReviewService, users *storage.UserStore, authenticator *auth.PasswordAuthenticator, jwtManager *auth.JWTManager) *Handler {
	return &Handler{
		trips:         trips,
		reviews:       reviews,
		users:         users,
		authenticator: authenticator,
		jwt:           jwtManager,
	}
}

// Routes mounts every API route. Everything except registration and
// login requires a Bearer token.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/auth/register", h.register)
	r.Post("/auth/login", h.login)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.jwt))

		r.Route("/trips", func(r chi.Router) {
			r.Get("/", h.listTrips)
			r.Post("/", h.createTrip)

			r.Route("/{tripID}", func(r chi.Router) {
				r.Get("/", h.getTrip)
				r.Put("/", h.updateTrip)
				r.Delete("/", h.deleteTrip)

				r.Post("/publish", h.publishTrip)
				r.Post("/unpublish", h.unpublishTrip)

				r.Post("/activities", h.addActivity)
				r.Put("/activities/{activityID}", h.updateActivity)
				r.Delete("/activities/{activityID}", h.deleteActivity)

				r.Get("/availability", h.availability)
				r.Post("/join", h.askToJoin)
				r.Delete("/join", h.cancelJoin)
				r.Post("/requests/{userID}/accept", h.acceptRequest)
				r.Post("/requests/{userID}/reject", h.rejectRequest)

				r.Post("/reviews", h.submitReview)
				r.Get("/reviews", h.listTripReviews)
			})
		})

		r.Get("/users/{userID}", h.getUser)
		r.Get("/users/{userID}/reviews", h.listUserReviews)
	})
}

// ─── Transport helpers ────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps a domain error to its HTTP status. Unknown errors
// become opaque 500s so internals never leak to clients.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"

	switch {
	case models.IsValidation(err),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, models.ErrOutOfRangeDate),
		errors.Is(err, models.ErrIncompleteItinerary):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, auth.ErrInvalidCredentials):
		status, message = http.StatusUnauthorized, err.Error()
	case errors.Is(err, models.ErrForbidden),
		errors.Is(err, models.ErrNotAParticipant):
		status, message = http.StatusForbidden, err.Error()
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, models.ErrUnknownUser):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, auth.ErrUsernameExists),
		errors.Is(err, auth.ErrEmailExists),
		errors.Is(err, models.ErrCapacityExceeded),
		errors.Is(err, models.ErrDuplicateReview),
		errors.Is(err, models.ErrTripAlreadyStarted),
		errors.Is(err, models.ErrTripNotCompleted),
		errors.Is(err, models.ErrHasParticipants),
		errors.Is(err, models.ErrCapacityViolation),
		errors.Is(err, storage.ErrVersionConflict):
		status, message = http.StatusConflict, err.Error()
	case errors.Is(err, storage.ErrUnavailable):
		status, message = http.StatusServiceUnavailable, "storage temporarily unavailable"
	default:
		slog.Error("Unhandled error", "error", err)
	}

	writeJSON(w, status, errorResponse{Error: message})
}

// decodeJSON reads a bounded request body, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return models.Validationf("body", "malformed request: %v", err)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, models.Validationf(name, "must be a number")
	}
	return id, nil
}
