package handler

import (
	"net/http"

	"github.com/roamly/roamly/internal/middleware"
)

type reviewRequest struct {
	// ReviewedUserID set to a participant makes this a peer review;
	// left zero it reviews the trip itself.
	ReviewedUserID int64 `json:"reviewed_user_id,omitempty"`

	Score   int    `json:"score"`
	Title   string `json:"title"`
	Comment string `json:"comment"`
}

func (h *Handler) submitReview(w http.ResponseWriter, r *http.Request) {
	tripID, err := pathID(r, "tripID")
	if err != nil {
		writeError(w, err)
		return
	}
	var req reviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	reviewerID := middleware.GetUserID(ctx)

	if req.ReviewedUserID != 0 {
		review, err := h.reviews.SubmitPeerReview(ctx, reviewerID, tripID, req.ReviewedUserID, req.Score, req.Title, req.Comment)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, review)
		return
	}

	review, err := h.reviews.SubmitTripReview(ctx, reviewerID, tripID, req.Score, req.Title, req.Comment)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, review)
}

func (h *Handler) listTripReviews(w http.ResponseWriter, r *http.Request) {
	tripID, err := pathID(r, "tripID")
	if err != nil {
		writeError(w, err)
		return
	}
	reviews, err := h.reviews.ListTripReviews(r.Context(), tripID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reviews)
}

func (h *Handler) listUserReviews(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		writeError(w, err)
		return
	}
	reviews, err := h.reviews.ListUserReviews(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reviews)
}
