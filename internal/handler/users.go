package handler

import (
	"net/http"

	"github.com/roamly/roamly/internal/models"
)

// publicUser is the profile shape exposed over the API. The password
// hash and email stay server-side.
type publicUser struct {
	ID          int64   `json:"id"`
	Username    string  `json:"username"`
	FirstName   string  `json:"first_name,omitempty"`
	LastName    string  `json:"last_name,omitempty"`
	Country     string  `json:"country,omitempty"`
	Rating      float64 `json:"rating"`
	RatingCount int     `json:"rating_count"`
	Reliability int     `json:"reliability"`
}

func toPublicUser(user *models.User) publicUser {
	return publicUser{
		ID:          user.ID,
		Username:    user.Username,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		Country:     user.Country,
		Rating:      user.Rating,
		RatingCount: user.RatingCount,
		Reliability: user.Reliability,
	}
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		writeError(w, err)
		return
	}
	user, _, err := h.users.Get(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPublicUser(user))
}
