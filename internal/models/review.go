package models

// Review is either a review of a completed trip or a peer review of a
// fellow participant. Exactly one of the two: a trip review has
// IsTripReview set and ReviewedUserID zero; a peer review has
// ReviewedUserID set.
//
// A (ReviewerID, TripID, ReviewedUserID-or-trip) tuple is reviewed at
// most once; ReviewService enforces this before writing.
type Review struct {
	// ID is a UUID assigned by the store.
	ID string `json:"id"`

	TripID     int64 `json:"trip_id"`
	ReviewerID int64 `json:"reviewer_id"`

	// ReviewedUserID is the subject of a peer review; 0 for trip
	// reviews.
	ReviewedUserID int64 `json:"reviewed_user_id,omitempty"`

	IsTripReview bool `json:"is_trip_review"`

	// Score is in half-star units, 0..10 (2 points = 1 star).
	Score int `json:"score"`

	Title   string `json:"title"`
	Comment string `json:"comment"`

	// CreatedAt is the Unix timestamp when the review was submitted.
	CreatedAt int64 `json:"created_at"`
}

// MaxScore is the upper bound of Review.Score in half-star units.
const MaxScore = 10

// Stars converts a half-star score to stars for display.
func Stars(score int) float64 {
	return float64(score) / 2
}
