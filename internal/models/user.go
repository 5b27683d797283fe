package models

import "math"

// User represents a registered account.
//
// Rating, RatingCount and Reliability are derived aggregates owned by
// ReviewService and TripService; they are never hand-edited.
type User struct {
	// ID is assigned by the store on registration.
	ID int64 `json:"id"`

	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Country   string `json:"country"`

	// PasswordHash is the bcrypt hash of the password. Never serialized
	// to API responses (see handler.publicUser).
	PasswordHash string `json:"password_hash"`

	// Rating is the mean of received peer-review scores, in stars
	// (0.0-5.0). Zero until the first review is received.
	Rating float64 `json:"rating"`

	// RatingCount is how many peer reviews the mean covers.
	RatingCount int `json:"rating_count"`

	// Reliability is a percentage derived from completed-trip
	// attendance vs. abandoned seats.
	Reliability int `json:"reliability"`

	// TripsCompleted counts trips that reached COMPLETED while the
	// user held an accepted seat.
	TripsCompleted int `json:"trips_completed"`

	// TripsAbandoned counts accepted seats the user cancelled on a
	// published trip before it started.
	TripsAbandoned int `json:"trips_abandoned"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// ReliabilityScore derives the reliability percentage from attendance
// counters. Users with no history start at 100; added completions can
// only raise the score, never lower it.
func ReliabilityScore(completed, abandoned int) int {
	if completed <= 0 && abandoned <= 0 {
		return 100
	}
	if completed < 0 {
		completed = 0
	}
	if abandoned < 0 {
		abandoned = 0
	}
	return int(math.Round(100 * float64(completed) / float64(completed+abandoned)))
}
