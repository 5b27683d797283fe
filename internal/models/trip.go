package models

import "time"

// TripStatus is the date-derived lifecycle position of a trip.
// The stored value is a query index; lifecycle decisions always
// recompute it from the dates (see service.TripService).
type TripStatus string

const (
	StatusNotStarted TripStatus = "NOT_STARTED"
	StatusInProgress TripStatus = "IN_PROGRESS"
	StatusCompleted  TripStatus = "COMPLETED"
)

// UnsetID is the sentinel id of a trip that has not been persisted yet.
const UnsetID int64 = -1

// Trip represents a travel trip created by a user.
//
// The Activities map is keyed by calendar day ("2006-01-02", UTC
// midnight). Participants holds accepted join requests keyed by the
// requesting user's id; AppliedUsers holds pending requests and
// RejectedUsers holds declined ones. The three maps are disjoint.
type Trip struct {
	// ID is assigned by the store on creation; UnsetID before that.
	ID int64 `json:"id"`

	// CreatorID is the owning user. Ownership can be reassigned when
	// the creator deletes a trip that still has participants.
	CreatorID int64 `json:"creator_id"`

	Title          string  `json:"title"`
	Destination    string  `json:"destination"`
	EstimatedPrice float64 `json:"estimated_price"`

	// TravelTypes are free-form tags ("hiking", "city break", ...).
	TravelTypes []string `json:"travel_types"`

	// StartDate and EndDate bound the trip, inclusive. Both are
	// normalized to UTC midnight and StartDate <= EndDate.
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`

	// GroupSize is the fixed seat capacity.
	GroupSize int `json:"group_size"`

	// Activities is the itinerary, bucketed by day key.
	Activities map[string][]Activity `json:"activities"`

	Published bool `json:"published"`
	IsDraft   bool `json:"is_draft"`

	// Status mirrors the date-derived status for store queries.
	Status TripStatus `json:"status"`

	Participants  map[int64]JoinRequest `json:"participants"`
	AppliedUsers  map[int64]JoinRequest `json:"applied_users"`
	RejectedUsers map[int64]JoinRequest `json:"rejected_users"`

	// CompletionRecorded marks that the one-time completion side
	// effects (participant counters) have already run.
	CompletionRecorded bool `json:"completion_recorded"`

	// CreatedAt is the Unix timestamp when the trip was created.
	CreatedAt int64 `json:"created_at"`
}

// Activity is a single itinerary entry.
type Activity struct {
	// ID is unique within the trip, assigned as max(existing)+1 and
	// never reused.
	ID int `json:"id"`

	// Day is the calendar day (UTC midnight) the activity belongs to.
	Day time.Time `json:"day"`

	// TimeOfDay is a zero-padded "HH:MM" clock time. The format is
	// validated at insertion so lexicographic order is chronological.
	TimeOfDay string `json:"time_of_day"`

	Description string `json:"description"`

	// IsGroupActivity marks activities the whole group attends, as
	// opposed to free-time suggestions.
	IsGroupActivity bool `json:"is_group_activity"`
}

// JoinRequest asks for one or more seats on a trip. RequestedSpots
// always equals 1 (the requester) + len(RegisteredParticipants) +
// len(UnregisteredParticipants).
type JoinRequest struct {
	// UserID is the requesting user.
	UserID int64 `json:"user_id"`

	RequestedSpots int `json:"requested_spots"`

	// RegisteredParticipants are companion user ids that must exist in
	// the user directory.
	RegisteredParticipants []int64 `json:"registered_participants"`

	// UnregisteredParticipants are named proxy companions without an
	// account.
	UnregisteredParticipants []Participant `json:"unregistered_participants"`

	// IdempotencyKey identifies the request across retried writes.
	IdempotencyKey string `json:"idempotency_key"`

	// CreatedAt is the Unix timestamp when the request was filed.
	CreatedAt int64 `json:"created_at"`
}

// Participant is a proxy companion named by a requester.
type Participant struct {
	Name    string `json:"name"`
	Surname string `json:"surname"`
	Email   string `json:"email"`
}
