package models

import (
	"errors"
	"fmt"
)

// Domain guard failures. All fallible operations return these; none
// are ever thrown as panics. Handlers map them to HTTP statuses with
// errors.Is.
var (
	// ErrCapacityExceeded means a request would push the reserved seat
	// sum past GroupSize.
	ErrCapacityExceeded = errors.New("not enough spots available")

	// ErrCapacityViolation means the accepted seat sum already exceeds
	// GroupSize (external mutation); never silently clamped.
	ErrCapacityViolation = errors.New("accepted seats exceed group size")

	// ErrIncompleteItinerary means some day in [start, end] has no
	// activity, so the trip cannot leave draft.
	ErrIncompleteItinerary = errors.New("every trip day needs at least one activity")

	// ErrTripAlreadyStarted means the start date is not in the future.
	ErrTripAlreadyStarted = errors.New("trip start date is not in the future")

	// ErrHasParticipants blocks unpublishing a trip that has accepted
	// participants other than the creator.
	ErrHasParticipants = errors.New("trip has participants other than the creator")

	// ErrOutOfRangeDate means an activity day falls outside the trip's
	// date range.
	ErrOutOfRangeDate = errors.New("date is outside the trip's date range")

	// ErrDuplicateReview means this reviewer already reviewed this
	// subject for this trip.
	ErrDuplicateReview = errors.New("already reviewed")

	// ErrNotAParticipant means the user never held an accepted seat on
	// the trip.
	ErrNotAParticipant = errors.New("user was not a participant of this trip")

	// ErrUnknownUser means a referenced user id does not exist in the
	// user directory.
	ErrUnknownUser = errors.New("unknown user")

	// ErrTripNotCompleted blocks reviews until the trip's end date has
	// passed.
	ErrTripNotCompleted = errors.New("trip is not completed yet")

	// ErrForbidden means the actor is not allowed to perform the
	// operation (e.g. non-creator editing activities).
	ErrForbidden = errors.New("operation not permitted for this user")
)

// ValidationError reports malformed input: negative spots, reversed
// dates, empty required text. Always recoverable locally.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validationf builds a ValidationError for the given field.
func Validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
