package service

import (
	"time"

	"github.com/roamly/roamly/internal/itinerary"
	"github.com/roamly/roamly/internal/models"
)

// DeriveStatus computes a trip's lifecycle position from its dates.
// Comparison is by calendar day: the trip is IN_PROGRESS throughout
// its last day and COMPLETED from the following midnight. The stored
// Status field is only a query index; every lifecycle decision goes
// through this function with the injected clock.
func DeriveStatus(trip *models.Trip, now time.Time) models.TripStatus {
	today := itinerary.Normalize(now)
	switch {
	case today.After(itinerary.Normalize(trip.EndDate)):
		return models.StatusCompleted
	case today.Before(itinerary.Normalize(trip.StartDate)):
		return models.StatusNotStarted
	default:
		return models.StatusInProgress
	}
}
