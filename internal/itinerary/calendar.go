// Package itinerary implements the activity-calendar computations for
// a trip: day bucketing, the 1-based day index, the full-coverage
// check that gates publishing, and activity insert/update/delete on
// the per-day lists.
//
// All functions are pure data operations on a trip value the caller
// already holds; persistence and locking are the service layer's job.
package itinerary

import (
	"sort"
	"time"

	"github.com/roamly/roamly/internal/models"
)

const dayKeyLayout = "2006-01-02"

// Normalize truncates t to UTC midnight.
func Normalize(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DayKey returns the Activities map key for a calendar day.
func DayKey(t time.Time) string {
	return Normalize(t).Format(dayKeyLayout)
}

// ParseDayKey is the inverse of DayKey.
func ParseDayKey(key string) (time.Time, error) {
	return time.ParseInLocation(dayKeyLayout, key, time.UTC)
}

// DayIndex returns the 1-based index of activityDay relative to
// tripStart: the start day itself is day 1. Both instants are
// normalized to midnight first. The result is never negative for a
// well-formed trip because activity days are range-checked at
// insertion.
func DayIndex(activityDay, tripStart time.Time) int {
	diff := Normalize(activityDay).Sub(Normalize(tripStart))
	return int(diff.Hours()/24) + 1
}

// DaySpan returns the inclusive number of calendar days between start
// and end.
func DaySpan(start, end time.Time) int {
	return DayIndex(end, start)
}

// HasActivityEachDay reports whether every calendar day in
// [StartDate, EndDate] has at least one activity. This is the sole
// gate for a trip leaving draft state.
func HasActivityEachDay(trip *models.Trip) bool {
	for day := Normalize(trip.StartDate); !day.After(Normalize(trip.EndDate)); day = day.AddDate(0, 0, 1) {
		if len(trip.Activities[DayKey(day)]) == 0 {
			return false
		}
	}
	return true
}

// NextActivityID returns 1 for a trip with no activities, otherwise
// max(existing ids)+1. Ids are never reused. Callers that fetched the
// trip earlier must re-check for collisions against concurrently added
// activities before committing.
func NextActivityID(trip *models.Trip) int {
	maxID := 0
	for _, list := range trip.Activities {
		for _, a := range list {
			if a.ID > maxID {
				maxID = a.ID
			}
		}
	}
	return maxID + 1
}

// Insert validates the activity and appends it to its day bucket,
// assigning the next free id. The day must fall inside the trip's date
// range or ErrOutOfRangeDate is returned; nothing is mutated on
// failure.
func Insert(trip *models.Trip, activity models.Activity) (models.Activity, error) {
	normalized, err := validate(trip, &activity)
	if err != nil {
		return models.Activity{}, err
	}
	activity.ID = NextActivityID(trip)

	if trip.Activities == nil {
		trip.Activities = make(map[string][]models.Activity)
	}
	key := DayKey(normalized)
	trip.Activities[key] = append(trip.Activities[key], activity)
	return activity, nil
}

// Update replaces the activity with the same id, moving it between day
// buckets if the day changed. An unknown id yields a ValidationError;
// a day outside the trip range yields ErrOutOfRangeDate.
func Update(trip *models.Trip, activity models.Activity) error {
	if _, _, ok := find(trip, activity.ID); !ok {
		return models.Validationf("activity_id", "no activity with id %d", activity.ID)
	}
	normalized, err := validate(trip, &activity)
	if err != nil {
		return err
	}
	Delete(trip, activity.ID)
	key := DayKey(normalized)
	trip.Activities[key] = append(trip.Activities[key], activity)
	return nil
}

// Delete removes the activity with the given id. Idempotent: deleting
// an absent id reports false and changes nothing.
func Delete(trip *models.Trip, activityID int) bool {
	key, idx, ok := find(trip, activityID)
	if !ok {
		return false
	}
	list := trip.Activities[key]
	trip.Activities[key] = append(list[:idx:idx], list[idx+1:]...)
	if len(trip.Activities[key]) == 0 {
		delete(trip.Activities, key)
	}
	return true
}

// DayActivities returns the activities of one calendar day ordered by
// time of day. The sort is stable, so entries sharing a time keep
// insertion order. The returned slice is a copy.
func DayActivities(trip *models.Trip, day time.Time) []models.Activity {
	list := trip.Activities[DayKey(day)]
	out := make([]models.Activity, len(list))
	copy(out, list)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TimeOfDay < out[j].TimeOfDay
	})
	return out
}

// validate checks the activity fields, normalizes Day and TimeOfDay in
// place, and returns the normalized day.
func validate(trip *models.Trip, activity *models.Activity) (time.Time, error) {
	if activity.Description == "" {
		return time.Time{}, models.Validationf("description", "must not be empty")
	}
	parsed, err := time.Parse("15:04", activity.TimeOfDay)
	if err != nil {
		return time.Time{}, models.Validationf("time_of_day", "must be HH:MM, got %q", activity.TimeOfDay)
	}
	// Canonical zero-padded form keeps lexicographic order chronological.
	activity.TimeOfDay = parsed.Format("15:04")

	day := Normalize(activity.Day)
	if day.Before(Normalize(trip.StartDate)) || day.After(Normalize(trip.EndDate)) {
		return time.Time{}, models.ErrOutOfRangeDate
	}
	activity.Day = day
	return day, nil
}

func find(trip *models.Trip, activityID int) (key string, idx int, ok bool) {
	for k, list := range trip.Activities {
		for i, a := range list {
			if a.ID == activityID {
				return k, i, true
			}
		}
	}
	return "", 0, false
}
