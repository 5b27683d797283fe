// Package clock abstracts time so lifecycle transitions are
// deterministically testable. Services never read ambient system time
// directly.
package clock

import "time"

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

// System reads the real wall clock.
type System struct{}

// Now returns the current UTC time.
func (System) Now() time.Time {
	return time.Now().UTC()
}

// Fixed is a test clock pinned to an instant.
type Fixed struct {
	Instant time.Time
}

// At pins a Fixed clock to t.
func At(t time.Time) *Fixed {
	return &Fixed{Instant: t}
}

// Now returns the pinned instant.
func (f *Fixed) Now() time.Time {
	return f.Instant
}

// Advance moves the pinned instant forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.Instant = f.Instant.Add(d)
}
