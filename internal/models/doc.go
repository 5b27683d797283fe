// Package models defines the core domain types for Roamly.
//
// # Models
//
//   - Trip: the central schedulable entity with dates, capacity,
//     itinerary, and participants
//   - Activity: a single itinerary entry on one calendar day
//   - JoinRequest: a request (pending or accepted) to occupy one or
//     more seats on a trip, possibly bundling proxy participants
//   - Participant: a non-platform companion named by a requester
//   - Review: a trip review or a peer review of another participant
//   - User: a registered account, including the derived rating and
//     reliability aggregates
//
// # Design Principles
//
// 1. **Plain values**: models carry data only; lifecycle and seat
// logic live in internal/service, internal/seats and
// internal/itinerary so every invariant has a single home.
//
// 2. **Derived fields are caches**: Trip.Status, User.Rating and
// User.Reliability are recomputed from source data; they are persisted
// purely so the store can query on them.
//
// 3. **Avoid circular references**: relationships use ids, never
// pointers between models.
//
// The domain sentinel errors shared across layers live in errors.go.
package models
