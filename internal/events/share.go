// Package events defines the event payloads emitted through the outbox.
package events

import "time"

// WorkoutShared is emitted when a coach shares a workout with an athlete.
type WorkoutShared struct {
	ShareID     string    `json:"share_id"`
	WorkoutID   string    `json:"workout_id"`
	CoachID     string    `json:"coach_id"`
	AthleteID   string    `json:"athlete_id"`
	WorkoutName string    `json:"workout_name"`
	SharedAt    time.Time `json:"shared_at"`
}

// ShareStateChanged tracks share lifecycle transitions (imported, failed,
// removed) for audit and optimistic UI flows.
type ShareStateChanged struct {
	ShareID        string    `json:"share_id"`
	AthleteID      string    `json:"athlete_id"`
	State          string    `json:"state"`
	Reason         string    `json:"reason,omitempty"`
	GarminImportID string    `json:"garmin_import_id,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}
