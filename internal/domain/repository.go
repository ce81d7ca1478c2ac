package domain

import (
	"context"
	"time"
)

// CredentialRepository persists encrypted Garmin credential records, one per
// user. Get returns (nil, nil) when no record exists.
type CredentialRepository interface {
	Get(ctx context.Context, userID string) (*Credential, error)
	Upsert(ctx context.Context, cred Credential) error
	Delete(ctx context.Context, userID string) error
}

// WorkoutRepository caches workouts pulled from coach accounts. Upsert keys on
// (coach_id, garmin_workout_id) and returns the stored row.
type WorkoutRepository interface {
	Upsert(ctx context.Context, workout Workout) (Workout, error)
	GetByGarminID(ctx context.Context, coachID, garminWorkoutID string) (*Workout, error)
	ListByCoach(ctx context.Context, coachID string) ([]Workout, error)
}

// ShareListing joins a shared workout with the cached workout it references,
// for athlete-facing listings.
type ShareListing struct {
	Share       SharedWorkout
	WorkoutName string
	WorkoutType WorkoutType
	Description string
}

// Cursor models the pagination token for share listings.
type Cursor struct {
	SharedAt time.Time
	ID       string
}

// ShareRepository persists coach→athlete shares and their lifecycle. Every
// state-changing write also records the matching outbox event in the same
// transaction and is durable once the call returns.
type ShareRepository interface {
	Create(ctx context.Context, share SharedWorkout) error
	// FindActive returns the pending or imported share for the pair, or (nil, nil).
	FindActive(ctx context.Context, workoutID, athleteID string) (*SharedWorkout, error)
	// GetForAthlete resolves a share scoped to the athlete together with its
	// workout. Returns ErrShareNotFound when absent or owned by someone else.
	GetForAthlete(ctx context.Context, shareID, athleteID string) (*SharedWorkout, *Workout, error)
	// ListByAthlete returns non-removed shares newest first, keyset-paginated.
	ListByAthlete(ctx context.Context, athleteID string, cursor *Cursor, limit int) ([]ShareListing, *Cursor, error)
	MarkImported(ctx context.Context, shareID, garminImportID string, importedAt time.Time) error
	MarkFailed(ctx context.Context, shareID, reason string) error
	MarkRemoved(ctx context.Context, shareID string) error
}
