// Package domain defines the business logic for the coaching bridge:
// cached Garmin workouts, coach→athlete shares, and their import lifecycle.
package domain

import (
	"errors"
	"time"
)

var (
	// ErrShareNotFound is returned when a shared workout cannot be located for the caller.
	ErrShareNotFound = errors.New("shared workout not found")
	// ErrShareConflict indicates an active share already exists for the (workout, athlete) pair.
	ErrShareConflict = errors.New("workout already shared with this athlete")
	// ErrNotConnected indicates the user has no connected Garmin credential record.
	ErrNotConnected = errors.New("garmin account not connected")
	// ErrCredentialNotFound is returned when no credential record exists for the user.
	ErrCredentialNotFound = errors.New("garmin credentials not found")
)

// WorkoutType is the platform's closed workout taxonomy.
type WorkoutType string

const (
	WorkoutTypeRunning  WorkoutType = "running"
	WorkoutTypeCycling  WorkoutType = "cycling"
	WorkoutTypeSwimming WorkoutType = "swimming"
	WorkoutTypeStrength WorkoutType = "strength"
	WorkoutTypeOther    WorkoutType = "other"
)

// ShareState tracks the import lifecycle of a shared workout.
type ShareState string

const (
	ShareStatePending  ShareState = "pending"
	ShareStateImported ShareState = "imported"
	ShareStateFailed   ShareState = "failed"
	ShareStateRemoved  ShareState = "removed"
)

// canTransition reports whether moving from s to next is a legal lifecycle step.
// imported and removed are terminal for the import flow; failed stays retriable.
func (s ShareState) canTransition(next ShareState) bool {
	switch s {
	case ShareStatePending:
		return next == ShareStateImported || next == ShareStateFailed || next == ShareStateRemoved
	case ShareStateFailed:
		return next == ShareStateImported || next == ShareStateFailed || next == ShareStateRemoved
	case ShareStateImported:
		return next == ShareStateRemoved
	case ShareStateRemoved:
		return false
	}
	return false
}

// active reports whether the share still occupies the (workout, athlete) slot.
func (s ShareState) active() bool {
	return s == ShareStatePending || s == ShareStateImported
}

// Credential holds a user's encrypted Garmin Connect credentials.
type Credential struct {
	UserID            string
	EmailEncrypted    string
	PasswordEncrypted string
	Connected         bool
	LastSync          *time.Time
	ConnectionError   *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Workout is a cached copy of one workout pulled from a coach's Garmin account.
// GarminWorkoutID is stable per Garmin account; uniqueness is scoped to
// (coach_id, garmin_workout_id).
type Workout struct {
	ID              string
	CoachID         string
	GarminWorkoutID string
	Name            string
	Type            WorkoutType
	Description     string
	Payload         []byte
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SharedWorkout is the coach→athlete edge tracking one sharing transaction.
type SharedWorkout struct {
	ID             string
	WorkoutID      string
	CoachID        string
	AthleteID      string
	State          ShareState
	ImportError    *string
	GarminImportID *string
	SharedAt       time.Time
	ImportedAt     *time.Time
}
