package domain

import "strings"

// ClassifySportKey maps a free-form Garmin sport-type key onto the platform's
// closed workout taxonomy. Matching is case-insensitive substring lookup in
// fixed priority order, first match wins; unknown keys fall through to other.
// The order is load-bearing: cached workout types and type filters depend on
// it (e.g. "cardio_cycling" resolves to cycling, not strength).
func ClassifySportKey(raw string) WorkoutType {
	key := strings.ToLower(raw)
	switch {
	case strings.Contains(key, "run"):
		return WorkoutTypeRunning
	case strings.Contains(key, "bik"), strings.Contains(key, "cyc"):
		return WorkoutTypeCycling
	case strings.Contains(key, "swim"):
		return WorkoutTypeSwimming
	case strings.Contains(key, "strength"), strings.Contains(key, "cardio"):
		return WorkoutTypeStrength
	default:
		return WorkoutTypeOther
	}
}

// ParseWorkoutType validates a workout-type filter value from the API layer.
func ParseWorkoutType(raw string) (WorkoutType, bool) {
	switch WorkoutType(raw) {
	case WorkoutTypeRunning, WorkoutTypeCycling, WorkoutTypeSwimming, WorkoutTypeStrength, WorkoutTypeOther:
		return WorkoutType(raw), true
	}
	return "", false
}
