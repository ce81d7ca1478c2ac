package domain

import "testing"

func TestClassifySportKey(t *testing.T) {
	cases := []struct {
		raw  string
		want WorkoutType
	}{
		{"running", WorkoutTypeRunning},
		{"Running", WorkoutTypeRunning},
		{"TRAIL_RUNNING", WorkoutTypeRunning},
		{"treadmill_running", WorkoutTypeRunning},
		{"cycling", WorkoutTypeCycling},
		{"mountain_biking", WorkoutTypeCycling},
		{"indoor_cycling", WorkoutTypeCycling},
		{"lap_swimming", WorkoutTypeSwimming},
		{"open_water_swimming", WorkoutTypeSwimming},
		{"strength_training", WorkoutTypeStrength},
		{"cardio_training", WorkoutTypeStrength},
		// "cyc" outranks "cardio": priority order, not alphabetical.
		{"cardio_cycling", WorkoutTypeCycling},
		{"yoga", WorkoutTypeOther},
		{"unknown_sport", WorkoutTypeOther},
		{"", WorkoutTypeOther},
	}

	for _, tc := range cases {
		if got := ClassifySportKey(tc.raw); got != tc.want {
			t.Errorf("ClassifySportKey(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestParseWorkoutType(t *testing.T) {
	for _, valid := range []string{"running", "cycling", "swimming", "strength", "other"} {
		got, ok := ParseWorkoutType(valid)
		if !ok || string(got) != valid {
			t.Errorf("ParseWorkoutType(%q) = (%q, %v), want accepted", valid, got, ok)
		}
	}
	for _, invalid := range []string{"", "Running", "rowing", "all"} {
		if _, ok := ParseWorkoutType(invalid); ok {
			t.Errorf("ParseWorkoutType(%q) accepted, want rejected", invalid)
		}
	}
}

func TestShareStateTransitions(t *testing.T) {
	cases := []struct {
		from, to ShareState
		want     bool
	}{
		{ShareStatePending, ShareStateImported, true},
		{ShareStatePending, ShareStateFailed, true},
		{ShareStatePending, ShareStateRemoved, true},
		{ShareStateFailed, ShareStateImported, true},
		{ShareStateFailed, ShareStateFailed, true},
		{ShareStateFailed, ShareStateRemoved, true},
		{ShareStateImported, ShareStateRemoved, true},
		{ShareStateImported, ShareStateImported, false},
		{ShareStateImported, ShareStateFailed, false},
		{ShareStateRemoved, ShareStatePending, false},
		{ShareStateRemoved, ShareStateRemoved, false},
	}
	for _, tc := range cases {
		if got := tc.from.canTransition(tc.to); got != tc.want {
			t.Errorf("canTransition(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}
