package auth

// Known OAuth scopes and roles used by the API.
const (
	ScopeWorkoutsRead  = "workouts:read"
	ScopeWorkoutsWrite = "workouts:write"
	ScopeGarminManage  = "garmin:manage"

	RoleCoach   = "coach"
	RoleAthlete = "athlete"
)
