package outbox

const workoutSharedSchema = `{
  "type": "object",
  "title": "WorkoutShared",
  "properties": {
    "share_id": {"type": "string"},
    "workout_id": {"type": "string"},
    "coach_id": {"type": "string"},
    "athlete_id": {"type": "string"},
    "workout_name": {"type": "string"},
    "shared_at": {"type": "string", "format": "date-time"}
  },
  "required": ["share_id", "workout_id", "coach_id", "athlete_id", "workout_name", "shared_at"],
  "additionalProperties": false
}`

const shareStateChangedSchema = `{
  "type": "object",
  "title": "ShareStateChanged",
  "properties": {
    "share_id": {"type": "string"},
    "athlete_id": {"type": "string"},
    "state": {"type": "string"},
    "reason": {"type": "string"},
    "garmin_import_id": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["share_id", "athlete_id", "state", "occurred_at"],
  "additionalProperties": false
}`
