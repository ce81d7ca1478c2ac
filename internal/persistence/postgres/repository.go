// Package postgres provides pgx-backed persistence for credentials, cached
// workouts, shares, and their outbox events.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/coachsync/internal/domain"
	"example.com/coachsync/internal/events"
)

// CredentialRepository stores encrypted Garmin credential records.
type CredentialRepository struct {
	pool *pgxpool.Pool
}

// NewCredentialRepository constructs a CredentialRepository.
func NewCredentialRepository(pool *pgxpool.Pool) *CredentialRepository {
	return &CredentialRepository{pool: pool}
}

// Get loads the credential record for a user, or (nil, nil) when absent.
func (r *CredentialRepository) Get(ctx context.Context, userID string) (*domain.Credential, error) {
	const query = `SELECT user_id, email_encrypted, password_encrypted, connected, last_sync, connection_error, created_at, updated_at
        FROM garmin_credentials WHERE user_id=$1`

	row := r.pool.QueryRow(ctx, query, userID)
	var cred domain.Credential
	if err := row.Scan(&cred.UserID, &cred.EmailEncrypted, &cred.PasswordEncrypted, &cred.Connected,
		&cred.LastSync, &cred.ConnectionError, &cred.CreatedAt, &cred.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &cred, nil
}

// Upsert replaces the credential record wholesale; reconnect overwrites, it
// does not version.
func (r *CredentialRepository) Upsert(ctx context.Context, cred domain.Credential) error {
	const stmt = `INSERT INTO garmin_credentials (user_id, email_encrypted, password_encrypted, connected, last_sync, connection_error, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW())
        ON CONFLICT (user_id) DO UPDATE SET
            email_encrypted=EXCLUDED.email_encrypted,
            password_encrypted=EXCLUDED.password_encrypted,
            connected=EXCLUDED.connected,
            last_sync=EXCLUDED.last_sync,
            connection_error=EXCLUDED.connection_error,
            updated_at=NOW()`

	_, err := r.pool.Exec(ctx, stmt,
		cred.UserID, cred.EmailEncrypted, cred.PasswordEncrypted, cred.Connected, cred.LastSync, cred.ConnectionError)
	return err
}

// Delete removes the credential record.
func (r *CredentialRepository) Delete(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM garmin_credentials WHERE user_id=$1`, userID)
	return err
}

// WorkoutRepository caches workouts pulled from coach Garmin accounts.
type WorkoutRepository struct {
	pool *pgxpool.Pool
}

// NewWorkoutRepository constructs a WorkoutRepository.
func NewWorkoutRepository(pool *pgxpool.Pool) *WorkoutRepository {
	return &WorkoutRepository{pool: pool}
}

const workoutColumns = `workout_id, coach_id, garmin_workout_id, workout_name, workout_type, description, payload, created_at, updated_at`

// Upsert caches a workout keyed on (coach_id, garmin_workout_id) and returns
// the stored row, preserving the original workout_id on refresh.
func (r *WorkoutRepository) Upsert(ctx context.Context, workout domain.Workout) (domain.Workout, error) {
	stmt := `INSERT INTO workouts (` + workoutColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,NOW(),NOW())
        ON CONFLICT (coach_id, garmin_workout_id) DO UPDATE SET
            workout_name=EXCLUDED.workout_name,
            workout_type=EXCLUDED.workout_type,
            description=EXCLUDED.description,
            payload=EXCLUDED.payload,
            updated_at=NOW()
        RETURNING ` + workoutColumns

	row := r.pool.QueryRow(ctx, stmt,
		workout.ID, workout.CoachID, workout.GarminWorkoutID, workout.Name, workout.Type, workout.Description, workout.Payload)
	return scanWorkout(row)
}

// GetByGarminID resolves a cached workout, or (nil, nil) when absent.
func (r *WorkoutRepository) GetByGarminID(ctx context.Context, coachID, garminWorkoutID string) (*domain.Workout, error) {
	query := `SELECT ` + workoutColumns + ` FROM workouts WHERE coach_id=$1 AND garmin_workout_id=$2`

	row := r.pool.QueryRow(ctx, query, coachID, garminWorkoutID)
	workout, err := scanWorkout(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &workout, nil
}

// ListByCoach returns the coach's cached workouts, newest first.
func (r *WorkoutRepository) ListByCoach(ctx context.Context, coachID string) ([]domain.Workout, error) {
	query := `SELECT ` + workoutColumns + ` FROM workouts WHERE coach_id=$1 ORDER BY created_at DESC, workout_id DESC`

	rows, err := r.pool.Query(ctx, query, coachID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workouts []domain.Workout
	for rows.Next() {
		workout, err := scanWorkout(rows)
		if err != nil {
			return nil, err
		}
		workouts = append(workouts, workout)
	}
	return workouts, rows.Err()
}

func scanWorkout(row pgx.Row) (domain.Workout, error) {
	var w domain.Workout
	err := row.Scan(&w.ID, &w.CoachID, &w.GarminWorkoutID, &w.Name, &w.Type, &w.Description, &w.Payload, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

// ShareRepository persists coach to athlete shares. Lifecycle writes record
// their outbox event in the same transaction, so a status change and its
// event are durable together.
type ShareRepository struct {
	pool *pgxpool.Pool
}

// NewShareRepository constructs a ShareRepository.
func NewShareRepository(pool *pgxpool.Pool) *ShareRepository {
	return &ShareRepository{pool: pool}
}

const shareColumns = `share_id, workout_id, coach_id, athlete_id, status, import_error, garmin_import_id, shared_at, imported_at`

// Create persists a new pending share and its workout.shared event.
func (r *ShareRepository) Create(ctx context.Context, share domain.SharedWorkout) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const stmt = `INSERT INTO shared_workouts (share_id, workout_id, coach_id, athlete_id, status, shared_at)
        VALUES ($1,$2,$3,$4,$5,$6)`
	if _, err := tx.Exec(ctx, stmt,
		share.ID, share.WorkoutID, share.CoachID, share.AthleteID, share.State, share.SharedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// The partial unique index caught a concurrent duplicate share.
			return domain.ErrShareConflict
		}
		return err
	}

	var workoutName string
	if err := tx.QueryRow(ctx, `SELECT workout_name FROM workouts WHERE workout_id=$1`, share.WorkoutID).Scan(&workoutName); err != nil {
		return err
	}

	if err := insertOutbox(ctx, tx, "workout.shared", share.ID, share.AthleteID, events.WorkoutShared{
		ShareID:     share.ID,
		WorkoutID:   share.WorkoutID,
		CoachID:     share.CoachID,
		AthleteID:   share.AthleteID,
		WorkoutName: workoutName,
		SharedAt:    share.SharedAt,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// FindActive returns the pending or imported share for a (workout, athlete)
// pair, or (nil, nil). Backs the one-active-share rule.
func (r *ShareRepository) FindActive(ctx context.Context, workoutID, athleteID string) (*domain.SharedWorkout, error) {
	query := `SELECT ` + shareColumns + ` FROM shared_workouts
        WHERE workout_id=$1 AND athlete_id=$2 AND status IN ('pending','imported')`

	row := r.pool.QueryRow(ctx, query, workoutID, athleteID)
	var share domain.SharedWorkout
	if err := scanShare(row, &share); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &share, nil
}

// GetForAthlete resolves a share scoped to the athlete together with its
// workout. A share owned by another athlete is indistinguishable from an
// absent one.
func (r *ShareRepository) GetForAthlete(ctx context.Context, shareID, athleteID string) (*domain.SharedWorkout, *domain.Workout, error) {
	query := `SELECT s.share_id, s.workout_id, s.coach_id, s.athlete_id, s.status, s.import_error, s.garmin_import_id, s.shared_at, s.imported_at,
            w.workout_id, w.coach_id, w.garmin_workout_id, w.workout_name, w.workout_type, w.description, w.payload, w.created_at, w.updated_at
        FROM shared_workouts s
        JOIN workouts w ON w.workout_id = s.workout_id
        WHERE s.share_id=$1 AND s.athlete_id=$2`

	row := r.pool.QueryRow(ctx, query, shareID, athleteID)
	var share domain.SharedWorkout
	var workout domain.Workout
	if err := row.Scan(
		&share.ID, &share.WorkoutID, &share.CoachID, &share.AthleteID, &share.State,
		&share.ImportError, &share.GarminImportID, &share.SharedAt, &share.ImportedAt,
		&workout.ID, &workout.CoachID, &workout.GarminWorkoutID, &workout.Name, &workout.Type,
		&workout.Description, &workout.Payload, &workout.CreatedAt, &workout.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, domain.ErrShareNotFound
		}
		return nil, nil, err
	}
	return &share, &workout, nil
}

// ListByAthlete returns non-removed shares newest first with keyset
// pagination on (shared_at, share_id).
func (r *ShareRepository) ListByAthlete(ctx context.Context, athleteID string, cursor *domain.Cursor, limit int) ([]domain.ShareListing, *domain.Cursor, error) {
	args := []interface{}{athleteID, limit}
	query := `SELECT s.share_id, s.workout_id, s.coach_id, s.athlete_id, s.status, s.import_error, s.garmin_import_id, s.shared_at, s.imported_at,
            w.workout_name, w.workout_type, w.description
        FROM shared_workouts s
        JOIN workouts w ON w.workout_id = s.workout_id
        WHERE s.athlete_id=$1 AND s.status IN ('pending','imported','failed')`

	if cursor != nil {
		query += ` AND (s.shared_at, s.share_id) < ($3, $4)`
		args = append(args, cursor.SharedAt, cursor.ID)
	}
	query += ` ORDER BY s.shared_at DESC, s.share_id DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	listings := make([]domain.ShareListing, 0, limit)
	for rows.Next() {
		var listing domain.ShareListing
		if err := rows.Scan(
			&listing.Share.ID, &listing.Share.WorkoutID, &listing.Share.CoachID, &listing.Share.AthleteID,
			&listing.Share.State, &listing.Share.ImportError, &listing.Share.GarminImportID,
			&listing.Share.SharedAt, &listing.Share.ImportedAt,
			&listing.WorkoutName, &listing.WorkoutType, &listing.Description,
		); err != nil {
			return nil, nil, err
		}
		listings = append(listings, listing)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if len(listings) == limit {
		last := listings[len(listings)-1]
		next = &domain.Cursor{SharedAt: last.Share.SharedAt, ID: last.Share.ID}
	}
	return listings, next, nil
}

// MarkImported records a successful import and its state-change event.
func (r *ShareRepository) MarkImported(ctx context.Context, shareID, garminImportID string, importedAt time.Time) error {
	return r.transition(ctx, shareID,
		`UPDATE shared_workouts
            SET status='imported', garmin_import_id=$2, imported_at=$3, import_error=NULL
          WHERE share_id=$1 AND status IN ('pending','failed')
          RETURNING athlete_id`,
		[]interface{}{shareID, garminImportID, importedAt},
		func(athleteID string) events.ShareStateChanged {
			return events.ShareStateChanged{
				ShareID:        shareID,
				AthleteID:      athleteID,
				State:          string(domain.ShareStateImported),
				GarminImportID: garminImportID,
				OccurredAt:     importedAt,
			}
		})
}

// MarkFailed records a failed import attempt with its reason.
func (r *ShareRepository) MarkFailed(ctx context.Context, shareID, reason string) error {
	return r.transition(ctx, shareID,
		`UPDATE shared_workouts
            SET status='failed', import_error=$2
          WHERE share_id=$1 AND status IN ('pending','failed')
          RETURNING athlete_id`,
		[]interface{}{shareID, reason},
		func(athleteID string) events.ShareStateChanged {
			return events.ShareStateChanged{
				ShareID:    shareID,
				AthleteID:  athleteID,
				State:      string(domain.ShareStateFailed),
				Reason:     reason,
				OccurredAt: time.Now().UTC(),
			}
		})
}

// MarkRemoved withdraws a share.
func (r *ShareRepository) MarkRemoved(ctx context.Context, shareID string) error {
	return r.transition(ctx, shareID,
		`UPDATE shared_workouts
            SET status='removed'
          WHERE share_id=$1 AND status IN ('pending','imported','failed')
          RETURNING athlete_id`,
		[]interface{}{shareID},
		func(athleteID string) events.ShareStateChanged {
			return events.ShareStateChanged{
				ShareID:    shareID,
				AthleteID:  athleteID,
				State:      string(domain.ShareStateRemoved),
				OccurredAt: time.Now().UTC(),
			}
		})
}

// transition applies one guarded status update and records its event in the
// same transaction. The WHERE status guard backs up the domain-level state
// machine against racing writers.
func (r *ShareRepository) transition(ctx context.Context, shareID, stmt string, args []interface{}, event func(athleteID string) events.ShareStateChanged) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var athleteID string
	if err := tx.QueryRow(ctx, stmt, args...).Scan(&athleteID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrShareNotFound
		}
		return err
	}

	if err := insertOutbox(ctx, tx, "workout.share_state_changed", shareID, athleteID, event(athleteID)); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func scanShare(row pgx.Row, share *domain.SharedWorkout) error {
	return row.Scan(&share.ID, &share.WorkoutID, &share.CoachID, &share.AthleteID, &share.State,
		&share.ImportError, &share.GarminImportID, &share.SharedAt, &share.ImportedAt)
}

func insertOutbox(ctx context.Context, tx pgx.Tx, eventType, aggregateID, partitionKey string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	dedupeKey := fmt.Sprintf("%s:%s:%d", aggregateID, eventType, time.Now().UnixNano())

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		"shared_workout",
		aggregateID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		partitionKey,
		body,
		dedupeKey,
	)
	return err
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]EventMetadata{
	"workout.shared": {
		Topic:         "workout_share_events",
		SchemaSubject: "workout_share_events-value",
	},
	"workout.share_state_changed": {
		Topic:         "workout_share_state_changed",
		SchemaSubject: "workout_share_state_changed-value",
	},
}
