//go:build integration

package postgres

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/coachsync/internal/domain"
)

func TestCredentialRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	repo := NewCredentialRepository(pool)

	missing, err := repo.Get(ctx, "coach-1")
	require.NoError(t, err)
	require.Nil(t, missing)

	require.NoError(t, repo.Upsert(ctx, domain.Credential{
		UserID:            "coach-1",
		EmailEncrypted:    "enc-email-1",
		PasswordEncrypted: "enc-pass-1",
		Connected:         true,
	}))

	stored, err := repo.Get(ctx, "coach-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.True(t, stored.Connected)
	require.Equal(t, "enc-email-1", stored.EmailEncrypted)

	connErr := "rejected"
	require.NoError(t, repo.Upsert(ctx, domain.Credential{
		UserID:            "coach-1",
		EmailEncrypted:    "enc-email-2",
		PasswordEncrypted: "enc-pass-2",
		Connected:         false,
		ConnectionError:   &connErr,
	}))

	replaced, err := repo.Get(ctx, "coach-1")
	require.NoError(t, err)
	require.False(t, replaced.Connected)
	require.Equal(t, "enc-email-2", replaced.EmailEncrypted)
	require.NotNil(t, replaced.ConnectionError)

	require.NoError(t, repo.Delete(ctx, "coach-1"))
	gone, err := repo.Get(ctx, "coach-1")
	require.NoError(t, err)
	require.Nil(t, gone)
}

func TestWorkoutRepositoryUpsertPreservesIdentity(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	repo := NewWorkoutRepository(pool)

	first, err := repo.Upsert(ctx, domain.Workout{
		ID:              uuid.NewString(),
		CoachID:         "coach-1",
		GarminWorkoutID: "g-1",
		Name:            "Tempo Run",
		Type:            domain.WorkoutTypeRunning,
		Payload:         []byte(`{"workoutId":"g-1"}`),
	})
	require.NoError(t, err)

	refreshed, err := repo.Upsert(ctx, domain.Workout{
		ID:              uuid.NewString(),
		CoachID:         "coach-1",
		GarminWorkoutID: "g-1",
		Name:            "Tempo Run v2",
		Type:            domain.WorkoutTypeRunning,
		Payload:         []byte(`{"workoutId":"g-1","rev":2}`),
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, refreshed.ID, "refresh keeps the original workout id")
	require.Equal(t, "Tempo Run v2", refreshed.Name)

	missing, err := repo.GetByGarminID(ctx, "coach-1", "g-unknown")
	require.NoError(t, err)
	require.Nil(t, missing)

	other, err := repo.GetByGarminID(ctx, "coach-2", "g-1")
	require.NoError(t, err)
	require.Nil(t, other, "cache is scoped per coach")

	listed, err := repo.ListByCoach(ctx, "coach-1")
	require.NoError(t, err)
	require.Len(t, listed, 1)
}

func TestShareCreateRecordsOutboxEvent(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	workoutID := seedCachedWorkout(t, ctx, pool, "coach-1", "g-1", "Tempo Run")
	shares := NewShareRepository(pool)

	shareID := uuid.NewString()
	require.NoError(t, shares.Create(ctx, domain.SharedWorkout{
		ID:        shareID,
		WorkoutID: workoutID,
		CoachID:   "coach-1",
		AthleteID: "athlete-1",
		State:     domain.ShareStatePending,
		SharedAt:  time.Now().UTC(),
	}))

	var eventType, topic string
	var payload []byte
	err := pool.QueryRow(ctx,
		`SELECT event_type, topic, payload FROM outbox WHERE aggregate_id=$1`, shareID,
	).Scan(&eventType, &topic, &payload)
	require.NoError(t, err)
	require.Equal(t, "workout.shared", eventType)
	require.Equal(t, "workout_share_events", topic)
	require.Contains(t, string(payload), "Tempo Run")
}

func TestShareActiveSlotAndUniqueness(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	workoutID := seedCachedWorkout(t, ctx, pool, "coach-1", "g-1", "Tempo Run")
	shares := NewShareRepository(pool)

	first := domain.SharedWorkout{
		ID: uuid.NewString(), WorkoutID: workoutID, CoachID: "coach-1", AthleteID: "athlete-1",
		State: domain.ShareStatePending, SharedAt: time.Now().UTC(),
	}
	require.NoError(t, shares.Create(ctx, first))

	active, err := shares.FindActive(ctx, workoutID, "athlete-1")
	require.NoError(t, err)
	require.NotNil(t, active)
	require.Equal(t, first.ID, active.ID)

	// The partial unique index rejects a second active edge even when a
	// racing writer slips past the service-level check.
	duplicate := first
	duplicate.ID = uuid.NewString()
	require.ErrorIs(t, shares.Create(ctx, duplicate), domain.ErrShareConflict)

	require.NoError(t, shares.MarkRemoved(ctx, first.ID))
	released, err := shares.FindActive(ctx, workoutID, "athlete-1")
	require.NoError(t, err)
	require.Nil(t, released)

	require.NoError(t, shares.Create(ctx, duplicate))
}

func TestShareTransitionsAreGuarded(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	workoutID := seedCachedWorkout(t, ctx, pool, "coach-1", "g-1", "Tempo Run")
	shares := NewShareRepository(pool)

	shareID := uuid.NewString()
	require.NoError(t, shares.Create(ctx, domain.SharedWorkout{
		ID: shareID, WorkoutID: workoutID, CoachID: "coach-1", AthleteID: "athlete-1",
		State: domain.ShareStatePending, SharedAt: time.Now().UTC(),
	}))

	require.NoError(t, shares.MarkFailed(ctx, shareID, "upload rejected"))
	importedAt := time.Now().UTC()
	require.NoError(t, shares.MarkImported(ctx, shareID, "999", importedAt))

	share, workout, err := shares.GetForAthlete(ctx, shareID, "athlete-1")
	require.NoError(t, err)
	require.Equal(t, domain.ShareStateImported, share.State)
	require.NotNil(t, share.GarminImportID)
	require.Equal(t, "999", *share.GarminImportID)
	require.Nil(t, share.ImportError, "successful import clears the stored reason")
	require.Equal(t, "Tempo Run", workout.Name)

	// imported is terminal for the import flow.
	require.ErrorIs(t, shares.MarkImported(ctx, shareID, "1000", time.Now().UTC()), domain.ErrShareNotFound)
	require.ErrorIs(t, shares.MarkFailed(ctx, shareID, "late failure"), domain.ErrShareNotFound)

	require.NoError(t, shares.MarkRemoved(ctx, shareID))
	require.ErrorIs(t, shares.MarkRemoved(ctx, shareID), domain.ErrShareNotFound)

	_, _, err = shares.GetForAthlete(ctx, shareID, "athlete-2")
	require.ErrorIs(t, err, domain.ErrShareNotFound)

	var events int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM outbox WHERE aggregate_id=$1 AND event_type='workout.share_state_changed'`, shareID,
	).Scan(&events))
	require.Equal(t, 3, events, "one event per applied transition, none for rejected ones")
}

func TestListByAthletePaginatesNewestFirst(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	shares := NewShareRepository(pool)
	base := time.Now().UTC().Truncate(time.Millisecond)

	var ids []string
	for i := 0; i < 5; i++ {
		workoutID := seedCachedWorkout(t, ctx, pool, "coach-1", fmt.Sprintf("g-%d", i), fmt.Sprintf("Workout %d", i))
		shareID := uuid.NewString()
		require.NoError(t, shares.Create(ctx, domain.SharedWorkout{
			ID: shareID, WorkoutID: workoutID, CoachID: "coach-1", AthleteID: "athlete-1",
			State: domain.ShareStatePending, SharedAt: base.Add(time.Duration(i) * time.Minute),
		}))
		ids = append(ids, shareID)
	}
	// Removed shares disappear from the listing entirely.
	require.NoError(t, shares.MarkRemoved(ctx, ids[2]))

	page1, cursor, err := shares.ListByAthlete(ctx, "athlete-1", nil, 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	require.NotNil(t, cursor)
	require.Equal(t, ids[4], page1[0].Share.ID)
	require.Equal(t, ids[3], page1[1].Share.ID)
	require.Equal(t, "Workout 4", page1[0].WorkoutName)

	page2, cursor, err := shares.ListByAthlete(ctx, "athlete-1", cursor, 2)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	require.Equal(t, ids[1], page2[0].Share.ID)
	require.Equal(t, ids[0], page2[1].Share.ID)

	if cursor != nil {
		page3, _, err := shares.ListByAthlete(ctx, "athlete-1", cursor, 2)
		require.NoError(t, err)
		require.Empty(t, page3)
	}
}

func seedCachedWorkout(t *testing.T, ctx context.Context, pool *pgxpool.Pool, coachID, garminID, name string) string {
	t.Helper()
	workouts := NewWorkoutRepository(pool)
	stored, err := workouts.Upsert(ctx, domain.Workout{
		ID:              uuid.NewString(),
		CoachID:         coachID,
		GarminWorkoutID: garminID,
		Name:            name,
		Type:            domain.WorkoutTypeRunning,
		Payload:         []byte(`{"workoutId":"` + garminID + `","workoutName":"` + name + `"}`),
	})
	require.NoError(t, err)
	return stored.ID
}

func setupPostgres(t *testing.T, ctx context.Context) (*pgxpool.Pool, func()) {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("coachsync"),
		postgrescontainer.WithUsername("platform"),
		postgrescontainer.WithPassword("platform"),
	)
	require.NoError(t, err)

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	runMigrations(t, ctx, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = pg.Terminate(ctx)
	}
	return pool, cleanup
}

func runMigrations(t *testing.T, ctx context.Context, connStr string) {
	t.Helper()

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	defer pool.Close()

	migrationsDir := resolvePath(t, "../../../db/postgres/migrations")
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, files, "expected at least one migration .up.sql file")

	sort.Strings(files)

	for _, file := range files {
		contents, readErr := os.ReadFile(file)
		require.NoErrorf(t, readErr, "read migration %s", file)

		if _, execErr := pool.Exec(ctx, string(contents)); execErr != nil {
			require.NoErrorf(t, execErr, "execute migration %s", file)
		}
	}
}

func resolvePath(t *testing.T, rel string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), rel)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
