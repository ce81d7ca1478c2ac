package domain

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/coachsync/internal/garmin"
)

type importFixture struct {
	importer  *Importer
	creds     *memCreds
	workouts  *memWorkouts
	shares    *memShares
	connector *stubConnector
}

func newImportFixture(t *testing.T, connector *stubConnector) *importFixture {
	t.Helper()
	v := newTestVault(t)
	creds := newMemCreds()
	seedConnectedCredential(t, v, creds, "athlete-1", "athlete@example.com", "hunter2")

	workouts := newMemWorkouts()
	seedWorkout(workouts, "w-1", "coach-1", "g-1", "Tempo Run")
	shares := newMemShares(workouts)
	shares.byID["s-1"] = SharedWorkout{
		ID: "s-1", WorkoutID: "w-1", CoachID: "coach-1", AthleteID: "athlete-1",
		State: ShareStatePending, SharedAt: time.Now().UTC(),
	}

	return &importFixture{
		importer:  NewImporter(shares, creds, v, connector),
		creds:     creds,
		workouts:  workouts,
		shares:    shares,
		connector: connector,
	}
}

func TestImportRequiresConnectedCredentials(t *testing.T) {
	v := newTestVault(t)
	importer := NewImporter(newMemShares(newMemWorkouts()), newMemCreds(), v, &stubConnector{})

	_, err := importer.ImportWorkouts(context.Background(), "athlete-1", []string{"s-1"})
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestImportSuccessStripsIdentityFields(t *testing.T) {
	session := &stubSession{uploadID: "999"}
	fx := newImportFixture(t, &stubConnector{session: session})

	results, err := fx.importer.ImportWorkouts(context.Background(), "athlete-1", []string{"s-1"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, ResultSuccess, results[0].Code)
	require.Equal(t, "999", results[0].GarminImportID)
	require.Contains(t, results[0].Message, "Tempo Run")

	share := fx.shares.byID["s-1"]
	require.Equal(t, ShareStateImported, share.State)
	require.NotNil(t, share.GarminImportID)
	require.Equal(t, "999", *share.GarminImportID)
	require.NotNil(t, share.ImportedAt)

	require.Len(t, session.uploads, 1)
	var uploaded map[string]any
	require.NoError(t, json.Unmarshal(session.uploads[0], &uploaded))
	require.NotContains(t, uploaded, "workoutId")
	require.Equal(t, "Tempo Run", uploaded["workoutName"])
}

func TestImportAuthFailureRecordsReason(t *testing.T) {
	fx := newImportFixture(t, &stubConnector{
		loginErr: &garmin.Fault{Kind: garmin.FaultAuth, Op: "login", Reason: "bad password"},
	})

	results, err := fx.importer.ImportWorkouts(context.Background(), "athlete-1", []string{"s-1"})
	require.NoError(t, err)
	require.Equal(t, ResultAuthFailed, results[0].Code)

	share := fx.shares.byID["s-1"]
	require.Equal(t, ShareStateFailed, share.State)
	require.NotNil(t, share.ImportError)
	require.Equal(t, "bad password", *share.ImportError)
}

func TestImportConnectivityFailureStaysRetriable(t *testing.T) {
	session := &stubSession{uploadErr: &garmin.Fault{
		Kind: garmin.FaultConnectivity, Op: "upload_workout", Reason: "Garmin Connect unavailable (status 503)",
	}}
	fx := newImportFixture(t, &stubConnector{session: session})

	results, err := fx.importer.ImportWorkouts(context.Background(), "athlete-1", []string{"s-1"})
	require.NoError(t, err)
	require.Equal(t, ResultConnectivity, results[0].Code)
	require.Equal(t, ShareStateFailed, fx.shares.byID["s-1"].State)

	// The failed share accepts a retry once Garmin recovers.
	session.uploadErr = nil
	session.uploadID = "1001"
	retried, err := fx.importer.ImportWorkouts(context.Background(), "athlete-1", []string{"s-1"})
	require.NoError(t, err)
	require.Equal(t, ResultSuccess, retried[0].Code)
	require.Equal(t, ShareStateImported, fx.shares.byID["s-1"].State)
}

func TestImportAlreadyImported(t *testing.T) {
	fx := newImportFixture(t, &stubConnector{session: &stubSession{uploadID: "999"}})
	importID := "999"
	share := fx.shares.byID["s-1"]
	share.State = ShareStateImported
	share.GarminImportID = &importID
	fx.shares.byID["s-1"] = share

	results, err := fx.importer.ImportWorkouts(context.Background(), "athlete-1", []string{"s-1"})
	require.NoError(t, err)
	require.Equal(t, ResultAlreadyImported, results[0].Code)
	require.Zero(t, fx.connector.logins, "no remote call for an already imported share")
}

func TestImportRemovedShareReportsNotFound(t *testing.T) {
	fx := newImportFixture(t, &stubConnector{session: &stubSession{uploadID: "999"}})
	share := fx.shares.byID["s-1"]
	share.State = ShareStateRemoved
	fx.shares.byID["s-1"] = share

	results, err := fx.importer.ImportWorkouts(context.Background(), "athlete-1", []string{"s-1"})
	require.NoError(t, err)
	require.Equal(t, ResultNotFound, results[0].Code)
	require.Zero(t, fx.connector.logins)
}

func TestImportUnknownShare(t *testing.T) {
	fx := newImportFixture(t, &stubConnector{session: &stubSession{uploadID: "999"}})

	results, err := fx.importer.ImportWorkouts(context.Background(), "athlete-1", []string{"missing"})
	require.NoError(t, err)
	require.Equal(t, ResultNotFound, results[0].Code)
}

func TestImportCorruptedPayload(t *testing.T) {
	fx := newImportFixture(t, &stubConnector{session: &stubSession{uploadID: "999"}})
	workout := fx.workouts.byKey[workoutKey("coach-1", "g-1")]
	workout.Payload = []byte("{truncated")
	fx.workouts.byKey[workoutKey("coach-1", "g-1")] = workout

	results, err := fx.importer.ImportWorkouts(context.Background(), "athlete-1", []string{"s-1"})
	require.NoError(t, err)
	require.Equal(t, ResultCorruptedData, results[0].Code)
	require.Equal(t, ShareStateFailed, fx.shares.byID["s-1"].State)
	require.Zero(t, fx.connector.logins, "corrupted payload is caught before any remote call")
}

func TestImportMixedBatch(t *testing.T) {
	session := &stubSession{uploadID: "999"}
	fx := newImportFixture(t, &stubConnector{session: session})

	results, err := fx.importer.ImportWorkouts(context.Background(), "athlete-1", []string{"s-1", "missing"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, ResultSuccess, results[0].Code)
	require.Equal(t, ResultNotFound, results[1].Code)
}
