package domain

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/coachsync/internal/garmin"
	"example.com/coachsync/internal/vault"
)

// In-memory doubles shared by the service tests in this package.

type memCreds struct {
	records map[string]Credential
}

func newMemCreds() *memCreds {
	return &memCreds{records: make(map[string]Credential)}
}

func (m *memCreds) Get(_ context.Context, userID string) (*Credential, error) {
	cred, ok := m.records[userID]
	if !ok {
		return nil, nil
	}
	copied := cred
	return &copied, nil
}

func (m *memCreds) Upsert(_ context.Context, cred Credential) error {
	m.records[cred.UserID] = cred
	return nil
}

func (m *memCreds) Delete(_ context.Context, userID string) error {
	delete(m.records, userID)
	return nil
}

type stubSession struct {
	profileName string
	profileErr  error
	summaries   []garmin.WorkoutSummary
	listErr     error
	uploadID    string
	uploadErr   error
	uploads     [][]byte
}

func (s *stubSession) FetchProfileName(context.Context) (string, error) {
	return s.profileName, s.profileErr
}

func (s *stubSession) ListWorkouts(context.Context) ([]garmin.WorkoutSummary, error) {
	return s.summaries, s.listErr
}

func (s *stubSession) UploadWorkout(_ context.Context, payload []byte) (string, error) {
	s.uploads = append(s.uploads, payload)
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	return s.uploadID, nil
}

type stubConnector struct {
	session  *stubSession
	loginErr error
	logins   int
}

func (c *stubConnector) Login(context.Context, string, string) (Session, error) {
	c.logins++
	if c.loginErr != nil {
		return nil, c.loginErr
	}
	return c.session, nil
}

func newTestVault(t *testing.T) *vault.Vault {
	t.Helper()
	v, err := vault.New("domain-test-secret")
	require.NoError(t, err)
	return v
}

// seedConnectedCredential stores an encrypted, connected credential record the
// way a successful Connect would.
func seedConnectedCredential(t *testing.T, v *vault.Vault, creds *memCreds, userID, email, password string) {
	t.Helper()
	emailEnc, err := v.Encrypt(email)
	require.NoError(t, err)
	passwordEnc, err := v.Encrypt(password)
	require.NoError(t, err)
	require.NoError(t, creds.Upsert(context.Background(), Credential{
		UserID:            userID,
		EmailEncrypted:    emailEnc,
		PasswordEncrypted: passwordEnc,
		Connected:         true,
	}))
}

func TestConnectStoresEncryptedCredentials(t *testing.T) {
	v := newTestVault(t)
	creds := newMemCreds()
	connector := &stubConnector{session: &stubSession{profileName: "Coach Carter"}}
	svc := NewCredentialService(creds, v, connector)

	status, err := svc.Connect(context.Background(), "coach-1", "coach@example.com", "hunter2")
	require.NoError(t, err)
	require.True(t, status.Connected)
	require.Equal(t, "Coach Carter", status.ProfileName)

	stored := creds.records["coach-1"]
	require.True(t, stored.Connected)
	require.NotNil(t, stored.LastSync)
	require.NotEqual(t, "coach@example.com", stored.EmailEncrypted)
	require.NotEqual(t, "hunter2", stored.PasswordEncrypted)

	email, err := v.Decrypt(stored.EmailEncrypted)
	require.NoError(t, err)
	require.Equal(t, "coach@example.com", email)
}

func TestConnectAuthFailurePersistsRecordWithError(t *testing.T) {
	v := newTestVault(t)
	creds := newMemCreds()
	connector := &stubConnector{loginErr: &garmin.Fault{Kind: garmin.FaultAuth, Op: "login", Reason: "rejected"}}
	svc := NewCredentialService(creds, v, connector)

	status, err := svc.Connect(context.Background(), "coach-1", "coach@example.com", "wrong")
	require.NoError(t, err)
	require.False(t, status.Connected)
	require.Equal(t, garmin.FaultAuth, status.Kind)

	stored, ok := creds.records["coach-1"]
	require.True(t, ok, "failed probe must still persist the record")
	require.False(t, stored.Connected)
	require.NotNil(t, stored.ConnectionError)
	require.Nil(t, stored.LastSync)
}

func TestStatusMissingCredentials(t *testing.T) {
	svc := NewCredentialService(newMemCreds(), newTestVault(t), &stubConnector{})

	_, err := svc.Status(context.Background(), "nobody")
	require.ErrorIs(t, err, ErrCredentialNotFound)
}

func TestStatusDecryptsEmailForDisplay(t *testing.T) {
	v := newTestVault(t)
	creds := newMemCreds()
	seedConnectedCredential(t, v, creds, "coach-1", "coach@example.com", "hunter2")
	svc := NewCredentialService(creds, v, &stubConnector{})

	status, err := svc.Status(context.Background(), "coach-1")
	require.NoError(t, err)
	require.True(t, status.Connected)
	require.Equal(t, "coach@example.com", status.GarminEmail)
}

func TestTestReprobeRecoversConnection(t *testing.T) {
	v := newTestVault(t)
	creds := newMemCreds()

	failing := NewCredentialService(creds, v, &stubConnector{
		loginErr: &garmin.Fault{Kind: garmin.FaultConnectivity, Op: "login", Reason: "unreachable"},
	})
	_, err := failing.Connect(context.Background(), "coach-1", "coach@example.com", "hunter2")
	require.NoError(t, err)
	require.NotNil(t, creds.records["coach-1"].ConnectionError)

	recovered := NewCredentialService(creds, v, &stubConnector{session: &stubSession{profileName: "Coach Carter"}})
	status, err := recovered.Test(context.Background(), "coach-1")
	require.NoError(t, err)
	require.True(t, status.Connected)

	stored := creds.records["coach-1"]
	require.True(t, stored.Connected)
	require.Nil(t, stored.ConnectionError)
	require.NotNil(t, stored.LastSync)
}

func TestDisconnectRemovesRecord(t *testing.T) {
	v := newTestVault(t)
	creds := newMemCreds()
	seedConnectedCredential(t, v, creds, "coach-1", "coach@example.com", "hunter2")
	svc := NewCredentialService(creds, v, &stubConnector{})

	require.NoError(t, svc.Disconnect(context.Background(), "coach-1"))
	require.Empty(t, creds.records)

	err := svc.Disconnect(context.Background(), "coach-1")
	require.ErrorIs(t, err, ErrCredentialNotFound)
}

func TestRefreshWorkoutsClassifiesAndCaches(t *testing.T) {
	v := newTestVault(t)
	creds := newMemCreds()
	seedConnectedCredential(t, v, creds, "coach-1", "coach@example.com", "hunter2")

	session := &stubSession{summaries: []garmin.WorkoutSummary{
		{GarminWorkoutID: "g-1", Name: "Tempo Run", SportKey: "running", Raw: json.RawMessage(`{"workoutId":"g-1"}`)},
		{GarminWorkoutID: "g-2", Name: "Trail Loop", SportKey: "TRAIL_RUNNING", Raw: json.RawMessage(`{"workoutId":"g-2"}`)},
		{GarminWorkoutID: "g-3", Name: "FTP Builder", SportKey: "cycling", Raw: json.RawMessage(`{"workoutId":"g-3"}`)},
	}}
	workouts := newMemWorkouts()
	svc := NewCatalogService(creds, workouts, v, &stubConnector{session: session})

	filter := WorkoutTypeRunning
	results, err := svc.RefreshWorkouts(context.Background(), "coach-1", &filter)
	require.NoError(t, err)
	require.Len(t, results, 2, "filter applies to the response only")
	require.Len(t, workouts.byKey, 3, "all summaries are cached regardless of filter")

	cached, err := workouts.GetByGarminID(context.Background(), "coach-1", "g-2")
	require.NoError(t, err)
	require.Equal(t, WorkoutTypeRunning, cached.Type)
}

func TestRefreshWorkoutsRequiresConnection(t *testing.T) {
	svc := NewCatalogService(newMemCreds(), newMemWorkouts(), newTestVault(t), &stubConnector{})

	_, err := svc.RefreshWorkouts(context.Background(), "coach-1", nil)
	require.ErrorIs(t, err, ErrNotConnected)
}
