package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"example.com/coachsync/internal/garmin"
	"example.com/coachsync/internal/observability"
	"example.com/coachsync/internal/vault"
)

// ResultCode classifies the outcome of one import attempt.
type ResultCode string

const (
	ResultSuccess         ResultCode = "success"
	ResultAlreadyImported ResultCode = "already_imported"
	ResultNotFound        ResultCode = "not_found"
	ResultCorruptedData   ResultCode = "corrupted_data"
	ResultAuthFailed      ResultCode = "authentication_failed"
	ResultConnectivity    ResultCode = "connectivity_failed"
	ResultUnexpected      ResultCode = "unexpected_failure"
)

// ImportResult reports one shared workout's import attempt.
type ImportResult struct {
	SharedWorkoutID string
	Code            ResultCode
	Message         string
	GarminImportID  string
}

// identityFields are stripped from the cached payload before upload so Garmin
// creates a brand-new workout instead of colliding with the coach's original.
// If Garmin grows further identity fields they will leak through here.
var identityFields = [...]string{"workoutId", "ownerId", "createdDate", "updatedDate"}

// Importer reconciles shared workouts against the athlete's Garmin account:
// it pushes each cached payload through the session adapter and transitions
// the share's status based on the outcome. Items are independent; partial
// success across a batch is expected and reported per item. No locks are held
// across the remote calls — a racing duplicate import produces at worst a
// duplicate workout on the athlete's Garmin account.
type Importer struct {
	shares    ShareRepository
	creds     CredentialRepository
	vault     *vault.Vault
	connector Connector
	log       *log.Logger
	now       func() time.Time
}

// NewImporter constructs an Importer.
func NewImporter(shares ShareRepository, creds CredentialRepository, v *vault.Vault, connector Connector) *Importer {
	return &Importer{
		shares:    shares,
		creds:     creds,
		vault:     v,
		connector: connector,
		log:       log.New(log.Writer(), "[import] ", log.LstdFlags),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ImportWorkouts attempts to import the identified shares into the athlete's
// Garmin account. The athlete must hold a connected credential record;
// otherwise ErrNotConnected is returned up front instead of per item. Each
// item's terminal status is persisted before the call returns.
func (im *Importer) ImportWorkouts(ctx context.Context, athleteID string, sharedWorkoutIDs []string) ([]ImportResult, error) {
	cred, err := im.creds.Get(ctx, athleteID)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	if cred == nil || !cred.Connected {
		return nil, ErrNotConnected
	}

	results := make([]ImportResult, 0, len(sharedWorkoutIDs))
	for _, shareID := range sharedWorkoutIDs {
		result := im.importOne(ctx, athleteID, cred, shareID)
		observability.RecordImportResult(string(result.Code))
		results = append(results, result)
	}
	return results, nil
}

func (im *Importer) importOne(ctx context.Context, athleteID string, cred *Credential, shareID string) ImportResult {
	share, workout, err := im.shares.GetForAthlete(ctx, shareID, athleteID)
	if err != nil {
		if errors.Is(err, ErrShareNotFound) {
			return ImportResult{
				SharedWorkoutID: shareID,
				Code:            ResultNotFound,
				Message:         "Shared workout not found or does not belong to you",
			}
		}
		im.log.Printf("share %s: lookup failed: %v", shareID, err)
		return ImportResult{SharedWorkoutID: shareID, Code: ResultUnexpected, Message: msgUnexpectedFailure}
	}

	switch share.State {
	case ShareStateRemoved:
		// Removal is terminal; a withdrawn share behaves as if it never existed.
		return ImportResult{
			SharedWorkoutID: shareID,
			Code:            ResultNotFound,
			Message:         "Shared workout not found or does not belong to you",
		}
	case ShareStateImported:
		return ImportResult{
			SharedWorkoutID: shareID,
			Code:            ResultAlreadyImported,
			Message:         "This workout has already been imported",
		}
	}

	payload, err := sanitizePayload(workout.Payload)
	if err != nil {
		im.markFailed(ctx, shareID, "Corrupted workout data")
		return ImportResult{
			SharedWorkoutID: shareID,
			Code:            ResultCorruptedData,
			Message:         "Workout data is corrupted. Ask your coach to re-share this workout.",
		}
	}

	email, err := im.vault.Decrypt(cred.EmailEncrypted)
	if err == nil {
		var password string
		password, err = im.vault.Decrypt(cred.PasswordEncrypted)
		if err == nil {
			return im.upload(ctx, shareID, workout.Name, email, password, payload)
		}
	}
	// A corrupt stored credential is an operational anomaly, not a
	// normal-path outcome; it is surfaced generically.
	im.log.Printf("share %s: stored credentials unreadable: %v", shareID, err)
	im.markFailed(ctx, shareID, "Stored Garmin credentials are unreadable")
	return ImportResult{SharedWorkoutID: shareID, Code: ResultUnexpected, Message: msgUnexpectedFailure}
}

func (im *Importer) upload(ctx context.Context, shareID, workoutName, email, password string, payload []byte) ImportResult {
	session, err := im.connector.Login(ctx, email, password)
	if err != nil {
		return im.remoteFailure(ctx, shareID, err)
	}

	newID, err := session.UploadWorkout(ctx, payload)
	if err != nil {
		return im.remoteFailure(ctx, shareID, err)
	}

	if err := im.shares.MarkImported(ctx, shareID, newID, im.now()); err != nil {
		im.log.Printf("share %s: persisting import outcome failed: %v", shareID, err)
		return ImportResult{SharedWorkoutID: shareID, Code: ResultUnexpected, Message: msgUnexpectedFailure}
	}

	return ImportResult{
		SharedWorkoutID: shareID,
		Code:            ResultSuccess,
		Message:         fmt.Sprintf("'%s' imported successfully to your Garmin account", workoutName),
		GarminImportID:  newID,
	}
}

// remoteFailure maps an adapter fault onto a per-item result and records the
// failed status with the adapter's reason text.
func (im *Importer) remoteFailure(ctx context.Context, shareID string, err error) ImportResult {
	kind := garmin.KindOf(err)
	im.log.Printf("share %s: remote call failed (%s): %v", shareID, kind, err)

	message := guidanceFor(kind)
	im.markFailed(ctx, shareID, failureReason(err, message))

	code := ResultUnexpected
	switch kind {
	case garmin.FaultAuth:
		code = ResultAuthFailed
	case garmin.FaultConnectivity:
		code = ResultConnectivity
	}
	return ImportResult{SharedWorkoutID: shareID, Code: code, Message: message}
}

func (im *Importer) markFailed(ctx context.Context, shareID, reason string) {
	if err := im.shares.MarkFailed(ctx, shareID, reason); err != nil {
		im.log.Printf("share %s: persisting failed status: %v", shareID, err)
	}
}

// failureReason prefers the fault's own reason text for the stored
// import_error, falling back to the user guidance.
func failureReason(err error, fallback string) string {
	var fault *garmin.Fault
	if errors.As(err, &fault) && fault.Reason != "" {
		return fault.Reason
	}
	return fallback
}

// sanitizePayload strips the remote-identity fields from the cached payload
// so the upload is treated as a brand-new workout.
func sanitizePayload(raw []byte) ([]byte, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode workout payload: %w", err)
	}
	for _, field := range identityFields {
		delete(fields, field)
	}
	return json.Marshal(fields)
}
