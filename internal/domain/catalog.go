package domain

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"example.com/coachsync/internal/vault"
)

// CatalogService refreshes the cached copy of a coach's Garmin workout
// library. Discovery is where sport keys are normalized; imports later reuse
// the cached payload verbatim.
type CatalogService struct {
	creds     CredentialRepository
	workouts  WorkoutRepository
	vault     *vault.Vault
	connector Connector
	log       *log.Logger
	now       func() time.Time
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(creds CredentialRepository, workouts WorkoutRepository, v *vault.Vault, connector Connector) *CatalogService {
	return &CatalogService{
		creds:     creds,
		workouts:  workouts,
		vault:     v,
		connector: connector,
		log:       log.New(log.Writer(), "[catalog] ", log.LstdFlags),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RefreshWorkouts pulls the coach's workouts from Garmin Connect, classifies
// each sport key, and upserts the cached copies. filter, when non-nil,
// restricts the returned slice (the cache is always updated in full).
// Adapter failures propagate as *garmin.Fault for the HTTP layer to map.
func (s *CatalogService) RefreshWorkouts(ctx context.Context, coachID string, filter *WorkoutType) ([]Workout, error) {
	cred, err := s.creds.Get(ctx, coachID)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	if cred == nil || !cred.Connected {
		return nil, ErrNotConnected
	}

	email, err := s.vault.Decrypt(cred.EmailEncrypted)
	if err != nil {
		return nil, fmt.Errorf("decrypt email: %w", err)
	}
	password, err := s.vault.Decrypt(cred.PasswordEncrypted)
	if err != nil {
		return nil, fmt.Errorf("decrypt password: %w", err)
	}

	session, err := s.connector.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	summaries, err := session.ListWorkouts(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]Workout, 0, len(summaries))
	for _, summary := range summaries {
		stored, err := s.workouts.Upsert(ctx, Workout{
			ID:              uuid.NewString(),
			CoachID:         coachID,
			GarminWorkoutID: summary.GarminWorkoutID,
			Name:            summary.Name,
			Type:            ClassifySportKey(summary.SportKey),
			Description:     summary.Description,
			Payload:         summary.Raw,
			CreatedAt:       s.now(),
			UpdatedAt:       s.now(),
		})
		if err != nil {
			return nil, fmt.Errorf("cache workout %s: %w", summary.GarminWorkoutID, err)
		}
		if filter != nil && stored.Type != *filter {
			continue
		}
		results = append(results, stored)
	}

	s.log.Printf("refreshed %d workouts for coach %s", len(summaries), coachID)
	return results, nil
}
