package domain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"example.com/coachsync/internal/observability"
)

// ShareOutcome reports a share batch: how many edges were created and which
// items were skipped, with per-item reasons.
type ShareOutcome struct {
	SharedCount int
	Errors      []string
}

// ShareService creates and withdraws coach→athlete shares.
type ShareService struct {
	workouts WorkoutRepository
	shares   ShareRepository
	log      *log.Logger
	now      func() time.Time
}

// NewShareService constructs a ShareService.
func NewShareService(workouts WorkoutRepository, shares ShareRepository) *ShareService {
	return &ShareService{
		workouts: workouts,
		shares:   shares,
		log:      log.New(log.Writer(), "[share] ", log.LstdFlags),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ShareWorkouts shares the coach's cached workouts with an athlete. Items are
// processed independently; a workout missing from the cache or already
// actively shared is reported in Errors without failing the batch. At most
// one active (pending or imported) share may exist per (workout, athlete);
// re-sharing becomes possible again once the prior share is failed or removed.
func (s *ShareService) ShareWorkouts(ctx context.Context, coachID, athleteID string, garminWorkoutIDs []string) (ShareOutcome, error) {
	outcome := ShareOutcome{}
	for _, gwID := range garminWorkoutIDs {
		workout, err := s.workouts.GetByGarminID(ctx, coachID, gwID)
		if err != nil {
			return outcome, fmt.Errorf("lookup workout %s: %w", gwID, err)
		}
		if workout == nil {
			outcome.Errors = append(outcome.Errors, fmt.Sprintf("Workout %s not found. Refresh your workout list first.", gwID))
			continue
		}

		existing, err := s.shares.FindActive(ctx, workout.ID, athleteID)
		if err != nil {
			return outcome, fmt.Errorf("check existing share for workout %s: %w", gwID, err)
		}
		if existing != nil {
			outcome.Errors = append(outcome.Errors, fmt.Sprintf("Workout '%s' already shared with this athlete", workout.Name))
			continue
		}

		share := SharedWorkout{
			ID:        uuid.NewString(),
			WorkoutID: workout.ID,
			CoachID:   coachID,
			AthleteID: athleteID,
			State:     ShareStatePending,
			SharedAt:  s.now(),
		}
		if err := s.shares.Create(ctx, share); err != nil {
			if errors.Is(err, ErrShareConflict) {
				// A racing share slipped past the FindActive check.
				outcome.Errors = append(outcome.Errors, fmt.Sprintf("Workout '%s' already shared with this athlete", workout.Name))
				continue
			}
			return outcome, fmt.Errorf("create share for workout %s: %w", gwID, err)
		}
		observability.RecordShareCreated()
		outcome.SharedCount++
	}

	s.log.Printf("coach %s shared %d workout(s) with athlete %s (%d skipped)",
		coachID, outcome.SharedCount, athleteID, len(outcome.Errors))
	return outcome, nil
}

// ListShares returns the athlete's non-removed shares, newest first.
func (s *ShareService) ListShares(ctx context.Context, athleteID string, cursor *Cursor, limit int) ([]ShareListing, *Cursor, error) {
	listings, next, err := s.shares.ListByAthlete(ctx, athleteID, cursor, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("list shares: %w", err)
	}
	return listings, next, nil
}

// RemoveShare withdraws a share from the athlete's list. Removal is terminal
// and independent of the import flow.
func (s *ShareService) RemoveShare(ctx context.Context, athleteID, shareID string) error {
	share, _, err := s.shares.GetForAthlete(ctx, shareID, athleteID)
	if err != nil {
		return err
	}
	if !share.State.canTransition(ShareStateRemoved) {
		return ErrShareNotFound
	}
	if err := s.shares.MarkRemoved(ctx, shareID); err != nil {
		return fmt.Errorf("mark share removed: %w", err)
	}
	return nil
}
