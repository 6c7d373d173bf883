package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dosada05/battle-tournament/models"
	"github.com/Dosada05/battle-tournament/repositories"
)

// mapRepositoryError translates storage sentinels into the service taxonomy.
func mapRepositoryError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrTournamentNotFound):
		return ErrTournamentNotFound
	case errors.Is(err, repositories.ErrCategoryNotFound):
		return ErrCategoryNotFound
	case errors.Is(err, repositories.ErrContestNotFound):
		return ErrContestNotFound
	case errors.Is(err, repositories.ErrPoolNotFound):
		return ErrPoolNotFound
	case errors.Is(err, repositories.ErrContestantNotFound):
		return fmt.Errorf("%w: contestant not found", ErrNotFound)
	case errors.Is(err, repositories.ErrActiveContestExists):
		return ErrConcurrentActive
	case errors.Is(err, repositories.ErrContestNotPending):
		return ErrContestNotPending
	case errors.Is(err, repositories.ErrContestNotActive):
		return ErrContestNotActive
	case errors.Is(err, repositories.ErrPhaseConflict):
		return ErrPhaseConflict
	case errors.Is(err, repositories.ErrCategoryNameConflict):
		return ErrCategoryNameConflict
	case errors.Is(err, repositories.ErrCategoryInvalid):
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	case errors.Is(err, models.ErrOutcomePhaseMismatch):
		return fmt.Errorf("%w: %v", ErrInvalidOutcome, err)
	}
	return err
}

// lockWritableTournament takes the tournament row lock and refuses any write
// once the tournament is completed.
func lockWritableTournament(ctx context.Context, repos *repositories.Repositories, exec repositories.SQLExecutor, tournamentID int) (*models.Tournament, error) {
	t, err := repos.Tournaments.LockByID(ctx, exec, tournamentID)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	if t.Locked() {
		return nil, ErrTournamentLocked
	}
	return t, nil
}

// loadActiveContest returns the contest for an outcome write: it must belong to
// the given phase, be ACTIVE, and its tournament must still accept writes.
func loadActiveContest(ctx context.Context, repos *repositories.Repositories, exec repositories.SQLExecutor, contestID int, phase models.ContestPhase) (*models.Contest, error) {
	contest, err := repos.Contests.GetByID(ctx, exec, contestID)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	if _, err := lockWritableTournament(ctx, repos, exec, contest.TournamentID); err != nil {
		return nil, err
	}
	// re-read under the tournament lock
	contest, err = repos.Contests.GetByID(ctx, exec, contestID)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	if contest.Phase != phase {
		return nil, fmt.Errorf("%w: contest %d is %s, expected %s", ErrWrongContestPhase, contest.ID, contest.Phase, phase)
	}
	if contest.Status != models.ContestStatusActive {
		return nil, fmt.Errorf("%w: contest %d is %s", ErrContestNotActive, contest.ID, contest.Status)
	}
	return contest, nil
}

func allCompleted(contests []*models.Contest) bool {
	for _, c := range contests {
		if c.Status != models.ContestStatusCompleted {
			return false
		}
	}
	return true
}

func countCompleted(contests []*models.Contest) int {
	n := 0
	for _, c := range contests {
		if c.Status == models.ContestStatusCompleted {
			n++
		}
	}
	return n
}

func contestPhasePtr(p models.ContestPhase) *models.ContestPhase { return &p }

func contestStatusPtr(s models.ContestStatus) *models.ContestStatus { return &s }

func intPtr(v int) *int { return &v }
