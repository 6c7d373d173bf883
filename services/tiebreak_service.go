package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Dosada05/battle-tournament/brackets"
	"github.com/Dosada05/battle-tournament/models"
	"github.com/Dosada05/battle-tournament/repositories"
)

// TieResolver detects ties at the preselection cutoff and at pool leadership,
// and runs the elimination vote of the resulting tiebreak contests.
type TieResolver interface {
	DetectCutoffTie(ctx context.Context, categoryID int) (*models.Contest, error)
	DetectPoolTie(ctx context.Context, poolID int) (*models.Contest, error)
	// SubmitRound records one round of ballots. On a round without strict
	// majority the ballots are kept, the round number advances and the error
	// wraps ErrAmbiguousVote; the report is still returned.
	SubmitRound(ctx context.Context, contestID int, ballots []brackets.Ballot) (*RoundReport, error)
}

type RoundReport struct {
	ContestID int             `json:"contest_id"`
	Round     int             `json:"round"`
	Kind      models.VoteKind `json:"kind"`
	Counts    map[int]int     `json:"counts"`
	Removed   []int           `json:"removed,omitempty"`
	Remaining []int           `json:"remaining"`
	NextKind  models.VoteKind `json:"next_kind,omitempty"`
	Resolved  bool            `json:"resolved"`
	Winners   []int           `json:"winners,omitempty"`
}

type TieTicket struct {
	Reason        models.TiebreakReason `json:"reason"`
	PoolID        *int                  `json:"pool_id,omitempty"`
	BoundaryScore *float64              `json:"boundary_score,omitempty"`
	N             int                   `json:"participant_count"`
	P             int                   `json:"winners_needed"`
	Participants  []int                 `json:"participant_ids"`
}

type tieResolver struct {
	repos     *repositories.Repositories
	generator *contestGenerator
	publisher EventPublisher
	logger    *slog.Logger
}

func NewTieResolver(repos *repositories.Repositories, publisher EventPublisher, logger *slog.Logger) TieResolver {
	return newTieResolver(repos, newContestGenerator(repos, logger), publisher, logger)
}

func newTieResolver(repos *repositories.Repositories, generator *contestGenerator, publisher EventPublisher, logger *slog.Logger) *tieResolver {
	return &tieResolver{repos: repos, generator: generator, publisher: publisher, logger: logger}
}

func (s *tieResolver) DetectCutoffTie(ctx context.Context, categoryID int) (*models.Contest, error) {
	var tiebreak *models.Contest
	buf := &eventBuffer{}
	err := s.repos.Tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		category, err := s.repos.Categories.GetByID(ctx, exec, categoryID)
		if err != nil {
			return mapRepositoryError(err)
		}
		if _, err := lockWritableTournament(ctx, s.repos, exec, category.TournamentID); err != nil {
			return err
		}
		tiebreak, err = s.detectCutoffTie(ctx, exec, category, buf)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(ctx, buf.events...)
	return tiebreak, nil
}

func (s *tieResolver) DetectPoolTie(ctx context.Context, poolID int) (*models.Contest, error) {
	var tiebreak *models.Contest
	buf := &eventBuffer{}
	err := s.repos.Tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		pool, err := s.repos.Pools.GetByID(ctx, exec, poolID)
		if err != nil {
			return mapRepositoryError(err)
		}
		category, err := s.repos.Categories.GetByID(ctx, exec, pool.CategoryID)
		if err != nil {
			return mapRepositoryError(err)
		}
		if _, err := lockWritableTournament(ctx, s.repos, exec, category.TournamentID); err != nil {
			return err
		}
		tiebreak, err = s.detectPoolTie(ctx, exec, category, pool, buf)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(ctx, buf.events...)
	return tiebreak, nil
}

// cutoffQualification ranks the category by preselection score against its pool capacity.
func (s *tieResolver) cutoffQualification(ctx context.Context, exec repositories.SQLExecutor, category *models.Category) (brackets.Qualification, int, error) {
	contestants, err := s.repos.Contestants.ListByCategory(ctx, exec, category.ID)
	if err != nil {
		return brackets.Qualification{}, 0, fmt.Errorf("failed to list contestants of category %d: %w", category.ID, err)
	}
	capacity, err := brackets.PoolCapacity(len(contestants), category.PoolCount)
	if err != nil {
		return brackets.Qualification{}, 0, err
	}
	stats, err := s.repos.Stats.ListByCategory(ctx, exec, category.ID)
	if err != nil {
		return brackets.Qualification{}, 0, fmt.Errorf("failed to list statistics of category %d: %w", category.ID, err)
	}
	entries := make([]brackets.ScoredContestant, 0, len(stats))
	for _, st := range stats {
		if st.PreselectionScore == nil {
			continue
		}
		entries = append(entries, brackets.ScoredContestant{ContestantID: st.ContestantID, Score: *st.PreselectionScore})
	}
	return brackets.Qualify(entries, capacity), capacity, nil
}

func (s *tieResolver) tiebreaks(ctx context.Context, exec repositories.SQLExecutor, category *models.Category) ([]*models.Contest, error) {
	return s.repos.Contests.ListByTournament(ctx, exec, category.TournamentID, repositories.ContestFilter{
		CategoryID: intPtr(category.ID),
		Phase:      contestPhasePtr(models.ContestPhaseTiebreak),
	})
}

func (s *tieResolver) cutoffTiebreak(ctx context.Context, exec repositories.SQLExecutor, category *models.Category) (*models.Contest, error) {
	all, err := s.tiebreaks(ctx, exec, category)
	if err != nil {
		return nil, err
	}
	for _, c := range all {
		if o, err := c.TiebreakOutcome(); err == nil && o.Reason == models.TiebreakReasonCutoff {
			return c, nil
		}
	}
	return nil, nil
}

// detectCutoffTie runs once every preselection contest of the category is
// completed. It returns the cutoff tiebreak, creating it if needed, or nil when
// the boundary is clean.
func (s *tieResolver) detectCutoffTie(ctx context.Context, exec repositories.SQLExecutor, category *models.Category, buf *eventBuffer) (*models.Contest, error) {
	preselection, err := s.repos.Contests.ListByTournament(ctx, exec, category.TournamentID, repositories.ContestFilter{
		CategoryID: intPtr(category.ID),
		Phase:      contestPhasePtr(models.ContestPhasePreselection),
	})
	if err != nil {
		return nil, err
	}
	if len(preselection) == 0 || !allCompleted(preselection) {
		return nil, nil
	}

	existing, err := s.cutoffTiebreak(ctx, exec, category)
	if err != nil || existing != nil {
		return existing, err
	}

	q, capacity, err := s.cutoffQualification(ctx, exec, category)
	if err != nil {
		return nil, err
	}
	if q.Tie == nil {
		s.logger.InfoContext(ctx, "preselection cutoff is clean",
			slog.Int("category_id", category.ID), slog.Int("capacity", capacity))
		return nil, nil
	}

	boundary := q.Tie.BoundaryScore
	return s.openTiebreak(ctx, exec, category, nil, models.TiebreakReasonCutoff, &boundary, q.Tie.TiedIDs, q.Tie.OpenSlots, buf)
}

// detectPoolTie runs once every contest of the pool is completed. A single
// points leader becomes the pool winner; several leaders get a tiebreak with P=1.
func (s *tieResolver) detectPoolTie(ctx context.Context, exec repositories.SQLExecutor, category *models.Category, pool *models.Pool, buf *eventBuffer) (*models.Contest, error) {
	if pool.WinnerID != nil {
		return nil, nil
	}
	contests, err := s.repos.Contests.ListByTournament(ctx, exec, category.TournamentID, repositories.ContestFilter{
		PoolID: intPtr(pool.ID),
		Phase:  contestPhasePtr(models.ContestPhasePool),
	})
	if err != nil {
		return nil, err
	}
	if len(contests) == 0 || !allCompleted(contests) {
		return nil, nil
	}

	all, err := s.tiebreaks(ctx, exec, category)
	if err != nil {
		return nil, err
	}
	for _, c := range all {
		if c.PoolID != nil && *c.PoolID == pool.ID {
			return c, nil
		}
	}

	members := make([]brackets.MemberPoints, 0, len(pool.MemberIDs))
	for _, id := range pool.MemberIDs {
		st, err := s.repos.Stats.GetOrCreate(ctx, exec, category.ID, id)
		if err != nil {
			return nil, err
		}
		members = append(members, brackets.MemberPoints{ContestantID: id, Points: st.Points()})
	}
	leaders := brackets.PoolLeaders(members)
	if len(leaders) == 1 {
		if err := s.repos.Pools.SetWinner(ctx, exec, pool.ID, leaders[0]); err != nil {
			return nil, mapRepositoryError(err)
		}
		pool.WinnerID = &leaders[0]
		s.logger.InfoContext(ctx, "pool winner determined",
			slog.Int("category_id", category.ID), slog.Int("pool_id", pool.ID), slog.Int("winner_id", leaders[0]))
		return nil, nil
	}
	return s.openTiebreak(ctx, exec, category, &pool.ID, models.TiebreakReasonPool, nil, leaders, 1, buf)
}

func (s *tieResolver) openTiebreak(ctx context.Context, exec repositories.SQLExecutor, category *models.Category, poolID *int,
	reason models.TiebreakReason, boundary *float64, tied []int, winnersNeeded int, buf *eventBuffer) (*models.Contest, error) {

	state, err := brackets.NewEliminationState(tied, winnersNeeded)
	if err != nil {
		return nil, err
	}
	outcome := &models.TiebreakOutcome{
		Reason:        reason,
		BoundaryScore: boundary,
		N:             len(tied),
		P:             winnersNeeded,
	}
	state.Apply(outcome)

	contest := &models.Contest{
		TournamentID:   category.TournamentID,
		CategoryID:     category.ID,
		PoolID:         poolID,
		Phase:          models.ContestPhaseTiebreak,
		Status:         models.ContestStatusPending,
		ParticipantIDs: tied,
		Outcome:        outcome,
	}
	if _, err := s.generator.Enqueue(ctx, exec, category.TournamentID, [][]*models.Contest{{contest}}); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "tie detected",
		slog.Int("tournament_id", category.TournamentID),
		slog.Int("category_id", category.ID),
		slog.Int("contest_id", contest.ID),
		slog.String("reason", string(reason)),
		slog.Int("n", len(tied)),
		slog.Int("p", winnersNeeded))
	buf.add(newEvent(EventTieDetected, category.TournamentID, category.ID, contest.ID, TieTicket{
		Reason:        reason,
		PoolID:        poolID,
		BoundaryScore: boundary,
		N:             len(tied),
		P:             winnersNeeded,
		Participants:  tied,
	}))
	return contest, nil
}

func (s *tieResolver) SubmitRound(ctx context.Context, contestID int, ballots []brackets.Ballot) (*RoundReport, error) {
	var report *RoundReport
	var roundErr error
	buf := &eventBuffer{}

	err := s.repos.Tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		contest, err := loadActiveContest(ctx, s.repos, exec, contestID, models.ContestPhaseTiebreak)
		if err != nil {
			return err
		}
		outcome, err := contest.TiebreakOutcome()
		if err != nil {
			return mapRepositoryError(err)
		}

		next, result, err := brackets.ResolveRound(brackets.StateFromOutcome(outcome), ballots)
		switch {
		case errors.Is(err, brackets.ErrInvalidBallot):
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		case errors.Is(err, brackets.ErrEliminationFinished):
			return fmt.Errorf("%w: %v", ErrInvalidState, err)
		case errors.Is(err, brackets.ErrAmbiguousVote):
			roundErr = err
		case err != nil:
			return err
		}

		next.Apply(outcome)
		report = &RoundReport{
			ContestID: contest.ID,
			Round:     result.Round,
			Kind:      result.Kind,
			Counts:    result.Counts,
			Removed:   result.Removed,
			Remaining: next.Remaining,
			Resolved:  result.Done,
		}

		if !result.Done {
			report.NextKind = next.Mode()
			return mapRepositoryError(s.repos.Contests.UpdateOutcome(ctx, exec, contest))
		}

		report.Winners = outcome.Winners
		if err := s.repos.Contests.Complete(ctx, exec, contest); err != nil {
			return mapRepositoryError(err)
		}
		if outcome.Reason == models.TiebreakReasonPool && contest.PoolID != nil {
			if err := s.repos.Pools.SetWinner(ctx, exec, *contest.PoolID, outcome.Winners[0]); err != nil {
				return mapRepositoryError(err)
			}
		}
		s.logger.InfoContext(ctx, "tiebreak resolved",
			slog.Int("contest_id", contest.ID),
			slog.String("reason", string(outcome.Reason)),
			slog.Any("winners", outcome.Winners),
			slog.Int("rounds", outcome.RoundsRecorded()))
		buf.add(newEvent(EventContestCompleted, contest.TournamentID, contest.CategoryID, contest.ID, outcome))
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(ctx, buf.events...)
	return report, roundErr
}
