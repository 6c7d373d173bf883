package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Dosada05/battle-tournament/brackets"
	"github.com/Dosada05/battle-tournament/models"
	"github.com/Dosada05/battle-tournament/repositories"
)

// ContestGenerator builds the contests of a phase. Every Generate method is a
// no-op returning nil when the contests it would build already exist, so phase
// entry actions can be retried. Generate methods do not persist; Enqueue does.
type ContestGenerator interface {
	GeneratePreselection(ctx context.Context, exec repositories.SQLExecutor, category *models.Category) ([]*models.Contest, error)
	GeneratePoolContests(ctx context.Context, exec repositories.SQLExecutor, category *models.Category, pool *models.Pool) ([]*models.Contest, error)
	GenerateFinalContests(ctx context.Context, exec repositories.SQLExecutor, category *models.Category, pools []*models.Pool) ([]*models.Contest, error)
	// Enqueue interleaves the per-category batches and stores them after the
	// current last position of the tournament queue.
	Enqueue(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, batches [][]*models.Contest) ([]*models.Contest, error)
}

type contestGenerator struct {
	repos        *repositories.Repositories
	preselection brackets.Generator
	roundRobin   brackets.Generator
	finals       brackets.Generator
	logger       *slog.Logger
}

func NewContestGenerator(repos *repositories.Repositories, logger *slog.Logger) ContestGenerator {
	return newContestGenerator(repos, logger)
}

func newContestGenerator(repos *repositories.Repositories, logger *slog.Logger) *contestGenerator {
	return &contestGenerator{
		repos:        repos,
		preselection: brackets.NewPreselectionGenerator(),
		roundRobin:   brackets.NewRoundRobinGenerator(),
		finals:       brackets.NewFinalsGenerator(),
		logger:       logger,
	}
}

func (g *contestGenerator) exists(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, filter repositories.ContestFilter) (bool, error) {
	existing, err := g.repos.Contests.ListByTournament(ctx, exec, tournamentID, filter)
	if err != nil {
		return false, err
	}
	return len(existing) > 0, nil
}

func (g *contestGenerator) GeneratePreselection(ctx context.Context, exec repositories.SQLExecutor, category *models.Category) ([]*models.Contest, error) {
	done, err := g.exists(ctx, exec, category.TournamentID, repositories.ContestFilter{
		CategoryID: intPtr(category.ID),
		Phase:      contestPhasePtr(models.ContestPhasePreselection),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to check preselection contests of category %d: %w", category.ID, err)
	}
	if done {
		g.logger.InfoContext(ctx, "preselection already generated", slog.Int("category_id", category.ID))
		return nil, nil
	}

	contestants, err := g.repos.Contestants.ListByCategory(ctx, exec, category.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contestants of category %d: %w", category.ID, err)
	}
	ids := make([]int, len(contestants))
	for i, c := range contestants {
		ids[i] = c.ID
	}

	pairings, err := g.preselection.Generate(ctx, brackets.GenerateParams{CategoryID: category.ID, ContestantIDs: ids})
	if err != nil {
		return nil, err
	}
	return g.toContests(category, nil, models.ContestPhasePreselection, pairings)
}

func (g *contestGenerator) GeneratePoolContests(ctx context.Context, exec repositories.SQLExecutor, category *models.Category, pool *models.Pool) ([]*models.Contest, error) {
	done, err := g.exists(ctx, exec, category.TournamentID, repositories.ContestFilter{
		PoolID: intPtr(pool.ID),
		Phase:  contestPhasePtr(models.ContestPhasePool),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to check contests of pool %d: %w", pool.ID, err)
	}
	if done {
		return nil, nil
	}

	pairings, err := g.roundRobin.Generate(ctx, brackets.GenerateParams{CategoryID: category.ID, ContestantIDs: pool.MemberIDs})
	if err != nil {
		return nil, fmt.Errorf("pool %d: %w", pool.Number, err)
	}
	return g.toContests(category, &pool.ID, models.ContestPhasePool, pairings)
}

// GenerateFinalContests pairs pool winners in pool-number order.
func (g *contestGenerator) GenerateFinalContests(ctx context.Context, exec repositories.SQLExecutor, category *models.Category, pools []*models.Pool) ([]*models.Contest, error) {
	done, err := g.exists(ctx, exec, category.TournamentID, repositories.ContestFilter{
		CategoryID: intPtr(category.ID),
		Phase:      contestPhasePtr(models.ContestPhaseFinal),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to check final contests of category %d: %w", category.ID, err)
	}
	if done {
		return nil, nil
	}

	winners := make([]int, 0, len(pools))
	for _, p := range pools {
		if p.WinnerID == nil {
			return nil, fmt.Errorf("%w: pool %d of category %d has no winner", ErrInvalidState, p.Number, category.ID)
		}
		winners = append(winners, *p.WinnerID)
	}

	pairings, err := g.finals.Generate(ctx, brackets.GenerateParams{
		CategoryID:    category.ID,
		ContestantIDs: winners,
		PoolCount:     category.PoolCount,
	})
	if err != nil {
		return nil, err
	}
	return g.toContests(category, nil, models.ContestPhaseFinal, pairings)
}

func (g *contestGenerator) toContests(category *models.Category, poolID *int, phase models.ContestPhase, pairings []*brackets.Pairing) ([]*models.Contest, error) {
	contests := make([]*models.Contest, 0, len(pairings))
	for _, p := range pairings {
		outcome, err := models.NewOutcome(phase)
		if err != nil {
			return nil, err
		}
		contests = append(contests, &models.Contest{
			TournamentID:   category.TournamentID,
			CategoryID:     category.ID,
			PoolID:         poolID,
			Phase:          phase,
			Status:         models.ContestStatusPending,
			ParticipantIDs: p.ParticipantIDs,
			Outcome:        outcome,
		})
	}
	return contests, nil
}

func (g *contestGenerator) Enqueue(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, batches [][]*models.Contest) ([]*models.Contest, error) {
	ordered := brackets.Interleave(batches)
	if len(ordered) == 0 {
		return ordered, nil
	}

	last, err := g.repos.Contests.MaxPosition(ctx, exec, tournamentID)
	if err != nil {
		return nil, err
	}
	for i, c := range ordered {
		c.SequencePosition = last + i + 1
		if err := g.repos.Contests.Create(ctx, exec, c); err != nil {
			return nil, fmt.Errorf("failed to store %s contest for category %d: %w", c.Phase, c.CategoryID, err)
		}
	}
	g.logger.InfoContext(ctx, "contests enqueued",
		slog.Int("tournament_id", tournamentID),
		slog.Int("count", len(ordered)),
		slog.Int("first_position", last+1))
	return ordered, nil
}
