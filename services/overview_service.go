package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Dosada05/battle-tournament/models"
	"github.com/Dosada05/battle-tournament/repositories"
	"golang.org/x/sync/errgroup"
)

type OverviewService interface {
	GetOverview(ctx context.Context, tournamentID int) (*TournamentOverview, error)
	ListStandings(ctx context.Context, categoryID int) ([]Standing, error)
}

type TournamentOverview struct {
	Tournament *models.Tournament  `json:"tournament"`
	Categories []*CategoryOverview `json:"categories"`
	Queue      []*QueueEntry       `json:"queue"`
}

type CategoryOverview struct {
	Category    *models.Category     `json:"category"`
	Contestants []*models.Contestant `json:"contestants"`
	Pools       []*models.Pool       `json:"pools"`
	Standings   []Standing           `json:"standings"`
}

type Standing struct {
	Rank              int      `json:"rank"`
	ContestantID      int      `json:"contestant_id"`
	DisplayName       string   `json:"display_name"`
	Wins              int      `json:"wins"`
	Draws             int      `json:"draws"`
	Losses            int      `json:"losses"`
	Points            int      `json:"points"`
	PreselectionScore *float64 `json:"preselection_score,omitempty"`
}

type overviewService struct {
	repos  *repositories.Repositories
	queue  QueueManager
	logger *slog.Logger
}

func NewOverviewService(repos *repositories.Repositories, queue QueueManager, logger *slog.Logger) OverviewService {
	return &overviewService{repos: repos, queue: queue, logger: logger}
}

func (s *overviewService) GetOverview(ctx context.Context, tournamentID int) (*TournamentOverview, error) {
	t, err := s.repos.Tournaments.GetByID(ctx, nil, tournamentID)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	categories, err := s.repos.Categories.ListByTournament(ctx, nil, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories of tournament %d: %w", tournamentID, err)
	}

	overview := &TournamentOverview{
		Tournament: t,
		Categories: make([]*CategoryOverview, len(categories)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		queue, err := s.queue.List(gctx, tournamentID)
		overview.Queue = queue
		return err
	})
	for i, category := range categories {
		g.Go(func() error {
			co, err := s.loadCategory(gctx, category)
			if err != nil {
				return fmt.Errorf("category %d: %w", category.ID, err)
			}
			overview.Categories[i] = co
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.ErrorContext(ctx, "failed to load tournament overview", slog.Int("tournament_id", tournamentID), slog.Any("error", err))
		return nil, err
	}
	return overview, nil
}

func (s *overviewService) loadCategory(ctx context.Context, category *models.Category) (*CategoryOverview, error) {
	contestants, err := s.repos.Contestants.ListByCategory(ctx, nil, category.ID)
	if err != nil {
		return nil, err
	}
	pools, err := s.repos.Pools.ListByCategory(ctx, nil, category.ID)
	if err != nil {
		return nil, err
	}
	stats, err := s.repos.Stats.ListByCategory(ctx, nil, category.ID)
	if err != nil {
		return nil, err
	}
	return &CategoryOverview{
		Category:    category,
		Contestants: contestants,
		Pools:       pools,
		Standings:   buildStandings(contestants, stats),
	}, nil
}

func (s *overviewService) ListStandings(ctx context.Context, categoryID int) ([]Standing, error) {
	category, err := s.repos.Categories.GetByID(ctx, nil, categoryID)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	co, err := s.loadCategory(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("failed to load standings of category %d: %w", categoryID, err)
	}
	return co.Standings, nil
}

// buildStandings orders by points, then preselection score, then contestant ID.
// Contestants without statistics are listed with zeros.
func buildStandings(contestants []*models.Contestant, stats []*models.ContestantStats) []Standing {
	byID := make(map[int]*models.ContestantStats, len(stats))
	for _, st := range stats {
		byID[st.ContestantID] = st
	}
	standings := make([]Standing, 0, len(contestants))
	for _, c := range contestants {
		row := Standing{ContestantID: c.ID, DisplayName: c.DisplayName}
		if st, ok := byID[c.ID]; ok {
			row.Wins, row.Draws, row.Losses = st.Wins, st.Draws, st.Losses
			row.Points = st.Points()
			row.PreselectionScore = st.PreselectionScore
		}
		standings = append(standings, row)
	}
	sort.SliceStable(standings, func(i, j int) bool {
		a, b := standings[i], standings[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		as, bs := scoreOrMinus(a.PreselectionScore), scoreOrMinus(b.PreselectionScore)
		if as != bs {
			return as > bs
		}
		return a.ContestantID < b.ContestantID
	})
	for i := range standings {
		standings[i].Rank = i + 1
	}
	return standings
}

func scoreOrMinus(v *float64) float64 {
	if v == nil {
		return -1
	}
	return *v
}
