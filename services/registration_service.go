package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Dosada05/battle-tournament/models"
	"github.com/Dosada05/battle-tournament/repositories"
)

// RegistrationService creates tournaments, categories and contestants.
// Categories and contestants can only be added while the tournament is in REGISTRATION.
type RegistrationService interface {
	CreateTournament(ctx context.Context, input CreateTournamentInput) (*models.Tournament, error)
	GetTournament(ctx context.Context, tournamentID int) (*models.Tournament, error)
	AddCategory(ctx context.Context, tournamentID int, input AddCategoryInput) (*models.Category, error)
	RegisterContestant(ctx context.Context, categoryID int, input RegisterContestantInput) (*models.Contestant, error)
}

type CreateTournamentInput struct {
	Name string `json:"name" yaml:"name"`
}

type AddCategoryInput struct {
	Name           string `json:"name" yaml:"name"`
	PoolCount      int    `json:"pool_count" yaml:"pool_count"`
	TargetPoolSize int    `json:"target_pool_size" yaml:"target_pool_size"`
	IsTeam         bool   `json:"is_team" yaml:"is_team"`
}

type RegisterContestantInput struct {
	DisplayName string  `json:"display_name" yaml:"name"`
	PartnerName *string `json:"partner_name,omitempty" yaml:"partner,omitempty"`
}

type registrationService struct {
	repos  *repositories.Repositories
	logger *slog.Logger
}

func NewRegistrationService(repos *repositories.Repositories, logger *slog.Logger) RegistrationService {
	return &registrationService{repos: repos, logger: logger}
}

func (s *registrationService) CreateTournament(ctx context.Context, input CreateTournamentInput) (*models.Tournament, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: tournament name is required", ErrInvalidInput)
	}
	t := &models.Tournament{Name: name, Phase: models.PhaseRegistration}
	if err := s.repos.Tournaments.Create(ctx, nil, t); err != nil {
		return nil, fmt.Errorf("failed to create tournament: %w", err)
	}
	s.logger.InfoContext(ctx, "tournament created", slog.Int("tournament_id", t.ID), slog.String("name", t.Name))
	return t, nil
}

func (s *registrationService) GetTournament(ctx context.Context, tournamentID int) (*models.Tournament, error) {
	t, err := s.repos.Tournaments.GetByID(ctx, nil, tournamentID)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	return t, nil
}

// openForRegistration locks the tournament and requires the REGISTRATION phase.
func (s *registrationService) openForRegistration(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) error {
	t, err := lockWritableTournament(ctx, s.repos, exec, tournamentID)
	if err != nil {
		return err
	}
	if t.Phase != models.PhaseRegistration {
		return fmt.Errorf("%w: tournament %d is in %s", ErrRegistrationClosed, t.ID, t.Phase)
	}
	return nil
}

func (s *registrationService) AddCategory(ctx context.Context, tournamentID int, input AddCategoryInput) (*models.Category, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: category name is required", ErrInvalidInput)
	}
	if input.PoolCount < 1 {
		return nil, fmt.Errorf("%w: pool count must be at least 1, got %d", ErrConfiguration, input.PoolCount)
	}
	if input.TargetPoolSize < 0 {
		return nil, fmt.Errorf("%w: target pool size cannot be negative", ErrConfiguration)
	}

	category := &models.Category{
		TournamentID:   tournamentID,
		Name:           name,
		PoolCount:      input.PoolCount,
		TargetPoolSize: input.TargetPoolSize,
		IsTeam:         input.IsTeam,
	}
	err := s.repos.Tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.openForRegistration(ctx, exec, tournamentID); err != nil {
			return err
		}
		return mapRepositoryError(s.repos.Categories.Create(ctx, exec, category))
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "category added",
		slog.Int("tournament_id", tournamentID), slog.Int("category_id", category.ID), slog.String("name", category.Name))
	return category, nil
}

func (s *registrationService) RegisterContestant(ctx context.Context, categoryID int, input RegisterContestantInput) (*models.Contestant, error) {
	name := strings.TrimSpace(input.DisplayName)
	if name == "" {
		return nil, fmt.Errorf("%w: display name is required", ErrInvalidInput)
	}

	contestant := &models.Contestant{CategoryID: categoryID, DisplayName: name}
	err := s.repos.Tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		category, err := s.repos.Categories.GetByID(ctx, exec, categoryID)
		if err != nil {
			return mapRepositoryError(err)
		}
		if err := s.openForRegistration(ctx, exec, category.TournamentID); err != nil {
			return err
		}
		if category.IsTeam {
			if input.PartnerName == nil || strings.TrimSpace(*input.PartnerName) == "" {
				return fmt.Errorf("%w: category %s requires a partner", ErrInvalidInput, category.Name)
			}
			partner := strings.TrimSpace(*input.PartnerName)
			contestant.PartnerName = &partner
		}
		if err := s.repos.Contestants.Create(ctx, exec, contestant); err != nil {
			return mapRepositoryError(err)
		}
		_, err = s.repos.Stats.GetOrCreate(ctx, exec, categoryID, contestant.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "contestant registered",
		slog.Int("category_id", categoryID), slog.Int("contestant_id", contestant.ID))
	return contestant, nil
}
