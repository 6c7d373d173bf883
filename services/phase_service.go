package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Dosada05/battle-tournament/brackets"
	"github.com/Dosada05/battle-tournament/models"
	"github.com/Dosada05/battle-tournament/repositories"
	"golang.org/x/sync/errgroup"
)

// Archiver stores a snapshot of a completed tournament and returns its location.
type Archiver interface {
	ArchiveTournament(ctx context.Context, tournamentID int, snapshot []byte) (string, error)
}

// PhaseController is the tournament state machine. Advance checks every
// category first and reports all blocking reasons at once; the phase is only
// written after the entry action of the transition succeeded.
type PhaseController interface {
	Advance(ctx context.Context, tournamentID int) (*AdvanceResult, error)
	// Check returns the blocking reasons of the next transition, nil when it may proceed.
	Check(ctx context.Context, tournamentID int) (*ValidationError, error)
}

type AdvanceResult struct {
	TournamentID    int                    `json:"tournament_id"`
	From            models.TournamentPhase `json:"from"`
	To              models.TournamentPhase `json:"to"`
	Generated       int                    `json:"generated_contests"`
	ArchiveLocation string                 `json:"archive_location,omitempty"`
}

type phaseController struct {
	repos     *repositories.Repositories
	generator *contestGenerator
	ties      *tieResolver
	overview  OverviewService
	archiver  Archiver
	publisher EventPublisher
	logger    *slog.Logger
}

// NewPhaseController wires the controller; archiver may be nil.
func NewPhaseController(repos *repositories.Repositories, overview OverviewService, archiver Archiver, publisher EventPublisher, logger *slog.Logger) PhaseController {
	generator := newContestGenerator(repos, logger)
	return &phaseController{
		repos:     repos,
		generator: generator,
		ties:      newTieResolver(repos, generator, publisher, logger),
		overview:  overview,
		archiver:  archiver,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *phaseController) Check(ctx context.Context, tournamentID int) (*ValidationError, error) {
	t, err := s.repos.Tournaments.GetByID(ctx, nil, tournamentID)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	if t.Locked() {
		return nil, ErrTournamentLocked
	}
	next, ok := t.Phase.Next()
	if !ok {
		return nil, ErrNoNextPhase
	}
	verr, err := s.check(ctx, nil, t, next, true)
	if err != nil || verr.empty() {
		return nil, err
	}
	return verr, nil
}

// check collects the blocking reasons of the t.Phase -> next transition.
// Categories are checked in parallel only when concurrent is set: a single
// transaction executor cannot serve parallel queries.
func (s *phaseController) check(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament, next models.TournamentPhase, concurrent bool) (*ValidationError, error) {
	verr := &ValidationError{From: string(t.Phase), To: string(next)}

	categories, err := s.repos.Categories.ListByTournament(ctx, exec, t.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories of tournament %d: %w", t.ID, err)
	}
	if len(categories) == 0 {
		verr.add(Reason{Rule: RuleNoCategories, Required: 1, Message: "tournament has no categories"}, nil)
		return verr, nil
	}

	perCategory := make([]*ValidationError, len(categories))
	if concurrent {
		g, gctx := errgroup.WithContext(ctx)
		for i, category := range categories {
			g.Go(func() error {
				r, err := s.checkCategory(gctx, exec, t.Phase, category)
				if err != nil {
					return fmt.Errorf("category %d: %w", category.ID, err)
				}
				perCategory[i] = r
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i, category := range categories {
			r, err := s.checkCategory(ctx, exec, t.Phase, category)
			if err != nil {
				return nil, fmt.Errorf("category %d: %w", category.ID, err)
			}
			perCategory[i] = r
		}
	}
	for _, r := range perCategory {
		verr.merge(r)
	}
	return verr, nil
}

func (s *phaseController) checkCategory(ctx context.Context, exec repositories.SQLExecutor, phase models.TournamentPhase, category *models.Category) (*ValidationError, error) {
	verr := &ValidationError{}
	reason := func(rule string, current, required int, format string, args ...interface{}) Reason {
		return Reason{
			CategoryID:   category.ID,
			CategoryName: category.Name,
			Rule:         rule,
			Current:      current,
			Required:     required,
			Message:      fmt.Sprintf(format, args...),
		}
	}
	contestsOf := func(p models.ContestPhase) ([]*models.Contest, error) {
		return s.repos.Contests.ListByTournament(ctx, exec, category.TournamentID, repositories.ContestFilter{
			CategoryID: intPtr(category.ID),
			Phase:      contestPhasePtr(p),
		})
	}
	unresolvedTies := func() error {
		tiebreaks, err := contestsOf(models.ContestPhaseTiebreak)
		if err != nil {
			return err
		}
		if open := len(tiebreaks) - countCompleted(tiebreaks); open > 0 {
			verr.add(reason(RuleUnresolvedTies, open, 0, "%d tiebreak contest(s) still unresolved", open), nil)
		}
		return nil
	}
	// Финал умеет только пары пулов, поэтому лишние пулы отсекаются до их создания.
	unsupportedPools := func() bool {
		if category.PoolCount <= brackets.SupportedFinalPools {
			return false
		}
		err := fmt.Errorf("%w: finals support at most %d pools, category has %d",
			ErrConfiguration, brackets.SupportedFinalPools, category.PoolCount)
		verr.add(reason(RuleConfiguration, category.PoolCount, brackets.SupportedFinalPools, "%v", err), err)
		return true
	}

	switch phase {
	case models.PhaseRegistration:
		minimum, err := brackets.MinimumContestants(category.PoolCount)
		if err != nil {
			verr.add(reason(RuleConfiguration, category.PoolCount, 1, "%v", err), err)
			return verr, nil
		}
		unsupportedPools()
		contestants, err := s.repos.Contestants.ListByCategory(ctx, exec, category.ID)
		if err != nil {
			return nil, err
		}
		if len(contestants) < minimum {
			verr.add(reason(RuleMinimumContestants, len(contestants), minimum,
				"%d contestants registered, %d required for %d pools (short by %d)",
				len(contestants), minimum, category.PoolCount, minimum-len(contestants)), nil)
		}

	case models.PhasePreselection:
		if unsupportedPools() {
			return verr, nil
		}
		contests, err := contestsOf(models.ContestPhasePreselection)
		if err != nil {
			return nil, err
		}
		done := countCompleted(contests)
		if len(contests) == 0 || done < len(contests) {
			verr.add(reason(RulePreselectionPending, done, len(contests),
				"%d of %d preselection contests completed", done, len(contests)), nil)
			return verr, nil
		}
		if err := unresolvedTies(); err != nil {
			return nil, err
		}
		if !verr.empty() {
			return verr, nil
		}
		q, _, err := s.ties.cutoffQualification(ctx, exec, category)
		if err != nil {
			verr.add(reason(RuleConfiguration, category.PoolCount, 1, "%v", err), err)
			return verr, nil
		}
		if q.Tie != nil {
			tb, err := s.ties.cutoffTiebreak(ctx, exec, category)
			if err != nil {
				return nil, err
			}
			if tb == nil {
				verr.add(reason(RuleUnresolvedTies, len(q.Tie.TiedIDs), 0,
					"%d contestants tied at %.2f for %d slot(s), no tiebreak opened yet",
					len(q.Tie.TiedIDs), q.Tie.BoundaryScore, q.Tie.OpenSlots), nil)
			}
		}

	case models.PhasePools:
		unsupportedPools()
		contests, err := contestsOf(models.ContestPhasePool)
		if err != nil {
			return nil, err
		}
		if done := countCompleted(contests); len(contests) == 0 || done < len(contests) {
			verr.add(reason(RulePoolContestsPending, done, len(contests),
				"%d of %d pool contests completed", done, len(contests)), nil)
		}
		if err := unresolvedTies(); err != nil {
			return nil, err
		}
		pools, err := s.repos.Pools.ListByCategory(ctx, exec, category.ID)
		if err != nil {
			return nil, err
		}
		decided := 0
		for _, p := range pools {
			if p.WinnerID != nil {
				decided++
			}
		}
		if decided < len(pools) || len(pools) == 0 {
			verr.add(reason(RulePoolWinners, decided, len(pools),
				"%d of %d pools have a winner", decided, len(pools)), nil)
		}

	case models.PhaseFinals:
		contests, err := contestsOf(models.ContestPhaseFinal)
		if err != nil {
			return nil, err
		}
		if done := countCompleted(contests); done < len(contests) {
			verr.add(reason(RuleFinalsPending, done, len(contests),
				"%d of %d final contests completed", done, len(contests)), nil)
		}
	}
	return verr, nil
}

func (s *phaseController) Advance(ctx context.Context, tournamentID int) (*AdvanceResult, error) {
	t, err := s.repos.Tournaments.GetByID(ctx, nil, tournamentID)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	if t.Locked() {
		return nil, ErrTournamentLocked
	}
	next, ok := t.Phase.Next()
	if !ok {
		return nil, ErrNoNextPhase
	}

	result := &AdvanceResult{TournamentID: tournamentID, From: t.Phase, To: next}
	err = s.repos.Tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		locked, err := lockWritableTournament(ctx, s.repos, exec, tournamentID)
		if err != nil {
			return err
		}
		if locked.Phase != result.From {
			return fmt.Errorf("%w: expected %s, found %s", ErrPhaseConflict, result.From, locked.Phase)
		}
		// Предусловия проверяются под блокировкой турнира, в той же транзакции, что и запись фазы.
		verr, err := s.check(ctx, exec, locked, next, false)
		if err != nil {
			return err
		}
		if !verr.empty() {
			return verr
		}
		categories, err := s.repos.Categories.ListByTournament(ctx, exec, tournamentID)
		if err != nil {
			return err
		}

		var generated []*models.Contest
		switch next {
		case models.PhasePreselection:
			generated, err = s.enterPreselection(ctx, exec, tournamentID, categories)
		case models.PhasePools:
			generated, err = s.enterPools(ctx, exec, tournamentID, categories)
		case models.PhaseFinals:
			generated, err = s.enterFinals(ctx, exec, tournamentID, categories)
		}
		if err != nil {
			return err
		}
		result.Generated = len(generated)

		return mapRepositoryError(s.repos.Tournaments.UpdatePhase(ctx, exec, tournamentID, result.From, next))
	})
	var verr *ValidationError
	if errors.As(err, &verr) {
		s.logger.InfoContext(ctx, "phase advance blocked",
			slog.Int("tournament_id", tournamentID),
			slog.String("from", string(result.From)),
			slog.Int("reasons", len(verr.Reasons)))
		return nil, verr
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "phase advance failed",
			slog.Int("tournament_id", tournamentID), slog.String("to", string(next)), slog.Any("error", err))
		return nil, err
	}

	s.logger.InfoContext(ctx, "phase advanced",
		slog.Int("tournament_id", tournamentID),
		slog.String("from", string(result.From)),
		slog.String("to", string(result.To)),
		slog.Int("generated_contests", result.Generated))
	s.publisher.Publish(ctx, newEvent(EventPhaseAdvanced, tournamentID, 0, 0, result))

	if next == models.PhaseCompleted {
		result.ArchiveLocation = s.archive(ctx, tournamentID)
	}
	return result, nil
}

func (s *phaseController) enterPreselection(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, categories []*models.Category) ([]*models.Contest, error) {
	batches := make([][]*models.Contest, 0, len(categories))
	for _, category := range categories {
		contests, err := s.generator.GeneratePreselection(ctx, exec, category)
		if err != nil {
			return nil, fmt.Errorf("category %s: %w", category.Name, err)
		}
		batches = append(batches, contests)
	}
	return s.generator.Enqueue(ctx, exec, tournamentID, batches)
}

func (s *phaseController) enterPools(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, categories []*models.Category) ([]*models.Contest, error) {
	batches := make([][]*models.Contest, 0, len(categories))
	for _, category := range categories {
		pools, err := s.ensurePools(ctx, exec, category)
		if err != nil {
			return nil, fmt.Errorf("category %s: %w", category.Name, err)
		}
		perPool := make([][]*models.Contest, 0, len(pools))
		for _, pool := range pools {
			contests, err := s.generator.GeneratePoolContests(ctx, exec, category, pool)
			if err != nil {
				return nil, fmt.Errorf("category %s: %w", category.Name, err)
			}
			perPool = append(perPool, contests)
		}
		batches = append(batches, brackets.Interleave(perPool))
	}
	return s.generator.Enqueue(ctx, exec, tournamentID, batches)
}

// ensurePools returns the pools of the category, seeding them from the
// preselection ranking on first entry.
func (s *phaseController) ensurePools(ctx context.Context, exec repositories.SQLExecutor, category *models.Category) ([]*models.Pool, error) {
	existing, err := s.repos.Pools.ListByCategory(ctx, exec, category.ID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}

	qualified, err := s.qualifiers(ctx, exec, category)
	if err != nil {
		return nil, err
	}
	sizes, err := brackets.DistributeToPools(len(qualified), category.PoolCount)
	if err != nil {
		return nil, err
	}
	seeded, err := brackets.SeedPools(qualified, sizes)
	if err != nil {
		return nil, err
	}

	pools := make([]*models.Pool, len(seeded))
	for i, members := range seeded {
		pools[i] = &models.Pool{CategoryID: category.ID, Number: i + 1, MemberIDs: members}
		if err := s.repos.Pools.Create(ctx, exec, pools[i]); err != nil {
			return nil, fmt.Errorf("failed to create pool %d: %w", i+1, err)
		}
	}
	s.logger.InfoContext(ctx, "pools seeded",
		slog.Int("category_id", category.ID), slog.Int("pools", len(pools)), slog.Int("qualified", len(qualified)))
	return pools, nil
}

// qualifiers lists the contestants entering the pools in ranking order: those
// secured outright, then the winners of the cutoff tiebreak.
func (s *phaseController) qualifiers(ctx context.Context, exec repositories.SQLExecutor, category *models.Category) ([]int, error) {
	q, capacity, err := s.ties.cutoffQualification(ctx, exec, category)
	if err != nil {
		return nil, err
	}
	qualified := append([]int(nil), q.Secured...)
	if q.Tie != nil {
		tb, err := s.ties.cutoffTiebreak(ctx, exec, category)
		if err != nil {
			return nil, err
		}
		if tb == nil || tb.Status != models.ContestStatusCompleted {
			return nil, fmt.Errorf("%w: cutoff tie of category %d is unresolved", ErrInvalidState, category.ID)
		}
		outcome, err := tb.TiebreakOutcome()
		if err != nil {
			return nil, mapRepositoryError(err)
		}
		winners := append([]int(nil), outcome.Winners...)
		sort.Ints(winners)
		qualified = append(qualified, winners...)
	}
	if len(qualified) != capacity {
		return nil, fmt.Errorf("%w: %d qualified contestants for a capacity of %d", ErrConfiguration, len(qualified), capacity)
	}
	return qualified, nil
}

// enterFinals pairs pool winners. A single-pool category has no final: its
// pool winner is the champion.
func (s *phaseController) enterFinals(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, categories []*models.Category) ([]*models.Contest, error) {
	batches := make([][]*models.Contest, 0, len(categories))
	for _, category := range categories {
		pools, err := s.repos.Pools.ListByCategory(ctx, exec, category.ID)
		if err != nil {
			return nil, err
		}
		if len(pools) == 1 {
			if pools[0].WinnerID == nil {
				return nil, fmt.Errorf("%w: pool of category %d has no winner", ErrInvalidState, category.ID)
			}
			if err := s.repos.Categories.SetChampion(ctx, exec, category.ID, *pools[0].WinnerID); err != nil {
				return nil, mapRepositoryError(err)
			}
			continue
		}
		contests, err := s.generator.GenerateFinalContests(ctx, exec, category, pools)
		if err != nil {
			return nil, fmt.Errorf("category %s: %w", category.Name, err)
		}
		batches = append(batches, contests)
	}
	return s.generator.Enqueue(ctx, exec, tournamentID, batches)
}

// archive is best effort: a failed upload is logged and never undoes the transition.
func (s *phaseController) archive(ctx context.Context, tournamentID int) string {
	if s.archiver == nil || s.overview == nil {
		return ""
	}
	overview, err := s.overview.GetOverview(ctx, tournamentID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to build archive snapshot", slog.Int("tournament_id", tournamentID), slog.Any("error", err))
		return ""
	}
	snapshot, err := json.Marshal(overview)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to encode archive snapshot", slog.Int("tournament_id", tournamentID), slog.Any("error", err))
		return ""
	}
	location, err := s.archiver.ArchiveTournament(ctx, tournamentID, snapshot)
	if err != nil {
		s.logger.WarnContext(ctx, "tournament archive upload failed", slog.Int("tournament_id", tournamentID), slog.Any("error", err))
		return ""
	}
	s.logger.InfoContext(ctx, "tournament archived", slog.Int("tournament_id", tournamentID), slog.String("location", location))
	return location
}
