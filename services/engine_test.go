package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/Dosada05/battle-tournament/models"
	"github.com/Dosada05/battle-tournament/repositories"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(_ context.Context, events ...Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
}

func (p *recordingPublisher) count(eventType EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

type testEnv struct {
	ctx    context.Context
	engine *Engine
	repos  *repositories.Repositories
	events *recordingPublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repos := repositories.NewMemoryRepositories()
	events := &recordingPublisher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &testEnv{
		ctx:    context.Background(),
		engine: NewEngine(repos, events, nil, logger),
		repos:  repos,
		events: events,
	}
}

func (env *testEnv) tournament(t *testing.T) *models.Tournament {
	t.Helper()
	tournament, err := env.engine.Registration.CreateTournament(env.ctx, CreateTournamentInput{Name: "Spring Battle"})
	if err != nil {
		t.Fatalf("CreateTournament failed: %v", err)
	}
	return tournament
}

func (env *testEnv) category(t *testing.T, tournamentID int, name string, poolCount, contestants int) (*models.Category, []int) {
	t.Helper()
	category, err := env.engine.Registration.AddCategory(env.ctx, tournamentID, AddCategoryInput{Name: name, PoolCount: poolCount})
	if err != nil {
		t.Fatalf("AddCategory %s failed: %v", name, err)
	}
	ids := make([]int, 0, contestants)
	for i := 0; i < contestants; i++ {
		c, err := env.engine.Registration.RegisterContestant(env.ctx, category.ID, RegisterContestantInput{
			DisplayName: fmt.Sprintf("%s dancer %d", name, i+1),
		})
		if err != nil {
			t.Fatalf("RegisterContestant failed: %v", err)
		}
		ids = append(ids, c.ID)
	}
	return category, ids
}

func (env *testEnv) contests(t *testing.T, tournamentID int, filter repositories.ContestFilter) []*models.Contest {
	t.Helper()
	contests, err := env.repos.Contests.ListByTournament(env.ctx, nil, tournamentID, filter)
	if err != nil {
		t.Fatalf("ListByTournament failed: %v", err)
	}
	return contests
}

func (env *testEnv) advance(t *testing.T, tournamentID int, want models.TournamentPhase) *AdvanceResult {
	t.Helper()
	res, err := env.engine.Phases.Advance(env.ctx, tournamentID)
	if err != nil {
		t.Fatalf("Advance to %s failed: %v", want, err)
	}
	if res.To != want {
		t.Fatalf("advanced to %s, want %s", res.To, want)
	}
	return res
}

func TestAdvanceRequiresMinimumContestants(t *testing.T) {
	env := newTestEnv(t)
	tournament := env.tournament(t)
	category, _ := env.category(t, tournament.ID, "Solo", 2, 4)

	_, err := env.engine.Phases.Advance(env.ctx, tournament.ID)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if len(verr.Reasons) != 1 {
		t.Fatalf("expected 1 reason, got %+v", verr.Reasons)
	}
	r := verr.Reasons[0]
	if r.Rule != RuleMinimumContestants || r.CategoryID != category.ID || r.Current != 4 || r.Required != 5 {
		t.Errorf("unexpected reason %+v", r)
	}

	got, err := env.repos.Tournaments.GetByID(env.ctx, nil, tournament.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Phase != models.PhaseRegistration {
		t.Errorf("phase moved to %s on a failed transition", got.Phase)
	}

	if _, err := env.engine.Registration.RegisterContestant(env.ctx, category.ID, RegisterContestantInput{DisplayName: "Late entry"}); err != nil {
		t.Fatalf("RegisterContestant failed: %v", err)
	}
	res := env.advance(t, tournament.ID, models.PhasePreselection)
	if res.Generated != 2 {
		t.Errorf("expected 2 preselection contests for 5 contestants, got %d", res.Generated)
	}
	if env.events.count(EventPhaseAdvanced) != 1 {
		t.Errorf("expected one PhaseAdvanced event")
	}
}

func TestAdvanceReportsEveryCategory(t *testing.T) {
	env := newTestEnv(t)
	tournament := env.tournament(t)
	env.category(t, tournament.ID, "Solo", 2, 3)
	env.category(t, tournament.ID, "Duo", 1, 2)

	_, err := env.engine.Phases.Advance(env.ctx, tournament.ID)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if len(verr.Reasons) != 2 {
		t.Errorf("expected a reason per category, got %+v", verr.Reasons)
	}
}

func TestRegistrationClosedAfterPreselectionStarts(t *testing.T) {
	env := newTestEnv(t)
	tournament := env.tournament(t)
	category, _ := env.category(t, tournament.ID, "Solo", 1, 3)
	env.advance(t, tournament.ID, models.PhasePreselection)

	_, err := env.engine.Registration.RegisterContestant(env.ctx, category.ID, RegisterContestantInput{DisplayName: "Too late"})
	if !errors.Is(err, ErrRegistrationClosed) {
		t.Errorf("expected ErrRegistrationClosed, got %v", err)
	}
	_, err = env.engine.Registration.AddCategory(env.ctx, tournament.ID, AddCategoryInput{Name: "Kids", PoolCount: 1})
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

func TestPreselectionGenerationIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	tournament := env.tournament(t)
	category, _ := env.category(t, tournament.ID, "Solo", 2, 7)
	env.advance(t, tournament.ID, models.PhasePreselection)

	before := env.contests(t, tournament.ID, repositories.ContestFilter{})
	if len(before) != 3 {
		t.Fatalf("expected 3 preselection contests for 7 contestants, got %d", len(before))
	}

	again, err := env.engine.Generator.GeneratePreselection(env.ctx, nil, category)
	if err != nil {
		t.Fatalf("GeneratePreselection failed: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("expected no new contests, got %d", len(again))
	}
	if _, err := env.engine.Generator.Enqueue(env.ctx, nil, tournament.ID, [][]*models.Contest{again}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	after := env.contests(t, tournament.ID, repositories.ContestFilter{})
	if len(after) != len(before) {
		t.Errorf("contest count changed from %d to %d", len(before), len(after))
	}
}

func TestPreselectionInterleavesCategories(t *testing.T) {
	env := newTestEnv(t)
	tournament := env.tournament(t)
	solo, _ := env.category(t, tournament.ID, "Solo", 2, 6)
	duo, _ := env.category(t, tournament.ID, "Duo", 1, 4)
	env.advance(t, tournament.ID, models.PhasePreselection)

	queue := env.contests(t, tournament.ID, repositories.ContestFilter{})
	want := []int{solo.ID, duo.ID, solo.ID, duo.ID, solo.ID}
	if len(queue) != len(want) {
		t.Fatalf("expected %d contests, got %d", len(want), len(queue))
	}
	for i, c := range queue {
		if c.CategoryID != want[i] {
			t.Errorf("position %d belongs to category %d, want %d", i+1, c.CategoryID, want[i])
		}
		if c.SequencePosition != i+1 {
			t.Errorf("contest %d at position %d, want %d", c.ID, c.SequencePosition, i+1)
		}
	}
}

func TestAdvanceRejectsThreePoolsAtRegistration(t *testing.T) {
	env := newTestEnv(t)
	tournament := env.tournament(t)
	env.category(t, tournament.ID, "Trio", 3, 7)

	_, err := env.engine.Phases.Advance(env.ctx, tournament.ID)
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	expectBlocked(t, env, tournament.ID, RuleConfiguration)
}

func TestAdvanceRejectsThreePoolsBeforeCreatingPools(t *testing.T) {
	env := newTestEnv(t)
	tournament := env.tournament(t)
	category, ids := env.category(t, tournament.ID, "Trio", 3, 7)

	// категория с тремя пулами попала в PRESELECTION в обход проверки регистрации
	err := env.repos.Tx.WithinTx(env.ctx, func(exec repositories.SQLExecutor) error {
		contests, err := env.engine.Generator.GeneratePreselection(env.ctx, exec, category)
		if err != nil {
			return err
		}
		if _, err := env.engine.Generator.Enqueue(env.ctx, exec, tournament.ID, [][]*models.Contest{contests}); err != nil {
			return err
		}
		return env.repos.Tournaments.UpdatePhase(env.ctx, exec, tournament.ID, models.PhaseRegistration, models.PhasePreselection)
	})
	if err != nil {
		t.Fatalf("forcing preselection failed: %v", err)
	}

	scores := make(map[int]float64, len(ids))
	for i, id := range ids {
		scores[id] = 9.0 - 0.5*float64(i)
	}
	runPreselection(t, env, tournament.ID, category.ID, scores)

	verr := expectBlocked(t, env, tournament.ID, RuleConfiguration)
	if !errors.Is(verr, ErrConfiguration) {
		t.Errorf("validation error must match ErrConfiguration: %v", verr)
	}

	pools, err := env.repos.Pools.ListByCategory(env.ctx, nil, category.ID)
	if err != nil {
		t.Fatalf("ListByCategory failed: %v", err)
	}
	if len(pools) != 0 {
		t.Errorf("expected no pools, got %d", len(pools))
	}
	got, err := env.repos.Tournaments.GetByID(env.ctx, nil, tournament.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Phase != models.PhasePreselection {
		t.Errorf("phase moved to %s on a blocked transition", got.Phase)
	}
}

func TestCheckMatchesAdvanceUnderLock(t *testing.T) {
	env := newTestEnv(t)
	tournament := env.tournament(t)
	env.category(t, tournament.ID, "Solo", 2, 4)

	verr, err := env.engine.Phases.Check(env.ctx, tournament.ID)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if verr == nil || verr.Reasons[0].Rule != RuleMinimumContestants {
		t.Fatalf("expected a minimum_contestants reason, got %+v", verr)
	}
	blocked := expectBlocked(t, env, tournament.ID, RuleMinimumContestants)
	if len(blocked.Reasons) != len(verr.Reasons) {
		t.Errorf("Check reported %d reasons, Advance %d", len(verr.Reasons), len(blocked.Reasons))
	}
}
