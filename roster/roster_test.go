package roster

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/Dosada05/battle-tournament/repositories"
	"github.com/Dosada05/battle-tournament/services"
)

const springRoster = `
tournament:
  name: Spring Battle
categories:
  - name: Solo
    pool_count: 2
    contestants:
      - name: Ayla
      - name: Bo
      - name: Cass
  - name: Duo
    pool_count: 1
    is_team: true
    contestants:
      - name: Dee
        partner: Eli
`

func TestParseRoster(t *testing.T) {
	r, err := Parse(strings.NewReader(springRoster))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if r.Tournament.Name != "Spring Battle" {
		t.Errorf("tournament name = %q", r.Tournament.Name)
	}
	if len(r.Categories) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(r.Categories))
	}
	duo := r.Categories[1]
	if !duo.IsTeam || duo.PoolCount != 1 {
		t.Errorf("duo settings not decoded: %+v", duo.AddCategoryInput)
	}
	if duo.Contestants[0].PartnerName == nil || *duo.Contestants[0].PartnerName != "Eli" {
		t.Errorf("partner not decoded: %+v", duo.Contestants[0])
	}
}

func TestParseRejectsBadRosters(t *testing.T) {
	cases := map[string]string{
		"empty":         "",
		"no tournament": "categories:\n  - name: Solo\n",
		"no categories": "tournament:\n  name: X\n",
		"unknown field": "tournament:\n  name: X\n  city: Lyon\ncategories:\n  - name: Solo\n",
		"unnamed":       "tournament:\n  name: X\ncategories:\n  - pool_count: 1\n",
	}
	for name, doc := range cases {
		if _, err := Parse(strings.NewReader(doc)); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}

func TestApplyCreatesEverything(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repos := repositories.NewMemoryRepositories()
	engine := services.NewEngine(repos, nil, nil, logger)

	r, err := Parse(strings.NewReader(springRoster))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	summary, err := r.Apply(ctx, engine.Registration, logger)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if summary.Categories != 2 || summary.Contestants != 4 {
		t.Errorf("unexpected summary %+v", summary)
	}

	categories, err := repos.Categories.ListByTournament(ctx, nil, summary.Tournament.ID)
	if err != nil {
		t.Fatalf("ListByTournament failed: %v", err)
	}
	if len(categories) != 2 {
		t.Fatalf("expected 2 stored categories, got %d", len(categories))
	}
	solo, err := repos.Contestants.ListByCategory(ctx, nil, categories[0].ID)
	if err != nil {
		t.Fatalf("ListByCategory failed: %v", err)
	}
	if len(solo) != 3 {
		t.Errorf("expected 3 solo contestants, got %d", len(solo))
	}
}

func TestApplyStopsOnMissingPartner(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := services.NewEngine(repositories.NewMemoryRepositories(), nil, nil, logger)

	r, err := Parse(strings.NewReader("tournament:\n  name: X\ncategories:\n  - name: Duo\n    pool_count: 1\n    is_team: true\n    contestants:\n      - name: Solo Act\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	summary, err := r.Apply(context.Background(), engine.Registration, logger)
	if !errors.Is(err, services.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if summary == nil || summary.Categories != 1 || summary.Contestants != 0 {
		t.Errorf("unexpected partial summary %+v", summary)
	}
}
