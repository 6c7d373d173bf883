package roster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Dosada05/battle-tournament/models"
	"github.com/Dosada05/battle-tournament/services"
	"gopkg.in/yaml.v3"
)

// Roster describes one tournament with its categories and contestants as
// kept in a YAML file by the organizers.
type Roster struct {
	Tournament services.CreateTournamentInput `yaml:"tournament"`
	Categories []Category                     `yaml:"categories"`
}

type Category struct {
	services.AddCategoryInput `yaml:",inline"`
	Contestants               []services.RegisterContestantInput `yaml:"contestants"`
}

// Summary is what Apply created.
type Summary struct {
	Tournament  *models.Tournament
	Categories  int
	Contestants int
}

func Parse(r io.Reader) (*Roster, error) {
	var roster Roster
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&roster); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("roster is empty")
		}
		return nil, fmt.Errorf("failed to parse roster: %w", err)
	}
	if roster.Tournament.Name == "" {
		return nil, errors.New("roster: tournament name is required")
	}
	if len(roster.Categories) == 0 {
		return nil, errors.New("roster: at least one category is required")
	}
	for i, c := range roster.Categories {
		if c.Name == "" {
			return nil, fmt.Errorf("roster: category #%d has no name", i+1)
		}
	}
	return &roster, nil
}

func LoadFile(path string) (*Roster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open roster %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Apply creates the tournament, then each category and its contestants in
// file order. It stops at the first error; what was created stays.
func (r *Roster) Apply(ctx context.Context, registration services.RegistrationService, logger *slog.Logger) (*Summary, error) {
	t, err := registration.CreateTournament(ctx, r.Tournament)
	if err != nil {
		return nil, fmt.Errorf("create tournament %q: %w", r.Tournament.Name, err)
	}
	summary := &Summary{Tournament: t}

	for _, c := range r.Categories {
		category, err := registration.AddCategory(ctx, t.ID, c.AddCategoryInput)
		if err != nil {
			return summary, fmt.Errorf("add category %q: %w", c.Name, err)
		}
		summary.Categories++

		for _, input := range c.Contestants {
			if _, err := registration.RegisterContestant(ctx, category.ID, input); err != nil {
				return summary, fmt.Errorf("register %q in %q: %w", input.DisplayName, c.Name, err)
			}
			summary.Contestants++
		}
		logger.Info("category seeded",
			slog.Int("tournament_id", t.ID),
			slog.String("category", c.Name),
			slog.Int("contestants", len(c.Contestants)))
	}
	return summary, nil
}
