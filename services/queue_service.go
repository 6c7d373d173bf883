package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/Dosada05/battle-tournament/models"
	"github.com/Dosada05/battle-tournament/repositories"
)

// QueueManager owns the ordered contest queue of a tournament and the
// single-active-contest invariant.
type QueueManager interface {
	// NextPending returns the lowest-position PENDING contest, optionally within
	// one category, or nil when nothing is pending.
	NextPending(ctx context.Context, tournamentID int, categoryID *int) (*models.Contest, error)
	Activate(ctx context.Context, contestID int) (*models.Contest, error)
	IsLocked(ctx context.Context, contest *models.Contest) (bool, error)
	// Reorder moves a movable contest to newPosition and renumbers the queue to
	// a dense 1..n sequence. It returns the queue in its new order.
	Reorder(ctx context.Context, contestID, newPosition int) ([]*models.Contest, error)
	List(ctx context.Context, tournamentID int) ([]*QueueEntry, error)
}

type QueueEntry struct {
	*models.Contest
	Locked bool `json:"locked"`
	OnDeck bool `json:"on_deck"`
}

type queueManager struct {
	repos     *repositories.Repositories
	publisher EventPublisher
	logger    *slog.Logger
}

func NewQueueManager(repos *repositories.Repositories, publisher EventPublisher, logger *slog.Logger) QueueManager {
	return &queueManager{repos: repos, publisher: publisher, logger: logger}
}

// onDeck is the lowest-position PENDING contest of an ordered queue.
func onDeck(queue []*models.Contest) *models.Contest {
	for _, c := range queue {
		if c.Status == models.ContestStatusPending {
			return c
		}
	}
	return nil
}

func isLocked(c *models.Contest, deck *models.Contest) bool {
	if c.Status != models.ContestStatusPending {
		return true
	}
	return deck != nil && deck.ID == c.ID
}

func (s *queueManager) NextPending(ctx context.Context, tournamentID int, categoryID *int) (*models.Contest, error) {
	pending, err := s.repos.Contests.ListByTournament(ctx, nil, tournamentID, repositories.ContestFilter{
		CategoryID: categoryID,
		Status:     contestStatusPtr(models.ContestStatusPending),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending contests of tournament %d: %w", tournamentID, err)
	}
	if len(pending) == 0 {
		return nil, nil
	}
	return pending[0], nil
}

func (s *queueManager) Activate(ctx context.Context, contestID int) (*models.Contest, error) {
	var contest *models.Contest
	err := s.repos.Tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		var err error
		contest, err = s.repos.Contests.GetByID(ctx, exec, contestID)
		if err != nil {
			return mapRepositoryError(err)
		}
		t, err := s.repos.Tournaments.GetByID(ctx, exec, contest.TournamentID)
		if err != nil {
			return mapRepositoryError(err)
		}
		if t.Locked() {
			return ErrTournamentLocked
		}
		if err := s.repos.Contests.Activate(ctx, exec, contestID); err != nil {
			return mapRepositoryError(err)
		}
		contest.Status = models.ContestStatusActive
		return nil
	})
	if err != nil {
		s.logger.WarnContext(ctx, "contest activation refused", slog.Int("contest_id", contestID), slog.Any("error", err))
		return nil, err
	}

	s.logger.InfoContext(ctx, "contest activated",
		slog.Int("tournament_id", contest.TournamentID),
		slog.Int("category_id", contest.CategoryID),
		slog.Int("contest_id", contest.ID))
	s.publisher.Publish(ctx, newEvent(EventContestActivated, contest.TournamentID, contest.CategoryID, contest.ID, contest))
	return contest, nil
}

func (s *queueManager) IsLocked(ctx context.Context, contest *models.Contest) (bool, error) {
	if contest.Status != models.ContestStatusPending {
		return true, nil
	}
	deck, err := s.NextPending(ctx, contest.TournamentID, nil)
	if err != nil {
		return false, err
	}
	return isLocked(contest, deck), nil
}

func (s *queueManager) List(ctx context.Context, tournamentID int) ([]*QueueEntry, error) {
	queue, err := s.repos.Contests.ListByTournament(ctx, nil, tournamentID, repositories.ContestFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list queue of tournament %d: %w", tournamentID, err)
	}
	deck := onDeck(queue)
	entries := make([]*QueueEntry, len(queue))
	for i, c := range queue {
		entries[i] = &QueueEntry{
			Contest: c,
			Locked:  isLocked(c, deck),
			OnDeck:  deck != nil && deck.ID == c.ID,
		}
	}
	return entries, nil
}

func (s *queueManager) Reorder(ctx context.Context, contestID, newPosition int) ([]*models.Contest, error) {
	var queue []*models.Contest
	err := s.repos.Tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		contest, err := s.repos.Contests.GetByID(ctx, exec, contestID)
		if err != nil {
			return mapRepositoryError(err)
		}
		if _, err := lockWritableTournament(ctx, s.repos, exec, contest.TournamentID); err != nil {
			return err
		}

		queue, err = s.repos.Contests.ListByTournament(ctx, exec, contest.TournamentID, repositories.ContestFilter{})
		if err != nil {
			return err
		}
		idx := slices.IndexFunc(queue, func(c *models.Contest) bool { return c.ID == contestID })
		if idx < 0 {
			return ErrContestNotFound
		}
		moving := queue[idx]
		deck := onDeck(queue)
		if isLocked(moving, deck) {
			return fmt.Errorf("%w: contest %d is %s", ErrReorderRejected, moving.ID, lockLabel(moving, deck))
		}
		if newPosition < 1 || newPosition > len(queue) {
			return fmt.Errorf("%w: position %d outside 1..%d", ErrReorderRejected, newPosition, len(queue))
		}
		// deck is non-nil here: moving itself is pending, so something is on deck.
		deckIdx := slices.IndexFunc(queue, func(c *models.Contest) bool { return c.ID == deck.ID })
		if newPosition-1 <= deckIdx {
			return fmt.Errorf("%w: position %d is not after the on-deck contest", ErrReorderRejected, newPosition)
		}

		queue = slices.Delete(queue, idx, idx+1)
		queue = slices.Insert(queue, newPosition-1, moving)

		changed := make(map[int]int)
		for i, c := range queue {
			if c.SequencePosition != i+1 {
				c.SequencePosition = i + 1
				changed[c.ID] = i + 1
			}
		}
		if len(changed) == 0 {
			return nil
		}
		return mapRepositoryError(s.repos.Contests.UpdatePositions(ctx, exec, changed))
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "queue reordered", slog.Int("contest_id", contestID), slog.Int("position", newPosition))
	return queue, nil
}

func lockLabel(c *models.Contest, deck *models.Contest) string {
	if c.Status != models.ContestStatusPending {
		return string(c.Status)
	}
	if deck != nil && deck.ID == c.ID {
		return "on deck"
	}
	return "movable"
}
