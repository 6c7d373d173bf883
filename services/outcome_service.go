package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Dosada05/battle-tournament/brackets"
	"github.com/Dosada05/battle-tournament/models"
	"github.com/Dosada05/battle-tournament/repositories"
)

const (
	MinPreselectionScore = 0.0
	MaxPreselectionScore = 10.0
)

// OutcomeRecorder validates and stores results. Outcomes are write-once: every
// call requires the contest to be ACTIVE, and completion flips it to COMPLETED.
type OutcomeRecorder interface {
	// RecordPreselectionScore appends one averaged judge input for a contestant.
	RecordPreselectionScore(ctx context.Context, contestID, contestantID int, score float64) (*models.Contest, error)
	CompletePreselection(ctx context.Context, contestID int) (*CompletionReport, error)
	RecordPoolOutcome(ctx context.Context, contestID int, input PoolResultInput) (*CompletionReport, error)
	RecordFinalOutcome(ctx context.Context, contestID int, input FinalResultInput) (*CompletionReport, error)
}

type PoolResultInput struct {
	WinnerID *int `json:"winner_id"`
	Draw     bool `json:"draw"`
}

type FinalResultInput struct {
	WinnerID *int `json:"winner_id"`
	Draw     bool `json:"draw"`
}

// CompletionReport is the completed contest plus the tiebreak it triggered, if any.
type CompletionReport struct {
	Contest  *models.Contest `json:"contest"`
	Tiebreak *models.Contest `json:"tiebreak,omitempty"`
	// PoolWinnerID is set when the completion decided a pool outright.
	PoolWinnerID *int `json:"pool_winner_id,omitempty"`
	ChampionID   *int `json:"champion_id,omitempty"`
}

type outcomeRecorder struct {
	repos     *repositories.Repositories
	ties      *tieResolver
	publisher EventPublisher
	logger    *slog.Logger
}

func NewOutcomeRecorder(repos *repositories.Repositories, publisher EventPublisher, logger *slog.Logger) OutcomeRecorder {
	return &outcomeRecorder{
		repos:     repos,
		ties:      newTieResolver(repos, newContestGenerator(repos, logger), publisher, logger),
		publisher: publisher,
		logger:    logger,
	}
}

func (s *outcomeRecorder) RecordPreselectionScore(ctx context.Context, contestID, contestantID int, score float64) (*models.Contest, error) {
	if score < MinPreselectionScore || score > MaxPreselectionScore {
		return nil, fmt.Errorf("%w: score %.2f outside [%.0f, %.0f]", ErrInvalidOutcome, score, MinPreselectionScore, MaxPreselectionScore)
	}

	var contest *models.Contest
	err := s.repos.Tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		var err error
		contest, err = loadActiveContest(ctx, s.repos, exec, contestID, models.ContestPhasePreselection)
		if err != nil {
			return err
		}
		if !contest.HasParticipant(contestantID) {
			return fmt.Errorf("%w: contestant %d does not take part in contest %d", ErrInvalidOutcome, contestantID, contest.ID)
		}
		outcome, err := contest.PreselectionOutcome()
		if err != nil {
			return mapRepositoryError(err)
		}
		outcome.Inputs[contestantID] = append(outcome.Inputs[contestantID], brackets.RoundScore(score))
		return mapRepositoryError(s.repos.Contests.UpdateOutcome(ctx, exec, contest))
	})
	if err != nil {
		return nil, err
	}
	return contest, nil
}

func (s *outcomeRecorder) CompletePreselection(ctx context.Context, contestID int) (*CompletionReport, error) {
	report := &CompletionReport{}
	buf := &eventBuffer{}
	err := s.repos.Tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		contest, err := loadActiveContest(ctx, s.repos, exec, contestID, models.ContestPhasePreselection)
		if err != nil {
			return err
		}
		outcome, err := contest.PreselectionOutcome()
		if err != nil {
			return mapRepositoryError(err)
		}

		outcome.Scores = make(map[int]float64, len(contest.ParticipantIDs))
		for _, id := range contest.ParticipantIDs {
			inputs := outcome.Inputs[id]
			if len(inputs) == 0 {
				return fmt.Errorf("%w: contestant %d has no score in contest %d", ErrInvalidOutcome, id, contest.ID)
			}
			sum := 0.0
			for _, v := range inputs {
				sum += v
			}
			avg := brackets.RoundScore(sum / float64(len(inputs)))
			outcome.Scores[id] = avg

			st, err := s.repos.Stats.GetOrCreate(ctx, exec, contest.CategoryID, id)
			if err != nil {
				return err
			}
			st.PreselectionScore = &avg
			if err := s.repos.Stats.Update(ctx, exec, st); err != nil {
				return err
			}
		}

		if err := s.repos.Contests.Complete(ctx, exec, contest); err != nil {
			return mapRepositoryError(err)
		}
		report.Contest = contest
		buf.add(newEvent(EventContestCompleted, contest.TournamentID, contest.CategoryID, contest.ID, outcome))

		category, err := s.repos.Categories.GetByID(ctx, exec, contest.CategoryID)
		if err != nil {
			return mapRepositoryError(err)
		}
		report.Tiebreak, err = s.ties.detectCutoffTie(ctx, exec, category, buf)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "preselection contest completed",
		slog.Int("contest_id", contestID), slog.Bool("tie", report.Tiebreak != nil))
	s.publisher.Publish(ctx, buf.events...)
	return report, nil
}

func (s *outcomeRecorder) RecordPoolOutcome(ctx context.Context, contestID int, input PoolResultInput) (*CompletionReport, error) {
	if input.Draw == (input.WinnerID != nil) {
		return nil, fmt.Errorf("%w: a pool result needs either a winner or a draw", ErrInvalidOutcome)
	}

	report := &CompletionReport{}
	buf := &eventBuffer{}
	err := s.repos.Tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		contest, err := loadActiveContest(ctx, s.repos, exec, contestID, models.ContestPhasePool)
		if err != nil {
			return err
		}
		if input.WinnerID != nil && !contest.HasParticipant(*input.WinnerID) {
			return fmt.Errorf("%w: winner %d does not take part in contest %d", ErrInvalidOutcome, *input.WinnerID, contest.ID)
		}
		outcome, err := contest.PoolOutcome()
		if err != nil {
			return mapRepositoryError(err)
		}
		outcome.WinnerID = input.WinnerID
		outcome.Draw = input.Draw

		for _, id := range contest.ParticipantIDs {
			st, err := s.repos.Stats.GetOrCreate(ctx, exec, contest.CategoryID, id)
			if err != nil {
				return err
			}
			switch {
			case input.Draw:
				st.Draws++
			case *input.WinnerID == id:
				st.Wins++
			default:
				st.Losses++
			}
			if err := s.repos.Stats.Update(ctx, exec, st); err != nil {
				return err
			}
		}

		if err := s.repos.Contests.Complete(ctx, exec, contest); err != nil {
			return mapRepositoryError(err)
		}
		report.Contest = contest
		buf.add(newEvent(EventContestCompleted, contest.TournamentID, contest.CategoryID, contest.ID, outcome))

		if contest.PoolID == nil {
			return nil
		}
		pool, err := s.repos.Pools.GetByID(ctx, exec, *contest.PoolID)
		if err != nil {
			return mapRepositoryError(err)
		}
		category, err := s.repos.Categories.GetByID(ctx, exec, contest.CategoryID)
		if err != nil {
			return mapRepositoryError(err)
		}
		report.Tiebreak, err = s.ties.detectPoolTie(ctx, exec, category, pool, buf)
		report.PoolWinnerID = pool.WinnerID
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(ctx, buf.events...)
	return report, nil
}

func (s *outcomeRecorder) RecordFinalOutcome(ctx context.Context, contestID int, input FinalResultInput) (*CompletionReport, error) {
	if input.Draw {
		return nil, fmt.Errorf("%w: finals cannot end in a draw", ErrInvalidOutcome)
	}
	if input.WinnerID == nil {
		return nil, fmt.Errorf("%w: a final result needs a winner", ErrInvalidOutcome)
	}

	report := &CompletionReport{}
	buf := &eventBuffer{}
	err := s.repos.Tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		contest, err := loadActiveContest(ctx, s.repos, exec, contestID, models.ContestPhaseFinal)
		if err != nil {
			return err
		}
		if !contest.HasParticipant(*input.WinnerID) {
			return fmt.Errorf("%w: winner %d does not take part in contest %d", ErrInvalidOutcome, *input.WinnerID, contest.ID)
		}
		outcome, err := contest.FinalOutcome()
		if err != nil {
			return mapRepositoryError(err)
		}
		outcome.WinnerID = input.WinnerID

		if err := s.repos.Contests.Complete(ctx, exec, contest); err != nil {
			return mapRepositoryError(err)
		}
		if err := s.repos.Categories.SetChampion(ctx, exec, contest.CategoryID, *input.WinnerID); err != nil {
			return mapRepositoryError(err)
		}
		report.Contest = contest
		report.ChampionID = input.WinnerID
		buf.add(newEvent(EventContestCompleted, contest.TournamentID, contest.CategoryID, contest.ID, outcome))
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "champion declared", slog.Int("contest_id", contestID), slog.Int("champion_id", *input.WinnerID))
	s.publisher.Publish(ctx, buf.events...)
	return report, nil
}
