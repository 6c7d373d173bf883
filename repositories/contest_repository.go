package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Dosada05/battle-tournament/models"
	"github.com/lib/pq"
)

var (
	ErrContestTournamentInvalid  = errors.New("contest tournament conflict or invalid")
	ErrContestCategoryInvalid    = errors.New("contest category conflict or invalid")
	ErrContestPoolInvalid        = errors.New("contest pool conflict or invalid")
	ErrContestOutcomeNotEncoding = errors.New("contest outcome could not be encoded")
)

type postgresContestRepository struct {
	db *sql.DB
}

func NewPostgresContestRepository(db *sql.DB) ContestRepository {
	return &postgresContestRepository{db: db}
}

const contestColumns = `id, tournament_id, category_id, pool_id, phase, status, participant_ids, outcome,
		       sequence_position, created_at, updated_at`

func scanContest(row rowScanner) (*models.Contest, error) {
	c := &models.Contest{}
	var pool sql.NullInt64
	var participants []int64
	var outcome []byte
	err := row.Scan(&c.ID, &c.TournamentID, &c.CategoryID, &pool, &c.Phase, &c.Status,
		pq.Array(&participants), &outcome, &c.SequencePosition, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if pool.Valid {
		id := int(pool.Int64)
		c.PoolID = &id
	}
	c.ParticipantIDs = fromInt64s(participants)
	c.Outcome, err = models.DecodeOutcome(c.Phase, outcome)
	if err != nil {
		return nil, fmt.Errorf("contest %d: %w", c.ID, err)
	}
	return c, nil
}

func encodeOutcome(c *models.Contest) ([]byte, error) {
	if c.Outcome == nil {
		out, err := models.NewOutcome(c.Phase)
		if err != nil {
			return nil, err
		}
		c.Outcome = out
	}
	if c.Outcome.Phase() != c.Phase {
		return nil, fmt.Errorf("%w: %s payload on %s contest", models.ErrOutcomePhaseMismatch, c.Outcome.Phase(), c.Phase)
	}
	raw, err := json.Marshal(c.Outcome)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContestOutcomeNotEncoding, err)
	}
	return raw, nil
}

func (r *postgresContestRepository) Create(ctx context.Context, exec SQLExecutor, c *models.Contest) error {
	outcome, err := encodeOutcome(c)
	if err != nil {
		return err
	}
	if c.Status == "" {
		c.Status = models.ContestStatusPending
	}
	query := `
		INSERT INTO contests
			(tournament_id, category_id, pool_id, phase, status, participant_ids, outcome, sequence_position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	err = getExecutor(r.db, exec).QueryRowContext(ctx, query,
		c.TournamentID,
		c.CategoryID,
		c.PoolID,
		c.Phase,
		c.Status,
		pq.Array(toInt64s(c.ParticipantIDs)),
		outcome,
		c.SequencePosition,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	return r.handleContestError(err)
}

func (r *postgresContestRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Contest, error) {
	row := getExecutor(r.db, exec).QueryRowContext(ctx, `SELECT `+contestColumns+` FROM contests WHERE id = $1`, id)
	c, err := scanContest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrContestNotFound
		}
		return nil, fmt.Errorf("failed to scan contest by id %d: %w", id, err)
	}
	return c, nil
}

func (r *postgresContestRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, filter ContestFilter) ([]*models.Contest, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT ` + contestColumns + ` FROM contests WHERE tournament_id = $1`)

	args := []interface{}{tournamentID}
	addFilter := func(column string, value interface{}) {
		args = append(args, value)
		queryBuilder.WriteString(" AND " + column + " = $" + strconv.Itoa(len(args)))
	}
	if filter.CategoryID != nil {
		addFilter("category_id", *filter.CategoryID)
	}
	if filter.PoolID != nil {
		addFilter("pool_id", *filter.PoolID)
	}
	if filter.Phase != nil {
		addFilter("phase", *filter.Phase)
	}
	if filter.Status != nil {
		addFilter("status", *filter.Status)
	}
	queryBuilder.WriteString(" ORDER BY sequence_position ASC, id ASC")

	rows, err := getExecutor(r.db, exec).QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query contests for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	contests := make([]*models.Contest, 0)
	for rows.Next() {
		c, scanErr := scanContest(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan contest row: %w", scanErr)
		}
		contests = append(contests, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during contest rows iteration: %w", err)
	}
	return contests, nil
}

func (r *postgresContestRepository) MaxPosition(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error) {
	var maxPos int
	err := getExecutor(r.db, exec).QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence_position), 0) FROM contests WHERE tournament_id = $1`, tournamentID).Scan(&maxPos)
	if err != nil {
		return 0, fmt.Errorf("failed to read max sequence position for tournament %d: %w", tournamentID, err)
	}
	return maxPos, nil
}

// Activate relies on the partial unique index contests_single_active_idx as the
// final arbiter: two racing transactions can both pass NOT EXISTS, only one insert
// into the index succeeds.
func (r *postgresContestRepository) Activate(ctx context.Context, exec SQLExecutor, id int) error {
	query := `
		UPDATE contests c
		SET status = $1, updated_at = NOW()
		WHERE c.id = $2
		  AND c.status = $3
		  AND NOT EXISTS (
		      SELECT 1 FROM contests o
		      WHERE o.tournament_id = c.tournament_id AND o.status = $1
		  )`

	result, err := getExecutor(r.db, exec).ExecContext(ctx, query,
		models.ContestStatusActive, id, models.ContestStatusPending)
	if err != nil {
		return r.handleContestError(err)
	}
	if err := checkAffectedRows(result, ErrContestNotPending); err == nil {
		return nil
	}

	current, err := r.GetByID(ctx, exec, id)
	if err != nil {
		return err
	}
	if current.Status != models.ContestStatusPending {
		return ErrContestNotPending
	}
	return ErrActiveContestExists
}

func (r *postgresContestRepository) UpdateOutcome(ctx context.Context, exec SQLExecutor, c *models.Contest) error {
	return r.writeOutcome(ctx, exec, c, models.ContestStatusActive)
}

func (r *postgresContestRepository) Complete(ctx context.Context, exec SQLExecutor, c *models.Contest) error {
	if err := r.writeOutcome(ctx, exec, c, models.ContestStatusCompleted); err != nil {
		return err
	}
	c.Status = models.ContestStatusCompleted
	return nil
}

func (r *postgresContestRepository) writeOutcome(ctx context.Context, exec SQLExecutor, c *models.Contest, status models.ContestStatus) error {
	outcome, err := encodeOutcome(c)
	if err != nil {
		return err
	}
	query := `
		UPDATE contests
		SET outcome = $1, status = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4`

	result, err := getExecutor(r.db, exec).ExecContext(ctx, query, outcome, status, c.ID, models.ContestStatusActive)
	if err != nil {
		return r.handleContestError(err)
	}
	if err := checkAffectedRows(result, ErrContestNotActive); err != nil {
		if _, getErr := r.GetByID(ctx, exec, c.ID); errors.Is(getErr, ErrContestNotFound) {
			return ErrContestNotFound
		}
		return err
	}
	return nil
}

// UpdatePositions relies on contests_tournament_position_key being DEFERRABLE
// INITIALLY DEFERRED so intermediate duplicates inside the transaction are allowed.
func (r *postgresContestRepository) UpdatePositions(ctx context.Context, exec SQLExecutor, positions map[int]int) error {
	executor := getExecutor(r.db, exec)
	for id, pos := range positions {
		result, err := executor.ExecContext(ctx,
			`UPDATE contests SET sequence_position = $1, updated_at = NOW() WHERE id = $2`, pos, id)
		if err != nil {
			return r.handleContestError(err)
		}
		if err := checkAffectedRows(result, ErrContestNotFound); err != nil {
			return fmt.Errorf("contest %d: %w", id, err)
		}
	}
	return nil
}

func (r *postgresContestRepository) handleContestError(err error) error {
	if err == nil {
		return nil
	}
	if constraint, ok := constraintOf(err); ok {
		switch constraint {
		case "contests_single_active_idx":
			return ErrActiveContestExists
		case "contests_tournament_position_key":
			return ErrPositionConflict
		case "contests_tournament_id_fkey":
			return ErrContestTournamentInvalid
		case "contests_category_id_fkey":
			return ErrContestCategoryInvalid
		case "contests_pool_id_fkey":
			return ErrContestPoolInvalid
		}
	}
	return err
}
