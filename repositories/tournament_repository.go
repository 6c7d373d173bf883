package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/battle-tournament/models"
)

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

func (r *postgresTournamentRepository) Create(ctx context.Context, exec SQLExecutor, t *models.Tournament) error {
	query := `
		INSERT INTO tournaments (name, phase)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at`

	if t.Phase == "" {
		t.Phase = models.PhaseRegistration
	}
	err := getExecutor(r.db, exec).QueryRowContext(ctx, query, t.Name, t.Phase).
		Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert tournament %q: %w", t.Name, err)
	}
	return nil
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error) {
	query := `SELECT id, name, phase, created_at, updated_at FROM tournaments WHERE id = $1`

	t := &models.Tournament{}
	err := getExecutor(r.db, exec).QueryRowContext(ctx, query, id).
		Scan(&t.ID, &t.Name, &t.Phase, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to scan tournament by id %d: %w", id, err)
	}
	return t, nil
}

// LockByID reads the tournament with FOR UPDATE so mutations of one tournament
// serialize on its row. exec must be a transaction.
func (r *postgresTournamentRepository) LockByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error) {
	query := `SELECT id, name, phase, created_at, updated_at FROM tournaments WHERE id = $1 FOR UPDATE`

	t := &models.Tournament{}
	err := getExecutor(r.db, exec).QueryRowContext(ctx, query, id).
		Scan(&t.ID, &t.Name, &t.Phase, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to lock tournament %d: %w", id, err)
	}
	return t, nil
}

func (r *postgresTournamentRepository) UpdatePhase(ctx context.Context, exec SQLExecutor, id int, from, to models.TournamentPhase) error {
	query := `UPDATE tournaments SET phase = $1, updated_at = NOW() WHERE id = $2 AND phase = $3`

	result, err := getExecutor(r.db, exec).ExecContext(ctx, query, to, id, from)
	if err != nil {
		return fmt.Errorf("failed to update phase of tournament %d: %w", id, err)
	}
	if err := checkAffectedRows(result, ErrPhaseConflict); err != nil {
		if _, getErr := r.GetByID(ctx, exec, id); errors.Is(getErr, ErrTournamentNotFound) {
			return ErrTournamentNotFound
		}
		return err
	}
	return nil
}
