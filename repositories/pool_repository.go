package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/battle-tournament/models"
	"github.com/lib/pq"
)

type postgresPoolRepository struct {
	db *sql.DB
}

func NewPostgresPoolRepository(db *sql.DB) PoolRepository {
	return &postgresPoolRepository{db: db}
}

const poolColumns = `id, category_id, number, member_ids, winner_id, created_at`

func scanPool(row rowScanner) (*models.Pool, error) {
	p := &models.Pool{}
	var members []int64
	var winner sql.NullInt64
	if err := row.Scan(&p.ID, &p.CategoryID, &p.Number, pq.Array(&members), &winner, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.MemberIDs = fromInt64s(members)
	if winner.Valid {
		id := int(winner.Int64)
		p.WinnerID = &id
	}
	return p, nil
}

func (r *postgresPoolRepository) Create(ctx context.Context, exec SQLExecutor, p *models.Pool) error {
	query := `
		INSERT INTO pools (category_id, number, member_ids)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := getExecutor(r.db, exec).QueryRowContext(ctx, query, p.CategoryID, p.Number, pq.Array(toInt64s(p.MemberIDs))).
		Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert pool %d of category %d: %w", p.Number, p.CategoryID, err)
	}
	return nil
}

func (r *postgresPoolRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Pool, error) {
	p, err := scanPool(getExecutor(r.db, exec).QueryRowContext(ctx, `SELECT `+poolColumns+` FROM pools WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPoolNotFound
		}
		return nil, fmt.Errorf("failed to scan pool by id %d: %w", id, err)
	}
	return p, nil
}

func (r *postgresPoolRepository) ListByCategory(ctx context.Context, exec SQLExecutor, categoryID int) ([]*models.Pool, error) {
	rows, err := getExecutor(r.db, exec).QueryContext(ctx,
		`SELECT `+poolColumns+` FROM pools WHERE category_id = $1 ORDER BY number ASC`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pools for category %d: %w", categoryID, err)
	}
	defer rows.Close()

	pools := make([]*models.Pool, 0)
	for rows.Next() {
		p, scanErr := scanPool(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan pool row: %w", scanErr)
		}
		pools = append(pools, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during pool rows iteration: %w", err)
	}
	return pools, nil
}

func (r *postgresPoolRepository) SetWinner(ctx context.Context, exec SQLExecutor, poolID, contestantID int) error {
	result, err := getExecutor(r.db, exec).ExecContext(ctx,
		`UPDATE pools SET winner_id = $1 WHERE id = $2`, contestantID, poolID)
	if err != nil {
		return fmt.Errorf("failed to set winner of pool %d: %w", poolID, err)
	}
	return checkAffectedRows(result, ErrPoolNotFound)
}
