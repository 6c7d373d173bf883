package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/battle-tournament/models"
)

type postgresContestantRepository struct {
	db *sql.DB
}

func NewPostgresContestantRepository(db *sql.DB) ContestantRepository {
	return &postgresContestantRepository{db: db}
}

func (r *postgresContestantRepository) Create(ctx context.Context, exec SQLExecutor, c *models.Contestant) error {
	query := `
		INSERT INTO contestants (category_id, display_name, partner_name)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := getExecutor(r.db, exec).QueryRowContext(ctx, query, c.CategoryID, c.DisplayName, c.PartnerName).
		Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		if constraint, ok := constraintOf(err); ok && constraint == "contestants_category_id_fkey" {
			return ErrContestantInvalid
		}
		return fmt.Errorf("failed to insert contestant: %w", err)
	}
	return nil
}

func (r *postgresContestantRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Contestant, error) {
	query := `SELECT id, category_id, display_name, partner_name, created_at FROM contestants WHERE id = $1`

	c := &models.Contestant{}
	err := getExecutor(r.db, exec).QueryRowContext(ctx, query, id).
		Scan(&c.ID, &c.CategoryID, &c.DisplayName, &c.PartnerName, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrContestantNotFound
		}
		return nil, fmt.Errorf("failed to scan contestant by id %d: %w", id, err)
	}
	return c, nil
}

func (r *postgresContestantRepository) ListByCategory(ctx context.Context, exec SQLExecutor, categoryID int) ([]*models.Contestant, error) {
	query := `
		SELECT id, category_id, display_name, partner_name, created_at
		FROM contestants
		WHERE category_id = $1
		ORDER BY id ASC`

	rows, err := getExecutor(r.db, exec).QueryContext(ctx, query, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query contestants for category %d: %w", categoryID, err)
	}
	defer rows.Close()

	contestants := make([]*models.Contestant, 0)
	for rows.Next() {
		var c models.Contestant
		if scanErr := rows.Scan(&c.ID, &c.CategoryID, &c.DisplayName, &c.PartnerName, &c.CreatedAt); scanErr != nil {
			return nil, fmt.Errorf("failed to scan contestant row: %w", scanErr)
		}
		contestants = append(contestants, &c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during contestant rows iteration: %w", err)
	}
	return contestants, nil
}
