package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/battle-tournament/models"
)

type postgresCategoryRepository struct {
	db *sql.DB
}

func NewPostgresCategoryRepository(db *sql.DB) CategoryRepository {
	return &postgresCategoryRepository{db: db}
}

const categoryColumns = `id, tournament_id, name, pool_count, target_pool_size, is_team, champion_id, created_at`

func scanCategory(row rowScanner) (*models.Category, error) {
	c := &models.Category{}
	var champion sql.NullInt64
	if err := row.Scan(&c.ID, &c.TournamentID, &c.Name, &c.PoolCount, &c.TargetPoolSize, &c.IsTeam, &champion, &c.CreatedAt); err != nil {
		return nil, err
	}
	if champion.Valid {
		id := int(champion.Int64)
		c.ChampionID = &id
	}
	return c, nil
}

func (r *postgresCategoryRepository) Create(ctx context.Context, exec SQLExecutor, c *models.Category) error {
	query := `
		INSERT INTO categories (tournament_id, name, pool_count, target_pool_size, is_team)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := getExecutor(r.db, exec).QueryRowContext(ctx, query,
		c.TournamentID, c.Name, c.PoolCount, c.TargetPoolSize, c.IsTeam,
	).Scan(&c.ID, &c.CreatedAt)
	return r.handleCategoryError(err)
}

func (r *postgresCategoryRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Category, error) {
	row := getExecutor(r.db, exec).QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id)
	c, err := scanCategory(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("failed to scan category by id %d: %w", id, err)
	}
	return c, nil
}

func (r *postgresCategoryRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Category, error) {
	rows, err := getExecutor(r.db, exec).QueryContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE tournament_id = $1 ORDER BY id ASC`, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	categories := make([]*models.Category, 0)
	for rows.Next() {
		c, scanErr := scanCategory(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan category row: %w", scanErr)
		}
		categories = append(categories, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during category rows iteration: %w", err)
	}
	return categories, nil
}

func (r *postgresCategoryRepository) SetChampion(ctx context.Context, exec SQLExecutor, categoryID, contestantID int) error {
	result, err := getExecutor(r.db, exec).ExecContext(ctx,
		`UPDATE categories SET champion_id = $1 WHERE id = $2`, contestantID, categoryID)
	if err != nil {
		return r.handleCategoryError(err)
	}
	return checkAffectedRows(result, ErrCategoryNotFound)
}

func (r *postgresCategoryRepository) handleCategoryError(err error) error {
	if err == nil {
		return nil
	}
	if constraint, ok := constraintOf(err); ok {
		switch constraint {
		case "categories_tournament_id_name_key":
			return ErrCategoryNameConflict
		case "categories_tournament_id_fkey":
			return ErrTournamentNotFound
		case "categories_pool_count_check", "categories_target_pool_size_check", "categories_champion_id_fkey":
			return fmt.Errorf("%w: %s", ErrCategoryInvalid, constraint)
		}
	}
	return err
}
