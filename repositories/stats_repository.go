package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/battle-tournament/models"
)

type postgresStatsRepository struct {
	db *sql.DB
}

func NewPostgresStatsRepository(db *sql.DB) StatsRepository {
	return &postgresStatsRepository{db: db}
}

const statsColumns = `contestant_id, category_id, wins, draws, losses, preselection_score, updated_at`

func scanStats(row rowScanner) (*models.ContestantStats, error) {
	var s models.ContestantStats
	var score sql.NullFloat64
	if err := row.Scan(&s.ContestantID, &s.CategoryID, &s.Wins, &s.Draws, &s.Losses, &score, &s.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStatsNotFound
		}
		return nil, err
	}
	if score.Valid {
		v := score.Float64
		s.PreselectionScore = &v
	}
	return &s, nil
}

// GetOrCreate inserts a zeroed row on first use; concurrent creators converge on the same row.
func (r *postgresStatsRepository) GetOrCreate(ctx context.Context, exec SQLExecutor, categoryID, contestantID int) (*models.ContestantStats, error) {
	executor := getExecutor(r.db, exec)
	_, err := executor.ExecContext(ctx, `
		INSERT INTO contestant_stats (contestant_id, category_id, wins, draws, losses, updated_at)
		VALUES ($1, $2, 0, 0, 0, NOW())
		ON CONFLICT (contestant_id) DO NOTHING`, contestantID, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to create stats for c:%d p:%d: %w", categoryID, contestantID, err)
	}

	row := executor.QueryRowContext(ctx, `SELECT `+statsColumns+` FROM contestant_stats WHERE contestant_id = $1`, contestantID)
	s, err := scanStats(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats for c:%d p:%d: %w", categoryID, contestantID, err)
	}
	return s, nil
}

func (r *postgresStatsRepository) Update(ctx context.Context, exec SQLExecutor, s *models.ContestantStats) error {
	s.UpdatedAt = time.Now()
	query := `
		UPDATE contestant_stats SET
			wins = $1, draws = $2, losses = $3, preselection_score = $4, updated_at = $5
		WHERE contestant_id = $6`
	result, err := getExecutor(r.db, exec).ExecContext(ctx, query,
		s.Wins, s.Draws, s.Losses, s.PreselectionScore, s.UpdatedAt, s.ContestantID)
	if err != nil {
		return fmt.Errorf("failed to update stats of contestant %d: %w", s.ContestantID, err)
	}
	return checkAffectedRows(result, ErrStatsNotFound)
}

func (r *postgresStatsRepository) ListByCategory(ctx context.Context, exec SQLExecutor, categoryID int) ([]*models.ContestantStats, error) {
	rows, err := getExecutor(r.db, exec).QueryContext(ctx,
		`SELECT `+statsColumns+` FROM contestant_stats WHERE category_id = $1 ORDER BY contestant_id ASC`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats for category %d: %w", categoryID, err)
	}
	defer rows.Close()

	stats := make([]*models.ContestantStats, 0)
	for rows.Next() {
		s, scanErr := scanStats(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		stats = append(stats, s)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return stats, nil
}
