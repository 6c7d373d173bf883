package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Dosada05/battle-tournament/models"
)

var (
	ErrTournamentNotFound   = errors.New("tournament not found")
	ErrPhaseConflict        = errors.New("tournament phase changed concurrently")
	ErrCategoryNotFound     = errors.New("category not found")
	ErrCategoryNameConflict = errors.New("category name already exists in this tournament")
	ErrCategoryInvalid      = errors.New("category configuration rejected by storage")
	ErrContestantNotFound   = errors.New("contestant not found")
	ErrContestantInvalid    = errors.New("contestant category conflict or invalid")
	ErrStatsNotFound        = errors.New("contestant statistics not found")
	ErrPoolNotFound         = errors.New("pool not found")
	ErrContestNotFound      = errors.New("contest not found")
	ErrContestNotPending    = errors.New("contest is not pending")
	ErrContestNotActive     = errors.New("contest is not active")
	ErrActiveContestExists  = errors.New("another contest is already active in this tournament")
	ErrPositionConflict     = errors.New("sequence position already taken")
)

type TournamentRepository interface {
	Create(ctx context.Context, exec SQLExecutor, tournament *models.Tournament) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error)
	// LockByID reads the tournament and holds its row until the transaction ends.
	LockByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error)
	// UpdatePhase moves the tournament from one phase to the next only if it is still in from.
	UpdatePhase(ctx context.Context, exec SQLExecutor, id int, from, to models.TournamentPhase) error
}

type CategoryRepository interface {
	Create(ctx context.Context, exec SQLExecutor, category *models.Category) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Category, error)
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Category, error)
	SetChampion(ctx context.Context, exec SQLExecutor, categoryID, contestantID int) error
}

type ContestantRepository interface {
	Create(ctx context.Context, exec SQLExecutor, contestant *models.Contestant) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Contestant, error)
	ListByCategory(ctx context.Context, exec SQLExecutor, categoryID int) ([]*models.Contestant, error)
}

type StatsRepository interface {
	GetOrCreate(ctx context.Context, exec SQLExecutor, categoryID, contestantID int) (*models.ContestantStats, error)
	Update(ctx context.Context, exec SQLExecutor, stats *models.ContestantStats) error
	ListByCategory(ctx context.Context, exec SQLExecutor, categoryID int) ([]*models.ContestantStats, error)
}

type PoolRepository interface {
	Create(ctx context.Context, exec SQLExecutor, pool *models.Pool) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Pool, error)
	ListByCategory(ctx context.Context, exec SQLExecutor, categoryID int) ([]*models.Pool, error)
	SetWinner(ctx context.Context, exec SQLExecutor, poolID, contestantID int) error
}

type ContestFilter struct {
	CategoryID *int
	PoolID     *int
	Phase      *models.ContestPhase
	Status     *models.ContestStatus
}

type ContestRepository interface {
	Create(ctx context.Context, exec SQLExecutor, contest *models.Contest) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Contest, error)
	// ListByTournament returns contests ordered by sequence position.
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, filter ContestFilter) ([]*models.Contest, error)
	MaxPosition(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error)
	// Activate flips PENDING to ACTIVE as one conditional write guarded by
	// "no other contest of the tournament is ACTIVE".
	Activate(ctx context.Context, exec SQLExecutor, id int) error
	// UpdateOutcome stores the payload of an ACTIVE contest.
	UpdateOutcome(ctx context.Context, exec SQLExecutor, contest *models.Contest) error
	// Complete stores the final payload and flips ACTIVE to COMPLETED.
	Complete(ctx context.Context, exec SQLExecutor, contest *models.Contest) error
	// UpdatePositions rewrites sequence positions, keyed by contest ID.
	UpdatePositions(ctx context.Context, exec SQLExecutor, positions map[int]int) error
}

// TxManager runs fn inside one storage transaction.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(exec SQLExecutor) error) error
}

type Repositories struct {
	Tournaments TournamentRepository
	Categories  CategoryRepository
	Contestants ContestantRepository
	Stats       StatsRepository
	Pools       PoolRepository
	Contests    ContestRepository
	Tx          TxManager
}

func NewPostgresRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		Tournaments: NewPostgresTournamentRepository(db),
		Categories:  NewPostgresCategoryRepository(db),
		Contestants: NewPostgresContestantRepository(db),
		Stats:       NewPostgresStatsRepository(db),
		Pools:       NewPostgresPoolRepository(db),
		Contests:    NewPostgresContestRepository(db),
		Tx:          NewSQLTxManager(db),
	}
}
