package repositories

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/Dosada05/battle-tournament/models"
)

// MemoryStore keeps every record in process memory. It honours the same
// conditional-update contracts as the Postgres repositories and rolls back a
// failed WithinTx by restoring a snapshot. It backs tests and `serve --memory`.
type MemoryStore struct {
	mu    sync.Mutex
	txMu  sync.Mutex
	state *memoryState
}

type memoryState struct {
	nextID      int
	tournaments map[int]models.Tournament
	categories  map[int]models.Category
	contestants map[int]models.Contestant
	stats       map[int]models.ContestantStats
	pools       map[int]models.Pool
	contests    map[int]*models.Contest
}

func newMemoryState() *memoryState {
	return &memoryState{
		tournaments: make(map[int]models.Tournament),
		categories:  make(map[int]models.Category),
		contestants: make(map[int]models.Contestant),
		stats:       make(map[int]models.ContestantStats),
		pools:       make(map[int]models.Pool),
		contests:    make(map[int]*models.Contest),
	}
}

func (s *memoryState) clone() *memoryState {
	cp := newMemoryState()
	cp.nextID = s.nextID
	for id, t := range s.tournaments {
		cp.tournaments[id] = t
	}
	for id, c := range s.categories {
		cp.categories[id] = cloneCategory(c)
	}
	for id, c := range s.contestants {
		cp.contestants[id] = c
	}
	for id, st := range s.stats {
		cp.stats[id] = cloneStats(st)
	}
	for id, p := range s.pools {
		cp.pools[id] = clonePool(p)
	}
	for id, c := range s.contests {
		cp.contests[id] = c.Clone()
	}
	return cp
}

func cloneCategory(c models.Category) models.Category {
	if c.ChampionID != nil {
		id := *c.ChampionID
		c.ChampionID = &id
	}
	c.Contestants = nil
	return c
}

func cloneStats(s models.ContestantStats) models.ContestantStats {
	if s.PreselectionScore != nil {
		v := *s.PreselectionScore
		s.PreselectionScore = &v
	}
	return s
}

func clonePool(p models.Pool) models.Pool {
	p.MemberIDs = slices.Clone(p.MemberIDs)
	if p.WinnerID != nil {
		id := *p.WinnerID
		p.WinnerID = &id
	}
	return p
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemoryState()}
}

// NewMemoryRepositories wires every repository to one fresh MemoryStore.
func NewMemoryRepositories() *Repositories {
	return NewMemoryStore().Repositories()
}

func (m *MemoryStore) Repositories() *Repositories {
	return &Repositories{
		Tournaments: &memoryTournamentRepository{m},
		Categories:  &memoryCategoryRepository{m},
		Contestants: &memoryContestantRepository{m},
		Stats:       &memoryStatsRepository{m},
		Pools:       &memoryPoolRepository{m},
		Contests:    &memoryContestRepository{m},
		Tx:          m,
	}
}

func (m *MemoryStore) WithinTx(ctx context.Context, fn func(exec SQLExecutor) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := m.state.clone()
	m.mu.Unlock()

	if err := fn(nil); err != nil {
		m.mu.Lock()
		m.state = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *MemoryStore) newID() int {
	m.state.nextID++
	return m.state.nextID
}

type memoryTournamentRepository struct{ m *MemoryStore }

func (r *memoryTournamentRepository) Create(ctx context.Context, exec SQLExecutor, t *models.Tournament) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if t.Phase == "" {
		t.Phase = models.PhaseRegistration
	}
	t.ID = r.m.newID()
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	stored := *t
	stored.Categories = nil
	r.m.state.tournaments[t.ID] = stored
	return nil
}

func (r *memoryTournamentRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	t, ok := r.m.state.tournaments[id]
	if !ok {
		return nil, ErrTournamentNotFound
	}
	return &t, nil
}

// LockByID needs no row lock here: WithinTx already serializes transactions.
func (r *memoryTournamentRepository) LockByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error) {
	return r.GetByID(ctx, exec, id)
}

func (r *memoryTournamentRepository) UpdatePhase(ctx context.Context, exec SQLExecutor, id int, from, to models.TournamentPhase) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	t, ok := r.m.state.tournaments[id]
	if !ok {
		return ErrTournamentNotFound
	}
	if t.Phase != from {
		return ErrPhaseConflict
	}
	t.Phase = to
	t.UpdatedAt = time.Now()
	r.m.state.tournaments[id] = t
	return nil
}

type memoryCategoryRepository struct{ m *MemoryStore }

func (r *memoryCategoryRepository) Create(ctx context.Context, exec SQLExecutor, c *models.Category) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.state.tournaments[c.TournamentID]; !ok {
		return ErrTournamentNotFound
	}
	for _, existing := range r.m.state.categories {
		if existing.TournamentID == c.TournamentID && existing.Name == c.Name {
			return ErrCategoryNameConflict
		}
	}
	c.ID = r.m.newID()
	c.CreatedAt = time.Now()
	r.m.state.categories[c.ID] = cloneCategory(*c)
	return nil
}

func (r *memoryCategoryRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Category, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.state.categories[id]
	if !ok {
		return nil, ErrCategoryNotFound
	}
	c = cloneCategory(c)
	return &c, nil
}

func (r *memoryCategoryRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Category, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := make([]*models.Category, 0)
	for _, c := range r.m.state.categories {
		if c.TournamentID == tournamentID {
			c = cloneCategory(c)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryCategoryRepository) SetChampion(ctx context.Context, exec SQLExecutor, categoryID, contestantID int) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.state.categories[categoryID]
	if !ok {
		return ErrCategoryNotFound
	}
	c.ChampionID = &contestantID
	r.m.state.categories[categoryID] = c
	return nil
}

type memoryContestantRepository struct{ m *MemoryStore }

func (r *memoryContestantRepository) Create(ctx context.Context, exec SQLExecutor, c *models.Contestant) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.state.categories[c.CategoryID]; !ok {
		return ErrContestantInvalid
	}
	c.ID = r.m.newID()
	c.CreatedAt = time.Now()
	r.m.state.contestants[c.ID] = *c
	return nil
}

func (r *memoryContestantRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Contestant, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.state.contestants[id]
	if !ok {
		return nil, ErrContestantNotFound
	}
	return &c, nil
}

func (r *memoryContestantRepository) ListByCategory(ctx context.Context, exec SQLExecutor, categoryID int) ([]*models.Contestant, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := make([]*models.Contestant, 0)
	for _, c := range r.m.state.contestants {
		if c.CategoryID == categoryID {
			c := c
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memoryStatsRepository struct{ m *MemoryStore }

func (r *memoryStatsRepository) GetOrCreate(ctx context.Context, exec SQLExecutor, categoryID, contestantID int) (*models.ContestantStats, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.state.stats[contestantID]
	if !ok {
		s = models.ContestantStats{ContestantID: contestantID, CategoryID: categoryID, UpdatedAt: time.Now()}
		r.m.state.stats[contestantID] = s
	}
	s = cloneStats(s)
	return &s, nil
}

func (r *memoryStatsRepository) Update(ctx context.Context, exec SQLExecutor, s *models.ContestantStats) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.state.stats[s.ContestantID]; !ok {
		return ErrStatsNotFound
	}
	s.UpdatedAt = time.Now()
	r.m.state.stats[s.ContestantID] = cloneStats(*s)
	return nil
}

func (r *memoryStatsRepository) ListByCategory(ctx context.Context, exec SQLExecutor, categoryID int) ([]*models.ContestantStats, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := make([]*models.ContestantStats, 0)
	for _, s := range r.m.state.stats {
		if s.CategoryID == categoryID {
			s = cloneStats(s)
			out = append(out, &s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContestantID < out[j].ContestantID })
	return out, nil
}

type memoryPoolRepository struct{ m *MemoryStore }

func (r *memoryPoolRepository) Create(ctx context.Context, exec SQLExecutor, p *models.Pool) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p.ID = r.m.newID()
	p.CreatedAt = time.Now()
	r.m.state.pools[p.ID] = clonePool(*p)
	return nil
}

func (r *memoryPoolRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Pool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.state.pools[id]
	if !ok {
		return nil, ErrPoolNotFound
	}
	p = clonePool(p)
	return &p, nil
}

func (r *memoryPoolRepository) ListByCategory(ctx context.Context, exec SQLExecutor, categoryID int) ([]*models.Pool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := make([]*models.Pool, 0)
	for _, p := range r.m.state.pools {
		if p.CategoryID == categoryID {
			p = clonePool(p)
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (r *memoryPoolRepository) SetWinner(ctx context.Context, exec SQLExecutor, poolID, contestantID int) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.state.pools[poolID]
	if !ok {
		return ErrPoolNotFound
	}
	p.WinnerID = &contestantID
	r.m.state.pools[poolID] = p
	return nil
}

type memoryContestRepository struct{ m *MemoryStore }

func (r *memoryContestRepository) Create(ctx context.Context, exec SQLExecutor, c *models.Contest) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.state.tournaments[c.TournamentID]; !ok {
		return ErrContestTournamentInvalid
	}
	if c.Outcome == nil {
		out, err := models.NewOutcome(c.Phase)
		if err != nil {
			return err
		}
		c.Outcome = out
	}
	if c.Outcome.Phase() != c.Phase {
		return models.ErrOutcomePhaseMismatch
	}
	if c.Status == "" {
		c.Status = models.ContestStatusPending
	}
	for _, existing := range r.m.state.contests {
		if existing.TournamentID == c.TournamentID && existing.SequencePosition == c.SequencePosition {
			return ErrPositionConflict
		}
	}
	c.ID = r.m.newID()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	r.m.state.contests[c.ID] = c.Clone()
	return nil
}

func (r *memoryContestRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Contest, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.state.contests[id]
	if !ok {
		return nil, ErrContestNotFound
	}
	return c.Clone(), nil
}

func (r *memoryContestRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, filter ContestFilter) ([]*models.Contest, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := make([]*models.Contest, 0)
	for _, c := range r.m.state.contests {
		if c.TournamentID != tournamentID {
			continue
		}
		if filter.CategoryID != nil && c.CategoryID != *filter.CategoryID {
			continue
		}
		if filter.PoolID != nil && (c.PoolID == nil || *c.PoolID != *filter.PoolID) {
			continue
		}
		if filter.Phase != nil && c.Phase != *filter.Phase {
			continue
		}
		if filter.Status != nil && c.Status != *filter.Status {
			continue
		}
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SequencePosition != out[j].SequencePosition {
			return out[i].SequencePosition < out[j].SequencePosition
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *memoryContestRepository) MaxPosition(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	maxPos := 0
	for _, c := range r.m.state.contests {
		if c.TournamentID == tournamentID && c.SequencePosition > maxPos {
			maxPos = c.SequencePosition
		}
	}
	return maxPos, nil
}

func (r *memoryContestRepository) Activate(ctx context.Context, exec SQLExecutor, id int) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.state.contests[id]
	if !ok {
		return ErrContestNotFound
	}
	if c.Status != models.ContestStatusPending {
		return ErrContestNotPending
	}
	for _, other := range r.m.state.contests {
		if other.TournamentID == c.TournamentID && other.Status == models.ContestStatusActive {
			return ErrActiveContestExists
		}
	}
	c.Status = models.ContestStatusActive
	c.UpdatedAt = time.Now()
	return nil
}

func (r *memoryContestRepository) UpdateOutcome(ctx context.Context, exec SQLExecutor, c *models.Contest) error {
	return r.writeOutcome(c, models.ContestStatusActive)
}

func (r *memoryContestRepository) Complete(ctx context.Context, exec SQLExecutor, c *models.Contest) error {
	if err := r.writeOutcome(c, models.ContestStatusCompleted); err != nil {
		return err
	}
	c.Status = models.ContestStatusCompleted
	return nil
}

func (r *memoryContestRepository) writeOutcome(c *models.Contest, status models.ContestStatus) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	stored, ok := r.m.state.contests[c.ID]
	if !ok {
		return ErrContestNotFound
	}
	if stored.Status != models.ContestStatusActive {
		return ErrContestNotActive
	}
	if c.Outcome == nil || c.Outcome.Phase() != stored.Phase {
		return models.ErrOutcomePhaseMismatch
	}
	updated := c.Clone()
	updated.Status = status
	updated.SequencePosition = stored.SequencePosition
	updated.UpdatedAt = time.Now()
	r.m.state.contests[c.ID] = updated
	return nil
}

func (r *memoryContestRepository) UpdatePositions(ctx context.Context, exec SQLExecutor, positions map[int]int) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for id := range positions {
		if _, ok := r.m.state.contests[id]; !ok {
			return ErrContestNotFound
		}
	}
	for id, pos := range positions {
		c := r.m.state.contests[id]
		c.SequencePosition = pos
		c.UpdatedAt = time.Now()
	}
	return nil
}
