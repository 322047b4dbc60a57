package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/nhle/smstask/internal/logging"
	"github.com/nhle/smstask/internal/model"
)

// Backend persists the full list of tasks of a table. Every Save rewrites
// the table completely; there is no incremental log.
type Backend interface {
	Load(ctx context.Context, table string) ([]model.Task, error)
	Save(ctx context.Context, table string, tasks []model.Task) error
	Close() error
}

// Stats reports slot usage.
type Stats struct {
	Used int `json:"used"`
	Free int `json:"free"`
}

// Option configures a Store.
type Option func(*Store)

// WithPIN sets the 4-digit PIN required by Clear. Without it Clear always fails.
func WithPIN(pin string) Option {
	return func(s *Store) { s.pin = pin }
}

// WithLogger sets the logger used at operation boundaries.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithObserver registers fn to be called with the slot usage after every
// successful mutation and once at Open. It runs under the store lock.
func WithObserver(fn func(Stats)) Option {
	return func(s *Store) { s.observe = fn }
}

// Store is the bounded task collection with slot-ID recycling. One Store is
// created per process and shared by every caller; all methods are safe for
// concurrent use.
type Store struct {
	mu      sync.Mutex
	backend Backend
	table   string
	pin     string
	tasks   []model.Task // sorted by ID
	pool    *idPool
	logger  *slog.Logger
	observe func(Stats)
}

// Open loads table from backend and rebuilds the free-ID pool from the
// persisted tasks.
func Open(ctx context.Context, backend Backend, table string, opts ...Option) (*Store, error) {
	if table == "" {
		return nil, fmt.Errorf("opening store: table name is required")
	}

	s := &Store{
		backend: backend,
		table:   table,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.Component(s.logger, "store").With(slog.String("table", table))

	tasks, err := backend.Load(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("loading table %s: %w", table, err)
	}

	used := make([]int, 0, len(tasks))
	seen := make(map[int]bool, len(tasks))
	for _, t := range tasks {
		if t.ID < 1 || t.ID > model.MaxSlots {
			return nil, fmt.Errorf("%w: id %d out of range", ErrCorrupt, t.ID)
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("%w: duplicate id %d", ErrCorrupt, t.ID)
		}
		seen[t.ID] = true
		used = append(used, t.ID)
	}

	sortByID(tasks)
	s.tasks = tasks
	s.pool = newIDPool(model.MaxSlots, used)
	s.notify()

	s.logger.Info("store opened", slog.Int("tasks", len(tasks)), slog.Int("free", s.pool.len()))
	return s, nil
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Create validates description, allocates the smallest free ID and persists
// a pending task.
func (s *Store) Create(ctx context.Context, owner, description string) (model.Summary, error) {
	if owner == "" {
		return model.Summary{}, fmt.Errorf("%w: owner is required", ErrValidation)
	}
	if err := validateDescription(description); err != nil {
		return model.Summary{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.pool.take()
	if !ok {
		s.logger.Warn("create rejected", slog.String("reason", "capacity"))
		return model.Summary{}, fmt.Errorf("%w (max = %d)", ErrCapacityExceeded, model.MaxSlots)
	}

	task := model.Task{
		ID:          id,
		Owner:       owner,
		Description: description,
		Status:      model.StatusPending,
	}

	next := make([]model.Task, 0, len(s.tasks)+1)
	next = append(next, s.tasks...)
	next = append(next, task)
	sortByID(next)

	if err := s.backend.Save(ctx, s.table, next); err != nil {
		s.pool.release(id)
		return model.Summary{}, fmt.Errorf("saving task %d: %w", id, err)
	}
	s.tasks = next
	s.notify()

	s.logger.Info("task created", logging.TaskID(id), logging.Owner(owner))
	return task.Summary(), nil
}

// List returns every task in ascending ID order.
func (s *Store) List(_ context.Context) ([]model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Task, len(s.tasks))
	copy(out, s.tasks)
	return out, nil
}

// Find returns the tasks matching every condition of f, in ID order.
func (s *Store) Find(_ context.Context, f Filter) ([]model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []model.Task{}
	for _, t := range s.tasks {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

// Update applies changes to every task matching f and returns how many
// were mutated. A zero count means nothing matched.
func (s *Store) Update(ctx context.Context, f Filter, changes Changes) (int, error) {
	if changes.IsEmpty() {
		return 0, fmt.Errorf("%w: no changes given", ErrValidation)
	}
	if err := changes.validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]model.Task, len(s.tasks))
	copy(next, s.tasks)

	count := 0
	for i := range next {
		if f.Match(next[i]) {
			changes.apply(&next[i])
			count++
		}
	}
	if count == 0 {
		return 0, nil
	}

	if err := s.backend.Save(ctx, s.table, next); err != nil {
		return 0, fmt.Errorf("saving updates: %w", err)
	}
	s.tasks = next

	s.logger.Info("tasks updated", slog.Int("count", count))
	return count, nil
}

// Delete removes the first task (lowest ID) matching f and returns its
// summary. ok is false when nothing matched; the pool is then unchanged.
func (s *Store) Delete(ctx context.Context, f Filter) (deleted model.Summary, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, t := range s.tasks {
		if f.Match(t) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return model.Summary{}, false, nil
	}

	victim := s.tasks[idx]
	next := make([]model.Task, 0, len(s.tasks)-1)
	next = append(next, s.tasks[:idx]...)
	next = append(next, s.tasks[idx+1:]...)

	// The slot returns to the pool before the record leaves the backing store.
	s.pool.release(victim.ID)
	if err := s.backend.Save(ctx, s.table, next); err != nil {
		s.pool.reserve(victim.ID)
		return model.Summary{}, false, fmt.Errorf("deleting task %d: %w", victim.ID, err)
	}
	s.tasks = next
	s.notify()

	s.logger.Info("task deleted", logging.TaskID(victim.ID))
	return victim.Summary(), true, nil
}

// Clear removes every task after checking pin against the configured PIN.
func (s *Store) Clear(ctx context.Context, pin string) error {
	if s.pin == "" || !pinPattern(pin) || pin != s.pin {
		s.logger.Warn("clear aborted", slog.String("reason", "pin"))
		return ErrPINRejected
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Save(ctx, s.table, []model.Task{}); err != nil {
		return fmt.Errorf("clearing table %s: %w", s.table, err)
	}
	s.tasks = nil
	s.pool = newIDPool(model.MaxSlots, nil)
	s.notify()

	s.logger.Info("table cleared")
	return nil
}

// Stats returns the current slot usage.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats()
}

// FreeIDs returns the free slot IDs in ascending order.
func (s *Store) FreeIDs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool.snapshot()
}

func (s *Store) stats() Stats {
	return Stats{Used: len(s.tasks), Free: s.pool.len()}
}

func (s *Store) notify() {
	if s.observe != nil {
		s.observe(s.stats())
	}
}

func pinPattern(pin string) bool {
	if len(pin) != 4 {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func sortByID(tasks []model.Task) {
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
}
