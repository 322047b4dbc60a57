// Package reminder periodically texts the owner a digest of their open tasks.
package reminder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nhle/smstask/internal/logging"
	"github.com/nhle/smstask/internal/model"
	"github.com/nhle/smstask/internal/reply"
)

// State is the scheduler's last known condition.
type State int

const (
	StateIdle State = iota
	StateSending
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Status reports the outcome of the most recent reminder.
type Status struct {
	State    State
	LastSent time.Time
	Sent     int
	Error    error
}

// DefaultInterval sends one reminder a day.
const DefaultInterval = 24 * time.Hour

// fetchTimeout bounds a single task list lookup.
const fetchTimeout = 30 * time.Second

// Tasks lists the owner's tasks. Implemented by client.Client.
type Tasks interface {
	ListByOwner(ctx context.Context, owner string) ([]model.Task, error)
}

// Sender delivers a reply body. Implemented by reply.Channel.
type Sender interface {
	Send(ctx context.Context, body string)
}

type Option func(*Scheduler)

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithClock replaces time.Now when stamping Status.LastSent.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// Scheduler sends reminders on a fixed interval until stopped.
type Scheduler struct {
	tasks    Tasks
	sender   Sender
	owner    string
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	triggerCh chan struct{}
	stopCh    chan struct{}
	done      chan struct{}

	mu      sync.Mutex
	running bool
	status  Status
}

// New creates a stopped scheduler. A non-positive interval falls back to
// DefaultInterval.
func New(tasks Tasks, sender Sender, owner string, interval time.Duration, opts ...Option) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &Scheduler{
		tasks:     tasks,
		sender:    sender,
		owner:     owner,
		interval:  interval,
		logger:    slog.Default(),
		now:       time.Now,
		triggerCh: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.Component(s.logger, "reminder")
	return s
}

// Start launches the ticker goroutine. The first reminder goes out after one
// full interval. Calling Start on a running scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})

	go s.loop(ctx, s.stopCh, s.done)
	s.logger.Info("reminders scheduled", slog.Duration("interval", s.interval))
}

// Stop halts the goroutine and waits for an in-flight reminder to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	done := s.done
	s.running = false
	s.mu.Unlock()

	<-done
}

// Run starts the scheduler and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Start(ctx)
	<-ctx.Done()
	s.Stop()
	return nil
}

// SendNow asks the running scheduler for an immediate reminder. Extra
// requests while one is pending are dropped.
func (s *Scheduler) SendNow() {
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Scheduler) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.remind(ctx)
		case <-s.triggerCh:
			s.remind(ctx)
		}
	}
}

// remind sends one digest. A failed lookup sends nothing; the owner gets the
// next one on schedule.
func (s *Scheduler) remind(ctx context.Context) {
	s.setState(StateSending, nil)

	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	tasks, err := s.tasks.ListByOwner(fetchCtx, s.owner)
	cancel()
	if err != nil {
		s.logger.Warn("reminder skipped", logging.Outcome(logging.OutcomeFailed), logging.Err(err))
		s.setState(StateError, err)
		return
	}

	s.sender.Send(ctx, reply.Reminder(tasks))
	s.logger.Info("reminder sent", logging.Outcome(logging.OutcomeOK), slog.Int("count", len(tasks)))

	s.mu.Lock()
	s.status = Status{State: StateIdle, LastSent: s.now(), Sent: s.status.Sent + 1}
	s.mu.Unlock()
}

func (s *Scheduler) setState(state State, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.State = state
	s.status.Error = err
}
