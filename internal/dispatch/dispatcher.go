// Package dispatch turns inbound SMS text into task operations and reply
// bodies, and runs the listen/dispatch/reply loop.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/nhle/smstask/internal/logging"
	"github.com/nhle/smstask/internal/metrics"
	"github.com/nhle/smstask/internal/model"
	"github.com/nhle/smstask/internal/reply"
	"github.com/nhle/smstask/internal/store"
)

// Tasks is the task API as seen by the dispatcher. Implemented by
// client.Client.
type Tasks interface {
	Create(ctx context.Context, owner, description string) (model.Summary, error)
	ListByOwner(ctx context.Context, owner string) ([]model.Task, error)
	Delete(ctx context.Context, id int) (model.Summary, bool, error)
}

// Listener yields inbound message bodies, blocking until one arrives.
type Listener interface {
	Listen(ctx context.Context) (string, error)
}

// Sender delivers a reply body. It never fails from the caller's view.
type Sender interface {
	Send(ctx context.Context, body string)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// Dispatcher executes commands on behalf of a single owner.
type Dispatcher struct {
	tasks   Tasks
	owner   string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New returns a dispatcher creating and listing tasks as owner.
func New(tasks Tasks, owner string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		tasks:  tasks,
		owner:  owner,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = logging.Component(d.logger, "dispatch")
	return d
}

// Dispatch runs cmd and returns the reply body. It never returns an error:
// every failure is rendered as readable text.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) string {
	switch cmd.Verb {
	case VerbNew:
		created, err := d.tasks.Create(ctx, d.owner, cmd.Argument)
		d.record(cmd.Verb, err, logging.TaskID(created.ID))
		return reply.Created(created, err)

	case VerbAll:
		tasks, err := d.tasks.ListByOwner(ctx, d.owner)
		d.record(cmd.Verb, err, slog.Int("count", len(tasks)))
		if err != nil {
			return reply.Failure()
		}
		return reply.All(tasks)

	case VerbDel:
		id, err := strconv.Atoi(cmd.Argument)
		if err != nil || !cmd.HasArgument {
			d.record(cmd.Verb, errMalformed)
			return reply.Malformed()
		}
		deleted, found, err := d.tasks.Delete(ctx, id)
		d.record(cmd.Verb, err, logging.TaskID(id), slog.Bool("found", found))
		if err != nil {
			return reply.Failure()
		}
		return reply.Deleted(deleted, found)

	case VerbHelp:
		d.record(cmd.Verb, nil)
		return reply.Help()

	default:
		d.record("unknown", errMalformed, logging.Verb(cmd.Verb))
		return reply.Malformed()
	}
}

var errMalformed = errors.New("malformed command")

// Handle parses and dispatches one message. A panic inside a handler is
// recovered and answered with a failure reply.
func (d *Dispatcher) Handle(ctx context.Context, message string) (body string) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("command panicked", slog.String("panic", fmt.Sprint(r)))
			d.metrics.CommandHandled("panic", logging.OutcomeFailed)
			body = reply.Failure()
		}
	}()

	cmd, err := Parse(message)
	if err != nil {
		d.record("empty", err)
		return reply.Malformed()
	}
	return d.Dispatch(ctx, cmd)
}

// Run loops listen, handle, send until ctx is cancelled or the listener
// fails fatally. Messages are handled strictly one at a time, in order.
func (d *Dispatcher) Run(ctx context.Context, listener Listener, sender Sender) error {
	d.logger.Info("dispatcher started", logging.Owner(d.owner))
	for {
		message, err := listener.Listen(ctx)
		if err != nil {
			if ctx.Err() != nil {
				d.logger.Info("dispatcher stopped")
				return nil
			}
			d.logger.Error("listener failed", logging.Err(err))
			return fmt.Errorf("listening for commands: %w", err)
		}

		sender.Send(ctx, d.Handle(ctx, message))
	}
}

// record logs and counts the outcome of one command.
func (d *Dispatcher) record(verb string, err error, attrs ...any) {
	outcome := outcomeOf(err)
	d.metrics.CommandHandled(verb, outcome)

	args := append([]any{logging.Verb(verb), logging.Outcome(outcome), logging.Err(err)}, attrs...)
	if outcome == logging.OutcomeFailed {
		d.logger.Warn("command failed", args...)
		return
	}
	d.logger.Info("command handled", args...)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return logging.OutcomeOK
	case errors.Is(err, store.ErrValidation),
		errors.Is(err, store.ErrCapacityExceeded),
		errors.Is(err, ErrEmptyMessage),
		errors.Is(err, errMalformed):
		return logging.OutcomeRejected
	default:
		return logging.OutcomeFailed
	}
}
