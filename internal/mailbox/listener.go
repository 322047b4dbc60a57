// Package mailbox polls an IMAP folder for unread texts from one sender and
// hands back their plain-text bodies.
package mailbox

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nhle/smstask/internal/logging"
	"github.com/nhle/smstask/internal/metrics"
)

// State is the listener's position in its connect/poll cycle.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateIdle
	StateSearching
	StateFound
	StateFetching
	StateExtracting
	StateEmpty
)

var stateNames = map[State]string{
	StateDisconnected: "DISCONNECTED",
	StateConnected:    "CONNECTED",
	StateIdle:         "IDLE",
	StateSearching:    "SEARCHING",
	StateFound:        "FOUND",
	StateFetching:     "FETCHING",
	StateExtracting:   "EXTRACTING",
	StateEmpty:        "EMPTY",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// DefaultPollInterval is the wait between empty poll cycles.
const DefaultPollInterval = time.Second

// Config describes what the listener waits for.
type Config struct {
	// Sender is the address qualifying messages must come from.
	Sender string

	PollInterval  time.Duration
	CutoffPhrases []string
}

// Option configures a Listener.
type Option func(*Listener)

// WithLogger sets the listener's logger.
func WithLogger(l *slog.Logger) Option {
	return func(ln *Listener) { ln.logger = l }
}

// WithMetrics records poll cycles on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(ln *Listener) { ln.metrics = m }
}

// Listener owns one mailbox session and yields qualifying bodies one at a
// time. Listen must not be called concurrently; State may be.
type Listener struct {
	dialer   Dialer
	sender   string
	interval time.Duration
	cutoffs  []string
	logger   *slog.Logger
	metrics  *metrics.Metrics

	session Session

	mu    sync.Mutex
	state State
}

// NewListener returns a disconnected listener. The first Listen call dials.
func NewListener(dialer Dialer, cfg Config, opts ...Option) *Listener {
	l := &Listener{
		dialer:   dialer,
		sender:   cfg.Sender,
		interval: cfg.PollInterval,
		cutoffs:  cfg.CutoffPhrases,
		logger:   slog.Default(),
	}
	if l.interval <= 0 {
		l.interval = DefaultPollInterval
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = logging.Component(l.logger, "mailbox")
	return l
}

// State returns the current state.
func (l *Listener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Listener) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// Listen blocks until one unread message from the sender is found, marks it
// seen and returns its cleaned body. Empty cycles sleep the poll interval.
// Transport failures drop the session and are retried on the next cycle; an
// *AuthError is returned immediately. Cancelling ctx returns ctx.Err().
func (l *Listener) Listen(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		if l.session == nil {
			if err := l.connect(ctx); err != nil {
				if IsAuthError(err) {
					return "", err
				}
				l.logger.Warn("connect failed", logging.Err(err))
				if err := l.sleep(ctx); err != nil {
					return "", err
				}
				continue
			}
		}

		body, found, err := l.poll(ctx)
		switch {
		case err != nil:
			l.metrics.Poll("error")
			l.logger.Warn("poll failed, reconnecting", logging.Err(err))
			l.disconnect()
		case found:
			l.metrics.Poll("found")
			return body, nil
		default:
			l.metrics.Poll("empty")
		}

		if err := l.sleep(ctx); err != nil {
			return "", err
		}
	}
}

// Close logs out of the current session, if any.
func (l *Listener) Close() error {
	if l.session == nil {
		return nil
	}
	err := l.session.Close()
	l.session = nil
	l.setState(StateDisconnected)
	return err
}

func (l *Listener) connect(ctx context.Context) error {
	session, err := l.dialer.Dial(ctx)
	if err != nil {
		return err
	}
	l.session = session
	l.setState(StateConnected)
	l.logger.Info("mailbox connected", slog.String("sender", l.sender))
	return nil
}

func (l *Listener) disconnect() {
	if err := l.Close(); err != nil {
		l.logger.Debug("closing session", logging.Err(err))
	}
}

// poll runs one SEARCHING cycle. found is false when nothing qualified.
func (l *Listener) poll(ctx context.Context) (body string, found bool, err error) {
	l.setState(StateSearching)
	uids, err := l.session.SearchUnseen(ctx, l.sender)
	if err != nil {
		return "", false, err
	}
	if len(uids) == 0 {
		l.setState(StateEmpty)
		l.setState(StateIdle)
		return "", false, nil
	}

	l.setState(StateFound)
	for _, uid := range uids {
		l.setState(StateFetching)
		raw, err := l.session.FetchRaw(ctx, uid)
		if err != nil {
			l.logger.Warn("fetch failed, skipping", logging.UID(uid), logging.Err(err))
			continue
		}

		l.setState(StateExtracting)
		text, err := ExtractBody(raw)
		if err != nil {
			// Unreadable messages are consumed so they stop qualifying.
			l.logger.Warn("no readable body, discarding", logging.UID(uid), logging.Err(err))
			if err := l.session.MarkSeen(ctx, uid); err != nil {
				return "", false, err
			}
			continue
		}

		if err := l.session.MarkSeen(ctx, uid); err != nil {
			return "", false, err
		}

		l.setState(StateIdle)
		l.logger.Debug("message received", logging.UID(uid))
		return TrimFooter(text, l.cutoffs), true, nil
	}

	l.setState(StateIdle)
	return "", false, nil
}

func (l *Listener) sleep(ctx context.Context) error {
	t := time.NewTimer(l.interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
