// Package logging builds the process logger and holds the attribute helpers
// shared by every component, so log keys stay consistent across packages.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Common attribute keys.
const (
	KeyComponent = "component"
	KeyVerb      = "verb"
	KeyTaskID    = "task_id"
	KeyOwner     = "owner"
	KeyUID       = "uid"
	KeyOutcome   = "outcome"
	KeyError     = "error"
)

// Outcome values for command and reply logging.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// ParseLevel maps a config level name to a slog level. Unknown names fall
// back to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns a logger writing to w. Format "json" selects the JSON handler;
// anything else gets the colored console handler.
func New(level, format string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
	}
	return slog.New(&consoleHandler{out: w, mu: &sync.Mutex{}, level: lvl})
}

// Component returns a logger tagged with the component name.
func Component(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String(KeyComponent, name))
}

// Verb returns the attribute for a command verb.
func Verb(v string) slog.Attr {
	return slog.String(KeyVerb, v)
}

// TaskID returns the attribute for a task slot ID.
func TaskID(id int) slog.Attr {
	return slog.Int(KeyTaskID, id)
}

// Owner returns the owner attribute with all but the last four characters
// masked, so phone numbers do not land in logs verbatim.
func Owner(owner string) slog.Attr {
	return slog.String(KeyOwner, MaskOwner(owner))
}

// MaskOwner hides everything but the last four characters of owner.
func MaskOwner(owner string) string {
	r := []rune(owner)
	if len(r) <= 4 {
		return owner
	}
	return strings.Repeat("*", len(r)-4) + string(r[len(r)-4:])
}

// UID returns the attribute for an IMAP message UID.
func UID(uid uint32) slog.Attr {
	return slog.Any(KeyUID, uid)
}

// Outcome returns the attribute for a command or delivery outcome.
func Outcome(o string) slog.Attr {
	return slog.String(KeyOutcome, o)
}

// Err returns the error attribute. A nil error yields an empty group, which
// slog drops from the output.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// consoleHandler prints one colored line per record:
//
//	15:04:05 INF task created component=store task_id=1
type consoleHandler struct {
	out    io.Writer
	mu     *sync.Mutex
	level  slog.Level
	attrs  []slog.Attr // keys already carry their group prefix
	prefix string
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder

	b.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))
	switch {
	case r.Level >= slog.LevelError:
		b.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	case r.Level >= slog.LevelWarn:
		b.WriteString(color.YellowString("WRN "))
	case r.Level >= slog.LevelInfo:
		b.WriteString(color.CyanString("INF "))
	default:
		b.WriteString(color.MagentaString("DBG "))
	}
	b.WriteString(r.Message)

	for _, a := range h.attrs {
		writeAttr(&b, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.prefix, a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, b.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		a.Key = h.prefix + a.Key
		next.attrs = append(next.attrs, a)
	}
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range group {
			writeAttr(b, prefix, ga)
		}
		return
	}
	b.WriteString(color.HiBlackString(" " + prefix + a.Key + "="))
	b.WriteString(a.Value.String())
}
