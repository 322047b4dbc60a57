package testutil

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/nhle/smstask/internal/store"
)

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewTestStore creates a Store backed by a YAML file in a temp directory.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T, opts ...store.Option) *store.Store {
	t.Helper()

	backend := store.NewYAMLBackend(filepath.Join(t.TempDir(), "tasks.yaml"))
	opts = append([]store.Option{store.WithLogger(DiscardLogger())}, opts...)

	s, err := store.Open(context.Background(), backend, "tasks", opts...)
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}
