package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/nhle/smstask/internal/model"
)

// YAMLBackend keeps tasks in a YAML document keyed by table name:
//
//	tasks:
//	  - id: 1
//	    owner: "5550100"
//	    description: Pet the goose
//	    status: pending
//
// The whole document is rewritten on every Save; other tables are kept.
type YAMLBackend struct {
	path string
	mu   sync.Mutex
}

// NewYAMLBackend returns a backend for the document at path. The file and
// its parent directories are created on first Save.
func NewYAMLBackend(path string) *YAMLBackend {
	return &YAMLBackend{path: path}
}

// Load returns the tasks stored under table, or none when the file or
// table does not exist yet.
func (b *YAMLBackend) Load(_ context.Context, table string) ([]model.Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc, err := b.read()
	if err != nil {
		return nil, err
	}
	return doc[table], nil
}

// Save replaces table with tasks and rewrites the document atomically.
func (b *YAMLBackend) Save(_ context.Context, table string, tasks []model.Task) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc, err := b.read()
	if err != nil {
		return err
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	doc[table] = tasks

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", b.path, err)
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating data directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), b.path); err != nil {
		return fmt.Errorf("replacing %s: %w", b.path, err)
	}
	return nil
}

// Close is a no-op; the file is only held open during Load and Save.
func (b *YAMLBackend) Close() error {
	return nil
}

func (b *YAMLBackend) read() (map[string][]model.Task, error) {
	doc := map[string][]model.Task{}

	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", b.path, err)
	}

	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", ErrCorrupt, b.path, err)
	}
	if doc == nil {
		doc = map[string][]model.Task{}
	}
	return doc, nil
}
