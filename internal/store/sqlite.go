package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/smstask/internal/model"
)

// SQLiteBackend persists tasks in a local SQLite database, one row per task
// keyed by (table, id).
type SQLiteBackend struct {
	db *sqlx.DB
}

// NewSQLiteBackend opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// A single connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	b := &SQLiteBackend{db: db}
	if err := b.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return b, nil
}

// Close closes the underlying database connection.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (b *SQLiteBackend) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := b.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = b.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := b.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// Load returns every task of table ordered by ID.
func (b *SQLiteBackend) Load(ctx context.Context, table string) ([]model.Task, error) {
	var tasks []model.Task
	err := b.db.SelectContext(ctx, &tasks,
		"SELECT id, owner, description, status FROM tasks WHERE tbl = ? ORDER BY id",
		table,
	)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	return tasks, nil
}

// Save replaces every row of table with tasks in one transaction.
func (b *SQLiteBackend) Save(ctx context.Context, table string, tasks []model.Task) error {
	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM tasks WHERE tbl = ?", table); err != nil {
		return fmt.Errorf("clearing table %s: %w", table, err)
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO tasks (tbl, id, owner, description, status)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	for _, t := range tasks {
		if _, err := stmt.ExecContext(ctx, table, t.ID, t.Owner, t.Description, t.Status); err != nil {
			return fmt.Errorf("inserting task %d: %w", t.ID, err)
		}
	}

	return tx.Commit()
}

// OpenBackend returns the backend named by driver ("yaml" or "sqlite").
func OpenBackend(driver, path string) (Backend, error) {
	switch driver {
	case "", "yaml":
		return NewYAMLBackend(path), nil
	case "sqlite":
		return NewSQLiteBackend(path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
