// Package sqlitestore implements storage.Store over an embedded,
// file-per-database sqlite engine using modernc.org/sqlite — a pure-Go
// driver with no cgo dependency, a better fit than a cgo sqlite binding
// for a desktop host that must build on macOS/Windows/Linux alike (see
// DESIGN.md).
package sqlitestore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/kestrel-dev/screenlens/pkg/domain"
	"github.com/kestrel-dev/screenlens/pkg/storage"
	"github.com/kestrel-dev/screenlens/pkg/storage/migrations"
)

// Store is the embedded-backend implementation of storage.Store.
type Store struct {
	db   *sql.DB
	path string
}

var _ storage.Store = (*Store)(nil)

// Open creates or opens the sqlite file at path, sets the pragmas §4.1
// requires, and applies the embedded schema.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open %s: %w", path, err)
	}
	// A single-file sqlite database serializes writers internally;
	// keeping one connection avoids SQLITE_BUSY storms under WAL.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: set WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=10000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: set busy_timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: enable foreign_keys: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: ping: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.InitializeTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// InitializeTables applies the embedded migration tree. golang-migrate's
// only sqlite source driver requires the cgo mattn/go-sqlite3 binding,
// which conflicts with the pure-Go build this package chooses (see
// DESIGN.md); instead the single embedded script is applied directly and
// recorded by checksum in a schema_migrations table, the same
// apply-once idempotency golang-migrate itself provides.
func (s *Store) InitializeTables(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		checksum TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("sqlitestore: create schema_migrations: %w", err)
	}

	entries, err := fs.ReadDir(migrations.SQLite, "sqlite")
	if err != nil {
		return fmt.Errorf("sqlitestore: read embedded migrations: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || len(name) < 7 || name[len(name)-7:] != ".up.sql" {
			continue
		}
		script, err := fs.ReadFile(migrations.SQLite, "sqlite/"+name)
		if err != nil {
			return fmt.Errorf("sqlitestore: read %s: %w", name, err)
		}
		sum := sha256.Sum256(script)
		checksum := hex.EncodeToString(sum[:])

		var exists int
		row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM schema_migrations WHERE checksum = ?`, checksum)
		if err := row.Scan(&exists); err != nil {
			return fmt.Errorf("sqlitestore: check migration %s: %w", name, err)
		}
		if exists > 0 {
			continue
		}

		if _, err := s.db.ExecContext(ctx, string(script)); err != nil {
			return fmt.Errorf("sqlitestore: apply migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (checksum) VALUES (?)`, checksum); err != nil {
			return fmt.Errorf("sqlitestore: record migration %s: %w", name, err)
		}
		slog.Info("sqlitestore: applied migration", "file", name)
	}
	return nil
}

// DBType identifies this backend per storage.Store.
func (s *Store) DBType() string { return "sqlite" }

// Close releases the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// MigrateTimezoneToLocal is a documented no-op: this repository's chosen
// policy (see DESIGN.md) stores UTC uniformly and never ran the
// local-to-UTC migration in the opposite direction.
func (s *Store) MigrateTimezoneToLocal(ctx context.Context) error {
	slog.Info("sqlitestore: timezone policy is UTC; migration is a no-op")
	return nil
}

func marshalTags(tags []domain.Tag) (string, error) {
	if tags == nil {
		tags = []domain.Tag{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("sqlitestore: marshal tags: %w", err)
	}
	return string(b), nil
}

func unmarshalTags(raw string) ([]domain.Tag, error) {
	if raw == "" {
		return nil, nil
	}
	var tags []domain.Tag
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, fmt.Errorf("sqlitestore: unmarshal tags: %w", err)
	}
	return tags, nil
}

const timeLayout = time.RFC3339Nano
