// Package mysqlstore implements storage.Store over a networked
// MariaDB/MySQL backend using github.com/go-sql-driver/mysql, with
// schema migrations applied through golang-migrate/migrate/v4 exactly as
// the teacher's pkg/database/client.go does for Postgres — only the
// dialect driver changes.
package mysqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	mysqlmigrate "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/kestrel-dev/screenlens/pkg/storage"
	"github.com/kestrel-dev/screenlens/pkg/storage/migrations"
)

// Config holds the networked-backend connection parameters, mirroring
// the shape of the teacher's database.Config (host/port/user/password
// plus pool tuning) but against MariaDB/MySQL rather than Postgres.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string

	MaxOpenConns    int // spec §4.1: pool max, default 20
	MaxIdleConns    int // spec §4.1: pool min, default 2
	ConnMaxLifetime time.Duration
	AcquireTimeout  time.Duration // spec §4.1: 30s acquire timeout
}

// DefaultConfig returns the pool tuning spec §4.1/§5 names.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    20,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
		AcquireTimeout:  30 * time.Second,
	}
}

// Store is the networked-backend implementation of storage.Store.
type Store struct {
	db  *sql.DB
	cfg Config
}

var _ storage.Store = (*Store)(nil)

// Open connects to MariaDB/MySQL, auto-creating the database if absent,
// then applies the embedded migration tree.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = DefaultConfig().MaxOpenConns
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = DefaultConfig().MaxIdleConns
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = DefaultConfig().ConnMaxLifetime
	}
	if cfg.AcquireTimeout == 0 {
		cfg.AcquireTimeout = DefaultConfig().AcquireTimeout
	}

	if err := ensureDatabaseExists(ctx, cfg); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysqlstore: open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.AcquireTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysqlstore: ping: %w", err)
	}

	s := &Store{db: db, cfg: cfg}
	if err := s.InitializeTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// ensureDatabaseExists probes information_schema.schemata and issues
// CREATE DATABASE IF NOT EXISTS per spec §4.1's "auto-creates the
// database schema if absent" requirement.
func ensureDatabaseExists(ctx context.Context, cfg Config) error {
	serverDSN := fmt.Sprintf("%s:%s@tcp(%s:%d)/?parseTime=true", cfg.User, cfg.Password, cfg.Host, cfg.Port)
	admin, err := sql.Open("mysql", serverDSN)
	if err != nil {
		return fmt.Errorf("mysqlstore: open admin connection: %w", err)
	}
	defer admin.Close()

	var exists int
	err = admin.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM information_schema.schemata WHERE schema_name = ?`, cfg.Database).Scan(&exists)
	if err != nil {
		return fmt.Errorf("mysqlstore: probe schemata: %w", err)
	}
	if exists > 0 {
		return nil
	}

	if _, err := admin.ExecContext(ctx,
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s` CHARACTER SET utf8mb4", cfg.Database)); err != nil {
		return fmt.Errorf("mysqlstore: create database %s: %w", cfg.Database, err)
	}
	return nil
}

// InitializeTables applies the embedded mysql migration tree through
// golang-migrate.
func (s *Store) InitializeTables(ctx context.Context) error {
	sourceDriver, err := iofs.New(migrations.MySQL, "mysql")
	if err != nil {
		return fmt.Errorf("mysqlstore: create migration source: %w", err)
	}

	dbDriver, err := mysqlmigrate.WithInstance(s.db, &mysqlmigrate.Config{})
	if err != nil {
		return fmt.Errorf("mysqlstore: create mysql migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, s.cfg.Database, dbDriver)
	if err != nil {
		return fmt.Errorf("mysqlstore: create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("mysqlstore: apply migrations: %w", err)
	}
	if err := sourceDriver.Close(); err != nil {
		return fmt.Errorf("mysqlstore: close migration source: %w", err)
	}
	return nil
}

// DBType identifies this backend per storage.Store.
func (s *Store) DBType() string { return "mariadb" }

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// MigrateTimezoneToLocal is a documented no-op: see sqlitestore's
// counterpart and DESIGN.md for the UTC-storage policy decision, which
// applies uniformly across both backends.
func (s *Store) MigrateTimezoneToLocal(ctx context.Context) error {
	return nil
}
