// Package persistence implements the Persistence collaborator referenced
// by spec §6/§4.4/§4.5/§4.7: upsert/read of organization rows, append-only
// execution records forming the root/parent/child tree, and encrypted
// provider connections. It backs orchestrator.ExecutionStore,
// spawner.ExecutionRecorder and tools.ConnectionStore with the same
// sqlx+lib/pq (production) / sqlite3 (local/dev and tests) driver pair the
// teacher uses for internal/db, behind the same circuitbreaker.DatabaseWrapper.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/agentforge/orchestrator-core/internal/circuitbreaker"
)

// Config holds Postgres connection settings (mirrors the teacher's db.Config).
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConnections  int
	IdleConnections int
	MaxLifetime     time.Duration
}

// Store wraps a sqlx.DB in a circuit breaker and exposes the execution /
// connection / organization persistence operations.
type Store struct {
	sqlxDB *sqlx.DB
	db     *circuitbreaker.DatabaseWrapper
	logger *zap.Logger
	driver string
}

// NewPostgres opens a circuit-breaker-protected Postgres connection, the
// production path.
func NewPostgres(cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.SSLMode == "" {
		cfg.SSLMode = "require"
	}
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)
	sqlxDB, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("persistence: open postgres: %w", err)
	}
	return newStore(sqlxDB, "postgres", cfg, logger)
}

// NewSQLite opens a sqlite3-backed Store for local development and tests
// (§"sqlite used for local/dev + tests"); path may be ":memory:".
func NewSQLite(path string, logger *zap.Logger) (*Store, error) {
	sqlxDB, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("persistence: open sqlite: %w", err)
	}
	sqlxDB.SetMaxOpenConns(1) // sqlite3 driver does not support concurrent writers
	return newStore(sqlxDB, "sqlite3", Config{}, logger)
}

func newStore(sqlxDB *sqlx.DB, driver string, cfg Config, logger *zap.Logger) (*Store, error) {
	if driver == "postgres" {
		if cfg.MaxConnections == 0 {
			cfg.MaxConnections = 25
		}
		if cfg.IdleConnections == 0 {
			cfg.IdleConnections = 5
		}
		if cfg.MaxLifetime == 0 {
			cfg.MaxLifetime = 5 * time.Minute
		}
		sqlxDB.SetMaxOpenConns(cfg.MaxConnections)
		sqlxDB.SetMaxIdleConns(cfg.IdleConnections)
		sqlxDB.SetConnMaxLifetime(cfg.MaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlxDB.PingContext(ctx); err != nil {
		sqlxDB.Close()
		return nil, fmt.Errorf("persistence: ping %s: %w", driver, err)
	}

	return &Store{
		sqlxDB: sqlxDB,
		db:     circuitbreaker.NewDatabaseWrapper(sqlxDB.DB, logger),
		logger: logger,
		driver: driver,
	}, nil
}

// SqlxDB returns the underlying sqlx handle so collaborators that manage
// their own schema against the same connection pool (budget.Manager's
// organizations table) can share it rather than opening a second pool.
func (s *Store) SqlxDB() *sqlx.DB {
	return s.sqlxDB
}

// Migrate applies the schema idempotently (CREATE TABLE IF NOT EXISTS); the
// teacher ships its schema via an external migration tool, but this module
// carries no migration runner dependency, so Migrate is the in-process
// equivalent for the sqlite dev/test path and first-run Postgres setup.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := schemaFor(s.driver)
	for _, stmt := range stmts {
		if _, err := s.sqlxDB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("persistence: migrate: %w", err)
		}
	}
	return nil
}

// Close shuts down the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// rebind adapts a query written with ? placeholders to the active driver's
// bindvar style (sqlx.Rebind), so the same SQL literal serves both sqlite3
// (tests/dev) and postgres (production) without duplicating queries.
func (s *Store) rebind(query string) string {
	return s.sqlxDB.Rebind(query)
}

func isNoRows(err error) bool {
	return err == sql.ErrNoRows
}
