// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/mcpgate/internal/model"
	"github.com/alfredjeanlab/mcpgate/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewWithDB wraps an already-open database without running migrations.
func NewWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) GetProfile(ctx context.Context, companyID string) (*model.CompanyProfile, error) {
	return queryGetProfile(ctx, s.db, companyID)
}

func (s *PostgresStore) UpsertProfile(ctx context.Context, companyID string, data json.RawMessage) (*model.CompanyProfile, error) {
	return queryUpsertProfile(ctx, s.db, companyID, data)
}

func (s *PostgresStore) DeleteProfile(ctx context.Context, companyID string) (bool, error) {
	return queryDeleteProfile(ctx, s.db, companyID)
}

func (s *PostgresStore) ListProfiles(ctx context.Context, limit, offset int) ([]*model.CompanyProfile, int, error) {
	return queryListProfiles(ctx, s.db, limit, offset)
}

// ListProfilesAfter returns up to limit profiles whose company ID sorts after
// afterID, in company ID order. Paging by key keeps a full scan stable while
// profiles are updated concurrently.
func (s *PostgresStore) ListProfilesAfter(ctx context.Context, afterID string, limit int) ([]*model.CompanyProfile, error) {
	return queryListProfilesAfter(ctx, s.db, afterID, limit)
}
