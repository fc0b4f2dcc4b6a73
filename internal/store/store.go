// Package store is relaynest's persistence layer: relay configuration,
// events, event tags and per-(relay,pubkey) accounts, on sqlite or postgres
// behind a single sqlx.DB handle.
package store

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps the sqlx handle and remembers which driver it was opened
// with. Queries are written with ? placeholders and passed through sqlx's
// Rebind for the active driver.
type Store struct {
	db     *sqlx.DB
	driver string
}

var store *Store

// Init opens the configured database, runs embedded migrations and sets
// the package-level singleton other packages reach with Get.
func Init(driver, dsn string) (*Store, error) {
	var dataSourceName string
	switch driver {
	case "sqlite", "sqlite3":
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dataSourceName = dsn + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000"
		driver = "sqlite3"
	case "postgres", "postgresql":
		dataSourceName = dsn
		driver = "postgres"
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}

	db, err := sqlx.Open(driver, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, driver: driver}
	if err := s.runMigrations(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	store = s
	log.Info().Str("driver", driver).Msg("Store initialized")
	return s, nil
}

// Get returns the process-wide Store singleton.
func Get() *Store {
	if store == nil {
		log.Fatal().Msg("Store not initialized")
	}
	return store
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// IsPostgres reports whether this store was opened against postgres.
func (s *Store) IsPostgres() bool {
	return s.driver == "postgres"
}

func (s *Store) runMigrations() error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}

		log.Debug().Str("file", name).Msg("Running migration")

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", name, err)
		}
	}

	return nil
}
