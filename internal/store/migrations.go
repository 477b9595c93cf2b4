package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Initial schema",
		SQL: `
CREATE TABLE IF NOT EXISTS pipeline_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at DATETIME NOT NULL,
    finished_at DATETIME,
    raw_files INTEGER,
    raw_rows INTEGER,
    clean_rows INTEGER,
    stations INTEGER,
    values_filled INTEGER,
    values_remaining INTEGER,
    success BOOLEAN NOT NULL DEFAULT FALSE,
    error_message TEXT
);

CREATE TABLE IF NOT EXISTS imputation_stats (
    run_id INTEGER NOT NULL REFERENCES pipeline_runs(id),
    variable TEXT NOT NULL,
    missing_before INTEGER NOT NULL,
    interpolated INTEGER NOT NULL,
    neighbor_filled INTEGER NOT NULL,
    derived INTEGER NOT NULL,
    missing_after INTEGER NOT NULL,
    bounds_violations INTEGER NOT NULL,
    skipped_stations INTEGER NOT NULL,
    PRIMARY KEY (run_id, variable)
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON pipeline_runs(started_at);
`,
	},
	{
		Version:     2,
		Description: "Add quality_records for per-station per-variable report history",
		SQL: `
CREATE TABLE IF NOT EXISTS quality_records (
    run_id INTEGER NOT NULL REFERENCES pipeline_runs(id),
    station TEXT NOT NULL,
    column_name TEXT NOT NULL,
    total_rows INTEGER NOT NULL,
    missing_count INTEGER NOT NULL,
    missing_percent REAL NOT NULL,
    original_count INTEGER NOT NULL,
    interpolated_count INTEGER NOT NULL,
    filled_count INTEGER NOT NULL,
    calculated_count INTEGER NOT NULL,
    total_imputed INTEGER NOT NULL,
    imputation_percent REAL NOT NULL,
    mean REAL,
    median REAL,
    min REAL,
    max REAL,
    q1 REAL,
    q3 REAL,
    iqr REAL,
    PRIMARY KEY (run_id, station, column_name)
);

CREATE INDEX IF NOT EXISTS idx_quality_run ON quality_records(run_id);
`,
	},
	{
		Version:     3,
		Description: "Add digest column for run summaries",
		SQL: `
ALTER TABLE pipeline_runs ADD COLUMN digest TEXT;
`,
	},
}

func (s *Store) Migrate() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		log.Printf("migrations: applying %d - %s", m.Version, m.Description)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		log.Printf("migrations: completed %d", m.Version)
	}

	return nil
}

func (s *Store) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`)
	return err
}

func (s *Store) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (s *Store) MigrationVersion() (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
