package store

import (
	"database/sql"
	"time"

	"github.com/lox/stanhopewx/internal/impute"
	"github.com/lox/stanhopewx/internal/obs"
	"github.com/lox/stanhopewx/internal/quality"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// PipelineRun is the audit record for one end-to-end pipeline execution.
type PipelineRun struct {
	ID              int64
	StartedAt       time.Time
	FinishedAt      sql.NullTime
	RawFiles        sql.NullInt64
	RawRows         sql.NullInt64
	CleanRows       sql.NullInt64
	Stations        sql.NullInt64
	ValuesFilled    sql.NullInt64
	ValuesRemaining sql.NullInt64
	Success         bool
	ErrorMessage    sql.NullString
	Digest          sql.NullString
}

// StartRun creates a new run record marked unsuccessful until completed.
func (s *Store) StartRun() (*PipelineRun, error) {
	run := &PipelineRun{StartedAt: time.Now().UTC()}

	result, err := s.db.Exec(`
		INSERT INTO pipeline_runs (started_at, success)
		VALUES (?, FALSE)
	`, run.StartedAt)
	if err != nil {
		return nil, err
	}

	run.ID, err = result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return run, nil
}

// CompleteRun stamps the finish time and writes the run's results.
func (s *Store) CompleteRun(run *PipelineRun) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	_, err := s.db.Exec(`
		UPDATE pipeline_runs SET
			finished_at = ?,
			raw_files = ?,
			raw_rows = ?,
			clean_rows = ?,
			stations = ?,
			values_filled = ?,
			values_remaining = ?,
			success = ?,
			error_message = ?,
			digest = ?
		WHERE id = ?
	`, run.FinishedAt, run.RawFiles, run.RawRows, run.CleanRows, run.Stations,
		run.ValuesFilled, run.ValuesRemaining, run.Success, run.ErrorMessage,
		run.Digest, run.ID)
	return err
}

// RecentRuns returns the most recent runs, newest first.
func (s *Store) RecentRuns(limit int) ([]PipelineRun, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, raw_files, raw_rows, clean_rows,
		       stations, values_filled, values_remaining, success, error_message, digest
		FROM pipeline_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []PipelineRun
	for rows.Next() {
		var r PipelineRun
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.RawFiles, &r.RawRows,
			&r.CleanRows, &r.Stations, &r.ValuesFilled, &r.ValuesRemaining,
			&r.Success, &r.ErrorMessage, &r.Digest); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// SaveImputation records per-variable fill counts for a run.
func (s *Store) SaveImputation(runID int64, stats []impute.VariableStats) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	for _, vs := range stats {
		if _, err := tx.Exec(`
			INSERT INTO imputation_stats (run_id, variable, missing_before, interpolated,
				neighbor_filled, derived, missing_after, bounds_violations, skipped_stations)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, variable) DO NOTHING
		`, runID, vs.Variable, vs.OriginalMissing, vs.Tier1Filled, vs.Tier2Filled,
			vs.Tier3Filled, vs.FinalMissing, vs.BoundsViolations, len(vs.SkippedStations)); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// SaveQuality records the full quality report for a run.
func (s *Store) SaveQuality(runID int64, records []quality.Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	for _, rec := range records {
		if _, err := tx.Exec(`
			INSERT INTO quality_records (run_id, station, column_name, total_rows,
				missing_count, missing_percent, original_count, interpolated_count,
				filled_count, calculated_count, total_imputed, imputation_percent,
				mean, median, min, max, q1, q3, iqr)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, station, column_name) DO NOTHING
		`, runID, string(rec.Station), rec.Column, rec.TotalRows,
			rec.MissingCount, rec.MissingPercent, rec.OriginalCount, rec.InterpolatedCount,
			rec.FilledCount, rec.CalculatedCount, rec.TotalImputed, rec.ImputationPercent,
			rec.Mean, rec.Median, rec.Min, rec.Max, rec.Q1, rec.Q3, rec.IQR); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// QualityForRun reads a run's stored quality report back, in report order.
func (s *Store) QualityForRun(runID int64) ([]quality.Record, error) {
	rows, err := s.db.Query(`
		SELECT station, column_name, total_rows, missing_count, missing_percent,
		       original_count, interpolated_count, filled_count, calculated_count,
		       total_imputed, imputation_percent, mean, median, min, max, q1, q3, iqr
		FROM quality_records
		WHERE run_id = ?
		ORDER BY rowid
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []quality.Record
	for rows.Next() {
		var rec quality.Record
		var station string
		if err := rows.Scan(&station, &rec.Column, &rec.TotalRows, &rec.MissingCount,
			&rec.MissingPercent, &rec.OriginalCount, &rec.InterpolatedCount,
			&rec.FilledCount, &rec.CalculatedCount, &rec.TotalImputed,
			&rec.ImputationPercent, &rec.Mean, &rec.Median, &rec.Min, &rec.Max,
			&rec.Q1, &rec.Q3, &rec.IQR); err != nil {
			return nil, err
		}
		rec.Station = obs.Station(station)
		records = append(records, rec)
	}
	return records, rows.Err()
}
