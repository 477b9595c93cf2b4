// Package pipeline runs the end-to-end cleaning job: gather raw station
// CSVs (local drops, FTP mirror, ECCC archive), assemble and clean the
// observation table, fill gaps, score quality, and write the published
// outputs. Each run is recorded in the store when one is attached.
package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/lox/stanhopewx/internal/aggregate"
	"github.com/lox/stanhopewx/internal/csvio"
	"github.com/lox/stanhopewx/internal/imagegen"
	"github.com/lox/stanhopewx/internal/impute"
	"github.com/lox/stanhopewx/internal/ingest"
	"github.com/lox/stanhopewx/internal/metrics"
	"github.com/lox/stanhopewx/internal/obs"
	"github.com/lox/stanhopewx/internal/quality"
	"github.com/lox/stanhopewx/internal/report"
	"github.com/lox/stanhopewx/internal/store"
)

// Published output files, written into Config.OutDir.
const (
	allDataFile = "all_weather_data.csv"
	hourlyFile  = "hourly_weather_data.csv"
	dailyFile   = "daily_weather_data.csv"
	qualityFile = "data_quality_report.csv"
	cardFile    = "data_quality_card.png"
)

// Config carries the pipeline's tunables.
type Config struct {
	// DataDir is the root scanned for raw station CSVs. A missing
	// directory is skipped, not an error.
	DataDir string
	// OutDir receives the published CSV and PNG outputs.
	OutDir string
	// CacheDir holds fetched ECCC month files between runs.
	CacheDir string
	// Workers bounds local CSV load parallelism.
	Workers int

	ECCCStationID int
	ECCCStation   obs.Station
	ECCCStartYear int
	// SkipECCC disables the archive fetch entirely.
	SkipECCC bool

	// Impute is the gap-filling policy.
	Impute impute.Config

	// RenderCard writes a PNG quality card next to the CSV outputs.
	RenderCard bool
}

// DefaultConfig returns the production settings for the Stanhope network.
func DefaultConfig() Config {
	return Config{
		DataDir:       "data",
		OutDir:        ".",
		CacheDir:      "cache",
		Workers:       4,
		ECCCStationID: 6545,
		ECCCStation:   "Stanhope",
		ECCCStartYear: 2022,
		Impute:        impute.DefaultConfig(),
	}
}

// Outcome reports what one run did.
type Outcome struct {
	RawFiles     int
	RawRows      int
	CleanRows    int
	Stations     int
	ValuesFilled int
	Remaining    int
	Stats        []impute.VariableStats
	Records      []quality.Record
	Digest       string
	// Outputs lists the files written, in write order.
	Outputs []string
}

// Pipeline wires the stages together. The store, FTP mirror and digester
// are optional; a nil dependency skips its stage.
type Pipeline struct {
	cfg      Config
	store    *store.Store
	eccc     *ingest.ECCC
	mirror   *ingest.Mirror
	digester *report.Digester
}

// New builds a pipeline. st may be nil for one-off runs with no audit
// trail.
func New(cfg Config, st *store.Store) *Pipeline {
	p := &Pipeline{cfg: cfg, store: st}
	if !cfg.SkipECCC {
		p.eccc = ingest.NewECCC(cfg.ECCCStationID, cfg.ECCCStation, cfg.CacheDir)
	}
	return p
}

// SetMirror attaches an FTP mirror synced into DataDir before discovery.
func (p *Pipeline) SetMirror(m *ingest.Mirror) {
	p.mirror = m
}

// SetDigester attaches an LLM digester for run summaries.
func (p *Pipeline) SetDigester(d *report.Digester) {
	p.digester = d
}

// Run executes the full pipeline once. The returned Outcome is non-nil
// even on error and carries whatever counts the run got to.
func (p *Pipeline) Run(ctx context.Context) (*Outcome, error) {
	started := time.Now()

	var run *store.PipelineRun
	if p.store != nil {
		var err error
		run, err = p.store.StartRun()
		if err != nil {
			metrics.PipelineRunsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("start run: %w", err)
		}
	}

	outcome, err := p.execute(ctx)

	metrics.PipelineDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.PipelineRunsTotal.WithLabelValues("error").Inc()
	} else {
		metrics.PipelineRunsTotal.WithLabelValues("ok").Inc()
	}

	if run != nil {
		p.record(run, outcome, err)
	}
	if err != nil {
		return outcome, err
	}

	log.Printf("pipeline: run complete in %s: %d raw rows, %d clean rows, %d values filled, %d still missing",
		time.Since(started).Round(time.Millisecond),
		outcome.RawRows, outcome.CleanRows, outcome.ValuesFilled, outcome.Remaining)
	return outcome, nil
}

// execute is the data flow; Run wraps it with metrics and the audit
// record.
func (p *Pipeline) execute(ctx context.Context) (*Outcome, error) {
	outcome := &Outcome{}

	// Mirrored files land in DataDir so discovery picks them up with the
	// station layout intact. A failed sync degrades to whatever is
	// already on disk.
	if p.mirror != nil {
		if _, err := p.mirror.Sync(ctx, p.cfg.DataDir); err != nil {
			log.Printf("pipeline: ftp sync failed: %v", err)
		}
	}

	files, err := p.discoverLocal()
	if err != nil {
		return outcome, err
	}
	outcome.RawFiles = len(files)

	var frames []ingest.Frame
	if len(files) > 0 {
		loaded, errs := ingest.LoadLocal(ctx, files, p.cfg.Workers)
		for _, err := range errs {
			log.Printf("pipeline: local load: %v", err)
		}
		frames = append(frames, loaded...)
	}

	if p.eccc != nil {
		ecccFrames, errs := p.eccc.FetchAll(ctx, p.cfg.ECCCStartYear)
		for _, err := range errs {
			log.Printf("pipeline: eccc fetch: %v", err)
		}
		frames = append(frames, ecccFrames...)
	}
	if err := ctx.Err(); err != nil {
		return outcome, err
	}
	// No input at all still produces the full output set, just with empty
	// tables: header-only CSVs keep downstream consumers parseable.
	if len(frames) == 0 {
		log.Printf("pipeline: no input data, outputs will be empty")
	}
	for _, f := range frames {
		outcome.RawRows += len(f.Rows)
	}

	table := ingest.BuildTable(frames)
	quality.LogSummary("after cleaning", table)
	outcome.CleanRows = table.Len()
	outcome.Stations = len(table.StationList())

	imputed, res := impute.Apply(table, p.cfg.Impute)
	quality.LogSummary("after imputation", imputed)
	outcome.ValuesFilled = res.TotalFilled
	outcome.Remaining = res.Remaining
	outcome.Stats = res.PerVariable
	for _, vs := range res.PerVariable {
		metrics.ValuesImputedTotal.WithLabelValues(vs.Variable, "interpolated").Add(float64(vs.Tier1Filled))
		metrics.ValuesImputedTotal.WithLabelValues(vs.Variable, "neighbor").Add(float64(vs.Tier2Filled))
		metrics.ValuesImputedTotal.WithLabelValues(vs.Variable, "derived").Add(float64(vs.Tier3Filled))
		metrics.BoundsViolationsTotal.WithLabelValues(vs.Variable).Add(float64(vs.BoundsViolations))
	}

	outcome.Records = quality.Score(imputed)
	err = p.writeOutput(outcome, qualityFile, func(w io.Writer) error {
		return csvio.WriteQuality(w, outcome.Records)
	})
	if err != nil {
		return outcome, err
	}

	err = p.writeOutput(outcome, allDataFile, func(w io.Writer) error {
		return csvio.WriteTable(w, imputed)
	})
	if err != nil {
		return outcome, err
	}

	hourly := aggregate.Hourly(imputed)
	quality.LogSummary("hourly aggregated", hourly)
	err = p.writeOutput(outcome, hourlyFile, func(w io.Writer) error {
		return csvio.WriteTable(w, hourly)
	})
	if err != nil {
		return outcome, err
	}

	// Daily aggregates come from the full table, not the hourly one, so
	// min/max reflect every observation.
	daily := aggregate.Daily(imputed)
	quality.LogSummary("daily aggregated", daily)
	err = p.writeOutput(outcome, dailyFile, func(w io.Writer) error {
		return csvio.WriteDailyTable(w, daily)
	})
	if err != nil {
		return outcome, err
	}

	if p.digester != nil {
		digest, err := p.digester.Digest(ctx, res, outcome.Records)
		if err != nil {
			log.Printf("pipeline: digest: %v", err)
		} else {
			outcome.Digest = digest
			log.Printf("pipeline: digest: %s", digest)
		}
	}

	if p.cfg.RenderCard {
		if err := p.writeCard(outcome); err != nil {
			log.Printf("pipeline: quality card: %v", err)
		}
	}

	return outcome, nil
}

// discoverLocal scans DataDir, tolerating its absence.
func (p *Pipeline) discoverLocal() ([]ingest.File, error) {
	if _, err := os.Stat(p.cfg.DataDir); os.IsNotExist(err) {
		log.Printf("pipeline: data dir %s does not exist, skipping local files", p.cfg.DataDir)
		return nil, nil
	}
	return ingest.DiscoverCSVs(p.cfg.DataDir)
}

func (p *Pipeline) writeOutput(outcome *Outcome, name string, write func(io.Writer) error) error {
	if err := os.MkdirAll(p.cfg.OutDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(p.cfg.OutDir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	outcome.Outputs = append(outcome.Outputs, path)
	log.Printf("pipeline: wrote %s", path)
	return nil
}

func (p *Pipeline) writeCard(outcome *Outcome) error {
	png, err := imagegen.RenderQualityCard(outcome.Records, time.Now().UTC())
	if err != nil {
		return err
	}
	return p.writeOutput(outcome, cardFile, func(w io.Writer) error {
		_, err := w.Write(png)
		return err
	})
}

// record completes the audit row and persists per-run statistics.
func (p *Pipeline) record(run *store.PipelineRun, outcome *Outcome, runErr error) {
	run.RawFiles = sql.NullInt64{Int64: int64(outcome.RawFiles), Valid: true}
	run.RawRows = sql.NullInt64{Int64: int64(outcome.RawRows), Valid: true}
	run.CleanRows = sql.NullInt64{Int64: int64(outcome.CleanRows), Valid: true}
	run.Stations = sql.NullInt64{Int64: int64(outcome.Stations), Valid: true}
	run.ValuesFilled = sql.NullInt64{Int64: int64(outcome.ValuesFilled), Valid: true}
	run.ValuesRemaining = sql.NullInt64{Int64: int64(outcome.Remaining), Valid: true}
	run.Success = runErr == nil
	if runErr != nil {
		run.ErrorMessage = sql.NullString{String: runErr.Error(), Valid: true}
	}
	if outcome.Digest != "" {
		run.Digest = sql.NullString{String: outcome.Digest, Valid: true}
	}
	if err := p.store.CompleteRun(run); err != nil {
		log.Printf("pipeline: complete run: %v", err)
	}
	if runErr != nil {
		return
	}
	if err := p.store.SaveImputation(run.ID, outcome.Stats); err != nil {
		log.Printf("pipeline: save imputation stats: %v", err)
	}
	if err := p.store.SaveQuality(run.ID, outcome.Records); err != nil {
		log.Printf("pipeline: save quality records: %v", err)
	}
}
