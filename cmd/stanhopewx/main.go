package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/lox/stanhopewx/internal/csvio"
	"github.com/lox/stanhopewx/internal/ingest"
	"github.com/lox/stanhopewx/internal/obs"
	"github.com/lox/stanhopewx/internal/pipeline"
	"github.com/lox/stanhopewx/internal/quality"
	"github.com/lox/stanhopewx/internal/report"
	"github.com/lox/stanhopewx/internal/store"
)

var cli struct {
	DB string `help:"Path to the SQLite run database." default:"data/stanhopewx.db" env:"STANHOPEWX_DB"`

	Pipeline PipelineCmd `cmd:"" default:"withargs" help:"Run the cleaning pipeline once."`
	Serve    ServeCmd    `cmd:"" help:"Run the pipeline on an interval and serve Prometheus metrics."`
	Fetch    FetchCmd    `cmd:"" help:"Fetch raw data (ECCC archive or FTP mirror) and exit."`
	Runs     RunsCmd     `cmd:"" help:"List recent pipeline runs."`
	Quality  QualityCmd  `cmd:"" help:"Score a table CSV, or show stored quality records for a run."`
}

// app carries the shared dependencies into command Run methods.
type app struct {
	ctx   context.Context
	store *store.Store
}

// pipelineFlags is shared by the pipeline and serve commands.
type pipelineFlags struct {
	DataDir  string `name:"data-dir" help:"Directory scanned for raw station CSVs." default:"data" env:"STANHOPEWX_DATA_DIR"`
	OutDir   string `name:"out-dir" help:"Directory the published outputs are written to." default:"." env:"STANHOPEWX_OUT_DIR"`
	CacheDir string `name:"cache-dir" help:"ECCC month cache directory." default:"cache" env:"STANHOPEWX_CACHE_DIR"`
	Workers  int    `help:"CSV load parallelism." default:"4"`

	ECCCStation int    `name:"eccc-station" help:"ECCC climate station id." default:"6545"`
	Station     string `help:"Station label for ECCC rows." default:"Stanhope"`
	StartYear   int    `name:"start-year" help:"First year of the ECCC archive fetch." default:"2022"`
	NoFetch     bool   `name:"no-fetch" help:"Skip the ECCC archive fetch."`

	FTPAddr string `name:"ftp-addr" help:"FTP host:port to mirror into the data directory before the run." env:"STANHOPEWX_FTP_ADDR"`
	FTPRoot string `name:"ftp-root" help:"Remote directory to mirror." default:"/" env:"STANHOPEWX_FTP_ROOT"`

	InterpolateLimit time.Duration `name:"interpolate-limit" help:"Max distance to an anchor for gap interpolation." default:"3h"`
	FfillLimit       time.Duration `name:"ffill-limit" help:"Forward fill time bound." default:"6h"`
	BfillLimit       time.Duration `name:"bfill-limit" help:"Backward fill time bound." default:"3h"`
	SkipThreshold    float64       `name:"skip-threshold" help:"Missing percentage at which a station's variable is left unfilled." default:"25"`

	Digest bool `help:"Summarize the run with OpenAI (requires OPENAI_API_KEY)."`
	Card   bool `help:"Render a PNG quality card next to the CSV outputs."`
}

func (f *pipelineFlags) build(st *store.Store) (*pipeline.Pipeline, error) {
	cfg := pipeline.DefaultConfig()
	cfg.DataDir = f.DataDir
	cfg.OutDir = f.OutDir
	cfg.CacheDir = f.CacheDir
	cfg.Workers = f.Workers
	cfg.ECCCStationID = f.ECCCStation
	cfg.ECCCStation = obs.Station(f.Station)
	cfg.ECCCStartYear = f.StartYear
	cfg.SkipECCC = f.NoFetch
	cfg.Impute.InterpolateLimit = f.InterpolateLimit
	cfg.Impute.ForwardFillLimit = f.FfillLimit
	cfg.Impute.BackfillLimit = f.BfillLimit
	cfg.Impute.SkipThresholdPct = f.SkipThreshold
	cfg.RenderCard = f.Card

	p := pipeline.New(cfg, st)
	if f.FTPAddr != "" {
		p.SetMirror(ingest.NewMirror(f.FTPAddr, f.FTPRoot))
	}
	if f.Digest {
		d, err := report.NewDigester()
		if err != nil {
			return nil, err
		}
		p.SetDigester(d)
	}
	return p, nil
}

type PipelineCmd struct {
	pipelineFlags
}

func (c *PipelineCmd) Run(a *app) error {
	p, err := c.build(a.store)
	if err != nil {
		return err
	}
	outcome, err := p.Run(a.ctx)
	if err != nil {
		return err
	}
	for _, path := range outcome.Outputs {
		fmt.Println(path)
	}
	return nil
}

type ServeCmd struct {
	pipelineFlags
	Interval time.Duration `help:"Time between pipeline runs." default:"6h"`
	Listen   string        `help:"Metrics listen address." default:":9090"`
}

func (c *ServeCmd) Run(a *app) error {
	p, err := c.build(a.store)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: c.Listen, Handler: mux}
	go func() {
		log.Printf("serving metrics on %s", c.Listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server: %v", err)
		}
	}()

	// Failed runs are logged and retried next tick rather than killing
	// the daemon.
	if _, err := p.Run(a.ctx); err != nil {
		log.Printf("pipeline: %v", err)
	}

	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-a.ctx.Done():
			log.Println("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		case <-ticker.C:
			if _, err := p.Run(a.ctx); err != nil {
				log.Printf("pipeline: %v", err)
			}
		}
	}
}

type FetchCmd struct {
	CacheDir    string `name:"cache-dir" help:"ECCC month cache directory." default:"cache" env:"STANHOPEWX_CACHE_DIR"`
	ECCCStation int    `name:"eccc-station" help:"ECCC climate station id." default:"6545"`
	Station     string `help:"Station label for ECCC rows." default:"Stanhope"`
	StartYear   int    `name:"start-year" help:"First year to fetch." default:"2022"`

	FTPAddr string `name:"ftp-addr" help:"Mirror an FTP drop into the data directory instead of fetching ECCC." env:"STANHOPEWX_FTP_ADDR"`
	FTPRoot string `name:"ftp-root" help:"Remote directory to mirror." default:"/" env:"STANHOPEWX_FTP_ROOT"`
	DataDir string `name:"data-dir" help:"Destination for mirrored files." default:"data" env:"STANHOPEWX_DATA_DIR"`
}

func (c *FetchCmd) Run(a *app) error {
	if c.FTPAddr != "" {
		files, err := ingest.NewMirror(c.FTPAddr, c.FTPRoot).Sync(a.ctx, c.DataDir)
		if err != nil {
			return err
		}
		fmt.Printf("mirrored %d files into %s\n", len(files), c.DataDir)
		return nil
	}

	eccc := ingest.NewECCC(c.ECCCStation, obs.Station(c.Station), c.CacheDir)
	frames, errs := eccc.FetchAll(a.ctx, c.StartYear)
	for _, err := range errs {
		log.Printf("fetch: %v", err)
	}
	rows := 0
	for _, f := range frames {
		rows += len(f.Rows)
	}
	fmt.Printf("fetched %d months, %d rows\n", len(frames), rows)
	if len(errs) > 0 {
		return fmt.Errorf("%d months failed", len(errs))
	}
	return nil
}

type RunsCmd struct {
	Limit int `help:"Number of runs to show." default:"10"`
}

func (c *RunsCmd) Run(a *app) error {
	runs, err := a.store.RecentRuns(c.Limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}
	for _, run := range runs {
		status := "ok"
		if !run.Success {
			status = "failed"
		}
		fmt.Printf("%d\t%s\t%s\t%d files\t%d rows\t%d filled\t%d missing\n",
			run.ID, run.StartedAt.Format(time.RFC3339), status,
			run.RawFiles.Int64, run.CleanRows.Int64,
			run.ValuesFilled.Int64, run.ValuesRemaining.Int64)
		if run.ErrorMessage.Valid {
			fmt.Printf("\terror: %s\n", run.ErrorMessage.String)
		}
		if run.Digest.Valid {
			fmt.Printf("\t%s\n", run.Digest.String)
		}
	}
	return nil
}

type QualityCmd struct {
	File    string `arg:"" optional:"" help:"Table CSV to score (as written by the pipeline)." type:"existingfile"`
	Out     string `help:"Write the report CSV here instead of stdout." type:"path"`
	RunID   int64  `name:"run-id" help:"Show stored records for this run instead. Defaults to the most recent run."`
	Station string `help:"Filter to one station."`
}

func (c *QualityCmd) Run(a *app) error {
	if c.File != "" {
		return c.scoreFile()
	}
	return c.showStored(a)
}

// scoreFile re-scores any table CSV the pipeline wrote, at any stage.
func (c *QualityCmd) scoreFile() error {
	f, err := os.Open(c.File)
	if err != nil {
		return err
	}
	defer f.Close()

	table, err := csvio.ReadTable(f)
	if err != nil {
		return fmt.Errorf("read %s: %w", c.File, err)
	}
	records := c.filter(quality.Score(table))

	var w io.Writer = os.Stdout
	if c.Out != "" {
		out, err := os.Create(c.Out)
		if err != nil {
			return err
		}
		defer out.Close()
		w = out
	}
	return csvio.WriteQuality(w, records)
}

func (c *QualityCmd) showStored(a *app) error {
	runID := c.RunID
	if runID == 0 {
		runs, err := a.store.RecentRuns(1)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			return errors.New("no runs recorded")
		}
		runID = runs[0].ID
	}

	records, err := a.store.QualityForRun(runID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("no quality records for run %d", runID)
	}
	for _, r := range c.filter(records) {
		fmt.Printf("%s\t%s\t%d rows\t%.2f%% missing\t%.2f%% imputed\n",
			r.Station, r.Column, r.TotalRows, r.MissingPercent, r.ImputationPercent)
	}
	return nil
}

func (c *QualityCmd) filter(records []quality.Record) []quality.Record {
	if c.Station == "" {
		return records
	}
	var out []quality.Record
	for _, r := range records {
		if string(r.Station) == c.Station {
			out = append(out, r)
		}
	}
	return out
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("stanhopewx"),
		kong.Description("Cleans and publishes observations from the Stanhope weather station network."),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
		kong.UsageOnError(),
	)

	if err := os.MkdirAll(filepath.Dir(cli.DB), 0o755); err != nil {
		log.Fatalf("create db dir: %v", err)
	}
	db, err := sql.Open("sqlite", cli.DB)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kctx.FatalIfErrorf(kctx.Run(&app{ctx: ctx, store: st}))
}
