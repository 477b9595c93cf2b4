package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lox/stanhopewx/internal/httputil"
	"github.com/lox/stanhopewx/internal/metrics"
	"github.com/lox/stanhopewx/internal/obs"
)

const (
	ecccBaseURL   = "https://climate.weather.gc.ca/climate_data/bulk_data_e.html"
	ecccUserAgent = "Mozilla/5.0"
)

// ECCC downloads hourly monthly archives from the Environment and Climate
// Change Canada bulk data endpoint. Months are immutable once past, so every
// successful download is cached on disk and never refetched.
type ECCC struct {
	client    *http.Client
	baseURL   string
	stationID int
	station   obs.Station
	cacheDir  string
	delay     time.Duration
	now       func() time.Time
}

func NewECCC(stationID int, station obs.Station, cacheDir string) *ECCC {
	return &ECCC{
		client:    httputil.NewArchiveClient(ecccUserAgent),
		baseURL:   ecccBaseURL,
		stationID: stationID,
		station:   station,
		cacheDir:  cacheDir,
		delay:     500 * time.Millisecond,
		now:       time.Now,
	}
}

// FetchMonth returns the normalized frame for one archive month. The bool
// reports whether the month came from the on-disk cache.
func (e *ECCC) FetchMonth(ctx context.Context, year int, month time.Month) (Frame, bool, error) {
	if body, err := os.ReadFile(e.cachePath(year, month)); err == nil {
		frame, err := e.parseMonth(body, year, month)
		if err != nil {
			return Frame{}, false, err
		}
		metrics.ECCCFetchesTotal.WithLabelValues("cache").Inc()
		return frame, true, nil
	}

	url := fmt.Sprintf("%s?format=csv&stationID=%d&Year=%d&Month=%d&Day=14&timeframe=1&submit=Download+Data",
		e.baseURL, e.stationID, year, int(month))

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("eccc request: %w", err))
		}

		start := time.Now()
		resp, err := e.client.Do(req)
		if err != nil {
			return fmt.Errorf("eccc fetch: %w", err)
		}
		defer resp.Body.Close()
		metrics.ECCCFetchLatency.Observe(time.Since(start).Seconds())

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("eccc fetch: status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			return backoff.Permanent(fmt.Errorf("eccc fetch: status %d: %s", resp.StatusCode, string(b)))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("eccc read body: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		metrics.ECCCFetchesTotal.WithLabelValues("error").Inc()
		return Frame{}, false, err
	}

	frame, err := e.parseMonth(body, year, month)
	if err != nil {
		metrics.ECCCFetchesTotal.WithLabelValues("error").Inc()
		return Frame{}, false, err
	}
	metrics.ECCCFetchesTotal.WithLabelValues("ok").Inc()

	e.writeCache(year, month, body)
	return frame, false, nil
}

// FetchAll walks every month from January of startYear through the current
// month, pausing briefly between network downloads to stay polite. Failed
// months are reported and skipped so one bad archive cannot sink a backfill.
func (e *ECCC) FetchAll(ctx context.Context, startYear int) ([]Frame, []error) {
	var frames []Frame
	var errs []error

	end := e.now().UTC()
	for year := startYear; year <= end.Year(); year++ {
		for month := time.January; month <= time.December; month++ {
			if year == end.Year() && month > end.Month() {
				break
			}
			if ctx.Err() != nil {
				errs = append(errs, ctx.Err())
				return frames, errs
			}

			frame, cached, err := e.FetchMonth(ctx, year, month)
			if err != nil {
				log.Printf("ingest: eccc %d-%02d: %v", year, month, err)
				errs = append(errs, fmt.Errorf("eccc %d-%02d: %w", year, month, err))
				continue
			}
			frames = append(frames, frame)
			if !cached {
				time.Sleep(e.delay)
			}
		}
	}

	log.Printf("ingest: eccc: fetched %d months for %s (%d failed)", len(frames), e.station, len(errs))
	return frames, errs
}

func (e *ECCC) parseMonth(body []byte, year int, month time.Month) (Frame, error) {
	frame, err := parseCSV(bytes.NewReader(body))
	if err != nil {
		return Frame{}, fmt.Errorf("eccc %d-%02d: %w", year, month, err)
	}
	frame.Station = e.station
	return Normalize(frame), nil
}

func (e *ECCC) cachePath(year int, month time.Month) string {
	return filepath.Join(e.cacheDir, fmt.Sprintf("eccc_%d_%d_%02d.csv", e.stationID, year, int(month)))
}

func (e *ECCC) writeCache(year int, month time.Month, body []byte) {
	if err := os.MkdirAll(e.cacheDir, 0o755); err != nil {
		log.Printf("ingest: eccc cache: %v", err)
		return
	}
	if err := os.WriteFile(e.cachePath(year, month), body, 0o644); err != nil {
		log.Printf("ingest: eccc cache: %v", err)
	}
}
