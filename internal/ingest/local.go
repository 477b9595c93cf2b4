package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"path/filepath"
	"strings"
	"sync"

	"github.com/lox/stanhopewx/internal/metrics"
	"github.com/lox/stanhopewx/internal/obs"
)

// File is one discovered raw CSV.
type File struct {
	Path string
	Rel  string // relative to the scan root, carries the station directory
}

// DiscoverCSVs recursively finds CSV files under root.
func DiscoverCSVs(root string) ([]File, error) {
	var files []File
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(p), ".csv") {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		files = append(files, File{Path: p, Rel: rel})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	log.Printf("ingest: found %d csv files under %s", len(files), root)
	return files, nil
}

// StationFromRel derives the station from the first directory of a relative
// path. Files sitting directly in the scan root have no station directory.
func StationFromRel(rel string) obs.Station {
	rel = filepath.ToSlash(rel)
	if i := strings.IndexByte(rel, '/'); i > 0 {
		return obs.Station(rel[:i])
	}
	return "unknown"
}

// LoadLocal reads and normalizes files with a worker pool, preserving input
// order. Per-file failures are collected rather than aborting the batch;
// cancelling ctx stops scheduling new files.
func LoadLocal(ctx context.Context, files []File, workers int) ([]Frame, []error) {
	if workers <= 0 {
		workers = 4
	}

	type result struct {
		frame Frame
		err   error
	}
	results := make([]result, len(files))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				f := files[i]
				frame, err := parseCSVFile(f.Path)
				if err != nil {
					results[i] = result{err: fmt.Errorf("%s: %w", f.Rel, err)}
					metrics.FilesLoadedTotal.WithLabelValues("error").Inc()
					continue
				}
				frame.Station = StationFromRel(f.Rel)
				results[i] = result{frame: Normalize(frame)}
				metrics.FilesLoadedTotal.WithLabelValues("ok").Inc()
			}
		}()
	}

	cancelled := false
feed:
	for i := range files {
		select {
		case jobs <- i:
		case <-ctx.Done():
			cancelled = true
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	var frames []Frame
	var errs []error
	for i, r := range results {
		switch {
		case r.err != nil:
			log.Printf("ingest: failed to load %s: %v", files[i].Rel, r.err)
			errs = append(errs, r.err)
		case r.frame.Columns != nil:
			frames = append(frames, r.frame)
		}
	}
	if cancelled {
		errs = append(errs, ctx.Err())
	}
	log.Printf("ingest: loaded %d of %d files", len(frames), len(files))
	return frames, errs
}
