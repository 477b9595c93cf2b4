// Package ingest turns raw station CSV drops into the cleaned observation
// table the pipeline runs on. Sources are local sensor exports mirrored from
// the park's FTP drop and the ECCC Stanhope archive; both arrive as messy
// CSV with vendor-specific headers.
package ingest

import (
	"encoding/csv"
	"errors"
	"io"
	"os"

	"github.com/lox/stanhopewx/internal/obs"
)

// Frame is one loaded CSV: normalized headers plus raw string cells. Values
// stay untyped until table assembly so cleaning rules can see the original
// text.
type Frame struct {
	Station obs.Station
	Columns []string
	Rows    [][]string
}

// parseCSV reads a frame leniently: ragged or malformed lines are skipped,
// quoting rules are relaxed. A file with no data rows is an error.
func parseCSV(r io.Reader) (Frame, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return Frame{}, errors.New("empty file")
	}
	if err != nil {
		return Frame{}, err
	}

	frame := Frame{Columns: header}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil || len(rec) != len(header) {
			continue
		}
		frame.Rows = append(frame.Rows, rec)
	}
	if len(frame.Rows) == 0 {
		return Frame{}, errors.New("no data rows")
	}
	return frame, nil
}

func parseCSVFile(path string) (Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return Frame{}, err
	}
	defer f.Close()
	return parseCSV(f)
}
