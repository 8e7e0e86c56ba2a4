package store

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"backlab/internal/domain"
)

// Compile-time interface check.
var _ BarStore = (*CSVStore)(nil)

// CSVStore is a read-only BarStore over a single CSV file.
type CSVStore struct {
	Path string
}

// NewCSVStore creates a CSVStore for the given file.
func NewCSVStore(path string) *CSVStore {
	return &CSVStore{Path: path}
}

// WriteBars is not supported; the CSV source is read-only.
func (s *CSVStore) WriteBars(_ context.Context, _ []domain.Bar) error {
	return fmt.Errorf("csv store is read-only")
}

// ReadBars loads the file and returns the bars for symbol within
// [start, end]. Zero start/end bounds are open.
func (s *CSVStore) ReadBars(_ context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	bars, err := ReadCSVBars(s.Path, symbol)
	if err != nil {
		return nil, err
	}
	out := bars[:0]
	for _, b := range bars {
		if !start.IsZero() && b.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && b.Timestamp.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// ListSymbols returns nothing; a CSV file carries no symbol directory.
func (s *CSVStore) ListSymbols(_ context.Context) ([]string, error) {
	return nil, nil
}

// timestampLayouts are tried in order when parsing the datetime column.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// datetimeAliases are the accepted names for the timestamp column, after
// normalization.
var datetimeAliases = map[string]bool{
	"datetime":  true,
	"timestamp": true,
	"time":      true,
	"date":      true,
}

// ReadCSVBars loads OHLCV bars for symbol from a CSV file. The header row is
// matched case- and whitespace-insensitively, columns named like "unnamed"
// are dropped, and extra columns are ignored. Rows are sorted by timestamp
// and deduplicated, last write wins. Missing required columns, unparseable
// values, and non-finite OHLCV are input errors.
func ReadCSVBars(path, symbol string) ([]domain.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%s: no data rows", path)
	}

	cols, err := mapColumns(rows[0])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	bars := make([]domain.Bar, 0, len(rows)-1)
	for i, row := range rows[1:] {
		line := i + 2 // 1-based, after the header
		ts, err := parseTimestamp(row[cols.datetime])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		b := domain.Bar{Symbol: symbol, Timestamp: ts}
		for _, f := range []struct {
			name string
			col  int
			dst  *float64
		}{
			{"open", cols.open, &b.Open},
			{"high", cols.high, &b.High},
			{"low", cols.low, &b.Low},
			{"close", cols.close, &b.Close},
			{"volume", cols.volume, &b.Volume},
		} {
			if f.col >= len(row) {
				return nil, fmt.Errorf("%s line %d: short row", path, line)
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(row[f.col]), 64)
			if err != nil {
				return nil, fmt.Errorf("%s line %d: bad %s value %q", path, line, f.name, row[f.col])
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%s line %d: non-finite %s", path, line, f.name)
			}
			*f.dst = v
		}
		bars = append(bars, b)
	}

	return sortDedup(bars), nil
}

// columnMap holds the resolved index of each required column.
type columnMap struct {
	datetime, open, high, low, close, volume int
}

func mapColumns(header []string) (columnMap, error) {
	cols := columnMap{datetime: -1, open: -1, high: -1, low: -1, close: -1, volume: -1}
	for i, raw := range header {
		name := strings.ToLower(strings.TrimSpace(raw))
		if strings.Contains(name, "unnamed") {
			continue
		}
		switch {
		case datetimeAliases[name]:
			cols.datetime = i
		case name == "open":
			cols.open = i
		case name == "high":
			cols.high = i
		case name == "low":
			cols.low = i
		case name == "close":
			cols.close = i
		case name == "volume":
			cols.volume = i
		}
	}

	missing := []string{}
	for _, c := range []struct {
		name string
		idx  int
	}{
		{"datetime", cols.datetime}, {"open", cols.open}, {"high", cols.high},
		{"low", cols.low}, {"close", cols.close}, {"volume", cols.volume},
	} {
		if c.idx < 0 {
			missing = append(missing, c.name)
		}
	}
	if len(missing) > 0 {
		return cols, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	// Unix seconds as a last resort.
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", raw)
}

// sortDedup sorts bars by timestamp and collapses duplicates, keeping the
// last occurrence in input order.
func sortDedup(bars []domain.Bar) []domain.Bar {
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})
	out := bars[:0]
	for _, b := range bars {
		if n := len(out); n > 0 && out[n-1].Timestamp.Equal(b.Timestamp) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}
