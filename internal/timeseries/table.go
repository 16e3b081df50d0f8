// Package timeseries reads CSV time series and shapes them into chart
// descriptors: stacked per-depth soil-moisture bands, the thresholded
// root-zone series and NDVI series for field polygons.
package timeseries

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/joeblew999/geoportal/internal/apperr"
)

// DefaultTimeColumns is the priority order used when none is configured.
var DefaultTimeColumns = []string{"timestamp", "time", "datetime", "date", "Date Time"}

// timeLayouts are tried in order for every timestamp cell.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006/01/02",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006",
	"02.01.2006 15:04:05",
	"02.01.2006 15:04",
	"02.01.2006",
	"20060102",
}

// Table is a time-indexed set of numeric columns. Times is ascending, and
// strictly increasing for tables read by ReadTimeSeries; missing cells are
// NaN.
type Table struct {
	Path       string
	TimeColumn string
	Times      []time.Time
	Columns    []string
	Values     map[string][]float64
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Times) }

// Column returns the values of name.
func (t *Table) Column(name string) ([]float64, bool) {
	v, ok := t.Values[name]
	return v, ok
}

// Filter returns the rows within [start, end] and, when columns is not
// empty, only those columns. A zero start or end leaves that side open.
func (t *Table) Filter(columns []string, start, end time.Time) (*Table, error) {
	keep := t.Columns
	if len(columns) > 0 {
		keep = nil
		for _, c := range columns {
			if _, ok := t.Values[c]; !ok {
				return nil, apperr.NotFound("column %q not in %s", c, t.Path)
			}
			keep = append(keep, c)
		}
	}

	out := &Table{Path: t.Path, TimeColumn: t.TimeColumn, Values: make(map[string][]float64, len(keep))}
	var rows []int
	for i, ts := range t.Times {
		if !start.IsZero() && ts.Before(start) {
			continue
		}
		if !end.IsZero() && ts.After(end) {
			continue
		}
		rows = append(rows, i)
		out.Times = append(out.Times, ts)
	}
	for _, c := range keep {
		src := t.Values[c]
		vals := make([]float64, len(rows))
		for j, i := range rows {
			vals[j] = src[i]
		}
		out.Columns = append(out.Columns, c)
		out.Values[c] = vals
	}
	return out, nil
}

// ReadTimeSeries reads the CSV at path. candidates is the timestamp column
// priority list. Rows whose timestamp does not parse are dropped; the rest
// are sorted by time, and for a repeated timestamp the last row wins.
func ReadTimeSeries(path string, candidates []string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.NotFound("CSV not found: %s", path)
		}
		return nil, apperr.Wrap(apperr.KindNotFound, err, "reading %s", path)
	}
	return ParseTimeSeries(data, path, candidates)
}

// ParseTimeSeries is ReadTimeSeries over an in-memory CSV. source names
// the data in errors.
func ParseTimeSeries(data []byte, source string, candidates []string) (*Table, error) {
	if len(candidates) == 0 {
		candidates = DefaultTimeColumns
	}
	records, err := readRecords(data, source)
	if err != nil {
		return nil, err
	}
	header := records[0]
	tcol := findTimeColumn(header, candidates)
	if tcol < 0 {
		return nil, apperr.InvalidFormat("No datetime column found in %s", source)
	}

	var cols []int
	for i := range header {
		if i != tcol {
			cols = append(cols, i)
		}
	}
	t := buildTable(records[1:], header, tcol, cols, tableOptions{dedupe: true})
	t.Path = source
	if len(t.Columns) == 0 {
		return nil, apperr.InvalidFormat("No numeric columns in %s", source)
	}
	return t, nil
}

func readRecords(data []byte, source string) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInvalidFormat, err, "decoding %s", source)
		}
		data = decoded
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.LazyQuotes = true

	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInvalidFormat, err, "parsing CSV %s", source)
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, apperr.InvalidFormat("%s is empty", source)
	}
	for i, h := range records[0] {
		records[0][i] = strings.TrimSpace(h)
	}
	return records, nil
}

// findTimeColumn tries each candidate by exact name, then case-insensitively.
func findTimeColumn(header []string, candidates []string) int {
	for _, c := range candidates {
		for i, h := range header {
			if h == c {
				return i
			}
		}
	}
	for _, c := range candidates {
		for i, h := range header {
			if strings.EqualFold(h, c) {
				return i
			}
		}
	}
	return -1
}

type row struct {
	t    time.Time
	vals []float64
}

type tableOptions struct {
	// coerce turns unparsable cells into NaN instead of disqualifying
	// the column.
	coerce bool
	// dedupe keeps only the last row of a repeated timestamp.
	dedupe bool
}

// buildTable parses rows into a Table. A column is numeric when every
// non-empty cell parses as a number and at least one does.
func buildTable(records [][]string, header []string, tcol int, cols []int, opts tableOptions) *Table {
	numeric := make([]bool, len(cols))
	hasValue := make([]bool, len(cols))
	for i := range numeric {
		numeric[i] = true
	}

	var rows []row
	for _, rec := range records {
		if tcol >= len(rec) {
			continue
		}
		ts, ok := ParseTime(rec[tcol])
		if !ok {
			continue
		}
		r := row{t: ts, vals: make([]float64, len(cols))}
		for j, c := range cols {
			cell := ""
			if c < len(rec) {
				cell = rec[c]
			}
			v, state := parseCell(cell)
			switch state {
			case cellValue:
				hasValue[j] = true
			case cellText:
				if !opts.coerce {
					numeric[j] = false
				}
			}
			r.vals[j] = v
		}
		rows = append(rows, r)
	}

	sort.SliceStable(rows, func(a, b int) bool { return rows[a].t.Before(rows[b].t) })
	if opts.dedupe {
		deduped := rows[:0]
		for _, r := range rows {
			if n := len(deduped); n > 0 && deduped[n-1].t.Equal(r.t) {
				deduped[n-1] = r
				continue
			}
			deduped = append(deduped, r)
		}
		rows = deduped
	}

	t := &Table{
		TimeColumn: header[tcol],
		Times:      make([]time.Time, len(rows)),
		Values:     make(map[string][]float64),
	}
	for i, r := range rows {
		t.Times[i] = r.t
	}
	for j, c := range cols {
		if !numeric[j] || !hasValue[j] || c >= len(header) {
			continue
		}
		name := header[c]
		if _, dup := t.Values[name]; dup || name == "" {
			continue
		}
		vals := make([]float64, len(rows))
		for i, r := range rows {
			vals[i] = r.vals[j]
		}
		t.Columns = append(t.Columns, name)
		t.Values[name] = vals
	}
	return t
}

type cellState int

const (
	cellMissing cellState = iota
	cellValue
	cellText
)

func parseCell(s string) (float64, cellState) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "na", "nan", "null", "none", "n/a", "-":
		return math.NaN(), cellMissing
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) {
		return math.NaN(), cellText
	}
	if math.IsNaN(v) {
		return v, cellMissing
	}
	return v, cellValue
}

// ParseTime parses a timestamp cell in one of the accepted layouts.
// Times without a zone are read as UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
