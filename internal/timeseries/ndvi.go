package timeseries

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/joeblew999/geoportal/internal/apperr"
)

var errNDVIMissing = errors.New("ndvi csv missing")

// NDVISource finds the NDVI CSV of a field: <Dir>/<id>.csv first, then
// <HTTPBase>/<id>.csv. HTTP fetches go through a circuit breaker so a dead
// server fails fast instead of stalling every popup. Nothing is retried.
type NDVISource struct {
	Dir      string
	HTTPBase string

	client *http.Client
	cb     *gobreaker.CircuitBreaker
}

// NewNDVISource returns a source over dir and httpBase. Either may be empty.
func NewNDVISource(dir, httpBase string, client *http.Client) *NDVISource {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ndvi-http",
		MaxRequests: 1,
		Interval:    1 * time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			// a missing file is an answer, not a server failure
			return err == nil || errors.Is(err, errNDVIMissing)
		},
	})
	return &NDVISource{
		Dir:      dir,
		HTTPBase: strings.TrimRight(httpBase, "/"),
		client:   client,
		cb:       cb,
	}
}

// Load reads and parses the NDVI table of fieldID. The date is the first
// CSV column and NDVI the second, whatever their names. src names where
// the data came from.
func (s *NDVISource) Load(ctx context.Context, fieldID string) (t *Table, src string, err error) {
	name, err := csvName(fieldID)
	if err != nil {
		return nil, "", err
	}

	if s.Dir != "" {
		p := filepath.Join(s.Dir, name)
		data, err := os.ReadFile(p)
		if err == nil {
			t, err := ParseNDVI(data, p, fieldID)
			return t, "Local file: " + p, err
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, "", apperr.Wrap(apperr.KindNotFound, err, "reading %s", p)
		}
	}

	if s.HTTPBase != "" {
		url := s.HTTPBase + "/" + name
		data, err := s.fetch(ctx, url)
		switch {
		case errors.Is(err, errNDVIMissing):
		case err != nil:
			return nil, "", apperr.Wrap(apperr.KindNotFound, err, "fetching NDVI for Field_id=%s from %s", fieldID, url)
		default:
			t, err := ParseNDVI(data, url, fieldID)
			return t, "HTTP URL: " + url, err
		}
	}

	return nil, "", apperr.NotFound("No NDVI CSV found for Field_id=%s", fieldID)
}

func (s *NDVISource) fetch(ctx context.Context, url string) ([]byte, error) {
	out, err := s.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, errNDVIMissing
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	})
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

// ParseNDVI parses an NDVI CSV: the first column is the date, the second
// the value. Rows with an unreadable date are dropped; unreadable values
// are kept as gaps.
func ParseNDVI(data []byte, source, fieldID string) (*Table, error) {
	records, err := readRecords(data, source)
	if err != nil {
		return nil, err
	}
	header := records[0]
	if len(header) < 2 {
		return nil, apperr.InvalidFormat("NDVI CSV for Field_id=%s must have at least 2 columns, got %v", fieldID, header)
	}
	if len(records) < 2 {
		return nil, apperr.InvalidFormat("NDVI CSV for Field_id=%s is empty. Source: %s", fieldID, source)
	}
	t := buildTable(records[1:], header, 0, []int{1}, tableOptions{coerce: true})
	t.Path = source
	if t.Len() == 0 {
		return nil, apperr.InvalidFormat("NDVI CSV for Field_id=%s has no valid dates after parsing. Source: %s", fieldID, source)
	}
	if len(t.Columns) == 0 {
		return nil, apperr.InvalidFormat("NDVI CSV for Field_id=%s has no numeric NDVI values in column '%s'. Source: %s", fieldID, header[1], source)
	}
	return t, nil
}
