// Package geoclient is a small Go client for the geoportal REST API.
package geoclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client calls a geoportal server.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New returns a client for the server at baseURL.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Error is a non-2xx response, decoded from the RFC 9457 problem body.
type Error struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Title, e.Detail)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Title)
}

type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

type Info struct {
	Name             string   `json:"name"`
	Version          string   `json:"version"`
	DB               bool     `json:"db"`
	Views            []string `json:"views"`
	CenterPivotYears []int    `json:"center_pivot_years"`
}

type SourceFile struct {
	Name     string `json:"name"`
	Size     string `json:"size"`
	FileType string `json:"fileType"`
	URL      string `json:"url"`
}

type SourcePage struct {
	Total  int          `json:"total"`
	Offset int          `json:"offset"`
	Limit  int          `json:"limit"`
	Data   []SourceFile `json:"data"`
}

type Pyramid struct {
	Year       int             `json:"year,omitempty"`
	Descriptor json.RawMessage `json:"descriptor"`
	URL        string          `json:"url,omitempty"`
}

type Marker struct {
	ID         string         `json:"sensor_id"`
	Lat        float64        `json:"lat"`
	Lon        float64        `json:"lon"`
	Properties map[string]any `json:"properties"`
}

type Markers struct {
	Group struct {
		Source  string   `json:"source"`
		Markers []Marker `json:"markers"`
	} `json:"group"`
	Bounds [][2]float64 `json:"bounds,omitempty"`
}

type Series struct {
	Source     string                `json:"source"`
	TimeColumn string                `json:"timeColumn,omitempty"`
	Times      []time.Time           `json:"times"`
	Columns    map[string][]*float64 `json:"columns"`
	ChartError string                `json:"chartError,omitempty"`
}

// SeriesQuery narrows a sensor series. Zero fields are not sent.
type SeriesQuery struct {
	Variables []string
	Start     string
	End       string
}

type Session struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
}

func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	return &out, c.do(ctx, http.MethodGet, "/health", nil, &out)
}

func (c *Client) Ping(ctx context.Context) (string, error) {
	var b []byte
	err := c.do(ctx, http.MethodGet, "/api/ping", nil, &b)
	return string(b), err
}

func (c *Client) GetInfo(ctx context.Context) (*Info, error) {
	var out Info
	return &out, c.do(ctx, http.MethodGet, "/api/v1/info", nil, &out)
}

func (c *Client) ListSources(ctx context.Context, offset, limit int) (*SourcePage, error) {
	var out SourcePage
	path := fmt.Sprintf("/api/v1/sources?offset=%d&limit=%d", offset, limit)
	return &out, c.do(ctx, http.MethodGet, path, nil, &out)
}

func (c *Client) ListTiles(ctx context.Context) ([]Pyramid, error) {
	var out []Pyramid
	return out, c.do(ctx, http.MethodGet, "/api/v1/tiles", nil, &out)
}

// Markers loads a sensor GeoJSON; an empty path uses the server default.
func (c *Client) Markers(ctx context.Context, path string) (*Markers, error) {
	var out Markers
	p := "/api/v1/markers"
	if path != "" {
		p += "?path=" + url.QueryEscape(path)
	}
	return &out, c.do(ctx, http.MethodGet, p, nil, &out)
}

// CenterPivot returns the corrected GeoJSON of a center-pivot year.
func (c *Client) CenterPivot(ctx context.Context, year int, clip bool) (json.RawMessage, error) {
	var out json.RawMessage
	return out, c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/overlays/center-pivot/%d?clip=%t", year, clip), nil, &out)
}

func (c *Client) SensorSeries(ctx context.Context, id string, q SeriesQuery) (*Series, error) {
	v := url.Values{}
	for _, name := range q.Variables {
		v.Add("variable", name)
	}
	if q.Start != "" {
		v.Set("start", q.Start)
	}
	if q.End != "" {
		v.Set("end", q.End)
	}
	p := "/api/v1/series/sensors/" + url.PathEscape(id)
	if len(v) > 0 {
		p += "?" + v.Encode()
	}
	var out Series
	return &out, c.do(ctx, http.MethodGet, p, nil, &out)
}

func (c *Client) FieldSeries(ctx context.Context, id string) (*Series, error) {
	var out Series
	return &out, c.do(ctx, http.MethodGet, "/api/v1/series/fields/"+url.PathEscape(id), nil, &out)
}

func (c *Client) CreateSession(ctx context.Context) (*Session, error) {
	var out Session
	return &out, c.do(ctx, http.MethodPost, "/api/v1/sessions", nil, &out)
}

func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/sessions/"+url.PathEscape(id), nil, nil)
}

// do sends body as JSON and decodes the response into out. A *[]byte out
// receives the raw body.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		e := &Error{Status: resp.StatusCode, Title: http.StatusText(resp.StatusCode)}
		_ = json.Unmarshal(data, e)
		return e
	}
	switch o := out.(type) {
	case nil:
		return nil
	case *[]byte:
		*o = data
		return nil
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
