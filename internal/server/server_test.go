package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joeblew999/geoportal/internal/config"
)

func newTestServer(t *testing.T) (*httptest.Server, *config.Config) {
	t.Helper()
	cfg := config.Default(t.TempDir())
	for path, body := range map[string]string{
		filepath.Join(cfg.TilesDir, "10", "628", "437.png"):      "default",
		filepath.Join(cfg.YearTilesDir(2021), "9", "1", "2.png"): "year",
	} {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}

	srv, err := New(Config{Host: "localhost", Port: "0", App: cfg})
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return ts, cfg
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, string(b)
}

func TestNewServesPingAndPyramid(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := get(t, ts.URL+"/api/ping")
	if resp.StatusCode != http.StatusOK || body != "pong" {
		t.Fatalf("ping = %d %q", resp.StatusCode, body)
	}

	resp, body = get(t, ts.URL+"/api/v1/pyramid")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pyramid status = %d: %s", resp.StatusCode, body)
	}
	if !strings.Contains(body, `"state":"ready"`) || !strings.Contains(body, `"ext":"png"`) {
		t.Fatalf("pyramid body = %s", body)
	}
}

func TestTiles(t *testing.T) {
	ts, _ := newTestServer(t)

	tests := []struct {
		path   string
		status int
		body   string
	}{
		{"/tiles/raster/10/628/437.png", 200, "default"},
		{"/tiles/2021/9/1/2.png", 200, "year"},
		{"/tiles/2022/9/1/2.png", 404, "Did you run gdal2tiles for 2022?"},
		{"/tiles/abc/9/1/2.png", 404, ""},
		{"/tiles/2021/9/1", 404, ""},
		{"/tiles/2021/9/1/2", 404, "Did you run gdal2tiles for 2021?"},
		{"/tiles/2021/9/1/2.txt", 404, "Did you run gdal2tiles for 2021?"},
	}
	for _, tt := range tests {
		resp, body := get(t, ts.URL+tt.path)
		if resp.StatusCode != tt.status {
			t.Fatalf("%s: status = %d, want %d", tt.path, resp.StatusCode, tt.status)
		}
		if !strings.Contains(body, tt.body) {
			t.Fatalf("%s: body = %q, want %q", tt.path, body, tt.body)
		}
		if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
			t.Fatalf("%s: missing CORS header", tt.path)
		}
	}
}

func TestViewerPage(t *testing.T) {
	ts, cfg := newTestServer(t)

	resp, body := get(t, ts.URL+"/viewer")
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	for _, want := range []string{DatastarURL, "/api/v1/viewer/sessions", "sessionId", cfg.RasterLegend[0].Label} {
		if !strings.Contains(body, want) {
			t.Fatalf("page missing %q", want)
		}
	}
}

func TestRootRedirectsAndStatic(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := get(t, ts.URL+"/")
	if resp.StatusCode != 200 || !strings.Contains(body, "data-signals") {
		t.Fatalf("root did not land on the viewer: %d", resp.StatusCode)
	}
	if resp, _ := get(t, ts.URL+"/static/viewer.js"); resp.StatusCode != 200 {
		t.Fatalf("static status = %d", resp.StatusCode)
	}
	if resp, _ := get(t, ts.URL+"/nope"); resp.StatusCode != 404 {
		t.Fatalf("unknown path status = %d", resp.StatusCode)
	}
}

func TestOpenAPIAndLinks(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := get(t, ts.URL+"/health")
	if resp.StatusCode != 200 || !strings.Contains(body, `"ok"`) {
		t.Fatalf("health = %d %s", resp.StatusCode, body)
	}
	if !strings.Contains(resp.Header.Get("Link"), "service-desc") {
		t.Fatalf("Link = %q", resp.Header.Get("Link"))
	}

	resp, body = get(t, ts.URL+"/openapi.json")
	if resp.StatusCode != 200 {
		t.Fatalf("openapi status = %d", resp.StatusCode)
	}
	for _, p := range []string{"/api/v1/markers", "/api/v1/overlays", "/api/v1/sessions", "/api/v1/viewer/sessions"} {
		if !strings.Contains(body, p) {
			t.Fatalf("openapi missing %s", p)
		}
	}
}
