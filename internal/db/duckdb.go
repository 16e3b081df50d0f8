// Package db opens the embedded DuckDB database and exposes the sensor and
// NDVI CSV directories to SQL as views.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb"
)

// Config holds database configuration.
type Config struct {
	DataDir string
	DBName  string
	// Extensions are installed and loaded best-effort; installing needs
	// network access on first use.
	Extensions []string
}

// Open opens (or creates) <DataDir>/duckdb/<DBName>.duckdb.
func Open(cfg Config) (*sql.DB, error) {
	duckdbDir := filepath.Join(cfg.DataDir, "duckdb")
	if err := os.MkdirAll(duckdbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create duckdb directory: %w", err)
	}

	dbPath := filepath.Join(duckdbDir, cfg.DBName+".duckdb")
	conn, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", dbPath, err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening %s: %w", dbPath, err)
	}

	for _, ext := range cfg.Extensions {
		if _, err := conn.Exec(fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext)); err != nil {
			slog.Warn("duckdb extension unavailable", "extension", ext, "error", err)
		}
	}
	return conn, nil
}

// CSVView names a directory of CSV files exposed as one view.
type CSVView struct {
	Name string
	Dir  string
}

// RegisterCSVViews creates or replaces one view per entry over every
// *.csv file of its directory, with a filename column. Directories with no
// CSV files are skipped. It returns the names of the views created; a
// failing view is logged and skipped.
func RegisterCSVViews(ctx context.Context, conn *sql.DB, views []CSVView) []string {
	var created []string
	for _, v := range views {
		matches, _ := filepath.Glob(filepath.Join(v.Dir, "*.csv"))
		if len(matches) == 0 {
			slog.Info("no CSV files for view", "view", v.Name, "dir", v.Dir)
			continue
		}
		if _, err := conn.ExecContext(ctx, viewSQL(v)); err != nil {
			slog.Warn("creating CSV view failed", "view", v.Name, "dir", v.Dir, "error", err)
			continue
		}
		created = append(created, v.Name)
	}
	return created
}

func viewSQL(v CSVView) string {
	glob := filepath.ToSlash(filepath.Join(v.Dir, "*.csv"))
	return fmt.Sprintf(
		"CREATE OR REPLACE VIEW %s AS SELECT * FROM read_csv_auto(%s, filename = true, union_by_name = true)",
		quoteIdent(v.Name), quoteLiteral(glob))
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
