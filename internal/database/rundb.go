package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/proxycrawl/internal/model"
)

// FileName is the name of the database file inside the database directory.
const FileName = "proxycrawl.db"

// ErrRunNotFound is returned when no run with the requested ID is stored.
var ErrRunNotFound = errors.New("run not found")

// RunDB provides SQLite-based storage for crawl runs.
//
// Design decision: The complete report is stored as JSON next to normalized
// seed and comparison rows. The JSON restores a run exactly for reports and
// diffs; the rows answer cross-run questions such as the history of one URL.
type RunDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures RunDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging. Shards of one run write from
	// separate goroutines, so this is recommended.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a RunDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*RunDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (run a crawl first)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file; mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	rdb := &RunDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := rdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return rdb, nil
}

// Path returns the database file path.
func (rdb *RunDB) Path() string {
	return rdb.dbPath
}

// Close closes the database connection.
func (rdb *RunDB) Close() error {
	return rdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (rdb *RunDB) createTables() error {
	schema := `
	-- One row per crawl run; report_json restores the full report
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		worker_id TEXT NOT NULL,
		proxy_base TEXT,
		engine TEXT,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		cancelled INTEGER DEFAULT 0,
		error TEXT,
		seed_count INTEGER DEFAULT 0,
		regression_count INTEGER DEFAULT 0,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	-- Seed results record how each seed's traversal ended
	CREATE TABLE IF NOT EXISTS seed_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		seed TEXT NOT NULL,
		target_url TEXT NOT NULL,
		status TEXT NOT NULL,
		branch_factor INTEGER,
		links_found INTEGER,
		links_followed INTEGER,
		links_skipped INTEGER,
		error TEXT,
		started_at TEXT,
		finished_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_seeds_run ON seed_results(run_id);
	CREATE INDEX IF NOT EXISTS idx_seeds_status ON seed_results(status);

	-- Comparisons store every page-size comparison, skipped ones included
	CREATE TABLE IF NOT EXISTS comparisons (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		seed_id INTEGER NOT NULL,
		url TEXT NOT NULL,
		direct_url TEXT,
		proxied_height INTEGER,
		direct_height INTEGER,
		deviation REAL,
		tolerance REAL,
		regression INTEGER DEFAULT 0,
		skipped INTEGER DEFAULT 0,
		text_match INTEGER DEFAULT 0,
		compared_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_cmp_run ON comparisons(run_id);
	CREATE INDEX IF NOT EXISTS idx_cmp_url ON comparisons(url);
	CREATE INDEX IF NOT EXISTS idx_cmp_regression ON comparisons(regression);
	`

	_, err := rdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveRunReport stores a run with its seeds and comparisons in one
// transaction. Saving a run whose ID is already stored replaces it.
func (rdb *RunDB) SaveRunReport(ctx context.Context, report *model.RunReport) (err error) {
	if report == nil {
		return errors.New("report is nil")
	}

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}

	tx, err := rdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range []string{
		"DELETE FROM comparisons WHERE run_id = ?",
		"DELETE FROM seed_results WHERE run_id = ?",
		"DELETE FROM runs WHERE id = ?",
	} {
		if _, err = tx.ExecContext(ctx, stmt, report.ID); err != nil {
			return fmt.Errorf("failed to replace run %s: %w", report.ID, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO runs (id, worker_id, proxy_base, engine, started_at, finished_at,
		cancelled, error, seed_count, regression_count, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.ID,
		report.WorkerID,
		report.ProxyBase,
		report.Engine,
		formatTimestamp(report.StartedAt),
		formatTimestamp(report.FinishedAt),
		report.Cancelled,
		report.ErrorMessage,
		len(report.Seeds),
		len(report.Regressions()),
		string(reportJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for i := range report.Seeds {
		if err = insertSeed(ctx, tx, report.ID, &report.Seeds[i]); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

func insertSeed(ctx context.Context, tx *sql.Tx, runID string, seed *model.SeedResult) error {
	result, err := tx.ExecContext(ctx, `
	INSERT INTO seed_results (run_id, seed, target_url, status, branch_factor,
		links_found, links_followed, links_skipped, error, started_at, finished_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		runID,
		seed.Seed,
		seed.TargetURL,
		seed.Status.String(),
		seed.BranchFactor,
		seed.LinksFound,
		seed.LinksFollowed,
		seed.LinksSkipped,
		seed.Error,
		formatTimestamp(seed.StartedAt),
		formatTimestamp(seed.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert seed result: %w", err)
	}

	seedID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read seed result id: %w", err)
	}

	for _, c := range seed.Comparisons {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO comparisons (run_id, seed_id, url, direct_url, proxied_height,
			direct_height, deviation, tolerance, regression, skipped, text_match, compared_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			runID,
			seedID,
			c.URL,
			c.DirectURL,
			c.ProxiedHeight,
			c.DirectHeight,
			c.Deviation,
			c.Tolerance,
			c.Regression,
			c.Skipped,
			c.TextMatch,
			formatTimestamp(c.ComparedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert comparison: %w", err)
		}
	}
	return nil
}

// GetRunReport retrieves a stored run by ID.
// It returns ErrRunNotFound when no such run exists.
func (rdb *RunDB) GetRunReport(ctx context.Context, id string) (*model.RunReport, error) {
	var reportJSON string
	err := rdb.db.QueryRowContext(ctx, "SELECT report_json FROM runs WHERE id = ?", id).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var report model.RunReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

// RunMetadata contains summary information about a stored run.
// This is used for listing history without loading full reports.
type RunMetadata struct {
	// ID is the ULID of the run.
	ID string `json:"id"`

	// WorkerID identifies the worker that produced the run.
	WorkerID string `json:"worker_id"`

	// ProxyBase is the proxy prefix under test.
	ProxyBase string `json:"proxy_base,omitempty"`

	// Engine is the browser engine used.
	Engine string `json:"engine,omitempty"`

	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Cancelled is true when the run stopped early.
	Cancelled bool `json:"cancelled"`

	// Error is the message of the error that stopped the run, if any.
	Error string `json:"error,omitempty"`

	// Seeds is the number of seeds processed.
	Seeds int `json:"seeds"`

	// Regressions is the number of regressions observed.
	Regressions int `json:"regressions"`
}

// ListRuns returns stored runs, newest first. A limit of zero or less
// returns every run.
func (rdb *RunDB) ListRuns(ctx context.Context, limit int) ([]RunMetadata, error) {
	query := `
	SELECT id, worker_id, proxy_base, engine, started_at, finished_at,
		cancelled, error, seed_count, regression_count
	FROM runs
	ORDER BY started_at DESC, id DESC
	`
	args := make([]any, 0, 1)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := rdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var results []RunMetadata
	for rows.Next() {
		var meta RunMetadata
		var proxyBase, engine, finishedAt, runErr sql.NullString
		var startedAt string

		if err := rows.Scan(
			&meta.ID,
			&meta.WorkerID,
			&proxyBase,
			&engine,
			&startedAt,
			&finishedAt,
			&meta.Cancelled,
			&runErr,
			&meta.Seeds,
			&meta.Regressions,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		meta.ProxyBase = proxyBase.String
		meta.Engine = engine.String
		meta.Error = runErr.String
		meta.StartedAt = parseTimestamp(startedAt)
		meta.FinishedAt = parseTimestamp(finishedAt.String)
		results = append(results, meta)
	}

	return results, rows.Err()
}

// ListRegressions returns the regressions of one run ordered by URL.
func (rdb *RunDB) ListRegressions(ctx context.Context, runID string) ([]model.Comparison, error) {
	return rdb.queryComparisons(ctx, `
	SELECT url, direct_url, proxied_height, direct_height, deviation, tolerance,
		regression, skipped, text_match, compared_at
	FROM comparisons
	WHERE run_id = ? AND regression = 1
	ORDER BY url, id
	`, runID)
}

// URLObservation is one comparison of a URL together with the run that made it.
type URLObservation struct {
	RunID      string           `json:"run_id"`
	Comparison model.Comparison `json:"comparison"`
}

// URLHistory returns every comparison made for url across runs, newest first.
// Both the proxied URL and its direct form are matched.
func (rdb *RunDB) URLHistory(ctx context.Context, url string) ([]URLObservation, error) {
	rows, err := rdb.db.QueryContext(ctx, `
	SELECT run_id, url, direct_url, proxied_height, direct_height, deviation, tolerance,
		regression, skipped, text_match, compared_at
	FROM comparisons
	WHERE url = ? OR direct_url = ?
	ORDER BY compared_at DESC, id DESC
	`, url, url)
	if err != nil {
		return nil, fmt.Errorf("failed to query url history: %w", err)
	}
	defer rows.Close()

	var results []URLObservation
	for rows.Next() {
		var obs URLObservation
		c, err := scanComparison(rows, &obs.RunID)
		if err != nil {
			return nil, err
		}
		obs.Comparison = c
		results = append(results, obs)
	}
	return results, rows.Err()
}

func (rdb *RunDB) queryComparisons(ctx context.Context, query string, args ...any) ([]model.Comparison, error) {
	rows, err := rdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query comparisons: %w", err)
	}
	defer rows.Close()

	var results []model.Comparison
	for rows.Next() {
		c, err := scanComparison(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// scanComparison scans a comparison row. Any prefix destinations are
// scanned from the leading columns.
func scanComparison(rows *sql.Rows, prefix ...any) (model.Comparison, error) {
	var c model.Comparison
	var directURL, comparedAt sql.NullString

	dest := append(prefix, //nolint:gocritic // prefix is owned by the caller's variadic slice
		&c.URL,
		&directURL,
		&c.ProxiedHeight,
		&c.DirectHeight,
		&c.Deviation,
		&c.Tolerance,
		&c.Regression,
		&c.Skipped,
		&c.TextMatch,
		&comparedAt,
	)
	if err := rows.Scan(dest...); err != nil {
		return model.Comparison{}, fmt.Errorf("failed to scan comparison: %w", err)
	}
	c.DirectURL = directURL.String
	c.ComparedAt = parseTimestamp(comparedAt.String)
	return c, nil
}

// formatTimestamp stores times as RFC3339 in UTC; the zero time is stored
// as an empty string.
func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,          // written by formatTimestamp
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
