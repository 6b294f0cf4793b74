// Package history is the append-only executed-query log: the HistoryStore
// component, plus saved-search CRUD.
package history

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/google/uuid"

	"github.com/docmind/docmind-core/internal/models"
)

// PopularQuery is one row of Popular's aggregate-over-a-window result.
type PopularQuery struct {
	QueryText  string
	Count      int64
	AvgResults float64
	AvgMs      float64
}

// ModeStats aggregates count/avg_results/avg_ms for one search mode.
type ModeStats struct {
	Count      int64
	AvgResults float64
	AvgMs      float64
}

// PerformanceStats summarizes execution time and result count over a window.
type PerformanceStats struct {
	AvgMs      float64
	MinMs      int64
	MaxMs      int64
	AvgResults float64
}

// Statistics is the aggregate view returned by Store.Statistics.
type Statistics struct {
	Total       int64
	ByMode      map[models.SearchMode]ModeStats
	DailyCounts map[string]int64
	Perf        PerformanceStats
}

// FailedQuery is one zero-result query grouped by text and mode.
type FailedQuery struct {
	QueryText    string
	Mode         models.SearchMode
	FailureCount int64
	LastAttempt  time.Time
}

// Store is the HistoryStore: an append-only SQLite-backed log of executed
// queries, plus saved searches.
type Store struct {
	db *sql.DB
}

// Open creates or opens the history database at dbPath.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, models.NewCoreError(models.ErrStorage, err, "create history database directory %s", dir)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, models.NewCoreError(models.ErrStorage, err, "open history database %s", dbPath)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, models.NewCoreError(models.ErrStorage, err, "enable WAL mode")
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, models.NewCoreError(models.ErrStorage, err, "initialize history schema")
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS search_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query_text TEXT NOT NULL,
		mode TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		result_count INTEGER NOT NULL,
		execution_time_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_search_history_timestamp ON search_history(timestamp);
	CREATE INDEX IF NOT EXISTS idx_search_history_query_text ON search_history(query_text);

	CREATE TABLE IF NOT EXISTS saved_searches (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		query_text TEXT NOT NULL,
		mode TEXT NOT NULL,
		options_json TEXT,
		created_at TIMESTAMP NOT NULL,
		last_used_at TIMESTAMP,
		use_count INTEGER NOT NULL DEFAULT 0
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Record inserts one executed-query entry with the current timestamp.
func (s *Store) Record(ctx context.Context, text string, mode models.SearchMode, resultCount int, executionMs int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO search_history (query_text, mode, timestamp, result_count, execution_time_ms) VALUES (?, ?, ?, ?, ?)`,
		text, string(mode), time.Now().UTC(), resultCount, executionMs,
	)
	if err != nil {
		return models.NewCoreError(models.ErrStorage, err, "record search history")
	}
	return nil
}

// Recent returns the newest limit history records.
func (s *Store) Recent(ctx context.Context, limit int) ([]*models.SearchHistoryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query_text, mode, timestamp, result_count, execution_time_ms
		 FROM search_history ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, models.NewCoreError(models.ErrStorage, err, "query recent history")
	}
	defer rows.Close()

	var records []*models.SearchHistoryRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, models.NewCoreError(models.ErrStorage, err, "scan history record")
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Popular aggregates query frequency over the last `days` days.
func (s *Store) Popular(ctx context.Context, days, limit int) ([]PopularQuery, error) {
	if limit <= 0 {
		limit = 20
	}
	since := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	rows, err := s.db.QueryContext(ctx, `
		SELECT query_text, COUNT(*) as search_count,
		       AVG(result_count) as avg_results,
		       AVG(execution_time_ms) as avg_ms
		FROM search_history
		WHERE timestamp >= ?
		GROUP BY query_text
		ORDER BY search_count DESC, avg_results DESC
		LIMIT ?`, since, limit)
	if err != nil {
		return nil, models.NewCoreError(models.ErrStorage, err, "query popular queries")
	}
	defer rows.Close()

	var out []PopularQuery
	for rows.Next() {
		var p PopularQuery
		if err := rows.Scan(&p.QueryText, &p.Count, &p.AvgResults, &p.AvgMs); err != nil {
			return nil, models.NewCoreError(models.ErrStorage, err, "scan popular query row")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SuggestionsFromHistory returns distinct historical queries that start with
// prefix and are longer than it, sorted by frequency desc then length asc.
func (s *Store) SuggestionsFromHistory(ctx context.Context, prefix string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT query_text, COUNT(*) as frequency
		FROM search_history
		WHERE query_text LIKE ? AND LENGTH(query_text) > ?
		GROUP BY query_text
		ORDER BY frequency DESC, LENGTH(query_text) ASC
		LIMIT ?`, prefix+"%", len(prefix), limit)
	if err != nil {
		return nil, models.NewCoreError(models.ErrStorage, err, "query history suggestions")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var q string
		var freq int64
		if err := rows.Scan(&q, &freq); err != nil {
			return nil, models.NewCoreError(models.ErrStorage, err, "scan history suggestion row")
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// Statistics aggregates totals, per-mode counts, daily counts, and
// performance stats over the last `days` days.
func (s *Store) Statistics(ctx context.Context, days int) (*Statistics, error) {
	since := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	stats := &Statistics{ByMode: make(map[models.SearchMode]ModeStats), DailyCounts: make(map[string]int64)}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM search_history WHERE timestamp >= ?`, since).Scan(&stats.Total); err != nil {
		return nil, models.NewCoreError(models.ErrStorage, err, "aggregate total searches")
	}

	modeRows, err := s.db.QueryContext(ctx, `
		SELECT mode, COUNT(*), AVG(result_count), AVG(execution_time_ms)
		FROM search_history WHERE timestamp >= ? GROUP BY mode`, since)
	if err != nil {
		return nil, models.NewCoreError(models.ErrStorage, err, "aggregate by-mode stats")
	}
	for modeRows.Next() {
		var mode string
		var ms ModeStats
		if err := modeRows.Scan(&mode, &ms.Count, &ms.AvgResults, &ms.AvgMs); err != nil {
			modeRows.Close()
			return nil, models.NewCoreError(models.ErrStorage, err, "scan by-mode row")
		}
		stats.ByMode[models.SearchMode(mode)] = ms
	}
	if err := modeRows.Err(); err != nil {
		modeRows.Close()
		return nil, err
	}
	modeRows.Close()

	dailyRows, err := s.db.QueryContext(ctx, `
		SELECT DATE(timestamp) as d, COUNT(*) FROM search_history
		WHERE timestamp >= ? GROUP BY d ORDER BY d DESC`, since)
	if err != nil {
		return nil, models.NewCoreError(models.ErrStorage, err, "aggregate daily counts")
	}
	for dailyRows.Next() {
		var day string
		var count int64
		if err := dailyRows.Scan(&day, &count); err != nil {
			dailyRows.Close()
			return nil, models.NewCoreError(models.ErrStorage, err, "scan daily count row")
		}
		stats.DailyCounts[day] = count
	}
	if err := dailyRows.Err(); err != nil {
		dailyRows.Close()
		return nil, err
	}
	dailyRows.Close()

	var avgMs, avgResults sql.NullFloat64
	var minMs, maxMs sql.NullInt64
	err = s.db.QueryRowContext(ctx, `
		SELECT AVG(execution_time_ms), MIN(execution_time_ms), MAX(execution_time_ms), AVG(result_count)
		FROM search_history WHERE timestamp >= ?`, since).Scan(&avgMs, &minMs, &maxMs, &avgResults)
	if err != nil {
		return nil, models.NewCoreError(models.ErrStorage, err, "aggregate performance stats")
	}
	stats.Perf = PerformanceStats{AvgMs: avgMs.Float64, MinMs: minMs.Int64, MaxMs: maxMs.Int64, AvgResults: avgResults.Float64}

	return stats, nil
}

// Failed returns queries with zero results over the last `days` days,
// grouped by query text and mode.
func (s *Store) Failed(ctx context.Context, days, limit int) ([]FailedQuery, error) {
	if limit <= 0 {
		limit = 20
	}
	since := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	rows, err := s.db.QueryContext(ctx, `
		SELECT query_text, mode, COUNT(*) as failure_count, MAX(timestamp) as last_attempt
		FROM search_history
		WHERE timestamp >= ? AND result_count = 0
		GROUP BY query_text, mode
		ORDER BY failure_count DESC, last_attempt DESC
		LIMIT ?`, since, limit)
	if err != nil {
		return nil, models.NewCoreError(models.ErrStorage, err, "query failed searches")
	}
	defer rows.Close()

	var out []FailedQuery
	for rows.Next() {
		var f FailedQuery
		var mode, lastAttempt string
		// MAX(timestamp) is an expression column with no declared type, so
		// the driver hands it back as text rather than a time.Time.
		if err := rows.Scan(&f.QueryText, &mode, &f.FailureCount, &lastAttempt); err != nil {
			return nil, models.NewCoreError(models.ErrStorage, err, "scan failed search row")
		}
		for _, layout := range []string{"2006-01-02 15:04:05.999999999-07:00", time.RFC3339Nano} {
			if t, err := time.Parse(layout, lastAttempt); err == nil {
				f.LastAttempt = t
				break
			}
		}
		f.Mode = models.SearchMode(mode)
		out = append(out, f)
	}
	return out, rows.Err()
}

// ClearOlderThan deletes history rows older than `days` days and returns the
// number of rows removed.
func (s *Store) ClearOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	res, err := s.db.ExecContext(ctx, `DELETE FROM search_history WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, models.NewCoreError(models.ErrStorage, err, "clear old history")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// SaveSearch inserts or replaces a saved search identified by its unique name.
func (s *Store) SaveSearch(ctx context.Context, name, queryText string, mode models.SearchMode, optionsJSON string) (*models.SavedSearch, error) {
	existing, err := s.savedSearchByName(ctx, name)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if existing != nil {
		_, err := s.db.ExecContext(ctx, `
			UPDATE saved_searches SET query_text = ?, mode = ?, options_json = ? WHERE id = ?`,
			queryText, string(mode), optionsJSON, existing.ID)
		if err != nil {
			return nil, models.NewCoreError(models.ErrStorage, err, "update saved search %s", name)
		}
		return s.SavedSearchByID(ctx, existing.ID)
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO saved_searches (id, name, query_text, mode, options_json, created_at, use_count)
		VALUES (?, ?, ?, ?, ?, ?, 0)`,
		id, name, queryText, string(mode), optionsJSON, now)
	if err != nil {
		return nil, models.NewCoreError(models.ErrStorage, err, "save search %s", name)
	}
	return s.SavedSearchByID(ctx, id)
}

// ListSavedSearches returns all saved searches sorted by (use_count desc, last_used_at desc).
func (s *Store) ListSavedSearches(ctx context.Context) ([]*models.SavedSearch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, query_text, mode, options_json, created_at, last_used_at, use_count
		FROM saved_searches ORDER BY use_count DESC, last_used_at DESC`)
	if err != nil {
		return nil, models.NewCoreError(models.ErrStorage, err, "list saved searches")
	}
	defer rows.Close()

	var out []*models.SavedSearch
	for rows.Next() {
		s, err := scanSavedSearch(rows)
		if err != nil {
			return nil, models.NewCoreError(models.ErrStorage, err, "scan saved search row")
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UseSavedSearch atomically increments the use counter and updates last_used_at.
func (s *Store) UseSavedSearch(ctx context.Context, id string) (*models.SavedSearch, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `UPDATE saved_searches SET use_count = use_count + 1, last_used_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return nil, models.NewCoreError(models.ErrStorage, err, "record saved search use %s", id)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return nil, models.NotFound("saved_search", id)
	}
	return s.SavedSearchByID(ctx, id)
}

// RenameSavedSearch updates the name of a saved search.
func (s *Store) RenameSavedSearch(ctx context.Context, id, newName string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE saved_searches SET name = ? WHERE id = ?`, newName, id)
	if err != nil {
		return models.NewCoreError(models.ErrStorage, err, "rename saved search %s", id)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return models.NotFound("saved_search", id)
	}
	return nil
}

// DeleteSavedSearch removes a saved search and reports whether a row was removed.
func (s *Store) DeleteSavedSearch(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM saved_searches WHERE id = ?`, id)
	if err != nil {
		return false, models.NewCoreError(models.ErrStorage, err, "delete saved search %s", id)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// SavedSearchByID returns one saved search, or nil if no row matches.
func (s *Store) SavedSearchByID(ctx context.Context, id string) (*models.SavedSearch, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, query_text, mode, options_json, created_at, last_used_at, use_count
		FROM saved_searches WHERE id = ?`, id)
	ss, err := scanSavedSearch(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, models.NewCoreError(models.ErrStorage, err, "get saved search %s", id)
	}
	return ss, nil
}

func (s *Store) savedSearchByName(ctx context.Context, name string) (*models.SavedSearch, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, query_text, mode, options_json, created_at, last_used_at, use_count
		FROM saved_searches WHERE name = ?`, name)
	ss, err := scanSavedSearch(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, models.NewCoreError(models.ErrStorage, err, "look up saved search by name %s", name)
	}
	return ss, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*models.SearchHistoryRecord, error) {
	var r models.SearchHistoryRecord
	var mode string
	var ts time.Time
	if err := row.Scan(&r.ID, &r.QueryText, &mode, &ts, &r.ResultCount, &r.ExecutionTimeMs); err != nil {
		return nil, err
	}
	r.Mode = models.SearchMode(mode)
	r.Timestamp = ts.Format(time.RFC3339)
	return &r, nil
}

func scanSavedSearch(row scanner) (*models.SavedSearch, error) {
	var s models.SavedSearch
	var mode string
	var createdAt time.Time
	var lastUsedAt sql.NullTime
	var optionsJSON sql.NullString
	if err := row.Scan(&s.ID, &s.Name, &s.QueryText, &mode, &optionsJSON, &createdAt, &lastUsedAt, &s.UseCount); err != nil {
		return nil, err
	}
	s.Mode = models.SearchMode(mode)
	s.CreatedAt = createdAt.Format(time.RFC3339)
	if lastUsedAt.Valid {
		s.LastUsedAt = lastUsedAt.Time.Format(time.RFC3339)
	}
	if optionsJSON.Valid {
		s.OptionsJSON = optionsJSON.String
	}
	return &s, nil
}
