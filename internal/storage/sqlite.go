package storage

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO required)
)

const schema = `
CREATE TABLE IF NOT EXISTS history (
    id TEXT PRIMARY KEY,
    ts_start INTEGER NOT NULL,
    ts_end INTEGER,
    action TEXT NOT NULL,
    dialect TEXT,
    status TEXT NOT NULL DEFAULT 'in_flight',
    error_class TEXT,

    duration_ms INTEGER DEFAULT 0,
    query_chars INTEGER DEFAULT 0,
    response_bytes INTEGER DEFAULT 0,
    cached INTEGER DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_history_ts_start ON history(ts_start);
CREATE INDEX IF NOT EXISTS idx_history_action_ts ON history(action, ts_start);
CREATE INDEX IF NOT EXISTS idx_history_status_ts ON history(status, ts_start);
`

const columns = `id, ts_start, ts_end, action, dialect, status, error_class,
	duration_ms, query_chars, response_bytes, cached`

// SQLiteStore implements Store using SQLite with WAL mode.
type SQLiteStore struct {
	db      *sql.DB
	maxRows int
	pruneMu sync.Mutex
	pruneWg sync.WaitGroup
	logger  *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// It enables WAL mode for better concurrent performance.
func NewSQLiteStore(path string, maxRows int, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite works best with single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &SQLiteStore{
		db:      db,
		maxRows: maxRows,
		logger:  logger,
	}, nil
}

// Insert creates a new history record.
func (s *SQLiteStore) Insert(rec *Record) error {
	_, err := s.db.Exec(`INSERT INTO history (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TSStart, rec.TSEnd, rec.Action, rec.Dialect, string(rec.Status), rec.ErrorClass,
		rec.DurationMs, rec.QueryChars, rec.ResponseBytes, boolToInt(rec.Cached),
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}

	// Best effort, non-blocking.
	s.pruneWg.Add(1)
	go func() {
		defer s.pruneWg.Done()
		s.maybePrune()
	}()

	return nil
}

// Update modifies an existing record.
func (s *SQLiteStore) Update(id string, upd RecordUpdate) error {
	var sets []string
	var args []any

	if upd.TSEnd != nil {
		sets = append(sets, "ts_end = ?")
		args = append(args, *upd.TSEnd)
	}
	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*upd.Status))
	}
	if upd.Dialect != nil {
		sets = append(sets, "dialect = ?")
		args = append(args, *upd.Dialect)
	}
	if upd.QueryChars != nil {
		sets = append(sets, "query_chars = ?")
		args = append(args, *upd.QueryChars)
	}
	if upd.ErrorClass != nil {
		sets = append(sets, "error_class = ?")
		args = append(args, *upd.ErrorClass)
	}
	if upd.DurationMs != nil {
		sets = append(sets, "duration_ms = ?")
		args = append(args, *upd.DurationMs)
	}
	if upd.ResponseBytes != nil {
		sets = append(sets, "response_bytes = ?")
		args = append(args, *upd.ResponseBytes)
	}
	if upd.Cached != nil {
		sets = append(sets, "cached = ?")
		args = append(args, boolToInt(*upd.Cached))
	}

	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	query := "UPDATE history SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	return nil
}

// GetByID retrieves a single record. It returns nil, nil when absent.
func (s *SQLiteStore) GetByID(id string) (*Record, error) {
	row := s.db.QueryRow(`SELECT `+columns+` FROM history WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// List returns records matching the filter options, newest first.
func (s *SQLiteStore) List(opts ListOptions) ([]Record, error) {
	var where []string
	var args []any

	if opts.Window > 0 {
		where = append(where, "ts_start >= ?")
		args = append(args, time.Now().Add(-opts.Window).UnixMilli())
	}
	if opts.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*opts.Status))
	}
	if opts.Action != "" {
		where = append(where, "action = ?")
		args = append(args, opts.Action)
	}

	query := `SELECT ` + columns + ` FROM history`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts_start DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = -1 // no limit
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, opts.Offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Overview returns aggregate statistics.
func (s *SQLiteStore) Overview(window time.Duration) (*Overview, error) {
	cutoff := time.Now().Add(-window).UnixMilli()

	var o Overview
	var avg sql.NullFloat64
	err := s.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status IN ('error', 'canceled') THEN 1 ELSE 0 END), 0),
			AVG(CASE WHEN status != 'in_flight' AND duration_ms > 0 THEN duration_ms END),
			COALESCE(SUM(response_bytes), 0),
			COALESCE(SUM(cached), 0)
		FROM history WHERE ts_start >= ?
	`, cutoff).Scan(&o.TotalRequests, &o.SuccessCount, &o.ErrorCount, &avg, &o.TotalBytes, &o.CacheHits)
	if err != nil {
		return nil, fmt.Errorf("overview query: %w", err)
	}

	if o.TotalRequests > 0 {
		o.SuccessRate = float64(o.SuccessCount) / float64(o.TotalRequests)
	}
	if avg.Valid {
		o.AvgDurationMs = int(avg.Float64)
	}

	// p95 via OFFSET into the sorted durations
	var n int
	err = s.db.QueryRow(`
		SELECT COUNT(*) FROM history
		WHERE ts_start >= ? AND status != 'in_flight' AND duration_ms > 0
	`, cutoff).Scan(&n)
	if err != nil {
		return nil, fmt.Errorf("p95 count: %w", err)
	}
	if n > 0 {
		idx := int(float64(n) * 0.95)
		if idx >= n {
			idx = n - 1
		}
		err = s.db.QueryRow(`
			SELECT duration_ms FROM history
			WHERE ts_start >= ? AND status != 'in_flight' AND duration_ms > 0
			ORDER BY duration_ms ASC LIMIT 1 OFFSET ?
		`, cutoff, idx).Scan(&o.P95DurationMs)
		if err != nil {
			return nil, fmt.Errorf("p95 query: %w", err)
		}
	}

	return &o, nil
}

// ActionStats returns per-action statistics, busiest first.
func (s *SQLiteStore) ActionStats(window time.Duration) ([]ActionStat, error) {
	cutoff := time.Now().Add(-window).UnixMilli()

	rows, err := s.db.Query(`
		SELECT
			action,
			COUNT(*) AS n,
			AVG(CASE WHEN status = 'success' THEN 1.0 ELSE 0.0 END),
			COALESCE(AVG(CASE WHEN status != 'in_flight' THEN duration_ms END), 0),
			AVG(cached * 1.0)
		FROM history
		WHERE ts_start >= ?
		GROUP BY action
		ORDER BY n DESC, action ASC
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("action stats query: %w", err)
	}
	defer rows.Close()

	var stats []ActionStat
	for rows.Next() {
		var as ActionStat
		var avgMs float64
		if err := rows.Scan(&as.Action, &as.RequestCount, &as.SuccessRate, &avgMs, &as.CacheHitRate); err != nil {
			return nil, fmt.Errorf("scan action stat: %w", err)
		}
		as.AvgDurationMs = int(avgMs)
		stats = append(stats, as)
	}
	return stats, rows.Err()
}

// Series returns time-binned data for charts.
func (s *SQLiteStore) Series(opts SeriesOptions) ([]DataPoint, error) {
	bins, interval := GetBinConfig(opts.Window)
	cutoff := time.Now().Add(-opts.Window)

	points := make([]DataPoint, bins)
	for i := 0; i < bins; i++ {
		points[i] = DataPoint{Timestamp: cutoff.Add(time.Duration(i) * interval).UnixMilli()}
	}

	where := "ts_start >= ?"
	args := []any{cutoff.UnixMilli()}
	if opts.Action != "" {
		where += " AND action = ?"
		args = append(args, opts.Action)
	}

	var query string
	switch opts.Metric {
	case MetricRequestCount:
		query = `SELECT ts_start, 1 FROM history WHERE ` + where
	case MetricDurationP95:
		query = `SELECT ts_start, duration_ms FROM history WHERE ` + where + ` AND status != 'in_flight'`
	case MetricErrorRate:
		query = `SELECT ts_start, CASE WHEN status = 'success' THEN 0 ELSE 1 END FROM history WHERE ` +
			where + ` AND status != 'in_flight'`
	default:
		return points, nil
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("series query: %w", err)
	}
	defer rows.Close()

	binValues := make([][]float64, bins)
	for rows.Next() {
		var tsStart int64
		var value float64
		if err := rows.Scan(&tsStart, &value); err != nil {
			return nil, fmt.Errorf("scan series row: %w", err)
		}
		idx := int((tsStart - cutoff.UnixMilli()) / interval.Milliseconds())
		if idx >= 0 && idx < bins {
			binValues[idx] = append(binValues[idx], value)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, vals := range binValues {
		if len(vals) > 0 {
			points[i].Value = aggregateBin(opts.Metric, vals)
		}
	}
	return points, nil
}

// InFlightCount returns the number of in-flight records.
func (s *SQLiteStore) InFlightCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM history WHERE status = 'in_flight'`).Scan(&count)
	return count, err
}

// Close waits for pending prunes and closes the database.
func (s *SQLiteStore) Close() error {
	s.pruneWg.Wait()
	return s.db.Close()
}

// maybePrune deletes the oldest rows once the table exceeds maxRows.
func (s *SQLiteStore) maybePrune() {
	s.pruneMu.Lock()
	defer s.pruneMu.Unlock()

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM history`).Scan(&count); err != nil {
		s.logger.Error("prune count query failed", "err", err)
		return
	}
	if count <= s.maxRows {
		return
	}

	toDelete := count - s.maxRows
	const batchSize = 500
	if toDelete > batchSize {
		toDelete = batchSize
	}

	_, err := s.db.Exec(`
		DELETE FROM history WHERE id IN (
			SELECT id FROM history ORDER BY ts_start ASC LIMIT ?
		)
	`, toDelete)
	if err != nil {
		s.logger.Error("prune failed", "err", err)
		return
	}
	s.logger.Debug("pruned old history", "deleted", toDelete)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var tsEnd sql.NullInt64
	var dialect, status, errorClass sql.NullString
	var cached int

	err := row.Scan(&rec.ID, &rec.TSStart, &tsEnd, &rec.Action, &dialect, &status, &errorClass,
		&rec.DurationMs, &rec.QueryChars, &rec.ResponseBytes, &cached)
	if err != nil {
		return nil, err
	}

	if tsEnd.Valid {
		v := tsEnd.Int64
		rec.TSEnd = &v
	}
	rec.Dialect = dialect.String
	rec.Status = Status(status.String)
	rec.ErrorClass = errorClass.String
	rec.Cached = cached != 0
	return &rec, nil
}
