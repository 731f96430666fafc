//go:build !mips64 && !mips64le && !ppc64 && !s390x

package storage

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO required)
)

const schema = `
CREATE TABLE IF NOT EXISTS calls (
    id TEXT PRIMARY KEY,
    ts_start INTEGER NOT NULL,
    ts_end INTEGER,
    status TEXT NOT NULL DEFAULT 'in_flight',
    reason TEXT,
    route TEXT NOT NULL DEFAULT 'other',
    method TEXT,
    path TEXT,

    http_status INTEGER DEFAULT 0,
    duration_ms INTEGER DEFAULT 0,
    bytes_in INTEGER DEFAULT 0,
    bytes_out INTEGER DEFAULT 0,

    error TEXT
);

CREATE INDEX IF NOT EXISTS idx_calls_ts_start ON calls(ts_start);
CREATE INDEX IF NOT EXISTS idx_calls_route_ts ON calls(route, ts_start);
CREATE INDEX IF NOT EXISTS idx_calls_status_ts ON calls(status, ts_start);
`

const callColumns = `id, ts_start, ts_end, status, reason, route, method, path,
	http_status, duration_ms, bytes_in, bytes_out, error`

// SQLiteStore implements Store using SQLite with WAL mode.
type SQLiteStore struct {
	db      *sql.DB
	maxRows int
	pruneMu sync.Mutex
	logger  *slog.Logger

	mu      sync.Mutex
	closed  bool
	pruneWG sync.WaitGroup
}

// NewSQLiteStore creates a new SQLite store at the given path.
func NewSQLiteStore(path string, maxRows int, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	// modernc applies each _pragma on every new connection.
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// single writer
	db.SetMaxOpenConns(1)
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

// Insert creates a new call record.
func (s *SQLiteStore) Insert(c *Call) error {
	_, err := s.db.Exec(`
		INSERT INTO calls (`+callColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID, c.TSStart, c.TSEnd, string(c.Status), string(c.Reason),
		string(c.Route), c.Method, c.Path,
		c.HTTPStatus, c.DurationMs, c.BytesIn, c.BytesOut, c.Error,
	)
	if err != nil {
		return fmt.Errorf("insert call: %w", err)
	}

	s.mu.Lock()
	if !s.closed {
		s.pruneWG.Add(1)
		go func() {
			defer s.pruneWG.Done()
			s.maybePrune()
		}()
	}
	s.mu.Unlock()
	return nil
}

// Update modifies an existing call.
func (s *SQLiteStore) Update(id string, upd CallUpdate) error {
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
	if upd.Reason != nil {
		sets = append(sets, "reason = ?")
		args = append(args, string(*upd.Reason))
	}
	if upd.HTTPStatus != nil {
		sets = append(sets, "http_status = ?")
		args = append(args, *upd.HTTPStatus)
	}
	if upd.DurationMs != nil {
		sets = append(sets, "duration_ms = ?")
		args = append(args, *upd.DurationMs)
	}
	if upd.BytesIn != nil {
		sets = append(sets, "bytes_in = ?")
		args = append(args, *upd.BytesIn)
	}
	if upd.BytesOut != nil {
		sets = append(sets, "bytes_out = ?")
		args = append(args, *upd.BytesOut)
	}
	if upd.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, *upd.Error)
	}

	if len(sets) == 0 {
		return nil
	}

	query := "UPDATE calls SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	args = append(args, id)

	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("update call: %w", err)
	}
	return nil
}

// GetByID retrieves a single call. It returns nil, nil when not found.
func (s *SQLiteStore) GetByID(id string) (*Call, error) {
	row := s.db.QueryRow(`SELECT `+callColumns+` FROM calls WHERE id = ?`, id)

	c, err := scanCall(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get call: %w", err)
	}
	return c, nil
}

// List retrieves calls with filtering, newest first.
func (s *SQLiteStore) List(opts ListOptions) ([]Call, error) {
	query := `SELECT ` + callColumns + ` FROM calls WHERE 1=1`
	var args []any

	if opts.Status != nil {
		query += " AND status = ?"
		args = append(args, string(*opts.Status))
	}
	if opts.Route != "" {
		query += " AND route = ?"
		args = append(args, string(opts.Route))
	}
	if opts.Window > 0 {
		query += " AND ts_start >= ?"
		args = append(args, time.Now().UnixMilli()-opts.Window.Milliseconds())
	}

	query += " ORDER BY ts_start DESC, rowid DESC"

	// SQLite requires a LIMIT before OFFSET; -1 means unbounded.
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	} else if opts.Offset > 0 {
		query += " LIMIT -1"
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", opts.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	defer rows.Close()

	var calls []Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		calls = append(calls, *c)
	}
	return calls, rows.Err()
}

// Overview returns aggregate statistics.
func (s *SQLiteStore) Overview(window time.Duration) (*Overview, error) {
	cutoff := time.Now().UnixMilli() - window.Milliseconds()

	row := s.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(CASE WHEN status != 'in_flight' AND duration_ms > 0 THEN duration_ms END), 0),
			COALESCE(SUM(bytes_in), 0),
			COALESCE(SUM(bytes_out), 0),
			COALESCE(SUM(CASE WHEN reason = 'upstream_error' THEN 1 ELSE 0 END), 0)
		FROM calls
		WHERE ts_start >= ?
	`, cutoff)

	var o Overview
	var avgDur float64
	err := row.Scan(&o.TotalCalls, &o.SuccessCount, &o.ErrorCount, &avgDur,
		&o.TotalBytesIn, &o.TotalBytesOut, &o.UpstreamErrors)
	if err != nil {
		return nil, fmt.Errorf("overview query: %w", err)
	}

	o.AvgDurationMs = int(avgDur)
	if o.TotalCalls > 0 {
		o.SuccessRate = float64(o.SuccessCount) / float64(o.TotalCalls)
	}

	durations, err := s.completedDurations(cutoff)
	if err != nil {
		return nil, err
	}
	o.P95DurationMs = p95(durations)

	return &o, nil
}

// completedDurations returns the sorted durations of finished calls since cutoff.
func (s *SQLiteStore) completedDurations(cutoff int64) ([]int, error) {
	rows, err := s.db.Query(`
		SELECT duration_ms FROM calls
		WHERE ts_start >= ? AND status != 'in_flight' AND duration_ms > 0
		ORDER BY duration_ms ASC
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("duration query: %w", err)
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var d int
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan duration: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// RouteStats returns per-route statistics.
func (s *SQLiteStore) RouteStats(window time.Duration) ([]RouteStat, error) {
	cutoff := time.Now().UnixMilli() - window.Milliseconds()

	rows, err := s.db.Query(`
		SELECT
			route,
			COUNT(*) AS call_count,
			AVG(CASE WHEN status = 'success' THEN 1.0 ELSE 0.0 END),
			COALESCE(AVG(CASE WHEN status != 'in_flight' THEN duration_ms END), 0)
		FROM calls
		WHERE ts_start >= ?
		GROUP BY route
		ORDER BY call_count DESC, route ASC
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("route stats query: %w", err)
	}
	defer rows.Close()

	stats := []RouteStat{}
	for rows.Next() {
		var rs RouteStat
		var route string
		var avgDur float64
		if err := rows.Scan(&route, &rs.CallCount, &rs.SuccessRate, &avgDur); err != nil {
			return nil, fmt.Errorf("scan route stat: %w", err)
		}
		rs.Route = Route(route)
		rs.AvgDurationMs = int(avgDur)
		stats = append(stats, rs)
	}
	return stats, rows.Err()
}

// Series returns time-binned data for charts.
func (s *SQLiteStore) Series(opts SeriesOptions) ([]DataPoint, error) {
	bins, interval := GetBinConfig(opts.Window)
	cutoff := time.Now().Add(-opts.Window)

	points := make([]DataPoint, bins)
	for i := range points {
		points[i] = DataPoint{Timestamp: cutoff.Add(time.Duration(i) * interval).UnixMilli()}
	}

	where := "ts_start >= ?"
	args := []any{cutoff.UnixMilli()}
	if opts.Route != "" {
		where += " AND route = ?"
		args = append(args, string(opts.Route))
	}

	var query string
	switch opts.Metric {
	case "error_rate":
		query = fmt.Sprintf(`SELECT ts_start, CASE WHEN status = 'error' THEN 1.0 ELSE 0.0 END FROM calls WHERE %s`, where)
	case "duration_p95":
		query = fmt.Sprintf(`SELECT ts_start, duration_ms FROM calls WHERE %s AND status != 'in_flight'`, where)
	default:
		query = fmt.Sprintf(`SELECT ts_start, 1 FROM calls WHERE %s`, where)
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
		if binIdx, ok := binIndex(tsStart, cutoff.UnixMilli(), interval, bins); ok {
			binValues[binIdx] = append(binValues[binIdx], value)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, vals := range binValues {
		if len(vals) == 0 {
			continue
		}
		switch opts.Metric {
		case "error_rate":
			sum := 0.0
			for _, v := range vals {
				sum += v
			}
			points[i].Value = sum / float64(len(vals))
		case "duration_p95":
			sort.Float64s(vals)
			idx := int(float64(len(vals)) * 0.95)
			if idx >= len(vals) {
				idx = len(vals) - 1
			}
			points[i].Value = vals[idx]
		default:
			points[i].Value = float64(len(vals))
		}
	}
	return points, nil
}

// InFlightCount returns the number of in-flight calls.
func (s *SQLiteStore) InFlightCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM calls WHERE status = 'in_flight'`).Scan(&count)
	return count, err
}

// Close waits for pending prunes, then closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.pruneWG.Wait()
	return s.db.Close()
}

// maybePrune deletes the oldest rows once the table exceeds maxRows.
func (s *SQLiteStore) maybePrune() {
	s.pruneMu.Lock()
	defer s.pruneMu.Unlock()

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM calls`).Scan(&count); err != nil {
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
		DELETE FROM calls WHERE id IN (
			SELECT id FROM calls ORDER BY ts_start ASC LIMIT ?
		)
	`, toDelete)
	if err != nil {
		s.logger.Error("prune failed", "err", err)
		return
	}
	s.logger.Debug("pruned old calls", "deleted", toDelete)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (*Call, error) {
	var c Call
	var tsEnd sql.NullInt64
	var status, route string
	var reason, method, path, errText sql.NullString

	err := row.Scan(
		&c.ID, &c.TSStart, &tsEnd, &status, &reason, &route, &method, &path,
		&c.HTTPStatus, &c.DurationMs, &c.BytesIn, &c.BytesOut, &errText,
	)
	if err != nil {
		return nil, err
	}

	if tsEnd.Valid {
		c.TSEnd = &tsEnd.Int64
	}
	c.Status = Status(status)
	c.Reason = Reason(reason.String)
	c.Route = Route(route)
	c.Method = method.String
	c.Path = path.String
	c.Error = errText.String
	return &c, nil
}
