// Package sandbox runs user SQL against a throwaway in-memory SQLite database.
//
// Every run opens its own database, so runs never observe each other and
// nothing survives past Close.
package sandbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO required)

	"sqlcoach/internal/metrics"
	"sqlcoach/internal/model"
)

// Stages reported in Error.
const (
	StageSetup    = "setup"
	StageQuery    = "query"
	StageSnapshot = "snapshot"
)

var (
	// ErrEmptyQuery is returned when there is nothing to execute.
	ErrEmptyQuery = errors.New("Please provide a SQL query to execute")
	// ErrTimeout replaces the driver error when the run deadline passes.
	ErrTimeout = errors.New("execution timed out")
	// ErrForbidden rejects statements that could touch the host filesystem.
	ErrForbidden = errors.New("ATTACH, DETACH and VACUUM are not allowed")
)

// Error is a SQL failure in one stage of a run.
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("SQL error in %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Options configures a Sandbox.
type Options struct {
	Timeout time.Duration
	MaxRows int
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Sandbox creates isolated databases with a row cap and a deadline.
type Sandbox struct {
	timeout time.Duration
	maxRows int
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New returns a Sandbox. Zero options fall back to 5s and 500 rows.
func New(o Options) *Sandbox {
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	if o.MaxRows <= 0 {
		o.MaxRows = 500
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return &Sandbox{timeout: o.Timeout, maxRows: o.MaxRows, metrics: o.Metrics, logger: o.Logger}
}

// Result is the outcome of Run. Exactly one of Query and AffectedRows is set.
type Result struct {
	Query        *model.ResultSet
	AffectedRows *int64
	Tables       map[string]model.ResultSet
}

// Run executes setupSQL, then query, then snapshots every user table.
func (s *Sandbox) Run(ctx context.Context, setupSQL, query string) (Result, error) {
	if strings.TrimSpace(query) == "" {
		return Result{}, ErrEmptyQuery
	}

	var res Result
	err := s.Do(ctx, setupSQL, func(ctx context.Context, db *DB) error {
		set, affected, err := db.Execute(ctx, query)
		if err != nil {
			return &Error{Stage: StageQuery, Err: err}
		}
		if set != nil {
			res.Query = set
		} else {
			res.AffectedRows = &affected
		}

		tables, err := db.Snapshot(ctx)
		if err != nil {
			return &Error{Stage: StageSnapshot, Err: err}
		}
		res.Tables = tables
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// Do opens a fresh database, applies setupSQL and hands it to fn. The
// deadline covers setup and fn together; the database is closed afterwards.
func (s *Sandbox) Do(ctx context.Context, setupSQL string, fn func(ctx context.Context, db *DB) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	db, err := s.open(ctx)
	if err != nil {
		s.metrics.RecordSandboxRun(StageSetup)
		return &Error{Stage: StageSetup, Err: err}
	}
	defer db.Close()

	if strings.TrimSpace(setupSQL) != "" {
		if err := db.Exec(ctx, setupSQL); err != nil {
			s.metrics.RecordSandboxRun(StageSetup)
			return &Error{Stage: StageSetup, Err: timeoutOr(ctx, err)}
		}
	}

	if err := fn(ctx, db); err != nil {
		var se *Error
		if errors.As(err, &se) {
			se.Err = timeoutOr(ctx, se.Err)
			s.metrics.RecordSandboxRun(se.Stage)
		} else {
			s.metrics.RecordSandboxRun("error")
		}
		s.logger.Debug("sandbox run failed", "err", err, "duration_ms", time.Since(start).Milliseconds())
		return err
	}

	s.metrics.RecordSandboxRun("ok")
	return nil
}

func (s *Sandbox) open(ctx context.Context) (*DB, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// One connection: a second one would see a different :memory: database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db: db, maxRows: s.maxRows}, nil
}

func timeoutOr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}

var (
	queryVerbs     = map[string]bool{"SELECT": true, "WITH": true, "VALUES": true, "PRAGMA": true, "EXPLAIN": true}
	forbiddenVerbs = map[string]bool{"ATTACH": true, "DETACH": true, "VACUUM": true}
	returning      = regexp.MustCompile(`(?i)\bRETURNING\b`)
)

// mask blanks out comments and the contents of quoted strings and
// identifiers so keyword checks only see statement structure. Byte offsets
// are preserved.
func mask(q string) string {
	b := []byte(q)
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c == '-' && i+1 < len(b) && b[i+1] == '-':
			for ; i < len(b) && b[i] != '\n'; i++ {
				b[i] = ' '
			}
		case c == '/' && i+1 < len(b) && b[i+1] == '*':
			stop := len(b)
			if end := strings.Index(q[i+2:], "*/"); end >= 0 {
				stop = i + 2 + end + 2
			}
			for ; i < stop; i++ {
				b[i] = ' '
			}
		case c == '\'' || c == '"' || c == '`' || c == '[':
			closer := c
			if c == '[' {
				closer = ']'
			}
			for i++; i < len(b); i++ {
				if b[i] == closer {
					// A doubled quote is an escaped quote, not the end.
					if closer != ']' && i+1 < len(b) && b[i+1] == closer {
						b[i], b[i+1] = ' ', ' '
						i++
						continue
					}
					break
				}
				b[i] = ' '
			}
			i++
		default:
			i++
		}
	}
	return string(b)
}

// leadingKeyword returns the upper-cased first keyword of a masked statement.
func leadingKeyword(stmt string) string {
	fields := strings.Fields(stmt)
	if len(fields) == 0 {
		return ""
	}
	w := strings.ToUpper(strings.TrimLeft(fields[0], "("))
	for i := 0; i < len(w); i++ {
		if !isIdentChar(w[i]) {
			return w[:i]
		}
	}
	return w
}

// IsQuery reports whether q returns rows: it starts with a query keyword or
// carries a RETURNING clause.
func IsQuery(q string) bool {
	m := mask(q)
	return queryVerbs[leadingKeyword(m)] || returning.MatchString(m)
}

func isIdentChar(c byte) bool {
	return c == '_' || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// checkAllowed rejects scripts with a statement that starts with ATTACH,
// DETACH or VACUUM. Words inside literals and comments do not count.
func checkAllowed(q string) error {
	for _, stmt := range strings.Split(mask(q), ";") {
		if forbiddenVerbs[leadingKeyword(stmt)] {
			return ErrForbidden
		}
	}
	return nil
}
