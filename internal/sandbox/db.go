package sandbox

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"sqlcoach/internal/model"
)

// DB is one sandbox database. It is only valid inside Sandbox.Do.
type DB struct {
	db      *sql.DB
	maxRows int
}

// Close releases the database and everything in it.
func (d *DB) Close() error {
	return d.db.Close()
}

// Exec runs a possibly multi-statement script.
func (d *DB) Exec(ctx context.Context, script string) error {
	if err := checkAllowed(script); err != nil {
		return err
	}
	_, err := d.db.ExecContext(ctx, script)
	return err
}

// Execute runs q as a query when it returns rows, otherwise as a statement.
// It returns the result set, or nil and the affected row count.
func (d *DB) Execute(ctx context.Context, q string) (*model.ResultSet, int64, error) {
	if err := checkAllowed(q); err != nil {
		return nil, 0, err
	}
	if IsQuery(q) {
		set, err := d.Query(ctx, q)
		if err != nil {
			return nil, 0, err
		}
		return &set, 0, nil
	}

	res, err := d.db.ExecContext(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, 0, fmt.Errorf("rows affected: %w", err)
	}
	return nil, n, nil
}

// Query runs q and reads at most maxRows rows.
func (d *DB) Query(ctx context.Context, q string, args ...any) (model.ResultSet, error) {
	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return model.ResultSet{}, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return model.ResultSet{}, err
	}
	set := model.ResultSet{Columns: cols, Rows: [][]any{}}

	for rows.Next() {
		if len(set.Rows) >= d.maxRows {
			set.Truncated = true
			break
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return model.ResultSet{}, err
		}
		for i, v := range vals {
			vals[i] = normalizeValue(v)
		}
		set.Rows = append(set.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return model.ResultSet{}, err
	}
	return set, nil
}

// Tables lists user tables in name order.
func (d *DB) Tables(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// Snapshot reads every user table, each capped at maxRows rows.
func (d *DB) Snapshot(ctx context.Context) (map[string]model.ResultSet, error) {
	names, err := d.Tables(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.ResultSet, len(names))
	for _, n := range names {
		set, err := d.Query(ctx, "SELECT * FROM "+QuoteIdent(n))
		if err != nil {
			return nil, fmt.Errorf("read table %s: %w", n, err)
		}
		out[n] = set
	}
	return out, nil
}

// Columns describes a table's columns.
func (d *DB) Columns(ctx context.Context, table string) ([]model.Column, error) {
	rows, err := d.db.QueryContext(ctx, "PRAGMA table_info("+QuoteIdent(table)+")")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []model.Column
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, model.Column{Name: name, Type: typ, PK: pk > 0})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("no such table: %s", table)
	}
	return cols, nil
}

// QuoteIdent quotes a SQLite identifier.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// normalizeValue maps driver values to the JSON cell types: string, int64,
// float64 or nil.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case nil, int64, float64, string:
		return x
	case []byte:
		return string(x)
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprint(x)
	}
}
