package relational

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Executor is satisfied by *sql.DB and *sql.Tx.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Session is the sessions row written on connect.
type Session struct {
	ID       string
	Start    time.Time
	Sensor   string
	IP       string
	TermSize string
	Client   string
}

// Row is an ordered list of column values for one insert.
type Row struct {
	Columns []string
	Values  []any
}

func (r *Row) Add(column string, value any) {
	r.Columns = append(r.Columns, column)
	r.Values = append(r.Values, value)
}

// Dialect captures what differs between relational backends. All dialects
// share the logical Schema.
type Dialect interface {
	Name() string
	DriverName() string
	ColumnType(c Column) string
	Placeholder(n int) string
	QuoteIdent(name string) string
	// SessionInit returns statements run once after connecting.
	SessionInit() []string
	// UpsertSession inserts a session or, if it exists, updates its start time.
	UpsertSession(ctx context.Context, ex Executor, s Session) error
	// EnsureSession inserts a placeholder session row if none exists.
	EnsureSession(ctx context.Context, ex Executor, id, ip string) error
	// CloseSession sets the end time; it reports false for an unknown session.
	CloseSession(ctx context.Context, ex Executor, id string, end time.Time) (bool, error)
	InsertRow(ctx context.Context, ex Executor, table string, row Row) error
}

// DialectFor returns the dialect registered under name.
func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return SQLite{}, nil
	case "postgres", "postgresql":
		return Postgres{}, nil
	case "mysql", "mariadb":
		return MySQL{}, nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", name)
}

func placeholders(d Dialect, from, n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = d.Placeholder(from + i)
	}
	return strings.Join(ph, ", ")
}

func quoteAll(d Dialect, names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = d.QuoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

func createTableSQL(d Dialect, t Table) string {
	defs := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		def := d.QuoteIdent(c.Name) + " " + d.ColumnType(c)
		if c.PrimaryKey && c.Kind != Serial {
			def += " PRIMARY KEY"
		}
		defs = append(defs, def)
	}
	if fk := t.ForeignKey; fk != nil {
		defs = append(defs, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
			d.QuoteIdent(fk.Column), d.QuoteIdent(fk.References), d.QuoteIdent("id")))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", d.QuoteIdent(t.Name), strings.Join(defs, ",\n\t"))
}

func insertSQL(d Dialect, table string, columns []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.QuoteIdent(table), quoteAll(d, columns), placeholders(d, 1, len(columns)))
}

func sessionRow(s Session) Row {
	var r Row
	r.Add("id", s.ID)
	r.Add("starttime", s.Start.UTC())
	r.Add("sensor", nullString(s.Sensor))
	r.Add("ip", nullString(s.IP))
	r.Add("termsize", nullString(s.TermSize))
	r.Add("client", nullString(s.Client))
	return r
}

func insertRow(ctx context.Context, d Dialect, ex Executor, table string, row Row) error {
	if _, err := LookupTable(table); err != nil {
		return err
	}
	if len(row.Columns) != len(row.Values) {
		return fmt.Errorf("insert into %s: %d columns but %d values", table, len(row.Columns), len(row.Values))
	}
	if _, err := ex.ExecContext(ctx, insertSQL(d, table, row.Columns), row.Values...); err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

// closeSession checks for the row first: some drivers report zero affected
// rows when the new value equals the old one.
func closeSession(ctx context.Context, d Dialect, ex Executor, id string, end time.Time) (bool, error) {
	var one int
	query := fmt.Sprintf("SELECT 1 FROM %s WHERE %s = %s",
		d.QuoteIdent(TableSessions), d.QuoteIdent("id"), d.Placeholder(1))
	err := ex.QueryRowContext(ctx, query, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("look up session %s: %w", id, err)
	}

	update := fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s = %s",
		d.QuoteIdent(TableSessions), d.QuoteIdent("endtime"), d.Placeholder(1), d.QuoteIdent("id"), d.Placeholder(2))
	if _, err := ex.ExecContext(ctx, update, end.UTC(), id); err != nil {
		return false, fmt.Errorf("close session %s: %w", id, err)
	}
	return true, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v int, ok bool) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: ok}
}
