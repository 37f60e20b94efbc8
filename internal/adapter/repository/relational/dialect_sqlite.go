package relational

import (
	"context"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite is the embedded single-file backend.
type SQLite struct{}

func (SQLite) Name() string       { return "sqlite" }
func (SQLite) DriverName() string { return "sqlite" }

func (SQLite) ColumnType(c Column) string {
	switch c.Kind {
	case Serial:
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	case Timestamp:
		return "DATETIME"
	case Integer:
		return "INTEGER"
	case Boolean:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

func (SQLite) Placeholder(int) string { return "?" }

func (SQLite) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (SQLite) SessionInit() []string {
	return []string{"PRAGMA journal_mode = WAL", "PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"}
}

func (d SQLite) UpsertSession(ctx context.Context, ex Executor, s Session) error {
	row := sessionRow(s)
	query := insertSQL(d, TableSessions, row.Columns) +
		` ON CONFLICT("id") DO UPDATE SET "starttime" = excluded."starttime"`
	if _, err := ex.ExecContext(ctx, query, row.Values...); err != nil {
		return fmt.Errorf("upsert session %s: %w", s.ID, err)
	}
	return nil
}

func (d SQLite) EnsureSession(ctx context.Context, ex Executor, id, ip string) error {
	query := `INSERT INTO "sessions" ("id", "ip") VALUES (?, ?) ON CONFLICT("id") DO NOTHING`
	if _, err := ex.ExecContext(ctx, query, id, nullString(ip)); err != nil {
		return fmt.Errorf("ensure session %s: %w", id, err)
	}
	return nil
}

func (d SQLite) CloseSession(ctx context.Context, ex Executor, id string, end time.Time) (bool, error) {
	return closeSession(ctx, d, ex, id, end)
}

func (d SQLite) InsertRow(ctx context.Context, ex Executor, table string, row Row) error {
	return insertRow(ctx, d, ex, table, row)
}
