package relational

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"
)

// Postgres is the client/server backend using lib/pq.
type Postgres struct{}

func (Postgres) Name() string       { return "postgres" }
func (Postgres) DriverName() string { return "postgres" }

func (Postgres) ColumnType(c Column) string {
	switch c.Kind {
	case Serial:
		return "BIGSERIAL PRIMARY KEY"
	case SessionID, Digest:
		return "VARCHAR(64)"
	case ShortText:
		return "VARCHAR(255)"
	case Address:
		return "VARCHAR(45)"
	case Timestamp:
		return "TIMESTAMP"
	case Integer:
		return "INTEGER"
	case Boolean:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

func (Postgres) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (Postgres) QuoteIdent(name string) string { return pq.QuoteIdentifier(name) }

func (Postgres) SessionInit() []string { return []string{"SET TIME ZONE 'UTC'"} }

func (d Postgres) UpsertSession(ctx context.Context, ex Executor, s Session) error {
	row := sessionRow(s)
	query := insertSQL(d, TableSessions, row.Columns) +
		` ON CONFLICT ("id") DO UPDATE SET "starttime" = EXCLUDED."starttime"`
	if _, err := ex.ExecContext(ctx, query, row.Values...); err != nil {
		return fmt.Errorf("upsert session %s: %w", s.ID, err)
	}
	return nil
}

func (d Postgres) EnsureSession(ctx context.Context, ex Executor, id, ip string) error {
	query := `INSERT INTO "sessions" ("id", "ip") VALUES ($1, $2) ON CONFLICT ("id") DO NOTHING`
	if _, err := ex.ExecContext(ctx, query, id, nullString(ip)); err != nil {
		return fmt.Errorf("ensure session %s: %w", id, err)
	}
	return nil
}

func (d Postgres) CloseSession(ctx context.Context, ex Executor, id string, end time.Time) (bool, error) {
	return closeSession(ctx, d, ex, id, end)
}

func (d Postgres) InsertRow(ctx context.Context, ex Executor, table string, row Row) error {
	return insertRow(ctx, d, ex, table, row)
}
