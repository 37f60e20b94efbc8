package relational

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// MySQL is the client/server backend using go-sql-driver/mysql.
type MySQL struct{}

func (MySQL) Name() string       { return "mysql" }
func (MySQL) DriverName() string { return "mysql" }

func (MySQL) ColumnType(c Column) string {
	switch c.Kind {
	case Serial:
		return "BIGINT AUTO_INCREMENT PRIMARY KEY"
	case SessionID, Digest:
		return "VARCHAR(64)"
	case ShortText:
		return "VARCHAR(255)"
	case Address:
		return "VARCHAR(45)"
	case Timestamp:
		return "DATETIME(6)"
	case Integer:
		return "INT"
	case Boolean:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

func (MySQL) Placeholder(int) string { return "?" }

func (MySQL) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (MySQL) SessionInit() []string { return []string{"SET time_zone = '+00:00'"} }

func (d MySQL) UpsertSession(ctx context.Context, ex Executor, s Session) error {
	row := sessionRow(s)
	query := insertSQL(d, TableSessions, row.Columns) +
		" ON DUPLICATE KEY UPDATE `starttime` = VALUES(`starttime`)"
	if _, err := ex.ExecContext(ctx, query, row.Values...); err != nil {
		return fmt.Errorf("upsert session %s: %w", s.ID, err)
	}
	return nil
}

func (d MySQL) EnsureSession(ctx context.Context, ex Executor, id, ip string) error {
	query := "INSERT IGNORE INTO `sessions` (`id`, `ip`) VALUES (?, ?)"
	if _, err := ex.ExecContext(ctx, query, id, nullString(ip)); err != nil {
		return fmt.Errorf("ensure session %s: %w", id, err)
	}
	return nil
}

func (d MySQL) CloseSession(ctx context.Context, ex Executor, id string, end time.Time) (bool, error) {
	return closeSession(ctx, d, ex, id, end)
}

func (d MySQL) InsertRow(ctx context.Context, ex Executor, table string, row Row) error {
	return insertRow(ctx, d, ex, table, row)
}

// normalizeMySQLDSN forces UTC time parsing so DATETIME columns scan into time.Time.
func normalizeMySQLDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}
