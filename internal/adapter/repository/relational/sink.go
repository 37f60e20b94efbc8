// Package relational normalizes enriched events into a small relational
// schema on SQLite, PostgreSQL or MySQL.
package relational

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/V4T54L/honeywatch/internal/domain"
)

const (
	sinkName    = "relational"
	readerConns = 4
)

// Sink writes enriched events through a single connection. Snapshots and
// statistics read through a separate pool when the database allows one.
type Sink struct {
	db      *sql.DB
	reader  *sql.DB
	dialect Dialect
	logger  *slog.Logger
	now     func() time.Time
}

// Open connects to driver/dsn, applies the dialect's session settings and
// creates the schema.
func Open(ctx context.Context, driver, dsn string, logger *slog.Logger) (*Sink, error) {
	d, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	if d.Name() == "mysql" {
		if dsn, err = normalizeMySQLDSN(dsn); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", d.Name(), err)
	}
	// one writer connection per process
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", d.Name(), err)
	}

	s := NewSink(db, d, logger)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	reader, err := openReader(ctx, d, dsn)
	if err != nil {
		db.Close()
		return nil, err
	}
	if reader != nil {
		s.reader = reader
	}
	return s, nil
}

// openReader opens the read pool. An in-memory SQLite database exists only on
// the writer connection, so it gets none.
func openReader(ctx context.Context, d Dialect, dsn string) (*sql.DB, error) {
	if d.Name() == "sqlite" && strings.Contains(dsn, ":memory:") {
		return nil, nil
	}
	db, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s read pool: %w", d.Name(), err)
	}
	db.SetMaxOpenConns(readerConns)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect %s read pool: %w", d.Name(), err)
	}
	return db, nil
}

// NewSink wraps an already open database.
func NewSink(db *sql.DB, d Dialect, logger *slog.Logger) *Sink {
	return &Sink{
		db:      db,
		reader:  db,
		dialect: d,
		logger:  logger.With("component", "relational_sink", "backend", d.Name()),
		now:     time.Now,
	}
}

// Dialect returns the backend in use.
func (s *Sink) Dialect() Dialect { return s.dialect }

// Migrate creates any missing tables.
func (s *Sink) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.SessionInit() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialise session (%s): %w", stmt, err)
		}
	}
	for _, t := range Schema {
		if _, err := s.db.ExecContext(ctx, createTableSQL(s.dialect, t)); err != nil {
			return fmt.Errorf("failed to create table %s: %w", t.Name, err)
		}
	}
	s.logger.Info("relational schema ready", "tables", len(Schema))
	return nil
}

// Write implements domain.EventSink.
func (s *Sink) Write(ctx context.Context, ev domain.EnrichedEvent) error {
	if err := s.Store(ctx, ev); err != nil {
		return &domain.SinkWriteError{Sink: sinkName, Err: err}
	}
	return nil
}

// Store routes one event to its tables inside a single transaction. Any
// failed sub-write rolls the whole event back.
func (s *Sink) Store(ctx context.Context, ev domain.EnrichedEvent) (err error) {
	ctx, span := otel.Tracer("relational-sink").Start(ctx, "Store")
	defer span.End()
	span.SetAttributes(
		attribute.String("event.kind", ev.Event.Kind),
		attribute.Int64("event.sequence_id", int64(ev.SequenceID)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() // no-op after Commit

	if err := s.storeKind(ctx, tx, ev); err != nil {
		return err
	}

	row, err := eventRow(ev)
	if err != nil {
		return err
	}
	if err := s.dialect.InsertRow(ctx, tx, TableEvents, row); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event %d: %w", ev.SequenceID, err)
	}
	return nil
}

func (s *Sink) storeKind(ctx context.Context, tx *sql.Tx, ev domain.EnrichedEvent) error {
	raw := ev.Event
	ts := ev.OccurredAt().UTC()

	switch raw.Kind {
	case domain.KindSessionConnect:
		if raw.SessionID == "" {
			return nil
		}
		return s.dialect.UpsertSession(ctx, tx, Session{
			ID:       raw.SessionID,
			Start:    ts,
			Sensor:   raw.StringField("sensor"),
			IP:       raw.SourceIP,
			TermSize: raw.StringField("termsize"),
			Client:   raw.StringField("version"),
		})

	case domain.KindSessionClosed:
		if raw.SessionID == "" {
			return nil
		}
		found, err := s.dialect.CloseSession(ctx, tx, raw.SessionID, ts)
		if err != nil {
			return err
		}
		if !found {
			s.logger.Warn("session closed before it was seen", "session", raw.SessionID)
		}
		return nil

	case domain.KindLoginSuccess, domain.KindLoginFailed:
		if err := s.ensureSession(ctx, tx, raw); err != nil {
			return err
		}
		var r Row
		r.Add("session", nullString(raw.SessionID))
		r.Add("success", raw.Kind == domain.KindLoginSuccess)
		r.Add("username", nullString(raw.Username))
		r.Add("password", nullString(raw.Password))
		r.Add("timestamp", ts)
		return s.dialect.InsertRow(ctx, tx, TableAuth, r)

	case domain.KindCommandInput:
		if err := s.ensureSession(ctx, tx, raw); err != nil {
			return err
		}
		var r Row
		r.Add("session", nullString(raw.SessionID))
		r.Add("timestamp", ts)
		r.Add("command", nullString(raw.Input))
		return s.dialect.InsertRow(ctx, tx, TableCommands, r)

	case domain.KindFileDownload:
		if err := s.ensureSession(ctx, tx, raw); err != nil {
			return err
		}
		var r Row
		r.Add("session", nullString(raw.SessionID))
		r.Add("timestamp", ts)
		r.Add("url", nullString(raw.StringField("url")))
		r.Add("outfile", nullString(raw.StringField("outfile")))
		r.Add("shasum", nullString(raw.StringField("shasum")))
		return s.dialect.InsertRow(ctx, tx, TableDownloads, r)
	}
	return nil
}

// ensureSession creates a placeholder session row so child rows never
// violate the foreign key when the connect event was missed.
func (s *Sink) ensureSession(ctx context.Context, tx *sql.Tx, raw domain.RawEvent) error {
	if raw.SessionID == "" {
		return nil
	}
	return s.dialect.EnsureSession(ctx, tx, raw.SessionID, raw.SourceIP)
}

// Snapshot writes the contents of tables (all tables when empty) as portable
// INSERT statements.
func (s *Sink) Snapshot(ctx context.Context, w io.Writer, tables []string) error {
	if len(tables) == 0 {
		tables = TableNames()
	}
	selected := make([]Table, 0, len(tables))
	for _, name := range tables {
		t, err := LookupTable(strings.TrimSpace(name))
		if err != nil {
			return err
		}
		selected = append(selected, t)
	}

	if err := writeHeader(w, s.dialect.Name(), s.now()); err != nil {
		return err
	}
	for _, t := range selected {
		if _, err := fmt.Fprintf(w, "-- Table: %s\n", t.Name); err != nil {
			return err
		}
		if err := s.snapshotTable(ctx, w, t); err != nil {
			return fmt.Errorf("snapshot %s: %w", t.Name, err)
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) snapshotTable(ctx context.Context, w io.Writer, t Table) error {
	columns := t.ColumnNames()
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		quoteAll(s.dialect, columns), s.dialect.QuoteIdent(t.Name), s.dialect.QuoteIdent("id"))
	rows, err := s.reader.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		if err := writeInsert(w, t, columns, values); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Stats reports row counts, the event kind distribution and the event time range.
func (s *Sink) Stats(ctx context.Context) (domain.RelationalStats, error) {
	stats := domain.RelationalStats{
		Backend:    s.dialect.Name(),
		Tables:     make(map[string]int, len(Schema)),
		EventKinds: make(map[string]int),
	}
	for _, t := range Schema {
		var n int
		query := "SELECT COUNT(*) FROM " + s.dialect.QuoteIdent(t.Name)
		if err := s.reader.QueryRowContext(ctx, query).Scan(&n); err != nil {
			return stats, fmt.Errorf("count %s: %w", t.Name, err)
		}
		stats.Tables[t.Name] = n
	}

	eventid := s.dialect.QuoteIdent("eventid")
	rows, err := s.reader.QueryContext(ctx, fmt.Sprintf("SELECT %s, COUNT(*) FROM %s GROUP BY %s",
		eventid, s.dialect.QuoteIdent(TableEvents), eventid))
	if err != nil {
		return stats, fmt.Errorf("count event kinds: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind sql.NullString
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return stats, err
		}
		name := kind.String
		if !kind.Valid || name == "" {
			name = "unknown"
		}
		stats.EventKinds[name] += n
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	ts := s.dialect.QuoteIdent("timestamp")
	var earliest, latest any
	err = s.reader.QueryRowContext(ctx, fmt.Sprintf("SELECT MIN(%s), MAX(%s) FROM %s",
		ts, ts, s.dialect.QuoteIdent(TableEvents))).Scan(&earliest, &latest)
	if err != nil {
		return stats, fmt.Errorf("event time range: %w", err)
	}
	stats.Earliest = toTime(earliest)
	stats.Latest = toTime(latest)
	return stats, nil
}

func toTime(v any) *time.Time {
	var t time.Time
	switch x := v.(type) {
	case time.Time:
		t = x
	case string:
		parsed, err := parseTime(x)
		if err != nil {
			return nil
		}
		t = parsed
	case []byte:
		return toTime(string(x))
	default:
		return nil
	}
	t = t.UTC()
	return &t
}

// Close releases the database connection.
func (s *Sink) Close() error {
	var rerr error
	if s.reader != s.db {
		rerr = s.reader.Close()
	}
	if err := s.db.Close(); err != nil {
		return err
	}
	return rerr
}
