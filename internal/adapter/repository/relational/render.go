package relational

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/V4T54L/honeywatch/internal/domain"
)

const snapshotTimeLayout = "2006-01-02 15:04:05.000000"

// Literal renders v as a portable SQL literal for a column of the given kind.
func Literal(kind ColumnKind, v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if t {
			return "TRUE"
		}
		return "FALSE"
	case int64:
		if kind == Boolean {
			return Literal(kind, t != 0)
		}
		return strconv.FormatInt(t, 10)
	case int:
		return Literal(kind, int64(t))
	case float64:
		if t == math.Trunc(t) && !math.IsInf(t, 0) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return quote(t.UTC().Format(snapshotTimeLayout))
	case []byte:
		return Literal(kind, string(t))
	case string:
		if kind == Timestamp {
			if ts, err := parseTime(t); err == nil {
				return quote(ts.UTC().Format(snapshotTimeLayout))
			}
		}
		if kind == Boolean {
			switch strings.ToLower(t) {
			case "1", "t", "true":
				return "TRUE"
			case "0", "f", "false":
				return "FALSE"
			}
		}
		return quote(t)
	default:
		return quote(fmt.Sprint(t))
	}
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}

func writeInsert(w io.Writer, t Table, columns []string, values []any) error {
	lits := make([]string, len(values))
	for i, v := range values {
		col, _ := t.Column(columns[i])
		lits[i] = Literal(col.Kind, v)
	}
	_, err := fmt.Fprintf(w, "INSERT INTO %s (%s) VALUES (%s);\n",
		t.Name, strings.Join(columns, ", "), strings.Join(lits, ", "))
	return err
}

func writeHeader(w io.Writer, backend string, generated time.Time) error {
	_, err := fmt.Fprintf(w, "-- honeywatch SQL export\n-- Generated: %s\n-- Database Type: %s\n\n",
		generated.UTC().Format(time.RFC3339), backend)
	return err
}

// eventRow maps an enriched event onto the events table.
func eventRow(ev domain.EnrichedEvent) (Row, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return Row{}, fmt.Errorf("serialize event %d: %w", ev.SequenceID, err)
	}
	port, hasPort, _ := ev.Event.Port()
	srcPort, hasSrcPort := ev.Event.IntField("src_port")

	var r Row
	r.Add("eventid", nullString(ev.Event.Kind))
	r.Add("session", nullString(ev.Event.SessionID))
	r.Add("timestamp", ev.OccurredAt().UTC())
	r.Add("message", nullString(ev.Event.StringField("message")))
	r.Add("src_ip", nullString(ev.Event.SourceIP))
	r.Add("src_port", nullInt(srcPort, hasSrcPort))
	r.Add("dst_ip", nullString(ev.Event.StringField("dst_ip")))
	r.Add("dst_port", nullInt(port, hasPort))
	r.Add("threat_level", ev.Insight.Level.String())
	r.Add("risk_score", int64(ev.Insight.RiskScore))
	r.Add("data", string(data))
	return r, nil
}

// RenderEvents writes events as INSERT statements for the events table
// without touching a database. The sequence id is used as the row id.
func RenderEvents(w io.Writer, events []domain.EnrichedEvent, generated time.Time) error {
	table, _ := LookupTable(TableEvents)
	if err := writeHeader(w, "portable", generated); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "-- Table: %s\n", TableEvents); err != nil {
		return err
	}
	for _, ev := range events {
		row, err := eventRow(ev)
		if err != nil {
			return err
		}
		columns := append([]string{"id"}, row.Columns...)
		values := append([]any{int64(ev.SequenceID)}, driverValues(row.Values)...)
		if err := writeInsert(w, table, columns, values); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}

// driverValues unwraps sql.Null* wrappers into plain values or nil.
func driverValues(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		switch t := v.(type) {
		case driver.Valuer:
			// sql.NullString and friends never fail here
			val, _ := t.Value()
			out[i] = any(val)
		default:
			out[i] = v
		}
	}
	return out
}
