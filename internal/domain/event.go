package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Event kinds emitted by the honeypot. A leading "cowrie." prefix is stripped on decode.
const (
	KindSessionConnect = "session.connect"
	KindSessionClosed  = "session.closed"
	KindClientVersion  = "client.version"
	KindLoginSuccess   = "login.success"
	KindLoginFailed    = "login.failed"
	KindCommandInput   = "command.input"
	KindFileDownload   = "session.file_download"
)

const kindPrefix = "cowrie."

// Wire names of the fields RawEvent knows about.
const (
	FieldKind      = "eventid"
	FieldSession   = "session"
	FieldTimestamp = "timestamp"
	FieldSourceIP  = "src_ip"
	FieldDestPort  = "dst_port"
	FieldPort      = "port"
	FieldUsername  = "username"
	FieldPassword  = "password"
	FieldInput     = "input"
	FieldDuration  = "duration"
)

var errNotNumeric = errors.New("value is not numeric")

// RawEvent is a single event as produced by the honeypot. Fields the pipeline
// does not interpret are carried verbatim in Extra.
type RawEvent struct {
	Kind      string
	SessionID string
	Timestamp time.Time
	SourceIP  string
	DestPort  *int
	Username  string
	Password  string
	Input     string
	Duration  *float64
	Extra     map[string]any
}

// NormalizeKind strips the honeypot's namespace prefix from an event kind.
func NormalizeKind(kind string) string {
	return strings.TrimPrefix(strings.TrimSpace(kind), kindPrefix)
}

// Clone returns a copy that shares no mutable state with e.
func (e RawEvent) Clone() RawEvent {
	out := e
	if e.DestPort != nil {
		p := *e.DestPort
		out.DestPort = &p
	}
	if e.Duration != nil {
		d := *e.Duration
		out.Duration = &d
	}
	if e.Extra != nil {
		out.Extra = make(map[string]any, len(e.Extra))
		for k, v := range e.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// KindOrUnknown is the kind used for counters and labels.
func (e RawEvent) KindOrUnknown() string {
	if e.Kind == "" {
		return "unknown"
	}
	return e.Kind
}

// Port returns the destination port. The boolean is false when the event carries
// no port at all; an error is returned when a port is present but unusable.
func (e RawEvent) Port() (int, bool, error) {
	if e.DestPort != nil {
		return *e.DestPort, true, nil
	}
	for _, key := range []string{FieldDestPort, FieldPort} {
		v, ok := e.Extra[key]
		if !ok || v == nil {
			continue
		}
		n, err := toInt(v)
		if err != nil {
			return 0, false, fmt.Errorf("%s=%v: %w", key, v, err)
		}
		return n, true, nil
	}
	return 0, false, nil
}

// SessionDuration returns the session duration in seconds, if the event carries one.
func (e RawEvent) SessionDuration() (float64, bool, error) {
	if e.Duration != nil {
		return *e.Duration, true, nil
	}
	v, ok := e.Extra[FieldDuration]
	if !ok || v == nil {
		return 0, false, nil
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, false, fmt.Errorf("%s=%v: %w", FieldDuration, v, err)
	}
	return f, true, nil
}

// StringField returns a string-valued extra field.
func (e RawEvent) StringField(name string) string {
	switch v := e.Extra[name].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// IntField returns an integer-valued extra field.
func (e RawEvent) IntField(name string) (int, bool) {
	v, ok := e.Extra[name]
	if !ok || v == nil {
		return 0, false
	}
	n, err := toInt(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// MarshalJSON flattens known fields and extras into a single object.
func (e RawEvent) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Extra)+10)
	for k, v := range e.Extra {
		out[k] = v
	}
	setString := func(key, v string) {
		if v != "" {
			out[key] = v
		}
	}
	setString(FieldKind, e.Kind)
	setString(FieldSession, e.SessionID)
	setString(FieldSourceIP, e.SourceIP)
	setString(FieldUsername, e.Username)
	setString(FieldPassword, e.Password)
	setString(FieldInput, e.Input)
	if !e.Timestamp.IsZero() {
		out[FieldTimestamp] = e.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	if e.DestPort != nil {
		out[FieldDestPort] = *e.DestPort
	}
	if e.Duration != nil {
		out[FieldDuration] = *e.Duration
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes leniently: a known field with an unexpected type is kept
// in Extra rather than failing the whole event.
func (e *RawEvent) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*e = RawEvent{}
	for key, raw := range fields {
		if e.decodeKnown(key, raw) {
			continue
		}
		v, err := decodeValue(raw)
		if err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		if e.Extra == nil {
			e.Extra = make(map[string]any)
		}
		e.Extra[key] = v
	}
	return nil
}

func (e *RawEvent) decodeKnown(key string, raw json.RawMessage) bool {
	switch key {
	case FieldKind:
		s, ok := decodeString(raw)
		if ok {
			e.Kind = NormalizeKind(s)
		}
		return ok
	case FieldSession:
		return decodeInto(raw, &e.SessionID)
	case FieldSourceIP:
		return decodeInto(raw, &e.SourceIP)
	case FieldUsername:
		return decodeInto(raw, &e.Username)
	case FieldPassword:
		return decodeInto(raw, &e.Password)
	case FieldInput:
		return decodeInto(raw, &e.Input)
	case FieldTimestamp:
		v, err := decodeValue(raw)
		if err != nil {
			return false
		}
		ts, err := ParseTimestamp(v)
		if err != nil {
			return false
		}
		e.Timestamp = ts
		return true
	case FieldDestPort:
		v, err := decodeValue(raw)
		if err != nil {
			return false
		}
		n, err := toInt(v)
		if err != nil {
			return false
		}
		e.DestPort = &n
		return true
	case FieldDuration:
		v, err := decodeValue(raw)
		if err != nil {
			return false
		}
		f, err := toFloat(v)
		if err != nil {
			return false
		}
		e.Duration = &f
		return true
	}
	return false
}

// ParseTimestamp accepts RFC3339 strings and epoch seconds.
func ParseTimestamp(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognised timestamp %q", t)
	default:
		f, err := toFloat(v)
		if err != nil {
			return time.Time{}, err
		}
		sec, frac := math.Modf(f)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
	}
}

func decodeString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func decodeInto(raw json.RawMessage, dst *string) bool {
	s, ok := decodeString(raw)
	if ok {
		*dst = s
	}
	return ok
}

func decodeValue(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, errNotNumeric
		}
		return f, nil
	default:
		return 0, errNotNumeric
	}
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), nil
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i, nil
		}
		return 0, errNotNumeric
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, errNotNumeric
	}
	return int(f), nil
}
