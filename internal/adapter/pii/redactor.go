package pii

import (
	"log/slog"
	"strings"

	"github.com/V4T54L/honeywatch/internal/domain"
)

const RedactedPlaceholder = "[REDACTED]"

// Redactor blanks credential fields before records leave the process.
type Redactor struct {
	fieldsToRedact map[string]struct{}
	logger         *slog.Logger
}

// NewRedactor matches field names case-insensitively.
func NewRedactor(fields []string, logger *slog.Logger) *Redactor {
	fieldSet := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		if f := strings.ToLower(strings.TrimSpace(field)); f != "" {
			fieldSet[f] = struct{}{}
		}
	}
	return &Redactor{
		fieldsToRedact: fieldSet,
		logger:         logger.With("component", "pii_redactor"),
	}
}

func (r *Redactor) redacts(field string) bool {
	_, ok := r.fieldsToRedact[strings.ToLower(field)]
	return ok
}

// RedactEvent returns a copy of ev with every configured field replaced by
// the placeholder, and whether anything was replaced. ev is not modified.
func (r *Redactor) RedactEvent(ev domain.RawEvent) (domain.RawEvent, bool) {
	if len(r.fieldsToRedact) == 0 {
		return ev, false
	}
	out := ev.Clone()
	redacted := false

	for _, f := range []struct {
		name string
		dst  *string
	}{
		{domain.FieldUsername, &out.Username},
		{domain.FieldPassword, &out.Password},
		{domain.FieldInput, &out.Input},
	} {
		if *f.dst != "" && r.redacts(f.name) {
			*f.dst = RedactedPlaceholder
			redacted = true
		}
	}
	for key := range out.Extra {
		if r.redacts(key) {
			out.Extra[key] = RedactedPlaceholder
			redacted = true
		}
	}
	return out, redacted
}

// Redact scrubs the original event carried by a log record.
func (r *Redactor) Redact(rec domain.LogRecord) domain.LogRecord {
	original, redacted := r.RedactEvent(rec.Original)
	if redacted {
		rec.Original = original
		r.logger.Debug("redacted credential fields", "sequence_id", rec.SequenceID)
	}
	return rec
}
