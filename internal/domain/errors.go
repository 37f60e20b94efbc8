package domain

import (
	"errors"
	"fmt"
)

var (
	ErrMissingKind       = errors.New("event has no eventid")
	ErrUnsupportedFormat = errors.New("unsupported export format")
	ErrSinkUnavailable   = errors.New("sink unavailable")
	ErrEmptySelection    = errors.New("export selection is empty")
)

// CorpusLoadError reports missing or corrupt reference data.
type CorpusLoadError struct {
	Path string
	Err  error
}

func (e *CorpusLoadError) Error() string {
	return fmt.Sprintf("load corpus %s: %v", e.Path, e.Err)
}

func (e *CorpusLoadError) Unwrap() error { return e.Err }

// EnrichmentFieldError means a rule was skipped because a field was unusable.
type EnrichmentFieldError struct {
	Rule  string
	Field string
	Err   error
}

func (e *EnrichmentFieldError) Error() string {
	return fmt.Sprintf("rule %s: field %s: %v", e.Rule, e.Field, e.Err)
}

func (e *EnrichmentFieldError) Unwrap() error { return e.Err }

// SinkWriteError wraps a failed export or relational write.
type SinkWriteError struct {
	Sink string
	Err  error
}

func (e *SinkWriteError) Error() string {
	return fmt.Sprintf("sink %s: %v", e.Sink, e.Err)
}

func (e *SinkWriteError) Unwrap() error { return e.Err }
