package domain

import "time"

// ExportFilter is a conjunction of optional predicates. A nil or empty
// predicate imposes no constraint.
type ExportFilter struct {
	EventKinds []string `json:"event_types,omitempty"`
	Start      *float64 `json:"start_time,omitempty"`
	End        *float64 `json:"end_time,omitempty"`
	SourceIPs  []string `json:"source_ips,omitempty"`
	Sessions   []string `json:"sessions,omitempty"`
}

// IsEmpty reports whether the filter matches every event.
func (f ExportFilter) IsEmpty() bool {
	return len(f.EventKinds) == 0 && f.Start == nil && f.End == nil &&
		len(f.SourceIPs) == 0 && len(f.Sessions) == 0
}

// Normalized returns f with event kinds in their stored form.
func (f ExportFilter) Normalized() ExportFilter {
	if len(f.EventKinds) == 0 {
		return f
	}
	kinds := make([]string, len(f.EventKinds))
	for i, k := range f.EventKinds {
		kinds[i] = NormalizeKind(k)
	}
	f.EventKinds = kinds
	return f
}

// TimeRange builds a filter bounded by [start, end]; a zero time leaves that side open.
func TimeRange(start, end time.Time) ExportFilter {
	var f ExportFilter
	if !start.IsZero() {
		s := epochSeconds(start)
		f.Start = &s
	}
	if !end.IsZero() {
		e := epochSeconds(end)
		f.End = &e
	}
	return f
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// Match reports whether ev satisfies every present predicate. Events without
// a timestamp are not excluded by the time range.
func (f ExportFilter) Match(ev EnrichedEvent) bool {
	if len(f.EventKinds) > 0 && !contains(f.EventKinds, ev.Event.Kind) {
		return false
	}
	if (f.Start != nil || f.End != nil) && !ev.Event.Timestamp.IsZero() {
		ts := epochSeconds(ev.Event.Timestamp)
		if f.Start != nil && ts < *f.Start {
			return false
		}
		if f.End != nil && ts > *f.End {
			return false
		}
	}
	if len(f.SourceIPs) > 0 && !contains(f.SourceIPs, ev.Event.SourceIP) {
		return false
	}
	if len(f.Sessions) > 0 && !contains(f.Sessions, ev.Event.SessionID) {
		return false
	}
	return true
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
