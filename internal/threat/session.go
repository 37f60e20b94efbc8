package threat

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/V4T54L/honeywatch/internal/domain"
)

const defaultSessionCacheSize = 10000

// SessionTracker remembers when sessions connected so that a close event
// without a duration can be given one before scoring.
type SessionTracker struct {
	connects *lru.Cache[string, time.Time]
}

// NewSessionTracker returns a tracker holding at most size sessions.
func NewSessionTracker(size int) (*SessionTracker, error) {
	if size <= 0 {
		size = defaultSessionCacheSize
	}
	cache, err := lru.New[string, time.Time](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}
	return &SessionTracker{connects: cache}, nil
}

// Annotate returns ev with derived fields filled in. The input is not modified.
func (t *SessionTracker) Annotate(ev domain.RawEvent, now time.Time) domain.RawEvent {
	if ev.SessionID == "" {
		return ev
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = now
	}

	switch ev.Kind {
	case domain.KindSessionConnect:
		t.connects.Add(ev.SessionID, ts)
	case domain.KindSessionClosed:
		started, ok := t.connects.Get(ev.SessionID)
		t.connects.Remove(ev.SessionID)
		if !ok || ev.Duration != nil {
			return ev
		}
		// leave a present but malformed duration for the rule to report
		if _, present := ev.Extra[domain.FieldDuration]; present {
			return ev
		}
		d := ts.Sub(started).Seconds()
		if d < 0 {
			d = 0
		}
		out := ev.Clone()
		out.Duration = &d
		return out
	}
	return ev
}

// Len reports how many sessions are being tracked.
func (t *SessionTracker) Len() int {
	return t.connects.Len()
}
