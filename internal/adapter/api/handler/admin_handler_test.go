package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/V4T54L/honeywatch/internal/domain"
)

type fakeCorpus struct{ c *domain.AttackCorpus }

func (f fakeCorpus) Corpus() *domain.AttackCorpus { return f.c }

type fakeReloader struct{ err error }

func (f fakeReloader) Reload(ctx context.Context) (domain.CorpusSummary, error) {
	if f.err != nil {
		return domain.CorpusSummary{}, f.err
	}
	return domain.CorpusSummary{Source: "reloaded"}, nil
}

type fakeAlertStream struct {
	info      domain.AlertStreamInfo
	recent    []domain.LogRecord
	trimmedTo int64
}

func (f *fakeAlertStream) Info(ctx context.Context) (domain.AlertStreamInfo, error) {
	return f.info, nil
}

func (f *fakeAlertStream) Recent(ctx context.Context, count int64) ([]domain.LogRecord, error) {
	return f.recent, nil
}

func (f *fakeAlertStream) Trim(ctx context.Context, maxLen int64) (int64, error) {
	f.trimmedTo = maxLen
	return 4, nil
}

type fakeExportBuffer struct{ cleared int }

func (f *fakeExportBuffer) ClearExportBuffer() int {
	f.cleared++
	return 12
}

func TestAdminHandler_ClearExportBuffer(t *testing.T) {
	buf := &fakeExportBuffer{}
	h := NewAdminHandler(AdminDeps{Exports: buf}, testLogger)

	rr := httptest.NewRecorder()
	h.ClearExportBuffer(rr, httptest.NewRequest(http.MethodPost, "/admin/export/clear", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"cleared":12`) {
		t.Errorf("got %d %s", rr.Code, rr.Body.String())
	}
	if buf.cleared != 1 {
		t.Errorf("cleared %d times, want 1", buf.cleared)
	}
}

func TestAdminHandler_NotConfigured(t *testing.T) {
	h := NewAdminHandler(AdminDeps{}, testLogger)
	handlers := map[string]http.HandlerFunc{
		"corpus":     h.GetCorpus,
		"reload":     h.ReloadCorpus,
		"relational": h.GetRelationalStats,
		"alerts":     h.GetAlertStream,
		"trim":       h.TrimAlertStream,
		"export":     h.ClearExportBuffer,
	}
	for name, fn := range handlers {
		t.Run(name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			fn(rr, httptest.NewRequest(http.MethodGet, "/", nil))
			if rr.Code != http.StatusServiceUnavailable {
				t.Errorf("status = %d, want 503", rr.Code)
			}
		})
	}
}

func TestAdminHandler_Corpus(t *testing.T) {
	c := domain.EmptyCorpus()
	c.Source = "patterns.json"
	c.PortFrequency[22] = 900

	t.Run("Summary", func(t *testing.T) {
		h := NewAdminHandler(AdminDeps{Corpus: fakeCorpus{c}}, testLogger)
		rr := httptest.NewRecorder()
		h.GetCorpus(rr, httptest.NewRequest(http.MethodGet, "/admin/corpus", nil))
		if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"source":"patterns.json"`) {
			t.Errorf("got %d %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("Reload Failure", func(t *testing.T) {
		h := NewAdminHandler(AdminDeps{Reloader: fakeReloader{err: errors.New("bad schema")}}, testLogger)
		rr := httptest.NewRecorder()
		h.ReloadCorpus(rr, httptest.NewRequest(http.MethodPost, "/admin/corpus/reload", nil))
		if rr.Code != http.StatusBadGateway || !strings.Contains(rr.Body.String(), "bad schema") {
			t.Errorf("got %d %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("Reload Success", func(t *testing.T) {
		h := NewAdminHandler(AdminDeps{Reloader: fakeReloader{}}, testLogger)
		rr := httptest.NewRecorder()
		h.ReloadCorpus(rr, httptest.NewRequest(http.MethodPost, "/admin/corpus/reload", nil))
		if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "reloaded") {
			t.Errorf("got %d %s", rr.Code, rr.Body.String())
		}
	})
}

func TestAdminHandler_AlertStream(t *testing.T) {
	t.Run("Unavailable Skips Recent", func(t *testing.T) {
		alerts := &fakeAlertStream{
			info:   domain.AlertStreamInfo{Bus: "redis", Available: false, Spooled: 512},
			recent: []domain.LogRecord{{SequenceID: 9}},
		}
		h := NewAdminHandler(AdminDeps{Alerts: alerts}, testLogger)
		rr := httptest.NewRecorder()
		h.GetAlertStream(rr, httptest.NewRequest(http.MethodGet, "/admin/alerts", nil))
		body := rr.Body.String()
		if rr.Code != http.StatusOK || !strings.Contains(body, `"recent":[]`) || !strings.Contains(body, `"spooled_bytes":512`) {
			t.Errorf("got %d %s", rr.Code, body)
		}
	})

	t.Run("Bad Count", func(t *testing.T) {
		h := NewAdminHandler(AdminDeps{Alerts: &fakeAlertStream{}}, testLogger)
		rr := httptest.NewRecorder()
		h.GetAlertStream(rr, httptest.NewRequest(http.MethodGet, "/admin/alerts?count=x", nil))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rr.Code)
		}
	})

	t.Run("Trim", func(t *testing.T) {
		alerts := &fakeAlertStream{}
		h := NewAdminHandler(AdminDeps{Alerts: alerts}, testLogger)

		rr := httptest.NewRecorder()
		h.TrimAlertStream(rr, httptest.NewRequest(http.MethodPost, "/admin/alerts/trim", strings.NewReader(`{"maxlen":100}`)))
		if rr.Code != http.StatusOK || rr.Body.String() != `{"trimmed":4}` || alerts.trimmedTo != 100 {
			t.Errorf("got %d %s (trimmed to %d)", rr.Code, rr.Body.String(), alerts.trimmedTo)
		}

		rr = httptest.NewRecorder()
		h.TrimAlertStream(rr, httptest.NewRequest(http.MethodPost, "/admin/alerts/trim", strings.NewReader(`{"maxlen":0}`)))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rr.Code)
		}
	})
}
