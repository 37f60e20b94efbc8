package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/V4T54L/honeywatch/internal/domain"
	"github.com/V4T54L/honeywatch/internal/domain/mocks"
)

type stubExporter struct {
	calls []string
}

func (s *stubExporter) Export(ctx context.Context, f domain.ExportFilter, dest string) (domain.ExportResult, error) {
	s.calls = append(s.calls, "json:"+dest)
	return domain.ExportResult{Path: dest, Success: true}, nil
}

func (s *stubExporter) ExportSQL(ctx context.Context, f domain.ExportFilter, dest string) (domain.ExportResult, error) {
	s.calls = append(s.calls, "sql:"+dest)
	return domain.ExportResult{Path: dest, Success: true}, nil
}

func (s *stubExporter) WriteJSON(w io.Writer, f domain.ExportFilter) (int, error) {
	io.WriteString(w, "{}")
	return 1, nil
}

func (s *stubExporter) WriteSQL(w io.Writer, f domain.ExportFilter) (int, error) {
	io.WriteString(w, "INSERT")
	return 2, nil
}

func (s *stubExporter) ExportByTimeRange(ctx context.Context, hours float64) (domain.ExportResult, error) {
	s.calls = append(s.calls, fmt.Sprintf("hours:%g", hours))
	return domain.ExportResult{Success: true}, nil
}

func (s *stubExporter) ExportByEventKinds(ctx context.Context, kinds []string) (domain.ExportResult, error) {
	s.calls = append(s.calls, "kinds:"+strings.Join(kinds, ","))
	return domain.ExportResult{Success: true}, nil
}

func (s *stubExporter) ExportBySourceIPs(ctx context.Context, ips []string) (domain.ExportResult, error) {
	s.calls = append(s.calls, "ips:"+strings.Join(ips, ","))
	return domain.ExportResult{Success: true}, nil
}

func (s *stubExporter) Clear() { s.calls = append(s.calls, "clear") }

func (s *stubExporter) Stats() domain.ExportStats { return domain.ExportStats{Buffered: 5} }

func TestQueryUseCase_Export(t *testing.T) {
	testCases := []struct {
		name    string
		format  domain.ExportFormat
		want    string
		wantErr error
	}{
		{name: "Default Format", format: "", want: "json:out"},
		{name: "JSON", format: domain.FormatJSON, want: "json:out"},
		{name: "SQL", format: domain.FormatSQL, want: "sql:out"},
		{name: "Unsupported", format: "csv", wantErr: domain.ErrUnsupportedFormat},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			exp := &stubExporter{}
			uc := NewQueryUseCase(&mocks.MockEventStore{}, exp)

			_, err := uc.Export(context.Background(), domain.ExportFilter{}, tc.format, "out")
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Export error = %v, want %v", err, tc.wantErr)
			}
			if tc.want != "" && (len(exp.calls) != 1 || exp.calls[0] != tc.want) {
				t.Errorf("exporter calls = %v, want [%s]", exp.calls, tc.want)
			}
		})
	}
}

func TestQueryUseCase_Stream(t *testing.T) {
	uc := NewQueryUseCase(&mocks.MockEventStore{}, &stubExporter{})

	var buf bytes.Buffer
	n, err := uc.Stream(context.Background(), &buf, domain.ExportFilter{}, domain.FormatSQL)
	if err != nil || n != 2 || buf.String() != "INSERT" {
		t.Errorf("Stream = %d, %v, body %q", n, err, buf.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := uc.Stream(ctx, &buf, domain.ExportFilter{}, domain.FormatJSON); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestQueryUseCase_EventsAndStats(t *testing.T) {
	store := &mocks.MockEventStore{}
	store.Admit(domain.RawEvent{Kind: domain.KindSessionConnect}, domain.ThreatInsight{})
	store.Admit(domain.RawEvent{Kind: domain.KindLoginFailed}, domain.ThreatInsight{})
	store.Admit(domain.RawEvent{Kind: domain.KindLoginFailed}, domain.ThreatInsight{})
	uc := NewQueryUseCase(store, &stubExporter{})

	if got := uc.Events(domain.QueryOptions{Kind: domain.KindLoginFailed, Limit: 1}); len(got) != 1 || got[0].SequenceID != 3 {
		t.Errorf("Events = %+v", got)
	}
	if st := uc.Stats(); st.Size != 3 || st.ByKind[domain.KindLoginFailed] != 2 {
		t.Errorf("Stats = %+v", st)
	}
	if uc.ExportStats().Buffered != 5 {
		t.Error("export stats not forwarded")
	}
}

func TestQueryUseCase_ConvenienceExports(t *testing.T) {
	ctx := context.Background()
	testCases := []struct {
		name    string
		run     func(uc *QueryUseCase) error
		want    string
		wantErr error
	}{
		{
			name: "Recent",
			run:  func(uc *QueryUseCase) error { _, err := uc.ExportRecent(ctx, 1.5); return err },
			want: "hours:1.5",
		},
		{
			name:    "Recent Needs Positive Hours",
			run:     func(uc *QueryUseCase) error { _, err := uc.ExportRecent(ctx, 0); return err },
			wantErr: domain.ErrEmptySelection,
		},
		{
			name: "Kinds Are Normalized",
			run: func(uc *QueryUseCase) error {
				_, err := uc.ExportKinds(ctx, []string{"cowrie.login.failed", domain.KindCommandInput})
				return err
			},
			want: "kinds:login.failed,command.input",
		},
		{
			name:    "Kinds Required",
			run:     func(uc *QueryUseCase) error { _, err := uc.ExportKinds(ctx, nil); return err },
			wantErr: domain.ErrEmptySelection,
		},
		{
			name: "Source IPs",
			run: func(uc *QueryUseCase) error {
				_, err := uc.ExportSourceIPs(ctx, []string{"10.0.0.1", "10.0.0.2"})
				return err
			},
			want: "ips:10.0.0.1,10.0.0.2",
		},
		{
			name:    "Source IPs Required",
			run:     func(uc *QueryUseCase) error { _, err := uc.ExportSourceIPs(ctx, []string{}); return err },
			wantErr: domain.ErrEmptySelection,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			exp := &stubExporter{}
			uc := NewQueryUseCase(&mocks.MockEventStore{}, exp)

			if err := tc.run(uc); !errors.Is(err, tc.wantErr) {
				t.Fatalf("error = %v, want %v", err, tc.wantErr)
			}
			if tc.want != "" && (len(exp.calls) != 1 || exp.calls[0] != tc.want) {
				t.Errorf("exporter calls = %v, want [%s]", exp.calls, tc.want)
			}
			if tc.wantErr != nil && len(exp.calls) != 0 {
				t.Errorf("exporter called on invalid input: %v", exp.calls)
			}
		})
	}
}

func TestQueryUseCase_ClearExportBuffer(t *testing.T) {
	exp := &stubExporter{}
	uc := NewQueryUseCase(&mocks.MockEventStore{}, exp)

	if n := uc.ClearExportBuffer(); n != 5 {
		t.Errorf("ClearExportBuffer = %d, want 5", n)
	}
	if len(exp.calls) != 1 || exp.calls[0] != "clear" {
		t.Errorf("exporter calls = %v", exp.calls)
	}
}
