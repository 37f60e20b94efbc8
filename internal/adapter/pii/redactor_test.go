package pii

import (
	"io"
	"log/slog"
	"testing"

	"github.com/V4T54L/honeywatch/internal/domain"
)

func TestRedactor(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	redactor := NewRedactor([]string{"Password", "ssh_key"}, logger)

	tests := []struct {
		name           string
		input          domain.RawEvent
		expectPassword string
		expectExtra    map[string]any
		expectRedacted bool
	}{
		{
			name:           "Redact password field",
			input:          domain.RawEvent{Kind: domain.KindLoginFailed, Username: "root", Password: "toor"},
			expectPassword: RedactedPlaceholder,
			expectRedacted: true,
		},
		{
			name: "Redact extra field",
			input: domain.RawEvent{
				Kind:  domain.KindCommandInput,
				Extra: map[string]any{"ssh_key": "AAAAB3Nz", "sensor": "edge-1"},
			},
			expectExtra:    map[string]any{"ssh_key": RedactedPlaceholder, "sensor": "edge-1"},
			expectRedacted: true,
		},
		{
			name:           "Nothing to redact",
			input:          domain.RawEvent{Kind: domain.KindSessionConnect, Username: "root"},
			expectRedacted: false,
		},
		{
			name:           "Empty password stays empty",
			input:          domain.RawEvent{Kind: domain.KindLoginFailed},
			expectRedacted: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.input.Clone()

			got, redacted := redactor.RedactEvent(tt.input)

			if redacted != tt.expectRedacted {
				t.Errorf("redacted = %v, want %v", redacted, tt.expectRedacted)
			}
			if got.Password != tt.expectPassword {
				t.Errorf("Password = %q, want %q", got.Password, tt.expectPassword)
			}
			if got.Username != tt.input.Username {
				t.Errorf("Username changed to %q", got.Username)
			}
			for k, v := range tt.expectExtra {
				if got.Extra[k] != v {
					t.Errorf("Extra[%s] = %v, want %v", k, got.Extra[k], v)
				}
			}
			if tt.input.Password != before.Password {
				t.Error("input event was modified")
			}
			for k, v := range before.Extra {
				if tt.input.Extra[k] != v {
					t.Errorf("input extra %s was modified", k)
				}
			}
		})
	}
}

func TestRedactor_Record(t *testing.T) {
	redactor := NewRedactor([]string{"password"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	rec := domain.LogRecord{
		SequenceID: 4,
		Original:   domain.RawEvent{Kind: domain.KindLoginSuccess, Password: "123456"},
	}

	out := redactor.Redact(rec)

	if out.Original.Password != RedactedPlaceholder {
		t.Errorf("Password = %q, want redacted", out.Original.Password)
	}
	if rec.Original.Password != "123456" {
		t.Error("input record was modified")
	}
}
