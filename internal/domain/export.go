package domain

import "time"

// ExportFormat selects the serialization used for an export.
type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatSQL  ExportFormat = "sql"
)

// ParseExportFormat defaults to JSON for an empty string.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(s) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatSQL:
		return FormatSQL, nil
	}
	return "", ErrUnsupportedFormat
}

// ExportResult describes one completed or failed export.
type ExportResult struct {
	Path       string    `json:"path,omitempty"`
	EventCount int       `json:"event_count"`
	ByteSize   int64     `json:"byte_size"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	ExportedAt time.Time `json:"exported_at"`
}

// ExportStats is a point-in-time view of the export buffer.
type ExportStats struct {
	Buffered     int            `json:"buffered"`
	ByKind       map[string]int `json:"by_kind"`
	TotalAdded   uint64         `json:"total_added"`
	Exports      uint64         `json:"exports"`
	Failures     uint64         `json:"failures"`
	LastExport   *ExportResult  `json:"last_export,omitempty"`
	MaxBuffer    int            `json:"max_buffer_size"`
	Compression  string         `json:"compression"`
	AutoInterval time.Duration  `json:"auto_export_interval"`
}
