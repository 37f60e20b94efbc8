package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"` // json or text

	ServerAddr      string        `env:"SERVER_ADDR" envDefault:":8080"`
	AdminAddr       string        `env:"ADMIN_ADDR" envDefault:":9091"`
	APIKeys         []string      `env:"API_KEYS" envSeparator:","`
	MaxEventSize    int64         `env:"MAX_EVENT_SIZE_BYTES" envDefault:"1048576"` // 1MB
	IngestRateLimit float64       `env:"INGEST_RATE_LIMIT" envDefault:"0"`          // events/s, 0 disables
	IngestBurst     int           `env:"INGEST_BURST" envDefault:"100"`
	SSEInterval     time.Duration `env:"SSE_INTERVAL" envDefault:"1s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	StoreCapacity    int `env:"STORE_CAPACITY" envDefault:"1000"`
	ScoreCap         int `env:"SCORE_CAP" envDefault:"0"`
	SessionCacheSize int `env:"SESSION_CACHE_SIZE" envDefault:"10000"`

	CorpusPatternsFile   string        `env:"CORPUS_PATTERNS_FILE"`
	CorpusSignaturesFile string        `env:"CORPUS_SIGNATURES_FILE"`
	CorpusPortsFile      string        `env:"CORPUS_PORTS_FILE"`
	CorpusTrafficFile    string        `env:"CORPUS_TRAFFIC_FILE"`
	CorpusReloadInterval time.Duration `env:"CORPUS_RELOAD_INTERVAL" envDefault:"0"`

	DataDir             string `env:"DATA_DIR" envDefault:"./data"`
	EventLogSegmentSize int64  `env:"EVENTLOG_SEGMENT_SIZE_BYTES" envDefault:"104857600"`   // 100MB
	EventLogMaxDiskSize int64  `env:"EVENTLOG_MAX_DISK_SIZE_BYTES" envDefault:"1073741824"` // 1GB

	ExportDir             string        `env:"EXPORT_DIR" envDefault:"./exports"`
	ExportCompression     string        `env:"EXPORT_COMPRESSION" envDefault:"none"`
	ExportIncludeMetadata bool          `env:"EXPORT_INCLUDE_METADATA" envDefault:"true"`
	ExportMaxBuffer       int           `env:"EXPORT_MAX_BUFFER" envDefault:"10000"`
	ExportInterval        time.Duration `env:"EXPORT_INTERVAL" envDefault:"0"`

	RelationalDriver string `env:"RELATIONAL_DRIVER"` // sqlite, postgres or mysql; empty disables the sink
	RelationalDSN    string `env:"RELATIONAL_DSN"`

	SnapshotDir      string        `env:"SNAPSHOT_DIR" envDefault:"./snapshots"`
	SnapshotInterval time.Duration `env:"SNAPSHOT_INTERVAL" envDefault:"0"`
	SnapshotTables   []string      `env:"SNAPSHOT_TABLES" envSeparator:","`
	SnapshotRetries  int           `env:"SNAPSHOT_RETRIES" envDefault:"3"`
	SnapshotBackoff  time.Duration `env:"SNAPSHOT_BACKOFF" envDefault:"1s"`

	RedisURL            string        `env:"REDIS_URL"`
	RedisStream         string        `env:"REDIS_ALERT_STREAM" envDefault:"honeywatch:alerts"`
	RedisMaxLen         int64         `env:"REDIS_ALERT_MAXLEN" envDefault:"100000"`
	RedisHealthInterval time.Duration `env:"REDIS_HEALTH_INTERVAL" envDefault:"5s"`

	NATSURL           string `env:"NATS_URL"`
	NATSSubjectPrefix string `env:"NATS_SUBJECT_PREFIX" envDefault:"honeywatch.alerts"`

	AlertMinLevel      string `env:"ALERT_MIN_LEVEL" envDefault:"high"`
	PIIRedactionFields string `env:"PII_REDACTION_FIELDS" envDefault:"password"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values env cannot check on its own.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat))
	}
	switch strings.ToLower(c.ExportCompression) {
	case "", "none", "gzip", "zstd":
	default:
		errs = append(errs, fmt.Errorf("EXPORT_COMPRESSION must be none, gzip or zstd, got %q", c.ExportCompression))
	}
	switch c.RelationalDriver {
	case "":
	case "sqlite", "postgres", "mysql":
		if c.RelationalDSN == "" {
			errs = append(errs, errors.New("RELATIONAL_DSN is required when RELATIONAL_DRIVER is set"))
		}
	default:
		errs = append(errs, fmt.Errorf("RELATIONAL_DRIVER must be sqlite, postgres or mysql, got %q", c.RelationalDriver))
	}
	if c.MaxEventSize <= 0 {
		errs = append(errs, errors.New("MAX_EVENT_SIZE_BYTES must be positive"))
	}
	if c.IngestRateLimit < 0 {
		errs = append(errs, errors.New("INGEST_RATE_LIMIT must not be negative"))
	}
	return errors.Join(errs...)
}

// RedactionFields splits PII_REDACTION_FIELDS.
func (c *Config) RedactionFields() []string {
	var out []string
	for _, f := range strings.Split(c.PIIRedactionFields, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
