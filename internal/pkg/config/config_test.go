package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("API_KEYS", "a,b")
	t.Setenv("EXPORT_INTERVAL", "90s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.ServerAddr != ":8080" || cfg.StoreCapacity != 1000 {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if len(cfg.APIKeys) != 2 || cfg.APIKeys[1] != "b" {
		t.Errorf("API keys = %v", cfg.APIKeys)
	}
	if cfg.ExportInterval != 90*time.Second || !cfg.ExportIncludeMetadata {
		t.Errorf("export settings = %v %v", cfg.ExportInterval, cfg.ExportIncludeMetadata)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{LogFormat: "json", ExportCompression: "none", MaxEventSize: 1}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "Valid", mutate: func(c *Config) {}},
		{name: "Sqlite With DSN", mutate: func(c *Config) { c.RelationalDriver = "sqlite"; c.RelationalDSN = "x.db" }},
		{name: "Driver Without DSN", mutate: func(c *Config) { c.RelationalDriver = "postgres" }, wantErr: true},
		{name: "Unknown Driver", mutate: func(c *Config) { c.RelationalDriver = "oracle"; c.RelationalDSN = "x" }, wantErr: true},
		{name: "Unknown Compression", mutate: func(c *Config) { c.ExportCompression = "brotli" }, wantErr: true},
		{name: "Unknown Log Format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: true},
		{name: "Negative Rate", mutate: func(c *Config) { c.IngestRateLimit = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRedactionFields(t *testing.T) {
	c := &Config{PIIRedactionFields: "password, ,username,"}
	got := c.RedactionFields()
	if len(got) != 2 || got[0] != "password" || got[1] != "username" {
		t.Errorf("RedactionFields() = %v", got)
	}
}
