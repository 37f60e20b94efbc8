// Package corpus loads the attack corpus used for threat scoring.
package corpus

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/V4T54L/honeywatch/internal/domain"
)

// Sources names the files that make up a corpus. Empty paths are skipped.
type Sources struct {
	Patterns   string
	Signatures string
	Ports      string
	Traffic    string
}

func (s Sources) String() string {
	var parts []string
	for _, p := range []string{s.Patterns, s.Signatures, s.Ports, s.Traffic} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ",")
}

// Loader reads and validates corpus files.
type Loader struct {
	sources    Sources
	patterns   *gojsonschema.Schema
	signatures *gojsonschema.Schema
	logger     *slog.Logger
	now        func() time.Time
}

// NewLoader compiles the document schemas.
func NewLoader(sources Sources, logger *slog.Logger) (*Loader, error) {
	patterns, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(patternsSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile patterns schema: %w", err)
	}
	signatures, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(signaturesSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile signatures schema: %w", err)
	}
	return &Loader{
		sources:    sources,
		patterns:   patterns,
		signatures: signatures,
		logger:     logger.With("component", "corpus_loader"),
		now:        time.Now,
	}, nil
}

type patternsDocument struct {
	AttackTypes      []string           `json:"attack_types"`
	PortPatterns     json.RawMessage    `json:"port_patterns"`
	PortStatistics   map[string]int     `json:"port_statistics"`
	AttackSignatures []domain.Signature `json:"attack_signatures"`
	TrafficPatterns  json.RawMessage    `json:"traffic_patterns"`
}

// Load reads every configured source. Files that fail are skipped; the
// returned corpus holds whatever loaded and the error joins every
// *domain.CorpusLoadError encountered.
func (l *Loader) Load(ctx context.Context) (*domain.AttackCorpus, error) {
	c := &domain.AttackCorpus{
		PortFrequency: make(map[int]int),
		Source:        l.sources.String(),
		LoadedAt:      l.now().UTC(),
	}
	var errs []error

	if p := l.sources.Patterns; p != "" {
		if err := l.loadPatterns(p, c); err != nil {
			errs = append(errs, &domain.CorpusLoadError{Path: p, Err: err})
		}
	}
	if err := ctx.Err(); err != nil {
		return c, err
	}
	if p := l.sources.Signatures; p != "" {
		if err := l.loadSignatures(p, c); err != nil {
			errs = append(errs, &domain.CorpusLoadError{Path: p, Err: err})
		}
	}
	if p := l.sources.Ports; p != "" {
		if err := l.loadPorts(p, c); err != nil {
			errs = append(errs, &domain.CorpusLoadError{Path: p, Err: err})
		}
	}
	if p := l.sources.Traffic; p != "" {
		if err := l.loadTraffic(p, c); err != nil {
			errs = append(errs, &domain.CorpusLoadError{Path: p, Err: err})
		}
	}

	l.logger.Info("corpus loaded",
		"attack_types", len(c.AttackTypes),
		"signatures", len(c.Signatures),
		"ports", len(c.PortFrequency),
		"traffic_patterns", c.TrafficSamples,
		"failed_sources", len(errs),
	)
	return c, errors.Join(errs...)
}

// LoadOrEmpty never fails: on any error it logs a warning and, if nothing
// could be read at all, falls back to an empty corpus.
func (l *Loader) LoadOrEmpty(ctx context.Context) *domain.AttackCorpus {
	c, err := l.Load(ctx)
	if err == nil {
		return c
	}
	l.logger.Warn("corpus incomplete", "error", err)
	if len(c.PortFrequency) == 0 && len(c.Signatures) == 0 && len(c.AttackTypes) == 0 {
		l.logger.Warn("no corpus data available, scoring with an empty corpus")
		return domain.EmptyCorpus()
	}
	return c
}

func (l *Loader) loadPatterns(path string, c *domain.AttackCorpus) error {
	raw, err := readDocument(path)
	if err != nil {
		return err
	}
	if err := validate(l.patterns, raw); err != nil {
		return err
	}

	var doc patternsDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode patterns: %w", err)
	}

	c.AttackTypes = doc.AttackTypes
	if err := l.mergePortPatterns(doc.PortPatterns, c.PortFrequency); err != nil {
		return err
	}
	for port, count := range doc.PortStatistics {
		n, err := parsePort(port)
		if err != nil {
			l.logger.Warn("skipping port statistic", "port", port, "error", err)
			continue
		}
		c.PortFrequency[n] = count
	}
	c.Signatures = append(c.Signatures, doc.AttackSignatures...)
	c.TrafficSamples += countItems(doc.TrafficPatterns)
	return nil
}

// port_patterns is either a list of ports or a port -> count map.
func (l *Loader) mergePortPatterns(raw json.RawMessage, freq map[int]int) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if raw[0] == '{' {
		var counts map[string]int
		if err := json.Unmarshal(raw, &counts); err != nil {
			return fmt.Errorf("decode port_patterns: %w", err)
		}
		for port, count := range counts {
			n, err := parsePort(port)
			if err != nil {
				l.logger.Warn("skipping port pattern", "port", port, "error", err)
				continue
			}
			freq[n] = count
		}
		return nil
	}

	var ports []any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&ports); err != nil {
		return fmt.Errorf("decode port_patterns: %w", err)
	}
	for _, p := range ports {
		n, err := parsePort(fmt.Sprint(p))
		if err != nil {
			l.logger.Warn("skipping port pattern", "port", p, "error", err)
			continue
		}
		if _, ok := freq[n]; !ok {
			freq[n] = 0
		}
	}
	return nil
}

func (l *Loader) loadSignatures(path string, c *domain.AttackCorpus) error {
	raw, err := readDocument(path)
	if err != nil {
		return err
	}
	if err := validate(l.signatures, raw); err != nil {
		return err
	}
	var sigs []domain.Signature
	if err := json.Unmarshal(raw, &sigs); err != nil {
		return fmt.Errorf("decode signatures: %w", err)
	}
	c.Signatures = append(c.Signatures, sigs...)
	return nil
}

// loadPorts reads "port<TAB>count" lines. Counts here override the patterns document.
func (l *Loader) loadPorts(path string, c *domain.AttackCorpus) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) != 2 {
			l.logger.Warn("skipping malformed port line", "path", path, "line", line)
			continue
		}
		port, err := parsePort(fields[0])
		if err != nil {
			l.logger.Warn("skipping malformed port line", "path", path, "line", line, "error", err)
			continue
		}
		count, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil || count < 0 {
			l.logger.Warn("skipping malformed port count", "path", path, "line", line)
			continue
		}
		c.PortFrequency[port] = count
	}
	return scanner.Err()
}

func (l *Loader) loadTraffic(path string, c *domain.AttackCorpus) error {
	raw, err := readDocument(path)
	if err != nil {
		return err
	}
	n := countItems(raw)
	if n < 0 {
		return errors.New("traffic patterns must be an array or object")
	}
	c.TrafficSamples += n
	return nil
}

// readDocument returns the file as JSON, converting YAML by extension.
func readDocument(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		out, err := json.Marshal(stringKeys(doc))
		if err != nil {
			return nil, fmt.Errorf("convert yaml: %w", err)
		}
		return out, nil
	default:
		if !json.Valid(data) {
			return nil, errors.New("invalid JSON document")
		}
		return data, nil
	}
}

// stringKeys converts the map[any]any values yaml produces for non-string keys.
func stringKeys(v any) any {
	switch t := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = stringKeys(val)
		}
		return out
	case map[string]any:
		for k, val := range t {
			t[k] = stringKeys(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = stringKeys(val)
		}
		return t
	default:
		return v
	}
}

func validate(schema *gojsonschema.Schema, doc []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("document does not match schema: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// countItems returns the number of elements in a JSON array or object, or -1.
func countItems(raw json.RawMessage) int {
	if len(raw) == 0 || string(raw) == "null" {
		return 0
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		return len(list)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		return len(obj)
	}
	return -1
}

func parsePort(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	if n < 0 || n > 65535 {
		return 0, fmt.Errorf("port %d out of range", n)
	}
	return n, nil
}
