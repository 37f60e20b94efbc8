package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/V4T54L/honeywatch/internal/adapter/metrics"
	"github.com/V4T54L/honeywatch/internal/domain"
)

const (
	busName              = "nats"
	DefaultSubjectPrefix = "honeywatch.alerts"
)

// Connect dials url and keeps reconnecting in the background.
func Connect(url string, logger *slog.Logger) (*nats.Conn, error) {
	logger = logger.With("component", "nats")
	nc, err := nats.Connect(url,
		nats.Name("honeywatch-sensor"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// AlertPublisher publishes alert records on <prefix>.<threat level>.
type AlertPublisher struct {
	nc      *nats.Conn
	prefix  string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewAlertPublisher(nc *nats.Conn, prefix string, m *metrics.Metrics, logger *slog.Logger) *AlertPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &AlertPublisher{
		nc:      nc,
		prefix:  strings.TrimSuffix(prefix, "."),
		logger:  logger.With("component", "nats_alert_publisher"),
		metrics: m,
	}
}

func (p *AlertPublisher) Name() string { return busName }

// Subject returns the subject a record is published on.
func (p *AlertPublisher) Subject(rec domain.LogRecord) string {
	return p.prefix + "." + rec.ThreatLevel.String()
}

// Publish implements domain.AlertPublisher. Messages are buffered by the
// client while it reconnects.
func (p *AlertPublisher) Publish(ctx context.Context, rec domain.LogRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal alert record: %w", err)
	}

	msg := nats.NewMsg(p.Subject(rec))
	msg.Data = payload
	msg.Header.Set("Threat-Level", rec.ThreatLevel.String())
	msg.Header.Set("Sequence-Id", strconv.FormatUint(rec.SequenceID, 10))

	if err := p.nc.PublishMsg(msg); err != nil {
		p.metrics.ObserveAlert(busName, "failed")
		return fmt.Errorf("failed to publish alert to %s: %w", msg.Subject, err)
	}
	p.metrics.ObserveAlert(busName, "published")
	return nil
}
