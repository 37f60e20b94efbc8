package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/honeywatch/internal/adapter/metrics"
	"github.com/V4T54L/honeywatch/internal/domain"
)

const (
	busName          = "redis"
	DefaultStreamKey = "honeywatch:alerts"
)

// Spool is where alerts wait while Redis is unreachable. Drain must keep
// records written while it runs.
type Spool interface {
	Write(ctx context.Context, record domain.LogRecord) error
	Drain(ctx context.Context, handler func(record domain.LogRecord) error) error
	Size() int64
}

// AlertRepository publishes alert records to a Redis Stream. While Redis is
// unreachable records are written to the spool and replayed on recovery.
type AlertRepository struct {
	client      *redis.Client
	logger      *slog.Logger
	spool       Spool
	stream      string
	maxLen      int64
	metrics     *metrics.Metrics
	isAvailable atomic.Bool

	// spoolMu is held for reading by spool writers and for writing while the
	// repository switches back to publishing.
	spoolMu sync.RWMutex
}

// NewAlertRepository pings Redis once; an unreachable server starts the
// repository in spooling mode rather than failing. spool may be nil.
func NewAlertRepository(ctx context.Context, client *redis.Client, stream string, maxLen int64, spool Spool, m *metrics.Metrics, logger *slog.Logger) *AlertRepository {
	if stream == "" {
		stream = DefaultStreamKey
	}
	r := &AlertRepository{
		client:  client,
		logger:  logger.With("component", "redis_alert_repository", "stream", stream),
		spool:   spool,
		stream:  stream,
		maxLen:  maxLen,
		metrics: m,
	}
	r.isAvailable.Store(true)
	if err := client.Ping(ctx).Err(); err != nil {
		r.markUnavailable(err)
	}
	return r
}

func (r *AlertRepository) Name() string { return busName }

// Available reports the last known Redis state.
func (r *AlertRepository) Available() bool { return r.isAvailable.Load() }

// Publish implements domain.AlertPublisher.
func (r *AlertRepository) Publish(ctx context.Context, rec domain.LogRecord) error {
	if !r.isAvailable.Load() {
		if spooled, err := r.spoolIfUnavailable(ctx, rec, nil); spooled {
			return err
		}
	}

	err := r.xadd(ctx, rec)
	if err == nil {
		r.metrics.ObserveAlert(busName, "published")
		return nil
	}
	if isNetworkError(err) {
		r.markUnavailable(err)
		if spooled, serr := r.spoolIfUnavailable(ctx, rec, err); spooled {
			return serr
		}
		if err = r.xadd(ctx, rec); err == nil {
			r.metrics.ObserveAlert(busName, "published")
			return nil
		}
	}
	r.metrics.ObserveAlert(busName, "failed")
	return err
}

// spoolIfUnavailable spools rec unless the repository recovered in the
// meantime, in which case it reports false and the caller publishes.
func (r *AlertRepository) spoolIfUnavailable(ctx context.Context, rec domain.LogRecord, cause error) (bool, error) {
	r.spoolMu.RLock()
	defer r.spoolMu.RUnlock()
	if r.isAvailable.Load() {
		return false, nil
	}
	return true, r.spoolRecord(ctx, rec, cause)
}

func (r *AlertRepository) spoolRecord(ctx context.Context, rec domain.LogRecord, cause error) error {
	if r.spool == nil {
		r.metrics.ObserveAlert(busName, "dropped")
		if cause == nil {
			cause = domain.ErrSinkUnavailable
		}
		return fmt.Errorf("redis unavailable and no spool configured: %w", cause)
	}
	if err := r.spool.Write(ctx, rec); err != nil {
		r.metrics.ObserveAlert(busName, "dropped")
		return fmt.Errorf("failed to spool alert %d: %w", rec.SequenceID, err)
	}
	r.metrics.ObserveAlert(busName, "spooled")
	r.logger.Debug("Redis unavailable, alert spooled", "sequence_id", rec.SequenceID)
	return nil
}

func (r *AlertRepository) markUnavailable(err error) {
	if r.isAvailable.CompareAndSwap(true, false) {
		r.logger.Error("Redis connection lost, spooling alerts", "error", err)
		r.metrics.SetSpoolActive(true)
	}
}

// StartHealthCheck pings Redis every interval and replays the spool when the
// connection comes back. It blocks until ctx is done.
func (r *AlertRepository) StartHealthCheck(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("Starting Redis health check", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Stopping Redis health check")
			return
		case <-ticker.C:
			r.checkHealth(ctx)
		}
	}
}

func (r *AlertRepository) checkHealth(ctx context.Context) {
	if err := r.client.Ping(ctx).Err(); err != nil {
		r.markUnavailable(err)
		return
	}
	if r.isAvailable.Load() {
		return
	}
	r.logger.Info("Redis connection recovered")
	if err := r.ReplaySpool(ctx); err != nil {
		r.logger.Error("Failed to replay spool after Redis recovery", "error", err)
		return
	}

	// Second pass with spool writers held off picks up alerts spooled during
	// the first one; publishing resumes before they are let go.
	r.spoolMu.Lock()
	err := r.ReplaySpool(ctx)
	if err == nil {
		r.isAvailable.Store(true)
	}
	r.spoolMu.Unlock()
	if err != nil {
		r.logger.Error("Failed to replay spool after Redis recovery", "error", err)
		return
	}
	r.metrics.SetSpoolActive(false)
}

// ReplaySpool drains the spool into the stream. Alerts spooled while it runs
// stay in the spool for the next pass; on failure the spool keeps everything.
func (r *AlertRepository) ReplaySpool(ctx context.Context) error {
	if r.spool == nil {
		return nil
	}
	replayed := 0
	err := r.spool.Drain(ctx, func(rec domain.LogRecord) error {
		if err := r.xadd(ctx, rec); err != nil {
			return err
		}
		replayed++
		return nil
	})
	if err != nil {
		return fmt.Errorf("spool replay failed after %d records: %w", replayed, err)
	}
	if replayed > 0 {
		r.logger.Info("Spooled alerts replayed to Redis", "count", replayed)
	}
	return nil
}

func (r *AlertRepository) xadd(ctx context.Context, rec domain.LogRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal alert record: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]interface{}{
			"payload":      payload,
			"threat_level": rec.ThreatLevel.String(),
			"src_ip":       rec.SourceIP,
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}

	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to XADD to redis stream: %w", err)
	}
	return nil
}

func isNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, redis.ErrClosed) || errors.Is(err, context.DeadlineExceeded)
}
