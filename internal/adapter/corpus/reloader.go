package corpus

import (
	"context"
	"log/slog"
	"time"

	"github.com/V4T54L/honeywatch/internal/adapter/metrics"
	"github.com/V4T54L/honeywatch/internal/domain"
)

// Target receives freshly loaded corpora.
type Target interface {
	Reload(corpus *domain.AttackCorpus)
}

// Reloader periodically re-reads the corpus and swaps it into the target.
// A failed reload keeps the corpus currently in use.
type Reloader struct {
	loader   *Loader
	target   Target
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewReloader(loader *Loader, target Target, interval time.Duration, m *metrics.Metrics, logger *slog.Logger) *Reloader {
	return &Reloader{
		loader:   loader,
		target:   target,
		interval: interval,
		metrics:  m,
		logger:   logger.With("component", "corpus_reloader"),
	}
}

// Reload loads the corpus once. On error the target is left untouched.
func (r *Reloader) Reload(ctx context.Context) (domain.CorpusSummary, error) {
	c, err := r.loader.Load(ctx)
	if err != nil {
		r.metrics.ObserveCorpusReload(false)
		r.logger.Warn("corpus reload failed, keeping current corpus", "error", err)
		return domain.CorpusSummary{}, err
	}
	r.target.Reload(c)
	r.metrics.ObserveCorpusReload(true)
	summary := c.Summary()
	r.logger.Info("corpus reloaded", "ports", summary.TargetPorts, "signatures", summary.AttackSignatures)
	return summary, nil
}

// Run reloads on every tick until ctx is cancelled. A non-positive interval disables it.
func (r *Reloader) Run(ctx context.Context) {
	if r.interval <= 0 {
		r.logger.Info("corpus reload disabled")
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("stopping corpus reloader")
			return
		case <-ticker.C:
			_, _ = r.Reload(ctx)
		}
	}
}
