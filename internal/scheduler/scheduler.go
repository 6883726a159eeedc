// Package scheduler runs periodic maintenance of the summary cache.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/localrivet/dialoguesum/internal/summarystore"
	"github.com/localrivet/dialoguesum/internal/telemetry"
)

const (
	DefaultPruneSpec = "@hourly"
	pruneTimeout     = 5 * time.Minute
)

// Pruner is the part of summarystore.Store the scheduler needs.
type Pruner interface {
	Prune(ctx context.Context, olderThan time.Time) (int, error)
}

var _ Pruner = (summarystore.Store)(nil)

type Scheduler struct {
	ctx     context.Context
	cron    *cron.Cron
	store   Pruner
	ttl     time.Duration
	spec    string
	metrics *telemetry.MetricsCollector
	log     *slog.Logger
	now     func() time.Time
}

// New creates a scheduler that removes cache entries older than ttl on the
// cron spec. A zero ttl disables pruning.
func New(ctx context.Context, store Pruner, ttl time.Duration, spec string, metrics *telemetry.MetricsCollector, log *slog.Logger) *Scheduler {
	if spec == "" {
		spec = DefaultPruneSpec
	}
	if log == nil {
		log = slog.Default()
	}

	return &Scheduler{
		ctx:     ctx,
		cron:    cron.New(cron.WithLocation(time.UTC)),
		store:   store,
		ttl:     ttl,
		spec:    spec,
		metrics: metrics,
		log:     log,
		now:     time.Now,
	}
}

func (s *Scheduler) Start() error {
	if s.ttl <= 0 || s.store == nil {
		s.log.Info("Cache pruning disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(s.spec, s.prune); err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info("Cache pruning scheduled", "spec", s.spec, "ttl", s.ttl)

	return nil
}

// Stop stops the cron loop and waits for a running prune to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) prune() {
	ctx, cancel := context.WithTimeout(s.ctx, pruneTimeout)
	defer cancel()

	select {
	case <-ctx.Done():
		s.log.InfoContext(ctx, "Scheduler context is done", "error", ctx.Err())
		return
	default:
	}

	cutoff := s.now().Add(-s.ttl)
	removed, err := s.store.Prune(ctx, cutoff)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to prune summary cache",
			"error", err,
			"cutoff", cutoff)
		return
	}

	if s.metrics != nil {
		s.metrics.IncrementCounter(telemetry.MetricStorePruned, int64(removed))
	}
	s.log.DebugContext(ctx, "Pruned summary cache", "removed", removed, "cutoff", cutoff)
}
