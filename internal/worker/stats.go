package worker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/socdo/notifyd/internal/queue"
	"github.com/socdo/notifyd/pkg/logger"
	"github.com/socdo/notifyd/pkg/metrics"
)

const defaultStatsSpec = "@every 30s"

// StatsSampler periodically exports queue depths to the Prometheus gauges.
type StatsSampler struct {
	backend  queue.Backend
	cron     *cron.Cron
	schedule string
	log      *zap.Logger
}

// StatsOption customises the StatsSampler.
type StatsOption func(*StatsSampler)

// WithStatsCron injects a preconfigured cron instance, primarily for testing.
func WithStatsCron(c *cron.Cron) StatsOption {
	return func(s *StatsSampler) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithStatsSchedule overrides the sampling cron specification.
func WithStatsSchedule(spec string) StatsOption {
	return func(s *StatsSampler) {
		if spec != "" {
			s.schedule = spec
		}
	}
}

// NewStatsSampler constructs a StatsSampler.
func NewStatsSampler(backend queue.Backend, opts ...StatsOption) *StatsSampler {
	sampler := &StatsSampler{
		backend:  backend,
		schedule: defaultStatsSpec,
		log:      logger.WithModule("worker.stats"),
	}
	for _, opt := range opts {
		opt(sampler)
	}
	if sampler.cron == nil {
		sampler.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return sampler
}

// Start registers the sampling job and launches the scheduler.
func (s *StatsSampler) Start() error {
	if s.backend == nil {
		return nil
	}
	if _, err := s.cron.AddFunc(s.schedule, s.Sample); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for a running sample to finish.
func (s *StatsSampler) Stop() {
	if s.cron == nil {
		return
	}
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
	}
}

// Sample reads queue depths once and updates the gauges.
func (s *StatsSampler) Sample() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := s.backend.Stats(ctx)
	if err != nil {
		s.log.Warn("queue stats unavailable", zap.Error(err))
		return
	}

	metrics.QueueDepth.WithLabelValues("normal").Set(float64(stats.Normal))
	metrics.QueueDepth.WithLabelValues("priority").Set(float64(stats.Priority))
	metrics.QueueDepth.WithLabelValues("delayed").Set(float64(stats.Delayed))
	metrics.QueueDepth.WithLabelValues("dead_letter").Set(float64(stats.DeadLetter))

	s.log.Debug("queue depth sampled",
		zap.Int64("normal", stats.Normal),
		zap.Int64("priority", stats.Priority),
		zap.Int64("delayed", stats.Delayed),
		zap.Int64("dead_letter", stats.DeadLetter))
}
