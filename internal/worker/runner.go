package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/socdo/notifyd/internal/queue"
	"github.com/socdo/notifyd/pkg/logger"
)

const (
	defaultBatchSize = 50
	defaultIdleSleep = time.Second
)

// Runner drives a Dispatcher against a queue backend in daemon or
// single-pass mode.
type Runner struct {
	dispatcher *Dispatcher
	backend    queue.Backend
	batchSize  int
	idleSleep  time.Duration
	log        *zap.Logger
}

// RunnerOption customises the Runner.
type RunnerOption func(*Runner)

// WithBatchSize bounds how many jobs one pass may process.
func WithBatchSize(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithIdleSleep overrides the pause between daemon iterations.
func WithIdleSleep(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.idleSleep = d
		}
	}
}

// NewRunner constructs a Runner.
func NewRunner(dispatcher *Dispatcher, backend queue.Backend, opts ...RunnerOption) (*Runner, error) {
	if dispatcher == nil {
		return nil, errors.New("worker: dispatcher is required")
	}
	if backend == nil {
		return nil, errors.New("worker: queue backend is required")
	}

	runner := &Runner{
		dispatcher: dispatcher,
		backend:    backend,
		batchSize:  defaultBatchSize,
		idleSleep:  defaultIdleSleep,
		log:        logger.WithModule("worker.runner"),
	}
	for _, opt := range opts {
		opt(runner)
	}
	return runner, nil
}

// RunOnce processes at most one batch of jobs and returns the number
// processed.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	processed := 0
	for processed < r.batchSize {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		job, err := r.backend.Pop(ctx)
		if err != nil {
			return processed, err
		}
		if job == nil {
			break
		}

		if err := r.dispatcher.Dispatch(ctx, *job); err != nil {
			// Infrastructure errors on one job must not wedge the batch.
			r.log.Error("job dispatch failed",
				zap.String("job_id", job.ID),
				zap.Error(err))
		}
		processed++
	}
	return processed, nil
}

// Run loops batches until the context is cancelled, sleeping briefly when
// the queue runs empty.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("dispatch daemon started",
		zap.String("backend", r.backend.Name()),
		zap.Int("batch_size", r.batchSize))

	timer := time.NewTimer(r.idleSleep)
	defer timer.Stop()

	for {
		processed, err := r.RunOnce(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				r.log.Info("dispatch daemon stopping")
				return nil
			}
			r.log.Error("queue pop failed", zap.Error(err))
		}
		if processed > 0 {
			r.log.Debug("batch processed", zap.Int("jobs", processed))
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(r.idleSleep)

		select {
		case <-ctx.Done():
			r.log.Info("dispatch daemon stopping")
			return nil
		case <-timer.C:
		}
	}
}
