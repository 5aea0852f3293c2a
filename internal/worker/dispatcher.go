// Package worker runs the notification dispatch pipeline: it pops jobs from
// the queue, claims the underlying record, resolves the user's devices, and
// drives the push gateway with retry, dead-lettering, and dead-token
// deactivation.
package worker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/socdo/notifyd/internal/models"
	"github.com/socdo/notifyd/internal/push"
	"github.com/socdo/notifyd/internal/queue"
	"github.com/socdo/notifyd/internal/services"
	"github.com/socdo/notifyd/pkg/logger"
	"github.com/socdo/notifyd/pkg/metrics"
)

// Gateway sends one push message to one device registration.
type Gateway interface {
	Send(ctx context.Context, token string, msg push.Message) error
}

// Dispatcher executes the per-job delivery procedure.
type Dispatcher struct {
	notifications *services.NotificationService
	devices       *services.DeviceTokenService
	backend       queue.Backend
	gateway       Gateway
	maxRetries    int
	log           *zap.Logger
}

// NewDispatcher constructs a Dispatcher. maxRetries <= 0 falls back to the
// default retry policy ceiling.
func NewDispatcher(notifications *services.NotificationService, devices *services.DeviceTokenService, backend queue.Backend, gateway Gateway, maxRetries int) (*Dispatcher, error) {
	if notifications == nil {
		return nil, errors.New("worker: notification service is required")
	}
	if devices == nil {
		return nil, errors.New("worker: device token service is required")
	}
	if gateway == nil {
		return nil, errors.New("worker: gateway is required")
	}
	if maxRetries <= 0 {
		maxRetries = queue.DefaultRetryPolicy().MaxRetries
	}
	return &Dispatcher{
		notifications: notifications,
		devices:       devices,
		backend:       backend,
		gateway:       gateway,
		maxRetries:    maxRetries,
		log:           logger.WithModule("worker"),
	}, nil
}

// Dispatch processes a single job. The error return covers infrastructure
// failures only; delivery failures are absorbed into retry or dead-letter
// handling.
func (d *Dispatcher) Dispatch(ctx context.Context, job queue.Job) error {
	log := d.log.With(
		zap.String("job_id", job.ID),
		zap.String("notification_id", job.NotificationID),
		zap.String("user_id", job.UserID))

	// First attempts race other workers for the claim. Retries already won
	// it on their first attempt, so re-checking would drop the job.
	if job.RetryCount == 0 {
		claimed, err := d.notifications.Claim(ctx, job.NotificationID)
		if err != nil {
			metrics.JobsProcessed.WithLabelValues("error").Inc()
			return fmt.Errorf("worker: claim: %w", err)
		}
		if !claimed {
			metrics.JobsProcessed.WithLabelValues("already_claimed").Inc()
			log.Debug("notification already claimed, skipping")
			return nil
		}
	}

	tokens, err := d.devices.ListActive(ctx, job.UserID)
	if err != nil {
		metrics.JobsProcessed.WithLabelValues("error").Inc()
		return fmt.Errorf("worker: list device tokens: %w", err)
	}
	if len(tokens) == 0 {
		metrics.JobsProcessed.WithLabelValues("no_tokens").Inc()
		log.Debug("no active device tokens, nothing to deliver")
		return nil
	}

	outcome := d.sendToDevices(ctx, job, tokens)

	if len(outcome.dead) > 0 {
		if _, err := d.devices.DeactivateMany(ctx, outcome.dead); err != nil {
			log.Error("failed to deactivate dead tokens", zap.Error(err))
		}
	}

	if len(outcome.delivered) > 0 {
		if err := d.devices.Touch(ctx, outcome.delivered); err != nil {
			log.Warn("failed to stamp delivered tokens", zap.Error(err))
		}
		metrics.JobsProcessed.WithLabelValues("delivered").Inc()
		log.Info("notification delivered",
			zap.Int("devices", len(outcome.delivered)),
			zap.Int("failed", len(tokens)-len(outcome.delivered)))
		return nil
	}

	if !outcome.retryable() {
		// Every failure was permanent; the tokens are gone and a retry can
		// never succeed.
		metrics.JobsProcessed.WithLabelValues("no_tokens").Inc()
		log.Info("all device tokens unregistered", zap.Int("deactivated", len(outcome.dead)))
		return nil
	}

	return d.handleTransientFailure(ctx, job, outcome.errs, log)
}

func (d *Dispatcher) handleTransientFailure(ctx context.Context, job queue.Job, sendErr error, log *zap.Logger) error {
	if d.backend == nil {
		// Direct-dispatch mode has no retry queue; the record stays claimed
		// per the at-most-one-attempt contract.
		metrics.JobsProcessed.WithLabelValues("error").Inc()
		return fmt.Errorf("worker: delivery failed: %w", sendErr)
	}

	if job.RetryCount >= d.maxRetries {
		if err := d.backend.DeadLetter(ctx, job); err != nil {
			metrics.JobsProcessed.WithLabelValues("error").Inc()
			return fmt.Errorf("worker: dead-letter: %w", err)
		}
		metrics.JobsProcessed.WithLabelValues("dead_lettered").Inc()
		log.Warn("retry budget exhausted, job dead-lettered",
			zap.Int("retry_count", job.RetryCount),
			zap.Error(sendErr))
		return nil
	}

	requeued, err := d.backend.Retry(ctx, job)
	if err != nil {
		metrics.JobsProcessed.WithLabelValues("error").Inc()
		return fmt.Errorf("worker: schedule retry: %w", err)
	}
	if !requeued {
		metrics.JobsProcessed.WithLabelValues("abandoned").Inc()
		log.Warn("delivery failed, record stays claimed with no retry",
			zap.Int("retry_count", job.RetryCount),
			zap.Error(sendErr))
		return nil
	}
	metrics.JobsProcessed.WithLabelValues("retried").Inc()
	log.Info("delivery failed, retry scheduled",
		zap.Int("retry_count", job.RetryCount),
		zap.Error(sendErr))
	return nil
}

type sendOutcome struct {
	delivered []string
	dead      []string
	errs      error
	transient int
}

func (o *sendOutcome) retryable() bool { return o.transient > 0 }

// sendToDevices performs the sequential per-token sends and classifies each
// failure as permanent (dead registration) or transient.
func (d *Dispatcher) sendToDevices(ctx context.Context, job queue.Job, tokens []models.DeviceToken) sendOutcome {
	msg := push.Message{
		Title:    job.Title,
		Body:     job.Content,
		Data:     job.Data,
		Priority: job.Priority,
	}

	var outcome sendOutcome
	for _, device := range tokens {
		err := d.gateway.Send(ctx, device.DeviceToken, msg)
		if err == nil {
			outcome.delivered = append(outcome.delivered, device.DeviceToken)
			continue
		}

		var sendErr *push.SendError
		if errors.As(err, &sendErr) && sendErr.Permanent() {
			outcome.dead = append(outcome.dead, device.DeviceToken)
		} else {
			outcome.transient++
		}
		outcome.errs = multierr.Append(outcome.errs, err)
	}
	return outcome
}
