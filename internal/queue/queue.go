// Package queue provides the notification delivery queue. Jobs flow through
// one of two backends selected at startup: a Redis broker with priority,
// delayed, and dead-letter lists, or a database-polling fallback that treats
// un-dispatched notification records as the queue itself.
package queue

import (
	"context"
	"time"
)

// Job is the unit of work handed to a dispatch worker. It denormalises the
// notification fields so a consumer does not need a database read on dequeue.
type Job struct {
	ID             string            `json:"id"`
	NotificationID string            `json:"notification_id"`
	UserID         string            `json:"user_id"`
	Type           string            `json:"type"`
	Title          string            `json:"title"`
	Content        string            `json:"content"`
	Data           map[string]string `json:"data,omitempty"`
	Priority       string            `json:"priority"`
	RetryCount     int               `json:"retry_count"`
	CreatedAt      int64             `json:"created_at"`

	// Delay defers visibility of the job until enqueue time + Delay. It only
	// influences placement at push time and is not carried on the wire.
	Delay time.Duration `json:"-"`
}

// Stats reports queue depths for operational visibility.
type Stats struct {
	BrokerAvailable bool  `json:"broker_available"`
	Normal          int64 `json:"normal_queue_size"`
	Priority        int64 `json:"priority_queue_size"`
	Delayed         int64 `json:"delayed_queue_size"`
	DeadLetter      int64 `json:"dead_letter_queue_size"`
}

// Backend is the uniform queue interface shared by the broker and the
// polling fallback.
type Backend interface {
	// Push enqueues a job. The polling fallback treats this as a no-op
	// because the persisted notification record already is the queue entry.
	Push(ctx context.Context, job Job) error

	// Pop returns the next ready job, or nil when the queue is empty.
	Pop(ctx context.Context) (*Job, error)

	// Retry re-enqueues a job with the next backoff delay and an
	// incremented retry count. The bool reports whether a retry was
	// actually scheduled; the polling fallback never re-enqueues because
	// the record is already claimed by the time a send fails.
	Retry(ctx context.Context, job Job) (bool, error)

	// DeadLetter moves a job that exhausted its retry budget to the
	// terminal failed list.
	DeadLetter(ctx context.Context, job Job) error

	// Stats reports current queue depths.
	Stats(ctx context.Context) (Stats, error)

	// Name identifies the backend in logs.
	Name() string
}

// RetryPolicy controls how often and how late failed jobs are retried.
type RetryPolicy struct {
	MaxRetries int
	Delays     []time.Duration
}

// DefaultRetryPolicy mirrors the production backoff schedule: three attempts
// spaced one, five, and fifteen minutes apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		Delays:     []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute},
	}
}

// DelayFor returns the backoff delay for the given retry ordinal. Ordinals
// beyond the configured list reuse the final delay.
func (p RetryPolicy) DelayFor(retry int) time.Duration {
	if len(p.Delays) == 0 {
		return 15 * time.Minute
	}
	if retry < 0 {
		retry = 0
	}
	if retry >= len(p.Delays) {
		return p.Delays[len(p.Delays)-1]
	}
	return p.Delays[retry]
}
