package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/socdo/notifyd/internal/models"
	"github.com/socdo/notifyd/pkg/logger"
)

const (
	pollBatchSize = 50
	pollLookback  = 24 * time.Hour
	pollSafety    = 5 * time.Minute
)

// PollingBackend is the degraded-mode queue used when no broker is
// reachable. Producers write nothing extra: the notification row itself is
// the queue entry, and Pop scans for undelivered rows past a persisted
// low-water mark. Retry and DeadLetter are no-ops because an unclaimed row
// is found again on the next scan.
type PollingBackend struct {
	db         *gorm.DB
	checkpoint Checkpoint
	now        func() time.Time
	log        *zap.Logger

	buffer []Job
	mark   time.Time
	loaded bool
}

func NewPollingBackend(db *gorm.DB, checkpoint Checkpoint) *PollingBackend {
	return &PollingBackend{
		db:         db,
		checkpoint: checkpoint,
		now:        time.Now,
		log:        logger.WithModule("queue.polling"),
	}
}

// Name identifies the backend in logs.
func (b *PollingBackend) Name() string { return "polling" }

// Push is a no-op. The notification row was already persisted by the
// producer and the scanner will find it.
func (b *PollingBackend) Push(ctx context.Context, job Job) error { return nil }

// Pop returns the next buffered job, refilling the buffer with a database
// scan when it runs dry.
func (b *PollingBackend) Pop(ctx context.Context) (*Job, error) {
	if len(b.buffer) == 0 {
		if err := b.refill(ctx); err != nil {
			return nil, err
		}
	}
	if len(b.buffer) == 0 {
		return nil, nil
	}

	job := b.buffer[0]
	b.buffer = b.buffer[1:]
	return &job, nil
}

func (b *PollingBackend) refill(ctx context.Context) error {
	if !b.loaded {
		mark, err := b.checkpoint.Load(ctx)
		if err != nil {
			return fmt.Errorf("queue: load checkpoint: %w", err)
		}
		b.mark = mark
		b.loaded = true
	}

	now := b.now()
	since := b.scanStart(now)

	var rows []models.Notification
	err := b.db.WithContext(ctx).
		Where("push_sent = ? AND created_at > ?", false, since).
		Order("created_at ASC").
		Limit(pollBatchSize).
		Find(&rows).Error
	if err != nil {
		return fmt.Errorf("queue: scan notifications: %w", err)
	}

	if len(rows) == 0 {
		b.mark = now
	} else {
		b.mark = rows[len(rows)-1].CreatedAt
		b.log.Debug("scanned pending notifications", zap.Int("count", len(rows)))
	}

	if err := b.checkpoint.Save(ctx, b.mark); err != nil {
		// Losing the checkpoint only costs a wider rescan later, so the
		// batch is still served.
		b.log.Warn("failed to save poll checkpoint", zap.Error(err))
	}

	b.buffer = b.buffer[:0]
	for _, row := range rows {
		b.buffer = append(b.buffer, jobFromNotification(row))
	}
	return nil
}

// scanStart widens the mark by a safety margin to cover rows committed with
// slightly earlier timestamps, and floors it at the lookback horizon so the
// worker never chews through months of history after long downtime.
func (b *PollingBackend) scanStart(now time.Time) time.Time {
	floor := now.Add(-pollLookback)
	if b.mark.IsZero() {
		return now.Add(-pollSafety)
	}
	since := b.mark.Add(-pollSafety)
	if since.Before(floor) {
		return floor
	}
	return since
}

// Retry never schedules anything: a claimed row is excluded from future
// scans, so the failure is final in polling mode.
func (b *PollingBackend) Retry(ctx context.Context, job Job) (bool, error) { return false, nil }

// DeadLetter is a no-op in polling mode.
func (b *PollingBackend) DeadLetter(ctx context.Context, job Job) error { return nil }

// Stats reports the count of undelivered rows in the lookback window. There
// is no priority or delayed segmentation without a broker.
func (b *PollingBackend) Stats(ctx context.Context) (Stats, error) {
	var pending int64
	err := b.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("push_sent = ? AND created_at > ?", false, b.now().Add(-pollLookback)).
		Count(&pending).Error
	if err != nil {
		return Stats{}, fmt.Errorf("queue: count pending notifications: %w", err)
	}
	return Stats{BrokerAvailable: false, Normal: pending}, nil
}

func jobFromNotification(n models.Notification) Job {
	data := map[string]string{}
	if len(n.Data) > 0 {
		// Values may be numbers in older rows; decode loosely and coerce.
		var loose map[string]any
		if err := json.Unmarshal(n.Data, &loose); err == nil {
			for k, v := range loose {
				data[k] = coerceString(v)
			}
		}
	}

	return Job{
		ID:             n.ID,
		NotificationID: n.ID,
		UserID:         n.UserID,
		Type:           n.Type,
		Title:          n.Title,
		Content:        n.Content,
		Data:           data,
		Priority:       n.Priority,
		CreatedAt:      n.CreatedAt.Unix(),
	}
}

func coerceString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return trimFloat(t)
	case bool:
		if t {
			return "true"
		}
		return "false"
	case nil:
		return ""
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}

func trimFloat(f float64) string {
	raw, _ := json.Marshal(f)
	return string(raw)
}
