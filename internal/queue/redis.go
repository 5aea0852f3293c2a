package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/socdo/notifyd/internal/models"
	"github.com/socdo/notifyd/pkg/logger"
)

// Queue list names, shared with the legacy producers.
const (
	keyNormal   = "notifications:queue"
	keyPriority = "notifications:priority"
	keyDelayed  = "notifications:delayed"
	keyFailed   = "notifications:failed"
)

const defaultProbeTimeout = 2 * time.Second

// RedisConfig captures connection parameters for the broker backend.
type RedisConfig struct {
	Addr      string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
	Policy    RetryPolicy
}

// RedisBackend implements Backend on top of Redis lists and a sorted set:
// two FIFO lists for normal and high-priority jobs, a sorted set keyed by
// ready-time for delayed jobs, and a list for dead-lettered jobs.
type RedisBackend struct {
	client *redis.Client
	prefix string
	policy RetryPolicy
	now    func() time.Time
	log    *zap.Logger
}

// NewRedisBackend connects to Redis and verifies the connection eagerly so
// misconfiguration surfaces during startup, not on the first push.
func NewRedisBackend(cfg RedisConfig) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), defaultProbeTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("queue: redis ping: %w", err)
	}

	policy := cfg.Policy
	if policy.MaxRetries == 0 && len(policy.Delays) == 0 {
		policy = DefaultRetryPolicy()
	}

	return &RedisBackend{
		client: client,
		prefix: cfg.KeyPrefix,
		policy: policy,
		now:    time.Now,
		log:    logger.WithModule("queue.redis"),
	}, nil
}

// Name identifies the backend in logs.
func (b *RedisBackend) Name() string { return "redis" }

// Close releases the underlying Redis connection.
func (b *RedisBackend) Close() error { return b.client.Close() }

// Push places the job on the list matching its delay and priority.
func (b *RedisBackend) Push(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal job: %w", err)
	}

	switch {
	case job.Delay > 0:
		score := float64(b.now().Add(job.Delay).Unix())
		if err := b.client.ZAdd(ctx, b.key(keyDelayed), redis.Z{Score: score, Member: payload}).Err(); err != nil {
			return fmt.Errorf("queue: push delayed job: %w", err)
		}
		b.log.Debug("pushed delayed job",
			zap.String("job_id", job.ID),
			zap.Duration("delay", job.Delay))
	case job.Priority == models.PriorityHigh:
		if err := b.client.LPush(ctx, b.key(keyPriority), payload).Err(); err != nil {
			return fmt.Errorf("queue: push priority job: %w", err)
		}
		b.log.Debug("pushed priority job", zap.String("job_id", job.ID))
	default:
		if err := b.client.LPush(ctx, b.key(keyNormal), payload).Err(); err != nil {
			return fmt.Errorf("queue: push job: %w", err)
		}
		b.log.Debug("pushed job", zap.String("job_id", job.ID))
	}

	return nil
}

// Pop returns the next ready job, preferring ready delayed jobs, then the
// priority list, then the normal list.
func (b *RedisBackend) Pop(ctx context.Context) (*Job, error) {
	if job, err := b.popDelayed(ctx); err != nil || job != nil {
		return job, err
	}

	for _, key := range []string{b.key(keyPriority), b.key(keyNormal)} {
		raw, err := b.client.RPop(ctx, key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("queue: pop from %s: %w", key, err)
		}
		return decodeJob([]byte(raw))
	}

	return nil, nil
}

func (b *RedisBackend) popDelayed(ctx context.Context) (*Job, error) {
	max := strconv.FormatInt(b.now().Unix(), 10)
	members, err := b.client.ZRangeByScore(ctx, b.key(keyDelayed), &redis.ZRangeBy{
		Min:    "0",
		Max:    max,
		Offset: 0,
		Count:  1,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: range delayed set: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	removed, err := b.client.ZRem(ctx, b.key(keyDelayed), members[0]).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: remove delayed job: %w", err)
	}
	if removed == 0 {
		// Another worker took the member between range and remove.
		return nil, nil
	}

	return decodeJob([]byte(members[0]))
}

// Retry re-schedules the job into the delayed set with the next backoff
// delay and an incremented retry count.
func (b *RedisBackend) Retry(ctx context.Context, job Job) (bool, error) {
	delay := b.policy.DelayFor(job.RetryCount)
	job.RetryCount++

	payload, err := json.Marshal(job)
	if err != nil {
		return false, fmt.Errorf("queue: marshal retry job: %w", err)
	}

	score := float64(b.now().Add(delay).Unix())
	if err := b.client.ZAdd(ctx, b.key(keyDelayed), redis.Z{Score: score, Member: payload}).Err(); err != nil {
		return false, fmt.Errorf("queue: schedule retry: %w", err)
	}

	b.log.Info("retrying job",
		zap.String("job_id", job.ID),
		zap.Int("attempt", job.RetryCount),
		zap.Duration("delay", delay))
	return true, nil
}

// DeadLetter moves the job to the terminal failed list.
func (b *RedisBackend) DeadLetter(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal dead-letter job: %w", err)
	}

	if err := b.client.LPush(ctx, b.key(keyFailed), payload).Err(); err != nil {
		return fmt.Errorf("queue: dead-letter job: %w", err)
	}

	b.log.Warn("job dead-lettered",
		zap.String("job_id", job.ID),
		zap.Int("retry_count", job.RetryCount))
	return nil
}

// Stats reports the depth of every list.
func (b *RedisBackend) Stats(ctx context.Context) (Stats, error) {
	normal, err := b.client.LLen(ctx, b.key(keyNormal)).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("queue: stat normal list: %w", err)
	}
	priority, err := b.client.LLen(ctx, b.key(keyPriority)).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("queue: stat priority list: %w", err)
	}
	delayed, err := b.client.ZCard(ctx, b.key(keyDelayed)).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("queue: stat delayed set: %w", err)
	}
	failed, err := b.client.LLen(ctx, b.key(keyFailed)).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("queue: stat failed list: %w", err)
	}

	return Stats{
		BrokerAvailable: true,
		Normal:          normal,
		Priority:        priority,
		Delayed:         delayed,
		DeadLetter:      failed,
	}, nil
}

func (b *RedisBackend) key(name string) string {
	return b.prefix + name
}

func decodeJob(raw []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("queue: decode job: %w", err)
	}
	return &job, nil
}
