package queue

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/socdo/notifyd/internal/database"
)

const checkpointKey = "queue.poll_checkpoint"

// Checkpoint persists the polling backend's low-water mark so a restarted
// worker resumes close to where it stopped instead of rescanning the whole
// lookback window.
type Checkpoint interface {
	Load(ctx context.Context) (time.Time, error)
	Save(ctx context.Context, ts time.Time) error
}

// SettingCheckpoint stores the mark in the system_settings table.
type SettingCheckpoint struct {
	db *gorm.DB
}

func NewSettingCheckpoint(db *gorm.DB) *SettingCheckpoint {
	return &SettingCheckpoint{db: db}
}

// Load returns the stored mark, or the zero time when none was saved yet.
func (c *SettingCheckpoint) Load(ctx context.Context) (time.Time, error) {
	value, err := database.GetSystemSetting(ctx, c.db, checkpointKey)
	if err != nil {
		return time.Time{}, err
	}
	if value == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		// A mangled value is treated as no checkpoint rather than wedging
		// the worker.
		return time.Time{}, nil
	}
	return ts, nil
}

func (c *SettingCheckpoint) Save(ctx context.Context, ts time.Time) error {
	return database.UpsertSystemSetting(ctx, c.db, checkpointKey, ts.UTC().Format(time.RFC3339))
}
