package queue

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/socdo/notifyd/pkg/logger"
)

// Select probes the configured broker and returns the backend to use.
// A broker failure is not fatal: the worker degrades to database polling
// and keeps delivering, just without priority lanes or scheduled retries.
func Select(cfg RedisConfig, db *gorm.DB) Backend {
	log := logger.WithModule("queue")

	if cfg.Addr != "" {
		backend, err := NewRedisBackend(cfg)
		if err == nil {
			log.Info("queue broker connected", zap.String("addr", cfg.Addr))
			return backend
		}
		log.Warn("queue broker unavailable, falling back to database polling",
			zap.String("addr", cfg.Addr),
			zap.Error(err))
	} else {
		log.Info("no queue broker configured, using database polling")
	}

	return NewPollingBackend(db, NewSettingCheckpoint(db))
}
