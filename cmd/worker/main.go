package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/socdo/notifyd/internal/app"
	"github.com/socdo/notifyd/internal/database"
	"github.com/socdo/notifyd/internal/push"
	"github.com/socdo/notifyd/internal/queue"
	"github.com/socdo/notifyd/internal/services"
	"github.com/socdo/notifyd/internal/worker"
	"github.com/socdo/notifyd/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("notifyd-worker", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var (
		configPath string
		daemon     bool
	)
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")
	fs.BoolVar(&daemon, "daemon", false, "Keep polling for jobs instead of draining once")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")

	db, err := initialiseDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db, log)

	backend := queue.Select(cfg.QueueOptions(), db)

	gateway, err := push.NewClient(push.Config{
		CredentialsFile: cfg.Push.CredentialsFile,
		Endpoint:        cfg.Push.Endpoint,
		Timeout:         cfg.Push.Timeout,
		ChannelID:       cfg.Push.ChannelID,
	})
	if err != nil {
		return fmt.Errorf("initialise push gateway: %w", err)
	}

	notifications, err := services.NewNotificationService(db, backend)
	if err != nil {
		return fmt.Errorf("initialise notification service: %w", err)
	}
	devices, err := services.NewDeviceTokenService(db)
	if err != nil {
		return fmt.Errorf("initialise device token service: %w", err)
	}

	dispatcher, err := worker.NewDispatcher(notifications, devices, backend, gateway, cfg.Queue.MaxRetries)
	if err != nil {
		return fmt.Errorf("initialise dispatcher: %w", err)
	}
	notifications.SetDispatcher(dispatcher)

	runner, err := worker.NewRunner(dispatcher, backend,
		worker.WithBatchSize(cfg.Queue.BatchSize),
		worker.WithIdleSleep(cfg.Queue.IdleSleep),
	)
	if err != nil {
		return fmt.Errorf("initialise runner: %w", err)
	}

	if !daemon {
		processed, err := runner.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("drain queue: %w", err)
		}
		log.Info("single pass complete", zap.Int("processed", processed))
		if stats, err := backend.Stats(ctx); err == nil {
			log.Info("queue depth",
				zap.Int64("normal", stats.Normal),
				zap.Int64("priority", stats.Priority),
				zap.Int64("delayed", stats.Delayed),
				zap.Int64("dead_letter", stats.DeadLetter))
		}
		return nil
	}

	sampler := worker.NewStatsSampler(backend, worker.WithStatsSchedule(cfg.Queue.StatsSpec))
	if err := sampler.Start(); err != nil {
		return fmt.Errorf("start queue stats sampler: %w", err)
	}
	defer sampler.Stop()

	log.Info("worker started",
		zap.Int("batch_size", cfg.Queue.BatchSize),
		zap.Duration("idle_sleep", cfg.Queue.IdleSleep))

	if err := runner.Run(ctx); err != nil {
		return fmt.Errorf("worker loop: %w", err)
	}

	log.Info("worker stopped gracefully")
	return nil
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.DatabaseOptions()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
