package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/openlend/lendmatch/internal/config"
	"github.com/openlend/lendmatch/internal/database"
	"github.com/openlend/lendmatch/internal/lending/matching"
	"github.com/openlend/lendmatch/internal/lending/notifier"
	"github.com/openlend/lendmatch/internal/lending/repository"
	"github.com/openlend/lendmatch/internal/lending/scheduler"
	"github.com/openlend/lendmatch/internal/matchqueue"
	"github.com/openlend/lendmatch/internal/server"
	"github.com/openlend/lendmatch/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	db, err := database.NewPostgresDB(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		zapLogger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}

	var cache *redis.Client
	if cfg.Redis.Enabled {
		cache = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := cache.Ping(context.Background()).Err(); err != nil {
			zapLogger.Warn("Redis unreachable, offer cache disabled", zap.Error(err))
			cache = nil
		}
	}

	repo := repository.NewGormRepository(db, cache, zapLogger)
	if err := repo.AutoMigrate(); err != nil {
		zapLogger.Fatal("Failed to run migrations", zap.Error(err))
	}

	var notify matching.Notifier = matching.NopNotifier{}
	var kafkaNotifier *notifier.KafkaNotifier
	if cfg.Kafka.Enabled {
		kafkaNotifier = notifier.NewKafkaNotifier(cfg.Kafka.Brokers, zapLogger)
		notify = kafkaNotifier
	}

	feeRate, err := decimal.NewFromString(cfg.Matcher.OriginationFeeRate)
	if err != nil {
		zapLogger.Fatal("Invalid origination fee rate", zap.String("value", cfg.Matcher.OriginationFeeRate), zap.Error(err))
	}

	engine := matching.NewEngine(repo, notify, zapLogger, matching.Config{
		BatchSize:          cfg.Matcher.BatchSize,
		MaxTotalProcessed:  cfg.Matcher.MaxTotalProcessed,
		OriginationFeeRate: feeRate,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go database.ReportPoolMetrics(ctx, db, "postgres", 15*time.Second)

	var sched *scheduler.Scheduler
	var queue matchqueue.Queue
	if cfg.Matcher.SchedulerEnabled {
		queue, err = matchqueue.NewBadgerQueue(cfg.Matcher.QueuePath,
			matchqueue.WithMaxAttempts(cfg.Matcher.QueueMaxAttempts))
		if err != nil {
			zapLogger.Fatal("Failed to open match queue", zap.Error(err))
		}

		sched = scheduler.New(scheduler.Config{
			Interval:       cfg.Matcher.Interval,
			RunOnInit:      cfg.Matcher.RunOnInit,
			CoalesceWindow: cfg.Matcher.CoalesceWindow,
		}, queue, engine, zapLogger)
		if err := sched.Start(ctx); err != nil {
			zapLogger.Fatal("Failed to start scheduler", zap.Error(err))
		}
	}

	srv := server.New(cfg.Server, engine, zapLogger)
	go func() {
		if err := srv.Start(); err != nil {
			zapLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	zapLogger.Info("lendmatch started",
		zap.Int("port", cfg.Server.Port),
		zap.Bool("scheduler", cfg.Matcher.SchedulerEnabled),
		zap.Bool("kafka", cfg.Kafka.Enabled))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	zapLogger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("HTTP shutdown failed", zap.Error(err))
	}
	if sched != nil {
		sched.Stop()
	}
	if queue != nil {
		if err := queue.Shutdown(shutdownCtx); err != nil {
			zapLogger.Error("Queue shutdown failed", zap.Error(err))
		}
	}
	if kafkaNotifier != nil {
		if err := kafkaNotifier.Close(); err != nil {
			zapLogger.Error("Notifier close failed", zap.Error(err))
		}
	}
	if cache != nil {
		if err := cache.Close(); err != nil {
			zapLogger.Error("Redis close failed", zap.Error(err))
		}
	}

	zapLogger.Info("shutdown complete")
}
