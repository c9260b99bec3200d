// Worker binary: periodic tally reconciliation and trending refresh,
// with its own metrics endpoint.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/setvote/setvote/internal/app/trending"
	"github.com/setvote/setvote/internal/app/worker"
	"github.com/setvote/setvote/internal/platform/clock"
	"github.com/setvote/setvote/internal/platform/config"
	"github.com/setvote/setvote/internal/platform/health"
	"github.com/setvote/setvote/internal/platform/logger"
	"github.com/setvote/setvote/internal/platform/migrations"
	postgresstorage "github.com/setvote/setvote/internal/platform/storage/postgres"
	redisstorage "github.com/setvote/setvote/internal/platform/storage/redis"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", "err", err)
	}

	// Same GORM connection setup as the API, so schema and models stay
	// shared between binaries.
	db, err := postgresstorage.Open(ctx, cfg.PostgresDSN())
	if err != nil {
		logger.Fatal("postgres connection failed", "err", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("unwrapping sql.DB failed", "err", err)
	}
	defer sqlDB.Close()

	if cfg.AutoMigrate {
		if err := migrations.Run(db); err != nil {
			logger.Fatal("auto migration failed", "err", err)
		}
	}

	redisClient, err := redisstorage.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Fatal("redis connection failed", "err", err)
	}
	defer redisClient.Close()

	showRepo := postgresstorage.NewShowRepository(db)
	tallyStore := postgresstorage.NewTallyStore(db)
	viewCounter := redisstorage.NewViewCounter(redisClient, cfg.ViewKeyPrefix)
	trendingStore := redisstorage.NewTrending(redisClient, cfg.TrendingKey)
	systemClock := clock.NewSystemClock()
	checker := health.NewChecker(sqlDB, redisClient)

	if cfg.WorkerMetricsAddress != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			mux.HandleFunc("/readyz", checker.ReadyHandler())
			logger.Info("worker metrics listening", "addr", cfg.WorkerMetricsAddress)
			if err := http.ListenAndServe(cfg.WorkerMetricsAddress, mux); err != nil {
				logger.Error("worker metrics server error", "err", err)
			}
		}()
	}

	trendingService := trending.NewService(
		showRepo,
		tallyStore,
		viewCounter,
		trendingStore,
		systemClock,
		trending.Params{
			HalfLifeDays: cfg.TrendingHalfLifeDays,
			ViewWeight:   cfg.TrendingViewWeight,
			WindowDays:   cfg.TrendingWindowDays,
		},
	)

	reconciler := worker.NewReconciler(
		showRepo,
		tallyStore,
		trendingService,
		systemClock,
		logger.L(),
		cfg.ReconcileInterval,
	)

	logger.Info("worker started", "interval", cfg.ReconcileInterval.String())
	err = reconciler.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		logger.Fatal("worker stopped with error", "err", err)
	}

	logger.Info("worker stopped")
}
