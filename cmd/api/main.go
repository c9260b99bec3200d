// API binary: loads configuration, wires dependencies and serves HTTP.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/setvote/setvote/internal/app/httpapi"
	"github.com/setvote/setvote/internal/app/trending"
	"github.com/setvote/setvote/internal/app/voting"
	"github.com/setvote/setvote/internal/domain"
	"github.com/setvote/setvote/internal/platform/clock"
	"github.com/setvote/setvote/internal/platform/config"
	"github.com/setvote/setvote/internal/platform/health"
	"github.com/setvote/setvote/internal/platform/ids"
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
		// Opt-in so production deploys can run migrations separately.
		if err := migrations.Run(db); err != nil {
			logger.Fatal("auto migration failed", "err", err)
		}
	}

	// Redis carries fan-out, views and trending; votes commit without it
	// but subscribers go quiet, so treat it as required at boot.
	redisClient, err := redisstorage.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Fatal("redis connection failed", "err", err)
	}
	defer redisClient.Close()

	showRepo := postgresstorage.NewShowRepository(db)
	songRepo := postgresstorage.NewSetlistSongRepository(db)
	tallyStore := postgresstorage.NewTallyStore(db)
	notifier := redisstorage.NewNotifier(redisClient, cfg.NotifyChannelPrefix)
	viewCounter := redisstorage.NewViewCounter(redisClient, cfg.ViewKeyPrefix)
	trendingStore := redisstorage.NewTrending(redisClient, cfg.TrendingKey)
	systemClock := clock.NewSystemClock()
	idGen := ids.NewGenerator()

	limits := domain.VoteLimits{
		DailyVotes: cfg.DailyVoteLimit,
		ShowVotes:  cfg.ShowVoteLimit,
	}

	voteService := voting.NewService(
		showRepo,
		songRepo,
		tallyStore,
		notifier,
		systemClock,
		idGen,
		logger.L(),
		limits,
		cfg.SubmitMaxAttempts,
	)

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

	mux := http.NewServeMux()
	checker := health.NewChecker(sqlDB, redisClient)

	api := httpapi.New(voteService, trendingService, logger.L())
	api.Register(mux)
	mux.HandleFunc("/readyz", checker.ReadyHandler())
	mux.Handle("/metrics", promhttp.Handler())

	logger.Info("api listening", "addr", cfg.HTTPAddress)
	if err := http.ListenAndServe(cfg.HTTPAddress, mux); err != nil {
		logger.Fatal("server error", "err", err)
	}
}
