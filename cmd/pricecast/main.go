package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"PriceCast/internal/config"
	"PriceCast/internal/forecaster"
	"PriceCast/internal/logger"
	"PriceCast/internal/metrics"
	"PriceCast/internal/notifier"
	"PriceCast/internal/pipeline"
	"PriceCast/internal/scheduler"
	"PriceCast/internal/store"
)

func main() {
	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		boot.Fatal().Err(err).Msg("load config")
	}
	if err := cfg.Validate(); err != nil {
		boot.Fatal().Err(err).Msg("config validation")
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		boot.Fatal().Err(err).Msg("init logger")
	}
	log.Info().Str("config", cfgPath).Msg("PriceCast starting")

	// Init store
	db, err := store.NewSQLite(cfg.Database.SQLitePath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()

	var writer store.ForecastWriter = db
	if cfg.Forecast.DryRun {
		log.Warn().Msg("dry run enabled, forecasts will not be written")
		writer = store.NewNoopWriter()
	}

	// Init forecasters
	horizon := forecaster.Horizon{
		Steps:      cfg.Forecast.Horizon,
		MinHistory: cfg.Forecast.MinHistory,
		MinPrice:   cfg.Forecast.MinPrice,
	}
	fallback := forecaster.NewHolt(horizon)
	var primary forecaster.Forecaster
	if cfg.PrimaryEnabled() {
		p := cfg.Forecast.Primary
		primary = forecaster.NewLogistic(forecaster.LogisticOptions{
			Horizon:               horizon,
			WeeklySeasonality:     cfg.WeeklySeasonality(),
			DailySeasonality:      p.DailySeasonality,
			ChangepointPriorScale: p.ChangepointPriorScale,
			MaxChangepoints:       cfg.MaxChangepoints(),
			ChangepointRange:      p.ChangepointRange,
			CapMultiplier:         p.CapMultiplier,
			FloorPrice:            p.FloorPrice,
			MaxIterations:         p.MaxIterations,
		})
	} else {
		log.Warn().Msg("logistic model disabled, every symbol uses Holt-Winters")
	}

	rec := metrics.New()
	runner := pipeline.NewRunner(db, primary, fallback, writer, pipeline.Options{
		Horizon:    cfg.Forecast.Horizon,
		MinHistory: cfg.Forecast.MinHistory,
		Workers:    cfg.Forecast.Workers,
		FitTimeout: cfg.Forecast.FitTimeout,
		DryRun:     cfg.Forecast.DryRun,
	}, log).WithMetrics(rec)

	// Context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched := scheduler.NewScheduler(ctx, runner, log)
	sched.Metrics = rec
	sched.Forecasts = db
	sched.PushURL, sched.PushJob = cfg.Metrics.PushgatewayURL, cfg.Metrics.Job

	var tn *notifier.TelegramNotifier
	if cfg.Telegram.BotToken != "" {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, log)
		sched.Notifier = tn
	}

	if cfg.Schedule.Cron == "" {
		if _, err := sched.RunNow(ctx); err != nil {
			db.Close()
			log.Fatal().Err(err).Msg("forecast run failed")
		}
		return
	}

	if err := sched.Register(cfg.Schedule.Cron); err != nil {
		log.Fatal().Err(err).Msg("register cron task")
	}
	sched.Start()
	defer sched.Stop()

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Info().Msg("telegram polling started")
	}

	// Optional: run immediately on start
	if os.Getenv("RUN_ON_START") == "true" {
		log.Info().Msg("RUN_ON_START enabled, forecasting now")
		go sched.RunNow(ctx)
	}

	log.Info().Msg("PriceCast is running. Press Ctrl+C to stop.")
	<-ctx.Done()
	log.Info().Msg("shutdown signal received, stopping...")
}
