package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"PriceCast/internal/metrics"
	"PriceCast/internal/model"
	"PriceCast/internal/notifier"
	"PriceCast/internal/pipeline"
)

// ForecastReader reads back the stored generation for the /forecasts command.
type ForecastReader interface {
	Forecasts(ctx context.Context) (map[string][]model.ForecastPoint, error)
}

// Scheduler runs the pipeline once or on a cron schedule, then publishes the
// outcome to Telegram and the Pushgateway when those are configured.
type Scheduler struct {
	Cron      *cron.Cron
	Runner    *pipeline.Runner
	Notifier  *notifier.TelegramNotifier // optional
	Metrics   *metrics.Recorder          // optional
	Forecasts ForecastReader             // optional
	PushURL   string
	PushJob   string
	Ctx       context.Context
	log       zerolog.Logger
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, runner *pipeline.Runner, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(&log))),
		),
		Runner: runner,
		Ctx:    ctx,
		log:    log,
	}
}

// Register schedules the forecast run on expr (six fields, seconds first, or a descriptor such as @hourly).
func (s *Scheduler) Register(expr string) error {
	if _, err := s.Cron.AddFunc(expr, s.forecastTask); err != nil {
		return fmt.Errorf("register forecast task: %w", err)
	}
	s.log.Info().Str("cron", expr).Msg("forecast task registered")
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info().Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for a running task to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) forecastTask() {
	if _, err := s.RunNow(s.Ctx); err != nil {
		s.log.Error().Err(err).Msg("scheduled forecast run failed")
	}
}

// RunNow executes one forecast run and publishes its outcome.
func (s *Scheduler) RunNow(ctx context.Context) (*model.RunSummary, error) {
	summary, err := s.Runner.Run(ctx)
	if err != nil {
		if !errors.Is(err, pipeline.ErrRunInProgress) {
			s.trySend(ctx, fmt.Sprintf("❌ forecast run failed: %v", err))
		}
		return nil, err
	}

	s.trySend(ctx, notifier.FormatRunSummary(summary))
	if s.Metrics != nil && s.PushURL != "" {
		if err := s.Metrics.Push(s.PushURL, s.PushJob); err != nil {
			s.log.Error().Err(err).Msg("push metrics")
		}
	}
	return summary, nil
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	switch command {
	case "/forecast":
		if _, err := s.RunNow(ctx); err != nil {
			if errors.Is(err, pipeline.ErrRunInProgress) {
				return "A forecast run is already in progress."
			}
			return "" // failure already reported by RunNow
		}
		return ""
	case "/status":
		last := s.Runner.Last()
		if last == nil {
			return "No forecast run has completed yet."
		}
		return notifier.FormatRunSummary(last)
	case "/forecasts":
		if s.Forecasts == nil {
			return "Forecast store not available."
		}
		fc, err := s.Forecasts.Forecasts(ctx)
		if err != nil {
			s.log.Error().Err(err).Msg("read forecasts")
			return "Could not read forecasts."
		}
		syms := make([]string, 0, len(fc))
		for sym := range fc {
			syms = append(syms, sym)
		}
		sort.Strings(syms)
		return notifier.FormatForecasts(fc, syms)
	default:
		return "Commands:\n• /forecast run now\n• /status last run\n• /forecasts stored horizon"
	}
}

func (s *Scheduler) trySend(ctx context.Context, text string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.SendWithRetry(ctx, text, 3); err != nil {
		s.log.Error().Err(err).Msg("send notification")
	}
}
