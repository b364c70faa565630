package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"PriceCast/internal/forecaster"
	"PriceCast/internal/model"
	"PriceCast/internal/series"
	"PriceCast/internal/store"
)

// ErrRunInProgress is returned when Run is called while another run is active.
var ErrRunInProgress = errors.New("forecast run already in progress")

// Options are the run-level knobs.
type Options struct {
	Horizon    int
	MinHistory int
	Workers    int
	FitTimeout time.Duration
	DryRun     bool
}

// Metrics receives run events. The Prometheus recorder implements it.
type Metrics interface {
	RecordFit(family model.Family, d time.Duration)
	RecordForecast(family model.Family)
	RecordSkip()
	RecordFallback()
	RecordWriteFailure()
	RecordRun(s *model.RunSummary)
}

type nopMetrics struct{}

func (nopMetrics) RecordFit(model.Family, time.Duration) {}
func (nopMetrics) RecordForecast(model.Family)           {}
func (nopMetrics) RecordSkip()                           {}
func (nopMetrics) RecordFallback()                       {}
func (nopMetrics) RecordWriteFailure()                   {}
func (nopMetrics) RecordRun(*model.RunSummary)           {}

// Runner drives load → fit (with fallback) → persist for every symbol.
type Runner struct {
	prices   store.PriceReader
	loader   *series.Loader
	primary  forecaster.Forecaster // nil when the primary family is unavailable
	fallback forecaster.Forecaster
	writer   store.ForecastWriter
	metrics  Metrics
	opts     Options
	log      zerolog.Logger
	now      func() time.Time

	running sync.Mutex
	mu      sync.Mutex
	last    *model.RunSummary
}

// NewRunner creates a Runner. primary may be nil, in which case every symbol is
// served by fallback.
func NewRunner(prices store.PriceReader, primary, fallback forecaster.Forecaster, w store.ForecastWriter, opts Options, log zerolog.Logger) *Runner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Runner{
		prices:   prices,
		loader:   series.NewLoader(prices),
		primary:  primary,
		fallback: fallback,
		writer:   w,
		metrics:  nopMetrics{},
		opts:     opts,
		log:      log,
		now:      time.Now,
	}
}

// WithMetrics attaches a metrics sink.
func (r *Runner) WithMetrics(m Metrics) *Runner {
	if m != nil {
		r.metrics = m
	}
	return r
}

// PrimaryFamily is the family serving the primary path for every run.
func (r *Runner) PrimaryFamily() model.Family {
	if r.primary != nil {
		return r.primary.Family()
	}
	return r.fallback.Family()
}

// Last returns the summary of the most recent completed run, or nil.
func (r *Runner) Last() *model.RunSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// outcome is the per-symbol result of the fit phase.
type outcome struct {
	symbol    string
	batch     *model.Batch
	skipped   bool
	fellBack  bool
	failedErr error
}

// Run forecasts every symbol and replaces the stored generation. Only symbol
// enumeration and the final write can fail the run; per-symbol problems are
// logged and reflected in the summary.
func (r *Runner) Run(ctx context.Context) (*model.RunSummary, error) {
	if !r.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.running.Unlock()

	summary := &model.RunSummary{
		StartedAt: r.now(),
		Primary:   r.PrimaryFamily(),
		DryRun:    r.opts.DryRun,
	}

	symbols, err := r.prices.Symbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	summary.Symbols = len(symbols)
	r.log.Info().Int("symbols", len(symbols)).Int("workers", r.opts.Workers).
		Str("primary", string(summary.Primary)).Msg("forecast run started")

	outcomes := make([]outcome, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for i, sym := range symbols {
		i, sym := i, sym
		g.Go(func() error {
			outcomes[i] = r.forecastSymbol(gctx, sym)
			return nil
		})
	}
	g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run cancelled: %w", err)
	}

	var batches []model.Batch
	for _, o := range outcomes {
		switch {
		case o.skipped:
			summary.Skipped = append(summary.Skipped, o.symbol)
			r.metrics.RecordSkip()
		case o.failedErr != nil:
			summary.Failed = append(summary.Failed, o.symbol)
		default:
			if o.fellBack {
				summary.Fallbacks = append(summary.Fallbacks, o.symbol)
			}
			batches = append(batches, *o.batch)
		}
	}

	res, err := r.writer.ReplaceForecasts(ctx, batches)
	if err != nil {
		return nil, fmt.Errorf("replace forecasts: %w", err)
	}
	written := make(map[string]bool, len(res.Written))
	for _, sym := range res.Written {
		written[sym] = true
	}
	for _, b := range batches {
		if written[b.Symbol] {
			r.metrics.RecordForecast(b.Family)
			continue
		}
		summary.Failed = append(summary.Failed, b.Symbol)
		r.metrics.RecordWriteFailure()
	}
	summary.Forecast = len(res.Written)
	summary.FinishedAt = r.now()

	r.metrics.RecordRun(summary)
	r.mu.Lock()
	r.last = summary
	r.mu.Unlock()

	r.log.Info().
		Int("forecast", summary.Forecast).
		Int("skipped", len(summary.Skipped)).
		Int("fallbacks", len(summary.Fallbacks)).
		Int("failed", len(summary.Failed)).
		Bool("dry_run", summary.DryRun).
		Msgf("forecast updated %s | model = %s",
			summary.FinishedAt.Format(time.DateTime), summary.Primary.DisplayName())
	return summary, nil
}

func (r *Runner) forecastSymbol(ctx context.Context, sym string) outcome {
	out := outcome{symbol: sym}

	s, err := r.loader.Load(ctx, sym)
	if err != nil {
		r.log.Error().Str("symbol", sym).Err(err).Msg("load failed, symbol dropped")
		out.failedErr = err
		return out
	}
	if s.Len() < r.opts.MinHistory {
		r.log.Debug().Str("symbol", sym).Int("points", s.Len()).Msg("insufficient history, skipped")
		out.skipped = true
		return out
	}

	if r.primary != nil {
		b, err := r.fit(ctx, r.primary, s, r.opts.FitTimeout)
		if err == nil {
			out.batch = &b
			return out
		}
		r.log.Warn().Str("symbol", sym).Err(err).
			Msgf("%s failed, %s fallback", r.primary.Family().DisplayName(), r.fallback.Family().DisplayName())
		r.metrics.RecordFallback()
		out.fellBack = true
	}

	b, err := r.fit(ctx, r.fallback, s, 0)
	if err != nil {
		r.log.Error().Str("symbol", sym).Err(err).Msg("fallback failed, symbol dropped")
		out.failedErr = err
		return out
	}
	out.batch = &b
	return out
}

// fit runs one forecaster, converting panics and short batches into errors so a
// single symbol can never take the run down.
func (r *Runner) fit(ctx context.Context, f forecaster.Forecaster, s model.Series, timeout time.Duration) (b model.Batch, err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%s panicked: %v", f.Family(), p)
		}
		r.metrics.RecordFit(f.Family(), time.Since(start))
	}()

	b, err = f.FitPredict(ctx, s)
	if err != nil {
		return model.Batch{}, err
	}
	if len(b.Points) != r.opts.Horizon {
		return model.Batch{}, fmt.Errorf("%s returned %d points, want %d", f.Family(), len(b.Points), r.opts.Horizon)
	}
	b.Family = f.Family()
	if b.Clipped > 0 {
		r.log.Warn().Str("symbol", s.Symbol).Int("clipped", b.Clipped).Str("family", string(b.Family)).
			Msg("predictions raised to the minimum price")
	}
	return b, nil
}
