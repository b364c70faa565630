// Package forecaster turns an hourly price series into a fixed-length batch of
// future prices. Two families implement the same interface: a saturating-growth
// seasonal regression fitted in log space, and Holt's additive-trend exponential
// smoothing, which never fails on a qualifying series and backs the first one up.
package forecaster

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"PriceCast/internal/model"
)

var (
	// ErrInsufficientHistory is returned when the series is shorter than MinHistory.
	ErrInsufficientHistory = errors.New("insufficient history")
	// ErrDegenerate is returned when the fit or prediction is not numerically usable.
	ErrDegenerate = errors.New("degenerate fit")
)

// Forecaster fits a series and predicts the next Steps hourly prices.
type Forecaster interface {
	Family() model.Family
	FitPredict(ctx context.Context, s model.Series) (model.Batch, error)
}

// Horizon holds the shape shared by every family.
type Horizon struct {
	Steps      int
	MinHistory int
	MinPrice   float64
}

// DefaultHorizon is 24 hourly steps from at least 48 hours of history.
func DefaultHorizon() Horizon {
	return Horizon{Steps: 24, MinHistory: 48, MinPrice: 0.01}
}

func (h Horizon) check(s model.Series) error {
	if s.Len() < h.MinHistory {
		return fmt.Errorf("%s has %d points, need %d: %w", s.Symbol, s.Len(), h.MinHistory, ErrInsufficientHistory)
	}
	if s.Step <= 0 {
		return fmt.Errorf("%s: non-positive step %d: %w", s.Symbol, s.Step, ErrDegenerate)
	}
	for i, v := range s.Values {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s: invalid price %v at slot %d: %w", s.Symbol, v, i, ErrDegenerate)
		}
	}
	return nil
}

// batch turns raw predictions into forecast points after the last history slot,
// clipped at MinPrice and rounded to 4 decimals.
func (h Horizon) batch(s model.Series, family model.Family, preds []float64) (model.Batch, error) {
	b := model.Batch{Symbol: s.Symbol, Family: family, Points: make([]model.ForecastPoint, len(preds))}
	last := s.Last()
	for i, p := range preds {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return model.Batch{}, fmt.Errorf("%s: non-finite prediction at step %d: %w", s.Symbol, i+1, ErrDegenerate)
		}
		if p < h.MinPrice {
			p = h.MinPrice
			b.Clipped++
		}
		b.Points[i] = model.ForecastPoint{
			Symbol: s.Symbol,
			T:      last + int64(i+1)*s.Step,
			P:      round4(p),
		}
	}
	return b, nil
}

func round4(v float64) float64 {
	return decimal.NewFromFloat(v).Round(4).InexactFloat64()
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

func logit(p float64) float64 { return math.Log(p / (1 - p)) }
