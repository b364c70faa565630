package forecaster

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"PriceCast/internal/model"
)

// Holt is additive-trend exponential smoothing without seasonality. Smoothing
// weights and the initial level and trend are estimated by minimising the
// one-step-ahead squared error over the whole history.
type Holt struct {
	Horizon       Horizon
	MaxIterations int
}

// NewHolt creates the fallback forecaster.
func NewHolt(h Horizon) *Holt {
	return &Holt{Horizon: h, MaxIterations: 500}
}

func (h *Holt) Family() model.Family { return model.FamilyHolt }

// holtParams are the smoothing weights plus the state before the first observation.
type holtParams struct {
	alpha, beta float64
	level, trend float64
}

// FitPredict never fails for a finite positive series of at least MinHistory points.
// The context is not consulted: the fallback must finish.
func (h *Holt) FitPredict(_ context.Context, s model.Series) (model.Batch, error) {
	if err := h.Horizon.check(s); err != nil {
		return model.Batch{}, err
	}

	// Work on prices scaled to ~1 so the simplex step means the same for every asset.
	scale := floats.Sum(s.Values) / float64(s.Len())
	y := make([]float64, s.Len())
	floats.ScaleTo(y, 1/scale, s.Values)

	p := h.fit(y)
	level, trend := holtFilter(y, p)

	preds := make([]float64, h.Horizon.Steps)
	for i := range preds {
		preds[i] = (level + float64(i+1)*trend) * scale
	}
	return h.Horizon.batch(s, model.FamilyHolt, preds)
}

func (h *Holt) fit(y []float64) holtParams {
	start := holtStart(y)
	startSSE := holtSSE(y, start)

	decode := func(x []float64) holtParams {
		return holtParams{alpha: sigmoid(x[0]), beta: sigmoid(x[1]), level: x[2], trend: x[3]}
	}
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			sse := holtSSE(y, decode(x))
			if math.IsNaN(sse) || math.IsInf(sse, 0) {
				return math.MaxFloat64
			}
			return sse
		},
	}
	x0 := []float64{logit(start.alpha), logit(start.beta), start.level, start.trend}
	settings := &optimize.Settings{MajorIterations: h.MaxIterations}

	res, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	if err != nil || res == nil || !(res.F < startSSE) {
		return start
	}
	return decode(res.X)
}

// holtStart is the heuristic initial state: first value as level, mean slope of
// the first ten points as trend.
func holtStart(y []float64) holtParams {
	k := len(y)
	if k > 10 {
		k = 10
	}
	trend := 0.0
	if k > 1 {
		trend = (y[k-1] - y[0]) / float64(k-1)
	}
	return holtParams{alpha: 0.5, beta: 0.1, level: y[0], trend: trend}
}

func holtSSE(y []float64, p holtParams) float64 {
	level, trend := p.level, p.trend
	sse := 0.0
	for _, v := range y {
		e := v - (level + trend)
		sse += e * e
		level, trend = holtStep(v, level, trend, p)
	}
	return sse
}

// holtFilter runs the recursions over y and returns the final level and trend.
func holtFilter(y []float64, p holtParams) (level, trend float64) {
	level, trend = p.level, p.trend
	for _, v := range y {
		level, trend = holtStep(v, level, trend, p)
	}
	return level, trend
}

func holtStep(v, level, trend float64, p holtParams) (float64, float64) {
	next := p.alpha*v + (1-p.alpha)*(level+trend)
	return next, p.beta*(next-level) + (1-p.beta)*trend
}
