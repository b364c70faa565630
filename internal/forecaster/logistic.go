package forecaster

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"PriceCast/internal/model"
)

const (
	secondsPerDay = 86400.0
	weeklyPeriod  = 7.0 // days
	dailyPeriod   = 1.0
	weeklyOrder   = 3
	dailyOrder    = 4

	growthPriorScale      = 5.0
	seasonalityPriorScale = 10.0
	noisePriorScale       = 0.5
	minNoise              = 1e-3
)

// LogisticOptions configures the saturating-growth regression.
type LogisticOptions struct {
	Horizon               Horizon
	WeeklySeasonality     bool
	DailySeasonality      bool
	ChangepointPriorScale float64
	MaxChangepoints       int
	ChangepointRange      float64
	CapMultiplier         float64
	FloorPrice            float64
	MaxIterations         int
}

// DefaultLogisticOptions mirrors the production settings.
func DefaultLogisticOptions() LogisticOptions {
	return LogisticOptions{
		Horizon:               DefaultHorizon(),
		WeeklySeasonality:     true,
		DailySeasonality:      false,
		ChangepointPriorScale: 0.1,
		MaxChangepoints:       25,
		ChangepointRange:      0.8,
		CapMultiplier:         2,
		FloorPrice:            0.5,
		MaxIterations:         200,
	}
}

// Logistic fits log prices with a piecewise-logistic trend bounded by a cap and
// floor, plus Fourier seasonality, by maximum a posteriori estimation.
type Logistic struct {
	Opts LogisticOptions
}

// NewLogistic creates the primary forecaster.
func NewLogistic(opts LogisticOptions) *Logistic {
	return &Logistic{Opts: opts}
}

func (l *Logistic) Family() model.Family { return model.FamilyLogistic }

// SaturationBounds returns the log-space cap and floor for a series:
// ln(capMultiplier × max) and ln(max(min, floorPrice)).
func SaturationBounds(values []float64, capMultiplier, floorPrice float64) (capLog, floorLog float64) {
	capLog = math.Log(capMultiplier * floats.Max(values))
	floorLog = math.Log(math.Max(floats.Min(values), floorPrice))
	return capLog, floorLog
}

// ChangepointCount is min(max, n/2).
func ChangepointCount(n, max int) int {
	if c := n / 2; c < max {
		return c
	}
	return max
}

// logisticDesign is everything about a fit that does not depend on the parameters.
type logisticDesign struct {
	t       []float64   // scaled time, 0..1 over history
	y       []float64   // scaled log price
	x       [][]float64 // seasonal features per row
	cpT     []float64   // changepoint times, ascending
	cpIdx   []int       // per row: number of changepoints at or before t
	capS    float64
	floorL  float64
	yScale  float64
	t0      float64 // unix seconds of first slot
	span    float64 // seconds covered by history
	nFeat   int
	tau     float64
	periods []fourier
}

type fourier struct {
	period float64
	order  int
}

// params layout: k, m, deltas..., betas..., log sigma.
func (d *logisticDesign) nParams() int { return 2 + len(d.cpT) + d.nFeat + 1 }

func (l *Logistic) FitPredict(ctx context.Context, s model.Series) (model.Batch, error) {
	o := l.Opts
	if err := o.Horizon.check(s); err != nil {
		return model.Batch{}, err
	}

	d, err := l.design(s)
	if err != nil {
		return model.Batch{}, err
	}

	theta, err := l.fit(ctx, d)
	if err != nil {
		return model.Batch{}, fmt.Errorf("%s: %w", s.Symbol, err)
	}

	preds := make([]float64, o.Horizon.Steps)
	last := float64(s.Last())
	for i := range preds {
		ts := last + float64(int64(i+1)*s.Step)
		yhat := d.predictScaled(theta, (ts-d.t0)/d.span, d.features(ts))
		preds[i] = math.Exp(d.floorL + d.yScale*yhat)
	}
	return o.Horizon.batch(s, model.FamilyLogistic, preds)
}

func (l *Logistic) design(s model.Series) (*logisticDesign, error) {
	o := l.Opts
	n := s.Len()

	capL, floorL := SaturationBounds(s.Values, o.CapMultiplier, o.FloorPrice)
	if !(capL > floorL) {
		return nil, fmt.Errorf("%s: cap %.4f not above floor %.4f: %w", s.Symbol, capL, floorL, ErrDegenerate)
	}

	d := &logisticDesign{
		t:      make([]float64, n),
		y:      make([]float64, n),
		x:      make([][]float64, n),
		cpIdx:  make([]int, n),
		floorL: floorL,
		t0:     float64(s.Start),
		span:   float64(s.Last() - s.Start),
		tau:    o.ChangepointPriorScale,
	}
	if o.WeeklySeasonality {
		d.periods = append(d.periods, fourier{weeklyPeriod, weeklyOrder})
	}
	if o.DailySeasonality {
		d.periods = append(d.periods, fourier{dailyPeriod, dailyOrder})
	}
	for _, p := range d.periods {
		d.nFeat += 2 * p.order
	}

	for i, v := range s.Values {
		d.y[i] = math.Log(v) - floorL
		d.yScale = math.Max(d.yScale, math.Abs(d.y[i]))
	}
	if d.yScale == 0 {
		d.yScale = 1
	}
	floats.Scale(1/d.yScale, d.y)
	d.capS = (capL - floorL) / d.yScale

	for i := 0; i < n; i++ {
		ts := float64(s.Time(i))
		d.t[i] = (ts - d.t0) / d.span
		d.x[i] = d.features(ts)
	}

	// Changepoints are spread evenly over the first ChangepointRange of history.
	nCP := ChangepointCount(n, o.MaxChangepoints)
	histSize := int(math.Floor(float64(n) * o.ChangepointRange))
	if nCP+1 > histSize {
		nCP = histSize - 1
	}
	if nCP > 0 {
		for j := 1; j <= nCP; j++ {
			idx := int(math.Round(float64(j) * float64(histSize-1) / float64(nCP)))
			d.cpT = append(d.cpT, d.t[idx])
		}
		c := 0
		for i := 0; i < n; i++ {
			for c < len(d.cpT) && d.t[i] >= d.cpT[c] {
				c++
			}
			d.cpIdx[i] = c
		}
	}
	return d, nil
}

// features returns the Fourier terms for a unix timestamp.
func (d *logisticDesign) features(ts float64) []float64 {
	days := ts / secondsPerDay
	out := make([]float64, 0, d.nFeat)
	for _, p := range d.periods {
		for k := 1; k <= p.order; k++ {
			a := 2 * math.Pi * float64(k) * days / p.period
			out = append(out, math.Sin(a), math.Cos(a))
		}
	}
	return out
}

// rates returns the cumulative growth rate and offset after each changepoint so
// the trend stays continuous. Index 0 is before the first changepoint.
func (d *logisticDesign) rates(theta []float64) (kCum, mCum []float64) {
	k, m := theta[0], theta[1]
	deltas := theta[2 : 2+len(d.cpT)]

	kCum = make([]float64, len(d.cpT)+1)
	mCum = make([]float64, len(d.cpT)+1)
	kCum[0], mCum[0] = k, m
	gammaSum := 0.0
	for j, ts := range d.cpT {
		kCum[j+1] = kCum[j] + deltas[j]
		gamma := (ts - m - gammaSum) * (1 - kCum[j]/kCum[j+1])
		gammaSum += gamma
		mCum[j+1] = m + gammaSum
	}
	return kCum, mCum
}

func (d *logisticDesign) trend(kCum, mCum []float64, t float64, seg int) float64 {
	return d.capS / (1 + math.Exp(-kCum[seg]*(t-mCum[seg])))
}

func (d *logisticDesign) seasonal(theta []float64, x []float64) float64 {
	betas := theta[2+len(d.cpT) : 2+len(d.cpT)+d.nFeat]
	return floats.Dot(betas, x)
}

func (d *logisticDesign) predictScaled(theta []float64, t float64, x []float64) float64 {
	kCum, mCum := d.rates(theta)
	seg := 0
	for seg < len(d.cpT) && t >= d.cpT[seg] {
		seg++
	}
	return d.trend(kCum, mCum, t, seg) + d.seasonal(theta, x)
}

// objective is the negative log posterior.
func (d *logisticDesign) objective(theta []float64) float64 {
	kCum, mCum := d.rates(theta)
	sigma := minNoise + math.Exp(theta[len(theta)-1])

	sse := 0.0
	for i := range d.y {
		r := d.y[i] - d.trend(kCum, mCum, d.t[i], d.cpIdx[i]) - d.seasonal(theta, d.x[i])
		sse += r * r
	}
	nll := float64(len(d.y))*math.Log(sigma) + sse/(2*sigma*sigma)

	prior := (theta[0]*theta[0] + theta[1]*theta[1]) / (2 * growthPriorScale * growthPriorScale)
	for _, delta := range theta[2 : 2+len(d.cpT)] {
		// Smoothed |delta| keeps the Laplace prior differentiable at zero.
		prior += math.Sqrt(delta*delta+1e-8) / d.tau
	}
	for _, b := range theta[2+len(d.cpT) : 2+len(d.cpT)+d.nFeat] {
		prior += b * b / (2 * seasonalityPriorScale * seasonalityPriorScale)
	}
	prior += sigma * sigma / (2 * noisePriorScale * noisePriorScale)

	return nll + prior
}

// initialTheta places the logistic curve through the first and last points.
func (d *logisticDesign) initialTheta() []float64 {
	theta := make([]float64, d.nParams())
	clamp := func(v float64) float64 { return math.Max(0.01*d.capS, math.Min(0.99*d.capS, v)) }

	r0 := d.capS / clamp(d.y[0])
	r1 := d.capS / clamp(d.y[len(d.y)-1])
	if math.Abs(r0-r1) <= 0.01 {
		r0 *= 1.05
	}
	l0, l1 := math.Log(r0-1), math.Log(r1-1)
	theta[0] = l0 - l1        // k over a unit time span
	theta[1] = l0 / (l0 - l1) // m
	theta[len(theta)-1] = math.Log(0.1)
	return theta
}

func (l *Logistic) fit(ctx context.Context, d *logisticDesign) ([]float64, error) {
	f := func(theta []float64) float64 {
		if ctx.Err() != nil {
			return math.MaxFloat64
		}
		v := d.objective(theta)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return math.MaxFloat64
		}
		return v
	}
	problem := optimize.Problem{
		Func: f,
		Grad: func(grad, x []float64) {
			fd.Gradient(grad, f, x, &fd.Settings{Formula: fd.Central})
		},
	}
	settings := &optimize.Settings{
		MajorIterations: l.Opts.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-8,
			Relative:   1e-8,
			Iterations: 20,
		},
	}

	x0 := d.initialTheta()
	res, err := optimize.Minimize(problem, x0, settings, &optimize.LBFGS{})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("fit interrupted: %w", ctxErr)
	}
	// A line search that stalls near the optimum still leaves a usable location.
	if res == nil {
		return nil, fmt.Errorf("optimize: %v: %w", err, ErrDegenerate)
	}
	if res.F == math.MaxFloat64 || math.IsNaN(res.F) {
		return nil, fmt.Errorf("objective diverged: %w", ErrDegenerate)
	}
	for _, v := range res.X {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("non-finite parameter: %w", ErrDegenerate)
		}
	}
	return res.X, nil
}
