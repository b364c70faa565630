package series

import (
	"context"
	"fmt"
	"sort"

	"PriceCast/internal/model"
)

// PointSource is the subset of the price store the loader needs.
type PointSource interface {
	Points(ctx context.Context, symbol string) ([]model.PricePoint, error)
}

// Loader builds hourly series from raw price observations.
type Loader struct {
	Source PointSource
	Step   int64
}

// NewLoader creates a Loader on the standard one-hour grid.
func NewLoader(src PointSource) *Loader {
	return &Loader{Source: src, Step: model.HourSeconds}
}

// Load reads every observation for symbol and resamples it. A symbol without
// observations yields an empty series and no error.
func (l *Loader) Load(ctx context.Context, symbol string) (model.Series, error) {
	points, err := l.Source.Points(ctx, symbol)
	if err != nil {
		return model.Series{}, fmt.Errorf("load %s: %w", symbol, err)
	}
	return Resample(symbol, points, l.Step), nil
}

// Resample projects points onto a grid anchored at the first observation and
// spaced by step seconds, ending at the last slot not after the final observation.
// Each slot carries the most recent observation at or before it.
func Resample(symbol string, points []model.PricePoint, step int64) model.Series {
	s := model.Series{Symbol: symbol, Step: step}
	if len(points) == 0 || step <= 0 {
		return s
	}

	sorted := make([]model.PricePoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })

	start := sorted[0].Timestamp
	end := sorted[len(sorted)-1].Timestamp
	n := int((end-start)/step) + 1

	s.Start = start
	s.Values = make([]float64, n)
	j := 0
	for i := 0; i < n; i++ {
		slot := start + int64(i)*step
		for j+1 < len(sorted) && sorted[j+1].Timestamp <= slot {
			j++
		}
		s.Values[i] = sorted[j].Price
	}
	return s
}
