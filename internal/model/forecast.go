package model

import "time"

// Family identifies which model family produced a forecast batch.
type Family string

const (
	FamilyLogistic Family = "logistic"
	FamilyHolt     Family = "holt"
)

// DisplayName is the human-readable label used in summaries.
func (f Family) DisplayName() string {
	switch f {
	case FamilyLogistic:
		return "Logistic-Seasonal"
	case FamilyHolt:
		return "Holt-Winters"
	default:
		return string(f)
	}
}

// ForecastPoint is one predicted price at a future hourly timestamp.
type ForecastPoint struct {
	Symbol string  `json:"-"`
	T      int64   `json:"t"`
	P      float64 `json:"p"`
}

// Batch is the complete horizon for one symbol, produced by a single family.
type Batch struct {
	Symbol string
	Family Family
	Points []ForecastPoint

	// Clipped counts points raised to the minimum price.
	Clipped int
}

// RunSummary describes the outcome of one forecasting run.
type RunSummary struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Primary    Family
	Symbols    int
	Forecast   int
	Skipped    []string
	Fallbacks  []string
	Failed     []string
	DryRun     bool
}
