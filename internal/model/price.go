package model

import "math"

// HourSeconds is the spacing of the resampled grid and of every forecast horizon.
const HourSeconds int64 = 3600

// PricePoint is a single raw observation from the price store.
type PricePoint struct {
	Symbol    string
	Timestamp int64 // unix seconds
	Price     float64
}

// Series is a symbol's prices on a gap-free grid starting at Start and spaced by Step seconds.
type Series struct {
	Symbol string
	Start  int64
	Step   int64
	Values []float64
}

// Len returns the number of grid slots.
func (s Series) Len() int { return len(s.Values) }

// Time returns the timestamp of slot i.
func (s Series) Time(i int) int64 { return s.Start + int64(i)*s.Step }

// Last returns the timestamp of the final slot. It is meaningless on an empty series.
func (s Series) Last() int64 { return s.Time(len(s.Values) - 1) }

// Max returns the largest value, or NaN for an empty series.
func (s Series) Max() float64 {
	if len(s.Values) == 0 {
		return math.NaN()
	}
	m := math.Inf(-1)
	for _, v := range s.Values {
		if v > m {
			m = v
		}
	}
	return m
}

// Min returns the smallest value, or NaN for an empty series.
func (s Series) Min() float64 {
	if len(s.Values) == 0 {
		return math.NaN()
	}
	m := math.Inf(1)
	for _, v := range s.Values {
		if v < m {
			m = v
		}
	}
	return m
}
