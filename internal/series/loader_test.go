package series

import (
	"context"
	"errors"
	"testing"

	"PriceCast/internal/model"
)

type stubSource struct {
	points map[string][]model.PricePoint
	err    error
}

func (s stubSource) Points(_ context.Context, symbol string) ([]model.PricePoint, error) {
	return s.points[symbol], s.err
}

func pt(ts int64, price float64) model.PricePoint {
	return model.PricePoint{Symbol: "BTC", Timestamp: ts, Price: price}
}

func TestResample_ForwardFillsGaps(t *testing.T) {
	// Hours 0, 1 and 4 observed; 2 and 3 missing.
	s := Resample("BTC", []model.PricePoint{pt(0, 10), pt(3600, 11), pt(4*3600, 14)}, 3600)

	want := []float64{10, 11, 11, 11, 14}
	if s.Len() != len(want) {
		t.Fatalf("expected %d slots, got %d", len(want), s.Len())
	}
	for i, v := range want {
		if s.Values[i] != v {
			t.Errorf("slot %d: expected %.0f, got %.0f", i, v, s.Values[i])
		}
	}
	if s.Last() != 4*3600 {
		t.Errorf("expected last slot at %d, got %d", 4*3600, s.Last())
	}
}

func TestResample_GridIsStrictlyHourly(t *testing.T) {
	base := int64(1_700_000_000)
	s := Resample("ETH", []model.PricePoint{pt(base, 1), pt(base+10*3600, 2)}, 3600)
	for i := 1; i < s.Len(); i++ {
		if d := s.Time(i) - s.Time(i-1); d != 3600 {
			t.Fatalf("slot %d spaced %d seconds", i, d)
		}
	}
	if s.Start != base {
		t.Errorf("grid must start at first observation, got %d", s.Start)
	}
}

func TestResample_OffGridObservationsFillLaterSlots(t *testing.T) {
	// A reading at 00:30 is the latest known value at 01:00.
	s := Resample("BTC", []model.PricePoint{pt(0, 10), pt(1800, 12), pt(7200, 13)}, 3600)
	want := []float64{10, 12, 13}
	for i, v := range want {
		if s.Values[i] != v {
			t.Errorf("slot %d: expected %.0f, got %.0f", i, v, s.Values[i])
		}
	}
}

func TestResample_UnorderedInput(t *testing.T) {
	s := Resample("BTC", []model.PricePoint{pt(7200, 3), pt(0, 1), pt(3600, 2)}, 3600)
	if s.Len() != 3 || s.Values[0] != 1 || s.Values[2] != 3 {
		t.Errorf("unexpected series %+v", s.Values)
	}
}

func TestResample_SinglePoint(t *testing.T) {
	s := Resample("USDT", []model.PricePoint{pt(1234, 1.0)}, 3600)
	if s.Len() != 1 || s.Values[0] != 1.0 {
		t.Errorf("expected one slot, got %+v", s.Values)
	}
}

func TestLoader_EmptySymbol(t *testing.T) {
	l := NewLoader(stubSource{})
	s, err := l.Load(context.Background(), "NONE")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("expected empty series, got %d slots", s.Len())
	}
}

func TestLoader_PropagatesSourceError(t *testing.T) {
	boom := errors.New("disk gone")
	l := NewLoader(stubSource{err: boom})
	if _, err := l.Load(context.Background(), "BTC"); !errors.Is(err, boom) {
		t.Errorf("expected wrapped source error, got %v", err)
	}
}
