package store

import (
	"context"

	"PriceCast/internal/model"
)

// NoopWriter discards forecasts. Used for dry runs.
type NoopWriter struct{}

func NewNoopWriter() *NoopWriter { return &NoopWriter{} }

func (n *NoopWriter) ReplaceForecasts(_ context.Context, batches []model.Batch) (*WriteResult, error) {
	res := &WriteResult{Failed: map[string]error{}}
	for _, b := range batches {
		res.Written = append(res.Written, b.Symbol)
	}
	return res, nil
}

func (n *NoopWriter) Close() error { return nil }
