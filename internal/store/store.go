package store

import (
	"context"

	"PriceCast/internal/model"
)

// PriceReader reads raw observations written by the ingestion job.
type PriceReader interface {
	Symbols(ctx context.Context) ([]string, error)
	Points(ctx context.Context, symbol string) ([]model.PricePoint, error)
}

// ForecastWriter replaces the whole forecast generation in one step.
type ForecastWriter interface {
	ReplaceForecasts(ctx context.Context, batches []model.Batch) (*WriteResult, error)
	Close() error
}

// WriteResult reports which symbols made it into the new generation.
type WriteResult struct {
	Written []string
	Failed  map[string]error
}
