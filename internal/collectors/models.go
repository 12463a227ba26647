package collectors

import (
	"context"
	"time"
)

// FetchOptions lists the symbols a collector should quote per run.
type FetchOptions struct {
	Symbols []string
}

// Collector is implemented by exchange price collectors. Fetch returns the
// quotes it could get; a partial result comes with a non-nil error.
type Collector interface {
	Name() string
	Fetch(ctx context.Context, opts FetchOptions) ([]Quote, error)
}

// Quote is one last-trade price observed on an exchange.
type Quote struct {
	Exchange string
	Symbol   string
	Price    float64
	At       time.Time
}
