package collector

import (
	"context"
	"time"

	"QuantFeed/internal/model"
)

// Request describes a daily-bar download.
type Request struct {
	Symbols  []string
	Start    time.Time // first calendar date, inclusive
	End      time.Time // last calendar date, inclusive
	Adjusted bool      // split/dividend adjusted closes
}

// Response carries provider output in one of two shapes: a flat bar list
// for single-symbol requests, or bars keyed by symbol. Exactly one is set.
type Response struct {
	Bars     []model.OHLCV
	BySymbol map[string][]model.OHLCV
}

// Fetcher defines the interface for fetching daily market data.
type Fetcher interface {
	FetchDaily(ctx context.Context, req Request) (*Response, error)
	Name() string
}
