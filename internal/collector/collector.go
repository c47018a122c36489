package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"QuantFeed/internal/model"
)

// MockFetcher returns controllable fixed data for development and testing.
// When Data has no entry for a symbol, deterministic weekday bars are
// generated from Price.
type MockFetcher struct {
	Price float64
	Data  map[string][]model.OHLCV
	// Missing lists symbols the mock pretends not to know.
	Missing map[string]bool
	// FailFirst makes the first N calls return Err (or a generic error).
	FailFirst int
	Err       error

	mu    sync.Mutex
	calls int
}

func (m *MockFetcher) Name() string { return "mock" }

// Calls reports how many times FetchDaily was invoked.
func (m *MockFetcher) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockFetcher) FetchDaily(ctx context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	m.calls++
	n := m.calls
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= m.FailFirst {
		if m.Err != nil {
			return nil, m.Err
		}
		return nil, fmt.Errorf("mock: transient failure %d", n)
	}

	bySymbol := make(map[string][]model.OHLCV, len(req.Symbols))
	for _, sym := range req.Symbols {
		if m.Missing[sym] {
			continue
		}
		if bars, ok := m.Data[sym]; ok {
			bySymbol[sym] = bars
			continue
		}
		bySymbol[sym] = generateMockBars(m.Price, req.Start, req.End)
	}

	if len(req.Symbols) == 1 {
		return &Response{Bars: bySymbol[req.Symbols[0]]}, nil
	}
	return &Response{BySymbol: bySymbol}, nil
}

func generateMockBars(basePrice float64, start, end time.Time) []model.OHLCV {
	if basePrice == 0 {
		basePrice = 100
	}
	var bars []model.OHLCV
	i := 0
	for d := model.TruncateDate(start); !d.After(end); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		p := basePrice * (1 + float64(i%20-10)*0.001)
		bars = append(bars, model.OHLCV{
			Time:   d,
			Open:   p * 0.999,
			High:   p * 1.005,
			Low:    p * 0.995,
			Close:  p,
			Volume: 1000000,
		})
		i++
	}
	return bars
}
