package collector

import (
	"context"
	"fmt"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"QuantFeed/internal/model"
)

// barsClient is the subset of the Alpaca market-data client we use.
type barsClient interface {
	GetMultiBars(symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error)
}

// AlpacaFetcher implements Fetcher using the Alpaca market-data API.
// It always answers in the per-symbol shape.
type AlpacaFetcher struct {
	client barsClient
	feed   marketdata.Feed
}

// NewAlpacaFetcher creates a fetcher on the IEX feed.
func NewAlpacaFetcher(apiKey, apiSecret string) *AlpacaFetcher {
	return &AlpacaFetcher{
		client: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			Feed:      marketdata.IEX,
		}),
		feed: marketdata.IEX,
	}
}

func (f *AlpacaFetcher) Name() string { return "alpaca" }

func (f *AlpacaFetcher) FetchDaily(ctx context.Context, req Request) (*Response, error) {
	adjustment := marketdata.Raw
	if req.Adjusted {
		adjustment = marketdata.All
	}
	barsReq := marketdata.GetBarsRequest{
		TimeFrame:  marketdata.OneDay,
		Start:      model.TruncateDate(req.Start),
		End:        model.TruncateDate(req.End).AddDate(0, 0, 1),
		Adjustment: adjustment,
		Feed:       f.feed,
	}

	type result struct {
		bars map[string][]marketdata.Bar
		err  error
	}
	// The SDK call takes no context; bound it by ctx here.
	ch := make(chan result, 1)
	go func() {
		bars, err := f.client.GetMultiBars(req.Symbols, barsReq)
		ch <- result{bars, err}
	}()

	var res result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.err != nil {
		return nil, fmt.Errorf("alpaca get bars: %w", res.err)
	}

	bySymbol := make(map[string][]model.OHLCV, len(res.bars))
	for sym, bars := range res.bars {
		out := make([]model.OHLCV, len(bars))
		for i, b := range bars {
			out[i] = model.OHLCV{
				Time:   b.Timestamp,
				Open:   b.Open,
				High:   b.High,
				Low:    b.Low,
				Close:  b.Close,
				Volume: float64(b.Volume),
			}
		}
		bySymbol[sym] = out
	}
	return &Response{BySymbol: bySymbol}, nil
}
