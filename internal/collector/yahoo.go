package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"QuantFeed/internal/model"
)

const defaultYahooBaseURL = "https://query1.finance.yahoo.com"

// errSymbolNotFound marks a symbol the provider does not know.
var errSymbolNotFound = errors.New("yahoo: symbol not found")

// YahooFetcher implements Fetcher using Yahoo Finance public API.
type YahooFetcher struct {
	BaseURL   string
	Client    *http.Client
	SymbolMap map[string]string // maps internal symbol to Yahoo ticker
	Log       *logrus.Entry
}

// NewYahooFetcher creates a new Yahoo Finance fetcher.
func NewYahooFetcher(proxyURL string, log *logrus.Entry) *YahooFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if log == nil {
		log = logrus.WithField("component", "yahoo")
	}
	return &YahooFetcher{
		BaseURL: defaultYahooBaseURL,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		SymbolMap: map[string]string{
			"SPX500": "^GSPC",
			"SPX":    "^GSPC",
			"SP500":  "^GSPC",
		},
		Log: log,
	}
}

func (f *YahooFetcher) Name() string { return "yahoo" }

func (f *YahooFetcher) yahooSymbol(symbol string) string {
	if mapped, ok := f.SymbolMap[symbol]; ok {
		return mapped
	}
	return symbol
}

// yahooChart is the response structure from Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				GmtOffset int64 `json:"gmtoffset"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []interface{} `json:"open"`
					High   []interface{} `json:"high"`
					Low    []interface{} `json:"low"`
					Close  []interface{} `json:"close"`
					Volume []interface{} `json:"volume"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []interface{} `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// toFloat converts a JSON number; nulls report ok=false.
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func at(vals []interface{}, i int) (float64, bool) {
	if i >= len(vals) {
		return 0, false
	}
	return toFloat(vals[i])
}

// FetchDaily downloads each symbol's chart in turn. Unknown symbols are
// left out of a multi-symbol response so callers can report them as missing.
func (f *YahooFetcher) FetchDaily(ctx context.Context, req Request) (*Response, error) {
	if len(req.Symbols) == 0 {
		return nil, fmt.Errorf("yahoo: no symbols requested")
	}
	if len(req.Symbols) == 1 {
		bars, err := f.fetchChart(ctx, req.Symbols[0], req.Start, req.End, req.Adjusted)
		if err != nil {
			return nil, err
		}
		return &Response{Bars: bars}, nil
	}

	bySymbol := make(map[string][]model.OHLCV, len(req.Symbols))
	for _, sym := range req.Symbols {
		bars, err := f.fetchChart(ctx, sym, req.Start, req.End, req.Adjusted)
		if errors.Is(err, errSymbolNotFound) {
			f.Log.WithField("symbol", sym).Warn("symbol not returned by provider")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", sym, err)
		}
		bySymbol[sym] = bars
	}
	return &Response{BySymbol: bySymbol}, nil
}

func (f *YahooFetcher) fetchChart(ctx context.Context, symbol string, start, end time.Time, adjusted bool) ([]model.OHLCV, error) {
	q := url.Values{}
	q.Set("interval", "1d")
	// bars are filtered by their UTC timestamp but dated in exchange time;
	// start a day early so sessions opening before UTC midnight are kept
	q.Set("period1", strconv.FormatInt(model.TruncateDate(start).AddDate(0, 0, -1).Unix(), 10))
	// period2 is exclusive; extend by one day so end is inclusive
	q.Set("period2", strconv.FormatInt(model.TruncateDate(end).AddDate(0, 0, 1).Unix(), 10))
	q.Set("events", "div,splits")
	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", f.BaseURL, url.PathEscape(f.yahooSymbol(symbol)), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo read body: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", errSymbolNotFound, symbol)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo: status %d, body: %s", resp.StatusCode, string(body))
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("yahoo decode: %w", err)
	}
	if chart.Chart.Error != nil {
		if chart.Chart.Error.Code == "Not Found" {
			return nil, fmt.Errorf("%w: %s", errSymbolNotFound, symbol)
		}
		return nil, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("yahoo: no data returned for %s", symbol)
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	var adj []interface{}
	if adjusted && len(result.Indicators.AdjClose) > 0 {
		adj = result.Indicators.AdjClose[0].AdjClose
	}

	bars := make([]model.OHLCV, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		c, ok := at(quote.Close, i)
		if adj != nil {
			c, ok = at(adj, i)
		}
		if !ok {
			continue // null bar (holiday, halted)
		}
		o, _ := at(quote.Open, i)
		h, _ := at(quote.High, i)
		l, _ := at(quote.Low, i)
		v, _ := at(quote.Volume, i)
		bars = append(bars, model.OHLCV{
			// shift into exchange-local time before taking the date
			Time:   time.Unix(ts+result.Meta.GmtOffset, 0).UTC(),
			Open:   o,
			High:   h,
			Low:    l,
			Close:  c,
			Volume: v,
		})
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}
