package loader

import (
	"context"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QuantFeed/internal/collector"
	"QuantFeed/internal/model"
	"QuantFeed/internal/recorder"
)

func date(m time.Month, d int) time.Time {
	return time.Date(2024, m, d, 0, 0, 0, 0, time.UTC)
}

func bars(closes map[time.Time]float64) []model.OHLCV {
	var out []model.OHLCV
	for d, c := range closes {
		// provider timestamps carry a clock part
		out = append(out, model.OHLCV{Time: d.Add(14*time.Hour + 30*time.Minute), Close: c})
	}
	return out
}

type sleepLog struct{ waits []time.Duration }

func (s *sleepLog) sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return nil
}

type memRecorder struct{ events []recorder.LoadEvent }

func (m *memRecorder) RecordLoad(evt *recorder.LoadEvent) error {
	m.events = append(m.events, *evt)
	return nil
}
func (m *memRecorder) Close() error { return nil }

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l.WithField("component", "loader-test")
}

func newTestLoader(t *testing.T, f collector.Fetcher, opts ...Option) (*Loader, *sleepLog) {
	t.Helper()
	s := &sleepLog{}
	opts = append([]Option{WithSleeper(s.sleep), WithLogger(quietLog())}, opts...)
	l, err := New(filepath.Join(t.TempDir(), "raw"), f, opts...)
	require.NoError(t, err)
	return l, s
}

func requireSameTable(t *testing.T, want, got *model.PriceTable) {
	t.Helper()
	require.Equal(t, want.Symbols, got.Symbols)
	require.Equal(t, want.Dates, got.Dates)
	require.Len(t, got.Values, len(want.Values))
	for i := range want.Values {
		for j := range want.Values[i] {
			assert.Equal(t, math.Float64bits(want.Values[i][j]), math.Float64bits(got.Values[i][j]),
				"row %d col %d", i, j)
		}
	}
}

func fixture() *collector.MockFetcher {
	return &collector.MockFetcher{Data: map[string][]model.OHLCV{
		"AAPL": bars(map[time.Time]float64{date(1, 2): 185.64, date(1, 3): 184.25, date(1, 4): 181.91}),
		"MSFT": bars(map[time.Time]float64{date(1, 2): 370.87, date(1, 3): 370.6, date(1, 4): 367.94}),
	}}
}

func TestLoadIsIdempotent(t *testing.T) {
	f := fixture()
	l, _ := newTestLoader(t, f)
	req := Request{Symbols: []string{"AAPL", "MSFT"}, Start: date(1, 1), End: date(1, 31)}

	first, err := l.Load(context.Background(), req)
	require.NoError(t, err)
	second, err := l.Load(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, f.Calls(), "second load must be served from cache")
	requireSameTable(t, first, second)
	assert.Equal(t, []time.Time{date(1, 2), date(1, 3), date(1, 4)}, first.Dates)
	assert.Equal(t, 185.64, first.Values[0][0])
}

func TestLoadCacheKeyIgnoresOrder(t *testing.T) {
	f := fixture()
	l, _ := newTestLoader(t, f)

	a, err := l.Load(context.Background(), Request{Symbols: []string{"MSFT", "AAPL"}, Start: date(1, 1), End: date(1, 31)})
	require.NoError(t, err)
	b, err := l.Load(context.Background(), Request{Symbols: []string{"AAPL", "MSFT"}, Start: date(1, 1), End: date(1, 31)})
	require.NoError(t, err)

	assert.Equal(t, 1, f.Calls())
	assert.Equal(t, []string{"MSFT", "AAPL"}, a.Symbols)
	assert.Equal(t, []string{"AAPL", "MSFT"}, b.Symbols)
	assert.Equal(t, a.Values[0][0], b.Values[0][1])

	entries, err := os.ReadDir(l.CacheDir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "prices_AAPL_MSFT_2024-01-01_2024-01-31.csv", entries[0].Name())
}

func TestLoadKeepsMissingSymbolColumn(t *testing.T) {
	f := fixture()
	f.Missing = map[string]bool{"ZZZZ": true}
	l, _ := newTestLoader(t, f)

	tbl, err := l.Load(context.Background(), Request{Symbols: []string{"AAPL", "ZZZZ"}, Start: date(1, 1), End: date(1, 31)})
	require.NoError(t, err)
	require.Equal(t, []string{"AAPL", "ZZZZ"}, tbl.Symbols)
	require.Equal(t, 3, tbl.Len())
	for _, row := range tbl.Values {
		assert.True(t, math.IsNaN(row[1]))
	}

	// the NaN column survives the cache round trip
	cached, err := l.Load(context.Background(), Request{Symbols: []string{"AAPL", "ZZZZ"}, Start: date(1, 1), End: date(1, 31)})
	require.NoError(t, err)
	requireSameTable(t, tbl, cached)
}

func TestLoadDropsAllMissingRows(t *testing.T) {
	f := &collector.MockFetcher{Data: map[string][]model.OHLCV{
		"AAPL": bars(map[time.Time]float64{date(1, 2): 185.64, date(1, 3): math.NaN(), date(1, 4): math.NaN()}),
		"MSFT": bars(map[time.Time]float64{date(1, 2): 370.87, date(1, 4): 367.94}),
	}}
	l, _ := newTestLoader(t, f)

	tbl, err := l.Load(context.Background(), Request{Symbols: []string{"AAPL", "MSFT"}, Start: date(1, 1), End: date(1, 31)})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{date(1, 2), date(1, 4)}, tbl.Dates)
	assert.True(t, math.IsNaN(tbl.Values[1][0]))
	assert.Equal(t, 367.94, tbl.Values[1][1])
}

func TestLoadSingleShapeResponse(t *testing.T) {
	f := fixture()
	l, _ := newTestLoader(t, f)

	s, err := l.LoadSingle(context.Background(), " AAPL ", date(1, 3), date(1, 31), false)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", s.Symbol)
	assert.Equal(t, []float64{184.25, 181.91}, s.Values)
}

func TestLoadRetriesWithBackoff(t *testing.T) {
	f := fixture()
	f.FailFirst = 2
	rec := &memRecorder{}
	l, sleeps := newTestLoader(t, f, WithRetries(3), WithRecorder(rec))

	tbl, err := l.Load(context.Background(), Request{Symbols: []string{"AAPL"}, Start: date(1, 1), End: date(1, 31)})
	require.NoError(t, err)
	assert.Equal(t, 3, tbl.Len())
	assert.Equal(t, 3, f.Calls())
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeps.waits)

	require.Len(t, rec.events, 1)
	assert.Equal(t, recorder.SourceProvider, rec.events[0].Source)
	assert.Equal(t, 3, rec.events[0].Attempts)
	assert.Empty(t, rec.events[0].Err)
}

func TestLoadFailsAfterAllAttempts(t *testing.T) {
	cause := errors.New("connection reset by peer")
	f := fixture()
	f.FailFirst = 100
	f.Err = cause
	rec := &memRecorder{}
	l, sleeps := newTestLoader(t, f, WithRetries(3), WithRecorder(rec))

	tbl, err := l.Load(context.Background(), Request{Symbols: []string{"AAPL"}, Start: date(1, 1), End: date(1, 31)})
	require.Error(t, err)
	assert.Nil(t, tbl)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 3, fe.Attempts)
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, 3, f.Calls())
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeps.waits)

	entries, err := os.ReadDir(l.CacheDir())
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing is cached after a failed download")

	require.Len(t, rec.events, 1)
	assert.NotEmpty(t, rec.events[0].Err)
}

func TestLoadEmptyResponseIsRetried(t *testing.T) {
	f := &collector.MockFetcher{Missing: map[string]bool{"ZZZZ": true}}
	l, _ := newTestLoader(t, f, WithRetries(2))

	_, err := l.Load(context.Background(), Request{Symbols: []string{"ZZZZ"}, Start: date(1, 1), End: date(1, 31)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoData))
	assert.Equal(t, 2, f.Calls())
}

func TestLoadForceRefresh(t *testing.T) {
	f := fixture()
	l, _ := newTestLoader(t, f)
	req := Request{Symbols: []string{"AAPL"}, Start: date(1, 1), End: date(1, 31)}

	_, err := l.Load(context.Background(), req)
	require.NoError(t, err)

	f.Data["AAPL"] = bars(map[time.Time]float64{date(1, 2): 190})
	req.ForceRefresh = true
	tbl, err := l.Load(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, f.Calls())
	assert.Equal(t, []float64{190}, tbl.Values[0])

	req.ForceRefresh = false
	cached, err := l.Load(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, f.Calls())
	requireSameTable(t, tbl, cached)
}

func TestLoadCorruptCache(t *testing.T) {
	f := fixture()
	l, _ := newTestLoader(t, f)
	req := Request{Symbols: []string{"AAPL"}, Start: date(1, 1), End: date(1, 31)}

	path := filepath.Join(l.CacheDir(), CacheKey(req.Symbols, req.Start, req.End))
	require.NoError(t, os.WriteFile(path, []byte("not,a\ncache"), 0644))

	_, err := l.Load(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorruptCache))
	assert.Equal(t, 0, f.Calls())

	req.ForceRefresh = true
	_, err = l.Load(context.Background(), req)
	require.NoError(t, err)
}

func TestLoadValidation(t *testing.T) {
	l, _ := newTestLoader(t, fixture())

	_, err := l.Load(context.Background(), Request{Symbols: []string{" ", ""}, Start: date(1, 1)})
	assert.True(t, errors.Is(err, ErrNoSymbols))

	_, err = l.Load(context.Background(), Request{Symbols: []string{"AAPL"}, Start: date(2, 1), End: date(1, 1)})
	assert.True(t, errors.Is(err, ErrInvalidRange))
}

func TestLoadOpenEndedUsesToday(t *testing.T) {
	f := fixture()
	now := time.Date(2024, 1, 5, 21, 15, 0, 0, time.UTC)
	l, _ := newTestLoader(t, f, WithClock(func() time.Time { return now }))

	tbl, err := l.Load(context.Background(), Request{Symbols: []string{"AAPL", "AAPL"}, Start: date(1, 1)})
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, tbl.Symbols)

	_, err = os.Stat(filepath.Join(l.CacheDir(), "prices_AAPL_2024-01-01_2024-01-05.csv"))
	assert.NoError(t, err)
}

func TestLoadCancelledDuringBackoff(t *testing.T) {
	f := fixture()
	f.FailFirst = 100
	ctx, cancel := context.WithCancel(context.Background())
	l, err := New(t.TempDir(), f, WithLogger(quietLog()), WithSleeper(func(ctx context.Context, d time.Duration) error {
		cancel()
		return sleepContext(ctx, d)
	}))
	require.NoError(t, err)

	_, err = l.Load(ctx, Request{Symbols: []string{"AAPL"}, Start: date(1, 1), End: date(1, 31)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, f.Calls())
}

func TestCacheHitIsRecorded(t *testing.T) {
	rec := &memRecorder{}
	l, _ := newTestLoader(t, fixture(), WithRecorder(rec))
	req := Request{Symbols: []string{"AAPL"}, Start: date(1, 1), End: date(1, 31)}

	_, err := l.Load(context.Background(), req)
	require.NoError(t, err)
	_, err = l.Load(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, rec.events, 2)
	assert.Equal(t, recorder.SourceProvider, rec.events[0].Source)
	assert.Equal(t, recorder.SourceCache, rec.events[1].Source)
	assert.Equal(t, 3, rec.events[1].Rows)
	assert.Equal(t, "mock", rec.events[1].Provider)
}

func TestLoadRejectsCacheForOtherSymbols(t *testing.T) {
	f := fixture()
	l, _ := newTestLoader(t, f)
	req := Request{Symbols: []string{"AAPL"}, Start: date(1, 1), End: date(1, 31)}

	path := filepath.Join(l.CacheDir(), CacheKey(req.Symbols, req.Start, req.End))
	require.NoError(t, writeCache(path, &model.PriceTable{
		Dates:   []time.Time{date(1, 2)},
		Symbols: []string{"aapl"},
		Values:  [][]float64{{185.64}},
	}))

	_, err := l.Load(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorruptCache))
	assert.Equal(t, 0, f.Calls())

	req.ForceRefresh = true
	tbl, err := l.Load(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, tbl.Symbols)
	assert.Equal(t, 3, tbl.Len())
}
