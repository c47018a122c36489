// Package loader downloads daily closing prices and caches them on disk.
package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"QuantFeed/internal/collector"
	"QuantFeed/internal/model"
	"QuantFeed/internal/recorder"
)

// Request selects a price table. A zero End means today.
type Request struct {
	Symbols      []string
	Start        time.Time
	End          time.Time
	ForceRefresh bool
}

// Loader fetches closing prices through a Fetcher and caches each result
// as one CSV artifact per (symbol set, start, end).
type Loader struct {
	cacheDir   string
	fetcher    collector.Fetcher
	autoAdjust bool
	retries    int
	timeout    time.Duration

	log      *logrus.Entry
	recorder recorder.Recorder
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
}

// Option configures a Loader.
type Option func(*Loader)

// WithAutoAdjust selects split/dividend adjusted closes.
func WithAutoAdjust(adjust bool) Option {
	return func(l *Loader) { l.autoAdjust = adjust }
}

// WithRetries sets the maximum number of download attempts.
func WithRetries(n int) Option {
	return func(l *Loader) { l.retries = n }
}

// WithTimeout bounds each download attempt. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(l *Loader) { l.timeout = d }
}

// WithLogger sets the diagnostic sink.
func WithLogger(log *logrus.Entry) Option {
	return func(l *Loader) { l.log = log }
}

// WithRecorder records every load in r.
func WithRecorder(r recorder.Recorder) Option {
	return func(l *Loader) { l.recorder = r }
}

// WithSleeper replaces the backoff wait.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Loader) { l.sleep = fn }
}

// WithClock replaces time.Now, which resolves an open-ended End.
func WithClock(fn func() time.Time) Option {
	return func(l *Loader) { l.now = fn }
}

// New creates a Loader caching under cacheDir, creating it if needed.
func New(cacheDir string, fetcher collector.Fetcher, opts ...Option) (*Loader, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("loader: nil fetcher")
	}
	l := &Loader{
		cacheDir:   cacheDir,
		fetcher:    fetcher,
		autoAdjust: true,
		retries:    3,
		timeout:    30 * time.Second,
		log:        logrus.WithField("component", "loader"),
		recorder:   recorder.NewNoopRecorder(),
		sleep:      sleepContext,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.retries < 1 {
		l.retries = 1
	}
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return l, nil
}

// CacheDir returns the cache root.
func (l *Loader) CacheDir() string { return l.cacheDir }

// Load returns closing prices for req.Symbols over [Start, End], reading
// the cached artifact when present unless ForceRefresh is set. Columns
// follow the requested order with repeats removed.
func (l *Loader) Load(ctx context.Context, req Request) (*model.PriceTable, error) {
	symbols := uniqueSymbols(req.Symbols)
	if len(symbols) == 0 {
		return nil, ErrNoSymbols
	}
	start := model.TruncateDate(req.Start)
	end := req.End
	if end.IsZero() {
		end = l.now()
	}
	end = model.TruncateDate(end)
	if start.After(end) {
		return nil, fmt.Errorf("%w: %s > %s", ErrInvalidRange,
			start.Format(model.DateLayout), end.Format(model.DateLayout))
	}

	key := CacheKey(symbols, start, end)
	path := filepath.Join(l.cacheDir, key)
	began := l.now()
	evt := &recorder.LoadEvent{
		At: began, CacheKey: key, Symbols: symbols, Start: start, End: end,
		Provider: l.fetcher.Name(),
	}
	log := l.log.WithField("cache_key", key)

	if !req.ForceRefresh {
		cached, err := readCache(path)
		switch {
		case err == nil && !sameSymbolSet(cached.Symbols, symbols):
			return nil, fmt.Errorf("read cache %s: %w: columns %v, want %v",
				path, ErrCorruptCache, cached.Symbols, symbols)
		case err == nil:
			log.WithField("path", path).Info("loading from cache")
			tbl := cached.Reindex(symbols)
			evt.Source, evt.Rows = recorder.SourceCache, tbl.Len()
			evt.Duration = l.now().Sub(began)
			l.record(evt)
			return tbl, nil
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("read cache %s: %w", path, err)
		}
	}

	log.WithField("symbols", len(symbols)).Infof("downloading from %s", l.fetcher.Name())
	tbl, attempts, err := l.download(ctx, symbols, start, end)
	evt.Source, evt.Attempts = recorder.SourceProvider, attempts
	if err != nil {
		evt.Err = err.Error()
		evt.Duration = l.now().Sub(began)
		l.record(evt)
		return nil, err
	}

	log.WithField("path", path).Info("saving to cache")
	if err := writeCache(path, tbl); err != nil {
		return nil, fmt.Errorf("write cache %s: %w", path, err)
	}
	evt.Rows = tbl.Len()
	evt.Duration = l.now().Sub(began)
	l.record(evt)
	return tbl, nil
}

// LoadSingle loads one symbol and returns its column.
func (l *Loader) LoadSingle(ctx context.Context, symbol string, start, end time.Time, forceRefresh bool) (*model.Series, error) {
	tbl, err := l.Load(ctx, Request{
		Symbols:      []string{symbol},
		Start:        start,
		End:          end,
		ForceRefresh: forceRefresh,
	})
	if err != nil {
		return nil, err
	}
	s, ok := tbl.Column(tbl.Symbols[0])
	if !ok {
		return nil, fmt.Errorf("column %s missing from result", symbol)
	}
	return s, nil
}

// download tries the provider up to l.retries times, waiting 2^n seconds
// after failed attempt n. It returns the number of attempts made.
func (l *Loader) download(ctx context.Context, symbols []string, start, end time.Time) (*model.PriceTable, int, error) {
	var lastErr error
	attempt := 1
	for ; attempt <= l.retries; attempt++ {
		tbl, err := l.fetchOnce(ctx, symbols, start, end)
		if err == nil {
			l.log.WithFields(logrus.Fields{
				"symbols": len(tbl.Symbols),
				"days":    tbl.Len(),
				"start":   start.Format(model.DateLayout),
				"last":    tbl.Dates[tbl.Len()-1].Format(model.DateLayout),
			}).Info("download complete")
			return tbl, attempt, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, attempt, fmt.Errorf("download aborted on attempt %d: %w", attempt, ctx.Err())
		}
		if attempt == l.retries {
			break
		}

		wait := time.Duration(1<<attempt) * time.Second
		l.log.WithError(err).Warnf("download attempt %d/%d failed, retrying in %s", attempt, l.retries, wait)
		if err := l.sleep(ctx, wait); err != nil {
			return nil, attempt, fmt.Errorf("download aborted on attempt %d: %w", attempt, err)
		}
	}
	l.log.WithError(lastErr).Errorf("download failed after %d attempts", l.retries)
	return nil, l.retries, &FetchError{Attempts: l.retries, Err: lastErr}
}

func (l *Loader) fetchOnce(ctx context.Context, symbols []string, start, end time.Time) (*model.PriceTable, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	resp, err := l.fetcher.FetchDaily(ctx, collector.Request{
		Symbols:  symbols,
		Start:    start,
		End:      end,
		Adjusted: l.autoAdjust,
	})
	if err != nil {
		return nil, err
	}
	tbl, err := normalize(resp, symbols, start, end)
	if err != nil {
		return nil, fmt.Errorf("normalize response: %w", err)
	}
	if tbl.Len() == 0 {
		return nil, ErrNoData
	}
	return tbl, nil
}

// sameSymbolSet reports whether a and b hold the same symbols in any order.
func sameSymbolSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]bool, len(a))
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		if !seen[s] {
			return false
		}
	}
	return true
}

func (l *Loader) record(evt *recorder.LoadEvent) {
	if err := l.recorder.RecordLoad(evt); err != nil {
		l.log.WithError(err).Error("record load")
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
