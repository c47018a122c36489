package model

import "time"

// OHLCV represents a single daily bar as returned by a provider.
type OHLCV struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// DateLayout is the calendar-date format used for cache keys and artifacts.
const DateLayout = "2006-01-02"

// TruncateDate strips the clock part of t and returns the UTC calendar date.
func TruncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
