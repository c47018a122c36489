package recorder

import "time"

// Load sources.
const (
	SourceCache    = "cache"
	SourceProvider = "provider"
)

// LoadEvent describes one Loader.Load call.
type LoadEvent struct {
	At       time.Time
	CacheKey string
	Symbols  []string
	Start    time.Time
	End      time.Time
	Source   string // SourceCache or SourceProvider
	Provider string
	Rows     int
	Attempts int
	Err      string // empty on success
	Duration time.Duration
}

// Recorder persists load history for analysis.
type Recorder interface {
	RecordLoad(evt *LoadEvent) error
	Close() error
}
