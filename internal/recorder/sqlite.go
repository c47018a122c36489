package recorder

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists load history to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log *logrus.Entry
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, log *logrus.Entry) (*SQLiteRecorder, error) {
	if log == nil {
		log = logrus.WithField("component", "recorder")
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets the CLI read history while a watcher is writing.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: log}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.WithField("path", dbPath).Info("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS load_events (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			cache_key   TEXT NOT NULL,
			symbols     TEXT NOT NULL,
			start_date  TEXT NOT NULL,
			end_date    TEXT NOT NULL,
			source      TEXT NOT NULL,
			provider    TEXT,
			rows        INTEGER,
			attempts    INTEGER,
			error       TEXT,
			duration_ms INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_load_ts ON load_events(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_load_key ON load_events(cache_key)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordLoad(evt *LoadEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	at := evt.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := r.db.Exec(`INSERT INTO load_events
		(timestamp, cache_key, symbols, start_date, end_date, source, provider,
		 rows, attempts, error, duration_ms)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		at.UnixMilli(), evt.CacheKey, strings.Join(evt.Symbols, ","),
		evt.Start.Format("2006-01-02"), evt.End.Format("2006-01-02"),
		evt.Source, evt.Provider, evt.Rows, evt.Attempts, evt.Err,
		evt.Duration.Milliseconds(),
	)
	return err
}

// RecentLoads returns up to limit events, newest first.
func (r *SQLiteRecorder) RecentLoads(limit int) ([]LoadEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT timestamp, cache_key, symbols, start_date, end_date,
		source, provider, rows, attempts, error, duration_ms
		FROM load_events ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query load events: %w", err)
	}
	defer rows.Close()

	var events []LoadEvent
	for rows.Next() {
		var (
			ts, durMs         int64
			symbols, from, to string
			evt               LoadEvent
		)
		if err := rows.Scan(&ts, &evt.CacheKey, &symbols, &from, &to,
			&evt.Source, &evt.Provider, &evt.Rows, &evt.Attempts, &evt.Err, &durMs); err != nil {
			return nil, fmt.Errorf("scan load event: %w", err)
		}
		evt.At = time.UnixMilli(ts)
		if symbols != "" {
			evt.Symbols = strings.Split(symbols, ",")
		}
		evt.Start, _ = time.Parse("2006-01-02", from)
		evt.End, _ = time.Parse("2006-01-02", to)
		evt.Duration = time.Duration(durMs) * time.Millisecond
		events = append(events, evt)
	}
	return events, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info("closing sqlite recorder")
	return r.db.Close()
}
