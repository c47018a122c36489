package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"QuantFeed/internal/config"
	"QuantFeed/internal/loader"
	"QuantFeed/internal/model"
	"QuantFeed/internal/notifier"
)

// PriceLoader is the part of loader.Loader the scheduler drives.
type PriceLoader interface {
	Load(ctx context.Context, req loader.Request) (*model.PriceTable, error)
}

// Scheduler refreshes watchlists on their cron schedules.
type Scheduler struct {
	Cron     *cron.Cron
	Loader   PriceLoader
	Notifier notifier.Notifier
	Ctx      context.Context
	Log      *logrus.Entry

	mu         sync.Mutex
	watchlists map[string]config.Watchlist
}

// NewScheduler creates a new Scheduler. Cron specs include a seconds field.
func NewScheduler(ctx context.Context, l PriceLoader, n notifier.Notifier, log *logrus.Entry) *Scheduler {
	if log == nil {
		log = logrus.WithField("component", "scheduler")
	}
	if n == nil {
		n = notifier.NoopNotifier{}
	}
	return &Scheduler{
		Cron:       cron.New(cron.WithSeconds()),
		Loader:     l,
		Notifier:   n,
		Ctx:        ctx,
		Log:        log,
		watchlists: make(map[string]config.Watchlist),
	}
}

// RegisterAll registers a refresh task per watchlist.
func (s *Scheduler) RegisterAll(lists []config.Watchlist) error {
	for _, w := range lists {
		if err := s.Register(w); err != nil {
			return err
		}
	}
	return nil
}

// Register adds a refresh task for w.
func (s *Scheduler) Register(w config.Watchlist) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.watchlists[w.Name]; dup {
		return fmt.Errorf("watchlist %s already registered", w.Name)
	}
	if _, err := s.Cron.AddFunc(w.Cron, func() { s.runTask(w.Name) }); err != nil {
		return fmt.Errorf("register watchlist %s: %w", w.Name, err)
	}
	s.watchlists[w.Name] = w
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.Log.Info("scheduler started")
}

// Stop stops the cron scheduler and waits for running tasks.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.Log.Info("scheduler stopped")
}

// RunNow refreshes the named watchlist immediately and reports the
// outcome through the notifier.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	w, ok := s.watchlists[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown watchlist %s", name)
	}
	tbl, err := s.refresh(w)
	if err != nil {
		s.trySend(notifier.FormatFailure(name, err))
		return err
	}
	s.trySend(notifier.FormatRefresh(name, tbl))
	return nil
}

func (s *Scheduler) trySend(msg string) {
	if err := s.Notifier.Send(s.Ctx, msg); err != nil {
		s.Log.WithError(err).Error("send notification")
	}
}

func (s *Scheduler) runTask(name string) {
	if err := s.RunNow(name); err != nil {
		s.Log.WithError(err).WithField("watchlist", name).Error("refresh failed")
	}
}

func (s *Scheduler) refresh(w config.Watchlist) (*model.PriceTable, error) {
	log := s.Log.WithField("watchlist", w.Name)
	start, err := time.Parse(model.DateLayout, w.Start)
	if err != nil {
		return nil, fmt.Errorf("parse start: %w", err)
	}
	var end time.Time
	if w.End != "" {
		if end, err = time.Parse(model.DateLayout, w.End); err != nil {
			return nil, fmt.Errorf("parse end: %w", err)
		}
	}

	log.Info("refreshing watchlist")
	tbl, err := s.Loader.Load(s.Ctx, loader.Request{
		Symbols:      w.Symbols,
		Start:        start,
		End:          end,
		ForceRefresh: true,
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"symbols": len(tbl.Symbols), "days": tbl.Len()}).Info("watchlist refreshed")
	return tbl, nil
}
