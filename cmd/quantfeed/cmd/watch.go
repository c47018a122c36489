package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"QuantFeed/internal/notifier"
	"QuantFeed/internal/scheduler"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Refresh configured watchlists on their cron schedules",
	Long: `Register every watchlist from the config and force-refresh its cache
entry whenever its cron spec (with seconds field) fires. Runs until SIGINT
or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var watchRunOnStart bool

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().BoolVar(&watchRunOnStart, "run-on-start", false, "refresh every watchlist immediately")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(cfg.Watchlists) == 0 {
		return fmt.Errorf("no watchlists configured")
	}
	rec := newRecorder(cfg)
	defer rec.Close()
	l, err := newLoader(cfg, rec)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var n notifier.Notifier = notifier.NoopNotifier{}
	if cfg.Notify.TelegramBotToken != "" {
		n = notifier.NewTelegramNotifier(cfg.Notify.TelegramBotToken, cfg.Notify.TelegramChatID, cfg.Provider.Proxy)
	}

	sched := scheduler.NewScheduler(ctx, l, n, logrus.WithField("component", "scheduler"))
	if err := sched.RegisterAll(cfg.Watchlists); err != nil {
		return fmt.Errorf("register watchlists: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	if watchRunOnStart {
		for _, w := range cfg.Watchlists {
			if err := sched.RunNow(w.Name); err != nil {
				logrus.WithError(err).WithField("watchlist", w.Name).Error("initial refresh failed")
			}
		}
	}

	logrus.WithField("watchlists", len(cfg.Watchlists)).Info("watching, press Ctrl+C to stop")
	<-ctx.Done()
	logrus.Info("shutdown signal received, stopping")
	return nil
}
