package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"QuantFeed/internal/collector"
	"QuantFeed/internal/config"
	"QuantFeed/internal/loader"
	"QuantFeed/internal/recorder"
)

var rootCmd = &cobra.Command{
	Use:   "quantfeed",
	Short: "Download and cache daily closing prices",
	Long: `QuantFeed downloads historical daily closing prices for ticker symbols
and caches every result on disk, keyed by the symbol set and date range.

Commands:
  prices   - print a price table, downloading it if not cached
  config   - print the deep merge of one or more YAML files
  watch    - refresh configured watchlists on cron schedules
  history  - list recent loads recorded in SQLite`,
	SilenceUsage: true,
}

var (
	configFiles []string
	envFile     string
	logLevel    string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringSliceVarP(&configFiles, "config", "c", nil, "YAML config files, later files override earlier ones")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with provider credentials")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides config)")
}

// loadConfig reads the env file and config layers, then validates.
func loadConfig() (*config.Config, error) {
	if err := config.LoadEnvFile(envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(configFiles...)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	lvl, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return cfg, nil
}

func newFetcher(cfg *config.Config) collector.Fetcher {
	switch cfg.Provider.Name {
	case "alpaca":
		return collector.NewAlpacaFetcher(cfg.Provider.AlpacaKey, cfg.Provider.AlpacaSecret)
	case "mock":
		return &collector.MockFetcher{Price: 100}
	default:
		return collector.NewYahooFetcher(cfg.Provider.Proxy, logrus.WithField("component", "yahoo"))
	}
}

// newRecorder falls back to a no-op recorder when SQLite is not configured
// or cannot be opened.
func newRecorder(cfg *config.Config) recorder.Recorder {
	if cfg.Database.SQLitePath == "" {
		return recorder.NewNoopRecorder()
	}
	sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, logrus.WithField("component", "recorder"))
	if err != nil {
		logrus.WithError(err).Warn("init sqlite recorder failed, using noop")
		return recorder.NewNoopRecorder()
	}
	return sr
}

func newLoader(cfg *config.Config, rec recorder.Recorder) (*loader.Loader, error) {
	fetcher := newFetcher(cfg)
	logrus.WithField("provider", fetcher.Name()).Debug("data source selected")
	return loader.New(cfg.Loader.CacheDir, fetcher,
		loader.WithAutoAdjust(cfg.Loader.AutoAdjust),
		loader.WithRetries(cfg.Loader.Retries),
		loader.WithTimeout(cfg.Loader.Timeout),
		loader.WithRecorder(rec),
		loader.WithLogger(logrus.WithField("component", "loader")),
	)
}
