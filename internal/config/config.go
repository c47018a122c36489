package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Provider struct {
		Name         string `yaml:"name"` // yahoo, alpaca or mock
		Proxy        string `yaml:"proxy"`
		AlpacaKey    string `yaml:"alpaca_key"`
		AlpacaSecret string `yaml:"alpaca_secret"`
	} `yaml:"provider"`
	Loader struct {
		CacheDir   string        `yaml:"cache_dir"`
		AutoAdjust bool          `yaml:"auto_adjust"`
		Retries    int           `yaml:"retries"`
		Timeout    time.Duration `yaml:"timeout"`
	} `yaml:"loader"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Notify struct {
		TelegramBotToken string `yaml:"telegram_bot_token"`
		TelegramChatID   string `yaml:"telegram_chat_id"`
	} `yaml:"notify"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Watchlists []Watchlist `yaml:"watchlists"`
}

// Watchlist is a symbol set refreshed on a cron schedule.
type Watchlist struct {
	Name    string   `yaml:"name"`
	Symbols []string `yaml:"symbols"`
	Start   string   `yaml:"start"`
	End     string   `yaml:"end,omitempty"`
	Cron    string   `yaml:"cron"`
}

// Defaults returns the built-in configuration layer.
func Defaults() Mapping {
	return Mapping{
		"provider": Mapping{"name": "yahoo"},
		"loader": Mapping{
			"cache_dir":   "data/raw",
			"auto_adjust": true,
			"retries":     3,
			"timeout":     "30s",
		},
		"log": Mapping{"level": "info"},
	}
}

// Load reads each YAML file, merges them over Defaults (later files win),
// then applies environment variable overrides.
func Load(paths ...string) (*Config, error) {
	layers := []Mapping{Defaults()}
	for _, p := range paths {
		m, err := LoadMapping(p)
		if err != nil {
			return nil, err
		}
		layers = append(layers, m)
	}
	return Decode(Merge(layers...))
}

// Decode converts a merged Mapping into a Config and applies environment
// overrides. A malformed override is an error.
func Decode(m Mapping) (*Config, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode merged config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &ParseError{Path: "merged config", Err: err}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFile loads KEY=VALUE pairs from a dotenv file into the process
// environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("QUANTFEED_PROVIDER"); v != "" {
		c.Provider.Name = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		c.Provider.Proxy = v
	}
	if v := os.Getenv("ALPACA_KEY"); v != "" {
		c.Provider.AlpacaKey = v
	}
	if v := os.Getenv("ALPACA_SECRET"); v != "" {
		c.Provider.AlpacaSecret = v
	}
	if v := os.Getenv("QUANTFEED_CACHE_DIR"); v != "" {
		c.Loader.CacheDir = v
	}
	if v := os.Getenv("QUANTFEED_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("QUANTFEED_RETRIES %q: %w", v, err)
		}
		c.Loader.Retries = n
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Database.SQLitePath = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Notify.TelegramBotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Notify.TelegramChatID = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	switch c.Provider.Name {
	case "yahoo", "mock":
	case "alpaca":
		if c.Provider.AlpacaKey == "" || c.Provider.AlpacaSecret == "" {
			return fmt.Errorf("provider.alpaca_key and provider.alpaca_secret are required for alpaca")
		}
	default:
		return fmt.Errorf("provider.name %q is not one of yahoo, alpaca, mock", c.Provider.Name)
	}
	if c.Notify.TelegramBotToken != "" && c.Notify.TelegramChatID == "" {
		return fmt.Errorf("notify.telegram_chat_id is required with a bot token")
	}
	if c.Loader.CacheDir == "" {
		return fmt.Errorf("loader.cache_dir is required")
	}
	if c.Loader.Retries < 1 {
		return fmt.Errorf("loader.retries must be at least 1")
	}
	if c.Loader.Timeout < 0 {
		return fmt.Errorf("loader.timeout must not be negative")
	}
	seen := make(map[string]bool)
	for i, w := range c.Watchlists {
		if w.Name == "" {
			return fmt.Errorf("watchlists[%d].name is required", i)
		}
		if seen[w.Name] {
			return fmt.Errorf("watchlists[%d].name %q is duplicated", i, w.Name)
		}
		seen[w.Name] = true
		if len(w.Symbols) == 0 {
			return fmt.Errorf("watchlist %s: symbols are required", w.Name)
		}
		if _, err := time.Parse("2006-01-02", w.Start); err != nil {
			return fmt.Errorf("watchlist %s: bad start %q", w.Name, w.Start)
		}
		if w.End != "" {
			if _, err := time.Parse("2006-01-02", w.End); err != nil {
				return fmt.Errorf("watchlist %s: bad end %q", w.Name, w.End)
			}
		}
		if w.Cron == "" {
			return fmt.Errorf("watchlist %s: cron is required", w.Name)
		}
	}
	return nil
}
