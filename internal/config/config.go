// Package config handles application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	DatabaseDriver string
	DatabaseURL    string
	LogLevel       string
	RedisURL       string

	SyncTick     time.Duration
	TrackerSpec  string
	BatchSize    int
	FetchTimeout time.Duration
	RawCacheTTL  time.Duration

	TelegramBotToken string
	AlertChats       []int64

	ChannelCatalog    string
	ChannelSimulation bool
	JoobleAPIKey      string
	JoobleCountry     string
	TalentFeedURL     string
	JobRapidoFeedURL  string
}

// Load reads an optional .env file and then configuration from environment
// variables. Variables already set in the environment win over the file.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit env file path. A missing file is ignored.
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	cfg := &Config{
		DatabaseDriver:   strings.ToLower(envOr("DATABASE_DRIVER", "sqlite")),
		DatabaseURL:      envOr("DATABASE_URL", "./data/distributor.db"),
		LogLevel:         envOr("LOG_LEVEL", "info"),
		RedisURL:         os.Getenv("REDIS_URL"),
		TrackerSpec:      envOr("TRACKER_SPEC", "@every 10m"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		ChannelCatalog:   os.Getenv("CHANNEL_CATALOG"),
		JoobleAPIKey:     os.Getenv("JOOBLE_API_KEY"),
		JoobleCountry:    os.Getenv("JOOBLE_COUNTRY"),
		TalentFeedURL:    os.Getenv("TALENT_FEED_URL"),
		JobRapidoFeedURL: os.Getenv("JOBRAPIDO_FEED_URL"),
	}

	switch cfg.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("invalid DATABASE_DRIVER %q: want sqlite or postgres", cfg.DatabaseDriver)
	}

	var err error
	if cfg.SyncTick, err = durationEnv("SYNC_TICK", time.Minute); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = durationEnv("FETCH_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.RawCacheTTL, err = durationEnv("RAW_CACHE_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = intEnv("BATCH_SIZE", 100); err != nil {
		return nil, err
	}
	if cfg.ChannelSimulation, err = boolEnv("CHANNEL_SIMULATION", true); err != nil {
		return nil, err
	}

	if raw := os.Getenv("ALERT_CHAT_ID"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			id, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid chat ID %q in ALERT_CHAT_ID: %w", s, err)
			}
			cfg.AlertChats = append(cfg.AlertChats, id)
		}
	}

	return cfg, nil
}

// TelegramAlerts reports whether alerts should also go to Telegram.
func (c *Config) TelegramAlerts() bool {
	return c.TelegramBotToken != "" && len(c.AlertChats) > 0
}

// ChannelSettings returns the process-wide channel settings. Per-user
// credentials are merged on top of these by the channel registry.
func (c *Config) ChannelSettings() map[string]map[string]string {
	out := map[string]map[string]string{}
	set := func(channel, key, value string) {
		if value == "" {
			return
		}
		if out[channel] == nil {
			out[channel] = map[string]string{}
		}
		out[channel][key] = value
	}
	set("jooble", "apiKey", c.JoobleAPIKey)
	set("jooble", "country", c.JoobleCountry)
	set("talent", "feedUrl", c.TalentFeedURL)
	set("jobrapido", "feedUrl", c.JobRapidoFeedURL)
	return out
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, raw)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, raw)
	}
	return n, nil
}

func boolEnv(key string, def bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return b, nil
}
