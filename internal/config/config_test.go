package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var envKeys = []string{
	"DATABASE_DRIVER", "DATABASE_URL", "LOG_LEVEL", "REDIS_URL", "SYNC_TICK", "TRACKER_SPEC",
	"BATCH_SIZE", "FETCH_TIMEOUT", "RAW_CACHE_TTL", "TELEGRAM_BOT_TOKEN", "ALERT_CHAT_ID",
	"CHANNEL_CATALOG", "CHANNEL_SIMULATION", "JOOBLE_API_KEY", "JOOBLE_COUNTRY",
	"TALENT_FEED_URL", "JOBRAPIDO_FEED_URL",
}

// clearEnv unsets every config variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}

func defaults() *Config {
	return &Config{
		DatabaseDriver:    "sqlite",
		DatabaseURL:       "./data/distributor.db",
		LogLevel:          "info",
		SyncTick:          time.Minute,
		TrackerSpec:       "@every 10m",
		BatchSize:         100,
		FetchTimeout:      30 * time.Second,
		RawCacheTTL:       24 * time.Hour,
		ChannelSimulation: true,
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		want    *Config
		wantErr bool
	}{
		{
			name: "defaults applied",
			env:  map[string]string{},
			want: defaults(),
		},
		{
			name: "all values set",
			env: map[string]string{
				"DATABASE_DRIVER":    "Postgres",
				"DATABASE_URL":       "postgres://u:p@db/jobs",
				"LOG_LEVEL":          "debug",
				"REDIS_URL":          "redis://cache:6379/0",
				"SYNC_TICK":          "30s",
				"TRACKER_SPEC":       "@every 5m",
				"BATCH_SIZE":         "250",
				"FETCH_TIMEOUT":      "10s",
				"RAW_CACHE_TTL":      "2h",
				"TELEGRAM_BOT_TOKEN": "tok",
				"ALERT_CHAT_ID":      " 111 , 222, ",
				"CHANNEL_CATALOG":    "/etc/catalog.yaml",
				"CHANNEL_SIMULATION": "false",
				"JOOBLE_COUNTRY":     "pt",
			},
			want: &Config{
				DatabaseDriver:    "postgres",
				DatabaseURL:       "postgres://u:p@db/jobs",
				LogLevel:          "debug",
				RedisURL:          "redis://cache:6379/0",
				SyncTick:          30 * time.Second,
				TrackerSpec:       "@every 5m",
				BatchSize:         250,
				FetchTimeout:      10 * time.Second,
				RawCacheTTL:       2 * time.Hour,
				TelegramBotToken:  "tok",
				AlertChats:        []int64{111, 222},
				ChannelCatalog:    "/etc/catalog.yaml",
				ChannelSimulation: false,
				JoobleCountry:     "pt",
			},
		},
		{name: "unknown driver", env: map[string]string{"DATABASE_DRIVER": "mysql"}, wantErr: true},
		{name: "invalid tick", env: map[string]string{"SYNC_TICK": "soon"}, wantErr: true},
		{name: "negative timeout", env: map[string]string{"FETCH_TIMEOUT": "-1s"}, wantErr: true},
		{name: "invalid batch size", env: map[string]string{"BATCH_SIZE": "lots"}, wantErr: true},
		{name: "zero batch size", env: map[string]string{"BATCH_SIZE": "0"}, wantErr: true},
		{name: "invalid simulation flag", env: map[string]string{"CHANNEL_SIMULATION": "maybe"}, wantErr: true},
		{name: "invalid chat id", env: map[string]string{"ALERT_CHAT_ID": "123,abc"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got, err := LoadFile(filepath.Join(t.TempDir(), "missing.env"))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadFileEnvWinsOverFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	data := "LOG_LEVEL=warn\nBATCH_SIZE=50\nTALENT_FEED_URL=https://talent.example/feed\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("LOG_LEVEL", "error")

	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	want := defaults()
	want.LogLevel = "error"
	want.BatchSize = 50
	want.TalentFeedURL = "https://talent.example/feed"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LoadFile() mismatch (-want +got):\n%s", diff)
	}
}

func TestChannelSettings(t *testing.T) {
	cfg := &Config{JoobleAPIKey: "k", JoobleCountry: "es", JobRapidoFeedURL: "https://rapido.example/in"}
	want := map[string]map[string]string{
		"jooble":    {"apiKey": "k", "country": "es"},
		"jobrapido": {"feedUrl": "https://rapido.example/in"},
	}
	if diff := cmp.Diff(want, cfg.ChannelSettings()); diff != "" {
		t.Errorf("ChannelSettings() mismatch (-want +got):\n%s", diff)
	}
}

func TestTelegramAlerts(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want bool
	}{
		{"token and chats", Config{TelegramBotToken: "t", AlertChats: []int64{1}}, true},
		{"token only", Config{TelegramBotToken: "t"}, false},
		{"chats only", Config{AlertChats: []int64{1}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.TelegramAlerts(); got != tt.want {
				t.Errorf("TelegramAlerts() = %v, want %v", got, tt.want)
			}
		})
	}
}
