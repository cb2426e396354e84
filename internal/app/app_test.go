package app

import (
	"strings"
	"testing"
	"time"

	"matchbot/internal/config"
	"matchbot/internal/reminder"
)

func TestValidateConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr string
	}{
		{"defaults", func(c *config.Config) {}, ""},
		{"bad poll timeout", func(c *config.Config) { c.Telegram.PollTimeout = "soon" }, "telegram.poll_timeout"},
		{"bad group log", func(c *config.Config) { c.Telegram.GroupLog = "@logs" }, "telegram.group_log"},
		{"bad min interval", func(c *config.Config) { c.Provider.MinInterval = "-1s" }, "provider.min_interval"},
		{"unknown cache driver", func(c *config.Config) { c.Cache.Driver = "memcached" }, "cache.driver"},
		{"redis without addr", func(c *config.Config) { c.Cache.Driver = "redis" }, "cache.redis.addr"},
		{"inverted window", func(c *config.Config) {
			c.Reminders.OneHour = config.WindowConfig{MinMinutes: 65, MaxMinutes: 55}
		}, "reminders.one_hour"},
		{"interval too small", func(c *config.Config) { c.Reminders.Interval = "100ms" }, "reminders.interval"},
		{"unknown storage driver", func(c *config.Config) { c.Storage.Driver = "postgres" }, "storage.driver"},
		{"bonus delays inverted", func(c *config.Config) {
			c.Bonus.MinDelay, c.Bonus.MaxDelay = "2m", "1m"
		}, "bonus.max_delay"},
		{"bad http timeout", func(c *config.Config) { c.HTTP.ReadTimeout = "x" }, "http.read_timeout"},
		{"negative send rate", func(c *config.Config) { c.Telegram.SendRatePerSec = -1 }, "telegram.send_rate_per_sec"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &config.Config{}
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("validateConfig() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("validateConfig() = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestMapRemindersConfigDefaults(t *testing.T) {
	t.Parallel()

	rc, err := mapRemindersConfig(&config.Config{})
	if err != nil {
		t.Fatalf("mapRemindersConfig() error = %v", err)
	}
	if rc.Interval != reminder.DefaultInterval {
		t.Fatalf("Interval = %v, want %v", rc.Interval, reminder.DefaultInterval)
	}
	if rc.OneHour != reminder.DefaultOneHour || rc.FifteenMin != reminder.DefaultFifteenMin {
		t.Fatalf("windows = %+v / %+v, want defaults", rc.OneHour, rc.FifteenMin)
	}

	cfg := &config.Config{}
	cfg.Reminders.Interval = "30s"
	cfg.Reminders.FifteenMin = config.WindowConfig{MinMinutes: 12.5, MaxMinutes: 17.5}
	rc, err = mapRemindersConfig(cfg)
	if err != nil {
		t.Fatalf("mapRemindersConfig() error = %v", err)
	}
	if rc.Interval != 30*time.Second {
		t.Fatalf("Interval = %v, want 30s", rc.Interval)
	}
	want := reminder.Window{Min: 12*time.Minute + 30*time.Second, Max: 17*time.Minute + 30*time.Second}
	if rc.FifteenMin != want {
		t.Fatalf("FifteenMin = %+v, want %+v", rc.FifteenMin, want)
	}
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()

	sc, err := mapStorageConfig(&config.Config{})
	if err != nil {
		t.Fatalf("mapStorageConfig() error = %v", err)
	}
	if sc.Driver != "sqlite" || sc.Path != defaultStoragePath || sc.BusyTimeout != 5*time.Second {
		t.Fatalf("storage = %+v, want sqlite at default path with 5s busy timeout", sc)
	}
}

func TestMapCacheConfigRedisPrefix(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Cache.Driver = "Redis"
	cfg.Cache.Redis.Addr = "127.0.0.1:6379"
	cfg.Cache.TTL = "5m"
	cs, err := mapCacheConfig(cfg)
	if err != nil {
		t.Fatalf("mapCacheConfig() error = %v", err)
	}
	if cs.driver != "redis" || cs.prefix != "matchbot" || cs.ttl != 5*time.Minute {
		t.Fatalf("cache = %+v", cs)
	}
}

func TestMapHTTPConfigDefaults(t *testing.T) {
	t.Parallel()

	hc, err := mapHTTPConfig(&config.Config{HTTP: config.HTTPConfig{Enabled: true, Token: "  s3cret "}})
	if err != nil {
		t.Fatalf("mapHTTPConfig() error = %v", err)
	}
	if hc.Addr != ":8080" {
		t.Fatalf("Addr = %q, want :8080", hc.Addr)
	}
	if hc.Token != "s3cret" {
		t.Fatalf("Token = %q, want trimmed", hc.Token)
	}
	if hc.WriteTimeout != 60*time.Second {
		t.Fatalf("WriteTimeout = %v, want 60s", hc.WriteTimeout)
	}
}

func TestGroupLogTarget(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	if _, ok, err := groupLogTarget(cfg); ok || err != nil {
		t.Fatalf("groupLogTarget(empty) = ok %v err %v, want false nil", ok, err)
	}
	cfg.Telegram.GroupLog = " -1001234 "
	id, ok, err := groupLogTarget(cfg)
	if err != nil || !ok || id != -1001234 {
		t.Fatalf("groupLogTarget() = %d %v %v, want -1001234 true nil", id, ok, err)
	}
}
