package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"matchbot/internal/bonus"
	"matchbot/internal/config"
	"matchbot/internal/notifier"
	"matchbot/internal/observability/httpserver"
	"matchbot/internal/provider"
	"matchbot/internal/reminder"
	logx "matchbot/pkg/logx"
)

// ---- config -> component mapping ----

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

// groupLogTarget parses telegram.group_log. ok is false when unset.
func groupLogTarget(cfg *config.Config) (chatID int64, ok bool, err error) {
	raw := strings.TrimSpace(cfg.Telegram.GroupLog)
	if raw == "" {
		return 0, false, nil
	}
	chatID, err = strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("telegram.group_log: invalid chat id %q", raw)
	}
	return chatID, true, nil
}

func mapProviderConfig(cfg *config.Config) (provider.Config, error) {
	pc := cfg.Provider
	if pc.MaxAttempts < 0 {
		return provider.Config{}, fmt.Errorf("provider.max_attempts must be >= 0")
	}
	if pc.DaysAhead < 0 {
		return provider.Config{}, fmt.Errorf("provider.days_ahead must be >= 0")
	}
	minInterval, err := config.ParseDurationField("provider.min_interval", pc.MinInterval)
	if err != nil {
		return provider.Config{}, err
	}
	backoff, err := config.ParseDurationField("provider.backoff_unit", pc.BackoffUnit)
	if err != nil {
		return provider.Config{}, err
	}
	jitterMin, err := config.ParseDurationField("provider.jitter_min", pc.JitterMin)
	if err != nil {
		return provider.Config{}, err
	}
	jitterMax, err := config.ParseDurationField("provider.jitter_max", pc.JitterMax)
	if err != nil {
		return provider.Config{}, err
	}
	timeout, err := config.ParseDurationField("provider.request_timeout", pc.RequestTimeout)
	if err != nil {
		return provider.Config{}, err
	}
	return provider.Config{
		Token:          pc.Token,
		BaseURL:        pc.BaseURL,
		MinInterval:    minInterval,
		MaxAttempts:    pc.MaxAttempts,
		BackoffUnit:    backoff,
		JitterMin:      jitterMin,
		JitterMax:      jitterMax,
		RequestTimeout: timeout,
	}, nil
}

type cacheSettings struct {
	driver   string
	ttl      time.Duration
	addr     string
	password string
	db       int
	prefix   string
}

func mapCacheConfig(cfg *config.Config) (cacheSettings, error) {
	cc := cfg.Cache
	driver := strings.ToLower(strings.TrimSpace(cc.Driver))
	if driver == "" {
		driver = "memory"
	}
	ttl, err := config.ParseDurationOrDefault("cache.ttl", cc.TTL, 10*time.Minute)
	if err != nil {
		return cacheSettings{}, err
	}
	s := cacheSettings{driver: driver, ttl: ttl}
	switch driver {
	case "memory":
	case "redis":
		s.addr = strings.TrimSpace(cc.Redis.Addr)
		if s.addr == "" {
			return cacheSettings{}, fmt.Errorf("cache.redis.addr is required when cache.driver=redis")
		}
		s.password = cc.Redis.Password
		s.db = cc.Redis.DB
		s.prefix = strings.TrimSpace(cc.Redis.Prefix)
		if s.prefix == "" {
			s.prefix = "matchbot"
		}
	default:
		return cacheSettings{}, fmt.Errorf("unknown cache.driver: %s", cc.Driver)
	}
	return s, nil
}

func mapWindow(path string, w config.WindowConfig, def reminder.Window) (reminder.Window, error) {
	if w.MinMinutes == 0 && w.MaxMinutes == 0 {
		return def, nil
	}
	if w.MinMinutes < 0 || w.MaxMinutes < w.MinMinutes {
		return reminder.Window{}, fmt.Errorf("%s: need 0 <= min_minutes <= max_minutes, got %v..%v", path, w.MinMinutes, w.MaxMinutes)
	}
	return reminder.MinutesWindow(w.MinMinutes, w.MaxMinutes), nil
}

func mapRemindersConfig(cfg *config.Config) (reminder.Config, error) {
	rc := cfg.Reminders
	interval, err := config.ParseDurationOrDefault("reminders.interval", rc.Interval, reminder.DefaultInterval)
	if err != nil {
		return reminder.Config{}, err
	}
	if interval < time.Second {
		return reminder.Config{}, fmt.Errorf("reminders.interval must be >= 1s")
	}
	oneHour, err := mapWindow("reminders.one_hour", rc.OneHour, reminder.DefaultOneHour)
	if err != nil {
		return reminder.Config{}, err
	}
	fifteen, err := mapWindow("reminders.fifteen_min", rc.FifteenMin, reminder.DefaultFifteenMin)
	if err != nil {
		return reminder.Config{}, err
	}
	return reminder.Config{Interval: interval, OneHour: oneHour, FifteenMin: fifteen}, nil
}

func mapBonusConfig(cfg *config.Config) (bonus.Config, error) {
	bc := cfg.Bonus
	if bc.Amount < 0 {
		return bonus.Config{}, fmt.Errorf("bonus.amount must be >= 0")
	}
	lo, err := config.ParseDurationField("bonus.min_delay", bc.MinDelay)
	if err != nil {
		return bonus.Config{}, err
	}
	hi, err := config.ParseDurationField("bonus.max_delay", bc.MaxDelay)
	if err != nil {
		return bonus.Config{}, err
	}
	if lo > 0 && hi > 0 && hi < lo {
		return bonus.Config{}, fmt.Errorf("bonus.max_delay must be >= bonus.min_delay")
	}
	return bonus.Config{Amount: bc.Amount, MinDelay: lo, MaxDelay: hi}, nil
}

func mapHTTPConfig(cfg *config.Config) (httpserver.Config, error) {
	hc := cfg.HTTP
	addr := strings.TrimSpace(hc.Addr)
	if addr == "" {
		addr = httpserver.DefaultAddr
	}
	rt, err := config.ParseDurationOrDefault("http.read_timeout", hc.ReadTimeout, 10*time.Second)
	if err != nil {
		return httpserver.Config{}, err
	}
	// pprof profiles stream for up to 30s by default.
	wt, err := config.ParseDurationOrDefault("http.write_timeout", hc.WriteTimeout, 60*time.Second)
	if err != nil {
		return httpserver.Config{}, err
	}
	it, err := config.ParseDurationOrDefault("http.idle_timeout", hc.IdleTimeout, 60*time.Second)
	if err != nil {
		return httpserver.Config{}, err
	}
	return httpserver.Config{
		Enabled:      hc.Enabled,
		Addr:         addr,
		Metrics:      hc.Metrics,
		Pprof:        hc.Pprof,
		Token:        strings.TrimSpace(hc.Token),
		ReadTimeout:  rt,
		WriteTimeout: wt,
		IdleTimeout:  it,
	}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	tc := cfg.Telegram
	if tc.SendRatePerSec < 0 {
		return notifier.Config{}, fmt.Errorf("telegram.send_rate_per_sec must be >= 0")
	}
	timeout, err := config.ParseDurationOrDefault("telegram.send_timeout", tc.SendTimeout, 10*time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		RatePerSec:  tc.SendRatePerSec,
		SendTimeout: timeout,
		Workers:     1,
		QueueSize:   64,
		RetryMax:    2,
		// Identical operator alerts within this window are dropped.
		DedupWindow: 10 * time.Minute,
	}, nil
}

// validateConfig rejects a config before it is committed or published.
func validateConfig(cfg *config.Config) error {
	if _, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, _, err := groupLogTarget(cfg); err != nil {
		return err
	}
	if _, err := mapProviderConfig(cfg); err != nil {
		return err
	}
	if _, err := mapCacheConfig(cfg); err != nil {
		return err
	}
	if _, err := mapRemindersConfig(cfg); err != nil {
		return err
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapBonusConfig(cfg); err != nil {
		return err
	}
	if _, err := mapHTTPConfig(cfg); err != nil {
		return err
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		return err
	}
	return nil
}
