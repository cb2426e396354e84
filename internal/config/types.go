package config

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Provider  ProviderConfig  `json:"provider"`
	Cache     CacheConfig     `json:"cache"`
	Reminders RemindersConfig `json:"reminders"`
	Storage   StorageConfig   `json:"storage"`
	Bonus     BonusConfig     `json:"bonus"`
	HTTP      HTTPConfig      `json:"http"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	GroupLog     string  `json:"group_log"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
	// SendRatePerSec caps outbound messages (Telegram allows ~30/s globally).
	SendRatePerSec int `json:"send_rate_per_sec,omitempty"`
	// SendTimeout bounds a single send. Default "10s".
	SendTimeout string `json:"send_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// ProviderConfig configures the football-data.org gateway.
//
// All durations are Go duration strings. Defaults:
//   - base_url: "https://api.football-data.org/v4"
//   - min_interval: "6s"
//   - max_attempts: 3
//   - backoff_unit: "1s" (sleep is 2^attempt units)
//   - jitter_min / jitter_max: "1s" / "3s" (added on 429 only)
//   - request_timeout: "10s"
//   - days_ahead: 7
type ProviderConfig struct {
	Token          string `json:"token"`
	BaseURL        string `json:"base_url,omitempty"`
	MinInterval    string `json:"min_interval,omitempty"`
	MaxAttempts    int    `json:"max_attempts,omitempty"`
	BackoffUnit    string `json:"backoff_unit,omitempty"`
	JitterMin      string `json:"jitter_min,omitempty"`
	JitterMax      string `json:"jitter_max,omitempty"`
	RequestTimeout string `json:"request_timeout,omitempty"`
	DaysAhead      int    `json:"days_ahead,omitempty"`
}

// CacheConfig selects the match cache backend.
//
// Example:
//
//	"cache": { "driver": "redis", "ttl": "10m", "redis": { "addr": "127.0.0.1:6379" } }
type CacheConfig struct {
	Driver string      `json:"driver,omitempty"` // "memory" (default) or "redis"
	TTL    string      `json:"ttl,omitempty"`    // default "10m"
	Redis  RedisConfig `json:"redis,omitempty"`
}

type RedisConfig struct {
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
}

// RemindersConfig controls the reminder pass. Windows are expressed as
// minutes before kickoff (inclusive on both ends).
type RemindersConfig struct {
	Enabled  *bool  `json:"enabled,omitempty"`
	Interval string `json:"interval,omitempty"` // default "1m"

	OneHour    WindowConfig `json:"one_hour,omitempty"`    // default 55..65
	FifteenMin WindowConfig `json:"fifteen_min,omitempty"` // default 10..20
}

type WindowConfig struct {
	MinMinutes float64 `json:"min_minutes,omitempty"`
	MaxMinutes float64 `json:"max_minutes,omitempty"`
}

// StorageConfig controls the sqlite database.
//
// Example:
//
//	"storage": { "path": "./data/matchbot.db", "busy_timeout": "5s" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"` // only "sqlite" is supported
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// BonusConfig controls the welcome bonus granted after the first /start.
type BonusConfig struct {
	Enabled  bool   `json:"enabled"`
	Amount   int64  `json:"amount,omitempty"`    // default 30000
	MinDelay string `json:"min_delay,omitempty"` // default "60s"
	MaxDelay string `json:"max_delay,omitempty"` // default "120s"
}

// HTTPConfig controls the health/metrics server.
//
// Security note:
//   - pprof is only mounted when pprof is true.
//   - If addr is not loopback and pprof is on, set a token.
type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default ":8080"
	Metrics bool   `json:"metrics,omitempty"`
	Pprof   bool   `json:"pprof,omitempty"`
	Token   string `json:"token,omitempty"` // bearer token for /debug/pprof (do not log)

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// RemindersEnabled reports whether the reminder pass should run (default true).
func (c *Config) RemindersEnabled() bool {
	if c == nil || c.Reminders.Enabled == nil {
		return true
	}
	return *c.Reminders.Enabled
}
