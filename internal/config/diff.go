package config

import (
	"reflect"
	"strings"

	logx "matchbot/pkg/logx"
)

// RestartSections are sections whose changes are only picked up on restart.
var RestartSections = map[string]bool{
	"provider": true,
	"cache":    true,
	"storage":  true,
	"bonus":    true,
}

// SummarizeConfigChange returns a compact list of changed sections and safe
// structured attrs for logging (never includes tokens or passwords).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	// Telegram (never log token)
	if strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		!reflect.DeepEqual(oldCfg.Telegram.OwnerUserIDs, newCfg.Telegram.OwnerUserIDs) ||
		strings.TrimSpace(oldCfg.Telegram.GroupLog) != strings.TrimSpace(newCfg.Telegram.GroupLog) ||
		oldCfg.Telegram.SendRatePerSec != newCfg.Telegram.SendRatePerSec ||
		strings.TrimSpace(oldCfg.Telegram.SendTimeout) != strings.TrimSpace(newCfg.Telegram.SendTimeout) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerUserIDs)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(newCfg.Telegram.GroupLog) != ""),
			logx.Int("telegram.send_rate_per_sec", newCfg.Telegram.SendRatePerSec),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	oldProv, newProv := oldCfg.Provider, newCfg.Provider
	oldProv.Token, newProv.Token = "", ""
	if oldProv != newProv || (oldCfg.Provider.Token == "") != (newCfg.Provider.Token == "") {
		changed = append(changed, "provider")
		attrs = append(attrs,
			logx.String("provider.min_interval", newCfg.Provider.MinInterval),
			logx.Int("provider.max_attempts", newCfg.Provider.MaxAttempts),
		)
	}

	oldCache, newCache := oldCfg.Cache, newCfg.Cache
	oldCache.Redis.Password, newCache.Redis.Password = "", ""
	if oldCache != newCache {
		changed = append(changed, "cache")
		attrs = append(attrs,
			logx.String("cache.driver", newCfg.Cache.Driver),
			logx.String("cache.ttl", newCfg.Cache.TTL),
		)
	}

	if !reflect.DeepEqual(oldCfg.Reminders, newCfg.Reminders) {
		changed = append(changed, "reminders")
		attrs = append(attrs,
			logx.Bool("reminders.enabled", newCfg.RemindersEnabled()),
			logx.String("reminders.interval", newCfg.Reminders.Interval),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
	}
	if oldCfg.Bonus != newCfg.Bonus {
		changed = append(changed, "bonus")
		attrs = append(attrs, logx.Bool("bonus.enabled", newCfg.Bonus.Enabled))
	}

	oldHTTP, newHTTP := oldCfg.HTTP, newCfg.HTTP
	oldHTTP.Token, newHTTP.Token = "", ""
	if oldHTTP != newHTTP || (oldCfg.HTTP.Token == "") != (newCfg.HTTP.Token == "") {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.Bool("http.enabled", newCfg.HTTP.Enabled),
			logx.String("http.addr", newCfg.HTTP.Addr),
			logx.Bool("http.pprof", newCfg.HTTP.Pprof),
			logx.Bool("http.token_set", newCfg.HTTP.Token != ""),
		)
	}

	return changed, attrs
}
