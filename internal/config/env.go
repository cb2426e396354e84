package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override file values when set.
const (
	EnvBotToken     = "BOT_TOKEN"
	EnvProviderKey  = "FOOTBALL_DATA_KEY"
	EnvPort         = "PORT"
	EnvRedisAddr    = "REDIS_ADDR"
	EnvDatabasePath = "DB_PATH"
)

// LoadDotEnv loads KEY=VALUE pairs from the given files (default ".env") into
// the process environment. Missing files are not an error; variables that are
// already set are left alone.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	if v := getenv(EnvBotToken); v != "" {
		cfg.Telegram.Token = v
	}
	if v := getenv(EnvProviderKey); v != "" {
		cfg.Provider.Token = v
	}
	if v := getenv(EnvPort); v != "" {
		cfg.HTTP.Addr = ":" + strings.TrimPrefix(v, ":")
	}
	if v := getenv(EnvRedisAddr); v != "" {
		cfg.Cache.Redis.Addr = v
	}
	if v := getenv(EnvDatabasePath); v != "" {
		cfg.Storage.Path = v
	}
}

func getenv(key string) string { return strings.TrimSpace(os.Getenv(key)) }
