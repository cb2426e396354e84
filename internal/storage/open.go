package storage

import (
	"errors"
	"fmt"
	"strings"

	logx "matchbot/pkg/logx"
)

var ErrUnknownDriver = errors.New("unknown storage driver")

// Open returns the store for cfg.Driver. Only sqlite is built in; an empty
// driver means sqlite.
func Open(cfg Config, log logx.Logger) (Store, error) {
	switch d := strings.ToLower(strings.TrimSpace(cfg.Driver)); d {
	case "", "sqlite", "sqlite3":
		return OpenSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, d)
	}
}
