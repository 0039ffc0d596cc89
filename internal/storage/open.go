package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"blastbot/pkg/logx"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free backend, one JSON file per (user, kind)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the minimal persistence API used by the services.
//
// Documents are opaque JSON values keyed by (user id, kind). Known kinds:
// "broadcast_config", "broadcast_chats", "joins_settings".
type Store interface {
	SaveDoc(ctx context.Context, userID int64, kind string, v any) error
	// LoadDoc reports ok=false when no document exists for the key.
	LoadDoc(ctx context.Context, userID int64, kind string, v any) (ok bool, err error)
	// Users lists every user id with at least one stored document.
	Users(ctx context.Context) ([]int64, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
