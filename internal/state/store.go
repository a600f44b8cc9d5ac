package state

import (
	"errors"
	"strings"
	"time"

	logx "ptnotify/pkg/logx"
)

// Store is the persistence API one session uses for its own state. Sessions
// never share a name, so drivers only need to be safe for concurrent use
// across different names.
type Store interface {
	// Load returns the state for name and whether it existed. A missing or
	// structurally invalid record yields an empty state and existed=false,
	// which flips the session into first-run mode.
	Load(name string) (State, bool, error)
	Save(name string, st State) error
	Close() error
}

// Config selects and configures a driver.
type Config struct {
	Driver      string
	Dir         string        // file driver
	Path        string        // sqlite driver
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Open initializes the configured store. An empty driver means "file".
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown state driver: " + cfg.Driver)
	}
}
