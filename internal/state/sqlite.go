//go:build sqlite
// +build sqlite

package state

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	logx "ptnotify/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("state.path is required for the sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate() error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.Exec(string(b))
	return err
}

func (s *sqliteStore) Load(name string) (State, bool, error) {
	var idsJSON, extraJSON string
	var lastRun float64
	err := s.db.QueryRow(
		`SELECT processed_ids, last_run, extra FROM tracker_state WHERE name = ?`, name,
	).Scan(&idsJSON, &lastRun, &extraJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return Empty(), false, nil
	}
	if err != nil {
		return Empty(), false, err
	}

	st := State{LastRun: lastRun}
	if err := json.Unmarshal([]byte(idsJSON), &st.ProcessedIDs); err != nil || st.ProcessedIDs == nil {
		s.log.Warn("state row corrupt; resetting", logx.String("tracker", name), logx.Err(err))
		return Empty(), false, nil
	}
	if extraJSON != "" {
		_ = json.Unmarshal([]byte(extraJSON), &st.Extra)
	}
	return st, true, nil
}

func (s *sqliteStore) Save(name string, st State) error {
	ids, err := json.Marshal(st.ProcessedIDs)
	if err != nil {
		return err
	}
	extra := ""
	if len(st.Extra) > 0 {
		b, err := json.Marshal(st.Extra)
		if err != nil {
			return err
		}
		extra = string(b)
	}
	_, err = s.db.Exec(
		`INSERT INTO tracker_state(name, processed_ids, last_run, extra) VALUES(?,?,?,?)
		 ON CONFLICT(name) DO UPDATE SET processed_ids=excluded.processed_ids, last_run=excluded.last_run, extra=excluded.extra`,
		name, string(ids), st.LastRun, extra,
	)
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
