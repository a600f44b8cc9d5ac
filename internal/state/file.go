package state

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "ptnotify/pkg/logx"
)

// fileStore keeps one pretty-printed JSON file per tracker. This is the
// interchange format: hand-seeding or inspecting a tracker's ledger is a
// text-editor job.
type fileStore struct {
	dir string
	log logx.Logger

	mu sync.Mutex
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	dir := strings.TrimSpace(cfg.Dir)
	if dir == "" {
		dir = "./state"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &fileStore{dir: dir, log: log}, nil
}

func (s *fileStore) path(name string) string {
	return filepath.Join(s.dir, sanitizeFileName(name)+".json")
}

func (s *fileStore) Load(name string) (State, bool, error) {
	b, err := os.ReadFile(s.path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Empty(), false, nil
		}
		return Empty(), false, err
	}

	var st State
	if err := json.Unmarshal(b, &st); err != nil || st.ProcessedIDs == nil {
		// Corrupt state is recovered, not fatal: reset and re-learn.
		s.log.Warn("state file corrupt; resetting",
			logx.String("tracker", name), logx.Err(err))
		return Empty(), false, nil
	}
	return st, true, nil
}

func (s *fileStore) Save(name string, st State) error {
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *fileStore) Close() error { return nil }

func sanitizeFileName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "unnamed"
	}
	return b.String()
}
