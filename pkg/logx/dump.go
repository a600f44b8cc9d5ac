package logx

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DumpResponse writes a failed response body to dir for offline diagnosis
// (expired cookies, changed site markup). Best-effort: the returned path is
// empty when the write failed, and callers are expected to only log that.
func DumpResponse(dir, tracker, body string) (string, error) {
	if strings.TrimSpace(dir) == "" || body == "" {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name := sanitizeName(tracker) + "-" + time.Now().UTC().Format("20060102T150405Z") + ".html"
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		return "", err
	}
	return path, nil
}

func sanitizeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
