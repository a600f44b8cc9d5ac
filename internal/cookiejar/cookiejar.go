// Package cookiejar loads browser-exported Netscape cookie files and turns
// them into authenticated HTTP clients. Files are read once and never
// rewritten: expiry is something the poller detects, not repairs.
package cookiejar

import (
	"bufio"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Entry is one cookie row from a Netscape-format file.
type Entry struct {
	Domain            string
	IncludeSubdomains bool
	Path              string
	Secure            bool
	Expires           time.Time // zero for session cookies
	Name              string
	Value             string
}

// Jar holds the parsed contents of one cookie file.
type Jar struct {
	Path    string
	entries []Entry
}

// Load parses a Netscape cookie file. Malformed lines are skipped rather
// than failing the whole file: browser exports are messy and one bad row
// should not take a tracker offline.
func Load(path string) (*Jar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cookie file: %w", err)
	}
	defer f.Close()

	j := &Jar{Path: path}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r\n")
		if e, ok := parseLine(line); ok {
			j.entries = append(j.entries, e)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read cookie file: %w", err)
	}
	return j, nil
}

func parseLine(line string) (Entry, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Entry{}, false
	}
	// Some exporters prefix rows for HttpOnly cookies instead of using a
	// separate column.
	if strings.HasPrefix(trimmed, "#HttpOnly_") {
		trimmed = strings.TrimPrefix(trimmed, "#HttpOnly_")
	} else if strings.HasPrefix(trimmed, "#") {
		return Entry{}, false
	}

	parts := strings.Split(trimmed, "\t")
	if len(parts) != 7 {
		return Entry{}, false
	}

	e := Entry{
		Domain:            strings.TrimSpace(parts[0]),
		IncludeSubdomains: strings.EqualFold(parts[1], "TRUE"),
		Path:              parts[2],
		Secure:            strings.EqualFold(parts[3], "TRUE"),
		Name:              parts[5],
		Value:             parts[6],
	}
	if e.Domain == "" || e.Name == "" {
		return Entry{}, false
	}
	if e.Path == "" {
		e.Path = "/"
	}
	if secs, err := strconv.ParseInt(strings.TrimSpace(parts[4]), 10, 64); err == nil && secs > 0 {
		e.Expires = time.Unix(secs, 0)
	}
	return e, true
}

// Entries returns the parsed rows in file order.
func (j *Jar) Entries() []Entry { return j.entries }

// Empty reports whether the jar holds no cookies (unreadable or hollow file;
// the session still runs, the site's login check will reject it).
func (j *Jar) Empty() bool { return j == nil || len(j.entries) == 0 }

// Domain returns the host of the first row whose domain field contains a
// dot, with any leading dot stripped. Adapters that are deployed against
// many sites (UNIT3D forks) derive their identity from this.
func (j *Jar) Domain() string {
	if j == nil {
		return ""
	}
	for _, e := range j.entries {
		d := strings.TrimPrefix(e.Domain, ".")
		if strings.Contains(d, ".") {
			return d
		}
	}
	return ""
}

// Client builds an *http.Client seeded with the jar's cookies. The transport
// follows redirects and carries a per-request deadline supplied by the
// caller on each request context, so Timeout here stays zero.
func (j *Jar) Client() (*http.Client, error) {
	cj, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	byDomain := map[string][]*http.Cookie{}
	for _, e := range j.Entries() {
		d := strings.TrimPrefix(e.Domain, ".")
		byDomain[d] = append(byDomain[d], &http.Cookie{
			Name:    e.Name,
			Value:   e.Value,
			Path:    e.Path,
			Domain:  e.Domain,
			Expires: e.Expires,
			Secure:  e.Secure,
		})
	}
	for d, cookies := range byDomain {
		u := &url.URL{Scheme: "https", Host: d, Path: "/"}
		cj.SetCookies(u, cookies)
	}

	return &http.Client{Jar: cj}, nil
}
