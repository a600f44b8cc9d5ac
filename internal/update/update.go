// Package update probes GitHub for newer releases on a cron schedule and
// logs a warning when one exists. Purely informational; nothing is
// downloaded or applied.
package update

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"ptnotify/internal/version"
	logx "ptnotify/pkg/logx"
)

const (
	defaultRepo     = "wastaken7/PTNotifier"
	defaultSchedule = "0 8 * * *"
)

type Checker struct {
	repo     string
	schedule string
	client   *http.Client
	log      logx.Logger
}

func New(repo, schedule string, log logx.Logger) *Checker {
	if strings.TrimSpace(repo) == "" {
		repo = defaultRepo
	}
	if strings.TrimSpace(schedule) == "" {
		schedule = defaultSchedule
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Checker{
		repo:     repo,
		schedule: schedule,
		client:   &http.Client{Timeout: 15 * time.Second},
		log:      log,
	}
}

// Run checks once at startup and then per schedule until ctx is done.
func (c *Checker) Run(ctx context.Context) error {
	c.checkOnce(ctx)

	cr := cron.New()
	if _, err := cr.AddFunc(c.schedule, func() { c.checkOnce(ctx) }); err != nil {
		return fmt.Errorf("update check schedule %q: %w", c.schedule, err)
	}
	cr.Start()
	<-ctx.Done()
	stopCtx := cr.Stop()
	<-stopCtx.Done()
	return nil
}

type release struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

func (c *Checker) checkOnce(ctx context.Context) {
	url := "https://api.github.com/repos/" + c.repo + "/releases/latest"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Debug("version check failed", logx.Err(err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.log.Debug("version check failed", logx.Int("status", resp.StatusCode))
		return
	}

	var rel release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		c.log.Debug("version check decode failed", logx.Err(err))
		return
	}

	latest := strings.TrimPrefix(rel.TagName, "v")
	if latest != "" && latest != version.Version {
		c.log.Warn("a newer release is available",
			logx.String("current", version.Version),
			logx.String("latest", latest),
			logx.String("url", rel.HTMLURL))
	}
}
