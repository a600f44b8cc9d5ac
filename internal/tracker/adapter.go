package tracker

import (
	"context"
	"net/url"
	"time"

	"ptnotify/internal/state"
	logx "ptnotify/pkg/logx"
)

// Session is the fetch surface the engine exposes to adapters: an
// authenticated, globally rate-limited HTTP client plus the adapter's slice
// of durable state.
type Session interface {
	// Identity is the tracker's stable name (log correlation, state key).
	Identity() string

	// FetchPage GETs url through the shared request gate. kind is a short
	// label for logs ("notifications", "inbox"). When marker is non-empty
	// and absent from the body, the fetch fails with a validation error
	// (expired cookies or changed markup). headers may be nil.
	FetchPage(ctx context.Context, url, kind, marker string, headers map[string]string) (string, error)

	// PostForm POSTs a form through the gate (mark-as-read and the like).
	PostForm(ctx context.Context, url string, form url.Values, kind string, headers map[string]string) (string, error)

	// State is the session's in-memory ledger; adapters may stash
	// discovered values in it via Set/Get.
	State() *state.State

	// SaveState persists adapter-initiated state mutations immediately.
	// The engine persists on its own after each completed cycle.
	SaveState() error

	// APIToken returns the configured token for this adapter kind, if any.
	APIToken() string

	// MarkAsRead reports whether the operator wants delivered items marked
	// read on the site.
	MarkAsRead() bool

	Log() logx.Logger
}

// Adapter is one site's fetch+parse implementation.
type Adapter interface {
	// Kind is the registry key and the cookies/ subdirectory name.
	Kind() string

	// Identity names this instance (often derived from the cookie domain).
	Identity() string

	// BaseURL is the site root, used by sinks for favicon resolution.
	BaseURL() string

	// Interval is the scrape interval this site asks for; 0 means the
	// global default. The engine takes max(Interval, global minimum).
	Interval() time.Duration

	// Fetch returns the site's current unread items, newest parsing rules
	// win. Returned order is preserved through dispatch.
	Fetch(ctx context.Context, s Session) ([]Item, error)
}
