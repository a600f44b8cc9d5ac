package state

import "time"

// MaxProcessedIDs caps the per-tracker recency window. Oldest ids are
// evicted first; an id evicted here may be re-delivered if the site still
// reports it, which in practice never happens for a 300-deep window.
const MaxProcessedIDs = 300

// State is one tracker's durable record.
//
// LastRun is Unix seconds as a float so state files written by earlier
// deployments of this tool (and by hand) stay readable.
type State struct {
	ProcessedIDs []string `json:"processed_ids"`
	LastRun      float64  `json:"last_run"`

	// Extra carries adapter-discovered values (per-site URLs, CSRF tokens)
	// that are expensive to rediscover every cycle. Optional.
	Extra map[string]string `json:"extra,omitempty"`
}

func Empty() State {
	return State{ProcessedIDs: []string{}}
}

// Seen reports whether id is inside the recency window.
func (s *State) Seen(id string) bool {
	for _, v := range s.ProcessedIDs {
		if v == id {
			return true
		}
	}
	return false
}

// Ack records id as processed, evicting the oldest entries beyond the cap.
func (s *State) Ack(id string) {
	if id == "" || s.Seen(id) {
		return
	}
	s.ProcessedIDs = append(s.ProcessedIDs, id)
	if n := len(s.ProcessedIDs); n > MaxProcessedIDs {
		s.ProcessedIDs = s.ProcessedIDs[n-MaxProcessedIDs:]
	}
}

// Touch marks a completed cycle.
func (s *State) Touch(now time.Time) {
	s.LastRun = float64(now.UnixMilli()) / 1000.0
}

// LastRunTime converts LastRun back to a time.Time (zero when never run).
func (s *State) LastRunTime() time.Time {
	if s.LastRun <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(s.LastRun * 1000.0))
}

// Get reads an adapter-discovered value.
func (s *State) Get(key string) string {
	if s.Extra == nil {
		return ""
	}
	return s.Extra[key]
}

// Set stores an adapter-discovered value.
func (s *State) Set(key, value string) {
	if s.Extra == nil {
		s.Extra = map[string]string{}
	}
	s.Extra[key] = value
}
