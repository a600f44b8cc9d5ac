// Package tracker defines the normalized item model and the contract every
// site adapter implements. Adapters are pure extraction logic: given the
// session's authenticated fetch surface they return Items, and the engine
// owns everything else (pacing, dedup, delivery, persistence).
package tracker

// Kind says what an Item is; sinks pick icons and colors from it.
type Kind string

const (
	KindNotification Kind = "notification"
	KindMessage      Kind = "message"
)

// Label returns the human form used in rendered notifications.
func (k Kind) Label() string {
	switch k {
	case KindMessage:
		return "Message"
	default:
		return "Notification"
	}
}

// Item is one normalized unit of new content. Immutable by convention:
// adapters build it, the dispatcher and the state ledger consume it.
//
// ID must be unique within one tracker identity's namespace; that is the
// adapter's guarantee and the whole dedup story rests on it.
type Item struct {
	Kind    Kind
	ID      string
	Title   string
	Sender  string
	Subject string
	Body    string // may carry site markup; sinks reformat per channel
	Date    string // site-provided display string, not necessarily parseable
	URL     string // canonical link to the item
	IsStaff bool   // escalation flag for staff messages
	Favicon string // optional icon override for embed-style sinks
}
