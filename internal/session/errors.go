package session

import "errors"

// Failure categories. Everything a cycle can hit wraps one of these so the
// boundary log line says what class of problem it was; none of them escape
// the session.
var (
	// ErrCredential: unreadable or unparseable cookie file. The session
	// still runs with an empty jar; the site's login check rejects it and
	// that surfaces as a network or validation failure.
	ErrCredential = errors.New("credential error")

	// ErrNetwork: timeout, connection failure, or a non-2xx status.
	ErrNetwork = errors.New("network error")

	// ErrValidation: the configured marker text was absent from a response.
	// Almost always expired cookies or changed site markup.
	ErrValidation = errors.New("response validation failed")

	// ErrState: the durable ledger could not be written. Already-dispatched
	// items may be re-delivered on the next cycle.
	ErrState = errors.New("state error")
)
