// Package version holds the build identity stamped into the user agent and
// compared by the update checker.
package version

// Version is overridden at release time via -ldflags "-X".
var Version = "1.3.0"

// UserAgent identifies the poller to tracker operators. Sites ban opaque
// clients; being honest here matters.
func UserAgent() string {
	return "ptnotify/" + Version
}
