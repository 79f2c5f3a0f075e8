// Package feature holds the library's environment-driven escape hatches.
// Each flag is read once, by the constructor of the component it tunes, so
// flipping a variable affects checkers and hubs built afterwards, never ones
// already running.
package feature

import "os"

// DNSNegativeCache reports whether failed or timed-out DNS preflight lookups
// may be remembered for a short period. On by default; set
// NOTIFYKIT_FF_DNS_NEGATIVE_CACHE=false to make every delivery attempt pay
// the full resolution cost after a failure, which can be useful when
// debugging flaky resolvers.
func DNSNegativeCache() bool {
	return enabled("NOTIFYKIT_FF_DNS_NEGATIVE_CACHE", true)
}

// SinkOutcomeDebugLog reports whether the hub should emit a debug log line
// for every per-sink delivery outcome, successes included. Off by default;
// without it the hub logs only sink panics and failed background dispatches.
// Set
// NOTIFYKIT_FF_SINK_OUTCOME_DEBUG_LOG=true to enable.
func SinkOutcomeDebugLog() bool {
	return enabled("NOTIFYKIT_FF_SINK_OUTCOME_DEBUG_LOG", false)
}

// enabled resolves a flag: an explicit "true" or "false" in the environment
// wins, anything else (unset, empty, garbage) falls back to the flag's
// default.
func enabled(envVar string, byDefault bool) bool {
	switch os.Getenv(envVar) {
	case "true":
		return true
	case "false":
		return false
	default:
		return byDefault
	}
}
