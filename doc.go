// Package notifykit broadcasts a single structured event to multiple
// independent delivery channels ("sinks") with per-sink isolation of latency,
// failure and security risk.
//
// A caller builds an Event and hands it to a Hub. The hub filters by kind,
// admits it under an in-flight cap, and invokes every configured sink
// concurrently under a per-sink timeout. Network sinks share one hardened
// HTTPS pipeline: the endpoint URL is validated once at construction, every
// delivery is preceded by a DNS preflight that rejects non-public addresses,
// and requests go out over redirect-free TLS clients pinned to the addresses
// the preflight resolved.
//
// Delivery is at most once per sink per event. The hub is not a message bus:
// nothing is persisted and there is no cross-dispatch ordering.
package notifykit
