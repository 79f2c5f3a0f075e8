package notifykit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/omne42/notify-kit/internal/feature"
	"github.com/omne42/notify-kit/internal/metrics"
	"github.com/omne42/notify-kit/log"
)

const (
	defaultPerSinkTimeout     = 10 * time.Second
	defaultMaxInflight        = 64
	defaultMaxConcurrentSinks = 8
)

// HubConfig configures a Hub. The zero value selects the defaults and accepts
// every event kind.
type HubConfig struct {
	// EnabledKinds restricts dispatch to the listed kinds. Nil accepts all;
	// an empty non-nil slice accepts none.
	EnabledKinds []string

	// PerSinkTimeout bounds every sink invocation. It is intentionally
	// generous by default so it absorbs the DNS preflight.
	PerSinkTimeout time.Duration

	// MaxInflight bounds concurrent background dispatches on the
	// fire-and-forget path. Overflow drops the event, it never blocks.
	MaxInflight int

	// MaxConcurrentSinks is the fan-out window: how many sinks of a single
	// dispatch run simultaneously.
	MaxConcurrentSinks int
}

func (c HubConfig) withDefaults() HubConfig {
	if c.PerSinkTimeout <= 0 {
		c.PerSinkTimeout = defaultPerSinkTimeout
	}
	if c.MaxInflight <= 0 {
		c.MaxInflight = defaultMaxInflight
	}
	if c.MaxConcurrentSinks <= 0 {
		c.MaxConcurrentSinks = defaultMaxConcurrentSinks
	}
	return c
}

type sinkEntry struct {
	sink Sink
	name string
}

// Hub broadcasts each admitted event to every configured sink, concurrently,
// with per-sink timeout and failure isolation. A panicking sink is reported
// as a failure, never propagated.
type Hub struct {
	cfg     HubConfig
	kinds   map[string]struct{} // nil when all kinds are enabled
	entries []sinkEntry

	inflight atomic.Int64
	closed   atomic.Bool
	wg       sync.WaitGroup

	outcomeDebug bool
}

// NewHub creates a hub dispatching to sinks in the given order. Sink names
// are captured once here; a Name panic is swallowed and the sink is listed as
// "<unknown>".
func NewHub(cfg HubConfig, sinks ...Sink) *Hub {
	cfg = cfg.withDefaults()

	h := &Hub{
		cfg:          cfg,
		entries:      make([]sinkEntry, 0, len(sinks)),
		outcomeDebug: feature.SinkOutcomeDebugLog(),
	}
	if cfg.EnabledKinds != nil {
		h.kinds = make(map[string]struct{}, len(cfg.EnabledKinds))
		for _, k := range cfg.EnabledKinds {
			h.kinds[k] = struct{}{}
		}
	}
	for _, s := range sinks {
		h.entries = append(h.entries, sinkEntry{sink: s, name: sinkName(s)})
	}
	return h
}

// NewHubWithInflightLimit is NewHub with the fire-and-forget in-flight limit
// set explicitly.
func NewHubWithInflightLimit(cfg HubConfig, limit int, sinks ...Sink) *Hub {
	cfg.MaxInflight = limit
	return NewHub(cfg, sinks...)
}

func sinkName(s Sink) (name string) {
	defer func() {
		if r := recover(); r != nil {
			name = "<unknown>"
		}
	}()
	return s.Name()
}

// enabled reports whether the event kind passes the filter.
func (h *Hub) enabled(kind string) bool {
	if h.kinds == nil {
		return true
	}
	_, ok := h.kinds[kind]
	return ok
}

// Notify dispatches the event in the background and never blocks. Admission
// failures are logged at warn level and the event is dropped.
func (h *Hub) Notify(event Event) {
	if err := h.TryNotify(event); err != nil {
		log.GetLogger().WithFields(log.Fields{
			"kind":  event.Kind(),
			"title": event.Title(),
		}).WithError(err).Warn("dropping notification")
	}
}

// TryNotify dispatches the event in the background and reports admission
// errors: ErrHubClosed after Close, ErrOverloaded when the in-flight limit is
// reached. A filtered kind or an empty sink list is a successful no-op.
func (h *Hub) TryNotify(event Event) error {
	if !h.enabled(event.Kind()) || len(h.entries) == 0 {
		return nil
	}
	if h.closed.Load() {
		metrics.EventDropped(metrics.DropReasonClosed)
		return ErrHubClosed
	}
	if h.inflight.Add(1) > int64(h.cfg.MaxInflight) {
		h.inflight.Add(-1)
		metrics.EventDropped(metrics.DropReasonOverloaded)
		return ErrOverloaded
	}

	metrics.EventAdmitted(event.Kind())
	report := metrics.Dispatch()
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer report()
		defer h.inflight.Add(-1)

		if err := h.dispatch(context.Background(), &event); err != nil {
			log.GetLogger().WithFields(log.Fields{
				"kind": event.Kind(),
			}).WithError(err).Warn("background notification delivery failed")
		}
	}()
	return nil
}

// Send dispatches the event to every sink and waits for all of them,
// returning an *AggregateError when at least one fails. A filtered kind or an
// empty sink list is a successful no-op. Cancelling ctx cancels every
// in-flight sink invocation.
func (h *Hub) Send(ctx context.Context, event Event) error {
	if !h.enabled(event.Kind()) || len(h.entries) == 0 {
		return nil
	}
	metrics.EventAdmitted(event.Kind())
	return h.dispatch(ctx, &event)
}

// Close stops admission of new background notifications and waits for
// in-flight ones to finish. Send is unaffected: a caller that still holds the
// hub may await its own dispatches.
func (h *Hub) Close() {
	h.closed.Store(true)
	h.wg.Wait()
}

// dispatch fans the event out over a sliding window of at most
// MaxConcurrentSinks concurrent sink invocations: as one sink finishes the
// next queued one starts.
func (h *Hub) dispatch(ctx context.Context, event *Event) error {
	results := make([]error, len(h.entries))

	var g errgroup.Group
	g.SetLimit(h.cfg.MaxConcurrentSinks)
	for i := range h.entries {
		i := i
		g.Go(func() error {
			results[i] = h.invoke(ctx, h.entries[i], event)
			return nil
		})
	}
	_ = g.Wait()

	// The failure list is only allocated when something failed; it is in
	// sink configuration order by construction.
	var failures []SinkFailure
	for i, err := range results {
		if err != nil {
			failures = append(failures, SinkFailure{Sink: h.entries[i].name, Err: err})
		}
	}
	if failures == nil {
		return nil
	}
	return &AggregateError{Failures: failures}
}

// invoke runs one sink under the per-sink timeout, normalizing timeouts and
// panics into ordinary errors.
func (h *Hub) invoke(ctx context.Context, entry sinkEntry, event *Event) (err error) {
	start := time.Now()
	sctx, cancel := context.WithTimeout(ctx, h.cfg.PerSinkTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = errSinkPanicked
			log.GetLogger().WithFields(log.Fields{
				"sink":  entry.name,
				"panic": r,
			}).Error("sink panicked during delivery")
		}
		metrics.SinkDelivery(entry.name, start, err)
		if h.outcomeDebug {
			log.GetLogger().WithFields(log.Fields{
				"sink": entry.name,
				"kind": event.Kind(),
				"ok":   err == nil,
			}).Debug("sink delivery outcome")
		}
	}()

	err = entry.sink.Send(sctx, event)
	if err != nil && sctx.Err() == context.DeadlineExceeded {
		err = &TimeoutError{After: h.cfg.PerSinkTimeout}
	}
	return err
}
