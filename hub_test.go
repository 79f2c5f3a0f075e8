package notifykit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testSink records every event it receives and fails or stalls on demand.
type testSink struct {
	name  string
	err   error
	delay time.Duration
	block chan struct{}

	mu     sync.Mutex
	events []*Event
}

func (ts *testSink) Name() string { return ts.name }

func (ts *testSink) Send(ctx context.Context, event *Event) error {
	ts.mu.Lock()
	ts.events = append(ts.events, event)
	ts.mu.Unlock()

	if ts.block != nil {
		select {
		case <-ts.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if ts.delay > 0 {
		select {
		case <-time.After(ts.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return ts.err
}

func (ts *testSink) received() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.events)
}

type panickySink struct{ namePanics bool }

func (ps *panickySink) Name() string {
	if ps.namePanics {
		panic("no name for you")
	}
	return "panicky"
}

func (ps *panickySink) Send(context.Context, *Event) error {
	panic("boom")
}

func TestSendEmptySinkListSucceeds(t *testing.T) {
	h := NewHub(HubConfig{})
	err := h.Send(context.Background(), NewEvent("x", SeveritySuccess, "t"))
	require.NoError(t, err)
}

func TestSendKindFilter(t *testing.T) {
	sink := &testSink{name: "a", err: errors.New("always fails")}
	h := NewHub(HubConfig{EnabledKinds: []string{"a"}, PerSinkTimeout: 5 * time.Second}, sink)

	require.NoError(t, h.Send(context.Background(), NewEvent("b", SeverityInfo, "t")))
	require.Equal(t, 0, sink.received())

	err := h.Send(context.Background(), NewEvent("a", SeverityInfo, "t"))
	require.Error(t, err)
	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	require.Len(t, agg.Failures, 1)
	require.Equal(t, "a", agg.Failures[0].Sink)
	require.Equal(t, 1, sink.received())
}

func TestSendDeliversToEverySink(t *testing.T) {
	var sinks []Sink
	var raw []*testSink
	for _, name := range []string{"a", "b", "c", "d"} {
		ts := &testSink{name: name}
		raw = append(raw, ts)
		sinks = append(sinks, ts)
	}
	h := NewHub(HubConfig{}, sinks...)

	require.NoError(t, h.Send(context.Background(), NewEvent("x", SeverityInfo, "t")))
	for _, ts := range raw {
		require.Equal(t, 1, ts.received())
	}
}

func TestSendAggregatesInConfigurationOrder(t *testing.T) {
	// A fails slowly, B succeeds, C fails fast: completion order is C, B, A
	// but the aggregate must list A before C.
	a := &testSink{name: "a", err: errors.New("a broke"), delay: 60 * time.Millisecond}
	b := &testSink{name: "b"}
	c := &testSink{name: "c", err: errors.New("c broke")}
	h := NewHub(HubConfig{PerSinkTimeout: 5 * time.Second}, a, b, c)

	err := h.Send(context.Background(), NewEvent("x", SeverityError, "t"))
	require.Error(t, err)

	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	require.Len(t, agg.Failures, 2)
	require.Equal(t, "a", agg.Failures[0].Sink)
	require.Equal(t, "c", agg.Failures[1].Sink)

	require.Equal(t, "one or more sinks failed:\n- a: a broke\n- c: c broke", err.Error())
}

func TestSendTimeoutIsolatedPerSink(t *testing.T) {
	slow := &testSink{name: "slow", block: make(chan struct{})}
	fast := &testSink{name: "fast"}
	h := NewHub(HubConfig{PerSinkTimeout: 50 * time.Millisecond}, slow, fast)

	start := time.Now()
	err := h.Send(context.Background(), NewEvent("x", SeverityWarning, "t"))
	require.Less(t, time.Since(start), 2*time.Second)

	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	require.Len(t, agg.Failures, 1)
	require.Equal(t, "slow", agg.Failures[0].Sink)

	var te *TimeoutError
	require.ErrorAs(t, agg.Failures[0].Err, &te)
	require.Equal(t, 50*time.Millisecond, te.After)
	require.Equal(t, 1, fast.received())
}

func TestSendCapturesSinkPanic(t *testing.T) {
	ok := &testSink{name: "ok"}
	h := NewHub(HubConfig{}, &panickySink{}, ok)

	err := h.Send(context.Background(), NewEvent("x", SeverityError, "t"))
	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	require.Len(t, agg.Failures, 1)
	require.Equal(t, "panicky", agg.Failures[0].Sink)
	require.EqualError(t, agg.Failures[0].Err, "sink panicked")
	require.Equal(t, 1, ok.received())
}

func TestNewHubCapturesNamePanic(t *testing.T) {
	h := NewHub(HubConfig{}, &panickySink{namePanics: true})

	err := h.Send(context.Background(), NewEvent("x", SeverityError, "t"))
	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	require.Equal(t, "<unknown>", agg.Failures[0].Sink)
}

func TestSendSlidingWindowBoundsConcurrency(t *testing.T) {
	const window = 2
	var current, peak atomic.Int32

	var sinks []Sink
	for i := 0; i < 8; i++ {
		sinks = append(sinks, &gaugeSink{current: &current, peak: &peak})
	}
	h := NewHub(HubConfig{MaxConcurrentSinks: window}, sinks...)

	require.NoError(t, h.Send(context.Background(), NewEvent("x", SeverityInfo, "t")))
	require.LessOrEqual(t, peak.Load(), int32(window))
}

type gaugeSink struct {
	current *atomic.Int32
	peak    *atomic.Int32
}

func (gs *gaugeSink) Name() string { return "gauge" }

func (gs *gaugeSink) Send(context.Context, *Event) error {
	n := gs.current.Add(1)
	for {
		p := gs.peak.Load()
		if n <= p || gs.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	gs.current.Add(-1)
	return nil
}

func TestTryNotifyEmptyAndFiltered(t *testing.T) {
	empty := NewHub(HubConfig{})
	require.NoError(t, empty.TryNotify(NewEvent("x", SeverityInfo, "t")))

	sink := &testSink{name: "a"}
	filtered := NewHub(HubConfig{EnabledKinds: []string{"a"}}, sink)
	require.NoError(t, filtered.TryNotify(NewEvent("b", SeverityInfo, "t")))
	filtered.Close()
	require.Equal(t, 0, sink.received())
}

func TestTryNotifyOverloaded(t *testing.T) {
	block := make(chan struct{})
	sink := &testSink{name: "a", block: block}
	h := NewHubWithInflightLimit(HubConfig{PerSinkTimeout: 5 * time.Second}, 1, sink)

	require.NoError(t, h.TryNotify(NewEvent("x", SeverityInfo, "t")))

	// The single in-flight slot is taken until the sink unblocks.
	require.Eventually(t, func() bool { return sink.received() == 1 }, time.Second, time.Millisecond)
	err := h.TryNotify(NewEvent("x", SeverityInfo, "t"))
	require.ErrorIs(t, err, ErrOverloaded)

	close(block)
	h.Close()
}

func TestTryNotifyAfterClose(t *testing.T) {
	sink := &testSink{name: "a"}
	h := NewHub(HubConfig{}, sink)
	h.Close()

	err := h.TryNotify(NewEvent("x", SeverityInfo, "t"))
	require.ErrorIs(t, err, ErrHubClosed)

	// Filtered kinds and empty hubs stay no-op successes even when closed.
	filtered := NewHub(HubConfig{EnabledKinds: []string{"a"}}, sink)
	filtered.Close()
	require.NoError(t, filtered.TryNotify(NewEvent("b", SeverityInfo, "t")))
}

func TestNotifyDeliversInBackground(t *testing.T) {
	sink := &testSink{name: "a"}
	h := NewHub(HubConfig{}, sink)

	h.Notify(NewEvent("x", SeverityInfo, "t"))
	h.Close()

	require.Equal(t, 1, sink.received())
}

func TestConcurrentSendsAreIndependent(t *testing.T) {
	sink := &testSink{name: "a"}
	h := NewHub(HubConfig{}, sink)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, h.Send(context.Background(), NewEvent("x", SeverityInfo, "t")))
		}()
	}
	wg.Wait()

	require.Equal(t, 10, sink.received())
}

func TestSendCancellation(t *testing.T) {
	sink := &testSink{name: "a", block: make(chan struct{})}
	h := NewHub(HubConfig{PerSinkTimeout: 10 * time.Second}, sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- h.Send(ctx, NewEvent("x", SeverityInfo, "t"))
	}()

	require.Eventually(t, func() bool { return sink.received() == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("send did not return after cancellation")
	}
}
