package notifykit

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// countdownSink fails the first failures calls and succeeds afterwards.
type countdownSink struct {
	failures int32
	calls    atomic.Int32
}

func (cs *countdownSink) Name() string { return "countdown" }

func (cs *countdownSink) Send(context.Context, *Event) error {
	if cs.calls.Add(1) <= cs.failures {
		return errors.New("transient failure")
	}
	return nil
}

func TestRetryingSinkEventuallySucceeds(t *testing.T) {
	inner := &countdownSink{failures: 2}
	s := NewRetryingSink(inner, 5, time.Millisecond)

	ev := NewEvent("x", SeverityInfo, "t")
	require.NoError(t, s.Send(context.Background(), &ev))
	require.EqualValues(t, 3, inner.calls.Load())
}

func TestRetryingSinkGivesUpAfterMaxAttempts(t *testing.T) {
	inner := &countdownSink{failures: 100}
	s := NewRetryingSink(inner, 3, time.Millisecond)

	ev := NewEvent("x", SeverityInfo, "t")
	err := s.Send(context.Background(), &ev)
	require.Error(t, err)
	require.EqualValues(t, 3, inner.calls.Load())
}

func TestRetryingSinkKeepsInnerName(t *testing.T) {
	s := NewRetryingSink(&countdownSink{}, 3, time.Millisecond)
	require.Equal(t, "countdown", s.Name())
}

func TestRetryingSinkHonorsContext(t *testing.T) {
	inner := &countdownSink{failures: 100}
	s := NewRetryingSink(inner, 1000, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	ev := NewEvent("x", SeverityInfo, "t")
	err := s.Send(ctx, &ev)
	require.Error(t, err)
	require.Less(t, inner.calls.Load(), int32(20))
}
