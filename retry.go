package notifykit

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryingSink retries a failing inner sink a bounded number of times with
// exponential backoff, entirely in memory. Wrap a sink in it for increased
// reliability; it does not persist anything and gives up when the dispatch
// context expires.
type RetryingSink struct {
	sink            Sink
	maxAttempts     uint64
	initialInterval time.Duration
}

// NewRetryingSink wraps sink with up to maxAttempts total attempts, starting
// the backoff at initialInterval.
func NewRetryingSink(sink Sink, maxAttempts int, initialInterval time.Duration) *RetryingSink {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if initialInterval <= 0 {
		initialInterval = 100 * time.Millisecond
	}
	return &RetryingSink{
		sink:            sink,
		maxAttempts:     uint64(maxAttempts),
		initialInterval: initialInterval,
	}
}

// Name returns the wrapped sink's name: the wrapper is transparent in logs
// and aggregated errors.
func (s *RetryingSink) Name() string { return s.sink.Name() }

func (s *RetryingSink) Send(ctx context.Context, event *Event) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.initialInterval

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, s.maxAttempts-1), ctx)
	return backoff.Retry(func() error {
		return s.sink.Send(ctx, event)
	}, policy)
}
