package notifykit

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrHubClosed is returned by TryNotify once Close has been called and
	// there are sinks the event would have been dispatched to.
	ErrHubClosed = errors.New("notify hub is closed")

	// ErrOverloaded is returned by TryNotify when the fire-and-forget
	// in-flight limit is exhausted.
	ErrOverloaded = errors.New("too many in-flight notifications")

	errSinkPanicked = errors.New("sink panicked")
)

// TimeoutError reports that a sink did not complete within the per-sink
// timeout.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s", e.After)
}

// SinkFailure pairs a failing sink's cached name with its delivery error.
type SinkFailure struct {
	Sink string
	Err  error
}

// AggregateError is returned by Send when at least one sink fails. Failures
// are listed in sink configuration order; successful sinks are not mentioned.
type AggregateError struct {
	Failures []SinkFailure
}

func (e *AggregateError) Error() string {
	var b strings.Builder
	b.WriteString("one or more sinks failed:")
	for _, f := range e.Failures {
		b.WriteString("\n- ")
		b.WriteString(f.Sink)
		b.WriteString(": ")
		b.WriteString(f.Err.Error())
	}
	return b.String()
}
