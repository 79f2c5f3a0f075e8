package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestEventCounters(t *testing.T) {
	before := testutil.ToFloat64(eventsCounter.WithLabelValues("test-kind"))
	EventAdmitted("test-kind")
	require.Equal(t, before+1, testutil.ToFloat64(eventsCounter.WithLabelValues("test-kind")))

	beforeDrop := testutil.ToFloat64(droppedCounter.WithLabelValues(DropReasonOverloaded))
	EventDropped(DropReasonOverloaded)
	require.Equal(t, beforeDrop+1, testutil.ToFloat64(droppedCounter.WithLabelValues(DropReasonOverloaded)))
}

func TestDispatchGauge(t *testing.T) {
	base := testutil.ToFloat64(inFlightDispatch)

	report := Dispatch()
	require.Equal(t, base+1, testutil.ToFloat64(inFlightDispatch))

	report()
	require.Equal(t, base, testutil.ToFloat64(inFlightDispatch))
}

func TestSinkDelivery(t *testing.T) {
	timeSince = func(time.Time) time.Duration { return 25 * time.Millisecond }
	defer func() { timeSince = time.Since }()

	okBefore := testutil.ToFloat64(sinkResultCounter.WithLabelValues("test-sink", "false"))
	failBefore := testutil.ToFloat64(sinkResultCounter.WithLabelValues("test-sink", "true"))

	SinkDelivery("test-sink", time.Now(), nil)
	SinkDelivery("test-sink", time.Now(), errors.New("boom"))

	require.Equal(t, okBefore+1, testutil.ToFloat64(sinkResultCounter.WithLabelValues("test-sink", "false")))
	require.Equal(t, failBefore+1, testutil.ToFloat64(sinkResultCounter.WithLabelValues("test-sink", "true")))
}
