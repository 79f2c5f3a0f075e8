package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	eventsCounter     *prometheus.CounterVec
	droppedCounter    *prometheus.CounterVec
	sinkResultCounter *prometheus.CounterVec
	deliveryHist      *prometheus.HistogramVec
	inFlightDispatch  prometheus.Gauge

	timeSince = time.Since // for test purposes only
)

const (
	namespace = "notifykit"
	subsystem = "hub"

	kindLabel   = "kind"
	sinkLabel   = "sink"
	errorLabel  = "error"
	reasonLabel = "reason"

	// DropReasonOverloaded and friends are the reason label values recorded
	// by EventDropped.
	DropReasonOverloaded = "overloaded"
	DropReasonClosed     = "closed"

	eventsTotalName = "events_total"
	eventsTotalDesc = "A counter of events admitted for dispatch."

	droppedTotalName = "events_dropped_total"
	droppedTotalDesc = "A counter of events dropped at admission."

	sinkResultTotalName = "sink_deliveries_total"
	sinkResultTotalDesc = "A counter of per-sink delivery outcomes."

	deliveryDurationName = "sink_delivery_duration_seconds"
	deliveryDurationDesc = "A histogram of per-sink delivery durations."

	inFlightName = "in_flight_dispatches"
	inFlightDesc = "A gauge of background dispatches currently in flight."
)

func init() {
	eventsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      eventsTotalName,
			Help:      eventsTotalDesc,
		},
		[]string{kindLabel},
	)

	droppedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      droppedTotalName,
			Help:      droppedTotalDesc,
		},
		[]string{reasonLabel},
	)

	sinkResultCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      sinkResultTotalName,
			Help:      sinkResultTotalDesc,
		},
		[]string{sinkLabel, errorLabel},
	)

	deliveryHist = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      deliveryDurationName,
			Help:      deliveryDurationDesc,
			// 1ms to 30s
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{sinkLabel},
	)

	inFlightDispatch = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      inFlightName,
			Help:      inFlightDesc,
		},
	)

	prometheus.MustRegister(eventsCounter)
	prometheus.MustRegister(droppedCounter)
	prometheus.MustRegister(sinkResultCounter)
	prometheus.MustRegister(deliveryHist)
	prometheus.MustRegister(inFlightDispatch)
}

// EventAdmitted records an event accepted for dispatch.
func EventAdmitted(kind string) {
	eventsCounter.WithLabelValues(kind).Inc()
}

// EventDropped records an event rejected at admission.
func EventDropped(reason string) {
	droppedCounter.WithLabelValues(reason).Inc()
}

// DispatchReportFunc finishes the measurement started by Dispatch.
type DispatchReportFunc func()

// Dispatch tracks one background dispatch in flight.
func Dispatch() DispatchReportFunc {
	inFlightDispatch.Inc()
	return func() {
		inFlightDispatch.Dec()
	}
}

// SinkDelivery records a single sink invocation outcome and its duration.
func SinkDelivery(sink string, start time.Time, err error) {
	failed := strconv.FormatBool(err != nil)
	sinkResultCounter.WithLabelValues(sink, failed).Inc()
	deliveryHist.WithLabelValues(sink).Observe(timeSince(start).Seconds())
}
