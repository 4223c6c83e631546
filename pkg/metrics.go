package drs4

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the counters of one run.
type Metrics struct {
	registry *prometheus.Registry

	EventsProcessed prometheus.Counter
	ChannelsInvalid *prometheus.CounterVec
	FitsFailed      prometheus.Counter
	PulserEvents    prometheus.Counter
	BucketFlags     *prometheus.CounterVec
	EventDuration   prometheus.Histogram
}

// NewMetrics constructs the metrics and registers them in a registry of
// their own.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		EventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drs4_events_processed_total",
			Help: "Total events processed",
		}),
		ChannelsInvalid: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drs4_channels_invalid_total",
				Help: "Channels marked invalid by reason",
			},
			[]string{"reason"},
		),
		FitsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drs4_peak_fits_failed_total",
			Help: "Sub-sample peak fits that fell back to the coarse peak",
		}),
		PulserEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drs4_pulser_events_total",
			Help: "Events classified as pulser",
		}),
		BucketFlags: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drs4_bucket_flags_total",
				Help: "Channels flagged as bucket or ped_bucket",
			},
			[]string{"flag"},
		),
		EventDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "drs4_event_duration_seconds",
			Help:    "Event processing time in seconds",
			Buckets: prometheus.ExponentialBuckets(1e-5, 4, 10),
		}),
	}
	m.registry.MustRegister(
		m.EventsProcessed,
		m.ChannelsInvalid,
		m.FitsFailed,
		m.PulserEvents,
		m.BucketFlags,
		m.EventDuration,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func invalidReason(err error) string {
	var dataErr *DataError
	var numErr *NumericalError
	switch {
	case errors.As(err, &dataErr):
		return "data"
	case errors.As(err, &numErr):
		return "numerical"
	default:
		return "other"
	}
}
