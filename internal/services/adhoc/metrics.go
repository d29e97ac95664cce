package adhoc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	PollTicks    prometheus.Counter
	PollErrors   prometheus.Counter
	PollSkipped  *prometheus.CounterVec
	PollDuration prometheus.Histogram
	Merged       *prometheus.CounterVec
	DecodeErrors prometheus.Counter
	Timeouts     prometheus.Counter
	Dispatches   *prometheus.CounterVec
	Outstanding  prometheus.Gauge
}

// NewMetrics registers the engine metrics on reg. A nil reg yields unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PollTicks: f.NewCounter(prometheus.CounterOpts{
			Name: "adhoc_poll_ticks_total", Help: "Poll ticks that queried the log store",
		}),
		PollErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "adhoc_poll_errors_total", Help: "Failed log store queries",
		}),
		PollSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "adhoc_poll_skipped_total", Help: "Poll ticks skipped without a query",
		}, []string{"reason"}),
		PollDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name: "adhoc_poll_duration_seconds", Help: "Poll tick duration",
			Buckets: prometheus.DefBuckets,
		}),
		Merged: f.NewCounterVec(prometheus.CounterOpts{
			Name: "adhoc_merge_records_total", Help: "Decoded records by merge outcome",
		}, []string{"outcome"}),
		DecodeErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "adhoc_decode_errors_total", Help: "Frames rejected by the decoder",
		}),
		Timeouts: f.NewCounter(prometheus.CounterOpts{
			Name: "adhoc_timeouts_total", Help: "Probes moved to timeout by the sweeper",
		}),
		Dispatches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "adhoc_dispatch_total", Help: "Ad-hoc dispatch attempts by result",
		}, []string{"result"}),
		Outstanding: f.NewGauge(prometheus.GaugeOpts{
			Name: "adhoc_runs_outstanding", Help: "Runs with at least one pending probe",
		}),
	}
}
