package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ericbottard/streaming-function-invoker/invoker"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        "riff_build_info",
			Help:        "Build information",
			ConstLabels: prometheus.Labels{"component": "invoker"},
		},
		[]string{"date", "sha", "version"},
	)

	invocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riff_invocations_total",
			Help: "Number of finished invocations by outcome",
		},
		[]string{"function", "outcome"},
	)

	invocationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "riff_invocation_duration_seconds",
			Help:    "Invocation duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"function"},
	)

	frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riff_frames_total",
			Help: "Data frames exchanged by direction",
		},
		[]string{"function", "direction"},
	)

	inflightInvocations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "riff_inflight_invocations",
			Help: "Invocations currently running",
		},
	)
)

// Register registers all metrics with the provided registerer.
func Register(r prometheus.Registerer) {
	r.MustRegister(buildInfo, invocations, invocationDuration, frames, inflightInvocations)
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, sha, date string) {
	buildInfo.WithLabelValues(date, sha, version).Set(1)
}

// Outcome maps an invocation's terminal error to its outcome label.
func Outcome(err error) string {
	if err == nil {
		return "success"
	}
	return invoker.KindOf(err).String()
}

// RecordInvocation counts a finished invocation and observes its duration.
func RecordInvocation(function string, err error, d time.Duration) {
	invocations.WithLabelValues(function, Outcome(err)).Inc()
	invocationDuration.WithLabelValues(function).Observe(d.Seconds())
}

// RecordFrame counts one data frame; direction is "in" or "out".
func RecordFrame(function, direction string) {
	frames.WithLabelValues(function, direction).Inc()
}

// Observer feeds invocation activity into the metrics above. It implements
// invoker.Observer.
type Observer struct{}

func (Observer) InvocationStarted(string) { inflightInvocations.Inc() }

func (Observer) InvocationFinished(function string, err error, elapsed time.Duration) {
	inflightInvocations.Dec()
	RecordInvocation(function, err, elapsed)
}

func (Observer) FrameReceived(function string) { RecordFrame(function, "in") }

func (Observer) FrameSent(function string) { RecordFrame(function, "out") }
