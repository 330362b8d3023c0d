package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fwdctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fwdctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	hwCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fwdctl",
			Subsystem: "hw",
			Name:      "commands_total",
			Help:      "Commands issued to the dataplane.",
		},
		[]string{"object", "kind", "outcome"},
	)
	hwDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fwdctl",
			Subsystem: "hw",
			Name:      "command_duration_seconds",
			Help:      "Dataplane command round-trip duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"object", "kind", "outcome"},
	)
	omPasses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fwdctl",
			Subsystem: "om",
			Name:      "pass_objects_total",
			Help:      "Objects handled by populate/replay/sweep passes.",
		},
		[]string{"pass", "success"},
	)
	omObjects = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "fwdctl",
			Subsystem: "om",
			Name:      "objects",
			Help:      "Objects held in each singular store.",
		},
		[]string{"kind"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, hwCommands, hwDuration, omPasses, omObjects)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordCommand counts one issued dataplane command.
func RecordCommand(object, kind, outcome string, duration time.Duration) {
	RegisterMetrics()
	hwCommands.WithLabelValues(object, kind, outcome).Inc()
	hwDuration.WithLabelValues(object, kind, outcome).Observe(duration.Seconds())
}

// RecordPass adds the per-object outcome totals of one populate/replay/sweep pass.
func RecordPass(pass string, attempted, failed int) {
	RegisterMetrics()
	if ok := attempted - failed; ok > 0 {
		omPasses.WithLabelValues(pass, "true").Add(float64(ok))
	}
	if failed > 0 {
		omPasses.WithLabelValues(pass, "false").Add(float64(failed))
	}
}

func SetObjectCount(kind string, n int) {
	RegisterMetrics()
	omObjects.WithLabelValues(kind).Set(float64(n))
}
