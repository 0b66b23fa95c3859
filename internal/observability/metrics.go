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
			Namespace: "pipectl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pipectl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	pipeOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pipectl",
			Subsystem: "pipe",
			Name:      "ops_total",
			Help:      "Finished pipe operations by kind, side and outcome.",
		},
		[]string{"op", "side", "outcome"},
	)
	pipeBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pipectl",
			Subsystem: "pipe",
			Name:      "bytes_total",
			Help:      "Bytes delivered to readers by direction.",
		},
		[]string{"direction"},
	)
	pipeInstances = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pipectl",
			Subsystem: "pipe",
			Name:      "instances_active",
			Help:      "Pipe instances created and not yet closed.",
		},
	)
	clientOpenAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pipectl",
			Subsystem: "client",
			Name:      "open_attempts_total",
			Help:      "Client open attempts by result.",
		},
		[]string{"result"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, pipeOps, pipeBytes, pipeInstances, clientOpenAttempts)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordPipeOp(op, side, outcome string) {
	RegisterMetrics()
	pipeOps.WithLabelValues(op, side, outcome).Inc()
}

func RecordPipeBytes(direction string, n int) {
	if n <= 0 {
		return
	}
	RegisterMetrics()
	pipeBytes.WithLabelValues(direction).Add(float64(n))
}

func AddPipeInstances(delta int) {
	RegisterMetrics()
	pipeInstances.Add(float64(delta))
}

func RecordOpenAttempt(result string) {
	RegisterMetrics()
	clientOpenAttempts.WithLabelValues(result).Inc()
}
