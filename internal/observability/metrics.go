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
			Namespace: "qubicctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests served.",
		},
		[]string{"service", "method", "operation", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "qubicctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "operation", "status"},
	)
	httpUnauthorized = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qubicctl",
			Subsystem: "http",
			Name:      "unauthorized_total",
			Help:      "Requests rejected for a missing or wrong bearer token.",
		},
		[]string{"service", "operation"},
	)
	contractQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qubicctl",
			Subsystem: "http",
			Name:      "contract_queries_total",
			Help:      "Smart contract queries answered, by contract and function.",
		},
		[]string{"service", "contract", "input_type", "status"},
	)
	upstreamCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qubicctl",
			Subsystem: "upstream",
			Name:      "calls_total",
			Help:      "Calls made to live endpoints or node peers.",
		},
		[]string{"transport", "operation", "status", "success"},
	)
	upstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "qubicctl",
			Subsystem: "upstream",
			Name:      "call_duration_seconds",
			Help:      "Upstream call duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"transport", "operation", "success"},
	)
	dispatchOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qubicctl",
			Subsystem: "dispatch",
			Name:      "outcomes_total",
			Help:      "Transaction queue attempt outcomes.",
		},
		[]string{"outcome"},
	)
	dispatchDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "qubicctl",
			Subsystem: "dispatch",
			Name:      "depth",
			Help:      "Entries pending or waiting on a retry.",
		},
	)
	networkTick = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "qubicctl",
			Subsystem: "network",
			Name:      "tick",
			Help:      "Last observed network tick.",
		},
	)
	networkEpoch = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "qubicctl",
			Subsystem: "network",
			Name:      "epoch",
			Help:      "Last observed network epoch.",
		},
	)
	balances = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "qubicctl",
			Subsystem: "account",
			Name:      "balance",
			Help:      "Last observed balance of a monitored identity.",
		},
		[]string{"identity"},
	)
	tickStalls = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "qubicctl",
			Subsystem: "network",
			Name:      "tick_stalls_total",
			Help:      "Polls where the tick did not advance.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration, httpUnauthorized, contractQueries,
			upstreamCalls, upstreamDuration,
			dispatchOutcomes, dispatchDepth,
			networkTick, networkEpoch, tickStalls, balances,
		)
	})
}

func statusLabel(status int) string {
	return strconv.Itoa(status)
}

func RecordHTTPRequest(service, method, operation string, status int, duration time.Duration) {
	RegisterMetrics()
	code := statusLabel(status)
	httpRequests.WithLabelValues(service, method, operation, code).Inc()
	httpDuration.WithLabelValues(service, method, operation, code).Observe(duration.Seconds())
}

func RecordUnauthorized(service, operation string) {
	RegisterMetrics()
	httpUnauthorized.WithLabelValues(service, operation).Inc()
}

func RecordContractQuery(service string, contract uint32, inputType uint16, status int) {
	RegisterMetrics()
	contractQueries.WithLabelValues(service,
		strconv.FormatUint(uint64(contract), 10),
		strconv.FormatUint(uint64(inputType), 10),
		statusLabel(status)).Inc()
}

// RecordUpstream counts one outbound call. status is an HTTP code or a
// message type name for raw peer traffic.
func RecordUpstream(transport, operation, status string, duration time.Duration, success bool) {
	RegisterMetrics()
	successLabel := strconv.FormatBool(success)
	upstreamCalls.WithLabelValues(transport, operation, status, successLabel).Inc()
	upstreamDuration.WithLabelValues(transport, operation, successLabel).Observe(duration.Seconds())
}

func RecordDispatch(outcome string) {
	RegisterMetrics()
	dispatchOutcomes.WithLabelValues(outcome).Inc()
}

func SetDispatchDepth(n int) {
	RegisterMetrics()
	dispatchDepth.Set(float64(n))
}

func SetNetworkTick(tick, epoch uint32) {
	RegisterMetrics()
	networkTick.Set(float64(tick))
	networkEpoch.Set(float64(epoch))
}

func RecordTickStall() {
	RegisterMetrics()
	tickStalls.Inc()
}

func SetBalance(identity string, amount int64) {
	RegisterMetrics()
	balances.WithLabelValues(identity).Set(float64(amount))
}
