package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var Metrics = struct {
	RPCRequestsTotal   *prometheus.CounterVec
	RPCDuration        *prometheus.HistogramVec
	RPCErrorsTotal     *prometheus.CounterVec
	TasksActive        prometheus.Gauge
	TasksTotal         *prometheus.CounterVec
	EventsAppended     prometheus.Counter
	SessionsCreated    prometheus.Counter
	AgentTurnDuration  prometheus.Histogram
	StreamsActive      prometheus.Gauge
}{
	RPCRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "switchboard",
		Name:      "rpc_requests_total",
		Help:      "Total JSON-RPC requests by method and outcome.",
	}, []string{"method", "status"}),

	RPCDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "switchboard",
		Name:      "rpc_request_duration_seconds",
		Help:      "JSON-RPC request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"}),

	RPCErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "switchboard",
		Name:      "rpc_errors_total",
		Help:      "Total JSON-RPC error responses by code.",
	}, []string{"code"}),

	TasksActive: promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "switchboard",
		Name:      "tasks_active",
		Help:      "Number of tasks currently in a non-terminal state.",
	}),

	TasksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "switchboard",
		Name:      "tasks_total",
		Help:      "Total tasks by final state.",
	}, []string{"state"}),

	EventsAppended: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "switchboard",
		Name:      "session_events_appended_total",
		Help:      "Total events appended to session logs.",
	}),

	SessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "switchboard",
		Name:      "sessions_created_total",
		Help:      "Total sessions created.",
	}),

	AgentTurnDuration: promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "switchboard",
		Name:      "agent_turn_duration_seconds",
		Help:      "Agent turn duration in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	}),

	StreamsActive: promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "switchboard",
		Name:      "streams_active",
		Help:      "Number of open SSE streams.",
	}),
}
