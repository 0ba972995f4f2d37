package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atlas_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "atlas_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	TurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atlas_turns_total",
			Help: "Total number of conversation turns by completion reason.",
		},
		[]string{"reason"},
	)

	ModelRoundsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "atlas_model_rounds_total",
			Help: "Total number of streamed model rounds.",
		},
	)

	StreamRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "atlas_stream_retries_total",
			Help: "Total number of model rounds retried after an interrupted stream.",
		},
	)

	ToolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atlas_tool_calls_total",
			Help: "Total number of tool invocations by outcome.",
		},
		[]string{"tool", "status"},
	)

	ToolCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "atlas_tool_call_duration_seconds",
			Help:    "Tool invocation duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	StoreWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atlas_store_writes_total",
			Help: "Total number of encrypted store writes.",
		},
		[]string{"store", "status"},
	)

	EngineBusy = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "atlas_engine_busy",
			Help: "1 while a conversation turn is running.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		TurnsTotal,
		ModelRoundsTotal,
		StreamRetriesTotal,
		ToolCallsTotal,
		ToolCallDuration,
		StoreWritesTotal,
		EngineBusy,
	)
}
