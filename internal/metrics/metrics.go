package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransfersFetchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transfers_fetched_total",
			Help: "Total number of ERC-20 transfer events fetched by source",
		},
		[]string{"source"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transfer_fetch_duration_seconds",
			Help:    "Time spent serving transfer fetch requests by plan mode",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	SubgraphQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subgraph_queries_total",
			Help: "Total number of GraphQL queries by outcome",
		},
		[]string{"status"},
	)

	SubgraphQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "subgraph_query_duration_seconds",
			Help:    "GraphQL query duration in seconds, including retries",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		},
	)

	CacheOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_cache_operations_total",
			Help: "Total number of query cache operations by backend and outcome",
		},
		[]string{"backend", "op"},
	)

	RateLimitWaits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_waits_total",
			Help: "Total number of times a request blocked on the rate limiter",
		},
		[]string{"endpoint"},
	)

	WatcherErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watcher_errors_total",
			Help: "Total number of watcher polling errors",
		},
		[]string{"type"},
	)

	StreamClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stream_clients",
			Help: "Number of connected stream clients",
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// RPC provider metrics
	RPCRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpc_requests_total",
			Help: "Total number of RPC requests by provider and method",
		},
		[]string{"provider", "method"},
	)

	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpc_errors_total",
			Help: "Total number of RPC errors by provider and error code",
		},
		[]string{"provider", "error_code"},
	)

	RPCRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rpc_request_duration_seconds",
			Help:    "RPC request duration in seconds",
			Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		},
		[]string{"provider", "method"},
	)

	CurrentBlockHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "current_block_height",
			Help: "Chain head as seen by the watcher",
		},
	)
)
