package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StoreOperationLatency records entity store latency by operation and collection.
	StoreOperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "socialgraph_store_operation_latency_seconds",
		Help:    "Entity store operation latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8),
	}, []string{"operation", "collection"})

	// LoaderBatchSize records the number of distinct keys per dispatched batch.
	LoaderBatchSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "socialgraph_loader_batch_size",
		Help:    "Number of deduplicated keys per batch fetch",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
	}, []string{"loader"})

	// LoaderDispatchTotal counts batch fetches per loader and outcome.
	LoaderDispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socialgraph_loader_dispatch_total",
		Help: "Total number of batch fetches issued by request-scoped loaders",
	}, []string{"loader", "status"})

	// GraphQLRequests counts GraphQL operations.
	GraphQLRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graphql_requests_total",
		Help: "Total number of GraphQL operations",
	}, []string{"operation_type", "operation_name"})

	// GraphQLRequestDuration observes the duration of GraphQL operations.
	GraphQLRequestDuration = promauto.NewSummaryVec(prometheus.SummaryOpts{
		Name:       "graphql_request_duration_seconds",
		Help:       "Duration of GraphQL operations",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	}, []string{"operation_type", "operation_name", "status"})

	// GraphQLFailedRequests counts GraphQL operations that returned errors.
	GraphQLFailedRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graphql_failed_requests_total",
		Help: "Number of failed GraphQL operations",
	}, []string{"operation_type", "operation_name"})

	// GraphQLResolverDuration observes per-field resolver latency.
	GraphQLResolverDuration = promauto.NewSummaryVec(prometheus.SummaryOpts{
		Name:       "graphql_resolver_duration_seconds",
		Help:       "Duration of GraphQL resolver",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	}, []string{"resolver"})

	// GraphQLResolverCalls counts resolver invocations.
	GraphQLResolverCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graphql_resolver_calls_total",
		Help: "Count of GraphQL resolver calls",
	}, []string{"resolver"})

	// GraphQLErrors counts errors by code.
	GraphQLErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graphql_errors_total",
		Help: "Total number of GraphQL errors by code",
	}, []string{"code"})

	// RedisErrors counts Redis errors by command.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socialgraph_redis_errors_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// ActiveSubscriptions is the gauge of running GraphQL subscriptions.
	ActiveSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "socialgraph_active_subscriptions",
		Help: "Number of active GraphQL subscriptions",
	})

	// WebSocketConnectionsTotal is the gauge of open subscription sockets.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "socialgraph_websocket_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	// BroadcastDrops counts events dropped due to backpressure by topic and reason.
	BroadcastDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socialgraph_broadcast_drops_total",
		Help: "Total number of events dropped due to subscriber backpressure",
	}, []string{"topic", "reason"})
)

// TrackStoreOperation returns a function that records store latency when called (e.g. defer).
func TrackStoreOperation(operation, collection string) func() {
	start := time.Now()
	return func() {
		StoreOperationLatency.WithLabelValues(operation, collection).Observe(time.Since(start).Seconds())
	}
}

// TrackResolver counts a resolver call and returns a function recording its latency.
func TrackResolver(resolver string) func() {
	GraphQLResolverCalls.WithLabelValues(resolver).Inc()
	start := time.Now()
	return func() {
		GraphQLResolverDuration.WithLabelValues(resolver).Observe(time.Since(start).Seconds())
	}
}

// RecordOperation records the request-level GraphQL metrics of one operation.
func RecordOperation(opType, opName string, start time.Time, failed bool) {
	if opType == "" {
		opType = "unknown"
	}
	if opName == "" {
		opName = "anonymous"
	}
	status := "success"
	if failed {
		status = "error"
		GraphQLFailedRequests.WithLabelValues(opType, opName).Inc()
	}
	GraphQLRequests.WithLabelValues(opType, opName).Inc()
	GraphQLRequestDuration.WithLabelValues(opType, opName, status).Observe(time.Since(start).Seconds())
}
