package observability

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_http_requests_total",
			Help: "Total number of HTTP requests processed by the dashboard server.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dashboard_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	grpcServerHandledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grpc_server_handled_total",
			Help: "Total number of gRPC requests handled by the server.",
		},
		[]string{"grpc_service", "grpc_method", "grpc_code"},
	)
	wsActiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dashboard_ws_active_connections",
			Help: "Number of active realtime sessions.",
		},
		[]string{"kind"},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_ws_events_total",
			Help: "Total number of realtime session lifecycle events.",
		},
		[]string{"kind", "event"},
	)
	intentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_intents_total",
			Help: "Client intents processed by the dispatcher.",
		},
		[]string{"intent", "outcome"},
	)
	broadcastsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_broadcasts_total",
			Help: "Events fanned out to connected sessions.",
		},
		[]string{"event"},
	)
	sessionDropsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dashboard_session_drops_total",
			Help: "Sessions disconnected because their send buffer filled up.",
		},
	)
	persistTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_persist_total",
			Help: "Log file rewrites by outcome.",
		},
		[]string{"log", "result"},
	)
	persistDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dashboard_persist_duration_seconds",
			Help:    "Time spent rewriting a log file, retries included.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"log"},
	)
	logEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dashboard_log_entries",
			Help: "Entries held by each log, tombstones included.",
		},
		[]string{"log"},
	)
	uploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_uploads_total",
			Help: "File uploads by storage backend and outcome.",
		},
		[]string{"store", "result"},
	)
	uploadBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dashboard_upload_bytes_total",
			Help: "Bytes accepted by the upload endpoint.",
		},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dashboard_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		grpcServerHandledTotal,
		wsActiveConnections,
		wsEventsTotal,
		intentsTotal,
		broadcastsTotal,
		sessionDropsTotal,
		persistTotal,
		persistDuration,
		logEntries,
		uploadsTotal,
		uploadBytesTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// MetricsHandler exposes the default registry.
func MetricsHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

func GRPCServerMetricsUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		statusInfo := status.Convert(err)
		service, method := splitFullMethod(info.FullMethod)
		grpcServerHandledTotal.WithLabelValues(service, method, statusInfo.Code().String()).Inc()
		return resp, err
	}
}

func splitFullMethod(fullMethod string) (string, string) {
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 3 {
		return "unknown", "unknown"
	}
	return parts[1], parts[2]
}

func IncWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Inc()
}

func DecWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Dec()
}

func IncWSEvent(kind, event string) {
	wsEventsTotal.WithLabelValues(kind, event).Inc()
}

// IncIntent counts a dispatched intent; outcome is "ok" or a rejection code.
func IncIntent(intent, outcome string) {
	intentsTotal.WithLabelValues(intent, outcome).Inc()
}

func IncBroadcast(event string) {
	broadcastsTotal.WithLabelValues(event).Inc()
}

func IncSessionDrop() {
	sessionDropsTotal.Inc()
}

// ObservePersist records one save of a log file.
func ObservePersist(log string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	persistTotal.WithLabelValues(log, result).Inc()
	persistDuration.WithLabelValues(log).Observe(d.Seconds())
}

func SetLogSize(log string, n int) {
	logEntries.WithLabelValues(log).Set(float64(n))
}

// ObserveUpload records one upload attempt.
func ObserveUpload(store string, size int64, err error) {
	if err != nil {
		uploadsTotal.WithLabelValues(store, "error").Inc()
		return
	}
	uploadsTotal.WithLabelValues(store, "ok").Inc()
	uploadBytesTotal.Add(float64(size))
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
