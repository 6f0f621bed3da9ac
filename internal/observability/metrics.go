package observability

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
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
			Name: "inbox_http_requests_total",
			Help: "Total number of HTTP requests processed by the inbox service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inbox_http_request_duration_seconds",
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
	inboxConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "inbox_ws_open_connections",
			Help: "Inbox websocket connections currently registered.",
		},
	)
	inboxLifecycleTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_ws_lifecycle_events_total",
			Help: "Websocket connect, disconnect and error events emitted.",
		},
		[]string{"event"},
	)
	fanoutDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_fanout_deliveries_total",
			Help: "Pushes attempted by the broadcaster, by event type and result.",
		},
		[]string{"event", "result"},
	)
	messagesSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "inbox_messages_sent_total",
			Help: "Total number of direct messages persisted.",
		},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "inbox_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		grpcServerHandledTotal,
		inboxConnections,
		inboxLifecycleTotal,
		fanoutDeliveriesTotal,
		messagesSentTotal,
		amqpPublishErrorsTotal,
	)
}

// MetricsHandler exposes the default registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
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

func GRPCServerMetricsUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
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

// TrackConnection counts an open inbox connection until the returned release
// func runs. Extra release calls are ignored.
func TrackConnection() (release func()) {
	inboxConnections.Inc()
	var once sync.Once
	return func() {
		once.Do(inboxConnections.Dec)
	}
}

func countLifecycle(event string) {
	inboxLifecycleTotal.WithLabelValues(event).Inc()
}

// ObserveDelivery counts one push attempt. result is "ok", "failed" or "dropped".
func ObserveDelivery(event, result string) {
	fanoutDeliveriesTotal.WithLabelValues(event, result).Inc()
}

func IncMessagesSent() {
	messagesSentTotal.Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
