// Package metrics exports Prometheus counters for ledger operations and the
// transports in front of them.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/MarkoPoloResearchLab/scholarcash/pkg/ledger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

const namespace = "scholarcash"

// Metrics owns a registry and the collectors registered on it.
type Metrics struct {
	registry            *prometheus.Registry
	operationsTotal     *prometheus.CounterVec
	tokensMovedTotal    *prometheus.CounterVec
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	rpcRequestsTotal    *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		operationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Ledger operations by outcome",
			},
			[]string{"operation", "status"},
		),
		tokensMovedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_moved_total",
				Help:      "Tokens moved by committed ledger entries",
			},
			[]string{"operation"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		rpcRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "grpc_requests_total",
				Help:      "Total number of gRPC requests",
			},
			[]string{"method", "code"},
		),
	}
}

// LogOperation implements ledger.OperationLogger.
func (metrics *Metrics) LogOperation(ctx context.Context, entry ledger.OperationLog) {
	metrics.operationsTotal.WithLabelValues(entry.Operation, string(entry.Status)).Inc()
	if entry.Status == ledger.OperationStatusOK && !entry.Amount.IsZero() {
		amount, _ := entry.Amount.Decimal().Float64()
		metrics.tokensMovedTotal.WithLabelValues(entry.Operation).Add(amount)
	}
}

// Handler serves the registry in the Prometheus text format.
func (metrics *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(metrics.registry, promhttp.HandlerOpts{Registry: metrics.registry})
}

// GinMiddleware counts requests by route template.
func (metrics *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()
		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.httpRequestsTotal.WithLabelValues(ctx.Request.Method, route, strconv.Itoa(ctx.Writer.Status())).Inc()
		metrics.httpRequestDuration.WithLabelValues(ctx.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// UnaryServerInterceptor counts gRPC calls by method and status code.
func (metrics *Metrics) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, request any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		response, err := handler(ctx, request)
		metrics.rpcRequestsTotal.WithLabelValues(info.FullMethod, status.Code(err).String()).Inc()
		return response, err
	}
}
