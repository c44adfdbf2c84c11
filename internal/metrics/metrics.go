// Package metrics provides Prometheus instrumentation for qualify.
//
// All metrics are registered in a custom [prometheus.Registry] (not the global
// default) so that only qualify metrics appear on the /metrics endpoint.
package metrics

import (
	"context"
	"net/http"
	"path"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// Metrics holds all Prometheus collectors used by qualify.
// It satisfies resolver.Metrics.
type Metrics struct {
	Registry *prometheus.Registry

	CacheHitsTotal      *prometheus.CounterVec
	CacheMissesTotal    *prometheus.CounterVec
	CacheResetsTotal    prometheus.Counter
	ResolutionsTotal    *prometheus.CounterVec
	GRPCRequestsTotal   *prometheus.CounterVec
	GRPCRequestDuration *prometheus.HistogramVec
}

// New creates and registers all qualify metrics in a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		CacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qualify_resolver_cache_hits_total",
			Help: "Resolver memo hits by table.",
		}, []string{"table"}),

		CacheMissesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qualify_resolver_cache_misses_total",
			Help: "Resolver memo misses by table.",
		}, []string{"table"}),

		CacheResetsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qualify_resolver_cache_resets_total",
			Help: "Total number of resolver memo resets.",
		}),

		ResolutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qualify_resolutions_total",
			Help: "Total number of resource resolutions by operation and result.",
		}, []string{"operation", "result"}),

		GRPCRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qualify_grpc_requests_total",
			Help: "Total number of gRPC requests.",
		}, []string{"method", "status"}),

		GRPCRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "qualify_grpc_request_duration_seconds",
			Help:    "gRPC request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}

	reg.MustRegister(
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheResetsTotal,
		m.ResolutionsTotal,
		m.GRPCRequestsTotal,
		m.GRPCRequestDuration,
	)

	return m
}

// Handler returns an [http.Handler] that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// CacheHit counts a memo hit.
func (m *Metrics) CacheHit(table string) {
	m.CacheHitsTotal.WithLabelValues(table).Inc()
}

// CacheMiss counts a memo miss.
func (m *Metrics) CacheMiss(table string) {
	m.CacheMissesTotal.WithLabelValues(table).Inc()
}

// CacheReset counts a memo reset.
func (m *Metrics) CacheReset() {
	m.CacheResetsTotal.Inc()
}

// RecordResolution counts one resolution outcome: "match", "no_match" or
// "error".
func (m *Metrics) RecordResolution(operation, result string) {
	m.ResolutionsTotal.WithLabelValues(operation, result).Inc()
}

// UnaryServerInterceptor returns a gRPC unary interceptor that records
// request count and latency for each method.
func (m *Metrics) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		method := path.Base(info.FullMethod)
		st, _ := status.FromError(err)
		code := st.Code().String()
		m.GRPCRequestsTotal.WithLabelValues(method, code).Inc()
		m.GRPCRequestDuration.WithLabelValues(method, code).Observe(time.Since(start).Seconds())
		return resp, err
	}
}
