package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solatis/qualify/internal/resolver"
)

var _ resolver.Metrics = (*Metrics)(nil)

func TestCacheCounters(t *testing.T) {
	m := New()

	m.CacheHit(resolver.TableCondition)
	m.CacheHit(resolver.TableCondition)
	m.CacheMiss(resolver.TableDecision)
	m.CacheReset()

	if got := testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("condition")); got != 2 {
		t.Errorf("condition hits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues("decision")); got != 1 {
		t.Errorf("decision misses = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CacheResetsTotal); got != 1 {
		t.Errorf("resets = %v, want 1", got)
	}
}

func TestRecordResolution(t *testing.T) {
	m := New()
	m.RecordResolution("resolve", "match")
	m.RecordResolution("resolve", "no_match")
	m.RecordResolution("resolve", "match")

	if got := testutil.ToFloat64(m.ResolutionsTotal.WithLabelValues("resolve", "match")); got != 2 {
		t.Errorf("match count = %v, want 2", got)
	}
}

func TestUnaryServerInterceptor(t *testing.T) {
	m := New()
	icpt := m.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/qualify.v1.Resolver/Resolve"}

	_, _ = icpt(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		return "ok", nil
	})
	_, _ = icpt(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		return nil, status.Error(codes.NotFound, "missing")
	})

	if got := testutil.ToFloat64(m.GRPCRequestsTotal.WithLabelValues("Resolve", "OK")); got != 1 {
		t.Errorf("OK count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.GRPCRequestsTotal.WithLabelValues("Resolve", "NotFound")); got != 1 {
		t.Errorf("NotFound count = %v, want 1", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.CacheReset()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "qualify_resolver_cache_resets_total 1") {
		t.Errorf("metrics output missing reset counter:\n%s", body)
	}
}
