package server

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/qualify/internal/core/api"
	"github.com/solatis/qualify/internal/core/config"
	"github.com/solatis/qualify/internal/resolver"
	"github.com/solatis/qualify/internal/resources"
	"github.com/solatis/qualify/internal/types"
)

func testService(t *testing.T) *api.ResolverService {
	t.Helper()
	m, err := resources.NewManager(types.DefaultSystemConfig())
	if err != nil {
		t.Fatalf("NewManager() error = %v, want nil", err)
	}
	if err := m.AddCandidate(types.CandidateDecl{ID: "greeting", JSON: map[string]any{"text": "Hello"}}); err != nil {
		t.Fatalf("AddCandidate() error = %v, want nil", err)
	}
	r, err := resolver.FromManager(m)
	if err != nil {
		t.Fatalf("FromManager() error = %v, want nil", err)
	}
	svc, err := api.NewResolverService(r, nil, nil)
	if err != nil {
		t.Fatalf("NewResolverService() error = %v, want nil", err)
	}
	return svc
}

func TestNewGRPCServer_Validation(t *testing.T) {
	cfg := config.Default().Server
	if _, err := NewGRPCServer(cfg, nil, nil); err == nil {
		t.Error("NewGRPCServer(nil service) error = nil, want error")
	}
	cfg.RequestTimeout = 0
	if _, err := NewGRPCServer(cfg, testService(t), nil); err == nil {
		t.Error("NewGRPCServer(zero timeout) error = nil, want error")
	}
}

func TestGRPCServer_ServeAndShutdown(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var seen []string
	extra := func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); !ok {
			t.Errorf("%s: no deadline from timeout interceptor", info.FullMethod)
		}
		seen = append(seen, info.FullMethod)
		return handler(ctx, req)
	}

	srv, err := NewGRPCServer(config.Default().Server, testService(t), logger, extra)
	if err != nil {
		t.Fatalf("NewGRPCServer() error = %v, want nil", err)
	}
	lis := bufconn.Listen(1 << 20)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient() error = %v, want nil", err)
	}
	defer conn.Close()
	ctx := context.Background()

	hc, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: api.ServiceName})
	if err != nil {
		t.Fatalf("health Check() error = %v, want nil", err)
	}
	if hc.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("health status = %v, want SERVING", hc.GetStatus())
	}

	req, _ := structpb.NewStruct(map[string]any{"resource": "greeting"})
	if _, err := api.NewResolverClient(conn).ResolveComposed(ctx, req); err != nil {
		t.Fatalf("ResolveComposed() error = %v, want nil", err)
	}
	missing, _ := structpb.NewStruct(map[string]any{"resource": "missing"})
	if _, err := api.NewResolverClient(conn).Resolve(ctx, missing); err == nil {
		t.Fatal("Resolve(missing) error = nil, want NotFound")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() error = %v, want nil", err)
	}
	<-done

	var resolverCalls []string
	for _, m := range seen {
		if strings.HasPrefix(m, "/"+api.ServiceName+"/") {
			resolverCalls = append(resolverCalls, m)
		}
	}
	if len(resolverCalls) != 2 || resolverCalls[0] != api.MethodResolveComposed {
		t.Errorf("interceptor saw %v", seen)
	}
	if !strings.Contains(logs.String(), `"method":"ResolveComposed"`) || !strings.Contains(logs.String(), `"code":"NotFound"`) {
		t.Errorf("request logs missing:\n%s", logs.String())
	}
}
