package server

import (
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/alfredjeanlab/mcpgate/internal/bridge"
)

// NewGRPCServer creates a gRPC server with standard interceptors,
// registers the health service and reflection, and returns the server ready
// to serve.
func NewGRPCServer(hr *HealthReporter) *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor,
			LoggingInterceptor,
		),
	)

	healthpb.RegisterHealthServer(srv, hr.srv)
	reflection.Register(srv)

	return srv
}

// HealthReporter mirrors upstream readiness into the standard gRPC health
// service. Each upstream is a service named after it; the empty service name
// is SERVING only while every upstream is ready.
type HealthReporter struct {
	srv *health.Server

	mu    sync.Mutex
	ready map[string]bool
}

// NewHealthReporter tracks the named upstreams, all initially NOT_SERVING.
func NewHealthReporter(upstreams []string) *HealthReporter {
	h := &HealthReporter{srv: health.NewServer(), ready: make(map[string]bool, len(upstreams))}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, name := range upstreams {
		h.ready[name] = false
		h.srv.SetServingStatus(name, healthpb.HealthCheckResponse_NOT_SERVING)
	}
	h.updateOverallLocked()
	return h
}

// Observe records a bridge state change. It is suitable as
// gateway.Options.OnStateChange.
func (h *HealthReporter) Observe(sc bridge.StateChange) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ready := sc.To == bridge.Ready
	h.ready[sc.Upstream] = ready
	h.srv.SetServingStatus(sc.Upstream, servingStatus(ready))
	h.updateOverallLocked()
}

func (h *HealthReporter) updateOverallLocked() {
	all := true
	for _, ok := range h.ready {
		all = all && ok
	}
	h.srv.SetServingStatus("", servingStatus(all))
}

// Shutdown marks every service NOT_SERVING.
func (h *HealthReporter) Shutdown() { h.srv.Shutdown() }

func servingStatus(ready bool) healthpb.HealthCheckResponse_ServingStatus {
	if ready {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}
