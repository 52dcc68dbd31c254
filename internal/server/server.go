// Package server exposes the gateway over HTTP JSON-RPC and reports upstream
// health over gRPC.
package server

import (
	"context"
	"log/slog"

	"github.com/alfredjeanlab/mcpgate/internal/auth"
	"github.com/alfredjeanlab/mcpgate/internal/gateway"
	"github.com/alfredjeanlab/mcpgate/internal/model"
)

// ProtocolVersion is the MCP protocol revision answered to initialize.
const ProtocolVersion = "2024-11-05"

// Gateway is the dispatcher the transport drives.
type Gateway interface {
	ListTools(ctx context.Context) []model.Tool
	CallTool(ctx context.Context, call model.ToolCall, callerID string) *model.ToolResult
	ListResources() []model.Resource
	ReadResource(uri string) (*model.ResourceContent, error)
	Statuses() []gateway.UpstreamStatus
	Ready() bool
}

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*auth.Claims, error)
}

// Info identifies the server in initialize and manifest responses.
type Info struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Server serves the gateway's HTTP API.
type Server struct {
	gw       Gateway
	verifier TokenVerifier
	info     Info
	logger   *slog.Logger
}

// New returns a Server. A nil verifier disables authentication.
func New(gw Gateway, verifier TokenVerifier, info Info, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{gw: gw, verifier: verifier, info: info, logger: logger}
}

type callerKey struct{}

// WithCaller returns ctx carrying the authenticated caller's claims.
func WithCaller(ctx context.Context, c *auth.Claims) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFromContext returns the authenticated caller, or nil.
func CallerFromContext(ctx context.Context) *auth.Claims {
	c, _ := ctx.Value(callerKey{}).(*auth.Claims)
	return c
}

// callerID is the rate-limit and delegated-token identity of the request.
func callerID(ctx context.Context) string {
	if c := CallerFromContext(ctx); c != nil {
		return c.UserID
	}
	return ""
}
