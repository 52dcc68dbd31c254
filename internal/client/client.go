// Package client provides a transport-agnostic interface for the mcpgate
// service and an HTTP implementation that speaks its JSON-RPC endpoint.
package client

import (
	"context"

	"github.com/alfredjeanlab/mcpgate/internal/model"
)

// GatewayClient is the interface the mcpgate CLI commands use to talk to a
// running gateway.
type GatewayClient interface {
	// MCP methods
	Initialize(ctx context.Context) (*InitializeResult, error)
	ListTools(ctx context.Context) ([]model.Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*model.ToolResult, error)
	ListResources(ctx context.Context) ([]model.Resource, error)
	ReadResource(ctx context.Context, uri string) (*model.ResourceContent, error)

	// Service endpoints
	Health(ctx context.Context) (*HealthResponse, error)
	Manifest(ctx context.Context) (*Manifest, error)

	// Lifecycle
	Close() error
}

// ServerInfo identifies the gateway.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is the response to the initialize handshake.
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      ServerInfo     `json:"serverInfo"`
}

// UpstreamStatus is one upstream's entry in the health report.
type UpstreamStatus struct {
	Name   string `json:"name"`
	Prefix string `json:"prefix"`
	State  string `json:"state"`
	Ready  bool   `json:"ready"`
}

// HealthResponse is the body of GET /v1/health. Status is "ok" or
// "degraded".
type HealthResponse struct {
	Status    string           `json:"status"`
	Upstreams []UpstreamStatus `json:"upstreams"`
}

// Manifest is the body of GET /v1/manifest.
type Manifest struct {
	ServerInfo
	Description     string   `json:"description"`
	ProtocolVersion string   `json:"protocolVersion"`
	Tools           []string `json:"tools"`
	Resources       []string `json:"resources"`
}
