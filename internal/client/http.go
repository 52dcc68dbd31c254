package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/alfredjeanlab/mcpgate/internal/idgen"
	"github.com/alfredjeanlab/mcpgate/internal/model"
)

// HTTPClient implements GatewayClient over the gateway's HTTP API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an Authorization
// header is set on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// --- MCP methods ---

func (c *HTTPClient) Initialize(ctx context.Context) (*InitializeResult, error) {
	var res InitializeResult
	params := map[string]any{"clientInfo": map[string]string{"name": "mcpgate-cli"}}
	if err := c.rpc(ctx, "initialize", params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) ListTools(ctx context.Context) ([]model.Tool, error) {
	var res struct {
		Tools []model.Tool `json:"tools"`
	}
	if err := c.rpc(ctx, "tools/list", nil, &res); err != nil {
		return nil, err
	}
	return res.Tools, nil
}

// CallTool invokes a tool. Tool-level failures come back as a result with
// IsError set, not as an error.
func (c *HTTPClient) CallTool(ctx context.Context, name string, args map[string]any) (*model.ToolResult, error) {
	var res model.ToolResult
	if err := c.rpc(ctx, "tools/call", model.ToolCall{Name: name, Arguments: args}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) ListResources(ctx context.Context) ([]model.Resource, error) {
	var res struct {
		Resources []model.Resource `json:"resources"`
	}
	if err := c.rpc(ctx, "resources/list", nil, &res); err != nil {
		return nil, err
	}
	return res.Resources, nil
}

func (c *HTTPClient) ReadResource(ctx context.Context, uri string) (*model.ResourceContent, error) {
	var res struct {
		Contents []model.ResourceContent `json:"contents"`
	}
	if err := c.rpc(ctx, "resources/read", map[string]string{"uri": uri}, &res); err != nil {
		return nil, err
	}
	if len(res.Contents) == 0 {
		return nil, fmt.Errorf("resource %s: empty contents", uri)
	}
	return &res.Contents[0], nil
}

// --- Service endpoints ---

// Health returns the gateway's readiness report. A degraded gateway answers
// 503 with a report, which is returned without error.
func (c *HTTPClient) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable && resp.Status != "" {
		return &resp, nil
	}
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) Manifest(ctx context.Context) (*Manifest, error) {
	var m Manifest
	if err := c.doJSON(ctx, http.MethodGet, "/v1/manifest", nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// --- internal helpers ---

// APIError represents a non-JSON-RPC error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// rpc sends one JSON-RPC request to /v1/mcp. Protocol errors are returned
// as *model.RPCError.
func (c *HTTPClient) rpc(ctx context.Context, method string, params, result any) error {
	id, err := idgen.RequestID()
	if err != nil {
		return err
	}
	req, err := model.NewRequest(id, method, params)
	if err != nil {
		return err
	}
	var resp model.Message
	if err := c.doJSON(ctx, http.MethodPost, "/v1/mcp", req, &resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
	}
	return nil
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON
// response. On a status >= 400 the body is still decoded into result when it
// parses, and an *APIError is returned.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	// 202 Accepted or 204 No Content: success with no body.
	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		if result != nil {
			_ = json.Unmarshal(respBody, result)
		}
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
