package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/alfredjeanlab/mcpgate/internal/gateway"
	"github.com/alfredjeanlab/mcpgate/internal/metrics"
	"github.com/alfredjeanlab/mcpgate/internal/model"
)

const maxRequestBytes = 4 << 20

// NewHTTPHandler returns an http.Handler with all routes registered.
// Requests other than health, manifest and metrics must carry a valid
// Authorization: Bearer <token> header when a verifier is configured.
func (s *Server) NewHTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/mcp", s.handleMCP)
	mux.HandleFunc("GET /v1/manifest", s.handleManifest)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	return AuthMiddleware(s.verifier, mux)
}

type healthResponse struct {
	Status    string                   `json:"status"`
	Upstreams []gateway.UpstreamStatus `json:"upstreams"`
}

// handleHealth handles GET /v1/health. It answers 503 until every upstream
// is ready.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok", Upstreams: s.gw.Statuses()}
	code := http.StatusOK
	if !s.gw.Ready() {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

type manifest struct {
	Info
	Description     string   `json:"description"`
	ProtocolVersion string   `json:"protocolVersion"`
	Tools           []string `json:"tools"`
	Resources       []string `json:"resources"`
	Endpoints       struct {
		JSONRPC string `json:"jsonrpc"`
		Health  string `json:"health"`
		Metrics string `json:"metrics"`
	} `json:"endpoints"`
}

// handleManifest handles GET /v1/manifest.
func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	m := manifest{
		Info:            s.info,
		Description:     "Tool gateway fronting stdio MCP upstreams",
		ProtocolVersion: ProtocolVersion,
		Tools:           []string{},
		Resources:       []string{},
	}
	for _, t := range s.gw.ListTools(r.Context()) {
		m.Tools = append(m.Tools, t.Name)
	}
	for _, res := range s.gw.ListResources() {
		m.Resources = append(m.Resources, res.URI)
	}
	m.Endpoints.JSONRPC = "/v1/mcp"
	m.Endpoints.Health = "/v1/health"
	m.Endpoints.Metrics = "/metrics"
	writeJSON(w, http.StatusOK, m)
}

// handleMCP handles POST /v1/mcp: one JSON-RPC request per HTTP request.
// Protocol-level failures are reported as JSON-RPC errors with status 200;
// notifications are acknowledged with 202 and no body.
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	var req model.Message
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeRPC(w, model.NewErrorResponse(nil, model.CodeParseError, "Parse error"))
		return
	}
	if req.JSONRPC != model.JSONRPCVersion || req.Method == "" {
		writeRPC(w, model.NewErrorResponse(req.ID, model.CodeInvalidRequest, "Invalid Request"))
		return
	}
	if _, ok := model.IDKey(req.ID); !ok {
		s.logger.Debug("notification received", "method", req.Method)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	result, rpcErr := s.dispatch(r, &req)
	if rpcErr != nil {
		writeRPC(w, &model.Message{JSONRPC: model.JSONRPCVersion, ID: req.ID, Error: rpcErr})
		return
	}
	resp, err := model.NewResponse(req.ID, result)
	if err != nil {
		s.logger.Error("encoding rpc result", "method", req.Method, "err", err)
		writeRPC(w, model.NewErrorResponse(req.ID, model.CodeInternalError, "Internal error"))
		return
	}
	writeRPC(w, resp)
}

func (s *Server) dispatch(r *http.Request, req *model.Message) (any, *model.RPCError) {
	ctx := r.Context()
	switch req.Method {
	case "initialize":
		return map[string]any{
			"protocolVersion": ProtocolVersion,
			"capabilities": map[string]any{
				"tools":     map[string]any{},
				"resources": map[string]any{},
			},
			"serverInfo": s.info,
		}, nil

	case "ping":
		return map[string]any{}, nil

	case "tools/list":
		return map[string]any{"tools": s.gw.ListTools(ctx)}, nil

	case "tools/call":
		var call model.ToolCall
		if err := decodeParams(req.Params, &call); err != nil || call.Name == "" {
			return nil, &model.RPCError{Code: model.CodeInvalidParams, Message: "Invalid params: tool name is required"}
		}
		caller := callerID(ctx)
		s.logger.Info("tool call", "tool", call.Name, "caller", caller)
		return s.gw.CallTool(ctx, call, caller), nil

	case "resources/list":
		return map[string]any{"resources": s.gw.ListResources()}, nil

	case "resources/read":
		var p struct {
			URI string `json:"uri"`
		}
		if err := decodeParams(req.Params, &p); err != nil || p.URI == "" {
			return nil, &model.RPCError{Code: model.CodeInvalidParams, Message: "Invalid params: uri is required"}
		}
		content, err := s.gw.ReadResource(p.URI)
		if err != nil {
			s.logger.Warn("reading resource", "uri", p.URI, "err", err)
			return nil, &model.RPCError{Code: model.CodeInvalidParams, Message: err.Error()}
		}
		return map[string]any{"contents": []*model.ResourceContent{content}}, nil

	default:
		return nil, &model.RPCError{Code: model.CodeMethodNotFound, Message: "Method not found: " + req.Method}
	}
}

func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errors.New("missing params")
	}
	return json.Unmarshal(raw, v)
}

func writeRPC(w http.ResponseWriter, msg *model.Message) {
	if msg.ID == nil {
		msg.ID = json.RawMessage("null")
	}
	writeJSON(w, http.StatusOK, msg)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
