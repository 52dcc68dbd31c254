// Package gateway aggregates the upstream bridges and the gateway's own
// profile tools behind one tool catalog and routes tool calls by name prefix.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alfredjeanlab/mcpgate/internal/bridge"
	"github.com/alfredjeanlab/mcpgate/internal/events"
	"github.com/alfredjeanlab/mcpgate/internal/metrics"
	"github.com/alfredjeanlab/mcpgate/internal/model"
	"github.com/alfredjeanlab/mcpgate/internal/profile"
	"github.com/alfredjeanlab/mcpgate/internal/ratelimit"
	"github.com/alfredjeanlab/mcpgate/internal/upstream"
)

// Upstream is one bridged tool provider. *bridge.Bridge implements it.
type Upstream interface {
	Name() string
	Descriptor() upstream.Descriptor
	State() bridge.State
	Subscribe() (<-chan bridge.StateChange, func())
	Start(ctx context.Context) error
	ListTools(ctx context.Context) ([]model.Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*model.ToolResult, error)
	Shutdown(ctx context.Context) error
}

// Limiter decides whether a caller may make another call.
type Limiter interface {
	Allow(ctx context.Context, callerID string) ratelimit.Decision
}

// TokenSource resolves a caller's delegated token for one upstream. It
// returns "" when the caller has none or the upstream accepts none.
type TokenSource interface {
	DelegatedToken(ctx context.Context, userID, upstreamName string) string
}

// Profiles is the company profile store behind the local tools.
type Profiles interface {
	Get(ctx context.Context, companyID string) (*profile.Lookup, error)
	Update(ctx context.Context, companyID string, data map[string]any) (*profile.Saved, error)
	Delete(ctx context.Context, companyID string) (bool, error)
	List(ctx context.Context, limit, offset int) (*profile.Page, error)
}

// Resources serves static documents.
type Resources interface {
	List() []model.Resource
	Read(uri string) (*model.ResourceContent, error)
}

// Options configures a Gateway. Upstreams and Profiles are required.
type Options struct {
	Upstreams []Upstream
	Limiter   Limiter
	Tokens    TokenSource
	Profiles  Profiles
	Resources Resources
	Publisher events.Publisher
	Metrics   metrics.Metrics
	Logger    *slog.Logger

	// OnStateChange, when set, is called for every bridge state change after
	// the event is published.
	OnStateChange func(bridge.StateChange)
}

// UpstreamStatus is a point-in-time view of one upstream.
type UpstreamStatus struct {
	Name   string `json:"name"`
	Prefix string `json:"prefix"`
	State  string `json:"state"`
	Ready  bool   `json:"ready"`
}

type Gateway struct {
	registry  *upstream.Registry
	upstreams map[string]Upstream
	order     []Upstream
	limiter   Limiter
	tokens    TokenSource
	profiles  Profiles
	resources Resources
	events    events.Publisher
	metrics   metrics.Metrics
	logger    *slog.Logger
	onState   func(bridge.StateChange)
	local     *localTools

	mu      sync.Mutex
	unsubs  []func()
	watches sync.WaitGroup
}

// New validates the upstream set and builds a Gateway. It does not start
// any upstream.
func New(opts Options) (*Gateway, error) {
	if opts.Profiles == nil {
		return nil, errors.New("gateway: profiles are required")
	}
	descs := make([]upstream.Descriptor, 0, len(opts.Upstreams))
	byName := make(map[string]Upstream, len(opts.Upstreams))
	for _, u := range opts.Upstreams {
		descs = append(descs, u.Descriptor())
		byName[u.Name()] = u
	}
	reg, err := upstream.NewRegistry(descs)
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}
	local, err := newLocalTools(opts.Profiles)
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}

	g := &Gateway{
		registry:  reg,
		upstreams: byName,
		order:     opts.Upstreams,
		limiter:   opts.Limiter,
		tokens:    opts.Tokens,
		profiles:  opts.Profiles,
		resources: opts.Resources,
		events:    opts.Publisher,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		onState:   opts.OnStateChange,
		local:     local,
	}
	if g.events == nil {
		g.events = &events.NoopPublisher{}
	}
	if g.metrics == nil {
		g.metrics = metrics.Noop{}
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g, nil
}

// Initialize starts every upstream concurrently and returns once all are
// ready. If any fails, the others are shut down and the first error is
// returned.
func (g *Gateway) Initialize(ctx context.Context) error {
	g.watchStates()

	eg, egCtx := errgroup.WithContext(ctx)
	for _, u := range g.order {
		eg.Go(func() error {
			if err := u.Start(egCtx); err != nil {
				return fmt.Errorf("start upstream %s: %w", u.Name(), err)
			}
			g.logger.Info("upstream ready", "upstream", u.Name())
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		g.logger.Error("gateway initialization failed", "err", err)
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*bridge.DefaultShutdownGrace)
		defer cancel()
		g.shutdownUpstreams(shutdownCtx)
		return err
	}
	g.logger.Info("gateway initialized", "upstreams", len(g.order))
	return nil
}

// watchStates forwards bridge state changes as events.
func (g *Gateway) watchStates() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.unsubs != nil {
		return
	}
	for _, u := range g.order {
		ch, cancel := u.Subscribe()
		g.unsubs = append(g.unsubs, cancel)
		g.watches.Add(1)
		go func() {
			defer g.watches.Done()
			for sc := range ch {
				g.publishState(sc)
			}
		}()
	}
}

func (g *Gateway) publishState(sc bridge.StateChange) {
	ev := events.BridgeStateChanged{
		Upstream: sc.Upstream,
		From:     sc.From.String(),
		To:       sc.To.String(),
		At:       sc.At,
	}
	if sc.Err != nil {
		ev.Error = sc.Err.Error()
	}
	if err := g.events.Publish(context.Background(), events.TopicBridgeState, ev); err != nil {
		g.logger.Warn("publishing bridge state", "upstream", sc.Upstream, "err", err)
	}
	if g.onState != nil {
		g.onState(sc)
	}
}

// ListTools returns the aggregated catalog: each upstream's tools with its
// prefix applied, in registry order, followed by the local tools. An
// upstream that fails to list is logged and omitted.
func (g *Gateway) ListTools(ctx context.Context) []model.Tool {
	perUpstream := make([][]model.Tool, len(g.order))
	var wg sync.WaitGroup
	for i, u := range g.order {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tools, err := u.ListTools(ctx)
			if err != nil {
				g.logger.Warn("listing upstream tools", "upstream", u.Name(), "err", err)
				return
			}
			prefix := u.Descriptor().Prefix
			out := make([]model.Tool, len(tools))
			for j, t := range tools {
				t.Name = prefix + t.Name
				out[j] = t
			}
			perUpstream[i] = out
		}()
	}
	wg.Wait()

	var all []model.Tool
	for _, tools := range perUpstream {
		all = append(all, tools...)
	}
	return append(all, g.local.catalog()...)
}

// CallTool routes call for callerID. It never fails: every error, including
// a panic in a handler, is reported as an error result.
func (g *Gateway) CallTool(ctx context.Context, call model.ToolCall, callerID string) (res *model.ToolResult) {
	start := time.Now()
	var upstreamName string
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("panic in tool call", "tool", call.Name, "panic", r)
			res = model.ErrorResult(fmt.Sprintf("Error calling tool: %v", r))
		}
		g.record(ctx, call.Name, upstreamName, callerID, res, time.Since(start))
	}()

	if g.limiter != nil {
		if d := g.limiter.Allow(ctx, callerID); !d.Allowed {
			g.metrics.IncRateLimited()
			g.logger.Info("rate limited", "caller", callerID, "tool", call.Name, "count", d.Count)
			return model.ErrorResult(fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", d.RetryAfterSeconds()))
		}
	}

	if desc, name, ok := g.registry.Match(call.Name); ok {
		upstreamName = desc.Name
		return g.callUpstream(ctx, desc, name, call.Arguments, callerID)
	}
	return g.local.call(ctx, call)
}

func (g *Gateway) callUpstream(ctx context.Context, desc upstream.Descriptor, name string, args map[string]any, callerID string) *model.ToolResult {
	u, ok := g.upstreams[desc.Name]
	if !ok {
		return model.ErrorResult(fmt.Sprintf("Unknown upstream: %s", desc.Name))
	}

	args = maps.Clone(args)
	if args == nil {
		args = make(map[string]any)
	}
	if desc.DelegatedAuth {
		key := desc.TokenArgument()
		if s, _ := args[key].(string); s == "" {
			var tok string
			if g.tokens != nil {
				tok = g.tokens.DelegatedToken(ctx, callerID, desc.Name)
			}
			if tok == "" {
				return model.ErrorResult(fmt.Sprintf("%s authentication required. Please authenticate first.", desc.DisplayName()))
			}
			args[key] = tok
		}
	}

	g.logger.Debug("calling upstream tool", "upstream", desc.Name, "tool", name, "caller", callerID)
	res, err := u.CallTool(ctx, name, args)
	if err != nil {
		var rpcErr *model.RPCError
		if errors.As(err, &rpcErr) {
			return model.ErrorResult(fmt.Sprintf("%s error: %s", desc.DisplayName(), rpcErr.Message))
		}
		g.logger.Warn("upstream tool call failed", "upstream", desc.Name, "tool", name, "err", err)
		return model.ErrorResult(fmt.Sprintf("Error calling %s tool: %v", desc.DisplayName(), err))
	}
	if res == nil {
		return model.ErrorResult(fmt.Sprintf("No result from %s", desc.DisplayName()))
	}
	return res
}

// Names that route nowhere share one metric series.
const unknownRoute = "unknown"

// route returns a bounded label for tool: the owning upstream's name, the
// local tool's name, or unknownRoute.
func (g *Gateway) route(tool string) string {
	if desc, _, ok := g.registry.Match(tool); ok {
		return desc.Name
	}
	if _, ok := g.local.byName[tool]; ok {
		return tool
	}
	return unknownRoute
}

func (g *Gateway) record(ctx context.Context, tool, upstreamName, callerID string, res *model.ToolResult, elapsed time.Duration) {
	status := "ok"
	if res == nil || res.IsError {
		status = "error"
	}
	g.metrics.IncToolCall(g.route(tool), status)
	ev := events.ToolCalled{
		Tool:       tool,
		Upstream:   upstreamName,
		Caller:     callerID,
		IsError:    status == "error",
		DurationMS: elapsed.Milliseconds(),
	}
	if err := g.events.Publish(context.WithoutCancel(ctx), events.TopicToolCalled, ev); err != nil {
		g.logger.Warn("publishing tool call", "tool", tool, "err", err)
	}
}

// ListResources returns the static resource catalog.
func (g *Gateway) ListResources() []model.Resource {
	if g.resources == nil {
		return []model.Resource{}
	}
	return g.resources.List()
}

// ReadResource returns the content of one resource.
func (g *Gateway) ReadResource(uri string) (*model.ResourceContent, error) {
	if g.resources == nil {
		return nil, fmt.Errorf("resource not found: %s", uri)
	}
	return g.resources.Read(uri)
}

// Statuses reports every upstream's state in registry order.
func (g *Gateway) Statuses() []UpstreamStatus {
	out := make([]UpstreamStatus, 0, len(g.order))
	for _, u := range g.order {
		st := u.State()
		out = append(out, UpstreamStatus{
			Name:   u.Name(),
			Prefix: u.Descriptor().Prefix,
			State:  st.String(),
			Ready:  st == bridge.Ready,
		})
	}
	return out
}

// Ready reports whether every upstream is ready.
func (g *Gateway) Ready() bool {
	for _, u := range g.order {
		if u.State() != bridge.Ready {
			return false
		}
	}
	return true
}

// Shutdown stops every upstream concurrently and stops forwarding state
// events.
func (g *Gateway) Shutdown(ctx context.Context) error {
	err := g.shutdownUpstreams(ctx)

	g.mu.Lock()
	unsubs := g.unsubs
	g.unsubs = nil
	g.mu.Unlock()
	for _, cancel := range unsubs {
		cancel()
	}
	g.watches.Wait()
	return err
}

func (g *Gateway) shutdownUpstreams(ctx context.Context) error {
	errs := make([]error, len(g.order))
	var wg sync.WaitGroup
	for i, u := range g.order {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := u.Shutdown(ctx); err != nil {
				g.logger.Warn("upstream shutdown", "upstream", u.Name(), "err", err)
				errs[i] = fmt.Errorf("shutdown %s: %w", u.Name(), err)
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}
