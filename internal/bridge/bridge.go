// Package bridge turns a child process speaking newline-delimited JSON-RPC
// over stdin/stdout into a correlated request/response interface.
//
// A bridge spawns the process, probes it with a "ping" request and queues
// calls until the probe is answered. Once ready, queued calls are written in
// the order they were made, before any later call. Every request carries a
// process-unique id and its own timeout.
package bridge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/alfredjeanlab/mcpgate/internal/idgen"
	"github.com/alfredjeanlab/mcpgate/internal/metrics"
	"github.com/alfredjeanlab/mcpgate/internal/model"
	"github.com/alfredjeanlab/mcpgate/internal/upstream"
)

const (
	DefaultReadyTimeout   = 10 * time.Second
	DefaultRequestTimeout = 30 * time.Second
	DefaultShutdownGrace  = 5 * time.Second

	pingID     = "ping"
	maxLogLine = 512
)

type result struct {
	msg *model.Message
	err error
}

// call is one outstanding request. ch is buffered so the single resolution
// never blocks the resolver.
type call struct {
	id     string
	method string
	line   []byte
	ch     chan result
	timer  *time.Timer
}

// Bridge owns one upstream child process.
type Bridge struct {
	desc           upstream.Descriptor
	logger         *slog.Logger
	metrics        metrics.Metrics
	readyTimeout   time.Duration
	requestTimeout time.Duration
	shutdownGrace  time.Duration

	// writeMu serializes writes to stdin. It is always acquired before mu.
	writeMu sync.Mutex

	mu      sync.Mutex
	state   State
	pending map[string]*call
	queue   []*call
	subs    map[int]chan StateChange
	nextSub int
	cmd     *exec.Cmd
	stdin   io.WriteCloser

	exited chan struct{}
}

// Option configures a Bridge.
type Option func(*Bridge)

func WithLogger(l *slog.Logger) Option { return func(b *Bridge) { b.logger = l } }

func WithMetrics(m metrics.Metrics) Option { return func(b *Bridge) { b.metrics = m } }

func WithReadyTimeout(d time.Duration) Option { return func(b *Bridge) { b.readyTimeout = d } }

func WithRequestTimeout(d time.Duration) Option { return func(b *Bridge) { b.requestTimeout = d } }

func WithShutdownGrace(d time.Duration) Option { return func(b *Bridge) { b.shutdownGrace = d } }

// New returns a disconnected bridge for desc. Call Start to spawn it.
func New(desc upstream.Descriptor, opts ...Option) *Bridge {
	b := &Bridge{
		desc:           desc.Clone(),
		logger:         slog.Default(),
		metrics:        metrics.Noop{},
		readyTimeout:   DefaultReadyTimeout,
		requestTimeout: DefaultRequestTimeout,
		shutdownGrace:  DefaultShutdownGrace,
		pending:        make(map[string]*call),
		subs:           make(map[int]chan StateChange),
		exited:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the upstream name.
func (b *Bridge) Name() string { return b.desc.Name }

// Descriptor returns a copy of the upstream descriptor.
func (b *Bridge) Descriptor() upstream.Descriptor { return b.desc.Clone() }

// State returns the current lifecycle state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Subscribe returns a channel of state changes. Slow subscribers miss
// changes rather than block the bridge. Call the returned function to
// unsubscribe and close the channel.
func (b *Bridge) Subscribe() (<-chan StateChange, func()) {
	ch := make(chan StateChange, 16)
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Start spawns the process and blocks until it answers the readiness probe,
// the ready timeout elapses, or ctx is done. On failure the bridge is closed.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.state != Disconnected {
		st := b.state
		b.mu.Unlock()
		return fmt.Errorf("upstream %s: start called in state %s", b.desc.Name, st)
	}
	b.setStateLocked(Starting, nil)

	cmd := exec.Command(b.desc.Command, b.desc.Args...) //nolint:gosec // commands come from operator configuration
	cmd.Env = b.desc.Environ(os.Environ())
	stdin, stdout, stderr, err := pipes(cmd)
	if err == nil {
		err = cmd.Start()
	}
	if err != nil {
		spawnErr := fmt.Errorf("%w: %s: %v", ErrSpawn, b.desc.Name, err)
		outstanding := b.teardownLocked(spawnErr)
		close(b.exited)
		b.mu.Unlock()
		failAll(outstanding, ErrClosed)
		return spawnErr
	}
	b.cmd, b.stdin = cmd, stdin
	ping := &call{id: pingID, method: "ping", ch: make(chan result, 1)}
	b.pending[pingID] = ping
	b.setStateLocked(AwaitingReady, nil)
	b.mu.Unlock()

	b.logger.Info("upstream process started", "upstream", b.desc.Name, "pid", cmd.Process.Pid)

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		b.readLoop(stdout)
	}()
	go func() {
		defer readers.Done()
		b.logStderr(stderr)
	}()
	go func() {
		readers.Wait()
		err := cmd.Wait()
		b.logger.Warn("upstream process exited", "upstream", b.desc.Name, "err", err)
		b.teardown(fmt.Errorf("process exited: %v", err))
		close(b.exited)
	}()

	probe, _ := model.NewRequest(pingID, "ping", nil)
	line, _ := json.Marshal(probe)
	b.writeMu.Lock()
	err = b.writeLine(line)
	b.writeMu.Unlock()
	if err != nil {
		b.abort(err)
		return fmt.Errorf("%w: %s: writing readiness probe: %v", ErrSpawn, b.desc.Name, err)
	}

	timer := time.NewTimer(b.readyTimeout)
	defer timer.Stop()
	select {
	case res := <-ping.ch:
		if res.err != nil {
			if b.State() == ShuttingDown {
				return fmt.Errorf("upstream %s: %w", b.desc.Name, ErrClosed)
			}
			return fmt.Errorf("%w: %s exited before ready", ErrSpawn, b.desc.Name)
		}
	case <-timer.C:
		err := fmt.Errorf("%w: %s did not answer within %s", ErrReadyTimeout, b.desc.Name, b.readyTimeout)
		b.abort(err)
		return err
	case <-ctx.Done():
		b.abort(ctx.Err())
		return ctx.Err()
	}

	if !b.becomeReady() {
		return fmt.Errorf("upstream %s: %w", b.desc.Name, ErrClosed)
	}
	b.logger.Info("upstream ready", "upstream", b.desc.Name)
	return nil
}

func pipes(cmd *exec.Cmd) (io.WriteCloser, io.ReadCloser, io.ReadCloser, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, nil, err
	}
	return stdin, stdout, stderr, nil
}

// becomeReady moves the bridge to Ready and writes every queued call in
// enqueue order. writeMu is held across the flush so no later call can
// overtake a queued one.
func (b *Bridge) becomeReady() bool {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	b.mu.Lock()
	if b.state != AwaitingReady {
		b.mu.Unlock()
		return false
	}
	queued := b.queue
	b.queue = nil
	for _, c := range queued {
		b.registerLocked(c)
	}
	b.setStateLocked(Ready, nil)
	b.mu.Unlock()

	if len(queued) > 0 {
		b.logger.Debug("flushing queued requests", "upstream", b.desc.Name, "count", len(queued))
	}
	for _, c := range queued {
		b.writeCall(c)
	}
	return true
}

// Send writes a request and waits for its response. Before the bridge is
// ready the request is queued. The returned message may carry an upstream
// error payload; transport failures are returned as errors.
func (b *Bridge) Send(ctx context.Context, method string, params any) (*model.Message, error) {
	id, err := idgen.RequestID()
	if err != nil {
		return nil, err
	}
	req, err := model.NewRequest(id, method, params)
	if err != nil {
		return nil, err
	}
	line, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	c := &call{id: id, method: method, line: line, ch: make(chan result, 1)}
	start := time.Now()

	b.writeMu.Lock()
	b.mu.Lock()
	switch b.state {
	case ShuttingDown, Closed:
		b.mu.Unlock()
		b.writeMu.Unlock()
		b.observe(method, start, ErrClosed)
		return nil, ErrClosed
	case Ready:
		b.registerLocked(c)
		b.mu.Unlock()
		b.writeCall(c)
	default:
		b.queue = append(b.queue, c)
		b.mu.Unlock()
	}
	b.writeMu.Unlock()

	select {
	case res := <-c.ch:
		b.observe(method, start, res.err)
		return res.msg, res.err
	case <-ctx.Done():
		b.forget(c)
		b.observe(method, start, ctx.Err())
		return nil, ctx.Err()
	}
}

// ListTools asks the upstream for its tool catalog, unprefixed.
func (b *Bridge) ListTools(ctx context.Context) ([]model.Tool, error) {
	msg, err := b.Send(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	if msg.Error != nil {
		return nil, msg.Error
	}
	var out struct {
		Tools []model.Tool `json:"tools"`
	}
	if len(msg.Result) > 0 {
		if err := json.Unmarshal(msg.Result, &out); err != nil {
			return nil, fmt.Errorf("decode tools/list result: %w", err)
		}
	}
	return out.Tools, nil
}

// CallTool invokes an upstream tool by its unprefixed name. An error payload
// from the upstream is returned as *model.RPCError.
func (b *Bridge) CallTool(ctx context.Context, name string, args map[string]any) (*model.ToolResult, error) {
	if args == nil {
		args = map[string]any{}
	}
	msg, err := b.Send(ctx, "tools/call", map[string]any{"name": name, "arguments": args})
	if err != nil {
		return nil, err
	}
	if msg.Error != nil {
		return nil, msg.Error
	}
	var res model.ToolResult
	if len(msg.Result) > 0 {
		if err := json.Unmarshal(msg.Result, &res); err != nil {
			return nil, fmt.Errorf("decode tools/call result: %w", err)
		}
	}
	return &res, nil
}

// Shutdown sends SIGTERM, waits up to the shutdown grace for the process to
// exit and then kills it. Every outstanding call fails with ErrClosed.
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	switch b.state {
	case Closed:
		b.mu.Unlock()
		return nil
	case Disconnected:
		b.mu.Unlock()
		b.teardown(nil)
		return nil
	case ShuttingDown:
		b.mu.Unlock()
		return b.waitExited(ctx)
	}
	cmd, stdin := b.cmd, b.stdin
	if cmd == nil {
		outstanding := b.teardownLocked(nil)
		b.mu.Unlock()
		failAll(outstanding, ErrClosed)
		return nil
	}
	outstanding := b.drainLocked()
	b.setStateLocked(ShuttingDown, nil)
	b.mu.Unlock()

	b.logger.Info("shutting down upstream", "upstream", b.desc.Name, "outstanding", len(outstanding))
	failAll(outstanding, ErrClosed)

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		b.logger.Warn("signal upstream", "upstream", b.desc.Name, "err", err)
	}
	_ = stdin.Close()

	grace := time.NewTimer(b.shutdownGrace)
	defer grace.Stop()
	select {
	case <-b.exited:
		return nil
	case <-grace.C:
	case <-ctx.Done():
	}

	b.logger.Warn("upstream ignored SIGTERM, killing", "upstream", b.desc.Name)
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		b.logger.Warn("kill upstream", "upstream", b.desc.Name, "err", err)
	}
	return b.waitExited(ctx)
}

func (b *Bridge) waitExited(ctx context.Context) error {
	select {
	case <-b.exited:
		return nil
	case <-ctx.Done():
		b.teardown(ctx.Err())
		return ctx.Err()
	}
}

// abort kills the process and closes the bridge after a failed start.
func (b *Bridge) abort(reason error) {
	b.mu.Lock()
	cmd := b.cmd
	b.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	b.teardown(reason)
}

// teardown closes the bridge and fails every outstanding call. It is
// idempotent.
func (b *Bridge) teardown(reason error) {
	b.mu.Lock()
	outstanding := b.teardownLocked(reason)
	b.mu.Unlock()
	failAll(outstanding, ErrClosed)
}

// teardownLocked moves the bridge to Closed and returns the calls the caller
// must fail once b.mu is released.
func (b *Bridge) teardownLocked(reason error) []*call {
	if b.state == Closed {
		return nil
	}
	outstanding := b.drainLocked()
	b.setStateLocked(Closed, reason)
	return outstanding
}

// drainLocked empties pending and queue, returning their calls.
func (b *Bridge) drainLocked() []*call {
	out := make([]*call, 0, len(b.pending)+len(b.queue))
	for _, c := range b.pending {
		out = append(out, c)
	}
	out = append(out, b.queue...)
	b.pending = make(map[string]*call)
	b.queue = nil
	return out
}

func failAll(calls []*call, err error) {
	for _, c := range calls {
		if c.timer != nil {
			c.timer.Stop()
		}
		c.ch <- result{err: err}
	}
}

func (b *Bridge) registerLocked(c *call) {
	b.pending[c.id] = c
	c.timer = time.AfterFunc(b.requestTimeout, func() {
		if b.resolve(c.id, result{err: ErrRequestTimeout}) {
			b.logger.Warn("upstream request timed out", "upstream", b.desc.Name, "method", c.method, "id", c.id)
		}
	})
}

// resolve removes id from pending and delivers res. It reports whether id
// was pending.
func (b *Bridge) resolve(id string, res result) bool {
	b.mu.Lock()
	c, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	b.mu.Unlock()
	if !ok {
		return false
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.ch <- res
	return true
}

// forget drops a call whose caller gave up.
func (b *Bridge) forget(c *call) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.pending[c.id]; ok && p == c {
		delete(b.pending, c.id)
		if c.timer != nil {
			c.timer.Stop()
		}
		return
	}
	if i := slices.Index(b.queue, c); i >= 0 {
		b.queue = slices.Delete(b.queue, i, i+1)
	}
}

// writeCall writes a registered call. Callers hold writeMu.
func (b *Bridge) writeCall(c *call) {
	if err := b.writeLine(c.line); err != nil {
		b.logger.Warn("write to upstream failed", "upstream", b.desc.Name, "err", err)
		b.resolve(c.id, result{err: fmt.Errorf("%w: %v", ErrClosed, err)})
	}
}

// writeLine writes one newline-terminated frame. Callers hold writeMu.
func (b *Bridge) writeLine(line []byte) error {
	b.mu.Lock()
	w := b.stdin
	b.mu.Unlock()
	if w == nil {
		return ErrClosed
	}
	buf := make([]byte, 0, len(line)+1)
	buf = append(append(buf, line...), '\n')
	_, err := w.Write(buf)
	return err
}

func (b *Bridge) readLoop(r io.Reader) {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			b.handleLine(line)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				b.logger.Warn("reading upstream stdout", "upstream", b.desc.Name, "err", err)
			}
			return
		}
	}
}

func (b *Bridge) handleLine(line []byte) {
	var msg model.Message
	if err := json.Unmarshal(line, &msg); err != nil {
		b.logger.Warn("discarding malformed line from upstream",
			"upstream", b.desc.Name, "err", err, "line", truncate(line))
		return
	}
	id, ok := model.IDKey(msg.ID)
	if !ok || msg.Method != "" {
		b.logger.Debug("ignoring upstream notification", "upstream", b.desc.Name, "method", msg.Method)
		return
	}
	if !b.resolve(id, result{msg: &msg}) {
		b.logger.Debug("discarding response for unknown id", "upstream", b.desc.Name, "id", id)
	}
}

func (b *Bridge) logStderr(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := bytes.TrimSpace(sc.Bytes()); len(line) > 0 {
			b.logger.Warn("upstream stderr", "upstream", b.desc.Name, "line", string(line))
		}
	}
}

func (b *Bridge) setStateLocked(to State, err error) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.metrics.SetBridgeState(b.desc.Name, to == Ready)
	change := StateChange{Upstream: b.desc.Name, From: from, To: to, Err: err, At: time.Now()}
	for _, ch := range b.subs {
		select {
		case ch <- change:
		default:
		}
	}
}

func (b *Bridge) observe(method string, start time.Time, err error) {
	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrRequestTimeout):
		status = "timeout"
	case errors.Is(err, ErrClosed):
		status = "closed"
	default:
		status = "error"
	}
	b.metrics.ObserveUpstreamRequest(b.desc.Name, method, status, time.Since(start).Seconds())
}

func truncate(line []byte) string {
	line = bytes.TrimSpace(line)
	if len(line) > maxLogLine {
		return string(line[:maxLogLine]) + "..."
	}
	return string(line)
}
