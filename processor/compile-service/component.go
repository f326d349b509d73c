// Package compileservice serves compile requests over NATS. Replicas share
// a queue group, so each request is compiled once.
package compileservice

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360studio/semlogic/compiler"
	"github.com/c360studio/semlogic/logic"
)

// Conn is the subset of *nats.Conn the service uses.
type Conn interface {
	QueueSubscribe(subj, queue string, cb nats.MsgHandler) (*nats.Subscription, error)
	Publish(subj string, data []byte) error
}

// Compiler is the compile operation the service exposes.
type Compiler interface {
	Compile(ctx context.Context, instruction string, opts ...compiler.CompileOption) (*logic.CompilerOutput, error)
}

// Component implements the compile service.
type Component struct {
	name     string
	config   Config
	conn     Conn
	compiler Compiler
	logger   *slog.Logger

	// Lifecycle
	running   bool
	startTime time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc
	sub       *nats.Subscription
	slots     chan struct{}

	// admitMu orders inflight.Add against Stop's Wait.
	admitMu   sync.Mutex
	accepting bool
	inflight  sync.WaitGroup

	// Metrics
	requestsReceived  atomic.Int64
	compilesSucceeded atomic.Int64
	compilesFailed    atomic.Int64
	lastActivityMu    sync.RWMutex
	lastActivity      time.Time
}

// Option configures a Component.
type Option func(*Component)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Component) {
		c.logger = logger
	}
}

// NewComponent creates a compile service. Zero config fields take their
// defaults.
func NewComponent(config Config, conn Conn, comp Compiler, opts ...Option) (*Component, error) {
	defaults := DefaultConfig()
	if config.Subject == "" {
		config.Subject = defaults.Subject
	}
	if config.Workers == 0 {
		config.Workers = defaults.Workers
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = defaults.RequestTimeout
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if comp == nil {
		return nil, fmt.Errorf("compiler required")
	}

	c := &Component{
		name:     "compile-service",
		config:   config,
		conn:     conn,
		compiler: comp,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start subscribes to the request subject.
func (c *Component) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return fmt.Errorf("component already running")
	}
	if c.conn == nil {
		return fmt.Errorf("NATS connection required")
	}

	subCtx, cancel := context.WithCancel(ctx)
	c.slots = make(chan struct{}, c.config.Workers)

	sub, err := c.conn.QueueSubscribe(c.config.Subject, c.config.Queue, func(msg *nats.Msg) {
		c.dispatch(subCtx, msg)
	})
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe to %s: %w", c.config.Subject, err)
	}

	c.sub = sub
	c.cancel = cancel
	c.running = true
	c.setAccepting(true)
	c.startTime = time.Now()

	c.logger.Info("compile-service started",
		"subject", c.config.Subject,
		"queue", c.config.Queue,
		"workers", c.config.Workers)
	return nil
}

// dispatch hands a message to a worker, blocking while all workers are busy
// so NATS applies backpressure through its pending limits. Messages that
// arrive once Stop has begun are rejected.
func (c *Component) dispatch(ctx context.Context, msg *nats.Msg) {
	c.requestsReceived.Add(1)
	c.updateLastActivity()

	if !c.admit() {
		c.compilesFailed.Add(1)
		c.reply(msg, &Response{Error: "compile-service stopping", Kind: compiler.OutcomeCanceled})
		return
	}

	select {
	case c.slots <- struct{}{}:
		if ctx.Err() != nil {
			<-c.slots
			c.inflight.Done()
			c.rejectCanceled(ctx, msg)
			return
		}
	case <-ctx.Done():
		c.inflight.Done()
		c.rejectCanceled(ctx, msg)
		return
	}

	go func() {
		defer c.inflight.Done()
		defer func() { <-c.slots }()
		c.reply(msg, c.handle(ctx, msg.Data))
	}()
}

// admit registers a dispatch with inflight unless the component is stopping.
func (c *Component) admit() bool {
	c.admitMu.Lock()
	defer c.admitMu.Unlock()
	if !c.accepting {
		return false
	}
	c.inflight.Add(1)
	return true
}

func (c *Component) setAccepting(on bool) {
	c.admitMu.Lock()
	c.accepting = on
	c.admitMu.Unlock()
}

func (c *Component) rejectCanceled(ctx context.Context, msg *nats.Msg) {
	c.compilesFailed.Add(1)
	c.reply(msg, &Response{Error: ctx.Err().Error(), Kind: compiler.OutcomeCanceled})
}

// handle compiles one request payload.
func (c *Component) handle(ctx context.Context, data []byte) *Response {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		c.compilesFailed.Add(1)
		return &Response{Error: fmt.Sprintf("decode request: %v", err), Kind: KindBadRequest}
	}
	if err := req.Validate(); err != nil {
		c.compilesFailed.Add(1)
		return &Response{Error: err.Error(), Kind: KindBadRequest}
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	out, err := c.compiler.Compile(ctx, req.Instruction,
		compiler.ToCode(req.ToCode),
		compiler.Interactive(req.Interactive))
	if err != nil {
		c.compilesFailed.Add(1)
		c.logger.Warn("Compile request failed",
			"kind", compiler.Outcome(nil, err),
			"error", err)
		return &Response{
			Error: err.Error(),
			Kind:  compiler.Outcome(nil, err),
			Raw:   compiler.RawOutput(err),
		}
	}

	c.compilesSucceeded.Add(1)
	return &Response{Output: out}
}

func (c *Component) reply(msg *nats.Msg, resp *Response) {
	if msg.Reply == "" {
		c.logger.Debug("Compile request has no reply subject", "subject", msg.Subject)
		return
	}
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("Failed to encode compile reply", "error", err)
		return
	}
	if err := c.conn.Publish(msg.Reply, data); err != nil {
		c.logger.Warn("Failed to publish compile reply", "reply", msg.Reply, "error", err)
	}
}

// Stop unsubscribes and waits up to timeout for in-flight compiles to
// reply. Compiles still running after timeout are canceled.
func (c *Component) Stop(timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}

	if c.sub != nil {
		if err := c.sub.Unsubscribe(); err != nil {
			c.logger.Warn("Failed to unsubscribe", "error", err)
		}
	}
	c.setAccepting(false)

	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = fmt.Errorf("compile-service: in-flight compiles did not finish within %s", timeout)
	}
	if c.cancel != nil {
		c.cancel()
	}
	if err != nil {
		select {
		case <-done:
		case <-time.After(timeout):
		}
	}

	c.running = false
	c.logger.Info("compile-service stopped",
		"requests_received", c.requestsReceived.Load(),
		"compiles_succeeded", c.compilesSucceeded.Load(),
		"compiles_failed", c.compilesFailed.Load())
	return err
}

// HealthStatus describes the service state.
type HealthStatus struct {
	Healthy           bool          `json:"healthy"`
	Status            string        `json:"status"`
	Uptime            time.Duration `json:"uptime"`
	RequestsReceived  int64         `json:"requests_received"`
	CompilesSucceeded int64         `json:"compiles_succeeded"`
	CompilesFailed    int64         `json:"compiles_failed"`
	LastActivity      time.Time     `json:"last_activity"`
}

// Health returns the current health status.
func (c *Component) Health() HealthStatus {
	c.mu.RLock()
	running := c.running
	startTime := c.startTime
	c.mu.RUnlock()

	status := "stopped"
	var uptime time.Duration
	if running {
		status = "running"
		uptime = time.Since(startTime)
	}

	return HealthStatus{
		Healthy:           running,
		Status:            status,
		Uptime:            uptime,
		RequestsReceived:  c.requestsReceived.Load(),
		CompilesSucceeded: c.compilesSucceeded.Load(),
		CompilesFailed:    c.compilesFailed.Load(),
		LastActivity:      c.getLastActivity(),
	}
}

func (c *Component) updateLastActivity() {
	c.lastActivityMu.Lock()
	c.lastActivity = time.Now()
	c.lastActivityMu.Unlock()
}

func (c *Component) getLastActivity() time.Time {
	c.lastActivityMu.RLock()
	defer c.lastActivityMu.RUnlock()
	return c.lastActivity
}
