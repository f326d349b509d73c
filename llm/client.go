// Package llm provides the completion capability consumed by the compiler:
// a provider-agnostic HTTP client with retry, fallback and circuit breaking
// driven by the model.Registry, the Completer interface every stage calls
// through, and recovery of structured records from noisy completion text.
package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/c360studio/semlogic/model"
	"github.com/google/uuid"
)

// maxResponseSize limits the response body to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// Client is a provider-agnostic completion client with retry and fallback
// support. It is safe for concurrent use.
type Client struct {
	registry    *model.Registry
	httpClient  *http.Client
	retryConfig RetryConfig
	logger      *slog.Logger
	temperature float64

	// recorder optionally persists calls. Nil disables recording.
	recorder CallRecorder
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`    // "system", "user", or "assistant"
	Content string `json:"content"` // Message content
}

// Request defines a completion request.
type Request struct {
	// Capability is resolved by the registry to a fallback chain of models.
	Capability string

	Messages []Message

	// Temperature controls randomness. nil uses the client temperature.
	Temperature *float64

	// MaxTokens limits response length. 0 uses the provider default.
	MaxTokens int
}

// TokenUsage represents token consumption for one call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response contains the completion result.
type Response struct {
	// RequestID uniquely identifies this call; it matches the recorded
	// CallRecord.
	RequestID string

	Content string

	// Model is the actual model that was used.
	Model string

	Usage TokenUsage

	FinishReason string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) ClientOption {
	return func(client *Client) {
		client.retryConfig = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

// WithRecorder records every call, successful or not.
func WithRecorder(r CallRecorder) ClientOption {
	return func(client *Client) {
		client.recorder = r
	}
}

// WithTemperature sets the sampling temperature used when a request does not
// carry one. The default is 0.
func WithTemperature(t float64) ClientOption {
	return func(client *Client) {
		client.temperature = t
	}
}

// NewClient creates a new client over the given model registry.
func NewClient(registry *model.Registry, opts ...ClientOption) *Client {
	c := &Client{
		registry:    registry,
		retryConfig: DefaultRetryConfig(),
		httpClient: &http.Client{
			Timeout: 180 * time.Second, // small local models can be slow on CPU
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Complete sends a completion request, handling retry and fallback logic.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if req.Capability == "" {
		return nil, fmt.Errorf("capability is required")
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("at least one message is required")
	}
	if req.Temperature == nil {
		t := c.temperature
		req.Temperature = &t
	}

	requestID := uuid.NewString()
	startedAt := time.Now()
	trace := GetTraceContext(ctx)

	capVal := model.ParseCapability(req.Capability)
	if capVal == "" {
		capVal = model.Capability(req.Capability)
	}
	chain := c.registry.GetAvailableFallbackChain(capVal)
	if len(chain) == 0 {
		return nil, fmt.Errorf("no models configured for capability %s", req.Capability)
	}

	record := &CallRecord{
		RequestID:  requestID,
		TraceID:    trace.TraceID,
		Stage:      trace.Stage,
		Capability: req.Capability,
		Prompt:     joinMessages(req.Messages),
		MaxTokens:  req.MaxTokens,
		StartedAt:  startedAt,
	}

	var lastErr error
	for _, modelName := range chain {
		endpoint := c.registry.GetEndpoint(modelName)
		if endpoint == nil {
			c.logger.Debug("No endpoint for model, skipping", "model", modelName)
			continue
		}

		resp, attempts, err := c.tryEndpoint(ctx, endpoint, modelName, req)
		record.Retries += attempts - 1
		record.Model = endpoint.Model
		record.Provider = endpoint.Provider

		if err == nil {
			resp.RequestID = requestID
			record.Model = resp.Model
			record.Response = resp.Content
			record.PromptTokens = resp.Usage.PromptTokens
			record.CompletionTokens = resp.Usage.CompletionTokens
			record.TotalTokens = resp.Usage.TotalTokens
			record.FinishReason = resp.FinishReason
			c.recordCall(ctx, record, startedAt)
			return resp, nil
		}

		lastErr = err
		if IsFatal(err) || ctx.Err() != nil {
			c.logger.Warn("Completion failed, not trying fallbacks",
				"model", modelName,
				"stage", trace.Stage,
				"error", err)
			record.Error = err.Error()
			c.recordCall(ctx, record, startedAt)
			return nil, err
		}

		c.logger.Warn("Endpoint failed, trying fallback",
			"model", modelName,
			"provider", endpoint.Provider,
			"error", err)
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no usable endpoint in chain %v", chain)
	}
	record.Error = fmt.Sprintf("all endpoints failed: %v", lastErr)
	c.recordCall(ctx, record, startedAt)

	return nil, fmt.Errorf("all endpoints failed for capability %s: %w", req.Capability, lastErr)
}

// recordCall stores a call record if a recorder is configured. Failures are
// logged but don't affect the call itself.
func (c *Client) recordCall(ctx context.Context, record *CallRecord, startedAt time.Time) {
	if c.recorder == nil {
		return
	}
	record.DurationMs = time.Since(startedAt).Milliseconds()

	// The call may have ended because ctx was cancelled; record regardless.
	if err := c.recorder.Record(context.WithoutCancel(ctx), record); err != nil {
		c.logger.Warn("Failed to record completion call",
			"request_id", record.RequestID,
			"trace_id", record.TraceID,
			"error", err)
	}
}

// tryEndpoint attempts a request with retry logic and returns the attempt count.
func (c *Client) tryEndpoint(ctx context.Context, ep *model.EndpointConfig, modelName string, req Request) (*Response, int, error) {
	var lastErr error

	for attempt := 1; attempt <= c.retryConfig.MaxAttempts; attempt++ {
		resp, err := c.doRequest(ctx, ep, req)
		if err == nil {
			c.registry.MarkEndpointSuccess(modelName)
			return resp, attempt, nil
		}

		lastErr = err

		// Fatal errors indicate config problems, not endpoint health.
		if IsFatal(err) {
			return nil, attempt, err
		}

		if attempt < c.retryConfig.MaxAttempts {
			backoff := c.retryConfig.backoff(attempt)
			c.logger.Debug("Request failed, retrying",
				"attempt", attempt,
				"max_attempts", c.retryConfig.MaxAttempts,
				"backoff", backoff,
				"error", err)

			select {
			case <-ctx.Done():
				return nil, attempt, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	c.registry.MarkEndpointFailure(modelName)

	return nil, c.retryConfig.MaxAttempts, lastErr
}

// doRequest executes a single HTTP request to the endpoint.
func (c *Client) doRequest(ctx context.Context, ep *model.EndpointConfig, req Request) (*Response, error) {
	provider := GetProvider(ep.Provider)
	if provider == nil {
		return nil, NewFatalError(fmt.Errorf("unknown provider: %s", ep.Provider))
	}

	url := provider.BuildURL(ep.URL)

	body, err := provider.BuildRequestBody(ep.Model, req.Messages, req.Temperature, req.MaxTokens)
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	c.logger.Debug("Sending completion request",
		"provider", ep.Provider,
		"model", ep.Model,
		"url", url,
		"max_tokens", req.MaxTokens)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	provider.SetHeaders(httpReq)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("HTTP request failed: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("read response body: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(httpResp.StatusCode, respBody)
	}

	resp, err := provider.ParseResponse(respBody, ep.Model)
	if err != nil {
		// A malformed envelope from a healthy server will not fix itself.
		return nil, NewFatalError(err)
	}
	return resp, nil
}

// classifyHTTPError determines if an HTTP error is transient or fatal.
func classifyHTTPError(statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}

	err := fmt.Errorf("completion API error (status %d): %s", statusCode, bodyStr)

	switch {
	case statusCode == http.StatusTooManyRequests,
		statusCode == http.StatusRequestTimeout,
		statusCode >= 500:
		return NewTransientError(err)
	default:
		// Auth, bad request and anything unexpected.
		return NewFatalError(err)
	}
}

func joinMessages(msgs []Message) string {
	if len(msgs) == 1 {
		return msgs[0].Content
	}
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}
