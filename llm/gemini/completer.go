// Package gemini implements llm.Completer on top of the Google GenAI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/c360studio/semlogic/llm"
	"github.com/google/uuid"
	"google.golang.org/genai"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "gemini-2.5-flash"

// Generator is the subset of *genai.Models the completer needs.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Completer sends prompts to a Gemini model.
type Completer struct {
	models      Generator
	model       string
	temperature float32
	recorder    llm.CallRecorder
	logger      *slog.Logger
}

// Option configures a Completer.
type Option func(*Completer)

// WithTemperature sets the sampling temperature. The default is 0.
func WithTemperature(t float32) Option {
	return func(c *Completer) {
		c.temperature = t
	}
}

// WithRecorder records every call.
func WithRecorder(r llm.CallRecorder) Option {
	return func(c *Completer) {
		c.recorder = r
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Completer) {
		c.logger = l
	}
}

// New creates a Completer backed by the Gemini API.
func New(ctx context.Context, apiKey, model string, opts ...Option) (*Completer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return NewWithGenerator(client.Models, model, opts...), nil
}

// NewWithGenerator creates a Completer over an existing generator.
func NewWithGenerator(g Generator, model string, opts ...Option) *Completer {
	if model == "" {
		model = DefaultModel
	}
	c := &Completer{
		models: g,
		model:  model,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete implements llm.Completer.
func (c *Completer) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	startedAt := time.Now()
	trace := llm.GetTraceContext(ctx)

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(c.temperature),
	}
	if maxTokens > 0 {
		config.MaxOutputTokens = int32(maxTokens)
	}

	resp, err := c.models.GenerateContent(ctx, c.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		config,
	)

	record := &llm.CallRecord{
		RequestID:  uuid.NewString(),
		TraceID:    trace.TraceID,
		Stage:      trace.Stage,
		Capability: "gemini",
		Model:      c.model,
		Provider:   "gemini",
		Prompt:     prompt,
		MaxTokens:  maxTokens,
		StartedAt:  startedAt,
	}

	if err != nil {
		err = classify(err)
		record.Error = err.Error()
		c.record(ctx, record, startedAt)
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	text := resp.Text()
	record.Response = text
	if usage := resp.UsageMetadata; usage != nil {
		record.PromptTokens = int(usage.PromptTokenCount)
		record.CompletionTokens = int(usage.CandidatesTokenCount)
		record.TotalTokens = int(usage.TotalTokenCount)
	}
	if len(resp.Candidates) > 0 {
		record.FinishReason = string(resp.Candidates[0].FinishReason)
	}
	c.record(ctx, record, startedAt)

	return text, nil
}

func (c *Completer) record(ctx context.Context, record *llm.CallRecord, startedAt time.Time) {
	if c.recorder == nil {
		return
	}
	record.DurationMs = time.Since(startedAt).Milliseconds()
	if err := c.recorder.Record(context.WithoutCancel(ctx), record); err != nil {
		c.logger.Warn("Failed to record completion call", "request_id", record.RequestID, "error", err)
	}
}

// classify maps GenAI API errors onto the llm transient/fatal classes.
func classify(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return llm.NewTransientError(err)
	}
	if apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500 {
		return llm.NewTransientError(err)
	}
	return llm.NewFatalError(err)
}
