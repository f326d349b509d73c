package llm

import (
	"context"
	"time"
)

// CallRecord describes a single completion call for audit and correlation.
type CallRecord struct {
	// RequestID uniquely identifies this call.
	RequestID string `json:"request_id" db:"request_id"`

	// TraceID is the compile id the call belongs to.
	TraceID string `json:"trace_id" db:"trace_id"`

	// Stage is the compiler stage that issued the call (reasoning,
	// pseudocode, code, repair).
	Stage string `json:"stage" db:"stage"`

	Capability string `json:"capability" db:"capability"`
	Model      string `json:"model" db:"model"`
	Provider   string `json:"provider" db:"provider"`

	Prompt   string `json:"prompt" db:"prompt"`
	Response string `json:"response" db:"response"`

	PromptTokens     int `json:"prompt_tokens" db:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens" db:"completion_tokens"`
	TotalTokens      int `json:"total_tokens" db:"total_tokens"`

	// MaxTokens is the output budget the stage requested.
	MaxTokens int `json:"max_tokens" db:"max_tokens"`

	FinishReason string `json:"finish_reason" db:"finish_reason"`

	StartedAt  time.Time `json:"started_at" db:"started_at"`
	DurationMs int64     `json:"duration_ms" db:"duration_ms"`

	// Error contains the error message if the call failed.
	Error string `json:"error,omitempty" db:"error"`

	// Retries is the number of retry attempts made across endpoints.
	Retries int `json:"retries" db:"retries"`
}

// CallRecorder persists completion call records. Recording failures are
// logged by the caller and never fail the completion itself.
type CallRecorder interface {
	Record(ctx context.Context, record *CallRecord) error
}

// TraceContext carries correlation data for completion calls.
type TraceContext struct {
	TraceID string
	Stage   string
}

type traceContextKey struct{}

// WithTraceContext adds trace information to a context.
func WithTraceContext(ctx context.Context, tc TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, tc)
}

// GetTraceContext extracts trace information from a context.
func GetTraceContext(ctx context.Context) TraceContext {
	if tc, ok := ctx.Value(traceContextKey{}).(TraceContext); ok {
		return tc
	}
	return TraceContext{}
}

// WithStage returns a context whose trace carries the given stage, keeping
// any trace id already present.
func WithStage(ctx context.Context, stage string) context.Context {
	tc := GetTraceContext(ctx)
	tc.Stage = stage
	return WithTraceContext(ctx, tc)
}
