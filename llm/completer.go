package llm

import (
	"context"
	"fmt"

	"github.com/c360studio/semlogic/model"
)

// Completer is the single text-completion operation the compiler depends
// on. Implementations must be safe for concurrent use.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, prompt string, maxTokens int) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return f(ctx, prompt, maxTokens)
}

// Completer returns a Completer that sends every prompt as a single user
// message to the given capability.
func (c *Client) Completer(capability model.Capability) Completer {
	return CompleterFunc(func(ctx context.Context, prompt string, maxTokens int) (string, error) {
		return c.completeText(ctx, capability, prompt, maxTokens)
	})
}

// StageCompleter returns a Completer that picks the capability from the
// stage carried by the context (see WithStage), so reasoning and code
// generation can be routed to different models.
func (c *Client) StageCompleter() Completer {
	return CompleterFunc(func(ctx context.Context, prompt string, maxTokens int) (string, error) {
		capability := model.CapabilityForStage(GetTraceContext(ctx).Stage)
		return c.completeText(ctx, capability, prompt, maxTokens)
	})
}

func (c *Client) completeText(ctx context.Context, capability model.Capability, prompt string, maxTokens int) (string, error) {
	resp, err := c.Complete(ctx, Request{
		Capability: capability.String(),
		Messages:   []Message{{Role: "user", Content: prompt}},
		MaxTokens:  maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("complete %s: %w", capability, err)
	}
	return resp.Content, nil
}
