package providers

import (
	"testing"

	"github.com/c360studio/semlogic/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicProvider_BuildURL(t *testing.T) {
	p := &AnthropicProvider{}

	tests := []struct {
		name    string
		baseURL string
		want    string
	}{
		{name: "empty uses default", baseURL: "", want: "https://api.anthropic.com/v1/messages"},
		{name: "custom base URL", baseURL: "https://proxy.internal", want: "https://proxy.internal/v1/messages"},
		{name: "trailing slash handled", baseURL: "https://api.anthropic.com/", want: "https://api.anthropic.com/v1/messages"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.BuildURL(tt.baseURL))
		})
	}
}

func TestAnthropicProvider_BuildRequestBody(t *testing.T) {
	p := &AnthropicProvider{}

	messages := []llm.Message{
		{Role: "system", Content: "Return JSON only."},
		{Role: "user", Content: "Turn on the AC if temperature is above 30"},
	}

	temp := 0.0
	body, err := p.BuildRequestBody("claude-3-5-haiku-20241022", messages, &temp, 512)
	require.NoError(t, err)

	assert.Contains(t, string(body), `"system":"Return JSON only."`)
	assert.Contains(t, string(body), `"model":"claude-3-5-haiku-20241022"`)
	assert.Contains(t, string(body), `"max_tokens":512`)
	assert.Contains(t, string(body), `"temperature":0`)
	assert.NotContains(t, string(body), `"role":"system"`)
	assert.Contains(t, string(body), `"role":"user"`)
}

func TestAnthropicProvider_BuildRequestBody_DefaultMaxTokens(t *testing.T) {
	p := &AnthropicProvider{}

	body, err := p.BuildRequestBody("claude-3-5-haiku-20241022", []llm.Message{{Role: "user", Content: "x"}}, nil, 0)
	require.NoError(t, err)

	assert.Contains(t, string(body), `"max_tokens":1024`)
	assert.NotContains(t, string(body), `"temperature"`)
}

func TestAnthropicProvider_ParseResponse(t *testing.T) {
	p := &AnthropicProvider{}

	responseBody := []byte(`{
		"id": "msg_123",
		"type": "message",
		"role": "assistant",
		"content": [
			{"type": "text", "text": "{\"steps\": "},
			{"type": "text", "text": "[]}"}
		],
		"model": "claude-3-5-haiku-20241022",
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 15, "output_tokens": 8}
	}`)

	resp, err := p.ParseResponse(responseBody, "claude-haiku")
	require.NoError(t, err)

	assert.Equal(t, `{"steps": []}`, resp.Content)
	assert.Equal(t, "claude-3-5-haiku-20241022", resp.Model)
	assert.Equal(t, "end_turn", resp.FinishReason)
	assert.Equal(t, 15, resp.Usage.PromptTokens)
	assert.Equal(t, 8, resp.Usage.CompletionTokens)
	assert.Equal(t, 23, resp.Usage.TotalTokens)
}

func TestAnthropicProvider_ParseResponse_Errors(t *testing.T) {
	p := &AnthropicProvider{}

	_, err := p.ParseResponse([]byte(`not json`), "m")
	require.Error(t, err)

	_, err = p.ParseResponse([]byte(`{"type": "error", "error": {"type": "overloaded_error"}}`), "m")
	require.Error(t, err)
}
