package providers

import (
	"testing"

	"github.com/c360studio/semlogic/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaProvider_BuildURL(t *testing.T) {
	p := &OllamaProvider{}

	tests := []struct {
		name    string
		baseURL string
		want    string
	}{
		{name: "empty uses default", baseURL: "", want: "http://localhost:11434/v1/chat/completions"},
		{name: "custom base URL", baseURL: "http://gpu-box:8080/v1", want: "http://gpu-box:8080/v1/chat/completions"},
		{name: "trailing slash handled", baseURL: "http://localhost:11434/v1/", want: "http://localhost:11434/v1/chat/completions"},
		{name: "already has endpoint", baseURL: "http://localhost:11434/v1/chat/completions", want: "http://localhost:11434/v1/chat/completions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.BuildURL(tt.baseURL))
		})
	}
}

func TestOllamaProvider_BuildRequestBody(t *testing.T) {
	p := &OllamaProvider{}

	temp := 0.7
	body, err := p.BuildRequestBody("qwen2.5:1.5b-instruct", []llm.Message{{Role: "user", Content: "Hello"}}, &temp, 500)
	require.NoError(t, err)

	assert.Contains(t, string(body), `"model":"qwen2.5:1.5b-instruct"`)
	assert.Contains(t, string(body), `"temperature":0.7`)
	assert.Contains(t, string(body), `"max_tokens":500`)
	assert.Contains(t, string(body), `"stream":false`)
	assert.NotContains(t, string(body), `"seed"`)
}

func TestOllamaProvider_BuildRequestBody_ZeroTemperatureSeeds(t *testing.T) {
	p := &OllamaProvider{}

	temp := 0.0
	body, err := p.BuildRequestBody("deepseek-coder:1.3b-instruct", []llm.Message{{Role: "user", Content: "Hello"}}, &temp, 0)
	require.NoError(t, err)

	assert.Contains(t, string(body), `"temperature":0`)
	assert.Contains(t, string(body), `"seed":42`)
	assert.NotContains(t, string(body), `"max_tokens"`)
}

func TestOllamaProvider_BuildRequestBody_NoOptionalParams(t *testing.T) {
	p := &OllamaProvider{}

	body, err := p.BuildRequestBody("test-model", []llm.Message{{Role: "user", Content: "Hello"}}, nil, 0)
	require.NoError(t, err)

	assert.NotContains(t, string(body), `"temperature"`)
	assert.NotContains(t, string(body), `"max_tokens"`)
	assert.NotContains(t, string(body), `"seed"`)
}

func TestOllamaProvider_ParseResponse(t *testing.T) {
	p := &OllamaProvider{}

	responseBody := []byte(`{
		"model": "qwen2.5:1.5b-instruct",
		"choices": [{
			"index": 0,
			"message": {"role": "assistant", "content": "<think>the user wants JSON</think>\n{\"steps\": []}"},
			"finish_reason": "stop"
		}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 6, "total_tokens": 16}
	}`)

	resp, err := p.ParseResponse(responseBody, "qwen")
	require.NoError(t, err)

	assert.Equal(t, `{"steps": []}`, resp.Content)
	assert.Equal(t, "qwen2.5:1.5b-instruct", resp.Model)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 10, resp.Usage.PromptTokens)
	assert.Equal(t, 6, resp.Usage.CompletionTokens)
	assert.Equal(t, 16, resp.Usage.TotalTokens)
}

func TestOllamaProvider_ParseResponse_MissingModelUsesRequested(t *testing.T) {
	p := &OllamaProvider{}

	resp, err := p.ParseResponse([]byte(`{"choices": [{"message": {"content": "ok"}}]}`), "qwen2.5")
	require.NoError(t, err)
	assert.Equal(t, "qwen2.5", resp.Model)
}

func TestOllamaProvider_ParseResponse_NoChoices(t *testing.T) {
	p := &OllamaProvider{}

	_, err := p.ParseResponse([]byte(`{"id": "chatcmpl-123", "choices": []}`), "test-model")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}
