package semantic

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeEmbedAPI struct {
	model    string
	texts    []string
	taskType string
	resp     *genai.EmbedContentResponse
	err      error
}

func (f *fakeEmbedAPI) EmbedContent(_ context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	f.model = model
	for _, c := range contents {
		f.texts = append(f.texts, c.Parts[0].Text)
	}
	if config != nil {
		f.taskType = config.TaskType
	}
	return f.resp, f.err
}

func TestGenAIEmbedder_Embed(t *testing.T) {
	api := &fakeEmbedAPI{resp: &genai.EmbedContentResponse{
		Embeddings: []*genai.ContentEmbedding{
			{Values: []float32{0.1, 0.2}},
			{Values: []float32{0.3, 0.4}},
		},
	}}
	e := newGenAIEmbedder(api, "")

	out, err := e.Embed(context.Background(), []string{"turn on the fan", "lock the door"})
	require.NoError(t, err)

	assert.Equal(t, DefaultEmbeddingModel, api.model)
	assert.Equal(t, "SEMANTIC_SIMILARITY", api.taskType)
	assert.Equal(t, []string{"turn on the fan", "lock the door"}, api.texts)
	assert.Equal(t, [][]float32{{0.1, 0.2}, {0.3, 0.4}}, out)
}

func TestGenAIEmbedder_Errors(t *testing.T) {
	t.Run("api error", func(t *testing.T) {
		e := newGenAIEmbedder(&fakeEmbedAPI{err: errors.New("rate limited")}, "custom-model")
		_, err := e.Embed(context.Background(), []string{"x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rate limited")
	})

	t.Run("count mismatch", func(t *testing.T) {
		e := newGenAIEmbedder(&fakeEmbedAPI{resp: &genai.EmbedContentResponse{}}, "")
		_, err := e.Embed(context.Background(), []string{"x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "got 0 embeddings for 1 texts")
	})

	t.Run("empty input", func(t *testing.T) {
		api := &fakeEmbedAPI{}
		out, err := newGenAIEmbedder(api, "").Embed(context.Background(), nil)
		require.NoError(t, err)
		assert.Nil(t, out)
		assert.Empty(t, api.model)
	})
}

func TestNewGenAIEmbedder_RequiresKey(t *testing.T) {
	_, err := NewGenAIEmbedder(context.Background(), "", "")
	require.Error(t, err)
}
