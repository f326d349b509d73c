package semantic_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode"

	"github.com/c360studio/semlogic/semantic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wordEmbedder embeds texts as bag-of-words count vectors over a vocabulary
// that grows as words are seen.
type wordEmbedder struct {
	mu    sync.Mutex
	vocab map[string]int
	calls int
	err   error
}

const wordDims = 512

func (w *wordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.err != nil {
		return nil, w.err
	}
	if w.vocab == nil {
		w.vocab = make(map[string]int)
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, wordDims)
		words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, word := range words {
			idx, ok := w.vocab[word]
			if !ok {
				idx = len(w.vocab)
				w.vocab[word] = idx
			}
			vec[idx]++
		}
		out[i] = vec
	}
	return out, nil
}

func (w *wordEmbedder) callCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

func TestNormalize_ExactExample(t *testing.T) {
	p := semantic.NewPreprocessor(&wordEmbedder{})

	m, err := p.Normalize(context.Background(), "If temperature exceeds 30, turn on the AC.")
	require.NoError(t, err)

	assert.Equal(t, "threshold_action", m.Intent)
	assert.InDelta(t, 1.0, m.Similarity, 1e-6)
	assert.Equal(t, "If temperature exceeds 30, turn on the AC.", m.Normalized)
	assert.Empty(t, m.MissingSlots)
}

func TestNormalize_VagueThreshold(t *testing.T) {
	p := semantic.NewPreprocessor(&wordEmbedder{})

	m, err := p.Normalize(context.Background(), "Turn on the AC when temperature is high")
	require.NoError(t, err)

	assert.Equal(t, "threshold_action", m.Intent)
	assert.GreaterOrEqual(t, m.Similarity, semantic.DefaultMinSimilarity)
	assert.Equal(t, []string{"operator", "threshold"}, m.MissingSlots)
}

func TestNormalize_UnlessTemplate(t *testing.T) {
	p := semantic.NewPreprocessor(&wordEmbedder{})

	m, err := p.Normalize(context.Background(), "Lock the door unless someone is inside now.")
	require.NoError(t, err)

	assert.Equal(t, "unless_negation", m.Intent)
	assert.Empty(t, m.MissingSlots)
}

func TestNormalize_Unmatched(t *testing.T) {
	p := semantic.NewPreprocessor(&wordEmbedder{})

	m, err := p.Normalize(context.Background(), "Zebras dance gracefully")
	require.NoError(t, err)

	assert.Empty(t, m.Intent)
	assert.Equal(t, "Zebras dance gracefully", m.Normalized)
	assert.Zero(t, m.Similarity)
	assert.Nil(t, m.MissingSlots)
}

func TestNormalize_MinSimilarity(t *testing.T) {
	p := semantic.NewPreprocessor(&wordEmbedder{}, semantic.WithMinSimilarity(0.95))

	m, err := p.Normalize(context.Background(), "Turn on the AC when temperature is high")
	require.NoError(t, err)

	assert.Empty(t, m.Intent)
	assert.Equal(t, "Turn on the AC when temperature is high", m.Normalized)
}

func TestNormalize_CollapsesWhitespace(t *testing.T) {
	p := semantic.NewPreprocessor(&wordEmbedder{})

	m, err := p.Normalize(context.Background(), "  If temperature   exceeds 30,\tturn on the AC. ")
	require.NoError(t, err)

	assert.Equal(t, "threshold_action", m.Intent)
	assert.Equal(t, "If temperature exceeds 30, turn on the AC.", m.Normalized)
}

func TestNormalize_EmbedsExamplesOnce(t *testing.T) {
	emb := &wordEmbedder{}
	p := semantic.NewPreprocessor(emb)

	for range 3 {
		_, err := p.Normalize(context.Background(), "Water the garden unless it is raining.")
		require.NoError(t, err)
	}

	// One batch for the examples, one call per instruction.
	assert.Equal(t, 4, emb.callCount())
}

func TestNormalize_EmbedErrorRetried(t *testing.T) {
	emb := &wordEmbedder{err: errors.New("quota exceeded")}
	p := semantic.NewPreprocessor(emb)

	_, err := p.Normalize(context.Background(), "Lock the door unless someone is inside.")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embed template examples")
	assert.Contains(t, err.Error(), "quota exceeded")

	emb.mu.Lock()
	emb.err = nil
	emb.mu.Unlock()

	m, err := p.Normalize(context.Background(), "Lock the door unless someone is inside.")
	require.NoError(t, err)
	assert.Equal(t, "unless_negation", m.Intent)
}

func TestNormalize_Concurrent(t *testing.T) {
	emb := &wordEmbedder{}
	p := semantic.NewPreprocessor(emb)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := p.Normalize(context.Background(), "When the door opens, turn on the hallway light.")
			assert.NoError(t, err)
			assert.Equal(t, "event_action", m.Intent)
		}()
	}
	wg.Wait()

	assert.Equal(t, 9, emb.callCount())
}

func TestMissingSlots(t *testing.T) {
	threshold := semantic.DefaultTemplates[0]
	event := semantic.DefaultTemplates[1]

	tests := []struct {
		name        string
		instruction string
		tmpl        semantic.Template
		want        []string
	}{
		{"complete threshold", "If humidity exceeds 70, turn on the fan.", threshold, nil},
		{"no number", "If humidity exceeds the limit, turn on the fan.", threshold, []string{"threshold"}},
		{"vague word", "If the CPU is busy for 5 minutes, notify ops.", threshold, []string{"operator", "threshold"}},
		{"no action verb", "If humidity exceeds 70, dehumidify.", threshold, []string{"action"}},
		{"low is vague", "Notify me when the battery is low", threshold, []string{"operator", "threshold"}},
		{"event without threshold slot", "When the door opens, be quick", event, []string{"action"}},
		{"word boundary", "Notify me when the highway is closed", event, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, semantic.MissingSlots(tt.instruction, tt.tmpl))
		})
	}
}

func TestPreprocessor_Template(t *testing.T) {
	p := semantic.NewPreprocessor(&wordEmbedder{})

	tmpl, ok := p.Template("unless_negation")
	require.True(t, ok)
	assert.Equal(t, "<action> UNLESS <condition>", tmpl.CanonicalForm)
	assert.True(t, tmpl.HasSlot("condition"))
	assert.False(t, tmpl.HasSlot("threshold"))

	_, ok = p.Template("nope")
	assert.False(t, ok)
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"length mismatch", []float32{1}, []float32{1, 0}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, semantic.Cosine(tt.a, tt.b), 1e-9)
		})
	}
}
