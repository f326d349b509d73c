// Package semantic matches instructions to a small library of intent
// templates by embedding similarity and reports the slots an instruction
// leaves unfilled. It normalizes whitespace only and never rewrites meaning.
package semantic

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/c360studio/semlogic/logic"
)

// DefaultMinSimilarity is the cosine similarity below which an instruction
// is left unmatched.
const DefaultMinSimilarity = 0.72

var (
	vagueWords  = regexp.MustCompile(`(?i)\b(?:too long|after a while|a bit|quickly|soon|busy|overloaded|high|low)\b`)
	numberWords = regexp.MustCompile(`\d+(?:\.\d+)?`)
	actionWords = regexp.MustCompile(`(?i)\b(?:turn on|turn off|open|close|notify|send|set|activate|deactivate|lock|unlock|start|stop)\b`)
)

// Preprocessor matches instructions against templates.
type Preprocessor struct {
	embedder      Embedder
	templates     []Template
	minSimilarity float64
	logger        *slog.Logger

	mu      sync.Mutex
	index   [][]float32
	owners  []int
	indexed bool
}

// Option configures a Preprocessor.
type Option func(*Preprocessor)

// WithTemplates replaces DefaultTemplates.
func WithTemplates(t []Template) Option {
	return func(p *Preprocessor) {
		p.templates = t
	}
}

// WithMinSimilarity sets the match threshold.
func WithMinSimilarity(s float64) Option {
	return func(p *Preprocessor) {
		p.minSimilarity = s
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Preprocessor) {
		p.logger = logger
	}
}

// NewPreprocessor creates a Preprocessor over embedder.
func NewPreprocessor(embedder Embedder, opts ...Option) *Preprocessor {
	p := &Preprocessor{
		embedder:      embedder,
		templates:     DefaultTemplates,
		minSimilarity: DefaultMinSimilarity,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Normalize finds the closest template example. Below the similarity
// threshold the instruction is returned unchanged with no intent.
func (p *Preprocessor) Normalize(ctx context.Context, instruction string) (logic.IntentMatch, error) {
	index, owners, err := p.exampleIndex(ctx)
	if err != nil {
		return logic.IntentMatch{}, err
	}

	vecs, err := p.embedder.Embed(ctx, []string{instruction})
	if err != nil {
		return logic.IntentMatch{}, fmt.Errorf("embed instruction: %w", err)
	}
	if len(vecs) != 1 {
		return logic.IntentMatch{}, fmt.Errorf("embed instruction: got %d vectors", len(vecs))
	}

	best, bestScore := -1, -1.0
	for i, v := range index {
		if s := Cosine(vecs[0], v); s > bestScore {
			best, bestScore = i, s
		}
	}

	if best < 0 || bestScore < p.minSimilarity {
		return logic.IntentMatch{Normalized: instruction, Similarity: max(bestScore, 0)}, nil
	}

	tmpl := p.templates[owners[best]]
	normalized := lightNormalize(instruction)
	match := logic.IntentMatch{
		Normalized:   normalized,
		Intent:       tmpl.Name,
		Similarity:   bestScore,
		MissingSlots: MissingSlots(normalized, tmpl),
	}
	p.logger.Debug("Matched intent template",
		"intent", match.Intent,
		"similarity", match.Similarity,
		"missing_slots", match.MissingSlots)
	return match, nil
}

// Template returns the template with the given name.
func (p *Preprocessor) Template(name string) (Template, bool) {
	for _, t := range p.templates {
		if t.Name == name {
			return t, true
		}
	}
	return Template{}, false
}

// exampleIndex embeds every template example once. A failed attempt is
// retried on the next call.
func (p *Preprocessor) exampleIndex(ctx context.Context) ([][]float32, []int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.indexed {
		return p.index, p.owners, nil
	}

	var texts []string
	var owners []int
	for i, t := range p.templates {
		for _, ex := range t.Examples {
			texts = append(texts, ex)
			owners = append(owners, i)
		}
	}

	vecs, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, nil, fmt.Errorf("embed template examples: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, nil, fmt.Errorf("embed template examples: got %d vectors for %d examples", len(vecs), len(texts))
	}

	p.index, p.owners, p.indexed = vecs, owners, true
	return p.index, p.owners, nil
}

func lightNormalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// MissingSlots infers which template slots an instruction leaves open:
// vague wording leaves threshold and operator open, a threshold slot needs
// a number, and an action slot needs a recognized action verb.
func MissingSlots(instruction string, t Template) []string {
	var missing []string
	if vagueWords.MatchString(instruction) {
		if t.HasSlot("threshold") {
			missing = append(missing, "threshold")
		}
		if t.HasSlot("operator") {
			missing = append(missing, "operator")
		}
	}
	if t.HasSlot("threshold") && !numberWords.MatchString(instruction) {
		missing = append(missing, "threshold")
	}
	if t.HasSlot("action") && !actionWords.MatchString(instruction) {
		missing = append(missing, "action")
	}

	slices.Sort(missing)
	return slices.Compact(missing)
}
