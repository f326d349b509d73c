// Package eval scores compiler output against gold plans and pseudocode and
// runs batches of gold items through a compiler.
package eval

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/c360studio/semlogic/logic"
	"github.com/c360studio/semlogic/semantic"
)

// Scores are the structural scores of a predicted plan against a gold plan.
type Scores struct {
	Precision          float64 `json:"precision"`
	Recall             float64 `json:"recall"`
	F1                 float64 `json:"f1"`
	DependencyAccuracy float64 `json:"dependency_acc"`
}

// unitKey is the order-insensitive identity of a unit for matching.
type unitKey struct {
	role     logic.Role
	operator logic.Operator
	value    string
	negated  bool
	text     string
}

func keyOf(u logic.LogicUnit) unitKey {
	return unitKey{
		role:     u.Role,
		operator: u.Operator,
		value:    u.Value,
		negated:  u.Negated,
		text:     strings.Join(strings.Fields(strings.ToLower(u.Text)), " "),
	}
}

// StructuralScores matches pred against gold as multisets of (role,
// operator, value, negated, normalized text). Dependency accuracy compares
// the i-th action of each plan: both have dependencies or neither does.
func StructuralScores(pred, gold []logic.LogicUnit) Scores {
	pool := make(map[unitKey]int, len(pred))
	for _, u := range pred {
		pool[keyOf(u)]++
	}

	matched := 0
	for _, u := range gold {
		k := keyOf(u)
		if pool[k] > 0 {
			pool[k]--
			matched++
		}
	}

	var s Scores
	s.Precision = float64(matched) / float64(max(len(pred), 1))
	s.Recall = float64(matched) / float64(max(len(gold), 1))
	if s.Precision+s.Recall > 0 {
		s.F1 = 2 * s.Precision * s.Recall / (s.Precision + s.Recall)
	}

	predDeps, goldDeps := actionDeps(pred), actionDeps(gold)
	correct := 0
	for i := range min(len(predDeps), len(goldDeps)) {
		if predDeps[i] == goldDeps[i] {
			correct++
		}
	}
	s.DependencyAccuracy = float64(correct) / float64(max(len(goldDeps), 1))
	return s
}

// actionDeps reports, per action in order, whether it has dependencies.
func actionDeps(units []logic.LogicUnit) []bool {
	var out []bool
	for _, u := range units {
		if u.Role == logic.RoleAction {
			out = append(out, len(u.DependsOn) > 0)
		}
	}
	return out
}

var (
	nonToken   = regexp.MustCompile(`[^a-z0-9_><= ]+`)
	whitespace = regexp.MustCompile(`\s+`)
)

func tokenSet(s string) map[string]struct{} {
	s = nonToken.ReplaceAllString(strings.ToLower(s), " ")
	s = strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(s) {
		set[tok] = struct{}{}
	}
	return set
}

// BehavioralEquivalence is the Jaccard index of the normalized token sets of
// two pseudocode texts. It is a proxy for equivalent behavior, not a proof.
func BehavioralEquivalence(pred, gold string) float64 {
	p, g := tokenSet(pred), tokenSet(gold)

	inter := 0
	for tok := range p {
		if _, ok := g[tok]; ok {
			inter++
		}
	}
	union := len(p) + len(g) - inter
	return float64(inter) / float64(max(union, 1))
}

// SemanticScorer scores how close rendered pseudocode stays to the
// instruction it came from.
type SemanticScorer struct {
	embedder semantic.Embedder
}

// NewSemanticScorer creates a scorer over embedder.
func NewSemanticScorer(embedder semantic.Embedder) *SemanticScorer {
	return &SemanticScorer{embedder: embedder}
}

// Score returns the cosine similarity of the two texts' embeddings.
func (s *SemanticScorer) Score(ctx context.Context, instruction, rendered string) (float64, error) {
	vecs, err := s.embedder.Embed(ctx, []string{instruction, rendered})
	if err != nil {
		return 0, fmt.Errorf("embed for semantic score: %w", err)
	}
	if len(vecs) != 2 {
		return 0, fmt.Errorf("embed for semantic score: got %d vectors", len(vecs))
	}
	return semantic.Cosine(vecs[0], vecs[1]), nil
}
