// Package dataset generates synthetic natural-language instructions for
// training and evaluating the compiler.
package dataset

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Vocabularies the families draw from.
var (
	Metrics = []string{
		"temperature",
		"humidity",
		"air quality index",
		"CPU usage",
		"queue length",
		"battery level",
	}

	Actions = []string{
		"turn on the AC",
		"send a notification",
		"close the windows",
		"activate the alarm",
		"start recording",
		"decrease the fan speed",
	}

	Thresholds = []string{"20", "25", "30", "70", "80", "90", "150"}

	TimePhrases = []string{
		"after 5 minutes",
		"during the night",
		"when it is evening",
		"after a while",
		"as soon as possible",
	}
)

// Family renders one instruction from r.
type Family func(r *rand.Rand) string

// Families maps a family name to its renderer.
var Families = map[string]Family{
	"simple":          thresholdCondition,
	"threshold":       thresholdCondition,
	"negation":        negation,
	"multi_condition": multiCondition,
	"temporal":        temporal,
	"ambiguous":       ambiguous,
}

func pick(r *rand.Rand, from []string) string {
	return from[r.IntN(len(from))]
}

func capitalize(s string) string {
	first, size := utf8.DecodeRuneInString(s)
	if first == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(first)) + s[size:]
}

func thresholdCondition(r *rand.Rand) string {
	return fmt.Sprintf("If %s exceeds %s, %s.", pick(r, Metrics), pick(r, Thresholds), pick(r, Actions))
}

func negation(r *rand.Rand) string {
	return fmt.Sprintf("%s unless %s is low.", capitalize(pick(r, Actions)), pick(r, Metrics))
}

func multiCondition(r *rand.Rand) string {
	return fmt.Sprintf("If %s exceeds %s and %s is high, %s.",
		pick(r, Metrics), pick(r, Thresholds), pick(r, Metrics), pick(r, Actions))
}

func temporal(r *rand.Rand) string {
	return fmt.Sprintf("%s %s.", capitalize(pick(r, Actions)), pick(r, TimePhrases))
}

func ambiguous(r *rand.Rand) string {
	return fmt.Sprintf("%s when %s is high.", capitalize(pick(r, Actions)), pick(r, Metrics))
}

// Item is one generated instruction labeled with its family.
type Item struct {
	Type        string `json:"type"`
	Instruction string `json:"instruction"`
}

// Quota asks for Count instructions of a family.
type Quota struct {
	Family string
	Count  int
}

// DefaultPlan is the standard dataset mix.
var DefaultPlan = []Quota{
	{Family: "simple", Count: 30},
	{Family: "threshold", Count: 30},
	{Family: "negation", Count: 22},
	{Family: "multi_condition", Count: 22},
	{Family: "temporal", Count: 22},
	{Family: "ambiguous", Count: 22},
}

// Generator produces deterministic datasets: the same seed and plan always
// yield the same items.
type Generator struct {
	seed uint64
}

// NewGenerator creates a generator for seed.
func NewGenerator(seed uint64) *Generator {
	return &Generator{seed: seed}
}

// Generate renders the plan in order.
func (g *Generator) Generate(plan []Quota) ([]Item, error) {
	r := rand.New(rand.NewPCG(g.seed, g.seed^0x9e3779b97f4a7c15))

	var items []Item
	for _, q := range plan {
		family, ok := Families[q.Family]
		if !ok {
			return nil, fmt.Errorf("unknown family %q (known: %s)", q.Family, strings.Join(FamilyNames(), ", "))
		}
		if q.Count < 0 {
			return nil, fmt.Errorf("family %q: negative count %d", q.Family, q.Count)
		}
		for range q.Count {
			items = append(items, Item{Type: q.Family, Instruction: family(r)})
		}
	}
	return items, nil
}

// FamilyNames lists the known families in DefaultPlan order.
func FamilyNames() []string {
	names := make([]string, len(DefaultPlan))
	for i, q := range DefaultPlan {
		names[i] = q.Family
	}
	return names
}

// WriteJSON writes items as an indented JSON array.
func WriteJSON(w io.Writer, items []Item) error {
	if items == nil {
		items = []Item{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(items); err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}
	return nil
}
