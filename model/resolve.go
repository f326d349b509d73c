package model

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// UnknownModelError is returned when a model token matches neither an
// endpoint nor an alias.
type UnknownModelError struct {
	Token       string
	Suggestions []string
}

func (e *UnknownModelError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("unknown model %q", e.Token)
	}
	return fmt.Sprintf("unknown model %q (did you mean %s?)", e.Token, strings.Join(e.Suggestions, ", "))
}

// maxSuggestions bounds the "did you mean" list.
const maxSuggestions = 3

// ResolveToken maps a user-supplied model token (endpoint name or alias,
// case-insensitive) to an endpoint name.
func (r *Registry) ResolveToken(token string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := strings.ToLower(strings.TrimSpace(token))
	if _, ok := r.endpoints[key]; ok {
		return key, nil
	}
	if target, ok := r.aliases[key]; ok {
		if _, ok := r.endpoints[target]; ok {
			return target, nil
		}
	}

	return "", &UnknownModelError{Token: token, Suggestions: r.suggestLocked(key)}
}

// suggestLocked ranks known tokens by fuzzy distance to key.
func (r *Registry) suggestLocked(key string) []string {
	if key == "" {
		return nil
	}

	targets := make([]string, 0, len(r.endpoints)+len(r.aliases))
	for name := range r.endpoints {
		targets = append(targets, name)
	}
	for alias := range r.aliases {
		targets = append(targets, alias)
	}

	ranks := fuzzy.RankFindNormalizedFold(key, targets)
	if len(ranks) == 0 {
		// Token is not a subsequence of anything; try the reverse so
		// "deepseek-coder-v2" still suggests "deepseek".
		for _, t := range targets {
			if fuzzy.MatchNormalizedFold(t, key) {
				ranks = append(ranks, fuzzy.Rank{Target: t, Distance: len(key) - len(t)})
			}
		}
	}
	sort.Sort(ranks)

	out := make([]string, 0, maxSuggestions)
	for _, rk := range ranks {
		if len(out) == maxSuggestions {
			break
		}
		out = append(out, rk.Target)
	}
	return out
}
