package eval

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/c360studio/semlogic/logic"
)

// GoldItem is one reference instruction with its expected plan and
// pseudocode.
type GoldItem struct {
	Instruction    string            `json:"instruction"`
	GoldSteps      []logic.LogicUnit `json:"gold_steps"`
	GoldPseudocode string            `json:"gold_pseudocode"`

	// Source is the file the item was loaded from.
	Source string `json:"-"`
}

type goldWire struct {
	Instruction    string          `json:"instruction"`
	GoldSteps      json.RawMessage `json:"gold_steps"`
	GoldPseudocode string          `json:"gold_pseudocode"`
}

// LoadGold reads every JSON file matched by the glob patterns ("**" is
// supported). Each file holds an array of gold items. Files matched by more
// than one pattern are read once; items keep file then array order.
func LoadGold(patterns ...string) ([]GoldItem, error) {
	files, err := ResolveFiles(patterns)
	if err != nil {
		return nil, err
	}

	var items []GoldItem
	for _, f := range files {
		loaded, err := loadGoldFile(f)
		if err != nil {
			return nil, err
		}
		items = append(items, loaded...)
	}
	return items, nil
}

// ResolveFiles expands glob patterns to regular files, deduplicated and in
// pattern order. A pattern without glob characters must name a file.
func ResolveFiles(patterns []string) ([]string, error) {
	var resolved []string
	seen := make(map[string]bool)

	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(filepath.Clean(pattern))
		if err != nil {
			return nil, fmt.Errorf("resolve pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 && !hasMeta(pattern) {
			return nil, fmt.Errorf("resolve pattern %q: %w", pattern, os.ErrNotExist)
		}

		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || info.IsDir() {
				continue
			}
			if !seen[m] {
				seen[m] = true
				resolved = append(resolved, m)
			}
		}
	}
	return resolved, nil
}

func hasMeta(pattern string) bool {
	for _, r := range pattern {
		switch r {
		case '*', '?', '[', '{':
			return true
		}
	}
	return false
}

func loadGoldFile(path string) ([]GoldItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read gold file: %w", err)
	}

	var wire []goldWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("parse gold file %s: %w", path, err)
	}

	items := make([]GoldItem, len(wire))
	for i, w := range wire {
		if w.Instruction == "" {
			return nil, fmt.Errorf("gold file %s: item %d has no instruction", path, i)
		}
		steps := []logic.LogicUnit{}
		if len(w.GoldSteps) > 0 && string(w.GoldSteps) != "null" {
			doc := append(append([]byte(`{"steps":`), w.GoldSteps...), '}')
			steps, err = logic.DecodeSteps(doc)
			if err != nil {
				return nil, fmt.Errorf("gold file %s: item %d: %w", path, i, err)
			}
		}
		items[i] = GoldItem{
			Instruction:    w.Instruction,
			GoldSteps:      steps,
			GoldPseudocode: w.GoldPseudocode,
			Source:         path,
		}
	}
	return items, nil
}
