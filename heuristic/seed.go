// Package heuristic drafts logic units from an instruction with a purely
// lexical pass. The draft is either a clarification request, which ends
// compilation, or a hint for the reasoning model.
package heuristic

import (
	"fmt"
	"sort"
	"strings"

	"github.com/c360studio/semlogic/logic"
)

// Result is the outcome of seeding one instruction.
type Result struct {
	Units []logic.LogicUnit

	// Clarification is true when a vague phrase was found. Units then holds
	// exactly one note unit naming the missing field.
	Clarification bool
}

// Plan wraps the units in a LogicPlan.
func (r Result) Plan() logic.LogicPlan {
	return logic.LogicPlan{Steps: r.Units}
}

// DetectAmbiguity returns the first vague phrase, in lexicon order, that
// occurs in the instruction.
func DetectAmbiguity(instruction string) (phrase, field string, ok bool) {
	for i, re := range vaguePatterns {
		if re.MatchString(instruction) {
			return VaguePhrases[i].Phrase, VaguePhrases[i].Field, true
		}
	}
	return "", "", false
}

// Seed drafts logic units from an instruction. It never calls a model and
// always returns the same units for the same input.
//
// Ids are assigned S1..Sn with a loop note first, then conditions in the
// order they appear, then actions. Every action depends on every condition.
func Seed(instruction string) Result {
	text := strings.TrimSpace(instruction)

	if phrase, field, ok := DetectAmbiguity(text); ok {
		return Result{
			Units: []logic.LogicUnit{{
				ID:                  "S1",
				Role:                logic.RoleNote,
				Text:                phrase,
				DependsOn:           []string{},
				ClarificationNeeded: true,
				ClarificationField:  field,
			}},
			Clarification: true,
		}
	}

	verbs := actionableVerbs(text)
	clauses := findClauses(text, verbs)

	units := []logic.LogicUnit{}
	if m := loopPattern.FindStringSubmatch(text); m != nil {
		if over := strings.TrimSpace(m[1]); over != "" {
			units = append(units, logic.LogicUnit{Role: logic.RoleNote, Text: "Loop over " + over})
		}
	}

	units = append(units, conditions(text, clauses)...)
	units = append(units, actions(text, verbs, clauses)...)

	condIDs := []string{}
	for i := range units {
		units[i].ID = fmt.Sprintf("S%d", i+1)
		switch units[i].Role {
		case logic.RoleCondition:
			units[i].DependsOn = []string{}
			condIDs = append(condIDs, units[i].ID)
		case logic.RoleAction:
			units[i].DependsOn = append([]string{}, condIDs...)
		default:
			units[i].DependsOn = []string{}
		}
	}

	return Result{Units: units}
}

type span struct {
	start, end int
}

func (s span) contains(pos int) bool {
	return pos >= s.start && pos < s.end
}

// clause is the body of an if, when or unless keyword.
type clause struct {
	keyword string
	span
}

// comparison is a "<phrase> <number>" match.
type comparison struct {
	pos      int
	subject  string
	operator logic.Operator
	value    string
}

// actionableVerbs returns action verb matches, skipping those used as
// adjectives after a copula ("the door is open").
func actionableVerbs(text string) [][]int {
	var out [][]int
	for _, m := range verbPattern.FindAllStringIndex(text, -1) {
		if !afterCopula(text, m[0]) {
			out = append(out, m)
		}
	}
	return out
}

func afterCopula(text string, pos int) bool {
	words := strings.Fields(text[:pos])
	if len(words) == 0 {
		return false
	}
	return copulas[strings.ToLower(strings.Trim(words[len(words)-1], ",.;:"))]
}

// findClauses locates condition clauses. A clause ends at punctuation or at
// "then" or another condition keyword. An if or when clause also ends where
// an action verb begins; an unless clause keeps its verbs.
func findClauses(text string, verbs [][]int) []clause {
	var out []clause
	for _, m := range clauseKeyword.FindAllStringSubmatchIndex(text, -1) {
		keyword := strings.ToLower(text[m[2]:m[3]])
		start := m[1]
		end := len(text)
		if loc := clauseStop.FindStringIndex(text[start:]); loc != nil {
			end = start + loc[0]
		}
		for _, v := range verbs {
			if keyword == "unless" {
				break
			}
			if v[0] > start && v[0] < end {
				end = v[0]
				break
			}
		}
		for end > start && text[end-1] == ' ' {
			end--
		}
		if end <= start {
			continue
		}
		out = append(out, clause{
			keyword: keyword,
			span:    span{start: start, end: end},
		})
	}
	return out
}

func findComparisons(text string) []comparison {
	var out []comparison
	for _, m := range comparisonPattern.FindAllStringSubmatchIndex(text, -1) {
		out = append(out, comparison{
			pos:      m[0],
			subject:  subjectBefore(text, m[0]),
			operator: logic.Operator(comparisonOps[canonical(text[m[2]:m[3]])]),
			value:    text[m[4]:m[5]],
		})
	}
	return out
}

// subjectBefore recovers the noun phrase a comparison applies to, e.g.
// "temperature" from "if the temperature is above 30".
func subjectBefore(text string, pos int) string {
	segment := text[:pos]
	from := 0
	for _, loc := range subjectBoundary.FindAllStringIndex(segment, -1) {
		from = loc[1]
	}

	words := strings.Fields(segment[from:])
	for len(words) > 0 && articles[strings.ToLower(words[0])] {
		words = words[1:]
	}
	for len(words) > 0 && copulas[strings.ToLower(words[len(words)-1])] {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

func (c comparison) text() string {
	if c.subject == "" {
		return fmt.Sprintf("%s %s", c.operator, c.value)
	}
	return fmt.Sprintf("%s %s %s", c.subject, c.operator, c.value)
}

// conditions builds condition units in order of appearance. A comparison
// inside an unless clause is folded into the negated unit; an if or when
// clause holding a comparison is represented by the comparison alone.
func conditions(text string, clauses []clause) []logic.LogicUnit {
	type candidate struct {
		pos  int
		unit logic.LogicUnit
	}

	comparisons := findComparisons(text)
	absorbed := make([]bool, len(comparisons))
	var candidates []candidate

	for _, cl := range clauses {
		body := strings.TrimSpace(text[cl.start:cl.end])

		var inner []int
		for i, c := range comparisons {
			if cl.contains(c.pos) {
				inner = append(inner, i)
			}
		}

		switch {
		case cl.keyword == "unless":
			u := logic.LogicUnit{
				Role:    logic.RoleCondition,
				Text:    "NOT (" + body + ")",
				Negated: true,
			}
			if len(inner) > 0 {
				u.Operator = comparisons[inner[0]].operator
				u.Value = comparisons[inner[0]].value
			}
			for _, i := range inner {
				absorbed[i] = true
			}
			candidates = append(candidates, candidate{pos: cl.start, unit: u})
		case len(inner) == 0:
			candidates = append(candidates, candidate{
				pos:  cl.start,
				unit: logic.LogicUnit{Role: logic.RoleCondition, Text: body},
			})
		}
	}

	for i, c := range comparisons {
		if absorbed[i] {
			continue
		}
		candidates = append(candidates, candidate{
			pos: c.pos,
			unit: logic.LogicUnit{
				Role:     logic.RoleCondition,
				Text:     c.text(),
				Operator: c.operator,
				Value:    c.value,
			},
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].pos < candidates[j].pos
	})

	out := make([]logic.LogicUnit, len(candidates))
	for i, c := range candidates {
		out[i] = c.unit
	}
	return out
}

// actions builds one action unit per verb outside condition clauses. The
// object runs to punctuation, a condition keyword or the next verb.
func actions(text string, verbs [][]int, clauses []clause) []logic.LogicUnit {
	var out []logic.LogicUnit
	for i, v := range verbs {
		if insideClause(v[0], clauses) {
			continue
		}

		end := len(text)
		if loc := actionStop.FindStringIndex(text[v[1]:]); loc != nil {
			end = v[1] + loc[0]
		}
		if i+1 < len(verbs) && verbs[i+1][0] < end {
			end = verbs[i+1][0]
		}

		name := strings.ToUpper(strings.Join(strings.Fields(text[v[0]:v[1]]), "_"))
		unit := logic.LogicUnit{Role: logic.RoleAction, Text: name}
		if object := actionObject(text[v[1]:end]); object != "" {
			unit.Text = name + " " + object
		}
		out = append(out, unit)
	}
	return out
}

func insideClause(pos int, clauses []clause) bool {
	for _, cl := range clauses {
		if cl.contains(pos) {
			return true
		}
	}
	return false
}

func actionObject(s string) string {
	words := strings.Fields(s)
	for len(words) > 0 {
		last := strings.ToLower(words[len(words)-1])
		if last != "and" && last != "then" && last != "or" {
			break
		}
		words = words[:len(words)-1]
	}
	for len(words) > 0 && articles[strings.ToLower(words[0])] {
		words = words[1:]
	}
	return strings.Join(words, " ")
}
