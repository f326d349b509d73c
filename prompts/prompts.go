// Package prompts holds the prompt templates for each compiler stage.
package prompts

import (
	"fmt"
	"strings"
)

// JSON markers the reasoning prompt asks the model to wrap its answer in.
const (
	JSONStart = "<<<JSON_START>>>"
	JSONEnd   = "<<<JSON_END>>>"
)

// Reasoning returns the prompt that decomposes an instruction into logic
// units. seedJSON is the heuristic draft, passed as a non-binding hint.
func Reasoning(instruction, seedJSON string) string {
	var b strings.Builder
	b.WriteString(`You extract structured logic from a natural-language instruction.
Return a JSON object following the schema exactly.

## Rules

1. Break the instruction into minimal semantic steps.
2. Assign each step a role: "condition", "action", or "note".
3. Use sequential ids: S1, S2, S3...
4. Use depends_on to list the ids of earlier condition steps an action requires.
5. Use operator only from: ">", "<", ">=", "<=", "==", "AND", "OR". Set value only with an operator.
6. For "unless X", emit a condition with text "NOT (X)" and negated = true.
7. Write actions as VERB_UPPER object, e.g. "TURN_ON AC".
8. If a phrase is ambiguous or missing a numeric threshold
   (e.g., "too long", "a bit", "after a while", "quickly", "soon"):
       - set clarification_needed = true
       - set clarification_field to the missing value name
         (e.g., "queue_length_threshold", "time_window", "rate_value").
9. If the instruction cannot be decomposed without missing information, return
   {"error": "clarification_required", "fields": ["<missing_field>", ...]} instead.
10. Never invent numeric values, conditions, or facts.
11. Never paraphrase meaning.
12. Return ONLY a valid JSON object, no markdown, no explanations.

## Instruction

`)
	b.WriteString(instruction)
	b.WriteString(`

## Seed

A rough heuristic draft. Refine it strictly to the schema; do not copy its mistakes.

`)
	b.WriteString(seedJSON)
	b.WriteString(`

## Output Format

Return JSON in this exact pattern:
` + JSONStart + `
{"steps":[
  {"id":"S1","role":"condition","text":"...","depends_on":[],
   "operator":null,"value":null,"negated":false,
   "clarification_needed":false,"clarification_field":null}
]}
` + JSONEnd + `
`)
	return b.String()
}

// Pseudocode returns the prompt that renders a logic plan as pseudocode.
func Pseudocode(planJSON string) string {
	return `Convert this JSON logic plan into clean pseudocode.

## Rules

1. Output ONLY pseudocode.
2. Do NOT include explanations, notes, or meta-commentary.
3. Do NOT mention clarification flags explicitly.
4. Use IF / ELIF / ELSE / LOOP constructs.
5. Write negated conditions as NOT(...).
6. Write actions as calls, e.g. TURN_ON(AC).
7. If clarification_needed = true, insert TODO(<field_name>) inline.
8. Use 4-space indentation.
9. No comments unless strictly required for syntax.

## Logic Plan

` + planJSON + `

Return pseudocode only.
`
}

// Code returns the prompt that turns pseudocode into Python. stubs lists the
// action names that need stub functions.
func Code(pseudocode string, stubs []string) string {
	return `Convert the pseudocode to executable Python 3 code.

## Rules

1. Create a stub function for each action:
       e.g., TURN_ON(x) -> print("TURN_ON", x)
2. Do not use external libraries.
3. Preserve all control flow exactly.
4. Return ONLY Python code: no explanations, no markdown, no natural language.
` + stubSection(stubs) + `
## Pseudocode

` + pseudocode + `

Return Python code only.
`
}

// CodeRepair returns the follow-up prompt sent once when generated code
// does not parse.
func CodeRepair(pseudocode, code, diagnostic string, stubs []string) string {
	return fmt.Sprintf(`The Python code below does not parse.

## Parser Error

%s

## Code

%s

## Pseudocode It Must Implement

%s

## Rules

1. Fix EVERY syntax error; keep the control flow of the pseudocode.
2. Do not use external libraries.
3. Return ONLY the corrected Python code: no explanations, no markdown.
%s
Return Python code only.
`, diagnostic, code, pseudocode, stubSection(stubs))
}

func stubSection(stubs []string) string {
	if len(stubs) == 0 {
		return ""
	}
	return "\n## Required Stubs\n\n" + strings.Join(stubs, ", ") + "\n"
}
