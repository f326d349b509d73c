package codegen

import (
	"regexp"
	"slices"
	"strings"

	"github.com/c360studio/semlogic/llm"
)

// codeStart matches the first line of a Python program.
var codeStart = regexp.MustCompile(`^(?:def |class |import |from |if |for |while |try:|with |return\b|#|@|print\(|[A-Za-z_][A-Za-z0-9_]*\s*(?:\(|=|\.[A-Za-z_]))`)

// fenceLine matches a markdown fence line with an optional language tag.
var fenceLine = regexp.MustCompile("(?m)^[ \t]*```[A-Za-z0-9_+.-]*[ \t\r]*$")

// actionCall matches upper-case calls such as TURN_ON(AC).
var actionCall = regexp.MustCompile(`\b([A-Z][A-Z0-9]*(?:_[A-Z0-9]+)*)\s*\(`)

// pseudocodeKeywords are upper-case words that are control flow, not actions.
var pseudocodeKeywords = []string{
	"IF", "ELIF", "ELSE", "LOOP", "FOR", "EACH", "WHILE", "IN",
	"NOT", "AND", "OR", "TODO", "THEN", "END", "RETURN",
}

// Clean strips narration and markdown around the code. When the reply holds
// a fenced block only the first block is kept; otherwise lines before the
// first line of code are dropped.
func Clean(raw string) string {
	text, ok := fencedBlock(raw)
	if !ok {
		text = llm.StripCodeFences(raw)
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if codeStart.MatchString(line) {
			return strings.TrimSpace(strings.Join(lines[i:], "\n"))
		}
	}
	return text
}

// fencedBlock returns the body of the first fenced block. An unclosed fence
// runs to the end of the text.
func fencedBlock(text string) (string, bool) {
	open := fenceLine.FindStringIndex(text)
	if open == nil {
		return "", false
	}
	body := text[open[1]:]
	if end := fenceLine.FindStringIndex(body); end != nil {
		body = body[:end[0]]
	}
	return strings.TrimSpace(body), true
}

// StubActions lists the distinct action names called in pseudocode, in
// order of first use.
func StubActions(pseudocode string) []string {
	var out []string
	for _, m := range actionCall.FindAllStringSubmatch(pseudocode, -1) {
		name := m[1]
		if slices.Contains(pseudocodeKeywords, name) || slices.Contains(out, name) {
			continue
		}
		out = append(out, name)
	}
	return out
}
