package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// Pre-compiled patterns for recovering JSON from completion text.
var (
	// fencePattern matches markdown fences, with or without a json tag.
	fencePattern = regexp.MustCompile("```(?:json|JSON)?")
	// codeFenceLine matches a line holding only a fence and an optional
	// language tag, e.g. "```python".
	codeFenceLine = regexp.MustCompile("(?m)^[ \t]*```[A-Za-z0-9_+.-]*[ \t]*(?:\r?\n|$)")
	// trailingCommaPattern matches trailing commas before ] or }.
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// Sentinel markers some prompts ask the model to wrap its JSON in.
const (
	jsonStartMarker = "<<<JSON_START>>>"
	jsonEndMarker   = "<<<JSON_END>>>"
)

// bulletGlyphs are list markers models sprinkle into otherwise valid JSON.
const bulletGlyphs = "•●▪‣◦·"

var errNoObject = errors.New("no JSON object found")

// Extract recovers the JSON text of exactly one object from a completion.
//
// Fences and sentinel markers are stripped and the text is sliced from the
// first '{' to the last '}'. A slice that parses is returned unchanged, which
// makes Extract idempotent on valid JSON. Otherwise control characters,
// bullet glyphs, // comments and trailing commas are removed and the slice is
// parsed once more. Raw newlines and tabs inside string values become
// spaces on that pass. Braces inside surrounding narration can mis-slice.
func Extract(raw string) (string, error) {
	text := stripFences(raw)

	candidate, ok := sliceObject(text)
	if !ok {
		return "", &ParseFailure{Raw: raw, Err: errNoObject}
	}
	if json.Valid([]byte(candidate)) {
		return candidate, nil
	}

	cleaned, ok := sliceObject(stripNoise(text))
	if ok {
		cleaned, ok = sliceObject(cleanJSON(flattenStrings(cleaned)))
	}
	if !ok {
		return "", &ParseFailure{Raw: raw, Err: errNoObject}
	}

	var probe any
	if err := json.Unmarshal([]byte(cleaned), &probe); err != nil {
		return "", &ParseFailure{Raw: raw, Err: err}
	}
	return cleaned, nil
}

// ExtractInto recovers one JSON object from raw and decodes it into v.
// Decode errors are reported as *ParseFailure.
func ExtractInto(raw string, v any) error {
	obj, err := Extract(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(obj), v); err != nil {
		return &ParseFailure{Raw: raw, Err: err}
	}
	return nil
}

// StripFences removes markdown fences and sentinel markers and trims the
// surrounding whitespace. It is also used on non-JSON completions.
func StripFences(raw string) string {
	return stripFences(raw)
}

// StripCodeFences removes fence lines with any language tag, as models wrap
// pseudocode and Python in them, and trims the result.
func StripCodeFences(raw string) string {
	text := codeFenceLine.ReplaceAllString(raw, "")
	text = strings.TrimSpace(text)
	return strings.TrimSpace(strings.TrimSuffix(text, "```"))
}

func stripFences(raw string) string {
	text := strings.ReplaceAll(raw, jsonStartMarker, "")
	text = strings.ReplaceAll(text, jsonEndMarker, "")
	text = fencePattern.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

func sliceObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// stripNoise removes control characters other than newline and tab, and
// bullet glyphs.
func stripNoise(text string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r < 0x20 || r == 0x7f:
			return -1
		case strings.ContainsRune(bulletGlyphs, r):
			return -1
		}
		return r
	}, text)
}

// flattenStrings replaces raw newlines, carriage returns and tabs inside
// JSON string values with spaces. Whitespace between tokens is kept.
func flattenStrings(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		ch := text[i]
		switch {
		case escaped:
			escaped = false
		case inString && ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString && (ch == '\n' || ch == '\r' || ch == '\t'):
			ch = ' '
		}
		b.WriteByte(ch)
	}
	return b.String()
}

// cleanJSON removes JavaScript-style comments and trailing commas.
func cleanJSON(raw string) string {
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = stripLineComment(line)
	}
	return trailingCommaPattern.ReplaceAllString(strings.Join(lines, "\n"), "$1")
}

// stripLineComment removes a // comment from a JSON line, respecting string
// values:
//
//	"url": "http://example.com" // comment  ->  "url": "http://example.com"
func stripLineComment(line string) string {
	if !strings.Contains(line, "//") {
		return line
	}

	inString := false
	escaped := false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if !inString && ch == '/' && i+1 < len(line) && line[i+1] == '/' {
			return strings.TrimRight(line[:i], " \t")
		}
	}
	return line
}
