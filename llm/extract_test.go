package llm

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantKey string
	}{
		{
			name:    "plain object",
			input:   `{"steps": []}`,
			wantKey: "steps",
		},
		{
			name:    "markdown json fence",
			input:   "```json\n{\"steps\": []}\n```",
			wantKey: "steps",
		},
		{
			name:    "bare fence with trailing narration",
			input:   "```\n{\"steps\": []}\n```\n\n**Notes:** the plan has no steps.",
			wantKey: "steps",
		},
		{
			name:    "sentinel markers",
			input:   "<<<JSON_START>>>\n{\"steps\": []}\n<<<JSON_END>>>",
			wantKey: "steps",
		},
		{
			name:    "leading narration",
			input:   "Sure! Here is the plan you asked for:\n{\"steps\": [{\"id\": \"S1\"}]}",
			wantKey: "steps",
		},
		{
			name:    "comments and trailing commas",
			input:   "{\n  \"steps\": [\n    {\"id\": \"S1\"},  // first\n    {\"id\": \"S2\"},  // second\n  ],\n}",
			wantKey: "steps",
		},
		{
			name:    "url in string survives comment stripping",
			input:   "{\"url\": \"http://example.com/path\"} // trailing",
			wantKey: "url",
		},
		{
			name:    "bullet glyphs and control characters",
			input:   "• {\"steps\": [\x01{\"id\": \"S1\"}●]}",
			wantKey: "steps",
		},
		{
			name:    "error envelope",
			input:   "```json\n{\"error\": \"clarification_required\", \"fields\": [\"time_window\"]}\n```",
			wantKey: "error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Extract(tt.input)
			require.NoError(t, err)

			var parsed map[string]any
			require.NoError(t, json.Unmarshal([]byte(out), &parsed))
			assert.Contains(t, parsed, tt.wantKey)
		})
	}
}

func TestExtract_ValidInputUnchanged(t *testing.T) {
	valid := `{"steps": [{"id": "S1", "role": "note", "text": "a // b"}]}`

	out, err := Extract(valid)
	require.NoError(t, err)
	assert.Equal(t, valid, out)
}

func TestExtract_Idempotent(t *testing.T) {
	inputs := []string{
		`{"a": 1}`,
		"```json\n{\"a\": [1, 2,],}\n```",
		"Here you go:\n<<<JSON_START>>>{\"a\": {\"b\": \"c\"}} // done<<<JSON_END>>>",
		"• {\"steps\": []}",
	}

	for _, in := range inputs {
		first, err := Extract(in)
		require.NoError(t, err, in)

		second, err := Extract(first)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	}
}

func TestExtract_RobustToWrapping(t *testing.T) {
	obj := `{"steps": [{"id": "S1", "role": "condition", "text": "temperature > 30"}]}`
	wrappers := []string{
		"%s",
		"Here is the JSON:\n%s\nHope this helps.",
		"```json\n%s\n```",
		"```\n%s\n```\nLet me know if you need more.",
		"<<<JSON_START>>>%s<<<JSON_END>>>",
	}

	for _, w := range wrappers {
		out, err := Extract(strings.Replace(w, "%s", obj, 1))
		require.NoError(t, err, w)
		assert.JSONEq(t, obj, out)
	}
}

func TestExtract_RawWhitespaceInStrings(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "tab", input: "{\"steps\": [{\"id\": \"S2\", \"role\": \"action\", \"text\": \"TURN_ON\tAC\"}]}"},
		{name: "newline", input: "{\"steps\": [{\"id\": \"S2\", \"role\": \"action\", \"text\": \"TURN_ON\nAC\"}]}"},
		{name: "carriage return and newline", input: "{\"steps\": [{\"id\": \"S2\", \"role\": \"action\", \"text\": \"TURN_ON\r\nAC\"}]}"},
		{name: "pretty printed with comment", input: "{\n\t\"steps\": [\n\t\t{\"id\": \"S2\", \"role\": \"action\", \"text\": \"TURN_ON\tAC\"}, // act\n\t]\n}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Extract(tt.input)
			require.NoError(t, err)

			var parsed struct {
				Steps []struct {
					Text string `json:"text"`
				} `json:"steps"`
			}
			require.NoError(t, json.Unmarshal([]byte(out), &parsed))
			require.Len(t, parsed.Steps, 1)
			assert.Equal(t, "TURN_ON AC", strings.Join(strings.Fields(parsed.Steps[0].Text), " "))
		})
	}
}

func TestFlattenStrings(t *testing.T) {
	in := "{\n\t\"a\": \"x\ty\",\n\t\"b\": \"q\\\"\tz\"\n}"
	want := "{\n\t\"a\": \"x y\",\n\t\"b\": \"q\\\" z\"\n}"
	assert.Equal(t, want, flattenStrings(in))
}

func TestExtract_Failures(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "no object", input: "I cannot help with that."},
		{name: "array only", input: `["a", "b"]`},
		{name: "unbalanced", input: `{"steps": [`},
		{name: "hopeless", input: `{steps: S1 -> S2}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Extract(tt.input)
			require.Error(t, err)
			assert.True(t, IsParseFailure(err))

			var pf *ParseFailure
			require.ErrorAs(t, err, &pf)
			assert.Equal(t, tt.input, pf.Raw)
		})
	}
}

func TestExtractInto(t *testing.T) {
	var doc struct {
		Steps []struct {
			ID string `json:"id"`
		} `json:"steps"`
	}

	require.NoError(t, ExtractInto("```json\n{\"steps\": [{\"id\": \"S1\"},]}\n```", &doc))
	require.Len(t, doc.Steps, 1)
	assert.Equal(t, "S1", doc.Steps[0].ID)

	err := ExtractInto(`{"steps": "nope"}`, &doc)
	require.Error(t, err)
	assert.True(t, IsParseFailure(err))
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, "IF x:\n    PASS", StripFences("```\nIF x:\n    PASS\n```"))
	assert.Equal(t, "PRINT OK", StripFences("<<<JSON_START>>>\n```json\nPRINT OK\n```\n<<<JSON_END>>>"))
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"python tag", "```python\ndef f():\n    pass\n```", "def f():\n    pass"},
		{"pseudocode tag", "```pseudocode\nIF x > 1:\n    PRINT(x)\n```\n", "IF x > 1:\n    PRINT(x)"},
		{"no fences", "  PRINT(x)  ", "PRINT(x)"},
		{"closing fence on code line", "```py\nprint(1)```", "print(1)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripCodeFences(tt.raw))
		})
	}
}
