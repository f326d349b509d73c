package heuristic

import (
	"regexp"
	"strings"
)

// VaguePhrase maps a vague expression to the field it leaves unspecified.
type VaguePhrase struct {
	Phrase string
	Field  string
}

// VaguePhrases is checked in order; the first phrase found wins.
var VaguePhrases = []VaguePhrase{
	{Phrase: "too long", Field: "queue_length_threshold"},
	{Phrase: "after a while", Field: "time_window"},
	{Phrase: "a bit", Field: "rate_adjustment"},
	{Phrase: "quickly", Field: "speed_value"},
	{Phrase: "soon", Field: "time_window"},
	{Phrase: "busy", Field: "load_threshold"},
	{Phrase: "overloaded", Field: "load_threshold"},
}

// ActionVerbs is the action vocabulary recognized by the seeder.
var ActionVerbs = []string{
	"turn on", "turn off", "print", "send", "notify", "set",
	"activate", "deactivate", "open", "close", "increase", "decrease",
	"start", "stop", "lock", "unlock",
}

// comparisonOps maps canonical comparison phrasings to operators. Lookup keys
// are lower-case with single spaces.
var comparisonOps = map[string]string{
	"greater than or equal to": ">=",
	"less than or equal to":    "<=",
	"greater than":             ">",
	"more than":                ">",
	"exceeds":                  ">",
	"exceed":                   ">",
	"above":                    ">",
	"over":                     ">",
	"less than":                "<",
	"fewer than":               "<",
	"below":                    "<",
	"under":                    "<",
	"at least":                 ">=",
	"at most":                  "<=",
	"equals":                   "==",
	"equal to":                 "==",
}

// comparisonPhrases is ordered longest first so alternation prefers the
// most specific phrasing.
var comparisonPhrases = []string{
	"greater than or equal to", "less than or equal to",
	"greater than", "more than", "fewer than", "less than",
	"at least", "at most", "equal to", "equals",
	"exceeds", "exceed", "above", "below", "under", "over",
}

// copulas precede adjectives that look like verbs ("is open") and trail
// comparison subjects ("temperature is above 30").
var copulas = map[string]bool{
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"not": true, "isn't": true, "aren't": true, "stays": true, "remains": true,
	"gets": true, "goes": true, "rises": true, "falls": true, "drops": true,
	"climbs": true, "becomes": true,
}

var articles = map[string]bool{"the": true, "a": true, "an": true}

var (
	vaguePatterns = compileVague()

	verbPattern = regexp.MustCompile(`(?i)\b(` + alternation(ActionVerbs) + `)\b`)

	comparisonPattern = regexp.MustCompile(`(?i)\b(` + alternation(comparisonPhrases) + `)\s+(-?\d+(?:\.\d+)?)`)

	clauseKeyword = regexp.MustCompile(`(?i)\b(if|when|unless)\s+`)

	// clauseStop ends an if/when/unless clause. A period ends it only when
	// followed by whitespace or end of text so decimals survive.
	clauseStop = regexp.MustCompile(`(?i)[,;:]|\.(?:\s|$)|\b(?:then|if|when|unless)\b`)

	// subjectBoundary starts the clause a comparison subject is taken from.
	subjectBoundary = regexp.MustCompile(`(?i)[,;:]|\.(?:\s|$)|\b(?:if|when|unless|and|or|then|while)\b`)

	actionStop = regexp.MustCompile(`(?i)[,;:]|\.(?:\s|$)|\b(?:unless|if|when|then)\b`)

	loopPattern = regexp.MustCompile(`(?i)\bfor\s+each\s+(.+?)(?:\s+do\b|[:,;]|\.(?:\s|$)|$)`)
)

func compileVague() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(VaguePhrases))
	for i, v := range VaguePhrases {
		out[i] = regexp.MustCompile(`(?i)\b` + phrasePattern(v.Phrase) + `\b`)
	}
	return out
}

// alternation joins phrases into a regexp alternation, tolerating runs of
// whitespace between words.
func alternation(phrases []string) string {
	parts := make([]string, len(phrases))
	for i, p := range phrases {
		parts[i] = phrasePattern(p)
	}
	return strings.Join(parts, "|")
}

func phrasePattern(phrase string) string {
	return strings.Join(strings.Fields(regexp.QuoteMeta(phrase)), `\s+`)
}

// canonical lower-cases s and collapses whitespace.
func canonical(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
