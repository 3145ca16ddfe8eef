package pipeline

import (
	"regexp"
	"strings"
)

// Filler tokens stripped from raw transcripts. Matched as whole words,
// case-insensitively.
var fillerPattern = regexp.MustCompile(`(?i)\b(um+|uh+|erm+|hmm+)\b[,.]?\s*`)

var (
	whitespacePattern = regexp.MustCompile(`[ \t]+`)
	spaceBeforePunct  = regexp.MustCompile(`\s+([,.!?;:])`)
	missingSpaceAfter = regexp.MustCompile(`([,.!?;:])([^\s\d"')\]])`)
)

// Runs of the same punctuation mark collapse to one. RE2 has no
// backreferences, so each mark gets its own pattern.
var repeatedPunctPatterns = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`,{2,}`), ","},
	{regexp.MustCompile(`\.{2,}`), "."},
	{regexp.MustCompile(`!{2,}`), "!"},
	{regexp.MustCompile(`\?{2,}`), "?"},
}

// postprocessTranscript applies rule-based cleanup to a raw transcript:
// whitespace collapse, filler-token removal, and punctuation spacing. A
// non-empty input never comes back empty; if cleanup removes everything,
// the trimmed original is returned instead.
func postprocessTranscript(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	text := fillerPattern.ReplaceAllString(trimmed, "")
	for _, p := range repeatedPunctPatterns {
		text = p.re.ReplaceAllString(text, p.repl)
	}
	text = spaceBeforePunct.ReplaceAllString(text, "$1")
	text = missingSpaceAfter.ReplaceAllString(text, "$1 $2")
	text = whitespacePattern.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.TrimSpace(strings.Join(lines, "\n"))

	if text == "" {
		return trimmed
	}

	return text
}
