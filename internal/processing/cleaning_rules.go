package processing

import (
	"html"
	"regexp"
	"strings"
)

// EncodingFixRule repairs mojibake left behind by double-encoded pages
type EncodingFixRule struct{}

func (r *EncodingFixRule) Name() string {
	return "encoding_fix"
}

var encodingReplacer = strings.NewReplacer(
	"â€™", "'",
	"â€œ", "\"",
	"â€", "\"",
	"â€“", "-",
	"â€”", "-",
	"â€¦", "...",
	"Â ", " ",
	"Â", "",
	" ", " ",
)

func (r *EncodingFixRule) Apply(content string) (string, error) {
	return encodingReplacer.Replace(content), nil
}

// EntityDecodeRule decodes HTML entities that survive text extraction
type EntityDecodeRule struct{}

func (r *EntityDecodeRule) Name() string {
	return "entity_decode"
}

func (r *EntityDecodeRule) Apply(content string) (string, error) {
	return html.UnescapeString(content), nil
}

// WhitespaceRule collapses runs of spaces and tabs while preserving
// paragraph breaks
type WhitespaceRule struct{}

func (r *WhitespaceRule) Name() string {
	return "whitespace"
}

var (
	spaceRunRegex = regexp.MustCompile(`[ \t]+`)
	blankRunRegex = regexp.MustCompile(`\n{3,}`)
)

func (r *WhitespaceRule) Apply(content string) (string, error) {
	normalized := spaceRunRegex.ReplaceAllString(content, " ")
	normalized = blankRunRegex.ReplaceAllString(normalized, "\n\n")

	lines := strings.Split(normalized, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " ")
	}
	return strings.Join(lines, "\n"), nil
}

// PunctuationRule reduces excessive punctuation runs common in forum posts
type PunctuationRule struct{}

func (r *PunctuationRule) Name() string {
	return "punctuation"
}

var (
	exclamationRegex = regexp.MustCompile(`!{2,}`)
	questionRegex    = regexp.MustCompile(`\?{2,}`)
)

func (r *PunctuationRule) Apply(content string) (string, error) {
	cleaned := exclamationRegex.ReplaceAllString(content, "!")
	cleaned = questionRegex.ReplaceAllString(cleaned, "?")
	return cleaned, nil
}

// DuplicateLineRule drops consecutive identical lines
type DuplicateLineRule struct{}

func (r *DuplicateLineRule) Name() string {
	return "duplicate_lines"
}

func (r *DuplicateLineRule) Apply(content string) (string, error) {
	lines := strings.Split(content, "\n")
	deduped := make([]string, 0, len(lines))

	var previous string
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if i > 0 && trimmed != "" && trimmed == previous {
			continue
		}
		deduped = append(deduped, line)
		previous = trimmed
	}

	return strings.Join(deduped, "\n"), nil
}
