package pipeline

import (
	"context"
	"regexp"
	"strings"
)

// Highlight placeholders use Unicode Private Use Area characters so they
// pass through Goldmark untouched without enabling raw HTML.
const (
	MarkStartPlaceholder = "\uE000"
	MarkEndPlaceholder   = "\uE001"
)

var (
	crlfOrCR           = regexp.MustCompile(`\r\n?`)
	multipleBlankLines = regexp.MustCompile(`\n{3,}`)
	highlightPattern   = regexp.MustCompile(`==(.+?)==`)
	// Bulleted lines typed with "•" or "·" in free-text form fields.
	typedBullet = regexp.MustCompile(`(?m)^[ \t]*[•·][ \t]*`)
)

// NarrativePreprocessor prepares free-text claim fields for Markdown
// conversion.
type NarrativePreprocessor interface {
	PreprocessNarrative(ctx context.Context, content string) string
}

// FormTextPreprocessor normalizes text typed into web form fields.
type FormTextPreprocessor struct{}

// PreprocessNarrative normalizes line endings, turns typed bullets into
// Markdown list items, converts ==text== highlights to placeholders and
// collapses runs of blank lines.
func (p *FormTextPreprocessor) PreprocessNarrative(ctx context.Context, content string) string {
	if ctx.Err() != nil {
		return content
	}
	content = crlfOrCR.ReplaceAllString(content, "\n")
	content = strings.TrimSpace(content)
	content = typedBullet.ReplaceAllString(content, "- ")
	content = highlightPattern.ReplaceAllString(content, MarkStartPlaceholder+"$1"+MarkEndPlaceholder)
	return multipleBlankLines.ReplaceAllString(content, "\n\n")
}

// ConvertMarkPlaceholders turns highlight placeholders into <mark> tags
// after Goldmark has escaped everything else.
func ConvertMarkPlaceholders(content string) string {
	return strings.ReplaceAll(
		strings.ReplaceAll(content, MarkStartPlaceholder, "<mark>"),
		MarkEndPlaceholder, "</mark>",
	)
}
