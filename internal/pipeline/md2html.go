package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// ErrHTMLConversion indicates narrative conversion failed.
var ErrHTMLConversion = errors.New("HTML conversion failed")

// NarrativeConverter converts a free-text field to an HTML fragment.
type NarrativeConverter interface {
	ToHTML(ctx context.Context, content string) (string, error)
}

// GoldmarkConverter converts Markdown narratives with goldmark. Raw HTML in
// the input is escaped, never passed through.
type GoldmarkConverter struct {
	md  goldmark.Markdown
	pre NarrativePreprocessor
}

// NewGoldmarkConverter creates a GoldmarkConverter with GFM tables,
// strikethrough and autolinks, and hard line wraps.
func NewGoldmarkConverter() *GoldmarkConverter {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.Table,
			extension.Strikethrough,
			extension.Linkify,
		),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithXHTML(),
		),
	)
	return &GoldmarkConverter{md: md, pre: &FormTextPreprocessor{}}
}

// ToHTML converts content to an HTML fragment. Empty input yields "".
// Goldmark has no context support, so conversion runs in a goroutine the
// caller can abandon.
func (c *GoldmarkConverter) ToHTML(ctx context.Context, content string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	content = c.pre.PreprocessNarrative(ctx, content)
	if content == "" {
		return "", nil
	}

	type result struct {
		html string
		err  error
	}
	done := make(chan result, 1)

	go func() {
		var buf bytes.Buffer
		if err := c.md.Convert([]byte(content), &buf); err != nil {
			done <- result{err: fmt.Errorf("%w: %v", ErrHTMLConversion, err)}
			return
		}
		done <- result{html: ConvertMarkPlaceholders(buf.String())}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.html, r.err
	}
}
