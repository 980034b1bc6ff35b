package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Sentinel errors for template evaluation.
var (
	ErrTemplateParse       = errors.New("template parsing failed")
	ErrTemplateEvaluation  = errors.New("template evaluation failed")
	ErrUnevaluatedTemplate = errors.New("unevaluated placeholders in markup")
)

// ImageAttr marks an <img> with its image class ("logo", "signature1"...).
const ImageAttr = "data-image"

// placeholderPattern matches template actions and scriptlet tags that
// survived evaluation.
var placeholderPattern = regexp.MustCompile(`\{\{.*?\}\}|<\?=?.*?\?>`)

// TemplateEvaluator binds data into a page template.
type TemplateEvaluator struct {
	tmpl *template.Template
}

// NewTemplateEvaluator parses src. Missing map keys are evaluation errors.
func NewTemplateEvaluator(name, src string, funcs template.FuncMap) (*TemplateEvaluator, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Funcs(funcs).Parse(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTemplateParse, err)
	}
	return &TemplateEvaluator{tmpl: tmpl}, nil
}

// Evaluate executes the template and fails with ErrUnevaluatedTemplate if
// any placeholder remains in the output.
func (e *TemplateEvaluator) Evaluate(ctx context.Context, data any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := e.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateEvaluation, err)
	}
	out := buf.String()
	if left := FindPlaceholders(out); len(left) > 0 {
		return out, fmt.Errorf("%w: %s", ErrUnevaluatedTemplate, strings.Join(left, ", "))
	}
	return out, nil
}

// FindPlaceholders returns the distinct unevaluated placeholders in markup,
// in order of first appearance.
func FindPlaceholders(markup string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range placeholderPattern.FindAllString(markup, -1) {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

// NeutralizePlaceholders breaks template delimiters in user-supplied text
// so submitted values can never read as unevaluated placeholders. A
// zero-width space keeps the printed text unchanged.
func NeutralizePlaceholders(s string) string {
	if !strings.ContainsAny(s, "{}<?") {
		return s
	}
	return strings.NewReplacer(
		"{{", "{\u200b{",
		"}}", "}\u200b}",
		"<?", "<\u200b?",
		"?>", "?\u200b>",
	).Replace(s)
}

// Embed is one <img> found in evaluated markup.
type Embed struct {
	// Class is the element's data-image attribute, "" when absent.
	Class string
	// Inline is true for data: URIs.
	Inline bool
	// Empty is true when the element has no usable source: a missing src
	// or a data: URI without payload.
	Empty bool
}

// ScanImages lists every <img> element of markup.
func ScanImages(markup string) ([]Embed, error) {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parsing markup: %w", err)
	}
	var out []Embed
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Img {
			out = append(out, embedOf(n))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out, nil
}

func embedOf(n *html.Node) Embed {
	var e Embed
	src := ""
	for _, a := range n.Attr {
		switch a.Key {
		case "src":
			src = strings.TrimSpace(a.Val)
		case ImageAttr:
			e.Class = a.Val
		}
	}
	if strings.HasPrefix(src, "data:") {
		e.Inline = true
		_, payload, _ := strings.Cut(src, ",")
		e.Empty = strings.TrimSpace(payload) == ""
		return e
	}
	e.Empty = src == ""
	return e
}

// CountEmbeddedImages counts inline images with a payload.
func CountEmbeddedImages(embeds []Embed) int {
	n := 0
	for _, e := range embeds {
		if e.Inline && !e.Empty {
			n++
		}
	}
	return n
}
