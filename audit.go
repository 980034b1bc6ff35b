package claimpdf

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/alnah/go-claimpdf/internal/imageres"
	"github.com/alnah/go-claimpdf/internal/pipeline"
)

// Verdict summarizes an AuditReport.
type Verdict string

// Verdicts, from best to worst.
const (
	VerdictOK                  Verdict = "OK"
	VerdictKeyMismatch         Verdict = "KeyMismatch"
	VerdictUnevaluatedTemplate Verdict = "UnevaluatedTemplate"
	VerdictFailed              Verdict = "Failed"
)

// Image classes.
const (
	ImageLogo         = "logo"
	ImageIllustration = "illustration"
)

// SignatureClass names the i-th signature slot, counting from zero.
func SignatureClass(i int) string {
	return fmt.Sprintf("signature%d", i+1)
}

// ImageOutcome records one image class through resolution and embedding.
type ImageOutcome struct {
	Class        string `json:"class"`
	Source       string `json:"source"`
	Resolved     bool   `json:"resolved"`
	Embedded     bool   `json:"embedded"`
	Size         int    `json:"size,omitempty"`
	OriginalSize int    `json:"originalSize,omitempty"`
	Reencoded    bool   `json:"reencoded,omitempty"`
	Error        string `json:"error,omitempty"`
}

// PlaceholderStatus reports placeholders left after template evaluation.
type PlaceholderStatus struct {
	Checked   bool     `json:"checked"`
	Remaining []string `json:"remaining,omitempty"`
}

// AuditReport is the diagnostic record of one render.
type AuditReport struct {
	DocumentID     string            `json:"documentId"`
	Renderer       string            `json:"renderer"`
	Images         []ImageOutcome    `json:"images"`
	EmbeddedImages int               `json:"embeddedImages"`
	Placeholders   PlaceholderStatus `json:"placeholders"`
	Pages          int               `json:"pages,omitempty"`
	Verdict        Verdict           `json:"verdict"`
	Anomalies      []string          `json:"anomalies,omitempty"`
	Error          string            `json:"error,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
}

func newAudit(documentID, renderer string, now time.Time) *AuditReport {
	return &AuditReport{DocumentID: documentID, Renderer: renderer, CreatedAt: now.UTC()}
}

// addImage records a resolution outcome.
func (a *AuditReport) addImage(class string, r imageres.Resolved) {
	o := ImageOutcome{
		Class:        class,
		Source:       r.Source.String(),
		Resolved:     r.OK(),
		Size:         r.Size,
		OriginalSize: r.OriginalSize,
		Reencoded:    r.Reencoded,
	}
	if r.Err != nil {
		o.Error = r.Err.Error()
	}
	a.Images = append(a.Images, o)
}

// anomaly records a non-fatal finding.
func (a *AuditReport) anomaly(format string, args ...any) {
	a.Anomalies = append(a.Anomalies, fmt.Sprintf(format, args...))
}

// markEmbeds cross-checks resolved images against the <img> elements found
// in the evaluated markup.
func (a *AuditReport) markEmbeds(embeds []pipeline.Embed) {
	a.EmbeddedImages = pipeline.CountEmbeddedImages(embeds)
	present := make(map[string]bool, len(embeds))
	for _, e := range embeds {
		if e.Inline && !e.Empty {
			present[e.Class] = true
		}
	}
	for i := range a.Images {
		img := &a.Images[i]
		img.Embedded = present[img.Class]
		if img.Resolved && !img.Embedded {
			a.anomaly("image %q resolved but not embedded", img.Class)
		}
		if !img.Resolved && img.Embedded {
			a.anomaly("image %q embedded without a resolved source", img.Class)
		}
	}
}

// markPlaceholders records the outcome of the placeholder check.
func (a *AuditReport) markPlaceholders(remaining []string) {
	a.Placeholders = PlaceholderStatus{Checked: true, Remaining: remaining}
}

// resolvedCount counts images that resolved to bytes.
func (a *AuditReport) resolvedCount() int {
	n := 0
	for _, img := range a.Images {
		if img.Resolved {
			n++
		}
	}
	return n
}

// finish sets the verdict. err is the render's terminal error, nil on
// success. Leftover placeholders outrank a generic failure.
func (a *AuditReport) finish(err error) {
	if err != nil {
		a.Error = err.Error()
	}
	switch {
	case len(a.Placeholders.Remaining) > 0:
		a.Verdict = VerdictUnevaluatedTemplate
	case err != nil:
		a.Verdict = VerdictFailed
	case a.Placeholders.Checked && a.resolvedCount() > 0 && a.EmbeddedImages == 0:
		a.Verdict = VerdictKeyMismatch
	default:
		a.Verdict = VerdictOK
	}
}

// Embedded reports whether the image class reached the markup.
func (a *AuditReport) Embedded(class string) bool {
	i := slices.IndexFunc(a.Images, func(o ImageOutcome) bool { return o.Class == class })
	return i >= 0 && a.Images[i].Embedded
}

// MarshalIndent renders the report as the persisted JSON artifact.
func (a *AuditReport) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(a, "", "  ")
}

// log writes the report as one structured entry. Degraded verdicts log at
// warn level.
func (a *AuditReport) log(logger *zap.Logger) {
	fields := []zap.Field{
		zap.String("documentId", a.DocumentID),
		zap.String("renderer", a.Renderer),
		zap.String("verdict", string(a.Verdict)),
		zap.Int("resolvedImages", a.resolvedCount()),
		zap.Int("embeddedImages", a.EmbeddedImages),
		zap.Strings("placeholders", a.Placeholders.Remaining),
		zap.Strings("anomalies", a.Anomalies),
	}
	if a.Verdict == VerdictOK {
		logger.Info("render audit", fields...)
		return
	}
	logger.Warn("render audit", fields...)
}
