package claimpdf

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/alnah/go-claimpdf/internal/blob"
	"github.com/alnah/go-claimpdf/internal/imageres"
	"github.com/alnah/go-claimpdf/internal/pipeline"
)

// writeTemplate stores a custom page template under dir/templates.
func writeTemplate(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, "templates", name+".html")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// ---------------------------------------------------------------------------
// TestNewPrimaryRenderer - Construction
// ---------------------------------------------------------------------------

func TestNewPrimaryRenderer(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	resolver := imageres.New(store)

	tests := []struct {
		name    string
		opts    []Option
		wantErr error
	}{
		{name: "defaults"},
		{name: "invalid page size", opts: []Option{WithPageSettings(&PageSettings{Size: "a0", Orientation: OrientationPortrait, Margin: 1})}, wantErr: ErrInvalidPageSize},
		{name: "unknown template", opts: []Option{WithAssetNames("", "missing", "")}},
		{name: "broken asset path", opts: []Option{WithAssetPath("/nonexistent/claimpdf")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p, err := NewPrimaryRenderer(resolver, store, tt.opts...)
			switch {
			case tt.name == "defaults":
				if err != nil {
					t.Fatalf("NewPrimaryRenderer() error = %v", err)
				}
				if err := p.Close(); err != nil {
					t.Errorf("Close() error = %v", err)
				}
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
			default:
				if err == nil {
					t.Error("expected error")
				}
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestPrimaryRenderer_Render - Happy Path
// ---------------------------------------------------------------------------

func TestPrimaryRenderer_Render(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	p, conv := newTestPrimary(t, store)
	claim := testClaim("CLM-20260114-0001")
	claim.Images.Illustration = dataURI("image/png", smallPNG(t))
	claim.Images.Signatures[0] = dataURI("image/png", smallPNG(t))

	res, err := p.Render(context.Background(), claim)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	if !res.Success || res.Renderer != RendererPrimary || res.DocumentID != claim.DocumentID {
		t.Errorf("result = %+v", res)
	}
	wantID := "claims/CLM-20260114-0001/CLM-20260114-0001.pdf"
	if res.DocumentStorageID != wantID {
		t.Errorf("DocumentStorageID = %q, want %q", res.DocumentStorageID, wantID)
	}
	if !store.Shared(wantID) {
		t.Error("document not shared")
	}
	if res.DocumentURL == "" || res.PreviewURL == "" || res.DownloadURL == "" {
		t.Errorf("links missing: %+v", res)
	}

	html := conv.lastHTML()
	for _, want := range []string{
		"Garage Central",          // variant "dealer"
		"VF1AB000012345678",       // variant "VIN"
		"48200",                   // variant "odometer"
		"<strong>stalls</strong>", // narrative Markdown
		"<li>replaced sensor</li>",
		"02/04/2023", // registration date reformatted
		"14/01/2026", // submission date
		"7700-555",
		"Signature 3",
		"@page",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("markup missing %q", want)
		}
	}
	if conv.page == nil || conv.page.Size != PageSizeA4 {
		t.Errorf("page settings = %+v", conv.page)
	}

	audit := res.Audit
	if audit == nil {
		t.Fatal("missing audit")
	}
	if audit.Verdict != VerdictOK {
		t.Errorf("Verdict = %s, anomalies %v", audit.Verdict, audit.Anomalies)
	}
	if audit.EmbeddedImages != 3 {
		t.Errorf("EmbeddedImages = %d, want logo, illustration and one signature", audit.EmbeddedImages)
	}
	for _, class := range []string{ImageLogo, ImageIllustration, SignatureClass(0)} {
		if !audit.Embedded(class) {
			t.Errorf("%s not embedded", class)
		}
	}
	if audit.Embedded(SignatureClass(1)) {
		t.Error("empty signature slot reported embedded")
	}
	if !audit.Placeholders.Checked || len(audit.Placeholders.Remaining) != 0 {
		t.Errorf("Placeholders = %+v", audit.Placeholders)
	}
	if audit.Pages != 1 {
		t.Errorf("Pages = %d, want 1", audit.Pages)
	}
}

// An illustration above the image budget is re-encoded under it and still
// embedded; a claim with no signatures is not a key mismatch.
func TestPrimaryRenderer_Render_OversizedIllustration(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	big := noisePNG(t, 1100, 1000)
	if len(big) <= imageres.DefaultImageBudget {
		t.Fatalf("fixture too small: %d bytes", len(big))
	}
	store.Put("uploads/illustration.png", "image/png", big)

	p, _ := newTestPrimary(t, store)
	claim := testClaim("CLM-20260114-0002")
	claim.Images.Illustration = "uploads/illustration.png"

	res, err := p.Render(context.Background(), claim)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	var ill *ImageOutcome
	for i := range res.Audit.Images {
		if res.Audit.Images[i].Class == ImageIllustration {
			ill = &res.Audit.Images[i]
		}
	}
	if ill == nil {
		t.Fatal("illustration missing from audit")
	}
	if !ill.Resolved || !ill.Embedded || !ill.Reencoded {
		t.Errorf("illustration outcome = %+v", ill)
	}
	if ill.Size > imageres.DefaultImageBudget || ill.OriginalSize != len(big) {
		t.Errorf("Size = %d (budget %d), OriginalSize = %d", ill.Size, imageres.DefaultImageBudget, ill.OriginalSize)
	}
	if res.Audit.Verdict == VerdictKeyMismatch {
		t.Errorf("Verdict = %s with no signatures supplied", res.Audit.Verdict)
	}
	for _, img := range res.Audit.Images {
		if strings.HasPrefix(img.Class, "signature") && img.Embedded {
			t.Errorf("%s embedded with no signatures supplied: %+v", img.Class, img)
		}
	}
}

// recordingNarrative records what the renderer hands to the narrative
// converter.
type recordingNarrative struct {
	next   pipeline.NarrativeConverter
	inputs []string
}

func (r *recordingNarrative) ToHTML(ctx context.Context, content string) (string, error) {
	r.inputs = append(r.inputs, content)
	return r.next.ToHTML(ctx, content)
}

// The converter owns narrative preprocessing: it receives the field text
// as typed and highlights come out as a single <mark>.
func TestPrimaryRenderer_Render_NarrativeHighlight(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	p, conv := newTestPrimary(t, store)
	rec := &recordingNarrative{next: p.narrative}
	p.narrative = rec

	claim := testClaim("CLM-20260114-0003")
	claim.Fields["customerComplaint"] = "Engine ==stalls== when cold."

	if _, err := p.Render(context.Background(), claim); err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	var seen bool
	for _, in := range rec.inputs {
		if in == "Engine ==stalls== when cold." {
			seen = true
		}
		if strings.ContainsAny(in, pipeline.MarkStartPlaceholder+pipeline.MarkEndPlaceholder) {
			t.Errorf("converter received preprocessed text %q", in)
		}
	}
	if !seen {
		t.Errorf("converter inputs = %q, want the complaint as typed", rec.inputs)
	}

	html := conv.lastHTML()
	if n := strings.Count(html, "<mark>stalls</mark>"); n != 1 {
		t.Errorf("highlight rendered %d times, want 1", n)
	}
	if strings.Contains(html, "==stalls==") {
		t.Error("highlight markers left in markup")
	}
}

// ---------------------------------------------------------------------------
// TestPrimaryRenderer_Render_Failures - Terminal Errors
// ---------------------------------------------------------------------------

func TestPrimaryRenderer_Render_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		id          string
		opts        []Option
		setup       func(store *blob.Memory, conv *fakeConverter)
		wantErr     error
		wantVerdict Verdict
		wantConvert bool
	}{
		{
			name:        "null logo",
			id:          "CLM-1",
			opts:        []Option{WithLogo("null")},
			wantErr:     ErrLogoRequired,
			wantVerdict: VerdictFailed,
		},
		{
			name:        "missing logo object",
			id:          "CLM-1",
			opts:        []Option{WithLogo("assets/gone.png")},
			wantErr:     ErrLogoRequired,
			wantVerdict: VerdictFailed,
		},
		{
			name:        "empty document ID",
			id:          "",
			wantErr:     ErrInvalidClaim,
			wantVerdict: VerdictFailed,
		},
		{
			name:        "document ID escaping its folder",
			id:          "../CLM-1",
			wantErr:     ErrInvalidClaim,
			wantVerdict: VerdictFailed,
		},
		{
			name:        "backend failure",
			id:          "CLM-1",
			setup:       func(_ *blob.Memory, conv *fakeConverter) { conv.err = ErrBrowserConnect },
			wantErr:     ErrRenderingBackend,
			wantVerdict: VerdictFailed,
			wantConvert: true,
		},
		{
			name:        "near-empty output",
			id:          "CLM-1",
			setup:       func(_ *blob.Memory, conv *fakeConverter) { conv.pdf = []byte("%PDF-1.4\n%%EOF") },
			wantErr:     ErrDocumentTooSmall,
			wantVerdict: VerdictFailed,
			wantConvert: true,
		},
		{
			name:        "storage failure",
			id:          "CLM-1",
			setup:       func(store *blob.Memory, _ *fakeConverter) { store.SaveErr = errors.New("quota") },
			wantErr:     ErrStorage,
			wantVerdict: VerdictFailed,
			wantConvert: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := newStore(t)
			p, conv := newTestPrimary(t, store, tt.opts...)
			if tt.setup != nil {
				tt.setup(store, conv)
			}

			res, err := p.Render(context.Background(), testClaim(tt.id))

			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Render() error = %v, want %v", err, tt.wantErr)
			}
			if res == nil || res.Success || res.Error == "" || !errors.Is(res.Err, tt.wantErr) {
				t.Fatalf("result = %+v", res)
			}
			if res.Audit == nil || res.Audit.Verdict != tt.wantVerdict {
				t.Errorf("audit = %+v, want verdict %s", res.Audit, tt.wantVerdict)
			}
			if (conv.calls > 0) != tt.wantConvert {
				t.Errorf("converter calls = %d, wantConvert %v", conv.calls, tt.wantConvert)
			}
		})
	}
}

func TestPrimaryRenderer_Render_OptionalLogo(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	p, _ := newTestPrimary(t, store, WithLogo("null"), WithOptionalLogo())

	res, err := p.Render(context.Background(), testClaim("CLM-20260114-0003"))
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if res.Audit.Embedded(ImageLogo) {
		t.Error("logo embedded without a source")
	}
}

// ---------------------------------------------------------------------------
// TestPrimaryRenderer_Render_Placeholders - Template Evaluation Check
// ---------------------------------------------------------------------------

func TestPrimaryRenderer_Render_UserTextLooksLikePlaceholder(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	p, conv := newTestPrimary(t, store)
	claim := testClaim("CLM-20260114-0004")
	claim.Fields["customerName"] = "{{.Title}} <?= name ?>"
	claim.Fields["complaint"] = "Display shows {{error}}"
	claim.Parts = []AffectedPart{{PartNumber: "{{x}}", Name: "odd"}}

	res, err := p.Render(context.Background(), claim)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if res.Audit.Verdict != VerdictOK {
		t.Errorf("Verdict = %s", res.Audit.Verdict)
	}
	if html := conv.lastHTML(); strings.Contains(html, "{{") {
		t.Error("user text left a placeholder pattern in the markup")
	}
}

func TestPrimaryRenderer_Render_UnevaluatedTemplate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTemplate(t, dir, "leaky", `<html><body><h1>{{.Title}}</h1><p>{{"{{"}}.Fields.vin{{"}}"}}</p></body></html>`)

	store := newStore(t)
	p, conv := newTestPrimary(t, store, WithAssetPath(dir), WithAssetNames("", "leaky", ""))

	res, err := p.Render(context.Background(), testClaim("CLM-20260114-0005"))

	if !errors.Is(err, ErrUnevaluatedTemplate) {
		t.Fatalf("Render() error = %v, want ErrUnevaluatedTemplate", err)
	}
	if res.Audit.Verdict != VerdictUnevaluatedTemplate {
		t.Errorf("Verdict = %s", res.Audit.Verdict)
	}
	if got := res.Audit.Placeholders.Remaining; len(got) != 1 || got[0] != "{{.Fields.vin}}" {
		t.Errorf("Remaining = %v", got)
	}
	if conv.calls != 0 {
		t.Error("converter called for an unevaluated template")
	}
}

func TestPrimaryRenderer_Render_KeyMismatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTemplate(t, dir, "bare", `<html><body><h1>{{.Title}} {{.DocumentID}}</h1></body></html>`)

	core, logs := observer.New(zapcore.DebugLevel)
	store := newStore(t)
	p, _ := newTestPrimary(t, store,
		WithAssetPath(dir), WithAssetNames("", "bare", ""), WithLogger(zap.New(core)))

	res, err := p.Render(context.Background(), testClaim("CLM-20260114-0006"))
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !res.Success || res.Audit.Verdict != VerdictKeyMismatch {
		t.Errorf("Success = %v, Verdict = %s", res.Success, res.Audit.Verdict)
	}
	if len(res.Audit.Anomalies) == 0 {
		t.Error("expected a resolved-but-not-embedded anomaly")
	}
	entries := logs.FilterMessage("render audit").FilterLevelExact(zapcore.WarnLevel).All()
	if len(entries) != 1 {
		t.Errorf("got %d warn audit entries, want 1", len(entries))
	}
}

func TestPrimaryRenderer_Render_MalformedPartsJSON(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	p, conv := newTestPrimary(t, store)
	claim := testClaim("CLM-20260114-0007")
	claim.Parts = nil
	claim.PartsJSON = `[{"partNumber":`

	res, err := p.Render(context.Background(), claim)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if len(res.Audit.Anomalies) == 0 {
		t.Error("expected anomaly for ignored parts list")
	}
	if !strings.Contains(conv.lastHTML(), "none") {
		t.Error("expected empty parts table")
	}
}

func TestPrimaryRenderer_Render_Cancelled(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	p, conv := newTestPrimary(t, store)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := p.Render(ctx, testClaim("CLM-20260114-0008"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Render() error = %v, want context.Canceled", err)
	}
	if res.Success || conv.calls != 0 {
		t.Errorf("Success = %v, converter calls = %d", res.Success, conv.calls)
	}
}
