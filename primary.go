package claimpdf

import (
	"context"
	"fmt"
	"html/template"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/alnah/go-claimpdf/internal/blob"
	"github.com/alnah/go-claimpdf/internal/dateutil"
	"github.com/alnah/go-claimpdf/internal/fileutil"
	"github.com/alnah/go-claimpdf/internal/imageres"
	"github.com/alnah/go-claimpdf/internal/pipeline"
)

// Compile-time interface checks.
var (
	_ pipeline.NarrativePreprocessor = (*pipeline.FormTextPreprocessor)(nil)
	_ pipeline.NarrativeConverter    = (*pipeline.GoldmarkConverter)(nil)
	_ pipeline.CSSInjector           = (*pipeline.CSSInjection)(nil)
)

// PrimaryRenderer renders a claim through the HTML page template and
// headless Chrome.
type PrimaryRenderer struct {
	cfg          settings
	resolver     *imageres.Resolver
	store        blob.Store
	evaluator    *pipeline.TemplateEvaluator
	narrative    pipeline.NarrativeConverter
	cssInjector  pipeline.CSSInjector
	css          string
	pdfConverter pdfConverter
}

// NewPrimaryRenderer loads the page template and style and prepares the
// browser backend, which starts on first render. Close releases it.
func NewPrimaryRenderer(resolver *imageres.Resolver, store blob.Store, opts ...Option) (*PrimaryRenderer, error) {
	cfg := newSettings(opts)
	if err := cfg.page.Validate(); err != nil {
		return nil, err
	}
	if _, err := dateutil.ParseDateFormat(cfg.dateFormat); err != nil {
		return nil, fmt.Errorf("date format: %w", err)
	}

	src, err := cfg.assets.LoadTemplate(cfg.template)
	if err != nil {
		return nil, fmt.Errorf("loading page template %q: %w", cfg.template, err)
	}
	evaluator, err := pipeline.NewTemplateEvaluator(cfg.template, src, nil)
	if err != nil {
		return nil, err
	}
	css, err := cfg.assets.LoadStyle(cfg.style)
	if err != nil {
		return nil, fmt.Errorf("loading style %q: %w", cfg.style, err)
	}

	return &PrimaryRenderer{
		cfg:          cfg,
		resolver:     resolver,
		store:        store,
		evaluator:    evaluator,
		narrative:    pipeline.NewGoldmarkConverter(),
		cssInjector:  &pipeline.CSSInjection{},
		css:          css,
		pdfConverter: newRodConverter(cfg.timeout),
	}, nil
}

// Close releases the browser.
func (p *PrimaryRenderer) Close() error {
	if p.pdfConverter != nil {
		return p.pdfConverter.Close()
	}
	return nil
}

// claimView is the data bound into the page template. Every map carries
// every key the template reads, empty when absent.
type claimView struct {
	Title      string
	DocumentID string
	Date       string
	Fields     map[string]string
	Narrative  map[string]template.HTML
	Parts      []AffectedPart
	Images     map[string]template.URL
	Signatures []signatureView
}

type signatureView struct {
	Class string
	Label string
	Image template.URL
}

// Render produces, stores and shares the claim document. The returned
// result always carries the audit; err is non-nil exactly when
// res.Success is false. Recovers from internal panics.
func (p *PrimaryRenderer) Render(ctx context.Context, claim ClaimRecord) (res *RenderResult, err error) {
	audit := newAudit(claim.DocumentID, RendererPrimary, p.cfg.now())
	log := p.cfg.logger.With(zap.String("renderer", RendererPrimary), zap.String("documentId", claim.DocumentID))

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("internal error: %v", r)
		}
		audit.finish(err)
		audit.log(log)
		if err != nil {
			res = failed(RendererPrimary, claim.DocumentID, err)
		}
		res.Audit = audit
	}()

	docName, err := documentName(claim.DocumentID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.timeout)
	defer cancel()

	images, err := p.resolveImages(ctx, claim, audit)
	if err != nil {
		return nil, err
	}

	view, err := p.buildView(ctx, claim, images, audit, log)
	if err != nil {
		return nil, err
	}

	markup, err := p.evaluator.Evaluate(ctx, view)
	if markup != "" {
		audit.markPlaceholders(pipeline.FindPlaceholders(markup))
	}
	if err != nil {
		log.Error("template evaluation failed", zap.Error(err))
		return nil, err
	}

	embeds, err := pipeline.ScanImages(markup)
	if err != nil {
		return nil, fmt.Errorf("auditing images: %w", err)
	}
	audit.markEmbeds(embeds)

	markup = p.cssInjector.InjectCSS(ctx, markup, p.css)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pdf, err := p.pdfConverter.ToPDF(ctx, markup, p.cfg.page)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRenderingBackend, err)
	}
	pages, err := validateDocument(pdf)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRenderingBackend, err)
	}
	audit.Pages = pages
	log.Info("document rendered", zap.Int("bytes", len(pdf)), zap.Int("pages", pages))

	return saveDocument(ctx, p.store, RendererPrimary, p.cfg.folder, claim.DocumentID, docName, pdf, log)
}

// resolveImages resolves the fixed logo, the illustration and the signature
// slots. Only the logo can fail the render.
func (p *PrimaryRenderer) resolveImages(ctx context.Context, claim ClaimRecord, audit *AuditReport) (map[string]imageres.Resolved, error) {
	out := make(map[string]imageres.Resolved, 2+SignatureSlots)

	logo := p.resolver.Resolve(ctx, p.cfg.logo, p.cfg.budgets.options(false))
	audit.addImage(ImageLogo, logo)
	if p.cfg.requireLogo && !logo.OK() {
		cause := logo.Err
		if cause == nil {
			cause = fmt.Errorf("empty logo reference %q", p.cfg.logo)
		}
		return nil, fmt.Errorf("%w: %w", ErrLogoRequired, cause)
	}
	out[ImageLogo] = logo

	ill := p.resolver.Resolve(ctx, claim.Images.Illustration, p.cfg.budgets.options(false))
	audit.addImage(ImageIllustration, ill)
	out[ImageIllustration] = ill

	for i, ref := range claim.Images.Signatures {
		class := SignatureClass(i)
		sig := p.resolver.Resolve(ctx, ref, p.cfg.budgets.options(true))
		audit.addImage(class, sig)
		out[class] = sig
	}
	return out, ctx.Err()
}

// buildView normalizes the claim and assembles template data. User text is
// neutralized so it can never read as an unevaluated placeholder.
func (p *PrimaryRenderer) buildView(ctx context.Context, claim ClaimRecord, images map[string]imageres.Resolved, audit *AuditReport, log *zap.Logger) (*claimView, error) {
	fields := NormalizeFields(claim.Fields, p.cfg.dateFormat)
	for k, v := range fields {
		fields[k] = pipeline.NeutralizePlaceholders(v)
	}

	narrative := make(map[string]template.HTML, len(NarrativeFields))
	for _, name := range NarrativeFields {
		html, err := p.narrative.ToHTML(ctx, fields[name])
		if err != nil {
			return nil, fmt.Errorf("converting %s: %w", name, err)
		}
		// #nosec G203 -- goldmark output without raw HTML passthrough
		narrative[name] = template.HTML(html)
	}

	parts, err := ResolveParts(claim)
	if err != nil {
		log.Warn("ignoring malformed parts list", zap.Error(err))
		audit.anomaly("parts list ignored: %v", err)
	}
	for i := range parts {
		parts[i].PartNumber = pipeline.NeutralizePlaceholders(parts[i].PartNumber)
		parts[i].Name = pipeline.NeutralizePlaceholders(parts[i].Name)
	}

	date, err := dateutil.Format(p.cfg.dateFormat, submittedAt(claim, p.cfg.now))
	if err != nil {
		return nil, err
	}

	view := &claimView{
		Title:      p.cfg.title,
		DocumentID: claim.DocumentID,
		Date:       date,
		Fields:     fields,
		Narrative:  narrative,
		Parts:      parts,
		Images: map[string]template.URL{
			// #nosec G203 -- data URIs built from decoded image bytes
			ImageLogo:         template.URL(images[ImageLogo].DataURI()),
			ImageIllustration: template.URL(images[ImageIllustration].DataURI()),
		},
	}
	for i := range SignatureSlots {
		class := SignatureClass(i)
		view.Signatures = append(view.Signatures, signatureView{
			Class: class,
			Label: fmt.Sprintf("Signature %d", i+1),
			// #nosec G203 -- data URI built from decoded image bytes
			Image: template.URL(images[class].DataURI()),
		})
	}
	return view, nil
}

// documentName validates a document ID for use as a blob folder and name.
func documentName(id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("%w: empty document ID", ErrInvalidClaim)
	}
	name, err := fileutil.SanitizeName(id)
	if err != nil || name != id {
		return "", fmt.Errorf("%w: document ID %q is not a valid file name", ErrInvalidClaim, id)
	}
	return name, nil
}

func submittedAt(c ClaimRecord, now func() time.Time) time.Time {
	if c.SubmittedAt.IsZero() {
		return now()
	}
	return c.SubmittedAt
}

// documentFolder is the per-document blob folder.
func documentFolder(root, docName string) string {
	return path.Join(root, docName)
}

// saveDocument stores and shares a rendered PDF as
// <folder>/<docName>/<docName>.pdf.
func saveDocument(ctx context.Context, store blob.Store, renderer, folder, documentID, docName string, pdf []byte, log *zap.Logger) (*RenderResult, error) {
	id, err := store.Save(ctx, documentFolder(folder, docName), docName+".pdf", "application/pdf", pdf)
	if err != nil {
		return nil, fmt.Errorf("%w: saving: %w", ErrStorage, err)
	}
	if err := store.Share(ctx, id); err != nil {
		return nil, fmt.Errorf("%w: sharing %s: %w", ErrStorage, id, err)
	}
	links := store.Links(id)
	log.Info("document saved", zap.String("storageId", id), zap.String("url", links.URL))
	return &RenderResult{
		Success:           true,
		Renderer:          renderer,
		DocumentID:        documentID,
		DocumentStorageID: id,
		DocumentURL:       links.URL,
		PreviewURL:        links.Preview,
		DownloadURL:       links.Download,
	}, nil
}
