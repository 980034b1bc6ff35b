package claimpdf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/alnah/go-claimpdf/internal/records"
	"github.com/alnah/go-claimpdf/internal/sequence"
)

// Renderer turns a claim into a stored document.
type Renderer interface {
	Render(ctx context.Context, claim ClaimRecord) (*RenderResult, error)
}

// Compile-time interface checks.
var (
	_ Renderer = (*PrimaryRenderer)(nil)
	_ Renderer = (*LegacyRenderer)(nil)
)

// Record columns written by Submit.
const (
	HeaderStatus      = "Status"
	HeaderRenderer    = "Renderer"
	HeaderDocumentRef = "Document Ref"
	HeaderDocumentURL = "Document URL"
	HeaderDownloadURL = "Download URL"
	HeaderError       = "Error"
	HeaderSubmittedAt = "Submitted At"
	HeaderParts       = "Parts"
)

// Record statuses.
const (
	StatusPending  = "pending"
	StatusRendered = "rendered"
	StatusFailed   = "failed"
)

// Generator runs the primary renderer and falls back to the legacy one
// exactly once. It holds no per-call state and is safe for concurrent use.
type Generator struct {
	cfg     settings
	primary Renderer
	legacy  Renderer
}

// NewGenerator creates a Generator. legacy may be nil, in which case a
// primary failure is final.
func NewGenerator(primary, legacy Renderer, opts ...Option) *Generator {
	return &Generator{cfg: newSettings(opts), primary: primary, legacy: legacy}
}

// Close releases renderers that hold resources.
func (g *Generator) Close() error {
	var errs []error
	for _, r := range []Renderer{g.primary, g.legacy} {
		if c, ok := r.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

// Generate renders the claim. A primary failure is logged and the legacy
// renderer's outcome, success or failure, is final.
func (g *Generator) Generate(ctx context.Context, claim ClaimRecord) RenderResult {
	log := g.cfg.logger.With(zap.String("documentId", claim.DocumentID))

	res := g.attempt(ctx, g.primary, RendererPrimary, claim)
	if res.Success {
		g.persistAudit(ctx, res, log)
		return *res
	}

	reason := res.Err
	if g.legacy == nil {
		log.Error("primary renderer failed, no fallback", zap.Error(reason))
		out := failed(RendererPrimary, claim.DocumentID, fmt.Errorf("%w: %w", ErrNoFallback, reason))
		out.Audit = res.Audit
		g.persistAudit(ctx, out, log)
		return *out
	}

	log.Warn("primary renderer failed, falling back", zap.Error(reason))
	fallback := g.attempt(ctx, g.legacy, RendererLegacy, claim)
	if fallback.Audit != nil {
		fallback.Audit.anomaly("primary renderer failed: %v", reason)
	}
	if !fallback.Success {
		log.Error("fallback renderer failed", zap.Error(fallback.Err))
	}
	g.persistAudit(ctx, fallback, log)
	return *fallback
}

// attempt runs one renderer and normalizes its outcome.
func (g *Generator) attempt(ctx context.Context, r Renderer, name string, claim ClaimRecord) (res *RenderResult) {
	defer func() {
		if p := recover(); p != nil {
			res = failed(name, claim.DocumentID, fmt.Errorf("internal error: %v", p))
		}
	}()
	if r == nil {
		return failed(name, claim.DocumentID, fmt.Errorf("%s renderer not configured", name))
	}
	res, err := r.Render(ctx, claim)
	switch {
	case res == nil && err == nil:
		return failed(name, claim.DocumentID, fmt.Errorf("%s renderer returned no result", name))
	case res == nil:
		return failed(name, claim.DocumentID, err)
	case err != nil && res.Success:
		audit := res.Audit
		res = failed(name, claim.DocumentID, err)
		res.Audit = audit
	case err != nil && res.Err == nil:
		res.Err = err
	case err == nil && !res.Success && res.Err == nil:
		res.Err = errors.New(res.Error)
	}
	return res
}

// persistAudit saves the audit artifact beside the document. Failures are
// logged only.
func (g *Generator) persistAudit(ctx context.Context, res *RenderResult, log *zap.Logger) {
	if !g.cfg.writeAudit || g.cfg.auditStore == nil || res.Audit == nil {
		return
	}
	docName, err := documentName(res.DocumentID)
	if err != nil {
		return
	}
	data, err := res.Audit.MarshalIndent()
	if err != nil {
		log.Warn("audit not encoded", zap.Error(err))
		return
	}
	id, err := g.cfg.auditStore.Save(ctx, documentFolder(g.cfg.folder, docName), docName+"-audit.json", "application/json", data)
	if err != nil {
		log.Warn("audit not saved", zap.Error(err))
		return
	}
	log.Debug("audit saved", zap.String("storageId", id))
}

// Submit reserves a document ID, renders the claim under it and writes the
// outcome back to the record. A reserved ID is never reissued, even when the
// render fails.
func (g *Generator) Submit(ctx context.Context, claim ClaimRecord) RenderResult {
	if g.cfg.records == nil || g.cfg.allocator == nil {
		return *failed("", claim.DocumentID, ErrNoRecordStore)
	}

	at := submittedAt(claim, g.cfg.now)
	prefix, err := sequence.Prefix(g.cfg.idFormat, at)
	if err != nil {
		return *failed("", claim.DocumentID, err)
	}

	id, err := g.cfg.allocator.Reserve(ctx, prefix, g.recordRow(claim, at))
	if err != nil {
		g.cfg.logger.Error("document id not reserved", zap.String("prefix", prefix), zap.Error(err))
		return *failed("", "", err)
	}

	claim.DocumentID = id
	claim.SubmittedAt = at
	res := g.Generate(ctx, claim)

	update := records.Row{
		HeaderStatus:   StatusRendered,
		HeaderRenderer: res.Renderer,
	}
	if res.Success {
		update[HeaderDocumentRef] = res.DocumentStorageID
		update[HeaderDocumentURL] = res.DocumentURL
		update[HeaderDownloadURL] = res.DownloadURL
	} else {
		update[HeaderStatus] = StatusFailed
		update[HeaderError] = res.Error
	}
	if err := g.cfg.records.Update(ctx, id, update); err != nil {
		g.cfg.logger.Error("record not updated",
			zap.String("documentId", id),
			zap.String("status", update[HeaderStatus]),
			zap.Error(err))
	}
	return res
}

// recordRow is the row reserved for a new claim: normalized fields keyed by
// canonical name, plus bookkeeping columns.
func (g *Generator) recordRow(claim ClaimRecord, at time.Time) records.Row {
	row := records.Row{
		HeaderStatus:      StatusPending,
		HeaderSubmittedAt: at.UTC().Format(time.RFC3339),
	}
	for k, v := range NormalizeFields(claim.Fields, g.cfg.dateFormat) {
		if v != "" {
			row[k] = v
		}
	}
	if parts, err := ResolveParts(claim); err == nil && len(parts) > 0 {
		row[HeaderParts] = formatParts(parts)
	}
	return row
}

// formatParts flattens parts into one cell: "number x qty name" per line.
func formatParts(parts []AffectedPart) string {
	lines := make([]string, 0, len(parts))
	for _, p := range parts {
		line := p.PartNumber
		if p.Quantity != 0 {
			line += fmt.Sprintf(" x%d", p.Quantity)
		}
		if p.Name != "" {
			line += " " + p.Name
		}
		lines = append(lines, strings.TrimSpace(line))
	}
	return strings.Join(lines, "\n")
}
