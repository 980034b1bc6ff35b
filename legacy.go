package claimpdf

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alnah/go-claimpdf/internal/blob"
	"github.com/alnah/go-claimpdf/internal/cellguard"
	"github.com/alnah/go-claimpdf/internal/dateutil"
	"github.com/alnah/go-claimpdf/internal/imageres"
	"github.com/alnah/go-claimpdf/internal/lock"
	"github.com/alnah/go-claimpdf/internal/workbook"
)

// LegacyState is a step of the legacy render.
type LegacyState int

// Legacy render states, in order. StateCleanedUp is terminal for both
// outcomes.
const (
	StateStart LegacyState = iota
	StateLockAcquired
	StateScratchCreated
	StateImagesCleared
	StatePopulated
	StateFormatted
	StateExported
	StateSaved
	StateCleanedUp
)

var stateNames = [...]string{
	StateStart:          "START",
	StateLockAcquired:   "LOCK_ACQUIRED",
	StateScratchCreated: "SCRATCH_CREATED",
	StateImagesCleared:  "IMAGES_CLEARED",
	StatePopulated:      "POPULATED",
	StateFormatted:      "FORMATTED",
	StateExported:       "EXPORTED",
	StateSaved:          "SAVED",
	StateCleanedUp:      "CLEANED_UP",
}

func (s LegacyState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "LegacyState(" + strconv.Itoa(int(s)) + ")"
	}
	return stateNames[s]
}

// templateLockKey scopes the legacy lock to one template spreadsheet.
func templateLockKey(spreadsheetID string) string {
	return "template:" + spreadsheetID
}

// LegacyRenderer fills a scratch copy of the spreadsheet template and exports
// it. Runs against the same spreadsheet are serialized by a lock.
type LegacyRenderer struct {
	cfg      settings
	book     workbook.Workbook
	layout   *cellguard.Layout
	exporter Exporter
	store    blob.Store
	locker   lock.Locker
	resolver *imageres.Resolver

	// scratchName mints scratch sheet titles.
	scratchName func() string
	// onState, when set, observes every transition.
	onState func(LegacyState)
}

// NewLegacyRenderer loads and validates the cell layout.
func NewLegacyRenderer(book workbook.Workbook, exporter Exporter, store blob.Store, locker lock.Locker, resolver *imageres.Resolver, opts ...Option) (*LegacyRenderer, error) {
	cfg := newSettings(opts)
	data, err := cfg.assets.LoadLayout(cfg.layout)
	if err != nil {
		return nil, fmt.Errorf("loading cell layout %q: %w", cfg.layout, err)
	}
	layout, err := cellguard.LoadLayout(data)
	if err != nil {
		return nil, err
	}
	if _, err := dateutil.ParseDateFormat(cfg.dateFormat); err != nil {
		return nil, fmt.Errorf("date format: %w", err)
	}
	return &LegacyRenderer{
		cfg:         cfg,
		book:        book,
		layout:      layout,
		exporter:    exporter,
		store:       store,
		locker:      locker,
		resolver:    resolver,
		scratchName: func() string { return "scratch-" + uuid.NewString() },
	}, nil
}

// legacyRun carries one render through the state machine.
type legacyRun struct {
	r       *LegacyRenderer
	claim   ClaimRecord
	docName string
	state   LegacyState
	scratch workbook.Sheet
	audit   *AuditReport
	log     *zap.Logger
}

func (run *legacyRun) advance(s LegacyState) {
	run.log.Debug("legacy state", zap.Stringer("from", run.state), zap.Stringer("to", s))
	run.state = s
	if run.r.onState != nil {
		run.r.onState(s)
	}
}

// Render fills, exports and stores the claim document. Once the lock is
// held, the scratch sheet is deleted and the lock released on every exit
// path; a failed deletion is logged and never replaces the render outcome.
func (l *LegacyRenderer) Render(ctx context.Context, claim ClaimRecord) (res *RenderResult, err error) {
	run := &legacyRun{
		r:     l,
		claim: claim,
		audit: newAudit(claim.DocumentID, RendererLegacy, l.cfg.now()),
		log:   l.cfg.logger.With(zap.String("renderer", RendererLegacy), zap.String("documentId", claim.DocumentID)),
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("internal error: %v", r)
		}
		run.audit.finish(err)
		run.audit.log(run.log)
		if err != nil {
			run.log.Error("legacy render failed", zap.Stringer("state", run.state), zap.Error(err))
			res = failed(RendererLegacy, claim.DocumentID, err)
		}
		res.Audit = run.audit
	}()

	run.docName, err = documentName(claim.DocumentID)
	if err != nil {
		return nil, err
	}

	// The lock wait has its own bound; the render timeout starts once held.
	release, err := l.locker.Acquire(ctx, templateLockKey(l.book.ID()), l.cfg.lockWait)
	if err != nil {
		return nil, fmt.Errorf("acquiring template lock: %w", err)
	}
	run.advance(StateLockAcquired)

	ctx, cancel := context.WithTimeout(ctx, l.cfg.timeout)
	defer cancel()
	defer run.cleanup(ctx, release)

	return run.render(ctx)
}

// cleanup deletes the scratch sheet and releases the lock.
func (run *legacyRun) cleanup(ctx context.Context, release func()) {
	defer release()
	if run.scratch != nil {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := run.r.book.Delete(dctx, run.scratch); err != nil {
			run.log.Error("scratch sheet not deleted", zap.String("sheet", run.scratch.Name()), zap.Error(err))
		} else {
			run.log.Debug("scratch sheet deleted", zap.String("sheet", run.scratch.Name()))
		}
	}
	run.advance(StateCleanedUp)
}

func (run *legacyRun) render(ctx context.Context) (*RenderResult, error) {
	l := run.r
	tmpl, err := l.book.Sheet(ctx, l.layout.TemplateSheet)
	if err != nil {
		return nil, err
	}
	scratch, err := l.book.Clone(ctx, tmpl, l.scratchName())
	if err != nil {
		return nil, fmt.Errorf("cloning template: %w", err)
	}
	run.scratch = scratch
	run.advance(StateScratchCreated)

	cleared, err := scratch.ClearImages(ctx)
	if err != nil {
		return nil, fmt.Errorf("clearing images: %w", err)
	}
	run.log.Debug("images cleared", zap.Int("count", cleared))
	run.advance(StateImagesCleared)

	merges, err := scratch.Merges(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading merges: %w", err)
	}
	guard := cellguard.New(l.layout, cellguard.NewMergeMap(merges), run.log)
	if err := run.populate(ctx, guard); err != nil {
		return nil, err
	}
	run.advance(StatePopulated)

	if err := scratch.Format(ctx, l.layout.Format); err != nil {
		return nil, fmt.Errorf("formatting: %w", err)
	}
	run.advance(StateFormatted)

	pdf, err := l.exporter.Export(ctx, l.book.ID(), scratch.GID())
	if err != nil {
		return nil, err
	}
	pages, err := validateDocument(pdf)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExportHTTP, err)
	}
	run.audit.Pages = pages
	run.advance(StateExported)

	res, err := saveDocument(ctx, l.store, RendererLegacy, l.cfg.folder, run.claim.DocumentID, run.docName, pdf, run.log)
	if err != nil {
		return nil, err
	}
	run.advance(StateSaved)
	return res, nil
}

// populate writes every field, the parts table and the images through the
// guard. Only guard violations and write errors fail the render.
func (run *legacyRun) populate(ctx context.Context, guard *cellguard.Guard) error {
	l := run.r
	fields := NormalizeFields(run.claim.Fields, l.cfg.dateFormat)
	fields[FieldDocumentID] = run.claim.DocumentID
	date, err := dateutil.Format(l.cfg.dateFormat, submittedAt(run.claim, l.cfg.now))
	if err != nil {
		return err
	}
	fields[FieldDate] = date

	for _, name := range l.layout.FieldNames() {
		if err := guard.Write(ctx, run.scratch, name, fields[name]); err != nil {
			return err
		}
	}

	parts, err := ResolveParts(run.claim)
	if err != nil {
		run.log.Warn("ignoring malformed parts list", zap.Error(err))
		run.audit.anomaly("parts list ignored: %v", err)
	}
	if err := run.writeParts(ctx, guard, parts); err != nil {
		return err
	}

	return run.placeImages(ctx, guard)
}

// writeParts fills the first blank rows of the parts table. Rows that do not
// fit are dropped with a TableFull log entry.
func (run *legacyRun) writeParts(ctx context.Context, guard *cellguard.Guard, parts []AffectedPart) error {
	table := run.r.layout.Parts
	if len(parts) == 0 || table.StartRow == 0 {
		return nil
	}

	row := table.StartRow
	for i, part := range parts {
		for ; row <= table.EndRow; row++ {
			v, err := run.scratch.Value(ctx, cellguard.Cell{Row: row, Col: table.KeyColumn})
			if err != nil {
				return fmt.Errorf("reading parts table row %d: %w", row, err)
			}
			if strings.TrimSpace(v) == "" {
				break
			}
		}
		if row > table.EndRow {
			dropped := len(parts) - i
			run.log.Warn("parts table full",
				zap.Error(ErrTableFull),
				zap.Int("written", i),
				zap.Int("dropped", dropped))
			run.audit.anomaly("%v: %d of %d parts dropped", ErrTableFull, dropped, len(parts))
			return nil
		}

		values := map[string]string{
			cellguard.PartNumber: part.PartNumber,
			cellguard.PartName:   part.Name,
		}
		if part.Quantity != 0 {
			values[cellguard.PartQuantity] = strconv.Itoa(part.Quantity)
		}
		// A blank key cell would leave the row looking free.
		if values[cellguard.PartNumber] == "" {
			values[cellguard.PartNumber] = "-"
		}
		for _, attr := range []string{cellguard.PartNumber, cellguard.PartName, cellguard.PartQuantity} {
			col, ok := table.Columns[attr]
			if !ok {
				continue
			}
			label := fmt.Sprintf("parts[%d].%s", i, attr)
			if err := guard.WriteAt(ctx, run.scratch, label, cellguard.Cell{Row: row, Col: col}, values[attr]); err != nil {
				return err
			}
		}
		row++
	}
	return nil
}

// placeImages resolves the illustration and signatures, saves each to the
// document folder and places it at its guarded anchor. Image failures are
// recorded, never fatal.
func (run *legacyRun) placeImages(ctx context.Context, guard *cellguard.Guard) error {
	l := run.r
	type slot struct {
		class     string
		ref       string
		signature bool
	}
	slots := []slot{{class: ImageIllustration, ref: run.claim.Images.Illustration}}
	for i, ref := range run.claim.Images.Signatures {
		slots = append(slots, slot{class: SignatureClass(i), ref: ref, signature: true})
	}

	for _, s := range slots {
		if _, ok := l.layout.Images[s.class]; !ok {
			continue
		}
		img := l.resolver.Resolve(ctx, s.ref, l.cfg.budgets.options(s.signature))
		run.audit.addImage(s.class, img)
		if !img.OK() {
			continue
		}
		target, err := guard.Target(run.scratch, s.class)
		if err != nil {
			return err
		}
		url, err := run.saveImage(ctx, s.class, img)
		if err != nil {
			run.log.Warn("image not saved", zap.String("class", s.class), zap.Error(err))
			run.audit.anomaly("image %q not saved: %v", s.class, err)
			continue
		}
		if err := run.scratch.PlaceImage(ctx, target, url); err != nil {
			return fmt.Errorf("placing %s at %s: %w", s.class, target.A1(), err)
		}
		run.audit.Images[len(run.audit.Images)-1].Embedded = true
		run.audit.EmbeddedImages++
	}
	return nil
}

// saveImage stores an image beside the document and returns a URL the
// spreadsheet can fetch.
func (run *legacyRun) saveImage(ctx context.Context, class string, img imageres.Resolved) (string, error) {
	store := run.r.store
	name := class + extensionFor(img.MIMEType)
	id, err := store.Save(ctx, documentFolder(run.r.cfg.folder, run.docName), name, img.MIMEType, img.Data)
	if err != nil {
		return "", err
	}
	if err := store.Share(ctx, id); err != nil {
		return "", err
	}
	links := store.Links(id)
	if links.Download != "" {
		return links.Download, nil
	}
	if links.URL == "" {
		return "", errors.New("store returned no URL")
	}
	return links.URL, nil
}

func extensionFor(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	}
	return ""
}
