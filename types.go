package claimpdf

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/alnah/go-claimpdf/internal/assets"
	"github.com/alnah/go-claimpdf/internal/blob"
	"github.com/alnah/go-claimpdf/internal/dateutil"
	"github.com/alnah/go-claimpdf/internal/imageres"
	"github.com/alnah/go-claimpdf/internal/records"
	"github.com/alnah/go-claimpdf/internal/sequence"
)

// Renderer names reported in RenderResult and AuditReport.
const (
	RendererPrimary = "primary"
	RendererLegacy  = "legacy"
)

// ClaimRecord is one submission.
type ClaimRecord struct {
	DocumentID string `json:"documentId"`
	// Fields holds the submitted scalar and narrative fields, loosely
	// keyed. Historical key variants are reconciled by NormalizeFields.
	Fields map[string]string `json:"fields"`
	Parts  []AffectedPart    `json:"parts,omitempty"`
	// PartsJSON is the JSON-encoded part list sent by older callers. It is
	// read only when Parts is empty.
	PartsJSON   string    `json:"partsJson,omitempty"`
	Images      ImageRefs `json:"images"`
	SubmittedAt time.Time `json:"submittedAt"`
	// DocumentRef is written back with the rendered document's storage id.
	DocumentRef string `json:"documentRef,omitempty"`
}

// AffectedPart is one row of the affected-parts table.
type AffectedPart struct {
	PartNumber string `json:"partNumber"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
}

// SignatureSlots is the number of signature boxes on a claim.
const SignatureSlots = 3

// ImageRefs are the claim-supplied image references.
type ImageRefs struct {
	Illustration string                 `json:"illustration"`
	Signatures   [SignatureSlots]string `json:"signatures"`
}

// RenderResult is the outcome of a render. Failures carry Success false and
// a human-readable Error; Err keeps the wrapped error for errors.Is.
type RenderResult struct {
	Success           bool         `json:"success"`
	Renderer          string       `json:"renderer"`
	DocumentID        string       `json:"documentId"`
	DocumentStorageID string       `json:"documentStorageId,omitempty"`
	DocumentURL       string       `json:"documentUrl,omitempty"`
	PreviewURL        string       `json:"previewUrl,omitempty"`
	DownloadURL       string       `json:"downloadUrl,omitempty"`
	Error             string       `json:"error,omitempty"`
	Err               error        `json:"-"`
	Audit             *AuditReport `json:"audit,omitempty"`
}

// failed builds a failure result.
func failed(renderer, documentID string, err error) *RenderResult {
	return &RenderResult{
		Renderer:   renderer,
		DocumentID: documentID,
		Error:      err.Error(),
		Err:        err,
	}
}

// Page size constants.
const (
	PageSizeLetter = "letter"
	PageSizeA4     = "a4"
	PageSizeLegal  = "legal"
)

// Orientation constants.
const (
	OrientationPortrait  = "portrait"
	OrientationLandscape = "landscape"
)

// Margin bounds in inches.
const (
	MinMargin     = 0.25
	MaxMargin     = 3.0
	DefaultMargin = 0.4
)

// PageSettings configures PDF page dimensions of the primary renderer.
type PageSettings struct {
	Size        string  // "letter", "a4", "legal"
	Orientation string  // "portrait", "landscape"
	Margin      float64 // inches, applied to all sides
}

// DefaultPageSettings returns A4 portrait.
func DefaultPageSettings() *PageSettings {
	return &PageSettings{
		Size:        PageSizeA4,
		Orientation: OrientationPortrait,
		Margin:      DefaultMargin,
	}
}

// Validate checks that page settings are valid.
// Returns nil if p is nil (nil means use defaults).
func (p *PageSettings) Validate() error {
	if p == nil {
		return nil
	}
	switch strings.ToLower(p.Size) {
	case PageSizeLetter, PageSizeA4, PageSizeLegal:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidPageSize, p.Size)
	}
	switch strings.ToLower(p.Orientation) {
	case OrientationPortrait, OrientationLandscape:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidOrientation, p.Orientation)
	}
	if p.Margin < MinMargin || p.Margin > MaxMargin {
		return fmt.Errorf("%w: %.2f (must be between %.2f and %.2f)", ErrInvalidMargin, p.Margin, MinMargin, MaxMargin)
	}
	return nil
}

// dimensions returns width and height in inches.
func (p *PageSettings) dimensions() (w, h float64) {
	switch strings.ToLower(p.Size) {
	case PageSizeLetter:
		w, h = 8.5, 11
	case PageSizeLegal:
		w, h = 8.5, 14
	default:
		w, h = 8.27, 11.69
	}
	if strings.EqualFold(p.Orientation, OrientationLandscape) {
		w, h = h, w
	}
	return w, h
}

// Option configures the renderers and the generator.
type Option func(*settings)

// settings is shared by every constructor; each reads what it needs.
type settings struct {
	logger      *zap.Logger
	timeout     time.Duration
	folder      string
	title       string
	logo        string
	requireLogo bool
	dateFormat  string
	page        *PageSettings
	budgets     imageBudgets
	assets      assets.AssetLoader
	style       string
	template    string
	layout      string
	lockWait    time.Duration
	writeAudit  bool
	auditStore  blob.Store
	records     records.Store
	allocator   *sequence.Allocator
	idFormat    string
	now         func() time.Time
}

type imageBudgets struct {
	signature int
	image     int
}

func (b imageBudgets) options(signature bool) imageres.Options {
	if signature {
		return imageres.Options{MaxBytes: b.signature, Signature: true}
	}
	return imageres.Options{MaxBytes: b.image}
}

// defaultTimeout bounds one render attempt.
const defaultTimeout = 60 * time.Second

// DefaultFolder is the blob folder rendered documents are saved under.
const DefaultFolder = "claims"

// DefaultTitle is the printed document heading.
const DefaultTitle = "Warranty Claim"

func newSettings(opts []Option) settings {
	s := settings{
		logger:      zap.NewNop(),
		timeout:     defaultTimeout,
		folder:      DefaultFolder,
		title:       DefaultTitle,
		requireLogo: true,
		dateFormat:  dateutil.DefaultDisplayFormat,
		page:        DefaultPageSettings(),
		budgets:     imageBudgets{signature: imageres.DefaultSignatureBudget, image: imageres.DefaultImageBudget},
		assets:      assets.NewEmbeddedLoader(),
		style:       assets.DefaultStyleName,
		template:    assets.DefaultTemplateName,
		layout:      assets.DefaultLayoutName,
		writeAudit:  true,
		idFormat:    dateutil.DefaultPrefixFormat,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTimeout bounds one render attempt.
// Panics if d <= 0 (programmer error, similar to time.NewTicker).
func WithTimeout(d time.Duration) Option {
	if d <= 0 {
		panic("claimpdf: WithTimeout duration must be positive")
	}
	return func(s *settings) {
		s.timeout = d
	}
}

// WithFolder sets the blob folder documents are saved under.
func WithFolder(folder string) Option {
	return func(s *settings) {
		if folder != "" {
			s.folder = folder
		}
	}
}

// WithTitle sets the printed document heading.
func WithTitle(title string) Option {
	return func(s *settings) {
		if title != "" {
			s.title = title
		}
	}
}

// WithLogo sets the fixed logo image reference.
func WithLogo(ref string) Option {
	return func(s *settings) {
		s.logo = ref
	}
}

// WithOptionalLogo lets the primary renderer proceed without a logo.
func WithOptionalLogo() Option {
	return func(s *settings) {
		s.requireLogo = false
	}
}

// WithDateFormat sets the printed date format (see internal/dateutil).
func WithDateFormat(format string) Option {
	return func(s *settings) {
		if format != "" {
			s.dateFormat = format
		}
	}
}

// WithPageSettings sets the primary renderer's page settings.
func WithPageSettings(p *PageSettings) Option {
	return func(s *settings) {
		if p != nil {
			s.page = p
		}
	}
}

// WithImageBudgets overrides the per-class byte budgets. Zero keeps the
// default.
func WithImageBudgets(signature, image int) Option {
	return func(s *settings) {
		if signature > 0 {
			s.budgets.signature = signature
		}
		if image > 0 {
			s.budgets.image = image
		}
	}
}

// WithAssetPath loads templates, styles and layouts from dir first and
// falls back to the embedded ones. Invalid directories are reported by the
// constructors.
func WithAssetPath(dir string) Option {
	return func(s *settings) {
		if dir == "" {
			return
		}
		resolver, err := assets.NewAssetResolver(dir)
		if err != nil {
			s.assets = brokenLoader{err: err}
			return
		}
		s.assets = resolver
	}
}

// WithAssetNames selects the style, page template and cell layout by name.
// Empty names keep the defaults.
func WithAssetNames(style, template, layout string) Option {
	return func(s *settings) {
		if style != "" {
			s.style = style
		}
		if template != "" {
			s.template = template
		}
		if layout != "" {
			s.layout = layout
		}
	}
}

// WithLockWait bounds how long the legacy renderer and the generator wait
// for their locks.
func WithLockWait(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.lockWait = d
		}
	}
}

// WithRecords lets the generator submit claims: IDs are reserved through
// alloc and results written back to store.
func WithRecords(store records.Store, alloc *sequence.Allocator) Option {
	return func(s *settings) {
		s.records = store
		s.allocator = alloc
	}
}

// WithIDFormat sets the date prefix format of minted document IDs.
func WithIDFormat(format string) Option {
	return func(s *settings) {
		if format != "" {
			s.idFormat = format
		}
	}
}

// WithAudit enables or disables saving the audit artifact beside the
// document.
func WithAudit(enabled bool) Option {
	return func(s *settings) {
		s.writeAudit = enabled
	}
}

// WithAuditStore sets where the generator saves audit artifacts.
func WithAuditStore(store blob.Store) Option {
	return func(s *settings) {
		s.auditStore = store
	}
}

// withClock is used by tests to pin time.
func withClock(now func() time.Time) Option {
	return func(s *settings) {
		s.now = now
	}
}

// brokenLoader reports an asset directory error on first use.
type brokenLoader struct{ err error }

func (b brokenLoader) LoadStyle(string) (string, error)    { return "", b.err }
func (b brokenLoader) LoadTemplate(string) (string, error) { return "", b.err }
func (b brokenLoader) LoadLayout(string) ([]byte, error)   { return nil, b.err }

var _ assets.AssetLoader = brokenLoader{}
