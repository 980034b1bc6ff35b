package claimpdf

import (
	"errors"

	"github.com/alnah/go-claimpdf/internal/cellguard"
	"github.com/alnah/go-claimpdf/internal/imageres"
	"github.com/alnah/go-claimpdf/internal/lock"
	"github.com/alnah/go-claimpdf/internal/pipeline"
)

// Sentinel errors for library operations.
var (
	ErrInvalidClaim     = errors.New("invalid claim record")
	ErrLogoRequired     = errors.New("mandatory logo could not be resolved")
	ErrRenderingBackend = errors.New("markup-to-document rendering failed")
	ErrDocumentTooSmall = errors.New("rendered document is near-empty")
	ErrExportHTTP       = errors.New("spreadsheet export failed")
	ErrStorage          = errors.New("document storage failed")
	ErrNoFallback       = errors.New("no fallback renderer configured")
	ErrNoRecordStore    = errors.New("no record store configured")

	// TableFull is logged and recorded in the audit when the parts table
	// runs out of rows. It never fails a render.
	ErrTableFull = errors.New("parts table full")

	// Browser errors, wrapped in ErrRenderingBackend by the primary renderer.
	ErrBrowserConnect = errors.New("failed to connect to browser")
	ErrPageCreate     = errors.New("failed to create browser page")
	ErrPageLoad       = errors.New("failed to load page")
	ErrPDFGeneration  = errors.New("PDF generation failed")

	// Page settings validation errors.
	ErrInvalidPageSize    = errors.New("invalid page size")
	ErrInvalidOrientation = errors.New("invalid orientation")
	ErrInvalidMargin      = errors.New("invalid margin")
)

// Errors raised by internal packages, re-exported for errors.Is checks.
var (
	ErrLockTimeout              = lock.ErrTimeout
	ErrStructuralWriteViolation = cellguard.ErrStructuralWriteViolation
	ErrCanonicalTemplate        = cellguard.ErrCanonicalTemplate
	ErrUnevaluatedTemplate      = pipeline.ErrUnevaluatedTemplate
	ErrImageResolution          = imageres.ErrResolution
)
