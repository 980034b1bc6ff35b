package main

import (
	"errors"
	"os"

	claimpdf "github.com/alnah/go-claimpdf"
	"github.com/alnah/go-claimpdf/internal/assets"
	"github.com/alnah/go-claimpdf/internal/config"
	"github.com/alnah/go-claimpdf/internal/dateutil"
	"github.com/alnah/go-claimpdf/internal/hints"
)

// Exit codes for the claimpdf CLI.
// Follows Unix conventions: 0=success, 1=general, 2=usage, and custom codes < 126.
const (
	ExitSuccess     = 0 // Document rendered, ID minted, or checks passed
	ExitGeneral     = 1 // General/unexpected error, including failed renders
	ExitUsage       = 2 // Invalid flags, config, or claim
	ExitIO          = 3 // Claim not readable, result not writable, storage failure
	ExitBrowser     = 4 // Browser/Chrome errors
	ExitLockTimeout = 5 // Lock not acquired within the configured wait
)

// exitCodeFor returns the appropriate exit code for an error.
// It uses errors.Is to check wrapped errors, so callers must use fmt.Errorf("%w", err).
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	if errors.Is(err, claimpdf.ErrLockTimeout) {
		return ExitLockTimeout
	}

	if errors.Is(err, claimpdf.ErrBrowserConnect) ||
		errors.Is(err, claimpdf.ErrPageCreate) ||
		errors.Is(err, claimpdf.ErrPageLoad) ||
		errors.Is(err, claimpdf.ErrPDFGeneration) {
		return ExitBrowser
	}

	if errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrPermission) ||
		errors.Is(err, ErrNoInput) ||
		errors.Is(err, ErrReadClaim) ||
		errors.Is(err, ErrWriteResult) ||
		errors.Is(err, claimpdf.ErrStorage) {
		return ExitIO
	}

	if errors.Is(err, ErrUsage) ||
		errors.Is(err, ErrParseClaim) ||
		errors.Is(err, config.ErrConfigNotFound) ||
		errors.Is(err, config.ErrEmptyConfigName) ||
		errors.Is(err, config.ErrConfigParse) ||
		errors.Is(err, config.ErrFieldTooLong) ||
		errors.Is(err, config.ErrInvalidValue) ||
		errors.Is(err, config.ErrMissingValue) ||
		errors.Is(err, dateutil.ErrInvalidDateFormat) ||
		errors.Is(err, assets.ErrStyleNotFound) ||
		errors.Is(err, assets.ErrTemplateNotFound) ||
		errors.Is(err, assets.ErrLayoutNotFound) ||
		errors.Is(err, assets.ErrInvalidAssetName) ||
		errors.Is(err, assets.ErrInvalidBasePath) ||
		errors.Is(err, claimpdf.ErrInvalidClaim) ||
		errors.Is(err, claimpdf.ErrInvalidPageSize) ||
		errors.Is(err, claimpdf.ErrInvalidOrientation) ||
		errors.Is(err, claimpdf.ErrInvalidMargin) {
		return ExitUsage
	}

	return ExitGeneral
}

// hintFor returns an actionable hint for err, or "". Lock timeout hints
// depend on the backend and are attached by withLockHint instead.
func hintFor(err error) string {
	var exportErr *claimpdf.ExportError
	switch {
	case err == nil, errors.Is(err, claimpdf.ErrLockTimeout):
		return ""
	case errors.Is(err, claimpdf.ErrBrowserConnect):
		return hints.ForBrowserConnect()
	case errors.Is(err, claimpdf.ErrPDFGeneration), errors.Is(err, claimpdf.ErrPageLoad):
		return hints.ForTimeout()
	case errors.As(err, &exportErr):
		return hints.ForExport(exportErr.StatusCode)
	case errors.Is(err, ErrCredentials):
		return hints.ForCredentials()
	case errors.Is(err, config.ErrConfigNotFound):
		return hints.ForConfigNotFound(searchedConfigPaths())
	}
	return ""
}

// hintedError appends a hint to an error's message without hiding it from
// errors.Is.
type hintedError struct {
	err  error
	hint string
}

func (e *hintedError) Error() string { return e.err.Error() + e.hint }
func (e *hintedError) Unwrap() error { return e.err }

// withLockHint attaches the lock-timeout hint for backend to err.
func withLockHint(err error, backend string) error {
	if err == nil || !errors.Is(err, claimpdf.ErrLockTimeout) {
		return err
	}
	return &hintedError{err: err, hint: hints.ForLockTimeout(backend)}
}
