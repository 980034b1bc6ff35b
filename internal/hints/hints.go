// Package hints provides actionable error hints for common failure scenarios.
// Hints are formatted consistently as "\n  hint: <text>" for appending to error messages.
package hints

import (
	"net/http"
	"os"
	"strings"

	"github.com/alnah/go-claimpdf/internal/fileutil"
)

// IsInContainer detects if running inside a Docker container or similar.
var IsInContainer = func() bool {
	return fileutil.FileExists("/.dockerenv")
}

// ForBrowserConnect returns hints for browser connection errors.
func ForBrowserConnect() string {
	var hints []string

	inCI := os.Getenv("CI") != "" ||
		os.Getenv("GITHUB_ACTIONS") != "" ||
		os.Getenv("GITLAB_CI") != "" ||
		os.Getenv("K_SERVICE") != ""

	if (inCI || IsInContainer()) && os.Getenv("ROD_NO_SANDBOX") != "1" {
		hints = append(hints, "set ROD_NO_SANDBOX=1 inside containers")
	}
	if os.Getenv("ROD_BROWSER_BIN") == "" {
		hints = append(hints, "set ROD_BROWSER_BIN to use a specific Chrome")
	}

	return formatHints(hints)
}

// ForTimeout returns a hint about increasing timeout for slow operations.
func ForTimeout() string {
	return format("claims with many photos need more time, use --timeout")
}

// ForConfigNotFound returns hints for config file not found errors.
func ForConfigNotFound(searchedPaths []string) string {
	hint := "use --config /path/to/claimpdf.yaml"
	for _, p := range searchedPaths {
		if strings.Contains(p, ".config/go-claimpdf") {
			hint += " or create " + p
			break
		}
	}
	return format(hint)
}

// ForLockTimeout returns hints when a document ID lock could not be acquired.
func ForLockTimeout(backend string) string {
	if backend == "redis" {
		return format("another allocator holds the key; stale keys expire after locks.ttl")
	}
	return format("another render is allocating IDs; retry or raise locks.wait")
}

// ForExport returns hints for a failed spreadsheet export, keyed on status.
func ForExport(status int) string {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return format("the service account needs edit access to the legacy workbook")
	case http.StatusNotFound:
		return format("check legacy.spreadsheetId and that the scratch sheet still exists")
	case http.StatusTooManyRequests:
		return format("export quota exhausted, retry later")
	case 0:
		return ""
	default:
		return format("the spreadsheet service returned " + http.StatusText(status))
	}
}

// ForCredentials returns hints for missing cloud credentials.
func ForCredentials() string {
	if os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
		return format("set GOOGLE_APPLICATION_CREDENTIALS or run on a workload with a service account")
	}
	return ""
}

// format creates a single hint string with consistent formatting.
func format(hint string) string {
	if hint == "" {
		return ""
	}
	return "\n  hint: " + hint
}

// formatHints joins multiple hints with consistent formatting.
func formatHints(hints []string) string {
	if len(hints) == 0 {
		return ""
	}
	return format(strings.Join(hints, "; "))
}
