package claimpdf

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
)

// DefaultExportURL is the Google Sheets PDF export endpoint at A4 portrait,
// fit-to-width scale and half-inch margins.
const DefaultExportURL = "https://docs.google.com/spreadsheets/d/{spreadsheetId}/export" +
	"?format=pdf&gid={gid}&size=A4&portrait=true&scale=4&fitw=true" +
	"&gridlines=false&printtitle=false&sheetnames=false&pagenum=UNDEFINED" +
	"&top_margin=0.50&bottom_margin=0.50&left_margin=0.50&right_margin=0.50"

// maxExportBytes caps an export response.
const maxExportBytes = 64 << 20

// Exporter turns one worksheet into PDF bytes.
type Exporter interface {
	Export(ctx context.Context, spreadsheetID string, gid int64) ([]byte, error)
}

// ExportError is a non-200 export response.
type ExportError struct {
	URL        string
	StatusCode int
	Body       string // first bytes of the response, for diagnosis
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("%v: HTTP %d from %s: %s", ErrExportHTTP, e.StatusCode, e.URL, e.Body)
}

func (e *ExportError) Unwrap() error {
	return ErrExportHTTP
}

// HTTPExporter performs an authenticated GET against a URL pattern.
type HTTPExporter struct {
	client  *http.Client
	pattern string
}

var _ Exporter = (*HTTPExporter)(nil)

// NewHTTPExporter builds an exporter whose requests carry a bearer token from
// ts. An empty pattern selects DefaultExportURL.
func NewHTTPExporter(ts oauth2.TokenSource, pattern string) *HTTPExporter {
	return newHTTPExporter(oauth2.NewClient(context.Background(), ts), pattern)
}

func newHTTPExporter(client *http.Client, pattern string) *HTTPExporter {
	if pattern == "" {
		pattern = DefaultExportURL
	}
	return &HTTPExporter{client: client, pattern: pattern}
}

// URL expands the pattern for one worksheet.
func (e *HTTPExporter) URL(spreadsheetID string, gid int64) string {
	return strings.NewReplacer(
		"{spreadsheetId}", spreadsheetID,
		"{gid}", strconv.FormatInt(gid, 10),
	).Replace(e.pattern)
}

// Export implements Exporter. Anything but 200 is an *ExportError.
func (e *HTTPExporter) Export(ctx context.Context, spreadsheetID string, gid int64) ([]byte, error) {
	u := e.URL(spreadsheetID, gid)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrExportHTTP, err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExportHTTP, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &ExportError{URL: u, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxExportBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrExportHTTP, err)
	}
	if len(data) > maxExportBytes {
		return nil, fmt.Errorf("%w: response exceeds %d bytes", ErrExportHTTP, maxExportBytes)
	}
	return data, nil
}
