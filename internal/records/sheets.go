package records

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/sheets/v4"

	"github.com/alnah/go-claimpdf/internal/cellguard"
)

// Sheets stores records as rows of one Google Sheets tab. Row 1 holds the
// headers.
type Sheets struct {
	svc           *sheets.Service
	spreadsheetID string
	sheet         string
	idHeader      string
}

// NewSheets creates a Sheets-backed store on tab sheet of spreadsheetID.
func NewSheets(svc *sheets.Service, spreadsheetID, sheet, idHeader string) *Sheets {
	if idHeader == "" {
		idHeader = DefaultIDHeader
	}
	return &Sheets{svc: svc, spreadsheetID: spreadsheetID, sheet: sheet, idHeader: idHeader}
}

func (s *Sheets) a1(rng string) string {
	return "'" + strings.ReplaceAll(s.sheet, "'", "''") + "'!" + rng
}

// table reads the whole tab. exists is false when the tab is missing.
func (s *Sheets) table(ctx context.Context) (headers []string, rows [][]string, exists bool, err error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.a1("A:ZZZ")).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).Do()
	if err != nil {
		if isMissingRange(err) {
			return nil, nil, false, nil
		}
		return nil, nil, false, fmt.Errorf("reading %s: %w", s.sheet, err)
	}
	for i, r := range resp.Values {
		cells := make([]string, len(r))
		for j, v := range r {
			cells[j] = fmt.Sprint(v)
		}
		if i == 0 {
			headers = cells
			continue
		}
		rows = append(rows, cells)
	}
	return headers, rows, true, nil
}

// ListIDs implements Store.
func (s *Sheets) ListIDs(ctx context.Context, prefix string) ([]string, error) {
	headers, rows, exists, err := s.table(ctx)
	if err != nil || !exists {
		return nil, err
	}
	col := indexOf(headers, s.idHeader)
	if col < 0 {
		return nil, nil
	}
	var ids []string
	for _, r := range rows {
		if col < len(r) && hasPrefix(r[col], prefix) {
			ids = append(ids, r[col])
		}
	}
	return ids, nil
}

// Append implements Store. The tab is created on first use.
func (s *Sheets) Append(ctx context.Context, row Row) error {
	if row[s.idHeader] == "" {
		return ErrMissingID
	}
	headers, _, exists, err := s.table(ctx)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.createTab(ctx); err != nil {
			return err
		}
	}
	fresh := len(headers) == 0
	if fresh {
		headers = []string{s.idHeader}
	}
	if headers, err = s.ensureHeaders(ctx, headers, row, fresh); err != nil {
		return err
	}

	_, err = s.svc.Spreadsheets.Values.Append(s.spreadsheetID, s.a1("A1"), &sheets.ValueRange{
		Values: [][]interface{}{toValues(headers, nil, row)},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("appending to %s: %w", s.sheet, err)
	}
	return nil
}

// Update implements Store.
func (s *Sheets) Update(ctx context.Context, id string, row Row) error {
	headers, rows, exists, err := s.table(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	col := indexOf(headers, s.idHeader)
	at := -1
	for i, r := range rows {
		if col >= 0 && col < len(r) && r[col] == id {
			at = i
			break
		}
	}
	if at < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if headers, err = s.ensureHeaders(ctx, headers, row, false); err != nil {
		return err
	}

	sheetRow := at + 2 // 1-based, after the header row
	_, err = s.svc.Spreadsheets.Values.Update(s.spreadsheetID, s.a1(fmt.Sprintf("A%d", sheetRow)), &sheets.ValueRange{
		Values: [][]interface{}{toValues(headers, rows[at], row)},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("updating %s row %d: %w", s.sheet, sheetRow, err)
	}
	return nil
}

// ensureHeaders appends headers missing from row to the header row. force
// writes the row even when nothing was added, for a freshly created tab.
func (s *Sheets) ensureHeaders(ctx context.Context, headers []string, row Row, force bool) ([]string, error) {
	merged, added := mergeHeaders(headers, row)
	if len(added) == 0 && !force {
		return merged, nil
	}
	vals := make([]interface{}, len(merged))
	for i, h := range merged {
		vals[i] = h
	}
	rng := s.a1("A1:" + cellguard.ColumnName(len(merged)) + "1")
	_, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, rng, &sheets.ValueRange{
		Values: [][]interface{}{vals},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("writing headers of %s: %w", s.sheet, err)
	}
	return merged, nil
}

func (s *Sheets) createTab(ctx context.Context) error {
	_, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: s.sheet}},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("creating tab %s: %w", s.sheet, err)
	}
	return nil
}

// toValues lays row over existing in header order. Cells of headers absent
// from row keep their existing value.
func toValues(headers, existing []string, row Row) []interface{} {
	out := make([]interface{}, len(headers))
	for i, h := range headers {
		v, ok := row[h]
		if !ok && i < len(existing) {
			v = existing[i]
		}
		out[i] = v
	}
	return out
}

func indexOf(headers []string, h string) int {
	for i, x := range headers {
		if x == h {
			return i
		}
	}
	return -1
}

// isMissingRange reports the API's answer for a tab that does not exist.
func isMissingRange(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	return gerr.Code == http.StatusNotFound ||
		(gerr.Code == http.StatusBadRequest && strings.Contains(gerr.Message, "Unable to parse range"))
}
