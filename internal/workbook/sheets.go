package workbook

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"google.golang.org/api/sheets/v4"

	"github.com/alnah/go-claimpdf/internal/cellguard"
)

// Sheets is a Workbook backed by a Google Sheets spreadsheet. The sheet
// named template is reported as canonical and is never mutated.
type Sheets struct {
	svc           *sheets.Service
	spreadsheetID string
	template      string
}

// NewSheets binds a spreadsheet.
func NewSheets(svc *sheets.Service, spreadsheetID, template string) *Sheets {
	return &Sheets{svc: svc, spreadsheetID: spreadsheetID, template: template}
}

// ID implements Workbook.
func (w *Sheets) ID() string { return w.spreadsheetID }

// Sheet implements Workbook.
func (w *Sheets) Sheet(ctx context.Context, name string) (Sheet, error) {
	props, _, err := w.find(ctx, func(p *sheets.SheetProperties) bool { return p.Title == name })
	if err != nil {
		return nil, err
	}
	if props == nil {
		return nil, fmt.Errorf("%w: %q", ErrSheetNotFound, name)
	}
	return w.bind(props), nil
}

// Clone implements Workbook with a DuplicateSheet request.
func (w *Sheets) Clone(ctx context.Context, src Sheet, name string) (Sheet, error) {
	resp, err := w.svc.Spreadsheets.BatchUpdate(w.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			DuplicateSheet: &sheets.DuplicateSheetRequest{
				SourceSheetId: src.GID(),
				NewSheetName:  name,
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("duplicating %q as %q: %w", src.Name(), name, err)
	}
	if len(resp.Replies) == 0 || resp.Replies[0].DuplicateSheet == nil {
		return nil, fmt.Errorf("duplicating %q: empty reply", src.Name())
	}
	return w.bind(resp.Replies[0].DuplicateSheet.Properties), nil
}

// Delete implements Workbook.
func (w *Sheets) Delete(ctx context.Context, s Sheet) error {
	if err := cellguard.AssertScratch(s, w.template); err != nil {
		return err
	}
	_, err := w.svc.Spreadsheets.BatchUpdate(w.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{DeleteSheet: &sheets.DeleteSheetRequest{SheetId: s.GID()}}},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("deleting sheet %q: %w", s.Name(), err)
	}
	return nil
}

func (w *Sheets) bind(p *sheets.SheetProperties) *sheetsSheet {
	return &sheetsSheet{wb: w, id: p.SheetId, title: p.Title, canonical: p.Title == w.template}
}

// find returns the properties and merges of the first sheet matching.
func (w *Sheets) find(ctx context.Context, match func(*sheets.SheetProperties) bool) (*sheets.SheetProperties, []*sheets.GridRange, error) {
	ss, err := w.svc.Spreadsheets.Get(w.spreadsheetID).
		Fields("sheets(properties(sheetId,title),merges)").Context(ctx).Do()
	if err != nil {
		return nil, nil, fmt.Errorf("reading spreadsheet %s: %w", w.spreadsheetID, err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && match(sh.Properties) {
			return sh.Properties, sh.Merges, nil
		}
	}
	return nil, nil, nil
}

type sheetsSheet struct {
	wb        *Sheets
	id        int64
	title     string
	canonical bool
}

func (s *sheetsSheet) Name() string    { return s.title }
func (s *sheetsSheet) Canonical() bool { return s.canonical }
func (s *sheetsSheet) GID() int64      { return s.id }

func (s *sheetsSheet) a1(ref string) string {
	q := "'" + strings.ReplaceAll(s.title, "'", "''") + "'"
	if ref == "" {
		return q
	}
	return q + "!" + ref
}

func (s *sheetsSheet) guard() error {
	return cellguard.AssertScratch(s, s.wb.template)
}

func (s *sheetsSheet) Value(ctx context.Context, c cellguard.Cell) (string, error) {
	resp, err := s.wb.svc.Spreadsheets.Values.Get(s.wb.spreadsheetID, s.a1(c.A1())).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", s.a1(c.A1()), err)
	}
	if len(resp.Values) == 0 || len(resp.Values[0]) == 0 {
		return "", nil
	}
	return fmt.Sprint(resp.Values[0][0]), nil
}

func (s *sheetsSheet) SetValue(ctx context.Context, c cellguard.Cell, value string) error {
	return s.put(ctx, c, value, "RAW")
}

func (s *sheetsSheet) put(ctx context.Context, c cellguard.Cell, value, input string) error {
	if err := s.guard(); err != nil {
		return err
	}
	_, err := s.wb.svc.Spreadsheets.Values.Update(s.wb.spreadsheetID, s.a1(c.A1()), &sheets.ValueRange{
		Values: [][]interface{}{{value}},
	}).ValueInputOption(input).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("writing %s: %w", s.a1(c.A1()), err)
	}
	return nil
}

func (s *sheetsSheet) Merges(ctx context.Context) ([]cellguard.Range, error) {
	_, merges, err := s.wb.find(ctx, func(p *sheets.SheetProperties) bool { return p.SheetId == s.id })
	if err != nil {
		return nil, err
	}
	out := make([]cellguard.Range, 0, len(merges))
	for _, m := range merges {
		out = append(out, fromGridRange(m))
	}
	return out, nil
}

// ClearImages removes in-cell =IMAGE() formulas. Over-grid images are not
// reachable through the values API and are left to the template author.
func (s *sheetsSheet) ClearImages(ctx context.Context) (int, error) {
	if err := s.guard(); err != nil {
		return 0, err
	}
	resp, err := s.wb.svc.Spreadsheets.Values.Get(s.wb.spreadsheetID, s.a1("")).
		ValueRenderOption("FORMULA").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("reading formulas of %q: %w", s.title, err)
	}
	var ranges []string
	for r, row := range resp.Values {
		for c, v := range row {
			f, _ := v.(string)
			if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(f)), "=IMAGE(") {
				ranges = append(ranges, s.a1(cellguard.Cell{Row: r + 1, Col: c + 1}.A1()))
			}
		}
	}
	if len(ranges) == 0 {
		return 0, nil
	}
	_, err = s.wb.svc.Spreadsheets.Values.BatchClear(s.wb.spreadsheetID, &sheets.BatchClearValuesRequest{
		Ranges: ranges,
	}).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("clearing images of %q: %w", s.title, err)
	}
	return len(ranges), nil
}

func (s *sheetsSheet) PlaceImage(ctx context.Context, c cellguard.Cell, url string) error {
	formula := `=IMAGE("` + strings.ReplaceAll(url, `"`, `""`) + `")`
	return s.put(ctx, c, formula, "USER_ENTERED")
}

func (s *sheetsSheet) Format(ctx context.Context, f cellguard.Format) error {
	if err := s.guard(); err != nil {
		return err
	}
	var reqs []*sheets.Request
	for _, r := range f.Wrap {
		reqs = append(reqs, &sheets.Request{RepeatCell: &sheets.RepeatCellRequest{
			Range:  toGridRange(s.id, r),
			Cell:   &sheets.CellData{UserEnteredFormat: &sheets.CellFormat{WrapStrategy: "WRAP"}},
			Fields: "userEnteredFormat.wrapStrategy",
		}})
	}
	for _, r := range f.AlignTop {
		reqs = append(reqs, &sheets.Request{RepeatCell: &sheets.RepeatCellRequest{
			Range:  toGridRange(s.id, r),
			Cell:   &sheets.CellData{UserEnteredFormat: &sheets.CellFormat{VerticalAlignment: "TOP"}},
			Fields: "userEnteredFormat.verticalAlignment",
		}})
	}
	rows := make([]int, 0, len(f.RowHeights))
	for row := range f.RowHeights {
		rows = append(rows, row)
	}
	slices.Sort(rows)
	for _, row := range rows {
		reqs = append(reqs, &sheets.Request{UpdateDimensionProperties: &sheets.UpdateDimensionPropertiesRequest{
			Range: &sheets.DimensionRange{
				SheetId:    s.id,
				Dimension:  "ROWS",
				StartIndex: int64(row - 1),
				EndIndex:   int64(row),
			},
			Properties: &sheets.DimensionProperties{PixelSize: int64(f.RowHeights[row])},
			Fields:     "pixelSize",
		}})
	}
	if len(reqs) == 0 {
		return nil
	}
	_, err := s.wb.svc.Spreadsheets.BatchUpdate(s.wb.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: reqs,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("formatting %q: %w", s.title, err)
	}
	return nil
}

// toGridRange converts a 1-based inclusive range to the API's 0-based
// half-open form.
func toGridRange(sheetID int64, r cellguard.Range) *sheets.GridRange {
	return &sheets.GridRange{
		SheetId:          sheetID,
		StartRowIndex:    int64(r.Start.Row - 1),
		EndRowIndex:      int64(r.End.Row),
		StartColumnIndex: int64(r.Start.Col - 1),
		EndColumnIndex:   int64(r.End.Col),
	}
}

func fromGridRange(g *sheets.GridRange) cellguard.Range {
	return cellguard.Range{
		Start: cellguard.Cell{Row: int(g.StartRowIndex) + 1, Col: int(g.StartColumnIndex) + 1},
		End:   cellguard.Cell{Row: int(g.EndRowIndex), Col: int(g.EndColumnIndex)},
	}
}
