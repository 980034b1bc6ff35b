// Package sheetsfake serves the subset of the Google Sheets v4 REST API the
// renderer uses, backed by in-memory grids. It exists for tests: point a
// *sheets.Service at it with Service and inspect the grids afterwards.
package sheetsfake

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/alnah/go-claimpdf/internal/cellguard"
)

// Tab is one worksheet of the fake spreadsheet.
type Tab struct {
	ID     int64
	Title  string
	Grid   [][]string
	Merges []*sheets.GridRange
}

// Server is a fake Sheets endpoint for a single spreadsheet.
type Server struct {
	srv *httptest.Server

	mu     sync.Mutex
	tabs   []*Tab
	nextID int64

	// Requests counts batchUpdate request kinds ("duplicateSheet", "repeatCell"...).
	Requests map[string]int

	// DeleteStatus, when non-zero, fails DeleteSheet with that status.
	DeleteStatus int
	// ExportStatus and ExportBody answer GET /spreadsheets/d/{id}/export.
	ExportStatus int
	ExportBody   []byte
	// ExportQuery captures the last export query string.
	ExportQuery string
	// ExportAuth captures the last export Authorization header.
	ExportAuth string
}

// New starts a fake server closed at test cleanup.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{nextID: 100, Requests: make(map[string]int), ExportStatus: http.StatusOK}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.srv.Close)
	return s
}

// URL returns the server base URL.
func (s *Server) URL() string { return s.srv.URL }

// ExportURLPattern returns an export URL pattern served by this fake.
func (s *Server) ExportURLPattern() string {
	return s.srv.URL + "/spreadsheets/d/{spreadsheetId}/export?format=pdf&gid={gid}"
}

// Service returns a client bound to the fake.
func (s *Server) Service(t testing.TB) *sheets.Service {
	t.Helper()
	svc, err := sheets.NewService(context.Background(),
		option.WithEndpoint(s.srv.URL+"/"),
		option.WithHTTPClient(s.srv.Client()))
	if err != nil {
		t.Fatalf("sheets.NewService: %v", err)
	}
	return svc
}

// AddTab adds a worksheet and returns its id.
func (s *Server) AddTab(title string, grid [][]string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addTab(title, grid)
}

func (s *Server) addTab(title string, grid [][]string) int64 {
	s.nextID++
	s.tabs = append(s.tabs, &Tab{ID: s.nextID, Title: title, Grid: cloneGrid(grid)})
	return s.nextID
}

// SetMerges replaces the merged ranges of a tab.
func (s *Server) SetMerges(title string, merges []*sheets.GridRange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.tab(title); t != nil {
		for _, m := range merges {
			m.SheetId = t.ID
		}
		t.Merges = merges
	}
}

// Grid returns a copy of a tab's cells, or nil if the tab does not exist.
func (s *Server) Grid(title string) [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.tab(title); t != nil {
		return cloneGrid(t.Grid)
	}
	return nil
}

// Count returns how many batchUpdate requests of kind were served.
func (s *Server) Count(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Requests[kind]
}

// Titles lists the tabs in order.
func (s *Server) Titles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.tabs))
	for _, t := range s.tabs {
		out = append(out, t.Title)
	}
	return out
}

func (s *Server) tab(title string) *Tab {
	for _, t := range s.tabs {
		if t.Title == title {
			return t
		}
	}
	return nil
}

func (s *Server) tabByID(id int64) *Tab {
	for _, t := range s.tabs {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// HTTP handling
// ---------------------------------------------------------------------------

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/spreadsheets/d/") && strings.HasSuffix(path, "/export"):
		s.ExportQuery = r.URL.RawQuery
		s.ExportAuth = r.Header.Get("Authorization")
		w.WriteHeader(s.ExportStatus)
		_, _ = w.Write(s.ExportBody)
	case strings.HasSuffix(path, ":batchUpdate"):
		s.batchUpdate(w, r)
	case strings.HasSuffix(path, "/values:batchClear"):
		s.batchClear(w, r)
	case strings.Contains(path, "/values/"):
		rng := path[strings.Index(path, "/values/")+len("/values/"):]
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(rng, ":append"):
			s.appendValues(w, r, strings.TrimSuffix(rng, ":append"))
		case r.Method == http.MethodPut:
			s.updateValues(w, r, rng)
		default:
			s.getValues(w, r, rng)
		}
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/v4/spreadsheets/"):
		s.getSpreadsheet(w)
	default:
		writeError(w, http.StatusNotFound, "no route for "+r.Method+" "+path)
	}
}

func (s *Server) getSpreadsheet(w http.ResponseWriter) {
	resp := &sheets.Spreadsheet{}
	for i, t := range s.tabs {
		resp.Sheets = append(resp.Sheets, &sheets.Sheet{
			Properties: &sheets.SheetProperties{SheetId: t.ID, Title: t.Title, Index: int64(i)},
			Merges:     t.Merges,
		})
	}
	writeJSON(w, resp)
}

func (s *Server) batchUpdate(w http.ResponseWriter, r *http.Request) {
	var req sheets.BatchUpdateSpreadsheetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp := &sheets.BatchUpdateSpreadsheetResponse{}
	for _, q := range req.Requests {
		reply := &sheets.Response{}
		switch {
		case q.AddSheet != nil:
			s.Requests["addSheet"]++
			id := s.addTab(q.AddSheet.Properties.Title, nil)
			reply.AddSheet = &sheets.AddSheetResponse{Properties: &sheets.SheetProperties{SheetId: id, Title: q.AddSheet.Properties.Title}}
		case q.DuplicateSheet != nil:
			s.Requests["duplicateSheet"]++
			src := s.tabByID(q.DuplicateSheet.SourceSheetId)
			if src == nil {
				writeError(w, http.StatusBadRequest, "no source sheet")
				return
			}
			id := s.addTab(q.DuplicateSheet.NewSheetName, src.Grid)
			dup := s.tabByID(id)
			for _, m := range src.Merges {
				c := *m
				c.SheetId = id
				dup.Merges = append(dup.Merges, &c)
			}
			reply.DuplicateSheet = &sheets.DuplicateSheetResponse{Properties: &sheets.SheetProperties{SheetId: id, Title: q.DuplicateSheet.NewSheetName}}
		case q.DeleteSheet != nil:
			s.Requests["deleteSheet"]++
			if s.DeleteStatus != 0 {
				writeError(w, s.DeleteStatus, "delete refused")
				return
			}
			s.tabs = slices.DeleteFunc(s.tabs, func(t *Tab) bool { return t.ID == q.DeleteSheet.SheetId })
		case q.RepeatCell != nil:
			s.Requests["repeatCell"]++
		case q.UpdateDimensionProperties != nil:
			s.Requests["updateDimensionProperties"]++
		default:
			s.Requests["other"]++
		}
		resp.Replies = append(resp.Replies, reply)
	}
	writeJSON(w, resp)
}

func (s *Server) batchClear(w http.ResponseWriter, r *http.Request) {
	var req sheets.BatchClearValuesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, rng := range req.Ranges {
		t, box, ok := s.parse(rng)
		if !ok {
			writeError(w, http.StatusBadRequest, "Unable to parse range: "+rng)
			return
		}
		for row := box.r0; row <= box.r1 && row < len(t.Grid); row++ {
			for col := box.c0; col <= box.c1 && col < len(t.Grid[row]); col++ {
				t.Grid[row][col] = ""
			}
		}
	}
	writeJSON(w, &sheets.BatchClearValuesResponse{ClearedRanges: req.Ranges})
}

func (s *Server) getValues(w http.ResponseWriter, r *http.Request, rng string) {
	t, box, ok := s.parse(rng)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unable to parse range: "+rng)
		return
	}
	formulas := r.URL.Query().Get("valueRenderOption") == "FORMULA"

	var values [][]interface{}
	for row := box.r0; row <= box.r1 && row < len(t.Grid); row++ {
		var out []interface{}
		for col := box.c0; col <= box.c1 && col < len(t.Grid[row]); col++ {
			v := t.Grid[row][col]
			if !formulas && strings.HasPrefix(v, "=") {
				v = ""
			}
			out = append(out, v)
		}
		for len(out) > 0 && out[len(out)-1] == "" {
			out = out[:len(out)-1]
		}
		values = append(values, out)
	}
	for len(values) > 0 && len(values[len(values)-1]) == 0 {
		values = values[:len(values)-1]
	}
	writeJSON(w, &sheets.ValueRange{Range: rng, Values: values})
}

func (s *Server) updateValues(w http.ResponseWriter, r *http.Request, rng string) {
	t, box, ok := s.parse(rng)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unable to parse range: "+rng)
		return
	}
	var vr sheets.ValueRange
	if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t.write(box.r0, box.c0, vr.Values)
	writeJSON(w, &sheets.UpdateValuesResponse{UpdatedRange: rng})
}

func (s *Server) appendValues(w http.ResponseWriter, r *http.Request, rng string) {
	t, box, ok := s.parse(rng)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unable to parse range: "+rng)
		return
	}
	var vr sheets.ValueRange
	if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	last := -1
	for i, row := range t.Grid {
		for _, v := range row {
			if v != "" {
				last = i
				break
			}
		}
	}
	t.write(last+1, box.c0, vr.Values)
	writeJSON(w, &sheets.AppendValuesResponse{TableRange: rng})
}

func (t *Tab) write(r0, c0 int, values [][]interface{}) {
	for i, row := range values {
		ri := r0 + i
		for len(t.Grid) <= ri {
			t.Grid = append(t.Grid, nil)
		}
		for j, v := range row {
			ci := c0 + j
			for len(t.Grid[ri]) <= ci {
				t.Grid[ri] = append(t.Grid[ri], "")
			}
			t.Grid[ri][ci] = fmt.Sprint(v)
		}
	}
}

// box is a 0-based inclusive rectangle.
type box struct{ r0, c0, r1, c1 int }

const maxIndex = 1 << 20

// parse resolves "'Tab'!A1:B2", "'Tab'!A:ZZZ", "'Tab'!C4" or "'Tab'".
func (s *Server) parse(rng string) (*Tab, box, bool) {
	title, ref, hasRef := strings.Cut(rng, "!")
	if strings.HasPrefix(title, "'") && strings.HasSuffix(title, "'") && len(title) >= 2 {
		title = strings.ReplaceAll(title[1:len(title)-1], "''", "'")
	}
	t := s.tab(title)
	if t == nil {
		return nil, box{}, false
	}
	whole := box{0, 0, maxIndex, maxIndex}
	if !hasRef {
		return t, whole, true
	}
	start, end, isRange := strings.Cut(ref, ":")
	a, err := cellguard.ParseCell(start)
	if err != nil {
		if col, cerr := cellguard.ParseColumn(start); cerr == nil {
			// Column-only range such as A:ZZZ.
			return t, box{0, col - 1, maxIndex, maxIndex}, true
		}
		return nil, box{}, false
	}
	b := a
	if isRange {
		if b, err = cellguard.ParseCell(end); err != nil {
			return nil, box{}, false
		}
	}
	return t, box{a.Row - 1, a.Col - 1, b.Row - 1, b.Col - 1}, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": code, "message": msg},
	})
}

func cloneGrid(g [][]string) [][]string {
	out := make([][]string, len(g))
	for i, row := range g {
		out[i] = slices.Clone(row)
	}
	return out
}
