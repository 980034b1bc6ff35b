package claimpdf

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alnah/go-claimpdf/internal/blob"
	"github.com/alnah/go-claimpdf/internal/imageres"
	"github.com/alnah/go-claimpdf/internal/lock"
	"github.com/alnah/go-claimpdf/internal/workbook"
)

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

// fixedNow is the clock of every renderer built by the helpers below.
var fixedNow = time.Date(2026, 1, 14, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

// testPDF builds a one-page PDF with a correct cross-reference table,
// padded above MinDocumentBytes.
func testPDF(t testing.TB) []byte {
	t.Helper()
	content := "0 0 m 100 100 l S\n" + strings.Repeat("% padding to a realistic size\n", 48)
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 595 842] /Contents 4 0 R /Resources << >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)

	if buf.Len() < MinDocumentBytes {
		t.Fatalf("test PDF too small: %d bytes", buf.Len())
	}
	return buf.Bytes()
}

func smallPNG(t testing.TB) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(2, 2, color.RGBA{B: 200, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

// noisePNG encodes incompressible pixels so the size follows w*h.
func noisePNG(t testing.TB, w, h int) []byte {
	t.Helper()
	rng := rand.New(rand.NewPCG(uint64(w), uint64(h)))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.IntN(256))
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func dataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

const logoID = "assets/logo.png"

// newStore returns a blob store seeded with the logo.
func newStore(t testing.TB) *blob.Memory {
	t.Helper()
	store := blob.NewMemory()
	store.Put(logoID, "image/png", smallPNG(t))
	return store
}

// testClaim is a complete submission using a mix of canonical and
// historical keys.
func testClaim(id string) ClaimRecord {
	return ClaimRecord{
		DocumentID: id,
		Fields: map[string]string{
			"dealer":            "Garage Central",
			"dealerCode":        "D-118",
			"contactName":       "Sam Lee",
			"customerName":      "R. Moreau",
			"VIN":               "VF1AB000012345678",
			"model":             "Kangoo",
			"registrationDate":  "2023-04-02",
			"odometer":          "48200",
			"customerComplaint": "Engine **stalls** when cold.",
			"diagnosis":         "Faulty sensor.",
			"correction":        "- replaced sensor\n- cleared codes",
			"causalPartNumber":  "8200-123",
			"causalPartName":    "Temperature sensor",
		},
		Parts: []AffectedPart{
			{PartNumber: "8200-123", Name: "Temperature sensor", Quantity: 1},
			{PartNumber: "7700-555", Name: "Seal", Quantity: 2},
		},
		SubmittedAt: fixedNow,
	}
}

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

// fakeConverter implements pdfConverter without a browser.
type fakeConverter struct {
	mu     sync.Mutex
	pdf    []byte
	err    error
	html   string
	page   *PageSettings
	calls  int
	closed bool
}

func (f *fakeConverter) ToPDF(ctx context.Context, htmlContent string, page *PageSettings) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.html = htmlContent
	f.page = page
	if f.err != nil {
		return nil, f.err
	}
	return f.pdf, nil
}

func (f *fakeConverter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConverter) lastHTML() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.html
}

// fakeExporter implements Exporter. onExport, when set, runs before the
// canned response, with the worksheet still in place.
type fakeExporter struct {
	mu       sync.Mutex
	pdf      []byte
	err      error
	calls    int
	gid      int64
	onExport func()
}

func (f *fakeExporter) Export(ctx context.Context, spreadsheetID string, gid int64) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	f.gid = gid
	hook := f.onExport
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.pdf, nil
}

// stubRenderer implements Renderer with a canned outcome.
type stubRenderer struct {
	mu    sync.Mutex
	res   *RenderResult
	err   error
	panic any
	calls int
	got   []ClaimRecord
}

func (s *stubRenderer) Render(ctx context.Context, claim ClaimRecord) (*RenderResult, error) {
	s.mu.Lock()
	s.calls++
	s.got = append(s.got, claim)
	s.mu.Unlock()
	if s.panic != nil {
		panic(s.panic)
	}
	if s.res == nil {
		return nil, s.err
	}
	res := *s.res
	res.DocumentID = claim.DocumentID
	return &res, s.err
}

func (s *stubRenderer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// ---------------------------------------------------------------------------
// Renderer builders
// ---------------------------------------------------------------------------

func newTestPrimary(t *testing.T, store *blob.Memory, opts ...Option) (*PrimaryRenderer, *fakeConverter) {
	t.Helper()
	opts = append([]Option{WithLogo(logoID), withClock(fixedClock)}, opts...)
	p, err := NewPrimaryRenderer(imageres.New(store), store, opts...)
	if err != nil {
		t.Fatalf("NewPrimaryRenderer() error = %v", err)
	}
	conv := &fakeConverter{pdf: testPDF(t)}
	p.pdfConverter = conv
	return p, conv
}

// legacyFixture bundles a legacy renderer with its in-memory collaborators.
type legacyFixture struct {
	renderer *LegacyRenderer
	book     *workbook.Memory
	template *workbook.MemorySheet
	exporter *fakeExporter
	store    *blob.Memory
	locker   *lock.Local
	states   []LegacyState
}

func newLegacyFixture(t *testing.T, opts ...Option) *legacyFixture {
	t.Helper()
	f := &legacyFixture{
		book:     workbook.NewMemory("sheet-123"),
		exporter: &fakeExporter{pdf: testPDF(t)},
		store:    newStore(t),
		locker:   lock.NewLocal(),
	}
	f.template = f.book.AddSheet("Template", true)
	f.template.Set("B2", "WARRANTY CLAIM")

	opts = append([]Option{withClock(fixedClock), WithLockWait(200 * time.Millisecond)}, opts...)
	r, err := NewLegacyRenderer(f.book, f.exporter, f.store, f.locker, imageres.New(f.store), opts...)
	if err != nil {
		t.Fatalf("NewLegacyRenderer() error = %v", err)
	}
	r.scratchName = func() string { return "scratch-test" }
	r.onState = func(s LegacyState) { f.states = append(f.states, s) }
	f.renderer = r
	return f
}

// scratch returns the live scratch sheet, or nil once deleted.
func (f *legacyFixture) scratch() *workbook.MemorySheet {
	s, err := f.book.Sheet(context.Background(), "scratch-test")
	if err != nil {
		return nil
	}
	ms, _ := s.(*workbook.MemorySheet)
	return ms
}
