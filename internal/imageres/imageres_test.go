package imageres

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/alnah/go-claimpdf/internal/blob"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// noisePNG encodes a w×h image of seeded random pixels. Noise defeats PNG
// compression so the byte size grows with the pixel count.
func noisePNG(t *testing.T, w, h int) []byte {
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

func smallPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

// countingFetcher wraps blob.Memory and records fetched ids.
type countingFetcher struct {
	*blob.Memory
	mu  sync.Mutex
	ids []string
}

func (c *countingFetcher) Fetch(ctx context.Context, id string) (*blob.Object, error) {
	c.mu.Lock()
	c.ids = append(c.ids, id)
	c.mu.Unlock()
	return c.Memory.Fetch(ctx, id)
}

// plainFetcher hides blob.Memory's LocatorParser.
type plainFetcher struct{ m *blob.Memory }

func (p plainFetcher) Fetch(ctx context.Context, id string) (*blob.Object, error) {
	return p.m.Fetch(ctx, id)
}

// ---------------------------------------------------------------------------
// TestParseRef
// ---------------------------------------------------------------------------

func TestParseRef(t *testing.T) {
	t.Parallel()

	raw := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x89, 'P', 'N', 'G'}, 40))

	tests := []struct {
		name     string
		in       string
		wantKind Kind
		wantMIME string
	}{
		{name: "empty", in: "", wantKind: KindEmpty},
		{name: "blank", in: "   ", wantKind: KindEmpty},
		{name: "null literal", in: "null", wantKind: KindEmpty},
		{name: "data uri", in: "data:image/jpeg;base64,/9j/4AAQ", wantKind: KindInline, wantMIME: "image/jpeg"},
		{name: "data uri with parameters", in: "data:image/png;name=sig.png;base64,iVBORw0K", wantKind: KindInline, wantMIME: "image/png"},
		{name: "data uri mixed case", in: "data:Image/PNG;charset=utf-8;BASE64,iVBORw0K", wantKind: KindInline, wantMIME: "image/png"},
		{name: "raw token", in: raw, wantKind: KindRaw, wantMIME: "image/png"},
		{name: "short token is an id", in: "1AbCdEfGhIjKlMnOpQrStUvWxYz012345", wantKind: KindStorageID},
		{name: "drive url", in: "https://drive.google.com/file/d/1AbCdEfGhIjKlMnOpQrStUvWxYz/view", wantKind: KindStorageURL},
		{name: "gs url", in: "gs://bucket/a.png", wantKind: KindStorageURL},
		{name: "object key", in: "claims/CLM-1/logo.png", wantKind: KindStorageID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := ParseRef(tt.in)
			if got.Kind != tt.wantKind {
				t.Errorf("ParseRef(%q).Kind = %v, want %v", tt.in, got.Kind, tt.wantKind)
			}
			if got.MIMEType != tt.wantMIME {
				t.Errorf("ParseRef(%q).MIMEType = %q, want %q", tt.in, got.MIMEType, tt.wantMIME)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestExtractID
// ---------------------------------------------------------------------------

func TestExtractID(t *testing.T) {
	t.Parallel()

	const id = "1AbCdEfGhIjKlMnOpQrStUvWxYz"

	tests := []struct {
		name   string
		in     string
		want   string
		wantOK bool
	}{
		{name: "path embedded", in: "https://drive.google.com/file/d/" + id + "/view?usp=sharing", want: id, wantOK: true},
		{name: "open query", in: "https://drive.google.com/open?id=" + id, want: id, wantOK: true},
		{name: "uc download", in: "https://drive.google.com/uc?export=download&id=" + id, want: id, wantOK: true},
		{name: "bare id", in: id, want: id, wantOK: true},
		{name: "short bare id", in: "abc123"},
		{name: "url without id", in: "https://example.com/picture.png"},
		{name: "spaces", in: "not an id at all"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := ExtractID(tt.in)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ExtractID(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestResolve_Shapes
// ---------------------------------------------------------------------------

func TestResolve_Shapes(t *testing.T) {
	t.Parallel()

	pix := smallPNG(t)
	b64 := base64.StdEncoding.EncodeToString(pix)
	// Pad the raw token past MinRawLength with a longer image.
	rawPix := noisePNG(t, 8, 8)
	rawToken := base64.StdEncoding.EncodeToString(rawPix)

	store := blob.NewMemory()
	store.Put("1AbCdEfGhIjKlMnOpQrStUvWxYz", "image/png", pix)
	store.Put("claims/logo.png", "", pix)
	store.Put("claims/notes.txt", "text/plain", []byte("hello"))

	r := New(store)
	ctx := context.Background()

	tests := []struct {
		name       string
		ref        string
		wantKind   Kind
		wantData   []byte
		wantMIME   string
		wantErr    error
		wantNonNil bool
	}{
		{name: "empty", ref: "", wantKind: KindEmpty},
		{name: "inline", ref: "data:image/png;base64," + b64, wantKind: KindInline, wantData: pix, wantMIME: "image/png"},
		{name: "raw token", ref: rawToken, wantKind: KindRaw, wantData: rawPix, wantMIME: "image/png"},
		{name: "storage id", ref: "1AbCdEfGhIjKlMnOpQrStUvWxYz", wantKind: KindStorageID, wantData: pix, wantMIME: "image/png"},
		{name: "storage url via locator", ref: "mem://claims/logo.png", wantKind: KindStorageURL, wantData: pix, wantMIME: "image/png"},
		{name: "storage url via drive shape", ref: "https://drive.google.com/file/d/1AbCdEfGhIjKlMnOpQrStUvWxYz/view", wantKind: KindStorageURL, wantData: pix, wantMIME: "image/png"},
		{name: "missing object", ref: "claims/missing.png", wantKind: KindStorageID, wantErr: blob.ErrNotFound},
		{name: "not an image", ref: "claims/notes.txt", wantKind: KindStorageID, wantErr: ErrNotImage},
		{name: "url without id", ref: "https://example.com/x.png", wantKind: KindStorageURL, wantErr: ErrNoStorageID},
		{name: "bad inline payload", ref: "data:image/png;base64,@@@", wantKind: KindInline, wantErr: ErrInvalidPayload},
		{name: "url-encoded data uri", ref: "data:image/svg+xml,%3Csvg%3E", wantKind: KindInline, wantErr: ErrInvalidPayload},
		{name: "inline with name parameter", ref: "data:image/png;name=sig.png;base64," + b64, wantKind: KindInline, wantData: pix, wantMIME: "image/png"},
		{name: "inline with charset parameter", ref: "data:image/png;charset=utf-8;BASE64," + b64, wantKind: KindInline, wantData: pix, wantMIME: "image/png"},
		{name: "short bare id", ref: "abc123", wantKind: KindStorageID, wantErr: ErrNoStorageID},
		{name: "free text", ref: "see attached photo", wantKind: KindStorageID, wantErr: ErrNoStorageID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := r.Resolve(ctx, tt.ref, Options{})
			if got.Source != tt.wantKind {
				t.Errorf("Source = %v, want %v", got.Source, tt.wantKind)
			}
			if tt.wantErr != nil {
				if !errors.Is(got.Err, tt.wantErr) || !errors.Is(got.Err, ErrResolution) {
					t.Errorf("Err = %v, want %v wrapped in ErrResolution", got.Err, tt.wantErr)
				}
				if len(got.Data) != 0 {
					t.Error("failed resolution must carry no data")
				}
				return
			}
			if got.Err != nil {
				t.Fatalf("Err = %v", got.Err)
			}
			// Non-empty data iff the reference is non-empty and resolvable.
			if (len(got.Data) > 0) != (tt.wantKind != KindEmpty) {
				t.Errorf("len(Data) = %d for kind %v", len(got.Data), tt.wantKind)
			}
			if tt.wantData != nil && !bytes.Equal(got.Data, tt.wantData) {
				t.Error("Data differs from source bytes")
			}
			if got.MIMEType != tt.wantMIME {
				t.Errorf("MIMEType = %q, want %q", got.MIMEType, tt.wantMIME)
			}
			if got.Size != len(got.Data) {
				t.Errorf("Size = %d, want %d", got.Size, len(got.Data))
			}
		})
	}
}

func TestIsStorageID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want bool
	}{
		{"1AbCdEfGhIjKlMnOpQrStUvWxYz", true},
		{"uploads/sig.png", true},
		{"claims/CLM-20260114-0001/illustration.jpg", true},
		{"abc123", false},
		{"/uploads/sig.png", false},
		{"two words", false},
	}

	for _, tt := range tests {
		if got := IsStorageID(tt.in); got != tt.want {
			t.Errorf("IsStorageID(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestResolve_NoFetcher(t *testing.T) {
	t.Parallel()

	got := New(nil).Resolve(context.Background(), "claims/logo.png", Options{})
	if !errors.Is(got.Err, ErrNoFetcher) {
		t.Errorf("Err = %v, want ErrNoFetcher", got.Err)
	}
}

func TestResolve_LocatorParserFirst(t *testing.T) {
	t.Parallel()

	pix := smallPNG(t)
	m := blob.NewMemory()
	m.Put("claims/a.png", "image/png", pix)

	withParser := &countingFetcher{Memory: m}
	if got := New(withParser).Resolve(context.Background(), "mem://claims/a.png", Options{}); !got.OK() {
		t.Fatalf("Resolve() = %v", got.Err)
	}
	if len(withParser.ids) != 1 || withParser.ids[0] != "claims/a.png" {
		t.Errorf("fetched ids = %v", withParser.ids)
	}

	// Without the parser the mem:// shape carries no extractable id.
	got := New(plainFetcher{m}).Resolve(context.Background(), "mem://claims/a.png", Options{})
	if !errors.Is(got.Err, ErrNoStorageID) {
		t.Errorf("Err = %v, want ErrNoStorageID", got.Err)
	}
}

// ---------------------------------------------------------------------------
// TestResolve_SizeGuard
// ---------------------------------------------------------------------------

func TestResolve_SizeGuard(t *testing.T) {
	t.Parallel()

	big := noisePNG(t, 1100, 1000) // ~4.4 MB of incompressible pixels
	if len(big) <= DefaultImageBudget {
		t.Fatalf("fixture too small: %d bytes", len(big))
	}
	store := blob.NewMemory()
	store.Put("claims/illustration.png", "image/png", big)
	r := New(store)
	ctx := context.Background()

	tests := []struct {
		name   string
		opts   Options
		budget int
	}{
		{name: "illustration", opts: Options{}, budget: DefaultImageBudget},
		{name: "signature", opts: Options{Signature: true}, budget: DefaultSignatureBudget},
		{name: "explicit budget", opts: Options{MaxBytes: 64 << 10}, budget: 64 << 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := r.Resolve(ctx, "claims/illustration.png", tt.opts)
			if got.Err != nil {
				t.Fatalf("Resolve() error = %v", got.Err)
			}
			if got.Size > tt.budget {
				t.Errorf("Size = %d, budget %d", got.Size, tt.budget)
			}
			if !got.Reencoded || got.MIMEType != "image/jpeg" {
				t.Errorf("Reencoded = %v, MIME = %q", got.Reencoded, got.MIMEType)
			}
			if got.OriginalSize != len(big) {
				t.Errorf("OriginalSize = %d, want %d", got.OriginalSize, len(big))
			}

			again := r.Resolve(ctx, got.DataURI(), tt.opts)
			if again.Err != nil {
				t.Fatalf("re-resolve error = %v", again.Err)
			}
			if again.Size > got.Size || again.Reencoded {
				t.Errorf("re-resolve grew or re-encoded: %d -> %d (reencoded=%v)", got.Size, again.Size, again.Reencoded)
			}
		})
	}
}

func TestResolve_SizeGuardUndecodable(t *testing.T) {
	t.Parallel()

	store := blob.NewMemory()
	svg := []byte("<svg xmlns=\"http://www.w3.org/2000/svg\">" + strings.Repeat(" ", 2048) + "</svg>")
	store.Put("claims/logo.svg", "image/svg+xml", svg)

	got := New(store).Resolve(context.Background(), "claims/logo.svg", Options{MaxBytes: 1024})
	if !errors.Is(got.Err, ErrReencode) {
		t.Errorf("Err = %v, want ErrReencode", got.Err)
	}
	if len(got.Data) != 0 {
		t.Error("failed re-encode must carry no data")
	}
}

func TestResolved_DataURI(t *testing.T) {
	t.Parallel()

	r := Resolved{Data: []byte{1, 2, 3}, MIMEType: "image/png"}
	if got := r.DataURI(); got != "data:image/png;base64,AQID" {
		t.Errorf("DataURI() = %q", got)
	}
	if got := (Resolved{}).DataURI(); got != "" {
		t.Errorf("empty DataURI() = %q", got)
	}
}

func TestResolve_Logging(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	r := New(blob.NewMemory(), WithLogger(zap.New(core)))

	r.Resolve(context.Background(), "claims/missing.png", Options{})
	r.Resolve(context.Background(), "", Options{})

	if n := logs.FilterMessage("image resolution failed").Len(); n != 1 {
		t.Errorf("failure logs = %d, want 1", n)
	}
	if n := logs.FilterMessage("image resolved").Len(); n != 0 {
		t.Errorf("empty references must not log resolution, got %d", n)
	}
}
