package imageres

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif" // register GIF decoder
	"image/jpeg"
	_ "image/png" // register PNG decoder
	"net/http"
	"strings"

	"go.uber.org/zap"
	_ "golang.org/x/image/bmp" // register BMP decoder
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/alnah/go-claimpdf/internal/blob"
)

// Default byte budgets per image class.
const (
	DefaultSignatureBudget = 1 << 20
	DefaultImageBudget     = 3 << 20
)

// Sentinel errors. Every Resolved.Err wraps ErrResolution plus one of the
// specific sentinels below.
var (
	ErrResolution     = errors.New("image resolution failed")
	ErrInvalidPayload = errors.New("invalid inline image payload")
	ErrNoStorageID    = errors.New("no storage id in locator")
	ErrNoFetcher      = errors.New("no blob store configured")
	ErrNotImage       = errors.New("object is not an image")
	ErrReencode       = errors.New("image re-encoding failed")
)

var jpegQualities = []int{85, 70, 55, 40}

const (
	scaleStep     = 0.75
	maxDownscales = 8
)

// Fetcher reads objects from blob storage. blob.Store satisfies it; stores
// that also implement blob.LocatorParser get first say on URL parsing.
type Fetcher interface {
	Fetch(ctx context.Context, id string) (*blob.Object, error)
}

// Options select the budget for one resolution.
type Options struct {
	// MaxBytes overrides the class budget when positive.
	MaxBytes int
	// Signature selects the signature budget.
	Signature bool
}

func (o Options) budget() int {
	switch {
	case o.MaxBytes > 0:
		return o.MaxBytes
	case o.Signature:
		return DefaultSignatureBudget
	default:
		return DefaultImageBudget
	}
}

// Resolved is the outcome of one resolution. Data is empty for empty
// references and on error.
type Resolved struct {
	Data         []byte
	MIMEType     string
	Source       Kind
	Size         int
	OriginalSize int
	Reencoded    bool
	Err          error
}

// OK reports whether the result carries embeddable bytes.
func (r Resolved) OK() bool {
	return r.Err == nil && len(r.Data) > 0
}

// DataURI returns the result as a base64 data URI, or "" when not OK.
func (r Resolved) DataURI() string {
	if !r.OK() {
		return ""
	}
	return "data:" + r.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(r.Data)
}

// Resolver resolves image references against a blob store.
type Resolver struct {
	fetcher Fetcher
	logger  *zap.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Resolver. fetcher may be nil when only inline references
// are expected.
func New(fetcher Fetcher, opts ...Option) *Resolver {
	r := &Resolver{fetcher: fetcher, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve turns ref into embeddable bytes. It never panics on bad input and
// reports failures through Resolved.Err.
func (r *Resolver) Resolve(ctx context.Context, ref string, opts Options) Resolved {
	parsed := ParseRef(ref)
	res := r.load(ctx, parsed)
	if res.Err == nil && res.Source != KindEmpty {
		res = fit(res, opts.budget())
	}
	if res.Err != nil {
		res.Err = fmt.Errorf("%w: %w", ErrResolution, res.Err)
		r.logger.Warn("image resolution failed",
			zap.Stringer("source", parsed.Kind), zap.Error(res.Err))
		return res
	}
	if res.Source != KindEmpty {
		r.logger.Debug("image resolved",
			zap.Stringer("source", res.Source),
			zap.String("mime", res.MIMEType),
			zap.Int("bytes", res.Size),
			zap.Bool("reencoded", res.Reencoded))
	}
	return res
}

func (r *Resolver) load(ctx context.Context, ref Ref) Resolved {
	res := Resolved{Source: ref.Kind}
	switch ref.Kind {
	case KindEmpty:
		return res
	case KindInline, KindRaw:
		if ref.Value == "" {
			res.Err = fmt.Errorf("%w: empty or non-base64 data URI", ErrInvalidPayload)
			return res
		}
		data, err := decodeBase64(ref.Value)
		if err != nil {
			res.Err = fmt.Errorf("%w: %v", ErrInvalidPayload, err)
			return res
		}
		res.Data, res.MIMEType = data, ref.MIMEType
		if res.MIMEType == "" {
			res.MIMEType = http.DetectContentType(data)
		}
	default:
		obj, err := r.fetch(ctx, ref)
		if err != nil {
			res.Err = err
			return res
		}
		res.Data, res.MIMEType = obj.Data, imageType(obj)
		if res.MIMEType == "" {
			res.Err = fmt.Errorf("%w: %s", ErrNotImage, obj.ID)
			return res
		}
	}
	if len(res.Data) == 0 {
		res.Err = fmt.Errorf("%w: zero bytes", ErrInvalidPayload)
		return res
	}
	res.Size, res.OriginalSize = len(res.Data), len(res.Data)
	return res
}

func (r *Resolver) fetch(ctx context.Context, ref Ref) (*blob.Object, error) {
	if r.fetcher == nil {
		return nil, ErrNoFetcher
	}
	id := ref.Value
	if ref.Kind == KindStorageID && !IsStorageID(id) {
		return nil, fmt.Errorf("%w: %q", ErrNoStorageID, id)
	}
	if ref.Kind == KindStorageURL {
		var ok bool
		if p, isParser := r.fetcher.(blob.LocatorParser); isParser {
			id, ok = p.ParseLocator(ref.Value)
		}
		if !ok {
			id, ok = ExtractID(ref.Value)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNoStorageID, ref.Value)
		}
	}
	obj, err := r.fetcher.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// imageType returns the object's image MIME type, sniffing when the store
// did not record a useful one. Empty means not an image.
func imageType(obj *blob.Object) string {
	ct := strings.TrimSpace(strings.SplitN(obj.ContentType, ";", 2)[0])
	if strings.HasPrefix(ct, "image/") {
		return ct
	}
	sniffed := http.DetectContentType(obj.Data)
	if strings.HasPrefix(sniffed, "image/") {
		return sniffed
	}
	return ""
}

// fit re-encodes res when it exceeds budget.
func fit(res Resolved, budget int) Resolved {
	if res.Size <= budget {
		return res
	}
	data, err := shrink(res.Data, budget)
	if err != nil {
		return Resolved{Source: res.Source, OriginalSize: res.OriginalSize, Err: err}
	}
	res.Data, res.MIMEType, res.Size, res.Reencoded = data, "image/jpeg", len(data), true
	return res
}

// shrink encodes data as JPEG at descending qualities, downscaling between
// rounds, until the output fits budget.
func shrink(data []byte, budget int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrReencode, err)
	}
	img := flatten(src)

	var buf bytes.Buffer
	for round := 0; round <= maxDownscales; round++ {
		for _, q := range jpegQualities {
			buf.Reset()
			if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
				return nil, fmt.Errorf("%w: encode: %v", ErrReencode, err)
			}
			if buf.Len() <= budget {
				return append([]byte(nil), buf.Bytes()...), nil
			}
		}
		b := img.Bounds()
		w, h := int(float64(b.Dx())*scaleStep), int(float64(b.Dy())*scaleStep)
		if w < 1 || h < 1 {
			break
		}
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		img = dst
	}
	return nil, fmt.Errorf("%w: cannot fit %d bytes", ErrReencode, budget)
}

// flatten draws src over white. JPEG has no alpha channel.
func flatten(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	return dst
}
