// Package imageres turns image references of any accepted shape into pixel
// bytes ready to embed inline, re-encoding oversized images to fit a
// per-class byte budget.
package imageres

import (
	"encoding/base64"
	"net/url"
	"regexp"
	"strings"
)

// Kind classifies an image reference.
type Kind int

// Reference kinds, in classification order.
const (
	KindEmpty Kind = iota
	KindInline
	KindRaw
	KindStorageID
	KindStorageURL
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindInline:
		return "inline"
	case KindRaw:
		return "raw"
	case KindStorageID:
		return "storage-id"
	case KindStorageURL:
		return "storage-url"
	default:
		return "unknown"
	}
}

// MarshalText lets Kind appear by name in JSON audit reports.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Ref is a classified image reference. Value holds the base64 payload for
// inline and raw references, the object id for storage ids, and the URL for
// storage URLs.
type Ref struct {
	Kind     Kind
	Value    string
	MIMEType string
}

// MinRawLength is the shortest string treated as a raw base64 payload.
// Storage ids are well below it.
const MinRawLength = 100

var (
	pathIDPattern    = regexp.MustCompile(`/d/([A-Za-z0-9_-]{10,})`)
	bareIDPattern    = regexp.MustCompile(`^[A-Za-z0-9_-]{25,}$`)
	objectKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+(/[A-Za-z0-9_.-]+)+$`)
	base64Pattern    = regexp.MustCompile(`^[A-Za-z0-9+/]+={0,2}$`)
)

// ParseRef classifies s: empty, data URI, raw base64 token, then storage
// locator (URL or bare id).
func ParseRef(s string) Ref {
	s = strings.TrimSpace(s)
	switch {
	case s == "" || s == "null" || s == "undefined":
		return Ref{Kind: KindEmpty}
	case strings.HasPrefix(s, "data:"):
		mime, payload := splitDataURI(s)
		return Ref{Kind: KindInline, Value: payload, MIMEType: mime}
	case isRawPayload(s):
		return Ref{Kind: KindRaw, Value: s, MIMEType: "image/png"}
	case strings.Contains(s, "://"):
		return Ref{Kind: KindStorageURL, Value: s}
	default:
		return Ref{Kind: KindStorageID, Value: s}
	}
}

// splitDataURI returns the MIME type and base64 payload of a data URI.
// Parameters such as name= or charset= may sit between the MIME type and the
// base64 marker. Non-base64 data URIs come back with an empty payload.
func splitDataURI(s string) (mime, payload string) {
	meta, data, ok := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
	if !ok {
		return "", ""
	}
	params := strings.Split(meta, ";")
	mime = strings.ToLower(strings.TrimSpace(params[0]))
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			return mime, data
		}
	}
	return mime, ""
}

func isRawPayload(s string) bool {
	if len(s) < MinRawLength || !base64Pattern.MatchString(s) {
		return false
	}
	_, err := decodeBase64(s)
	return err == nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' {
			return -1
		}
		return r
	}, s)
	if strings.HasSuffix(s, "=") || len(s)%4 == 0 {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}

// ExtractID pulls a storage object id out of a locator: a path-embedded
// /d/<id>, an id= query parameter, or a bare id of at least 25 characters.
func ExtractID(locator string) (string, bool) {
	s := strings.TrimSpace(locator)
	if m := pathIDPattern.FindStringSubmatch(s); m != nil {
		return m[1], true
	}
	if u, err := url.Parse(s); err == nil && u.Scheme != "" {
		if id := u.Query().Get("id"); id != "" {
			return id, true
		}
		return "", false
	}
	if bareIDPattern.MatchString(s) {
		return s, true
	}
	return "", false
}

// IsStorageID reports whether a bare reference names a storage object: an
// opaque id of at least 25 characters, or a slash-separated object key such
// as uploads/sig.png.
func IsStorageID(s string) bool {
	return bareIDPattern.MatchString(s) || objectKeyPattern.MatchString(s)
}
