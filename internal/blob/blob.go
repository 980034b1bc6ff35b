// Package blob is the object store the renderer reads source images from
// and writes finished documents to. Objects live under per-document folders.
package blob

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/alnah/go-claimpdf/internal/fileutil"
)

// Sentinel errors.
var (
	ErrNotFound    = errors.New("blob not found")
	ErrInvalidPath = errors.New("invalid blob path")
)

// Object is a fetched blob.
type Object struct {
	ID          string
	Name        string
	ContentType string
	Data        []byte
}

// Links are the URL forms of a stored object.
type Links struct {
	URL      string // canonical view URL
	Preview  string // embeddable preview
	Download string // direct download
}

// Store reads and writes blobs.
type Store interface {
	Fetch(ctx context.Context, id string) (*Object, error)
	// Save writes data as name under the slash-separated folder path and
	// returns the new object's id. Saving over an existing name replaces it.
	Save(ctx context.Context, folder, name, contentType string, data []byte) (string, error)
	// Share grants anyone-with-the-link read access.
	Share(ctx context.Context, id string) error
	Links(id string) Links
}

// LocatorParser is implemented by stores whose object URLs are not covered
// by the generic id extraction rules (gs://, s3://, bucket URLs).
type LocatorParser interface {
	ParseLocator(locator string) (id string, ok bool)
}

// Compile-time interface checks.
var (
	_ Store         = (*Memory)(nil)
	_ Store         = (*GCS)(nil)
	_ Store         = (*S3)(nil)
	_ Store         = (*Drive)(nil)
	_ LocatorParser = (*Memory)(nil)
	_ LocatorParser = (*GCS)(nil)
	_ LocatorParser = (*S3)(nil)
)

// Key joins folder and name into an object key, sanitizing every segment so
// user-supplied document IDs cannot escape their folder.
func Key(folder, name string) (string, error) {
	var parts []string
	for _, seg := range strings.Split(folder, "/") {
		if strings.TrimSpace(seg) == "" {
			continue
		}
		clean, err := fileutil.SanitizeName(seg)
		if err != nil {
			return "", fmt.Errorf("%w: folder %q", ErrInvalidPath, folder)
		}
		parts = append(parts, clean)
	}
	clean, err := fileutil.SanitizeName(name)
	if err != nil {
		return "", fmt.Errorf("%w: name %q", ErrInvalidPath, name)
	}
	return path.Join(append(parts, clean)...), nil
}

// Memory is an in-process Store. IDs are object keys; locators take the form
// mem://<key>.
type Memory struct {
	mu      sync.Mutex
	objects map[string]*Object
	shared  map[string]bool
	// SaveErr, when set, fails every Save.
	SaveErr error
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string]*Object), shared: make(map[string]bool)}
}

// Put stores data under id directly, for seeding tests.
func (m *Memory) Put(id, contentType string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[id] = &Object{ID: id, Name: path.Base(id), ContentType: contentType, Data: data}
}

// Fetch implements Store.
func (m *Memory) Fetch(_ context.Context, id string) (*Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	c := *o
	c.Data = append([]byte(nil), o.Data...)
	return &c, nil
}

// Save implements Store.
func (m *Memory) Save(_ context.Context, folder, name, contentType string, data []byte) (string, error) {
	if m.SaveErr != nil {
		return "", m.SaveErr
	}
	key, err := Key(folder, name)
	if err != nil {
		return "", err
	}
	m.Put(key, contentType, append([]byte(nil), data...))
	return key, nil
}

// Share implements Store.
func (m *Memory) Share(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	m.shared[id] = true
	return nil
}

// Shared reports whether Share was called for id.
func (m *Memory) Shared(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shared[id]
}

// Keys lists stored ids.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.objects))
	for k := range m.objects {
		out = append(out, k)
	}
	return out
}

// Links implements Store.
func (m *Memory) Links(id string) Links {
	u := "mem://" + id
	return Links{URL: u, Preview: u + "?preview", Download: u + "?download"}
}

// ParseLocator implements LocatorParser.
func (m *Memory) ParseLocator(locator string) (string, bool) {
	id, ok := strings.CutPrefix(locator, "mem://")
	if !ok || id == "" {
		return "", false
	}
	id, _, _ = strings.Cut(id, "?")
	return id, true
}
