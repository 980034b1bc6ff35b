package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

const folderMIME = "application/vnd.google-apps.folder"

// Drive stores blobs as Google Drive files under a root folder. IDs are
// Drive file ids. Folder ids are cached per path.
type Drive struct {
	svc    *drive.Service
	root   string
	mu     sync.Mutex
	folder map[string]string
}

// NewDrive creates a Drive store rooted at the folder with id root.
func NewDrive(svc *drive.Service, root string) *Drive {
	return &Drive{svc: svc, root: root, folder: make(map[string]string)}
}

// Fetch implements Store.
func (d *Drive) Fetch(ctx context.Context, id string) (*Object, error) {
	meta, err := d.svc.Files.Get(id).Fields("id", "name", "mimeType").
		SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return nil, d.wrap("drive get", id, err)
	}

	resp, err := d.svc.Files.Get(id).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return nil, d.wrap("drive download", id, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("drive read %s: %w", id, err)
	}
	ct := meta.MimeType
	if ct == "" {
		ct = resp.Header.Get("Content-Type")
	}
	return &Object{ID: meta.Id, Name: meta.Name, ContentType: ct, Data: data}, nil
}

// Save implements Store, creating folders along the path as needed.
func (d *Drive) Save(ctx context.Context, folder, name, contentType string, data []byte) (string, error) {
	key, err := Key(folder, name)
	if err != nil {
		return "", err
	}
	dir, base := "", key
	if i := strings.LastIndex(key, "/"); i >= 0 {
		dir, base = key[:i], key[i+1:]
	}

	parent, err := d.ensureFolder(ctx, dir)
	if err != nil {
		return "", err
	}
	f, err := d.svc.Files.Create(&drive.File{Name: base, Parents: []string{parent}, MimeType: contentType}).
		Media(bytes.NewReader(data), googleapi.ContentType(contentType)).
		Fields("id").SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("drive create %s: %w", key, err)
	}
	return f.Id, nil
}

// Share implements Store.
func (d *Drive) Share(ctx context.Context, id string) error {
	_, err := d.svc.Permissions.Create(id, &drive.Permission{Type: "anyone", Role: "reader"}).
		SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return d.wrap("drive share", id, err)
	}
	return nil
}

// Links implements Store.
func (d *Drive) Links(id string) Links {
	return Links{
		URL:      "https://drive.google.com/file/d/" + id + "/view",
		Preview:  "https://drive.google.com/file/d/" + id + "/preview",
		Download: "https://drive.google.com/uc?export=download&id=" + id,
	}
}

// ensureFolder returns the id of the folder at path under root, creating
// each missing segment.
func (d *Drive) ensureFolder(ctx context.Context, path string) (string, error) {
	if path == "" {
		return d.root, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	parent := d.root
	walked := ""
	for _, seg := range strings.Split(path, "/") {
		walked += "/" + seg
		if id, ok := d.folder[walked]; ok {
			parent = id
			continue
		}
		id, err := d.findOrCreateFolder(ctx, parent, seg)
		if err != nil {
			return "", err
		}
		d.folder[walked] = id
		parent = id
	}
	return parent, nil
}

func (d *Drive) findOrCreateFolder(ctx context.Context, parent, name string) (string, error) {
	q := fmt.Sprintf("name = '%s' and '%s' in parents and mimeType = '%s' and trashed = false",
		escapeQuery(name), escapeQuery(parent), folderMIME)
	list, err := d.svc.Files.List().Q(q).Fields("files(id)").PageSize(1).
		SupportsAllDrives(true).IncludeItemsFromAllDrives(true).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("drive list folder %s: %w", name, err)
	}
	if len(list.Files) > 0 {
		return list.Files[0].Id, nil
	}
	f, err := d.svc.Files.Create(&drive.File{Name: name, Parents: []string{parent}, MimeType: folderMIME}).
		Fields("id").SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("drive create folder %s: %w", name, err)
	}
	return f.Id, nil
}

func (d *Drive) wrap(op, id string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return fmt.Errorf("%w: drive file %s", ErrNotFound, id)
	}
	return fmt.Errorf("%s %s: %w", op, id, err)
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
