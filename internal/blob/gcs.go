package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
)

// GCS stores blobs in a Google Cloud Storage bucket. IDs are object names
// relative to the bucket, including the optional prefix.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
}

// GCSConfig holds configuration for GCS.
type GCSConfig struct {
	Bucket string
	Prefix string // optional object name prefix, e.g. "claims/"
}

// NewGCS creates a GCS store on an existing client.
func NewGCS(client *storage.Client, cfg GCSConfig) *GCS {
	return &GCS{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}
}

// Fetch implements Store.
func (g *GCS) Fetch(ctx context.Context, id string) (*Object, error) {
	obj := g.client.Bucket(g.bucket).Object(id)
	r, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: gs://%s/%s", ErrNotFound, g.bucket, id)
		}
		return nil, fmt.Errorf("gcs read %s: %w", id, err)
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gcs read %s: %w", id, err)
	}
	return &Object{
		ID:          id,
		Name:        id[strings.LastIndex(id, "/")+1:],
		ContentType: r.Attrs.ContentType,
		Data:        data,
	}, nil
}

// Save implements Store.
func (g *GCS) Save(ctx context.Context, folder, name, contentType string, data []byte) (string, error) {
	key, err := Key(folder, name)
	if err != nil {
		return "", err
	}
	key = g.prefix + key

	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs close %s: %w", key, err)
	}
	return key, nil
}

// Share implements Store by granting allUsers read on the object. Buckets
// with uniform bucket-level access reject object ACLs; share those at the
// bucket instead.
func (g *GCS) Share(ctx context.Context, id string) error {
	acl := g.client.Bucket(g.bucket).Object(id).ACL()
	if err := acl.Set(ctx, storage.AllUsers, storage.RoleReader); err != nil {
		return fmt.Errorf("gcs share %s: %w", id, err)
	}
	return nil
}

// Links implements Store.
func (g *GCS) Links(id string) Links {
	escaped := (&url.URL{Path: id}).EscapedPath()
	public := "https://storage.googleapis.com/" + g.bucket + "/" + escaped
	return Links{
		URL:      public,
		Preview:  "https://storage.cloud.google.com/" + g.bucket + "/" + escaped,
		Download: public,
	}
}

// ParseLocator implements LocatorParser for gs:// and bucket URLs of this bucket.
func (g *GCS) ParseLocator(locator string) (string, bool) {
	if rest, ok := strings.CutPrefix(locator, "gs://"); ok {
		return g.inBucket(rest)
	}
	u, err := url.Parse(locator)
	if err != nil || u.Scheme != "https" {
		return "", false
	}
	switch u.Host {
	case "storage.googleapis.com", "storage.cloud.google.com":
		return g.inBucket(strings.TrimPrefix(u.Path, "/"))
	case g.bucket + ".storage.googleapis.com":
		return strings.TrimPrefix(u.Path, "/"), u.Path != "/" && u.Path != ""
	}
	return "", false
}

func (g *GCS) inBucket(bucketAndKey string) (string, bool) {
	bucket, key, ok := strings.Cut(bucketAndKey, "/")
	if !ok || bucket != g.bucket || key == "" {
		return "", false
	}
	return key, true
}
