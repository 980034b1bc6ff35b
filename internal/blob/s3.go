package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3 stores blobs in an Amazon S3 (or compatible) bucket. IDs are object keys.
type S3 struct {
	client   *s3.Client
	bucket   string
	prefix   string
	region   string
	endpoint string
}

// S3Config holds configuration for S3.
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string // optional custom endpoint (MinIO, LocalStack)
	Prefix   string // optional key prefix
}

// NewS3 loads the default AWS configuration and creates an S3 store.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3{
		client:   client,
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		region:   cfg.Region,
		endpoint: strings.TrimSuffix(cfg.Endpoint, "/"),
	}, nil
}

// Fetch implements Store.
func (s *S3) Fetch(ctx context.Context, id string) (*Object, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: s3://%s/%s", ErrNotFound, s.bucket, id)
		}
		return nil, fmt.Errorf("s3 get %s: %w", id, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read %s: %w", id, err)
	}
	return &Object{
		ID:          id,
		Name:        id[strings.LastIndex(id, "/")+1:],
		ContentType: aws.ToString(out.ContentType),
		Data:        data,
	}, nil
}

// Save implements Store.
func (s *S3) Save(ctx context.Context, folder, name, contentType string, data []byte) (string, error) {
	key, err := Key(folder, name)
	if err != nil {
		return "", err
	}
	key = s.prefix + key

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put %s: %w", key, err)
	}
	return key, nil
}

// Share implements Store with a public-read canned ACL.
func (s *S3) Share(ctx context.Context, id string) error {
	_, err := s.client.PutObjectAcl(ctx, &s3.PutObjectAclInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(id),
		ACL:    types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return fmt.Errorf("s3 share %s: %w", id, err)
	}
	return nil
}

// Links implements Store.
func (s *S3) Links(id string) Links {
	escaped := (&url.URL{Path: id}).EscapedPath()
	var u string
	if s.endpoint != "" {
		u = s.endpoint + "/" + s.bucket + "/" + escaped
	} else {
		u = "https://" + s.bucket + ".s3." + s.region + ".amazonaws.com/" + escaped
	}
	return Links{URL: u, Preview: u, Download: u}
}

// ParseLocator implements LocatorParser for s3:// and virtual-hosted URLs.
func (s *S3) ParseLocator(locator string) (string, bool) {
	if rest, ok := strings.CutPrefix(locator, "s3://"); ok {
		bucket, key, ok := strings.Cut(rest, "/")
		return key, ok && bucket == s.bucket && key != ""
	}
	u, err := url.Parse(locator)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") {
		return "", false
	}
	key := strings.TrimPrefix(u.Path, "/")
	if strings.HasPrefix(u.Host, s.bucket+".s3.") && strings.HasSuffix(u.Host, ".amazonaws.com") {
		return key, key != ""
	}
	if s.endpoint != "" && strings.HasPrefix(locator, s.endpoint+"/"+s.bucket+"/") {
		k := strings.TrimPrefix(key, s.bucket+"/")
		return k, k != ""
	}
	return "", false
}
