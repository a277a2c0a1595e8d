package minioadapter

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config locates the bucket and how its objects are served publicly.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string
}

// Store implements ports.BlobStore on a MinIO/S3 bucket. Public identifiers
// are object keys ("folder/name.ext").
type Store struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// New connects to MinIO and ensures the bucket exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
		slog.Info("created bucket", "bucket", cfg.Bucket)
	}

	return &Store{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
	}, nil
}

// Upload stores data under folder/desiredID with an extension matching its
// content type and returns the object key.
func (s *Store) Upload(ctx context.Context, data []byte, folder, desiredID string) (string, error) {
	contentType := http.DetectContentType(data)
	key := ObjectKey(folder, desiredID, contentType)

	_, err := s.client.PutObject(ctx, s.bucket, key,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return key, nil
}

// ResolveURL returns the public URL of an object key.
func (s *Store) ResolveURL(publicID string) string {
	if publicID == "" {
		return ""
	}
	return s.publicURL + "/" + s.bucket + "/" + publicID
}

// Remove deletes an object.
func (s *Store) Remove(ctx context.Context, publicID string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, publicID, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", publicID, err)
	}
	return nil
}

// ObjectKey joins folder and id and appends an extension for contentType.
func ObjectKey(folder, id, contentType string) string {
	name := id + extensionFor(contentType)
	if folder == "" {
		return name
	}
	return path.Join(folder, name)
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "image/bmp":
		return ".bmp"
	default:
		return ""
	}
}
