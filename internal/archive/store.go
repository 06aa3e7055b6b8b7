// Package archive keeps exported workbooks in an S3-compatible bucket.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/JonMunkholm/seace/internal/config"
	"github.com/JonMunkholm/seace/internal/core"
)

// Store implements core.Archiver on MinIO.
type Store struct {
	client *minio.Client
	bucket string
	cfg    config.ArchiveConfig
}

// New creates a client for cfg. No request is made until first use.
func New(cfg config.ArchiveConfig) (*Store, error) {
	if !cfg.Enabled() {
		return nil, core.ErrArchiveDisabled
	}
	if cfg.Bucket == "" {
		return nil, errors.New("archive: bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Store{client: client, bucket: cfg.Bucket, cfg: cfg}, nil
}

// Bucket returns the target bucket name.
func (s *Store) Bucket() string {
	return s.bucket
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}

	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	slog.Info("archive bucket created", "bucket", s.bucket)
	return nil
}

// Put uploads data under key and returns a presigned download link.
func (s *Store) Put(ctx context.Context, key string, data []byte) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:        core.ExportContentType,
		ContentDisposition: fmt.Sprintf("attachment; filename=%q", core.ExportFileName),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.cfg.LinkExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}
