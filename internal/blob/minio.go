// Package blob wraps the MinIO object store behind the narrow contract the
// attachment pipeline needs: accept a byte stream plus a logical path, hand
// back a retrievable URL.
package blob

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds the object-store connection settings.
type Config struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	PublicBaseURL string // if empty, presigned URLs are issued instead
}

const presignExpiry = 7 * 24 * time.Hour

type Store struct {
	cli           *minio.Client
	bucket        string
	publicBaseURL string
}

// New connects to the object store and ensures the bucket exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("blob connect: %w", err)
	}

	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("blob bucket check %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("blob bucket create %s: %w", cfg.Bucket, err)
		}
	}

	return &Store{
		cli:           cli,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimSuffix(cfg.PublicBaseURL, "/"),
	}, nil
}

// Put streams an object into the bucket and returns its retrievable URL.
func (s *Store) Put(ctx context.Context, objectPath string, r io.Reader, size int64, contentType string) (string, error) {
	_, err := s.cli.PutObject(ctx, s.bucket, objectPath, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("blob put %s: %w", objectPath, err)
	}

	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + s.bucket + "/" + objectPath, nil
	}
	u, err := s.cli.PresignedGetObject(ctx, s.bucket, objectPath, presignExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("blob presign %s: %w", objectPath, err)
	}
	return u.String(), nil
}
