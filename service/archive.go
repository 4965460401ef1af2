package service

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/benforcapita/play-app-sub000/config"
)

// ArchiveService keeps copies of uploaded originals in object storage for
// audit purposes. The extraction pipeline never reads the archive back: jobs
// embed the file as a data URL and stay self-contained.
type ArchiveService struct {
	client *minio.Client
	bucket string
}

// NewArchiveService returns a disabled no-op service when archiving is not
// configured.
func NewArchiveService(cfg *config.ArchiveConfig) (*ArchiveService, error) {
	if !cfg.Enabled {
		return &ArchiveService{}, nil
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &ArchiveService{client: client, bucket: cfg.Bucket}, nil
}

// Enabled reports whether uploads are being archived.
func (s *ArchiveService) Enabled() bool {
	return s.client != nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *ArchiveService) EnsureBucket(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

// Store uploads one original file under <owner>/<token>/<filename>.
func (s *ArchiveService) Store(ctx context.Context, ownerID, jobToken, fileName, contentType string, data []byte) error {
	if !s.Enabled() {
		return nil
	}

	objectName := fmt.Sprintf("%s/%s/%s", ownerID, jobToken, fileName)
	_, err := s.client.PutObject(ctx, s.bucket, objectName,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("failed to archive file: %w", err)
	}
	return nil
}
