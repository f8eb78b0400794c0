// Package storage uploads fine-tune artifacts to MinIO object storage.
package storage

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/Sandro385/expert-tune/internal/config"
	"github.com/Sandro385/expert-tune/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ArtifactStore keeps job artifacts under finetune/<jobID>/ in one bucket.
type ArtifactStore struct {
	client *minio.Client
	bucket string
}

// InitMinIO creates the client and makes sure the bucket exists.
func InitMinIO(cfg config.MinIOConfig) (*ArtifactStore, error) {
	// 1. client
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	log.Info("MinIO client initialized")

	// 2. bucket
	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.BucketName, err)
	}
	if !exists {
		log.Infof("bucket '%s' does not exist, creating it", cfg.BucketName)
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.BucketName, err)
		}
	}
	return &ArtifactStore{client: client, bucket: cfg.BucketName}, nil
}

// JobObjectName is the object key of fileName for jobID.
func JobObjectName(jobID, fileName string) string {
	return path.Join("finetune", jobID, fileName)
}

// Upload copies the local file at filePath to objectName.
func (s *ArtifactStore) Upload(ctx context.Context, objectName, filePath string) error {
	contentType := "application/octet-stream"
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".jsonl":
		contentType = "application/x-ndjson"
	case ".log", ".txt":
		contentType = "text/plain; charset=utf-8"
	}
	_, err := s.client.FPutObject(ctx, s.bucket, objectName, filePath, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("upload %s: %w", objectName, err)
	}
	return nil
}

// PresignedURL returns a time-limited download link for objectName.
func (s *ArtifactStore) PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectName, expiry, nil)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
