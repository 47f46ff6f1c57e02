package minio

import (
	"context"
	"fmt"
	"io"
	"time"

	"school-portal/internal/config"
	"school-portal/internal/logging"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioClient struct {
	client *minio.Client
	bucket string
}

// NewMinioClient connects and makes sure the audit archive bucket exists.
func NewMinioClient(ctx context.Context, cfg config.MinioConfig) (*MinioClient, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("error connecting to MinIO client: %w", err)
	}

	if err := ensureBucket(ctx, client, cfg.AuditBucket, cfg.Location); err != nil {
		return nil, err
	}

	return &MinioClient{client: client, bucket: cfg.AuditBucket}, nil
}

func ensureBucket(ctx context.Context, client *minio.Client, bucketName, location string) error {
	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("error checking bucket %s: %w", bucketName, err)
	}
	if exists {
		return nil
	}

	if err := client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{Region: location}); err != nil {
		// another replica may have created it between the check and here
		if exists, errExists := client.BucketExists(ctx, bucketName); errExists == nil && exists {
			return nil
		}
		return fmt.Errorf("error creating bucket %s: %w", bucketName, err)
	}
	logging.Info().Str("bucket", bucketName).Msg("created MinIO bucket")
	return nil
}

// UploadObject stores an object in the archive bucket and returns its key.
func (mc *MinioClient) UploadObject(ctx context.Context, objectName, contentType string, reader io.Reader, size int64) (string, error) {
	info, err := mc.client.PutObject(ctx, mc.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("error uploading %s: %w", objectName, err)
	}
	return info.Key, nil
}

func (mc *MinioClient) GetSignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	u, err := mc.client.PresignedGetObject(ctx, mc.bucket, objectName, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("error signing url for %s: %w", objectName, err)
	}
	return u.String(), nil
}
