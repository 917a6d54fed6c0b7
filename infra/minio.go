package infra

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/mosaiclabs/mosaic-media-service/config"
	"github.com/mosaiclabs/mosaic-media-service/entity"
)

// ErrMultipartUploadGone means the store no longer knows the multipart
// upload: it was aborted, finalized under another name, or expired. Retrying
// the finalize cannot succeed.
var ErrMultipartUploadGone = errors.New("multipart upload no longer exists")

// MinioClient is the storage gateway. It issues time-limited upload/download
// URLs and drives the store's multipart finalize/abort operations. Errors
// from the store are wrapped; retry policy is the caller's concern.
type MinioClient struct {
	Client   *minio.Client
	Core     *minio.Core
	Bucket   string
	Endpoint string
}

func InitMinioClient(cfg *config.EnvConfig) (*MinioClient, error) {
	if cfg.Minio.Endpoint == "" {
		return nil, fmt.Errorf("MinIO endpoint is not configured")
	}

	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Minio.RootUser, cfg.Minio.RootPassword, ""),
		Secure: cfg.Minio.UseSSL,
	}

	core, err := minio.NewCore(cfg.Minio.Endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	client := &MinioClient{
		Client:   core.Client,
		Core:     core,
		Bucket:   cfg.Upload.Bucket,
		Endpoint: cfg.Minio.Endpoint,
	}

	if err := client.EnsureBucket(context.Background(), client.Bucket); err != nil {
		return nil, err
	}

	return client, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (m *MinioClient) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := m.Client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := m.Client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}
	return nil
}

// GenerateUploadURL returns a presigned PUT URL for the single-part path.
func (m *MinioClient) GenerateUploadURL(ctx context.Context, key, contentType string, expires time.Duration) (string, error) {
	u, err := m.Client.PresignedPutObject(ctx, m.Bucket, key, expires)
	if err != nil {
		return "", fmt.Errorf("failed to presign upload URL for %s: %w", key, err)
	}
	return u.String(), nil
}

// CreateMultipartUpload opens a multipart upload and returns the store's
// upload ID.
func (m *MinioClient) CreateMultipartUpload(ctx context.Context, key, contentType string) (string, error) {
	uploadID, err := m.Core.NewMultipartUpload(ctx, m.Bucket, key, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create multipart upload for %s: %w", key, err)
	}
	return uploadID, nil
}

// GeneratePartURLs presigns one PUT URL per part for a multipart upload.
// Part numbers are 1-based.
func (m *MinioClient) GeneratePartURLs(ctx context.Context, key, uploadID string, partCount int, expires time.Duration) ([]entity.PartURL, error) {
	urls := make([]entity.PartURL, 0, partCount)
	for part := 1; part <= partCount; part++ {
		params := url.Values{}
		params.Set("uploadId", uploadID)
		params.Set("partNumber", strconv.Itoa(part))

		u, err := m.Client.Presign(ctx, http.MethodPut, m.Bucket, key, expires, params)
		if err != nil {
			return nil, fmt.Errorf("failed to presign part %d for %s: %w", part, key, err)
		}
		urls = append(urls, entity.PartURL{PartNumber: part, URL: u.String()})
	}
	return urls, nil
}

// CompleteMultipartUpload assembles the registered parts into one object.
// MinIO treats a repeated complete with the same part list as idempotent, so
// callers may retry safely.
func (m *MinioClient) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []entity.PartETag) (entity.FinalizedObject, error) {
	completeParts := make([]minio.CompletePart, 0, len(parts))
	for _, p := range parts {
		completeParts = append(completeParts, minio.CompletePart{
			PartNumber: p.PartNumber,
			ETag:       p.ETag,
		})
	}

	info, err := m.Core.CompleteMultipartUpload(ctx, m.Bucket, key, uploadID, completeParts, minio.PutObjectOptions{})
	if err != nil {
		if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchUpload" {
			return entity.FinalizedObject{}, fmt.Errorf("failed to complete multipart upload for %s: %w", key, ErrMultipartUploadGone)
		}
		return entity.FinalizedObject{}, fmt.Errorf("failed to complete multipart upload for %s: %w", key, err)
	}

	return entity.FinalizedObject{
		Location: info.Location,
		ETag:     info.ETag,
		Size:     info.Size,
	}, nil
}

// AbortMultipartUpload discards all uploaded parts. Best-effort: callers
// record the cancellation regardless of the outcome.
func (m *MinioClient) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	if err := m.Core.AbortMultipartUpload(ctx, m.Bucket, key, uploadID); err != nil {
		return fmt.Errorf("failed to abort multipart upload for %s: %w", key, err)
	}
	return nil
}

// GenerateDownloadURL returns a presigned GET URL with the given TTL.
func (m *MinioClient) GenerateDownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := m.Client.PresignedGetObject(ctx, m.Bucket, key, ttl, nil)
	if err != nil {
		return "", fmt.Errorf("failed to presign download URL for %s: %w", key, err)
	}
	return u.String(), nil
}

// GetObjectBytes reads a whole object into memory. Used by the worker to feed
// the style processor.
func (m *MinioClient) GetObjectBytes(ctx context.Context, key string) ([]byte, error) {
	obj, err := m.Client.GetObject(ctx, m.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return data, nil
}

// PutObjectBytes writes a derived asset back to the store.
func (m *MinioClient) PutObjectBytes(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := m.Client.PutObject(ctx, m.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return nil
}
