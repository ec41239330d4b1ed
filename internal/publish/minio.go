package publish

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"videopipe/internal/config"
	"videopipe/internal/services"
)

// MinioBucket implements Bucket with minio-go. It works against R2, S3, and
// MinIO endpoints.
type MinioBucket struct {
	client *minio.Client
	bucket string
}

// NewMinioBucket connects to the configured storage endpoint. No network call
// is made until the first operation.
func NewMinioBucket(cfg config.Storage) (*MinioBucket, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	bucket := strings.TrimSpace(cfg.Bucket)
	if endpoint == "" || bucket == "" {
		return nil, services.Wrap(services.ErrConfiguration, "upload", "storage client", "storage endpoint and bucket are required", nil)
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "upload", "storage client", "invalid storage endpoint", err)
	}
	return &MinioBucket{client: client, bucket: bucket}, nil
}

// Name returns the bucket name.
func (b *MinioBucket) Name() string { return b.bucket }

// PutFile uploads the file at path under key.
func (b *MinioBucket) PutFile(ctx context.Context, key, path, contentType string) error {
	_, err := b.client.FPutObject(ctx, b.bucket, key, path, minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: cacheControlFor(key),
	})
	if err != nil {
		return classifyStorageError("put object", key, err)
	}
	return nil
}

// List returns every object under prefix.
func (b *MinioBucket) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	for obj := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, classifyStorageError("list objects", prefix, obj.Err)
		}
		objects = append(objects, ObjectInfo{Key: obj.Key, Size: obj.Size, LastModified: obj.LastModified})
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return objects, nil
}

// Remove deletes key. Removing a missing key is not an error.
func (b *MinioBucket) Remove(ctx context.Context, key string) error {
	if err := b.client.RemoveObject(ctx, b.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return classifyStorageError("remove object", key, err)
	}
	return nil
}

// Check verifies the bucket exists and the credentials can reach it.
func (b *MinioBucket) Check(ctx context.Context) error {
	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return classifyStorageError("bucket exists", b.bucket, err)
	}
	if !exists {
		return services.Wrap(services.ErrConfiguration, "upload", "bucket exists", fmt.Sprintf("bucket %q not found", b.bucket), nil)
	}
	return nil
}

// classifyStorageError marks client-side rejections (bad credentials, missing
// bucket) fatal and everything else transient.
func classifyStorageError(operation, key string, err error) error {
	if errors.Is(err, context.Canceled) {
		return services.Wrap(services.ErrCanceled, "upload", operation, key, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "upload", operation, key, err)
	}
	resp := minio.ToErrorResponse(err)
	status := resp.StatusCode
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return services.Wrap(services.ErrTransient, "upload", operation, key, err)
	case status >= 400 && status < 500:
		return services.Wrap(services.ErrFatal, "upload", operation, fmt.Sprintf("%s: %s", key, resp.Code), err)
	default:
		return services.Wrap(services.ErrTransient, "upload", operation, key, err)
	}
}

func cacheControlFor(key string) string {
	if strings.HasSuffix(key, ManifestExt) {
		return "no-cache"
	}
	return "public, max-age=31536000, immutable"
}
