package indexstore

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrMirrorNotFound is returned by Mirror.Pull when the object does not exist.
var ErrMirrorNotFound = errors.New("object not found in mirror")

// Mirror copies index artifacts to and from remote storage.
type Mirror interface {
	Push(ctx context.Context, name, localPath string) error
	Pull(ctx context.Context, name, localPath string) error
}

// MinioMirror mirrors artifacts to a MinIO or S3-compatible bucket.
type MinioMirror struct {
	client *minio.Client
	bucket string
	prefix string
}

// MinioConfig holds connection settings for NewMinioMirror.
type MinioConfig struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// NewMinioMirror connects to the endpoint. It does not verify the bucket.
func NewMinioMirror(cfg MinioConfig) (*MinioMirror, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("mirror endpoint and bucket are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &MinioMirror{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (m *MinioMirror) key(name string) string {
	return path.Join(m.prefix, name)
}

// Push uploads localPath as name.
func (m *MinioMirror) Push(ctx context.Context, name, localPath string) error {
	_, err := m.client.FPutObject(ctx, m.bucket, m.key(name), localPath, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	return err
}

// Pull downloads name into localPath.
func (m *MinioMirror) Pull(ctx context.Context, name, localPath string) error {
	key := m.key(name)
	if _, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{}); err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
			return ErrMirrorNotFound
		}
		return err
	}
	return m.client.FGetObject(ctx, m.bucket, key, localPath, minio.GetObjectOptions{})
}
