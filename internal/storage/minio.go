package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// MinioStorage implements Storage using a MinIO (or any S3-compatible) backend.
// Uploads are still spooled on the local scratch filesystem and streamed to the
// bucket once complete.
type MinioStorage struct {
	client  *minio.Client
	bucket  string
	scratch afero.Fs
	log     *zap.Logger
}

// NewMinioStorage creates a MinIO client, ensures the bucket exists and returns
// a ready-to-use MinioStorage. The bucket stays private: files are served
// through the service's own mount points.
func NewMinioStorage(endpoint, accessKey, secretKey, bucket string, useSSL bool, scratch afero.Fs, log *zap.Logger) (*MinioStorage, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ctx := context.Background()

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", bucket, err)
		}
		log.Info("created bucket", zap.String("bucket", bucket))
	}

	return &MinioStorage{client: client, bucket: bucket, scratch: scratch, log: log}, nil
}

// Place streams the spooled file to the bucket under key and removes it from
// scratch. An existing object under key is overwritten.
func (s *MinioStorage) Place(ctx context.Context, key, tmpPath string) error {
	f, err := s.scratch.Open(tmpPath)
	if err != nil {
		return fmt.Errorf("open spooled file %q: %w", tmpPath, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat spooled file %q: %w", tmpPath, err)
	}

	_, err = s.client.PutObject(ctx, s.bucket, key, f, info.Size(), minio.PutObjectOptions{
		ContentType: contentType(key),
	})
	if err != nil {
		return fmt.Errorf("put object %q: %w", key, err)
	}
	if err := s.scratch.Remove(tmpPath); err != nil {
		s.log.Warn("remove spooled file", zap.String("path", tmpPath), zap.Error(err))
	}
	return nil
}

// Remove deletes the object at key from the bucket.
func (s *MinioStorage) Remove(ctx context.Context, key string) error {
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return ErrNotFound
		}
		return fmt.Errorf("stat object %q: %w", key, err)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %q: %w", key, err)
	}
	return nil
}

// Open returns a seekable reader over the object at key.
func (s *MinioStorage) Open(ctx context.Context, key string) (io.ReadSeekCloser, time.Time, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("get object %q: %w", key, err)
	}
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		if isNoSuchKey(err) {
			return nil, time.Time{}, ErrNotFound
		}
		return nil, time.Time{}, fmt.Errorf("stat object %q: %w", key, err)
	}
	return obj, info.LastModified, nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

func contentType(key string) string {
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
