package mediastore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSStore implements Store on a Google Cloud Storage bucket.
type GCSStore struct {
	client  *storage.Client
	bucket  string
	baseDir string
}

// NewGCSStore dials GCS and verifies bucket is reachable. baseDir prefixes
// every key (e.g. an environment or cluster name).
func NewGCSStore(ctx context.Context, bucket, baseDir string) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("mediastore: gcs client: %w", err)
	}
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		return nil, fmt.Errorf("mediastore: access bucket %s: %w", bucket, err)
	}
	return &GCSStore{client: client, bucket: bucket, baseDir: baseDir}, nil
}

func (s *GCSStore) objectPath(key string) string {
	if s.baseDir == "" {
		return key
	}
	return s.baseDir + "/" + key
}

func (s *GCSStore) Write(ctx context.Context, key string, data []byte, contentType string) error {
	obj := s.client.Bucket(s.bucket).Object(s.objectPath(key))
	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = CacheControl(key)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("mediastore: gcs write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("mediastore: gcs close %s: %w", key, err)
	}
	return nil
}

func (s *GCSStore) Read(ctx context.Context, key string) ([]byte, error) {
	obj := s.client.Bucket(s.bucket).Object(s.objectPath(key))
	r, err := obj.NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, fmt.Errorf("mediastore: gcs read %s: %w", key, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("mediastore: gcs drain %s: %w", key, err)
	}
	return data, nil
}

func (s *GCSStore) ReadRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	obj := s.client.Bucket(s.bucket).Object(s.objectPath(key))
	r, err := obj.NewRangeReader(ctx, offset, length)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, fmt.Errorf("mediastore: gcs range read %s: %w", key, err)
	}
	return r, nil
}

func (s *GCSStore) Stat(ctx context.Context, key string) (int64, error) {
	attrs, err := s.client.Bucket(s.bucket).Object(s.objectPath(key)).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return 0, ErrNotExist
	}
	if err != nil {
		return 0, fmt.Errorf("mediastore: gcs stat %s: %w", key, err)
	}
	return attrs.Size, nil
}

func (s *GCSStore) Delete(ctx context.Context, key string) error {
	err := s.client.Bucket(s.bucket).Object(s.objectPath(key)).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("mediastore: gcs delete %s: %w", key, err)
	}
	return nil
}

var _ Store = (*GCSStore)(nil)
