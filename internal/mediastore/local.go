package mediastore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalStore implements Store on the local filesystem, for single-box
// deployments and tests.
type LocalStore struct {
	baseDir string
}

// NewLocalStore creates baseDir if needed and returns a Store rooted there.
func NewLocalStore(baseDir string) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("mediastore: create base dir: %w", err)
	}
	return &LocalStore{baseDir: baseDir}, nil
}

func (s *LocalStore) fullPath(key string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(key))
}

func (s *LocalStore) Write(_ context.Context, key string, data []byte, _ string) error {
	full := s.fullPath(key)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("mediastore: mkdir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("mediastore: write %s: %w", key, err)
	}
	return nil
}

func (s *LocalStore) Read(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.fullPath(key))
	if os.IsNotExist(err) {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, fmt.Errorf("mediastore: read %s: %w", key, err)
	}
	return data, nil
}

func (s *LocalStore) ReadRange(_ context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	f, err := os.Open(s.fullPath(key))
	if os.IsNotExist(err) {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, fmt.Errorf("mediastore: open %s: %w", key, err)
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, fmt.Errorf("mediastore: seek %s: %w", key, err)
		}
	}
	if length < 0 {
		return f, nil
	}
	return &limitedReadCloser{r: io.LimitReader(f, length), c: f}, nil
}

func (s *LocalStore) Stat(_ context.Context, key string) (int64, error) {
	fi, err := os.Stat(s.fullPath(key))
	if os.IsNotExist(err) {
		return 0, ErrNotExist
	}
	if err != nil {
		return 0, fmt.Errorf("mediastore: stat %s: %w", key, err)
	}
	return fi.Size(), nil
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	if err := os.Remove(s.fullPath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("mediastore: delete %s: %w", key, err)
	}
	return nil
}

type limitedReadCloser struct {
	r io.Reader
	c io.Closer
}

func (l *limitedReadCloser) Read(p []byte) (int, error) { return l.r.Read(p) }
func (l *limitedReadCloser) Close() error                { return l.c.Close() }

var _ Store = (*LocalStore)(nil)
