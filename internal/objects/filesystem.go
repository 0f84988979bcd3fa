package objects

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FilesystemStore implements Store on the local filesystem, one directory
// per bucket. Intended for local development, not production use.
type FilesystemStore struct {
	basePath string
}

// NewFilesystemStore creates a FilesystemStore rooted at basePath.
func NewFilesystemStore(basePath string) *FilesystemStore {
	return &FilesystemStore{basePath: basePath}
}

func (f *FilesystemStore) path(bucket, key string) (string, error) {
	if bucket == "" || key == "" || strings.Contains(bucket, "..") || strings.Contains(key, "..") {
		return "", ErrInvalidKey
	}
	return filepath.Join(f.basePath, bucket, key), nil
}

func (f *FilesystemStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	full, err := f.path(bucket, key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return file, nil
}

func (f *FilesystemStore) Put(ctx context.Context, bucket, key string, data io.Reader) error {
	full, err := f.path(bucket, key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}

	file, err := os.Create(full)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = io.Copy(file, data)
	return err
}

var _ Store = (*FilesystemStore)(nil)
