package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
)

// FS stores objects as files under a data directory. Writes go to a temp file
// first and are renamed into place, so readers never observe partial objects.
type FS struct {
	root string
}

var _ ObjectStore = (*FS)(nil)

// NewFS creates the data directory if needed and returns a store rooted there.
func NewFS(root string) (*FS, error) {
	if root == "" {
		return nil, errors.New("object store root required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create object store root: %w", err)
	}
	return &FS{root: root}, nil
}

func (s *FS) Put(_ context.Context, key string, r io.Reader, size int64, _ string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	if size > MaxObjectBytes {
		return "", fmt.Errorf("object size %d exceeds limit %d", size, MaxObjectBytes)
	}

	path := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("create object dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp object: %w", err)
	}
	tmpName := tmp.Name()

	written, err := io.Copy(tmp, io.LimitReader(r, MaxObjectBytes+1))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write object: %w", err)
	}
	if written > MaxObjectBytes {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("object exceeds limit %d", MaxObjectBytes)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("finalize object: %w", err)
	}
	return key, nil
}

func (s *FS) Get(_ context.Context, key string) ([]byte, string, error) {
	if err := ValidateKey(key); err != nil {
		return nil, "", err
	}

	path := filepath.Join(s.root, filepath.FromSlash(key))
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("read object: %w", err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return data, contentType, nil
}

func (s *FS) Delete(_ context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	path := filepath.Join(s.root, filepath.FromSlash(key))
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	return err
}
