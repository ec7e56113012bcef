// Package objectstore persists uploaded meal images. Keys are
// forward-slash paths owned by the upload transport; the ref returned by Put
// is the key itself, so references stay valid across backends.
package objectstore

import (
	"context"
	"errors"
	"io"
	"strings"
)

// ErrNotFound is returned when no object exists under a key.
var ErrNotFound = errors.New("object not found")

// MaxObjectBytes bounds a single stored image.
const MaxObjectBytes = 8 << 20 // 8 MiB

// ObjectStore stores and retrieves immutable blobs.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (ref string, err error)
	Get(ctx context.Context, key string) (data []byte, contentType string, err error)
	Delete(ctx context.Context, key string) error
}

// ValidateKey rejects keys that could escape the store's namespace.
func ValidateKey(key string) error {
	if key == "" {
		return errors.New("object key required")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "..") || strings.Contains(key, "\\") {
		return errors.New("object key must be a relative forward-slash path")
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" {
			return errors.New("object key must not contain empty segments")
		}
	}
	return nil
}
