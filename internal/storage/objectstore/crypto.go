package objectstore

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// Encrypted wraps another ObjectStore and seals every object with AES-GCM
// before it reaches the backend. The content type is bound into the
// authentication tag, so a swapped or relabelled ciphertext fails to open.
type Encrypted struct {
	inner ObjectStore
	aead  cipher.AEAD
}

var _ ObjectStore = (*Encrypted)(nil)

// NewEncrypted builds an encrypting wrapper. The key must be 16, 24, or 32
// bytes.
func NewEncrypted(inner ObjectStore, key []byte) (*Encrypted, error) {
	if inner == nil {
		return nil, errors.New("encrypted store requires a backend")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("build cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("build gcm: %w", err)
	}
	return &Encrypted{inner: inner, aead: aead}, nil
}

// maxPlain keeps the sealed output within the backend's object limit.
func (e *Encrypted) maxPlain() int64 {
	return MaxObjectBytes - int64(e.aead.NonceSize()) - int64(e.aead.Overhead())
}

func (e *Encrypted) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	limit := e.maxPlain()
	if size > limit {
		return "", fmt.Errorf("object size %d exceeds limit %d", size, limit)
	}

	plain, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", err
	}
	if int64(len(plain)) > limit {
		return "", fmt.Errorf("object exceeds limit %d", limit)
	}

	nonce := make([]byte, e.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := e.aead.Seal(nonce, nonce, plain, []byte(contentType))

	return e.inner.Put(ctx, key, bytes.NewReader(sealed), int64(len(sealed)), contentType)
}

func (e *Encrypted) Get(ctx context.Context, key string) ([]byte, string, error) {
	sealed, contentType, err := e.inner.Get(ctx, key)
	if err != nil {
		return nil, "", err
	}
	if len(sealed) < e.aead.NonceSize() {
		return nil, "", fmt.Errorf("object %s: ciphertext shorter than nonce", key)
	}

	nonce, body := sealed[:e.aead.NonceSize()], sealed[e.aead.NonceSize():]
	plain, err := e.aead.Open(nil, nonce, body, []byte(contentType))
	if err != nil {
		return nil, "", fmt.Errorf("object %s: %w", key, err)
	}
	return plain, contentType, nil
}

func (e *Encrypted) Delete(ctx context.Context, key string) error {
	return e.inner.Delete(ctx, key)
}
