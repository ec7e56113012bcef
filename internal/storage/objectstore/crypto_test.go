package objectstore

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func testKey() []byte {
	return []byte("0123456789abcdef0123456789abcdef") // 32 bytes
}

func TestEncryptedRoundTrip(t *testing.T) {
	inner := NewMemory()
	store, err := NewEncrypted(inner, testKey())
	if err != nil {
		t.Fatalf("NewEncrypted: %v", err)
	}
	ctx := context.Background()

	ref, err := store.Put(ctx, "meals/user-1/a.jpg", strings.NewReader("jpegbytes"), 9, "image/jpeg")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ref != "meals/user-1/a.jpg" {
		t.Fatalf("unexpected ref %q", ref)
	}

	data, contentType, err := store.Get(ctx, ref)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != "jpegbytes" || contentType != "image/jpeg" {
		t.Fatalf("unexpected object %q %q", data, contentType)
	}
}

func TestEncryptedBackendNeverSeesPlaintext(t *testing.T) {
	inner := NewMemory()
	store, err := NewEncrypted(inner, testKey())
	if err != nil {
		t.Fatalf("NewEncrypted: %v", err)
	}
	ctx := context.Background()

	plain := []byte("definitely-not-a-jpeg-but-recognizable")
	if _, err := store.Put(ctx, "meals/user-1/a.jpg", bytes.NewReader(plain), int64(len(plain)), "image/jpeg"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	sealed, _, err := inner.Get(ctx, "meals/user-1/a.jpg")
	if err != nil {
		t.Fatalf("inner Get: %v", err)
	}
	if bytes.Contains(sealed, plain) {
		t.Fatal("backend stored the plaintext")
	}
	if len(sealed) <= len(plain) {
		t.Fatalf("sealed length %d not larger than plaintext %d", len(sealed), len(plain))
	}
}

func TestEncryptedRejectsTamperedCiphertext(t *testing.T) {
	inner := NewMemory()
	store, err := NewEncrypted(inner, testKey())
	if err != nil {
		t.Fatalf("NewEncrypted: %v", err)
	}
	ctx := context.Background()

	if _, err := store.Put(ctx, "meals/user-1/a.jpg", strings.NewReader("jpegbytes"), 9, "image/jpeg"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	sealed, contentType, err := inner.Get(ctx, "meals/user-1/a.jpg")
	if err != nil {
		t.Fatalf("inner Get: %v", err)
	}
	sealed[len(sealed)-1] ^= 0xff
	if _, err := inner.Put(ctx, "meals/user-1/a.jpg", bytes.NewReader(sealed), int64(len(sealed)), contentType); err != nil {
		t.Fatalf("rewrite tampered object: %v", err)
	}

	if _, _, err := store.Get(ctx, "meals/user-1/a.jpg"); err == nil {
		t.Fatal("expected authentication failure for tampered object")
	}
}

func TestEncryptedRejectsRelabelledContentType(t *testing.T) {
	inner := NewMemory()
	store, err := NewEncrypted(inner, testKey())
	if err != nil {
		t.Fatalf("NewEncrypted: %v", err)
	}
	ctx := context.Background()

	if _, err := store.Put(ctx, "meals/user-1/a.jpg", strings.NewReader("jpegbytes"), 9, "image/jpeg"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	sealed, _, err := inner.Get(ctx, "meals/user-1/a.jpg")
	if err != nil {
		t.Fatalf("inner Get: %v", err)
	}
	if _, err := inner.Put(ctx, "meals/user-1/a.jpg", bytes.NewReader(sealed), int64(len(sealed)), "image/png"); err != nil {
		t.Fatalf("relabel object: %v", err)
	}

	if _, _, err := store.Get(ctx, "meals/user-1/a.jpg"); err == nil {
		t.Fatal("expected authentication failure for relabelled object")
	}
}

func TestEncryptedRejectsBadKeyLength(t *testing.T) {
	if _, err := NewEncrypted(NewMemory(), []byte("short")); err == nil {
		t.Fatal("expected error for invalid key length")
	}
}
