package runtime

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/proteinlens/proteinlens/internal/config"
)

func TestParseEncryptionKey(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantLen int
		ok      bool
	}{
		{"raw-16", "1234567890abcdef", 16, true},
		{"raw-32", "0123456789abcdef0123456789abcdef", 32, true},
		{"base64", "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=", 32, true},
		{"hex", "3031323334353637383961626364656630313233343536373839616263646566", 32, true},
		{"invalid-length", "short", 0, false},
		{"invalid-format", "zzzz", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := parseEncryptionKey(tt.input)
			if tt.ok {
				if err != nil {
					t.Fatalf("expected success, got error: %v", err)
				}
				if len(key) != tt.wantLen {
					t.Fatalf("unexpected length: got %d want %d", len(key), tt.wantLen)
				}
			} else {
				if err == nil {
					t.Fatalf("expected error, got none")
				}
			}
		})
	}
}

func TestDeriveKey(t *testing.T) {
	a := deriveKey("correct horse battery staple", "salt-one")
	b := deriveKey("correct horse battery staple", "salt-one")
	c := deriveKey("correct horse battery staple", "salt-two")

	if len(a) != derivedKeyLen {
		t.Fatalf("derived key length = %d, want %d", len(a), derivedKeyLen)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("same passphrase and salt should derive the same key")
	}
	if bytes.Equal(a, c) {
		t.Fatal("different salts should derive different keys")
	}
}

func TestResolveStorageKey(t *testing.T) {
	t.Run("explicit key wins over passphrase", func(t *testing.T) {
		cfg := config.ObjectStoreConfig{
			EncryptionKey:        "0123456789abcdef0123456789abcdef",
			EncryptionPassphrase: "ignored",
			EncryptionSalt:       "salt",
		}
		key, err := resolveStorageKey(cfg)
		if err != nil {
			t.Fatalf("resolveStorageKey: %v", err)
		}
		if string(key) != cfg.EncryptionKey {
			t.Fatal("expected the explicit key to be used verbatim")
		}
	})

	t.Run("passphrase derives a key", func(t *testing.T) {
		cfg := config.ObjectStoreConfig{
			EncryptionPassphrase: "a long passphrase",
			EncryptionSalt:       "salt",
		}
		key, err := resolveStorageKey(cfg)
		if err != nil {
			t.Fatalf("resolveStorageKey: %v", err)
		}
		if len(key) != derivedKeyLen {
			t.Fatalf("derived key length = %d, want %d", len(key), derivedKeyLen)
		}
	})

	t.Run("no key material means no encryption", func(t *testing.T) {
		key, err := resolveStorageKey(config.ObjectStoreConfig{})
		if err != nil {
			t.Fatalf("resolveStorageKey: %v", err)
		}
		if key != nil {
			t.Fatal("expected nil key when nothing is configured")
		}
	})

	t.Run("malformed explicit key is an error", func(t *testing.T) {
		cfg := config.ObjectStoreConfig{EncryptionKey: "tiny"}
		if _, err := resolveStorageKey(cfg); err == nil {
			t.Fatal("expected an error for a malformed key")
		}
	})
}

// memoryConfig builds a configuration with every external backend cleared
// so New assembles the application entirely in memory.
func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	for _, k := range []string{
		"DATABASE_URL", "REDIS_ADDR", "JWT_SECRET", "JWT_PUBLIC_KEY",
		"VISION_BASE_URL", "VISION_API_KEY", "OBJECT_STORE",
		"STORAGE_ENCRYPTION_KEY", "STORAGE_ENCRYPTION_PASSPHRASE",
		"AUDIT_LOG_PATH", "PROFILE_CATALOG_PATH",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("LOG_LEVEL", "error")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	return cfg
}

func TestNewInMemoryApplication(t *testing.T) {
	app, err := New(memoryConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if app.App() == nil {
		t.Fatal("expected an assembled application")
	}

	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/healthz")
	if err != nil {
		t.Fatalf("GET /v1/healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", resp.StatusCode)
	}
}

func TestInMemoryApplicationServesAuthenticatedRoutes(t *testing.T) {
	app, err := New(memoryConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	// Without a JWT key the chain stamps the development identity, so
	// user-scoped routes work out of the box.
	resp, err := http.Get(srv.URL + "/v1/meals")
	if err != nil {
		t.Fatalf("GET /v1/meals: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("meals status = %d, want 200", resp.StatusCode)
	}

	var meals []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&meals); err != nil {
		t.Fatalf("decode meals: %v", err)
	}
	if len(meals) != 0 {
		t.Fatalf("expected an empty meal list, got %d entries", len(meals))
	}
}
