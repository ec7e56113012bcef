package objectstore

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/proteinlens/proteinlens/internal/httputil"
)

const supabaseErrorBodyBytes = 32 << 10 // 32 KiB

// Supabase stores objects in a Supabase Storage bucket through its REST API.
type Supabase struct {
	baseURL    string
	bucket     string
	serviceKey string
	httpClient *http.Client
}

var _ ObjectStore = (*Supabase)(nil)

// SupabaseConfig holds Supabase Storage connection settings.
type SupabaseConfig struct {
	URL        string
	Bucket     string
	ServiceKey string
}

// NewSupabase validates the configuration and returns a bucket-scoped store.
func NewSupabase(cfg SupabaseConfig) (*Supabase, error) {
	if cfg.URL == "" {
		return nil, errors.New("supabase url required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("supabase bucket required")
	}
	if cfg.ServiceKey == "" {
		return nil, errors.New("supabase service key required")
	}
	parsed, err := url.Parse(cfg.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, errors.New("supabase url must be absolute")
	}

	transport := http.DefaultTransport
	if base, ok := http.DefaultTransport.(*http.Transport); ok {
		cloned := base.Clone()
		if cloned.TLSClientConfig != nil {
			cloned.TLSClientConfig = cloned.TLSClientConfig.Clone()
			if cloned.TLSClientConfig.MinVersion < tls.VersionTLS12 {
				cloned.TLSClientConfig.MinVersion = tls.VersionTLS12
			}
		} else {
			cloned.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		transport = cloned
	}

	return &Supabase{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		bucket:     cfg.Bucket,
		serviceKey: cfg.ServiceKey,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}, nil
}

func (s *Supabase) objectURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, s.bucket, key)
}

func (s *Supabase) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	if size > MaxObjectBytes {
		return "", fmt.Errorf("object size %d exceeds limit %d", size, MaxObjectBytes)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.objectURL(key), io.LimitReader(r, MaxObjectBytes))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("apikey", s.serviceKey)
	req.Header.Set("x-upsert", "true")
	if size >= 0 {
		req.ContentLength = size
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", s.apiError(resp)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, supabaseErrorBodyBytes))
	return key, nil
}

func (s *Supabase) Get(ctx context.Context, key string) ([]byte, string, error) {
	if err := ValidateKey(key); err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.objectURL(key), nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("apikey", s.serviceKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, "", ErrNotFound
	}
	if resp.StatusCode >= 400 {
		return nil, "", s.apiError(resp)
	}

	data, err := httputil.ReadAllStrict(resp.Body, MaxObjectBytes)
	if err != nil {
		return nil, "", fmt.Errorf("read object: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (s *Supabase) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.objectURL(key), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("apikey", s.serviceKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 400 {
		return s.apiError(resp)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, supabaseErrorBodyBytes))
	return nil
}

func (s *Supabase) apiError(resp *http.Response) error {
	body, truncated, readErr := httputil.ReadAllWithLimit(resp.Body, supabaseErrorBodyBytes)
	if readErr != nil {
		return fmt.Errorf("supabase storage error %d", resp.StatusCode)
	}
	msg := strings.TrimSpace(string(body))
	if truncated {
		msg += "...(truncated)"
	}
	return fmt.Errorf("supabase storage error %d: %s", resp.StatusCode, msg)
}
