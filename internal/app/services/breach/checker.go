// Package breach checks passwords against a k-anonymity range API. Only the
// first five hex characters of the SHA-1 digest ever leave the process.
package breach

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/proteinlens/proteinlens/internal/app/metrics"
	"github.com/proteinlens/proteinlens/internal/app/storage/rediscache"
	"github.com/proteinlens/proteinlens/internal/httputil"
	"github.com/proteinlens/proteinlens/pkg/logger"
)

// ErrUnavailable reports a failed range query when fail-open is disabled.
var ErrUnavailable = errors.New("breach range api unavailable")

const (
	prefixLen       = 5
	maxRangeBody    = 1 << 20
	defaultLocalTTL = 30 * time.Minute
)

// Config configures the checker. The cache, when provided, stores range
// responses under its own TTL.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	// FailOpen reports zero instead of an error when the range API is down,
	// so signup flows keep working through outages.
	FailOpen bool
	// LocalCacheTTL bounds entries in the in-process range cache used when no
	// Redis cache is wired. Zero selects the default.
	LocalCacheTTL time.Duration
}

// Checker queries the range API with hash prefixes.
type Checker struct {
	http     *httputil.Client
	cache    *rediscache.Cache
	failOpen bool
	log      *logger.Logger

	localTTL time.Duration
	mu       sync.Mutex
	local    map[string]rangeEntry
}

type rangeEntry struct {
	body    string
	fetched time.Time
}

// New wires a checker. cache may be nil; range responses are then memoised in
// process instead.
func New(cfg Config, cache *rediscache.Cache, log *logger.Logger) *Checker {
	if log == nil {
		log = logger.NewDefault("breach")
	}
	localTTL := cfg.LocalCacheTTL
	if localTTL <= 0 {
		localTTL = defaultLocalTTL
	}
	return &Checker{
		http: httputil.NewClient(httputil.ClientConfig{
			BaseURL:   cfg.BaseURL,
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.Timeout,
			Headers:   map[string]string{"Add-Padding": "true"},
		}),
		cache:    cache,
		failOpen: cfg.FailOpen,
		log:      log,
		localTTL: localTTL,
		local:    make(map[string]rangeEntry),
	}
}

// Check returns how many times the password appears in known breach corpora.
// Zero means not found.
func (c *Checker) Check(ctx context.Context, password string) (int, error) {
	if password == "" {
		return 0, fmt.Errorf("password required")
	}

	sum := sha1.Sum([]byte(password))
	digest := strings.ToUpper(hex.EncodeToString(sum[:]))
	prefix, suffix := digest[:prefixLen], digest[prefixLen:]

	body, err := c.rangeBody(ctx, prefix)
	if err != nil {
		if c.failOpen {
			metrics.RecordBreachCheck("unavailable")
			c.log.WithError(err).Warn("range api failed, failing open")
			return 0, nil
		}
		metrics.RecordBreachCheck("failed")
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	count := scanRange(body, suffix)
	if count > 0 {
		metrics.RecordBreachCheck("breached")
	} else {
		metrics.RecordBreachCheck("clean")
	}
	return count, nil
}

func (c *Checker) rangeBody(ctx context.Context, prefix string) (string, error) {
	if c.cache != nil {
		return c.rangeBodyCached(ctx, prefix)
	}

	if body, ok := c.localLookup(prefix); ok {
		return body, nil
	}
	body, err := c.fetchRange(ctx, prefix)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.local[prefix] = rangeEntry{body: body, fetched: time.Now()}
	c.mu.Unlock()
	return body, nil
}

func (c *Checker) rangeBodyCached(ctx context.Context, prefix string) (string, error) {
	key := rediscache.Key("breach", "range", prefix)

	var cached string
	if hit, err := c.cache.GetJSON(ctx, key, &cached); err != nil {
		c.log.WithError(err).Warn("range cache read failed")
	} else if hit {
		return cached, nil
	}

	body, err := c.fetchRange(ctx, prefix)
	if err != nil {
		return "", err
	}
	if err := c.cache.SetJSON(ctx, key, body); err != nil {
		c.log.WithError(err).Warn("range cache write failed")
	}
	return body, nil
}

func (c *Checker) fetchRange(ctx context.Context, prefix string) (string, error) {
	resp, err := c.http.Get(ctx, "/range/"+prefix)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("range query status %d", resp.StatusCode)
	}
	data, err := httputil.ReadAllStrict(resp.Body, maxRangeBody)
	if err != nil {
		return "", fmt.Errorf("read range body: %w", err)
	}
	return string(data), nil
}

func (c *Checker) localLookup(prefix string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.local[prefix]
	if !ok {
		return "", false
	}
	if time.Since(entry.fetched) > c.localTTL {
		delete(c.local, prefix)
		return "", false
	}
	return entry.body, true
}

// SweepExpired drops stale entries from the in-process range cache and
// reports how many were removed. The scheduler runs this when no Redis cache
// is configured; with Redis, expiry is the server's job and the local map
// stays empty.
func (c *Checker) SweepExpired() int {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for prefix, entry := range c.local {
		if now.Sub(entry.fetched) > c.localTTL {
			delete(c.local, prefix)
			removed++
		}
	}
	return removed
}

// scanRange looks the suffix up in SUFFIX:COUNT lines. Padded zero-count
// entries and malformed lines read as not found.
func scanRange(body, suffix string) int {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		cand, countStr, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(cand), suffix) {
			continue
		}
		count, err := strconv.Atoi(strings.TrimSpace(countStr))
		if err != nil || count < 0 {
			return 0
		}
		return count
	}
	return 0
}
