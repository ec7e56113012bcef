package breach

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/proteinlens/proteinlens/pkg/logger"
)

// SHA-1("password") = 5BAA61E4C9B93F3F0682250B6CF8331B7EE68FD8.
const passwordSuffix = "1E4C9B93F3F0682250B6CF8331B7EE68FD8"

func rangeServer(t *testing.T, lines string) (*httptest.Server, *http.Request) {
	t.Helper()
	var got http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = *r
		fmt.Fprint(w, lines)
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestCheckFindsBreachedPassword(t *testing.T) {
	lines := "0018A45C4D1DEF81644B54AB7F969B88D65:5\r\n" +
		passwordSuffix + ":3730471\r\n" +
		"011053FD0102E94D6AE2F8B83D76FAF94F6:1\r\n"
	srv, got := rangeServer(t, lines)

	chk := New(Config{BaseURL: srv.URL}, nil, logger.NewDefault("breach-test"))
	count, err := chk.Check(context.Background(), "password")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if count != 3730471 {
		t.Errorf("count = %d, want 3730471", count)
	}
	if got.URL.Path != "/range/5BAA6" {
		t.Errorf("path = %q, want the five-char prefix only", got.URL.Path)
	}
	if got.Header.Get("Add-Padding") != "true" {
		t.Errorf("Add-Padding header not sent")
	}
}

func TestCheckCleanPassword(t *testing.T) {
	srv, _ := rangeServer(t, "0018A45C4D1DEF81644B54AB7F969B88D65:5\r\n")

	chk := New(Config{BaseURL: srv.URL}, nil, logger.NewDefault("breach-test"))
	count, err := chk.Check(context.Background(), "correct horse battery staple")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
}

func TestCheckSuffixCaseInsensitive(t *testing.T) {
	srv, _ := rangeServer(t, "1e4c9b93f3f0682250b6cf8331b7ee68fd8:12\n")

	chk := New(Config{BaseURL: srv.URL}, nil, logger.NewDefault("breach-test"))
	count, err := chk.Check(context.Background(), "password")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if count != 12 {
		t.Errorf("count = %d, want 12", count)
	}
}

func TestCheckFailOpenOnOutage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	open := New(Config{BaseURL: srv.URL, FailOpen: true}, nil, logger.NewDefault("breach-test"))
	count, err := open.Check(context.Background(), "password")
	if err != nil {
		t.Fatalf("fail-open check: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}

	closed := New(Config{BaseURL: srv.URL}, nil, logger.NewDefault("breach-test"))
	if _, err := closed.Check(context.Background(), "password"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestCheckRequiresPassword(t *testing.T) {
	chk := New(Config{BaseURL: "http://unused"}, nil, logger.NewDefault("breach-test"))
	if _, err := chk.Check(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty password")
	}
}

func TestScanRange(t *testing.T) {
	body := "AAAA:0\nBBBB:7\nmalformed line\nCCCC:abc\n"

	if got := scanRange(body, "BBBB"); got != 7 {
		t.Errorf("BBBB = %d, want 7", got)
	}
	// Padding entries carry zero counts.
	if got := scanRange(body, "AAAA"); got != 0 {
		t.Errorf("AAAA = %d, want 0", got)
	}
	if got := scanRange(body, "CCCC"); got != 0 {
		t.Errorf("CCCC = %d, want 0 for malformed count", got)
	}
	if got := scanRange(body, "DDDD"); got != 0 {
		t.Errorf("DDDD = %d, want 0", got)
	}
}

func TestLocalCacheServesRepeatLookups(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprint(w, passwordSuffix+":99\r\n")
	}))
	defer srv.Close()

	chk := New(Config{BaseURL: srv.URL}, nil, logger.NewDefault("breach-test"))
	for i := 0; i < 3; i++ {
		count, err := chk.Check(context.Background(), "password")
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if count != 99 {
			t.Errorf("check %d: count = %d, want 99", i, count)
		}
	}
	if hits != 1 {
		t.Errorf("upstream hits = %d, want 1", hits)
	}
}

func TestSweepExpiredDropsStaleEntries(t *testing.T) {
	srv, _ := rangeServer(t, passwordSuffix+":1\r\n")

	chk := New(Config{BaseURL: srv.URL, LocalCacheTTL: time.Nanosecond}, nil, logger.NewDefault("breach-test"))
	if _, err := chk.Check(context.Background(), "password"); err != nil {
		t.Fatalf("check: %v", err)
	}

	time.Sleep(time.Millisecond)
	if removed := chk.SweepExpired(); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if removed := chk.SweepExpired(); removed != 0 {
		t.Errorf("second sweep removed = %d, want 0", removed)
	}
}

func TestSweepExpiredKeepsFreshEntries(t *testing.T) {
	srv, _ := rangeServer(t, passwordSuffix+":1\r\n")

	chk := New(Config{BaseURL: srv.URL, LocalCacheTTL: time.Hour}, nil, logger.NewDefault("breach-test"))
	if _, err := chk.Check(context.Background(), "password"); err != nil {
		t.Fatalf("check: %v", err)
	}

	if removed := chk.SweepExpired(); removed != 0 {
		t.Errorf("removed = %d, want 0 for fresh entry", removed)
	}
}
