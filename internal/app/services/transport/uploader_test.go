package transport

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/proteinlens/proteinlens/internal/app/domain/session"
	"github.com/proteinlens/proteinlens/internal/app/services/capture"
	"github.com/proteinlens/proteinlens/internal/storage/objectstore"
	"github.com/proteinlens/proteinlens/pkg/logger"
)

func uploadingDriver(t *testing.T, file session.FilePayload) *capture.Driver {
	t.Helper()
	reg := capture.NewRegistry(0, logger.NewDefault("transport-test"))
	drv, err := reg.Create("user-1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, ok := drv.SelectFile(file); !ok {
		t.Fatalf("select file not applied")
	}
	if _, ok := drv.StartUpload(); !ok {
		t.Fatalf("start upload not applied")
	}
	return drv
}

func TestUploadStoresObjectAndCompletesSession(t *testing.T) {
	store := objectstore.NewMemory()
	up := New(store, logger.NewDefault("transport-test"))

	file := *session.NewFilePayload("lunch.jpg", "image/jpeg", []byte("jpegbytes"))
	drv := uploadingDriver(t, file)
	sessionID := drv.Snapshot().Session.ID

	ref, completed := up.Upload(context.Background(), drv, "user-1", sessionID, file)
	if !completed {
		t.Fatalf("expected upload to complete")
	}
	wantRef := "meals/user-1/" + sessionID + ".jpg"
	if ref != wantRef {
		t.Fatalf("ref = %q, want %q", ref, wantRef)
	}

	snap := drv.Snapshot().Session
	if snap.Phase != session.PhaseAnalyzing {
		t.Fatalf("phase = %q, want analyzing", snap.Phase)
	}
	if snap.Progress != 100 {
		t.Fatalf("progress = %d, want 100", snap.Progress)
	}
	if snap.RemoteImageRef != wantRef {
		t.Fatalf("image ref = %q, want %q", snap.RemoteImageRef, wantRef)
	}

	data, contentType, err := store.Get(context.Background(), wantRef)
	if err != nil {
		t.Fatalf("get stored object: %v", err)
	}
	if string(data) != "jpegbytes" || contentType != "image/jpeg" {
		t.Fatalf("stored object = %q (%s)", data, contentType)
	}
}

type failingStore struct{}

func (failingStore) Put(context.Context, string, io.Reader, int64, string) (string, error) {
	return "", errors.New("disk full")
}

func (failingStore) Get(context.Context, string) ([]byte, string, error) {
	return nil, "", objectstore.ErrNotFound
}

func (failingStore) Delete(context.Context, string) error { return nil }

func TestUploadFailureReportsError(t *testing.T) {
	up := New(failingStore{}, logger.NewDefault("transport-test"))

	file := *session.NewFilePayload("lunch.jpg", "image/jpeg", []byte("jpegbytes"))
	drv := uploadingDriver(t, file)

	ref, completed := up.Upload(context.Background(), drv, "user-1", drv.Snapshot().Session.ID, file)
	if completed || ref != "" {
		t.Fatalf("expected failed upload, got ref=%q completed=%v", ref, completed)
	}

	snap := drv.Snapshot().Session
	if snap.Phase != session.PhaseError {
		t.Fatalf("phase = %q, want error", snap.Phase)
	}
	if !strings.Contains(snap.ErrorMessage, "disk full") {
		t.Fatalf("error message = %q", snap.ErrorMessage)
	}
	if snap.File == nil {
		t.Fatalf("file should be kept for retry")
	}
}

func TestCanceledUploadMakesNoTerminalCall(t *testing.T) {
	store := objectstore.NewMemory()
	up := New(store, logger.NewDefault("transport-test"))

	file := *session.NewFilePayload("lunch.jpg", "image/jpeg", []byte("jpegbytes"))
	drv := uploadingDriver(t, file)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, completed := up.Upload(ctx, drv, "user-1", drv.Snapshot().Session.ID, file)
	if completed {
		t.Fatalf("canceled upload should not complete")
	}

	snap := drv.Snapshot().Session
	if snap.Phase != session.PhaseUploading {
		t.Fatalf("phase = %q, want uploading untouched", snap.Phase)
	}
	if snap.ErrorMessage != "" {
		t.Fatalf("unexpected error message %q", snap.ErrorMessage)
	}
	if store.Len() != 0 {
		t.Fatalf("store should be empty, holds %d", store.Len())
	}
}

func TestProgressReportsOncePerPercentStep(t *testing.T) {
	var got []int
	pr := &progressReader{
		r:      iotest.OneByteReader(strings.NewReader("0123456789")),
		total:  10,
		report: func(pct int) { got = append(got, pct) },
	}

	if _, err := io.ReadAll(pr); err != nil {
		t.Fatalf("read: %v", err)
	}

	want := []int{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	if len(got) != len(want) {
		t.Fatalf("got %d reports %v, want %d", len(got), got, len(want))
	}
	for i, pct := range want {
		if got[i] != pct {
			t.Fatalf("report %d = %d, want %d", i, got[i], pct)
		}
	}
}

func TestProgressAbsorbsSubPercentReads(t *testing.T) {
	payload := strings.Repeat("x", 1000)
	var got []int
	pr := &progressReader{
		r:      iotest.OneByteReader(strings.NewReader(payload)),
		total:  1000,
		report: func(pct int) { got = append(got, pct) },
	}

	if _, err := io.ReadAll(pr); err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 100 {
		t.Fatalf("got %d reports, want exactly 100", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i] <= got[i-1] {
			t.Fatalf("reports not strictly increasing at %d: %v", i, got)
		}
	}
}

func TestObjectKeyExtensions(t *testing.T) {
	cases := []struct {
		name string
		mime string
		want string
	}{
		{"lunch.jpg", "image/jpeg", "meals/u/s.jpg"},
		{"pic", "image/png", "meals/u/s.png"},
		{"", "image/webp", "meals/u/s.webp"},
		{"shot", "image/heic", "meals/u/s.heic"},
		{"shot", "image/jpeg", "meals/u/s.jpg"},
	}
	for _, tc := range cases {
		file := *session.NewFilePayload(tc.name, tc.mime, []byte("x"))
		if got := ObjectKey("u", "s", file); got != tc.want {
			t.Errorf("ObjectKey(%q, %q) = %q, want %q", tc.name, tc.mime, got, tc.want)
		}
	}
}
