// Package transport moves a session's staged file into the object store,
// feeding progress back to the session driver along the way.
package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"time"

	"github.com/proteinlens/proteinlens/internal/app/domain/session"
	"github.com/proteinlens/proteinlens/internal/app/metrics"
	"github.com/proteinlens/proteinlens/internal/app/services/capture"
	"github.com/proteinlens/proteinlens/internal/storage/objectstore"
	"github.com/proteinlens/proteinlens/pkg/logger"
)

// Uploader streams session files into an object store. It is the upload
// collaborator: zero or more ReportProgress calls, then exactly one of
// CompleteUpload / ReportError, unless the attempt itself was canceled.
type Uploader struct {
	store objectstore.ObjectStore
	log   *logger.Logger
}

var _ capture.UploadTransport = (*Uploader)(nil)

// New constructs an Uploader over the given store.
func New(store objectstore.ObjectStore, log *logger.Logger) *Uploader {
	if log == nil {
		log = logger.NewDefault("transport")
	}
	return &Uploader{store: store, log: log}
}

// Upload writes the file under the session's object key. A canceled context
// means the session abandoned the attempt; in that case no terminal callback
// is made, because the session has already moved on.
func (u *Uploader) Upload(ctx context.Context, drv *capture.Driver, userID, sessionID string, file session.FilePayload) (string, bool) {
	start := time.Now()
	key := ObjectKey(userID, sessionID, file)

	reader := &progressReader{
		r:      &ctxReader{ctx: ctx, r: bytes.NewReader(file.Data)},
		total:  file.Size,
		report: func(pct int) { drv.ReportProgress(pct) },
	}

	ref, err := u.store.Put(ctx, key, reader, file.Size, file.MIMEType)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			metrics.RecordUpload("canceled", time.Since(start))
			u.log.WithField("session_id", sessionID).Debug("upload canceled by session")
			return "", false
		}
		metrics.RecordUpload("failed", time.Since(start))
		u.log.WithField("session_id", sessionID).WithError(err).Error("upload failed")
		drv.ReportError("upload failed: " + err.Error())
		return "", false
	}

	metrics.RecordUpload("completed", time.Since(start))
	u.log.WithField("session_id", sessionID).
		WithField("ref", ref).
		WithField("bytes", file.Size).
		Info("upload completed")

	_, applied := drv.CompleteUpload(ref)
	return ref, applied
}

// ObjectKey builds the canonical storage key for a session's image.
func ObjectKey(userID, sessionID string, file session.FilePayload) string {
	ext := path.Ext(file.Name)
	if ext == "" {
		switch file.MIMEType {
		case "image/png":
			ext = ".png"
		case "image/webp":
			ext = ".webp"
		case "image/heic":
			ext = ".heic"
		default:
			ext = ".jpg"
		}
	}
	return "meals/" + userID + "/" + sessionID + ext
}

// progressReader reports whole-percent progress at most once per step, so a
// chatty io.Copy does not flood the driver with events.
type progressReader struct {
	r       io.Reader
	total   int64
	read    int64
	lastPct int
	report  func(int)
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 && p.total > 0 && p.report != nil {
		p.read += int64(n)
		pct := int(p.read * 100 / p.total)
		if pct > 100 {
			pct = 100
		}
		if pct > p.lastPct {
			p.lastPct = pct
			p.report(pct)
		}
	}
	return n, err
}

// ctxReader aborts a copy when the attempt context is canceled, covering
// stores that do not consult the context themselves.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(buf []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(buf)
}
