package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/proteinlens/proteinlens/internal/app/domain/session"
)

type frameJSON struct {
	Type    string      `json:"type"`
	Seq     uint64      `json:"seq"`
	Session sessionJSON `json:"session"`
}

func dialEvents(t *testing.T, srv *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/sessions/" + sessionID + "/events"
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.Dial(wsURL, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frameJSON {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame frameJSON
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func TestSessionEventsStream(t *testing.T) {
	api := newTestAPI(t)
	srv := httptest.NewServer(api.h)
	defer srv.Close()

	created := createSession(t, api.h)
	conn := dialEvents(t, srv, created.ID)

	frame := readFrame(t, conn)
	if frame.Type != "snapshot" || frame.Session.Phase != "idle" {
		t.Fatalf("first frame = %+v", frame)
	}

	file := session.NewFilePayload("meal.jpg", "image/jpeg", []byte("jpeg-bytes"))
	if _, applied, err := api.app.Sessions.SelectFile(context.Background(), testUserID, created.ID, *file); err != nil || !applied {
		t.Fatalf("select file: applied=%v err=%v", applied, err)
	}

	frame = readFrame(t, conn)
	if frame.Type != "transition" || frame.Session.Phase != "selected" {
		t.Fatalf("transition frame = %+v", frame)
	}
	if frame.Seq == 0 {
		t.Fatalf("transition frame missing seq")
	}
	if frame.Session.File == nil || frame.Session.File.Checksum == "" {
		t.Fatalf("transition frame file metadata = %+v", frame.Session.File)
	}
}

func TestSessionEventsStreamFullFlow(t *testing.T) {
	api := newTestAPI(t)
	srv := httptest.NewServer(api.h)
	defer srv.Close()

	created := createSession(t, api.h)
	conn := dialEvents(t, srv, created.ID)

	if frame := readFrame(t, conn); frame.Type != "snapshot" {
		t.Fatalf("first frame = %+v", frame)
	}

	rec := postFile(t, api.h, created.ID, "meal.jpg", "image/jpeg", []byte("jpeg-bytes"))
	if rec.Code != http.StatusOK {
		t.Fatalf("select file: status %d", rec.Code)
	}
	rec = doJSON(t, api.h, http.MethodPost, "/v1/sessions/"+created.ID+"/upload", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("start upload: status %d", rec.Code)
	}

	// Frames arrive in seq order until the terminal transition. The exact
	// count varies with progress updates, so scan until done.
	deadline := time.Now().Add(3 * time.Second)
	var lastSeq uint64
	for {
		if time.Now().After(deadline) {
			t.Fatalf("never saw the done transition")
		}
		frame := readFrame(t, conn)
		if frame.Seq <= lastSeq {
			t.Fatalf("frame seq %d did not advance past %d", frame.Seq, lastSeq)
		}
		lastSeq = frame.Seq
		if frame.Session.Phase == "done" {
			if frame.Session.Result == nil || frame.Session.ResultID == "" {
				t.Fatalf("done frame missing result: %+v", frame.Session)
			}
			return
		}
	}
}

func TestSessionEventsUnknownSession(t *testing.T) {
	api := newTestAPI(t)
	srv := httptest.NewServer(api.h)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/sessions/nope/events"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		conn.Close()
		t.Fatal("expected the handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("handshake response = %+v, want 404", resp)
	}
	if resp.Body != nil {
		resp.Body.Close()
	}
}
