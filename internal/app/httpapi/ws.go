package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/proteinlens/proteinlens/internal/app/services/capture"
	"github.com/proteinlens/proteinlens/internal/httputil"
)

// sessionFrame is one websocket message. Type is "snapshot" for the state
// sent on connect and "transition" for every applied event after it. Frames
// carry the whole session, so a dropped frame never strands the client.
type sessionFrame struct {
	Type    string     `json:"type"`
	Seq     uint64     `json:"seq,omitempty"`
	Session sessionDTO `json:"session"`
}

const (
	wsWriteTimeout   = 10 * time.Second
	wsPingInterval   = 30 * time.Second
	wsBufferedFrames = 32
)

// sessionEvents upgrades to a websocket and streams session transitions.
// Deliveries from the driver are concurrent and may arrive out of order;
// Change.Seq restores the order and stale frames are dropped.
func (h *handler) sessionEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	drv, err := h.app.Sessions.Driver(userID, mux.Vars(r)["id"])
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the handshake error.
		return
	}
	defer conn.Close()

	changes := make(chan capture.Change, wsBufferedFrames)
	subID := drv.Subscribe(func(c capture.Change) {
		for {
			select {
			case changes <- c:
				return
			default:
			}
			// Full buffer: shed the oldest frame to make room.
			select {
			case <-changes:
			default:
			}
		}
	})
	defer drv.Unsubscribe(subID)

	// The client sends nothing meaningful; reads only surface close and
	// protocol errors.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	snap := drv.Snapshot()
	if err := writeFrame(conn, sessionFrame{Type: "snapshot", Session: toSessionDTO(snap.Session)}); err != nil {
		return
	}

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	var lastSeq uint64
	for {
		select {
		case c := <-changes:
			if c.Seq <= lastSeq {
				continue
			}
			lastSeq = c.Seq
			frame := sessionFrame{Type: "transition", Seq: c.Seq, Session: toSessionDTO(c.Session)}
			if err := writeFrame(conn, frame); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-clientGone:
			return
		case <-r.Context().Done():
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			_ = conn.WriteMessage(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			)
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, frame sessionFrame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(frame)
}
