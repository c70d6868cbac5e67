package daemon

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"vaultkeeper/internal/logging"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsBatch        = 100
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 64 * 1024,
}

// handleEventsWS streams hub events as JSON text frames, starting after the
// since query parameter. The client only needs to read.
func (s *apiServer) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	since, _ := strconv.ParseUint(r.URL.Query().Get("since"), 10, 64)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reader: any inbound close or error ends the stream.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		resp, err := s.svc.Events(ctx, since, wsBatch, true)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.logger.Debug("event stream ended", logging.Error(err))
			}
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		}
		for _, evt := range resp.Events {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		}
		since = resp.Next
	}
}
