package gateway

import (
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"murmur/internal/history"
)

const wsWriteTimeout = 10 * time.Second

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{CheckOrigin: s.checkOrigin}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.opts.AllowedOrigins) == 0 || slices.Contains(s.opts.AllowedOrigins, "*") {
		return true
	}
	if slices.Contains(s.opts.AllowedOrigins, origin) {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && u.Host == r.Host
}

// handleWebSocket resolves each text frame as an utterance and replies with
// one JSON frame per utterance, in order.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade", "error", err)
		return
	}
	defer conn.Close()
	slog.Debug("websocket connected", "remote", r.RemoteAddr)

	for {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("websocket closed", "remote", r.RemoteAddr)
			} else {
				slog.Warn("websocket read", "remote", r.RemoteAddr, "error", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		var reply any
		res, err := s.resolve(r.Context(), history.SourceWebSocket, string(msg))
		if err != nil {
			_, body := resolutionError(err)
			reply = body
		} else {
			reply = res
		}

		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(reply); err != nil {
			slog.Warn("websocket write", "remote", r.RemoteAddr, "error", err)
			return
		}
	}
}
