package server

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 2 * time.Second

// handleWebSocket pushes the status every meter interval until the client
// goes away or the server shuts down.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	slog.Debug("WebSocket client connected", "remote", conn.RemoteAddr().String())

	// Reads only detect the peer closing the connection
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.session.MeterInterval())
	defer ticker.Stop()

	for {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(s.status("")); err != nil {
			slog.Debug("WebSocket write failed", "error", err)
			return
		}

		select {
		case <-ticker.C:
		case <-gone:
			slog.Debug("WebSocket client disconnected")
			return
		case <-s.done.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(wsWriteTimeout))
			return
		}
	}
}
