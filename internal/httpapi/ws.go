package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // the API is unauthenticated; origin checks add nothing
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// handleWebSocket upgrades the connection and streams registry events
// until the client goes away. Each connection gets its own bounded
// subscription; a slow client loses old events, never stalls probing.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket_upgrade_failed", "error", err)
		return
	}
	defer conn.Close()

	sub := s.reg.Subscribe()
	defer sub.Close()

	s.logger.Debug("websocket_connected", "remote", conn.RemoteAddr().String())

	// Reader goroutine: we never expect client messages, but reading is
	// required to notice closes and answer pings.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(wsPingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-done:
			return
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Debug("websocket_write_failed", "error", err)
				return
			}
		}
	}
}
