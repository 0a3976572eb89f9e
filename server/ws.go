package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"oiflow/logger"
	"oiflow/models"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The endpoint is unauthenticated read-only data; origins are not checked.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWS upgrades the connection and streams the snapshot to the client
// whenever its timestamp advances. Each client polls the cache on the push
// interval; clients never touch the poll loop.
func (s *Server) handleWS(ctx context.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := s.log.WithComponent("server").WithFields(logger.Fields{"remote": c.Request.RemoteAddr})

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.WithError(err).Warn("websocket upgrade failed")
			return
		}
		defer conn.Close()

		log.Info("websocket client connected")

		// Reader goroutine: consume control frames and detect client close.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(s.cfg.WSPushInterval)
		defer ticker.Stop()

		var lastSent time.Time
		for {
			select {
			case <-ctx.Done():
				deadline := time.Now().Add(wsWriteTimeout)
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), deadline)
				return
			case <-done:
				log.Info("websocket client disconnected")
				return
			case <-ticker.C:
				snap := s.store.Get()
				if !snap.Ready() || !snap.Timestamp.After(lastSent) {
					continue
				}
				if err := s.writeSnapshot(conn, snap); err != nil {
					log.WithError(err).Debug("websocket write failed")
					return
				}
				lastSent = snap.Timestamp
			}
		}
	}
}

func (s *Server) writeSnapshot(conn *websocket.Conn, snap models.Snapshot) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(snap)
}
