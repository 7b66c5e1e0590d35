package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/capturectl/capturectl/internal/logger"
	"github.com/capturectl/capturectl/internal/monitor"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Maximum message size allowed from the peer; the stream is push-only
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleStatsStream pushes a performance snapshot on every poller tick.
// Polling stops when the peer goes away or the server shuts down.
func (s *Server) handleStatsStream(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.log.Warn("failed to upgrade stats stream", logger.Error(err))
		return nil
	}

	s.wg.Add(1)
	defer s.wg.Done()
	defer conn.Close()

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	peer := c.RealIP()
	s.log.Debug("stats stream opened", logger.String("peer", peer))
	defer s.log.Debug("stats stream closed", logger.String("peer", peer))

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		defer cancel()
		conn.SetReadLimit(maxMessageSize)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.log.Debug("stats stream read error", logger.Error(err))
				}
				return
			}
		}
	}()

	s.stats.Run(ctx, func(snap monitor.Snapshot) {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(snap); err != nil {
			s.log.Debug("stats stream write failed", logger.Error(err))
			cancel()
		}
	})

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	_ = conn.Close()
	<-readDone
	return nil
}
