package api

import (
	"net/http"
	"time"

	"MarketPulse/internal/broadcast"
	xlogger "MarketPulse/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

// WSHandler streams snapshots to websocket clients. Each connection is
// one broadcaster subscription; the first frame is the latest snapshot
// so clients render immediately.
type WSHandler struct {
	logger   *xlogger.Logger
	bcast    *broadcast.Broadcaster
	upgrader websocket.Upgrader
}

func NewWSHandler(logger *xlogger.Logger, bcast *broadcast.Broadcaster) *WSHandler {
	return &WSHandler{
		logger: logger,
		bcast:  bcast,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *WSHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", h.Stream)
}

func (h *WSHandler) Stream(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	id, updates := h.bcast.Subscribe()
	defer h.bcast.Unsubscribe(id)
	defer conn.Close()

	h.logger.Debug("ws subscriber connected", xlogger.String("remote", conn.RemoteAddr().String()))

	// Reader goroutine: we never expect client frames, but reading is
	// what surfaces close frames and dead peers.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(snap); err != nil {
				h.logger.Debug("ws write failed", xlogger.Error(err))
				return nil
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		case <-done:
			return nil
		case <-c.Request().Context().Done():
			return nil
		}
	}
}
