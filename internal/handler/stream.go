package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"tokenlens/internal/stream"
	"tokenlens/pkg/logger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// StreamHandler serves live transfer events over WebSocket or SSE.
type StreamHandler struct {
	hub    *stream.Hub
	logger *logger.Logger
}

// NewStreamHandler creates a stream handler.
func NewStreamHandler(hub *stream.Hub, log *logger.Logger) *StreamHandler {
	return &StreamHandler{hub: hub, logger: log}
}

// HandleWebSocket upgrades the connection and forwards transfer events as
// JSON text frames. Pings every 30s keep idle connections alive.
func (h *StreamHandler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to upgrade connection"})
		return
	}
	defer conn.Close()

	clientChan, cleanup := h.hub.Subscribe()
	defer cleanup()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	// Read pump: the stream is server-to-client only, but something has to
	// consume inbound frames for pong handling and disconnect detection.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return

		case data, ok := <-clientChan:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// HandleSSE streams transfer events as Server-Sent Events until the client
// disconnects.
func (h *StreamHandler) HandleSSE(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	clientChan, cleanup := h.hub.Subscribe()
	defer cleanup()

	for {
		select {
		case data, ok := <-clientChan:
			if !ok {
				return
			}
			c.SSEvent("transfer", string(data))
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}
