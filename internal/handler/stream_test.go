package handler

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenlens/internal/models"
	"tokenlens/internal/stream"
)

func newStreamServer(t *testing.T, hub *stream.Hub) *httptest.Server {
	t.Helper()
	h := NewStreamHandler(hub, testLogger())
	router := gin.New()
	router.GET("/ws", h.HandleWebSocket)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func TestStreamHandlerWebSocketDeliversTransfers(t *testing.T) {
	hub := stream.NewHub(8, testLogger())
	srv := newStreamServer(t, hub)

	// Published before any client connects, replayed from the buffer on
	// subscribe
	hub.Publish(models.Transfer{TxHash: "0xa", Value: 1.5})

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"tx_hash":"0xa"`)
}

func TestStreamHandlerWebSocketDisconnectUnsubscribes(t *testing.T) {
	hub := stream.NewHub(8, testLogger())
	srv := newStreamServer(t, hub)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())

	// The read pump notices the closed connection and the handler cleans up
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 },
		time.Second, 10*time.Millisecond)
}
