package handler

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qhuy1504/smart-tro-server/internal/pkg/jwt"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/notify"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/ws"
)

const wsSecret = "ws-secret"

func wsServer(t *testing.T, hub *ws.Hub, origins []string) *httptest.Server {
	t.Helper()
	h := NewWebSocketHandler(hub, wsSecret, origins, slog.New(slog.NewTextHandler(io.Discard, nil)))
	router := gin.New()
	router.GET("/ws", h.Handle)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func wsURL(server *httptest.Server, token string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=" + token
}

func TestWebSocketHandler_RejectsMissingOrInvalidToken(t *testing.T) {
	hub := ws.NewHub(nil)
	server := wsServer(t, hub, nil)

	resp, err := http.Get(server.URL + "/ws")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(server.URL + "/ws?token=garbage")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketHandler_DeliversEvents(t *testing.T) {
	hub := ws.NewHub(nil)
	server := wsServer(t, hub, nil)
	token, err := jwt.GenerateToken(42, "landlord", wsSecret, time.Hour)
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, token), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.IsOnline(42) }, time.Second, 10*time.Millisecond)

	hub.Deliver(&notify.Event{Type: notify.EventOrderPaid, UserID: 42, OrderID: "ord-1"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), "ord-1")

	conn.Close()
	assert.Eventually(t, func() bool { return !hub.IsOnline(42) }, time.Second, 10*time.Millisecond)
}

func TestWebSocketHandler_RejectsForeignOrigin(t *testing.T) {
	hub := ws.NewHub(nil)
	server := wsServer(t, hub, []string{"https://smarttro.vn"})
	token, err := jwt.GenerateToken(7, "tenant", wsSecret, time.Hour)
	require.NoError(t, err)

	header := http.Header{}
	header.Set("Origin", "https://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server, token), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Zero(t, hub.ConnectionCount())
}
