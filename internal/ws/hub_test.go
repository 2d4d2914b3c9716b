package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHubBroadcastsToEveryClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(nil)
	go h.Run(ctx)
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()

	a, b := dial(t, srv), dial(t, srv)
	require.Eventually(t, func() bool { return h.Clients() == 2 }, time.Second, 5*time.Millisecond)

	h.BroadcastJSON(map[string]any{"type": "vibration", "id": 7})
	for _, c := range []*websocket.Conn{a, b} {
		var got map[string]any
		require.NoError(t, c.SetReadDeadline(time.Now().Add(time.Second)))
		require.NoError(t, c.ReadJSON(&got))
		assert.Equal(t, "vibration", got["type"])
		assert.EqualValues(t, 7, got["id"])
	}
}

func TestHubForgetsClosedClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(nil)
	go h.Run(ctx)
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()

	c := dial(t, srv)
	require.Eventually(t, func() bool { return h.Clients() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Close())
	assert.Eventually(t, func() bool { return h.Clients() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHubDropsWhenQueueFull(t *testing.T) {
	h := NewHub(nil)
	for range cap(h.broadcast) + 3 {
		h.BroadcastJSON("x")
	}
	assert.Equal(t, int64(3), h.Dropped())
}

func TestHubRejectsUnmarshalable(t *testing.T) {
	h := NewHub(nil)
	h.BroadcastJSON(make(chan int))
	assert.Empty(t, h.broadcast)
	assert.Zero(t, h.Dropped())
}
