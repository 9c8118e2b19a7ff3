package stream

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-amm/lumen/internal/bus"
)

func dialTestServer(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestStreamDeliversPublishedEvents(t *testing.T) {
	b := bus.NewMemoryBus()
	s := New(b, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Run(ctx)

	conn := dialTestServer(t, s)

	// Give the server a moment to register the client.
	require.Eventually(t, func() bool { return s.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	err := b.PublishJSON(ctx, bus.TopicSwaps, "curve-1", map[string]string{
		"event_type": "swap_executed",
		"curve_id":   "curve-1",
	})
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env struct {
		Topic   string          `json:"topic"`
		Key     string          `json:"key"`
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&env))

	assert.Equal(t, bus.TopicSwaps, env.Topic)
	assert.Equal(t, "curve-1", env.Key)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "swap_executed", payload["event_type"])
}

func TestStreamMultipleTopics(t *testing.T) {
	b := bus.NewMemoryBus()
	s := New(b, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Run(ctx)

	conn := dialTestServer(t, s)
	require.Eventually(t, func() bool { return s.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	require.NoError(t, b.PublishJSON(ctx, bus.TopicLifecycle, "curve-2",
		map[string]string{"event_type": "curve_graduated"}))
	require.NoError(t, b.PublishJSON(ctx, bus.TopicClaims, "alice",
		map[string]string{"event_type": "reward_claimed"}))

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var env struct {
			Topic string `json:"topic"`
		}
		require.NoError(t, conn.ReadJSON(&env))
		got[env.Topic] = true
	}
	assert.True(t, got[bus.TopicLifecycle])
	assert.True(t, got[bus.TopicClaims])
}

func TestStreamClientDisconnect(t *testing.T) {
	b := bus.NewMemoryBus()
	s := New(b, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Run(ctx)

	conn := dialTestServer(t, s)
	require.Eventually(t, func() bool { return s.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return s.ClientCount() == 0 },
		2*time.Second, 10*time.Millisecond)

	// Publishing after disconnect must not panic or block.
	require.NoError(t, b.PublishJSON(ctx, bus.TopicSwaps, "curve-1",
		map[string]string{"event_type": "swap_executed"}))
}
