package transport

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybre/beatviz/internal/beat"
	"github.com/cybre/beatviz/internal/reaction"
	"github.com/cybre/beatviz/internal/session"
)

func newTestHub(t *testing.T, particles ...reaction.Particle) (*Hub, string) {
	t.Helper()
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), particles)
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		_ = hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, hub *Hub, url string, want int) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool { return hub.Clients() == want }, time.Second, time.Millisecond)
	return conn
}

func TestHubBroadcastsFrames(t *testing.T) {
	hub, url := newTestHub(t)
	a := dial(t, hub, url, 1)
	b := dial(t, hub, url, 2)

	frame := session.Frame{
		Seq:    7,
		At:     time.UnixMilli(1_700_000_000_000),
		Result: beat.Result{Beat: true, Energy: 30, Baseline: 12, Threshold: 18},
		State:  reaction.State{Beat: true, Scale: 1.5, Color: reaction.Red},
	}
	require.NoError(t, hub.Render(context.Background(), frame))

	for _, conn := range []*websocket.Conn{a, b} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
		var got FrameMessage
		require.NoError(t, conn.ReadJSON(&got))
		assert.Equal(t, FrameMessage{
			Type:      "frame",
			Seq:       7,
			At:        1_700_000_000_000,
			Beat:      true,
			Energy:    30,
			Baseline:  12,
			Threshold: 18,
			Scale:     1.5,
			Color:     "#ff0000",
		}, got)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) FrameMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	var got FrameMessage
	require.NoError(t, conn.ReadJSON(&got))
	return got
}

func TestHubSendsParticlesOnFirstFrame(t *testing.T) {
	field := []reaction.Particle{{X: 1, Y: -2, Z: 0.5}, {X: -4, Y: 3, Z: -1}}
	hub, url := newTestHub(t, field...)
	ctx := context.Background()

	early := dial(t, hub, url, 1)
	require.NoError(t, hub.Render(ctx, session.Frame{Seq: 1}))
	require.NoError(t, hub.Render(ctx, session.Frame{Seq: 2}))

	first := readFrame(t, early)
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, field, first.Particles)
	assert.Empty(t, readFrame(t, early).Particles)

	late := dial(t, hub, url, 2)
	require.NoError(t, hub.Render(ctx, session.Frame{Seq: 3}))

	assert.Empty(t, readFrame(t, early).Particles)
	got := readFrame(t, late)
	assert.Equal(t, uint64(3), got.Seq)
	assert.Equal(t, field, got.Particles)
}

func TestHubBroadcastsNotices(t *testing.T) {
	hub, url := newTestHub(t)
	conn := dial(t, hub, url, 1)

	hub.Notice(context.Background(), "audio capture resumed")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	var got NoticeMessage
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, NoticeMessage{Type: "notice", Message: "audio capture resumed"}, got)
}

func TestHubDropsDisconnectedClients(t *testing.T) {
	hub, url := newTestHub(t)
	conn := dial(t, hub, url, 1)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, time.Millisecond)

	assert.NoError(t, hub.Render(context.Background(), session.Frame{Seq: 1}))
}

func TestHubRenderNeverBlocks(t *testing.T) {
	hub, url := newTestHub(t)
	dial(t, hub, url, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range clientBuffer * 10 {
			_ = hub.Render(context.Background(), session.Frame{Seq: uint64(i)})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Render blocked on a client that is not reading")
	}
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	hub, url := newTestHub(t)
	conn := dial(t, hub, url, 1)

	require.NoError(t, hub.Close())
	assert.Zero(t, hub.Clients())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}
