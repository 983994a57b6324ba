package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/tagsync/internal/protocol"
	"github.com/zjrosen/tagsync/internal/pubsub"
	"github.com/zjrosen/tagsync/internal/view"
)

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readPush(t *testing.T, conn *websocket.Conn) protocol.Push {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	p, err := protocol.DecodePush(data)
	require.NoError(t, err)
	return p
}

func sendIntent(t *testing.T, conn *websocket.Conn, intent protocol.Intent) {
	t.Helper()
	data, err := protocol.Encode(intent)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func TestWebsocket_BootstrapThenSnapshots(t *testing.T) {
	ctrl := newTestController(t)
	ts := httptest.NewServer(newTestHandler(t, ctrl, nil).Routes())
	t.Cleanup(ts.Close)
	conn := dial(t, ts)

	boot, ok := readPush(t, conn).(protocol.Bootstrap)
	require.True(t, ok)
	assert.Len(t, boot.Objects, 3)

	sendIntent(t, conn, protocol.AssignTags{RequestID: "a1", ObjectIDs: []string{"frame-1"}, Tags: []string{"payments"}})

	updated, ok := readPush(t, conn).(protocol.ObjectUpdated)
	require.True(t, ok)
	assert.Equal(t, "a1", updated.RequestID)
	require.Len(t, updated.Objects, 1)
	assert.Equal(t, []string{"auth", "payments", "urgent"}, updated.Objects[0].Tags)
}

func TestWebsocket_RepliesInOrder(t *testing.T) {
	ts := httptest.NewServer(newTestHandler(t, newTestController(t), nil).Routes())
	t.Cleanup(ts.Close)
	conn := dial(t, ts)
	readPush(t, conn) // bootstrap

	sendIntent(t, conn, protocol.CreateTag{RequestID: "1", Name: "urgent"})
	sendIntent(t, conn, protocol.Export{RequestID: "2"})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"nope"}`)))

	e, ok := readPush(t, conn).(protocol.Error)
	require.True(t, ok)
	assert.Equal(t, protocol.CodeDuplicateTag, e.Code)
	assert.Equal(t, "1", e.RequestID)

	ready, ok := readPush(t, conn).(protocol.ExportReady)
	require.True(t, ok)
	assert.Equal(t, "2", ready.RequestID)

	e, ok = readPush(t, conn).(protocol.Error)
	require.True(t, ok)
	assert.Equal(t, protocol.CodeMalformedMessage, e.Code)
}

func TestWebsocket_FanOut(t *testing.T) {
	ctrl := newTestController(t)
	ts := httptest.NewServer(newTestHandler(t, ctrl, nil).Routes())
	t.Cleanup(ts.Close)

	a := dial(t, ts)
	b := dial(t, ts)
	readPush(t, a)
	readPush(t, b)

	sendIntent(t, a, protocol.RenameTag{From: "auth", To: "login"})

	for _, conn := range []*websocket.Conn{a, b} {
		updated, ok := readPush(t, conn).(protocol.RegistryUpdated)
		require.True(t, ok)
		assert.Contains(t, updated.Registry, "login")
	}
}

func TestWebsocket_EvictionClosesWithReconnect(t *testing.T) {
	events := make(chan pubsub.Event[protocol.Push])
	close(events)
	ctrl := &mockController{}
	ctrl.On("Connect", mock.Anything).Return(protocol.Bootstrap{}, (<-chan pubsub.Event[protocol.Push])(events))

	ts := httptest.NewServer(newTestHandler(t, ctrl, nil).Routes())
	t.Cleanup(ts.Close)
	conn := dial(t, ts)
	readPush(t, conn)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, CloseReconnect), "got %v", err)
}

func TestWebsocket_RejectsCrossOrigin(t *testing.T) {
	ts := httptest.NewServer(newTestHandler(t, newTestController(t), nil).Routes())
	t.Cleanup(ts.Close)

	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestClient_KeepsCacheCurrent(t *testing.T) {
	ctrl := newTestController(t)
	ts := httptest.NewServer(newTestHandler(t, ctrl, nil).Routes())
	t.Cleanup(ts.Close)

	cache := view.New()
	t.Cleanup(cache.Close)
	client := NewClient(wsURL(ts), cache)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	require.Eventually(t, cache.Ready, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, client.Connected, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, client.Send(protocol.CreateTag{Name: "fresh", Emoji: "✨"}))
	require.Eventually(t, func() bool { return cache.Registry().Has("fresh") }, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestClient_SendWithoutSession(t *testing.T) {
	client := NewClient("ws://127.0.0.1:1/ws", view.New())
	assert.ErrorIs(t, client.Send(protocol.GetBootstrap{}), ErrNotConnected)
}

func TestServer_Lifecycle(t *testing.T) {
	srv, err := NewServer(ServerConfig{Addr: "127.0.0.1:0", Controller: newTestController(t)})
	require.NoError(t, err)
	require.NotZero(t, srv.Port())

	done := make(chan error, 1)
	go func() { done <- srv.Start() }()

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr()+"/ws", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
	assert.ErrorIs(t, <-done, http.ErrServerClosed)
}

func TestWebsocket_RepliesInterleaveWithSnapshotsInOrder(t *testing.T) {
	ts := httptest.NewServer(newTestHandler(t, newTestController(t), nil).Routes())
	t.Cleanup(ts.Close)
	conn := dial(t, ts)
	readPush(t, conn) // bootstrap

	const rounds = 25
	var want []string
	for i := range rounds {
		create := fmt.Sprintf("c%d", i)
		exp := fmt.Sprintf("e%d", i)
		sendIntent(t, conn, protocol.CreateTag{RequestID: create, Name: "tag-" + create})
		sendIntent(t, conn, protocol.Export{RequestID: exp})
		want = append(want, create, exp)
	}

	got := make([]string, 0, len(want))
	for range want {
		switch p := readPush(t, conn).(type) {
		case protocol.RegistryUpdated:
			got = append(got, p.RequestID)
		case protocol.ExportReady:
			got = append(got, p.RequestID)
		default:
			t.Fatalf("unexpected push %T", p)
		}
	}
	assert.Equal(t, want, got)
}

func TestWebsocket_BootstrapReplyNeverOverwritesNewerSnapshot(t *testing.T) {
	ts := httptest.NewServer(newTestHandler(t, newTestController(t), nil).Routes())
	t.Cleanup(ts.Close)
	conn := dial(t, ts)

	cache := view.New()
	t.Cleanup(cache.Close)
	cache.Apply(readPush(t, conn))

	const exports = 10
	for i := range exports {
		sendIntent(t, conn, protocol.Export{RequestID: fmt.Sprintf("e%d", i)})
	}
	sendIntent(t, conn, protocol.GetBootstrap{RequestID: "boot"})
	sendIntent(t, conn, protocol.CreateTag{RequestID: "create", Name: "fresh"})

	var order []protocol.Type
	for range exports + 2 {
		p := readPush(t, conn)
		order = append(order, p.MessageType())
		cache.Apply(p)
	}

	require.Len(t, order, exports+2)
	assert.Equal(t, protocol.TypeBootstrap, order[exports])
	assert.Equal(t, protocol.TypeRegistryUpdated, order[exports+1])
	assert.True(t, cache.Registry().Has("fresh"))
}
