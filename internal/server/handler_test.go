package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/tagsync/internal/controller"
	"github.com/zjrosen/tagsync/internal/flags"
	"github.com/zjrosen/tagsync/internal/protocol"
	"github.com/zjrosen/tagsync/internal/pubsub"
	"github.com/zjrosen/tagsync/internal/testutil"
)

// mockController is a testify mock of Controller.
type mockController struct {
	mock.Mock
}

func (m *mockController) Handle(ctx context.Context, intent protocol.Intent) ([]protocol.Push, error) {
	args := m.Called(ctx, intent)
	replies, _ := args.Get(0).([]protocol.Push)
	return replies, args.Error(1)
}

func (m *mockController) HandleMessage(ctx context.Context, data []byte) ([]protocol.Push, error) {
	args := m.Called(ctx, data)
	replies, _ := args.Get(0).([]protocol.Push)
	return replies, args.Error(1)
}

func (m *mockController) HandleMessageFor(ctx context.Context, events <-chan pubsub.Event[protocol.Push], data []byte) error {
	return m.Called(ctx, events, data).Error(0)
}

func (m *mockController) Connect(ctx context.Context) (protocol.Bootstrap, <-chan pubsub.Event[protocol.Push]) {
	args := m.Called(ctx)
	return args.Get(0).(protocol.Bootstrap), args.Get(1).(<-chan pubsub.Event[protocol.Push])
}

func (m *mockController) Subscribers() int {
	return m.Called().Int(0)
}

func newTestController(t *testing.T) *controller.Controller {
	t.Helper()
	canvas, store := testutil.NewBuilder(t).WithDesignSystemData().Build()
	ctrl := controller.New(controller.Options{Canvas: canvas, Store: store})
	t.Cleanup(ctrl.Close)
	require.NoError(t, ctrl.Load(context.Background()))
	return ctrl
}

func newTestHandler(t *testing.T, ctrl Controller, reg *flags.Registry) *Handler {
	t.Helper()
	return NewHandler(HandlerConfig{Controller: ctrl, Flags: reg, Heartbeat: time.Second, WriteTimeout: time.Second})
}

func postIntent(t *testing.T, h *Handler, body string) (*httptest.ResponseRecorder, []protocol.Push) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/intents", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)

	var resp IntentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	replies := make([]protocol.Push, 0, len(resp.Replies))
	for _, raw := range resp.Replies {
		p, err := protocol.DecodePush(raw)
		require.NoError(t, err)
		replies = append(replies, p)
	}
	return w, replies
}

func TestHandler_PostIntent(t *testing.T) {
	ctrl := newTestController(t)
	h := newTestHandler(t, ctrl, nil)

	w, replies := postIntent(t, h, `{"type":"create-tag","name":"new","color":"#00ff00"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, replies)
	assert.True(t, ctrl.State().Registry.Has("new"))
}

func TestHandler_PostIntent_Bootstrap(t *testing.T) {
	h := newTestHandler(t, newTestController(t), nil)

	w, replies := postIntent(t, h, `{"type":"get-bootstrap","requestId":"b1"}`)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, replies, 1)
	boot := replies[0].(protocol.Bootstrap)
	assert.Equal(t, "b1", boot.RequestID)
	assert.Len(t, boot.Objects, 3)
}

func TestHandler_PostIntent_Duplicate(t *testing.T) {
	h := newTestHandler(t, newTestController(t), nil)

	w, replies := postIntent(t, h, `{"type":"create-tag","name":"urgent"}`)

	require.Equal(t, http.StatusConflict, w.Code)
	require.Len(t, replies, 1)
	assert.Equal(t, protocol.CodeDuplicateTag, replies[0].(protocol.Error).Code)
}

func TestHandler_PostIntent_Malformed(t *testing.T) {
	h := newTestHandler(t, newTestController(t), nil)

	w, replies := postIntent(t, h, `not json`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Len(t, replies, 1)
	assert.Equal(t, protocol.CodeMalformedMessage, replies[0].(protocol.Error).Code)
}

func TestHandler_PostIntent_InternalError(t *testing.T) {
	ctrl := &mockController{}
	boom := errors.New("store down")
	ctrl.On("HandleMessage", mock.Anything, mock.Anything).
		Return([]protocol.Push{protocol.Error{Code: protocol.CodeInternal, Message: boom.Error()}}, boom).
		Once()
	h := newTestHandler(t, ctrl, nil)

	w, replies := postIntent(t, h, `{"type":"delete-tag","name":"x"}`)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Len(t, replies, 1)
	assert.Equal(t, protocol.CodeInternal, replies[0].(protocol.Error).Code)
	ctrl.AssertExpectations(t)
}

func TestHandler_ExportCSV(t *testing.T) {
	h := newTestHandler(t, newTestController(t), nil)

	req := httptest.NewRequest(http.MethodGet, "/export.csv?header=item", nil)
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	lines := strings.Split(w.Body.String(), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "itemId,itemName,description,tags", lines[0])
	assert.Equal(t, `"frame-1","Login","frame","auth|urgent"`, lines[1])
	assert.Equal(t, `"text-1","Say ""hi""","text","copy"`, lines[3])
}

func TestHandler_ExportCSV_Error(t *testing.T) {
	ctrl := &mockController{}
	ctrl.On("Handle", mock.Anything, protocol.Export{}).Return(nil, errors.New("boom")).Once()
	h := newTestHandler(t, ctrl, nil)

	req := httptest.NewRequest(http.MethodGet, "/export.csv", nil)
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	ctrl.AssertExpectations(t)
}

func TestHandler_Health(t *testing.T) {
	ctrl := &mockController{}
	ctrl.On("Subscribers").Return(2)
	h := newTestHandler(t, ctrl, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Views)
}

func TestHandler_DebugLogRequiresFlag(t *testing.T) {
	h := newTestHandler(t, &mockController{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/debug/log", nil)
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_DebugLogWithoutLogging(t *testing.T) {
	reg := flags.New(map[string]bool{flags.FlagDebugEndpoints: true})
	h := newTestHandler(t, &mockController{}, reg)

	req := httptest.NewRequest(http.MethodGet, "/debug/log", nil)
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// sseReader reads "event:"/"data:" pairs from an SSE stream.
type sseReader struct {
	r *bufio.Reader
}

func (s *sseReader) next(t *testing.T) (string, string) {
	t.Helper()
	var event, data string
	for {
		line, err := s.r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && event != "":
			return event, data
		}
	}
}

func TestHandler_StreamEvents(t *testing.T) {
	ctrl := newTestController(t)
	ts := httptest.NewServer(newTestHandler(t, ctrl, nil).Routes())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	stream := &sseReader{r: bufio.NewReader(resp.Body)}
	event, data := stream.next(t)
	require.Equal(t, string(protocol.TypeBootstrap), event)
	p, err := protocol.DecodePush([]byte(data))
	require.NoError(t, err)
	assert.Len(t, p.(protocol.Bootstrap).Objects, 3)

	_, err = ctrl.Handle(context.Background(), protocol.DeleteTag{Name: "urgent"})
	require.NoError(t, err)

	event, data = stream.next(t)
	require.Equal(t, string(protocol.TypeRegistryUpdated), event)
	p, err = protocol.DecodePush([]byte(data))
	require.NoError(t, err)
	assert.NotContains(t, p.(protocol.RegistryUpdated).Registry, "urgent")
}

func TestHandler_StreamEvents_Eviction(t *testing.T) {
	events := make(chan pubsub.Event[protocol.Push])
	close(events)
	ctrl := &mockController{}
	ctrl.On("Connect", mock.Anything).Return(protocol.Bootstrap{}, (<-chan pubsub.Event[protocol.Push])(events))

	ts := httptest.NewServer(newTestHandler(t, ctrl, nil).Routes())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/events")
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	stream := &sseReader{r: bufio.NewReader(resp.Body)}
	event, _ := stream.next(t)
	assert.Equal(t, string(protocol.TypeBootstrap), event)
	event, _ = stream.next(t)
	assert.Equal(t, "reconnect", event)
}
