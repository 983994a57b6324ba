package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/zjrosen/tagsync/internal/protocol"
)

func replying(replies ...protocol.Push) IntentHandler {
	return func(context.Context, protocol.Intent) ([]protocol.Push, error) {
		return replies, nil
	}
}

func attr(kvs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range kvs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestMiddleware_NilTracerPassesThrough(t *testing.T) {
	called := false
	h := Middleware(nil)(func(context.Context, protocol.Intent) ([]protocol.Push, error) {
		called = true
		return nil, nil
	})
	_, err := h(context.Background(), protocol.GetBootstrap{})
	require.NoError(t, err)
	require.True(t, called)
}

func TestMiddleware_SpanPerIntent(t *testing.T) {
	rec, tp := newRecorder()
	h := Middleware(tp.Tracer("test"))(replying(protocol.ExportReady{CSV: "x"}))

	_, err := h(context.Background(), protocol.Export{RequestID: "r1"})
	require.NoError(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	require.Equal(t, "intent.export", span.Name())
	require.Equal(t, codes.Ok, span.Status().Code)

	v, ok := attr(span.Attributes(), AttrRequestID)
	require.True(t, ok)
	require.Equal(t, "r1", v.AsString())

	require.Len(t, span.Events(), 1)
	require.Equal(t, EventReply, span.Events()[0].Name)
}

func TestMiddleware_ErrorReplyFailsSpan(t *testing.T) {
	rec, tp := newRecorder()
	h := Middleware(tp.Tracer("test"))(replying(protocol.Error{Code: protocol.CodeDuplicateTag, Message: "exists"}))

	_, err := h(context.Background(), protocol.CreateTag{Name: "a"})
	require.NoError(t, err)

	span := rec.Ended()[0]
	require.Equal(t, codes.Error, span.Status().Code)
	require.Equal(t, "exists", span.Status().Description)
	v, ok := attr(span.Attributes(), AttrErrorCode)
	require.True(t, ok)
	require.Equal(t, protocol.CodeDuplicateTag, v.AsString())
	_, ok = attr(span.Attributes(), AttrRequestID)
	require.False(t, ok, "no request id attribute when none was sent")
}

func TestMiddleware_ErrorReturnRecorded(t *testing.T) {
	rec, tp := newRecorder()
	boom := errors.New("store down")
	h := Middleware(tp.Tracer("test"))(func(context.Context, protocol.Intent) ([]protocol.Push, error) {
		return nil, boom
	})

	_, err := h(context.Background(), protocol.DeleteTag{Name: "a"})
	require.ErrorIs(t, err, boom)

	span := rec.Ended()[0]
	require.Equal(t, codes.Error, span.Status().Code)
	require.Len(t, span.Events(), 1, "RecordError adds an exception event")
	require.Equal(t, "exception", span.Events()[0].Name)
}

func TestMiddleware_HandlerSeesSpanContext(t *testing.T) {
	_, tp := newRecorder()
	var seen string
	h := Middleware(tp.Tracer("test"))(func(ctx context.Context, _ protocol.Intent) ([]protocol.Push, error) {
		seen = TraceID(ctx)
		return nil, nil
	})
	_, err := h(context.Background(), protocol.GetBootstrap{})
	require.NoError(t, err)
	require.Len(t, seen, 32)
}
