package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/tagsync/internal/protocol"
)

// IntentHandler handles one intent and returns the replies addressed to its sender.
type IntentHandler func(ctx context.Context, intent protocol.Intent) ([]protocol.Push, error)

// Middleware wraps an IntentHandler in a span named "intent.<type>".
// An error return or an error reply marks the span failed. A nil tracer passes through.
func Middleware(tracer trace.Tracer) func(IntentHandler) IntentHandler {
	if tracer == nil {
		return func(next IntentHandler) IntentHandler { return next }
	}
	return func(next IntentHandler) IntentHandler {
		return func(ctx context.Context, intent protocol.Intent) ([]protocol.Push, error) {
			ctx, span := tracer.Start(ctx, SpanPrefixIntent+string(intent.MessageType()),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(attribute.String(AttrIntentType, string(intent.MessageType()))),
			)
			defer span.End()
			if id := intent.Request(); id != "" {
				span.SetAttributes(attribute.String(AttrRequestID, id))
			}

			replies, err := next(ctx, intent)

			var failed *protocol.Error
			for _, r := range replies {
				span.AddEvent(EventReply, trace.WithAttributes(attribute.String(AttrReplyType, string(r.MessageType()))))
				if e, ok := r.(protocol.Error); ok && failed == nil {
					failed = &e
				}
			}

			switch {
			case err != nil:
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			case failed != nil:
				span.SetAttributes(attribute.String(AttrErrorCode, failed.Code))
				span.SetStatus(codes.Error, failed.Message)
			default:
				span.SetStatus(codes.Ok, "")
			}
			return replies, err
		}
	}
}
