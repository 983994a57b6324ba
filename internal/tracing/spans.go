package tracing

// Span attribute keys.
const (
	AttrIntentType  = "intent.type"
	AttrRequestID   = "intent.request_id"
	AttrAffected    = "mutation.affected"
	AttrSkipped     = "mutation.skipped"
	AttrRegistry    = "mutation.registry_changed"
	AttrReplyType   = "reply.type"
	AttrErrorCode   = "error.code"
	AttrSessionID   = "session.id"
	AttrTransport   = "session.transport"
	AttrObjectCount = "index.objects"
)

// Span names.
const (
	SpanPrefixIntent = "intent."
	SpanLoad         = "controller.load"
	SpanPersist      = "store.write"
	SpanSession      = "session"
)

// Event names.
const (
	EventReply     = "reply"
	EventPublished = "snapshot.published"
)
