package server

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/tagsync/internal/log"
	"github.com/zjrosen/tagsync/internal/protocol"
	"github.com/zjrosen/tagsync/internal/pubsub"
	"github.com/zjrosen/tagsync/internal/tracing"
)

// CloseReconnect is the close code sent to a View that fell too far behind. The View
// should reconnect and start over from a fresh bootstrap.
const CloseReconnect = websocket.CloseTryAgainLater

// sameOrigin accepts requests without an Origin header (non-browser clients) and
// browser requests whose origin host matches the request host.
func sameOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// ServeWebsocket runs one View session: bootstrap on connect, then intents in and
// replies plus snapshots out. Replies share the View's snapshot subscription, so the
// single writer sends everything in the order the controller produced it.
// GET /ws
func (h *Handler) ServeWebsocket(w http.ResponseWriter, r *http.Request) {
	up := h.upgrader
	up.CheckOrigin = sameOrigin
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		log.Warn(log.CatServer, "websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()
	conn.SetReadLimit(maxMessageBytes)

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	h.trackSession(id, cancel)
	defer h.untrackSession(id)

	if h.tracer != nil {
		var span trace.Span
		ctx, span = h.tracer.Start(ctx, tracing.SpanSession, trace.WithAttributes(
			attribute.String(tracing.AttrSessionID, id),
			attribute.String(tracing.AttrTransport, "websocket"),
		))
		defer span.End()
	}

	boot, events := h.ctrl.Connect(ctx)
	log.Info(log.CatServer, "view connected", "session", id, "remote", r.RemoteAddr)

	s := &session{
		id:        id,
		conn:      conn,
		heartbeat: h.heartbeat,
		timeout:   h.writeTimeout,
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		errCh <- s.writePump(ctx, boot, events)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		errCh <- s.readPump(ctx, h.ctrl, events)
	}()

	// Wait for either direction to stop.
	var reason error
	select {
	case <-ctx.Done():
	case reason = <-errCh:
	}
	cancel()
	// Unblock the reader.
	_ = conn.SetReadDeadline(time.Now())
	wg.Wait()

	log.Info(log.CatServer, "view disconnected", "session", id, "reason", reason)
}

type session struct {
	id        string
	conn      *websocket.Conn
	heartbeat time.Duration
	timeout   time.Duration
}

var errEvicted = errors.New("view evicted: too far behind")

// writePump owns every write to the connection.
func (s *session) writePump(ctx context.Context, boot protocol.Bootstrap, events <-chan pubsub.Event[protocol.Push]) error {
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	if err := s.write(boot); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			s.close(websocket.CloseGoingAway, "server shutting down")
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				s.close(CloseReconnect, "reconnect")
				return errEvicted
			}
			if err := s.write(ev.Payload); err != nil {
				return err
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.timeout)); err != nil {
				return err
			}
		}
	}
}

// readPump decodes and applies intents until the connection fails.
func (s *session) readPump(ctx context.Context, ctrl Controller, events <-chan pubsub.Event[protocol.Push]) error {
	// Two missed heartbeats end the session.
	deadline := 2 * s.heartbeat
	_ = s.conn.SetReadDeadline(time.Now().Add(deadline))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(deadline))
		if kind != websocket.TextMessage {
			continue
		}

		if err := ctrl.HandleMessageFor(ctx, events, data); err != nil {
			log.ErrorErr(log.CatServer, "intent failed", err, "session", s.id)
		}
	}
}

func (s *session) write(p protocol.Push) error {
	data, err := protocol.Encode(p)
	if err != nil {
		log.ErrorErr(log.CatServer, "encoding push failed", err, "type", p.MessageType())
		return nil
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.timeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *session) close(code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.timeout))
}
