// Package server exposes a Controller to Views over HTTP: a websocket session per
// View, plus a request/response and SSE pair for clients that cannot hold a socket.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/tagsync/internal/flags"
	"github.com/zjrosen/tagsync/internal/log"
	"github.com/zjrosen/tagsync/internal/protocol"
	"github.com/zjrosen/tagsync/internal/pubsub"
)

// maxMessageBytes bounds a single intent body or websocket frame.
const maxMessageBytes = 1 << 20

// Controller is the part of controller.Controller the transports need.
type Controller interface {
	Handle(ctx context.Context, intent protocol.Intent) ([]protocol.Push, error)
	HandleMessage(ctx context.Context, data []byte) ([]protocol.Push, error)
	HandleMessageFor(ctx context.Context, events <-chan pubsub.Event[protocol.Push], data []byte) error
	Connect(ctx context.Context) (protocol.Bootstrap, <-chan pubsub.Event[protocol.Push])
	Subscribers() int
}

// Handler provides the HTTP endpoints.
type Handler struct {
	ctrl         Controller
	flags        *flags.Registry
	tracer       trace.Tracer
	writeTimeout time.Duration
	heartbeat    time.Duration
	upgrader     websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]context.CancelFunc
}

// HandlerConfig configures the handler.
type HandlerConfig struct {
	// Controller applies intents (required).
	Controller Controller
	// Flags gates optional endpoints (optional).
	Flags *flags.Registry
	// Tracer records one span per websocket session (optional).
	Tracer trace.Tracer
	// WriteTimeout bounds each websocket frame write. Defaults to 10s.
	WriteTimeout time.Duration
	// Heartbeat is the websocket ping and SSE keepalive interval. Defaults to 30s.
	Heartbeat time.Duration
}

// NewHandler creates a handler for cfg.Controller.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 30 * time.Second
	}
	return &Handler{
		ctrl:         cfg.Controller,
		flags:        cfg.Flags,
		tracer:       cfg.Tracer,
		writeTimeout: cfg.WriteTimeout,
		heartbeat:    cfg.Heartbeat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		sessions: make(map[string]context.CancelFunc),
	}
}

// Routes returns an http.Handler with all routes registered.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	// Full-duplex session
	mux.HandleFunc("GET /ws", h.ServeWebsocket)

	// Request/response + event stream
	mux.HandleFunc("POST /intents", h.PostIntent)
	mux.HandleFunc("GET /events", h.StreamEvents)

	mux.HandleFunc("GET /export.csv", h.ExportCSV)
	mux.HandleFunc("GET /health", h.Health)

	if h.flags.Enabled(flags.FlagDebugEndpoints) {
		mux.HandleFunc("GET /debug/log", h.StreamLog)
	}
	return mux
}

// === Response Types ===

// IntentResponse is the body returned by POST /intents.
type IntentResponse struct {
	Replies []json.RawMessage `json:"replies"`
}

// HealthResponse is the body returned by GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Views    int    `json:"views"`
}

// ErrorResponse is the body for transport-level failures.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// === Handlers ===

// PostIntent applies one intent and returns the replies addressed to the sender.
// Snapshots are delivered on /events or /ws, not here.
// POST /intents
func (h *Handler) PostIntent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "read_failed", err.Error())
		return
	}

	replies, err := h.ctrl.HandleMessage(r.Context(), body)
	status := http.StatusOK
	switch {
	case err != nil:
		status = http.StatusInternalServerError
	case hasError(replies, protocol.CodeMalformedMessage):
		status = http.StatusBadRequest
	case hasError(replies, protocol.CodeDuplicateTag):
		status = http.StatusConflict
	}

	resp := IntentResponse{Replies: make([]json.RawMessage, 0, len(replies))}
	for _, p := range replies {
		data, err := protocol.Encode(p)
		if err != nil {
			log.ErrorErr(log.CatServer, "encoding reply failed", err, "type", p.MessageType())
			continue
		}
		resp.Replies = append(resp.Replies, data)
	}
	h.writeJSON(w, status, resp)
}

// StreamEvents streams the bootstrap followed by every snapshot as SSE.
// GET /events
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "streaming_unsupported", "Streaming not supported")
		return
	}
	setSSEHeaders(w)

	boot, events := h.ctrl.Connect(r.Context())
	log.Debug(log.CatServer, "sse view connected", "remote", r.RemoteAddr)
	if err := writeSSE(w, boot); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				// Evicted; the client reconnects and bootstraps again.
				_, _ = fmt.Fprintf(w, "event: reconnect\ndata: {}\n\n")
				flusher.Flush()
				return
			}
			if err := writeSSE(w, ev.Payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// ExportCSV serves the export as a CSV download. Query parameters header and scope
// override the configured defaults.
// GET /export.csv
func (h *Handler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	replies, err := h.ctrl.Handle(r.Context(), protocol.Export{Header: q.Get("header"), Scope: q.Get("scope")})
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, protocol.CodeInternal, err.Error())
		return
	}
	for _, p := range replies {
		if ready, ok := p.(protocol.ExportReady); ok {
			w.Header().Set("Content-Type", "text/csv; charset=utf-8")
			w.Header().Set("Content-Disposition", `attachment; filename="tags.csv"`)
			w.WriteHeader(http.StatusOK)
			_, _ = io.WriteString(w, ready.CSV)
			return
		}
	}
	h.writeError(w, http.StatusInternalServerError, protocol.CodeInternal, "export produced no reply")
}

// Health reports liveness and connection counts.
// GET /health
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	sessions := len(h.sessions)
	h.mu.Unlock()
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Sessions: sessions, Views: h.ctrl.Subscribers()})
}

// StreamLog streams formatted log lines as SSE. Registered only with the
// debug-endpoints flag.
// GET /debug/log
func (h *Handler) StreamLog(w http.ResponseWriter, r *http.Request) {
	lines := log.Subscribe(r.Context())
	if lines == nil {
		h.writeError(w, http.StatusServiceUnavailable, "logging_disabled", "Logging is not enabled (run with --debug)")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "streaming_unsupported", "Streaming not supported")
		return
	}
	setSSEHeaders(w)
	_, _ = fmt.Fprintf(w, "event: connected\ndata: {}\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-lines:
			if !ok {
				return
			}
			data, _ := json.Marshal(ev.Payload)
			_, _ = fmt.Fprintf(w, "event: log\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// === Helpers ===

func (h *Handler) trackSession(id string, cancel context.CancelFunc) {
	h.mu.Lock()
	h.sessions[id] = cancel
	h.mu.Unlock()
}

func (h *Handler) untrackSession(id string) {
	h.mu.Lock()
	delete(h.sessions, id)
	h.mu.Unlock()
}

// closeSessions ends every websocket session. http.Server.Shutdown does not track
// hijacked connections.
func (h *Handler) closeSessions() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, cancel := range h.sessions {
		cancel()
		delete(h.sessions, id)
	}
}

func hasError(replies []protocol.Push, code string) bool {
	for _, p := range replies {
		if e, ok := p.(protocol.Error); ok && e.Code == code {
			return true
		}
	}
	return false
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
}

func writeSSE(w io.Writer, p protocol.Push) error {
	data, err := protocol.Encode(p)
	if err != nil {
		log.ErrorErr(log.CatServer, "encoding push failed", err, "type", p.MessageType())
		return nil
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", p.MessageType(), data)
	return err
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error(log.CatServer, "Failed to encode JSON response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}
