package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zjrosen/tagsync/internal/log"
	"github.com/zjrosen/tagsync/internal/protocol"
	"github.com/zjrosen/tagsync/internal/view"
)

// ErrNotConnected is returned by Send while no session is open.
var ErrNotConnected = errors.New("not connected")

// Client is a View-side websocket session that keeps a view.Cache current and
// reconnects when the server drops it.
type Client struct {
	url     string
	cache   *view.Cache
	dialer  *websocket.Dialer
	backoff time.Duration

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewClient creates a client for a ws:// or wss:// URL ending in /ws.
func NewClient(url string, cache *view.Cache) *Client {
	return &Client{
		url:     url,
		cache:   cache,
		dialer:  websocket.DefaultDialer,
		backoff: 500 * time.Millisecond,
	}
}

// Run connects and applies pushes to the cache until ctx ends. Dropped sessions are
// re-established; every new session starts from a fresh bootstrap.
func (c *Client) Run(ctx context.Context) error {
	wait := c.backoff
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var ce *websocket.CloseError
		switch {
		case errors.As(err, &ce) && ce.Code == CloseReconnect:
			log.Info(log.CatServer, "server asked to reconnect")
			wait = c.backoff
		case err != nil:
			log.Warn(log.CatServer, "session ended", "error", err, "retryIn", wait)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait = min(wait*2, 30*time.Second)
	}
}

func (c *Client) session(ctx context.Context) error {
	conn, resp, err := c.dialer.DialContext(ctx, c.url, http.Header{})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dialing %s: %w", c.url, err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close()
	}()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		p, err := protocol.DecodePush(data)
		if err != nil {
			log.Warn(log.CatSync, "dropping malformed push", "error", err)
			continue
		}
		c.cache.Apply(p)
	}
}

// Send writes an intent on the current session.
func (c *Client) Send(intent protocol.Intent) error {
	data, err := protocol.Encode(intent)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Connected reports whether a session is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}
