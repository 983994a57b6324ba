// Package memhost is an in-memory host: a canvas and a store held in maps.
// It backs tests and embeds the engine where no real canvas exists.
package memhost

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/zjrosen/tagsync/internal/host"
	"github.com/zjrosen/tagsync/internal/pubsub"
)

// Canvas is an in-memory host.Canvas.
type Canvas struct {
	mu            sync.RWMutex
	nodes         map[string]host.Node
	selection     []string
	scrolled      [][]string
	notifications []string
	clipboard     string
	broker        *pubsub.Broker[[]string]
}

var _ host.Canvas = (*Canvas)(nil)

// NewCanvas returns a canvas holding nodes.
func NewCanvas(nodes ...host.Node) *Canvas {
	c := &Canvas{
		nodes:  make(map[string]host.Node, len(nodes)),
		broker: pubsub.NewBroker[[]string](),
	}
	for _, n := range nodes {
		c.nodes[n.ID] = n
	}
	return c
}

// Put adds or replaces a node.
func (c *Canvas) Put(n host.Node) {
	c.mu.Lock()
	c.nodes[n.ID] = n
	c.mu.Unlock()
}

func (c *Canvas) Nodes(_ context.Context) ([]host.Node, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]host.Node, 0, len(c.nodes))
	for _, n := range c.nodes {
		out = append(out, n)
	}
	slices.SortFunc(out, func(a, b host.Node) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (c *Canvas) Node(_ context.Context, id string) (host.Node, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.nodes[id]
	return n, ok, nil
}

func (c *Canvas) Selection(_ context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.selection), nil
}

// SetSelection replaces the selection and publishes it to subscribers.
func (c *Canvas) SetSelection(_ context.Context, ids []string) error {
	c.mu.Lock()
	c.selection = slices.Clone(ids)
	c.mu.Unlock()
	c.broker.Publish(pubsub.UpdatedEvent, slices.Clone(ids))
	return nil
}

func (c *Canvas) ScrollTo(_ context.Context, ids []string) error {
	c.mu.Lock()
	c.scrolled = append(c.scrolled, slices.Clone(ids))
	c.mu.Unlock()
	return nil
}

func (c *Canvas) Notify(_ context.Context, message string) error {
	c.mu.Lock()
	c.notifications = append(c.notifications, message)
	c.mu.Unlock()
	return nil
}

func (c *Canvas) WriteClipboard(_ context.Context, text string) error {
	c.mu.Lock()
	c.clipboard = text
	c.mu.Unlock()
	return nil
}

func (c *Canvas) SubscribeSelection(ctx context.Context) <-chan []string {
	events := c.broker.Subscribe(ctx)
	out := make(chan []string, 1)
	go func() {
		defer close(out)
		for ev := range events {
			select {
			case out <- ev.Payload:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Notifications returns every message passed to Notify.
func (c *Canvas) Notifications() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.notifications)
}

// Scrolled returns every id list passed to ScrollTo.
func (c *Canvas) Scrolled() [][]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.scrolled)
}

// Clipboard returns the last text written to the clipboard.
func (c *Canvas) Clipboard() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clipboard
}

// Close ends every selection subscription.
func (c *Canvas) Close() {
	c.broker.Close()
}
