// Package view is the unprivileged side of the sync protocol: a disposable cache of
// the Controller's state, replaced by every snapshot it receives.
package view

import (
	"context"
	"slices"
	"sync"

	"github.com/zjrosen/tagsync/internal/log"
	"github.com/zjrosen/tagsync/internal/mutate"
	"github.com/zjrosen/tagsync/internal/protocol"
	"github.com/zjrosen/tagsync/internal/pubsub"
	"github.com/zjrosen/tagsync/internal/tags"
)

// Cache holds the last snapshot received from the Controller.
type Cache struct {
	mu        sync.RWMutex
	ready     bool
	registry  tags.Registry
	index     tags.Index
	selection []string
	lastError *protocol.Error
	version   uint64

	broker *pubsub.Broker[protocol.Push]
}

// New returns an empty cache. It holds nothing until a bootstrap arrives.
func New() *Cache {
	return &Cache{
		registry: tags.NewRegistry(),
		index:    tags.Index{},
		broker:   pubsub.NewBroker[protocol.Push](),
	}
}

// Apply folds one push into the cache. Bootstrap and registry-updated replace the
// whole state, object-updated replaces the listed objects, selection-changed
// replaces the selection. Replies that carry no state are recorded but change nothing.
func (c *Cache) Apply(p protocol.Push) {
	c.mu.Lock()
	switch m := p.(type) {
	case protocol.Bootstrap:
		c.registry = m.Registry.Clone()
		c.index = tags.NewIndex(m.Objects...)
		c.selection = slices.Clone(m.Selection)
		c.ready = true
	case protocol.RegistryUpdated:
		c.registry = m.Registry.Clone()
		c.index = tags.NewIndex(m.Objects...)
	case protocol.ObjectUpdated:
		next := c.index.Clone()
		for _, o := range m.Objects {
			next[o.ID] = o.Clone()
		}
		c.index = next
		if len(m.Skipped) > 0 {
			log.Debug(log.CatSync, "controller skipped objects", "ids", m.Skipped)
		}
	case protocol.SelectionChanged:
		c.selection = slices.Clone(m.IDs)
	case protocol.Error:
		e := m
		c.lastError = &e
	}
	c.version++
	c.mu.Unlock()

	c.broker.Publish(pubsub.UpdatedEvent, p)
}

// Follow applies pushes from events until the channel closes or ctx ends.
// It returns nil when the channel closes, which for an evicted subscriber means the
// caller should reconnect.
func (c *Cache) Follow(ctx context.Context, events <-chan pubsub.Event[protocol.Push]) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			c.Apply(ev.Payload)
		}
	}
}

// Subscribe returns every push after it has been applied.
func (c *Cache) Subscribe(ctx context.Context) <-chan pubsub.Event[protocol.Push] {
	return c.broker.Subscribe(ctx)
}

// Ready reports whether a bootstrap has been applied.
func (c *Cache) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Version increments once per applied push.
func (c *Cache) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Registry returns a copy of the cached tag registry.
func (c *Cache) Registry() tags.Registry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registry.Clone()
}

// Objects returns the cached objects in id order.
func (c *Cache) Objects() []tags.TaggedObject {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index.Clone().Objects()
}

// Object returns the cached object with id, if present.
func (c *Cache) Object(id string) (tags.TaggedObject, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	o, ok := c.index[id]
	return o.Clone(), ok
}

// Selection returns the mirrored host selection in host order.
func (c *Cache) Selection() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.selection)
}

// SelectedObjects returns the cached objects that are currently selected, in
// selection order. Selected ids not in the cache are omitted.
func (c *Cache) SelectedObjects() []tags.TaggedObject {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]tags.TaggedObject, 0, len(c.selection))
	for _, id := range c.selection {
		if o, ok := c.index[id]; ok {
			out = append(out, o.Clone())
		}
	}
	return out
}

// Filter returns cached objects holding tag, in id order.
func (c *Cache) Filter(tag string) []tags.TaggedObject {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return mutate.FindByTag(c.index.Clone(), tag)
}

// Usage counts cached objects per tag, including tags absent from the registry.
func (c *Cache) Usage() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return mutate.TagUsage(c.index)
}

// LastError returns the most recent error reply, if any.
func (c *Cache) LastError() (protocol.Error, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.lastError == nil {
		return protocol.Error{}, false
	}
	return *c.lastError, true
}

// Close ends every subscription.
func (c *Cache) Close() {
	c.broker.Close()
}
