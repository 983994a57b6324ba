// Package controller is the privileged side of the sync protocol.
//
// A Controller owns the durable registry and index. It applies View intents through the
// mutation engine one at a time, persists the result, commits it in memory only once
// persistence succeeded, and publishes a snapshot to every connected View.
package controller

import (
	"context"
	"slices"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/tagsync/internal/export"
	"github.com/zjrosen/tagsync/internal/flags"
	"github.com/zjrosen/tagsync/internal/host"
	"github.com/zjrosen/tagsync/internal/log"
	"github.com/zjrosen/tagsync/internal/mutate"
	"github.com/zjrosen/tagsync/internal/protocol"
	"github.com/zjrosen/tagsync/internal/pubsub"
	"github.com/zjrosen/tagsync/internal/tracing"
)

// IndexVariant selects which canvas objects are indexed at load.
type IndexVariant string

const (
	// IndexTagged indexes only objects carrying at least one tag.
	IndexTagged IndexVariant = "tagged"
	// IndexAll indexes every canvas object.
	IndexAll IndexVariant = "all"
)

// ParseIndexVariant maps a config value onto a variant, defaulting to IndexTagged.
func ParseIndexVariant(s string) IndexVariant {
	if IndexVariant(s) == IndexAll {
		return IndexAll
	}
	return IndexTagged
}

// Options configures a Controller.
type Options struct {
	Canvas host.Canvas
	Store  host.Store

	Index   IndexVariant
	Unknown mutate.UnknownObjectPolicy
	Export  export.Options
	Flags   *flags.Registry
	Tracer  trace.Tracer

	// SnapshotBuffer is the number of snapshots queued per subscriber before it is evicted.
	SnapshotBuffer int
	// DryRun applies intents in memory without writing to the store.
	DryRun bool
}

// Controller serializes intent handling over a single state.
type Controller struct {
	opts   Options
	canvas host.Canvas
	store  host.Store

	mu        sync.Mutex
	state     mutate.State
	selection []string

	broker *pubsub.Broker[protocol.Push]
	handle tracing.IntentHandler
}

// New creates a Controller with an empty state. Call Load before serving.
func New(opts Options) *Controller {
	if opts.SnapshotBuffer <= 0 {
		opts.SnapshotBuffer = 64
	}
	c := &Controller{
		opts:   opts,
		canvas: opts.Canvas,
		store:  opts.Store,
		state:  mutate.NewState(),
		broker: pubsub.NewBroker[protocol.Push](
			pubsub.WithBuffer(opts.SnapshotBuffer),
			pubsub.WithSlowSubscriberEviction(),
		),
	}
	c.handle = tracing.Middleware(opts.Tracer)(c.dispatchLocked)
	return c
}

// State returns a copy of the committed state.
func (c *Controller) State() mutate.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Bootstrap returns the full snapshot a View starts from.
func (c *Controller) Bootstrap(requestID string) protocol.Bootstrap {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bootstrapLocked(requestID)
}

func (c *Controller) bootstrapLocked(requestID string) protocol.Bootstrap {
	return protocol.Bootstrap{
		RequestID: requestID,
		Registry:  c.state.Registry.Clone(),
		Objects:   c.state.Index.Clone().Objects(),
		Selection: nonNil(slices.Clone(c.selection)),
	}
}

// Connect subscribes a View and returns its bootstrap snapshot. No snapshot older than
// the bootstrap is ever delivered on the channel. The subscription ends with ctx, or
// when the View falls too far behind, in which case the channel closes and the View
// should reconnect.
func (c *Controller) Connect(ctx context.Context) (protocol.Bootstrap, <-chan pubsub.Event[protocol.Push]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := c.broker.Subscribe(ctx)
	return c.bootstrapLocked(""), ch
}

// Subscribers reports the number of connected Views.
func (c *Controller) Subscribers() int {
	return c.broker.SubscriberCount()
}

// Run mirrors host selection changes to every View until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	changes := c.canvas.SubscribeSelection(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ids, ok := <-changes:
			if !ok {
				return ctx.Err()
			}
			c.mu.Lock()
			c.selection = slices.Clone(ids)
			c.broker.Publish(pubsub.UpdatedEvent, protocol.SelectionChanged{IDs: nonNil(slices.Clone(ids))})
			c.mu.Unlock()
			log.Debug(log.CatSync, "selection changed", "count", len(ids))
		}
	}
}

// Tracer returns the tracer intents are recorded with, or nil.
func (c *Controller) Tracer() trace.Tracer { return c.opts.Tracer }

// Flags returns the feature flags the controller was built with.
func (c *Controller) Flags() *flags.Registry { return c.opts.Flags }

// Close ends every View subscription.
func (c *Controller) Close() {
	c.broker.Close()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
