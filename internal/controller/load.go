package controller

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/tagsync/internal/flags"
	"github.com/zjrosen/tagsync/internal/host"
	"github.com/zjrosen/tagsync/internal/log"
	"github.com/zjrosen/tagsync/internal/mutate"
	"github.com/zjrosen/tagsync/internal/tags"
	"github.com/zjrosen/tagsync/internal/tracing"
)

// Load replaces the state with the registry and index read from the host.
// Unreadable blobs count as empty and are logged; only host failures are returned.
func (c *Controller) Load(ctx context.Context) error {
	if c.opts.Tracer != nil {
		var span trace.Span
		ctx, span = c.opts.Tracer.Start(ctx, tracing.SpanLoad)
		defer span.End()
	}

	blob, err := c.store.Read(ctx, "", tags.RegistryKey)
	if err != nil {
		return fmt.Errorf("reading registry: %w", err)
	}
	registry, err := tags.ParseRegistry(blob)
	if err != nil {
		log.Warn(log.CatStore, "unparsable registry blob, starting empty", "error", err)
	}

	index, err := c.loadIndex(ctx)
	if err != nil {
		return err
	}

	selection, err := c.canvas.Selection(ctx)
	if err != nil {
		return fmt.Errorf("reading selection: %w", err)
	}

	state := mutate.State{Registry: registry, Index: index}
	if c.opts.Flags.Enabled(flags.FlagAdoptOrphans) {
		state, err = c.adoptOrphans(ctx, state)
		if err != nil {
			return err
		}
	}

	trace.SpanFromContext(ctx).SetAttributes(attribute.Int(tracing.AttrObjectCount, len(index)))

	c.mu.Lock()
	c.state = state
	c.selection = selection
	c.mu.Unlock()

	log.Info(log.CatSync, "state loaded",
		"tags", len(registry), "objects", len(index), "variant", c.opts.Index, "orphans", len(mutate.OrphanTags(state)))
	return nil
}

func (c *Controller) loadIndex(ctx context.Context) (tags.Index, error) {
	if lister, ok := c.store.(host.ObjectLister); ok && c.opts.Index != IndexAll {
		return c.loadTaggedFromStore(ctx, lister)
	}

	nodes, err := c.canvas.Nodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerating canvas: %w", err)
	}
	index := make(tags.Index, len(nodes))
	for _, n := range nodes {
		obj, err := c.readObject(ctx, n)
		if err != nil {
			return nil, err
		}
		if c.opts.Index != IndexAll && len(obj.Tags) == 0 {
			continue
		}
		index[obj.ID] = obj
	}
	return index, nil
}

// loadTaggedFromStore visits only objects the store knows to hold tags, skipping
// ids that are no longer on the canvas.
func (c *Controller) loadTaggedFromStore(ctx context.Context, lister host.ObjectLister) (tags.Index, error) {
	ids, err := lister.ObjectIDs(ctx, tags.ObjectTagsKey)
	if err != nil {
		return nil, fmt.Errorf("listing tagged objects: %w", err)
	}
	index := make(tags.Index, len(ids))
	for _, id := range ids {
		node, ok, err := c.canvas.Node(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("looking up object %s: %w", id, err)
		}
		if !ok {
			log.Debug(log.CatSync, "tagged object missing from canvas", "id", id)
			continue
		}
		obj, err := c.readObject(ctx, node)
		if err != nil {
			return nil, err
		}
		if len(obj.Tags) > 0 {
			index[obj.ID] = obj
		}
	}
	return index, nil
}

// readObject builds the indexed form of a canvas node from its stored tag set.
func (c *Controller) readObject(ctx context.Context, n host.Node) (tags.TaggedObject, error) {
	blob, err := c.store.Read(ctx, n.ID, tags.ObjectTagsKey)
	if err != nil {
		return tags.TaggedObject{}, fmt.Errorf("reading tags of %s: %w", n.ID, err)
	}
	set, err := tags.ParseTagSet(blob)
	if err != nil {
		log.Warn(log.CatStore, "unparsable tag set, treating as empty", "id", n.ID, "error", err)
	}
	return tags.TaggedObject{ID: n.ID, Name: n.Name, Kind: n.Kind(), Tags: set}, nil
}

func (c *Controller) adoptOrphans(ctx context.Context, s mutate.State) (mutate.State, error) {
	orphans := mutate.OrphanTags(s)
	if len(orphans) == 0 {
		return s, nil
	}
	next := s.Clone()
	for _, name := range orphans {
		next.Registry[name] = tags.Meta{}
	}
	if err := c.persist(ctx, mutate.Result{State: next, RegistryChanged: true}); err != nil {
		return s, fmt.Errorf("adopting orphan tags: %w", err)
	}
	log.Info(log.CatRegistry, "adopted orphan tags", "tags", orphans)
	return next, nil
}
