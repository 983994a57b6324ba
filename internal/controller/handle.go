package controller

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/tagsync/internal/export"
	"github.com/zjrosen/tagsync/internal/host"
	"github.com/zjrosen/tagsync/internal/log"
	"github.com/zjrosen/tagsync/internal/mutate"
	"github.com/zjrosen/tagsync/internal/protocol"
	"github.com/zjrosen/tagsync/internal/pubsub"
	"github.com/zjrosen/tagsync/internal/tags"
	"github.com/zjrosen/tagsync/internal/tracing"
)

// Handle applies one intent. The returned pushes are addressed to the sender only
// (bootstrap, export-ready, error); mutation snapshots go to every subscriber.
// A non-nil error means the host failed; the replies then carry an internal error.
func (c *Controller) Handle(ctx context.Context, intent protocol.Intent) ([]protocol.Push, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle(ctx, intent)
}

// HandleMessage decodes a raw message and handles it. Malformed input is logged and
// answered with a malformed_message error instead of being applied.
func (c *Controller) HandleMessage(ctx context.Context, data []byte) ([]protocol.Push, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handleMessageLocked(ctx, data)
}

// HandleMessageFor handles a raw message from the View subscribed on events. Its
// replies are delivered on events itself, after every snapshot published before the
// message was handled and before any published after, so one connection sees a single
// ordered stream.
func (c *Controller) HandleMessageFor(ctx context.Context, events <-chan pubsub.Event[protocol.Push], data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	replies, err := c.handleMessageLocked(ctx, data)
	for _, p := range replies {
		if !c.broker.Send(events, pubsub.UpdatedEvent, p) {
			log.Warn(log.CatSync, "reply dropped, view no longer subscribed", "type", p.MessageType())
			break
		}
	}
	return err
}

func (c *Controller) handleMessageLocked(ctx context.Context, data []byte) ([]protocol.Push, error) {
	intent, err := protocol.DecodeIntent(data)
	if err != nil {
		var mm *protocol.MalformedMessageError
		if errors.As(err, &mm) {
			log.Warn(log.CatSync, "dropping malformed message", "type", mm.Type, "reason", mm.Reason)
			return []protocol.Push{protocol.Error{
				Code:        protocol.CodeMalformedMessage,
				Message:     mm.Error(),
				RequestType: mm.Type,
			}}, nil
		}
		return nil, err
	}
	return c.handle(ctx, intent)
}

// dispatchLocked applies one intent. Caller holds c.mu.
func (c *Controller) dispatchLocked(ctx context.Context, intent protocol.Intent) ([]protocol.Push, error) {
	log.Debug(log.CatSync, "handling intent", "type", intent.MessageType(), "requestId", intent.Request(),
		"traceId", tracing.TraceID(ctx))
	if err := intent.Validate(); err != nil {
		return c.rejectLocked(ctx, intent, err), nil
	}

	switch m := intent.(type) {
	case protocol.GetBootstrap:
		return []protocol.Push{c.bootstrapLocked(m.RequestID)}, nil

	case protocol.CreateTag:
		meta := m.Meta()
		if meta.EmojiTooLong() {
			log.Warn(log.CatRegistry, "emoji longer than recommended", "tag", m.Name, "emoji", meta.Emoji,
				"max", tags.MaxEmojiClusters)
		}
		res, err := mutate.CreateTag(c.state, m.Name, meta)
		if err != nil {
			return c.rejectLocked(ctx, m, err), nil
		}
		return c.commitRegistryLocked(ctx, m, res)

	case protocol.DeleteTag:
		return c.commitRegistryLocked(ctx, m, mutate.DeleteTag(c.state, m.Name))

	case protocol.RenameTag:
		res, err := mutate.RenameTag(c.state, m.From, m.To)
		if err != nil {
			return c.rejectLocked(ctx, m, err), nil
		}
		return c.commitRegistryLocked(ctx, m, res)

	case protocol.MergeTags:
		res, err := mutate.MergeTags(c.state, m.Into, m.From)
		if err != nil {
			return c.rejectLocked(ctx, m, err), nil
		}
		return c.commitRegistryLocked(ctx, m, res)

	case protocol.AssignTags:
		base, err := c.hydrateLocked(ctx, m.ObjectIDs)
		if err != nil {
			return internalError(m, err), err
		}
		res := mutate.AssignTags(base, m.ObjectIDs, m.Tags, mutate.AssignOpts{Unknown: c.opts.Unknown})
		return c.commitObjectsLocked(ctx, m, m.ObjectIDs, res)

	case protocol.RemoveTags:
		res := mutate.RemoveTags(c.state, m.ObjectIDs, m.Tags)
		return c.commitObjectsLocked(ctx, m, m.ObjectIDs, res)

	case protocol.FindByTag:
		return c.findLocked(ctx, m)

	case protocol.Export:
		return c.exportLocked(ctx, m), nil

	default:
		err := &protocol.MalformedMessageError{Type: intent.MessageType(), Reason: "unhandled intent"}
		return []protocol.Push{protocol.Error{
			RequestID:   intent.Request(),
			Code:        protocol.CodeMalformedMessage,
			Message:     err.Error(),
			RequestType: intent.MessageType(),
		}}, nil
	}
}

// rejectLocked turns an engine error into an error reply. Duplicate tags also raise a
// host notification.
func (c *Controller) rejectLocked(ctx context.Context, intent protocol.Intent, err error) []protocol.Push {
	code := protocol.CodeMalformedMessage
	var dup *mutate.DuplicateTagError
	if errors.As(err, &dup) {
		code = protocol.CodeDuplicateTag
		if nerr := c.canvas.Notify(ctx, fmt.Sprintf("Tag %q already exists", dup.Name)); nerr != nil {
			log.Warn(log.CatHost, "notify failed", "error", nerr)
		}
	}
	log.Info(log.CatRegistry, "intent rejected", "type", intent.MessageType(), "code", code, "error", err)
	return []protocol.Push{protocol.Error{
		RequestID:   intent.Request(),
		Code:        code,
		Message:     err.Error(),
		RequestType: intent.MessageType(),
	}}
}

func internalError(intent protocol.Intent, err error) []protocol.Push {
	return []protocol.Push{protocol.Error{
		RequestID:   intent.Request(),
		Code:        protocol.CodeInternal,
		Message:     err.Error(),
		RequestType: intent.MessageType(),
	}}
}

// hydrateLocked returns the state with any requested id that is on the canvas but not
// yet indexed added from the host, so assigning to a fresh object works with the
// tagged-only index.
func (c *Controller) hydrateLocked(ctx context.Context, ids []string) (mutate.State, error) {
	var missing []string
	for _, id := range ids {
		if _, ok := c.state.Index[id]; !ok && id != "" {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return c.state, nil
	}

	base := c.state.Clone()
	for _, id := range missing {
		node, ok, err := c.canvas.Node(ctx, id)
		if err != nil {
			return c.state, fmt.Errorf("looking up object %s: %w", id, err)
		}
		if !ok {
			continue
		}
		obj, err := c.readObject(ctx, node)
		if err != nil {
			return c.state, err
		}
		base.Index[id] = obj
	}
	return base, nil
}

func (c *Controller) commitRegistryLocked(ctx context.Context, intent protocol.Intent, res mutate.Result) ([]protocol.Push, error) {
	if err := c.commitLocked(ctx, intent, res); err != nil {
		return internalError(intent, err), err
	}
	c.publishLocked(ctx, protocol.RegistryUpdated{
		RequestID: intent.Request(),
		Cause:     intent.MessageType(),
		Affected:  res.Affected,
		Registry:  c.state.Registry.Clone(),
		Objects:   c.state.Index.Clone().Objects(),
	})
	return nil, nil
}

func (c *Controller) commitObjectsLocked(ctx context.Context, intent protocol.Intent, ids []string, res mutate.Result) ([]protocol.Push, error) {
	for _, id := range res.Skipped {
		log.Warn(log.CatRegistry, "object skipped", "error", &mutate.NotFoundError{Kind: "object", ID: id})
	}
	if err := c.commitLocked(ctx, intent, res); err != nil {
		return internalError(intent, err), err
	}

	seen := make(map[string]struct{}, len(ids))
	objects := make([]tags.TaggedObject, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if obj, ok := c.state.Index[id]; ok {
			objects = append(objects, obj.Clone())
		}
	}

	c.publishLocked(ctx, protocol.ObjectUpdated{
		RequestID: intent.Request(),
		Cause:     intent.MessageType(),
		Affected:  res.Affected,
		Objects:   objects,
		Skipped:   res.Skipped,
	})
	return nil, nil
}

// commitLocked persists res and, only on success, makes it the committed state.
func (c *Controller) commitLocked(ctx context.Context, intent protocol.Intent, res mutate.Result) error {
	if err := c.persist(ctx, res); err != nil {
		log.ErrorErr(log.CatStore, "persist failed, state unchanged", err, "type", intent.MessageType())
		return err
	}
	c.state = res.State

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Int(tracing.AttrAffected, res.Affected),
		attribute.Int(tracing.AttrSkipped, len(res.Skipped)),
		attribute.Bool(tracing.AttrRegistry, res.RegistryChanged),
	)
	log.Info(log.CatRegistry, "intent applied", "type", intent.MessageType(),
		"affected", res.Affected, "skipped", len(res.Skipped), "registryChanged", res.RegistryChanged)
	return nil
}

// persist writes the registry (when it changed) and every changed object's tag set in
// one store write.
func (c *Controller) persist(ctx context.Context, res mutate.Result) error {
	var writes []host.Write
	if res.RegistryChanged {
		blob, err := tags.SerializeRegistry(res.State.Registry)
		if err != nil {
			return err
		}
		writes = append(writes, host.Write{Key: tags.RegistryKey, Value: blob})
	}
	for _, id := range res.Changed {
		blob, err := tags.SerializeTagSet(res.State.Index[id].Tags)
		if err != nil {
			return err
		}
		writes = append(writes, host.Write{ObjectID: id, Key: tags.ObjectTagsKey, Value: blob})
	}
	if len(writes) == 0 || c.opts.DryRun {
		return nil
	}

	if c.opts.Tracer != nil {
		var span trace.Span
		ctx, span = c.opts.Tracer.Start(ctx, tracing.SpanPersist, trace.WithAttributes(attribute.Int("writes", len(writes))))
		defer span.End()
	}
	if err := c.store.Write(ctx, writes...); err != nil {
		return fmt.Errorf("persisting %d values: %w", len(writes), err)
	}
	return nil
}

func (c *Controller) publishLocked(ctx context.Context, p protocol.Push) {
	c.broker.Publish(pubsub.UpdatedEvent, p)
	trace.SpanFromContext(ctx).AddEvent(tracing.EventPublished,
		trace.WithAttributes(attribute.String(tracing.AttrReplyType, string(p.MessageType()))))
}

// findLocked selects and focuses every object carrying the tag. The selection change
// reaches Views through the host's selection stream, not as a reply.
func (c *Controller) findLocked(ctx context.Context, m protocol.FindByTag) ([]protocol.Push, error) {
	matches := mutate.FindByTag(c.state.Index, m.Tag)
	ids := make([]string, 0, len(matches))
	for _, o := range matches {
		ids = append(ids, o.ID)
	}

	if err := c.canvas.SetSelection(ctx, ids); err != nil {
		return internalError(m, err), fmt.Errorf("setting selection: %w", err)
	}
	if len(ids) == 0 {
		if err := c.canvas.Notify(ctx, fmt.Sprintf("No objects tagged %q", m.Tag)); err != nil {
			log.Warn(log.CatHost, "notify failed", "error", err)
		}
		return nil, nil
	}
	if err := c.canvas.ScrollTo(ctx, ids); err != nil {
		log.Warn(log.CatHost, "scroll failed", "error", err)
	}
	log.Debug(log.CatSync, "find by tag", "tag", m.Tag, "matches", len(ids))
	return nil, nil
}

// exportLocked renders the CSV, places it on the host clipboard, and replies with it.
func (c *Controller) exportLocked(ctx context.Context, m protocol.Export) []protocol.Push {
	opts := c.opts.Export
	if m.Header != "" {
		opts.Header = export.ParseHeader(m.Header)
	}
	if m.Scope != "" {
		opts.Scope = export.ParseScope(m.Scope)
	}

	table := export.CSV(c.state.Index, opts)
	if err := c.canvas.WriteClipboard(ctx, table.CSV); err != nil {
		log.Warn(log.CatExport, "clipboard write failed", "error", err)
	}
	log.Info(log.CatExport, "export ready", "rows", table.Rows, "header", opts.Header, "scope", opts.Scope)
	return []protocol.Push{protocol.ExportReady{RequestID: m.RequestID, CSV: table.CSV, Rows: table.Rows}}
}
