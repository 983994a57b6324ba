// Package testutil builds canvas and store fixtures for tests.
package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/tagsync/internal/host"
	"github.com/zjrosen/tagsync/internal/host/memhost"
	"github.com/zjrosen/tagsync/internal/tags"
)

// Builder accumulates objects, registry entries and a selection, then writes them
// into a host.
type Builder struct {
	t           *testing.T
	objects     []objectData
	registry    []tagData
	rawRegistry *string
	selection   []string
}

// NewBuilder creates an empty builder.
func NewBuilder(t *testing.T) *Builder {
	t.Helper()
	return &Builder{t: t}
}

// WithObject adds a canvas object with optional configuration.
func (b *Builder) WithObject(id string, opts ...ObjectOption) *Builder {
	obj := defaultObject(id)
	for _, opt := range opts {
		opt(&obj)
	}
	b.objects = append(b.objects, obj)
	return b
}

// WithTag registers a tag.
func (b *Builder) WithTag(name string, opts ...TagOption) *Builder {
	tag := tagData{name: name}
	for _, opt := range opts {
		opt(&tag)
	}
	b.registry = append(b.registry, tag)
	return b
}

// WithRawRegistry stores blob as the registry verbatim.
func (b *Builder) WithRawRegistry(blob string) *Builder {
	b.rawRegistry = &blob
	return b
}

// WithSelection sets the initial host selection.
func (b *Builder) WithSelection(ids ...string) *Builder {
	b.selection = ids
	return b
}

// Build returns an in-memory canvas and store holding the accumulated data.
func (b *Builder) Build() (*memhost.Canvas, *memhost.Store) {
	b.t.Helper()
	canvas := memhost.NewCanvas()
	store := memhost.NewStore()
	b.BuildInto(canvas, store)
	b.t.Cleanup(canvas.Close)
	return canvas, store
}

// BuildInto writes the accumulated data into an existing canvas and store.
func (b *Builder) BuildInto(canvas *memhost.Canvas, store host.Store) {
	b.t.Helper()
	ctx := context.Background()

	for _, obj := range b.objects {
		canvas.Put(host.Node{ID: obj.id, Name: obj.name, Type: obj.kind})
	}
	require.NoError(b.t, store.Write(ctx, b.writes()...))
	if b.selection != nil {
		require.NoError(b.t, canvas.SetSelection(ctx, b.selection))
	}
}

func (b *Builder) writes() []host.Write {
	b.t.Helper()
	var writes []host.Write

	switch {
	case b.rawRegistry != nil:
		writes = append(writes, host.Write{Key: tags.RegistryKey, Value: *b.rawRegistry})
	case len(b.registry) > 0:
		reg := tags.NewRegistry()
		for _, tag := range b.registry {
			reg[tag.name] = tag.meta
		}
		blob, err := tags.SerializeRegistry(reg)
		require.NoError(b.t, err)
		writes = append(writes, host.Write{Key: tags.RegistryKey, Value: blob})
	}

	for _, obj := range b.objects {
		value := ""
		switch {
		case obj.rawTags != nil:
			value = *obj.rawTags
		case obj.tags != nil:
			blob, err := tags.SerializeTagSet(obj.tags)
			require.NoError(b.t, err)
			value = blob
		default:
			continue
		}
		writes = append(writes, host.Write{ObjectID: obj.id, Key: tags.ObjectTagsKey, Value: value})
	}
	return writes
}
