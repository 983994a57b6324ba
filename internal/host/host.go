// Package host defines the boundary between the Controller and the privileged
// environment it runs in: the live canvas and its key/value storage.
package host

import (
	"context"
	"errors"

	"github.com/zjrosen/tagsync/internal/tags"
)

// ErrClosed is returned by hosts that have been shut down.
var ErrClosed = errors.New("host closed")

// Node is a canvas object as the host reports it. Type is the host's own category
// string; it is mapped onto tags.Kind when indexed.
type Node struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// Kind returns the node's category in the closed kind set.
func (n Node) Kind() tags.Kind {
	return tags.ParseKind(n.Type)
}

// Canvas is the live object graph.
type Canvas interface {
	// Nodes enumerates every object on the canvas.
	Nodes(ctx context.Context) ([]Node, error)
	// Node looks up one object. ok is false when the id is not on the canvas.
	Node(ctx context.Context, id string) (node Node, ok bool, err error)

	Selection(ctx context.Context) ([]string, error)
	SetSelection(ctx context.Context, ids []string) error
	ScrollTo(ctx context.Context, ids []string) error

	// Notify shows a transient message to the user.
	Notify(ctx context.Context, message string) error
	WriteClipboard(ctx context.Context, text string) error

	// SubscribeSelection streams selection changes until ctx is cancelled.
	SubscribeSelection(ctx context.Context) <-chan []string
}

// Write is one key/value assignment. An empty ObjectID targets the document.
type Write struct {
	ObjectID string
	Key      string
	Value    string
}

// Store is string key/value storage scoped to the document or to one object.
type Store interface {
	// Read returns the stored value, or "" when the key was never written.
	Read(ctx context.Context, objectID, key string) (string, error)
	// Write applies every write or none of them.
	Write(ctx context.Context, writes ...Write) error
}

// ObjectLister is implemented by stores that can enumerate the objects holding a key
// without walking the canvas.
type ObjectLister interface {
	ObjectIDs(ctx context.Context, key string) ([]string, error)
}
