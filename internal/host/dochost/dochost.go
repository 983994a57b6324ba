// Package dochost is a host backed by a YAML canvas document on disk.
//
// The document lists the canvas objects and the current selection, and can also hold
// the document-level and per-object key/value data, so one file is a complete host.
// With Watch enabled the file is reloaded whenever it changes on disk and selection
// edits made by other programs are streamed to subscribers.
package dochost

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/zjrosen/tagsync/internal/host"
	"github.com/zjrosen/tagsync/internal/log"
	"github.com/zjrosen/tagsync/internal/pubsub"
	"github.com/zjrosen/tagsync/internal/watcher"
)

// Options configures a document host.
type Options struct {
	Path string
	// Watch reloads the document on external changes.
	Watch    bool
	Debounce time.Duration
	// Out receives notifications and focus changes. Defaults to os.Stderr.
	Out io.Writer
	// ClipboardPath, when set, receives clipboard writes. Otherwise they go to Out.
	ClipboardPath string
}

// Host is a host.Canvas and host.Store over one document file.
type Host struct {
	opts Options

	mu  sync.RWMutex
	doc document

	broker  *pubsub.Broker[[]string]
	watcher *watcher.Watcher
	stop    chan struct{}
	wg      sync.WaitGroup
}

var (
	_ host.Canvas       = (*Host)(nil)
	_ host.Store        = (*Host)(nil)
	_ host.ObjectLister = (*Host)(nil)
)

// Open loads the document at opts.Path.
func Open(opts Options) (*Host, error) {
	if opts.Out == nil {
		opts.Out = os.Stderr
	}
	doc, err := readDocument(opts.Path)
	if err != nil {
		return nil, err
	}

	h := &Host{
		opts:   opts,
		doc:    doc,
		broker: pubsub.NewBroker[[]string](),
		stop:   make(chan struct{}),
	}

	if opts.Watch {
		cfg := watcher.DefaultConfig(opts.Path)
		if opts.Debounce > 0 {
			cfg.Debounce = opts.Debounce
		}
		w, err := watcher.New(cfg)
		if err != nil {
			return nil, err
		}
		changes, err := w.Start()
		if err != nil {
			_ = w.Stop()
			return nil, err
		}
		h.watcher = w
		h.wg.Add(1)
		go h.watch(changes)
	}

	log.Info(log.CatHost, "document opened", "path", opts.Path, "objects", len(doc.Objects), "watch", opts.Watch)
	return h, nil
}

// Close stops watching and ends every selection subscription.
func (h *Host) Close() error {
	close(h.stop)
	var err error
	if h.watcher != nil {
		err = h.watcher.Stop()
	}
	h.wg.Wait()
	h.broker.Close()
	return err
}

func (h *Host) watch(changes <-chan struct{}) {
	defer h.wg.Done()
	for {
		select {
		case <-h.stop:
			return
		case <-changes:
			h.reload()
		}
	}
}

// reload rereads the document and publishes the selection if it changed.
// The read happens under the lock so it cannot interleave with update.
func (h *Host) reload() {
	h.mu.Lock()
	doc, err := readDocument(h.opts.Path)
	if err != nil {
		h.mu.Unlock()
		log.Warn(log.CatHost, "document reload failed", "path", h.opts.Path, "error", err)
		return
	}
	changed := !slices.Equal(h.doc.Selection, doc.Selection)
	h.doc = doc
	h.mu.Unlock()

	log.Debug(log.CatHost, "document reloaded", "path", h.opts.Path, "selectionChanged", changed)
	if changed {
		h.broker.Publish(pubsub.UpdatedEvent, slices.Clone(doc.Selection))
	}
}

// update applies fn to a copy of the document, saves it, and keeps it on success.
func (h *Host) update(fn func(*document)) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	next := h.doc.clone()
	fn(&next)
	if err := writeDocument(h.opts.Path, next); err != nil {
		return err
	}
	h.doc = next
	return nil
}

// === Canvas ===

func (h *Host) Nodes(_ context.Context) ([]host.Node, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.doc.Objects), nil
}

func (h *Host) Node(_ context.Context, id string) (host.Node, bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, n := range h.doc.Objects {
		if n.ID == id {
			return n, true, nil
		}
	}
	return host.Node{}, false, nil
}

func (h *Host) Selection(_ context.Context) ([]string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.doc.Selection), nil
}

// SetSelection saves the new selection into the document and publishes it.
func (h *Host) SetSelection(_ context.Context, ids []string) error {
	if err := h.update(func(d *document) { d.Selection = slices.Clone(ids) }); err != nil {
		return fmt.Errorf("saving selection: %w", err)
	}
	h.broker.Publish(pubsub.UpdatedEvent, slices.Clone(ids))
	return nil
}

func (h *Host) ScrollTo(_ context.Context, ids []string) error {
	_, err := fmt.Fprintf(h.opts.Out, "focus: %s\n", strings.Join(ids, ", "))
	return err
}

func (h *Host) Notify(_ context.Context, message string) error {
	log.Info(log.CatHost, "notify", "message", message)
	_, err := fmt.Fprintf(h.opts.Out, "notice: %s\n", message)
	return err
}

func (h *Host) WriteClipboard(_ context.Context, text string) error {
	if h.opts.ClipboardPath != "" {
		if err := os.WriteFile(h.opts.ClipboardPath, []byte(text), 0o644); err != nil { //nolint:gosec // G306: clipboard file is user-readable by intent
			return fmt.Errorf("writing clipboard file: %w", err)
		}
		return nil
	}
	_, err := io.WriteString(h.opts.Out, text+"\n")
	return err
}

func (h *Host) SubscribeSelection(ctx context.Context) <-chan []string {
	events := h.broker.Subscribe(ctx)
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

// === Store ===

func (h *Host) Read(_ context.Context, objectID, key string) (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if objectID == "" {
		return h.doc.DocumentData[key], nil
	}
	return h.doc.ObjectData[objectID][key], nil
}

// Write applies every value and saves the document once.
func (h *Host) Write(_ context.Context, writes ...host.Write) error {
	if len(writes) == 0 {
		return nil
	}
	err := h.update(func(d *document) {
		for _, w := range writes {
			if w.ObjectID == "" {
				if d.DocumentData == nil {
					d.DocumentData = map[string]string{}
				}
				d.DocumentData[w.Key] = w.Value
				continue
			}
			if d.ObjectData == nil {
				d.ObjectData = map[string]map[string]string{}
			}
			if d.ObjectData[w.ObjectID] == nil {
				d.ObjectData[w.ObjectID] = map[string]string{}
			}
			d.ObjectData[w.ObjectID][w.Key] = w.Value
		}
	})
	if err != nil {
		return fmt.Errorf("saving document data: %w", err)
	}
	return nil
}

// ObjectIDs returns the ids of objects holding a non-empty value for key, in id order.
func (h *Host) ObjectIDs(_ context.Context, key string) ([]string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var ids []string
	for _, id := range slices.Sorted(maps.Keys(h.doc.ObjectData)) {
		if h.doc.ObjectData[id][key] != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
