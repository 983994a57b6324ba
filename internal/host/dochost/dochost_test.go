package dochost

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/tagsync/internal/host"
	"github.com/zjrosen/tagsync/internal/tags"
)

const sampleDoc = `objects:
  - {id: "1:2", name: Button, type: FRAME}
  - {id: "1:3", name: Label, type: TEXT}
  - {id: "1:4", name: Blob, type: BOOLEAN_OPERATION}
selection: ["1:3"]
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "canvas.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleDoc), 0o644))
	return path
}

func openHost(t *testing.T, opts Options) *Host {
	t.Helper()
	h, err := Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestOpen_ReadsObjectsAndSelection(t *testing.T) {
	h := openHost(t, Options{Path: writeSample(t), Out: &bytes.Buffer{}})
	ctx := context.Background()

	nodes, err := h.Nodes(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	require.Equal(t, tags.KindFrame, nodes[0].Kind())
	require.Equal(t, tags.KindOther, nodes[2].Kind())

	n, ok, err := h.Node(ctx, "1:3")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Label", n.Name)

	sel, err := h.Selection(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"1:3"}, sel)
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := Open(Options{Path: filepath.Join(t.TempDir(), "absent.yaml")})
	require.Error(t, err)
}

func TestOpen_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("objects: [unclosed"), 0o644))
	_, err := Open(Options{Path: path})
	require.Error(t, err)
}

func TestStore_WritePersistsToFile(t *testing.T) {
	path := writeSample(t)
	h := openHost(t, Options{Path: path, Out: &bytes.Buffer{}})
	ctx := context.Background()

	require.NoError(t, h.Write(ctx,
		host.Write{Key: tags.RegistryKey, Value: `{"hero":{}}`},
		host.Write{ObjectID: "1:2", Key: tags.ObjectTagsKey, Value: `["hero"]`},
	))

	reopened := openHost(t, Options{Path: path, Out: &bytes.Buffer{}})
	v, err := reopened.Read(ctx, "", tags.RegistryKey)
	require.NoError(t, err)
	require.Equal(t, `{"hero":{}}`, v)
	v, err = reopened.Read(ctx, "1:2", tags.ObjectTagsKey)
	require.NoError(t, err)
	require.Equal(t, `["hero"]`, v)

	ids, err := reopened.ObjectIDs(ctx, tags.ObjectTagsKey)
	require.NoError(t, err)
	require.Equal(t, []string{"1:2"}, ids)

	nodes, err := reopened.Nodes(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 3, "objects survive a data write")
}

func TestSideEffectsGoToOut(t *testing.T) {
	var out bytes.Buffer
	h := openHost(t, Options{Path: writeSample(t), Out: &out})
	ctx := context.Background()

	require.NoError(t, h.ScrollTo(ctx, []string{"1:2", "1:3"}))
	require.NoError(t, h.Notify(ctx, "Tag already exists"))
	require.NoError(t, h.WriteClipboard(ctx, "csv"))

	require.Equal(t, "focus: 1:2, 1:3\nnotice: Tag already exists\ncsv\n", out.String())
}

func TestClipboardPath(t *testing.T) {
	clip := filepath.Join(t.TempDir(), "clipboard.txt")
	h := openHost(t, Options{Path: writeSample(t), Out: &bytes.Buffer{}, ClipboardPath: clip})

	require.NoError(t, h.WriteClipboard(context.Background(), "a,b"))
	data, err := os.ReadFile(clip)
	require.NoError(t, err)
	require.Equal(t, "a,b", string(data))
}

func TestSetSelection_PublishesAndSaves(t *testing.T) {
	path := writeSample(t)
	h := openHost(t, Options{Path: path, Out: &bytes.Buffer{}})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := h.SubscribeSelection(ctx)
	require.NoError(t, h.SetSelection(ctx, []string{"1:2", "1:4"}))

	select {
	case ids := <-ch:
		require.Equal(t, []string{"1:2", "1:4"}, ids)
	case <-time.After(time.Second):
		t.Fatal("selection change not delivered")
	}

	doc, err := readDocument(path)
	require.NoError(t, err)
	require.Equal(t, []string{"1:2", "1:4"}, doc.Selection)
}

func TestWatch_ExternalSelectionEdit(t *testing.T) {
	path := writeSample(t)
	h := openHost(t, Options{Path: path, Out: &bytes.Buffer{}, Watch: true, Debounce: 20 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := h.SubscribeSelection(ctx)

	edited := `objects:
  - {id: "1:2", name: Button, type: FRAME}
  - {id: "1:5", name: New, type: STICKY}
selection: ["1:5"]
`
	require.NoError(t, os.WriteFile(path, []byte(edited), 0o644))

	select {
	case ids := <-ch:
		require.Equal(t, []string{"1:5"}, ids)
	case <-time.After(2 * time.Second):
		t.Fatal("external selection edit not delivered")
	}

	_, ok, err := h.Node(ctx, "1:5")
	require.NoError(t, err)
	require.True(t, ok)
}
