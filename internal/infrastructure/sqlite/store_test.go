package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/tagsync/internal/host"
	"github.com/zjrosen/tagsync/internal/tags"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "tagsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestStore_ReadMissingIsEmpty(t *testing.T) {
	s := newTestDB(t).Store("doc", CacheOptions{Enabled: true, TTL: time.Minute})

	v, err := s.Read(context.Background(), "", tags.RegistryKey)
	require.NoError(t, err)
	require.Empty(t, v)
}

func TestStore_WriteThenRead(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t).Store("doc", CacheOptions{Enabled: true, TTL: time.Minute})

	require.NoError(t, s.Write(ctx,
		host.Write{Key: tags.RegistryKey, Value: `{"a":{}}`},
		host.Write{ObjectID: "1:2", Key: tags.ObjectTagsKey, Value: `["a"]`},
	))

	v, err := s.Read(ctx, "", tags.RegistryKey)
	require.NoError(t, err)
	require.Equal(t, `{"a":{}}`, v)

	v, err = s.Read(ctx, "1:2", tags.ObjectTagsKey)
	require.NoError(t, err)
	require.Equal(t, `["a"]`, v)

	require.NoError(t, s.Write(ctx, host.Write{ObjectID: "1:2", Key: tags.ObjectTagsKey, Value: `["b"]`}))
	v, err = s.Read(ctx, "1:2", tags.ObjectTagsKey)
	require.NoError(t, err)
	require.Equal(t, `["b"]`, v)
}

func TestStore_ScopesAreIsolated(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	a := db.Store("a", CacheOptions{})
	b := db.Store("b", CacheOptions{})

	require.NoError(t, a.Write(ctx, host.Write{Key: "k", Value: "from-a"}))

	v, err := b.Read(ctx, "", "k")
	require.NoError(t, err)
	require.Empty(t, v)
}

func TestStore_CacheDisabledSeesExternalWrites(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := db.Store("doc", CacheOptions{Enabled: false})

	require.NoError(t, s.Write(ctx, host.Write{Key: "k", Value: "v1"}))
	_, err := db.conn.Exec(`UPDATE blobs SET value = 'v2' WHERE scope = 'doc' AND key = 'k'`)
	require.NoError(t, err)

	v, err := s.Read(ctx, "", "k")
	require.NoError(t, err)
	require.Equal(t, "v2", v)
}

func TestStore_CacheServesRepeatReads(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := db.Store("doc", CacheOptions{Enabled: true, TTL: time.Minute})

	require.NoError(t, s.Write(ctx, host.Write{Key: "k", Value: "v1"}))
	_, err := db.conn.Exec(`UPDATE blobs SET value = 'v2' WHERE scope = 'doc' AND key = 'k'`)
	require.NoError(t, err)

	v, err := s.Read(ctx, "", "k")
	require.NoError(t, err)
	require.Equal(t, "v1", v, "cached value written through Write")
}

func TestStore_WriteIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t).Store("doc", CacheOptions{})
	require.NoError(t, s.Write(ctx, host.Write{Key: "k", Value: "before"}))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err := s.Write(cancelled,
		host.Write{Key: "k", Value: "after"},
		host.Write{ObjectID: "1", Key: "k", Value: "x"},
	)
	require.Error(t, err)

	v, err := s.Read(ctx, "", "k")
	require.NoError(t, err)
	require.Equal(t, "before", v)
	v, err = s.Read(ctx, "1", "k")
	require.NoError(t, err)
	require.Empty(t, v)
}

func TestStore_ObjectIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t).Store("doc", CacheOptions{})
	require.NoError(t, s.Write(ctx,
		host.Write{ObjectID: "b", Key: tags.ObjectTagsKey, Value: `["x"]`},
		host.Write{ObjectID: "a", Key: tags.ObjectTagsKey, Value: `["y"]`},
		host.Write{ObjectID: "c", Key: tags.ObjectTagsKey, Value: ``},
		host.Write{ObjectID: "d", Key: "other", Value: `v`},
		host.Write{Key: tags.ObjectTagsKey, Value: `doc-level`},
	))

	ids, err := s.ObjectIDs(ctx, tags.ObjectTagsKey)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, ids)
}
