package blobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore(t *testing.T) {
	ctx := context.Background()

	t.Run("PutGet", func(t *testing.T) {
		store, err := NewLocalStore(t.TempDir())
		require.NoError(t, err)

		require.NoError(t, store.Put(ctx, "col/snapshot.bin", []byte("payload")))
		data, err := store.Get(ctx, "col/snapshot.bin")
		require.NoError(t, err)
		assert.Equal(t, []byte("payload"), data)
	})

	t.Run("GetMissing", func(t *testing.T) {
		store, err := NewLocalStore(t.TempDir())
		require.NoError(t, err)

		_, err = store.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("PutOverwrites", func(t *testing.T) {
		store, err := NewLocalStore(t.TempDir())
		require.NoError(t, err)

		require.NoError(t, store.Put(ctx, "a", []byte("old")))
		require.NoError(t, store.Put(ctx, "a", []byte("new")))

		data, err := store.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, []byte("new"), data)
	})

	t.Run("DeleteIdempotent", func(t *testing.T) {
		store, err := NewLocalStore(t.TempDir())
		require.NoError(t, err)

		require.NoError(t, store.Put(ctx, "a", []byte("x")))
		require.NoError(t, store.Delete(ctx, "a"))
		require.NoError(t, store.Delete(ctx, "a"))
	})

	t.Run("List", func(t *testing.T) {
		store, err := NewLocalStore(t.TempDir())
		require.NoError(t, err)

		require.NoError(t, store.Put(ctx, "col1/b", []byte("1")))
		require.NoError(t, store.Put(ctx, "col1/a", []byte("2")))
		require.NoError(t, store.Put(ctx, "col2/c", []byte("3")))

		names, err := store.List(ctx, "col1/")
		require.NoError(t, err)
		assert.Equal(t, []string{"col1/a", "col1/b"}, names)
	})
}
