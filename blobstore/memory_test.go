package blobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("PutGet", func(t *testing.T) {
		store := NewMemoryStore()

		require.NoError(t, store.Put(ctx, "a/b", []byte("payload")))
		data, err := store.Get(ctx, "a/b")
		require.NoError(t, err)
		assert.Equal(t, []byte("payload"), data)
	})

	t.Run("GetMissing", func(t *testing.T) {
		store := NewMemoryStore()
		_, err := store.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("PutCopies", func(t *testing.T) {
		store := NewMemoryStore()

		data := []byte("payload")
		require.NoError(t, store.Put(ctx, "a", data))
		data[0] = 'X'

		got, err := store.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, []byte("payload"), got)
	})

	t.Run("DeleteIdempotent", func(t *testing.T) {
		store := NewMemoryStore()

		require.NoError(t, store.Put(ctx, "a", []byte("x")))
		require.NoError(t, store.Delete(ctx, "a"))
		require.NoError(t, store.Delete(ctx, "a"))

		_, err := store.Get(ctx, "a")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("List", func(t *testing.T) {
		store := NewMemoryStore()

		require.NoError(t, store.Put(ctx, "warm/b", []byte("1")))
		require.NoError(t, store.Put(ctx, "warm/a", []byte("2")))
		require.NoError(t, store.Put(ctx, "cold/c", []byte("3")))

		names, err := store.List(ctx, "warm/")
		require.NoError(t, err)
		assert.Equal(t, []string{"warm/a", "warm/b"}, names)

		all, err := store.List(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})
}
