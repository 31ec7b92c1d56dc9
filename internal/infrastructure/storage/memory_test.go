package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorage(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	t.Run("put and get copies data", func(t *testing.T) {
		data := []byte("%PDF")
		obj, err := s.Put(ctx, "bulk/r1/a.pdf", data, "")
		require.NoError(t, err)
		assert.Equal(t, "memory://objects/bulk/r1/a.pdf", obj.URL)
		assert.Equal(t, "application/pdf", obj.ContentType)
		assert.Nil(t, obj.Data)

		data[0] = 'X'
		got, err := s.Get(ctx, "bulk/r1/a.pdf")
		require.NoError(t, err)
		assert.Equal(t, "%PDF", string(got.Data))
	})

	t.Run("keys by prefix", func(t *testing.T) {
		_, err := s.Put(ctx, "bulk/r1/b.pdf", []byte("b"), "")
		require.NoError(t, err)
		_, err = s.Put(ctx, "logos/x.png", []byte("x"), "")
		require.NoError(t, err)

		assert.Equal(t, []string{"bulk/r1/a.pdf", "bulk/r1/b.pdf"}, s.Keys("bulk/"))
	})

	t.Run("delete and missing", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, "logos/x.png"))
		_, err := s.Get(ctx, "logos/x.png")
		assert.ErrorIs(t, err, ErrObjectNotFound)
	})

	t.Run("empty key", func(t *testing.T) {
		_, err := s.URL(ctx, "")
		assert.ErrorIs(t, err, ErrInvalidKey)
	})
}
