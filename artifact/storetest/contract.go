// Package storetest provides a behavioural contract shared by every
// core.ArtifactStore implementation.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/llmflow/core"
)

// RunContract exercises store with the behaviour every backend must share.
// The store must be empty when passed in.
func RunContract(t *testing.T, store core.ArtifactStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing", func(t *testing.T) {
		_, err := store.LatestMetadata(ctx, "missing.txt")
		assert.True(t, errors.Is(err, core.ErrNotFound), "got %v", err)
		_, err = store.Latest(ctx, "missing.txt")
		assert.True(t, errors.Is(err, core.ErrNotFound), "got %v", err)
	})

	t.Run("save and reload", func(t *testing.T) {
		a := core.NewArtifact("docs/a.json", []byte(`{"x":1}`), core.ContentJSON)
		a.Metadata.InputHash = "h1"
		a.Metadata.ChatResult = []byte(`{"id":"r1"}`)

		md, err := store.Save(ctx, a)
		require.NoError(t, err)
		assert.Equal(t, 1, md.Version)
		assert.Positive(t, md.Timestamp)

		got, err := store.Latest(ctx, "docs/a.json")
		require.NoError(t, err)
		assert.Equal(t, `{"x":1}`, got.Text())
		assert.Equal(t, "h1", got.Metadata.InputHash)
		assert.Equal(t, core.ContentJSON, got.Metadata.ContentType)
		assert.Equal(t, 1, got.Metadata.Version)
		assert.JSONEq(t, `{"id":"r1"}`, string(got.Metadata.ChatResult))
	})

	t.Run("versions and timestamps increase", func(t *testing.T) {
		a := core.NewArtifact("v.txt", []byte("one"), core.ContentText)
		first, err := store.Save(ctx, a)
		require.NoError(t, err)

		a.Content = []byte("two")
		a.Metadata.Version = first.Version
		second, err := store.Save(ctx, a)
		require.NoError(t, err)

		assert.Equal(t, first.Version+1, second.Version)
		assert.Greater(t, second.Timestamp, first.Timestamp)

		got, err := store.Latest(ctx, "v.txt")
		require.NoError(t, err)
		assert.Equal(t, "two", got.Text())
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		a := core.NewArtifact("c.txt", []byte("one"), core.ContentText)
		_, err := store.Save(ctx, a)
		require.NoError(t, err)

		_, err = store.Save(ctx, a) // still claims version 0
		var conflict *core.WriteConflictError
		require.True(t, errors.As(err, &conflict), "got %v", err)
		assert.Equal(t, 1, conflict.Actual)
	})

	t.Run("concurrent saves", func(t *testing.T) {
		const writers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
		)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				a := core.NewArtifact("race.txt", []byte(fmt.Sprintf("w%d", i)), core.ContentText)
				if _, err := store.Save(ctx, a); err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 1, succeeded, "exactly one writer observing version 0 may win")
	})

	t.Run("list and delete", func(t *testing.T) {
		for _, n := range []string{"list/b.txt", "list/a.txt", "other.txt"} {
			_, err := store.Save(ctx, core.NewArtifact(n, []byte(n), core.ContentText))
			require.NoError(t, err)
		}
		names, err := store.List(ctx, "list/")
		require.NoError(t, err)
		assert.Equal(t, []string{"list/a.txt", "list/b.txt"}, names)

		require.NoError(t, store.Delete(ctx, "list/a.txt"))
		_, err = store.LatestMetadata(ctx, "list/a.txt")
		assert.True(t, errors.Is(err, core.ErrNotFound), "got %v", err)

		names, err = store.List(ctx, "list/")
		require.NoError(t, err)
		assert.Equal(t, []string{"list/b.txt"}, names)
	})
}
