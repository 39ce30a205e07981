package kv

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type widget struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestStoreFileBackendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "widgets.json")
	ctx := context.Background()

	store, err := Open[widget](ctx, &FileBackend{Path: path}, 0)
	require.NoError(t, err)

	store.Set("a", &widget{Name: "a", Count: 1})
	store.Set("b", &widget{Name: "b", Count: 2})
	require.Equal(t, 2, store.Len())

	require.NoError(t, store.Flush(ctx, false))

	reopened, err := Open[widget](ctx, &FileBackend{Path: path}, 0)
	require.NoError(t, err)
	v, ok := reopened.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v.Count)

	reopened.Delete("a")
	_, ok = reopened.Get("a")
	require.False(t, ok)
}

func TestStoreMissingFileLoadsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.json")
	store, err := Open[widget](context.Background(), &FileBackend{Path: path}, 0)
	require.NoError(t, err)
	require.Equal(t, 0, store.Len())
}

func TestStoreFlushOnlyWritesWhenDirty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "widgets.json")
	ctx := context.Background()
	store, err := Open[widget](ctx, &FileBackend{Path: path}, 0)
	require.NoError(t, err)

	require.NoError(t, store.Flush(ctx, false))
	matches, statErr := filepath.Glob(path)
	require.NoError(t, statErr)
	require.Empty(t, matches)

	store.Set("a", &widget{Name: "a", Count: 1})
	require.NoError(t, store.Flush(ctx, false))

	reopened, err := Open[widget](ctx, &FileBackend{Path: path}, 0)
	require.NoError(t, err)
	require.Equal(t, 1, reopened.Len())
}

func TestStorePeriodicFlushAndClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "widgets.json")
	ctx := context.Background()
	store, err := Open[widget](ctx, &FileBackend{Path: path}, 10*time.Millisecond)
	require.NoError(t, err)

	store.Set("a", &widget{Name: "a", Count: 1})
	time.Sleep(30 * time.Millisecond)

	require.NoError(t, store.Close(ctx))

	reopened, err := Open[widget](ctx, &FileBackend{Path: path}, 0)
	require.NoError(t, err)
	_, ok := reopened.Get("a")
	require.True(t, ok)
}
