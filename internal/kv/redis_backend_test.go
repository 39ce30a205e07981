package kv

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestRedisBackendRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	t.Cleanup(mr.Close)

	backend := NewRedisBackend(mr.Addr(), "gatewaycred:test")

	data, err := backend.Load(context.Background())
	require.NoError(t, err)
	require.Nil(t, data)

	require.NoError(t, backend.Save(context.Background(), []byte(`{"a":1}`)))

	data, err = backend.Load(context.Background())
	require.NoError(t, err)
	require.JSONEq(t, `{"a":1}`, string(data))
}

func TestStoreOverRedisBackend(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx := context.Background()
	backend := NewRedisBackend(mr.Addr(), "gatewaycred:widgets")
	store, err := Open[widget](ctx, backend, 0)
	require.NoError(t, err)

	store.Set("a", &widget{Name: "a", Count: 3})
	require.NoError(t, store.Flush(ctx, false))

	reopened, err := Open[widget](ctx, backend, 0)
	require.NoError(t, err)
	v, ok := reopened.Get("a")
	require.True(t, ok)
	require.Equal(t, 3, v.Count)
}
