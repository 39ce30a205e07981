package credential

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gatewaycred/internal/oauth"

	"github.com/stretchr/testify/require"
)

func writeCred(t *testing.T, dir, id string) {
	t.Helper()
	data := `{"id":"` + id + `","access_token":"tok-` + id + `","project_id":"proj-` + id + `"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+".json"), []byte(data), 0o600))
}

type fakeRefresher struct {
	calls int
	fail  bool
}

var errRefreshFailed = errors.New("refresh failed")

func (r *fakeRefresher) RefreshToken(ctx context.Context, creds *oauth.Credentials) error {
	r.calls++
	if r.fail {
		return errRefreshFailed
	}
	creds.AccessToken = "refreshed-" + creds.AccessToken
	return nil
}

func TestPoolBorrowRoundRobinsSkippingDisabled(t *testing.T) {
	dir := t.TempDir()
	writeCred(t, dir, "a")
	writeCred(t, dir, "b")
	writeCred(t, dir, "c")

	pool, err := Open(dir, nil)
	require.NoError(t, err)
	defer pool.Close()

	require.NoError(t, pool.Disable("b"))

	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		b, err := pool.Borrow()
		require.NoError(t, err)
		seen[b.ID] = true
		pool.Rotate()
	}
	require.True(t, seen["a"])
	require.True(t, seen["c"])
	require.False(t, seen["b"])
}

func TestPoolBorrowExhaustedWhenAllDisabled(t *testing.T) {
	dir := t.TempDir()
	writeCred(t, dir, "a")

	pool, err := Open(dir, nil)
	require.NoError(t, err)
	defer pool.Close()

	require.NoError(t, pool.Disable("a"))
	_, err = pool.Borrow()
	require.ErrorIs(t, err, ErrPoolExhausted)
}

func TestPoolRefreshUpdatesAccessToken(t *testing.T) {
	dir := t.TempDir()
	writeCred(t, dir, "a")

	refresher := &fakeRefresher{}
	pool, err := Open(dir, refresher)
	require.NoError(t, err)
	defer pool.Close()

	ok := pool.RefreshCurrent(context.Background())
	require.True(t, ok)
	require.Equal(t, 1, refresher.calls)

	b, err := pool.Borrow()
	require.NoError(t, err)
	require.Equal(t, "refreshed-tok-a", b.AccessToken)
}

func TestPoolRecordTracksSuccessAndErrorCounts(t *testing.T) {
	dir := t.TempDir()
	writeCred(t, dir, "a")

	pool, err := Open(dir, nil)
	require.NoError(t, err)
	defer pool.Close()

	pool.Record("a", true, 200)
	pool.Record("a", false, 429)
	pool.Record("a", false, 429)

	snaps := pool.Snapshots()
	require.Len(t, snaps, 1)
	require.Equal(t, int64(3), snaps[0].TotalRequests)
	require.Equal(t, int64(1), snaps[0].SuccessCount)
	require.Equal(t, int64(2), snaps[0].ErrorCounts[429])
}

func TestPoolEnableReversesDisable(t *testing.T) {
	dir := t.TempDir()
	writeCred(t, dir, "a")

	pool, err := Open(dir, nil)
	require.NoError(t, err)
	defer pool.Close()

	require.NoError(t, pool.Disable("a"))
	_, err = pool.Borrow()
	require.ErrorIs(t, err, ErrPoolExhausted)

	require.NoError(t, pool.Enable("a"))
	b, err := pool.Borrow()
	require.NoError(t, err)
	require.Equal(t, "a", b.ID)
}
