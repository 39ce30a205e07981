package credential

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileSourceLoadAllSortsAndDefaultsID(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.json"), []byte(`{"access_token":"tb"}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte(`{"access_token":"ta"}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignore.txt"), []byte("not json"), 0o600))

	src := &FileSource{Dir: dir}
	creds, err := src.LoadAll()
	require.NoError(t, err)
	require.Len(t, creds, 2)
	require.Equal(t, "a", creds[0].ID)
	require.Equal(t, "b", creds[1].ID)
	require.NotNil(t, creds[0].ErrorCounts)
}

func TestFileSourceLoadAllMissingDirYieldsEmpty(t *testing.T) {
	src := &FileSource{Dir: filepath.Join(t.TempDir(), "missing")}
	creds, err := src.LoadAll()
	require.NoError(t, err)
	require.Empty(t, creds)
}

func TestFileSourceSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	src := &FileSource{Dir: dir}

	c := &Credential{ID: "x", AccessToken: "tok", ProjectID: "proj"}
	require.NoError(t, src.Save(c))

	creds, err := src.LoadAll()
	require.NoError(t, err)
	require.Len(t, creds, 1)
	require.Equal(t, "x", creds[0].ID)
	require.Equal(t, "tok", creds[0].AccessToken)
}

func TestFileSourceDeleteMissingIsNotError(t *testing.T) {
	src := &FileSource{Dir: t.TempDir()}
	require.NoError(t, src.Delete("does-not-exist"))
}
