package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcherReloadsOnFileChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`listen_addr = ":8080"`), 0o600))

	w, err := NewWatcher(path)
	require.NoError(t, err)
	defer w.Close()

	require.Equal(t, ":8080", w.Get().ListenAddr)

	require.NoError(t, os.WriteFile(path, []byte(`listen_addr = ":9999"`), 0o600))

	require.Eventually(t, func() bool {
		return w.Get().ListenAddr == ":9999"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcherWithEmptyPathSkipsFileWatch(t *testing.T) {
	w, err := NewWatcher("")
	require.NoError(t, err)
	defer w.Close()
	require.Equal(t, Default().ListenAddr, w.Get().ListenAddr)
}
