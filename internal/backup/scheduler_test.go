package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T) (*Scheduler, Options) {
	t.Helper()
	base := t.TempDir()

	credDir := filepath.Join(base, "credentials")
	require.NoError(t, os.MkdirAll(credDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(credDir, "cred-1.json"), []byte(`{"id":"cred-1"}`), 0o600))

	ipStats := filepath.Join(base, "ip_stats.toml")
	require.NoError(t, os.WriteFile(ipStats, []byte("[ips]\n"), 0o600))

	banOps := filepath.Join(base, "ban_operations.toml")
	require.NoError(t, os.WriteFile(banOps, []byte("[operators]\n"), 0o600))

	opts := Options{
		RepoDir:        filepath.Join(base, "repo"),
		CredentialsDir: credDir,
		IPStatsPath:    ipStats,
		BanOpsPath:     banOps,
	}
	return New(opts), opts
}

func TestSchedulerRunOnceCommitsTrackedFiles(t *testing.T) {
	sched, opts := newTestScheduler(t)

	require.NoError(t, sched.runOnce())

	repo, err := git.PlainOpen(opts.RepoDir)
	require.NoError(t, err)
	head, err := repo.Head()
	require.NoError(t, err)
	commit, err := repo.CommitObject(head.Hash())
	require.NoError(t, err)
	require.Equal(t, authorEmail, commit.Author.Email)

	data, err := os.ReadFile(filepath.Join(opts.RepoDir, "credentials", "cred-1.json"))
	require.NoError(t, err)
	require.Contains(t, string(data), "cred-1")

	require.FileExists(t, filepath.Join(opts.RepoDir, "ip_stats.toml"))
	require.FileExists(t, filepath.Join(opts.RepoDir, "ban_operations.toml"))
}

func TestSchedulerRunOnceSkipsEmptyCommit(t *testing.T) {
	sched, opts := newTestScheduler(t)
	require.NoError(t, sched.runOnce())

	repo, err := git.PlainOpen(opts.RepoDir)
	require.NoError(t, err)
	before, err := repo.Head()
	require.NoError(t, err)

	require.NoError(t, sched.runOnce())

	after, err := repo.Head()
	require.NoError(t, err)
	require.Equal(t, before.Hash(), after.Hash())
}

func TestSchedulerStartStop(t *testing.T) {
	sched, _ := newTestScheduler(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched.Start(ctx)
	time.Sleep(10 * time.Millisecond)
	sched.Stop()
}
