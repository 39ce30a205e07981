// Package backup implements the hourly local git snapshot of the credential
// store and IP admission stat files, grounded in the original implementation's
// backup thread: no remote push, just a durable local history a human can
// `git log`/`git checkout` out of after a bad config change or disk loss.
package backup

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	log "github.com/sirupsen/logrus"
)

const (
	interval       = time.Hour
	maxJitter      = 4 * time.Minute
	maxRetries     = 3
	retryDelay     = 60 * time.Second
	authorName     = "gatewaycred-backup"
	authorEmail    = "backup@gatewaycred.local"
)

// Options configures the backup scheduler's source paths and where it keeps
// its local (remote-less) git repository.
type Options struct {
	RepoDir         string // git repository root; created if absent
	CredentialsDir  string // copied/tracked in full under the repo
	IPStatsPath     string
	BanOpsPath      string
}

// Scheduler runs the once-per-hour commit loop as a daemon goroutine, owned
// and stopped by the process root.
type Scheduler struct {
	opts Options

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(opts Options) *Scheduler {
	return &Scheduler{opts: opts}
}

// Start launches the background loop. It waits for the next top-of-hour
// (plus a bounded jitter, so a fleet of instances doesn't all commit in the
// same second) before the first backup; Start never backs up immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(runCtx)
}

// Stop cancels the loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	log.Info("backup scheduler: waiting for next top of the hour")
	if !sleepCtx(ctx, untilNextHour()) {
		return
	}

	for {
		s.runWithRetry(ctx)
		if !sleepCtx(ctx, interval) {
			return
		}
	}
}

// runWithRetry attempts one backup, retrying up to maxRetries times with a
// fixed delay. A backup that never succeeds is logged and skipped; it is
// never fatal to the serving process.
func (s *Scheduler) runWithRetry(ctx context.Context) {
	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		err := s.runOnce()
		if err == nil {
			log.Info("backup scheduler: snapshot committed")
			return
		}
		log.WithError(err).WithField("attempt", attempt).Warn("backup scheduler: snapshot failed")
		if attempt == maxRetries+1 {
			log.Error("backup scheduler: snapshot failed after max retries, skipping this cycle")
			return
		}
		if !sleepCtx(ctx, retryDelay) {
			return
		}
	}
}

func (s *Scheduler) runOnce() error {
	_, worktree, err := s.openOrInit()
	if err != nil {
		return fmt.Errorf("backup: open repository: %w", err)
	}

	if err := s.syncTrackedFiles(worktree); err != nil {
		return fmt.Errorf("backup: stage files: %w", err)
	}

	status, err := worktree.Status()
	if err != nil {
		return fmt.Errorf("backup: status: %w", err)
	}
	if status.IsClean() {
		return nil
	}

	_, err = worktree.Commit(fmt.Sprintf("snapshot %s", time.Now().UTC().Format(time.RFC3339)), &git.CommitOptions{
		Author: &object.Signature{
			Name:  authorName,
			Email: authorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("backup: commit: %w", err)
	}
	return nil
}

func (s *Scheduler) openOrInit() (*git.Repository, *git.Worktree, error) {
	if err := os.MkdirAll(s.opts.RepoDir, 0o755); err != nil {
		return nil, nil, err
	}

	var repo *git.Repository
	var err error
	if _, statErr := os.Stat(filepath.Join(s.opts.RepoDir, ".git")); statErr == nil {
		repo, err = git.PlainOpen(s.opts.RepoDir)
	} else {
		repo, err = git.PlainInit(s.opts.RepoDir, false)
	}
	if err != nil {
		return nil, nil, err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, nil, err
	}
	return repo, worktree, nil
}

// syncTrackedFiles mirrors the credentials directory and the two stat files
// into the repository root, then stages everything. Source files live
// outside the repo, so this copies rather than symlinks: a git snapshot must
// survive the source directory being rotated or deleted.
func (s *Scheduler) syncTrackedFiles(worktree *git.Worktree) error {
	if s.opts.CredentialsDir != "" {
		if err := copyTree(s.opts.CredentialsDir, filepath.Join(s.opts.RepoDir, "credentials")); err != nil {
			return err
		}
	}
	if s.opts.IPStatsPath != "" {
		if err := copyFile(s.opts.IPStatsPath, filepath.Join(s.opts.RepoDir, "ip_stats.toml")); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	if s.opts.BanOpsPath != "" {
		if err := copyFile(s.opts.BanOpsPath, filepath.Join(s.opts.RepoDir, "ban_operations.toml")); err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	_, err := worktree.Add(".")
	return err
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o600)
}

func copyTree(srcDir, dstDir string) error {
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return err
	}
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := copyFile(filepath.Join(srcDir, entry.Name()), filepath.Join(dstDir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func untilNextHour() time.Duration {
	now := time.Now()
	next := now.Truncate(time.Hour).Add(time.Hour)
	jitter := time.Duration(rand.Int63n(int64(maxJitter)))
	return next.Sub(now) + jitter
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
