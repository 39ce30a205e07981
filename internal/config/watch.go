package config

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watcher holds a live, swappable Config and reloads it whenever the backing
// file changes on disk.
type Watcher struct {
	path    string
	current atomic.Pointer[Config]
	mu      sync.Mutex
	watcher *fsnotify.Watcher
	stop    chan struct{}
}

// NewWatcher loads the config once, then starts an fsnotify watch on its
// directory so external edits are picked up without a restart.
func NewWatcher(path string) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	w := &Watcher{path: path, stop: make(chan struct{})}
	w.current.Store(cfg)

	if path == "" {
		return w, nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		log.WithError(err).Warn("config watcher: fsnotify unavailable, hot-reload disabled")
		return w, nil
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		log.WithError(err).Warn("config watcher: failed to watch config directory")
		fw.Close()
		return w, nil
	}
	w.watcher = fw
	go w.loop()
	return w, nil
}

// Get returns the currently active configuration snapshot.
func (w *Watcher) Get() *Config {
	return w.current.Load()
}

func (w *Watcher) loop() {
	var debounce *time.Timer
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("config watcher: fsnotify error")
		case <-w.stop:
			return
		}
	}
}

func (w *Watcher) reload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	cfg, err := Load(w.path)
	if err != nil {
		log.WithError(err).Warn("config watcher: reload failed, keeping previous config")
		return
	}
	w.current.Store(cfg)
	log.Info("config reloaded")
}

// Close stops the watcher goroutine.
func (w *Watcher) Close() {
	close(w.stop)
	if w.watcher != nil {
		w.watcher.Close()
	}
}
