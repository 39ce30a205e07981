package credential

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"gatewaycred/internal/oauth"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// ErrPoolExhausted is returned by Borrow when every credential is disabled.
var ErrPoolExhausted = errors.New("credential pool: no active credential available")

// Refresher mints a new access token for a credential via the external
// identity provider. Satisfied by *oauth.Manager.
type Refresher interface {
	RefreshToken(ctx context.Context, creds *oauth.Credentials) error
}

// Pool is the ordered, disable-aware rotation of active credentials.
// A single lock protects the active set and cursor; refresh is awaited
// outside the lock once the target credential is captured, so a slow
// network round-trip never blocks unrelated borrows.
type Pool struct {
	mu     sync.Mutex
	creds  []*Credential
	cursor int

	source    *FileSource
	refresher Refresher
	watcher   *fsnotify.Watcher
	stop      chan struct{}
}

// Open loads every credential from dir and starts an fsnotify watch so
// externally added/removed credential files are picked up without a restart.
func Open(dir string, refresher Refresher) (*Pool, error) {
	src := &FileSource{Dir: dir}
	creds, err := src.LoadAll()
	if err != nil {
		return nil, err
	}

	p := &Pool{
		creds:     creds,
		source:    src,
		refresher: refresher,
		stop:      make(chan struct{}),
	}

	if fw, err := fsnotify.NewWatcher(); err == nil {
		if err := fw.Add(dir); err == nil {
			p.watcher = fw
			go p.watchLoop()
		} else {
			fw.Close()
		}
	}

	return p, nil
}

func (p *Pool) watchLoop() {
	for {
		select {
		case ev, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove) != 0 {
				p.reload(ev.Name)
			}
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("credential pool: fsnotify error")
		case <-p.stop:
			return
		}
	}
}

func (p *Pool) reload(path string) {
	id := filepath.Base(path)
	if len(id) > len(credentialFileExt) {
		id = id[:len(id)-len(credentialFileExt)]
	}

	fresh, err := p.source.LoadAll()
	if err != nil {
		log.WithError(err).Warn("credential pool: reload failed")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	byID := make(map[string]*Credential, len(fresh))
	for _, c := range fresh {
		byID[c.ID] = c
	}
	if _, stillExists := byID[id]; !stillExists {
		p.removeLocked(id)
		return
	}
	if existing := p.findLocked(id); existing == nil {
		p.creds = append(p.creds, byID[id])
		log.Infof("credential pool: picked up new credential %s", id)
	}
}

func (p *Pool) findLocked(id string) *Credential {
	for _, c := range p.creds {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (p *Pool) removeLocked(id string) {
	for i, c := range p.creds {
		if c.ID == id {
			p.creds = append(p.creds[:i], p.creds[i+1:]...)
			if p.cursor > i {
				p.cursor--
			}
			return
		}
	}
}

// Close stops the directory watch.
func (p *Pool) Close() {
	close(p.stop)
	if p.watcher != nil {
		p.watcher.Close()
	}
}

// Borrow returns the next active credential in round-robin order, skipping
// disabled entries. Returns ErrPoolExhausted if every credential is disabled
// or the pool is empty.
func (p *Pool) Borrow() (Borrowed, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.creds)
	if n == 0 {
		return Borrowed{}, ErrPoolExhausted
	}

	for i := 0; i < n; i++ {
		idx := (p.cursor + i) % n
		c := p.creds[idx]
		c.mu.Lock()
		disabled := c.Disabled
		token, project, id := c.AccessToken, c.ProjectID, c.ID
		c.mu.Unlock()
		if disabled {
			continue
		}
		p.cursor = idx
		return Borrowed{ID: id, AccessToken: token, ProjectID: project}, nil
	}
	return Borrowed{}, ErrPoolExhausted
}

// Rotate advances the cursor to the next active credential without counting
// a call. Used after 429 and other rotate-triggering outcomes.
func (p *Pool) Rotate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.creds) == 0 {
		return
	}
	p.cursor = (p.cursor + 1) % len(p.creds)
}

// RefreshCurrent attempts to mint a new access token for the credential
// currently at the cursor. The target is captured under the lock, then the
// network round-trip happens outside it.
func (p *Pool) RefreshCurrent(ctx context.Context) bool {
	target := p.currentLocked()
	if target == nil {
		return false
	}
	return p.Refresh(ctx, target.ID)
}

func (p *Pool) currentLocked() *Credential {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.creds) == 0 {
		return nil
	}
	return p.creds[p.cursor%len(p.creds)]
}

// Refresh mints a new access token for the named credential.
func (p *Pool) Refresh(ctx context.Context, id string) bool {
	cred := p.find(id)
	if cred == nil || p.refresher == nil {
		return false
	}

	cred.mu.Lock()
	oc := &oauth.Credentials{
		ClientID:     cred.ClientID,
		ClientSecret: cred.ClientSecret,
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		TokenURI:     cred.TokenURI,
		ProjectID:    cred.ProjectID,
		ExpiresAt:    cred.ExpiresAt,
	}
	cred.mu.Unlock()

	if err := p.refresher.RefreshToken(ctx, oc); err != nil {
		log.WithError(err).Warnf("credential pool: refresh failed for %s", id)
		return false
	}

	cred.mu.Lock()
	cred.AccessToken = oc.AccessToken
	if oc.RefreshToken != "" {
		cred.RefreshToken = oc.RefreshToken
	}
	cred.ExpiresAt = oc.ExpiresAt
	cred.LastGood = time.Now()
	cred.mu.Unlock()

	if err := p.source.Save(cred); err != nil {
		log.WithError(err).Warnf("credential pool: failed to persist refreshed credential %s", id)
	}
	return true
}

// Disable marks id ineligible for Borrow until re-enabled.
func (p *Pool) Disable(id string) error {
	return p.setDisabled(id, true)
}

// Enable clears the disabled flag on id.
func (p *Pool) Enable(id string) error {
	return p.setDisabled(id, false)
}

func (p *Pool) setDisabled(id string, disabled bool) error {
	cred := p.find(id)
	if cred == nil {
		return fmt.Errorf("credential %s not found", id)
	}
	cred.mu.Lock()
	cred.Disabled = disabled
	cred.mu.Unlock()
	return p.source.Save(cred)
}

// Record increments per-credential counters for a completed call. Must not
// be called by rotation-only paths (rotate/disable without a call outcome).
func (p *Pool) Record(id string, ok bool, statusCode int) {
	cred := p.find(id)
	if cred == nil {
		return
	}
	cred.mu.Lock()
	cred.TotalRequests++
	if ok {
		cred.SuccessCount++
		cred.LastGood = time.Now()
	} else if statusCode > 0 {
		if cred.ErrorCounts == nil {
			cred.ErrorCounts = make(map[int]int64)
		}
		cred.ErrorCounts[statusCode]++
	}
	cred.mu.Unlock()

	if err := p.source.Save(cred); err != nil {
		log.WithError(err).Debugf("credential pool: failed to persist stats for %s", id)
	}
}

func (p *Pool) find(id string) *Credential {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.findLocked(id)
}

// Snapshots returns a stats view of every credential, for operator endpoints.
func (p *Pool) Snapshots() []Snapshot {
	p.mu.Lock()
	creds := append([]*Credential(nil), p.creds...)
	p.mu.Unlock()

	out := make([]Snapshot, 0, len(creds))
	for _, c := range creds {
		out = append(out, c.snapshot())
	}
	return out
}

// Len reports the number of credentials tracked (active + disabled).
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.creds)
}
