package ipadmission

import (
	"context"
	"sync"
	"time"

	"gatewaycred/internal/clock"

	log "github.com/sirupsen/logrus"
)

const (
	flushInterval       = 60 * time.Second
	sweepInterval       = 30 * time.Minute
	banExpirySeconds    = 86400
	minRequestsToBan    = 80
	operatorBanWindow   = 3600 * time.Second
	maxBansPerWindow    = 3
)

// Manager owns the IP record map and the ban-operation throttle store. A
// single mutex protects the map; the ban-operation file has its own lock and
// is never held together with the record-map lock.
type Manager struct {
	mu      sync.Mutex
	records map[string]*Record
	dirty   bool

	store    *fileStore
	banStore *banStore
	resolver locationResolver

	stop chan struct{}
}

type locationResolver interface {
	Resolve(ctx context.Context, ip string) string
}

// Options configures a new Manager.
type Options struct {
	StatsPath    string
	BanOpsPath   string
	Resolver     locationResolver
}

// New loads both persisted files (tolerating either being absent) and starts
// the periodic flush and sweep background tasks.
func New(opts Options) (*Manager, error) {
	store := &fileStore{path: opts.StatsPath}
	records, err := store.load()
	if err != nil {
		return nil, err
	}

	banStore := &banStore{path: opts.BanOpsPath}
	if err := banStore.ensureLoaded(); err != nil {
		return nil, err
	}

	m := &Manager{
		records:  records,
		store:    store,
		banStore: banStore,
		resolver: opts.Resolver,
		stop:     make(chan struct{}),
	}

	go m.flushLoop()
	go m.sweepLoop()
	return m, nil
}

// Close stops background tasks and performs a final forced flush.
func (m *Manager) Close() {
	close(m.stop)
	_ = m.flush(true)
}

func (m *Manager) flushLoop() {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := m.flush(false); err != nil {
				log.WithError(err).Warn("ip admission: periodic flush failed")
			}
		case <-m.stop:
			return
		}
	}
}

func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.autoUnbanAndPrune()
		case <-m.stop:
			return
		}
	}
}

func (m *Manager) flush(force bool) error {
	m.mu.Lock()
	if !m.dirty && !force {
		m.mu.Unlock()
		return nil
	}
	snapshot := make(map[string]*Record, len(m.records))
	for k, v := range m.records {
		cp := *v
		snapshot[k] = &cp
	}
	m.dirty = false
	m.mu.Unlock()
	return m.store.save(snapshot)
}

// Check is the side-effect-free admission test, except for the opportunistic
// auto-unban of an expired ban so the first request of a newly-unbanned
// window is not itself refused.
func (m *Manager) Check(ip string) bool {
	now := clock.NowEpoch()

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[ip]
	if !ok {
		return true
	}

	if rec.Status == StatusBanned {
		if now-rec.BannedTime >= banExpirySeconds {
			rec.Status = StatusActive
			rec.AutoUnbannedAt = now
			m.dirty = true
			return true
		}
		return false
	}

	if rec.Status == StatusRateLimited {
		if now-rec.LastRequestTime < rec.RateLimitSecs {
			return false
		}
	}

	return true
}

// Record runs admission, then updates lifetime/daily counters, user agents,
// model/endpoint usage, and resolves location on first contact. Returns
// false without recording anything if admission fails.
func (m *Manager) Record(ctx context.Context, ip, endpoint, userAgent, model string) bool {
	if !m.Check(ip) {
		return false
	}

	now := clock.NowEpoch()
	today := clock.Today()
	wall := clock.NowWallClock()

	m.mu.Lock()
	rec, exists := m.records[ip]
	needsLocation := !exists
	if !exists {
		rec = newRecord(now, wall, "")
		m.records[ip] = rec
	}
	m.mu.Unlock()

	var location string
	if needsLocation && m.resolver != nil {
		location = m.resolver.Resolve(ctx, ip)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if needsLocation {
		rec.Location = location
	}
	rec.rolloverIfNeeded(today)

	rec.LastSeen = wall
	rec.LastRequestTime = now
	rec.TotalRequests++
	rec.TodayRequests++
	rec.pushUserAgent(userAgent)
	if model != "" {
		rec.ModelsUsed[model]++
	}
	if endpoint != "" {
		rec.Endpoints[endpoint]++
	}
	m.dirty = true
	return true
}

// Get returns a copy of the record for ip, if any.
func (m *Manager) Get(ip string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[ip]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}
