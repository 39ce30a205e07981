package ipadmission

import (
	"fmt"
	"sync"

	"gatewaycred/internal/clock"
)

// SetStatusResult carries the structured outcome of a status mutation.
type SetStatusResult struct {
	OK               bool
	Error            string
	RemainingMinutes int
}

// SetStatus mutates ip's admission status. Banning additionally enforces the
// user-protection guard (today_requests >= 80) and the operator throttle (at
// most 3 bans per rolling hour), with the ban-operation recorded outside the
// main lock to avoid deadlocking against the ban-operation file's own lock.
func (m *Manager) SetStatus(ip string, status Status, rateLimitSeconds int64, operatorIP string) SetStatusResult {
	if status == StatusBanned {
		m.mu.Lock()
		rec, ok := m.records[ip]
		today := int64(0)
		if ok {
			today = rec.TodayRequests
		}
		m.mu.Unlock()

		if !ok {
			return SetStatusResult{OK: false, Error: "unknown IP"}
		}
		if today < minRequestsToBan {
			return SetStatusResult{OK: false, Error: fmt.Sprintf("IP has only %d requests today; bans require at least %d", today, minRequestsToBan)}
		}

		if operatorIP != "" {
			allowed, remaining := m.banStore.checkAndRecord(operatorIP)
			if !allowed {
				return SetStatusResult{OK: false, Error: "operator ban rate limit exceeded", RemainingMinutes: remaining}
			}
		}
	}

	m.mu.Lock()
	rec, ok := m.records[ip]
	if !ok {
		m.mu.Unlock()
		return SetStatusResult{OK: false, Error: "unknown IP"}
	}
	rec.Status = status
	rec.RateLimitSecs = rateLimitSeconds
	if status == StatusBanned {
		rec.BannedTime = clock.NowEpoch()
	}
	m.dirty = true
	m.mu.Unlock()

	return SetStatusResult{OK: true}
}

// banStore persists, per operator IP, the recent ban-issue timestamps within
// the rolling 1-hour window. It has its own lock, distinct from the IP
// record map's lock, and is compacted on every read.
type banStore struct {
	mu   sync.Mutex
	path string
	data BanOperations
}

// checkAndRecord compacts every operator's timestamp list, rejects a new ban
// if the operator has already issued maxBansPerWindow within the window,
// otherwise appends the current timestamp and persists.
func (b *banStore) checkAndRecord(operatorIP string) (allowed bool, remainingMinutes int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := float64(clock.NowEpoch())
	windowSecs := operatorBanWindow.Seconds()

	if b.data.Operators == nil {
		b.data.Operators = make(map[string][]float64)
	}
	for op, list := range b.data.Operators {
		b.data.Operators[op] = compact(list, now, windowSecs)
	}
	ts := b.data.Operators[operatorIP]

	if len(ts) >= maxBansPerWindow {
		oldest := ts[0]
		remaining := int((oldest + windowSecs - now) / 60)
		if remaining < 1 {
			remaining = 1
		}
		b.data.Operators[operatorIP] = ts
		b.persist()
		return false, remaining
	}

	ts = append(ts, now)
	b.data.Operators[operatorIP] = ts
	b.persist()
	return true, 0
}

func compact(timestamps []float64, now, windowSecs float64) []float64 {
	out := timestamps[:0:0]
	for _, t := range timestamps {
		if now-t < windowSecs {
			out = append(out, t)
		}
	}
	return out
}

// ensureLoaded reads the ban-operations file once at startup.
func (b *banStore) ensureLoaded() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, err := loadBanOperations(b.path)
	if err != nil {
		return err
	}
	b.data = data
	return nil
}

func (b *banStore) persist() {
	// compaction may have emptied an operator's list entirely; drop it so an
	// already-compacted store round-trips to an identical file.
	for op, ts := range b.data.Operators {
		if len(ts) == 0 {
			delete(b.data.Operators, op)
		}
	}
	_ = saveBanOperations(b.path, b.data)
}
