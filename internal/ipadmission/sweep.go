package ipadmission

import "gatewaycred/internal/clock"

const (
	secondsPerDay = 86400
	pruneTier1Requests = 300
	pruneTier1Seconds  = 7 * secondsPerDay
	pruneTier2Requests = 50
	pruneTier2Seconds  = 5 * secondsPerDay
	pruneTier3Seconds  = 3 * secondsPerDay
)

// autoUnbanAndPrune runs the 30-minute maintenance sweep: lift expired bans,
// then remove inactive non-banned records under the tiered policy.
func (m *Manager) autoUnbanAndPrune() {
	now := clock.NowEpoch()

	m.mu.Lock()
	defer m.mu.Unlock()

	for ip, rec := range m.records {
		if rec.Status == StatusBanned {
			if now-rec.BannedTime >= banExpirySeconds {
				rec.Status = StatusActive
				rec.AutoUnbannedAt = now
				m.dirty = true
			}
			continue
		}
		if shouldPrune(rec, now) {
			delete(m.records, ip)
			m.dirty = true
		}
	}
}

func shouldPrune(rec *Record, now int64) bool {
	if rec.Status == StatusBanned || rec.LastRequestTime == 0 {
		return false
	}
	inactive := now - rec.LastRequestTime

	switch {
	case rec.TotalRequests >= pruneTier1Requests:
		return inactive >= pruneTier1Seconds
	case rec.TotalRequests >= pruneTier2Requests:
		return inactive >= pruneTier2Seconds
	default:
		return inactive >= pruneTier3Seconds
	}
}
