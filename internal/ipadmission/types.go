// Package ipadmission implements per-source-IP admission control, usage
// accounting, operator ban policy, and scheduled maintenance (auto-unban,
// tiered pruning), grounded in the same request-gating semantics as the
// original Python IP manager this gateway replaces.
package ipadmission

// Status is the admission state of one IP record.
type Status string

const (
	StatusActive      Status = "active"
	StatusBanned      Status = "banned"
	StatusRateLimited Status = "rate_limited"
)

const maxUserAgents = 10

// Record is one tracked source IP: lifetime and daily counters, status, and
// enough context (location, user agents, per-model/per-endpoint usage) to
// support the ranking and auditing views.
type Record struct {
	FirstSeen       string           `toml:"first_seen"`
	LastSeen        string           `toml:"last_seen"`
	LastRequestTime int64            `toml:"last_request_time"`
	TotalRequests   int64            `toml:"total_requests"`
	TodayRequests   int64            `toml:"today_requests"`
	TodayDate       string           `toml:"today_date"`
	Status          Status           `toml:"status"`
	RateLimitSecs   int64            `toml:"rate_limit_seconds,omitempty"`
	BannedTime      int64            `toml:"banned_time,omitempty"`
	AutoUnbannedAt  int64            `toml:"auto_unbanned_time,omitempty"`
	Location        string           `toml:"location"`
	UserAgents      []string         `toml:"user_agents"`
	ModelsUsed      map[string]int64 `toml:"models_used"`
	Endpoints       map[string]int64 `toml:"endpoints"`
}

func newRecord(now int64, wallClock, location string) *Record {
	return &Record{
		FirstSeen:       wallClock,
		LastSeen:        wallClock,
		LastRequestTime: now,
		Status:          StatusActive,
		Location:        location,
		UserAgents:      make([]string, 0, maxUserAgents),
		ModelsUsed:      make(map[string]int64),
		Endpoints:       make(map[string]int64),
	}
}

func (r *Record) pushUserAgent(ua string) {
	if ua == "" {
		return
	}
	for i, existing := range r.UserAgents {
		if existing == ua {
			r.UserAgents = append(r.UserAgents[:i], r.UserAgents[i+1:]...)
			break
		}
	}
	r.UserAgents = append(r.UserAgents, ua)
	if len(r.UserAgents) > maxUserAgents {
		r.UserAgents = r.UserAgents[len(r.UserAgents)-maxUserAgents:]
	}
}

// rolloverIfNeeded resets daily counters when todayDate no longer matches
// the canonical-zone date. Returns true if a rollover happened.
func (r *Record) rolloverIfNeeded(today string) bool {
	if r.TodayDate == today {
		return false
	}
	r.TodayDate = today
	r.TodayRequests = 0
	r.ModelsUsed = make(map[string]int64)
	return true
}

// BanOperations tracks, per operator IP, the recent ban-issue timestamps
// within the rolling throttle window.
type BanOperations struct {
	Operators map[string][]float64 `toml:"operators"`
}

// ipFile is the top-level shape of ip_stats.toml.
type ipFile struct {
	IPs map[string]*Record `toml:"ips"`
}
