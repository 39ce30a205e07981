// Package credential implements the rotatable pool of upstream OAuth-style
// credentials: round-robin borrowing over the active subset, token refresh,
// disable/enable, and per-credential call accounting.
package credential

import (
	"sync"
	"time"
)

// Credential is one opaque bundle carrying an access token and project
// identifier usable against the upstream API. Only ever mutated through the
// Pool's API; callers carry a credential across a borrow-retry loop by id
// (see Borrowed) rather than by pointer, since the pool may rotate it out
// from under them.
type Credential struct {
	mu sync.Mutex

	ID           string `json:"id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ProjectID    string `json:"project_id"`
	TokenURI     string `json:"token_uri,omitempty"`
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`

	Disabled     bool      `json:"disabled"`
	LastGood     time.Time `json:"last_good,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`

	TotalRequests int64           `json:"total_requests"`
	SuccessCount  int64           `json:"success_count"`
	ErrorCounts   map[int]int64   `json:"error_counts"`
}

// Snapshot is a read-only copy of a Credential's state, safe to hand to
// callers outside the pool lock (used by operator-facing stats endpoints).
type Snapshot struct {
	ID            string        `json:"id"`
	ProjectID     string        `json:"project_id"`
	Disabled      bool          `json:"disabled"`
	LastGood      time.Time     `json:"last_good,omitempty"`
	TotalRequests int64         `json:"total_requests"`
	SuccessCount  int64         `json:"success_count"`
	ErrorCounts   map[int]int64 `json:"error_counts"`
}

func (c *Credential) snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	errs := make(map[int]int64, len(c.ErrorCounts))
	for k, v := range c.ErrorCounts {
		errs[k] = v
	}
	return Snapshot{
		ID:            c.ID,
		ProjectID:     c.ProjectID,
		Disabled:      c.Disabled,
		LastGood:      c.LastGood,
		TotalRequests: c.TotalRequests,
		SuccessCount:  c.SuccessCount,
		ErrorCounts:   errs,
	}
}

// Borrowed is the minimal view of a credential handed out by Borrow, safe to
// carry inside a RequestContext without holding a pool reference.
type Borrowed struct {
	ID          string
	AccessToken string
	ProjectID   string
}
