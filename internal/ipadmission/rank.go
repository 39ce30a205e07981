package ipadmission

import "sort"

// RankBy selects the field a ranking query sorts on.
type RankBy string

const (
	RankByToday RankBy = "today_requests"
	RankByTotal RankBy = "total_requests"
)

// RankedEntry pairs an IP with its record for a ranking response.
type RankedEntry struct {
	IP     string
	Record Record
}

// Page is a standard paginated result.
type Page struct {
	Items      []RankedEntry
	Page       int
	PageSize   int
	Total      int
	TotalPages int
	HasNext    bool
	HasPrev    bool
}

// Rank returns a page of IP records sorted descending by rankBy, optionally
// including banned IPs.
func (m *Manager) Rank(rankBy RankBy, page, pageSize int, includeBanned bool) Page {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	m.mu.Lock()
	entries := make([]RankedEntry, 0, len(m.records))
	for ip, rec := range m.records {
		if !includeBanned && rec.Status == StatusBanned {
			continue
		}
		entries = append(entries, RankedEntry{IP: ip, Record: *rec})
	}
	m.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		if rankBy == RankByTotal {
			return entries[i].Record.TotalRequests > entries[j].Record.TotalRequests
		}
		return entries[i].Record.TodayRequests > entries[j].Record.TodayRequests
	})

	total := len(entries)
	totalPages := (total + pageSize - 1) / pageSize
	if totalPages == 0 {
		totalPages = 1
	}

	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return Page{
		Items:      entries[start:end],
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}
