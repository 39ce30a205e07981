package ipadmission

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeResolver struct{ label string }

func (f fakeResolver) Resolve(ctx context.Context, ip string) string { return f.label }

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	m, err := New(Options{
		StatsPath:  filepath.Join(dir, "ip_stats.toml"),
		BanOpsPath: filepath.Join(dir, "ban_operations.toml"),
		Resolver:   fakeResolver{label: "local"},
	})
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func TestCheckAllowsUnknownIP(t *testing.T) {
	m := newTestManager(t)
	require.True(t, m.Check("1.2.3.4"))
}

func TestRecordTracksLifetimeAndDailyCounters(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.True(t, m.Record(ctx, "1.2.3.4", "/v1internal/x", "curl/8", "gemini-pro"))
	require.True(t, m.Record(ctx, "1.2.3.4", "/v1internal/x", "curl/8", "gemini-pro"))

	rec, ok := m.Get("1.2.3.4")
	require.True(t, ok)
	require.Equal(t, int64(2), rec.TotalRequests)
	require.Equal(t, int64(2), rec.TodayRequests)
	require.Equal(t, "local", rec.Location)
	require.LessOrEqual(t, rec.TodayRequests, rec.TotalRequests)
}

func TestBanRejectedBelowRequestThreshold(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	require.True(t, m.Record(ctx, "1.2.3.4", "/x", "ua", ""))

	res := m.SetStatus("1.2.3.4", StatusBanned, 0, "op1")
	require.False(t, res.OK)
}

func TestBanAllowedAtRequestThreshold(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	for i := 0; i < minRequestsToBan; i++ {
		require.True(t, m.Record(ctx, "1.2.3.4", "/x", "ua", ""))
	}

	res := m.SetStatus("1.2.3.4", StatusBanned, 0, "op1")
	require.True(t, res.OK)

	rec, ok := m.Get("1.2.3.4")
	require.True(t, ok)
	require.Equal(t, StatusBanned, rec.Status)
	require.NotZero(t, rec.BannedTime)

	require.False(t, m.Check("1.2.3.4"))
}

func TestOperatorBanThrottleAllowsThreeThenRejects(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	ips := []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4"}
	for _, ip := range ips {
		for i := 0; i < minRequestsToBan; i++ {
			require.True(t, m.Record(ctx, ip, "/x", "ua", ""))
		}
	}

	for i := 0; i < maxBansPerWindow; i++ {
		res := m.SetStatus(ips[i], StatusBanned, 0, "operator-x")
		require.True(t, res.OK, "ban %d should succeed", i)
	}

	res := m.SetStatus(ips[3], StatusBanned, 0, "operator-x")
	require.False(t, res.OK)
	require.GreaterOrEqual(t, res.RemainingMinutes, 1)
}

func TestShouldPruneTieredPolicy(t *testing.T) {
	banned := &Record{Status: StatusBanned, LastRequestTime: 1, TotalRequests: 1000}
	require.False(t, shouldPrune(banned, 10_000_000))

	zeroActivity := &Record{Status: StatusActive, LastRequestTime: 0, TotalRequests: 1000}
	require.False(t, shouldPrune(zeroActivity, 10_000_000))

	heavyKept := &Record{Status: StatusActive, LastRequestTime: 0, TotalRequests: 300}
	heavyKept.LastRequestTime = 1000
	require.False(t, shouldPrune(heavyKept, 1000+6*secondsPerDay))
	require.True(t, shouldPrune(heavyKept, 1000+7*secondsPerDay))

	light := &Record{Status: StatusActive, LastRequestTime: 1000, TotalRequests: 10}
	require.False(t, shouldPrune(light, 1000+2*secondsPerDay))
	require.True(t, shouldPrune(light, 1000+3*secondsPerDay))
}

func TestSetStatusRateLimited(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	require.True(t, m.Record(ctx, "1.2.3.4", "/x", "ua", ""))

	res := m.SetStatus("1.2.3.4", StatusRateLimited, 60, "")
	require.True(t, res.OK)
	require.False(t, m.Check("1.2.3.4"))
}

func TestSetStatusUnknownIPFails(t *testing.T) {
	m := newTestManager(t)
	res := m.SetStatus("9.9.9.9", StatusBanned, 0, "op1")
	require.False(t, res.OK)
}

func TestRankOrdersDescendingAndPages(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.True(t, m.Record(ctx, "1.1.1.1", "/x", "ua", ""))
	}
	require.True(t, m.Record(ctx, "2.2.2.2", "/x", "ua", ""))

	page := m.Rank(RankByToday, 1, 20, true)
	require.Len(t, page.Items, 2)
	require.Equal(t, "1.1.1.1", page.Items[0].IP)
	require.Equal(t, 2, page.Total)
	require.False(t, page.HasNext)
	require.False(t, page.HasPrev)
}
