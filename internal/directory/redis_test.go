package directory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet_sync/internal/domain"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newDirectory(t *testing.T, mr *miniredis.Miniredis, process string, c *clock) *Redis {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedis(rdb, Options{
		ProcessID:       process,
		KeyPrefix:       "test:",
		PresenceTTL:     time.Minute,
		LeaderboardTTL:  2 * time.Minute,
		MemoTTL:         30 * time.Second,
		RefreshInterval: time.Minute,
		Now:             c.Now,
	})
}

func TestPresenceLifecycle(t *testing.T) {
	mr := miniredis.RunT(t)
	c := &clock{now: time.Unix(1000, 0)}
	a := newDirectory(t, mr, "proc-a", c)
	b := newDirectory(t, mr, "proc-b", c)
	ctx := context.Background()

	a.PublishPresence(ctx, "acc-1", "Alice")

	session, presence := b.LookupPresence(ctx, "acc-1")
	require.Equal(t, PresencePresent, presence)
	assert.Equal(t, "proc-a", session.OwnerProcessID)
	assert.Equal(t, "Alice", session.DisplayName)
	assert.Equal(t, int64(1000000), session.ActivatedAt)

	a.RetractPresence(ctx, "acc-1")
	_, presence = b.LookupPresence(ctx, "acc-1")
	assert.Equal(t, PresenceAbsent, presence)
}

func TestRetractKeepsRecordOwnedElsewhere(t *testing.T) {
	mr := miniredis.RunT(t)
	c := &clock{now: time.Unix(1000, 0)}
	a := newDirectory(t, mr, "proc-a", c)
	b := newDirectory(t, mr, "proc-b", c)
	ctx := context.Background()

	a.PublishPresence(ctx, "acc-1", "Alice")
	b.PublishPresence(ctx, "acc-1", "Alice")
	a.RetractPresence(ctx, "acc-1")

	session, presence := a.LookupPresence(ctx, "acc-1")
	require.Equal(t, PresencePresent, presence)
	assert.Equal(t, "proc-b", session.OwnerProcessID)
}

func TestPresenceExpiresAndRenews(t *testing.T) {
	mr := miniredis.RunT(t)
	c := &clock{now: time.Unix(1000, 0)}
	d := newDirectory(t, mr, "proc-a", c)
	ctx := context.Background()

	d.PublishPresence(ctx, "acc-1", "Alice")
	mr.FastForward(50 * time.Second)
	d.RenewPresence(ctx, "acc-1")
	mr.FastForward(50 * time.Second)
	_, presence := d.LookupPresence(ctx, "acc-1")
	assert.Equal(t, PresencePresent, presence)

	mr.FastForward(time.Minute)
	_, presence = d.LookupPresence(ctx, "acc-1")
	assert.Equal(t, PresenceAbsent, presence)
}

func TestAllPresentDisplayNames(t *testing.T) {
	mr := miniredis.RunT(t)
	c := &clock{now: time.Unix(1000, 0)}
	a := newDirectory(t, mr, "proc-a", c)
	b := newDirectory(t, mr, "proc-b", c)
	ctx := context.Background()

	a.PublishPresence(ctx, "acc-1", "Alice")
	b.PublishPresence(ctx, "acc-2", "Bob")
	require.NoError(t, mr.Set("test:unrelated", "x"))

	names := a.AllPresentDisplayNames(ctx)
	assert.Equal(t, map[string]struct{}{"Alice": {}, "Bob": {}}, names)
}

func TestLeaderboardSharedAcrossProcesses(t *testing.T) {
	mr := miniredis.RunT(t)
	c := &clock{now: time.Unix(1000, 0)}
	a := newDirectory(t, mr, "proc-a", c)
	b := newDirectory(t, mr, "proc-b", c)
	ctx := context.Background()

	_, ok := b.FetchLeaderboard(ctx)
	assert.False(t, ok)

	a.PublishLeaderboard(ctx, []domain.LeaderboardEntry{
		{AccountID: "acc-1", Amount: decimal.NewFromInt(50), DisplayName: "Alice"},
	})

	entries, ok := b.FetchLeaderboard(ctx)
	require.True(t, ok)
	require.Len(t, entries, 1)
	assert.Equal(t, "acc-1", entries[0].AccountID)
	assert.True(t, decimal.NewFromInt(50).Equal(entries[0].Amount))
}

func TestFetchIsMemoized(t *testing.T) {
	mr := miniredis.RunT(t)
	c := &clock{now: time.Unix(1000, 0)}
	a := newDirectory(t, mr, "proc-a", c)
	b := newDirectory(t, mr, "proc-b", c)
	ctx := context.Background()

	a.PublishLeaderboard(ctx, []domain.LeaderboardEntry{{AccountID: "acc-1", Amount: decimal.NewFromInt(1)}})
	first, ok := b.FetchLeaderboard(ctx)
	require.True(t, ok)

	a.PublishLeaderboard(ctx, []domain.LeaderboardEntry{{AccountID: "acc-2", Amount: decimal.NewFromInt(2)}})
	memo, ok := b.FetchLeaderboard(ctx)
	require.True(t, ok)
	assert.Equal(t, first, memo)

	c.Advance(31 * time.Second)
	fresh, ok := b.FetchLeaderboard(ctx)
	require.True(t, ok)
	require.Len(t, fresh, 1)
	assert.Equal(t, "acc-2", fresh[0].AccountID)
}

func TestStaleSharedSnapshotIsIgnored(t *testing.T) {
	mr := miniredis.RunT(t)
	c := &clock{now: time.Unix(1000, 0)}
	a := newDirectory(t, mr, "proc-a", c)
	b := newDirectory(t, mr, "proc-b", c)
	ctx := context.Background()

	a.PublishLeaderboard(ctx, []domain.LeaderboardEntry{{AccountID: "acc-1", Amount: decimal.NewFromInt(1)}})
	c.Advance(3 * time.Minute)

	_, ok := b.FetchLeaderboard(ctx)
	assert.False(t, ok)
}

func TestOnlyOneProcessRefreshesPerInterval(t *testing.T) {
	mr := miniredis.RunT(t)
	c := &clock{now: time.Unix(1000, 0)}
	a := newDirectory(t, mr, "proc-a", c)
	b := newDirectory(t, mr, "proc-b", c)
	ctx := context.Background()

	assert.True(t, a.ShouldRefreshLeaderboard(ctx))
	assert.False(t, b.ShouldRefreshLeaderboard(ctx))
	assert.False(t, a.ShouldRefreshLeaderboard(ctx))

	mr.FastForward(61 * time.Second)
	assert.True(t, b.ShouldRefreshLeaderboard(ctx))
}

func TestUnreachableStoreDegrades(t *testing.T) {
	mr := miniredis.RunT(t)
	c := &clock{now: time.Unix(1000, 0)}
	d := newDirectory(t, mr, "proc-a", c)
	ctx := context.Background()
	mr.Close()

	d.PublishPresence(ctx, "acc-1", "Alice")
	d.RenewPresence(ctx, "acc-1")
	d.RetractPresence(ctx, "acc-1")
	_, presence := d.LookupPresence(ctx, "acc-1")
	assert.Equal(t, PresenceUnknown, presence)
	assert.Empty(t, d.AllPresentDisplayNames(ctx))

	d.PublishLeaderboard(ctx, []domain.LeaderboardEntry{{AccountID: "acc-1"}})
	_, ok := d.FetchLeaderboard(ctx)
	assert.False(t, ok)
	assert.True(t, d.ShouldRefreshLeaderboard(ctx))
}

func TestNoopDirectory(t *testing.T) {
	var d Directory = Noop{}
	ctx := context.Background()
	d.PublishPresence(ctx, "acc-1", "Alice")
	_, presence := d.LookupPresence(ctx, "acc-1")
	assert.Equal(t, PresenceUnknown, presence)
	assert.Empty(t, d.AllPresentDisplayNames(ctx))
	_, ok := d.FetchLeaderboard(ctx)
	assert.False(t, ok)
	assert.True(t, d.ShouldRefreshLeaderboard(ctx))
}
