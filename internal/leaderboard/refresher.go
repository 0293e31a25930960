// Package leaderboard keeps the in-process balance leaderboard.
//
// Readers load the current snapshot without locking. A full refresh is
// single-flight: a caller that finds one already running gets the current
// snapshot back immediately instead of starting or waiting for another.
package leaderboard

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"wallet_sync/internal/domain"
	"wallet_sync/internal/metrics"
)

// Source supplies every balance with its display name
type Source interface {
	GetAllBalances(ctx context.Context) ([]domain.LeaderboardEntry, error)
}

// Mirror is the shared copy of the leaderboard other processes may have built
type Mirror interface {
	FetchLeaderboard(ctx context.Context) ([]domain.LeaderboardEntry, bool)
	PublishLeaderboard(ctx context.Context, entries []domain.LeaderboardEntry)
	ShouldRefreshLeaderboard(ctx context.Context) bool
}

type snapshot struct {
	entries     []domain.LeaderboardEntry
	refreshedAt time.Time
}

// Refresher owns the snapshot and rebuilds it on demand
type Refresher struct {
	source  Source
	mirror  Mirror
	log     logrus.FieldLogger
	metrics *metrics.Metrics
	now     func() time.Time

	ttl      atomic.Int64
	current  atomic.Pointer[snapshot]
	inFlight atomic.Bool
	mu       sync.Mutex // writers only: refresh swap and patch
}

// Options configure a Refresher; Mirror, Log, Metrics and Now are optional
type Options struct {
	Source  Source
	Mirror  Mirror
	TTL     time.Duration
	Log     logrus.FieldLogger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

func New(opts Options) *Refresher {
	r := &Refresher{
		source:  opts.Source,
		mirror:  opts.Mirror,
		log:     opts.Log,
		metrics: opts.Metrics,
		now:     opts.Now,
	}
	if r.log == nil {
		r.log = logrus.StandardLogger()
	}
	if r.now == nil {
		r.now = time.Now
	}
	r.ttl.Store(int64(opts.TTL))
	return r
}

// SetTTL changes the staleness window
func (r *Refresher) SetTTL(ttl time.Duration) {
	r.ttl.Store(int64(ttl))
}

// Snapshot returns the current entries, highest balance first. The slice is
// shared and must not be modified.
func (r *Refresher) Snapshot() []domain.LeaderboardEntry {
	if s := r.current.Load(); s != nil {
		return s.entries
	}
	return nil
}

// Loaded reports whether any snapshot has been installed
func (r *Refresher) Loaded() bool {
	return r.current.Load() != nil
}

// IsStale reports whether the snapshot is missing or older than the TTL
func (r *Refresher) IsStale() bool {
	s := r.current.Load()
	if s == nil || s.refreshedAt.IsZero() {
		return true
	}
	return r.now().Sub(s.refreshedAt) > time.Duration(r.ttl.Load())
}

// Invalidate marks the snapshot stale; it keeps being served until replaced
func (r *Refresher) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.current.Load(); s != nil {
		r.current.Store(&snapshot{entries: s.entries})
	}
}

// Refresh rebuilds the snapshot. It returns the entries now installed and
// whether this call performed the rebuild; a call made while another refresh
// is running, or whose fetch fails, returns the current snapshot and false.
func (r *Refresher) Refresh(ctx context.Context) ([]domain.LeaderboardEntry, bool) {
	if !r.inFlight.CompareAndSwap(false, true) {
		r.metrics.Refresh("skipped", 0) // Another refresh owns this round
		return r.Snapshot(), false
	}
	defer r.inFlight.Store(false) // Release the flag

	start := r.now()
	entries, fromMirror, err := r.load(ctx)
	if err != nil {
		r.log.WithFields(logrus.Fields{"error": err.Error()}).Warn("Leaderboard refresh failed, keeping previous snapshot")
		r.metrics.Refresh("failed", 0)
		return r.Snapshot(), false
	}
	sortEntries(entries) // Richest first

	r.mu.Lock()
	r.current.Store(&snapshot{entries: entries, refreshedAt: r.now()}) // Readers see the old or the new list, never a mix
	r.mu.Unlock()

	if !fromMirror && r.mirror != nil {
		r.mirror.PublishLeaderboard(ctx, entries) // Share the rebuild with other processes
	}
	r.metrics.Refresh("ok", r.now().Sub(start))
	r.log.WithFields(logrus.Fields{"entries": len(entries), "from_mirror": fromMirror}).Debug("Leaderboard refreshed")
	return entries, true
}

// RefreshAsync runs Refresh on its own goroutine and delivers the result
// once the new snapshot, if any, is installed.
func (r *Refresher) RefreshAsync(ctx context.Context) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		entries, refreshed := r.Refresh(ctx)
		out <- Result{Entries: entries, Refreshed: refreshed}
		close(out)
	}()
	return out
}

// Result is the outcome of an asynchronous refresh
type Result struct {
	Entries   []domain.LeaderboardEntry
	Refreshed bool
}

// load prefers the shared copy when another process is responsible for
// rebuilding it, and falls back to the database otherwise.
func (r *Refresher) load(ctx context.Context) ([]domain.LeaderboardEntry, bool, error) {
	if r.mirror != nil && !r.mirror.ShouldRefreshLeaderboard(ctx) {
		if entries, ok := r.mirror.FetchLeaderboard(ctx); ok {
			return append([]domain.LeaderboardEntry(nil), entries...), true, nil
		}
	}
	entries, err := r.source.GetAllBalances(ctx)
	return entries, false, err
}

// Patch moves one account to its new position. Without a snapshot it does
// nothing; the next refresh picks the change up.
func (r *Refresher) Patch(accountID string, amount decimal.Decimal, displayName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.current.Load()
	if s == nil {
		return
	}
	entries := make([]domain.LeaderboardEntry, 0, len(s.entries)+1)
	entry := domain.LeaderboardEntry{AccountID: accountID, Amount: amount, DisplayName: displayName}
	for _, e := range s.entries {
		if e.AccountID == accountID {
			if displayName == "" {
				entry.DisplayName = e.DisplayName
			}
			continue
		}
		entries = append(entries, e)
	}
	// Insert after every entry with an amount >= the new one.
	i := sort.Search(len(entries), func(i int) bool { return entries[i].Amount.LessThan(amount) })
	entries = append(entries, domain.LeaderboardEntry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = entry

	r.current.Store(&snapshot{entries: entries, refreshedAt: s.refreshedAt})
}

// Remove drops an account from the snapshot
func (r *Refresher) Remove(accountID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.current.Load()
	if s == nil {
		return
	}
	entries := make([]domain.LeaderboardEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.AccountID != accountID {
			entries = append(entries, e)
		}
	}
	r.current.Store(&snapshot{entries: entries, refreshedAt: s.refreshedAt})
}

// Top returns at most n entries; n <= 0 returns all of them
func (r *Refresher) Top(n int) []domain.LeaderboardEntry {
	entries := r.Snapshot()
	if n > 0 && n < len(entries) {
		return entries[:n]
	}
	return entries
}

// Stats describes the snapshot for the cache stats view
type Stats struct {
	Size       int     `json:"size"`
	AgeSeconds float64 `json:"age_seconds"`
	Stale      bool    `json:"stale"`
	Refreshing bool    `json:"refreshing"`
}

func (r *Refresher) Stats() Stats {
	st := Stats{Stale: r.IsStale(), Refreshing: r.inFlight.Load()}
	if s := r.current.Load(); s != nil {
		st.Size = len(s.entries)
		if !s.refreshedAt.IsZero() {
			st.AgeSeconds = r.now().Sub(s.refreshedAt).Seconds()
		}
	}
	return st
}

// sortEntries orders by amount descending, account id breaking ties
func sortEntries(entries []domain.LeaderboardEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if c := entries[i].Amount.Cmp(entries[j].Amount); c != 0 {
			return c > 0
		}
		return entries[i].AccountID < entries[j].AccountID
	})
}
