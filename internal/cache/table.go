package cache

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"wallet_sync/internal/metrics"
)

// Kind names an entity kind with its own table
type Kind string

const (
	KindBalance      Kind = "balance"
	KindProfile      Kind = "profile"
	KindSettings     Kind = "settings"
	KindTransactions Kind = "transactions"
)

// Options bound one table
type Options struct {
	TTL     time.Duration
	MaxSize int
}

// entry is never modified after it is stored
type entry[V any] struct {
	value     V
	writtenAt time.Time
}

// Table is a TTL cache for one kind
type Table[V any] struct {
	kind    Kind
	items   *gocache.Cache
	mu      sync.Mutex // serialises the capacity check, eviction and insert
	opts    atomic.Pointer[Options]
	enabled *atomic.Bool
	now     func() time.Time
	metrics *metrics.Metrics

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// NewTable creates a table. enabled is shared by every table of a Caches.
func NewTable[V any](kind Kind, opts Options, enabled *atomic.Bool, now func() time.Time, m *metrics.Metrics) *Table[V] {
	if now == nil {
		now = time.Now
	}
	if enabled == nil {
		enabled = new(atomic.Bool)
		enabled.Store(true)
	}
	t := &Table[V]{
		kind:    kind,
		items:   gocache.New(gocache.NoExpiration, 0), // expiry is ours, no janitor
		enabled: enabled,
		now:     now,
		metrics: m,
	}
	t.opts.Store(&opts)
	return t
}

// SetOptions swaps the TTL and size bound
func (t *Table[V]) SetOptions(opts Options) {
	t.opts.Store(&opts)
}

func (t *Table[V]) Options() Options {
	return *t.opts.Load()
}

func (t *Table[V]) expired(e entry[V], now time.Time) bool {
	return now.Sub(e.writtenAt) > t.opts.Load().TTL
}

// Get returns the value for key if present and not expired
func (t *Table[V]) Get(key string) (V, bool) {
	var zero V
	if !t.enabled.Load() {
		return zero, false
	}
	raw, ok := t.items.Get(key)
	if !ok {
		t.miss() // Absent
		return zero, false
	}
	e := raw.(entry[V])
	if t.expired(e, t.now()) {
		t.miss() // Still stored until the sweep, but too old to serve
		return zero, false
	}
	t.hits.Add(1)
	t.metrics.CacheHit(string(t.kind))
	return e.value, true
}

func (t *Table[V]) miss() {
	t.misses.Add(1)
	t.metrics.CacheMiss(string(t.kind))
}

// Put stores value under key, evicting the oldest quarter first when the
// table is full and key is new.
func (t *Table[V]) Put(key string, value V) {
	if !t.enabled.Load() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.items.Get(key); !exists && t.items.ItemCount() >= t.opts.Load().MaxSize {
		t.evictOldest() // Make room before the insert
	}
	t.items.Set(key, entry[V]{value: value, writtenAt: t.now()}, gocache.NoExpiration)
}

// evictOldest removes a quarter of the entries, oldest write first. Caller holds mu.
func (t *Table[V]) evictOldest() {
	items := t.items.Items()
	n := len(items) / 4 // A quarter per eviction
	if n < 1 {
		n = 1 // Tiny tables still free a slot
	}

	type aged struct {
		key       string
		writtenAt time.Time
	}
	all := make([]aged, 0, len(items))
	for k, item := range items {
		all = append(all, aged{key: k, writtenAt: item.Object.(entry[V]).writtenAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].writtenAt.Before(all[j].writtenAt) })

	for _, a := range all[:n] {
		t.items.Delete(a.key)
	}
	t.evictions.Add(uint64(n))
	t.metrics.CacheEvicted(string(t.kind), n)
}

func (t *Table[V]) Invalidate(key string) {
	t.items.Delete(key)
}

func (t *Table[V]) InvalidateAll() {
	t.items.Flush()
}

// Sweep removes expired entries and returns how many it removed
func (t *Table[V]) Sweep() int {
	now := t.now()
	removed := 0
	for k, item := range t.items.Items() {
		if t.expired(item.Object.(entry[V]), now) {
			t.items.Delete(k)
			removed++
		}
	}
	t.metrics.CacheSwept(string(t.kind), removed)
	return removed
}

// Len counts stored entries, expired ones included
func (t *Table[V]) Len() int {
	return t.items.ItemCount()
}

// TableStats describes one table
type TableStats struct {
	Size       int     `json:"size"`
	MaxSize    int     `json:"max_size"`
	TTLSeconds float64 `json:"ttl_seconds"`
	OldestAge  float64 `json:"oldest_age_seconds"`
	NewestAge  float64 `json:"newest_age_seconds"`
	Hits       uint64  `json:"hits"`
	Misses     uint64  `json:"misses"`
	Evictions  uint64  `json:"evictions"`
}

func (t *Table[V]) Stats() TableStats {
	opts := t.opts.Load()
	s := TableStats{
		MaxSize:    opts.MaxSize,
		TTLSeconds: opts.TTL.Seconds(),
		Hits:       t.hits.Load(),
		Misses:     t.misses.Load(),
		Evictions:  t.evictions.Load(),
	}
	now := t.now()
	var oldest, newest time.Time
	for _, item := range t.items.Items() {
		w := item.Object.(entry[V]).writtenAt
		if oldest.IsZero() || w.Before(oldest) {
			oldest = w
		}
		if newest.IsZero() || w.After(newest) {
			newest = w
		}
		s.Size++
	}
	if s.Size > 0 {
		s.OldestAge = now.Sub(oldest).Seconds()
		s.NewestAge = now.Sub(newest).Seconds()
	}
	return s
}
