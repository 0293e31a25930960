package cache

import (
	"errors"
	"slices"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"wallet_sync/internal/config"
	"wallet_sync/internal/domain"
	"wallet_sync/internal/metrics"
)

// ErrUnknownKind is returned for a kind with no table
var ErrUnknownKind = errors.New("cache: unknown kind")

// Caches holds one table per entity kind behind a shared on/off switch
type Caches struct {
	enabled atomic.Bool

	Balances     *Table[decimal.Decimal]
	Profiles     *Table[domain.Profile]
	Settings     *Table[domain.Settings]
	Transactions *transactionTable
}

// transactionTable copies lists on the way in so a cached list is never
// changed through the caller's slice.
type transactionTable struct {
	*Table[[]domain.Transaction]
}

func (t *transactionTable) Put(key string, txs []domain.Transaction) {
	t.Table.Put(key, slices.Clone(txs))
}

func options(k config.KindConfig) Options {
	return Options{TTL: k.TTL, MaxSize: k.MaxSize}
}

// New builds the tables from the cache configuration
func New(cfg config.CacheConfig, m *metrics.Metrics, now func() time.Time) *Caches {
	c := &Caches{}
	c.enabled.Store(cfg.Enabled)
	c.Balances = NewTable[decimal.Decimal](KindBalance, options(cfg.Balance), &c.enabled, now, m)
	c.Profiles = NewTable[domain.Profile](KindProfile, options(cfg.Profile), &c.enabled, now, m)
	c.Settings = NewTable[domain.Settings](KindSettings, options(cfg.Settings), &c.enabled, now, m)
	c.Transactions = &transactionTable{NewTable[[]domain.Transaction](KindTransactions, options(cfg.Transactions), &c.enabled, now, m)}
	return c
}

// Apply installs a reloaded configuration
func (c *Caches) Apply(cfg config.CacheConfig) {
	c.Balances.SetOptions(options(cfg.Balance))
	c.Profiles.SetOptions(options(cfg.Profile))
	c.Settings.SetOptions(options(cfg.Settings))
	c.Transactions.SetOptions(options(cfg.Transactions))
	c.SetEnabled(cfg.Enabled)
}

func (c *Caches) Enabled() bool {
	return c.enabled.Load()
}

// SetEnabled flips the switch. Turning the cache off drops everything so a
// later re-enable never serves values written before the switch.
func (c *Caches) SetEnabled(on bool) {
	if !c.enabled.Swap(on) || on {
		return
	}
	for _, t := range c.tables() {
		t.InvalidateAll()
	}
}

type table interface {
	Invalidate(key string)
	InvalidateAll()
	Sweep() int
	Stats() TableStats
}

func (c *Caches) tables() map[Kind]table {
	return map[Kind]table{
		KindBalance:      c.Balances,
		KindProfile:      c.Profiles,
		KindSettings:     c.Settings,
		KindTransactions: c.Transactions,
	}
}

func (c *Caches) Invalidate(kind Kind, key string) error {
	t, ok := c.tables()[kind]
	if !ok {
		return ErrUnknownKind
	}
	t.Invalidate(key)
	return nil
}

func (c *Caches) InvalidateAll(kind Kind) error {
	t, ok := c.tables()[kind]
	if !ok {
		return ErrUnknownKind
	}
	t.InvalidateAll()
	return nil
}

// InvalidateAccount drops every kind cached for one account
func (c *Caches) InvalidateAccount(key string) {
	for _, t := range c.tables() {
		t.Invalidate(key)
	}
}

// Sweep removes expired entries from every table
func (c *Caches) Sweep() int {
	removed := 0
	for _, t := range c.tables() {
		removed += t.Sweep()
	}
	return removed
}

// Stats is the getCacheStats view
type Stats struct {
	Enabled bool                `json:"enabled"`
	Kinds   map[Kind]TableStats `json:"kinds"`
}

func (c *Caches) Stats() Stats {
	s := Stats{Enabled: c.Enabled(), Kinds: make(map[Kind]TableStats, 4)}
	for kind, t := range c.tables() {
		s.Kinds[kind] = t.Stats()
	}
	return s
}
