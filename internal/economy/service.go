// Package economy is the caller-facing core: balance reads through the local
// cache, the mutation pipeline, transfers, the leaderboard, sessions and
// notifications, and the reconciliation of events other processes publish.
//
// Every mutation runs persist, cache update, leaderboard patch and event
// emission in that order. A write the database refused never reaches the
// cache, and a failed event never fails the write.
package economy

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"wallet_sync/internal/cache"
	"wallet_sync/internal/config"
	"wallet_sync/internal/directory"
	"wallet_sync/internal/domain"
	"wallet_sync/internal/events"
	"wallet_sync/internal/leaderboard"
	"wallet_sync/internal/metrics"
	"wallet_sync/internal/store"
	"wallet_sync/internal/txid"
	"wallet_sync/internal/workers"
)

// historyCacheSize is how many of the newest transactions are cached per account
const historyCacheSize = 100

// touchFlushInterval is how often pending last-seen updates are written
const touchFlushInterval = 30 * time.Second

// EventBus is the part of the event synchronizer the service uses
type EventBus interface {
	Publish(ctx context.Context, ev domain.Event)
	Subscribe(h events.Handler)
	Start(ctx context.Context) error
}

// Deps are the collaborators of a Service. Directory, Events, Notifier, Log,
// Metrics and Now are optional.
type Deps struct {
	Gateway   store.Gateway
	Caches    *cache.Caches
	Board     *leaderboard.Refresher
	Directory directory.Directory
	Events    EventBus
	IDs       *txid.Generator
	Pool      *workers.Pool
	Owner     *workers.Owner
	Notifier  Notifier
	Config    *config.Store
	ProcessID string
	Log       logrus.FieldLogger
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

// Service implements the caller API on top of the cache tiers
type Service struct {
	gw        store.Gateway
	caches    *cache.Caches
	board     *leaderboard.Refresher
	dir       directory.Directory
	events    EventBus
	ids       *txid.Generator
	pool      *workers.Pool
	owner     *workers.Owner
	notifier  Notifier
	cfg       *config.Store
	processID string
	log       logrus.FieldLogger
	metrics   *metrics.Metrics
	now       func() time.Time

	locks     *accountLocks
	scheduler *workers.Scheduler

	sessionsMu sync.RWMutex
	sessions   map[string]domain.Session

	touchMu sync.Mutex
	touches map[string]int64
}

func New(d Deps) *Service {
	if d.Log == nil {
		d.Log = logrus.StandardLogger()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Directory == nil {
		d.Directory = directory.Noop{}
	}
	if d.Notifier == nil {
		d.Notifier = LogNotifier{Log: d.Log}
	}
	s := &Service{
		gw:        d.Gateway,
		caches:    d.Caches,
		board:     d.Board,
		dir:       d.Directory,
		events:    d.Events,
		ids:       d.IDs,
		pool:      d.Pool,
		owner:     d.Owner,
		notifier:  d.Notifier,
		cfg:       d.Config,
		processID: d.ProcessID,
		log:       d.Log.WithField("process", d.ProcessID),
		metrics:   d.Metrics,
		now:       d.Now,
		locks:     newAccountLocks(),
		scheduler: workers.NewScheduler(d.Log),
		sessions:  map[string]domain.Session{},
		touches:   map[string]int64{},
	}
	d.Config.OnChange(s.applyConfig)
	return s
}

// applyConfig pushes a reloaded snapshot into the components that cache values from it
func (s *Service) applyConfig(cfg *config.Config) {
	s.caches.Apply(cfg.Cache)
	s.board.SetTTL(cfg.Leaderboard.TTL)
	s.ids.Apply(cfg.TxID)
	s.log.WithFields(logrus.Fields{
		"cache_enabled": cfg.Cache.Enabled,
		"txid_strategy": cfg.TxID.Strategy,
	}).Info("Configuration reloaded")
}

// Start subscribes to remote events, loads the leaderboard and schedules the
// periodic jobs. A bus that cannot be reached leaves the
// service running local-only.
func (s *Service) Start(ctx context.Context) {
	if s.events != nil {
		s.events.Subscribe(s.handleEvent)
		if err := s.events.Start(ctx); err != nil {
			s.metrics.DistributedFailure("event_subscribe")
			s.log.WithField("error", err.Error()).Warn("Event bus unavailable, running local-only")
		}
	}

	if _, ok := s.board.Refresh(ctx); !ok {
		s.log.Warn("Initial leaderboard load failed, retrying on schedule")
	}

	s.scheduler.Every("leaderboard_refresh", func() time.Duration {
		return s.cfg.Load().Leaderboard.RefreshInterval
	}, func(ctx context.Context) { s.board.Refresh(ctx) })
	s.scheduler.Every("cache_sweep", func() time.Duration {
		return s.cfg.Load().Cache.SweepInterval
	}, func(context.Context) {
		if n := s.caches.Sweep(); n > 0 {
			s.log.WithField("removed", n).Debug("Swept expired cache entries")
		}
	})
	s.scheduler.Every("presence_renew", func() time.Duration {
		if ttl := s.cfg.Load().Distributed.PresenceTTL; ttl > time.Second {
			return ttl / 2
		}
		return time.Second
	}, s.RenewPresence)
	s.scheduler.Every("touch_flush", func() time.Duration {
		return touchFlushInterval
	}, func(ctx context.Context) { _ = s.FlushTouches(ctx) })
}

// Close stops the periodic jobs without interrupting one in progress,
// retracts the presence of local sessions and writes pending last-seen
// updates once more.
func (s *Service) Close(ctx context.Context) error {
	if err := s.scheduler.Stop(ctx); err != nil {
		return err
	}
	s.sessionsMu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.sessions = map[string]domain.Session{}
	s.sessionsMu.Unlock()
	for _, id := range ids {
		s.dir.RetractPresence(ctx, id)
	}
	return s.FlushTouches(ctx)
}

// background runs fn on the worker pool, or on its own goroutine when the
// pool has no room
func (s *Service) background(fn workers.Task) {
	if err := s.pool.TrySubmit(fn); err != nil {
		go fn(context.Background())
	}
}

// emit broadcasts ev off the calling goroutine. Losing it only delays the
// other processes.
func (s *Service) emit(ev domain.Event) {
	if s.events == nil {
		return
	}
	if err := s.pool.TrySubmit(func(ctx context.Context) { s.events.Publish(ctx, ev) }); err != nil {
		s.metrics.EventPublished(string(ev.Type), "dropped")
		s.log.WithFields(logrus.Fields{"type": ev.Type, "account_id": ev.AccountID, "error": err.Error()}).Warn("Event dropped")
	}
}

// Stats is the cache statistics view
type Stats struct {
	Cache          cache.Stats       `json:"cache"`
	Leaderboard    leaderboard.Stats `json:"leaderboard"`
	ActiveSessions int               `json:"active_sessions"`
	PendingTouches int               `json:"pending_touches"`
}

func (s *Service) Stats() Stats {
	s.sessionsMu.RLock()
	active := len(s.sessions)
	s.sessionsMu.RUnlock()
	s.touchMu.Lock()
	pending := len(s.touches)
	s.touchMu.Unlock()
	return Stats{
		Cache:          s.caches.Stats(),
		Leaderboard:    s.board.Stats(),
		ActiveSessions: active,
		PendingTouches: pending,
	}
}

// ReloadConfig re-reads the environment and applies the new snapshot
func (s *Service) ReloadConfig() error {
	return s.cfg.Reload()
}
