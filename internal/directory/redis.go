package directory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"wallet_sync/internal/domain"
	"wallet_sync/internal/metrics"
	"wallet_sync/internal/utils"
)

// Options configure a Redis directory
type Options struct {
	ProcessID       string
	KeyPrefix       string
	PresenceTTL     time.Duration // renewed on activity
	LeaderboardTTL  time.Duration // expiry of the shared snapshot
	MemoTTL         time.Duration // how long a fetched snapshot is reused locally
	RefreshInterval time.Duration // how long one process holds the rebuild lock
	Log             logrus.FieldLogger
	Metrics         *metrics.Metrics
	Now             func() time.Time
}

// Redis implements Directory on a redis server
type Redis struct {
	rdb  *redis.Client
	opts Options
	log  logrus.FieldLogger

	memoMu      sync.Mutex
	memo        []domain.LeaderboardEntry
	memoFetched time.Time
}

type sharedLeaderboard struct {
	Entries   []domain.LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time                 `json:"updated_at"`
	Owner     string                    `json:"owner"`
}

func NewRedis(rdb *redis.Client, opts Options) *Redis {
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Redis{
		rdb:  rdb,
		opts: opts,
		log:  opts.Log.WithField("component", "directory"),
	}
}

func (d *Redis) presenceKey(accountID string) string {
	return d.opts.KeyPrefix + "presence:" + accountID
}

func (d *Redis) leaderboardKey() string {
	return d.opts.KeyPrefix + "leaderboard"
}

func (d *Redis) lockKey() string {
	return d.opts.KeyPrefix + "leaderboard:lock"
}

// fail logs a shared store failure; the caller falls back to local behaviour
func (d *Redis) fail(op string, err error) {
	d.opts.Metrics.DistributedFailure(op)
	d.log.WithFields(logrus.Fields{"op": op, "error": err.Error()}).Warn("Shared directory unavailable, continuing locally")
}

// PublishPresence records that accountID is active on this process
func (d *Redis) PublishPresence(ctx context.Context, accountID, displayName string) {
	session := domain.Session{
		AccountID:      accountID,
		DisplayName:    displayName,
		OwnerProcessID: d.opts.ProcessID,
		ActivatedAt:    d.opts.Now().UnixMilli(),
	}
	if err := utils.SetCache(ctx, d.rdb, d.presenceKey(accountID), session, d.opts.PresenceTTL); err != nil {
		d.fail("presence_set", err)
	}
}

// RenewPresence pushes the presence expiry forward
func (d *Redis) RenewPresence(ctx context.Context, accountID string) {
	if err := d.rdb.Expire(ctx, d.presenceKey(accountID), d.opts.PresenceTTL).Err(); err != nil {
		d.fail("presence_renew", err)
	}
}

// RetractPresence removes the record if this process still owns it. An
// account that has since become active elsewhere keeps its record.
func (d *Redis) RetractPresence(ctx context.Context, accountID string) {
	key := d.presenceKey(accountID)
	err := d.rdb.Watch(ctx, func(tx *redis.Tx) error {
		var session domain.Session
		found, err := utils.GetCache(ctx, tx, key, &session)
		if err != nil || !found || session.OwnerProcessID != d.opts.ProcessID {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return utils.DeleteCache(ctx, pipe, key) // Queued, runs on EXEC
		})
		return err
	}, key)
	if err != nil && !errors.Is(err, redis.TxFailedErr) {
		d.fail("presence_delete", err)
	}
}

// LookupPresence returns the session record of accountID. An unreachable
// store answers PresenceUnknown.
func (d *Redis) LookupPresence(ctx context.Context, accountID string) (domain.Session, Presence) {
	var session domain.Session
	found, err := utils.GetCache(ctx, d.rdb, d.presenceKey(accountID), &session)
	if err != nil {
		d.fail("presence_get", err)
		return domain.Session{}, PresenceUnknown
	}
	if !found {
		return domain.Session{}, PresenceAbsent // Nobody holds it
	}
	return session, PresencePresent
}

// AllPresentDisplayNames collects the display names of every active account
func (d *Redis) AllPresentDisplayNames(ctx context.Context) map[string]struct{} {
	names := map[string]struct{}{}
	var cursor uint64
	for {
		keys, next, err := d.rdb.Scan(ctx, cursor, d.presenceKey("*"), 500).Result()
		if err != nil {
			d.fail("presence_scan", err)
			return names
		}
		sessions, err := utils.GetManyCache[domain.Session](ctx, d.rdb, keys)
		if err != nil {
			d.fail("presence_mget", err)
			return names
		}
		for _, s := range sessions {
			names[s.DisplayName] = struct{}{}
		}
		if next == 0 {
			return names
		}
		cursor = next
	}
}

// PublishLeaderboard overwrites the shared snapshot, last writer wins
func (d *Redis) PublishLeaderboard(ctx context.Context, entries []domain.LeaderboardEntry) {
	now := d.opts.Now()
	shared := sharedLeaderboard{Entries: entries, UpdatedAt: now, Owner: d.opts.ProcessID}
	if err := utils.SetCache(ctx, d.rdb, d.leaderboardKey(), shared, d.opts.LeaderboardTTL); err != nil {
		d.fail("leaderboard_set", err)
		return
	}
	d.memoMu.Lock()
	d.memo, d.memoFetched = entries, now
	d.memoMu.Unlock()
}

// FetchLeaderboard returns the shared snapshot, reusing a recent fetch
func (d *Redis) FetchLeaderboard(ctx context.Context) ([]domain.LeaderboardEntry, bool) {
	now := d.opts.Now()
	d.memoMu.Lock()
	if d.memo != nil && now.Sub(d.memoFetched) < d.opts.MemoTTL {
		entries := d.memo
		d.memoMu.Unlock()
		return entries, true
	}
	d.memoMu.Unlock()

	var shared sharedLeaderboard
	found, err := utils.GetCache(ctx, d.rdb, d.leaderboardKey(), &shared)
	if err != nil {
		d.fail("leaderboard_get", err)
		return nil, false
	}
	if !found || now.Sub(shared.UpdatedAt) > d.opts.LeaderboardTTL {
		return nil, false
	}
	if shared.Entries == nil {
		shared.Entries = []domain.LeaderboardEntry{}
	}

	d.memoMu.Lock()
	d.memo, d.memoFetched = shared.Entries, now
	d.memoMu.Unlock()
	return shared.Entries, true
}

// ShouldRefreshLeaderboard takes the rebuild lock for one refresh interval.
// Exactly one process wins each interval; the rest read the shared copy.
// With the store unreachable every process rebuilds for itself.
func (d *Redis) ShouldRefreshLeaderboard(ctx context.Context) bool {
	acquired, err := d.rdb.SetNX(ctx, d.lockKey(), d.opts.ProcessID, d.opts.RefreshInterval).Result()
	if err != nil {
		d.fail("leaderboard_lock", err)
		return true
	}
	return acquired
}
