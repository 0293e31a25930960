// Package directory is the shared, best-effort tier: which process owns each
// active account, and a shared copy of the leaderboard. Nothing here is a
// source of truth and no operation returns an error; failures are logged and
// the caller gets the "absent" answer.
package directory

import (
	"context"

	"wallet_sync/internal/domain"
)

// Presence is the answer of a presence lookup
type Presence int

const (
	PresenceUnknown Presence = iota // Directory disabled or unreachable
	PresenceAbsent                  // No process holds the account
	PresencePresent                 // The returned session holds it
)

// Directory is the presence registry and leaderboard mirror
type Directory interface {
	PublishPresence(ctx context.Context, accountID, displayName string)
	RenewPresence(ctx context.Context, accountID string)
	RetractPresence(ctx context.Context, accountID string)
	LookupPresence(ctx context.Context, accountID string) (domain.Session, Presence)
	AllPresentDisplayNames(ctx context.Context) map[string]struct{}

	PublishLeaderboard(ctx context.Context, entries []domain.LeaderboardEntry)
	FetchLeaderboard(ctx context.Context) ([]domain.LeaderboardEntry, bool)
	// ShouldRefreshLeaderboard reports whether this process should rebuild
	// the shared leaderboard from the database instead of reading it.
	ShouldRefreshLeaderboard(ctx context.Context) bool
}

// Noop is the directory used when the distributed tier is disabled
type Noop struct{}

func (Noop) PublishPresence(context.Context, string, string) {}
func (Noop) RenewPresence(context.Context, string)           {}
func (Noop) RetractPresence(context.Context, string)         {}

func (Noop) LookupPresence(context.Context, string) (domain.Session, Presence) {
	return domain.Session{}, PresenceUnknown
}

func (Noop) AllPresentDisplayNames(context.Context) map[string]struct{} {
	return map[string]struct{}{}
}

func (Noop) PublishLeaderboard(context.Context, []domain.LeaderboardEntry) {}

func (Noop) FetchLeaderboard(context.Context) ([]domain.LeaderboardEntry, bool) {
	return nil, false
}

func (Noop) ShouldRefreshLeaderboard(context.Context) bool {
	return true
}
