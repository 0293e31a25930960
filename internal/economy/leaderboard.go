package economy

import (
	"context"

	"wallet_sync/internal/domain"
)

// GetLeaderboard returns the top limit entries, or the configured size when
// limit is not positive. Only the very first call waits for a load; after
// that a stale snapshot is served while a refresh runs in the background.
func (s *Service) GetLeaderboard(ctx context.Context, limit int) []domain.LeaderboardEntry {
	if limit <= 0 {
		limit = s.cfg.Load().Leaderboard.Size
	}
	switch {
	case !s.board.Loaded():
		s.board.Refresh(ctx)
	case s.board.IsStale():
		s.background(func(ctx context.Context) { s.board.Refresh(ctx) })
	}
	entries := s.board.Top(limit)
	out := make([]domain.LeaderboardEntry, len(entries))
	copy(out, entries)
	return out
}

// RefreshLeaderboard rebuilds the leaderboard now and reports whether this
// call did the rebuild
func (s *Service) RefreshLeaderboard(ctx context.Context) bool {
	_, refreshed := s.board.Refresh(ctx)
	return refreshed
}

// InvalidateLeaderboard marks the snapshot stale. It keeps being served
// until the next refresh replaces it.
func (s *Service) InvalidateLeaderboard() {
	s.board.Invalidate()
}
