package economy

import (
	"context"

	"github.com/sirupsen/logrus"

	"wallet_sync/internal/domain"
)

// ActivateAccount marks accountID active on this process, publishes its
// presence and tells the other processes. An empty displayName falls back
// to the profile's.
func (s *Service) ActivateAccount(ctx context.Context, accountID, displayName string) domain.Session {
	if displayName == "" {
		if profile, ok := s.GetProfile(ctx, accountID); ok {
			displayName = profile.DisplayName
		}
	}
	now := s.now().UnixMilli()
	session := domain.Session{
		AccountID:      accountID,
		DisplayName:    displayName,
		OwnerProcessID: s.processID,
		ActivatedAt:    now,
	}

	s.sessionsMu.Lock()
	s.sessions[accountID] = session
	s.sessionsMu.Unlock()

	s.dir.PublishPresence(ctx, accountID, displayName)
	s.touch(accountID, now)
	s.emit(domain.Event{Type: domain.EventAccountActivated, AccountID: accountID, DisplayName: displayName, Timestamp: now})
	s.log.WithField("account_id", accountID).Info("Account activated")
	return session
}

// DeactivateAccount ends the local session of accountID. It reports false
// when the account was not active here.
func (s *Service) DeactivateAccount(ctx context.Context, accountID string) bool {
	s.sessionsMu.Lock()
	session, ok := s.sessions[accountID]
	delete(s.sessions, accountID)
	s.sessionsMu.Unlock()
	if !ok {
		return false
	}

	s.dir.RetractPresence(ctx, accountID)
	s.touch(accountID, s.now().UnixMilli())
	s.emit(domain.Event{Type: domain.EventAccountDeactivated, AccountID: accountID, DisplayName: session.DisplayName})
	s.log.WithField("account_id", accountID).Info("Account deactivated")
	return true
}

// IsActive reports whether accountID is active on this process
func (s *Service) IsActive(accountID string) bool {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	_, ok := s.sessions[accountID]
	return ok
}

// Session returns the local session of accountID
func (s *Service) Session(accountID string) (domain.Session, bool) {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	session, ok := s.sessions[accountID]
	return session, ok
}

// OnlineDisplayNames returns the names of accounts active on any process,
// or only the local ones when the shared directory knows nothing
func (s *Service) OnlineDisplayNames(ctx context.Context) []string {
	names := s.dir.AllPresentDisplayNames(ctx)
	s.sessionsMu.RLock()
	for _, session := range s.sessions {
		names[session.DisplayName] = struct{}{}
	}
	s.sessionsMu.RUnlock()
	out := make([]string, 0, len(names))
	for name := range names {
		out = append(out, name)
	}
	return out
}

// RenewPresence pushes the directory expiry of every local session forward
func (s *Service) RenewPresence(ctx context.Context) {
	s.sessionsMu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.sessionsMu.RUnlock()
	for _, id := range ids {
		s.dir.RenewPresence(ctx, id)
	}
}

// touch records a last-seen time to be written by the next flush, and
// updates the cached profile right away
func (s *Service) touch(accountID string, at int64) {
	s.touchMu.Lock()
	s.touches[accountID] = at
	s.touchMu.Unlock()
	if profile, ok := s.caches.Profiles.Get(accountID); ok {
		profile.LastSeen = at
		s.caches.Profiles.Put(accountID, profile)
	}
}

// FlushTouches writes pending last-seen times. Failed writes stay pending
// unless a newer time was recorded meanwhile.
func (s *Service) FlushTouches(ctx context.Context) error {
	s.touchMu.Lock()
	pending := s.touches
	s.touches = map[string]int64{}
	s.touchMu.Unlock()

	var firstErr error
	for id, at := range pending {
		if err := s.gw.TouchLastSeen(ctx, id, at); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			s.touchMu.Lock()
			if newer, ok := s.touches[id]; !ok || newer < at {
				s.touches[id] = at
			}
			s.touchMu.Unlock()
			s.log.WithFields(logrus.Fields{"account_id": id, "error": err.Error()}).Warn("Failed to write last seen")
		}
	}
	return firstErr
}
