package economy

import (
	"context"

	"github.com/sirupsen/logrus"

	"wallet_sync/internal/domain"
)

// handleEvent applies an event from another process to the local tiers.
// Applying the same event twice leaves the same state.
func (s *Service) handleEvent(ctx context.Context, ev domain.Event) {
	log := s.log.WithFields(logrus.Fields{"type": ev.Type, "account_id": ev.AccountID, "origin": ev.Origin})

	switch ev.Type {
	case domain.EventAccountActivated:
		s.caches.Profiles.Invalidate(ev.AccountID)
		if s.supersede(ev) {
			log.Info("Account activated elsewhere, local session closed")
		}

	case domain.EventAccountDeactivated:
		s.caches.Profiles.Invalidate(ev.AccountID)

	case domain.EventBalanceChanged:
		unlock := s.locks.lock(ev.AccountID)           // Waits for a fill in progress
		s.caches.Balances.Invalidate(ev.AccountID)     // Next read goes to the database
		s.caches.Transactions.Invalidate(ev.AccountID) // The change came with a new row
		unlock()
		s.board.Patch(ev.AccountID, ev.Amount, ev.DisplayName)

	case domain.EventPaymentNotification:
		s.deliverLocal(ctx, Notification{Kind: ev.Type, AccountID: ev.AccountID, From: ev.Counterparty, Amount: ev.Amount})

	case domain.EventGenericNotification:
		s.deliverLocal(ctx, Notification{Kind: ev.Type, AccountID: ev.AccountID, Message: ev.Message})

	default:
		log.Debug("Ignoring unknown event type")
		return
	}
	log.Debug("Applied remote event")
}

// supersede closes the local session of an account that a later activation
// moved to another process. Equal activation times go to the higher process id.
func (s *Service) supersede(ev domain.Event) bool {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	session, ok := s.sessions[ev.AccountID]
	if !ok {
		return false
	}
	if session.ActivatedAt > ev.Timestamp || (session.ActivatedAt == ev.Timestamp && s.processID > ev.Origin) {
		return false // Our activation is the newer one
	}
	delete(s.sessions, ev.AccountID)
	return true
}
