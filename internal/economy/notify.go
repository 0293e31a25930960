package economy

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"wallet_sync/internal/directory"
	"wallet_sync/internal/domain"
)

// Delivery says where a notification went
type Delivery string

const (
	DeliveredLocally Delivery = "local"     // Account active on this process
	Forwarded        Delivery = "forwarded" // Broadcast for the owning process
	Offline          Delivery = "offline"   // Directory reports no owner, nothing sent
)

// Notification is a message for an active account
type Notification struct {
	Kind      domain.EventType `json:"kind"` // Payment or generic notification
	AccountID string           `json:"account_id"`
	From      string           `json:"from,omitempty"`
	Amount    decimal.Decimal  `json:"amount"`
	Message   string           `json:"message,omitempty"`
}

// Notifier shows notifications to accounts active on this process. It is
// always called on the owner goroutine.
type Notifier interface {
	Notify(n Notification)
}

// LogNotifier writes notifications to the log
type LogNotifier struct {
	Log logrus.FieldLogger
}

func (l LogNotifier) Notify(n Notification) {
	l.Log.WithFields(logrus.Fields{
		"kind":       n.Kind,
		"account_id": n.AccountID,
		"from":       n.From,
		"amount":     n.Amount.String(),
		"message":    n.Message,
	}).Info("Notification")
}

// Notify sends message to accountID, here when the account is active on
// this process, otherwise through the process the directory names.
func (s *Service) Notify(ctx context.Context, accountID, message string) Delivery {
	n := Notification{Kind: domain.EventGenericNotification, AccountID: accountID, Message: message}
	if s.deliverLocal(ctx, n) {
		return DeliveredLocally
	}
	return s.forward(ctx, domain.Event{Type: domain.EventGenericNotification, AccountID: accountID, Message: message})
}

// forward broadcasts a notification event unless the directory knows that no
// other process holds the account. Without an answer from the directory the
// event goes out and receivers without the account ignore it.
func (s *Service) forward(ctx context.Context, ev domain.Event) Delivery {
	log := s.log.WithFields(logrus.Fields{"account_id": ev.AccountID, "type": ev.Type})
	session, presence := s.dir.LookupPresence(ctx, ev.AccountID)
	switch {
	case presence == directory.PresenceAbsent:
		log.Debug("Account not active anywhere, notification dropped")
		return Offline
	case presence == directory.PresencePresent && session.OwnerProcessID == s.processID:
		log.Debug("Stale presence record of this process, notification dropped") // Not in the local session set
		return Offline
	case presence == directory.PresencePresent:
		log = log.WithField("owner", session.OwnerProcessID)
	}
	log.Debug("Forwarding notification")
	s.emit(ev)
	return Forwarded
}

// deliverLocal hands n to the notifier if its account is active here.
// Payment notifications respect the wants-alerts setting.
func (s *Service) deliverLocal(ctx context.Context, n Notification) bool {
	if !s.IsActive(n.AccountID) {
		return false
	}
	if n.Kind == domain.EventPaymentNotification && !s.GetSettings(ctx, n.AccountID).WantsAlerts {
		return true
	}
	if !s.owner.Dispatch(func() { s.notifier.Notify(n) }) {
		s.log.WithField("account_id", n.AccountID).Warn("Owner stopped, notification dropped")
	}
	return true
}
