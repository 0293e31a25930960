package economy

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"wallet_sync/internal/domain"
)

// Transfer moves amount from one account to another as two mutations: the
// sender is debited first, then the receiver is credited. When the credit
// fails the sender gets the amount back as an admin credit.
func (s *Service) Transfer(ctx context.Context, from, to string, amount decimal.Decimal) (Result, error) {
	switch {
	case !amount.IsPositive() || !validAmount(amount):
		return s.rejected("transfer", refused(ReasonInvalidAmount)), nil
	case from == to:
		return s.rejected("transfer", refused(ReasonSelfTransfer)), nil
	}

	if _, ok := s.GetProfile(ctx, to); !ok {
		return s.rejected("transfer", refused(ReasonUnknownAccount)), nil
	}
	if !s.GetSettings(ctx, to).AcceptsTransfers {
		return s.rejected("transfer", refused(ReasonRecipientDisabled)), nil
	}

	sent, err := s.mutate(ctx, debit("transfer_debit", from, amount, domain.TransactionSent, from, to))
	if err != nil || !sent.OK {
		return sent, err
	}

	received, err := s.mutate(ctx, credit("transfer_credit", to, amount, domain.TransactionReceived, from, to))
	if err == nil && received.OK {
		s.notifyPayment(ctx, to, from, amount)
		return sent, nil
	}
	if err == nil {
		err = errors.New("credit refused: " + string(received.Reason))
	}

	log := s.log.WithFields(logrus.Fields{
		"from":   from,
		"to":     to,
		"amount": amount.String(),
		"error":  err.Error(),
	})
	refund, refundErr := s.mutate(ctx, credit("transfer_refund", from, amount, domain.TransactionAdminCredit, to, from))
	if refundErr != nil || !refund.OK {
		log.Error("Transfer credit failed after debit and the refund failed too, sender balance is short")
		return Result{Reason: ReasonCreditFailed, Balance: sent.Balance}, err
	}
	log.Error("Transfer credit failed after debit, sender refunded")
	return Result{Reason: ReasonCreditFailed, Balance: refund.Balance}, err
}

// notifyPayment tells the receiver about an incoming transfer, here or on the
// process the receiver is active on
func (s *Service) notifyPayment(ctx context.Context, to, from string, amount decimal.Decimal) {
	n := Notification{Kind: domain.EventPaymentNotification, AccountID: to, From: from, Amount: amount}
	if s.deliverLocal(ctx, n) {
		return
	}
	s.forward(ctx, domain.Event{
		Type:         domain.EventPaymentNotification,
		AccountID:    to,
		Counterparty: from,
		Amount:       amount,
	})
}
