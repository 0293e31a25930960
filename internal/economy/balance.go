package economy

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"wallet_sync/internal/domain"
	"wallet_sync/internal/store"
)

// GetBalance returns the balance of accountID. A database failure is logged
// and reads as zero.
//
// A miss is filled under the account lock, so a fill never lands after a
// mutation or a remote invalidation that finished while it was reading.
func (s *Service) GetBalance(ctx context.Context, accountID string) decimal.Decimal {
	if amount, ok := s.caches.Balances.Get(accountID); ok {
		return amount // Hit, no database call
	}
	unlock := s.locks.lock(accountID)
	defer unlock()

	amount, err := s.gw.GetBalance(ctx, accountID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.readFailed("balance", accountID, err)
		}
		return decimal.Zero
	}
	s.caches.Balances.Put(accountID, amount)
	return amount
}

func (s *Service) readFailed(what, accountID string, err error) {
	s.log.WithFields(logrus.Fields{
		"kind":       what,
		"account_id": accountID,
		"error":      err.Error(),
	}).Warn("Database read failed, serving default")
}

// validAmount reports whether amount is stored exactly by the amount columns
func validAmount(amount decimal.Decimal) bool {
	return amount.Equal(amount.Truncate(domain.AmountScale))
}

// SetBalance overwrites the balance of accountID
func (s *Service) SetBalance(ctx context.Context, accountID string, amount decimal.Decimal) (Result, error) {
	if amount.IsNegative() || !validAmount(amount) {
		return s.rejected("set", refused(ReasonInvalidAmount)), nil
	}
	return s.mutate(ctx, mutation{
		op:        "set",
		accountID: accountID,
		apply:     func(decimal.Decimal) (decimal.Decimal, Reason) { return amount, ReasonNone },
	})
}

// AddBalance credits amount to accountID as an operator
func (s *Service) AddBalance(ctx context.Context, accountID string, amount decimal.Decimal) (Result, error) {
	if !amount.IsPositive() || !validAmount(amount) {
		return s.rejected("add", refused(ReasonInvalidAmount)), nil
	}
	return s.mutate(ctx, credit("add", accountID, amount, domain.TransactionAdminCredit, "", accountID))
}

// RemoveBalance debits amount from accountID as an operator. A balance
// smaller than amount is left untouched.
func (s *Service) RemoveBalance(ctx context.Context, accountID string, amount decimal.Decimal) (Result, error) {
	if !amount.IsPositive() || !validAmount(amount) {
		return s.rejected("remove", refused(ReasonInvalidAmount)), nil
	}
	return s.mutate(ctx, debit("remove", accountID, amount, domain.TransactionAdminDebit, accountID, ""))
}

// mutation describes one single-account balance change
type mutation struct {
	op        string
	accountID string
	apply     func(current decimal.Decimal) (decimal.Decimal, Reason)
	record    domain.TransactionKind // empty records no transaction
	amount    decimal.Decimal
	from, to  string
}

func credit(op, accountID string, amount decimal.Decimal, kind domain.TransactionKind, from, to string) mutation {
	return mutation{
		op:        op,
		accountID: accountID,
		apply: func(current decimal.Decimal) (decimal.Decimal, Reason) {
			return current.Add(amount), ReasonNone
		},
		record: kind,
		amount: amount,
		from:   from,
		to:     to,
	}
}

func debit(op, accountID string, amount decimal.Decimal, kind domain.TransactionKind, from, to string) mutation {
	return mutation{
		op:        op,
		accountID: accountID,
		apply: func(current decimal.Decimal) (decimal.Decimal, Reason) {
			if current.LessThan(amount) {
				return current, ReasonInsufficientFunds
			}
			return current.Sub(amount), ReasonNone
		},
		record: kind,
		amount: amount,
		from:   from,
		to:     to,
	}
}

func (s *Service) rejected(op string, r Result) Result {
	s.metrics.Mutation(op, "rejected")
	return r
}

// mutate runs the pipeline for m: validate against the stored balance,
// persist balance and transaction row together, update the cache, patch the
// leaderboard and emit the change.
func (s *Service) mutate(ctx context.Context, m mutation) (Result, error) {
	unlock := s.locks.lock(m.accountID)
	defer unlock()

	log := s.log.WithFields(logrus.Fields{"op": m.op, "account_id": m.accountID})

	current, err := s.gw.GetBalance(ctx, m.accountID) // Validate against the stored value, not the cache
	if errors.Is(err, store.ErrNotFound) {
		return s.rejected(m.op, Result{Reason: ReasonUnknownAccount}), nil
	}
	if err != nil {
		s.metrics.Mutation(m.op, "failed")
		log.WithField("error", err.Error()).Error("Failed to read balance for mutation")
		return Result{}, fmt.Errorf("%w: read balance of %s: %w", ErrPersistence, m.accountID, err)
	}

	next, reason := m.apply(current)
	if reason != ReasonNone {
		log.WithField("reason", reason).Debug("Mutation refused")
		return s.rejected(m.op, Result{Reason: reason, Balance: current}), nil
	}

	var record *domain.Transaction
	if m.record != "" {
		id, err := s.ids.Next(ctx)
		if err != nil {
			s.metrics.Mutation(m.op, "failed")
			log.WithField("error", err.Error()).Error("Failed to allocate transaction id")
			return Result{}, err
		}
		record = &domain.Transaction{
			ID:        id,
			AccountID: m.accountID,
			Kind:      m.record,
			Amount:    m.amount,
			From:      m.from,
			To:        m.to,
			CreatedAt: s.now().UnixMilli(),
		}
	}

	if err := s.gw.SetBalance(ctx, m.accountID, next, record); err != nil {
		s.metrics.Mutation(m.op, "failed")
		log.WithField("error", err.Error()).Error("Failed to persist balance")
		return Result{}, fmt.Errorf("%w: write balance of %s: %w", ErrPersistence, m.accountID, err)
	}

	s.caches.Balances.Put(m.accountID, next) // Read-after-write on this process
	if record != nil {
		s.caches.Transactions.Invalidate(m.accountID) // Next history read sees the new row
	}

	name := ""
	if profile, ok := s.caches.Profiles.Get(m.accountID); ok {
		name = profile.DisplayName
	}
	s.board.Patch(m.accountID, next, name) // Keeps the board fresh between refreshes

	s.emit(domain.Event{
		Type:        domain.EventBalanceChanged,
		AccountID:   m.accountID,
		DisplayName: name,
		Amount:      next,
	})

	s.metrics.Mutation(m.op, "ok")
	log.WithFields(logrus.Fields{"amount": next.String()}).Info("Balance updated")
	return Result{OK: true, Balance: next}, nil
}
