package economy

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"wallet_sync/internal/cache"
	"wallet_sync/internal/domain"
	"wallet_sync/internal/store"
)

// GetProfile returns the profile of accountID
func (s *Service) GetProfile(ctx context.Context, accountID string) (domain.Profile, bool) {
	if profile, ok := s.caches.Profiles.Get(accountID); ok {
		return profile, true
	}
	profile, err := s.gw.GetProfile(ctx, accountID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.readFailed("profile", accountID, err)
		}
		return domain.Profile{}, false
	}
	s.caches.Profiles.Put(accountID, *profile)
	return *profile, true
}

// ProfileByUsername looks a profile up by login name. It always asks the
// database; login is the only caller.
func (s *Service) ProfileByUsername(ctx context.Context, username string) (domain.Profile, error) {
	profile, err := s.gw.GetProfileByUsername(ctx, username)
	if err != nil {
		return domain.Profile{}, err
	}
	s.caches.Profiles.Put(profile.AccountID, *profile)
	return *profile, nil
}

// CreateAccount registers a new account with a zero balance
func (s *Service) CreateAccount(ctx context.Context, username, displayName, passwordHash, role string) (domain.Profile, error) {
	if displayName == "" {
		displayName = username
	}
	if role == "" {
		role = domain.RoleUser
	}
	profile := domain.Profile{
		AccountID:   uuid.NewString(),
		Username:    username,
		DisplayName: displayName,
		Password:    passwordHash,
		Role:        role,
		LastSeen:    s.now().UnixMilli(),
	}
	if err := s.gw.CreateAccount(ctx, &profile); err != nil {
		return domain.Profile{}, fmt.Errorf("%w: create account: %w", ErrPersistence, err)
	}
	s.caches.Profiles.Put(profile.AccountID, profile)
	s.caches.Balances.Put(profile.AccountID, decimal.Zero)
	s.caches.Settings.Put(profile.AccountID, domain.DefaultSettings(profile.AccountID))
	s.board.Patch(profile.AccountID, decimal.Zero, displayName)
	return profile, nil
}

// GetSettings returns the settings of accountID, or the defaults when none
// are stored or the database cannot be read
func (s *Service) GetSettings(ctx context.Context, accountID string) domain.Settings {
	if settings, ok := s.caches.Settings.Get(accountID); ok {
		return settings
	}
	settings, err := s.gw.GetSettings(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		defaults := domain.DefaultSettings(accountID)
		s.caches.Settings.Put(accountID, defaults)
		return defaults
	}
	if err != nil {
		s.readFailed("settings", accountID, err)
		return domain.DefaultSettings(accountID)
	}
	s.caches.Settings.Put(accountID, *settings)
	return *settings
}

// UpdateSettings stores settings and caches them once written
func (s *Service) UpdateSettings(ctx context.Context, settings domain.Settings) error {
	if err := s.gw.UpsertSettings(ctx, &settings); err != nil {
		s.log.WithFields(logrus.Fields{"account_id": settings.AccountID, "error": err.Error()}).Error("Failed to save settings")
		return fmt.Errorf("%w: save settings: %w", ErrPersistence, err)
	}
	s.caches.Settings.Put(settings.AccountID, settings)
	return nil
}

// GetTransactionHistory returns up to limit of the newest transactions of
// accountID, newest first
func (s *Service) GetTransactionHistory(ctx context.Context, accountID string, limit int) []domain.Transaction {
	if limit <= 0 || limit > historyCacheSize {
		limit = historyCacheSize
	}
	txs, ok := s.caches.Transactions.Get(accountID)
	if !ok {
		var err error
		txs, err = s.gw.GetTransactions(ctx, accountID, historyCacheSize)
		if err != nil {
			s.readFailed("transactions", accountID, err)
			return []domain.Transaction{}
		}
		s.caches.Transactions.Put(accountID, txs)
	}
	if len(txs) > limit {
		txs = txs[:limit]
	}
	out := make([]domain.Transaction, len(txs))
	copy(out, txs)
	return out
}

// DeleteTransactions removes the transaction history of accountID
func (s *Service) DeleteTransactions(ctx context.Context, accountID string) error {
	if err := s.gw.DeleteTransactions(ctx, accountID); err != nil {
		s.log.WithFields(logrus.Fields{"account_id": accountID, "error": err.Error()}).Error("Failed to delete transactions")
		return fmt.Errorf("%w: delete transactions: %w", ErrPersistence, err)
	}
	s.caches.Transactions.Invalidate(accountID)
	return nil
}

// Invalidate drops one cached entry of kind; an empty key drops the whole kind
func (s *Service) Invalidate(kind cache.Kind, key string) error {
	if key == "" {
		return s.caches.InvalidateAll(kind)
	}
	return s.caches.Invalidate(kind, key)
}

// InvalidateAccount drops everything cached for accountID
func (s *Service) InvalidateAccount(accountID string) {
	s.caches.InvalidateAccount(accountID)
}

func (s *Service) InvalidateBalance(accountID string) {
	s.caches.Balances.Invalidate(accountID)
}

func (s *Service) InvalidateProfile(accountID string) {
	s.caches.Profiles.Invalidate(accountID)
}

func (s *Service) InvalidateSettings(accountID string) {
	s.caches.Settings.Invalidate(accountID)
}

func (s *Service) InvalidateTransactions(accountID string) {
	s.caches.Transactions.Invalidate(accountID)
}
