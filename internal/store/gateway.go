// Package store is the persistence gateway: the durable source of truth for
// balances, profiles, settings and transactions. Every call blocks on the
// database; callers run them off the owner goroutine.
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"wallet_sync/internal/domain"
)

// ErrNotFound is returned when the requested row does not exist
var ErrNotFound = errors.New("store: record not found")

// Gateway is the persistence surface the core consumes
type Gateway interface {
	GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error)
	// SetBalance writes amount and, when record is not nil, appends it in the
	// same database transaction.
	SetBalance(ctx context.Context, accountID string, amount decimal.Decimal, record *domain.Transaction) error
	GetAllBalances(ctx context.Context) ([]domain.LeaderboardEntry, error)

	CreateAccount(ctx context.Context, profile *domain.Profile) error
	GetProfile(ctx context.Context, accountID string) (*domain.Profile, error)
	GetProfileByUsername(ctx context.Context, username string) (*domain.Profile, error)
	UpsertProfile(ctx context.Context, profile *domain.Profile) error
	TouchLastSeen(ctx context.Context, accountID string, lastSeen int64) error

	GetSettings(ctx context.Context, accountID string) (*domain.Settings, error)
	UpsertSettings(ctx context.Context, settings *domain.Settings) error

	GetTransactions(ctx context.Context, accountID string, limit int) ([]domain.Transaction, error)
	AppendTransaction(ctx context.Context, record *domain.Transaction) error
	DeleteTransactions(ctx context.Context, accountID string) error
	TransactionExists(ctx context.Context, id string) (bool, error)
	NextSequence(ctx context.Context, name string) (int64, error)
}
