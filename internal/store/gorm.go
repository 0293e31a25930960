package store

import (
	"context" // Request scoped cancellation
	"errors"  // Error inspection
	"time"    // Timestamps

	"github.com/shopspring/decimal" // Fixed-point amounts
	"gorm.io/gorm"                  // GORM ORM library
	"gorm.io/gorm/clause"           // Upsert clauses

	"wallet_sync/internal/domain" // Importing domain models
)

// GormGateway implements Gateway on a gorm database
type GormGateway struct {
	db *gorm.DB // Database handle
}

// NewGormGateway wraps an open gorm handle
func NewGormGateway(db *gorm.DB) *GormGateway {
	return &GormGateway{db: db}
}

// notFound maps gorm's missing-row error onto ErrNotFound
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound // Row does not exist
	}
	return err // Any other database error
}

// GetBalance returns the stored balance of an account
func (g *GormGateway) GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	var balance domain.Balance // Balance row
	if err := g.db.WithContext(ctx).First(&balance, "account_id = ?", accountID).Error; err != nil {
		return decimal.Zero, notFound(err)
	}
	return balance.Amount, nil
}

// SetBalance writes the new balance and the optional transaction row atomically
func (g *GormGateway) SetBalance(ctx context.Context, accountID string, amount decimal.Decimal, record *domain.Transaction) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		balance := domain.Balance{AccountID: accountID, Amount: amount} // New balance row
		// Insert or overwrite the amount
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"amount", "updated_at"}),
		}).Create(&balance).Error; err != nil {
			return err // Return error to rollback
		}
		if record == nil {
			return nil // Commit, nothing to record
		}
		// Save transaction
		if err := tx.Create(record).Error; err != nil {
			return err // Return error to rollback
		}
		return nil // Commit transaction
	})
}

// GetAllBalances returns every balance joined with its display name, highest first
func (g *GormGateway) GetAllBalances(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	var rows []domain.LeaderboardEntry // Result rows
	err := g.db.WithContext(ctx).
		Table("balances").
		Select("balances.account_id AS account_id, balances.amount AS amount, COALESCE(profiles.display_name, '') AS display_name").
		Joins("LEFT JOIN profiles ON profiles.account_id = balances.account_id").
		Order("balances.amount DESC").
		Scan(&rows).Error
	return rows, err
}

// CreateAccount stores a profile together with a zero balance and default settings
func (g *GormGateway) CreateAccount(ctx context.Context, profile *domain.Profile) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(profile).Error; err != nil {
			return err // Duplicate username or database error
		}
		if err := tx.Create(&domain.Balance{AccountID: profile.AccountID, Amount: decimal.Zero}).Error; err != nil {
			return err // Return error to rollback
		}
		settings := domain.DefaultSettings(profile.AccountID) // Starting settings
		return tx.Create(&settings).Error
	})
}

// GetProfile returns the profile of an account
func (g *GormGateway) GetProfile(ctx context.Context, accountID string) (*domain.Profile, error) {
	var profile domain.Profile // Profile row
	if err := g.db.WithContext(ctx).First(&profile, "account_id = ?", accountID).Error; err != nil {
		return nil, notFound(err)
	}
	return &profile, nil
}

// GetProfileByUsername looks a profile up by its login name
func (g *GormGateway) GetProfileByUsername(ctx context.Context, username string) (*domain.Profile, error) {
	var profile domain.Profile // Profile row
	if err := g.db.WithContext(ctx).Where("username = ?", username).First(&profile).Error; err != nil {
		return nil, notFound(err)
	}
	return &profile, nil
}

// UpsertProfile inserts or overwrites a profile
func (g *GormGateway) UpsertProfile(ctx context.Context, profile *domain.Profile) error {
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "display_name", "password", "role", "last_seen"}),
	}).Create(profile).Error
}

// TouchLastSeen updates only the last-seen timestamp
func (g *GormGateway) TouchLastSeen(ctx context.Context, accountID string, lastSeen int64) error {
	return g.db.WithContext(ctx).Model(&domain.Profile{}).
		Where("account_id = ?", accountID).
		Update("last_seen", lastSeen).Error
}

// GetSettings returns the settings of an account
func (g *GormGateway) GetSettings(ctx context.Context, accountID string) (*domain.Settings, error) {
	var settings domain.Settings // Settings row
	if err := g.db.WithContext(ctx).First(&settings, "account_id = ?", accountID).Error; err != nil {
		return nil, notFound(err)
	}
	return &settings, nil
}

// UpsertSettings inserts or overwrites settings
func (g *GormGateway) UpsertSettings(ctx context.Context, settings *domain.Settings) error {
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"accepts_transfers", "wants_alerts"}),
	}).Create(settings).Error
}

// GetTransactions returns the newest transactions of an account
func (g *GormGateway) GetTransactions(ctx context.Context, accountID string, limit int) ([]domain.Transaction, error) {
	var txs []domain.Transaction // Slice to hold transactions
	query := g.db.WithContext(ctx).Where("account_id = ?", accountID).Order("created_at desc, id desc")
	if limit > 0 {
		query = query.Limit(limit) // Cap the page
	}
	err := query.Find(&txs).Error
	return txs, err
}

// AppendTransaction stores one transaction row
func (g *GormGateway) AppendTransaction(ctx context.Context, record *domain.Transaction) error {
	if record.CreatedAt == 0 {
		record.CreatedAt = time.Now().UnixMilli() // Stamp rows created outside SetBalance
	}
	return g.db.WithContext(ctx).Create(record).Error
}

// DeleteTransactions removes the whole history of an account
func (g *GormGateway) DeleteTransactions(ctx context.Context, accountID string) error {
	return g.db.WithContext(ctx).Where("account_id = ?", accountID).Delete(&domain.Transaction{}).Error
}

// TransactionExists reports whether a transaction id is taken
func (g *GormGateway) TransactionExists(ctx context.Context, id string) (bool, error) {
	var count int64 // Matching rows
	if err := g.db.WithContext(ctx).Model(&domain.Transaction{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// NextSequence increments and returns the named sequence
func (g *GormGateway) NextSequence(ctx context.Context, name string) (int64, error) {
	var seq domain.Sequence // Sequence row
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Create the row on first use
		if err := tx.Where(domain.Sequence{Name: name}).FirstOrCreate(&seq).Error; err != nil {
			return err
		}
		// Increment in the database so concurrent processes never share a value
		if err := tx.Model(&domain.Sequence{}).Where("name = ?", name).
			Update("value", gorm.Expr("value + ?", 1)).Error; err != nil {
			return err
		}
		return tx.First(&seq, "name = ?", name).Error
	})
	if err != nil {
		return 0, err
	}
	return seq.Value, nil
}
