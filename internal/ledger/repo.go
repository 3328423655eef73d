package ledger

import (
	"context"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository manages persistence for accounts and their transactions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	EnsureAccount(ctx context.Context, userID uuid.UUID, opening decimal.Decimal) (*models.Account, bool, error)
	FindAccount(ctx context.Context, userID uuid.UUID) (*models.Account, error)
	AddToBalance(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (bool, error)
	SubtractIfCovered(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (bool, error)
	CreateTransaction(ctx context.Context, txn *models.LedgerTransaction) error
	ListTransactions(ctx context.Context, userID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.LedgerTransaction, error)
	Totals(ctx context.Context) (Totals, error)
	LatestTransactions(ctx context.Context, limit int) ([]models.LedgerTransaction, error)
}

// Totals aggregates the whole currency supply.
type Totals struct {
	Circulating      decimal.Decimal
	AccountCount     int64
	TransactionCount int64
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// EnsureAccount inserts the account unless one exists and reports whether
// this call created it. The unique key on user_id arbitrates races.
func (r *repository) EnsureAccount(ctx context.Context, userID uuid.UUID, opening decimal.Decimal) (*models.Account, bool, error) {
	account := &models.Account{UserID: userID, Balance: opening}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(account)
	if res.Error != nil {
		return nil, false, res.Error
	}
	created := res.RowsAffected == 1

	existing, err := r.FindAccount(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return existing, created, nil
}

func (r *repository) FindAccount(ctx context.Context, userID uuid.UUID) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// AddToBalance increments in place and reports whether the account exists.
func (r *repository) AddToBalance(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("user_id = ?", userID).
		Update("balance", gorm.Expr("balance + ?", amount))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SubtractIfCovered is a compare-and-decrement: the balance check and the
// write happen in a single statement so concurrent debits cannot overdraw.
func (r *repository) SubtractIfCovered(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("user_id = ? AND balance >= ?", userID, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CreateTransaction(ctx context.Context, txn *models.LedgerTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) ListTransactions(ctx context.Context, userID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.LedgerTransaction, error) {
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Scopes(pagination.After(cursor, ""))

	var rows []models.LedgerTransaction
	if err := query.
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) Totals(ctx context.Context) (Totals, error) {
	var row struct {
		Circulating  decimal.NullDecimal
		AccountCount int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Select("SUM(balance) AS circulating, COUNT(*) AS account_count").
		Scan(&row).Error; err != nil {
		return Totals{}, err
	}

	var txnCount int64
	if err := r.db.WithContext(ctx).Model(&models.LedgerTransaction{}).Count(&txnCount).Error; err != nil {
		return Totals{}, err
	}

	totals := Totals{AccountCount: row.AccountCount, TransactionCount: txnCount, Circulating: decimal.Zero}
	if row.Circulating.Valid {
		totals.Circulating = row.Circulating.Decimal
	}
	return totals, nil
}

func (r *repository) LatestTransactions(ctx context.Context, limit int) ([]models.LedgerTransaction, error) {
	var rows []models.LedgerTransaction
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
