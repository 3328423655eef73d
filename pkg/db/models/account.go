package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// Account holds the internal currency balance of exactly one user.
type Account struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	UserID    uuid.UUID       `gorm:"column:user_id;type:uuid;not null;uniqueIndex:accounts_user_id_key"`
	Balance   decimal.Decimal `gorm:"column:balance;type:numeric(12,2);not null;check:accounts_balance_non_negative,balance >= 0"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (a *Account) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}

// LedgerTransaction is an immutable record of one balance mutation.
type LedgerTransaction struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	UserID      uuid.UUID             `gorm:"column:user_id;type:uuid;not null;index:ledger_transactions_user_id_idx"`
	Amount      decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null;check:ledger_transactions_amount_non_negative,amount >= 0"`
	Kind        enums.TransactionKind `gorm:"column:kind;type:text;not null"`
	Description string                `gorm:"column:description;type:text;not null"`
	OrderID     *uuid.UUID            `gorm:"column:order_id;type:uuid"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (t *LedgerTransaction) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	return nil
}
