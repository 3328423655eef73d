package checkout

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// Repository holds the queries checkout runs inside its transaction.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// LockUnpaidOrder locks the buyer's cart row for the rest of the transaction.
func (r *Repository) LockUnpaidOrder(ctx context.Context, buyerID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("buyer_id = ? AND paid_status = ?", buyerID, false).
		First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *Repository) ListItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&items).Error
	return items, err
}

// ProductOwners returns the current owner of every product that still exists.
// Missing products are absent from the map; ownerless products map to nil.
func (r *Repository) ProductOwners(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]*uuid.UUID, error) {
	owners := make(map[uuid.UUID]*uuid.UUID, len(productIDs))
	if len(productIDs) == 0 {
		return owners, nil
	}
	var rows []models.Product
	if err := r.db.WithContext(ctx).
		Select("id", "owner_id").
		Where("id IN ?", productIDs).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		owners[row.ID] = row.OwnerID
	}
	return owners, nil
}

// MarkPaid flips the unpaid order to paid. It reports false when the order
// was already paid by a concurrent checkout.
func (r *Repository) MarkPaid(ctx context.Context, orderID uuid.UUID, total decimal.Decimal, method enums.PaymentMethod, paidAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND paid_status = ?", orderID, false).
		Updates(map[string]any{
			"paid_status":     true,
			"paid_at":         paidAt,
			"total":           total,
			"payment_method":  method,
			"shipping_status": enums.ShippingStatusProcessing,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) CreateReconciliationIssue(ctx context.Context, issue *models.ReconciliationIssue) error {
	return r.db.WithContext(ctx).Create(issue).Error
}

// IssueSummary aggregates unresolved reconciliation issues for one reason.
type IssueSummary struct {
	Reason string
	Count  int64
	Amount decimal.Decimal
}

// SummarizeOpenIssues groups unresolved reconciliation issues by reason.
func (r *Repository) SummarizeOpenIssues(ctx context.Context) ([]IssueSummary, error) {
	var rows []struct {
		Reason string
		Count  int64
		Amount decimal.NullDecimal
	}
	if err := r.db.WithContext(ctx).
		Model(&models.ReconciliationIssue{}).
		Select("reason, COUNT(*) AS count, SUM(amount) AS amount").
		Where("resolved_at IS NULL").
		Group("reason").
		Order("reason ASC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]IssueSummary, 0, len(rows))
	for _, row := range rows {
		amount := decimal.Zero
		if row.Amount.Valid {
			amount = row.Amount.Decimal.Round(2)
		}
		out = append(out, IssueSummary{Reason: row.Reason, Count: row.Count, Amount: amount})
	}
	return out, nil
}
