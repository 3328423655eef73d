package cart

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// Repository exposes persistence operations for the buyer's unpaid order.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) CartRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// EnsureActiveCart inserts an unpaid order for the buyer unless one exists and
// returns the buyer's single unpaid order. The partial unique index on
// (buyer_id) WHERE paid_status = false turns a concurrent insert into a no-op.
func (r *Repository) EnsureActiveCart(ctx context.Context, buyerID uuid.UUID) (*models.Order, error) {
	candidate := &models.Order{
		BuyerID:        buyerID,
		Total:          decimal.Zero,
		ShippingStatus: enums.ShippingStatusProcessing,
	}
	if err := r.db.WithContext(ctx).
		Omit("Items").
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(candidate).Error; err != nil {
		return nil, err
	}
	return r.FindActiveCart(ctx, buyerID)
}

// FindActiveCart loads the buyer's unpaid order without items.
func (r *Repository) FindActiveCart(ctx context.Context, buyerID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Where("buyer_id = ? AND paid_status = ?", buyerID, false).
		First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// LockCart re-reads the unpaid order and holds its row lock until the
// transaction ends, serializing mutations of one cart.
func (r *Repository) LockCart(ctx context.Context, cartID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND paid_status = ?", cartID, false).
		First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// FindProduct reads the product's current state under a share lock so a
// concurrent moderation change waits for the add to finish.
func (r *Repository) FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "SHARE"}).
		First(&product, "id = ?", productID).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *Repository) FindItemByProduct(ctx context.Context, cartID, productID uuid.UUID) (*models.OrderItem, error) {
	var item models.OrderItem
	if err := r.db.WithContext(ctx).
		Where("order_id = ? AND product_id = ?", cartID, productID).
		First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *Repository) FindItem(ctx context.Context, cartID, itemID uuid.UUID) (*models.OrderItem, error) {
	var item models.OrderItem
	if err := r.db.WithContext(ctx).
		Where("order_id = ? AND id = ?", cartID, itemID).
		First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// ListItems returns the cart lines in the order they were added.
func (r *Repository) ListItems(ctx context.Context, cartID uuid.UUID) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := r.db.WithContext(ctx).
		Where("order_id = ?", cartID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&items).Error
	return items, err
}

func (r *Repository) CreateItem(ctx context.Context, item *models.OrderItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *Repository) UpdateItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int, lineTotal decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("id = ?", itemID).
		Updates(map[string]any{"quantity": quantity, "line_total": lineTotal}).Error
}

func (r *Repository) DeleteItem(ctx context.Context, itemID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", itemID).Delete(&models.OrderItem{}).Error
}

// SetTotal keeps the running cart total on the unpaid order.
func (r *Repository) SetTotal(ctx context.Context, cartID uuid.UUID, total decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND paid_status = ?", cartID, false).
		Update("total", total).Error
}

// CountUnits sums the quantities in the buyer's unpaid order.
func (r *Repository) CountUnits(ctx context.Context, buyerID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Select("COALESCE(SUM(order_items.quantity), 0)").
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.buyer_id = ? AND orders.paid_status = ?", buyerID, false).
		Scan(&count).Error
	return count, err
}
