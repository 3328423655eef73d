package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func orderedItems(db *gorm.DB) *gorm.DB {
	return db.Order("order_items.created_at ASC").Order("order_items.id ASC")
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Preload("Items", orderedItems).
		Where("id = ?", orderID).
		First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", orderID).
		First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListPaidOrders(ctx context.Context, filters OrderFilters, limit int, cursor *pagination.Cursor) ([]models.Order, error) {
	query := r.db.WithContext(ctx).
		Preload("Items", orderedItems).
		Where("paid_status = ?", true)
	if filters.BuyerID != nil {
		query = query.Where("buyer_id = ?", *filters.BuyerID)
	}
	if filters.ShippingStatus != nil {
		query = query.Where("shipping_status = ?", *filters.ShippingStatus)
	}
	query = query.Scopes(pagination.After(cursor, ""))

	var rows []models.Order
	if err := query.
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// AdvanceShipping moves a paid order from one shipping status to the next.
// It reports false when the order is no longer in the expected state.
func (r *repository) AdvanceShipping(ctx context.Context, orderID uuid.UUID, from, to enums.ShippingStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND paid_status = ? AND shipping_status = ?", orderID, true, from).
		Update("shipping_status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListSellerOrders returns the latest paid orders containing the seller's
// lines, with only those lines preloaded.
func (r *repository) ListSellerOrders(ctx context.Context, sellerID uuid.UUID, limit int) ([]models.Order, error) {
	sellerLines := r.db.Model(&models.OrderItem{}).
		Select("order_id").
		Where("seller_id = ?", sellerID)

	var rows []models.Order
	if err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return orderedItems(db.Where("seller_id = ?", sellerID))
		}).
		Where("paid_status = ? AND id IN (?)", true, sellerLines).
		Order("paid_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) sellerSales(ctx context.Context, sellerID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("order_items.seller_id = ? AND orders.paid_status = ?", sellerID, true)
}

func (r *repository) SellerTotals(ctx context.Context, sellerID uuid.UUID, since *time.Time) (SalesTotals, error) {
	var row struct {
		Revenue decimal.NullDecimal
		Units   int64
		Orders  int64
	}
	query := r.sellerSales(ctx, sellerID).
		Select("SUM(order_items.line_total) AS revenue, COALESCE(SUM(order_items.quantity), 0) AS units, COUNT(DISTINCT order_items.order_id) AS orders")
	if since != nil {
		query = query.Where("orders.paid_at >= ?", *since)
	}
	if err := query.Scan(&row).Error; err != nil {
		return SalesTotals{}, err
	}
	revenue := decimal.Zero
	if row.Revenue.Valid {
		revenue = row.Revenue.Decimal.Round(2)
	}
	return SalesTotals{Revenue: revenue, Units: row.Units, Orders: row.Orders}, nil
}

func (r *repository) SellerLines(ctx context.Context, sellerID uuid.UUID, since time.Time) ([]SoldLine, error) {
	var rows []SoldLine
	err := r.sellerSales(ctx, sellerID).
		Select("orders.paid_at AS paid_at, order_items.quantity AS quantity, order_items.line_total AS line_total").
		Where("orders.paid_at >= ?", since).
		Order("orders.paid_at ASC").
		Scan(&rows).Error
	return rows, err
}

func (r *repository) TopProducts(ctx context.Context, sellerID uuid.UUID, limit int) ([]TopProduct, error) {
	var rows []struct {
		ProductID *uuid.UUID
		Title     string
		Units     int64
		Revenue   decimal.NullDecimal
	}
	if err := r.sellerSales(ctx, sellerID).
		Select("order_items.product_id AS product_id, order_items.title AS title, SUM(order_items.quantity) AS units, SUM(order_items.line_total) AS revenue").
		Group("order_items.product_id, order_items.title").
		Order("units DESC").
		Order("title ASC").
		Limit(limit).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]TopProduct, 0, len(rows))
	for _, row := range rows {
		revenue := decimal.Zero
		if row.Revenue.Valid {
			revenue = row.Revenue.Decimal.Round(2)
		}
		out = append(out, TopProduct{ProductID: row.ProductID, Title: row.Title, Units: row.Units, Revenue: revenue})
	}
	return out, nil
}

func (r *repository) Revenue(ctx context.Context, since *time.Time) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	query := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Select("SUM(total)").
		Where("paid_status = ?", true)
	if since != nil {
		query = query.Where("paid_at >= ?", *since)
	}
	if err := query.Scan(&total).Error; err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal.Round(2), nil
}

func (r *repository) CountPaidOrders(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Order{}).Where("paid_status = ?", true).Count(&count).Error
	return count, err
}

func (r *repository) CountProducts(ctx context.Context) (map[enums.ProductStatus]int64, error) {
	var rows []struct {
		Status enums.ProductStatus
		Count  int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[enums.ProductStatus]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

func (r *repository) CountCategories(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Category{}).Count(&count).Error
	return count, err
}
