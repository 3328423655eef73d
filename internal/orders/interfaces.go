package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

// Repository defines read models over paid orders plus the shipping update.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListPaidOrders(ctx context.Context, filters OrderFilters, limit int, cursor *pagination.Cursor) ([]models.Order, error)
	AdvanceShipping(ctx context.Context, orderID uuid.UUID, from, to enums.ShippingStatus) (bool, error)

	ListSellerOrders(ctx context.Context, sellerID uuid.UUID, limit int) ([]models.Order, error)
	SellerTotals(ctx context.Context, sellerID uuid.UUID, since *time.Time) (SalesTotals, error)
	SellerLines(ctx context.Context, sellerID uuid.UUID, since time.Time) ([]SoldLine, error)
	TopProducts(ctx context.Context, sellerID uuid.UUID, limit int) ([]TopProduct, error)

	Revenue(ctx context.Context, since *time.Time) (decimal.Decimal, error)
	CountPaidOrders(ctx context.Context) (int64, error)
	CountProducts(ctx context.Context) (map[enums.ProductStatus]int64, error)
	CountCategories(ctx context.Context) (int64, error)
}

// OrderFilters narrows paid order listings. BuyerID scopes a buyer's history.
type OrderFilters struct {
	BuyerID        *uuid.UUID
	ShippingStatus *enums.ShippingStatus
}

// SoldLine is a seller's purchased line with the order's payment time.
type SoldLine struct {
	PaidAt    time.Time
	Quantity  int
	LineTotal decimal.Decimal
}
