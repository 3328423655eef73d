package cart

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
)

// CartRepository defines the persistence surface required by the cart service.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	EnsureActiveCart(ctx context.Context, buyerID uuid.UUID) (*models.Order, error)
	FindActiveCart(ctx context.Context, buyerID uuid.UUID) (*models.Order, error)
	LockCart(ctx context.Context, cartID uuid.UUID) (*models.Order, error)
	FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	FindItemByProduct(ctx context.Context, cartID, productID uuid.UUID) (*models.OrderItem, error)
	FindItem(ctx context.Context, cartID, itemID uuid.UUID) (*models.OrderItem, error)
	ListItems(ctx context.Context, cartID uuid.UUID) ([]models.OrderItem, error)
	CreateItem(ctx context.Context, item *models.OrderItem) error
	UpdateItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int, lineTotal decimal.Decimal) error
	DeleteItem(ctx context.Context, itemID uuid.UUID) error
	SetTotal(ctx context.Context, cartID uuid.UUID, total decimal.Decimal) error
	CountUnits(ctx context.Context, buyerID uuid.UUID) (int64, error)
}
