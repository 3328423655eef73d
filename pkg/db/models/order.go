package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// Order is a buyer's cart while unpaid and an immutable purchase once paid.
// At most one unpaid order exists per buyer.
type Order struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID        uuid.UUID            `gorm:"column:buyer_id;type:uuid;not null;index:orders_buyer_id_idx;uniqueIndex:orders_one_unpaid_per_buyer,where:paid_status = false"`
	PaidStatus     bool                 `gorm:"column:paid_status;not null"`
	PaidAt         *time.Time           `gorm:"column:paid_at"`
	Total          decimal.Decimal      `gorm:"column:total;type:numeric(12,2);not null"`
	PaymentMethod  *enums.PaymentMethod `gorm:"column:payment_method;type:text"`
	ShippingStatus enums.ShippingStatus `gorm:"column:shipping_status;type:text;not null"`
	Items          []OrderItem          `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// OrderItem is a line of an order with price, title and seller snapshots
// taken at add time. ProductID becomes null when the product is deleted.
type OrderItem struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID       `gorm:"column:order_id;type:uuid;not null;uniqueIndex:order_items_order_product_key"`
	ProductID *uuid.UUID      `gorm:"column:product_id;type:uuid;uniqueIndex:order_items_order_product_key"`
	SellerID  *uuid.UUID      `gorm:"column:seller_id;type:uuid;index:order_items_seller_id_idx"`
	Title     string          `gorm:"column:title;not null"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Quantity  int             `gorm:"column:quantity;not null;check:order_items_quantity_positive,quantity >= 1"`
	LineTotal decimal.Decimal `gorm:"column:line_total;type:numeric(12,2);not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}

// Address is the single shipping address of a user, overwritten at checkout.
type Address struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID     uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:addresses_user_id_key"`
	FullName   string    `gorm:"column:full_name;not null"`
	Phone      string    `gorm:"column:phone;not null"`
	Line1      string    `gorm:"column:line1;not null"`
	Line2      *string   `gorm:"column:line2"`
	City       string    `gorm:"column:city;not null"`
	State      string    `gorm:"column:state;not null"`
	PostalCode string    `gorm:"column:postal_code;not null"`
	Country    string    `gorm:"column:country;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (a *Address) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}

// ReconciliationIssue records a seller credit that checkout could not apply.
type ReconciliationIssue struct {
	ID          uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID                  `gorm:"column:order_id;type:uuid;not null;index:reconciliation_issues_order_id_idx"`
	OrderItemID uuid.UUID                  `gorm:"column:order_item_id;type:uuid;not null"`
	BuyerID     uuid.UUID                  `gorm:"column:buyer_id;type:uuid;not null"`
	ProductID   *uuid.UUID                 `gorm:"column:product_id;type:uuid"`
	Amount      decimal.Decimal            `gorm:"column:amount;type:numeric(12,2);not null"`
	Reason      enums.ReconciliationReason `gorm:"column:reason;type:text;not null"`
	ResolvedAt  *time.Time                 `gorm:"column:resolved_at"`
	CreatedAt   time.Time                  `gorm:"column:created_at;autoCreateTime"`
}

func (r *ReconciliationIssue) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
