package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// OrderPaidEvent is emitted once checkout has debited the buyer and credited
// the sellers.
type OrderPaidEvent struct {
	OrderID uuid.UUID       `json:"order_id"`
	BuyerID uuid.UUID       `json:"buyer_id"`
	Total   decimal.Decimal `json:"total"`
	PaidAt  time.Time       `json:"paid_at"`
	Sellers []SellerPayout  `json:"sellers"`
}

// SellerPayout is one seller's share of a paid order.
type SellerPayout struct {
	SellerID uuid.UUID       `json:"seller_id"`
	Amount   decimal.Decimal `json:"amount"`
	Items    []PaidItem      `json:"items"`
}

// PaidItem describes a purchased line for the seller notification.
type PaidItem struct {
	ProductID uuid.UUID       `json:"product_id"`
	Title     string          `json:"title"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// OrderShippingUpdatedEvent is emitted when an admin advances shipping.
type OrderShippingUpdatedEvent struct {
	OrderID uuid.UUID            `json:"order_id"`
	BuyerID uuid.UUID            `json:"buyer_id"`
	From    enums.ShippingStatus `json:"from"`
	To      enums.ShippingStatus `json:"to"`
}

// ProductStatusChangedEvent is emitted on every moderation transition.
type ProductStatusChangedEvent struct {
	ProductID uuid.UUID           `json:"product_id"`
	OwnerID   *uuid.UUID          `json:"owner_id,omitempty"`
	Title     string              `json:"title"`
	From      enums.ProductStatus `json:"from"`
	To        enums.ProductStatus `json:"to"`
	Reason    string              `json:"reason,omitempty"`
}

// UserRegisteredEvent is emitted when an account and its wallet are opened.
type UserRegisteredEvent struct {
	UserID         uuid.UUID       `json:"user_id"`
	Email          string          `json:"email"`
	Role           enums.Role      `json:"role"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
}

// SellerCreditSkippedEvent records a purchased line whose seller could not be
// credited during checkout.
type SellerCreditSkippedEvent struct {
	OrderID   uuid.UUID                  `json:"order_id"`
	ProductID *uuid.UUID                 `json:"product_id,omitempty"`
	Title     string                     `json:"title"`
	Amount    decimal.Decimal            `json:"amount"`
	Reason    enums.ReconciliationReason `json:"reason"`
}
