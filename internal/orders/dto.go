package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bazaar-backend/internal/ledger"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

type OrderItemDTO struct {
	ID        uuid.UUID       `json:"id"`
	ProductID *uuid.UUID      `json:"product_id,omitempty"`
	SellerID  *uuid.UUID      `json:"seller_id,omitempty"`
	Title     string          `json:"title"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type OrderDTO struct {
	ID             uuid.UUID            `json:"id"`
	BuyerID        uuid.UUID            `json:"buyer_id"`
	PaidStatus     bool                 `json:"paid_status"`
	PaidAt         *time.Time           `json:"paid_at,omitempty"`
	Total          decimal.Decimal      `json:"total"`
	PaymentMethod  *enums.PaymentMethod `json:"payment_method,omitempty"`
	ShippingStatus enums.ShippingStatus `json:"shipping_status"`
	Items          []OrderItemDTO       `json:"items"`
	CreatedAt      time.Time            `json:"created_at"`
}

type OrderList struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

// VendorOrderDTO is a paid order reduced to the lines one vendor sold.
type VendorOrderDTO struct {
	OrderID        uuid.UUID            `json:"order_id"`
	PaidAt         *time.Time           `json:"paid_at,omitempty"`
	ShippingStatus enums.ShippingStatus `json:"shipping_status"`
	Subtotal       decimal.Decimal      `json:"subtotal"`
	Items          []OrderItemDTO       `json:"items"`
}

type SalesTotals struct {
	Revenue decimal.Decimal `json:"revenue"`
	Units   int64           `json:"units"`
	Orders  int64           `json:"orders"`
}

type DailySales struct {
	Day     string          `json:"day"`
	Revenue decimal.Decimal `json:"revenue"`
	Units   int64           `json:"units"`
}

type TopProduct struct {
	ProductID *uuid.UUID      `json:"product_id,omitempty"`
	Title     string          `json:"title"`
	Units     int64           `json:"units"`
	Revenue   decimal.Decimal `json:"revenue"`
}

// SalesSummary backs the vendor sales page.
type SalesSummary struct {
	Last30Days  SalesTotals  `json:"last_30_days"`
	Lifetime    SalesTotals  `json:"lifetime"`
	Daily       []DailySales `json:"daily"`
	TopProducts []TopProduct `json:"top_products"`
}

// Dashboard backs the admin landing page.
type Dashboard struct {
	Revenue        decimal.Decimal               `json:"revenue"`
	MonthlyRevenue decimal.Decimal               `json:"monthly_revenue"`
	PaidOrders     int64                         `json:"paid_orders"`
	Products       map[enums.ProductStatus]int64 `json:"products"`
	Categories     int64                         `json:"categories"`
	Users          map[enums.Role]int64          `json:"users"`
	Wallets        *ledger.Overview              `json:"wallets"`
	LatestOrders   []OrderDTO                    `json:"latest_orders"`
}

func newOrderDTO(order models.Order) OrderDTO {
	dto := OrderDTO{
		ID:             order.ID,
		BuyerID:        order.BuyerID,
		PaidStatus:     order.PaidStatus,
		PaidAt:         order.PaidAt,
		Total:          order.Total,
		PaymentMethod:  order.PaymentMethod,
		ShippingStatus: order.ShippingStatus,
		Items:          make([]OrderItemDTO, 0, len(order.Items)),
		CreatedAt:      order.CreatedAt,
	}
	for _, item := range order.Items {
		dto.Items = append(dto.Items, newItemDTO(item))
	}
	return dto
}

func newItemDTO(item models.OrderItem) OrderItemDTO {
	return OrderItemDTO{
		ID:        item.ID,
		ProductID: item.ProductID,
		SellerID:  item.SellerID,
		Title:     item.Title,
		UnitPrice: item.UnitPrice,
		Quantity:  item.Quantity,
		LineTotal: item.LineTotal,
	}
}
