package cart

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
)

// CartDTO is the buyer-facing view of the unpaid order.
type CartDTO struct {
	ID        uuid.UUID       `json:"id"`
	Items     []CartItemDTO   `json:"items"`
	Total     decimal.Decimal `json:"total"`
	Units     int             `json:"units"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type CartItemDTO struct {
	ID        uuid.UUID       `json:"id"`
	ProductID *uuid.UUID      `json:"product_id,omitempty"`
	SellerID  *uuid.UUID      `json:"seller_id,omitempty"`
	Title     string          `json:"title"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// ItemUpdateResult carries the totals a client needs after changing one line.
type ItemUpdateResult struct {
	ItemID    uuid.UUID       `json:"item_id"`
	Quantity  int             `json:"quantity"`
	ItemTotal decimal.Decimal `json:"item_total"`
	CartTotal decimal.Decimal `json:"cart_total"`
	Removed   bool            `json:"removed"`
}

func newCartDTO(order *models.Order, items []models.OrderItem) *CartDTO {
	dto := &CartDTO{
		ID:        order.ID,
		Items:     make([]CartItemDTO, 0, len(items)),
		Total:     Totals(items),
		UpdatedAt: order.UpdatedAt,
	}
	for _, item := range items {
		dto.Units += item.Quantity
		dto.Items = append(dto.Items, CartItemDTO{
			ID:        item.ID,
			ProductID: item.ProductID,
			SellerID:  item.SellerID,
			Title:     item.Title,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			LineTotal: item.LineTotal,
		})
	}
	return dto
}

// Totals sums line totals exactly.
func Totals(items []models.OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal)
	}
	return total
}

func lineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}
