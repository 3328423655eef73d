package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/address"
	"github.com/angelmondragon/bazaar-backend/internal/cart"
	"github.com/angelmondragon/bazaar-backend/internal/ledger"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service converts the buyer's cart into a paid order.
type Service interface {
	Checkout(ctx context.Context, actor *types.Actor, input Input) (*Receipt, error)
}

// Input is the buyer profile and payment choice submitted at checkout.
type Input struct {
	Address       address.Input
	PaymentMethod string
}

// Receipt summarizes a completed checkout.
type Receipt struct {
	OrderID        uuid.UUID               `json:"order_id"`
	Total          decimal.Decimal         `json:"total"`
	PaidAt         time.Time               `json:"paid_at"`
	PaymentMethod  enums.PaymentMethod     `json:"payment_method"`
	Balance        decimal.Decimal         `json:"balance"`
	Items          []ReceiptItem           `json:"items"`
	Sellers        []payloads.SellerPayout `json:"sellers"`
	SkippedCredits int                     `json:"skipped_credits"`
}

type ReceiptItem struct {
	ProductID *uuid.UUID      `json:"product_id,omitempty"`
	Title     string          `json:"title"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// ServiceParams wires the checkout service.
type ServiceParams struct {
	Repo      *Repository
	Tx        txRunner
	Ledger    ledger.Service
	Addresses address.Service
	Outbox    outbox.Emitter
	Logger    *logger.Logger
	Metrics   *metrics.MarketplaceMetrics
	Now       func() time.Time
}

type service struct {
	repo      *Repository
	tx        txRunner
	ledger    ledger.Service
	addresses address.Service
	outbox    outbox.Emitter
	logg      *logger.Logger
	metrics   *metrics.MarketplaceMetrics
	now       func() time.Time
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("checkout repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Addresses == nil {
		return nil, fmt.Errorf("address service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:      params.Repo,
		tx:        params.Tx,
		ledger:    params.Ledger,
		addresses: params.Addresses,
		outbox:    params.Outbox,
		logg:      params.Logger,
		metrics:   params.Metrics,
		now:       now,
	}, nil
}

// Checkout validates the profile, saves the address, then in one transaction
// debits the buyer, marks the order paid, credits every seller and queues
// the order_paid event. Any failure inside the transaction leaves the cart
// untouched.
func (s *service) Checkout(ctx context.Context, actor *types.Actor, input Input) (receipt *Receipt, err error) {
	started := time.Now()
	defer func() {
		s.metrics.ObserveCheckout(outcomeOf(err), time.Since(started))
	}()

	if actor == nil || actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if !actor.Can(enums.PermissionShop) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "role cannot shop")
	}
	method, err := parsePaymentMethod(input.PaymentMethod)
	if err != nil {
		return nil, err
	}
	if err := input.Address.Validate(); err != nil {
		return nil, err
	}
	buyerID := actor.UserID

	if _, err := s.addresses.Upsert(ctx, buyerID, input.Address); err != nil {
		return nil, err
	}

	ctx = s.logg.WithUserID(ctx, buyerID.String())
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		result, err := s.pay(ctx, tx, *actor, method)
		receipt = result
		return err
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "checkout")
	}

	s.logg.Info(s.logg.WithFields(s.logg.WithOrderID(ctx, receipt.OrderID.String()), map[string]any{
		"total":           receipt.Total.StringFixed(2),
		"sellers":         len(receipt.Sellers),
		"skipped_credits": receipt.SkippedCredits,
	}), "checkout completed")
	return receipt, nil
}

func (s *service) pay(ctx context.Context, tx *gorm.DB, actor types.Actor, method enums.PaymentMethod) (*Receipt, error) {
	buyerID := actor.UserID
	repo := s.repo.WithTx(tx)
	wallet := s.ledger.WithTx(tx)

	order, err := repo.LockUnpaidOrder(ctx, buyerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
	}
	if err != nil {
		return nil, err
	}
	items, err := repo.ListItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
	}

	orderID := order.ID
	total := cart.Totals(items)
	if total.IsPositive() {
		debited, err := wallet.Debit(ctx, ledger.EntryInput{
			UserID:      buyerID,
			Amount:      total,
			Description: fmt.Sprintf("Order %s", orderID),
			OrderID:     &orderID,
		})
		if err != nil {
			return nil, err
		}
		if !debited {
			balance, err := wallet.GetBalance(ctx, buyerID)
			if err != nil {
				return nil, err
			}
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "insufficient funds").
				WithDetails(map[string]string{
					"required":  total.StringFixed(2),
					"available": balance.StringFixed(2),
				})
		}
	}

	paidAt := s.now()
	paid, err := repo.MarkPaid(ctx, orderID, total, method, paidAt)
	if err != nil {
		return nil, err
	}
	if !paid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order was already paid")
	}

	payouts, skipped, err := s.creditSellers(ctx, tx, repo, wallet, order, items)
	if err != nil {
		return nil, err
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Actor:         outbox.ActorFrom(actor),
		Data: payloads.OrderPaidEvent{
			OrderID: orderID,
			BuyerID: buyerID,
			Total:   total,
			PaidAt:  paidAt,
			Sellers: payouts,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, err
	}

	balance, err := wallet.GetBalance(ctx, buyerID)
	if err != nil {
		return nil, err
	}

	receipt := &Receipt{
		OrderID:        orderID,
		Total:          total,
		PaidAt:         paidAt,
		PaymentMethod:  method,
		Balance:        balance,
		Items:          make([]ReceiptItem, 0, len(items)),
		Sellers:        payouts,
		SkippedCredits: skipped,
	}
	for _, item := range items {
		receipt.Items = append(receipt.Items, ReceiptItem{
			ProductID: item.ProductID,
			Title:     item.Title,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			LineTotal: item.LineTotal,
		})
	}
	return receipt, nil
}

// creditSellers groups lines by the product's current owner and credits each
// seller once. Lines whose product or owner is gone are recorded for
// reconciliation instead of failing the checkout.
func (s *service) creditSellers(ctx context.Context, tx *gorm.DB, repo *Repository, wallet ledger.Service, order *models.Order, items []models.OrderItem) ([]payloads.SellerPayout, int, error) {
	productIDs := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if item.ProductID != nil {
			productIDs = append(productIDs, *item.ProductID)
		}
	}
	owners, err := repo.ProductOwners(ctx, productIDs)
	if err != nil {
		return nil, 0, err
	}

	var (
		sellerOrder []uuid.UUID
		bySeller    = map[uuid.UUID]*payloads.SellerPayout{}
		skipped     int
	)
	for _, item := range items {
		reason, sellerID := attribute(item, owners)
		if reason != "" {
			if err := s.recordSkip(ctx, tx, repo, order, item, reason); err != nil {
				return nil, 0, err
			}
			skipped++
			continue
		}
		payout, ok := bySeller[sellerID]
		if !ok {
			payout = &payloads.SellerPayout{SellerID: sellerID, Amount: decimal.Zero}
			bySeller[sellerID] = payout
			sellerOrder = append(sellerOrder, sellerID)
		}
		payout.Amount = payout.Amount.Add(item.LineTotal)
		payout.Items = append(payout.Items, payloads.PaidItem{
			ProductID: *item.ProductID,
			Title:     item.Title,
			Quantity:  item.Quantity,
			LineTotal: item.LineTotal,
		})
	}

	payouts := make([]payloads.SellerPayout, 0, len(sellerOrder))
	for _, sellerID := range sellerOrder {
		payout := bySeller[sellerID]
		if payout.Amount.IsPositive() {
			orderID := order.ID
			if _, err := wallet.Credit(ctx, ledger.EntryInput{
				UserID:      sellerID,
				Amount:      payout.Amount,
				Description: saleDescription(order.BuyerID, payout.Items),
				OrderID:     &orderID,
			}); err != nil {
				return nil, 0, err
			}
		}
		payouts = append(payouts, *payout)
	}
	return payouts, skipped, nil
}

func (s *service) recordSkip(ctx context.Context, tx *gorm.DB, repo *Repository, order *models.Order, item models.OrderItem, reason enums.ReconciliationReason) error {
	if err := repo.CreateReconciliationIssue(ctx, &models.ReconciliationIssue{
		OrderID:     order.ID,
		OrderItemID: item.ID,
		BuyerID:     order.BuyerID,
		ProductID:   item.ProductID,
		Amount:      item.LineTotal,
		Reason:      reason,
	}); err != nil {
		return err
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventSellerCreditSkipped,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data: payloads.SellerCreditSkippedEvent{
			OrderID:   order.ID,
			ProductID: item.ProductID,
			Title:     item.Title,
			Amount:    item.LineTotal,
			Reason:    reason,
		},
	}); err != nil {
		return err
	}
	s.metrics.IncCreditSkip(string(reason))

	fields := map[string]any{
		"order_item_id": item.ID.String(),
		"reason":        string(reason),
		"amount":        item.LineTotal.StringFixed(2),
	}
	if item.ProductID != nil {
		fields["product_id"] = item.ProductID.String()
	}
	s.logg.Warn(s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), fields), "seller credit skipped")
	return nil
}

func attribute(item models.OrderItem, owners map[uuid.UUID]*uuid.UUID) (enums.ReconciliationReason, uuid.UUID) {
	if item.ProductID == nil {
		return enums.ReconciliationProductMissing, uuid.Nil
	}
	owner, ok := owners[*item.ProductID]
	if !ok {
		return enums.ReconciliationProductMissing, uuid.Nil
	}
	if owner == nil || *owner == uuid.Nil {
		return enums.ReconciliationSellerMissing, uuid.Nil
	}
	return "", *owner
}

func saleDescription(buyerID uuid.UUID, items []payloads.PaidItem) string {
	titles := make([]string, 0, len(items))
	for _, item := range items {
		titles = append(titles, fmt.Sprintf("%s x%d", item.Title, item.Quantity))
	}
	return fmt.Sprintf("Sale to buyer %s: %s", buyerID, strings.Join(titles, ", "))
}

func parsePaymentMethod(raw string) (enums.PaymentMethod, error) {
	if strings.TrimSpace(raw) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "payment method is required").
			WithDetails(map[string]string{"payment_method": "is required"})
	}
	method, err := enums.ParsePaymentMethod(raw)
	if err != nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method").
			WithDetails(map[string]string{"payment_method": "must be wallet"})
	}
	return method, nil
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeInsufficientFunds):
		return "insufficient_funds"
	case pkgerrors.IsCode(err, pkgerrors.CodeEmptyCart):
		return "empty_cart"
	case pkgerrors.IsCode(err, pkgerrors.CodeValidation):
		return "invalid"
	case pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized), pkgerrors.IsCode(err, pkgerrors.CodeForbidden):
		return "denied"
	default:
		return "error"
	}
}
