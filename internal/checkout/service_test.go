package checkout

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/address"
	"github.com/angelmondragon/bazaar-backend/internal/cart"
	"github.com/angelmondragon/bazaar-backend/internal/ledger"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/dbtest"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

var fixedNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type harness struct {
	conn     *gorm.DB
	ledger   ledger.Service
	cart     cart.Service
	checkout Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "checkout-test", Output: io.Discard})
	tx := db.Wrap(conn)

	wallet, err := ledger.NewService(ledger.ServiceParams{Repo: ledger.NewRepository(conn), Tx: tx, Logger: logg})
	require.NoError(t, err)
	carts, err := cart.NewService(cart.NewRepository(conn), tx, logg)
	require.NoError(t, err)
	addresses, err := address.NewService(address.NewRepository(conn), logg)
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Repo:      NewRepository(conn),
		Tx:        tx,
		Ledger:    wallet,
		Addresses: addresses,
		Outbox:    outbox.NewService(outbox.NewRepository(conn), logg),
		Logger:    logg,
		Now:       func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return &harness{conn: conn, ledger: wallet, cart: carts, checkout: svc}
}

func (h *harness) account(t *testing.T, role enums.Role, opening string) *types.Actor {
	t.Helper()
	actor := &types.Actor{UserID: uuid.New(), Role: role}
	_, err := h.ledger.OpenAccount(context.Background(), actor.UserID, decimal.RequireFromString(opening))
	require.NoError(t, err)
	return actor
}

func (h *harness) product(t *testing.T, owner *types.Actor, title, price string) *models.Product {
	t.Helper()
	p := &models.Product{
		OwnerID:     &owner.UserID,
		SKU:         "sku" + uuid.NewString()[:6],
		Title:       title,
		Description: title,
		Price:       decimal.RequireFromString(price),
		OldPrice:    decimal.Zero,
		Status:      enums.ProductStatusPublished,
		InStock:     true,
	}
	require.NoError(t, h.conn.Create(p).Error)
	return p
}

func (h *harness) balance(t *testing.T, actor *types.Actor) decimal.Decimal {
	t.Helper()
	bal, err := h.ledger.GetBalance(context.Background(), actor.UserID)
	require.NoError(t, err)
	return bal
}

func walletInput() Input {
	return Input{
		PaymentMethod: "wallet",
		Address: address.Input{
			FullName:   "Ada Buyer",
			Phone:      "555-0100",
			Line1:      "1 Main St",
			City:       "Springfield",
			State:      "IL",
			PostalCode: "62701",
			Country:    "US",
		},
	}
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, got.Equal(decimal.RequireFromString(want)), "want %s, got %s", want, got)
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	require.True(t, pkgerrors.IsCode(err, code), "expected %s, got %v", code, err)
}

func TestCheckoutPaysSellerAndFreezesOrder(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	buyer := h.account(t, enums.RoleBuyer, "100.00")
	seller := h.account(t, enums.RoleVendor, "0")
	p := h.product(t, seller, "Lamp", "40.00")

	cartView, err := h.cart.AddItem(ctx, buyer, cart.AddItemInput{ProductID: p.ID, Quantity: 2})
	require.NoError(t, err)
	requireDecimal(t, "80.00", cartView.Total)

	receipt, err := h.checkout.Checkout(ctx, buyer, walletInput())
	require.NoError(t, err)
	require.Equal(t, cartView.ID, receipt.OrderID)
	requireDecimal(t, "80.00", receipt.Total)
	requireDecimal(t, "20.00", receipt.Balance)
	require.Equal(t, enums.PaymentMethodWallet, receipt.PaymentMethod)
	require.Len(t, receipt.Sellers, 1)
	require.Equal(t, seller.UserID, receipt.Sellers[0].SellerID)

	requireDecimal(t, "20.00", h.balance(t, buyer))
	requireDecimal(t, "80.00", h.balance(t, seller))

	var order models.Order
	require.NoError(t, h.conn.First(&order, "id = ?", receipt.OrderID).Error)
	require.True(t, order.PaidStatus)
	require.NotNil(t, order.PaidAt)
	require.Equal(t, enums.ShippingStatusProcessing, order.ShippingStatus)
	requireDecimal(t, "80.00", order.Total)

	fresh, err := h.cart.GetOrCreateActiveCart(ctx, buyer)
	require.NoError(t, err)
	require.NotEqual(t, order.ID, fresh.ID)
	require.Empty(t, fresh.Items)

	var events []models.OutboxEvent
	require.NoError(t, h.conn.Where("event_type = ?", enums.EventOrderPaid).Find(&events).Error)
	require.Len(t, events, 1)
	require.Equal(t, order.ID, events[0].AggregateID)

	var debits int64
	require.NoError(t, h.conn.Model(&models.LedgerTransaction{}).
		Where("user_id = ? AND kind = ? AND order_id = ?", buyer.UserID, enums.TransactionKindDebit, order.ID).
		Count(&debits).Error)
	require.EqualValues(t, 1, debits)
}

func TestCheckoutInsufficientFundsLeavesCartUnchanged(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	buyer := h.account(t, enums.RoleBuyer, "50.00")
	seller := h.account(t, enums.RoleVendor, "0")
	p := h.product(t, seller, "Lamp", "40.00")

	before, err := h.cart.AddItem(ctx, buyer, cart.AddItemInput{ProductID: p.ID, Quantity: 2})
	require.NoError(t, err)

	_, err = h.checkout.Checkout(ctx, buyer, walletInput())
	requireCode(t, err, pkgerrors.CodeInsufficientFunds)

	requireDecimal(t, "50.00", h.balance(t, buyer))
	requireDecimal(t, "0", h.balance(t, seller))

	after, err := h.cart.GetOrCreateActiveCart(ctx, buyer)
	require.NoError(t, err)
	require.Equal(t, before.ID, after.ID)
	require.Len(t, after.Items, 1)
	require.Equal(t, 2, after.Items[0].Quantity)
	requireDecimal(t, "80.00", after.Total)

	var order models.Order
	require.NoError(t, h.conn.First(&order, "id = ?", before.ID).Error)
	require.False(t, order.PaidStatus)

	var events int64
	require.NoError(t, h.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventOrderPaid).Count(&events).Error)
	require.Zero(t, events)

	var saved models.Address
	require.NoError(t, h.conn.First(&saved, "user_id = ?", buyer.UserID).Error)
	require.Equal(t, "Springfield", saved.City)
}

func TestCheckoutEmptyCart(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	buyer := h.account(t, enums.RoleBuyer, "100.00")

	_, err := h.checkout.Checkout(ctx, buyer, walletInput())
	requireCode(t, err, pkgerrors.CodeEmptyCart)

	var orders int64
	require.NoError(t, h.conn.Model(&models.Order{}).Where("buyer_id = ?", buyer.UserID).Count(&orders).Error)
	require.Zero(t, orders)

	_, err = h.cart.GetOrCreateActiveCart(ctx, buyer)
	require.NoError(t, err)
	_, err = h.checkout.Checkout(ctx, buyer, walletInput())
	requireCode(t, err, pkgerrors.CodeEmptyCart)

	var txns int64
	require.NoError(t, h.conn.Model(&models.LedgerTransaction{}).Where("user_id = ? AND kind = ?", buyer.UserID, enums.TransactionKindDebit).Count(&txns).Error)
	require.Zero(t, txns)
	requireDecimal(t, "100.00", h.balance(t, buyer))
}

func TestCheckoutValidatesProfile(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	buyer := h.account(t, enums.RoleBuyer, "100.00")

	in := walletInput()
	in.PaymentMethod = "card"
	_, err := h.checkout.Checkout(ctx, buyer, in)
	requireCode(t, err, pkgerrors.CodeValidation)

	in = walletInput()
	in.PaymentMethod = ""
	_, err = h.checkout.Checkout(ctx, buyer, in)
	requireCode(t, err, pkgerrors.CodeValidation)

	in = walletInput()
	in.Address.Line1 = ""
	_, err = h.checkout.Checkout(ctx, buyer, in)
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = h.checkout.Checkout(ctx, nil, walletInput())
	requireCode(t, err, pkgerrors.CodeUnauthorized)

	var saved int64
	require.NoError(t, h.conn.Model(&models.Address{}).Where("user_id = ?", buyer.UserID).Count(&saved).Error)
	require.Zero(t, saved)
}

func TestCheckoutSplitsCreditsPerSeller(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	buyer := h.account(t, enums.RoleBuyer, "100.00")
	alice := h.account(t, enums.RoleVendor, "0")
	bob := h.account(t, enums.RoleVendor, "5.00")

	for _, p := range []*models.Product{
		h.product(t, alice, "Mug", "12.50"),
		h.product(t, bob, "Pen", "3.00"),
		h.product(t, alice, "Plate", "7.25"),
	} {
		_, err := h.cart.AddItem(ctx, buyer, cart.AddItemInput{ProductID: p.ID})
		require.NoError(t, err)
	}

	receipt, err := h.checkout.Checkout(ctx, buyer, walletInput())
	require.NoError(t, err)
	requireDecimal(t, "22.75", receipt.Total)
	require.Len(t, receipt.Sellers, 2)
	require.Zero(t, receipt.SkippedCredits)

	requireDecimal(t, "77.25", h.balance(t, buyer))
	requireDecimal(t, "19.75", h.balance(t, alice))
	requireDecimal(t, "8.00", h.balance(t, bob))

	var credits int64
	require.NoError(t, h.conn.Model(&models.LedgerTransaction{}).
		Where("user_id = ? AND kind = ? AND order_id = ?", alice.UserID, enums.TransactionKindCredit, receipt.OrderID).
		Count(&credits).Error)
	require.EqualValues(t, 1, credits)
}

func TestCheckoutRecordsDeletedProductForReconciliation(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	buyer := h.account(t, enums.RoleBuyer, "100.00")
	seller := h.account(t, enums.RoleVendor, "0")
	kept := h.product(t, seller, "Chair", "30.00")
	gone := h.product(t, seller, "Table", "45.00")

	_, err := h.cart.AddItem(ctx, buyer, cart.AddItemInput{ProductID: kept.ID})
	require.NoError(t, err)
	_, err = h.cart.AddItem(ctx, buyer, cart.AddItemInput{ProductID: gone.ID})
	require.NoError(t, err)

	require.NoError(t, h.conn.Model(&models.OrderItem{}).Where("product_id = ?", gone.ID).Update("product_id", nil).Error)
	require.NoError(t, h.conn.Delete(&models.Product{}, "id = ?", gone.ID).Error)

	receipt, err := h.checkout.Checkout(ctx, buyer, walletInput())
	require.NoError(t, err)
	requireDecimal(t, "75.00", receipt.Total)
	require.Equal(t, 1, receipt.SkippedCredits)

	requireDecimal(t, "25.00", h.balance(t, buyer))
	requireDecimal(t, "30.00", h.balance(t, seller))

	var issues []models.ReconciliationIssue
	require.NoError(t, h.conn.Where("order_id = ?", receipt.OrderID).Find(&issues).Error)
	require.Len(t, issues, 1)
	require.Equal(t, enums.ReconciliationProductMissing, issues[0].Reason)
	requireDecimal(t, "45.00", issues[0].Amount)

	var skipped int64
	require.NoError(t, h.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventSellerCreditSkipped).Count(&skipped).Error)
	require.EqualValues(t, 1, skipped)
}

func TestCheckoutRecordsOwnerlessProduct(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	buyer := h.account(t, enums.RoleBuyer, "100.00")
	seller := h.account(t, enums.RoleVendor, "0")
	p := h.product(t, seller, "Rug", "10.00")

	_, err := h.cart.AddItem(ctx, buyer, cart.AddItemInput{ProductID: p.ID})
	require.NoError(t, err)
	require.NoError(t, h.conn.Model(&models.Product{}).Where("id = ?", p.ID).Update("owner_id", nil).Error)

	receipt, err := h.checkout.Checkout(ctx, buyer, walletInput())
	require.NoError(t, err)
	require.Empty(t, receipt.Sellers)
	require.Equal(t, 1, receipt.SkippedCredits)
	requireDecimal(t, "90.00", h.balance(t, buyer))

	var issue models.ReconciliationIssue
	require.NoError(t, h.conn.First(&issue, "order_id = ?", receipt.OrderID).Error)
	require.Equal(t, enums.ReconciliationSellerMissing, issue.Reason)
}
