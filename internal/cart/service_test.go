package cart

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	product "github.com/angelmondragon/bazaar-backend/internal/products"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/dbtest"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

func newTestService(t *testing.T) (Service, *gorm.DB, *logger.Logger) {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "cart-test", Output: io.Discard})
	svc, err := NewService(NewRepository(conn), db.Wrap(conn), logg)
	require.NoError(t, err)
	return svc, conn, logg
}

func buyer() *types.Actor {
	return &types.Actor{UserID: uuid.New(), Role: enums.RoleBuyer}
}

func seedProduct(t *testing.T, conn *gorm.DB, price string, status enums.ProductStatus, inStock bool) *models.Product {
	t.Helper()
	owner := uuid.New()
	p := &models.Product{
		OwnerID:     &owner,
		SKU:         "sku" + uuid.NewString()[:6],
		Title:       "Item " + price,
		Description: "seeded",
		Price:       decimal.RequireFromString(price),
		OldPrice:    decimal.Zero,
		Status:      status,
		InStock:     inStock,
	}
	require.NoError(t, conn.Create(p).Error)
	return p
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	require.True(t, pkgerrors.IsCode(err, code), "expected %s, got %v", code, err)
}

func TestGetOrCreateActiveCartIsSingular(t *testing.T) {
	t.Parallel()
	svc, conn, _ := newTestService(t)
	ctx := context.Background()
	actor := buyer()

	first, err := svc.GetOrCreateActiveCart(ctx, actor)
	require.NoError(t, err)
	second, err := svc.GetOrCreateActiveCart(ctx, actor)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.True(t, first.Total.IsZero())

	var count int64
	require.NoError(t, conn.Model(&models.Order{}).Where("buyer_id = ? AND paid_status = ?", actor.UserID, false).Count(&count).Error)
	require.EqualValues(t, 1, count)

	dup := &models.Order{BuyerID: actor.UserID, Total: decimal.Zero, ShippingStatus: enums.ShippingStatusProcessing}
	require.Error(t, conn.Create(dup).Error)
}

func TestCartRequiresAuthentication(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.GetOrCreateActiveCart(ctx, nil)
	requireCode(t, err, pkgerrors.CodeUnauthorized)

	_, err = svc.AddItem(ctx, &types.Actor{}, AddItemInput{ProductID: uuid.New()})
	requireCode(t, err, pkgerrors.CodeUnauthorized)
}

func TestAddItemMergesRepeatAdds(t *testing.T) {
	t.Parallel()
	svc, conn, _ := newTestService(t)
	ctx := context.Background()
	actor := buyer()
	p := seedProduct(t, conn, "40.00", enums.ProductStatusPublished, true)

	_, err := svc.AddItem(ctx, actor, AddItemInput{ProductID: p.ID})
	require.NoError(t, err)
	cart, err := svc.AddItem(ctx, actor, AddItemInput{ProductID: p.ID, Quantity: 1})
	require.NoError(t, err)

	require.Len(t, cart.Items, 1)
	require.Equal(t, 2, cart.Items[0].Quantity)
	require.True(t, cart.Items[0].LineTotal.Equal(decimal.RequireFromString("80.00")))
	require.True(t, cart.Total.Equal(decimal.RequireFromString("80.00")))
	require.Equal(t, p.OwnerID, cart.Items[0].SellerID)

	var order models.Order
	require.NoError(t, conn.First(&order, "id = ?", cart.ID).Error)
	require.True(t, order.Total.Equal(decimal.RequireFromString("80.00")))

	units, err := svc.Count(ctx, actor)
	require.NoError(t, err)
	require.EqualValues(t, 2, units)
}

func TestAddItemKeepsPriceSnapshot(t *testing.T) {
	t.Parallel()
	svc, conn, _ := newTestService(t)
	ctx := context.Background()
	actor := buyer()
	p := seedProduct(t, conn, "10.00", enums.ProductStatusPublished, true)

	_, err := svc.AddItem(ctx, actor, AddItemInput{ProductID: p.ID})
	require.NoError(t, err)
	require.NoError(t, conn.Model(&models.Product{}).Where("id = ?", p.ID).Update("price", decimal.RequireFromString("99.00")).Error)

	cart, err := svc.AddItem(ctx, actor, AddItemInput{ProductID: p.ID, Quantity: 2})
	require.NoError(t, err)
	require.True(t, cart.Items[0].UnitPrice.Equal(decimal.RequireFromString("10.00")))
	require.True(t, cart.Total.Equal(decimal.RequireFromString("30.00")))
}

func TestAddItemRejectsUnavailableProducts(t *testing.T) {
	t.Parallel()
	svc, conn, _ := newTestService(t)
	ctx := context.Background()
	actor := buyer()

	outOfStock := seedProduct(t, conn, "5.00", enums.ProductStatusPublished, false)
	_, err := svc.AddItem(ctx, actor, AddItemInput{ProductID: outOfStock.ID})
	requireCode(t, err, pkgerrors.CodeProductUnavailable)

	disabled := seedProduct(t, conn, "5.00", enums.ProductStatusDisabled, true)
	_, err = svc.AddItem(ctx, actor, AddItemInput{ProductID: disabled.ID})
	requireCode(t, err, pkgerrors.CodeProductUnavailable)

	_, err = svc.AddItem(ctx, actor, AddItemInput{ProductID: uuid.New()})
	requireCode(t, err, pkgerrors.CodeNotFound)

	_, err = svc.AddItem(ctx, actor, AddItemInput{ProductID: outOfStock.ID, Quantity: -2})
	requireCode(t, err, pkgerrors.CodeValidation)

	cart, err := svc.GetOrCreateActiveCart(ctx, actor)
	require.NoError(t, err)
	require.Empty(t, cart.Items)
}

func TestAddItemAfterApproval(t *testing.T) {
	t.Parallel()
	svc, conn, logg := newTestService(t)
	ctx := context.Background()
	actor := buyer()

	catalog, err := product.NewService(product.ServiceParams{
		Repo:   product.NewRepository(conn),
		Tx:     db.Wrap(conn),
		Outbox: outbox.NewService(outbox.NewRepository(conn), logg),
		Logger: logg,
	})
	require.NoError(t, err)

	vendor := types.Actor{UserID: uuid.New(), Role: enums.RoleVendor}
	require.NoError(t, conn.Create(&models.User{ID: vendor.UserID, Email: "teapots@example.com", Username: "teapots", Role: enums.RoleVendor, IsActive: true}).Error)
	listing, err := catalog.CreateProduct(ctx, vendor, product.CreateProductInput{
		Title:       "Teapot",
		Description: "cast iron",
		Price:       decimal.RequireFromString("12.50"),
		InStock:     true,
	})
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, actor, AddItemInput{ProductID: listing.ID})
	requireCode(t, err, pkgerrors.CodeProductUnavailable)

	admin := types.Actor{UserID: uuid.New(), Role: enums.RoleAdmin}
	_, err = catalog.Approve(ctx, admin, listing.ID)
	require.NoError(t, err)

	cart, err := svc.AddItem(ctx, actor, AddItemInput{ProductID: listing.ID})
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	require.True(t, cart.Total.Equal(decimal.RequireFromString("12.50")))
}

func TestUpdateItemActions(t *testing.T) {
	t.Parallel()
	svc, conn, _ := newTestService(t)
	ctx := context.Background()
	actor := buyer()
	a := seedProduct(t, conn, "3.25", enums.ProductStatusPublished, true)
	b := seedProduct(t, conn, "10.00", enums.ProductStatusPublished, true)

	_, err := svc.AddItem(ctx, actor, AddItemInput{ProductID: a.ID})
	require.NoError(t, err)
	cart, err := svc.AddItem(ctx, actor, AddItemInput{ProductID: b.ID})
	require.NoError(t, err)
	require.Len(t, cart.Items, 2)
	itemA := cart.Items[0].ID
	itemB := cart.Items[1].ID

	res, err := svc.UpdateItem(ctx, actor, itemA, enums.CartItemActionIncrease)
	require.NoError(t, err)
	require.Equal(t, 2, res.Quantity)
	require.True(t, res.ItemTotal.Equal(decimal.RequireFromString("6.50")))
	require.True(t, res.CartTotal.Equal(decimal.RequireFromString("16.50")))

	res, err = svc.UpdateItem(ctx, actor, itemB, enums.CartItemActionRemove)
	require.NoError(t, err)
	require.True(t, res.Removed)
	require.True(t, res.CartTotal.Equal(decimal.RequireFromString("6.50")))

	_, err = svc.UpdateItem(ctx, actor, itemB, enums.CartItemActionIncrease)
	requireCode(t, err, pkgerrors.CodeNotFound)

	_, err = svc.UpdateItem(ctx, actor, itemA, enums.CartItemAction("double"))
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestDecreaseLastUnitDeletesLine(t *testing.T) {
	t.Parallel()
	svc, conn, _ := newTestService(t)
	ctx := context.Background()
	actor := buyer()
	p := seedProduct(t, conn, "7.00", enums.ProductStatusPublished, true)

	cart, err := svc.AddItem(ctx, actor, AddItemInput{ProductID: p.ID})
	require.NoError(t, err)

	res, err := svc.UpdateItem(ctx, actor, cart.Items[0].ID, enums.CartItemActionDecrease)
	require.NoError(t, err)
	require.True(t, res.Removed)
	require.True(t, res.CartTotal.IsZero())

	var lines int64
	require.NoError(t, conn.Model(&models.OrderItem{}).Where("order_id = ?", cart.ID).Count(&lines).Error)
	require.Zero(t, lines)
}

func TestUpdateItemIgnoresOtherBuyersLines(t *testing.T) {
	t.Parallel()
	svc, conn, _ := newTestService(t)
	ctx := context.Background()
	owner := buyer()
	stranger := buyer()
	p := seedProduct(t, conn, "7.00", enums.ProductStatusPublished, true)

	cart, err := svc.AddItem(ctx, owner, AddItemInput{ProductID: p.ID})
	require.NoError(t, err)

	_, err = svc.UpdateItem(ctx, stranger, cart.Items[0].ID, enums.CartItemActionRemove)
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestTotalsIsExact(t *testing.T) {
	items := []models.OrderItem{
		{LineTotal: decimal.RequireFromString("0.10")},
		{LineTotal: decimal.RequireFromString("0.20")},
	}
	require.True(t, Totals(items).Equal(decimal.RequireFromString("0.30")))
}

// checkoutRaceRepo pays the cart just before LockCart runs, the way a
// concurrent checkout would.
type checkoutRaceRepo struct {
	CartRepository
	tx       *gorm.DB
	payLocks *int
}

func (r *checkoutRaceRepo) WithTx(tx *gorm.DB) CartRepository {
	return &checkoutRaceRepo{CartRepository: r.CartRepository.WithTx(tx), tx: tx, payLocks: r.payLocks}
}

func (r *checkoutRaceRepo) LockCart(ctx context.Context, cartID uuid.UUID) (*models.Order, error) {
	if *r.payLocks > 0 {
		*r.payLocks--
		if err := r.tx.Model(&models.Order{}).Where("id = ?", cartID).Update("paid_status", true).Error; err != nil {
			return nil, err
		}
	}
	return r.CartRepository.LockCart(ctx, cartID)
}

func newCheckoutRaceService(t *testing.T, payLocks int) (Service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "cart-test", Output: io.Discard})
	svc, err := NewService(&checkoutRaceRepo{CartRepository: NewRepository(conn), payLocks: &payLocks}, db.Wrap(conn), logg)
	require.NoError(t, err)
	return svc, conn
}

func TestAddItemMovesToFreshCartWhenPaidMidRequest(t *testing.T) {
	t.Parallel()
	svc, conn := newCheckoutRaceService(t, 1)
	ctx := context.Background()
	actor := buyer()
	p := seedProduct(t, conn, "4.00", enums.ProductStatusPublished, true)

	stale := &models.Order{BuyerID: actor.UserID, Total: decimal.Zero, ShippingStatus: enums.ShippingStatusProcessing}
	require.NoError(t, conn.Create(stale).Error)

	cart, err := svc.AddItem(ctx, actor, AddItemInput{ProductID: p.ID, Quantity: 2})
	require.NoError(t, err)
	require.NotEqual(t, stale.ID, cart.ID)
	require.Len(t, cart.Items, 1)
	require.Equal(t, 2, cart.Items[0].Quantity)

	var paid models.Order
	require.NoError(t, conn.First(&paid, "id = ?", stale.ID).Error)
	require.True(t, paid.PaidStatus)

	var staleItems int64
	require.NoError(t, conn.Model(&models.OrderItem{}).Where("order_id = ?", stale.ID).Count(&staleItems).Error)
	require.Zero(t, staleItems)
}

func TestAddItemConflictsWhenCartKeepsChanging(t *testing.T) {
	t.Parallel()
	svc, conn := newCheckoutRaceService(t, cartLockAttempts)
	p := seedProduct(t, conn, "4.00", enums.ProductStatusPublished, true)

	_, err := svc.AddItem(context.Background(), buyer(), AddItemInput{ProductID: p.ID, Quantity: 1})
	requireCode(t, err, pkgerrors.CodeStateConflict)
}

func TestAddItemQuantityBounds(t *testing.T) {
	t.Parallel()
	svc, conn, _ := newTestService(t)
	ctx := context.Background()
	actor := buyer()
	p := seedProduct(t, conn, "1.00", enums.ProductStatusPublished, true)

	cart, err := svc.AddItem(ctx, actor, AddItemInput{ProductID: p.ID, Quantity: 150})
	require.NoError(t, err)
	require.Equal(t, 150, cart.Items[0].Quantity)

	_, err = svc.AddItem(ctx, actor, AddItemInput{ProductID: p.ID, Quantity: maxLineQuantity + 1})
	requireCode(t, err, pkgerrors.CodeValidation)
	_, err = svc.AddItem(ctx, actor, AddItemInput{ProductID: p.ID, Quantity: -1})
	requireCode(t, err, pkgerrors.CodeValidation)
	_, err = svc.AddItem(ctx, actor, AddItemInput{ProductID: p.ID, Quantity: maxLineQuantity - 150 + 1})
	requireCode(t, err, pkgerrors.CodeValidation)

	cart, err = svc.AddItem(ctx, actor, AddItemInput{ProductID: p.ID})
	require.NoError(t, err)
	require.Equal(t, 151, cart.Items[0].Quantity)
}
