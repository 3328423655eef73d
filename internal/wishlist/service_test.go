package wishlist

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	product "github.com/angelmondragon/bazaar-backend/internal/products"
	"github.com/angelmondragon/bazaar-backend/pkg/db/dbtest"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	svc, err := NewService(ServiceParams{
		WishlistRepo: NewRepository(conn),
		ProductRepo:  product.NewRepository(conn),
	})
	require.NoError(t, err)
	return svc, conn
}

func seedProduct(t *testing.T, conn *gorm.DB, title string, status enums.ProductStatus) *models.Product {
	t.Helper()
	owner := uuid.New()
	p := &models.Product{
		OwnerID:     &owner,
		SKU:         "sku" + uuid.NewString()[:6],
		Title:       title,
		Description: title,
		Price:       decimal.RequireFromString("9.99"),
		OldPrice:    decimal.Zero,
		Status:      status,
		InStock:     true,
	}
	require.NoError(t, conn.Create(p).Error)
	return p
}

func TestWishlistAddIsIdempotent(t *testing.T) {
	t.Parallel()
	svc, conn := newTestService(t)
	ctx := context.Background()
	actor := types.Actor{UserID: uuid.New(), Role: enums.RoleBuyer}
	p := seedProduct(t, conn, "Kettle", enums.ProductStatusPublished)

	created, err := svc.AddItem(ctx, actor, p.ID)
	require.NoError(t, err)
	require.True(t, created)
	created, err = svc.AddItem(ctx, actor, p.ID)
	require.NoError(t, err)
	require.False(t, created)

	page, err := svc.GetWishlist(ctx, actor, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, "Kettle", page.Items[0].Product.Title)

	require.NoError(t, svc.RemoveItem(ctx, actor, p.ID))
	page, err = svc.GetWishlist(ctx, actor, pagination.Params{})
	require.NoError(t, err)
	require.Empty(t, page.Items)
}

func TestWishlistRejectsUnpublishedProducts(t *testing.T) {
	t.Parallel()
	svc, conn := newTestService(t)
	ctx := context.Background()
	actor := types.Actor{UserID: uuid.New(), Role: enums.RoleBuyer}

	pending := seedProduct(t, conn, "Pending", enums.ProductStatusInReview)
	_, err := svc.AddItem(ctx, actor, pending.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = svc.AddItem(ctx, actor, uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = svc.AddItem(ctx, types.Actor{}, pending.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestWishlistHidesProductsDisabledLater(t *testing.T) {
	t.Parallel()
	svc, conn := newTestService(t)
	ctx := context.Background()
	actor := types.Actor{UserID: uuid.New(), Role: enums.RoleBuyer}
	kept := seedProduct(t, conn, "Kept", enums.ProductStatusPublished)
	pulled := seedProduct(t, conn, "Pulled", enums.ProductStatusPublished)

	for _, id := range []uuid.UUID{kept.ID, pulled.ID} {
		_, err := svc.AddItem(ctx, actor, id)
		require.NoError(t, err)
	}
	require.NoError(t, conn.Model(&models.Product{}).Where("id = ?", pulled.ID).Update("status", enums.ProductStatusDisabled).Error)

	page, err := svc.GetWishlist(ctx, actor, pagination.Params{Limit: 1})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, kept.ID, page.Items[0].Product.ID)
	require.Empty(t, page.NextCursor)
}

func TestWishlistIDsListsPublishedNewestFirst(t *testing.T) {
	t.Parallel()
	svc, conn := newTestService(t)
	ctx := context.Background()
	actor := types.Actor{UserID: uuid.New(), Role: enums.RoleBuyer}
	older := seedProduct(t, conn, "Older", enums.ProductStatusPublished)
	newer := seedProduct(t, conn, "Newer", enums.ProductStatusPublished)
	pulled := seedProduct(t, conn, "Pulled", enums.ProductStatusPublished)

	repo := NewRepository(conn)
	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []uuid.UUID{older.ID, newer.ID, pulled.ID} {
		require.NoError(t, conn.Create(&models.WishlistItem{
			UserID:    actor.UserID,
			ProductID: id,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}).Error)
	}
	created, err := repo.AddItem(ctx, actor.UserID, newer.ID)
	require.NoError(t, err)
	require.False(t, created)
	require.NoError(t, conn.Model(&models.Product{}).Where("id = ?", pulled.ID).Update("status", enums.ProductStatusDisabled).Error)

	ids, err := svc.GetWishlistIDs(ctx, actor)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{newer.ID, older.ID}, ids.ProductIDs)
	require.False(t, ids.Truncated)

	_, err = svc.GetWishlistIDs(ctx, types.Actor{UserID: uuid.New(), Role: enums.Role("staff")})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}
