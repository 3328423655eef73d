package product

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/dbtest"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

var (
	vendorActor = types.Actor{UserID: uuid.New(), Role: enums.RoleVendor}
	otherVendor = types.Actor{UserID: uuid.New(), Role: enums.RoleVendor}
	adminActor  = types.Actor{UserID: uuid.New(), Role: enums.RoleAdmin}
	buyerActor  = types.Actor{UserID: uuid.New(), Role: enums.RoleBuyer}
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "catalog-test", Output: io.Discard})
	svc, err := NewService(ServiceParams{
		Repo:   NewRepository(conn),
		Tx:     db.Wrap(conn),
		Outbox: outbox.NewService(outbox.NewRepository(conn), logg),
		Logger: logg,
	})
	require.NoError(t, err)
	for name, actor := range map[string]types.Actor{"vendor": vendorActor, "other": otherVendor, "admin": adminActor, "buyer": buyerActor} {
		require.NoError(t, conn.Create(&models.User{
			ID:       actor.UserID,
			Email:    name + "@example.com",
			Username: name,
			Role:     actor.Role,
			IsActive: true,
		}).Error)
	}
	return svc, conn
}

func createListing(t *testing.T, svc Service, title string, tags ...string) *ProductDTO {
	t.Helper()
	dto, err := svc.CreateProduct(context.Background(), vendorActor, CreateProductInput{
		Title:       title,
		Description: title + " description",
		Price:       decimal.RequireFromString("25.00"),
		Tags:        tags,
		InStock:     true,
	})
	require.NoError(t, err)
	return dto
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	require.True(t, pkgerrors.IsCode(err, code), "expected %s, got %v", code, err)
}

func TestCreateProductStartsInReview(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)

	dto := createListing(t, svc, "Desk Lamp", "Lighting", "lighting", " Home Office ")
	require.Equal(t, enums.ProductStatusInReview, dto.Status)
	require.True(t, strings.HasPrefix(dto.SKU, "sku"))
	require.Equal(t, vendorActor.UserID, *dto.OwnerID)
	require.False(t, dto.Purchasable)
	require.Len(t, dto.Tags, 2)
	require.Equal(t, "home-office", dto.Tags[0].Slug)
	require.Equal(t, "lighting", dto.Tags[1].Slug)
}

func TestCreateProductValidation(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateProduct(ctx, buyerActor, CreateProductInput{Title: "x", Price: decimal.Zero})
	requireCode(t, err, pkgerrors.CodeForbidden)

	_, err = svc.CreateProduct(ctx, vendorActor, CreateProductInput{Title: "x", Price: decimal.RequireFromString("-1")})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = svc.CreateProduct(ctx, vendorActor, CreateProductInput{Title: "x", Price: decimal.Zero, Featured: true})
	requireCode(t, err, pkgerrors.CodeForbidden)

	missing := uuid.New()
	_, err = svc.CreateProduct(ctx, vendorActor, CreateProductInput{Title: "x", Price: decimal.Zero, CategoryID: &missing})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestModerationTransitions(t *testing.T) {
	t.Parallel()
	svc, conn := newTestService(t)
	ctx := context.Background()
	dto := createListing(t, svc, "Kettle")

	_, err := svc.Approve(ctx, vendorActor, dto.ID)
	requireCode(t, err, pkgerrors.CodeForbidden)

	approved, err := svc.Approve(ctx, adminActor, dto.ID)
	require.NoError(t, err)
	require.Equal(t, enums.ProductStatusPublished, approved.Status)
	require.True(t, approved.Purchasable)

	_, err = svc.Approve(ctx, adminActor, dto.ID)
	requireCode(t, err, pkgerrors.CodeStateConflict)
	_, err = svc.Deny(ctx, adminActor, dto.ID, "late")
	requireCode(t, err, pkgerrors.CodeStateConflict)

	disabled, err := svc.Disable(ctx, adminActor, dto.ID, "recall")
	require.NoError(t, err)
	require.Equal(t, enums.ProductStatusDisabled, disabled.Status)

	_, err = svc.Disable(ctx, adminActor, dto.ID, "again")
	requireCode(t, err, pkgerrors.CodeStateConflict)

	var events []models.OutboxEvent
	require.NoError(t, conn.Where("aggregate_id = ?", dto.ID).Order("created_at ASC").Find(&events).Error)
	require.Len(t, events, 2)
	for _, evt := range events {
		require.Equal(t, enums.EventProductStatusChanged, evt.EventType)
	}
}

func TestDenyThenOwnerDelete(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()
	dto := createListing(t, svc, "Chair")

	err := svc.DeleteProduct(ctx, vendorActor, dto.ID)
	requireCode(t, err, pkgerrors.CodeStateConflict)

	denied, err := svc.Deny(ctx, adminActor, dto.ID, "blurry photos")
	require.NoError(t, err)
	require.Equal(t, enums.ProductStatusRejected, denied.Status)

	_, err = svc.Approve(ctx, adminActor, dto.ID)
	requireCode(t, err, pkgerrors.CodeStateConflict)

	requireCode(t, svc.DeleteProduct(ctx, otherVendor, dto.ID), pkgerrors.CodeForbidden)
	require.NoError(t, svc.DeleteProduct(ctx, vendorActor, dto.ID))

	_, err = svc.GetProduct(ctx, &adminActor, dto.ID)
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestAdminDeleteKeepsOrderSnapshots(t *testing.T) {
	t.Parallel()
	svc, conn := newTestService(t)
	ctx := context.Background()
	dto := createListing(t, svc, "Vase")
	_, err := svc.Approve(ctx, adminActor, dto.ID)
	require.NoError(t, err)

	cart := &models.Order{BuyerID: buyerActor.UserID, Total: decimal.Zero, ShippingStatus: enums.ShippingStatusProcessing}
	require.NoError(t, conn.Create(cart).Error)
	productID := dto.ID
	item := &models.OrderItem{
		OrderID:   cart.ID,
		ProductID: &productID,
		SellerID:  dto.OwnerID,
		Title:     dto.Title,
		UnitPrice: dto.Price,
		Quantity:  1,
		LineTotal: dto.Price,
	}
	require.NoError(t, conn.Create(item).Error)

	require.NoError(t, svc.DeleteProduct(ctx, adminActor, dto.ID))

	var reloaded models.OrderItem
	require.NoError(t, conn.First(&reloaded, "id = ?", item.ID).Error)
	require.Nil(t, reloaded.ProductID)
	require.Equal(t, "Vase", reloaded.Title)
}

func TestGetProductVisibility(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()
	dto := createListing(t, svc, "Rug")

	_, err := svc.GetProduct(ctx, &buyerActor, dto.ID)
	requireCode(t, err, pkgerrors.CodeNotFound)
	_, err = svc.GetProduct(ctx, nil, dto.ID)
	requireCode(t, err, pkgerrors.CodeNotFound)

	_, err = svc.GetProduct(ctx, &vendorActor, dto.ID)
	require.NoError(t, err)
	_, err = svc.GetProduct(ctx, &adminActor, dto.ID)
	require.NoError(t, err)

	_, err = svc.Approve(ctx, adminActor, dto.ID)
	require.NoError(t, err)
	_, err = svc.GetProduct(ctx, nil, dto.ID)
	require.NoError(t, err)
}

func TestUpdateProduct(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()
	dto := createListing(t, svc, "Mug", "kitchen")

	title := "Big Mug"
	price := decimal.RequireFromString("9.99")
	tags := []string{"drinkware"}
	updated, err := svc.UpdateProduct(ctx, vendorActor, dto.ID, UpdateProductInput{Title: &title, Price: &price, Tags: &tags})
	require.NoError(t, err)
	require.Equal(t, "Big Mug", updated.Title)
	require.True(t, updated.Price.Equal(price))
	require.Equal(t, enums.ProductStatusInReview, updated.Status)
	require.Len(t, updated.Tags, 1)
	require.Equal(t, "drinkware", updated.Tags[0].Slug)

	_, err = svc.UpdateProduct(ctx, otherVendor, dto.ID, UpdateProductInput{Title: &title})
	requireCode(t, err, pkgerrors.CodeForbidden)

	featured := true
	_, err = svc.UpdateProduct(ctx, vendorActor, dto.ID, UpdateProductInput{Featured: &featured})
	requireCode(t, err, pkgerrors.CodeForbidden)

	updated, err = svc.UpdateProduct(ctx, adminActor, dto.ID, UpdateProductInput{Featured: &featured})
	require.NoError(t, err)
	require.True(t, updated.Featured)
}

func TestListProductsRespectsVisibility(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	lamp := createListing(t, svc, "Brass Lamp", "lighting")
	createListing(t, svc, "Oak Table", "furniture")
	shade := createListing(t, svc, "Lamp Shade", "lighting")
	for _, id := range []uuid.UUID{lamp.ID, shade.ID} {
		_, err := svc.Approve(ctx, adminActor, id)
		require.NoError(t, err)
	}

	public, err := svc.ListProducts(ctx, ListProductsInput{Actor: &buyerActor})
	require.NoError(t, err)
	require.Len(t, public.Products, 2)
	require.Equal(t, shade.ID, public.Products[0].ID)

	inReview := enums.ProductStatusInReview
	_, err = svc.ListProducts(ctx, ListProductsInput{Actor: &buyerActor, Filters: ProductListFilters{Status: &inReview}})
	requireCode(t, err, pkgerrors.CodeForbidden)

	queue, err := svc.ListProducts(ctx, ListProductsInput{Actor: &adminActor, Filters: ProductListFilters{Status: &inReview}})
	require.NoError(t, err)
	require.Len(t, queue.Products, 1)
	require.Equal(t, "Oak Table", queue.Products[0].Title)

	own, err := svc.ListProducts(ctx, ListProductsInput{Actor: &vendorActor, OwnListings: true})
	require.NoError(t, err)
	require.Len(t, own.Products, 3)

	others, err := svc.ListProducts(ctx, ListProductsInput{Actor: &otherVendor, OwnListings: true})
	require.NoError(t, err)
	require.Empty(t, others.Products)

	search, err := svc.ListProducts(ctx, ListProductsInput{Filters: ProductListFilters{Query: "LAMP"}})
	require.NoError(t, err)
	require.Len(t, search.Products, 2)

	tagged, err := svc.ListProducts(ctx, ListProductsInput{Filters: ProductListFilters{Tag: "Lighting"}, Pagination: pagination.Params{Limit: 1}})
	require.NoError(t, err)
	require.Len(t, tagged.Products, 1)
	require.NotEmpty(t, tagged.NextCursor)
}

func TestReviews(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()
	dto := createListing(t, svc, "Teapot")

	_, err := svc.AddReview(ctx, buyerActor, dto.ID, ReviewInput{Rating: 5})
	requireCode(t, err, pkgerrors.CodeNotFound)

	_, err = svc.Approve(ctx, adminActor, dto.ID)
	require.NoError(t, err)

	_, err = svc.AddReview(ctx, buyerActor, dto.ID, ReviewInput{Rating: 6})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = svc.AddReview(ctx, buyerActor, dto.ID, ReviewInput{Rating: 5, Body: "lovely"})
	require.NoError(t, err)
	_, err = svc.AddReview(ctx, otherVendor, dto.ID, ReviewInput{Rating: 2})
	require.NoError(t, err)
	_, err = svc.AddReview(ctx, buyerActor, dto.ID, ReviewInput{Rating: 1})
	requireCode(t, err, pkgerrors.CodeConflict)

	list, err := svc.ListReviews(ctx, nil, dto.ID, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, list.Reviews, 2)
	require.Equal(t, int64(2), list.ReviewCount)
	require.True(t, list.AverageRating.Equal(decimal.RequireFromString("3.5")), "average: %s", list.AverageRating)
}

func TestCategoriesAndTags(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateCategory(ctx, vendorActor, CreateCategoryInput{Title: "Home"})
	requireCode(t, err, pkgerrors.CodeForbidden)

	category, err := svc.CreateCategory(ctx, adminActor, CreateCategoryInput{Title: "Home", Image: "home.png"})
	require.NoError(t, err)

	_, err = svc.CreateProduct(ctx, vendorActor, CreateProductInput{
		Title:      "Clock",
		Price:      decimal.RequireFromString("12.50"),
		CategoryID: &category.ID,
		Tags:       []string{"decor"},
	})
	require.NoError(t, err)

	categories, err := svc.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, categories, 1)

	tags, err := svc.ListTags(ctx)
	require.NoError(t, err)
	require.Equal(t, []TagDTO{{Name: "decor", Slug: "decor"}}, tags)
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Home Office":   "home-office",
		"  a--b  ":      "a-b",
		"Café & Bar!":   "café-bar",
		"":              "",
		"---":           "",
		"Tag 2024 Sale": "tag-2024-sale",
	}
	for in, want := range cases {
		if got := slugify(in); got != want {
			t.Fatalf("slugify(%q) = %q, want %q", in, got, want)
		}
	}
}
