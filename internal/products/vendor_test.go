package product

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

func TestFirstListingOpensStorefront(t *testing.T) {
	t.Parallel()
	svc, conn := newTestService(t)
	ctx := context.Background()

	listing := createListing(t, svc, "Desk Lamp")
	createListing(t, svc, "Floor Lamp")

	var vendors []models.Vendor
	require.NoError(t, conn.Find(&vendors).Error)
	require.Len(t, vendors, 1)
	require.Equal(t, vendorActor.UserID, vendors[0].UserID)
	require.Equal(t, "vendor", vendors[0].Title)

	profile, err := svc.GetVendorProfile(ctx, vendorActor)
	require.NoError(t, err)
	require.Equal(t, vendors[0].ID, profile.ID)
	require.Equal(t, maxVendorRating, profile.AuthenticityRating)

	dto, err := svc.GetProduct(ctx, &vendorActor, listing.ID)
	require.NoError(t, err)
	require.NotNil(t, dto.VendorID)
	require.Equal(t, profile.ID, *dto.VendorID)
}

func TestStorefrontListsOnlyPublishedProducts(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	published := createListing(t, svc, "Teapot")
	createListing(t, svc, "Kettle")
	_, err := svc.Approve(ctx, adminActor, published.ID)
	require.NoError(t, err)

	profile, err := svc.GetVendorProfile(ctx, vendorActor)
	require.NoError(t, err)

	front, err := svc.GetStorefront(ctx, profile.ID, pagination.Params{Limit: 10})
	require.NoError(t, err)
	require.Equal(t, "vendor", front.Vendor.Title)
	require.Len(t, front.Listings.Products, 1)
	require.Equal(t, published.ID, front.Listings.Products[0].ID)

	_, err = svc.GetStorefront(ctx, uuid.New(), pagination.Params{Limit: 10})
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestUpdateVendorProfile(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	title := "  Lamp Works "
	contact := "+1 555 0100"
	rating := 4
	updated, err := svc.UpdateVendorProfile(ctx, vendorActor, UpdateVendorInput{
		Title:              &title,
		Contact:            &contact,
		AuthenticityRating: &rating,
	})
	require.NoError(t, err)
	require.Equal(t, "Lamp Works", updated.Title)
	require.Equal(t, contact, updated.Contact)
	require.Equal(t, 4, updated.AuthenticityRating)
	require.Equal(t, defaultChatResponseHours, updated.ChatResponseHours)

	again, err := svc.GetVendorProfile(ctx, vendorActor)
	require.NoError(t, err)
	require.Equal(t, updated.ID, again.ID)
	require.Equal(t, "Lamp Works", again.Title)

	tooHigh := 6
	_, err = svc.UpdateVendorProfile(ctx, vendorActor, UpdateVendorInput{AuthenticityRating: &tooHigh})
	requireCode(t, err, pkgerrors.CodeValidation)

	blank := "   "
	_, err = svc.UpdateVendorProfile(ctx, vendorActor, UpdateVendorInput{Title: &blank})
	requireCode(t, err, pkgerrors.CodeValidation)

	long := strings.Repeat("x", maxVendorTextLen+1)
	_, err = svc.UpdateVendorProfile(ctx, vendorActor, UpdateVendorInput{Address: &long})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = svc.UpdateVendorProfile(ctx, buyerActor, UpdateVendorInput{Title: &title})
	requireCode(t, err, pkgerrors.CodeForbidden)
	_, err = svc.GetVendorProfile(ctx, buyerActor)
	requireCode(t, err, pkgerrors.CodeForbidden)
}
