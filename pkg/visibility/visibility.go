// Package visibility decides which catalog listings a caller may see.
package visibility

import (
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

// EnsureProductVisible hides unpublished listings from everyone except their
// owner and moderators. Hidden listings are reported as missing so their
// existence does not leak.
func EnsureProductVisible(product *models.Product, actor *types.Actor) error {
	if product == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if product.Status.IsVisible() {
		return nil
	}
	if actor == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if actor.Can(enums.PermissionModerateProducts) || actor.Owns(product.OwnerID) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
}

// ListingStatuses returns the statuses a caller may filter on. Nil means no
// restriction.
func ListingStatuses(actor *types.Actor, requested *enums.ProductStatus, ownListings bool) ([]enums.ProductStatus, error) {
	if actor != nil && (actor.Can(enums.PermissionModerateProducts) || ownListings) {
		if requested == nil {
			return nil, nil
		}
		return []enums.ProductStatus{*requested}, nil
	}
	if requested != nil && !requested.IsVisible() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only published products can be browsed")
	}
	return []enums.ProductStatus{enums.ProductStatusPublished}, nil
}
