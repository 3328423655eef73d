package controllers

import (
	"net/http"

	"github.com/angelmondragon/bazaar-backend/api/responses"
	"github.com/angelmondragon/bazaar-backend/api/validators"
	"github.com/angelmondragon/bazaar-backend/internal/wishlist"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

// wishlistHandler resolves the service and caller before handing off, so each
// route only carries its own logic.
func wishlistHandler(svc wishlist.Service, logg *logger.Logger, fn func(http.ResponseWriter, *http.Request, types.Actor) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("wishlist"))
			return
		}
		actor, err := requireActor(r)
		if err == nil {
			err = fn(w, r, actor)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
		}
	}
}

func GetWishlist(svc wishlist.Service, logg *logger.Logger) http.HandlerFunc {
	return wishlistHandler(svc, logg, func(w http.ResponseWriter, r *http.Request, actor types.Actor) error {
		params, err := validators.ParsePagination(r)
		if err != nil {
			return err
		}
		page, err := svc.GetWishlist(r.Context(), actor, params)
		if err != nil {
			return err
		}
		responses.WriteSuccess(w, page)
		return nil
	})
}

// GetWishlistIDs backs the saved markers on catalog listings.
func GetWishlistIDs(svc wishlist.Service, logg *logger.Logger) http.HandlerFunc {
	return wishlistHandler(svc, logg, func(w http.ResponseWriter, r *http.Request, actor types.Actor) error {
		ids, err := svc.GetWishlistIDs(r.Context(), actor)
		if err != nil {
			return err
		}
		responses.WriteSuccess(w, ids)
		return nil
	})
}

// AddWishlistItem answers 201 for a newly saved product and 200 when it was
// already on the list.
func AddWishlistItem(svc wishlist.Service, logg *logger.Logger) http.HandlerFunc {
	return wishlistHandler(svc, logg, func(w http.ResponseWriter, r *http.Request, actor types.Actor) error {
		productID, err := validators.ParseUUIDParam(r, "productID")
		if err != nil {
			return err
		}
		created, err := svc.AddItem(r.Context(), actor, productID)
		if err != nil {
			return err
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, map[string]bool{"saved": true, "created": created})
		return nil
	})
}

func RemoveWishlistItem(svc wishlist.Service, logg *logger.Logger) http.HandlerFunc {
	return wishlistHandler(svc, logg, func(w http.ResponseWriter, r *http.Request, actor types.Actor) error {
		productID, err := validators.ParseUUIDParam(r, "productID")
		if err != nil {
			return err
		}
		if err := svc.RemoveItem(r.Context(), actor, productID); err != nil {
			return err
		}
		responses.WriteSuccess(w, map[string]bool{"removed": true})
		return nil
	})
}
