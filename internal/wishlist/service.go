package wishlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	product "github.com/angelmondragon/bazaar-backend/internal/products"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

// ServiceParams groups dependencies for the wishlist service.
type ServiceParams struct {
	WishlistRepo *Repository
	ProductRepo  *product.Repository
}

// Service exposes business rules for wishlist management.
type Service interface {
	GetWishlist(ctx context.Context, actor types.Actor, params pagination.Params) (*WishlistPage, error)
	GetWishlistIDs(ctx context.Context, actor types.Actor) (*WishlistIDs, error)
	AddItem(ctx context.Context, actor types.Actor, productID uuid.UUID) (bool, error)
	RemoveItem(ctx context.Context, actor types.Actor, productID uuid.UUID) error
}

// maxWishlistIDs caps the ID lookup the storefront uses to mark saved products.
const maxWishlistIDs = 500

// WishlistItemDTO wraps the product included in a wishlist row.
type WishlistItemDTO struct {
	Product   product.ProductDTO `json:"product"`
	CreatedAt time.Time          `json:"created_at"`
}

// WishlistPage returns a cursor-paginated wishlist view.
type WishlistPage struct {
	Items      []WishlistItemDTO `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

// WishlistIDs is the compact form of a wishlist. Truncated is set when the
// user has saved more than maxWishlistIDs listed products.
type WishlistIDs struct {
	ProductIDs []uuid.UUID `json:"product_ids"`
	Truncated  bool        `json:"truncated"`
}

type service struct {
	wishlistRepo *Repository
	productRepo  *product.Repository
}

// NewService builds a wishlist service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.WishlistRepo == nil {
		return nil, fmt.Errorf("wishlist repo is required")
	}
	if params.ProductRepo == nil {
		return nil, fmt.Errorf("product repo is required")
	}
	return &service{
		wishlistRepo: params.WishlistRepo,
		productRepo:  params.ProductRepo,
	}, nil
}

// GetWishlist returns the caller's saved products that are still listed.
func (s *service) GetWishlist(ctx context.Context, actor types.Actor, params pagination.Params) (*WishlistPage, error) {
	if err := ensureShopper(actor); err != nil {
		return nil, err
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.wishlistRepo.ListItems(ctx, actor.UserID, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list wishlist")
	}
	page, next := pagination.Trim(rows, params.Limit, func(w models.WishlistItem) pagination.Cursor {
		return pagination.Cursor{CreatedAt: w.CreatedAt, ID: w.ID}
	})

	ids := make([]uuid.UUID, 0, len(page))
	for _, row := range page {
		ids = append(ids, row.ProductID)
	}
	listed, err := s.productRepo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wishlist products")
	}

	out := &WishlistPage{Items: make([]WishlistItemDTO, 0, len(page)), NextCursor: next}
	for _, row := range page {
		p, ok := listed[row.ProductID]
		if !ok {
			continue
		}
		out.Items = append(out.Items, WishlistItemDTO{Product: *product.NewProductDTO(p), CreatedAt: row.CreatedAt})
	}
	return out, nil
}

func (s *service) GetWishlistIDs(ctx context.Context, actor types.Actor) (*WishlistIDs, error) {
	if err := ensureShopper(actor); err != nil {
		return nil, err
	}
	ids, err := s.wishlistRepo.ProductIDs(ctx, actor.UserID, maxWishlistIDs+1)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list wishlist ids")
	}
	out := &WishlistIDs{ProductIDs: ids}
	if len(ids) > maxWishlistIDs {
		out.ProductIDs, out.Truncated = ids[:maxWishlistIDs], true
	}
	return out, nil
}

// AddItem saves a published product and reports whether it was newly saved.
// Saving it again is a no-op.
func (s *service) AddItem(ctx context.Context, actor types.Actor, productID uuid.UUID) (bool, error) {
	if err := ensureShopper(actor); err != nil {
		return false, err
	}
	if productID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	p, err := s.productRepo.FindByID(ctx, productID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return false, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	case err != nil:
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	case p.Status != enums.ProductStatusPublished:
		return false, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	created, err := s.wishlistRepo.AddItem(ctx, actor.UserID, productID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add wishlist item")
	}
	return created, nil
}

// RemoveItem deletes the product from the wishlist if present.
func (s *service) RemoveItem(ctx context.Context, actor types.Actor, productID uuid.UUID) error {
	if err := ensureShopper(actor); err != nil {
		return err
	}
	if productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if err := s.wishlistRepo.RemoveItem(ctx, actor.UserID, productID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove wishlist item")
	}
	return nil
}

func ensureShopper(actor types.Actor) error {
	if actor.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if !actor.Can(enums.PermissionShop) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "role cannot keep a wishlist")
	}
	return nil
}
