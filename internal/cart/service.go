package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

const (
	maxLineQuantity  = 999
	cartLockAttempts = 2
)

// Service manages the buyer's single unpaid order.
type Service interface {
	GetOrCreateActiveCart(ctx context.Context, actor *types.Actor) (*CartDTO, error)
	AddItem(ctx context.Context, actor *types.Actor, input AddItemInput) (*CartDTO, error)
	UpdateItem(ctx context.Context, actor *types.Actor, itemID uuid.UUID, action enums.CartItemAction) (*ItemUpdateResult, error)
	Count(ctx context.Context, actor *types.Actor) (int64, error)
}

// AddItemInput selects the product and quantity to add. A zero quantity
// defaults to one.
type AddItemInput struct {
	ProductID uuid.UUID
	Quantity  int
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo CartRepository
	tx   txRunner
	logg *logger.Logger
}

// NewService builds a cart service backed by the provided repository.
func NewService(repo CartRepository, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, logg: logg}, nil
}

func (s *service) GetOrCreateActiveCart(ctx context.Context, actor *types.Actor) (*CartDTO, error) {
	buyerID, err := requireShopper(actor)
	if err != nil {
		return nil, err
	}

	var dto *CartDTO
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.EnsureActiveCart(ctx, buyerID)
		if err != nil {
			return err
		}
		items, err := repo.ListItems(ctx, order.ID)
		if err != nil {
			return err
		}
		dto = newCartDTO(order, items)
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return dto, nil
}

// AddItem merges repeat adds of the same product into one line. The product's
// status is read at add time and the original price snapshot is kept on merge.
func (s *service) AddItem(ctx context.Context, actor *types.Actor, input AddItemInput) (*CartDTO, error) {
	buyerID, err := requireShopper(actor)
	if err != nil {
		return nil, err
	}
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product_id is required")
	}
	qty := input.Quantity
	if qty == 0 {
		qty = 1
	}
	if qty < 1 || qty > maxLineQuantity {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be between 1 and %d", maxLineQuantity))
	}

	var dto *CartDTO
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.lockActiveCart(ctx, repo, buyerID)
		if err != nil {
			return err
		}

		product, err := repo.FindProduct(ctx, input.ProductID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		if err != nil {
			return err
		}
		if !product.IsPurchasable() {
			return pkgerrors.New(pkgerrors.CodeProductUnavailable, "product is not available for purchase").
				WithDetails(map[string]any{"product_id": product.ID, "status": product.Status, "in_stock": product.InStock})
		}

		existing, err := repo.FindItemByProduct(ctx, order.ID, product.ID)
		switch {
		case err == nil:
			next := existing.Quantity + qty
			if next > maxLineQuantity {
				return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be between 1 and %d", maxLineQuantity))
			}
			if err := repo.UpdateItemQuantity(ctx, existing.ID, next, lineTotal(existing.UnitPrice, next)); err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			productID := product.ID
			if err := repo.CreateItem(ctx, &models.OrderItem{
				OrderID:   order.ID,
				ProductID: &productID,
				SellerID:  product.OwnerID,
				Title:     product.Title,
				UnitPrice: product.Price,
				Quantity:  qty,
				LineTotal: lineTotal(product.Price, qty),
			}); err != nil {
				return err
			}
		default:
			return err
		}

		items, err := s.syncTotal(ctx, repo, order.ID)
		if err != nil {
			return err
		}
		dto = newCartDTO(order, items)
		return nil
	})
	if err != nil {
		return nil, asTyped(err, "add cart item")
	}

	s.logg.Info(s.logg.WithFields(s.logg.WithUserID(ctx, buyerID.String()), map[string]any{
		"product_id": input.ProductID.String(),
		"quantity":   qty,
	}), "cart item added")
	return dto, nil
}

// UpdateItem applies one action to a line. Decreasing to zero deletes the
// line rather than persisting a zero quantity.
func (s *service) UpdateItem(ctx context.Context, actor *types.Actor, itemID uuid.UUID, action enums.CartItemAction) (*ItemUpdateResult, error) {
	buyerID, err := requireShopper(actor)
	if err != nil {
		return nil, err
	}
	if itemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	if !action.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "action must be one of increase, decrease, remove")
	}

	var result *ItemUpdateResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.lockActiveCart(ctx, repo, buyerID)
		if err != nil {
			return err
		}
		item, err := repo.FindItem(ctx, order.ID, itemID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
		}
		if err != nil {
			return err
		}

		next := item.Quantity
		switch action {
		case enums.CartItemActionIncrease:
			next++
		case enums.CartItemActionDecrease:
			next--
		case enums.CartItemActionRemove:
			next = 0
		}
		if next > maxLineQuantity {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be between 1 and %d", maxLineQuantity))
		}

		result = &ItemUpdateResult{ItemID: item.ID}
		if next <= 0 {
			if err := repo.DeleteItem(ctx, item.ID); err != nil {
				return err
			}
			result.Removed = true
			result.ItemTotal = lineTotal(item.UnitPrice, 0)
		} else {
			total := lineTotal(item.UnitPrice, next)
			if err := repo.UpdateItemQuantity(ctx, item.ID, next, total); err != nil {
				return err
			}
			result.Quantity = next
			result.ItemTotal = total
		}

		items, err := s.syncTotal(ctx, repo, order.ID)
		if err != nil {
			return err
		}
		result.CartTotal = Totals(items)
		return nil
	})
	if err != nil {
		return nil, asTyped(err, "update cart item")
	}
	return result, nil
}

func (s *service) Count(ctx context.Context, actor *types.Actor) (int64, error) {
	buyerID, err := requireShopper(actor)
	if err != nil {
		return 0, err
	}
	count, err := s.repo.CountUnits(ctx, buyerID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count cart items")
	}
	return count, nil
}

// lockActiveCart locks the buyer's unpaid order. A checkout can pay the cart
// between the lookup and the lock; the lookup then runs again so the change
// lands in the fresh cart.
func (s *service) lockActiveCart(ctx context.Context, repo CartRepository, buyerID uuid.UUID) (*models.Order, error) {
	for attempt := 0; attempt < cartLockAttempts; attempt++ {
		order, err := repo.EnsureActiveCart(ctx, buyerID)
		if err != nil {
			return nil, err
		}
		locked, err := repo.LockCart(ctx, order.ID)
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return locked, err
		}
		s.logg.Warn(s.logg.WithField(ctx, "cart_id", order.ID.String()), "cart was paid before it could be locked")
	}
	return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cart changed during the request, retry")
}

func (s *service) syncTotal(ctx context.Context, repo CartRepository, cartID uuid.UUID) ([]models.OrderItem, error) {
	items, err := repo.ListItems(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if err := repo.SetTotal(ctx, cartID, Totals(items)); err != nil {
		return nil, err
	}
	return items, nil
}

func requireShopper(actor *types.Actor) (uuid.UUID, error) {
	if actor == nil || actor.UserID == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if !actor.Can(enums.PermissionShop) {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "role cannot shop")
	}
	return actor.UserID, nil
}

func asTyped(err error, message string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}
