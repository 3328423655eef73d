package product

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

var moderationSources = map[enums.ProductStatus][]enums.ProductStatus{
	enums.ProductStatusPublished: {enums.ProductStatusInReview},
	enums.ProductStatusRejected:  {enums.ProductStatusInReview},
	enums.ProductStatusDisabled: {
		enums.ProductStatusDraft,
		enums.ProductStatusInReview,
		enums.ProductStatusPublished,
		enums.ProductStatusRejected,
	},
}

// Approve publishes a product that is in review.
func (s *service) Approve(ctx context.Context, actor types.Actor, productID uuid.UUID) (*ProductDTO, error) {
	return s.transition(ctx, actor, productID, enums.ProductStatusPublished, "")
}

// Deny rejects a product that is in review.
func (s *service) Deny(ctx context.Context, actor types.Actor, productID uuid.UUID, reason string) (*ProductDTO, error) {
	return s.transition(ctx, actor, productID, enums.ProductStatusRejected, reason)
}

// Disable takes any listing that is not already disabled off the market.
func (s *service) Disable(ctx context.Context, actor types.Actor, productID uuid.UUID, reason string) (*ProductDTO, error) {
	return s.transition(ctx, actor, productID, enums.ProductStatusDisabled, reason)
}

func (s *service) transition(ctx context.Context, actor types.Actor, productID uuid.UUID, next enums.ProductStatus, reason string) (*ProductDTO, error) {
	if !actor.Can(enums.PermissionModerateProducts) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "moderation requires admin role")
	}
	sources := moderationSources[next]

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		product, err := txRepo.FindByIDForUpdate(ctx, productID)
		if err != nil {
			return mapProductErr(err)
		}
		if !statusIn(product.Status, sources) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cannot move product from "+string(product.Status)+" to "+string(next)).
				WithDetails(map[string]any{"from": product.Status, "to": next})
		}
		changed, err := txRepo.TransitionStatus(ctx, productID, sources, next)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update product status")
		}
		if !changed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "product status changed concurrently")
		}
		return s.emitStatusChange(ctx, tx, actor, product, next, reason)
	})
	if err != nil {
		return nil, asTyped(err, "moderate product")
	}

	s.metrics.IncModeration(string(next))
	logCtx := s.logg.WithField(s.productCtx(ctx, actor, productID), "status", string(next))
	s.logg.Info(logCtx, "product moderated")
	return s.load(ctx, productID)
}

func (s *service) emitStatusChange(ctx context.Context, tx *gorm.DB, actor types.Actor, product *models.Product, next enums.ProductStatus, reason string) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventProductStatusChanged,
		AggregateType: enums.AggregateProduct,
		AggregateID:   product.ID,
		Actor:         outbox.ActorFrom(actor),
		Data: payloads.ProductStatusChangedEvent{
			ProductID: product.ID,
			OwnerID:   product.OwnerID,
			Title:     product.Title,
			From:      product.Status,
			To:        next,
			Reason:    strings.TrimSpace(reason),
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit product status change")
	}
	return nil
}

func statusIn(status enums.ProductStatus, set []enums.ProductStatus) bool {
	for _, candidate := range set {
		if candidate == status {
			return true
		}
	}
	return false
}
