package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

// Service defines notification list/read operations plus the writers used by
// event consumers.
type Service interface {
	List(ctx context.Context, params ListParams) (*ListResult, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)

	NotifyOrder(ctx context.Context, event payloads.OrderPaidEvent) error
	NotifyShipping(ctx context.Context, event payloads.OrderShippingUpdatedEvent) error
	NotifyProductModerated(ctx context.Context, event payloads.ProductStatusChangedEvent) error
	DeleteReadBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

// ListParams configures pagination for notifications.
type ListParams struct {
	UserID     uuid.UUID
	Limit      int
	Cursor     string
	UnreadOnly bool
}

// ListResult wraps returned notifications and the cursor for the next page.
type ListResult struct {
	Items  []models.Notification `json:"items"`
	Cursor string                `json:"cursor"`
}

// NewService wires notifications dependencies.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	return &service{repo: repo, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, inboxFilter{UserID: params.UserID, UnreadOnly: params.UnreadOnly}, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}
	items, next := pagination.Trim(rows, params.Limit, func(n models.Notification) pagination.Cursor {
		return pagination.Cursor{CreatedAt: n.CreatedAt, ID: n.ID}
	})
	return &ListResult{Items: items, Cursor: next}, nil
}

func (s *service) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	outcome, err := s.repo.MarkRead(ctx, userID, notificationID, s.now())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if outcome == markMissing {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}

	count, err := s.repo.MarkAllRead(ctx, userID, s.now())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}

// NotifyOrder tells every credited seller which of their items sold.
func (s *service) NotifyOrder(ctx context.Context, event payloads.OrderPaidEvent) error {
	if event.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id missing")
	}
	link := fmt.Sprintf("/vendor/orders/%s", event.OrderID)
	for _, seller := range event.Sellers {
		if seller.SellerID == uuid.Nil {
			continue
		}
		lines := make([]string, 0, len(seller.Items))
		for _, item := range seller.Items {
			lines = append(lines, fmt.Sprintf("%s x%d", item.Title, item.Quantity))
		}
		if err := s.repo.Create(ctx, &models.Notification{
			UserID:  seller.SellerID,
			Type:    enums.NotificationTypeOrderReceived,
			Title:   "New order received",
			Message: fmt.Sprintf("You sold %s for %s.", strings.Join(lines, ", "), seller.Amount.StringFixed(2)),
			Link:    stringPtr(link),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) NotifyShipping(ctx context.Context, event payloads.OrderShippingUpdatedEvent) error {
	if event.BuyerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "buyer id missing")
	}
	return s.repo.Create(ctx, &models.Notification{
		UserID:  event.BuyerID,
		Type:    enums.NotificationTypeOrderShipping,
		Title:   "Order update",
		Message: fmt.Sprintf("Your order is now %s.", event.To),
		Link:    stringPtr(fmt.Sprintf("/orders/%s", event.OrderID)),
	})
}

// NotifyProductModerated informs the owner of an approval, rejection or
// removal. Products without an owner are skipped.
func (s *service) NotifyProductModerated(ctx context.Context, event payloads.ProductStatusChangedEvent) error {
	if event.OwnerID == nil || *event.OwnerID == uuid.Nil {
		return nil
	}
	var title, message string
	switch event.To {
	case enums.ProductStatusPublished:
		title = "Product approved"
		message = fmt.Sprintf("%q is now live in the catalog.", event.Title)
	case enums.ProductStatusRejected:
		title = "Product rejected"
		message = fmt.Sprintf("%q was not approved.", event.Title)
	case enums.ProductStatusDisabled:
		title = "Product disabled"
		message = fmt.Sprintf("%q was removed from the catalog.", event.Title)
	default:
		return nil
	}
	if reason := strings.TrimSpace(event.Reason); reason != "" {
		message = fmt.Sprintf("%s Reason: %s", message, reason)
	}
	return s.repo.Create(ctx, &models.Notification{
		UserID:  *event.OwnerID,
		Type:    enums.NotificationTypeProductModerated,
		Title:   title,
		Message: message,
		Link:    stringPtr(fmt.Sprintf("/vendor/products/%s", event.ProductID)),
	})
}

func (s *service) DeleteReadBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	if limit <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "delete batch size must be positive")
	}
	deleted, err := s.repo.DeleteReadBefore(ctx, cutoff, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete read notifications")
	}
	return deleted, nil
}

func stringPtr(value string) *string {
	return &value
}
