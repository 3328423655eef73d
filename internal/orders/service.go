package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/ledger"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

const (
	vendorFeedLimit    = 25
	topProductsLimit   = 5
	dashboardLatest    = 5
	salesWindowDays    = 30
	salesDayLayout     = "2006-01-02"
	dashboardMonthSpan = 30 * 24 * time.Hour
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type userCounter interface {
	CountByRole(ctx context.Context) (map[enums.Role]int64, error)
}

// Service exposes order history for buyers, vendors and administrators.
type Service interface {
	ListMine(ctx context.Context, actor types.Actor, params pagination.Params) (*OrderList, error)
	GetMine(ctx context.Context, actor types.Actor, orderID uuid.UUID) (*OrderDTO, error)

	VendorFeed(ctx context.Context, actor types.Actor) ([]VendorOrderDTO, error)
	SalesSummary(ctx context.Context, actor types.Actor) (*SalesSummary, error)

	List(ctx context.Context, actor types.Actor, filters OrderFilters, params pagination.Params) (*OrderList, error)
	Get(ctx context.Context, actor types.Actor, orderID uuid.UUID) (*OrderDTO, error)
	UpdateShippingStatus(ctx context.Context, actor types.Actor, orderID uuid.UUID, next enums.ShippingStatus) (*OrderDTO, error)
	Dashboard(ctx context.Context, actor types.Actor) (*Dashboard, error)
}

// ServiceParams wires the orders service.
type ServiceParams struct {
	Repo   Repository
	Tx     txRunner
	Outbox outbox.Emitter
	Users  userCounter
	Ledger ledger.Service
	Logger *logger.Logger
	Now    func() time.Time
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outbox.Emitter
	users  userCounter
	ledger ledger.Service
	logg   *logger.Logger
	now    func() time.Time
}

// NewService wires the orders service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user counter required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:   params.Repo,
		tx:     params.Tx,
		outbox: params.Outbox,
		users:  params.Users,
		ledger: params.Ledger,
		logg:   params.Logger,
		now:    now,
	}, nil
}

func (s *service) ListMine(ctx context.Context, actor types.Actor, params pagination.Params) (*OrderList, error) {
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	buyerID := actor.UserID
	return s.list(ctx, OrderFilters{BuyerID: &buyerID}, params)
}

// GetMine returns one of the caller's paid orders. Orders of other buyers are
// reported as missing.
func (s *service) GetMine(ctx context.Context, actor types.Actor, orderID uuid.UUID) (*OrderDTO, error) {
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	order, err := s.loadPaid(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	dto := newOrderDTO(*order)
	return &dto, nil
}

func (s *service) VendorFeed(ctx context.Context, actor types.Actor) ([]VendorOrderDTO, error) {
	if !actor.Can(enums.PermissionSellProducts) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "vendor access required")
	}
	rows, err := s.repo.ListSellerOrders(ctx, actor.UserID, vendorFeedLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list vendor orders")
	}
	feed := make([]VendorOrderDTO, 0, len(rows))
	for _, order := range rows {
		entry := VendorOrderDTO{
			OrderID:        order.ID,
			PaidAt:         order.PaidAt,
			ShippingStatus: order.ShippingStatus,
			Subtotal:       decimal.Zero,
			Items:          make([]OrderItemDTO, 0, len(order.Items)),
		}
		for _, item := range order.Items {
			entry.Subtotal = entry.Subtotal.Add(item.LineTotal)
			entry.Items = append(entry.Items, newItemDTO(item))
		}
		feed = append(feed, entry)
	}
	return feed, nil
}

// SalesSummary aggregates by the seller recorded on each line when it was
// added to the cart.
func (s *service) SalesSummary(ctx context.Context, actor types.Actor) (*SalesSummary, error) {
	if !actor.Can(enums.PermissionSellProducts) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "vendor access required")
	}
	now := s.now().UTC()
	windowStart := startOfDay(now).AddDate(0, 0, -(salesWindowDays - 1))

	recent, err := s.repo.SellerTotals(ctx, actor.UserID, &windowStart)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate recent sales")
	}
	lifetime, err := s.repo.SellerTotals(ctx, actor.UserID, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate lifetime sales")
	}
	lines, err := s.repo.SellerLines(ctx, actor.UserID, windowStart)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load recent sales")
	}
	top, err := s.repo.TopProducts(ctx, actor.UserID, topProductsLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rank products")
	}

	return &SalesSummary{
		Last30Days:  recent,
		Lifetime:    lifetime,
		Daily:       dailySeries(lines, windowStart, salesWindowDays),
		TopProducts: top,
	}, nil
}

func (s *service) List(ctx context.Context, actor types.Actor, filters OrderFilters, params pagination.Params) (*OrderList, error) {
	if !actor.Can(enums.PermissionManageOrders) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin access required")
	}
	if filters.ShippingStatus != nil && !filters.ShippingStatus.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid shipping status filter")
	}
	return s.list(ctx, filters, params)
}

func (s *service) Get(ctx context.Context, actor types.Actor, orderID uuid.UUID) (*OrderDTO, error) {
	if !actor.Can(enums.PermissionManageOrders) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin access required")
	}
	order, err := s.loadPaid(ctx, orderID)
	if err != nil {
		return nil, err
	}
	dto := newOrderDTO(*order)
	return &dto, nil
}

// UpdateShippingStatus only moves forward: processing, shipped, delivered.
func (s *service) UpdateShippingStatus(ctx context.Context, actor types.Actor, orderID uuid.UUID, next enums.ShippingStatus) (*OrderDTO, error) {
	if !actor.Can(enums.PermissionManageOrders) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin access required")
	}
	if !next.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid shipping status")
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrderForUpdate(ctx, orderID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if err != nil {
			return err
		}
		if !order.PaidStatus {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not paid")
		}
		current := order.ShippingStatus
		if !current.CanAdvanceTo(next) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "shipping status can only move forward").
				WithDetails(map[string]string{"current": string(current), "requested": string(next)})
		}
		moved, err := repo.AdvanceShipping(ctx, orderID, current, next)
		if err != nil {
			return err
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderShippingUpdated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         outbox.ActorFrom(actor),
			Data: payloads.OrderShippingUpdatedEvent{
				OrderID: orderID,
				BuyerID: order.BuyerID,
				From:    current,
				To:      next,
			},
		})
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update shipping status")
	}

	logCtx := s.logg.WithOrderID(ctx, orderID.String())
	logCtx = s.logg.WithActorRole(logCtx, string(actor.Role))
	s.logg.Info(s.logg.WithField(logCtx, "shipping_status", string(next)), "shipping status updated")
	return s.Get(ctx, actor, orderID)
}

func (s *service) Dashboard(ctx context.Context, actor types.Actor) (*Dashboard, error) {
	if !actor.Can(enums.PermissionManageOrders) || !actor.Can(enums.PermissionViewWallets) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin access required")
	}
	monthStart := s.now().UTC().Add(-dashboardMonthSpan)

	revenue, err := s.repo.Revenue(ctx, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate revenue")
	}
	monthly, err := s.repo.Revenue(ctx, &monthStart)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate monthly revenue")
	}
	paid, err := s.repo.CountPaidOrders(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count orders")
	}
	products, err := s.repo.CountProducts(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count products")
	}
	categories, err := s.repo.CountCategories(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count categories")
	}
	users, err := s.users.CountByRole(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count users")
	}
	wallets, err := s.ledger.Overview(ctx)
	if err != nil {
		return nil, err
	}
	latest, err := s.repo.ListPaidOrders(ctx, OrderFilters{}, dashboardLatest, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load latest orders")
	}

	dash := &Dashboard{
		Revenue:        revenue,
		MonthlyRevenue: monthly,
		PaidOrders:     paid,
		Products:       products,
		Categories:     categories,
		Users:          users,
		Wallets:        wallets,
		LatestOrders:   make([]OrderDTO, 0, len(latest)),
	}
	for _, order := range latest {
		dash.LatestOrders = append(dash.LatestOrders, newOrderDTO(order))
	}
	return dash, nil
}

func (s *service) list(ctx context.Context, filters OrderFilters, params pagination.Params) (*OrderList, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListPaidOrders(ctx, filters, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	page, next := pagination.Trim(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	out := &OrderList{Orders: make([]OrderDTO, 0, len(page)), NextCursor: next}
	for _, order := range page {
		out.Orders = append(out.Orders, newOrderDTO(order))
	}
	return out, nil
}

func (s *service) loadPaid(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindOrder(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if !order.PaidStatus {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

// dailySeries buckets lines by UTC day, emitting every day of the window so
// charts get zero days too.
func dailySeries(lines []SoldLine, start time.Time, days int) []DailySales {
	series := make([]DailySales, days)
	index := make(map[string]int, days)
	for i := 0; i < days; i++ {
		day := start.AddDate(0, 0, i).Format(salesDayLayout)
		series[i] = DailySales{Day: day, Revenue: decimal.Zero}
		index[day] = i
	}
	for _, line := range lines {
		i, ok := index[line.PaidAt.UTC().Format(salesDayLayout)]
		if !ok {
			continue
		}
		series[i].Revenue = series[i].Revenue.Add(line.LineTotal)
		series[i].Units += int64(line.Quantity)
	}
	return series
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
