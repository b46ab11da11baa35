package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/temcen/homeser/internal/messaging"
	"github.com/temcen/homeser/pkg/models"
)

const (
	VariantStandard = "standard"
	VariantAdmin    = "admin"
)

const orderColumns = `id, order_id, user_id, status, payment_status, customer_name, customer_address,
	customer_phone, payment_method, transaction_id, subtotal::float8, tax::float8, total::float8,
	created_at, updated_at`

// OrderContext carries one order operation through the pipeline stages.
type OrderContext struct {
	UserID  int64
	Email   string
	IsStaff bool

	Checkout *models.CheckoutRequest

	OrderID   int64
	NewStatus string

	Cart           *models.Cart
	Order          *models.Order
	PreviousStatus string
	Payment        *models.Payment
	GatewayURL     string
}

type Stage func(ctx context.Context, oc *OrderContext) error

// OrderPipeline runs its stages in a fixed order. A nil stage is skipped and
// the first error stops the run.
type OrderPipeline struct {
	Validate    Stage
	Prepare     Stage
	Execute     Stage
	PostProcess Stage
}

func (p OrderPipeline) Run(ctx context.Context, oc *OrderContext) error {
	for _, stage := range []Stage{p.Validate, p.Prepare, p.Execute, p.PostProcess} {
		if stage == nil {
			continue
		}
		if err := stage(ctx, oc); err != nil {
			return err
		}
	}
	return nil
}

type CartStore interface {
	Get(ctx context.Context, userID int64) (*models.Cart, error)
	Clear(ctx context.Context, userID int64) error
}

type PaymentStarter interface {
	StartSession(ctx context.Context, order *models.Order, email string) (*models.Payment, string, error)
}

type OrderService struct {
	db        DB
	carts     CartStore
	catalog   ServiceLookup
	payments  PaymentStarter
	bus       EventPublisher
	metrics   *MetricsCollector
	taxRate   float64
	logger    *logrus.Logger
	pipelines map[string]OrderPipeline
}

func NewOrderService(db DB, carts CartStore, catalog ServiceLookup, payments PaymentStarter, bus EventPublisher, metrics *MetricsCollector, taxRate float64, logger *logrus.Logger) *OrderService {
	s := &OrderService{
		db:       db,
		carts:    carts,
		catalog:  catalog,
		payments: payments,
		bus:      bus,
		metrics:  metrics,
		taxRate:  taxRate,
		logger:   logger,
	}
	s.pipelines = map[string]OrderPipeline{
		VariantStandard: {
			Validate:    s.validateCheckout,
			Prepare:     s.prepareCheckout,
			Execute:     s.executeCheckout,
			PostProcess: s.finishCheckout,
		},
		VariantAdmin: {
			Validate:    s.validateStatusChange,
			Prepare:     s.loadOrder,
			Execute:     s.executeStatusChange,
			PostProcess: s.announceStatusChange,
		},
	}
	return s
}

// Process runs the pipeline registered for variant.
func (s *OrderService) Process(ctx context.Context, variant string, oc *OrderContext) error {
	p, ok := s.pipelines[variant]
	if !ok {
		return fmt.Errorf("%w: unknown order variant %q", ErrInvalidInput, variant)
	}
	return p.Run(ctx, oc)
}

// Checkout turns the user's cart into a pending order and opens a payment session.
func (s *OrderService) Checkout(ctx context.Context, userID int64, email string, req *models.CheckoutRequest) (*models.CheckoutResponse, error) {
	oc := &OrderContext{UserID: userID, Email: email, Checkout: req}
	if err := s.Process(ctx, VariantStandard, oc); err != nil {
		return nil, err
	}
	return &models.CheckoutResponse{
		Order:         oc.Order,
		GatewayURL:    oc.GatewayURL,
		SessionKey:    oc.Payment.SessionKey,
		TransactionID: oc.Payment.TransactionID,
	}, nil
}

func (s *OrderService) UpdateStatus(ctx context.Context, actor int64, isStaff bool, orderID int64, status string) (*models.Order, error) {
	oc := &OrderContext{UserID: actor, IsStaff: isStaff, OrderID: orderID, NewStatus: status}
	if err := s.Process(ctx, VariantAdmin, oc); err != nil {
		return nil, err
	}
	return oc.Order, nil
}

func (s *OrderService) validateCheckout(_ context.Context, oc *OrderContext) error {
	if oc.UserID == 0 {
		return ErrUnauthorized
	}
	req := oc.Checkout
	if req == nil || strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Address) == "" || strings.TrimSpace(req.Phone) == "" {
		return fmt.Errorf("%w: name, address and phone are required", ErrInvalidInput)
	}
	return nil
}

// prepareCheckout reprices the cart against the live catalog.
func (s *OrderService) prepareCheckout(ctx context.Context, oc *OrderContext) error {
	cart, err := s.carts.Get(ctx, oc.UserID)
	if err != nil {
		return err
	}
	if len(cart.Items) == 0 {
		return ErrEmptyCart
	}

	for i, item := range cart.Items {
		svc, err := s.catalog.GetActiveService(ctx, item.ServiceID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: service %d is no longer available", ErrInvalidInput, item.ServiceID)
			}
			return err
		}
		cart.Items[i].Price = svc.Price
		cart.Items[i].ServiceName = svc.Name
	}
	cart.Subtotal, cart.Tax, cart.Total = Totals(cart.Items, s.taxRate)
	oc.Cart = cart
	return nil
}

func (s *OrderService) executeCheckout(ctx context.Context, oc *OrderContext) error {
	req := oc.Checkout
	var order *models.Order
	err := withTx(ctx, s.db, func(tx pgx.Tx) error {
		o, err := scanOrder(tx.QueryRow(ctx, `
			INSERT INTO orders (order_id, user_id, customer_name, customer_address, customer_phone,
				subtotal, tax, total)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING `+orderColumns,
			uuid.New(), oc.UserID, strings.TrimSpace(req.Name), strings.TrimSpace(req.Address),
			strings.TrimSpace(req.Phone), oc.Cart.Subtotal, oc.Cart.Tax, oc.Cart.Total))
		if err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		for _, item := range oc.Cart.Items {
			var itemID int64
			if err := tx.QueryRow(ctx, `
				INSERT INTO order_items (order_id, service_id, quantity, price)
				VALUES ($1, $2, $3, $4)
				RETURNING id`,
				o.ID, item.ServiceID, item.Quantity, item.Price).Scan(&itemID); err != nil {
				return fmt.Errorf("failed to create order item: %w", err)
			}
			o.Items = append(o.Items, models.OrderItem{
				ID:          itemID,
				ServiceID:   item.ServiceID,
				ServiceName: item.ServiceName,
				Quantity:    item.Quantity,
				Price:       item.Price,
			})
		}
		order = o
		return nil
	})
	if err != nil {
		s.metrics.RecordCheckout("error")
		return err
	}
	oc.Order = order

	payment, gatewayURL, err := s.payments.StartSession(ctx, order, oc.Email)
	if err != nil {
		if _, cancelErr := s.db.Exec(ctx,
			`UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`,
			order.ID, models.OrderStatusCancelled); cancelErr != nil {
			s.logger.WithError(cancelErr).WithField("order_id", order.OrderID).Error("Failed to cancel order after gateway failure")
		}
		order.Status = models.OrderStatusCancelled
		return err
	}
	oc.Payment = payment
	oc.GatewayURL = gatewayURL
	return nil
}

func (s *OrderService) finishCheckout(ctx context.Context, oc *OrderContext) error {
	if err := s.carts.Clear(ctx, oc.UserID); err != nil {
		s.logger.WithError(err).WithField("user_id", oc.UserID).Warn("Failed to clear cart after checkout")
	}

	s.metrics.RecordCheckout("success")
	publishEvent(ctx, s.bus, s.logger, messaging.EventOrderCreated, oc.UserID, map[string]any{
		"order_id": oc.Order.OrderID,
		"total":    oc.Order.Total,
		"status":   oc.Order.Status,
	})
	s.logger.WithFields(logrus.Fields{
		"order_id": oc.Order.OrderID,
		"user_id":  oc.UserID,
		"total":    oc.Order.Total,
	}).Info("Order created")
	return nil
}

func (s *OrderService) validateStatusChange(_ context.Context, oc *OrderContext) error {
	if !oc.IsStaff {
		return ErrForbidden
	}
	if !slices.Contains(models.OrderStatuses, oc.NewStatus) {
		return fmt.Errorf("%w: invalid status %q", ErrInvalidInput, oc.NewStatus)
	}
	return nil
}

func (s *OrderService) loadOrder(ctx context.Context, oc *OrderContext) error {
	order, err := s.Get(ctx, oc.OrderID)
	if err != nil {
		return err
	}
	oc.Order = order
	oc.PreviousStatus = order.Status
	return nil
}

func (s *OrderService) executeStatusChange(ctx context.Context, oc *OrderContext) error {
	err := s.db.QueryRow(ctx, `
		UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1
		RETURNING updated_at`, oc.OrderID, oc.NewStatus).Scan(&oc.Order.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: order", ErrNotFound)
		}
		return fmt.Errorf("failed to update order status: %w", err)
	}
	oc.Order.Status = oc.NewStatus
	return nil
}

func (s *OrderService) announceStatusChange(ctx context.Context, oc *OrderContext) error {
	if oc.PreviousStatus == oc.NewStatus {
		return nil
	}
	publishEvent(ctx, s.bus, s.logger, messaging.EventOrderStatusChanged, oc.Order.UserID, map[string]any{
		"order_id":        oc.Order.OrderID,
		"previous_status": oc.PreviousStatus,
		"status":          oc.NewStatus,
	})
	return nil
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	err := row.Scan(&o.ID, &o.OrderID, &o.UserID, &o.Status, &o.PaymentStatus, &o.CustomerName,
		&o.CustomerAddress, &o.CustomerPhone, &o.PaymentMethod, &o.TransactionID,
		&o.Subtotal, &o.Tax, &o.Total, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: order", ErrNotFound)
		}
		return nil, err
	}
	o.Items = []models.OrderItem{}
	return &o, nil
}

func (s *OrderService) Get(ctx context.Context, id int64) (*models.Order, error) {
	order, err := scanOrder(s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := s.attachItems(ctx, []*models.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

// GetForUser hides other users' orders behind ErrNotFound.
func (s *OrderService) GetForUser(ctx context.Context, userID, id int64) (*models.Order, error) {
	order, err := scanOrder(s.db.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		return nil, err
	}
	if err := s.attachItems(ctx, []*models.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderService) ListForUser(ctx context.Context, userID int64, page, pageSize int) (models.Page[models.Order], error) {
	return s.list(ctx, &userID, page, pageSize)
}

func (s *OrderService) ListAll(ctx context.Context, page, pageSize int) (models.Page[models.Order], error) {
	return s.list(ctx, nil, page, pageSize)
}

func (s *OrderService) list(ctx context.Context, userID *int64, page, pageSize int) (models.Page[models.Order], error) {
	page, pageSize = normalizePage(page, pageSize)

	var count int
	if err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM orders WHERE ($1::bigint IS NULL OR user_id = $1)`, userID).Scan(&count); err != nil {
		return models.Page[models.Order]{}, fmt.Errorf("failed to count orders: %w", err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE ($1::bigint IS NULL OR user_id = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return models.Page[models.Order]{}, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return models.Page[models.Order]{}, err
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return models.Page[models.Order]{}, err
	}

	ptrs := make([]*models.Order, len(orders))
	for i := range orders {
		ptrs[i] = &orders[i]
	}
	if err := s.attachItems(ctx, ptrs); err != nil {
		return models.Page[models.Order]{}, err
	}
	return models.NewPage(orders, count, page, pageSize), nil
}

func (s *OrderService) attachItems(ctx context.Context, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[int64]*models.Order, len(orders))
	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	rows, err := s.db.Query(ctx, `
		SELECT oi.order_id, oi.id, oi.service_id, s.name, oi.quantity, oi.price::float8
		FROM order_items oi
		JOIN services s ON s.id = oi.service_id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.id`, ids)
	if err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var orderID int64
		var item models.OrderItem
		if err := rows.Scan(&orderID, &item.ID, &item.ServiceID, &item.ServiceName, &item.Quantity, &item.Price); err != nil {
			return err
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	return rows.Err()
}
