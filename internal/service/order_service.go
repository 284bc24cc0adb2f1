package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// OrderStore is the storage surface the order lifecycle mutates.
// *store.Store satisfies it.
type OrderStore interface {
	InsertOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	ListOrders(ctx context.Context, status string) ([]models.Order, error)
	ListOrdersPage(ctx context.Context, status string, page, pageSize int64) ([]models.Order, int64, error)
	SetOrderStatus(ctx context.Context, id, status string, audit models.AuditEntry) (*models.Order, error)
	ClaimStockAdjustment(ctx context.Context, id string) (bool, error)
	ReleaseStockAdjustment(ctx context.Context, id string) (bool, error)
	ClaimCouponUsage(ctx context.Context, id string) (bool, error)
	ReleaseCouponUsage(ctx context.Context, id string) (bool, error)
	ReplaceOrderItems(ctx context.Context, id string, items []models.OrderItem, subtotal, tax, total float64, audit models.AuditEntry) (*models.Order, error)
	UpdateOrderContact(ctx context.Context, id string, set bson.D, audit models.AuditEntry) (*models.Order, error)
	RecordPayment(ctx context.Context, id string, amountPaid, balanceDue float64, proofURL string, audit models.AuditEntry) (*models.Order, error)
	DeleteOrder(ctx context.Context, id string) error

	GetProductsByIDs(ctx context.Context, ids []string) (map[string]models.Product, error)
	DecrementStock(ctx context.Context, items []models.OrderItem) error
	IncrementStock(ctx context.Context, items []models.OrderItem) error
	AdjustCouponUsage(ctx context.Context, code string, delta int) error
}

// LifecyclePublisher publishes order lifecycle events. All publishes
// from the lifecycle are best-effort.
type LifecyclePublisher interface {
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishOrderDeleted(ctx context.Context, event *models.OrderDeletedEvent) error
	PublishPaymentRecorded(ctx context.Context, event *models.PaymentRecordedEvent) error
}

// IdempotencyStore guards admin order creation against duplicate
// submissions.
type IdempotencyStore interface {
	ClaimIdempotencyKey(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	GetIdempotencyValue(ctx context.Context, key string) (string, error)
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// notifiableStatuses are the transitions that trigger a customer
// notification.
var notifiableStatuses = map[string]bool{
	models.OrderStatusProcessing: true,
	models.OrderStatusShipped:    true,
	models.OrderStatusDelivered:  true,
	models.OrderStatusCancelled:  true,
}

// OrderService manages the order lifecycle. UpdateStatus is the single
// mutation path for order progression.
type OrderService struct {
	store       OrderStore
	publisher   LifecyclePublisher
	idempotency IdempotencyStore
	taxRate     float64
	logger      *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(st OrderStore, publisher LifecyclePublisher, idempotency IdempotencyStore, taxRate float64) *OrderService {
	return &OrderService{
		store:       st,
		publisher:   publisher,
		idempotency: idempotency,
		taxRate:     taxRate,
		logger:      util.GetLogger(),
	}
}

// UpdateStatus transitions an order to newStatus. Any known status may
// be set from any other; transition legality is not validated. Stock
// and coupon side effects are guarded by atomic flag claims so they
// run at most once per order, and notifications are best-effort.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID, newStatus, actor string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus")
	defer span.End()

	if !models.KnownOrderStatuses[newStatus] {
		return nil, fmt.Errorf("unknown order status: %s", newStatus)
	}

	previous, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	audit := models.AuditEntry{
		Action:    "status_changed",
		Actor:     actor,
		Detail:    fmt.Sprintf("%s -> %s", previous.Status, newStatus),
		Timestamp: time.Now(),
	}
	order, err := s.store.SetOrderStatus(ctx, orderID, newStatus, audit)
	if err != nil {
		return nil, err
	}

	util.OrderStatusTransitionsTotal.WithLabelValues(newStatus).Inc()
	s.logger.Info("Order status updated",
		zap.String("order_id", orderID),
		zap.String("from", previous.Status),
		zap.String("to", newStatus))

	switch newStatus {
	case models.OrderStatusConfirmed:
		s.applyConfirmationEffects(ctx, order)
	case models.OrderStatusCancelled:
		s.applyCancellationEffects(ctx, order)
	}

	if notifiableStatuses[newStatus] {
		s.publishStatusNotification(ctx, order, previous.Status, newStatus)
	}

	return order, nil
}

// applyConfirmationEffects decrements stock and counts coupon usage,
// each at most once per order. The decrement itself is best-effort:
// partial bulk-write failures are logged, never surfaced.
func (s *OrderService) applyConfirmationEffects(ctx context.Context, order *models.Order) {
	id := order.ID.Hex()

	claimed, err := s.store.ClaimStockAdjustment(ctx, id)
	if err != nil {
		s.logger.Error("Failed to claim stock adjustment", zap.String("order_id", id), zap.Error(err))
	} else if claimed {
		if err := s.store.DecrementStock(ctx, order.Items); err != nil {
			s.logger.Error("Failed to decrement stock", zap.String("order_id", id), zap.Error(err))
		}
		util.StockAdjustmentsTotal.WithLabelValues("decrement").Inc()
		order.StockAdjusted = true
	}

	if order.CouponCode != "" {
		claimed, err := s.store.ClaimCouponUsage(ctx, id)
		if err != nil {
			s.logger.Error("Failed to claim coupon usage", zap.String("order_id", id), zap.Error(err))
		} else if claimed {
			if err := s.store.AdjustCouponUsage(ctx, order.CouponCode, 1); err != nil {
				s.logger.Error("Failed to count coupon usage", zap.String("order_id", id), zap.Error(err))
			}
			order.CouponUsageCounted = true
		}
	}
}

// applyCancellationEffects restores stock and coupon usage when they
// were previously adjusted (the compensating action).
func (s *OrderService) applyCancellationEffects(ctx context.Context, order *models.Order) {
	id := order.ID.Hex()

	released, err := s.store.ReleaseStockAdjustment(ctx, id)
	if err != nil {
		s.logger.Error("Failed to release stock adjustment", zap.String("order_id", id), zap.Error(err))
	} else if released {
		if err := s.store.IncrementStock(ctx, order.Items); err != nil {
			s.logger.Error("Failed to restore stock", zap.String("order_id", id), zap.Error(err))
		}
		util.StockAdjustmentsTotal.WithLabelValues("increment").Inc()
		order.StockAdjusted = false
	}

	if order.CouponCode != "" {
		released, err := s.store.ReleaseCouponUsage(ctx, id)
		if err != nil {
			s.logger.Error("Failed to release coupon usage", zap.String("order_id", id), zap.Error(err))
		} else if released {
			if err := s.store.AdjustCouponUsage(ctx, order.CouponCode, -1); err != nil {
				s.logger.Error("Failed to uncount coupon usage", zap.String("order_id", id), zap.Error(err))
			}
			order.CouponUsageCounted = false
		}
	}
}

// publishStatusNotification publishes the notification event; failure
// is swallowed and the order status still advances.
func (s *OrderService) publishStatusNotification(ctx context.Context, order *models.Order, from, to string) {
	if s.publisher == nil {
		return
	}

	event := &models.OrderStatusChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderStatusChanged,
			Timestamp: time.Now(),
		},
		OrderID:       order.ID.Hex(),
		OrderNumber:   order.OrderNumber,
		CustomerEmail: order.CustomerEmail,
		FromStatus:    from,
		ToStatus:      to,
		NotifyEmail:   true,
	}

	if err := s.publisher.PublishOrderStatusChanged(ctx, event); err != nil {
		util.NotificationPublishFailures.Inc()
		s.logger.Error("Failed to publish status notification",
			zap.String("order_id", event.OrderID), zap.Error(err))
		return
	}
	util.NotificationsPublishedTotal.Inc()
}

// GetOrder retrieves an order by ID.
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return s.store.GetOrder(ctx, orderID)
}

// ListOrders returns all orders, optionally filtered by status.
func (s *OrderService) ListOrders(ctx context.Context, status string) ([]models.Order, error) {
	return s.store.ListOrders(ctx, status)
}

// ListOrdersPage returns one page of orders plus the total count.
func (s *OrderService) ListOrdersPage(ctx context.Context, status string, page, pageSize int64) ([]models.Order, int64, error) {
	if pageSize <= 0 {
		pageSize = 25
	}
	return s.store.ListOrdersPage(ctx, status, page, pageSize)
}

// OrderItemInput is one requested line item.
type OrderItemInput struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
	Size      string `json:"size,omitempty"`
	Color     string `json:"color,omitempty"`
}

// CreateOrderRequest creates an order on a customer's behalf.
type CreateOrderRequest struct {
	CustomerName    string           `json:"customer_name" binding:"required"`
	CustomerEmail   string           `json:"customer_email" binding:"required,email"`
	CustomerPhone   string           `json:"customer_phone,omitempty"`
	ShippingAddress string           `json:"shipping_address,omitempty"`
	CouponCode      string           `json:"coupon_code,omitempty"`
	Items           []OrderItemInput `json:"items" binding:"required,min=1"`
	IdempotencyKey  string           `json:"idempotency_key,omitempty"`
}

// CreateAdminOrder creates an order with catalog snapshots for each
// line item. A repeated idempotency key returns the original order.
func (s *OrderService) CreateAdminOrder(ctx context.Context, req *CreateOrderRequest, actor string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateAdminOrder")
	defer span.End()

	if req.IdempotencyKey != "" && s.idempotency != nil {
		claimed, err := s.idempotency.ClaimIdempotencyKey(ctx, req.IdempotencyKey, "pending", 24*time.Hour)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if !claimed {
			existingID, err := s.idempotency.GetIdempotencyValue(ctx, req.IdempotencyKey)
			if err != nil {
				return nil, fmt.Errorf("failed to load idempotent order: %w", err)
			}
			if existingID != "" && existingID != "pending" {
				s.logger.Info("Duplicate order request detected",
					zap.String("idempotency_key", req.IdempotencyKey),
					zap.String("order_id", existingID))
				return s.store.GetOrder(ctx, existingID)
			}
			return nil, fmt.Errorf("order creation already in progress")
		}
	}

	items, subtotal, err := s.snapshotItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}
	tax := round2(subtotal * s.taxRate)
	total := round2(subtotal + tax)

	order := &models.Order{
		OrderNumber:     newOrderNumber(),
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		CustomerPhone:   req.CustomerPhone,
		ShippingAddress: req.ShippingAddress,
		CouponCode:      req.CouponCode,
		Items:           items,
		Subtotal:        subtotal,
		Tax:             tax,
		Total:           total,
		PaymentMethod:   models.PaymentMethodBankTransfer,
		Status:          models.OrderStatusPending,
		BalanceDue:      total,
		AuditLog: []models.AuditEntry{{
			Action:    "created",
			Actor:     actor,
			Timestamp: time.Now(),
		}},
	}

	if err := s.store.InsertOrder(ctx, order); err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.SetIdempotencyKey(ctx, req.IdempotencyKey, order.ID.Hex(), 24*time.Hour); err != nil {
			s.logger.Warn("Failed to store idempotent order id", zap.Error(err))
		}
	}

	s.logger.Info("Order created",
		zap.String("order_id", order.ID.Hex()),
		zap.String("order_number", order.OrderNumber))
	return order, nil
}

// snapshotItems resolves product snapshots for requested line items
// and computes the subtotal.
func (s *OrderService) snapshotItems(ctx context.Context, inputs []OrderItemInput) ([]models.OrderItem, float64, error) {
	ids := make([]string, len(inputs))
	for i, in := range inputs {
		ids[i] = in.ProductID
	}

	products, err := s.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, 0, err
	}

	items := make([]models.OrderItem, 0, len(inputs))
	var subtotal float64
	for _, in := range inputs {
		product, ok := products[in.ProductID]
		if !ok {
			return nil, 0, fmt.Errorf("product not found: %s", in.ProductID)
		}
		item := models.OrderItem{
			ProductID: in.ProductID,
			Name:      product.Name,
			Price:     product.Price,
			Quantity:  in.Quantity,
			Size:      in.Size,
			Color:     in.Color,
			Image:     product.Image,
		}
		items = append(items, item)
		subtotal += product.Price * float64(in.Quantity)
	}
	return items, round2(subtotal), nil
}

// EditOrderItems replaces an order's line items with fresh catalog
// snapshots and recomputed amounts.
func (s *OrderService) EditOrderItems(ctx context.Context, orderID string, inputs []OrderItemInput, actor string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.EditOrderItems")
	defer span.End()

	if len(inputs) == 0 {
		return nil, fmt.Errorf("order must contain at least one item")
	}

	items, subtotal, err := s.snapshotItems(ctx, inputs)
	if err != nil {
		return nil, err
	}
	tax := round2(subtotal * s.taxRate)
	total := round2(subtotal + tax)

	audit := models.AuditEntry{
		Action:    "items_edited",
		Actor:     actor,
		Detail:    fmt.Sprintf("%d items, total %.2f", len(items), total),
		Timestamp: time.Now(),
	}
	return s.store.ReplaceOrderItems(ctx, orderID, items, subtotal, tax, total, audit)
}

// UpdateOrderRequest updates customer-facing order fields.
type UpdateOrderRequest struct {
	CustomerName    string `json:"customer_name,omitempty"`
	CustomerEmail   string `json:"customer_email,omitempty"`
	CustomerPhone   string `json:"customer_phone,omitempty"`
	ShippingAddress string `json:"shipping_address,omitempty"`
}

// UpdateAdminOrder updates an order's contact fields.
func (s *OrderService) UpdateAdminOrder(ctx context.Context, orderID string, req *UpdateOrderRequest, actor string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateAdminOrder")
	defer span.End()

	set := contactUpdate(req)
	if len(set) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}

	audit := models.AuditEntry{
		Action:    "updated",
		Actor:     actor,
		Timestamp: time.Now(),
	}
	return s.store.UpdateOrderContact(ctx, orderID, set, audit)
}

// RecordBankTransferPayment records a received transfer, recomputes
// the balance and advances the order: confirmed when fully paid,
// awaiting_additional_payment otherwise.
func (s *OrderService) RecordBankTransferPayment(ctx context.Context, orderID string, amount float64, proofURL, actor string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.RecordBankTransferPayment")
	defer span.End()

	if amount <= 0 {
		return nil, fmt.Errorf("payment amount must be positive")
	}

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	amountPaid := round2(order.AmountPaid + amount)
	balanceDue := round2(order.Total - amountPaid)
	if balanceDue < 0 {
		balanceDue = 0
	}

	audit := models.AuditEntry{
		Action:    "payment_recorded",
		Actor:     actor,
		Detail:    fmt.Sprintf("amount %.2f, balance %.2f", amount, balanceDue),
		Timestamp: time.Now(),
	}
	order, err = s.store.RecordPayment(ctx, orderID, amountPaid, balanceDue, proofURL, audit)
	if err != nil {
		return nil, err
	}

	util.PaymentsRecordedTotal.Inc()

	if s.publisher != nil {
		event := &models.PaymentRecordedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypePaymentRecorded,
				Timestamp: time.Now(),
			},
			OrderID:    orderID,
			Amount:     amount,
			BalanceDue: balanceDue,
		}
		if err := s.publisher.PublishPaymentRecorded(ctx, event); err != nil {
			s.logger.Error("Failed to publish payment event", zap.Error(err))
		}
	}

	next := models.OrderStatusConfirmed
	if balanceDue > 0 {
		next = models.OrderStatusAwaitingAddlPay
	}
	return s.UpdateStatus(ctx, orderID, next, actor)
}

// DeleteOrder removes an order and publishes a best-effort deletion
// event.
func (s *OrderService) DeleteOrder(ctx context.Context, orderID, actor string) error {
	ctx, span := util.StartSpan(ctx, "OrderService.DeleteOrder")
	defer span.End()

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}

	if err := s.store.DeleteOrder(ctx, orderID); err != nil {
		return err
	}

	s.logger.Info("Order deleted",
		zap.String("order_id", orderID),
		zap.String("actor", actor))

	if s.publisher != nil {
		event := &models.OrderDeletedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderDeleted,
				Timestamp: time.Now(),
			},
			OrderID:     orderID,
			OrderNumber: order.OrderNumber,
		}
		if err := s.publisher.PublishOrderDeleted(ctx, event); err != nil {
			s.logger.Error("Failed to publish order deletion", zap.Error(err))
		}
	}
	return nil
}

// contactUpdate builds the $set document from the non-empty request
// fields.
func contactUpdate(req *UpdateOrderRequest) bson.D {
	set := bson.D{}
	if req.CustomerName != "" {
		set = append(set, bson.E{Key: "customerName", Value: req.CustomerName})
	}
	if req.CustomerEmail != "" {
		set = append(set, bson.E{Key: "customerEmail", Value: req.CustomerEmail})
	}
	if req.CustomerPhone != "" {
		set = append(set, bson.E{Key: "customerPhone", Value: req.CustomerPhone})
	}
	if req.ShippingAddress != "" {
		set = append(set, bson.E{Key: "shippingAddress", Value: req.ShippingAddress})
	}
	return set
}

func newOrderNumber() string {
	return "ORD-" + strings.ToUpper(uuid.New().String()[:8])
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
