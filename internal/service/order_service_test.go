package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func init() {
	_ = util.InitLogger("development")
}

// fakeOrderStore is an in-memory OrderStore.
type fakeOrderStore struct {
	orders      map[string]*models.Order
	products    map[string]models.Product
	couponUsage map[string]int
	decrements  int
	increments  int
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{
		orders:      make(map[string]*models.Order),
		products:    make(map[string]models.Product),
		couponUsage: make(map[string]int),
	}
}

func (f *fakeOrderStore) InsertOrder(ctx context.Context, order *models.Order) error {
	order.ID = primitive.NewObjectID()
	now := time.Now()
	order.CreatedAt = now
	order.UpdatedAt = now
	copied := *order
	f.orders[order.ID.Hex()] = &copied
	return nil
}

func (f *fakeOrderStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, store.ErrOrderNotFound
	}
	copied := *order
	return &copied, nil
}

func (f *fakeOrderStore) ListOrders(ctx context.Context, status string) ([]models.Order, error) {
	var out []models.Order
	for _, o := range f.orders {
		if status == "" || o.Status == status {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeOrderStore) ListOrdersPage(ctx context.Context, status string, page, pageSize int64) ([]models.Order, int64, error) {
	orders, err := f.ListOrders(ctx, status)
	return orders, int64(len(orders)), err
}

func (f *fakeOrderStore) SetOrderStatus(ctx context.Context, id, status string, audit models.AuditEntry) (*models.Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, store.ErrOrderNotFound
	}
	order.Status = status
	order.AuditLog = append(order.AuditLog, audit)
	copied := *order
	return &copied, nil
}

func (f *fakeOrderStore) claimFlag(id string, read func(*models.Order) bool, write func(*models.Order, bool), want bool) (bool, error) {
	order, ok := f.orders[id]
	if !ok {
		return false, store.ErrOrderNotFound
	}
	if read(order) == want {
		return false, nil
	}
	write(order, want)
	return true, nil
}

func (f *fakeOrderStore) ClaimStockAdjustment(ctx context.Context, id string) (bool, error) {
	return f.claimFlag(id, func(o *models.Order) bool { return o.StockAdjusted },
		func(o *models.Order, v bool) { o.StockAdjusted = v }, true)
}

func (f *fakeOrderStore) ReleaseStockAdjustment(ctx context.Context, id string) (bool, error) {
	return f.claimFlag(id, func(o *models.Order) bool { return o.StockAdjusted },
		func(o *models.Order, v bool) { o.StockAdjusted = v }, false)
}

func (f *fakeOrderStore) ClaimCouponUsage(ctx context.Context, id string) (bool, error) {
	return f.claimFlag(id, func(o *models.Order) bool { return o.CouponUsageCounted },
		func(o *models.Order, v bool) { o.CouponUsageCounted = v }, true)
}

func (f *fakeOrderStore) ReleaseCouponUsage(ctx context.Context, id string) (bool, error) {
	return f.claimFlag(id, func(o *models.Order) bool { return o.CouponUsageCounted },
		func(o *models.Order, v bool) { o.CouponUsageCounted = v }, false)
}

func (f *fakeOrderStore) ReplaceOrderItems(ctx context.Context, id string, items []models.OrderItem, subtotal, tax, total float64, audit models.AuditEntry) (*models.Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, store.ErrOrderNotFound
	}
	order.Items = items
	order.Subtotal = subtotal
	order.Tax = tax
	order.Total = total
	order.AuditLog = append(order.AuditLog, audit)
	copied := *order
	return &copied, nil
}

func (f *fakeOrderStore) UpdateOrderContact(ctx context.Context, id string, set bson.D, audit models.AuditEntry) (*models.Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, store.ErrOrderNotFound
	}
	for _, e := range set {
		switch e.Key {
		case "customerName":
			order.CustomerName = e.Value.(string)
		case "customerEmail":
			order.CustomerEmail = e.Value.(string)
		case "customerPhone":
			order.CustomerPhone = e.Value.(string)
		case "shippingAddress":
			order.ShippingAddress = e.Value.(string)
		}
	}
	order.AuditLog = append(order.AuditLog, audit)
	copied := *order
	return &copied, nil
}

func (f *fakeOrderStore) RecordPayment(ctx context.Context, id string, amountPaid, balanceDue float64, proofURL string, audit models.AuditEntry) (*models.Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, store.ErrOrderNotFound
	}
	order.AmountPaid = amountPaid
	order.BalanceDue = balanceDue
	if proofURL != "" {
		order.TransferProofURL = proofURL
	}
	order.AuditLog = append(order.AuditLog, audit)
	copied := *order
	return &copied, nil
}

func (f *fakeOrderStore) DeleteOrder(ctx context.Context, id string) error {
	if _, ok := f.orders[id]; !ok {
		return store.ErrOrderNotFound
	}
	delete(f.orders, id)
	return nil
}

func (f *fakeOrderStore) GetProductsByIDs(ctx context.Context, ids []string) (map[string]models.Product, error) {
	out := make(map[string]models.Product)
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (f *fakeOrderStore) DecrementStock(ctx context.Context, items []models.OrderItem) error {
	f.decrements++
	for _, item := range items {
		p := f.products[item.ProductID]
		p.Stock -= item.Quantity
		if p.Stock < 0 {
			p.Stock = 0
		}
		f.products[item.ProductID] = p
	}
	return nil
}

func (f *fakeOrderStore) IncrementStock(ctx context.Context, items []models.OrderItem) error {
	f.increments++
	for _, item := range items {
		p := f.products[item.ProductID]
		p.Stock += item.Quantity
		f.products[item.ProductID] = p
	}
	return nil
}

func (f *fakeOrderStore) AdjustCouponUsage(ctx context.Context, code string, delta int) error {
	f.couponUsage[code] += delta
	return nil
}

// fakePublisher captures published lifecycle events.
type fakePublisher struct {
	statusEvents  []*models.OrderStatusChangedEvent
	deleteEvents  []*models.OrderDeletedEvent
	paymentEvents []*models.PaymentRecordedEvent
	fail          bool
}

func (f *fakePublisher) PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	if f.fail {
		return fmt.Errorf("broker down")
	}
	f.statusEvents = append(f.statusEvents, event)
	return nil
}

func (f *fakePublisher) PublishOrderDeleted(ctx context.Context, event *models.OrderDeletedEvent) error {
	f.deleteEvents = append(f.deleteEvents, event)
	return nil
}

func (f *fakePublisher) PublishPaymentRecorded(ctx context.Context, event *models.PaymentRecordedEvent) error {
	f.paymentEvents = append(f.paymentEvents, event)
	return nil
}

// fakeIdempotency is an in-memory IdempotencyStore.
type fakeIdempotency struct {
	keys map[string]string
}

func newFakeIdempotency() *fakeIdempotency {
	return &fakeIdempotency{keys: make(map[string]string)}
}

func (f *fakeIdempotency) ClaimIdempotencyKey(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if _, ok := f.keys[key]; ok {
		return false, nil
	}
	f.keys[key] = value
	return true, nil
}

func (f *fakeIdempotency) GetIdempotencyValue(ctx context.Context, key string) (string, error) {
	return f.keys[key], nil
}

func (f *fakeIdempotency) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	f.keys[key] = value.(string)
	return nil
}

func newTestOrderService(st *fakeOrderStore, pub *fakePublisher, idem *fakeIdempotency) *OrderService {
	var publisher LifecyclePublisher
	if pub != nil {
		publisher = pub
	}
	var idempotency IdempotencyStore
	if idem != nil {
		idempotency = idem
	}
	return NewOrderService(st, publisher, idempotency, 0.1)
}

func seedProducts(st *fakeOrderStore) {
	st.products["shirt"] = models.Product{ID: "shirt", Name: "Shirt", Price: 100, Stock: 10, Image: "shirt.jpg"}
	st.products["cap"] = models.Product{ID: "cap", Name: "Cap", Price: 50, Stock: 5}
}

func TestCreateAdminOrderComputesTotals(t *testing.T) {
	st := newFakeOrderStore()
	seedProducts(st)
	svc := newTestOrderService(st, nil, nil)

	order, err := svc.CreateAdminOrder(context.Background(), &CreateOrderRequest{
		CustomerName:  "Ana",
		CustomerEmail: "ana@example.com",
		Items: []OrderItemInput{
			{ProductID: "shirt", Quantity: 2},
			{ProductID: "cap", Quantity: 1},
		},
	}, "admin")
	require.NoError(t, err)

	assert.Equal(t, 250.0, order.Subtotal)
	assert.Equal(t, 25.0, order.Tax)
	assert.Equal(t, 275.0, order.Total)
	assert.Equal(t, 275.0, order.BalanceDue)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.PaymentMethodBankTransfer, order.PaymentMethod)
	assert.True(t, strings.HasPrefix(order.OrderNumber, "ORD-"))

	// line items carry catalog snapshots
	require.Len(t, order.Items, 2)
	assert.Equal(t, "Shirt", order.Items[0].Name)
	assert.Equal(t, 100.0, order.Items[0].Price)
	assert.Equal(t, "shirt.jpg", order.Items[0].Image)
}

func TestCreateAdminOrderUnknownProduct(t *testing.T) {
	st := newFakeOrderStore()
	svc := newTestOrderService(st, nil, nil)

	_, err := svc.CreateAdminOrder(context.Background(), &CreateOrderRequest{
		CustomerName:  "Ana",
		CustomerEmail: "ana@example.com",
		Items:         []OrderItemInput{{ProductID: "ghost", Quantity: 1}},
	}, "admin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "product not found")
}

func TestCreateAdminOrderIdempotentReplay(t *testing.T) {
	st := newFakeOrderStore()
	seedProducts(st)
	idem := newFakeIdempotency()
	svc := newTestOrderService(st, nil, idem)

	req := &CreateOrderRequest{
		CustomerName:   "Ana",
		CustomerEmail:  "ana@example.com",
		Items:          []OrderItemInput{{ProductID: "shirt", Quantity: 1}},
		IdempotencyKey: "req-1",
	}

	first, err := svc.CreateAdminOrder(context.Background(), req, "admin")
	require.NoError(t, err)

	second, err := svc.CreateAdminOrder(context.Background(), req, "admin")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, st.orders, 1)
}

func TestConfirmAppliesEffectsOnce(t *testing.T) {
	st := newFakeOrderStore()
	seedProducts(st)
	svc := newTestOrderService(st, nil, nil)

	order, err := svc.CreateAdminOrder(context.Background(), &CreateOrderRequest{
		CustomerName:  "Ana",
		CustomerEmail: "ana@example.com",
		CouponCode:    "SAVE10",
		Items:         []OrderItemInput{{ProductID: "shirt", Quantity: 2}},
	}, "admin")
	require.NoError(t, err)
	id := order.ID.Hex()

	_, err = svc.UpdateStatus(context.Background(), id, models.OrderStatusConfirmed, "admin")
	require.NoError(t, err)
	assert.Equal(t, 8, st.products["shirt"].Stock)
	assert.Equal(t, 1, st.couponUsage["SAVE10"])

	// confirming again is a no-op for stock and coupon
	_, err = svc.UpdateStatus(context.Background(), id, models.OrderStatusConfirmed, "admin")
	require.NoError(t, err)
	assert.Equal(t, 1, st.decrements)
	assert.Equal(t, 8, st.products["shirt"].Stock)
	assert.Equal(t, 1, st.couponUsage["SAVE10"])
}

func TestCancelRestoresStockAndCoupon(t *testing.T) {
	st := newFakeOrderStore()
	seedProducts(st)
	svc := newTestOrderService(st, nil, nil)

	order, err := svc.CreateAdminOrder(context.Background(), &CreateOrderRequest{
		CustomerName:  "Ana",
		CustomerEmail: "ana@example.com",
		CouponCode:    "SAVE10",
		Items:         []OrderItemInput{{ProductID: "shirt", Quantity: 2}},
	}, "admin")
	require.NoError(t, err)
	id := order.ID.Hex()

	_, err = svc.UpdateStatus(context.Background(), id, models.OrderStatusConfirmed, "admin")
	require.NoError(t, err)
	_, err = svc.UpdateStatus(context.Background(), id, models.OrderStatusCancelled, "admin")
	require.NoError(t, err)

	assert.Equal(t, 10, st.products["shirt"].Stock)
	assert.Equal(t, 0, st.couponUsage["SAVE10"])
	assert.Equal(t, 1, st.decrements)
	assert.Equal(t, 1, st.increments)
}

func TestCancelWithoutConfirmSkipsRestore(t *testing.T) {
	st := newFakeOrderStore()
	seedProducts(st)
	svc := newTestOrderService(st, nil, nil)

	order, err := svc.CreateAdminOrder(context.Background(), &CreateOrderRequest{
		CustomerName:  "Ana",
		CustomerEmail: "ana@example.com",
		Items:         []OrderItemInput{{ProductID: "shirt", Quantity: 2}},
	}, "admin")
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), order.ID.Hex(), models.OrderStatusCancelled, "admin")
	require.NoError(t, err)

	assert.Equal(t, 0, st.increments)
	assert.Equal(t, 10, st.products["shirt"].Stock)
}

func TestUpdateStatusUnknown(t *testing.T) {
	st := newFakeOrderStore()
	svc := newTestOrderService(st, nil, nil)

	_, err := svc.UpdateStatus(context.Background(), "whatever", "teleported", "admin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown order status")
}

func TestUpdateStatusPublishesNotification(t *testing.T) {
	st := newFakeOrderStore()
	seedProducts(st)
	pub := &fakePublisher{}
	svc := newTestOrderService(st, pub, nil)

	order, err := svc.CreateAdminOrder(context.Background(), &CreateOrderRequest{
		CustomerName:  "Ana",
		CustomerEmail: "ana@example.com",
		Items:         []OrderItemInput{{ProductID: "shirt", Quantity: 1}},
	}, "admin")
	require.NoError(t, err)
	id := order.ID.Hex()

	// confirmed is not a notifiable transition
	_, err = svc.UpdateStatus(context.Background(), id, models.OrderStatusConfirmed, "admin")
	require.NoError(t, err)
	assert.Empty(t, pub.statusEvents)

	_, err = svc.UpdateStatus(context.Background(), id, models.OrderStatusShipped, "admin")
	require.NoError(t, err)
	require.Len(t, pub.statusEvents, 1)
	assert.Equal(t, models.OrderStatusConfirmed, pub.statusEvents[0].FromStatus)
	assert.Equal(t, models.OrderStatusShipped, pub.statusEvents[0].ToStatus)
	assert.Equal(t, "ana@example.com", pub.statusEvents[0].CustomerEmail)
}

func TestUpdateStatusSurvivesPublishFailure(t *testing.T) {
	st := newFakeOrderStore()
	seedProducts(st)
	pub := &fakePublisher{fail: true}
	svc := newTestOrderService(st, pub, nil)

	order, err := svc.CreateAdminOrder(context.Background(), &CreateOrderRequest{
		CustomerName:  "Ana",
		CustomerEmail: "ana@example.com",
		Items:         []OrderItemInput{{ProductID: "shirt", Quantity: 1}},
	}, "admin")
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(context.Background(), order.ID.Hex(), models.OrderStatusShipped, "admin")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, updated.Status)
}

func TestRecordPaymentPartialThenFull(t *testing.T) {
	st := newFakeOrderStore()
	seedProducts(st)
	svc := newTestOrderService(st, nil, nil)

	order, err := svc.CreateAdminOrder(context.Background(), &CreateOrderRequest{
		CustomerName:  "Ana",
		CustomerEmail: "ana@example.com",
		Items: []OrderItemInput{
			{ProductID: "shirt", Quantity: 2},
			{ProductID: "cap", Quantity: 1},
		},
	}, "admin")
	require.NoError(t, err)
	id := order.ID.Hex()

	partial, err := svc.RecordBankTransferPayment(context.Background(), id, 100, "proof1.jpg", "admin")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusAwaitingAddlPay, partial.Status)

	stored, err := svc.GetOrder(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 100.0, stored.AmountPaid)
	assert.Equal(t, 175.0, stored.BalanceDue)
	assert.Equal(t, "proof1.jpg", stored.TransferProofURL)

	full, err := svc.RecordBankTransferPayment(context.Background(), id, 175, "", "admin")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, full.Status)

	stored, err = svc.GetOrder(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 275.0, stored.AmountPaid)
	assert.Equal(t, 0.0, stored.BalanceDue)
	// full payment confirmed the order, so stock was adjusted
	assert.Equal(t, 1, st.decrements)
}

func TestRecordPaymentRejectsNonPositive(t *testing.T) {
	st := newFakeOrderStore()
	svc := newTestOrderService(st, nil, nil)

	_, err := svc.RecordBankTransferPayment(context.Background(), "id", 0, "", "admin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be positive")
}

func TestEditOrderItemsRecomputesTotals(t *testing.T) {
	st := newFakeOrderStore()
	seedProducts(st)
	svc := newTestOrderService(st, nil, nil)

	order, err := svc.CreateAdminOrder(context.Background(), &CreateOrderRequest{
		CustomerName:  "Ana",
		CustomerEmail: "ana@example.com",
		Items:         []OrderItemInput{{ProductID: "shirt", Quantity: 1}},
	}, "admin")
	require.NoError(t, err)

	updated, err := svc.EditOrderItems(context.Background(), order.ID.Hex(), []OrderItemInput{
		{ProductID: "cap", Quantity: 3},
	}, "admin")
	require.NoError(t, err)

	require.Len(t, updated.Items, 1)
	assert.Equal(t, "cap", updated.Items[0].ProductID)
	assert.Equal(t, 150.0, updated.Subtotal)
	assert.Equal(t, 15.0, updated.Tax)
	assert.Equal(t, 165.0, updated.Total)
}

func TestEditOrderItemsRejectsEmpty(t *testing.T) {
	st := newFakeOrderStore()
	svc := newTestOrderService(st, nil, nil)

	_, err := svc.EditOrderItems(context.Background(), "id", nil, "admin")
	require.Error(t, err)
}

func TestDeleteOrderPublishesEvent(t *testing.T) {
	st := newFakeOrderStore()
	seedProducts(st)
	pub := &fakePublisher{}
	svc := newTestOrderService(st, pub, nil)

	order, err := svc.CreateAdminOrder(context.Background(), &CreateOrderRequest{
		CustomerName:  "Ana",
		CustomerEmail: "ana@example.com",
		Items:         []OrderItemInput{{ProductID: "shirt", Quantity: 1}},
	}, "admin")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteOrder(context.Background(), order.ID.Hex(), "admin"))
	assert.Empty(t, st.orders)
	require.Len(t, pub.deleteEvents, 1)
	assert.Equal(t, order.OrderNumber, pub.deleteEvents[0].OrderNumber)
}
