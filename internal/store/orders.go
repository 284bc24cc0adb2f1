package store

import (
	"context"
	"fmt"
	"time"

	"storefront-service/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrOrderNotFound is returned when an order lookup matches nothing.
var ErrOrderNotFound = fmt.Errorf("order not found")

func orderID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("invalid order id %q: %w", id, err)
	}
	return oid, nil
}

// InsertOrder creates a new order document.
func (s *Store) InsertOrder(ctx context.Context, order *models.Order) error {
	now := time.Now()
	order.CreatedAt = now
	order.UpdatedAt = now

	res, err := s.orders().InsertOne(ctx, order)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		order.ID = oid
	}
	return nil
}

// GetOrder retrieves an order by ID.
func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	oid, err := orderID(id)
	if err != nil {
		return nil, err
	}

	var order models.Order
	err = s.orders().FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&order)
	if err == mongo.ErrNoDocuments {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &order, nil
}

// ListOrders returns orders sorted by createdAt descending, optionally
// filtered by status.
func (s *Store) ListOrders(ctx context.Context, status string) ([]models.Order, error) {
	filter := bson.D{}
	if status != "" {
		filter = append(filter, bson.E{Key: "status", Value: status})
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := s.orders().Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer cursor.Close(ctx)

	var orders []models.Order
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}
	return orders, nil
}

// ListOrdersPage returns one page of orders plus the total match count.
func (s *Store) ListOrdersPage(ctx context.Context, status string, page, pageSize int64) ([]models.Order, int64, error) {
	filter := bson.D{}
	if status != "" {
		filter = append(filter, bson.E{Key: "status", Value: status})
	}

	total, err := s.orders().CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	if page < 1 {
		page = 1
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip((page - 1) * pageSize).
		SetLimit(pageSize)

	cursor, err := s.orders().Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders page: %w", err)
	}
	defer cursor.Close(ctx)

	var orders []models.Order
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, 0, fmt.Errorf("failed to decode orders page: %w", err)
	}
	return orders, total, nil
}

// OrdersInRange returns orders created in [start, end], optionally
// restricted to the given statuses.
func (s *Store) OrdersInRange(ctx context.Context, start, end time.Time, statuses []string) ([]models.Order, error) {
	filter := rangeFilter(start, end)
	if len(statuses) > 0 {
		filter = append(filter, bson.E{Key: "status", Value: bson.D{{Key: "$in", Value: statuses}}})
	}

	cursor, err := s.orders().Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders in range: %w", err)
	}
	defer cursor.Close(ctx)

	var orders []models.Order
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("failed to decode orders in range: %w", err)
	}
	return orders, nil
}

// CountOrdersInRange counts orders created in [start, end] restricted
// to the given statuses.
func (s *Store) CountOrdersInRange(ctx context.Context, start, end time.Time, statuses []string) (int64, error) {
	filter := rangeFilter(start, end)
	if len(statuses) > 0 {
		filter = append(filter, bson.E{Key: "status", Value: bson.D{{Key: "$in", Value: statuses}}})
	}

	count, err := s.orders().CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count orders in range: %w", err)
	}
	return count, nil
}

// CountOrdersByStatus counts orders with one status.
func (s *Store) CountOrdersByStatus(ctx context.Context, status string) (int64, error) {
	count, err := s.orders().CountDocuments(ctx, bson.D{{Key: "status", Value: status}})
	if err != nil {
		return 0, fmt.Errorf("failed to count %s orders: %w", status, err)
	}
	return count, nil
}

// SetOrderStatus updates the status, bumps updatedAt and appends an
// audit entry. It returns the updated document.
func (s *Store) SetOrderStatus(ctx context.Context, id, status string, audit models.AuditEntry) (*models.Order, error) {
	oid, err := orderID(id)
	if err != nil {
		return nil, err
	}

	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "status", Value: status},
			{Key: "updatedAt", Value: time.Now()},
		}},
		{Key: "$push", Value: bson.D{{Key: "auditLog", Value: audit}}},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var order models.Order
	err = s.orders().FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: oid}}, update, opts).Decode(&order)
	if err == mongo.ErrNoDocuments {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}
	return &order, nil
}

// claimFlag atomically flips a boolean order flag from `from` to `to`.
// The flag value is part of the filter so two concurrent callers
// cannot both win.
func (s *Store) claimFlag(ctx context.Context, id, flag string, from, to bool) (bool, error) {
	oid, err := orderID(id)
	if err != nil {
		return false, err
	}

	res, err := s.orders().UpdateOne(ctx,
		bson.D{{Key: "_id", Value: oid}, {Key: flag, Value: from}},
		bson.D{{Key: "$set", Value: bson.D{{Key: flag, Value: to}}}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to update %s flag: %w", flag, err)
	}
	return res.ModifiedCount == 1, nil
}

// ClaimStockAdjustment marks the order's stock as adjusted. Returns
// false when another caller already claimed it.
func (s *Store) ClaimStockAdjustment(ctx context.Context, id string) (bool, error) {
	return s.claimFlag(ctx, id, "stockAdjusted", false, true)
}

// ReleaseStockAdjustment clears the stock-adjusted flag. Returns false
// when the flag was not set.
func (s *Store) ReleaseStockAdjustment(ctx context.Context, id string) (bool, error) {
	return s.claimFlag(ctx, id, "stockAdjusted", true, false)
}

// ClaimCouponUsage marks the order's coupon usage as counted.
func (s *Store) ClaimCouponUsage(ctx context.Context, id string) (bool, error) {
	return s.claimFlag(ctx, id, "couponUsageCounted", false, true)
}

// ReleaseCouponUsage clears the coupon-usage-counted flag.
func (s *Store) ReleaseCouponUsage(ctx context.Context, id string) (bool, error) {
	return s.claimFlag(ctx, id, "couponUsageCounted", true, false)
}

// ReplaceOrderItems swaps the line items and recomputed amounts.
func (s *Store) ReplaceOrderItems(ctx context.Context, id string, items []models.OrderItem, subtotal, tax, total float64, audit models.AuditEntry) (*models.Order, error) {
	oid, err := orderID(id)
	if err != nil {
		return nil, err
	}

	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "items", Value: items},
			{Key: "subtotal", Value: subtotal},
			{Key: "tax", Value: tax},
			{Key: "total", Value: total},
			{Key: "updatedAt", Value: time.Now()},
		}},
		{Key: "$push", Value: bson.D{{Key: "auditLog", Value: audit}}},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var order models.Order
	err = s.orders().FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: oid}}, update, opts).Decode(&order)
	if err == mongo.ErrNoDocuments {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to replace order items: %w", err)
	}
	return &order, nil
}

// UpdateOrderContact updates the customer-facing order fields.
func (s *Store) UpdateOrderContact(ctx context.Context, id string, set bson.D, audit models.AuditEntry) (*models.Order, error) {
	oid, err := orderID(id)
	if err != nil {
		return nil, err
	}

	set = append(set, bson.E{Key: "updatedAt", Value: time.Now()})
	update := bson.D{
		{Key: "$set", Value: set},
		{Key: "$push", Value: bson.D{{Key: "auditLog", Value: audit}}},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var order models.Order
	err = s.orders().FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: oid}}, update, opts).Decode(&order)
	if err == mongo.ErrNoDocuments {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update order: %w", err)
	}
	return &order, nil
}

// RecordPayment adds a received amount, recomputes the balance and
// stores the transfer proof.
func (s *Store) RecordPayment(ctx context.Context, id string, amountPaid, balanceDue float64, proofURL string, audit models.AuditEntry) (*models.Order, error) {
	set := bson.D{
		{Key: "amountPaid", Value: amountPaid},
		{Key: "balanceDue", Value: balanceDue},
	}
	if proofURL != "" {
		set = append(set, bson.E{Key: "transferProofUrl", Value: proofURL})
	}
	return s.UpdateOrderContact(ctx, id, set, audit)
}

// DeleteOrder removes an order document.
func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	oid, err := orderID(id)
	if err != nil {
		return err
	}

	res, err := s.orders().DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// OrderTotals aggregates one customer's order history.
type OrderTotals struct {
	Email string  `bson:"_id" json:"email"`
	Count int64   `bson:"count" json:"count"`
	Sum   float64 `bson:"sum" json:"sum"`
}

// OrderTotalsByEmail returns per-customer order count and spend for
// the given emails.
func (s *Store) OrderTotalsByEmail(ctx context.Context, emails []string) (map[string]OrderTotals, error) {
	if len(emails) == 0 {
		return map[string]OrderTotals{}, nil
	}

	pipeline := BuildPipeline(
		MatchStage{Filter: bson.D{{Key: "customerEmail", Value: bson.D{{Key: "$in", Value: emails}}}}},
		GroupStage{
			Key: "$customerEmail",
			Accums: []Accumulator{
				{Name: "count", Op: "$sum", Expr: 1},
				{Name: "sum", Op: "$sum", Expr: "$total"},
			},
		},
	)

	cursor, err := s.orders().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate order totals: %w", err)
	}
	defer cursor.Close(ctx)

	totals := make(map[string]OrderTotals)
	for cursor.Next(ctx) {
		var row OrderTotals
		if err := cursor.Decode(&row); err != nil {
			continue
		}
		totals[row.Email] = row
	}
	return totals, nil
}

// RecentOrdersByEmail returns the most recent orders for one
// customer, newest first.
func (s *Store) RecentOrdersByEmail(ctx context.Context, email string, limit int64) ([]models.Order, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(limit)

	cursor, err := s.orders().Find(ctx, bson.D{{Key: "customerEmail", Value: email}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query customer orders: %w", err)
	}
	defer cursor.Close(ctx)

	var orders []models.Order
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("failed to decode customer orders: %w", err)
	}
	return orders, nil
}

// PurchasedQuantities sums line-item quantities per product for orders
// created in [start, end].
func (s *Store) PurchasedQuantities(ctx context.Context, start, end time.Time) (map[string]int64, error) {
	pipeline := BuildPipeline(
		MatchStage{Filter: rangeFilter(start, end)},
		UnwindStage{Path: "$items"},
		GroupStage{
			Key:    "$items.productId",
			Accums: []Accumulator{{Name: "quantity", Op: "$sum", Expr: "$items.quantity"}},
		},
	)

	cursor, err := s.orders().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate purchased quantities: %w", err)
	}
	defer cursor.Close(ctx)

	quantities := make(map[string]int64)
	for cursor.Next(ctx) {
		var row struct {
			ProductID string `bson:"_id"`
			Quantity  int64  `bson:"quantity"`
		}
		if err := cursor.Decode(&row); err != nil {
			continue
		}
		quantities[row.ProductID] = row.Quantity
	}
	return quantities, nil
}

// FindQualifyingOrder looks for an order by the customer's email that
// contains the product, optionally narrowed to one order ID or number.
func (s *Store) FindQualifyingOrder(ctx context.Context, email, productID, orderRef string) (*models.Order, error) {
	filter := bson.D{
		{Key: "customerEmail", Value: email},
		{Key: "items.productId", Value: productID},
	}
	if orderRef != "" {
		if oid, err := primitive.ObjectIDFromHex(orderRef); err == nil {
			filter = append(filter, bson.E{Key: "_id", Value: oid})
		} else {
			filter = append(filter, bson.E{Key: "orderNumber", Value: orderRef})
		}
	}

	var order models.Order
	err := s.orders().FindOne(ctx, filter).Decode(&order)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find qualifying order: %w", err)
	}
	return &order, nil
}
