package store

import (
	"context"
	"fmt"

	"storefront-service/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrProductNotFound is returned when a product lookup matches nothing.
var ErrProductNotFound = fmt.Errorf("product not found")

// GetProduct retrieves a product by ID.
func (s *Store) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := s.products().FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&product)
	if err == mongo.ErrNoDocuments {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &product, nil
}

// GetProductsByIDs retrieves products by ID, keyed by ID. Missing
// products are simply absent from the result.
func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]models.Product, error) {
	if len(ids) == 0 {
		return map[string]models.Product{}, nil
	}

	cursor, err := s.products().Find(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}})
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer cursor.Close(ctx)

	products := make(map[string]models.Product)
	for cursor.Next(ctx) {
		var p models.Product
		if err := cursor.Decode(&p); err != nil {
			continue
		}
		products[p.ID] = p
	}
	return products, nil
}

// DecrementStock decrements each line item's product stock by its
// quantity, clamped at zero. The bulk write is unordered: a failing
// item does not block the remaining ones, and partial failures are
// not surfaced to the caller.
func (s *Store) DecrementStock(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}

	writes := make([]mongo.WriteModel, 0, len(items))
	for _, item := range items {
		update := bson.A{bson.D{{Key: "$set", Value: bson.D{
			{Key: "stock", Value: bson.D{{Key: "$max", Value: bson.A{
				0,
				bson.D{{Key: "$subtract", Value: bson.A{"$stock", item.Quantity}}},
			}}}},
		}}}}

		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.D{{Key: "_id", Value: item.ProductID}}).
			SetUpdate(update))
	}

	opts := options.BulkWrite().SetOrdered(false)
	if _, err := s.products().BulkWrite(ctx, writes, opts); err != nil {
		return fmt.Errorf("failed to decrement stock: %w", err)
	}
	return nil
}

// IncrementStock restores each line item's product stock by its
// quantity (the compensating action for a cancelled order).
func (s *Store) IncrementStock(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}

	writes := make([]mongo.WriteModel, 0, len(items))
	for _, item := range items {
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.D{{Key: "_id", Value: item.ProductID}}).
			SetUpdate(bson.D{{Key: "$inc", Value: bson.D{{Key: "stock", Value: item.Quantity}}}}))
	}

	opts := options.BulkWrite().SetOrdered(false)
	if _, err := s.products().BulkWrite(ctx, writes, opts); err != nil {
		return fmt.Errorf("failed to increment stock: %w", err)
	}
	return nil
}

// UpdateProductRating stores the recomputed rating aggregate.
func (s *Store) UpdateProductRating(ctx context.Context, productID string, rating float64, reviewCount int) error {
	_, err := s.products().UpdateOne(ctx,
		bson.D{{Key: "_id", Value: productID}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "rating", Value: rating},
			{Key: "reviewCount", Value: reviewCount},
		}}},
	)
	if err != nil {
		return fmt.Errorf("failed to update product rating: %w", err)
	}
	return nil
}

// CountLowStockProducts counts products at or below the threshold.
func (s *Store) CountLowStockProducts(ctx context.Context, threshold int) (int64, error) {
	count, err := s.products().CountDocuments(ctx,
		bson.D{{Key: "stock", Value: bson.D{{Key: "$lte", Value: threshold}}}})
	if err != nil {
		return 0, fmt.Errorf("failed to count low-stock products: %w", err)
	}
	return count, nil
}
