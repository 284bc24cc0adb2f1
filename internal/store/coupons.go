package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AdjustCouponUsage changes a coupon's usage count by delta,
// upserting the coupon document on first use.
func (s *Store) AdjustCouponUsage(ctx context.Context, code string, delta int) error {
	if code == "" {
		return nil
	}

	opts := options.Update().SetUpsert(true)
	_, err := s.coupons().UpdateOne(ctx,
		bson.D{{Key: "_id", Value: code}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "usageCount", Value: delta}}}},
		opts,
	)
	if err != nil {
		return fmt.Errorf("failed to adjust coupon usage: %w", err)
	}
	return nil
}
