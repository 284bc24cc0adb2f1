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

// Review lookup errors
var (
	ErrReviewNotFound  = fmt.Errorf("review not found")
	ErrDuplicateReview = fmt.Errorf("review already submitted for this product")
)

// InsertReview persists a new review. The unique productId+customerId
// index rejects a second review by the same customer.
func (s *Store) InsertReview(ctx context.Context, review *models.Review) error {
	now := time.Now()
	review.CreatedAt = now
	review.UpdatedAt = now

	res, err := s.reviews().InsertOne(ctx, review)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateReview
	}
	if err != nil {
		return fmt.Errorf("failed to insert review: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		review.ID = oid
	}
	return nil
}

// FindReview returns the review for one (product, customer) pair, or
// nil when none exists.
func (s *Store) FindReview(ctx context.Context, productID, customerID string) (*models.Review, error) {
	var review models.Review
	err := s.reviews().FindOne(ctx, bson.D{
		{Key: "productId", Value: productID},
		{Key: "customerId", Value: customerID},
	}).Decode(&review)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find review: %w", err)
	}
	return &review, nil
}

// ListProductReviews returns a product's reviews with one status,
// newest first.
func (s *Store) ListProductReviews(ctx context.Context, productID, status string) ([]models.Review, error) {
	filter := bson.D{{Key: "productId", Value: productID}}
	if status != "" {
		filter = append(filter, bson.E{Key: "status", Value: status})
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := s.reviews().Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list product reviews: %w", err)
	}
	defer cursor.Close(ctx)

	var reviews []models.Review
	if err := cursor.All(ctx, &reviews); err != nil {
		return nil, fmt.Errorf("failed to decode product reviews: %w", err)
	}
	return reviews, nil
}

// ListReviewsByStatus returns all reviews with one status, oldest first
// (moderation queue order).
func (s *Store) ListReviewsByStatus(ctx context.Context, status string) ([]models.Review, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := s.reviews().Find(ctx, bson.D{{Key: "status", Value: status}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer cursor.Close(ctx)

	var reviews []models.Review
	if err := cursor.All(ctx, &reviews); err != nil {
		return nil, fmt.Errorf("failed to decode reviews: %w", err)
	}
	return reviews, nil
}

// SetReviewModeration applies a moderation decision and returns the
// updated review.
func (s *Store) SetReviewModeration(ctx context.Context, id, status, moderatedBy, rejectionReason string) (*models.Review, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid review id %q: %w", id, err)
	}

	now := time.Now()
	set := bson.D{
		{Key: "status", Value: status},
		{Key: "moderatedBy", Value: moderatedBy},
		{Key: "moderatedAt", Value: now},
		{Key: "updatedAt", Value: now},
	}
	if rejectionReason != "" {
		set = append(set, bson.E{Key: "rejectionReason", Value: rejectionReason})
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var review models.Review
	err = s.reviews().FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "$set", Value: set}},
		opts,
	).Decode(&review)
	if err == mongo.ErrNoDocuments {
		return nil, ErrReviewNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to moderate review: %w", err)
	}
	return &review, nil
}

// ApprovedRatings returns the rating values of all currently-approved
// reviews for one product.
func (s *Store) ApprovedRatings(ctx context.Context, productID string) ([]int, error) {
	filter := bson.D{
		{Key: "productId", Value: productID},
		{Key: "status", Value: models.ReviewStatusApproved},
	}

	opts := options.Find().SetProjection(bson.D{{Key: "rating", Value: 1}})
	cursor, err := s.reviews().Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query approved ratings: %w", err)
	}
	defer cursor.Close(ctx)

	var ratings []int
	for cursor.Next(ctx) {
		var row struct {
			Rating int `bson:"rating"`
		}
		if err := cursor.Decode(&row); err != nil {
			continue
		}
		ratings = append(ratings, row.Rating)
	}
	return ratings, nil
}
