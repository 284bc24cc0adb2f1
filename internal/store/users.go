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

// ErrUserNotFound is returned when a user lookup matches nothing.
var ErrUserNotFound = fmt.Errorf("user not found")

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.users().FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// CountUsers counts all registered users.
func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	count, err := s.users().CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// CountUsersSince counts users created at or after t.
func (s *Store) CountUsersSince(ctx context.Context, t time.Time) (int64, error) {
	count, err := s.users().CountDocuments(ctx,
		bson.D{{Key: "createdAt", Value: bson.D{{Key: "$gte", Value: t}}}})
	if err != nil {
		return 0, fmt.Errorf("failed to count new users: %w", err)
	}
	return count, nil
}

// SignupsInRange returns the signup timestamps in [start, end].
func (s *Store) SignupsInRange(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	opts := options.Find().SetProjection(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := s.users().Find(ctx, rangeFilter(start, end), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query signups: %w", err)
	}
	defer cursor.Close(ctx)

	var signups []time.Time
	for cursor.Next(ctx) {
		var row struct {
			CreatedAt time.Time `bson:"createdAt"`
		}
		if err := cursor.Decode(&row); err != nil {
			continue
		}
		signups = append(signups, row.CreatedAt)
	}
	return signups, nil
}

func userSearchFilter(query, country string) bson.D {
	filter := bson.D{}
	if query != "" {
		regex := primitive.Regex{Pattern: query, Options: "i"}
		filter = append(filter, bson.E{Key: "$or", Value: bson.A{
			bson.D{{Key: "name", Value: regex}},
			bson.D{{Key: "email", Value: regex}},
		}})
	}
	if country != "" {
		filter = append(filter, bson.E{Key: "country", Value: country})
	}
	return filter
}

// SearchUsers returns one page of users matching the name/email regex
// and country filter, sorted by createdAt descending, plus the total
// match count.
func (s *Store) SearchUsers(ctx context.Context, query, country string, page, pageSize int64) ([]models.User, int64, error) {
	filter := userSearchFilter(query, country)

	total, err := s.users().CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count matching users: %w", err)
	}

	if page < 1 {
		page = 1
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip((page - 1) * pageSize).
		SetLimit(pageSize)

	cursor, err := s.users().Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search users: %w", err)
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, 0, fmt.Errorf("failed to decode users: %w", err)
	}
	return users, total, nil
}

// SearchAllUsers returns every user matching the filter, sorted by
// createdAt descending (export path, no pagination).
func (s *Store) SearchAllUsers(ctx context.Context, query, country string) ([]models.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := s.users().Find(ctx, userSearchFilter(query, country), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	return users, nil
}
