package store

import (
	"context"
	"fmt"
	"time"

	"storefront-service/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// InsertEvent appends a single interaction event. CreatedAt is
// assigned here; events are never updated or deleted.
func (s *Store) InsertEvent(ctx context.Context, event *models.Event) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	event.CreatedAt = time.Now()

	if _, err := s.events().InsertOne(ctx, event); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// InsertEvents appends a batch of interaction events.
func (s *Store) InsertEvents(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}

	now := time.Now()
	docs := make([]interface{}, len(events))
	for i := range events {
		events[i].CreatedAt = now
		docs[i] = events[i]
	}

	if _, err := s.events().InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert events: %w", err)
	}
	return nil
}

// EventsInRange returns events in [start, end], optionally restricted
// to the given event types.
func (s *Store) EventsInRange(ctx context.Context, start, end time.Time, types ...string) ([]models.Event, error) {
	filter := rangeFilter(start, end)
	if len(types) > 0 {
		filter = append(filter, bson.E{Key: "eventType", Value: bson.D{{Key: "$in", Value: types}}})
	}

	cursor, err := s.events().Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []models.Event
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}
	return events, nil
}

// CountEvents counts events of one type in [start, end].
func (s *Store) CountEvents(ctx context.Context, eventType string, start, end time.Time) (int64, error) {
	filter := rangeFilter(start, end)
	filter = append(filter, bson.E{Key: "eventType", Value: eventType})

	count, err := s.events().CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s events: %w", eventType, err)
	}
	return count, nil
}

// DistinctUserIDs returns the distinct non-null user IDs with events
// in [start, end].
func (s *Store) DistinctUserIDs(ctx context.Context, start, end time.Time) ([]string, error) {
	filter := rangeFilter(start, end)
	filter = append(filter, bson.E{Key: "userId", Value: bson.D{{Key: "$nin", Value: bson.A{nil, ""}}}})

	values, err := s.events().Distinct(ctx, "userId", filter)
	if err != nil {
		return nil, fmt.Errorf("failed to get distinct user ids: %w", err)
	}

	ids := make([]string, 0, len(values))
	for _, v := range values {
		if id, ok := v.(string); ok && id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// CountByProduct groups events of one type in [start, end] by product.
func (s *Store) CountByProduct(ctx context.Context, eventType string, start, end time.Time) (map[string]int64, error) {
	filter := rangeFilter(start, end)
	filter = append(filter,
		bson.E{Key: "eventType", Value: eventType},
		bson.E{Key: "productId", Value: bson.D{{Key: "$nin", Value: bson.A{nil, ""}}}},
	)

	pipeline := BuildPipeline(
		MatchStage{Filter: filter},
		GroupStage{
			Key:    "$productId",
			Accums: []Accumulator{{Name: "count", Op: "$sum", Expr: 1}},
		},
	)

	cursor, err := s.events().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate product counts: %w", err)
	}
	defer cursor.Close(ctx)

	counts := make(map[string]int64)
	for cursor.Next(ctx) {
		var row struct {
			ProductID string `bson:"_id"`
			Count     int64  `bson:"count"`
		}
		if err := cursor.Decode(&row); err != nil {
			continue
		}
		counts[row.ProductID] = row.Count
	}
	return counts, nil
}

// DimensionCount is one value of a traffic dimension with its event count.
type DimensionCount struct {
	Value string `bson:"_id" json:"value"`
	Count int64  `bson:"count" json:"count"`
}

// TopDimensionValues returns the most frequent non-null values of one
// event dimension (country, source, device) in [start, end].
func (s *Store) TopDimensionValues(ctx context.Context, dimension string, start, end time.Time, limit int64) ([]DimensionCount, error) {
	filter := rangeFilter(start, end)
	filter = append(filter, bson.E{Key: dimension, Value: bson.D{{Key: "$nin", Value: bson.A{nil, ""}}}})

	pipeline := BuildPipeline(
		MatchStage{Filter: filter},
		GroupStage{
			Key:    "$" + dimension,
			Accums: []Accumulator{{Name: "count", Op: "$sum", Expr: 1}},
		},
		SortStage{Keys: bson.D{{Key: "count", Value: -1}}},
		LimitStage{N: limit},
	)

	cursor, err := s.events().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate %s breakdown: %w", dimension, err)
	}
	defer cursor.Close(ctx)

	var rows []DimensionCount
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode %s breakdown: %w", dimension, err)
	}
	return rows, nil
}

// SessionCountsByUsers returns the number of distinct sessions per
// user for the given user IDs.
func (s *Store) SessionCountsByUsers(ctx context.Context, userIDs []string) (map[string]int64, error) {
	if len(userIDs) == 0 {
		return map[string]int64{}, nil
	}

	pipeline := BuildPipeline(
		MatchStage{Filter: bson.D{
			{Key: "userId", Value: bson.D{{Key: "$in", Value: userIDs}}},
			{Key: "sessionId", Value: bson.D{{Key: "$nin", Value: bson.A{nil, ""}}}},
		}},
		GroupStage{Key: bson.D{
			{Key: "userId", Value: "$userId"},
			{Key: "sessionId", Value: "$sessionId"},
		}},
		GroupStage{
			Key:    "$_id.userId",
			Accums: []Accumulator{{Name: "count", Op: "$sum", Expr: 1}},
		},
	)

	cursor, err := s.events().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate session counts: %w", err)
	}
	defer cursor.Close(ctx)

	counts := make(map[string]int64)
	for cursor.Next(ctx) {
		var row struct {
			UserID string `bson:"_id"`
			Count  int64  `bson:"count"`
		}
		if err := cursor.Decode(&row); err != nil {
			continue
		}
		counts[row.UserID] = row.Count
	}
	return counts, nil
}

// RecentEventsByUser returns the most recent events for one user,
// newest first.
func (s *Store) RecentEventsByUser(ctx context.Context, userID string, limit int64) ([]models.Event, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(limit)

	cursor, err := s.events().Find(ctx, bson.D{{Key: "userId", Value: userID}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query user events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []models.Event
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode user events: %w", err)
	}
	return events, nil
}
