package store

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPipelineStageOrder(t *testing.T) {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)

	p := BuildPipeline(
		MatchStage{Filter: rangeFilter(start, end)},
		GroupStage{Key: "$productId", Accums: []Accumulator{{Name: "count", Op: "$sum", Expr: 1}}},
		SortStage{Keys: bson.D{{Key: "count", Value: -1}}},
		LimitStage{N: 10},
	)

	require.Len(t, p, 4)
	assert.Equal(t, "$match", p[0][0].Key)
	assert.Equal(t, "$group", p[1][0].Key)
	assert.Equal(t, "$sort", p[2][0].Key)
	assert.Equal(t, "$limit", p[3][0].Key)
}

func TestGroupStageAccumulators(t *testing.T) {
	g := GroupStage{
		Key: "$customerEmail",
		Accums: []Accumulator{
			{Name: "count", Op: "$sum", Expr: 1},
			{Name: "sum", Op: "$sum", Expr: "$total"},
		},
	}

	doc := g.stage()
	require.Equal(t, "$group", doc[0].Key)

	group, ok := doc[0].Value.(bson.D)
	require.True(t, ok)
	require.Len(t, group, 3)
	assert.Equal(t, "_id", group[0].Key)
	assert.Equal(t, "$customerEmail", group[0].Value)
	assert.Equal(t, "count", group[1].Key)
	assert.Equal(t, "sum", group[2].Key)
	assert.Equal(t, bson.D{{Key: "$sum", Value: "$total"}}, group[2].Value)
}

func TestRangeFilterWindow(t *testing.T) {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)

	filter := rangeFilter(start, end)
	require.Len(t, filter, 1)
	assert.Equal(t, "createdAt", filter[0].Key)

	window, ok := filter[0].Value.(bson.D)
	require.True(t, ok)
	assert.Equal(t, bson.E{Key: "$gte", Value: start}, window[0])
	assert.Equal(t, bson.E{Key: "$lte", Value: end}, window[1])
}

func TestUnwindAndCountStages(t *testing.T) {
	assert.Equal(t, bson.D{{Key: "$unwind", Value: "$items"}}, UnwindStage{Path: "$items"}.stage())
	assert.Equal(t, bson.D{{Key: "$count", Value: "total"}}, CountStage{Field: "total"}.stage())
}
