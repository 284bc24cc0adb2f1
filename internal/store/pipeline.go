package store

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Aggregation stages are represented as typed structs rather than
// free-form maps so that every pipeline in this package states its
// shape explicitly.

// Stage is a single aggregation pipeline stage.
type Stage interface {
	stage() bson.D
}

// MatchStage filters documents.
type MatchStage struct {
	Filter bson.D
}

func (m MatchStage) stage() bson.D {
	return bson.D{{Key: "$match", Value: m.Filter}}
}

// Accumulator is one accumulated field in a GroupStage.
type Accumulator struct {
	Name string
	Op   string // $sum, $avg, $max, ...
	Expr interface{}
}

// GroupStage groups documents by Key and applies accumulators.
type GroupStage struct {
	Key    interface{}
	Accums []Accumulator
}

func (g GroupStage) stage() bson.D {
	group := bson.D{{Key: "_id", Value: g.Key}}
	for _, a := range g.Accums {
		group = append(group, bson.E{Key: a.Name, Value: bson.D{{Key: a.Op, Value: a.Expr}}})
	}
	return bson.D{{Key: "$group", Value: group}}
}

// SortStage orders documents; Keys preserve field order.
type SortStage struct {
	Keys bson.D
}

func (s SortStage) stage() bson.D {
	return bson.D{{Key: "$sort", Value: s.Keys}}
}

// LimitStage caps the number of documents.
type LimitStage struct {
	N int64
}

func (l LimitStage) stage() bson.D {
	return bson.D{{Key: "$limit", Value: l.N}}
}

// UnwindStage flattens an array field.
type UnwindStage struct {
	Path string // with leading $
}

func (u UnwindStage) stage() bson.D {
	return bson.D{{Key: "$unwind", Value: u.Path}}
}

// CountStage emits a single document with the document count.
type CountStage struct {
	Field string
}

func (c CountStage) stage() bson.D {
	return bson.D{{Key: "$count", Value: c.Field}}
}

// BuildPipeline assembles typed stages into a driver pipeline.
func BuildPipeline(stages ...Stage) mongo.Pipeline {
	p := make(mongo.Pipeline, 0, len(stages))
	for _, st := range stages {
		p = append(p, st.stage())
	}
	return p
}

// rangeFilter builds a createdAt window filter shared by the
// aggregation queries.
func rangeFilter(startKey, endKey interface{}) bson.D {
	return bson.D{{Key: "createdAt", Value: bson.D{
		{Key: "$gte", Value: startKey},
		{Key: "$lte", Value: endKey},
	}}}
}
