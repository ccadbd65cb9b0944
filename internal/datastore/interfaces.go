// Package datastore provides the document-store capability the pipeline and
// services run against: find/upsert/delete by filter, paged counts, geo and
// text search, and the aggregation used by the refresh selector.
package datastore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
)

// FindOptions carries paging and shaping options for Find.
type FindOptions struct {
	Skip       int64
	Limit      int64
	Sort       bson.D
	Projection bson.M
}

// UpdateResult reports the outcome of an UpdateOne call.
type UpdateResult struct {
	MatchedCount  int64
	ModifiedCount int64
	UpsertedID    any
}

// Inserted reports whether the update created a new document.
func (r *UpdateResult) Inserted() bool {
	return r.UpsertedID != nil
}

// Store is the collection-agnostic document store interface. The Mongo
// implementation is the production store; memstore provides an in-memory
// implementation for tests.
//
// FindOne returns (nil, nil) when no document matches; absence is not an
// error at this layer.
type Store interface {
	FindOne(ctx context.Context, coll string, filter bson.M) (bson.M, error)
	Find(ctx context.Context, coll string, filter bson.M, opts *FindOptions) ([]bson.M, error)
	Count(ctx context.Context, coll string, filter bson.M) (int64, error)

	// UpdateOne applies an update document (operators such as $set and
	// $setOnInsert) to the first document matching filter. With upsert set,
	// a missing document is created; this is the only write primitive the
	// ingestion pipeline uses, never a blind insert.
	UpdateOne(ctx context.Context, coll string, filter, update bson.M, upsert bool) (*UpdateResult, error)

	// DeleteOne physically removes a document. Used only by hard-delete
	// maintenance paths, never by the primary API.
	DeleteOne(ctx context.Context, coll string, filter bson.M) error

	// Near runs a geospatial $near query on field, closest first, bounded
	// by maxMeters. filter is merged into the query (soft-delete exclusion).
	Near(ctx context.Context, coll, field string, lon, lat float64, maxMeters int, filter bson.M) ([]bson.M, error)

	// TextSearch runs a full-text $text query. filter is merged in.
	TextSearch(ctx context.Context, coll, query string, filter bson.M) ([]bson.M, error)

	// Aggregate runs an aggregation pipeline. The refresh selector relies
	// on a $lookup left-anti-join stage.
	Aggregate(ctx context.Context, coll string, pipeline []bson.M) ([]bson.M, error)

	// Drop removes an entire collection. Destructive; only the opt-in
	// full-reload import path calls it.
	Drop(ctx context.Context, coll string) error

	EnsureIndexes(ctx context.Context) error
	Ping(ctx context.Context) error
}

// ToDocument converts a typed record into the bson document shape the Store
// operates on. Marshaling through bson keeps struct tags authoritative.
func ToDocument(v any) (bson.M, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// FromDocument decodes a bson document into a typed record.
func FromDocument(doc bson.M, out any) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, out)
}
