package datastore

import (
	"context"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tattler-mx/tattler-go/internal/errors"
	"github.com/tattler-mx/tattler-go/internal/model"
)

// Mongo implements Store against a MongoDB deployment. A connection is
// established per logical operation and closed afterward; no pool is kept
// across operations, and callers must tolerate connection setup latency.
type Mongo struct {
	uri      string
	database string
	timeout  time.Duration
	logger   *slog.Logger
}

// NewMongo creates a Mongo store. timeout bounds connection setup and each
// operation.
func NewMongo(uri, database string, timeout time.Duration, logger *slog.Logger) (*Mongo, error) {
	if uri == "" {
		return nil, errors.Newf("mongodb uri is required").
			Category(errors.CategoryConfiguration).
			Component("datastore").
			Build()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Mongo{uri: uri, database: database, timeout: timeout, logger: logger.With("service", "datastore")}, nil
}

// WithConnection runs fn with a freshly connected database handle and
// disconnects when fn returns.
func (m *Mongo) WithConnection(ctx context.Context, fn func(db *mongo.Database) error) error {
	opCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	client, err := mongo.Connect(opCtx, options.Client().ApplyURI(m.uri))
	if err != nil {
		return wrapMongoError(err, "connect")
	}
	defer func() {
		if derr := client.Disconnect(context.WithoutCancel(ctx)); derr != nil {
			m.logger.Warn("error disconnecting from mongodb", "error", derr)
		}
	}()

	return fn(client.Database(m.database))
}

func (m *Mongo) FindOne(ctx context.Context, coll string, filter bson.M) (bson.M, error) {
	var doc bson.M
	err := m.WithConnection(ctx, func(db *mongo.Database) error {
		res := db.Collection(coll).FindOne(ctx, filter)
		if err := res.Decode(&doc); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				doc = nil
				return nil
			}
			return wrapMongoError(err, "findOne")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (m *Mongo) Find(ctx context.Context, coll string, filter bson.M, opts *FindOptions) ([]bson.M, error) {
	var docs []bson.M
	err := m.WithConnection(ctx, func(db *mongo.Database) error {
		findOpts := options.Find()
		if opts != nil {
			if opts.Skip > 0 {
				findOpts.SetSkip(opts.Skip)
			}
			if opts.Limit > 0 {
				findOpts.SetLimit(opts.Limit)
			}
			if opts.Sort != nil {
				findOpts.SetSort(opts.Sort)
			}
			if opts.Projection != nil {
				findOpts.SetProjection(opts.Projection)
			}
		}
		cursor, err := db.Collection(coll).Find(ctx, filter, findOpts)
		if err != nil {
			return wrapMongoError(err, "find")
		}
		defer cursor.Close(ctx)
		if err := cursor.All(ctx, &docs); err != nil {
			return wrapMongoError(err, "find cursor")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func (m *Mongo) Count(ctx context.Context, coll string, filter bson.M) (int64, error) {
	var count int64
	err := m.WithConnection(ctx, func(db *mongo.Database) error {
		var err error
		count, err = db.Collection(coll).CountDocuments(ctx, filter)
		if err != nil {
			return wrapMongoError(err, "countDocuments")
		}
		return nil
	})
	return count, err
}

func (m *Mongo) UpdateOne(ctx context.Context, coll string, filter, update bson.M, upsert bool) (*UpdateResult, error) {
	var result UpdateResult
	err := m.WithConnection(ctx, func(db *mongo.Database) error {
		res, err := db.Collection(coll).UpdateOne(ctx, filter, update, options.Update().SetUpsert(upsert))
		if err != nil {
			return wrapMongoError(err, "updateOne")
		}
		result = UpdateResult{
			MatchedCount:  res.MatchedCount,
			ModifiedCount: res.ModifiedCount,
			UpsertedID:    res.UpsertedID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (m *Mongo) DeleteOne(ctx context.Context, coll string, filter bson.M) error {
	return m.WithConnection(ctx, func(db *mongo.Database) error {
		if _, err := db.Collection(coll).DeleteOne(ctx, filter); err != nil {
			return wrapMongoError(err, "deleteOne")
		}
		return nil
	})
}

func (m *Mongo) Near(ctx context.Context, coll, field string, lon, lat float64, maxMeters int, filter bson.M) ([]bson.M, error) {
	query := bson.M{}
	for k, v := range filter {
		query[k] = v
	}
	query[field] = bson.M{
		"$near": bson.M{
			"$geometry": bson.M{
				"type":        "Point",
				"coordinates": []float64{lon, lat},
			},
			"$maxDistance": maxMeters,
		},
	}
	return m.Find(ctx, coll, query, nil)
}

func (m *Mongo) TextSearch(ctx context.Context, coll, query string, filter bson.M) ([]bson.M, error) {
	q := bson.M{}
	for k, v := range filter {
		q[k] = v
	}
	q["$text"] = bson.M{"$search": query}
	return m.Find(ctx, coll, q, nil)
}

func (m *Mongo) Aggregate(ctx context.Context, coll string, pipeline []bson.M) ([]bson.M, error) {
	var docs []bson.M
	err := m.WithConnection(ctx, func(db *mongo.Database) error {
		cursor, err := db.Collection(coll).Aggregate(ctx, pipeline)
		if err != nil {
			return wrapMongoError(err, "aggregate")
		}
		defer cursor.Close(ctx)
		if err := cursor.All(ctx, &docs); err != nil {
			return wrapMongoError(err, "aggregate cursor")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func (m *Mongo) Drop(ctx context.Context, coll string) error {
	return m.WithConnection(ctx, func(db *mongo.Database) error {
		if err := db.Collection(coll).Drop(ctx); err != nil {
			return wrapMongoError(err, "drop")
		}
		return nil
	})
}

// EnsureIndexes creates the compound, geospatial and text indexes matching
// the service's query patterns. Safe to call repeatedly.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	return m.WithConnection(ctx, func(db *mongo.Database) error {
		registry := db.Collection(model.CollRegistryRestaurants)
		maps := db.Collection(model.CollMapsRestaurants)
		reviews := db.Collection(model.CollReviews)

		_, err := registry.Indexes().CreateMany(ctx, []mongo.IndexModel{
			{Keys: bson.D{{Key: "location", Value: "2dsphere"}}},
			{Keys: bson.D{{Key: "name", Value: "text"}}},
			{Keys: bson.D{{Key: "postal_code", Value: 1}}},
			{Keys: bson.D{{Key: "activity_class", Value: 1}}},
		})
		if err != nil {
			return wrapMongoError(err, "create registry indexes")
		}

		_, err = maps.Indexes().CreateMany(ctx, []mongo.IndexModel{
			{
				Keys: bson.D{{Key: "data_id", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"data_id": bson.M{"$exists": true}}),
			},
			{Keys: bson.D{{Key: "google_place_id", Value: 1}}},
			{Keys: bson.D{{Key: "location", Value: "2dsphere"}}},
			{Keys: bson.D{{Key: "name", Value: "text"}}},
		})
		if err != nil {
			return wrapMongoError(err, "create maps indexes")
		}

		_, err = reviews.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: "review_id", Value: 1}, {Key: "data_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		})
		if err != nil {
			return wrapMongoError(err, "create reviews index")
		}

		m.logger.Info("indexes ensured",
			"collections", []string{model.CollRegistryRestaurants, model.CollMapsRestaurants, model.CollReviews})
		return nil
	})
}

func (m *Mongo) Ping(ctx context.Context) error {
	return m.WithConnection(ctx, func(db *mongo.Database) error {
		if err := db.Client().Ping(ctx, nil); err != nil {
			return wrapMongoError(err, "ping")
		}
		return nil
	})
}
