// Package mongo implements store.Store on MongoDB. Documents map one-to-one
// onto Mongo documents, Set uses $set/$unset field updates, and Watch is
// backed by change streams.
package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/RobinAyzit/share-plans-done-together/internal/store"
)

// Store wraps a Mongo database handle.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *logrus.Logger
}

// New connects to MongoDB and pings it before returning.
func New(ctx context.Context, uri, database string, logger *logrus.Logger) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	logger.Info("MongoDB connection established successfully")
	return &Store{client: client, db: client.Database(database), logger: logger}, nil
}

func (s *Store) Get(ctx context.Context, col, id string, out any) error {
	err := s.db.Collection(col).FindOne(ctx, bson.M{"_id": id}).Decode(out)
	if err == mongo.ErrNoDocuments {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get %s/%s: %w", col, id, err)
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, col, id string, doc any) error {
	if _, err := s.db.Collection(col).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert %s/%s: %w", col, id, err)
	}
	return nil
}

func (s *Store) Set(ctx context.Context, col, id string, fields map[string]any) error {
	set := bson.M{}
	unset := bson.M{}
	for key, val := range fields {
		if val == nil {
			unset[key] = ""
		} else {
			set[key] = val
		}
	}
	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	if len(update) == 0 {
		return nil
	}

	res, err := s.db.Collection(col).UpdateByID(ctx, id, update)
	if err != nil {
		return fmt.Errorf("failed to update %s/%s: %w", col, id, err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, col, id string) error {
	if _, err := s.db.Collection(col).DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", col, id, err)
	}
	return nil
}

func (s *Store) Find(ctx context.Context, col string, filter store.Filter, out any) error {
	cur, err := s.db.Collection(col).Find(ctx, filterQuery(filter))
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", col, err)
	}
	defer cur.Close(ctx)
	if err := cur.All(ctx, out); err != nil {
		return fmt.Errorf("failed to decode %s results: %w", col, err)
	}
	return nil
}

// Watch opens a change stream restricted to the filter. Delete events cannot
// be matched against document fields (the document is gone), so they pass the
// field conditions and are filtered by id only.
func (s *Store) Watch(ctx context.Context, col string, filter store.Filter) (<-chan store.Event, error) {
	match := bson.M{}
	if filter.ID != "" {
		match["documentKey._id"] = filter.ID
	}
	fieldCond := bson.M{}
	for key, val := range filter.Eq {
		fieldCond["fullDocument."+key] = val
	}
	for _, path := range filter.Exists {
		fieldCond["fullDocument."+path] = bson.M{"$exists": true, "$ne": nil}
	}
	if len(fieldCond) > 0 {
		match["$or"] = bson.A{
			bson.M{"operationType": "delete"},
			fieldCond,
		}
	}

	cs, err := s.db.Collection(col).Watch(ctx,
		mongo.Pipeline{{{Key: "$match", Value: match}}},
		options.ChangeStream().SetFullDocument(options.UpdateLookup),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open change stream on %s: %w", col, err)
	}

	ch := make(chan store.Event, 16)
	go func() {
		defer close(ch)
		defer cs.Close(context.Background())
		for cs.Next(ctx) {
			var change struct {
				OperationType string `bson:"operationType"`
				DocumentKey   struct {
					ID string `bson:"_id"`
				} `bson:"documentKey"`
			}
			if err := cs.Decode(&change); err != nil {
				s.logger.WithError(err).Error("failed to decode change stream event")
				continue
			}
			ev := store.Event{
				Collection: col,
				ID:         change.DocumentKey.ID,
				Deleted:    change.OperationType == "delete",
			}
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
		if err := cs.Err(); err != nil && ctx.Err() == nil {
			s.logger.WithError(err).Error("change stream terminated")
		}
	}()

	return ch, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func filterQuery(f store.Filter) bson.M {
	q := bson.M{}
	if f.ID != "" {
		q["_id"] = f.ID
	}
	for key, val := range f.Eq {
		q[key] = val
	}
	for _, path := range f.Exists {
		q[path] = bson.M{"$exists": true, "$ne": nil}
	}
	return q
}
