package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Default database and collection used by [OpenMongo].
const (
	MongoDatabase   = "salescoach"
	MongoCollection = "documents"
)

// MongoColl is the subset of *mongo.Collection used by [Mongo].
type MongoColl interface {
	FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) *mongo.SingleResult
	ReplaceOne(ctx context.Context, filter any, replacement any, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, filter any, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
}

// mongoDoc is the stored shape. Value keeps the raw JSON text so documents
// round-trip byte for byte.
type mongoDoc struct {
	Key       string    `bson:"_id"`
	Value     string    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// Mongo is a [Store] keeping one MongoDB document per key.
type Mongo struct {
	coll  MongoColl
	close func(context.Context) error
}

var _ Store = (*Mongo)(nil)

// NewMongo wraps an existing collection. The caller owns the client.
func NewMongo(coll MongoColl) *Mongo {
	return &Mongo{coll: coll}
}

// OpenMongo connects to uri, verifies the connection and uses
// [MongoDatabase].[MongoCollection]. Close disconnects the client.
func OpenMongo(ctx context.Context, uri string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("store: connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &Mongo{
		coll:  client.Database(MongoDatabase).Collection(MongoCollection),
		close: client.Disconnect,
	}, nil
}

func byKey(key string) bson.D { return bson.D{{Key: "_id", Value: key}} }

// Get implements [Store].
func (s *Mongo) Get(ctx context.Context, key string) ([]byte, error) {
	var doc mongoDoc
	err := s.coll.FindOne(ctx, byKey(key)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %q: %w", key, err)
	}
	return []byte(doc.Value), nil
}

// Put implements [Store].
func (s *Mongo) Put(ctx context.Context, key string, value []byte) error {
	doc := mongoDoc{Key: key, Value: string(value), UpdatedAt: time.Now().UTC()}
	if _, err := s.coll.ReplaceOne(ctx, byKey(key), doc, options.Replace().SetUpsert(true)); err != nil {
		return fmt.Errorf("store: put %q: %w", key, err)
	}
	return nil
}

// Delete implements [Store].
func (s *Mongo) Delete(ctx context.Context, key string) error {
	if _, err := s.coll.DeleteOne(ctx, byKey(key)); err != nil {
		return fmt.Errorf("store: delete %q: %w", key, err)
	}
	return nil
}

// Ping implements [Store] with a point lookup, so a store built by
// [NewMongo] is probed through the same collection it serves.
func (s *Mongo) Ping(ctx context.Context) error {
	err := s.coll.FindOne(ctx, byKey("__ping")).Err()
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close disconnects the client opened by [OpenMongo]. It is a no-op for
// stores created with [NewMongo].
func (s *Mongo) Close() error {
	if s.close == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.close(ctx)
}
