package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// fakeColl implements MongoColl over a map keyed by _id.
type fakeColl struct {
	mu   sync.Mutex
	docs map[string]mongoDoc
	err  error

	upserts int
}

func newFakeColl() *fakeColl { return &fakeColl{docs: make(map[string]mongoDoc)} }

func filterKey(filter any) string {
	return filter.(bson.D)[0].Value.(string)
}

func (f *fakeColl) FindOne(_ context.Context, filter any, _ ...*options.FindOneOptions) *mongo.SingleResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return mongo.NewSingleResultFromDocument(bson.D{}, f.err, nil)
	}
	doc, ok := f.docs[filterKey(filter)]
	if !ok {
		return mongo.NewSingleResultFromDocument(bson.D{}, mongo.ErrNoDocuments, nil)
	}
	return mongo.NewSingleResultFromDocument(doc, nil, nil)
}

func (f *fakeColl) ReplaceOne(_ context.Context, filter any, replacement any, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, o := range opts {
		if o.Upsert != nil && *o.Upsert {
			f.upserts++
		}
	}
	f.docs[filterKey(filter)] = replacement.(mongoDoc)
	return &mongo.UpdateResult{MatchedCount: 1}, nil
}

func (f *fakeColl) DeleteOne(_ context.Context, filter any, _ ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	delete(f.docs, filterKey(filter))
	return &mongo.DeleteResult{DeletedCount: 1}, nil
}

func TestMongo_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	coll := newFakeColl()
	s := NewMongo(coll)

	if got, err := s.Get(ctx, "history:analysis"); err != nil || got != nil {
		t.Fatalf("Get(missing) = %q, %v; want nil, nil", got, err)
	}
	if err := s.Put(ctx, "history:analysis", []byte(`[{"title":"a"}]`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if coll.upserts != 1 {
		t.Errorf("upserts = %d, want Put to upsert", coll.upserts)
	}
	got, err := s.Get(ctx, "history:analysis")
	if err != nil || string(got) != `[{"title":"a"}]` {
		t.Errorf("Get = %q, %v", got, err)
	}
	if err := s.Delete(ctx, "history:analysis"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, _ := s.Get(ctx, "history:analysis"); got != nil {
		t.Errorf("Get after Delete = %q", got)
	}
	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestMongo_Errors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	boom := errors.New("server selection timeout")
	coll := newFakeColl()
	coll.err = boom
	s := NewMongo(coll)

	if _, err := s.Get(ctx, "k"); !errors.Is(err, boom) {
		t.Errorf("Get err = %v", err)
	}
	if err := s.Put(ctx, "k", []byte("{}")); !errors.Is(err, boom) {
		t.Errorf("Put err = %v", err)
	}
	if err := s.Delete(ctx, "k"); !errors.Is(err, boom) {
		t.Errorf("Delete err = %v", err)
	}
	if err := s.Ping(ctx); !errors.Is(err, boom) {
		t.Errorf("Ping err = %v", err)
	}
}
