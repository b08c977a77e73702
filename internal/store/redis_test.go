package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeRedis implements RedisClient over a map.
type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
	err  error
}

func newFakeRedis() *fakeRedis { return &fakeRedis{data: make(map[string]string)} }

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.data[key] = string(value.([]byte))
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, f.err)
}

func (f *fakeRedis) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", f.err)
}

func TestRedis_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := newFakeRedis()
	s := NewRedis(fake)

	if got, err := s.Get(ctx, "stats"); err != nil || got != nil {
		t.Fatalf("Get(missing) = %q, %v; want nil, nil", got, err)
	}
	if err := s.Put(ctx, "stats", []byte(`{"usedInMonth":3}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok := fake.data[RedisKeyPrefix+"stats"]; !ok {
		t.Errorf("keys = %v, want the prefixed key", fake.data)
	}
	got, err := s.Get(ctx, "stats")
	if err != nil || string(got) != `{"usedInMonth":3}` {
		t.Errorf("Get = %q, %v", got, err)
	}
	if err := s.Delete(ctx, "stats"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, _ := s.Get(ctx, "stats"); got != nil {
		t.Errorf("Get after Delete = %q", got)
	}
	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestRedis_Errors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	boom := errors.New("connection refused")
	fake := newFakeRedis()
	fake.err = boom
	s := NewRedis(fake)

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

func TestOpenRedis_InvalidURL(t *testing.T) {
	t.Parallel()
	if _, err := OpenRedis(context.Background(), "http://not-redis"); err == nil {
		t.Fatal("expected an error for a non-redis URL")
	}
}

func TestRedis_HistoryOnTop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := NewHistory[int](NewRedis(newFakeRedis()), "scores", 2)
	for i := range 3 {
		if err := h.Add(ctx, i); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	got, err := h.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0] != 2 || got[1] != 1 {
		t.Errorf("List = %v, want [2 1]", got)
	}
}
