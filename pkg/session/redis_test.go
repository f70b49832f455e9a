package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeRedis is an in-memory RedisClient honouring TTLs against a fake clock.
type fakeRedis struct {
	mu      sync.Mutex
	clock   *fakeClock
	values  map[string][]byte
	expires map[string]time.Time
	err     error
	execs   int
}

func newFakeRedis(clock *fakeClock) *fakeRedis {
	return &fakeRedis{clock: clock, values: map[string][]byte{}, expires: map[string]time.Time{}}
}

func (f *fakeRedis) set(key string, value any, ttl time.Duration) {
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = append([]byte(nil), v...)
	case string:
		b = []byte(v)
	}
	f.values[key] = b
	f.expires[key] = f.clock.Now().Add(ttl)
}

func (f *fakeRedis) live(key string) bool {
	exp, ok := f.expires[key]
	if ok && !f.clock.Now().Before(exp) {
		delete(f.values, key)
		delete(f.expires, key)
		return false
	}
	return ok
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.set(key, value, expiration)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	if !f.live(key) {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(string(f.values[key]), nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if f.live(k) {
			n++
		}
		delete(f.values, k)
		delete(f.expires, k)
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.live(key) {
		return redis.NewBoolResult(false, nil)
	}
	f.expires[key] = f.clock.Now().Add(expiration)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Pipeline() redis.Pipeliner {
	return &fakePipeline{redis: f}
}

// fakePipeline implements the two Pipeliner methods RedisStore uses; the
// embedded nil interface panics on anything else.
type fakePipeline struct {
	redis.Pipeliner
	redis  *fakeRedis
	queued []func()
}

func (p *fakePipeline) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	p.queued = append(p.queued, func() { p.redis.set(key, value, expiration) })
	return redis.NewStatusCmd(ctx)
}

func (p *fakePipeline) Exec(ctx context.Context) ([]redis.Cmder, error) {
	p.redis.mu.Lock()
	defer p.redis.mu.Unlock()
	p.redis.execs++
	if p.redis.err != nil {
		return nil, p.redis.err
	}
	for _, fn := range p.queued {
		fn()
	}
	p.queued = nil
	return nil, nil
}

func TestRedisStore_Contract(t *testing.T) {
	clock := newFakeClock()
	exerciseStore(t, NewRedisStore(newFakeRedis(clock), WithRedisClock(clock.Now)), clock)
}

func TestRedisStore_KeysUsePrefix(t *testing.T) {
	clock := newFakeClock()
	client := newFakeRedis(clock)
	s := NewRedisStore(client, WithRedisPrefix("t:"), WithRedisClock(clock.Now))

	s.Save(context.Background(), "abc", []byte("x"), clock.Now().Add(time.Minute))
	if _, ok := client.values["t:abc"]; !ok {
		t.Fatalf("keys = %v, want t:abc", client.values)
	}
	if s.Prefix() != "t:" {
		t.Fatalf("Prefix = %q", s.Prefix())
	}
}

func TestRedisStore_ExpiredSaveDeletes(t *testing.T) {
	clock := newFakeClock()
	client := newFakeRedis(clock)
	s := NewRedisStore(client, WithRedisClock(clock.Now))
	ctx := context.Background()

	s.Save(ctx, "a", []byte("x"), clock.Now().Add(time.Minute))
	if err := s.Save(ctx, "a", []byte("y"), clock.Now().Add(-time.Second)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if data, _ := s.Load(ctx, "a"); data != nil {
		t.Fatalf("Load = %q, want nil", data)
	}

	s.Save(ctx, "b", []byte("x"), clock.Now().Add(time.Minute))
	s.Touch(ctx, "b", clock.Now())
	if data, _ := s.Load(ctx, "b"); data != nil {
		t.Fatalf("Load after zero-TTL touch = %q, want nil", data)
	}
}

func TestRedisStore_SaveAllSkipsExpiredAndPipelines(t *testing.T) {
	clock := newFakeClock()
	client := newFakeRedis(clock)
	s := NewRedisStore(client, WithRedisClock(clock.Now))
	ctx := context.Background()

	err := s.SaveAll(ctx, map[string]Data{
		"old": {Data: []byte("o"), ExpiresAt: clock.Now().Add(-time.Minute)},
	})
	if err != nil || client.execs != 0 {
		t.Fatalf("SaveAll(expired) err=%v execs=%d, want no pipeline", err, client.execs)
	}

	s.SaveAll(ctx, map[string]Data{
		"a": {Data: []byte("1"), ExpiresAt: clock.Now().Add(time.Minute)},
		"b": {Data: []byte("2"), ExpiresAt: clock.Now().Add(time.Minute)},
	})
	if client.execs != 1 || len(client.values) != 2 {
		t.Fatalf("execs=%d values=%d, want 1/2", client.execs, len(client.values))
	}
}

func TestRedisStore_BackendError(t *testing.T) {
	clock := newFakeClock()
	client := newFakeRedis(clock)
	boom := errors.New("connection refused")
	client.err = boom
	s := NewRedisStore(client, WithRedisClock(clock.Now))

	if _, err := s.Load(context.Background(), "a"); !errors.Is(err, boom) {
		t.Fatalf("Load err = %v, want backend error", err)
	}
	if err := s.Save(context.Background(), "a", nil, clock.Now().Add(time.Minute)); !errors.Is(err, boom) {
		t.Fatalf("Save err = %v, want backend error", err)
	}
}
