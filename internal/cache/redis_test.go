package cache

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeRedis implements the handful of commands RedisStore issues. Any other
// command panics on the nil embedded client.
type fakeRedis struct {
	redis.UniversalClient

	mu      sync.Mutex
	values  map[string]string
	ttls    map[string]time.Duration
	deletes [][]string
	getErr  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	value, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(value, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := value.([]byte)
	if !ok {
		return redis.NewStatusResult("", errors.New("unexpected value type"))
	}
	f.values[key] = string(raw)
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := strings.TrimSuffix(match, "*")
	var keys []string
	for key := range f.values {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return redis.NewScanCmdResult(keys, 0, nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, append([]string(nil), keys...))
	for _, key := range keys {
		delete(f.values, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestRedisStore_GetSet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newFakeRedis()
	store := NewRedisStore(client, "test:", time.Minute)

	if _, ok, err := store.Get(ctx, "children:team"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	if err := store.Set(ctx, "children:team", []string{"u1", "u2"}); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if client.values["test:children:team"] != `["u1","u2"]` || client.ttls["test:children:team"] != time.Minute {
		t.Fatalf("unexpected stored entry %q ttl %v", client.values["test:children:team"], client.ttls["test:children:team"])
	}
	got, ok, err := store.Get(ctx, "children:team")
	if err != nil || !ok || !reflect.DeepEqual(got, []string{"u1", "u2"}) {
		t.Fatalf("unexpected hit %v ok=%v err=%v", got, ok, err)
	}

	if err := store.Set(ctx, "direct:empty", nil); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	empty, ok, err := store.Get(ctx, "direct:empty")
	if err != nil || !ok || empty == nil || len(empty) != 0 {
		t.Fatalf("expected cached empty set, got %#v ok=%v err=%v", empty, ok, err)
	}
}

func TestRedisStore_GetErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("corrupt entry", func(t *testing.T) {
		client := newFakeRedis()
		client.values["scheduler:members:k"] = "not json"
		store := NewRedisStore(client, "", 0)
		if _, ok, err := store.Get(ctx, "k"); err == nil || ok {
			t.Fatalf("expected decode error, got ok=%v err=%v", ok, err)
		}
	})

	t.Run("client failure", func(t *testing.T) {
		client := newFakeRedis()
		client.getErr = errors.New("connection reset")
		store := NewRedisStore(client, "", 0)
		_, _, err := store.Get(ctx, "k")
		if err == nil || !errors.Is(err, client.getErr) {
			t.Fatalf("expected wrapped client error, got %v", err)
		}
	})
}

func TestRedisStore_PurgeDeletesInBatches(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newFakeRedis()
	client.values["other:keep"] = "[]"
	store := NewRedisStore(client, "test:", time.Minute)
	store.scanCount = 2

	for _, key := range []string{"a", "b", "c", "d", "e"} {
		if err := store.Set(ctx, key, []string{"u1"}); err != nil {
			t.Fatalf("Set returned error: %v", err)
		}
	}

	if err := store.Purge(ctx); err != nil {
		t.Fatalf("Purge returned error: %v", err)
	}

	want := [][]string{{"test:a", "test:b"}, {"test:c", "test:d"}, {"test:e"}}
	if !reflect.DeepEqual(client.deletes, want) {
		t.Fatalf("unexpected delete batches %v", client.deletes)
	}
	if _, ok := client.values["other:keep"]; !ok || len(client.values) != 1 {
		t.Fatalf("expected only foreign keys to survive, got %v", client.values)
	}
}
