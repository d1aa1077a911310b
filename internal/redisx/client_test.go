package redisx

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis implements the handful of commands used here; anything else
// panics through the nil embedded interface.
type fakeRedis struct {
	redis.Cmdable
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key], f.ttls[key] = value.(string), ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key], f.ttls[key] = string(value.([]byte)), ttl
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
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
	return redis.NewIntResult(n, nil)
}

func TestDedupClaimRelease(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeRedis()
	d := Dedup{Client: rdb, Service: "payments"}

	ok, err := d.Claim(ctx, "ev-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, TTLDedup, rdb.ttls["dedup:payments:ev-1"])

	ok, err = d.Claim(ctx, "ev-1")
	require.NoError(t, err)
	assert.False(t, ok, "second delivery must lose the claim")

	other := Dedup{Client: rdb, Service: "notify"}
	ok, _ = other.Claim(ctx, "ev-1")
	assert.True(t, ok, "claims are scoped per service")

	require.NoError(t, d.Release(ctx, "ev-1"))
	ok, _ = d.Claim(ctx, "ev-1")
	assert.True(t, ok)
}

func TestStatusCache(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeRedis()
	c := StatusCache{Client: rdb, TTL: time.Minute}

	_, hit, err := c.Get(ctx, "o-1")
	require.NoError(t, err)
	assert.False(t, hit)

	want := OrderStatus{OrderID: "o-1", BuyerID: "u-1", Status: "PAID", IsFinished: true,
		UpdatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	require.NoError(t, c.Put(ctx, want))
	assert.Equal(t, time.Minute, rdb.ttls["order_status:o-1"])

	got, hit, err := c.Get(ctx, "o-1")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, want, got)
}

func TestStatusCacheCorruptEntry(t *testing.T) {
	rdb := newFakeRedis()
	rdb.data["order_status:o-1"] = "{not json"

	_, hit, err := StatusCache{Client: rdb}.Get(context.Background(), "o-1")
	assert.Error(t, err)
	assert.False(t, hit)
}
