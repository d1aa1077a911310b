package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// Dedup claims event ids for one consuming service. A claim is a SETNX with
// a TTL, so only the first of several concurrent deliveries wins it.
type Dedup struct {
	Client  redis.Cmdable
	Service string
	TTL     time.Duration
}

func (d Dedup) key(id string) string { return fmt.Sprintf(KeyDedup, d.Service, id) }

// Claim reports false when id was already claimed.
func (d Dedup) Claim(ctx context.Context, id string) (bool, error) {
	ttl := d.TTL
	if ttl <= 0 {
		ttl = TTLDedup
	}
	return d.Client.SetNX(ctx, d.key(id), "1", ttl).Result()
}

// Release drops a claim so a redelivery of id is processed again.
func (d Dedup) Release(ctx context.Context, id string) error {
	return d.Client.Del(ctx, d.key(id)).Err()
}

// OrderStatus is the cached view served by GET /orders/{id}.
type OrderStatus struct {
	OrderID    string    `json:"order_id"`
	BuyerID    string    `json:"buyer_id"`
	Status     string    `json:"status"`
	IsFinished bool      `json:"is_finished"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type StatusCache struct {
	Client redis.Cmdable
	TTL    time.Duration
}

func (c StatusCache) ttl() time.Duration {
	if c.TTL > 0 {
		return c.TTL
	}
	return TTLStatusCache
}

func (c StatusCache) Put(ctx context.Context, s OrderStatus) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, fmt.Sprintf(KeyOrderStatus, s.OrderID), b, c.ttl()).Err()
}

// Get reports false on a cache miss.
func (c StatusCache) Get(ctx context.Context, orderID string) (OrderStatus, bool, error) {
	var s OrderStatus
	b, err := c.Client.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return s, false, nil
	}
	if err != nil {
		return s, false, err
	}
	if err := json.Unmarshal(b, &s); err != nil {
		return s, false, fmt.Errorf("decode cached status %s: %w", orderID, err)
	}
	return s, true, nil
}
