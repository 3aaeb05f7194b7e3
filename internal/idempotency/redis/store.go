// Package redis stores checkout idempotency keys in Redis with a native TTL.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dejobratic/orderflow/internal/idempotency"
	"github.com/dejobratic/orderflow/internal/orders/ports"
	goredis "github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "orderflow:idempotency:"
	// pendingValue marks a reserved key that has no response yet.
	pendingValue = "pending"
)

// saveScript overwrites a missing or pending key and leaves a stored
// response untouched.
var saveScript = goredis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current and current ~= ARGV[3] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`)

// releaseScript deletes a key only while it is still pending.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type storedValue struct {
	StatusCode int    `json:"status_code"`
	Body       []byte `json:"body"`
	OrderID    string `json:"order_id"`
}

type Store struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

func NewStore(client goredis.UniversalClient, ttl time.Duration) *Store {
	return &Store{client: client, ttl: idempotency.TTLOrDefault(ttl)}
}

// NewClient connects to addr and verifies the server answers PING.
func NewClient(ctx context.Context, addr string) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", addr, err)
	}
	return client, nil
}

func (s *Store) Get(ctx context.Context, key string) (*ports.StoredResponse, error) {
	raw, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get idempotency key: %w", err)
	}
	if string(raw) == pendingValue {
		return &ports.StoredResponse{}, nil
	}

	var value storedValue
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("decode idempotency key: %w", err)
	}
	return &ports.StoredResponse{StatusCode: value.StatusCode, Body: value.Body, OrderID: value.OrderID}, nil
}

// Reserve claims key with SETNX for idempotency.ReservationTTL.
func (s *Store) Reserve(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.SetNX(ctx, keyPrefix+key, pendingValue, idempotency.ReservationTTL).Result()
	if err != nil {
		return false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	return ok, nil
}

// Save replaces a reservation with response and keeps the first stored
// response until it expires.
func (s *Store) Save(ctx context.Context, key string, response ports.StoredResponse) error {
	raw, err := json.Marshal(storedValue{
		StatusCode: response.StatusCode,
		Body:       response.Body,
		OrderID:    response.OrderID,
	})
	if err != nil {
		return fmt.Errorf("encode idempotency key: %w", err)
	}
	err = saveScript.Run(ctx, s.client, []string{keyPrefix + key}, raw, s.ttl.Milliseconds(), pendingValue).Err()
	if err != nil {
		return fmt.Errorf("set idempotency key: %w", err)
	}
	return nil
}

func (s *Store) Release(ctx context.Context, key string) error {
	if err := releaseScript.Run(ctx, s.client, []string{keyPrefix + key}, pendingValue).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
