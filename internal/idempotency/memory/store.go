package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dejobratic/orderflow/internal/idempotency"
	"github.com/dejobratic/orderflow/internal/orders/ports"
)

type entry struct {
	response  ports.StoredResponse
	expiresAt time.Time
}

// Store retains idempotency responses for replaying duplicate requests.
type Store struct {
	mu    sync.Mutex
	items map[string]entry
	ttl   time.Duration
	clock func() time.Time
}

// NewStore creates an in-memory store. A non-positive ttl uses idempotency.DefaultTTL.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		items: make(map[string]entry),
		ttl:   idempotency.TTLOrDefault(ttl),
		clock: time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (s *Store) WithClock(clock func() time.Time) *Store {
	s.clock = clock
	return s
}

// Get returns the stored response for a key, or nil when missing or expired.
func (s *Store) Get(_ context.Context, key string) (*ports.StoredResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.items[key]
	if !ok {
		return nil, nil
	}
	if !s.clock().Before(value.expiresAt) {
		delete(s.items, key)
		return nil, nil
	}
	resp := value.response
	resp.Body = append([]byte(nil), resp.Body...)
	return &resp, nil
}

// Reserve claims an unused or expired key for ReservationTTL.
func (s *Store) Reserve(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	if existing, ok := s.items[key]; ok && now.Before(existing.expiresAt) {
		return false, nil
	}
	s.items[key] = entry{expiresAt: now.Add(idempotency.ReservationTTL)}
	return true, nil
}

// Save replaces a reservation with response. A live response is kept.
func (s *Store) Save(_ context.Context, key string, response ports.StoredResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	if existing, ok := s.items[key]; ok && now.Before(existing.expiresAt) && !existing.response.Pending() {
		return nil
	}
	response.Body = append([]byte(nil), response.Body...)
	s.items[key] = entry{response: response, expiresAt: now.Add(s.ttl)}
	return nil
}

// Release drops a reservation. Stored responses are left alone.
func (s *Store) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.items[key]; ok && existing.response.Pending() {
		delete(s.items, key)
	}
	return nil
}
