package ports

import "context"

// StoredResponse is the checkout reply replayed for a repeated
// Idempotency-Key. A zero StatusCode marks a key reserved by a request that
// has not finished yet.
type StoredResponse struct {
	StatusCode int
	Body       []byte
	OrderID    string
}

// Pending reports whether the key is reserved but holds no response yet.
func (r StoredResponse) Pending() bool {
	return r.StatusCode == 0
}

// IdempotencyStore remembers checkout replies for a limited time. Get returns
// nil, nil for unknown or expired keys.
//
// A request first claims its key with Reserve, which succeeds for exactly one
// caller while the key is unused. Save then replaces the reservation with the
// response; a key that already holds a response keeps it. Release frees a
// reservation that will never get a response.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*StoredResponse, error)
	Reserve(ctx context.Context, key string) (bool, error)
	Save(ctx context.Context, key string, response StoredResponse) error
	Release(ctx context.Context, key string) error
}
