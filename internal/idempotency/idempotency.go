// Package idempotency holds the stores that let checkout requests be retried
// under the same Idempotency-Key without running the saga twice.
package idempotency

import "time"

const (
	// DefaultTTL is how long a stored response is replayed.
	DefaultTTL = 24 * time.Hour
	// ReservationTTL bounds how long a key stays claimed by a request that
	// never saved a response, e.g. after a crash mid-saga.
	ReservationTTL = 5 * time.Minute
)

// TTLOrDefault returns ttl, or DefaultTTL when ttl is not positive.
func TTLOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}
