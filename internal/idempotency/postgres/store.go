package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dejobratic/orderflow/internal/idempotency"
	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

func NewStore(pool *pgxpool.Pool, ttl time.Duration) *Store {
	return &Store{pool: pool, ttl: idempotency.TTLOrDefault(ttl)}
}

func (s *Store) Get(ctx context.Context, key string) (*ports.StoredResponse, error) {
	query := `
		SELECT status_code, body, order_id
		FROM idempotency_keys
		WHERE key = $1 AND expires_at > NOW()
	`

	var resp ports.StoredResponse
	err := s.pool.QueryRow(ctx, query, key).Scan(
		&resp.StatusCode,
		&resp.Body,
		&resp.OrderID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select idempotency key: %w", err)
	}

	return &resp, nil
}

// Reserve inserts a pending row (status_code 0). It fails when a live row
// exists for the key.
func (s *Store) Reserve(ctx context.Context, key string) (bool, error) {
	query := `
		INSERT INTO idempotency_keys (key, status_code, body, expires_at)
		VALUES ($1, 0, ''::bytea, NOW() + $2::interval)
		ON CONFLICT (key) DO UPDATE SET
			status_code = 0,
			body = ''::bytea,
			order_id = '',
			created_at = NOW(),
			expires_at = EXCLUDED.expires_at
		WHERE idempotency_keys.expires_at <= NOW()
	`

	tag, err := s.pool.Exec(ctx, query, key, idempotency.ReservationTTL)
	if err != nil {
		return false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Save fills a pending or expired row. A live response is kept.
func (s *Store) Save(ctx context.Context, key string, response ports.StoredResponse) error {
	query := `
		INSERT INTO idempotency_keys (key, status_code, body, order_id, expires_at)
		VALUES ($1, $2, $3, $4, NOW() + $5::interval)
		ON CONFLICT (key) DO UPDATE SET
			status_code = EXCLUDED.status_code,
			body = EXCLUDED.body,
			order_id = EXCLUDED.order_id,
			created_at = NOW(),
			expires_at = EXCLUDED.expires_at
		WHERE idempotency_keys.status_code = 0 OR idempotency_keys.expires_at <= NOW()
	`

	_, err := s.pool.Exec(ctx, query, key, response.StatusCode, response.Body, response.OrderID, s.ttl)
	if err != nil {
		return fmt.Errorf("insert idempotency key: %w", err)
	}

	return nil
}

func (s *Store) Release(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key = $1 AND status_code = 0`, key); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

// PurgeExpired deletes expired keys and reports how many were removed.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("purge idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}
