package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const nonceKeyPrefix = "s2s:nonce:"

// NonceStore records S2S nonces in Redis so a signed request cannot be
// replayed inside the timestamp window.
type NonceStore struct {
	client redis.UniversalClient
}

// NewNonceStore creates a nonce store.
func NewNonceStore(client redis.UniversalClient) *NonceStore {
	return &NonceStore{client: client}
}

// Remember stores key with ttl. It returns false if the key already exists.
func (s *NonceStore) Remember(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	fresh, err := s.client.SetNX(ctx, nonceKeyPrefix+key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("remember nonce: %w", err)
	}
	return fresh, nil
}
