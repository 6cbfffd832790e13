package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kprasolov/betledger/internal/domain"
	"github.com/redis/go-redis/v9"
)

// NonceCache implements domain.NonceCache using plain Redis strings with a
// TTL. Take uses GETDEL so a login challenge can be answered at most once,
// even when several API replicas share the cache.
type NonceCache struct {
	rdb *redis.Client
}

// NewNonceCache creates a NonceCache backed by the given Client.
func NewNonceCache(c *Client) *NonceCache {
	return &NonceCache{rdb: c.Underlying()}
}

func nonceKey(address string) string {
	return "nonce:" + strings.ToLower(address)
}

// Put stores the login nonce for an address. A second Put before the first
// challenge is answered replaces it; only the latest challenge is valid.
func (nc *NonceCache) Put(ctx context.Context, address, nonce string, ttl time.Duration) error {
	if err := nc.rdb.Set(ctx, nonceKey(address), nonce, ttl).Err(); err != nil {
		return fmt.Errorf("redis: put nonce for %s: %w", address, err)
	}
	return nil
}

// Take retrieves and atomically removes the nonce for an address. It returns
// domain.ErrNonceNotFound when no challenge is pending or it has expired.
func (nc *NonceCache) Take(ctx context.Context, address string) (string, error) {
	nonce, err := nc.rdb.GetDel(ctx, nonceKey(address)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", domain.ErrNonceNotFound
		}
		return "", fmt.Errorf("redis: take nonce for %s: %w", address, err)
	}
	return nonce, nil
}

// Compile-time interface check.
var _ domain.NonceCache = (*NonceCache)(nil)
