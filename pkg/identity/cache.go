package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/sodav-monitor/sodav/pkg/auth"
)

// CachingVerifier memoizes successful verifications for a short TTL. Tokens
// are keyed by hash so raw tokens are never held in memory longer than a
// request. Failures are not cached.
type CachingVerifier struct {
	next  auth.IdentityVerifier
	cache *expirable.LRU[string, *auth.Identity]
}

// NewCachingVerifier wraps next with an LRU of size entries.
func NewCachingVerifier(next auth.IdentityVerifier, size int, ttl time.Duration) *CachingVerifier {
	return &CachingVerifier{
		next:  next,
		cache: expirable.NewLRU[string, *auth.Identity](size, nil, ttl),
	}
}

func (c *CachingVerifier) Verify(ctx context.Context, token string) (*auth.Identity, error) {
	sum := sha256.Sum256([]byte(token))
	key := hex.EncodeToString(sum[:])

	if identity, ok := c.cache.Get(key); ok {
		return identity, nil
	}

	identity, err := c.next.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, identity)
	return identity, nil
}
