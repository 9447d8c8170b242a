package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis wraps the redis client used for the queue and the session-code
// cache.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to redis with short timeouts.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

const codeCacheTTL = 5 * time.Minute

// CacheSessionID remembers which session a shareable code resolves to, so
// repeated student lookups skip the database.
func (r *Redis) CacheSessionID(ctx context.Context, code, sessionID string) {
	if r == nil || r.Client == nil {
		return
	}
	r.Client.Set(ctx, "classpass:code:"+code, sessionID, codeCacheTTL)
}

// CachedSessionID returns the cached session id for a code, or "".
func (r *Redis) CachedSessionID(ctx context.Context, code string) string {
	if r == nil || r.Client == nil {
		return ""
	}
	id, err := r.Client.Get(ctx, "classpass:code:"+code).Result()
	if err != nil {
		return ""
	}
	return id
}
