package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Haleralex/payledger/internal/application/ports"
)

var _ ports.RateLimiter = (*RateLimitStore)(nil)

// RateLimitStore - fixed-window счётчики в Redis, общие для всех инстансов API.
type RateLimitStore struct {
	client goredis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRateLimitStore(client goredis.UniversalClient, prefix string) *RateLimitStore {
	return &RateLimitStore{client: client, prefix: prefix, now: time.Now}
}

// Allow увеличивает счётчик окна. Ключ окна: <prefix>:ratelimit:<key>:<windowID>.
func (s *RateLimitStore) Allow(ctx context.Context, key string, limit int64, window time.Duration) (ports.RateLimitResult, error) {
	if window < time.Second {
		window = time.Second
	}

	windowSecs := int64(window / time.Second)
	windowID := s.now().Unix() / windowSecs
	redisKey := prefixed(s.prefix, "ratelimit", key+":"+strconv.FormatInt(windowID, 10))

	count, err := s.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return ports.RateLimitResult{}, fmt.Errorf("redis rate limit incr: %w", err)
	}

	// первый запрос окна ставит TTL (+1s запас)
	if count == 1 {
		if err := s.client.Expire(ctx, redisKey, window+time.Second).Err(); err != nil {
			return ports.RateLimitResult{}, fmt.Errorf("redis rate limit expire: %w", err)
		}
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	return ports.RateLimitResult{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   time.Unix((windowID+1)*windowSecs, 0),
	}, nil
}
