package redis

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
)

// NewRateLimiter builds a limiter whose counters live in Redis, so the limit
// holds across replicas. rate uses limiter's "<n>-<S|M|H|D>" format.
func NewRateLimiter(client *redis.Client, rate string) (*limiter.Limiter, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("rate limit %q: %w", rate, err)
	}

	store, err := redisstore.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix: "ratelimit:library",
	})
	if err != nil {
		return nil, fmt.Errorf("rate limit store: %w", err)
	}

	return limiter.New(store, r), nil
}
