package ratelimit

import "context"

// RateLimiter controls outbound throughput toward a delivery transport.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Wait(ctx context.Context, key string) error
}
