// Package ratelimit throttles the payment endpoints per shopper session.
package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/checkout-gateway/internal/common"
)

// New builds a redis-backed limiter allowing max requests per window.
func New(rdb *redis.Client, max int64, window time.Duration) (*limiter.Limiter, error) {
	store, err := limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{
		Prefix: "ratelimit:checkout",
	})
	if err != nil {
		return nil, err
	}
	return limiter.New(store, limiter.Rate{Limit: max, Period: window}), nil
}

// Middleware rejects requests over the limit with 429. The limit key is the
// shopper session when present, the client IP otherwise, so one shopper
// hammering the sheet endpoints cannot starve the rest.
func Middleware(l *limiter.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l == nil {
				next.ServeHTTP(w, r)
				return
			}
			key := strings.TrimSpace(r.Header.Get("X-Session-ID"))
			if key == "" {
				key = common.ClientIP(r)
			}
			ctx, err := l.Get(r.Context(), key)
			if err != nil {
				// Limiter store failure must not block checkout.
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(ctx.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(ctx.Remaining, 10))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(ctx.Reset, 10))
			if ctx.Reached {
				common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
