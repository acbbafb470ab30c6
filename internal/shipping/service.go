// Package shipping serves the shipping methods for the shopper's cart. The
// backend owns the data; this package fetches, reshapes and caches it.
package shipping

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/noah-isme/checkout-gateway/internal/commerce"
)

// Method is the shipping option shape served to the storefront.
type Method struct {
	ID           int     `json:"id"`
	Name         string  `json:"name"`
	ShippingCost float64 `json:"shippingCost"`
	Currency     string  `json:"currency"`
	Selected     bool    `json:"selected"`
}

// Methods is the full shipping selection for a cart.
type Methods struct {
	List       []Method `json:"list"`
	SelectedID int      `json:"selectedId"`
}

// Source fetches the raw shipping provider data from the backend.
type Source interface {
	GetShippingProvider(ctx context.Context, sessionID string) (commerce.ShippingProvider, error)
}

// Cache stores the last good shipping response per session as JSON.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(sessionID string) string {
	return "shipping:methods:" + sessionID
}

// Get unmarshals the cached response. It reports whether the key existed.
func (c *Cache) Get(ctx context.Context, sessionID string, dst *Methods) (bool, error) {
	if c == nil || c.client == nil {
		return false, nil
	}
	data, err := c.client.Get(ctx, cacheKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores the response with the configured TTL.
func (c *Cache) Set(ctx context.Context, sessionID string, v Methods) error {
	if c == nil || c.client == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey(sessionID), data, c.ttl).Err()
}

// Service fetches shipping methods for a session, falling back to the last
// cached response when the backend is unreachable.
type Service struct {
	Source Source
	Cache  *Cache
	Logger zerolog.Logger
}

// Methods returns the shipping options for the session's cart. A backend
// failure is masked with the cached response when one exists; without a cache
// entry the failure propagates.
func (s *Service) Methods(ctx context.Context, sessionID string) (Methods, error) {
	ctx, span := otel.Tracer("shipping.Service").Start(ctx, "Service.Methods")
	defer span.End()

	provider, err := s.Source.GetShippingProvider(ctx, sessionID)
	if err != nil {
		var cached Methods
		ok, cacheErr := s.Cache.Get(ctx, sessionID, &cached)
		if cacheErr != nil {
			s.Logger.Warn().Err(cacheErr).Str("session_id", sessionID).Msg("shipping cache read failed")
		}
		if ok {
			s.Logger.Warn().Err(err).Str("session_id", sessionID).Msg("serving cached shipping methods")
			return cached, nil
		}
		span.RecordError(err)
		return Methods{}, fmt.Errorf("shipping: fetch methods: %w", err)
	}

	out := Methods{SelectedID: provider.SelectedID, List: make([]Method, 0, len(provider.List))}
	for _, m := range provider.List {
		out.List = append(out.List, Method{
			ID:           m.ID,
			Name:         m.Name,
			ShippingCost: m.ShippingCost,
			Currency:     m.Currency,
			Selected:     m.ID == provider.SelectedID,
		})
	}
	if err := s.Cache.Set(ctx, sessionID, out); err != nil {
		s.Logger.Warn().Err(err).Str("session_id", sessionID).Msg("shipping cache write failed")
	}
	return out, nil
}
