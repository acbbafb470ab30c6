// Package bootstrap seeds the gateway's per-session state from the backend
// commerce session on the shopper's first request.
package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/noah-isme/checkout-gateway/internal/cart"
	"github.com/noah-isme/checkout-gateway/internal/commerce"
)

// SessionSource fetches the backend session state.
type SessionSource interface {
	GetSession(ctx context.Context, sessionID string) (commerce.Session, error)
}

// CartWriter persists the cart snapshot derived from the backend session.
type CartWriter interface {
	Set(ctx context.Context, sessionID string, snap cart.Snapshot) error
}

// InitialData is the session state handed back to the storefront once the
// gateway has seeded its stores.
type InitialData struct {
	User   json.RawMessage `json:"user,omitempty"`
	Basket commerce.Basket `json:"basket"`
}

// Service performs the one-time session bootstrap: fetch the backend session,
// persist the cart snapshot and the CSRF token, and hand the state back.
type Service struct {
	Source     SessionSource
	Carts      CartWriter
	R          *redis.Client
	SessionTTL time.Duration
	Logger     zerolog.Logger
}

func csrfKey(sessionID string) string {
	return "session:csrf:" + sessionID
}

// SetInitialData seeds the gateway for the session and returns the backend
// state. Calling it again overwrites the previous seed; it never merges.
func (s *Service) SetInitialData(ctx context.Context, sessionID string) (InitialData, error) {
	ctx, span := otel.Tracer("bootstrap.Service").Start(ctx, "Service.SetInitialData")
	defer span.End()

	if s == nil || s.Source == nil || s.Carts == nil {
		return InitialData{}, errors.New("bootstrap: service not configured")
	}
	session, err := s.Source.GetSession(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return InitialData{}, fmt.Errorf("bootstrap: fetch session: %w", err)
	}

	snap := cart.Snapshot{
		Currency:          session.Basket.Currency,
		Total:             session.Basket.Total,
		ItemQuantity:      session.Basket.ItemQuantity,
		MethodOfPaymentID: session.Basket.MethodOfPaymentID,
	}
	if err := s.Carts.Set(ctx, sessionID, snap); err != nil {
		span.RecordError(err)
		return InitialData{}, fmt.Errorf("bootstrap: store cart snapshot: %w", err)
	}

	if s.R != nil && session.CSRF != "" {
		ttl := s.SessionTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		if err := s.R.Set(ctx, csrfKey(sessionID), session.CSRF, ttl).Err(); err != nil {
			s.Logger.Warn().Err(err).Str("session_id", sessionID).Msg("store csrf token failed")
		}
	}

	s.Logger.Debug().Str("session_id", sessionID).Msg("session_bootstrapped")
	return InitialData{User: session.User, Basket: session.Basket}, nil
}

// CSRFToken returns the stored CSRF token for the session, or empty when the
// session was never bootstrapped.
func (s *Service) CSRFToken(ctx context.Context, sessionID string) (string, error) {
	if s == nil || s.R == nil {
		return "", nil
	}
	token, err := s.R.Get(ctx, csrfKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("bootstrap: load csrf token: %w", err)
	}
	return token, nil
}
