// Package cart stores the per-shopper cart snapshot the wallet flows read
// from. The backend commerce API owns the cart itself; the gateway keeps the
// slice of it checkout needs (totals, currency, payment method selection).
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound indicates no snapshot exists for the session.
var ErrNotFound = errors.New("cart: snapshot not found")

// Snapshot is the read model for a shopper's cart at checkout time.
type Snapshot struct {
	Currency                 string  `json:"currency"`
	Total                    float64 `json:"total"`
	ItemQuantity             int     `json:"itemQuantity"`
	MethodOfPaymentID        int     `json:"methodOfPaymentId"`
	ShippingPrivacyAgreement bool    `json:"shippingPrivacyAgreement"`
}

// TotalString renders the cart total the way payment requests expect it.
func (s Snapshot) TotalString() string {
	return strconv.FormatFloat(s.Total, 'f', 2, 64)
}

// Store persists cart snapshots in Redis keyed by session id.
type Store struct {
	R   *redis.Client
	TTL time.Duration
}

func (s *Store) key(sessionID string) string {
	return "cart:snapshot:" + sessionID
}

func (s *Store) ttl() time.Duration {
	if s == nil || s.TTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return s.TTL
}

// Get loads the snapshot for the session.
func (s *Store) Get(ctx context.Context, sessionID string) (Snapshot, error) {
	if s == nil || s.R == nil {
		return Snapshot{}, errors.New("cart: store not configured")
	}
	data, err := s.R.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("cart: load snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("cart: decode snapshot: %w", err)
	}
	return snap, nil
}

// Set replaces the snapshot for the session.
func (s *Store) Set(ctx context.Context, sessionID string, snap Snapshot) error {
	if s == nil || s.R == nil {
		return errors.New("cart: store not configured")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("cart: encode snapshot: %w", err)
	}
	if err := s.R.Set(ctx, s.key(sessionID), data, s.ttl()).Err(); err != nil {
		return fmt.Errorf("cart: store snapshot: %w", err)
	}
	return nil
}

// Clear removes the snapshot after a successful settlement.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	if s == nil || s.R == nil {
		return errors.New("cart: store not configured")
	}
	if err := s.R.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("cart: clear snapshot: %w", err)
	}
	return nil
}
