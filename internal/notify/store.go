// Package notify queues user-facing notifications per shopper session. The
// storefront polls them; every settlement failure surfaces here instead of
// propagating past the handler boundary.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Notification types understood by the storefront.
const (
	TypeNegative = "negative"
	TypePositive = "positive"
)

// Notification is a single user-visible message.
type Notification struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Store keeps pending notifications in a Redis list per session.
type Store struct {
	R      *redis.Client
	TTL    time.Duration
	Logger zerolog.Logger
}

func (s *Store) key(sessionID string) string {
	return "notify:pending:" + sessionID
}

func (s *Store) ttl() time.Duration {
	if s == nil || s.TTL <= 0 {
		return time.Hour
	}
	return s.TTL
}

// Send queues a notification for the session.
func (s *Store) Send(ctx context.Context, sessionID string, n Notification) error {
	if s == nil || s.R == nil {
		return errors.New("notify: store not configured")
	}
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("notify: encode notification: %w", err)
	}
	key := s.key(sessionID)
	pipe := s.R.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, s.ttl())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("notify: queue notification: %w", err)
	}
	s.Logger.Info().
		Str("session_id", sessionID).
		Str("type", n.Type).
		Str("message", n.Message).
		Msg("notification_queued")
	return nil
}

// Drain returns and removes all pending notifications for the session.
func (s *Store) Drain(ctx context.Context, sessionID string) ([]Notification, error) {
	if s == nil || s.R == nil {
		return nil, errors.New("notify: store not configured")
	}
	key := s.key(sessionID)
	pipe := s.R.TxPipeline()
	items := pipe.LRange(ctx, key, 0, -1)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("notify: drain notifications: %w", err)
	}
	raw, err := items.Result()
	if err != nil {
		return nil, fmt.Errorf("notify: read notifications: %w", err)
	}
	out := make([]Notification, 0, len(raw))
	for _, item := range raw {
		var n Notification
		if err := json.Unmarshal([]byte(item), &n); err != nil {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}
