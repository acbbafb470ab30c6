package notify_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/checkout-gateway/internal/notify"
)

func newStore(t *testing.T) *notify.Store {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &notify.Store{R: client, TTL: time.Hour, Logger: zerolog.Nop()}
}

func TestSendAndDrain(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Send(ctx, "sess-1", notify.Notification{Type: notify.TypeNegative, Message: "Payment failed"}))
	require.NoError(t, store.Send(ctx, "sess-1", notify.Notification{Type: notify.TypePositive, Message: "Your order 1001 has been placed"}))

	got, err := store.Drain(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "Payment failed", got[0].Message)
	require.Equal(t, notify.TypePositive, got[1].Type)

	// Drain empties the queue.
	got, err = store.Drain(ctx, "sess-1")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestDrainIsolatesSessions(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Send(ctx, "sess-1", notify.Notification{Type: notify.TypeNegative, Message: "Order creation failed"}))

	got, err := store.Drain(ctx, "sess-2")
	require.NoError(t, err)
	require.Empty(t, got)

	got, err = store.Drain(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
}
