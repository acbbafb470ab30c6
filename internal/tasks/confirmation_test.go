package tasks

import (
	"context"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/checkout-gateway/internal/notify"
	"github.com/noah-isme/checkout-gateway/internal/wallet"
)

type capturedNotification struct {
	sessionID string
	n         notify.Notification
}

type fakeNotifier struct {
	sent []capturedNotification
	err  error
}

func (f *fakeNotifier) Send(_ context.Context, sessionID string, n notify.Notification) error {
	f.sent = append(f.sent, capturedNotification{sessionID: sessionID, n: n})
	return f.err
}

func TestHandleOrderConfirmation(t *testing.T) {
	task, err := NewOrderConfirmationTask(wallet.OrderConfirmation{
		SessionID: "sess-1",
		Wallet:    "apple-pay",
		OrderID:   "1001",
		AccessKey: "abc",
	})
	require.NoError(t, err)
	require.Equal(t, TypeOrderConfirmation, task.Type())

	notifier := &fakeNotifier{}
	h := &Handler{Notify: notifier, Logger: zerolog.Nop()}
	require.NoError(t, h.HandleOrderConfirmation(context.Background(), task))

	require.Len(t, notifier.sent, 1)
	require.Equal(t, "sess-1", notifier.sent[0].sessionID)
	require.Equal(t, notify.TypePositive, notifier.sent[0].n.Type)
	require.Equal(t, "Your order 1001 has been placed", notifier.sent[0].n.Message)
}

func TestHandleOrderConfirmationBadPayload(t *testing.T) {
	h := &Handler{Notify: &fakeNotifier{}, Logger: zerolog.Nop()}
	err := h.HandleOrderConfirmation(context.Background(), asynq.NewTask(TypeOrderConfirmation, []byte("not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
