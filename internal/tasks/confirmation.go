// Package tasks holds the background jobs dispatched after checkout. They run
// outside the request path; a failed job never affects a settled order.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/checkout-gateway/internal/notify"
	"github.com/noah-isme/checkout-gateway/internal/wallet"
)

// TypeOrderConfirmation is the asynq task type for post-settlement order
// confirmations.
const TypeOrderConfirmation = "order:confirmation"

// NewOrderConfirmationTask builds the asynq task for a settled order.
func NewOrderConfirmationTask(c wallet.OrderConfirmation) (*asynq.Task, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("tasks: encode confirmation: %w", err)
	}
	return asynq.NewTask(TypeOrderConfirmation, payload, asynq.MaxRetry(5)), nil
}

// Enqueuer submits settlement follow-up tasks to the queue.
type Enqueuer struct {
	Client *asynq.Client
	Queue  string
}

// EnqueueOrderConfirmation schedules the confirmation job for a settled
// order. Duplicate submissions for the same order collapse onto one task.
func (e Enqueuer) EnqueueOrderConfirmation(ctx context.Context, c wallet.OrderConfirmation) error {
	if e.Client == nil {
		return fmt.Errorf("tasks: asynq client not configured")
	}
	task, err := NewOrderConfirmationTask(c)
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.TaskID("order-confirmation:" + c.OrderID)}
	if e.Queue != "" {
		opts = append(opts, asynq.Queue(e.Queue))
	}
	if _, err := e.Client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("tasks: enqueue confirmation: %w", err)
	}
	return nil
}

// NotificationSender queues a storefront notification for the session.
type NotificationSender interface {
	Send(ctx context.Context, sessionID string, n notify.Notification) error
}

// Handler processes settlement follow-up tasks in the worker.
type Handler struct {
	Notify NotificationSender
	Logger zerolog.Logger
}

// HandleOrderConfirmation queues the positive confirmation notification for
// the shopper's next storefront poll.
func (h *Handler) HandleOrderConfirmation(ctx context.Context, t *asynq.Task) error {
	var c wallet.OrderConfirmation
	if err := json.Unmarshal(t.Payload(), &c); err != nil {
		return fmt.Errorf("tasks: decode confirmation: %v: %w", err, asynq.SkipRetry)
	}
	message := fmt.Sprintf("Your order %s has been placed", c.OrderID)
	if err := h.Notify.Send(ctx, c.SessionID, notify.Notification{Type: notify.TypePositive, Message: message}); err != nil {
		return fmt.Errorf("tasks: queue confirmation notification: %w", err)
	}
	h.Logger.Info().
		Str("order_id", c.OrderID).
		Str("wallet", c.Wallet).
		Msg("order_confirmation_processed")
	return nil
}

// Mux returns the asynq handler mux for the worker process.
func (h *Handler) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeOrderConfirmation, h.HandleOrderConfirmation)
	return mux
}
