package wallet

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/checkout-gateway/internal/commerce"
	"github.com/noah-isme/checkout-gateway/internal/notify"
	"github.com/noah-isme/checkout-gateway/internal/obs"
)

// Transaction states reported to the storefront after settlement.
const (
	TransactionStateSuccess = "SUCCESS"
	TransactionStateError   = "ERROR"
)

// AuthorizedPayment is the payload produced by the payment sheet when the
// shopper authorizes payment.
type AuthorizedPayment struct {
	Token             json.RawMessage `json:"token,omitempty"`
	BillingContact    json.RawMessage `json:"billingContact,omitempty"`
	PaymentMethodData json.RawMessage `json:"paymentMethodData,omitempty"`
}

// SettleResult is the outcome of a settlement run. On success the
// confirmation path carries the backend order id and access key.
type SettleResult struct {
	TransactionState string `json:"transactionState"`
	OrderID          string `json:"orderId,omitempty"`
	AccessKey        string `json:"accessKey,omitempty"`
	ConfirmationPath string `json:"confirmationPath,omitempty"`
}

// OrderAPI is the slice of the backend commerce API settlement needs.
type OrderAPI interface {
	CreateOrder(ctx context.Context, sessionID string, in commerce.CreateOrderInput) (commerce.Order, error)
	ExecuteOrder(ctx context.Context, sessionID string, in commerce.ExecuteOrderInput) (bool, error)
}

// CartClearer clears the local cart snapshot after a finalized order.
type CartClearer interface {
	Clear(ctx context.Context, sessionID string) error
}

// Notifier surfaces user-facing failure messages.
type Notifier interface {
	Send(ctx context.Context, sessionID string, n notify.Notification) error
}

// OrderConfirmation is handed to the background worker after settlement.
type OrderConfirmation struct {
	SessionID string `json:"sessionId"`
	Wallet    string `json:"wallet"`
	OrderID   string `json:"orderId"`
	AccessKey string `json:"accessKey"`
}

// ConfirmationEnqueuer schedules post-settlement work (confirmation email).
type ConfirmationEnqueuer interface {
	EnqueueOrderConfirmation(ctx context.Context, c OrderConfirmation) error
}

// Settlement converts an authorized sheet payment into a finalized backend
// order. Every step is sequential, never retried, and a failure at any step
// notifies the shopper and stops the remaining steps. There is no
// compensation of a created provider transaction when a later step fails; the
// shopper restarts checkout.
type Settlement struct {
	Orders           OrderAPI
	Carts            CartClearer
	Notify           Notifier
	Tasks            ConfirmationEnqueuer
	ConfirmationPath string
	Logger           zerolog.Logger
}

// SettleApplePay runs the Apple Pay settlement sequence: transaction, backend
// order, confirm with the sheet token, execute, clear cart.
func (s *Settlement) SettleApplePay(ctx context.Context, sess *Session, payload AuthorizedPayment) SettleResult {
	ctx, span := otel.Tracer("wallet.Settlement").Start(ctx, "Settlement.SettleApplePay")
	defer span.End()
	span.SetAttributes(attribute.String("wallet", string(ApplePay)))

	var tx Transaction
	err := s.step(ctx, "create_transaction", func(ctx context.Context) error {
		var err error
		tx, err = sess.Handle.CreateCreditCardTransaction(ctx)
		return err
	})
	if err != nil || strings.TrimSpace(tx.ID) == "" {
		return s.fail(ctx, span, sess, ApplePay, "Transaction creation failed", err)
	}

	var order commerce.Order
	err = s.step(ctx, "create_order", func(ctx context.Context) error {
		var err error
		order, err = s.Orders.CreateOrder(ctx, sess.ID, commerce.CreateOrderInput{
			PaymentID:                   sess.Cart.MethodOfPaymentID,
			ShippingPrivacyHintAccepted: sess.Cart.ShippingPrivacyAgreement,
		})
		return err
	})
	if err != nil || strings.TrimSpace(order.ID) == "" {
		return s.fail(ctx, span, sess, ApplePay, "Order creation failed", err)
	}

	err = s.step(ctx, "confirm_order", func(ctx context.Context) error {
		return sess.Apple.ConfirmOrder(ctx, ConfirmApplePayOrder{
			OrderID:        tx.ID,
			Token:          payload.Token,
			BillingContact: payload.BillingContact,
		})
	})
	if err != nil {
		return s.fail(ctx, span, sess, ApplePay, "Error during order confirmation", err)
	}

	return s.finalize(ctx, span, sess, ApplePay, tx, order)
}

// SettleGooglePay runs the Google Pay settlement sequence: transaction,
// confirm with the payment method data (resolving a payer action when the
// provider demands one), capture, backend order, execute, clear cart. Only an
// APPROVED provider status creates a backend order.
func (s *Settlement) SettleGooglePay(ctx context.Context, sess *Session, payload AuthorizedPayment) SettleResult {
	ctx, span := otel.Tracer("wallet.Settlement").Start(ctx, "Settlement.SettleGooglePay")
	defer span.End()
	span.SetAttributes(attribute.String("wallet", string(GooglePay)))

	var tx Transaction
	err := s.step(ctx, "create_transaction", func(ctx context.Context) error {
		var err error
		tx, err = sess.Handle.CreateCreditCardTransaction(ctx)
		return err
	})
	if err != nil || strings.TrimSpace(tx.ID) == "" {
		return s.fail(ctx, span, sess, GooglePay, "Failed to create transaction", err)
	}

	var status string
	err = s.step(ctx, "confirm_order", func(ctx context.Context) error {
		var err error
		status, err = sess.Google.ConfirmOrder(ctx, ConfirmGooglePayOrder{
			OrderID:           tx.ID,
			PaymentMethodData: payload.PaymentMethodData,
		})
		return err
	})
	if err != nil {
		return s.fail(ctx, span, sess, GooglePay, "Payment failed", err)
	}

	if status == StatusPayerActionRequired {
		err = s.step(ctx, "payer_action", func(ctx context.Context) error {
			if err := sess.Google.InitiatePayerAction(ctx, tx.ID); err != nil {
				return err
			}
			result, err := sess.Handle.GetOrder(ctx, GetOrderRequest{OrderID: tx.ID, PayerID: tx.PayerID})
			if err != nil {
				status = ""
				return err
			}
			status = result.Status
			return nil
		})
		if err != nil {
			return s.fail(ctx, span, sess, GooglePay, "Payment failed", err)
		}
	}

	if status != StatusApproved {
		span.SetAttributes(attribute.String("provider.status", status))
		return s.fail(ctx, span, sess, GooglePay, "Payment failed", nil)
	}

	err = s.step(ctx, "capture_order", func(ctx context.Context) error {
		return sess.Handle.CaptureOrder(ctx, CaptureOrderRequest{OrderID: tx.ID, PayerID: tx.PayerID})
	})
	if err != nil {
		return s.fail(ctx, span, sess, GooglePay, "Payment failed", err)
	}

	var order commerce.Order
	err = s.step(ctx, "create_order", func(ctx context.Context) error {
		var err error
		order, err = s.Orders.CreateOrder(ctx, sess.ID, commerce.CreateOrderInput{
			PaymentID:                   sess.Cart.MethodOfPaymentID,
			ShippingPrivacyHintAccepted: sess.Cart.ShippingPrivacyAgreement,
		})
		return err
	})
	if err != nil || strings.TrimSpace(order.ID) == "" {
		return s.fail(ctx, span, sess, GooglePay, "Order creation failed", err)
	}

	return s.finalize(ctx, span, sess, GooglePay, tx, order)
}

// finalize executes the backend order, clears the cart and reports success.
// The cart is cleared only after execution returned a truthy result.
func (s *Settlement) finalize(ctx context.Context, span trace.Span, sess *Session, w Wallet, tx Transaction, order commerce.Order) SettleResult {
	orderID, convErr := strconv.Atoi(strings.TrimSpace(order.ID))
	if convErr != nil {
		return s.fail(ctx, span, sess, w, "Order execution failed", convErr)
	}
	var executed bool
	err := s.step(ctx, "execute_order", func(ctx context.Context) error {
		var err error
		executed, err = s.Orders.ExecuteOrder(ctx, sess.ID, commerce.ExecuteOrderInput{
			Mode:          "paypal",
			OrderID:       orderID,
			TransactionID: tx.ID,
		})
		return err
	})
	if err != nil || !executed {
		return s.fail(ctx, span, sess, w, "Order execution failed", err)
	}

	if err := s.Carts.Clear(ctx, sess.ID); err != nil {
		s.Logger.Error().Err(err).Str("session_id", sess.ID).Msg("clear cart after settlement")
	}

	result := SettleResult{
		TransactionState: TransactionStateSuccess,
		OrderID:          order.ID,
		AccessKey:        order.AccessKey,
		ConfirmationPath: s.confirmationPath(order),
	}
	if s.Tasks != nil {
		confirmation := OrderConfirmation{
			SessionID: sess.ID,
			Wallet:    string(w),
			OrderID:   order.ID,
			AccessKey: order.AccessKey,
		}
		if err := s.Tasks.EnqueueOrderConfirmation(ctx, confirmation); err != nil {
			s.Logger.Error().Err(err).Str("order_id", order.ID).Msg("enqueue order confirmation")
		}
	}
	if obs.WalletSettlementTotal != nil {
		obs.WalletSettlementTotal.WithLabelValues(string(w), "success").Inc()
	}
	s.Logger.Info().
		Str("session_id", sess.ID).
		Str("wallet", string(w)).
		Str("order_id", order.ID).
		Str("transaction_id", tx.ID).
		Msg("settlement_completed")
	return result
}

func (s *Settlement) confirmationPath(order commerce.Order) string {
	base := strings.Trim(s.ConfirmationPath, "/")
	if base == "" {
		base = "confirmation"
	}
	return base + "/" + order.ID + "/" + order.AccessKey
}

// fail converts any settlement failure into a user-facing notification and an
// ERROR result. Remaining steps never run.
func (s *Settlement) fail(ctx context.Context, span trace.Span, sess *Session, w Wallet, message string, err error) SettleResult {
	if err != nil {
		span.RecordError(err)
	}
	evt := s.Logger.Error().
		Str("session_id", sess.ID).
		Str("wallet", string(w)).
		Str("message", message)
	if err != nil {
		evt = evt.Err(err)
	}
	evt.Msg("settlement_failed")
	if s.Notify != nil {
		if notifyErr := s.Notify.Send(ctx, sess.ID, notify.Notification{Type: notify.TypeNegative, Message: message}); notifyErr != nil {
			s.Logger.Error().Err(notifyErr).Msg("send settlement notification")
		}
	}
	if obs.WalletSettlementTotal != nil {
		obs.WalletSettlementTotal.WithLabelValues(string(w), "error").Inc()
	}
	return SettleResult{TransactionState: TransactionStateError}
}

func (s *Settlement) step(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := otel.Tracer("wallet.Settlement").Start(ctx, "settlement."+name)
	defer span.End()
	start := time.Now()
	err := fn(ctx)
	result := "success"
	if err != nil {
		result = "error"
		span.RecordError(err)
	}
	if obs.WalletSettlementStepLatency != nil {
		obs.WalletSettlementStepLatency.WithLabelValues(name, result).Observe(obs.DurationMillis(time.Since(start)))
	}
	return err
}
