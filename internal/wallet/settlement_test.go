package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/checkout-gateway/internal/cart"
	"github.com/noah-isme/checkout-gateway/internal/commerce"
	"github.com/noah-isme/checkout-gateway/internal/notify"
)

type stubHandle struct {
	tx        Transaction
	txErr     error
	captureErr error
	order     OrderResult
	orderErr  error

	created  int
	captured []CaptureOrderRequest
	fetched  []GetOrderRequest

	apple  *stubApplePay
	google *stubGooglePay
}

func (s *stubHandle) CreateCreditCardTransaction(context.Context) (Transaction, error) {
	s.created++
	return s.tx, s.txErr
}

func (s *stubHandle) CaptureOrder(_ context.Context, req CaptureOrderRequest) error {
	s.captured = append(s.captured, req)
	return s.captureErr
}

func (s *stubHandle) GetOrder(_ context.Context, req GetOrderRequest) (OrderResult, error) {
	s.fetched = append(s.fetched, req)
	return s.order, s.orderErr
}

func (s *stubHandle) ApplePay() ApplePayAPI   { return s.apple }
func (s *stubHandle) GooglePay() GooglePayAPI { return s.google }

type stubApplePay struct {
	cfg        MerchantConfig
	confirmErr error
	confirmed  []ConfirmApplePayOrder
}

func (s *stubApplePay) Config(context.Context) (MerchantConfig, error) { return s.cfg, nil }

func (s *stubApplePay) ValidateMerchant(context.Context, string) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func (s *stubApplePay) ConfirmOrder(_ context.Context, req ConfirmApplePayOrder) error {
	s.confirmed = append(s.confirmed, req)
	return s.confirmErr
}

type stubGooglePay struct {
	cfg          MerchantConfig
	status       string
	confirmErr   error
	payerActions int
	payerActErr  error
	confirmed    []ConfirmGooglePayOrder
}

func (s *stubGooglePay) Config(context.Context) (MerchantConfig, error) { return s.cfg, nil }

func (s *stubGooglePay) ConfirmOrder(_ context.Context, req ConfirmGooglePayOrder) (string, error) {
	s.confirmed = append(s.confirmed, req)
	return s.status, s.confirmErr
}

func (s *stubGooglePay) InitiatePayerAction(context.Context, string) error {
	s.payerActions++
	return s.payerActErr
}

type stubOrders struct {
	order      commerce.Order
	createErr  error
	executed   bool
	executeErr error

	creates  []commerce.CreateOrderInput
	executes []commerce.ExecuteOrderInput
}

func (s *stubOrders) CreateOrder(_ context.Context, _ string, in commerce.CreateOrderInput) (commerce.Order, error) {
	s.creates = append(s.creates, in)
	return s.order, s.createErr
}

func (s *stubOrders) ExecuteOrder(_ context.Context, _ string, in commerce.ExecuteOrderInput) (bool, error) {
	s.executes = append(s.executes, in)
	return s.executed, s.executeErr
}

type stubCarts struct {
	cleared int
	err     error
}

func (s *stubCarts) Clear(context.Context, string) error {
	s.cleared++
	return s.err
}

type stubNotifier struct {
	sent []notify.Notification
}

func (s *stubNotifier) Send(_ context.Context, _ string, n notify.Notification) error {
	s.sent = append(s.sent, n)
	return nil
}

func testSession(h *stubHandle, w Wallet) *Session {
	return &Session{
		ID:       "sess-1",
		Wallet:   w,
		Currency: "EUR",
		Cart:     cart.Snapshot{Currency: "EUR", Total: 49.99, MethodOfPaymentID: 6001, ShippingPrivacyAgreement: true},
		Handle:   h,
		Apple:    h.apple,
		Google:   h.google,
	}
}

func newSettlement(orders *stubOrders, carts *stubCarts, notifier *stubNotifier) *Settlement {
	return &Settlement{
		Orders:           orders,
		Carts:            carts,
		Notify:           notifier,
		ConfirmationPath: "confirmation",
		Logger:           zerolog.Nop(),
	}
}

func TestSettleApplePaySuccess(t *testing.T) {
	handle := &stubHandle{tx: Transaction{ID: "TX1"}, apple: &stubApplePay{}, google: &stubGooglePay{}}
	orders := &stubOrders{order: commerce.Order{ID: "1001", AccessKey: "abc"}, executed: true}
	carts := &stubCarts{}
	notifier := &stubNotifier{}
	s := newSettlement(orders, carts, notifier)

	result := s.SettleApplePay(context.Background(), testSession(handle, ApplePay), AuthorizedPayment{
		Token:          json.RawMessage(`{"paymentData":"x"}`),
		BillingContact: json.RawMessage(`{"postalCode":"1"}`),
	})

	require.Equal(t, TransactionStateSuccess, result.TransactionState)
	require.Equal(t, "1001", result.OrderID)
	require.Equal(t, "abc", result.AccessKey)
	require.Equal(t, "confirmation/1001/abc", result.ConfirmationPath)

	require.Equal(t, 1, handle.created)
	require.Len(t, handle.apple.confirmed, 1)
	require.Equal(t, "TX1", handle.apple.confirmed[0].OrderID)
	require.Len(t, orders.creates, 1)
	require.Equal(t, 6001, orders.creates[0].PaymentID)
	require.True(t, orders.creates[0].ShippingPrivacyHintAccepted)
	require.Len(t, orders.executes, 1)
	require.Equal(t, commerce.ExecuteOrderInput{Mode: "paypal", OrderID: 1001, TransactionID: "TX1"}, orders.executes[0])
	require.Equal(t, 1, carts.cleared)
	require.Empty(t, notifier.sent)
}

func TestSettleApplePayOrderCreationFails(t *testing.T) {
	handle := &stubHandle{tx: Transaction{ID: "TX1"}, apple: &stubApplePay{}, google: &stubGooglePay{}}
	orders := &stubOrders{createErr: errors.New("boom")}
	carts := &stubCarts{}
	notifier := &stubNotifier{}
	s := newSettlement(orders, carts, notifier)

	result := s.SettleApplePay(context.Background(), testSession(handle, ApplePay), AuthorizedPayment{})

	require.Equal(t, TransactionStateError, result.TransactionState)
	require.Empty(t, result.OrderID)
	require.Empty(t, handle.apple.confirmed, "confirm must not run after order creation failure")
	require.Empty(t, orders.executes)
	require.Zero(t, carts.cleared)
	require.Len(t, notifier.sent, 1)
	require.Equal(t, notify.TypeNegative, notifier.sent[0].Type)
	require.Equal(t, "Order creation failed", notifier.sent[0].Message)
}

func TestSettleApplePayEmptyOrderID(t *testing.T) {
	handle := &stubHandle{tx: Transaction{ID: "TX1"}, apple: &stubApplePay{}, google: &stubGooglePay{}}
	orders := &stubOrders{order: commerce.Order{ID: ""}}
	notifier := &stubNotifier{}
	s := newSettlement(orders, &stubCarts{}, notifier)

	result := s.SettleApplePay(context.Background(), testSession(handle, ApplePay), AuthorizedPayment{})

	require.Equal(t, TransactionStateError, result.TransactionState)
	require.Len(t, notifier.sent, 1)
	require.Equal(t, "Order creation failed", notifier.sent[0].Message)
}

func TestSettleApplePayTransactionFails(t *testing.T) {
	handle := &stubHandle{txErr: errors.New("provider down"), apple: &stubApplePay{}, google: &stubGooglePay{}}
	orders := &stubOrders{}
	notifier := &stubNotifier{}
	s := newSettlement(orders, &stubCarts{}, notifier)

	result := s.SettleApplePay(context.Background(), testSession(handle, ApplePay), AuthorizedPayment{})

	require.Equal(t, TransactionStateError, result.TransactionState)
	require.Empty(t, orders.creates, "order must not be created without a transaction")
	require.Len(t, notifier.sent, 1)
	require.Equal(t, "Transaction creation failed", notifier.sent[0].Message)
}

func TestSettleApplePayExecuteReturnsFalse(t *testing.T) {
	handle := &stubHandle{tx: Transaction{ID: "TX1"}, apple: &stubApplePay{}, google: &stubGooglePay{}}
	orders := &stubOrders{order: commerce.Order{ID: "1001", AccessKey: "abc"}, executed: false}
	carts := &stubCarts{}
	notifier := &stubNotifier{}
	s := newSettlement(orders, carts, notifier)

	result := s.SettleApplePay(context.Background(), testSession(handle, ApplePay), AuthorizedPayment{})

	require.Equal(t, TransactionStateError, result.TransactionState)
	require.Zero(t, carts.cleared, "cart survives a failed execution")
}

func TestSettleGooglePayApproved(t *testing.T) {
	handle := &stubHandle{
		tx:     Transaction{ID: "TX9", PayerID: "P1"},
		apple:  &stubApplePay{},
		google: &stubGooglePay{status: StatusApproved},
	}
	orders := &stubOrders{order: commerce.Order{ID: "2002", AccessKey: "key2"}, executed: true}
	carts := &stubCarts{}
	notifier := &stubNotifier{}
	s := newSettlement(orders, carts, notifier)

	result := s.SettleGooglePay(context.Background(), testSession(handle, GooglePay), AuthorizedPayment{
		PaymentMethodData: json.RawMessage(`{"tokenizationData":{}}`),
	})

	require.Equal(t, TransactionStateSuccess, result.TransactionState)
	require.Equal(t, "confirmation/2002/key2", result.ConfirmationPath)
	require.Len(t, handle.google.confirmed, 1)
	require.Len(t, handle.captured, 1)
	require.Equal(t, CaptureOrderRequest{OrderID: "TX9", PayerID: "P1"}, handle.captured[0])
	require.Len(t, orders.creates, 1, "order created only after capture")
	require.Equal(t, 1, carts.cleared)
	require.Zero(t, handle.google.payerActions)
}

func TestSettleGooglePayPayerActionApproved(t *testing.T) {
	handle := &stubHandle{
		tx:     Transaction{ID: "TX9", PayerID: "P1"},
		order:  OrderResult{Status: StatusApproved},
		apple:  &stubApplePay{},
		google: &stubGooglePay{status: StatusPayerActionRequired},
	}
	orders := &stubOrders{order: commerce.Order{ID: "2002", AccessKey: "key2"}, executed: true}
	s := newSettlement(orders, &stubCarts{}, &stubNotifier{})

	result := s.SettleGooglePay(context.Background(), testSession(handle, GooglePay), AuthorizedPayment{})

	require.Equal(t, TransactionStateSuccess, result.TransactionState)
	require.Equal(t, 1, handle.google.payerActions)
	require.Len(t, handle.fetched, 1)
	require.Len(t, handle.captured, 1)
}

func TestSettleGooglePayPayerActionNotApproved(t *testing.T) {
	handle := &stubHandle{
		tx:     Transaction{ID: "TX9"},
		order:  OrderResult{Status: "CREATED"},
		apple:  &stubApplePay{},
		google: &stubGooglePay{status: StatusPayerActionRequired},
	}
	orders := &stubOrders{}
	notifier := &stubNotifier{}
	s := newSettlement(orders, &stubCarts{}, notifier)

	result := s.SettleGooglePay(context.Background(), testSession(handle, GooglePay), AuthorizedPayment{})

	require.Equal(t, TransactionStateError, result.TransactionState)
	require.Empty(t, handle.captured, "capture requires an approved order")
	require.Empty(t, orders.creates)
	require.Len(t, notifier.sent, 1)
	require.Equal(t, "Payment failed", notifier.sent[0].Message)
}

func TestSettleGooglePayTransactionFails(t *testing.T) {
	handle := &stubHandle{txErr: errors.New("down"), apple: &stubApplePay{}, google: &stubGooglePay{}}
	notifier := &stubNotifier{}
	s := newSettlement(&stubOrders{}, &stubCarts{}, notifier)

	result := s.SettleGooglePay(context.Background(), testSession(handle, GooglePay), AuthorizedPayment{})

	require.Equal(t, TransactionStateError, result.TransactionState)
	require.Len(t, notifier.sent, 1)
	require.Equal(t, "Failed to create transaction", notifier.sent[0].Message)
}

func TestSettleGooglePayCaptureFails(t *testing.T) {
	handle := &stubHandle{
		tx:         Transaction{ID: "TX9"},
		captureErr: errors.New("declined"),
		apple:      &stubApplePay{},
		google:     &stubGooglePay{status: StatusApproved},
	}
	orders := &stubOrders{}
	notifier := &stubNotifier{}
	s := newSettlement(orders, &stubCarts{}, notifier)

	result := s.SettleGooglePay(context.Background(), testSession(handle, GooglePay), AuthorizedPayment{})

	require.Equal(t, TransactionStateError, result.TransactionState)
	require.Empty(t, orders.creates)
	require.Equal(t, "Payment failed", notifier.sent[0].Message)
}
