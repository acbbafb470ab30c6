package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeSettler struct {
	result SettleResult
	calls  int
	wallet Wallet
}

func (f *fakeSettler) SettleApplePay(_ context.Context, _ *Session, _ AuthorizedPayment) SettleResult {
	f.calls++
	f.wallet = ApplePay
	return f.result
}

func (f *fakeSettler) SettleGooglePay(_ context.Context, _ *Session, _ AuthorizedPayment) SettleResult {
	f.calls++
	f.wallet = GooglePay
	return f.result
}

type validatingApplePay struct {
	session json.RawMessage
	err     error
	urls    []string
}

func (v *validatingApplePay) Config(context.Context) (MerchantConfig, error) {
	return MerchantConfig{}, nil
}

func (v *validatingApplePay) ValidateMerchant(_ context.Context, url string) (json.RawMessage, error) {
	v.urls = append(v.urls, url)
	return v.session, v.err
}

func (v *validatingApplePay) ConfirmOrder(context.Context, ConfirmApplePayOrder) error { return nil }

func newController(settle Settler) *Controller {
	return &Controller{Settle: settle, TTL: time.Minute, Logger: zerolog.Nop()}
}

func applePaySession(api ApplePayAPI) *Session {
	return &Session{ID: "sess-1", Wallet: ApplePay, Currency: "EUR", Apple: api}
}

func TestPaySessionApplePayLifecycle(t *testing.T) {
	apple := &validatingApplePay{session: json.RawMessage(`{"merchantSessionIdentifier":"m1"}`)}
	settler := &fakeSettler{result: SettleResult{TransactionState: TransactionStateSuccess, OrderID: "1001"}}
	ctrl := newController(settler)

	attempt, err := ctrl.Begin(applePaySession(apple), BeginOptions{RequiresMerchantValidation: true})
	require.NoError(t, err)
	require.Equal(t, StateAwaitingMerchantValidation, attempt.State())

	ctx := context.Background()
	merchantSession, err := ctrl.ValidateMerchant(ctx, attempt.AttemptID, "https://apple.example/validate")
	require.NoError(t, err)
	require.JSONEq(t, `{"merchantSessionIdentifier":"m1"}`, string(merchantSession))
	require.Equal(t, []string{"https://apple.example/validate"}, apple.urls)
	require.Equal(t, StateAwaitingAuthorization, attempt.State())

	result, err := ctrl.Authorize(ctx, attempt.AttemptID, AuthorizedPayment{Token: json.RawMessage(`{}`)})
	require.NoError(t, err)
	require.Equal(t, TransactionStateSuccess, result.TransactionState)
	require.Equal(t, 1, settler.calls)
	require.Equal(t, ApplePay, settler.wallet)
	require.Equal(t, StateCompleted, attempt.State())

	// Terminal attempts are removed from the registry.
	require.Eventually(t, func() bool {
		_, err := ctrl.Authorize(ctx, attempt.AttemptID, AuthorizedPayment{})
		return errors.Is(err, ErrAttemptNotFound)
	}, time.Second, 10*time.Millisecond)
}

func TestPaySessionAuthorizeBeforeValidation(t *testing.T) {
	apple := &validatingApplePay{session: json.RawMessage(`{}`)}
	ctrl := newController(&fakeSettler{})

	attempt, err := ctrl.Begin(applePaySession(apple), BeginOptions{RequiresMerchantValidation: true})
	require.NoError(t, err)

	_, err = ctrl.Authorize(context.Background(), attempt.AttemptID, AuthorizedPayment{})
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Equal(t, StateAwaitingMerchantValidation, attempt.State())
}

func TestPaySessionValidationFailureAborts(t *testing.T) {
	apple := &validatingApplePay{err: errors.New("validation rejected")}
	ctrl := newController(&fakeSettler{})

	attempt, err := ctrl.Begin(applePaySession(apple), BeginOptions{RequiresMerchantValidation: true})
	require.NoError(t, err)

	_, err = ctrl.ValidateMerchant(context.Background(), attempt.AttemptID, "https://apple.example/validate")
	require.Error(t, err)
	require.Equal(t, StateAborted, attempt.State())
}

func TestPaySessionGooglePaySkipsValidation(t *testing.T) {
	settler := &fakeSettler{result: SettleResult{TransactionState: TransactionStateSuccess}}
	ctrl := newController(settler)

	attempt, err := ctrl.Begin(&Session{ID: "sess-1", Wallet: GooglePay}, BeginOptions{})
	require.NoError(t, err)
	require.Equal(t, StateAwaitingAuthorization, attempt.State())

	result, err := ctrl.Authorize(context.Background(), attempt.AttemptID, AuthorizedPayment{})
	require.NoError(t, err)
	require.Equal(t, TransactionStateSuccess, result.TransactionState)
	require.Equal(t, GooglePay, settler.wallet)
}

func TestPaySessionFailedSettlementAborts(t *testing.T) {
	settler := &fakeSettler{result: SettleResult{TransactionState: TransactionStateError}}
	ctrl := newController(settler)

	attempt, err := ctrl.Begin(&Session{ID: "sess-1", Wallet: GooglePay}, BeginOptions{})
	require.NoError(t, err)

	result, err := ctrl.Authorize(context.Background(), attempt.AttemptID, AuthorizedPayment{})
	require.NoError(t, err)
	require.Equal(t, TransactionStateError, result.TransactionState)
	require.Equal(t, StateAborted, attempt.State())
}

func TestPaySessionCancel(t *testing.T) {
	ctrl := newController(&fakeSettler{})

	attempt, err := ctrl.Begin(&Session{ID: "sess-1", Wallet: GooglePay}, BeginOptions{})
	require.NoError(t, err)

	require.NoError(t, ctrl.Cancel(context.Background(), attempt.AttemptID))
	require.Equal(t, StateCancelled, attempt.State())

	// Cancelling an unknown attempt is a no-op.
	require.NoError(t, ctrl.Cancel(context.Background(), "missing"))
}

func TestPaySessionUnknownAttempt(t *testing.T) {
	ctrl := newController(&fakeSettler{})
	_, err := ctrl.Authorize(context.Background(), "nope", AuthorizedPayment{})
	require.ErrorIs(t, err, ErrAttemptNotFound)
}
