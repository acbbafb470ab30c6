package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
)

// Wallet identifies a supported wallet integration.
type Wallet string

const (
	// ApplePay drives the Apple Pay sheet through the provider's Applepay namespace.
	ApplePay Wallet = "apple-pay"
	// GooglePay drives the Google Pay sheet through the provider's Googlepay namespace.
	GooglePay Wallet = "google-pay"
)

// ErrUnsupportedCurrency is returned by a HandleSource when no SDK instance is
// configured for the requested currency.
var ErrUnsupportedCurrency = errors.New("wallet: no sdk instance for currency")

// MerchantConfig is the read-only configuration fetched from a wallet
// sub-API. It is immutable once fetched; Copy produces the explicit value
// copies request builders hand out.
type MerchantConfig struct {
	CountryCode           string          `json:"countryCode"`
	CurrencyCode          string          `json:"currencyCode"`
	MerchantCapabilities  []string        `json:"merchantCapabilities,omitempty"`
	SupportedNetworks     []string        `json:"supportedNetworks,omitempty"`
	IsEligible            bool            `json:"isEligible"`
	AllowedPaymentMethods json.RawMessage `json:"allowedPaymentMethods,omitempty"`
	MerchantInfo          json.RawMessage `json:"merchantInfo,omitempty"`
}

// Copy returns a deep copy so callers can never alias the stored config.
func (c MerchantConfig) Copy() MerchantConfig {
	out := c
	out.MerchantCapabilities = slices.Clone(c.MerchantCapabilities)
	out.SupportedNetworks = slices.Clone(c.SupportedNetworks)
	out.AllowedPaymentMethods = append(json.RawMessage(nil), c.AllowedPaymentMethods...)
	out.MerchantInfo = append(json.RawMessage(nil), c.MerchantInfo...)
	return out
}

// Transaction is the provider-side payment object created before a sheet
// authorization is settled. It lives for a single checkout attempt.
type Transaction struct {
	ID      string `json:"id"`
	PayerID string `json:"payerId"`
}

// CaptureOrderRequest captures a confirmed provider transaction.
type CaptureOrderRequest struct {
	OrderID string
	PayerID string
}

// GetOrderRequest polls the provider order after a payer action.
type GetOrderRequest struct {
	OrderID string
	PayerID string
}

// OrderResult is the provider order state returned by GetOrder.
type OrderResult struct {
	Status string `json:"status"`
}

// ConfirmApplePayOrder confirms a transaction with the Apple Pay token and
// billing contact produced by the payment sheet.
type ConfirmApplePayOrder struct {
	OrderID        string
	Token          json.RawMessage
	BillingContact json.RawMessage
}

// ConfirmGooglePayOrder confirms a transaction with Google Pay payment method data.
type ConfirmGooglePayOrder struct {
	OrderID           string
	PaymentMethodData json.RawMessage
}

// Provider transaction statuses observed during Google Pay settlement.
const (
	StatusApproved            = "APPROVED"
	StatusPayerActionRequired = "PAYER_ACTION_REQUIRED"
)

// ApplePayAPI is the provider's Applepay namespace.
type ApplePayAPI interface {
	Config(ctx context.Context) (MerchantConfig, error)
	ValidateMerchant(ctx context.Context, validationURL string) (json.RawMessage, error)
	ConfirmOrder(ctx context.Context, req ConfirmApplePayOrder) error
}

// GooglePayAPI is the provider's Googlepay namespace. ConfirmOrder reports the
// resulting provider transaction status.
type GooglePayAPI interface {
	Config(ctx context.Context) (MerchantConfig, error)
	ConfirmOrder(ctx context.Context, req ConfirmGooglePayOrder) (string, error)
	InitiatePayerAction(ctx context.Context, orderID string) error
}

// Handle is a loaded provider SDK handle for one currency.
type Handle interface {
	CreateCreditCardTransaction(ctx context.Context) (Transaction, error)
	CaptureOrder(ctx context.Context, req CaptureOrderRequest) error
	GetOrder(ctx context.Context, req GetOrderRequest) (OrderResult, error)
	ApplePay() ApplePayAPI
	GooglePay() GooglePayAPI
}

// HandleSource yields provider SDK handles keyed by currency.
type HandleSource interface {
	Handle(ctx context.Context, currency string) (Handle, error)
}
