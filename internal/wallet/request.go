package wallet

import (
	"encoding/json"
	"slices"

	"github.com/noah-isme/checkout-gateway/internal/cart"
)

// LineItem is the total line displayed on a payment sheet.
type LineItem struct {
	Type   string `json:"type"`
	Label  string `json:"label"`
	Amount string `json:"amount"`
}

// PaymentRequest is the Apple Pay payment sheet request. It is derived fresh
// for each checkout attempt from the merchant config and the cart total at
// session start.
type PaymentRequest struct {
	CountryCode                   string   `json:"countryCode"`
	CurrencyCode                  string   `json:"currencyCode"`
	MerchantCapabilities          []string `json:"merchantCapabilities"`
	SupportedNetworks             []string `json:"supportedNetworks"`
	RequiredBillingContactFields  []string `json:"requiredBillingContactFields"`
	RequiredShippingContactFields []string `json:"requiredShippingContactFields"`
	Total                         LineItem `json:"total"`
}

// NewPaymentRequest builds the Apple Pay request. Billing is fixed to postal
// address; shipping contact fields are not requested because the cart already
// carries the shipping selection.
func NewPaymentRequest(cfg MerchantConfig, snap cart.Snapshot, storeName string) PaymentRequest {
	if storeName == "" {
		storeName = "storefront"
	}
	return PaymentRequest{
		CountryCode:                   cfg.CountryCode,
		CurrencyCode:                  cfg.CurrencyCode,
		MerchantCapabilities:          slices.Clone(cfg.MerchantCapabilities),
		SupportedNetworks:             slices.Clone(cfg.SupportedNetworks),
		RequiredBillingContactFields:  []string{"postalAddress"},
		RequiredShippingContactFields: []string{},
		Total: LineItem{
			Type:   "final",
			Label:  storeName,
			Amount: snap.TotalString(),
		},
	}
}

// TransactionInfo is the Google Pay transaction summary.
type TransactionInfo struct {
	CountryCode      string `json:"countryCode"`
	CurrencyCode     string `json:"currencyCode"`
	TotalPriceStatus string `json:"totalPriceStatus"`
	TotalPrice       string `json:"totalPrice"`
}

// PaymentDataRequest is the Google Pay sheet request.
type PaymentDataRequest struct {
	APIVersion            int             `json:"apiVersion"`
	APIVersionMinor       int             `json:"apiVersionMinor"`
	AllowedPaymentMethods json.RawMessage `json:"allowedPaymentMethods"`
	TransactionInfo       TransactionInfo `json:"transactionInfo"`
	MerchantInfo          json.RawMessage `json:"merchantInfo"`
}

// NewPaymentDataRequest builds the Google Pay request. Config payloads are
// value-copied so the stored merchant config can never be mutated through the
// request.
func NewPaymentDataRequest(cfg MerchantConfig, snap cart.Snapshot) PaymentDataRequest {
	currency := snap.Currency
	if currency == "" {
		currency = cfg.CurrencyCode
	}
	copied := cfg.Copy()
	return PaymentDataRequest{
		APIVersion:            2,
		APIVersionMinor:       0,
		AllowedPaymentMethods: copied.AllowedPaymentMethods,
		TransactionInfo: TransactionInfo{
			CountryCode:      cfg.CountryCode,
			CurrencyCode:     currency,
			TotalPriceStatus: "FINAL",
			TotalPrice:       snap.TotalString(),
		},
		MerchantInfo: copied.MerchantInfo,
	}
}

// IsReadyToPayRequest asks the device whether Google Pay is available.
type IsReadyToPayRequest struct {
	APIVersion            int             `json:"apiVersion"`
	APIVersionMinor       int             `json:"apiVersionMinor"`
	AllowedPaymentMethods json.RawMessage `json:"allowedPaymentMethods"`
}

// NewIsReadyToPayRequest builds the readiness probe request.
func NewIsReadyToPayRequest(cfg MerchantConfig) IsReadyToPayRequest {
	copied := cfg.Copy()
	return IsReadyToPayRequest{
		APIVersion:            2,
		APIVersionMinor:       0,
		AllowedPaymentMethods: copied.AllowedPaymentMethods,
	}
}
