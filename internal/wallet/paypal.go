package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/noah-isme/checkout-gateway/internal/resilience"
)

// PayPalClient implements HandleSource against the PayPal REST proxy used by
// the storefront. Handles are created lazily per currency and cached for the
// process lifetime.
type PayPalClient struct {
	HTTP       resilience.HTTPClient
	BaseURL    string
	ClientID   string
	Secret     string
	MerchantID string
	// Currencies lists the currencies an SDK instance is configured for.
	Currencies []string

	mu      sync.Mutex
	handles map[string]Handle
}

// Handle returns the SDK handle for the currency, or ErrUnsupportedCurrency
// when the currency has no configured instance.
func (c *PayPalClient) Handle(_ context.Context, currency string) (Handle, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	supported := slices.ContainsFunc(c.Currencies, func(cur string) bool {
		return strings.EqualFold(cur, currency)
	})
	if currency == "" || !supported {
		return nil, ErrUnsupportedCurrency
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.handles[currency]; ok {
		return h, nil
	}
	if c.handles == nil {
		c.handles = map[string]Handle{}
	}
	h := &paypalHandle{client: c, currency: currency}
	c.handles[currency] = h
	return h, nil
}

type paypalHandle struct {
	client   *PayPalClient
	currency string
}

func (h *paypalHandle) CreateCreditCardTransaction(ctx context.Context) (Transaction, error) {
	var out Transaction
	body := map[string]string{"currencyCode": h.currency}
	if err := h.client.do(ctx, http.MethodPost, "/v2/checkout/orders", body, &out); err != nil {
		return Transaction{}, fmt.Errorf("paypal: create transaction: %w", err)
	}
	return out, nil
}

func (h *paypalHandle) CaptureOrder(ctx context.Context, req CaptureOrderRequest) error {
	path := "/v2/checkout/orders/" + url.PathEscape(req.OrderID) + "/capture"
	body := map[string]string{"payerId": req.PayerID}
	if err := h.client.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("paypal: capture order: %w", err)
	}
	return nil
}

func (h *paypalHandle) GetOrder(ctx context.Context, req GetOrderRequest) (OrderResult, error) {
	path := "/v2/checkout/orders/" + url.PathEscape(req.OrderID)
	if payer := strings.TrimSpace(req.PayerID); payer != "" {
		path += "?payerId=" + url.QueryEscape(payer)
	}
	var out OrderResult
	if err := h.client.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return OrderResult{}, fmt.Errorf("paypal: get order: %w", err)
	}
	return out, nil
}

func (h *paypalHandle) ApplePay() ApplePayAPI {
	return &applePayAPI{handle: h}
}

func (h *paypalHandle) GooglePay() GooglePayAPI {
	return &googlePayAPI{handle: h}
}

type applePayAPI struct {
	handle *paypalHandle
}

func (a *applePayAPI) Config(ctx context.Context) (MerchantConfig, error) {
	path := "/v1/wallet/apple-pay/config?currency=" + url.QueryEscape(a.handle.currency)
	var out MerchantConfig
	if err := a.handle.client.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return MerchantConfig{}, fmt.Errorf("paypal: apple pay config: %w", err)
	}
	return out, nil
}

func (a *applePayAPI) ValidateMerchant(ctx context.Context, validationURL string) (json.RawMessage, error) {
	body := map[string]string{
		"validationUrl": validationURL,
		"merchantId":    a.handle.client.MerchantID,
	}
	var out struct {
		MerchantSession json.RawMessage `json:"merchantSession"`
	}
	if err := a.handle.client.do(ctx, http.MethodPost, "/v1/wallet/apple-pay/validate-merchant", body, &out); err != nil {
		return nil, fmt.Errorf("paypal: validate merchant: %w", err)
	}
	if len(out.MerchantSession) == 0 {
		return nil, fmt.Errorf("paypal: validate merchant: empty merchant session")
	}
	return out.MerchantSession, nil
}

func (a *applePayAPI) ConfirmOrder(ctx context.Context, req ConfirmApplePayOrder) error {
	path := "/v2/checkout/orders/" + url.PathEscape(req.OrderID) + "/confirm-payment-source"
	body := map[string]json.RawMessage{
		"token":          req.Token,
		"billingContact": req.BillingContact,
	}
	if err := a.handle.client.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("paypal: confirm apple pay order: %w", err)
	}
	return nil
}

type googlePayAPI struct {
	handle *paypalHandle
}

func (g *googlePayAPI) Config(ctx context.Context) (MerchantConfig, error) {
	path := "/v1/wallet/google-pay/config?currency=" + url.QueryEscape(g.handle.currency)
	var out MerchantConfig
	if err := g.handle.client.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return MerchantConfig{}, fmt.Errorf("paypal: google pay config: %w", err)
	}
	return out, nil
}

func (g *googlePayAPI) ConfirmOrder(ctx context.Context, req ConfirmGooglePayOrder) (string, error) {
	path := "/v2/checkout/orders/" + url.PathEscape(req.OrderID) + "/confirm-payment-source"
	body := map[string]json.RawMessage{
		"paymentMethodData": req.PaymentMethodData,
	}
	var out struct {
		Status string `json:"status"`
	}
	if err := g.handle.client.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return "", fmt.Errorf("paypal: confirm google pay order: %w", err)
	}
	return out.Status, nil
}

func (g *googlePayAPI) InitiatePayerAction(ctx context.Context, orderID string) error {
	path := "/v2/checkout/orders/" + url.PathEscape(orderID) + "/payer-action"
	if err := g.handle.client.do(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("paypal: initiate payer action: %w", err)
	}
	return nil
}

func (c *PayPalClient) do(ctx context.Context, method, path string, in, out any) error {
	var body *bytes.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		body = bytes.NewReader(encoded)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.BaseURL, "/")+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.ClientID != "" {
		req.SetBasicAuth(c.ClientID, c.Secret)
	}
	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
