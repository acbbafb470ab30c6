// Package commerce is the HTTP client for the backend commerce API. The
// gateway only consumes this contract: it never owns order or session state.
package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/noah-isme/checkout-gateway/internal/resilience"
)

// Order is the backend-side order entity. The gateway only reads the id and
// access key returned by order creation.
type Order struct {
	ID        string `json:"id"`
	AccessKey string `json:"accessKey"`
}

// CreateOrderInput carries the payment method selection and the shipping
// privacy agreement collected from prior UI state.
type CreateOrderInput struct {
	PaymentID                   int  `json:"paymentId"`
	ShippingPrivacyHintAccepted bool `json:"shippingPrivacyHintAccepted"`
}

// ExecuteOrderInput finalises an order against a captured provider transaction.
type ExecuteOrderInput struct {
	Mode          string `json:"mode"`
	OrderID       int    `json:"orderId"`
	TransactionID string `json:"transactionId"`
}

// Basket is the cart portion of a commerce session.
type Basket struct {
	Currency          string  `json:"currency"`
	Total             float64 `json:"basketAmount"`
	ItemQuantity      int     `json:"itemQuantity"`
	MethodOfPaymentID int     `json:"methodOfPaymentId"`
}

// Session is the state returned by the backend for a shopper session.
type Session struct {
	User   json.RawMessage `json:"user"`
	Basket Basket          `json:"basket"`
	CSRF   string          `json:"csrf"`
}

// ShippingMethod describes a single shipping option offered by the backend.
type ShippingMethod struct {
	ID           int     `json:"parcelServicePresetId"`
	Name         string  `json:"parcelServicePresetName"`
	ShippingCost float64 `json:"shippingAmount"`
	Currency     string  `json:"currency"`
}

// ShippingProvider groups the shipping methods for the current cart.
type ShippingProvider struct {
	List       []ShippingMethod `json:"list"`
	SelectedID int              `json:"selectedShippingMethodId"`
}

// Client talks to the backend commerce API on behalf of a shopper session.
type Client struct {
	HTTP    resilience.HTTPClient
	BaseURL string
	APIKey  string
}

// GetSession fetches the current customer/cart state for the session.
func (c *Client) GetSession(ctx context.Context, sessionID string) (Session, error) {
	var out Session
	if err := c.do(ctx, http.MethodGet, "/rest/storefront/session", sessionID, nil, &out); err != nil {
		return Session{}, fmt.Errorf("commerce: get session: %w", err)
	}
	return out, nil
}

// GetShippingProvider fetches shipping methods for the session's cart.
func (c *Client) GetShippingProvider(ctx context.Context, sessionID string) (ShippingProvider, error) {
	var out ShippingProvider
	if err := c.do(ctx, http.MethodGet, "/rest/storefront/shipping/methods", sessionID, nil, &out); err != nil {
		return ShippingProvider{}, fmt.Errorf("commerce: get shipping methods: %w", err)
	}
	return out, nil
}

// CreateOrder creates a backend order for the session's cart.
func (c *Client) CreateOrder(ctx context.Context, sessionID string, in CreateOrderInput) (Order, error) {
	var out struct {
		Order Order `json:"order"`
	}
	if err := c.do(ctx, http.MethodPost, "/rest/storefront/order", sessionID, in, &out); err != nil {
		return Order{}, fmt.Errorf("commerce: create order: %w", err)
	}
	return out.Order, nil
}

// ExecuteOrder finalises the order against the captured provider transaction.
// The backend reports a boolean result; settlement treats anything but true as
// a failure.
func (c *Client) ExecuteOrder(ctx context.Context, sessionID string, in ExecuteOrderInput) (bool, error) {
	var out struct {
		Success bool `json:"success"`
	}
	if err := c.do(ctx, http.MethodPost, "/rest/storefront/order/execute", sessionID, in, &out); err != nil {
		return false, fmt.Errorf("commerce: execute order: %w", err)
	}
	return out.Success, nil
}

// AllowApplePay reports Apple Pay device eligibility to the backend.
func (c *Client) AllowApplePay(ctx context.Context, sessionID string, canMakePayments bool) error {
	in := map[string]bool{"canMakePayments": canMakePayments}
	if err := c.do(ctx, http.MethodPost, "/rest/storefront/payment/apple-pay/allow", sessionID, in, nil); err != nil {
		return fmt.Errorf("commerce: allow apple pay: %w", err)
	}
	return nil
}

// AllowGooglePay reports the Google Pay payment methods the device accepts.
func (c *Client) AllowGooglePay(ctx context.Context, sessionID string, allowedPaymentMethods json.RawMessage) error {
	in := map[string]json.RawMessage{"allowedPaymentMethods": allowedPaymentMethods}
	if err := c.do(ctx, http.MethodPost, "/rest/storefront/payment/google-pay/allow", sessionID, in, nil); err != nil {
		return fmt.Errorf("commerce: allow google pay: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, sessionID string, in, out any) error {
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
	url := strings.TrimRight(c.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if key := strings.TrimSpace(c.APIKey); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	if session := strings.TrimSpace(sessionID); session != "" {
		req.Header.Set("X-Session-ID", session)
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
