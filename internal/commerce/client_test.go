package commerce

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/checkout-gateway/internal/resilience"
)

func newClient(url string) *Client {
	return &Client{
		HTTP: resilience.HTTPClient{
			Client:  &http.Client{},
			Breaker: resilience.NewBreaker(100, 0.99, time.Minute),
			Timeout: time.Second,
		},
		BaseURL: url,
		APIKey:  "key-1",
	}
}

func TestGetSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rest/storefront/session", r.URL.Path)
		require.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
		require.Equal(t, "sess-1", r.Header.Get("X-Session-ID"))
		_, _ = w.Write([]byte(`{"user":{"id":7},"basket":{"currency":"EUR","basketAmount":49.99,"itemQuantity":2,"methodOfPaymentId":6001},"csrf":"tok"}`))
	}))
	defer srv.Close()

	session, err := newClient(srv.URL).GetSession(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Equal(t, "EUR", session.Basket.Currency)
	require.Equal(t, 49.99, session.Basket.Total)
	require.Equal(t, "tok", session.CSRF)
	require.JSONEq(t, `{"id":7}`, string(session.User))
}

func TestCreateOrderUnwrapsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/rest/storefront/order", r.URL.Path)
		var in CreateOrderInput
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		require.Equal(t, 6001, in.PaymentID)
		require.True(t, in.ShippingPrivacyHintAccepted)
		_, _ = w.Write([]byte(`{"order":{"id":"1001","accessKey":"abc"}}`))
	}))
	defer srv.Close()

	order, err := newClient(srv.URL).CreateOrder(context.Background(), "sess-1", CreateOrderInput{
		PaymentID:                   6001,
		ShippingPrivacyHintAccepted: true,
	})
	require.NoError(t, err)
	require.Equal(t, Order{ID: "1001", AccessKey: "abc"}, order)
}

func TestExecuteOrderReportsSuccessFlag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in ExecuteOrderInput
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		require.Equal(t, ExecuteOrderInput{Mode: "paypal", OrderID: 1001, TransactionID: "TX1"}, in)
		_, _ = w.Write([]byte(`{"success":false}`))
	}))
	defer srv.Close()

	ok, err := newClient(srv.URL).ExecuteOrder(context.Background(), "sess-1", ExecuteOrderInput{
		Mode: "paypal", OrderID: 1001, TransactionID: "TX1",
	})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetShippingProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rest/storefront/shipping/methods", r.URL.Path)
		_, _ = w.Write([]byte(`{"list":[{"parcelServicePresetId":1,"parcelServicePresetName":"Standard","shippingAmount":3.99,"currency":"EUR"}],"selectedShippingMethodId":1}`))
	}))
	defer srv.Close()

	provider, err := newClient(srv.URL).GetShippingProvider(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Equal(t, 1, provider.SelectedID)
	require.Len(t, provider.List, 1)
	require.Equal(t, "Standard", provider.List[0].Name)
}

func TestClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).GetSession(context.Background(), "sess-1")
	require.Error(t, err)
}
