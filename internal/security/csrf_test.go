package security

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) CSRFToken(context.Context, string) (string, error) {
	return s.token, s.err
}

func csrfRequest(method, session, token string) *http.Request {
	req := httptest.NewRequest(method, "/api/v1/wallets/google-pay/authorize", nil)
	if session != "" {
		req.Header.Set("X-Session-ID", session)
	}
	if token != "" {
		req.Header.Set("X-CSRF-Token", token)
	}
	return req
}

func runCSRF(t *testing.T, tokens TokenSource, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler := CSRF{Tokens: tokens}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCSRFValidToken(t *testing.T) {
	rec := runCSRF(t, staticTokens{token: "tok-1"}, csrfRequest(http.MethodPost, "sess-1", "tok-1"))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected pass-through, got %d", rec.Code)
	}
}

func TestCSRFInvalidToken(t *testing.T) {
	rec := runCSRF(t, staticTokens{token: "tok-1"}, csrfRequest(http.MethodPost, "sess-1", "wrong"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestCSRFMissingToken(t *testing.T) {
	rec := runCSRF(t, staticTokens{token: "tok-1"}, csrfRequest(http.MethodPost, "sess-1", ""))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestCSRFSkipsGET(t *testing.T) {
	rec := runCSRF(t, staticTokens{token: "tok-1"}, csrfRequest(http.MethodGet, "sess-1", ""))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected pass-through for GET, got %d", rec.Code)
	}
}

func TestCSRFSkipsUnbootstrappedSession(t *testing.T) {
	rec := runCSRF(t, staticTokens{token: ""}, csrfRequest(http.MethodPost, "sess-1", ""))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected pass-through without a stored token, got %d", rec.Code)
	}
}

func TestCSRFStoreFailure(t *testing.T) {
	rec := runCSRF(t, staticTokens{err: errors.New("redis down")}, csrfRequest(http.MethodPost, "sess-1", "tok-1"))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
