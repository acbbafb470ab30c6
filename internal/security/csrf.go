package security

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

// TokenSource resolves the CSRF token stored for a shopper session. An empty
// token means the session was never bootstrapped.
type TokenSource interface {
	CSRFToken(ctx context.Context, sessionID string) (string, error)
}

// CSRF validates the X-CSRF-Token header on state-changing requests against
// the token captured during session bootstrap.
type CSRF struct {
	Tokens TokenSource
	Header string
}

// Middleware enforces the CSRF check. Sessions without a stored token pass
// through, so the check only hardens bootstrapped browser flows.
func (c CSRF) Middleware(next http.Handler) http.Handler {
	headerName := strings.TrimSpace(c.Header)
	if headerName == "" {
		headerName = "X-CSRF-Token"
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.Method
		if method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if c.Tokens == nil {
			next.ServeHTTP(w, r)
			return
		}
		sessionID := strings.TrimSpace(r.Header.Get("X-Session-ID"))
		if sessionID == "" {
			next.ServeHTTP(w, r)
			return
		}
		stored, err := c.Tokens.CSRFToken(r.Context(), sessionID)
		if err != nil {
			http.Error(w, "csrf validation unavailable", http.StatusServiceUnavailable)
			return
		}
		if stored == "" {
			next.ServeHTTP(w, r)
			return
		}
		token := strings.TrimSpace(r.Header.Get(headerName))
		if token == "" {
			http.Error(w, "missing csrf token", http.StatusForbidden)
			return
		}
		if constantTimeEqual(token, stored) != 1 {
			http.Error(w, "invalid csrf token", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func constantTimeEqual(a, b string) int {
	if len(a) != len(b) {
		return 0
	}
	if len(a) == 0 {
		return 1
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b))
}
