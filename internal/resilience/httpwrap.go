package resilience

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"
)

// HTTPClient wraps an http.Client with a per-call timeout and a circuit
// breaker. Settlement steps are never retried automatically, so the wrapper
// performs exactly one attempt per call.
type HTTPClient struct {
	Client  *http.Client
	Breaker *Breaker
	Timeout time.Duration
}

// Do executes the request once. When the breaker is open ErrOpenCircuit is
// returned without touching the network. The request body is buffered so the
// breaker probe in half-open state can replay it.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	breaker := cl.Breaker
	if breaker == nil {
		breaker = NewBreaker(1, 1, time.Second)
	}
	if !breaker.Allow() {
		return nil, ErrOpenCircuit
	}
	if err := ensureReplayableBody(req); err != nil {
		breaker.Report(false)
		return nil, err
	}

	timeout := cl.Timeout
	if timeout <= 0 {
		timeout = cl.Client.Timeout
	}
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	resp, err := cl.Client.Do(req.WithContext(ctx))
	if err != nil {
		breaker.Report(false)
		return nil, err
	}
	// Buffer the body before the call context is cancelled so callers can
	// decode it at their leisure.
	body, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		breaker.Report(false)
		return nil, readErr
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	breaker.Report(resp.StatusCode < http.StatusInternalServerError)
	return resp, nil
}

func ensureReplayableBody(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody {
		return nil
	}
	if req.GetBody != nil {
		return nil
	}
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return err
	}
	_ = req.Body.Close()
	req.Body = io.NopCloser(bytes.NewReader(data))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return nil
}
