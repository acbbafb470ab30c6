// Package sdkloader guarantees that an external payment SDK bundle is
// fetched and registered at most once per process lifetime.
package sdkloader

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/checkout-gateway/internal/obs"
	"github.com/noah-isme/checkout-gateway/internal/resilience"
)

// Loader fetches SDK bundles over HTTP. Concurrent callers for the same URL
// share a single in-flight fetch; once a URL has loaded successfully every
// later call returns immediately. A failed load is not cached, so the caller
// decides whether to try again.
type Loader struct {
	HTTP resilience.HTTPClient

	group  singleflight.Group
	mu     sync.Mutex
	loaded map[string]struct{}
}

// New constructs a Loader using the provided outbound HTTP client.
func New(client resilience.HTTPClient) *Loader {
	return &Loader{HTTP: client}
}

// Load ensures the script at url has been fetched successfully at least once.
func (l *Loader) Load(ctx context.Context, url string) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return fmt.Errorf("sdkloader: url is required")
	}
	l.mu.Lock()
	if _, ok := l.loaded[url]; ok {
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	_, err, _ := l.group.Do(url, func() (any, error) {
		if err := l.fetch(ctx, url); err != nil {
			if obs.SdkScriptLoadTotal != nil {
				obs.SdkScriptLoadTotal.WithLabelValues("error").Inc()
			}
			return nil, err
		}
		l.mu.Lock()
		if l.loaded == nil {
			l.loaded = map[string]struct{}{}
		}
		l.loaded[url] = struct{}{}
		l.mu.Unlock()
		if obs.SdkScriptLoadTotal != nil {
			obs.SdkScriptLoadTotal.WithLabelValues("success").Inc()
		}
		return nil, nil
	})
	return err
}

// Loaded reports whether the url has been fetched successfully before.
func (l *Loader) Loaded(url string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.loaded[url]
	return ok
}

func (l *Loader) fetch(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("sdkloader: build request: %w", err)
	}
	resp, err := l.HTTP.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("sdkloader: fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sdkloader: fetch %s: unexpected status %s", url, resp.Status)
	}
	return nil
}
