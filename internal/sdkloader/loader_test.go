package sdkloader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/noah-isme/checkout-gateway/internal/resilience"
)

func testClient() resilience.HTTPClient {
	return resilience.HTTPClient{
		Client:  &http.Client{},
		Breaker: resilience.NewBreaker(100, 0.99, time.Second),
		Timeout: time.Second,
	}
}

func TestLoadFetchesOnce(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte("console.log('sdk')"))
	}))
	defer srv.Close()

	loader := New(testClient())
	ctx := context.Background()

	const callers = 16
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = loader.Load(ctx, srv.URL)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("expected a single fetch, got %d", got)
	}
	if !loader.Loaded(srv.URL) {
		t.Fatal("expected url to be marked loaded")
	}

	// Later calls are satisfied from the loaded set.
	if err := loader.Load(ctx, srv.URL); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("expected no additional fetch, got %d", got)
	}
}

func TestLoadFailureIsNotCached(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	loader := New(testClient())
	ctx := context.Background()

	if err := loader.Load(ctx, srv.URL); err == nil {
		t.Fatal("expected first load to fail")
	}
	if loader.Loaded(srv.URL) {
		t.Fatal("failed load must not mark url loaded")
	}
	if err := loader.Load(ctx, srv.URL); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !loader.Loaded(srv.URL) {
		t.Fatal("expected url loaded after retry")
	}
}

func TestLoadRequiresURL(t *testing.T) {
	loader := New(testClient())
	if err := loader.Load(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty url")
	}
}
