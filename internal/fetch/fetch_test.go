package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testFetcher(opts Options) *Fetcher {
	opts.BackoffInitial = time.Millisecond
	opts.BackoffMax = 2 * time.Millisecond
	return New(opts)
}

func TestFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "test-agent" {
			t.Errorf("expected user agent 'test-agent', got %q", ua)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<p>hello</p>")
	}))
	defer srv.Close()

	f := testFetcher(Options{UserAgent: "test-agent"})
	body, err := f.Fetch(context.Background(), srv.URL+"/page")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != "<p>hello</p>" {
		t.Errorf("unexpected body %q", body)
	}
}

func TestFetchDecodesCharset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		w.Write([]byte("caf\xe9"))
	}))
	defer srv.Close()

	body, err := testFetcher(Options{}).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != "café" {
		t.Errorf("expected utf-8 decoded body, got %q", body)
	}
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	body, err := testFetcher(Options{Attempts: 3}).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != "ok" || calls.Load() != 3 {
		t.Errorf("expected success on 3rd attempt, got %q after %d calls", body, calls.Load())
	}
}

func TestFetchGivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testFetcher(Options{Attempts: 3}).Fetch(context.Background(), srv.URL)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 StatusError, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testFetcher(Options{Attempts: 3}).Fetch(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("expected a single attempt for 404, got %d", calls.Load())
	}
}

func TestFetchAttemptTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	_, err := testFetcher(Options{Attempts: 2, AttemptTimeout: 50 * time.Millisecond}).Fetch(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("attempt timeout not enforced, took %v", elapsed)
	}
}

func TestBreakerOpensPerHost(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := testFetcher(Options{Attempts: 1, BreakerThreshold: 2, BreakerCooldown: time.Minute})
	ctx := context.Background()
	f.Fetch(ctx, srv.URL+"/a")
	f.Fetch(ctx, srv.URL+"/b")

	_, err := f.Fetch(ctx, srv.URL+"/c")
	if err == nil || !strings.Contains(err.Error(), "circuit breaker is open") {
		t.Errorf("expected open circuit error, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected open breaker to skip the request, got %d calls", calls.Load())
	}
}

func TestRobotsDisallow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			fmt.Fprint(w, "User-agent: *\nDisallow: /private/\n")
			return
		}
		fmt.Fprint(w, "page")
	}))
	defer srv.Close()

	f := testFetcher(Options{RespectRobots: true})
	ctx := context.Background()

	if _, err := f.Fetch(ctx, srv.URL+"/private/x"); !errors.Is(err, ErrDisallowed) {
		t.Errorf("expected ErrDisallowed, got %v", err)
	}
	if _, err := f.Fetch(ctx, srv.URL+"/public"); err != nil {
		t.Errorf("expected public page to be allowed, got %v", err)
	}
}

func TestRobotsHangingHostAllowsAll(t *testing.T) {
	var robotsHits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			robotsHits.Add(1)
			select {
			case <-r.Context().Done():
			case <-release:
			}
			return
		}
		fmt.Fprint(w, "page")
	}))
	defer srv.Close()
	defer close(release)

	f := testFetcher(Options{RespectRobots: true, AttemptTimeout: 100 * time.Millisecond})
	ctx := context.Background()

	start := time.Now()
	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.Fetch(ctx, fmt.Sprintf("%s/page/%d", srv.URL, i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("expected fetch to proceed after robots.txt timeout, got %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("robots.txt wait not bounded, took %v", elapsed)
	}
	if n := robotsHits.Load(); n != 1 {
		t.Errorf("expected one robots.txt request for the host, got %d", n)
	}
}

func TestFetchInvalidURL(t *testing.T) {
	if _, err := testFetcher(Options{}).Fetch(context.Background(), "not a url"); err == nil {
		t.Error("expected error for url without host")
	}
}

func TestStatusErrorPermanent(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{404, true},
		{403, true},
		{408, false},
		{429, false},
		{500, false},
		{503, false},
	}
	for _, tt := range tests {
		if got := (&StatusError{Code: tt.code}).Permanent(); got != tt.want {
			t.Errorf("code %d: expected permanent=%v, got %v", tt.code, tt.want, got)
		}
	}
}
