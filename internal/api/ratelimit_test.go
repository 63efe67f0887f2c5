package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const limitedPath = "/api/v1/files"

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func post(h http.Handler, method, path, remote string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = remote
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRateLimit_Disabled(t *testing.T) {
	t.Parallel()
	h := RateLimit(context.Background(), 0, limitedPath)(okHandler())
	for i := 0; i < 3; i++ {
		if rr := post(h, http.MethodPost, limitedPath, "1.2.3.4:1", nil); rr.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, rr.Code)
		}
	}
}

func TestRateLimit_BlocksOverLimit(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := RateLimit(ctx, 1, limitedPath)(okHandler())

	if rr := post(h, http.MethodPost, limitedPath, "5.6.7.8:1234", nil); rr.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want 200", rr.Code)
	}
	rr := post(h, http.MethodPost, limitedPath, "5.6.7.8:4321", nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: status = %d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}

	// Another client has its own bucket.
	if rr := post(h, http.MethodPost, limitedPath, "9.8.7.6:1", nil); rr.Code != http.StatusOK {
		t.Errorf("other client: status = %d, want 200", rr.Code)
	}
}

func TestRateLimit_OnlyAppliesToPostOnPath(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := RateLimit(ctx, 1, limitedPath)(okHandler())

	for i := 0; i < 5; i++ {
		if rr := post(h, http.MethodGet, limitedPath+"/abc", "9.9.9.9:9999", nil); rr.Code != http.StatusOK {
			t.Errorf("GET %d: status = %d, want 200", i+1, rr.Code)
		}
		if rr := post(h, http.MethodPost, "/api/v1/events/object-created", "9.9.9.9:9999", nil); rr.Code != http.StatusOK {
			t.Errorf("event POST %d: status = %d, want 200", i+1, rr.Code)
		}
	}
}

func TestRateLimit_ForwardedFor(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := RateLimit(ctx, 1, limitedPath)(okHandler())

	fwd := map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}
	post(h, http.MethodPost, limitedPath, "10.0.0.1:1", fwd)
	if rr := post(h, http.MethodPost, limitedPath, "10.0.0.2:1", fwd); rr.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429 for the same forwarded client", rr.Code)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remote string
		fwd    string
		want   string
	}{
		{"1.2.3.4:5678", "", "1.2.3.4"},
		{"[2001:db8::1]:443", "", "2001:db8::1"},
		{"1.2.3.4:5678", "203.0.113.7", "203.0.113.7"},
		{"1.2.3.4:5678", " 203.0.113.7 , 10.0.0.1", "203.0.113.7"},
		{"pipe", "", "pipe"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tt.remote
		if tt.fwd != "" {
			req.Header.Set("X-Forwarded-For", tt.fwd)
		}
		if got := clientIP(req); got != tt.want {
			t.Errorf("clientIP(%q, %q) = %q, want %q", tt.remote, tt.fwd, got, tt.want)
		}
	}
}

func TestRateLimiter_EvictsIdle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewRateLimiter(ctx, 1)
	rl.allow("1.1.1.1")
	rl.allow("2.2.2.2")
	rl.clients["1.1.1.1"].lastSeen = time.Now().Add(-time.Hour)

	rl.evictBefore(time.Now().Add(-limiterIdle))

	if _, ok := rl.clients["1.1.1.1"]; ok {
		t.Error("idle client not evicted")
	}
	if _, ok := rl.clients["2.2.2.2"]; !ok {
		t.Error("active client evicted")
	}
}
