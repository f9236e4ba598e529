package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSecurityHeadersMiddleware(t *testing.T) {
	dummyHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	middleware := SecurityHeadersMiddleware(dummyHandler)

	req := httptest.NewRequest("GET", "/", nil)
	rr := httptest.NewRecorder()
	middleware.ServeHTTP(rr, req)

	expectedHeaders := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "SAMEORIGIN",
		"X-XSS-Protection":       "1; mode=block",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}
	for key, expectedValue := range expectedHeaders {
		if value := rr.Header().Get(key); value != expectedValue {
			t.Errorf("Header %s: expected %s, got %s", key, expectedValue, value)
		}
	}

	csp := rr.Header().Get("Content-Security-Policy")
	if csp == "" {
		t.Error("Expected Content-Security-Policy header, got empty")
	}
	expectedDirectives := []string{
		"default-src 'self'",
		"img-src 'self' data: https: blob:",
		"connect-src 'self'",
	}
	for _, directive := range expectedDirectives {
		if !strings.Contains(csp, directive) {
			t.Errorf("CSP missing directive: %s. Got: %s", directive, csp)
		}
	}

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status OK, got %v", rr.Code)
	}
}

func TestSecurityHeadersCacheControl(t *testing.T) {
	middleware := SecurityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	tests := []struct {
		path    string
		noStore bool
	}{
		{"/api/competencies", true},
		{"/", true},
		{"/reset", true},
		{"/app.js", false},
		{"/css/style.css", false},
	}
	for _, tt := range tests {
		rr := httptest.NewRecorder()
		middleware.ServeHTTP(rr, httptest.NewRequest("GET", tt.path, nil))
		got := strings.Contains(rr.Header().Get("Cache-Control"), "no-store")
		if got != tt.noStore {
			t.Errorf("%s: expected no-store=%v, got Cache-Control %q", tt.path, tt.noStore, rr.Header().Get("Cache-Control"))
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	called := false
	handler := NewCORS([]string{"http://localhost:3000"}).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	// Browsers send the requested header names lower-cased.
	for _, headers := range []string{"x-csrf-token", "content-type,x-csrf-token"} {
		req := httptest.NewRequest("OPTIONS", "/api/login", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", "POST")
		req.Header.Set("Access-Control-Request-Headers", headers)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if val := rr.Header().Get("Access-Control-Allow-Origin"); val != "http://localhost:3000" {
			t.Errorf("%s: expected Access-Control-Allow-Origin to be http://localhost:3000, got %s", headers, val)
		}
		if val := rr.Header().Get("Access-Control-Allow-Credentials"); val != "true" {
			t.Errorf("%s: expected credentials to be allowed, got %s", headers, val)
		}
	}
	if called {
		t.Errorf("Expected preflight not to reach the handler")
	}

	req := httptest.NewRequest("OPTIONS", "/api/login", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if val := rr.Header().Get("Access-Control-Allow-Origin"); val != "" {
		t.Errorf("Expected no Access-Control-Allow-Origin for a foreign origin, got %s", val)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	if _, err := uuid.Parse(seen); err != nil {
		t.Errorf("Expected a generated UUID, got %q", seen)
	}
	if rr.Header().Get(RequestIDHeader) != seen {
		t.Errorf("Expected the response to echo the request id")
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if seen != "abc-123" || rr.Header().Get(RequestIDHeader) != "abc-123" {
		t.Errorf("Expected the incoming request id to be kept, got %q", seen)
	}
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := zap.New(core)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ok", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("GET /missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("GET /boom", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	handler := RequestID(RequestLogger(log)(mux))

	for _, path := range []string{"/ok", "/missing", "/boom"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", path, nil))
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/boom", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("Expected a panic to answer 500, got %d", rr.Code)
	}

	requests := logs.FilterMessage("request").All()
	if len(requests) != 4 {
		t.Fatalf("Expected 4 request entries, got %d", len(requests))
	}
	wantLevels := []zapcore.Level{zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel}
	for i, want := range wantLevels {
		if requests[i].Level != want {
			t.Errorf("Entry %d: expected level %s, got %s", i, want, requests[i].Level)
		}
		if requests[i].ContextMap()["request_id"] == "" {
			t.Errorf("Entry %d: missing request_id", i)
		}
	}
	if n := logs.FilterMessage("panic serving request").Len(); n != 2 {
		t.Errorf("Expected 2 panic entries, got %d", n)
	}
}
