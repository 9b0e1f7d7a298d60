package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS_PermissiveByDefault(t *testing.T) {
	h := New(&mockDB{}, "Solar Leads API", CORSConfig{AllowedOrigins: []string{"*"}, MaxAge: 86400})

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("POST", "/contact", nil)
	req.Header.Set("Origin", "https://landing.example.org")
	rec := httptest.NewRecorder()
	h.CORS(inner).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected origin *, got %q", got)
	}
}

func TestCORS_OptionsPreflight(t *testing.T) {
	h := New(&mockDB{}, "Solar Leads API", CORSConfig{AllowedOrigins: []string{"*"}, MaxAge: 86400})

	called := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	req := httptest.NewRequest("OPTIONS", "/contact", nil)
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.CORS(inner).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for OPTIONS, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Max-Age"); got != "86400" {
		t.Errorf("expected 24h preflight cache, got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got == "" {
		t.Error("expected allowed methods on preflight")
	}
	if called {
		t.Error("inner handler should not be called for OPTIONS preflight")
	}
}

func TestCORS_AllowList(t *testing.T) {
	h := New(&mockDB{}, "Solar Leads API", CORSConfig{AllowedOrigins: []string{"https://sunpeak.example"}})
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest("POST", "/contact", nil)
	req.Header.Set("Origin", "https://sunpeak.example")
	rec := httptest.NewRecorder()
	h.CORS(inner).ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://sunpeak.example" {
		t.Errorf("expected listed origin echoed, got %q", got)
	}

	req = httptest.NewRequest("POST", "/contact", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.CORS(inner).ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unlisted origin must not be allowed, got %q", got)
	}
}
