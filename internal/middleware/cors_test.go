package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

const testOrigins = "https://backlogroll.app, http://localhost:3000/"

func serveCORS(t *testing.T, allowed, method, origin string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	called := false
	handler := NewCORSMiddleware(allowed)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(method, "/api/library/carousels", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w, called
}

func TestCORSMiddleware_EchoesMatchingOrigin(t *testing.T) {
	w, called := serveCORS(t, testOrigins, http.MethodGet, "http://localhost:3000")

	if !called || w.Code != http.StatusOK {
		t.Fatalf("called = %v, status = %d", called, w.Code)
	}

	tests := []struct {
		header string
		want   string
	}{
		{"Access-Control-Allow-Origin", "http://localhost:3000"},
		{"Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS"},
		{"Access-Control-Expose-Headers", "Retry-After, X-RateLimit-Limit, X-RateLimit-Remaining, X-Request-ID"},
		{"Access-Control-Allow-Credentials", "true"},
		{"Vary", "Origin"},
	}
	for _, tt := range tests {
		if got := w.Header().Get(tt.header); got != tt.want {
			t.Errorf("%s = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestCORSMiddleware_UnknownOriginGetsNoAllowHeaders(t *testing.T) {
	w, called := serveCORS(t, testOrigins, http.MethodPost, "https://evil.example")

	if !called {
		t.Error("CORSはブラウザ側の制御のため、ハンドラーは実行されるべき")
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Access-Control-Allow-Origin = %q, want empty", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "" {
		t.Errorf("Access-Control-Allow-Credentials = %q, want empty", got)
	}
}

func TestCORSMiddleware_NoOriginUsesFirst(t *testing.T) {
	w, _ := serveCORS(t, testOrigins, http.MethodGet, "")

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://backlogroll.app" {
		t.Errorf("Access-Control-Allow-Origin = %q, want https://backlogroll.app", got)
	}
}

func TestCORSMiddleware_PreflightReturns204WithoutCallingNext(t *testing.T) {
	w, called := serveCORS(t, testOrigins, http.MethodOptions, "https://backlogroll.app")

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if called {
		t.Error("プリフライトでは次のハンドラーを呼ばないべき")
	}
	if got := w.Header().Get("Access-Control-Max-Age"); got != "86400" {
		t.Errorf("Access-Control-Max-Age = %q, want 86400", got)
	}
}

func TestCORSMiddleware_EmptyConfigAllowsNothing(t *testing.T) {
	w, _ := serveCORS(t, " , ", http.MethodGet, "")

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Access-Control-Allow-Origin = %q, want empty", got)
	}
}
