package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIdentityMiddleware_InjectsUserID(t *testing.T) {
	mw := NewIdentityMiddleware("", "")

	var capturedUserID, capturedSteamID string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := UserIDFromContext(r.Context())
		if err != nil {
			t.Errorf("expected no error, got %v", err)
		}
		capturedUserID = userID
		capturedSteamID = SteamIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/games/playing", nil)
	req.Header.Set("X-User-ID", "user-123")
	req.Header.Set("X-Steam-ID", "76561197960287930")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	if capturedUserID != "user-123" {
		t.Errorf("userID = %q, want %q", capturedUserID, "user-123")
	}
	if capturedSteamID != "76561197960287930" {
		t.Errorf("steamID = %q, want %q", capturedSteamID, "76561197960287930")
	}
}

func TestIdentityMiddleware_CustomHeaders(t *testing.T) {
	mw := NewIdentityMiddleware("X-Forwarded-User", "X-Forwarded-Steam")

	var capturedUserID string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedUserID, _ = UserIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/games/playing", nil)
	req.Header.Set("X-Forwarded-User", "user-custom")
	// 既定ヘッダーは無視される
	req.Header.Set("X-User-ID", "user-default")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if capturedUserID != "user-custom" {
		t.Errorf("userID = %q, want %q", capturedUserID, "user-custom")
	}
}

func TestIdentityMiddleware_MissingHeader_Returns401(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"missing", ""},
		{"whitespace", "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewIdentityMiddleware("", "")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler should not be called")
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/games/playing", nil)
			if tt.value != "" {
				req.Header.Set("X-User-ID", tt.value)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Result().StatusCode != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
			}
			var body ErrorResponseBody
			if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if body.Code != "UNAUTHORIZED" {
				t.Errorf("code = %q, want %q", body.Code, "UNAUTHORIZED")
			}
		})
	}
}

func TestIdentityMiddleware_NoSteamHeader_EmptySteamID(t *testing.T) {
	var steamID = "unset"
	handler := NewIdentityMiddleware("", "")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		steamID = SteamIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/games/playing", nil)
	req.Header.Set("X-User-ID", "user-1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if steamID != "" {
		t.Errorf("steamID = %q, want empty", steamID)
	}
}

func TestUserIDFromContext_Missing(t *testing.T) {
	if _, err := UserIDFromContext(context.Background()); err == nil {
		t.Error("expected error for missing user ID")
	}
}

func TestContextWithUserID_RoundTrip(t *testing.T) {
	ctx := ContextWithUserID(context.Background(), "user-9")
	got, err := UserIDFromContext(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "user-9" {
		t.Errorf("userID = %q, want %q", got, "user-9")
	}
}
