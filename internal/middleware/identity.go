// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hitoshi/backlogroll/internal/model"
)

// 上流の認証ゲートウェイが付与する既定のヘッダー名
const (
	DefaultIdentityHeader = "X-User-ID"
	DefaultSteamIDHeader  = "X-Steam-ID"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
	userIDContextKey = contextKey("user_id")
	// steamIDContextKey は連携済みSteamIDを格納するためのキー。
	steamIDContextKey = contextKey("steam_id")
)

// NewIdentityMiddleware は認証ゲートウェイが付与したヘッダーからユーザーIDを読み取り、
// リクエストコンテキストに注入するミドルウェアを返す。
// SteamIDヘッダーは任意で、存在する場合のみコンテキストに格納する。
// ユーザーIDが無いリクエストには401 Unauthorizedを返す。
func NewIdentityMiddleware(userHeader, steamHeader string) func(next http.Handler) http.Handler {
	if userHeader == "" {
		userHeader = DefaultIdentityHeader
	}
	if steamHeader == "" {
		steamHeader = DefaultSteamIDHeader
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get(userHeader))
			if userID == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, &model.APIError{
					Code:     "UNAUTHORIZED",
					Message:  "認証されていません。",
					Category: "auth",
					Action:   "ログインしてから再度お試しください。",
				})
				return
			}

			noteUserID(r.Context(), userID)
			ctx := ContextWithUserID(r.Context(), userID)
			if steamID := strings.TrimSpace(r.Header.Get(steamHeader)); steamID != "" {
				ctx = ContextWithSteamID(ctx, steamID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// SteamIDFromContext は連携済みのSteamIDを返す。未連携の場合は空文字列。
func SteamIDFromContext(ctx context.Context) string {
	steamID, _ := ctx.Value(steamIDContextKey).(string)
	return steamID
}

// ContextWithSteamID はコンテキストにSteamIDを注入する。
func ContextWithSteamID(ctx context.Context, steamID string) context.Context {
	return context.WithValue(ctx, steamIDContextKey, steamID)
}
