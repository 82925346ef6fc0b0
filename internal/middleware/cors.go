package middleware

import (
	"net/http"
	"strings"
)

// NewCORSMiddleware は許可オリジンに対するCORSミドルウェアを返す。
// allowedOriginsはカンマ区切りで複数指定できる（例: "https://backlogroll.app,http://localhost:3000"）。
// リクエストのOriginが一致した場合はそのオリジンを返し、一致しない場合は許可ヘッダーを付けない。
// Originを持たないリクエストには先頭のオリジンを返す。
// credentials送信と共存するため、ワイルドカード(*)は使用しない。
// レート制限とリクエストIDのヘッダーはブラウザから参照できるよう公開する。
func NewCORSMiddleware(allowedOrigins string) func(next http.Handler) http.Handler {
	var origins []string
	for _, o := range strings.Split(allowedOrigins, ",") {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			origins = append(origins, o)
		}
	}

	allowOrigin := func(requestOrigin string) (string, bool) {
		if len(origins) == 0 {
			return "", false
		}
		if requestOrigin == "" {
			return origins[0], true
		}
		for _, o := range origins {
			if o == requestOrigin {
				return o, true
			}
		}
		return "", false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")
			if origin, ok := allowOrigin(r.Header.Get("Origin")); ok {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
				h.Set("Access-Control-Expose-Headers", "Retry-After, X-RateLimit-Limit, X-RateLimit-Remaining, X-Request-ID")
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Max-Age", "86400")
			}

			// プリフライトは許可の有無に関わらずここで終える
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
