package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/backlogroll/internal/model"
	"github.com/hitoshi/backlogroll/internal/ratelimit"
)

// RateLimitRecorder は拒否されたリクエストを記録するメトリクスのインターフェース。
type RateLimitRecorder interface {
	RecordRateLimited(operation string)
}

type nopRateLimitRecorder struct{}

func (nopRateLimitRecorder) RecordRateLimited(string) {}

// RateLimiter は操作プリセットごとに受信リクエストの予算を管理する。
// カウンタ本体はratelimit.Limiterが保持し、キーは "operation:userID" 形式になる。
type RateLimiter struct {
	limiter  *ratelimit.Limiter
	now      func() time.Time
	logger   *slog.Logger
	recorder RateLimitRecorder
}

// NewRateLimiter は新しいRateLimiterを生成する。
func NewRateLimiter(limiter *ratelimit.Limiter, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		limiter:  limiter,
		now:      time.Now,
		logger:   logger,
		recorder: nopRateLimitRecorder{},
	}
}

// SetRecorder はメトリクスの記録先を設定する。
func (rl *RateLimiter) SetRecorder(r RateLimitRecorder) {
	rl.recorder = r
}

// Middleware は指定プリセットのレート制限ミドルウェアを返す。
// リクエストコンテキストにユーザーIDが含まれている必要がある（IdentityMiddlewareの後に配置）。
// 許可・拒否にかかわらず X-RateLimit-Limit と X-RateLimit-Remaining を付与する。
func (rl *RateLimiter) Middleware(preset ratelimit.Preset) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			res := rl.limiter.CheckPreset(preset, userID)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(preset.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

			if !res.Allowed {
				retryAfter := res.RetryAfter(rl.now())
				writeRateLimitResponse(w, retryAfter)
				rl.recorder.RecordRateLimited(preset.Name)
				rl.logger.Warn("rate limit exceeded",
					slog.String("user_id", userID),
					slog.String("limit_type", preset.Name),
					slog.Duration("retry_after", retryAfter),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// retryAfterSeconds はRetry-Afterヘッダーに設定する秒数を返す。最小1秒。
func retryAfterSeconds(d time.Duration) int {
	sec := int(math.Ceil(d.Seconds()))
	if sec < 1 {
		sec = 1
	}
	return sec
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはウィンドウがリセットされるまでの秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, retryAfter time.Duration) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(retryAfter)))
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitedError(retryAfter))
}
