package gamesync

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/backlogroll/internal/model"
)

const (
	// DefaultRetryWait はRetry-Afterの指定が無い場合の待機時間。
	DefaultRetryWait = 10 * time.Second
	// DefaultMaxRetryWait は待機時間の上限。
	DefaultMaxRetryWait = 15 * time.Second
)

// RetryAfter はエラーがレート制限によるものかを判定し、待機すべき時間を返す。
// 指定が無い場合はDefaultRetryWaitを返す。
func RetryAfter(err error) (time.Duration, bool) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeRateLimited {
		return 0, false
	}
	if apiErr.RetryAfter <= 0 {
		return DefaultRetryWait, true
	}
	return apiErr.RetryAfter, true
}

// ClampRetryWait は待機時間を上限で切り詰める。
func ClampRetryWait(wait, limit time.Duration) time.Duration {
	if limit > 0 && wait > limit {
		return limit
	}
	if wait < 0 {
		return 0
	}
	return wait
}

// sleepContext はコンテキストがキャンセルされるまでの間だけ待機する。
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
