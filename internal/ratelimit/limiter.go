// Package ratelimit はプロセス内の固定ウィンドウ方式レート制限を提供する。
// 外部APIの呼び出し予算と受信リクエストの予算の両方に使用する。
package ratelimit

import (
	"sync"
	"time"
)

// Result はCheckの判定結果を表す。
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RetryAfter はウィンドウがリセットされるまでの残り時間を返す。
func (r Result) RetryAfter(now time.Time) time.Duration {
	d := r.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// window はキーごとのカウンタとリセット時刻を保持する。
type window struct {
	count   int
	resetAt time.Time
}

// Limiter はキー単位の固定ウィンドウカウンタを管理する。
// 同一プロセス内でのベストエフォートな制限であり、再起動で状態は失われる。
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time

	sweepInterval time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once
}

// Option はLimiterの生成オプション。
type Option func(*Limiter)

// WithClock は現在時刻の取得関数を差し替える。テスト用。
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// WithSweepInterval は期限切れウィンドウの掃除間隔を設定する。
// 0以下を指定するとバックグラウンドの掃除を行わない。
func WithSweepInterval(d time.Duration) Option {
	return func(l *Limiter) {
		l.sweepInterval = d
	}
}

// DefaultSweepInterval は期限切れウィンドウを掃除する既定の間隔。
const DefaultSweepInterval = time.Minute

// New は新しいLimiterを生成する。
// 掃除間隔が正の場合はバックグラウンドで掃除を開始する。Stopで停止すること。
func New(opts ...Option) *Limiter {
	l := &Limiter{
		windows:       make(map[string]*window),
		now:           time.Now,
		sweepInterval: DefaultSweepInterval,
		stopCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.sweepInterval > 0 {
		go l.sweepLoop()
	}

	return l
}

// Stop は掃除のバックグラウンドゴルーチンを停止する。複数回呼んでも安全。
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
}

// Check はキーに対する呼び出しを1回記録し、許可されるかどうかを返す。
// 初回またはリセット時刻経過後はカウントを1にして新しいウィンドウを開始する。
// それ以外はカウントを加算し、加算後の値がlimit以下なら許可する。
func (l *Limiter) Check(key string, limit int, windowDuration time.Duration) Result {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{count: 1, resetAt: now.Add(windowDuration)}
		l.windows[key] = w
		return Result{
			Allowed:   limit >= 1,
			Remaining: max(limit-1, 0),
			ResetAt:   w.resetAt,
		}
	}

	w.count++
	return Result{
		Allowed:   w.count <= limit,
		Remaining: max(limit-w.count, 0),
		ResetAt:   w.resetAt,
	}
}

// Len は現在保持しているウィンドウ数を返す。テストおよびメトリクス用。
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Sweep はリセット時刻を過ぎたウィンドウを削除し、削除した件数を返す。
func (l *Limiter) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

// sweepLoop はバックグラウンドで期限切れウィンドウを定期的に削除する。
func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Sweep()
		case <-l.stopCh:
			return
		}
	}
}
