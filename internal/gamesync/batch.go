package gamesync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/backlogroll/internal/model"
)

// TitleSyncer はタイトル1件の同期のインターフェース。
type TitleSyncer interface {
	SyncTitle(ctx context.Context, userID string, appID int64) (*Outcome, error)
}

// UnsyncedLister は同期対象の未同期エントリを列挙するインターフェース。
type UnsyncedLister interface {
	ListUnsynced(ctx context.Context, userID string, limit int) ([]*model.LibraryGame, error)
}

// BatchConfig はバッチ実行の設定パラメータ。
type BatchConfig struct {
	// GroupSize は同時に同期するタイトル数（デフォルト: 3）。
	GroupSize int
	// MaxAttempts はレート制限時の最大試行回数（デフォルト: 5）。
	MaxAttempts int
	// MaxRetryWait はRetry-Afterの待機時間の上限（デフォルト: 15秒）。
	MaxRetryWait time.Duration
}

// DefaultBatchConfig はデフォルトのバッチ設定を返す。
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		GroupSize:    3,
		MaxAttempts:  5,
		MaxRetryWait: DefaultMaxRetryWait,
	}
}

// Progress は進捗通知1件分。
type Progress struct {
	Current int   `json:"current"`
	Total   int   `json:"total"`
	AppID   int64 `json:"app_id"`
	Synced  bool  `json:"synced"`
}

// BatchResult はバッチ全体の結果。
type BatchResult struct {
	Total  int `json:"total"`
	Synced int `json:"synced"`
	Failed int `json:"failed"`
}

// BatchRunner は複数タイトルをグループ単位で同期する。
// グループ内は並行に実行し、グループ全体の完了を待ってから次のグループを開始する。
// 1件の失敗は他のタイトルに影響しない。
type BatchRunner struct {
	syncer   TitleSyncer
	lister   UnsyncedLister
	logger   *slog.Logger
	config   BatchConfig
	recorder Recorder
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewBatchRunner はBatchRunnerの新しいインスタンスを生成する。
func NewBatchRunner(syncer TitleSyncer, lister UnsyncedLister, logger *slog.Logger, config BatchConfig) *BatchRunner {
	defaults := DefaultBatchConfig()
	if config.GroupSize <= 0 {
		config.GroupSize = defaults.GroupSize
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.MaxRetryWait <= 0 {
		config.MaxRetryWait = defaults.MaxRetryWait
	}
	return &BatchRunner{
		syncer:   syncer,
		lister:   lister,
		logger:   logger,
		config:   config,
		recorder: nopRecorder{},
		sleep:    sleepContext,
	}
}

// SetRecorder はメトリクスの記録先を設定する。
func (b *BatchRunner) SetRecorder(r Recorder) {
	if r != nil {
		b.recorder = r
	}
}

// RunForUser はユーザーの未同期エントリを全て同期する。
// appIDsが空の場合は同期対象の未同期エントリを列挙して使う。
func (b *BatchRunner) RunForUser(ctx context.Context, userID string, appIDs []int64, onProgress func(Progress)) (BatchResult, error) {
	if len(appIDs) == 0 {
		games, err := b.lister.ListUnsynced(ctx, userID, 0)
		if err != nil {
			return BatchResult{}, fmt.Errorf("未同期エントリの取得に失敗しました: %w", err)
		}
		for _, g := range games {
			appIDs = append(appIDs, g.AppID)
		}
	}
	return b.Run(ctx, userID, appIDs, onProgress), nil
}

// Run は指定タイトルをグループ単位で同期する。
// onProgressは1件完了するごとに呼ばれる（nil可）。呼び出しは直列化される。
func (b *BatchRunner) Run(ctx context.Context, userID string, appIDs []int64, onProgress func(Progress)) BatchResult {
	start := time.Now()
	result := BatchResult{Total: len(appIDs)}
	if len(appIDs) == 0 {
		return result
	}

	b.logger.Info("同期バッチを開始します",
		slog.String("user_id", userID),
		slog.Int("total", len(appIDs)),
		slog.Int("group_size", b.config.GroupSize),
	)

	var mu sync.Mutex
	completed := 0
	report := func(appID int64, synced bool) {
		mu.Lock()
		defer mu.Unlock()
		completed++
		if synced {
			result.Synced++
		} else {
			result.Failed++
		}
		if onProgress != nil {
			onProgress(Progress{Current: completed, Total: len(appIDs), AppID: appID, Synced: synced})
		}
	}

	for i := 0; i < len(appIDs); i += b.config.GroupSize {
		end := min(i+b.config.GroupSize, len(appIDs))

		var wg sync.WaitGroup
		for _, appID := range appIDs[i:end] {
			wg.Add(1)
			go func(id int64) {
				defer wg.Done()
				report(id, b.syncWithRetry(ctx, userID, id))
			}(appID)
		}
		wg.Wait()
	}

	b.logger.Info("同期バッチが完了しました",
		slog.String("user_id", userID),
		slog.Int("total", result.Total),
		slog.Int("synced", result.Synced),
		slog.Int("failed", result.Failed),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return result
}

// syncWithRetry は1タイトルを同期する。レート制限の場合はRetry-After（上限あり）だけ待って再試行する。
// 試行回数を使い切った場合やその他のエラーの場合は false を返し、タイトルは未同期のまま残る。
func (b *BatchRunner) syncWithRetry(ctx context.Context, userID string, appID int64) bool {
	for attempt := 1; attempt <= b.config.MaxAttempts; attempt++ {
		_, err := b.syncer.SyncTitle(ctx, userID, appID)
		if err == nil {
			return true
		}

		wait, limited := RetryAfter(err)
		if !limited {
			b.logger.Warn("タイトルの同期に失敗しました",
				slog.String("user_id", userID),
				slog.Int64("app_id", appID),
				slog.String("error", err.Error()),
			)
			return false
		}
		if attempt == b.config.MaxAttempts {
			break
		}

		wait = ClampRetryWait(wait, b.config.MaxRetryWait)
		b.recorder.RecordSyncRetry()
		b.logger.Debug("レート制限のため待機して再試行します",
			slog.Int64("app_id", appID),
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
		)
		if err := b.sleep(ctx, wait); err != nil {
			return false
		}
	}

	b.logger.Warn("レート制限により同期を断念しました",
		slog.String("user_id", userID),
		slog.Int64("app_id", appID),
		slog.Int("attempts", b.config.MaxAttempts),
	)
	return false
}
