// Package resync は古くなった同期結果を再同期対象に戻す定期ジョブを提供する。
// 共有メタデータの最終同期から保持期間が経過したタイトルについて、
// ライブラリエントリの同期済みフラグを下ろす。メタデータ自体は削除せず、
// 次回のworkerサイクルで鮮度切れとして取り直される。
package resync

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

const (
	// DefaultStaleAfterDays はエントリを再同期対象に戻すまでの既定の日数。
	DefaultStaleAfterDays = 30
	// DefaultInterval はジョブを実行する既定の間隔。
	DefaultInterval = 24 * time.Hour
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// クリア済み・断念・非表示のエントリは推薦に使わないため対象外。
const markStaleEntries = `UPDATE library_games g
   SET metadata_synced = false, updated_at = now()
  FROM shared_game_metadata m
 WHERE g.app_id = m.app_id
   AND g.metadata_synced = true
   AND g.status IN ('backlog', 'playing')
   AND m.last_synced_at < now() - $1::interval`

// StaleEntryJob は古い同期結果を持つエントリを未同期に戻すジョブ。
// 対象がない場合もエラーにならず、何度実行しても結果は変わらない。
type StaleEntryJob struct {
	db             Executor
	logger         *slog.Logger
	StaleAfterDays int
}

// NewStaleEntryJob はStaleEntryJobを生成する。
// staleAfterDaysが0以下の場合はDefaultStaleAfterDaysを使用する。
func NewStaleEntryJob(db Executor, logger *slog.Logger, staleAfterDays int) *StaleEntryJob {
	if staleAfterDays <= 0 {
		staleAfterDays = DefaultStaleAfterDays
	}
	return &StaleEntryJob{
		db:             db,
		logger:         logger,
		StaleAfterDays: staleAfterDays,
	}
}

// Run は1回分の更新を実行し、再同期対象に戻した件数を返す。
func (j *StaleEntryJob) Run(ctx context.Context) (int64, error) {
	start := time.Now()

	result, err := j.db.ExecContext(ctx, markStaleEntries, fmt.Sprintf("%d days", j.StaleAfterDays))
	if err != nil {
		j.logger.Error("再同期対象の更新に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("stale_after_days", j.StaleAfterDays),
		)
		return 0, fmt.Errorf("再同期対象の更新に失敗: %w", err)
	}

	marked, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("更新件数の取得に失敗: %w", err)
	}

	j.logger.Info("再同期対象の更新が完了しました",
		slog.Int64("marked_count", marked),
		slog.Int("stale_after_days", j.StaleAfterDays),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return marked, nil
}

// Start は起動直後に1回、その後はintervalごとにRunを実行する。
// ctxがキャンセルされるまで戻らない。失敗はログに残して次回に持ち越す。
func (j *StaleEntryJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	_, _ = j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = j.Run(ctx)
		}
	}
}
