package gamesync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// UserLister は未同期エントリを持つユーザーを列挙するインターフェース。
type UserLister interface {
	ListUsersWithUnsynced(ctx context.Context, limit int) ([]string, error)
}

// UserBatchRunner はユーザー単位のバッチ実行のインターフェース。
type UserBatchRunner interface {
	RunForUser(ctx context.Context, userID string, appIDs []int64, onProgress func(Progress)) (BatchResult, error)
}

// Scheduler はworkerモードで未同期エントリを定期的に同期する。
// semaphoreで同時に処理するユーザー数を制御する。
type Scheduler struct {
	users          UserLister
	runner         UserBatchRunner
	logger         *slog.Logger
	maxConcurrency int
	usersPerCycle  int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値2を使用する。
func NewScheduler(users UserLister, runner UserBatchRunner, logger *slog.Logger, maxConcurrency int) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 2
	}
	return &Scheduler{
		users:          users,
		runner:         runner,
		logger:         logger,
		maxConcurrency: maxConcurrency,
		usersPerCycle:  100,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("同期スケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("同期サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("同期スケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("同期サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は未同期エントリを持つユーザーを取得し、ユーザーごとにバッチを実行する。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	userIDs, err := s.users.ListUsersWithUnsynced(ctx, s.usersPerCycle)
	if err != nil {
		return fmt.Errorf("未同期ユーザーの取得に失敗しました: %w", err)
	}
	if len(userIDs) == 0 {
		s.logger.Info("同期対象のユーザーはありません")
		return nil
	}

	s.logger.Info("同期サイクルを開始します",
		slog.Int("user_count", len(userIDs)),
	)

	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, userID := range userIDs {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}

		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()

			if _, err := s.runner.RunForUser(ctx, id, nil, nil); err != nil {
				s.logger.Error("ユーザーの同期に失敗しました",
					slog.String("user_id", id),
					slog.String("error", err.Error()),
				)
			}
		}(userID)
	}

	wg.Wait()

	s.logger.Info("同期サイクルが完了しました",
		slog.Int("user_count", len(userIDs)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}
