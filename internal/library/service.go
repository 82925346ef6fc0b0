package library

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/hitoshi/backlogroll/internal/model"
	"github.com/hitoshi/backlogroll/internal/repository"
)

// OwnedGamesFetcher はプラットフォームの所有ゲーム一覧取得のインターフェース。
type OwnedGamesFetcher interface {
	GetOwnedGames(ctx context.Context, steamID string) ([]model.OwnedGame, error)
}

// SuggestionContext は提案に必要なユーザーのライブラリ情報。
type SuggestionContext struct {
	Candidates []*model.LibraryGame
	Finished   []string
	Dropped    []string
}

// Service はライブラリ操作のビジネスロジックを提供する。
type Service struct {
	repo   repository.LibraryRepository
	owned  OwnedGamesFetcher
	logger *slog.Logger
	intn   func(n int) int
}

// NewService はServiceの新しいインスタンスを生成する。
// ownedがnilの場合、Refreshは利用できない。
func NewService(repo repository.LibraryRepository, owned OwnedGamesFetcher, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		owned:  owned,
		logger: logger,
		intn:   rand.Intn,
	}
}

// UpdateStatus はエントリのステータスを更新する。
// playingを設定すると既存のplayingエントリはbacklogに戻る（ユーザーごとに最大1件）。
func (s *Service) UpdateStatus(ctx context.Context, userID string, appID int64, status string) error {
	if appID <= 0 {
		return model.NewInvalidAppIDError()
	}
	st := model.GameStatus(status)
	if !st.IsValid() {
		return model.NewInvalidStatusError(status)
	}

	ok, err := s.repo.UpdateStatus(ctx, userID, appID, st)
	if err != nil {
		return err
	}
	if !ok {
		return model.NewGameNotFoundError(appID)
	}

	s.logger.Info("ステータスを更新しました",
		slog.String("user_id", userID),
		slog.Int64("app_id", appID),
		slog.String("status", status),
	)
	return nil
}

// Playing は現在プレイ中のエントリを返す。無い場合はnilを返す。
func (s *Service) Playing(ctx context.Context, userID string) (*model.LibraryGame, error) {
	return s.repo.FindPlaying(ctx, userID)
}

// Carousels はユーザーのカルーセルを組み立てる。
func (s *Service) Carousels(ctx context.Context, userID string) (Carousels, error) {
	games, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return Carousels{}, err
	}
	return BuildCarousels(games), nil
}

// RandomPick は候補からランダムに1件選び、playingに設定して返す。
// 候補が無い場合は NO_ELIGIBLE_GAMES を返す。
func (s *Service) RandomPick(ctx context.Context, userID string) (*model.LibraryGame, error) {
	games, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	pool := RandomPickPool(games)
	if len(pool) == 0 {
		return nil, model.NewNoEligibleGamesError()
	}

	picked := pool[s.intn(len(pool))]
	if err := s.UpdateStatus(ctx, userID, picked.AppID, string(model.GameStatusPlaying)); err != nil {
		return nil, err
	}
	picked.Status = model.GameStatusPlaying
	return picked, nil
}

// SuggestionContext は提案候補とクリア済み・断念したゲーム名を返す。
func (s *Service) SuggestionContext(ctx context.Context, userID string) (*SuggestionContext, error) {
	games, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &SuggestionContext{
		Candidates: SuggestionCandidates(games),
		Finished:   NamesByStatus(games, model.GameStatusFinished, PersonalizationPoolMax),
		Dropped:    NamesByStatus(games, model.GameStatusDropped, PersonalizationPoolMax),
	}, nil
}

// RecordReroll はリロールされたエントリの回数を1増やす。失敗しても呼び出し元は続行する。
func (s *Service) RecordReroll(ctx context.Context, userID string, appID int64) {
	if err := s.repo.IncrementRerollCount(ctx, userID, appID); err != nil {
		s.logger.Warn("リロール回数の更新に失敗しました",
			slog.String("user_id", userID),
			slog.Int64("app_id", appID),
			slog.String("error", err.Error()),
		)
	}
}

// Refresh はSteamの所有ゲーム一覧を取得し、未登録のゲームを追加して追加件数を返す。
func (s *Service) Refresh(ctx context.Context, userID, steamID string) (int, error) {
	if steamID == "" {
		return 0, model.NewSteamNotConnectedError()
	}
	if s.owned == nil {
		return 0, model.NewUpstreamUnavailableError("Steam Web API")
	}

	owned, err := s.owned.GetOwnedGames(ctx, steamID)
	if err != nil {
		return 0, err
	}

	added, err := s.repo.InsertMissing(ctx, userID, owned)
	if err != nil {
		return 0, fmt.Errorf("ライブラリの更新に失敗しました: %w", err)
	}

	s.logger.Info("ライブラリを更新しました",
		slog.String("user_id", userID),
		slog.Int("owned", len(owned)),
		slog.Int("added", added),
	)
	return added, nil
}
