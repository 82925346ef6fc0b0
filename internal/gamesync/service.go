// Package gamesync はタイトル単位のメタデータ同期とバッチ実行を提供する。
// 共有メタデータキャッシュの鮮度判定、Steamストアとクリア時間サイトからの取得、
// レビュースコアの平滑化、ユーザーのライブラリへの反映を行う。
package gamesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/backlogroll/internal/model"
	"github.com/hitoshi/backlogroll/internal/ratelimit"
	"github.com/hitoshi/backlogroll/internal/repository"
	"github.com/hitoshi/backlogroll/internal/scoring"
	"github.com/hitoshi/backlogroll/internal/security"
	"github.com/hitoshi/backlogroll/internal/steam"
	"golang.org/x/sync/errgroup"
)

// PlatformSteam は共有メタデータのプラットフォームタグ。
const PlatformSteam = "steam"

// StoreMetadataFetcher はストアからのメタデータ取得のインターフェース。
type StoreMetadataFetcher interface {
	GetAppDetails(ctx context.Context, appID int64) (*steam.AppDetails, error)
	GetReviewData(ctx context.Context, appID int64) (*steam.ReviewData, error)
}

// CompletionTimeFetcher はクリア時間取得のインターフェース。
// 見つからない場合やエラー時は false を返す。
type CompletionTimeFetcher interface {
	GetMainStoryHours(ctx context.Context, title string) (float64, bool)
}

// Recorder は同期結果を記録するメトリクスのインターフェース。
type Recorder interface {
	RecordTitleSync(source string)
	RecordSyncRetry()
}

type nopRecorder struct{}

func (nopRecorder) RecordTitleSync(string) {}
func (nopRecorder) RecordSyncRetry()       {}

// 同期結果の取得元
const (
	SourceCache    = "cache"
	SourceFresh    = "fresh"
	SourceNotFound = "not_found"
)

// Outcome は1タイトルの同期結果。
type Outcome struct {
	AppID    int64
	Source   string
	Metadata *model.GameMetadata // SourceNotFoundの場合はnil
}

// Service はタイトル単位の同期を行う。
type Service struct {
	metadataRepo repository.MetadataRepository
	libraryRepo  repository.LibraryRepository
	store        StoreMetadataFetcher
	hltb         CompletionTimeFetcher
	calculator   scoring.Calculator
	sanitizer    security.TextSanitizer
	limiter      *ratelimit.Limiter
	logger       *slog.Logger
	freshness    time.Duration
	recorder     Recorder
	now          func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// limiterがnilの場合は受信側のレート制限を行わない。
func NewService(
	metadataRepo repository.MetadataRepository,
	libraryRepo repository.LibraryRepository,
	store StoreMetadataFetcher,
	hltb CompletionTimeFetcher,
	calculator scoring.Calculator,
	sanitizer security.TextSanitizer,
	limiter *ratelimit.Limiter,
	logger *slog.Logger,
	freshness time.Duration,
) *Service {
	if freshness <= 0 {
		freshness = scoring.DefaultFreshness
	}
	return &Service{
		metadataRepo: metadataRepo,
		libraryRepo:  libraryRepo,
		store:        store,
		hltb:         hltb,
		calculator:   calculator,
		sanitizer:    sanitizer,
		limiter:      limiter,
		logger:       logger,
		freshness:    freshness,
		recorder:     nopRecorder{},
		now:          time.Now,
	}
}

// SetRecorder はメトリクスの記録先を設定する。
func (s *Service) SetRecorder(r Recorder) {
	if r != nil {
		s.recorder = r
	}
}

// SyncTitle はユーザーのライブラリエントリ1件を同期する。
// 共有キャッシュが新鮮かつ完全であればそれを使い、そうでなければストアから取得する。
// ストアに存在しないタイトルはメタデータを変更せずに同期済みにする。
// 受信側のレート制限を超えた場合はRATE_LIMITEDのAPIErrorを返す。
func (s *Service) SyncTitle(ctx context.Context, userID string, appID int64) (*Outcome, error) {
	if err := s.checkLimit(userID); err != nil {
		return nil, err
	}

	entry, err := s.libraryRepo.FindByUserAndApp(ctx, userID, appID)
	if err != nil {
		return nil, fmt.Errorf("ライブラリエントリの取得に失敗しました: %w", err)
	}
	if entry == nil {
		return nil, model.NewGameNotFoundError(appID)
	}

	cached, err := s.metadataRepo.FindByAppID(ctx, appID)
	if err != nil {
		return nil, fmt.Errorf("共有メタデータの取得に失敗しました: %w", err)
	}
	if s.usable(cached) {
		if err := s.libraryRepo.ApplyMetadata(ctx, userID, appID, cached); err != nil {
			return nil, err
		}
		s.recorder.RecordTitleSync(SourceCache)
		return &Outcome{AppID: appID, Source: SourceCache, Metadata: cached}, nil
	}

	fresh, err := s.fetch(ctx, appID, entry.Name)
	if err != nil {
		return nil, err
	}

	if fresh == nil {
		// ストアから削除されたタイトルの可能性がある
		if err := s.libraryRepo.MarkSynced(ctx, userID, appID); err != nil {
			return nil, err
		}
		s.logger.Info("ストアにタイトルが存在しないため同期済みにしました",
			slog.String("user_id", userID),
			slog.Int64("app_id", appID),
		)
		s.recorder.RecordTitleSync(SourceNotFound)
		return &Outcome{AppID: appID, Source: SourceNotFound}, nil
	}

	if err := s.metadataRepo.Upsert(ctx, fresh); err != nil {
		return nil, err
	}
	if err := s.libraryRepo.ApplyMetadata(ctx, userID, appID, fresh); err != nil {
		return nil, err
	}

	s.recorder.RecordTitleSync(SourceFresh)
	return &Outcome{AppID: appID, Source: SourceFresh, Metadata: fresh}, nil
}

// usable は共有キャッシュをそのまま使えるかを判定する。
func (s *Service) usable(m *model.GameMetadata) bool {
	if m == nil {
		return false
	}
	return scoring.IsFresh(m.LastSyncedAt, s.now(), s.freshness) && m.IsComplete()
}

// fetch はストアからメタデータを取得する。ストアに存在しない場合は nil, nil を返す。
// 種別がgameの場合のみ、クリア時間とレビュー集計を並行して取得する。
func (s *Service) fetch(ctx context.Context, appID int64, fallbackName string) (*model.GameMetadata, error) {
	details, err := s.store.GetAppDetails(ctx, appID)
	if err != nil {
		return nil, s.upstreamError(err)
	}
	extracted := steam.ExtractMetadata(details)
	if extracted == nil {
		return nil, nil
	}

	m := &model.GameMetadata{
		AppID:        appID,
		Platform:     PlatformSteam,
		Type:         extracted.Type,
		Name:         extracted.Name,
		Genres:       extracted.Genres,
		Categories:   extracted.Categories,
		Description:  s.sanitizer.Sanitize(extracted.Description),
		ReleaseDate:  extracted.ReleaseDate,
		HeaderImage:  extracted.HeaderImage,
		LastSyncedAt: s.now(),
	}
	if m.Name == "" {
		m.Name = fallbackName
	}

	if m.Type != model.AppTypeGame {
		return m, nil
	}

	var (
		hours    float64
		hasHours bool
		reviews  *steam.ReviewData
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hours, hasHours = s.hltb.GetMainStoryHours(gctx, m.Name)
		return nil
	})
	g.Go(func() error {
		var err error
		reviews, err = s.store.GetReviewData(gctx, appID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, s.upstreamError(err)
	}

	if hasHours {
		m.MainStoryHours = &hours
	}
	if reviews != nil {
		score, count := reviews.Score, reviews.Count
		m.ReviewScore = &score
		m.ReviewCount = &count
		m.ReviewWeighted = s.calculator.WeightedPtr(m.ReviewScore, m.ReviewCount)
	}
	return m, nil
}

// upstreamError はストアの429をリトライ可能なRATE_LIMITEDに変換する。
func (s *Service) upstreamError(err error) error {
	if errors.Is(err, steam.ErrRateLimited) {
		return model.NewRateLimitedError(DefaultRetryWait)
	}
	return err
}

func (s *Service) checkLimit(userID string) error {
	if s.limiter == nil {
		return nil
	}
	res := s.limiter.CheckPreset(ratelimit.GameSync, userID)
	if res.Allowed {
		return nil
	}
	return model.NewRateLimitedError(res.RetryAfter(s.now()))
}
