package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/backlogroll/internal/config"
	"github.com/hitoshi/backlogroll/internal/gamesync"
	"github.com/hitoshi/backlogroll/internal/handler"
	"github.com/hitoshi/backlogroll/internal/hltb"
	"github.com/hitoshi/backlogroll/internal/library"
	"github.com/hitoshi/backlogroll/internal/metrics"
	"github.com/hitoshi/backlogroll/internal/middleware"
	"github.com/hitoshi/backlogroll/internal/ratelimit"
	"github.com/hitoshi/backlogroll/internal/repository"
	"github.com/hitoshi/backlogroll/internal/scoring"
	"github.com/hitoshi/backlogroll/internal/security"
	"github.com/hitoshi/backlogroll/internal/steam"
	"github.com/hitoshi/backlogroll/internal/suggest"
	"github.com/prometheus/client_golang/prometheus"
)

// components はserveとworkerで共有する依存関係の組。
type components struct {
	cfg       *config.Config
	db        *sql.DB
	logger    *slog.Logger
	collector *metrics.Collector

	limiter   *ratelimit.Limiter
	titleSync *gamesync.Service
	batch     *gamesync.BatchRunner
	scheduler *gamesync.Scheduler
	library   *library.Service
	engine    *suggest.Engine
	sessions  *suggest.Manager
}

// newComponents は設定から全サービスを組み立てる。
// 外部サービスのベースURLはSSRFガードで静的に検証し、不正な場合はエラーを返す。
// 呼び出し側はcloseで後始末すること。
func newComponents(cfg *config.Config, db *sql.DB, logger *slog.Logger, reg prometheus.Registerer) (*components, error) {
	guard := security.NewSSRFGuard()
	for name, u := range map[string]string{
		"STEAM_STORE_BASE_URL": cfg.SteamStoreBaseURL,
		"STEAM_API_BASE_URL":   cfg.SteamAPIBaseURL,
		"HLTB_BASE_URL":        cfg.HLTBBaseURL,
		"OPENAI_BASE_URL":      cfg.OpenAIBaseURL,
	} {
		if err := guard.ValidateURL(u); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	collector := metrics.NewCollector(reg)

	// リポジトリ
	metadataRepo := repository.NewPostgresMetadataRepo(db)
	libraryRepo := repository.NewPostgresLibraryRepo(db)

	// 外部クライアント
	storeClient := steam.NewStoreClient(
		guard.NewSafeClient(cfg.SteamTimeout, cfg.OutboundMaxSize),
		logger,
		steam.StoreConfig{
			BaseURL: cfg.SteamStoreBaseURL,
			Timeout: cfg.SteamTimeout,
			RPS:     cfg.SteamStoreRPS,
		},
	)
	ownedGames := steam.NewAPIClient(
		guard.NewSafeClient(cfg.SteamTimeout, cfg.OutboundMaxSize),
		logger,
		cfg.SteamAPIBaseURL,
		cfg.SteamAPIKey,
		cfg.SteamTimeout,
	)
	hltbClient := hltb.NewClient(
		guard.NewSafeClient(cfg.HLTBTimeout, cfg.OutboundMaxSize),
		logger,
		hltb.Config{
			BaseURL:          cfg.HLTBBaseURL,
			Timeout:          cfg.HLTBTimeout,
			ConfigTTL:        cfg.HLTBConfigTTL,
			ShortResultHours: cfg.HLTBShortResultHours,
		},
	)
	hltbClient.SetRecorder(collector)

	// 同期
	limiter := ratelimit.New(ratelimit.WithSweepInterval(cfg.RateLimitSweepInterval))
	calculator := scoring.Calculator{
		Confidence: float64(cfg.ReviewConfidence),
		PriorScore: float64(cfg.ReviewPriorScore),
	}
	titleSync := gamesync.NewService(
		metadataRepo, libraryRepo, storeClient, hltbClient,
		calculator, security.NewDescriptionSanitizer(), limiter,
		logger, cfg.MetadataFreshness,
	)
	titleSync.SetRecorder(collector)

	batch := gamesync.NewBatchRunner(titleSync, libraryRepo, logger, gamesync.BatchConfig{
		GroupSize:    cfg.SyncBatchSize,
		MaxAttempts:  cfg.SyncMaxAttempts,
		MaxRetryWait: cfg.SyncMaxRetryWait,
	})
	batch.SetRecorder(collector)

	scheduler := gamesync.NewScheduler(libraryRepo, batch, logger, cfg.SyncMaxConcurrentUsers)

	// ライブラリ
	librarySvc := library.NewService(libraryRepo, ownedGames, logger)

	// 提案
	completion := suggest.NewCompletionClient(
		guard.NewSafeClient(cfg.OpenAITimeout, cfg.OutboundMaxSize),
		logger,
		suggest.CompletionConfig{
			BaseURL:     cfg.OpenAIBaseURL,
			APIKey:      cfg.OpenAIAPIKey,
			Model:       cfg.OpenAIModel,
			Temperature: cfg.OpenAITemperature,
			MaxTokens:   cfg.OpenAIMaxTokens,
			Timeout:     cfg.OpenAITimeout,
		},
	)
	completion.SetRecorder(collector)

	engine := suggest.NewEngine(librarySvc, completion, logger)
	engine.SetRecorder(collector)

	sessions := suggest.NewManager(engine, logger, cfg.SuggestCooldown, cfg.SuggestSessionTTL)

	collector.TrackGauge("rate_limit_windows", "保持しているレート制限ウィンドウ数", func() float64 {
		return float64(limiter.Len())
	})
	collector.TrackGauge("suggest_sessions", "保持している提案セッション数", func() float64 {
		return float64(sessions.Len())
	})

	return &components{
		cfg:       cfg,
		db:        db,
		logger:    logger,
		collector: collector,
		limiter:   limiter,
		titleSync: titleSync,
		batch:     batch,
		scheduler: scheduler,
		library:   librarySvc,
		engine:    engine,
		sessions:  sessions,
	}, nil
}

// router はAPIサーバーのルーターを構築する。
// metricsHandlerがnilの場合は/metricsを公開しない。
func (c *components) router(metricsHandler http.Handler) http.Handler {
	rateLimiter := middleware.NewRateLimiter(c.limiter, c.logger)
	rateLimiter.SetRecorder(c.collector)

	var pinger handler.Pinger
	if c.db != nil {
		pinger = c.db
	}

	return handler.NewRouter(&handler.RouterDeps{
		Logger:            c.logger,
		CORSAllowedOrigin: c.cfg.CORSAllowedOrigin,
		IdentityHeader:    c.cfg.IdentityHeader,
		SteamIDHeader:     c.cfg.SteamIDHeader,
		RateLimiter:       rateLimiter,
		HTTPRecorder:      c.collector,

		DB:             pinger,
		MetricsHandler: metricsHandler,

		Library:     c.library,
		TitleSyncer: c.titleSync,
		BatchSyncer: c.batch,

		Sessions:           c.sessions,
		Suggester:          c.engine,
		SuggestionsEnabled: c.cfg.SuggestionsEnabled(),
	})
}

// startBackground はserveモードのバックグラウンド処理を開始する。
func (c *components) startBackground(ctx context.Context) {
	if c.cfg.SuggestionsEnabled() {
		go c.sessions.StartSweeper(ctx, suggest.DefaultSweepInterval)
	}
}

// close はレートリミッターの掃除を停止する。
func (c *components) close() {
	c.limiter.Stop()
}
