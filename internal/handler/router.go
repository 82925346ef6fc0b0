package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/backlogroll/internal/middleware"
	"github.com/hitoshi/backlogroll/internal/ratelimit"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	CORSAllowedOrigin string
	IdentityHeader    string
	SteamIDHeader     string
	RateLimiter       *middleware.RateLimiter
	HTTPRecorder      middleware.HTTPRecorder // nilの場合はHTTPメトリクスを記録しない

	// 運用
	DB             Pinger
	MetricsHandler http.Handler // nilの場合は/metricsを公開しない

	// ライブラリと同期
	Library     LibraryServiceInterface
	TitleSyncer TitleSyncerInterface
	BatchSyncer BatchSyncerInterface

	// 提案
	Sessions           SessionManagerInterface
	Suggester          SuggesterInterface
	SuggestionsEnabled bool
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → Metrics → SecurityHeaders → CORS → Identity → RateLimit(操作別)
//
// /health と /metrics は認証の外に配置する。
// タイトル単位の同期はgamesync.Serviceが内部でgameSyncの予算を確認するため、ここでは制限しない。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	if deps.HTTPRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.HTTPRecorder))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	gameHandler := NewGameHandler(deps.Library, deps.TitleSyncer)
	libraryHandler := NewLibraryHandler(deps.Library, deps.BatchSyncer, deps.Logger)
	suggestHandler := NewSuggestHandler(deps.Sessions, deps.Suggester, deps.SuggestionsEnabled, deps.Logger)

	limit := deps.RateLimiter.Middleware

	// --- 認証不要のルート ---
	r.Get("/health", Health(deps.DB))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewIdentityMiddleware(deps.IdentityHeader, deps.SteamIDHeader))

		// ゲーム単位の操作
		r.Route("/api/games", func(r chi.Router) {
			r.With(limit(ratelimit.GameStatus)).Post("/status", gameHandler.UpdateStatus)
			r.Get("/playing", gameHandler.Playing)
			r.Post("/{appID}/sync", gameHandler.SyncTitle)
		})

		// ライブラリ全体の操作
		r.Route("/api/library", func(r chi.Router) {
			r.Post("/sync", libraryHandler.Sync)
			r.Get("/carousels", libraryHandler.Carousels)
			r.With(limit(ratelimit.GameStatus)).Post("/random-pick", libraryHandler.RandomPick)
		})

		// Steam連携
		r.With(limit(ratelimit.SteamRefresh)).Post("/api/steam/refresh", libraryHandler.RefreshSteam)

		// 提案
		r.Route("/api/suggest", func(r chi.Router) {
			r.Use(suggestHandler.Enabled)

			r.With(limit(ratelimit.Suggestion)).Post("/", suggestHandler.Suggest)

			r.Route("/sessions", func(r chi.Router) {
				r.Post("/", suggestHandler.CreateSession)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", suggestHandler.GetSession)
					r.Delete("/", suggestHandler.Reset)
					r.With(limit(ratelimit.Suggestion)).Post("/answers", suggestHandler.Answer)
					r.Post("/back", suggestHandler.Back)
					r.With(limit(ratelimit.Suggestion)).Post("/reroll", suggestHandler.Reroll)
					r.Get("/cooldown", suggestHandler.Cooldown)
				})
			})
		})
	})

	return r
}
