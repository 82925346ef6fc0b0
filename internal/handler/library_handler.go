package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/backlogroll/internal/gamesync"
	"github.com/hitoshi/backlogroll/internal/middleware"
	"github.com/hitoshi/backlogroll/internal/model"
)

// BatchSyncerInterface はライブラリ一括同期のサービスインターフェース。
type BatchSyncerInterface interface {
	RunForUser(ctx context.Context, userID string, appIDs []int64, onProgress func(gamesync.Progress)) (gamesync.BatchResult, error)
}

// LibraryHandler はライブラリ全体の操作のHTTPハンドラー。
type LibraryHandler struct {
	library LibraryServiceInterface
	batch   BatchSyncerInterface
	logger  *slog.Logger
}

// NewLibraryHandler はLibraryHandlerを生成する。
func NewLibraryHandler(library LibraryServiceInterface, batch BatchSyncerInterface, logger *slog.Logger) *LibraryHandler {
	return &LibraryHandler{
		library: library,
		batch:   batch,
		logger:  logger,
	}
}

// librarySyncRequest は一括同期リクエストのボディ。app_idsが空の場合は未同期エントリ全件。
type librarySyncRequest struct {
	AppIDs []int64 `json:"app_ids"`
}

// syncProgressLine は一括同期の進捗行。
type syncProgressLine struct {
	Current int   `json:"current"`
	Total   int   `json:"total"`
	AppID   int64 `json:"app_id"`
	Synced  bool  `json:"synced"`
}

// syncDoneLine は一括同期の完了行。
type syncDoneLine struct {
	Done   bool `json:"done"`
	Total  int  `json:"total"`
	Synced int  `json:"synced"`
	Failed int  `json:"failed"`
}

// carouselsResponse はカルーセルのAPIレスポンス。
type carouselsResponse struct {
	Short       []gameResponse `json:"short"`
	Weekend     []gameResponse `json:"weekend"`
	HighlyRated []gameResponse `json:"highly_rated"`
}

// Sync はライブラリを一括同期し、進捗を改行区切りJSONでストリーミングする。
// POST /api/library/sync
func (h *LibraryHandler) Sync(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req librarySyncRequest
	if err := decodeJSON(r, &req); err != nil {
		writeInvalidRequest(w)
		return
	}
	for _, id := range req.AppIDs {
		if id <= 0 {
			handleServiceError(w, model.NewInvalidAppIDError())
			return
		}
	}

	stream := newNDJSONStream(w)
	result, err := h.batch.RunForUser(r.Context(), userID, req.AppIDs, func(p gamesync.Progress) {
		if err := stream.Send(syncProgressLine{
			Current: p.Current,
			Total:   p.Total,
			AppID:   p.AppID,
			Synced:  p.Synced,
		}); err != nil {
			h.logger.Warn("進捗の送信に失敗しました",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
	})
	if err != nil {
		if !stream.Started() {
			handleServiceError(w, err)
			return
		}
		h.logger.Error("一括同期が途中で失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	if err := stream.Send(syncDoneLine{
		Done:   true,
		Total:  result.Total,
		Synced: result.Synced,
		Failed: result.Failed,
	}); err != nil {
		h.logger.Warn("完了通知の送信に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

// Carousels はトップ画面のカルーセルを返す。
// GET /api/library/carousels
func (h *LibraryHandler) Carousels(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	c, err := h.library.Carousels(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, carouselsResponse{
		Short:       toGameResponses(c.Short),
		Weekend:     toGameResponses(c.Weekend),
		HighlyRated: toGameResponses(c.HighlyRated),
	})
}

// RandomPick は積みゲーから1件を選び、プレイ中に設定する。
// POST /api/library/random-pick
func (h *LibraryHandler) RandomPick(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	game, err := h.library.RandomPick(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toGameResponse(game))
}

// RefreshSteam はSteamの所有ゲームをライブラリに取り込む。
// POST /api/steam/refresh
func (h *LibraryHandler) RefreshSteam(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	added, err := h.library.Refresh(r.Context(), userID, middleware.SteamIDFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"added": added})
}
