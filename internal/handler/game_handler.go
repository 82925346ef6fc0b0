package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/backlogroll/internal/gamesync"
	"github.com/hitoshi/backlogroll/internal/library"
	"github.com/hitoshi/backlogroll/internal/middleware"
	"github.com/hitoshi/backlogroll/internal/model"
)

// LibraryServiceInterface はライブラリ系ハンドラーが必要とするサービスインターフェース。
type LibraryServiceInterface interface {
	// UpdateStatus はエントリのステータスを更新する。playingは排他的に設定される。
	UpdateStatus(ctx context.Context, userID string, appID int64, status string) error
	// Playing は現在プレイ中のエントリを返す。存在しない場合はnil。
	Playing(ctx context.Context, userID string) (*model.LibraryGame, error)
	// Carousels はトップ画面のカルーセルを返す。
	Carousels(ctx context.Context, userID string) (library.Carousels, error)
	// RandomPick は短時間で遊べる積みゲーを1件選び、playingにする。
	RandomPick(ctx context.Context, userID string) (*model.LibraryGame, error)
	// Refresh はSteamの所有ゲームを取り込み、新規追加件数を返す。
	Refresh(ctx context.Context, userID, steamID string) (int, error)
}

// TitleSyncerInterface はタイトル1件の同期を行うサービスインターフェース。
type TitleSyncerInterface interface {
	SyncTitle(ctx context.Context, userID string, appID int64) (*gamesync.Outcome, error)
}

// GameHandler はゲーム単位の操作のHTTPハンドラー。
type GameHandler struct {
	library LibraryServiceInterface
	syncer  TitleSyncerInterface
}

// NewGameHandler はGameHandlerを生成する。
func NewGameHandler(library LibraryServiceInterface, syncer TitleSyncerInterface) *GameHandler {
	return &GameHandler{
		library: library,
		syncer:  syncer,
	}
}

// updateStatusRequest はステータス更新リクエストのボディ。
type updateStatusRequest struct {
	AppID  int64  `json:"app_id"`
	Status string `json:"status"`
}

// statusResponse はステータス更新のAPIレスポンス。
type statusResponse struct {
	AppID  int64  `json:"app_id"`
	Status string `json:"status"`
}

// gameResponse はライブラリエントリのAPIレスポンス。
type gameResponse struct {
	AppID           int64    `json:"app_id"`
	Name            string   `json:"name"`
	Status          string   `json:"status"`
	PlaytimeForever int      `json:"playtime_forever"`
	HeaderImage     string   `json:"header_image,omitempty"`
	ImgIconURL      string   `json:"img_icon_url,omitempty"`
	Genres          []string `json:"genres"`
	ReviewScore     *int     `json:"review_score"`
	ReviewWeighted  *int     `json:"review_weighted"`
	MainStoryHours  *float64 `json:"main_story_hours"`
	RerollCount     int      `json:"reroll_count"`
	MetadataSynced  bool     `json:"metadata_synced"`
}

// syncResponse はタイトル同期のAPIレスポンス。
type syncResponse struct {
	AppID          int64      `json:"app_id"`
	Source         string     `json:"source"`
	Name           string     `json:"name,omitempty"`
	Type           string     `json:"type,omitempty"`
	ReviewScore    *int       `json:"review_score,omitempty"`
	ReviewWeighted *int       `json:"review_weighted,omitempty"`
	MainStoryHours *float64   `json:"main_story_hours,omitempty"`
	LastSyncedAt   *time.Time `json:"last_synced_at,omitempty"`
}

// UpdateStatus はエントリのステータスを更新する。
// POST /api/games/status
func (h *GameHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeInvalidRequest(w)
		return
	}

	if err := h.library.UpdateStatus(r.Context(), userID, req.AppID, req.Status); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{AppID: req.AppID, Status: req.Status})
}

// Playing は現在プレイ中のゲームを返す。存在しない場合はgameがnullになる。
// GET /api/games/playing
func (h *GameHandler) Playing(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	game, err := h.library.Playing(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	var resp *gameResponse
	if game != nil {
		g := toGameResponse(game)
		resp = &g
	}
	writeJSON(w, http.StatusOK, map[string]*gameResponse{"game": resp})
}

// SyncTitle はタイトル1件のメタデータを同期する。
// POST /api/games/{appID}/sync
func (h *GameHandler) SyncTitle(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	appID, ok := parseAppID(chi.URLParam(r, "appID"))
	if !ok {
		handleServiceError(w, model.NewInvalidAppIDError())
		return
	}

	outcome, err := h.syncer.SyncTitle(r.Context(), userID, appID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSyncResponse(outcome))
}

// --- ヘルパー関数 ---

// parseAppID はパスパラメータのapp_idを正の整数として解釈する。
func parseAppID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// toGameResponse はmodel.LibraryGameからAPIレスポンスに変換する。
func toGameResponse(g *model.LibraryGame) gameResponse {
	status := g.Status
	if status == "" {
		status = model.GameStatusBacklog
	}
	genres := g.Genres
	if genres == nil {
		genres = []string{}
	}
	return gameResponse{
		AppID:           g.AppID,
		Name:            g.Name,
		Status:          string(status),
		PlaytimeForever: g.PlaytimeForever,
		HeaderImage:     g.HeaderImage,
		ImgIconURL:      g.ImgIconURL,
		Genres:          genres,
		ReviewScore:     g.ReviewScore,
		ReviewWeighted:  g.ReviewWeighted,
		MainStoryHours:  g.MainStoryHours,
		RerollCount:     g.RerollCount,
		MetadataSynced:  g.MetadataSynced,
	}
}

// toGameResponses はスライスをまとめて変換する。nilは空配列になる。
func toGameResponses(games []*model.LibraryGame) []gameResponse {
	out := make([]gameResponse, 0, len(games))
	for _, g := range games {
		out = append(out, toGameResponse(g))
	}
	return out
}

// toSyncResponse は同期結果からAPIレスポンスに変換する。
func toSyncResponse(o *gamesync.Outcome) syncResponse {
	resp := syncResponse{AppID: o.AppID, Source: o.Source}
	if m := o.Metadata; m != nil {
		resp.Name = m.Name
		resp.Type = string(m.Type)
		resp.ReviewScore = m.ReviewScore
		resp.ReviewWeighted = m.ReviewWeighted
		resp.MainStoryHours = m.MainStoryHours
		if !m.LastSyncedAt.IsZero() {
			t := m.LastSyncedAt
			resp.LastSyncedAt = &t
		}
	}
	return resp
}
