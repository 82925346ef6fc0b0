package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/backlogroll/internal/middleware"
	"github.com/hitoshi/backlogroll/internal/model"
	"github.com/hitoshi/backlogroll/internal/suggest"
)

// SessionManagerInterface は提案ウィザードのセッション操作のインターフェース。
type SessionManagerInterface interface {
	Create(userID string) suggest.SessionView
	Get(userID, sessionID string) (suggest.SessionView, error)
	Answer(ctx context.Context, userID, sessionID string, step suggest.Step, value string) (suggest.SessionView, error)
	Back(userID, sessionID string) (suggest.SessionView, error)
	Reroll(ctx context.Context, userID, sessionID string) (suggest.SessionView, error)
	Reset(userID, sessionID string) error
	Countdown(ctx context.Context, userID, sessionID string) (<-chan int, error)
}

// SuggesterInterface はセッションを使わない単発の提案のインターフェース。
type SuggesterInterface interface {
	Suggest(ctx context.Context, req suggest.Request) (*model.Suggestion, error)
}

// SuggestHandler は提案機能のHTTPハンドラー。
// 言語モデルAPIが未設定の場合、すべての操作は503 SUGGESTIONS_DISABLEDを返す。
type SuggestHandler struct {
	sessions  SessionManagerInterface
	suggester SuggesterInterface
	enabled   bool
	logger    *slog.Logger
}

// NewSuggestHandler はSuggestHandlerを生成する。
func NewSuggestHandler(sessions SessionManagerInterface, suggester SuggesterInterface, enabled bool, logger *slog.Logger) *SuggestHandler {
	return &SuggestHandler{
		sessions:  sessions,
		suggester: suggester,
		enabled:   enabled,
		logger:    logger,
	}
}

// answerRequest はウィザードの回答リクエストのボディ。
type answerRequest struct {
	Step  string `json:"step"`
	Value string `json:"value"`
}

// suggestRequest は単発の提案リクエストのボディ。
type suggestRequest struct {
	Mood           string   `json:"mood"`
	Energy         string   `json:"energy"`
	Time           string   `json:"time"`
	ExcludeAppIDs  []int64  `json:"exclude_app_ids"`
	PriorReasoning []string `json:"prior_reasonings"`
}

// countdownLine はクールダウンのストリーミング1行分。
type countdownLine struct {
	Remaining int `json:"remaining"`
}

// Enabled はリクエストを処理する前に提案機能が有効かどうかを確認するミドルウェア。
func (h *SuggestHandler) Enabled(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.enabled {
			handleServiceError(w, model.NewSuggestionsDisabledError())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CreateSession は新しいウィザードセッションを開始する。
// POST /api/suggest/sessions
func (h *SuggestHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	writeJSON(w, http.StatusCreated, h.sessions.Create(userID))
}

// GetSession はセッションの現在の状態を返す。
// GET /api/suggest/sessions/{id}
func (h *SuggestHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	view, err := h.sessions.Get(userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Answer はウィザードの質問に回答する。3問目の回答で提案を実行する。
// POST /api/suggest/sessions/{id}/answers
func (h *SuggestHandler) Answer(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req answerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeInvalidRequest(w)
		return
	}

	view, err := h.sessions.Answer(r.Context(), userID, chi.URLParam(r, "id"), suggest.Step(req.Step), req.Value)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Back は1つ前の質問に戻る。
// POST /api/suggest/sessions/{id}/back
func (h *SuggestHandler) Back(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	view, err := h.sessions.Back(userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Reroll は現在の提案を除外して別のゲームを提案する。
// POST /api/suggest/sessions/{id}/reroll
func (h *SuggestHandler) Reroll(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	view, err := h.sessions.Reroll(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Reset はセッションを破棄する。
// DELETE /api/suggest/sessions/{id}
func (h *SuggestHandler) Reset(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	if err := h.sessions.Reset(userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Cooldown はリロールのクールダウン残り秒数を1秒ごとにストリーミングする。
// GET /api/suggest/sessions/{id}/cooldown
func (h *SuggestHandler) Cooldown(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	ticks, err := h.sessions.Countdown(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	stream := newNDJSONStream(w)
	for remaining := range ticks {
		if err := stream.Send(countdownLine{Remaining: remaining}); err != nil {
			h.logger.Debug("クールダウンの送信を中断しました", slog.String("error", err.Error()))
			return
		}
	}
}

// Suggest はセッションを使わずに1回だけ提案する。
// POST /api/suggest
func (h *SuggestHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req suggestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeInvalidRequest(w)
		return
	}

	suggestion, err := h.suggester.Suggest(r.Context(), suggest.Request{
		UserID: userID,
		Preferences: model.Preferences{
			Mood:   model.Mood(req.Mood),
			Energy: model.Energy(req.Energy),
			Time:   model.TimeCommitment(req.Time),
		},
		ExcludedAppIDs:  req.ExcludeAppIDs,
		PriorReasonings: req.PriorReasoning,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestion)
}
