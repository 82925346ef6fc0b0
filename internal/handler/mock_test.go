package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/backlogroll/internal/gamesync"
	"github.com/hitoshi/backlogroll/internal/library"
	"github.com/hitoshi/backlogroll/internal/middleware"
	"github.com/hitoshi/backlogroll/internal/model"
	"github.com/hitoshi/backlogroll/internal/suggest"
)

// --- モック定義 ---

// mockLibraryService はLibraryServiceInterfaceのモック実装。
type mockLibraryService struct {
	updateStatusFn func(ctx context.Context, userID string, appID int64, status string) error
	playingFn      func(ctx context.Context, userID string) (*model.LibraryGame, error)
	carouselsFn    func(ctx context.Context, userID string) (library.Carousels, error)
	randomPickFn   func(ctx context.Context, userID string) (*model.LibraryGame, error)
	refreshFn      func(ctx context.Context, userID, steamID string) (int, error)
}

func (m *mockLibraryService) UpdateStatus(ctx context.Context, userID string, appID int64, status string) error {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, userID, appID, status)
	}
	return nil
}

func (m *mockLibraryService) Playing(ctx context.Context, userID string) (*model.LibraryGame, error) {
	if m.playingFn != nil {
		return m.playingFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockLibraryService) Carousels(ctx context.Context, userID string) (library.Carousels, error) {
	if m.carouselsFn != nil {
		return m.carouselsFn(ctx, userID)
	}
	return library.Carousels{}, nil
}

func (m *mockLibraryService) RandomPick(ctx context.Context, userID string) (*model.LibraryGame, error) {
	if m.randomPickFn != nil {
		return m.randomPickFn(ctx, userID)
	}
	return nil, model.NewNoEligibleGamesError()
}

func (m *mockLibraryService) Refresh(ctx context.Context, userID, steamID string) (int, error) {
	if m.refreshFn != nil {
		return m.refreshFn(ctx, userID, steamID)
	}
	return 0, nil
}

// mockTitleSyncer はTitleSyncerInterfaceのモック実装。
type mockTitleSyncer struct {
	syncTitleFn func(ctx context.Context, userID string, appID int64) (*gamesync.Outcome, error)
}

func (m *mockTitleSyncer) SyncTitle(ctx context.Context, userID string, appID int64) (*gamesync.Outcome, error) {
	if m.syncTitleFn != nil {
		return m.syncTitleFn(ctx, userID, appID)
	}
	return &gamesync.Outcome{AppID: appID, Source: gamesync.SourceNotFound}, nil
}

// mockBatchSyncer はBatchSyncerInterfaceのモック実装。
type mockBatchSyncer struct {
	runForUserFn func(ctx context.Context, userID string, appIDs []int64, onProgress func(gamesync.Progress)) (gamesync.BatchResult, error)
}

func (m *mockBatchSyncer) RunForUser(ctx context.Context, userID string, appIDs []int64, onProgress func(gamesync.Progress)) (gamesync.BatchResult, error) {
	if m.runForUserFn != nil {
		return m.runForUserFn(ctx, userID, appIDs, onProgress)
	}
	return gamesync.BatchResult{}, nil
}

// mockSessionManager はSessionManagerInterfaceのモック実装。
type mockSessionManager struct {
	createFn    func(userID string) suggest.SessionView
	getFn       func(userID, sessionID string) (suggest.SessionView, error)
	answerFn    func(ctx context.Context, userID, sessionID string, step suggest.Step, value string) (suggest.SessionView, error)
	backFn      func(userID, sessionID string) (suggest.SessionView, error)
	rerollFn    func(ctx context.Context, userID, sessionID string) (suggest.SessionView, error)
	resetFn     func(userID, sessionID string) error
	countdownFn func(ctx context.Context, userID, sessionID string) (<-chan int, error)
}

func (m *mockSessionManager) Create(userID string) suggest.SessionView {
	if m.createFn != nil {
		return m.createFn(userID)
	}
	return suggest.SessionView{ID: "session-1", Phase: suggest.PhaseCollectingMood}
}

func (m *mockSessionManager) Get(userID, sessionID string) (suggest.SessionView, error) {
	if m.getFn != nil {
		return m.getFn(userID, sessionID)
	}
	return suggest.SessionView{ID: sessionID}, nil
}

func (m *mockSessionManager) Answer(ctx context.Context, userID, sessionID string, step suggest.Step, value string) (suggest.SessionView, error) {
	if m.answerFn != nil {
		return m.answerFn(ctx, userID, sessionID, step, value)
	}
	return suggest.SessionView{ID: sessionID}, nil
}

func (m *mockSessionManager) Back(userID, sessionID string) (suggest.SessionView, error) {
	if m.backFn != nil {
		return m.backFn(userID, sessionID)
	}
	return suggest.SessionView{ID: sessionID}, nil
}

func (m *mockSessionManager) Reroll(ctx context.Context, userID, sessionID string) (suggest.SessionView, error) {
	if m.rerollFn != nil {
		return m.rerollFn(ctx, userID, sessionID)
	}
	return suggest.SessionView{ID: sessionID}, nil
}

func (m *mockSessionManager) Reset(userID, sessionID string) error {
	if m.resetFn != nil {
		return m.resetFn(userID, sessionID)
	}
	return nil
}

func (m *mockSessionManager) Countdown(ctx context.Context, userID, sessionID string) (<-chan int, error) {
	if m.countdownFn != nil {
		return m.countdownFn(ctx, userID, sessionID)
	}
	ch := make(chan int)
	close(ch)
	return ch, nil
}

// mockSuggester はSuggesterInterfaceのモック実装。
type mockSuggester struct {
	suggestFn func(ctx context.Context, req suggest.Request) (*model.Suggestion, error)
}

func (m *mockSuggester) Suggest(ctx context.Context, req suggest.Request) (*model.Suggestion, error) {
	if m.suggestFn != nil {
		return m.suggestFn(ctx, req)
	}
	return nil, model.NewNoEligibleGamesError()
}

// インターフェース適合の確認
var (
	_ LibraryServiceInterface = (*library.Service)(nil)
	_ TitleSyncerInterface    = (*gamesync.Service)(nil)
	_ BatchSyncerInterface    = (*gamesync.BatchRunner)(nil)
	_ SessionManagerInterface = (*suggest.Manager)(nil)
	_ SuggesterInterface      = (*suggest.Engine)(nil)
)

var errInternal = errors.New("db connection lost")

// --- テストヘルパー ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
}

// withUserID はテスト用にリクエストコンテキストにユーザーIDを注入するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	ctx := middleware.ContextWithUserID(r.Context(), userID)
	return r.WithContext(ctx)
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var result middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }
