package library

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/hitoshi/backlogroll/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// --- LibraryRepository モック ---

type mockLibraryRepo struct {
	mu       sync.Mutex
	games    []*model.LibraryGame
	statuses map[int64]model.GameStatus
	rerolled []int64
	inserted []model.OwnedGame

	listErr      error
	rerollErr    error
	insertMissFn func(ctx context.Context, userID string, games []model.OwnedGame) (int, error)
}

func newMockLibraryRepo(games ...*model.LibraryGame) *mockLibraryRepo {
	return &mockLibraryRepo{games: games, statuses: make(map[int64]model.GameStatus)}
}

func (m *mockLibraryRepo) find(appID int64) *model.LibraryGame {
	for _, g := range m.games {
		if g.AppID == appID {
			return g
		}
	}
	return nil
}

func (m *mockLibraryRepo) FindByUserAndApp(ctx context.Context, userID string, appID int64) (*model.LibraryGame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(appID), nil
}

func (m *mockLibraryRepo) ListByUser(ctx context.Context, userID string) ([]*model.LibraryGame, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.games, nil
}

func (m *mockLibraryRepo) ListUnsynced(ctx context.Context, userID string, limit int) ([]*model.LibraryGame, error) {
	return nil, nil
}

func (m *mockLibraryRepo) ListUsersWithUnsynced(ctx context.Context, limit int) ([]string, error) {
	return nil, nil
}

func (m *mockLibraryRepo) ApplyMetadata(ctx context.Context, userID string, appID int64, meta *model.GameMetadata) error {
	return nil
}

func (m *mockLibraryRepo) MarkSynced(ctx context.Context, userID string, appID int64) error {
	return nil
}

func (m *mockLibraryRepo) UpdateStatus(ctx context.Context, userID string, appID int64, status model.GameStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.find(appID)
	if g == nil {
		return false, nil
	}
	if status == model.GameStatusPlaying {
		for _, other := range m.games {
			if other.Status == model.GameStatusPlaying {
				other.Status = model.GameStatusBacklog
			}
		}
	}
	g.Status = status
	m.statuses[appID] = status
	return true, nil
}

func (m *mockLibraryRepo) FindPlaying(ctx context.Context, userID string) (*model.LibraryGame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.games {
		if g.Status == model.GameStatusPlaying {
			return g, nil
		}
	}
	return nil, nil
}

func (m *mockLibraryRepo) IncrementRerollCount(ctx context.Context, userID string, appID int64) error {
	if m.rerollErr != nil {
		return m.rerollErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rerolled = append(m.rerolled, appID)
	return nil
}

func (m *mockLibraryRepo) InsertMissing(ctx context.Context, userID string, games []model.OwnedGame) (int, error) {
	if m.insertMissFn != nil {
		return m.insertMissFn(ctx, userID, games)
	}
	m.inserted = append(m.inserted, games...)
	return len(games), nil
}

// --- OwnedGamesFetcher モック ---

type mockOwned struct {
	games  []model.OwnedGame
	err    error
	called string
}

func (m *mockOwned) GetOwnedGames(ctx context.Context, steamID string) ([]model.OwnedGame, error) {
	m.called = steamID
	return m.games, m.err
}

var errDB = errors.New("db error")

// --- テスト用エントリ ---

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

type gameOpt func(*model.LibraryGame)

func withHours(h float64) gameOpt {
	return func(g *model.LibraryGame) { g.MainStoryHours = floatPtr(h) }
}
func withWeighted(w int) gameOpt { return func(g *model.LibraryGame) { g.ReviewWeighted = intPtr(w) } }
func withPlaytime(m int) gameOpt { return func(g *model.LibraryGame) { g.PlaytimeForever = m } }
func withStatus(s model.GameStatus) gameOpt {
	return func(g *model.LibraryGame) { g.Status = s }
}
func withType(t model.AppType) gameOpt { return func(g *model.LibraryGame) { g.Type = &t } }
func withCategories(c ...string) gameOpt {
	return func(g *model.LibraryGame) { g.Categories = c }
}

// newGame はシングルプレイ対応のgameエントリを生成する。
func newGame(appID int64, name string, opts ...gameOpt) *model.LibraryGame {
	t := model.AppTypeGame
	g := &model.LibraryGame{
		UserID:         "user-1",
		AppID:          appID,
		Name:           name,
		Type:           &t,
		Categories:     []string{model.CategorySinglePlayer},
		MetadataSynced: true,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}
