package gamesync

import (
	"bytes"
	"context"
	"log/slog"
	"sync"

	"github.com/hitoshi/backlogroll/internal/model"
	"github.com/hitoshi/backlogroll/internal/steam"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// --- MetadataRepository モック ---

type mockMetadataRepo struct {
	mu            sync.Mutex
	findByAppIDFn func(ctx context.Context, appID int64) (*model.GameMetadata, error)
	upserted      []*model.GameMetadata
}

func (m *mockMetadataRepo) FindByAppID(ctx context.Context, appID int64) (*model.GameMetadata, error) {
	if m.findByAppIDFn != nil {
		return m.findByAppIDFn(ctx, appID)
	}
	return nil, nil
}

func (m *mockMetadataRepo) Upsert(ctx context.Context, meta *model.GameMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserted = append(m.upserted, meta)
	return nil
}

// --- LibraryRepository モック ---

type mockLibraryRepo struct {
	mu      sync.Mutex
	entries map[int64]*model.LibraryGame
	applied map[int64]*model.GameMetadata
	marked  []int64

	listUnsyncedFn func(ctx context.Context, userID string, limit int) ([]*model.LibraryGame, error)
	listUsersFn    func(ctx context.Context, limit int) ([]string, error)
}

func newMockLibraryRepo(entries ...*model.LibraryGame) *mockLibraryRepo {
	m := &mockLibraryRepo{
		entries: make(map[int64]*model.LibraryGame),
		applied: make(map[int64]*model.GameMetadata),
	}
	for _, e := range entries {
		m.entries[e.AppID] = e
	}
	return m
}

func (m *mockLibraryRepo) FindByUserAndApp(ctx context.Context, userID string, appID int64) (*model.LibraryGame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[appID], nil
}

func (m *mockLibraryRepo) ListByUser(ctx context.Context, userID string) ([]*model.LibraryGame, error) {
	return nil, nil
}

func (m *mockLibraryRepo) ListUnsynced(ctx context.Context, userID string, limit int) ([]*model.LibraryGame, error) {
	if m.listUnsyncedFn != nil {
		return m.listUnsyncedFn(ctx, userID, limit)
	}
	return nil, nil
}

func (m *mockLibraryRepo) ListUsersWithUnsynced(ctx context.Context, limit int) ([]string, error) {
	if m.listUsersFn != nil {
		return m.listUsersFn(ctx, limit)
	}
	return nil, nil
}

func (m *mockLibraryRepo) ApplyMetadata(ctx context.Context, userID string, appID int64, meta *model.GameMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applied[appID] = meta
	return nil
}

func (m *mockLibraryRepo) MarkSynced(ctx context.Context, userID string, appID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marked = append(m.marked, appID)
	return nil
}

func (m *mockLibraryRepo) UpdateStatus(ctx context.Context, userID string, appID int64, status model.GameStatus) (bool, error) {
	return true, nil
}

func (m *mockLibraryRepo) FindPlaying(ctx context.Context, userID string) (*model.LibraryGame, error) {
	return nil, nil
}

func (m *mockLibraryRepo) IncrementRerollCount(ctx context.Context, userID string, appID int64) error {
	return nil
}

func (m *mockLibraryRepo) InsertMissing(ctx context.Context, userID string, games []model.OwnedGame) (int, error) {
	return 0, nil
}

// --- StoreMetadataFetcher モック ---

type mockStore struct {
	mu           sync.Mutex
	detailsCalls int
	reviewCalls  int
	detailsFn    func(ctx context.Context, appID int64) (*steam.AppDetails, error)
	reviewFn     func(ctx context.Context, appID int64) (*steam.ReviewData, error)
}

func (m *mockStore) GetAppDetails(ctx context.Context, appID int64) (*steam.AppDetails, error) {
	m.mu.Lock()
	m.detailsCalls++
	m.mu.Unlock()
	if m.detailsFn != nil {
		return m.detailsFn(ctx, appID)
	}
	return nil, nil
}

func (m *mockStore) GetReviewData(ctx context.Context, appID int64) (*steam.ReviewData, error) {
	m.mu.Lock()
	m.reviewCalls++
	m.mu.Unlock()
	if m.reviewFn != nil {
		return m.reviewFn(ctx, appID)
	}
	return nil, nil
}

// --- CompletionTimeFetcher モック ---

type mockHLTB struct {
	mu      sync.Mutex
	calls   []string
	hours   float64
	found   bool
	hoursFn func(ctx context.Context, title string) (float64, bool)
}

func (m *mockHLTB) GetMainStoryHours(ctx context.Context, title string) (float64, bool) {
	m.mu.Lock()
	m.calls = append(m.calls, title)
	m.mu.Unlock()
	if m.hoursFn != nil {
		return m.hoursFn(ctx, title)
	}
	return m.hours, m.found
}

type passthroughSanitizer struct{}

func (passthroughSanitizer) Sanitize(s string) string { return s }

func gameDetails(appType, name string) *steam.AppDetails {
	return &steam.AppDetails{
		Success: true,
		Data: &steam.AppData{
			Type:             appType,
			Name:             name,
			ShortDescription: "desc",
			Genres:           []steam.Descriptor{{Description: "Action"}},
			Categories:       []steam.Descriptor{{Description: "Single-player"}},
		},
	}
}
